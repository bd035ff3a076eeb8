package pull_test

import (
	"testing"
	"time"

	"github.com/ananos/omx-go/counters"
	"github.com/ananos/omx-go/event"
	"github.com/ananos/omx-go/pool"
	"github.com/ananos/omx-go/pull"
	"github.com/ananos/omx-go/region"
	"github.com/ananos/omx-go/wire"
)

func TestSingleFrameBlockCompletesOnFirstReply(t *testing.T) {
	mgr := pool.NewBufferPoolManager()
	sink := region.New(0, mgr, -1, region.PinSynchronous, []region.SegmentSpec{{Length: 500}})
	if err := sink.PinSynchronous(); err != nil {
		t.Fatalf("PinSynchronous: %v", err)
	}

	done := make(chan event.PullDonePayload, 1)
	var requested []wire.PullRequest
	m := pull.NewManager()
	h := m.Create(pull.Params{
		DstEndpoint:  0,
		SrcEndpoint:  1,
		Session:      0xabcd,
		TotalLength:  500,
		Magic:        0x4f4d58,
		Profile:      wire.MXCompatProfile(),
		Region:       sink,
		Sender:       func(req wire.PullRequest) { requested = append(requested, req) },
		Notify:       func(p event.PullDonePayload) { done <- p },
	}, time.Now().Add(time.Second))
	defer h.Close()

	if len(requested) != 1 {
		t.Fatalf("expected exactly one initial block request, got %d", len(requested))
	}
	if requested[0].BlockLength != 500 {
		t.Fatalf("first request BlockLength = %d, want 500", requested[0].BlockLength)
	}

	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte(i)
	}
	h.HandleReply(pull.ReplyInput{
		SlotGeneration: h.SlotID().Generation(),
		Magic:          0x4f4d58,
		FrameSeqnum:    0,
		FrameLength:    500,
		MsgOffset:      0,
		Payload:        payload,
	})

	select {
	case p := <-done:
		if p.Status != event.PullDoneSuccess {
			t.Fatalf("status = %v, want PullDoneSuccess", p.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("pull never completed")
	}

	got := make([]byte, 500)
	sink.CopyOut(region.NewOffsetCache(sink), got)
	for i := range got {
		if got[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], payload[i])
		}
	}
}

func TestStaleGenerationReplyIgnored(t *testing.T) {
	mgr := pool.NewBufferPoolManager()
	sink := region.New(0, mgr, -1, region.PinSynchronous, []region.SegmentSpec{{Length: 500}})
	if err := sink.PinSynchronous(); err != nil {
		t.Fatalf("PinSynchronous: %v", err)
	}

	done := make(chan event.PullDonePayload, 1)
	m := pull.NewManager()
	h := m.Create(pull.Params{
		DstEndpoint: 0, SrcEndpoint: 1, Session: 1, TotalLength: 500,
		Magic: 42, Profile: wire.MXCompatProfile(), Region: sink,
		Sender: func(wire.PullRequest) {},
		Notify: func(p event.PullDonePayload) { done <- p },
	}, time.Now().Add(time.Second))
	defer h.Close()

	h.HandleReply(pull.ReplyInput{
		SlotGeneration: h.SlotID().Generation() + 1, // wrong generation
		Magic:          42,
		FrameSeqnum:    0,
		FrameLength:    500,
		MsgOffset:      0,
		Payload:        make([]byte, 500),
	})

	select {
	case <-done:
		t.Fatal("stale-generation reply should not complete the pull")
	case <-time.After(50 * time.Millisecond):
	}
}

// TestNonFirstBlockCompletesEarlyBumpsCounter uses a small custom profile
// (2 frames/block, 100 bytes/frame) so a 300-byte pull spans two blocks;
// completing the second block's lone frame before block 0 must bump
// PullNonfirstBlockDoneEarly regardless of whether a re-request is issued.
func TestNonFirstBlockCompletesEarlyBumpsCounter(t *testing.T) {
	mgr := pool.NewBufferPoolManager()
	sink := region.New(0, mgr, -1, region.PinSynchronous, []region.SegmentSpec{{Length: 300}})
	if err := sink.PinSynchronous(); err != nil {
		t.Fatalf("PinSynchronous: %v", err)
	}

	profile := wire.Profile{Name: "test", MTU: 1500, MXWireCompat: true, PullReplyMax: 100, MediumFragMax: 100, PullReplyBlock: 2}
	ctr := &counters.Array{}
	m := pull.NewManager()
	h := m.Create(pull.Params{
		DstEndpoint: 0, SrcEndpoint: 1, Session: 1, TotalLength: 300,
		Magic: 7, Profile: profile, Region: sink, Counters: ctr,
		Sender: func(wire.PullRequest) {},
		Notify: func(event.PullDonePayload) {},
	}, time.Now().Add(time.Second))
	defer h.Close()

	h.HandleReply(pull.ReplyInput{
		SlotGeneration: h.SlotID().Generation(),
		Magic:          7,
		FrameSeqnum:    2,
		FrameLength:    100,
		MsgOffset:      200,
		Payload:        make([]byte, 100),
	})

	snap := ctr.Snapshot(false)
	if snap[counters.PullNonfirstBlockDoneEarly] != 1 {
		t.Fatalf("PullNonfirstBlockDoneEarly = %d, want 1", snap[counters.PullNonfirstBlockDoneEarly])
	}
}
