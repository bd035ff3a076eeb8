package endpoint_test

import (
	"testing"
	"time"

	"github.com/ananos/omx-go/api"
	"github.com/ananos/omx-go/endpoint"
	"github.com/ananos/omx-go/event"
	"github.com/ananos/omx-go/pool"
	"github.com/ananos/omx-go/region"
	"github.com/ananos/omx-go/wire"
)

func newTestEndpoint(idx int) *endpoint.Endpoint {
	return endpoint.Open(endpoint.Params{
		BoardIndex: 0,
		Index:      idx,
		SessionID:  0xabcd,
		Profile:    wire.MXCompatProfile(),
		BufferPool: pool.NewBufferPoolManager(),
		NUMANode:   -1,
	})
}

func TestOpenSetsOkStatusAndMagic(t *testing.T) {
	ep := newTestEndpoint(3)
	if ep.Status() != endpoint.StatusOk {
		t.Fatalf("status = %v, want Ok", ep.Status())
	}
	if ep.SessionID() != 0xabcd {
		t.Fatalf("SessionID = %x, want abcd", ep.SessionID())
	}
	if ep.PullMagic() == 0 {
		t.Fatalf("PullMagic should not be zero")
	}
}

func TestNotifyExpAndPeekRoundTrip(t *testing.T) {
	ep := newTestEndpoint(0)
	before := ep.NextExp()
	rec := event.EncodeRecvTiny(event.RecvTinyPayload{Peer: 1, SrcEndpoint: 2, Length: 3}, 0)
	if err := ep.NotifyExp(rec); err != nil {
		t.Fatalf("NotifyExp: %v", err)
	}
	if ep.NextExp() != before+1 {
		t.Fatalf("NextExp = %d, want %d", ep.NextExp(), before+1)
	}
	got := ep.PeekExp(before)
	if got.Type() != event.TypeRecvTiny {
		t.Fatalf("peeked event type = %v, want RecvTiny", got.Type())
	}
}

func TestNotifyUnexpWakesWaitEvent(t *testing.T) {
	ep := newTestEndpoint(0)
	nextExp, nextUnexp := ep.NextExp(), ep.NextUnexp()

	done := make(chan event.WaitStatus, 1)
	go func() {
		done <- ep.WaitEvent(nextExp, nextUnexp, 0, time.Now().Add(time.Second))
	}()
	// Give WaitEvent a moment to block before posting.
	time.Sleep(10 * time.Millisecond)
	rec := event.EncodeRecvTiny(event.RecvTinyPayload{Peer: 9, SrcEndpoint: 1, Length: 0}, 0)
	if err := ep.NotifyUnexp(rec); err != nil {
		t.Fatalf("NotifyUnexp: %v", err)
	}

	select {
	case status := <-done:
		if status != event.StatusEvent {
			t.Fatalf("WaitEvent status = %v, want StatusEvent", status)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitEvent never woke")
	}
}

func TestWaitEventReturnsRaceOnStaleIndices(t *testing.T) {
	ep := newTestEndpoint(0)
	rec := event.EncodeRecvTiny(event.RecvTinyPayload{Peer: 1, SrcEndpoint: 2, Length: 0}, 0)
	if err := ep.NotifyExp(rec); err != nil {
		t.Fatalf("NotifyExp: %v", err)
	}
	status := ep.WaitEvent(0, 0, 0, time.Now().Add(time.Second))
	if status != event.StatusRace {
		t.Fatalf("status = %v, want StatusRace", status)
	}
}

func TestAllocSendqSlotWrapsAndRoundTrips(t *testing.T) {
	ep := newTestEndpoint(0)
	off, buf := ep.AllocSendqSlot()
	copy(buf, []byte("payload"))
	again := ep.SendqAt(off)
	if string(again[:7]) != "payload" {
		t.Fatalf("SendqAt(%d) = %q, want payload", off, again[:7])
	}
}

func TestCreateUserRegionAssignsDistinctIDs(t *testing.T) {
	ep := newTestEndpoint(0)
	id0, r0, err := ep.CreateUserRegion(region.PinSynchronous, []region.SegmentSpec{{Length: 4096}})
	if err != nil {
		t.Fatalf("CreateUserRegion: %v", err)
	}
	id1, r1, err := ep.CreateUserRegion(region.PinSynchronous, []region.SegmentSpec{{Length: 4096}})
	if err != nil {
		t.Fatalf("CreateUserRegion: %v", err)
	}
	if id0 == id1 {
		t.Fatalf("expected distinct region ids, got %d and %d", id0, id1)
	}
	if ep.Region(id0) != r0 || ep.Region(id1) != r1 {
		t.Fatalf("Region lookup mismatch")
	}

	ep.DestroyUserRegion(id0, false, nil)
	if ep.Region(id0) != nil {
		t.Fatalf("expected Region(%d) nil after destroy", id0)
	}
}

func TestNotifyExpReturnsBusyWhenFull(t *testing.T) {
	ep := newTestEndpoint(0)
	rec := event.EncodeRecvTiny(event.RecvTinyPayload{Peer: 1, SrcEndpoint: 2, Length: 0}, 0)
	for {
		if err := ep.NotifyExp(rec); err != nil {
			if err != api.ErrBusy {
				t.Fatalf("unexpected error: %v", err)
			}
			break
		}
	}
	if ep.StatusBits()&endpoint.StatusBitExpEventqFull == 0 {
		t.Fatalf("expected StatusBitExpEventqFull to be set")
	}
}

func TestCloseIsIdempotentAndWakesWaiters(t *testing.T) {
	ep := newTestEndpoint(0)
	done := make(chan event.WaitStatus, 1)
	go func() {
		done <- ep.WaitEvent(ep.NextExp(), ep.NextUnexp(), 0, time.Now().Add(time.Second))
	}()
	time.Sleep(10 * time.Millisecond)
	ep.Close()
	ep.Close() // must not panic or deadlock on the second call

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitEvent never woke after Close")
	}
	if ep.Status() != endpoint.StatusClosing {
		t.Fatalf("status = %v, want Closing", ep.Status())
	}
}
