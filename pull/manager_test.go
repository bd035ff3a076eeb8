package pull_test

import (
	"testing"
	"time"

	"github.com/ananos/omx-go/event"
	"github.com/ananos/omx-go/pool"
	"github.com/ananos/omx-go/pull"
	"github.com/ananos/omx-go/region"
	"github.com/ananos/omx-go/wire"
)

// TestCloseRetiresSlotForReuse guards against the free-list exhaustion bug:
// every handle's slot must come back to the table once it reaches
// TimerExited, or the table permanently runs out after SlotsMax handles.
func TestCloseRetiresSlotForReuse(t *testing.T) {
	mgr := pool.NewBufferPoolManager()
	m := pull.NewManager()

	for i := 0; i < pull.SlotsMax*2; i++ {
		sink := region.New(0, mgr, -1, region.PinSynchronous, []region.SegmentSpec{{Length: 16}})
		if err := sink.PinSynchronous(); err != nil {
			t.Fatalf("PinSynchronous: %v", err)
		}
		h := m.Create(pull.Params{
			DstEndpoint: 0, SrcEndpoint: 1, Session: 1, TotalLength: 16,
			Magic: 1, Profile: wire.MXCompatProfile(), Region: sink,
			Sender: func(wire.PullRequest) {},
			Notify: func(event.PullDonePayload) {},
		}, time.Now().Add(time.Second))
		if h == nil {
			t.Fatalf("Create returned nil on iteration %d: slot table exhausted", i)
		}
		h.Close()
		if h.Status() != pull.StatusTimerExited {
			t.Fatalf("iteration %d: status = %v, want TimerExited immediately after Close", i, h.Status())
		}
	}
}

// TestLookupMissesAfterRetire confirms a retired slot's generation has
// moved on, so a stale reply naming the old slot id now misses.
func TestLookupMissesAfterRetire(t *testing.T) {
	mgr := pool.NewBufferPoolManager()
	sink := region.New(0, mgr, -1, region.PinSynchronous, []region.SegmentSpec{{Length: 16}})
	if err := sink.PinSynchronous(); err != nil {
		t.Fatalf("PinSynchronous: %v", err)
	}
	m := pull.NewManager()
	h := m.Create(pull.Params{
		DstEndpoint: 0, SrcEndpoint: 1, Session: 1, TotalLength: 16,
		Magic: 1, Profile: wire.MXCompatProfile(), Region: sink,
		Sender: func(wire.PullRequest) {},
		Notify: func(event.PullDonePayload) {},
	}, time.Now().Add(time.Second))
	id := h.SlotID()
	h.Close()

	if got := m.Lookup(id); got != nil {
		t.Fatalf("Lookup found a handle at a retired slot id")
	}
}
