package event_test

import (
	"testing"

	"github.com/ananos/omx-go/event"
)

func TestQueueReserveCommitPeek(t *testing.T) {
	q := event.NewQueue(16)
	idx, err := q.Reserve()
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	p := event.RecvTinyPayload{Peer: 1, SrcEndpoint: 2, Length: 3}
	copy(p.Data[:3], []byte("abc"))
	q.Commit(idx, event.EncodeRecvTiny(p, 0))

	rec := q.Peek(idx)
	if rec.ID() != event.ComputeID(idx) {
		t.Fatalf("committed record id = %d, want %d", rec.ID(), event.ComputeID(idx))
	}
	got := event.DecodeRecvTiny(rec)
	if got.Peer != 1 || got.SrcEndpoint != 2 || got.Length != 3 || string(got.Data[:3]) != "abc" {
		t.Fatalf("decoded payload mismatch: %+v", got)
	}
}

func TestQueueFullWhenOutstandingReachesCapacity(t *testing.T) {
	q := event.NewQueue(4)
	for i := 0; i < 4; i++ {
		if _, err := q.Reserve(); err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
	}
	if _, err := q.Reserve(); err != event.ErrQueueFull {
		t.Fatalf("want ErrQueueFull, got %v", err)
	}
}

func TestReleaseRequiresQuarterRing(t *testing.T) {
	q := event.NewQueue(8)
	// Reserve fewer than a quarter (2 of 8): release should fail.
	if _, err := q.Reserve(); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := q.Release(); err != event.ErrInvalidRelease {
		t.Fatalf("want ErrInvalidRelease, got %v", err)
	}

	// Reserve up to exactly one quarter (2 slots): release should succeed.
	if _, err := q.Reserve(); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := q.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if q.NextReleased() != 2 {
		t.Fatalf("NextReleased = %d, want 2", q.NextReleased())
	}
}

func TestIgnoreRecordDecodesAsIgnore(t *testing.T) {
	q := event.NewQueue(4)
	idx, _ := q.Reserve()
	q.CommitIgnore(idx)
	rec := q.Peek(idx)
	if rec.Type() != event.TypeIgnore {
		t.Fatalf("type = %v, want TypeIgnore", rec.Type())
	}
}
