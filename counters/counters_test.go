package counters_test

import (
	"testing"

	"github.com/ananos/omx-go/counters"
)

func TestArrayIncAndSnapshot(t *testing.T) {
	var a counters.Array
	a.Inc(counters.RecvTiny)
	a.Inc(counters.RecvTiny)
	a.Inc(counters.DropBadSession)

	snap := a.Snapshot(false)
	if snap[counters.RecvTiny] != 2 {
		t.Fatalf("RecvTiny = %d, want 2", snap[counters.RecvTiny])
	}
	if snap[counters.DropBadSession] != 1 {
		t.Fatalf("DropBadSession = %d, want 1", snap[counters.DropBadSession])
	}

	snap2 := a.Snapshot(true)
	if snap2[counters.RecvTiny] != 2 {
		t.Fatalf("clearing snapshot should still report the pre-clear value")
	}
	snap3 := a.Snapshot(false)
	if snap3[counters.RecvTiny] != 0 {
		t.Fatalf("counters should read zero after a clearing snapshot, got %d", snap3[counters.RecvTiny])
	}
}

func TestArrayOutOfRangeIndexIgnored(t *testing.T) {
	var a counters.Array
	a.Inc(counters.Index(-1))
	a.Inc(counters.IndexMax)
	snap := a.Snapshot(false)
	for i, v := range snap {
		if v != 0 {
			t.Fatalf("index %d should remain zero, got %d", i, v)
		}
	}
}
