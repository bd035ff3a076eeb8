package iface_test

import (
	"testing"

	"github.com/ananos/omx-go/api"
	"github.com/ananos/omx-go/iface"
	"github.com/ananos/omx-go/pool"
	"github.com/ananos/omx-go/wire"
)

func newTestInterface() *iface.Interface {
	return iface.New(0, "omx0", "loopback", "test-host", 1500,
		[6]byte{1, 2, 3, 4, 5, 6}, wire.MXCompatProfile(),
		func([]byte) error { return nil }, pool.NewBufferPoolManager(), -1)
}

func TestOpenEndpointAssignsAndTracksRefcount(t *testing.T) {
	i := newTestInterface()
	if i.Refcount() != 1 {
		t.Fatalf("initial Refcount = %d, want 1", i.Refcount())
	}
	ep, err := i.OpenEndpoint(0, 0xcafe)
	if err != nil {
		t.Fatalf("OpenEndpoint: %v", err)
	}
	if i.Endpoint(0) != ep {
		t.Fatalf("Endpoint(0) mismatch")
	}
	if i.Refcount() != 2 {
		t.Fatalf("Refcount after open = %d, want 2", i.Refcount())
	}
}

func TestOpenEndpointRejectsAlreadyBusySlot(t *testing.T) {
	i := newTestInterface()
	if _, err := i.OpenEndpoint(0, 1); err != nil {
		t.Fatalf("first OpenEndpoint: %v", err)
	}
	if _, err := i.OpenEndpoint(0, 2); err != api.ErrBusy {
		t.Fatalf("want ErrBusy on a busy slot, got %v", err)
	}
}

func TestOpenEndpointRejectsOutOfRangeIndex(t *testing.T) {
	i := newTestInterface()
	if _, err := i.OpenEndpoint(-1, 1); err != api.ErrInvalidArgument {
		t.Fatalf("want ErrInvalidArgument for negative index, got %v", err)
	}
	if _, err := i.OpenEndpoint(wire.EndpointIndexMax, 1); err != api.ErrInvalidArgument {
		t.Fatalf("want ErrInvalidArgument for index==max, got %v", err)
	}
}

func TestCloseEndpointFreesSlotAndDropsRefcount(t *testing.T) {
	i := newTestInterface()
	if _, err := i.OpenEndpoint(3, 0xabc); err != nil {
		t.Fatalf("OpenEndpoint: %v", err)
	}
	i.CloseEndpoint(3)
	if i.Endpoint(3) != nil {
		t.Fatalf("Endpoint(3) should be nil after close")
	}
	if i.Refcount() != 1 {
		t.Fatalf("Refcount after close = %d, want 1", i.Refcount())
	}
	// Closing an already-free slot must be a harmless no-op.
	i.CloseEndpoint(3)
}

func TestCheckRecvPeerIndexRejectsZeroMAC(t *testing.T) {
	i := newTestInterface()
	if i.CheckRecvPeerIndex(0, [6]byte{}) {
		t.Fatalf("all-zero MAC should fail the peer check")
	}
	if !i.CheckRecvPeerIndex(0, [6]byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("nonzero MAC should pass the peer check")
	}
}
