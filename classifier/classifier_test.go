package classifier_test

import (
	"testing"

	"github.com/ananos/omx-go/classifier"
	"github.com/ananos/omx-go/counters"
	"github.com/ananos/omx-go/endpoint"
	"github.com/ananos/omx-go/pool"
	"github.com/ananos/omx-go/wire"
)

func tinyFrame(dstEndpoint, srcEndpoint uint8, session uint32, payload string) wire.Frame {
	m := wire.Msg{
		DstEndpoint: dstEndpoint, SrcEndpoint: srcEndpoint,
		Length: uint16(len(payload)), LibSeqnum: 1, Session: session,
	}
	buf := make([]byte, 64)
	n := wire.EncodeMsg(buf, wire.PktTiny, m)
	copy(buf[n:], []byte(payload))
	return wire.Frame{
		Head: wire.Head{SenderPeerIdx: 7},
		Type: wire.PktTiny,
		// classifier decoders expect the type byte stripped already.
		Payload: buf[1 : n+len(payload)],
	}
}

func newTestHarness(t *testing.T) (*classifier.Classifier, *endpoint.Endpoint, *counters.Array) {
	t.Helper()
	var ctr counters.Array
	ep := endpoint.Open(endpoint.Params{
		BoardIndex: 0, Index: 0, SessionID: 0xcafe,
		Profile: wire.MXCompatProfile(), BufferPool: pool.NewBufferPoolManager(), NUMANode: -1,
	})
	lookup := func(idx int) *endpoint.Endpoint {
		if idx == 0 {
			return ep
		}
		return nil
	}
	peerCheck := func(uint16, [6]byte) bool { return true }
	nack := func(uint16, uint8, uint8, uint16, uint32, wire.NackType) {}
	c := classifier.New(lookup, peerCheck, nack, nil, nil, &ctr)
	return c, ep, &ctr
}

func TestDispatchTinyDeliversUnexpectedEvent(t *testing.T) {
	c, ep, _ := newTestHarness(t)
	before := ep.NextUnexp()
	c.Dispatch(tinyFrame(0, 1, 0xcafe, "hello"))
	if ep.NextUnexp() != before+1 {
		t.Fatalf("NextUnexp = %d, want %d", ep.NextUnexp(), before+1)
	}
	rec := ep.PeekUnexp(before)
	if rec.ID() == 0 {
		t.Fatalf("expected a committed (nonzero id) record")
	}
}

func TestDispatchBadSessionSendsNack(t *testing.T) {
	var gotReason wire.NackType
	var called bool
	var ctr counters.Array
	ep := endpoint.Open(endpoint.Params{
		BoardIndex: 0, Index: 0, SessionID: 0xcafe,
		Profile: wire.MXCompatProfile(), BufferPool: pool.NewBufferPoolManager(), NUMANode: -1,
	})
	lookup := func(idx int) *endpoint.Endpoint {
		if idx == 0 {
			return ep
		}
		return nil
	}
	c := classifier.New(lookup, func(uint16, [6]byte) bool { return true },
		func(_ uint16, _, _ uint8, _ uint16, _ uint32, reason wire.NackType) {
			called = true
			gotReason = reason
		}, nil, nil, &ctr)

	before := ep.NextUnexp()
	c.Dispatch(tinyFrame(0, 1, 0xffff, "hi")) // wrong session
	if !called {
		t.Fatalf("expected NackSender to be called on session mismatch")
	}
	if gotReason != wire.NackBadSession {
		t.Fatalf("reason = %v, want NackBadSession", gotReason)
	}
	if ep.NextUnexp() != before {
		t.Fatalf("no event should have been posted on a dropped frame")
	}
}

func TestDispatchUnknownEndpointDropsWithoutPanic(t *testing.T) {
	c, _, ctr := newTestHarness(t)
	c.Dispatch(tinyFrame(9, 1, 0xcafe, "hi")) // endpoint 9 does not exist
	if ctr.Snapshot(false)[counters.DropBadEndpoint] == 0 {
		t.Fatalf("expected DropBadEndpoint to be incremented")
	}
}

func TestDispatchFailedPeerCheckDropsBeforeDecoding(t *testing.T) {
	var ctr counters.Array
	ep := endpoint.Open(endpoint.Params{
		BoardIndex: 0, Index: 0, SessionID: 0xcafe,
		Profile: wire.MXCompatProfile(), BufferPool: pool.NewBufferPoolManager(), NUMANode: -1,
	})
	lookup := func(idx int) *endpoint.Endpoint { return ep }
	c := classifier.New(lookup, func(uint16, [6]byte) bool { return false },
		func(uint16, uint8, uint8, uint16, uint32, wire.NackType) {}, nil, nil, &ctr)

	before := ep.NextUnexp()
	c.Dispatch(tinyFrame(0, 1, 0xcafe, "hi"))
	if ctr.Snapshot(false)[counters.DropBadPeerIndex] == 0 {
		t.Fatalf("expected DropBadPeerIndex to be incremented")
	}
	if ep.NextUnexp() != before {
		t.Fatalf("a peer-check failure must not deliver an event")
	}
}
