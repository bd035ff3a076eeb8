// Package iface implements the interface layer: one attachment per NIC,
// owning a per-interface counter array and an endpoint slot table of
// length ≤256, grounded on the teacher's internal/session attach/detach
// lifecycle generalized from one session to a fixed slot array, and on
// pool/slab_pool.go's per-NUMA-node counters for GetCounters bookkeeping.
package iface

import (
	"net"
	"sync"

	"github.com/ananos/omx-go/api"
	"github.com/ananos/omx-go/counters"
	"github.com/ananos/omx-go/endpoint"
	"github.com/ananos/omx-go/pool"
	"github.com/ananos/omx-go/wire"
)

// SendFunc is the underlying NIC's transmit entry point; modeled as an
// injected function rather than an interface since the core never needs
// more than "hand this frame to the wire".
type SendFunc func(frame []byte) error

// Interface is one NIC attachment.
type Interface struct {
	BoardIndex int
	Name       string
	Driver     string
	Hostname   string
	MTU        int
	MAC        [6]byte
	Profile    wire.Profile

	send SendFunc

	Counters *counters.Array

	bufferPool *pool.BufferPoolManager
	numaNode   int

	mu        sync.RWMutex
	endpoints [wire.EndpointIndexMax]*endpoint.Endpoint

	refcount int
}

// New attaches a new interface; the NIC is not usable for incoming
// traffic until at least one endpoint is opened on it.
func New(boardIndex int, name, driver, hostname string, mtu int, mac [6]byte, profile wire.Profile, send SendFunc, bufferPool *pool.BufferPoolManager, numaNode int) *Interface {
	return &Interface{
		BoardIndex: boardIndex,
		Name:       name,
		Driver:     driver,
		Hostname:   hostname,
		MTU:        mtu,
		MAC:        mac,
		Profile:    profile,
		send:       send,
		Counters:   &counters.Array{},
		bufferPool: bufferPool,
		numaNode:   numaNode,
		refcount:   1,
	}
}

// Send hands a frame to the underlying NIC.
func (i *Interface) Send(frame []byte) error { return i.send(frame) }

// OpenEndpoint allocates a free endpoint slot, opens it, and returns it.
// Fails with ErrBusy if no slot is free — distinct from a single slot
// already being busy, since here the whole array is the resource.
func (i *Interface) OpenEndpoint(index int, sessionID uint32) (*endpoint.Endpoint, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if index < 0 || index >= wire.EndpointIndexMax {
		return nil, api.ErrInvalidArgument
	}
	if i.endpoints[index] != nil {
		return nil, api.ErrBusy
	}
	ep := endpoint.Open(endpoint.Params{
		BoardIndex: i.BoardIndex,
		Index:      index,
		SessionID:  sessionID,
		Profile:    i.Profile,
		BufferPool: i.bufferPool,
		NUMANode:   i.numaNode,
	})
	i.endpoints[index] = ep
	i.refcount++
	return ep, nil
}

// CloseEndpoint closes and detaches the endpoint at index, releasing the
// interface's reference; the interface itself is destroyed once its
// refcount reaches zero (all endpoints detached).
func (i *Interface) CloseEndpoint(index int) {
	i.mu.Lock()
	ep := i.endpoints[index]
	i.endpoints[index] = nil
	i.mu.Unlock()
	if ep == nil {
		return
	}
	ep.Close()
	i.mu.Lock()
	i.refcount--
	i.mu.Unlock()
}

// Endpoint looks up the endpoint at a given index; used as the
// classifier's EndpointLookup and by control-plane GetEndpointInfo.
func (i *Interface) Endpoint(index int) *endpoint.Endpoint {
	if index < 0 || index >= wire.EndpointIndexMax {
		return nil
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.endpoints[index]
}

// CheckRecvPeerIndex validates that a sender peer index maps to the given
// source MAC; this repository models the peer table as a minimal
// in-memory stand-in (out of scope per spec.md §1) that simply trusts the
// MAC carried in the Ethernet header, since peer discovery proper is not
// part of the core.
func (i *Interface) CheckRecvPeerIndex(_ uint16, srcMAC [6]byte) bool {
	return srcMAC != [6]byte{}
}

// Refcount reports the current reference count (1 + live endpoint count).
func (i *Interface) Refcount() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.refcount
}

// HardwareAddr renders the MAC as a net.HardwareAddr for logging/info
// surfaces.
func (i *Interface) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(i.MAC[:])
}
