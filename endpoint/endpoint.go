// Package endpoint implements the kernel-resident endpoint: the unit of
// addressability for a user process, wiring the send/receive rings, the
// expected/unexpected event queues, the user-region table, and the
// per-endpoint pull-handle manager, grounded on the teacher's
// internal/session package (per-session state, done-channel teardown)
// generalized from one session to a full ring/queue/table bundle.
package endpoint

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ananos/omx-go/api"
	"github.com/ananos/omx-go/event"
	"github.com/ananos/omx-go/pool"
	"github.com/ananos/omx-go/pull"
	"github.com/ananos/omx-go/region"
	"github.com/ananos/omx-go/wire"
)

// Status is the endpoint's lifecycle state, per spec.md §3.
type Status int32

const (
	StatusFree Status = iota
	StatusInitializing
	StatusOk
	StatusClosing
)

func (s Status) String() string {
	switch s {
	case StatusFree:
		return "Free"
	case StatusInitializing:
		return "Initializing"
	case StatusOk:
		return "Ok"
	case StatusClosing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// SendqEntrySize is OMX_SENDQ_ENTRY_SIZE: the fixed slot size of the
// send/receive queues, large enough for one max-size medium fragment.
const SendqEntrySize = 8192

// endpointPullMagicConst XORs with the endpoint index to build
// endpoint_pull_magic, per spec.md §3.
const endpointPullMagicConst = 0x4f4d58 // "OMX"

// Endpoint is the unit of addressability for a user process.
type Endpoint struct {
	BoardIndex int
	Index      int

	sessionID atomic.Uint32

	status   atomic.Int32
	refcount atomic.Int32

	sendq *ringbufSlots
	recvq *ringbufSlots

	expEventq   *event.Queue
	unexpEventq *event.Queue
	waiters     *event.Waiters

	wakeupJiffies atomic.Int64 // unix nano; 0 means unset

	regionsMu sync.RWMutex
	regions   [wire.UserRegionsMax]*region.Region

	pullMgr    *pull.Manager
	pullMagic  uint32
	bufferPool *pool.BufferPoolManager
	numaNode   int

	profile wire.Profile

	// statusBits records sticky queue-full conditions for introspection;
	// not reset automatically, matching the spec's "status bit" language.
	statusBits atomic.Uint32

	closeOnce sync.Once
}

const (
	StatusBitExpEventqFull   = 1 << 0
	StatusBitUnexpEventqFull = 1 << 1
)

// setStatusBit ORs a bit into an atomic status word via CAS, avoiding a
// dependency on the newer atomic.Uint32.Or method.
func setStatusBit(word *atomic.Uint32, bit uint32) {
	for {
		old := word.Load()
		if old&bit != 0 {
			return
		}
		if word.CompareAndSwap(old, old|bit) {
			return
		}
	}
}

// ringbufSlots is the sendq/recvq backing store: a fixed array of
// page-aligned SendqEntrySize slots plus a monotonic next-offset counter,
// per spec.md §3 ("next_recvq_offset"). Allocation is a simple
// fetch-and-add modulo ring size — the ring never blocks allocation, only
// the consumer's eventual reservation of the matching event slot bounds
// concurrency, matching the original's wraparound-is-fine design (a slot
// is only handed out once its previous occupant's completion event has
// been consumed by convention of the protocol layered on top).
type ringbufSlots struct {
	entries  [][]byte
	nextOff  atomic.Uint32
}

func newRingbufSlots(n int, entrySize int) *ringbufSlots {
	s := &ringbufSlots{entries: make([][]byte, n)}
	for i := range s.entries {
		s.entries[i] = make([]byte, entrySize)
	}
	return s
}

func (s *ringbufSlots) alloc() (offset uint32, buf []byte) {
	n := uint32(len(s.entries))
	idx := s.nextOff.Add(1) - 1
	offset = (idx % n) * SendqEntrySize
	return offset, s.entries[idx%n]
}

func (s *ringbufSlots) at(offset uint32) []byte {
	idx := offset / SendqEntrySize
	return s.entries[idx%uint32(len(s.entries))]
}

// Params bundles open-time configuration.
type Params struct {
	BoardIndex int
	Index      int
	SessionID  uint32
	Profile    wire.Profile
	BufferPool *pool.BufferPoolManager
	NUMANode   int
}

// Open allocates sendq/recvq/eventqs, per spec.md §4.1. The caller (the
// interface's slot table) is responsible for enforcing that the slot was
// Free before calling Open; Open itself always succeeds once invoked.
func Open(p Params) *Endpoint {
	ep := &Endpoint{
		BoardIndex: p.BoardIndex,
		Index:      p.Index,
		sendq:      newRingbufSlots(int(wire.SendqEntries), SendqEntrySize),
		recvq:      newRingbufSlots(int(wire.RecvqEntries), SendqEntrySize),
		expEventq:   event.NewQueue(wire.ExpEventqLen),
		unexpEventq: event.NewQueue(wire.UnexpEventqLen),
		waiters:     event.NewWaiters(),
		pullMgr:     pull.NewManager(),
		pullMagic:   uint32(p.Index) ^ endpointPullMagicConst,
		bufferPool:  p.BufferPool,
		numaNode:    p.NUMANode,
		profile:     p.Profile,
	}
	ep.sessionID.Store(p.SessionID)
	ep.refcount.Store(1)
	ep.status.Store(int32(StatusOk))
	return ep
}

func (ep *Endpoint) Status() Status     { return Status(ep.status.Load()) }
func (ep *Endpoint) SessionID() uint32  { return ep.sessionID.Load() }
func (ep *Endpoint) PullMagic() uint32  { return ep.pullMagic }
func (ep *Endpoint) Profile() wire.Profile { return ep.profile }

func (ep *Endpoint) Ref()   { ep.refcount.Add(1) }
func (ep *Endpoint) Unref() { ep.refcount.Add(-1) }

// Close transitions Ok -> Closing, wakes every waiter, drains pull
// handles, and releases the caller's reference. Safe under concurrent
// calls: only the first runs the teardown; later callers block until it
// has finished and then return, per spec.md §4.1.
func (ep *Endpoint) Close() {
	ep.closeOnce.Do(func() {
		ep.status.Store(int32(StatusClosing))
		ep.waiters.Notify(event.StatusWakeup)
		ep.pullMgr.CloseAll()
		ep.pullMgr.WaitAllExited()
		ep.Unref()
	})
}

// NotifyExp posts an expected event, per spec.md §4.1; returns ErrBusy
// (and sets StatusBitExpEventqFull) if the ring is full.
func (ep *Endpoint) NotifyExp(rec event.Record) error {
	idx, err := ep.expEventq.Reserve()
	if err != nil {
		setStatusBit(&ep.statusBits, StatusBitExpEventqFull)
		return api.ErrBusy
	}
	ep.expEventq.Commit(idx, rec)
	ep.waiters.Notify(event.StatusEvent)
	return nil
}

// NotifyUnexp posts an unexpected event that does not need a recvq slot.
func (ep *Endpoint) NotifyUnexp(rec event.Record) error {
	idx, err := ep.unexpEventq.Reserve()
	if err != nil {
		setStatusBit(&ep.statusBits, StatusBitUnexpEventqFull)
		return api.ErrBusy
	}
	ep.unexpEventq.Commit(idx, rec)
	ep.waiters.Notify(event.StatusEvent)
	return nil
}

// RecvqReservation is returned by PrepareNotifyUnexpWithRecvqs: the caller
// fills RecvqBuf then must Commit or Cancel each reserved slot, in order.
type RecvqReservation struct {
	EventIdx  uint32
	RecvqOff  uint32
	RecvqBuf  []byte
}

// PrepareNotifyUnexpWithRecvqs atomically reserves n unexpected-event
// slots and n recvq slots, per spec.md §4.1.
func (ep *Endpoint) PrepareNotifyUnexpWithRecvqs(n uint32) ([]RecvqReservation, error) {
	start, err := ep.unexpEventq.ReserveN(n)
	if err != nil {
		setStatusBit(&ep.statusBits, StatusBitUnexpEventqFull)
		return nil, api.ErrBusy
	}
	out := make([]RecvqReservation, n)
	for i := uint32(0); i < n; i++ {
		off, buf := ep.recvq.alloc()
		out[i] = RecvqReservation{EventIdx: start + i, RecvqOff: off, RecvqBuf: buf}
	}
	return out, nil
}

// PrepareNotifyUnexpWithRecvq is the n=1 convenience form.
func (ep *Endpoint) PrepareNotifyUnexpWithRecvq() (RecvqReservation, error) {
	rs, err := ep.PrepareNotifyUnexpWithRecvqs(1)
	if err != nil {
		return RecvqReservation{}, err
	}
	return rs[0], nil
}

// CommitNotifyUnexpWithRecvq writes a previously reserved slot.
func (ep *Endpoint) CommitNotifyUnexpWithRecvq(r RecvqReservation, rec event.Record) {
	ep.unexpEventq.Commit(r.EventIdx, rec)
	ep.waiters.Notify(event.StatusEvent)
}

// CancelNotifyUnexpWithRecvq writes an Ignore event into a reserved slot
// the caller decided not to use; the recvq slot itself cannot be reclaimed.
func (ep *Endpoint) CancelNotifyUnexpWithRecvq(r RecvqReservation) {
	ep.unexpEventq.CommitIgnore(r.EventIdx)
}

// ReleaseExpSlots / ReleaseUnexpSlots advance nextreleased_* by one
// quarter-ring, per spec.md §4.1.
func (ep *Endpoint) ReleaseExpSlots() error   { return ep.expEventq.Release() }
func (ep *Endpoint) ReleaseUnexpSlots() error { return ep.unexpEventq.Release() }

// PeekExp / PeekUnexp let a consumer read the event at a given ring index
// without reserving it itself — the userspace equivalent of mmap'ing the
// eventq and reading the record directly, used by WaitEvent callers that
// already know which index to look at.
func (ep *Endpoint) PeekExp(idx uint32) event.Record   { return ep.expEventq.Peek(idx) }
func (ep *Endpoint) PeekUnexp(idx uint32) event.Record { return ep.unexpEventq.Peek(idx) }

// NextExp / NextUnexp report the next-free index for each event queue, the
// value a WaitEvent caller should pass back in as nextExp/nextUnexp.
func (ep *Endpoint) NextExp() uint32   { return ep.expEventq.NextFree() }
func (ep *Endpoint) NextUnexp() uint32 { return ep.unexpEventq.NextFree() }

// WaitEvent implements spec.md §4.1's racy wait_event: if nextExp or
// nextUnexp disagrees with the matching queue's current next-free index,
// it returns StatusRace immediately so the caller resamples instead of
// possibly missing an event that landed between its last poll and this
// call. userEventIdx is accepted but not compared against anything.
func (ep *Endpoint) WaitEvent(nextExp, nextUnexp, userEventIdx uint32, deadline time.Time) event.WaitStatus {
	if nextExp != ep.expEventq.NextFree() || nextUnexp != ep.unexpEventq.NextFree() {
		return event.StatusRace
	}
	_ = userEventIdx // reserved for a caller-side ring index the core does not itself validate
	var progressDeadline time.Time
	if wj := ep.wakeupJiffies.Load(); wj != 0 {
		pd := time.Unix(0, wj)
		if pd.Before(deadline) {
			progressDeadline = pd
		}
	}
	return ep.waiters.Wait(deadline, progressDeadline)
}

// SetWakeupJiffies records the per-endpoint progress-poll deadline hint.
func (ep *Endpoint) SetWakeupJiffies(t time.Time) { ep.wakeupJiffies.Store(t.UnixNano()) }

// Wakeup wakes every current waiter with the supplied status.
func (ep *Endpoint) Wakeup(status event.WaitStatus) { ep.waiters.Notify(status) }

// AllocSendqSlot / AllocRecvqSlot hand out the next ring slot by simple
// fetch-and-add; see ringbufSlots for the wraparound discipline.
func (ep *Endpoint) AllocSendqSlot() (offset uint32, buf []byte) { return ep.sendq.alloc() }
func (ep *Endpoint) AllocRecvqSlot() (offset uint32, buf []byte) { return ep.recvq.alloc() }
func (ep *Endpoint) SendqAt(offset uint32) []byte                { return ep.sendq.at(offset) }
func (ep *Endpoint) RecvqAt(offset uint32) []byte                { return ep.recvq.at(offset) }

// CreateUserRegion allocates a free region slot (0..255) and installs a
// freshly constructed, not-yet-pinned region.
func (ep *Endpoint) CreateUserRegion(mode region.PinMode, specs []region.SegmentSpec) (uint8, *region.Region, error) {
	ep.regionsMu.Lock()
	defer ep.regionsMu.Unlock()
	for i := range ep.regions {
		if ep.regions[i] == nil {
			r := region.New(uint8(i), ep.bufferPool, ep.numaNode, mode, specs)
			ep.regions[i] = r
			return uint8(i), r, nil
		}
	}
	return 0, nil, api.NewError(api.ErrCodeNoMem, "no free user region slot")
}

// Region looks up a region by id; nil if the slot is empty.
func (ep *Endpoint) Region(id uint8) *region.Region {
	ep.regionsMu.RLock()
	defer ep.regionsMu.RUnlock()
	return ep.regions[id]
}

// DestroyUserRegion drops the endpoint's reference to a region; the
// region itself is only actually released once its own refcount reaches
// zero (other in-flight pulls may still hold a reference).
func (ep *Endpoint) DestroyUserRegion(id uint8, recvPath bool, deferRelease func(func())) {
	ep.regionsMu.Lock()
	r := ep.regions[id]
	ep.regions[id] = nil
	ep.regionsMu.Unlock()
	if r != nil {
		r.Unref(recvPath, deferRelease)
	}
}

// PullManager exposes the endpoint's pull handle manager to the
// classifier and send-path Pull operation.
func (ep *Endpoint) PullManager() *pull.Manager { return ep.pullMgr }

// StatusBits returns the sticky queue-full bits accumulated since open.
func (ep *Endpoint) StatusBits() uint32 { return ep.statusBits.Load() }
