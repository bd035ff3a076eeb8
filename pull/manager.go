package pull

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Manager owns one endpoint's slot table and its list of live handles
// (pull_handles_list in spec.md §3), backed by github.com/eapache/queue the
// way the teacher's internal/concurrency.Executor backs its task queue —
// here guarded by an explicit mutex since, unlike the executor's
// single-producer-single-consumer task drain, the pull list is walked in
// full on endpoint close.
type Manager struct {
	mu    sync.Mutex
	table *slotTable
	list  *queue.Queue
}

// NewManager constructs an empty per-endpoint pull manager.
func NewManager() *Manager {
	return &Manager{
		table: newSlotTable(),
		list:  queue.New(),
	}
}

// Create allocates a slot, builds the handle, registers it on the
// pull-handles list, and arms its retransmit timer against the given
// absolute deadline. Returns nil if the slot table is exhausted
// (ErrQueueFull-equivalent: the caller should surface resource exhaustion).
func (m *Manager) Create(p Params, deadline time.Time) *Handle {
	h := New(p)
	m.mu.Lock()
	id, ok := m.table.alloc(h)
	if !ok {
		m.mu.Unlock()
		return nil
	}
	h.SetSlot(id)
	h.SetOnRetire(func() { m.Retire(h) })
	m.list.Add(h)
	m.mu.Unlock()
	h.Arm(deadline)
	return h
}

// Lookup finds a live handle by wire slot id (lock-free in spirit: the
// slot table here is a plain array so the mutex protects the allocator
// bookkeeping, not individual lookups, matching the RCU-without-lock
// intent of the original on the read side).
func (m *Manager) Lookup(id SlotID) *Handle {
	return m.table.lookup(id)
}

// Retire removes a handle from the slot table once its timer has exited,
// per the close protocol's "remove from slot array before teardown"
// ordering; idempotent.
func (m *Manager) Retire(h *Handle) {
	m.mu.Lock()
	m.table.release(h.slotID)
	m.mu.Unlock()
}

// CloseAll forces every live handle to TimerMustExit, used by endpoint
// close; it does not wait for timers to exit (the caller polls Status via
// WaitAllExited if it needs a synchronous teardown).
func (m *Manager) CloseAll() {
	m.mu.Lock()
	n := m.list.Length()
	handles := make([]*Handle, 0, n)
	for i := 0; i < n; i++ {
		if h, ok := m.list.Get(i).(*Handle); ok {
			handles = append(handles, h)
		}
	}
	m.mu.Unlock()
	for _, h := range handles {
		h.Close()
	}
}

// WaitAllExited busy-polls (yielding) until every handle created through
// this manager has reached TimerExited; used by endpoint close to block
// until teardown is complete before releasing the endpoint's last
// reference.
func (m *Manager) WaitAllExited() {
	m.mu.Lock()
	n := m.list.Length()
	handles := make([]*Handle, 0, n)
	for i := 0; i < n; i++ {
		if h, ok := m.list.Get(i).(*Handle); ok {
			handles = append(handles, h)
		}
	}
	m.mu.Unlock()
	for _, h := range handles {
		for h.Status() != StatusTimerExited {
			time.Sleep(time.Millisecond)
		}
	}
}
