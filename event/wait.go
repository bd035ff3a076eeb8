package event

import (
	"sync"
	"time"
)

// WaitStatus enumerates every reason wait_event can return, per spec.md
// §4.1 / §5: a new event posted, a signal, a retransmit-progress nudge,
// the absolute deadline, an explicit wakeup, or a detected index race.
type WaitStatus int

const (
	StatusEvent WaitStatus = iota
	StatusIntr
	StatusProgress
	StatusTimeout
	StatusWakeup
	StatusRace
)

func (s WaitStatus) String() string {
	switch s {
	case StatusEvent:
		return "Event"
	case StatusIntr:
		return "Intr"
	case StatusProgress:
		return "Progress"
	case StatusTimeout:
		return "Timeout"
	case StatusWakeup:
		return "Wakeup"
	case StatusRace:
		return "Race"
	default:
		return "Unknown"
	}
}

// Waiters tracks every goroutine currently blocked in wait_event on one
// endpoint, grounded on the teacher's internal/session done-channel
// pattern generalized from one waiter per session to many concurrent
// waiters sharing one endpoint.
type Waiters struct {
	mu      sync.Mutex
	waiting map[*waiter]struct{}
}

type waiter struct {
	ch chan WaitStatus
}

// NewWaiters constructs an empty waiter registry.
func NewWaiters() *Waiters {
	return &Waiters{waiting: make(map[*waiter]struct{})}
}

// Add registers a new waiter and returns a handle used to Wait and, if
// the caller gives up early (e.g. a signal outside our model), to Remove.
func (w *Waiters) add() *waiter {
	wt := &waiter{ch: make(chan WaitStatus, 1)}
	w.mu.Lock()
	w.waiting[wt] = struct{}{}
	w.mu.Unlock()
	return wt
}

func (w *Waiters) remove(wt *waiter) {
	w.mu.Lock()
	delete(w.waiting, wt)
	w.mu.Unlock()
}

// Wait blocks until progress, an absolute deadline, or a shorter
// "wakeup_jiffies" progress-poll deadline elapses, or the endpoint issues
// an explicit Notify. progressDeadline may be zero to mean "no earlier
// progress poll requested".
func (w *Waiters) Wait(deadline time.Time, progressDeadline time.Time) WaitStatus {
	wt := w.add()
	defer w.remove(wt)

	var timer *time.Timer
	now := time.Now()
	effective := deadline
	progressFirst := false
	if !progressDeadline.IsZero() && progressDeadline.Before(deadline) {
		effective = progressDeadline
		progressFirst = true
	}
	d := effective.Sub(now)
	if d < 0 {
		d = 0
	}
	timer = time.NewTimer(d)
	defer timer.Stop()

	select {
	case st := <-wt.ch:
		return st
	case <-timer.C:
		if progressFirst {
			return StatusProgress
		}
		return StatusTimeout
	}
}

// Notify wakes every current waiter with the given status; used by both
// event posting (StatusEvent) and explicit `wakeup` (StatusWakeup).
func (w *Waiters) Notify(status WaitStatus) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for wt := range w.waiting {
		select {
		case wt.ch <- status:
		default:
		}
	}
}

// Count returns the number of goroutines currently blocked in Wait.
func (w *Waiters) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.waiting)
}
