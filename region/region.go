// Package region implements the user-region subsystem: pinning a user
// virtual range into segments of pinned page arrays, serving as both the
// zero-copy source for sends and the sink for received payload.
//
// There is no real kernel page table here — this is a user-space
// reimplementation — so "pinning" means obtaining a page-granular backing
// array from a NUMA-segmented slab pool and holding a reference to it for
// the region's lifetime, grounded on the teacher's pool/numapool.go and
// pool/slab_pool.go (size-classed allocation with per-NUMA-node counters).
package region

import (
	"sync"
	"sync/atomic"

	"github.com/ananos/omx-go/api"
	"github.com/ananos/omx-go/pool"
)

// PageSize is the page granularity segments are pinned/filled at, queried
// from the host once at init time (see pagesize_linux.go/pagesize_windows.go)
// rather than hardcoded, so segment math matches the real host page size.
var PageSize int64 = int64(detectPageSize())

// largeSegmentPages is the page-count threshold above which a segment's
// backing array is flagged vmalloced and its release deferred outside a
// non-sleepable context, matching spec.md §3 ("Arrays with >4096 pages").
const largeSegmentPages = 4096

// Status is the region's pinning state machine.
type Status int32

const (
	NotPinned Status = iota
	Pinned
	Failed
)

func (s Status) String() string {
	switch s {
	case NotPinned:
		return "NotPinned"
	case Pinned:
		return "Pinned"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// PinMode selects eager ("synchronous") vs on-demand pinning.
type PinMode int

const (
	PinSynchronous PinMode = iota
	PinDemand
)

// Segment is one contiguous sub-range of a region: the byte offset of the
// first useful byte within the first page, the segment's logical length,
// and its pinned page array.
type Segment struct {
	FirstPageOffset int
	Length          int64
	Pages           []api.Buffer // each PageSize bytes
	Vmalloced       bool
}

// page returns the raw byte slice backing page p of the segment.
func (s *Segment) page(p int) []byte { return s.Pages[p].Bytes() }

// pageCount returns how many pages a segment of the given offset/length needs.
func pageCount(firstPageOffset int, length int64) int {
	total := int64(firstPageOffset) + length
	n := total / PageSize
	if total%PageSize != 0 {
		n++
	}
	return int(n)
}

// Region is an ordered sequence of segments pinned (eagerly or on demand)
// from a NUMA-local slab pool, exposed as both a send source and a
// receive sink.
type Region struct {
	ID   uint8
	Mode PinMode

	pool *pool.BufferPoolManager
	node int

	mu       sync.Mutex
	segments []Segment

	status                atomic.Int32
	totalLength           int64
	totalRegisteredLength atomic.Int64
	dirty                 atomic.Bool
	refcount              atomic.Int32

	strategy fillStrategy
}

// SegmentSpec describes one requested span at creation time: the offset
// of its first byte within its first page, and its length.
type SegmentSpec struct {
	FirstPageOffset int
	Length          int64
}

// New allocates a region's segment metadata (unpinned) for the given
// spans. Pinning happens separately via PinSynchronous or the demand-pin
// protocol, per spec.md §4.4.
func New(id uint8, mgr *pool.BufferPoolManager, numaNode int, mode PinMode, specs []SegmentSpec) *Region {
	r := &Region{
		ID:   id,
		Mode: mode,
		pool: mgr,
		node: numaNode,
	}
	r.segments = make([]Segment, len(specs))
	var total int64
	for i, s := range specs {
		r.segments[i] = Segment{FirstPageOffset: s.FirstPageOffset, Length: s.Length}
		total += s.Length
	}
	r.totalLength = total
	if len(specs) > 1 {
		r.strategy = vectStrategy{}
	} else {
		r.strategy = contigStrategy{}
	}
	r.status.Store(int32(NotPinned))
	r.refcount.Store(1)
	return r
}

// Status returns the current pinning state.
func (r *Region) Status() Status { return Status(r.status.Load()) }

// TotalLength is the sum of every segment's logical length.
func (r *Region) TotalLength() int64 { return r.totalLength }

// TotalRegisteredLength is the monotone prefix of TotalLength that has
// been pinned so far; demand-pin watchers spin on this.
func (r *Region) TotalRegisteredLength() int64 { return r.totalRegisteredLength.Load() }

// MarkDirty flags the region as a pull sink (spec.md §3's "dirty" bit).
func (r *Region) MarkDirty() { r.dirty.Store(true) }

// Dirty reports whether the region has ever been a pull sink.
func (r *Region) Dirty() bool { return r.dirty.Load() }

// Ref increments the refcount; Unref decrements it and releases pinned
// pages once it reaches zero.
func (r *Region) Ref() { r.refcount.Add(1) }

// Unref drops a reference; when it reaches zero, pinned pages are
// released. If any segment is vmalloced and the caller is in a
// non-sleepable context (recvPath true), release is deferred to work.
func (r *Region) Unref(recvPath bool, deferRelease func(func())) {
	if r.refcount.Add(-1) != 0 {
		return
	}
	hasVmalloced := false
	r.mu.Lock()
	for _, s := range r.segments {
		if s.Vmalloced {
			hasVmalloced = true
			break
		}
	}
	r.mu.Unlock()
	if recvPath && hasVmalloced && deferRelease != nil {
		deferRelease(r.releasePages)
		return
	}
	r.releasePages()
}

func (r *Region) releasePages() {
	r.mu.Lock()
	defer r.mu.Unlock()
	bp := r.pool.GetPool(r.node)
	for i := range r.segments {
		for _, buf := range r.segments[i].Pages {
			bp.Put(buf)
		}
		r.segments[i].Pages = nil
	}
}

// pinSegment fills one segment's page array from the pool, flagging it
// vmalloced once it exceeds the large-allocation threshold.
func (r *Region) pinSegment(i int) {
	seg := &r.segments[i]
	n := pageCount(seg.FirstPageOffset, seg.Length)
	seg.Pages = make([]api.Buffer, n)
	bp := r.pool.GetPool(r.node)
	for p := 0; p < n; p++ {
		seg.Pages[p] = bp.Get(int(PageSize), r.node)
	}
	seg.Vmalloced = n > largeSegmentPages
}

// PinSynchronous pins every segment inline and transitions the region
// straight to Pinned (or Failed, though the in-process pool never fails
// here — kept for API symmetry with the demand path and future backends
// that can fail to allocate).
func (r *Region) PinSynchronous() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.segments {
		r.pinSegment(i)
	}
	r.totalRegisteredLength.Store(r.totalLength)
	r.status.Store(int32(Pinned))
	return nil
}

// Invalidate quiesces the region when the enclosing address space unmaps
// a range intersecting it: wait out any in-flight demand-pinner, release
// pinned pages, reset counters, and drop back to NotPinned. Pages are
// released without any dirty marking. Synchronous-pin regions cannot tolerate this; callers should
// check Mode before invoking it and surface a warning instead, per
// spec.md §4.4.
func (r *Region) Invalidate() {
	for r.Status() == Pinned && r.TotalRegisteredLength() < r.TotalLength() {
		// demand-pinner still catching up; spin briefly
	}
	r.mu.Lock()
	bp := r.pool.GetPool(r.node)
	for i := range r.segments {
		for _, buf := range r.segments[i].Pages {
			bp.Put(buf)
		}
		r.segments[i].Pages = nil
	}
	r.mu.Unlock()
	r.totalRegisteredLength.Store(0)
	r.status.Store(int32(NotPinned))
}
