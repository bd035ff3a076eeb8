package region

import (
	"runtime"

	"github.com/ananos/omx-go/api"
)

// pinChunkPagesMin/Max bound the increasing-size chunks the demand-pin
// winner pins in, per spec.md §4.4 ("increasing-size chunks... doubling").
const (
	pinChunkPagesMin = 16
	pinChunkPagesMax = 512
)

// DemandPinInit attempts to become the single winner that performs the
// actual pinning; it is a compare-and-swap on Status, so of arbitrarily
// many concurrent callers exactly one observes winner==true. Losers fall
// through to WaitRegistered.
func (r *Region) DemandPinInit() (winner bool) {
	return r.status.CompareAndSwap(int32(NotPinned), int32(Pinned))
}

// RunDemandPin is called by the DemandPinInit winner only. It pins every
// segment in increasing chunk sizes (pinChunkPagesMin doubling to
// pinChunkPagesMax), publishing TotalRegisteredLength after each chunk
// with a release-store so WaitRegistered's acquire-load sees a consistent
// monotone prefix.
func (r *Region) RunDemandPin() {
	r.mu.Lock()
	defer r.mu.Unlock()

	bp := r.pool.GetPool(r.node)
	chunk := pinChunkPagesMin
	var registered int64

	for i := range r.segments {
		seg := &r.segments[i]
		n := pageCount(seg.FirstPageOffset, seg.Length)
		if seg.Pages == nil {
			seg.Pages = make([]api.Buffer, n)
		}
		pinned := 0
		for pinned < n {
			take := chunk
			if pinned+take > n {
				take = n - pinned
			}
			for p := pinned; p < pinned+take; p++ {
				seg.Pages[p] = bp.Get(int(PageSize), r.node)
			}
			pinned += take
			chunk *= 2
			if chunk > pinChunkPagesMax {
				chunk = pinChunkPagesMax
			}

			// Newly pinned bytes in this segment so far, capped at the
			// segment's logical length (the first page may be partially
			// used, the last page may be partially used).
			newBytes := int64(pinned)*PageSize - int64(seg.FirstPageOffset)
			if newBytes > seg.Length {
				newBytes = seg.Length
			}
			if newBytes < 0 {
				newBytes = 0
			}
			r.totalRegisteredLength.Store(registered + newBytes)
			runtime.Gosched()
		}
		seg.Vmalloced = n > largeSegmentPages
		registered += seg.Length
		r.totalRegisteredLength.Store(registered)
	}
}

// WaitRegistered busy-waits (yielding between polls, per spec.md §5's
// "region pinning under demand mode may busy-wait") until at least prefix
// bytes are registered, or the region has failed. Returns false on failure.
func (r *Region) WaitRegistered(prefix int64) bool {
	for {
		if r.Status() == Failed {
			return false
		}
		if r.totalRegisteredLength.Load() >= prefix {
			return true
		}
		runtime.Gosched()
	}
}

// MarkFailed sticks the region in the Failed state; sticky until Reset.
func (r *Region) MarkFailed() { r.status.Store(int32(Failed)) }

// Reset clears a Failed region back to NotPinned so it can be retried.
func (r *Region) Reset() {
	r.status.CompareAndSwap(int32(Failed), int32(NotPinned))
	r.totalRegisteredLength.Store(0)
}
