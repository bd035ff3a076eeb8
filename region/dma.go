package region

import "sync/atomic"

// DMA-offload is optional and gated on per-transfer size thresholds, per
// spec.md §4.3 step 8 ("omx_dma_async_frag_min", "omx_dma_async_min"):
// below the threshold the CPU always does the copy; at or above it, a DMA
// engine is asked to do the bulk of the work and returns how many trailing
// bytes it could not handle, which the caller then finishes with copyGeneric.
const (
	defaultDMAAsyncFragMin = 4096
	defaultDMAAsyncMin     = 2048
)

// DMAEngine abstracts an asynchronous bulk-copy offload device. There is no
// real DMA hardware available in user space, so the only implementation
// here is cpuFallbackEngine, which always reports the entire request as
// uncopied residual; the indirection exists so a future engine need only
// satisfy this interface, matching the teacher's pattern of small
// interfaces around pluggable backends (see pool.BufferPool).
type DMAEngine interface {
	// MemcpyFromPages attempts to copy n bytes starting at the offset cache's
	// current position into dst, returning the number of trailing bytes it
	// did not copy (0 means fully handled).
	MemcpyFromPages(c *OffsetCache, dst []byte) (residual int)
	// MemcpyToPages is the inverse, copying from src into the region.
	MemcpyToPages(c *OffsetCache, src []byte) (residual int)
}

type cpuFallbackEngine struct{}

func (cpuFallbackEngine) MemcpyFromPages(c *OffsetCache, dst []byte) int { return len(dst) }
func (cpuFallbackEngine) MemcpyToPages(c *OffsetCache, src []byte) int   { return len(src) }

// DMAPolicy decides, per transfer, whether to attempt DMA offload at all
// and owns the engine used when it does.
type DMAPolicy struct {
	engine       DMAEngine
	fragMin      int64
	asyncMin     int64
	enabled      atomic.Bool
}

// NewDMAPolicy constructs a policy with the given engine (nil selects the
// always-residual CPU fallback) and the two threshold constants; it starts
// disabled, matching a system with no DMA-capable NIC attached.
func NewDMAPolicy(engine DMAEngine) *DMAPolicy {
	if engine == nil {
		engine = cpuFallbackEngine{}
	}
	return &DMAPolicy{
		engine:   engine,
		fragMin:  defaultDMAAsyncFragMin,
		asyncMin: defaultDMAAsyncMin,
	}
}

// Enable/Disable toggle whether CopyOutDMA/CopyInDMA attempt offload at all;
// a region starts with DMA disabled until an iface/control layer turns it
// on after probing for a capable device.
func (p *DMAPolicy) Enable()  { p.enabled.Store(true) }
func (p *DMAPolicy) Disable() { p.enabled.Store(false) }
func (p *DMAPolicy) Enabled() bool { return p.enabled.Load() }

// shouldOffload applies the two size thresholds from spec.md: a single
// fragment must be at least fragMin bytes, and the whole message at least
// asyncMin, before DMA is attempted at all.
func (p *DMAPolicy) shouldOffload(fragLen, msgLen int64) bool {
	return p.Enabled() && fragLen >= p.fragMin && msgLen >= p.asyncMin
}

// CopyOutDMA reads region bytes into dst, using DMA offload when the policy
// and size thresholds allow it and falling back to CPU copyGeneric for
// whatever the engine leaves as residual.
func (r *Region) CopyOutDMA(p *DMAPolicy, c *OffsetCache, dst []byte, msgLen int64) int {
	if p == nil || !p.shouldOffload(int64(len(dst)), msgLen) {
		return r.CopyOut(c, dst)
	}
	residual := p.engine.MemcpyFromPages(c, dst)
	if residual == 0 {
		return len(dst)
	}
	handled := len(dst) - residual
	tail := r.CopyOut(c, dst[handled:])
	return handled + tail
}

// CopyInDMA is CopyOutDMA's inverse for filling a region from src.
func (r *Region) CopyInDMA(p *DMAPolicy, c *OffsetCache, src []byte, msgLen int64) int {
	if p == nil || !p.shouldOffload(int64(len(src)), msgLen) {
		return r.CopyIn(c, src)
	}
	residual := p.engine.MemcpyToPages(c, src)
	if residual == 0 {
		return len(src)
	}
	handled := len(src) - residual
	tail := r.CopyIn(c, src[handled:])
	return handled + tail
}
