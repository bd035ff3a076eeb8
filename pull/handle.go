package pull

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ananos/omx-go/counters"
	"github.com/ananos/omx-go/event"
	"github.com/ananos/omx-go/region"
	"github.com/ananos/omx-go/wire"
)

// Status is the pull handle's strictly monotonic lifecycle: Ok never
// returns once left, and TimerExited is only ever reached after
// TimerMustExit, per spec.md §5.
type Status int32

const (
	StatusOk Status = iota
	StatusTimerMustExit
	StatusTimerExited
)

// idesc bounds optimistic re-request: at most one re-request of the
// leading blocks per timer tick.
const idesc = PullBlockDescsNr

// PullBlockDescsNr mirrors OMX_PULL_BLOCK_DESCS_NR: up to 4 blocks of
// reply frames may be in flight at once.
const PullBlockDescsNr = 4

// blockDesc tracks one in-flight block of reply frames: the frame index
// the block starts at, how many frames it spans, the missing-frame
// bitmap, and the byte span it covers in the sink region.
type blockDesc struct {
	frameIndex      uint32
	nrFrames        uint32
	bitmap          uint32 // low nrFrames bits set == still missing
	blockLength     uint32
	firstFrameOff   uint32
	msgOffsetBase   uint32
}

func (b *blockDesc) complete() bool { return b.bitmap == 0 }

// Sender issues (or re-issues) a pull request for one block; the caller
// supplies it so the pull package stays transport-agnostic, matching the
// teacher's pattern of injecting I/O as a function rather than an
// interface when only one method is needed.
type Sender func(req wire.PullRequest)

// DoneNotifier posts a PullDone event once the handle finishes,
// successfully or not.
type DoneNotifier func(payload event.PullDonePayload)

// Handle is one in-progress pull.
type Handle struct {
	mu     sync.Mutex
	status atomic.Int32

	slotID SlotID
	magic  uint32

	peer        uint16
	dstEndpoint uint8
	srcEndpoint uint8
	session     uint32

	pulledRdmaID     uint32
	pulledRdmaSeqnum uint8
	pulledRdmaOffset uint32

	profile wire.Profile
	region  *region.Region
	cache   *region.OffsetCache
	dma     *region.DMAPolicy

	totalLength     uint32
	remainingLength uint32

	frameIndex           uint32 // index of the first requested frame
	nextFrameIndex       uint32 // index of the frame to request next
	nrRequestedFrames    uint32
	nrMissingFrames      uint32
	nrValidBlockDescs    uint32
	alreadyRerequested   uint32
	blocks               [PullBlockDescsNr]blockDesc

	outstandingDMACopies atomic.Int32

	lastRetransmitDeadline time.Time
	timer                  *time.Timer
	tickInterval           time.Duration

	sender Sender
	notify DoneNotifier

	counters *counters.Array

	onRetire func()

	refcount atomic.Int32
}

// pullDoneStatusFromNack relies on event.PullDoneStatus and wire.NackType
// sharing numeric layout for their NACK-driven members; verified at init
// time below rather than asserted via an unused const trick.
func init() {
	pairs := [][2]int{
		{int(event.PullDoneBadEndpoint), int(wire.NackBadEndpoint)},
		{int(event.PullDoneEndpointClosed), int(wire.NackEndpointClosed)},
		{int(event.PullDoneBadSession), int(wire.NackBadSession)},
		{int(event.PullDoneBadRdmaWindow), int(wire.NackBadRdmaWindow)},
	}
	for _, p := range pairs {
		if p[0] != p[1] {
			panic("pull: event.PullDoneStatus and wire.NackType diverge for NACK-driven members")
		}
	}
}

// Params bundles the fixed fields of a new pull request.
type Params struct {
	Peer             uint16
	DstEndpoint      uint8
	SrcEndpoint      uint8
	Session          uint32
	PulledRdmaID     uint32
	PulledRdmaSeqnum uint8
	PulledRdmaOffset uint32
	TotalLength      uint32
	Magic            uint32
	Profile          wire.Profile
	Region           *region.Region
	DMA              *region.DMAPolicy
	Sender           Sender
	Notify           DoneNotifier
	RetransmitTick   time.Duration
	Counters         *counters.Array
}

// New builds a handle in status Ok, computes the first block(s), and
// returns it along with the initial wire requests the caller should send
// (the caller also arms the retransmit timer via Arm once the handle is
// registered in the endpoint's slot table, since New does not know the
// handle's slot id yet).
func New(p Params) *Handle {
	tick := p.RetransmitTick
	if tick <= 0 {
		tick = time.Second
	}
	h := &Handle{
		peer:             p.Peer,
		dstEndpoint:      p.DstEndpoint,
		srcEndpoint:      p.SrcEndpoint,
		session:          p.Session,
		pulledRdmaID:     p.PulledRdmaID,
		pulledRdmaSeqnum: p.PulledRdmaSeqnum,
		pulledRdmaOffset: p.PulledRdmaOffset,
		magic:            p.Magic,
		profile:          p.Profile,
		region:           p.Region,
		dma:              p.DMA,
		totalLength:      p.TotalLength,
		remainingLength:  p.TotalLength,
		sender:           p.Sender,
		notify:           p.Notify,
		counters:         p.Counters,
		tickInterval:     tick,
	}
	h.cache = region.NewOffsetCache(p.Region)
	h.status.Store(int32(StatusOk))
	h.refcount.Store(1)
	h.fillBlocks()
	return h
}

// SetSlot records the slot id assigned by the endpoint's slot table; split
// from New because the table needs a live handle pointer to allocate one.
func (h *Handle) SetSlot(id SlotID) { h.slotID = id }

// SetOnRetire installs the callback exitTimer fires exactly once the
// handle reaches TimerExited, so the owning Manager can remove it from
// the slot table and bump its generation (the close protocol's "remove
// from slot array before teardown" step); split from New for the same
// reason as SetSlot.
func (h *Handle) SetOnRetire(fn func()) { h.onRetire = fn }

func (h *Handle) SlotID() SlotID { return h.slotID }

func (h *Handle) Status() Status { return Status(h.status.Load()) }

func (h *Handle) Ref()   { h.refcount.Add(1) }
func (h *Handle) Unref() bool {
	return h.refcount.Add(-1) == 0
}

// replyMax/framesPerBlock read the handle's wire profile.
func (h *Handle) replyMax() uint32        { return uint32(h.profile.PullReplyMax) }
func (h *Handle) framesPerBlock() uint32  { return uint32(h.profile.PullReplyBlock) }
func (h *Handle) blockMax() uint32        { return uint32(h.profile.PullBlockLengthMax()) }

// fillBlocks appends new block descriptors (up to PullBlockDescsNr) and
// issues their requests, starting from nextFrameIndex / remainingLength.
// Must be called with h.mu held.
func (h *Handle) fillBlocks() {
	replyMax := h.replyMax()
	for h.nrValidBlockDescs < PullBlockDescsNr && h.remainingLength > 0 {
		var blockLen, firstFrameOff uint32
		if h.nrValidBlockDescs == 0 && h.frameIndex == h.nextFrameIndex {
			// first block: align so every reply after it lands on a
			// reply-max boundary in the sink.
			firstFrameOff = h.pulledRdmaOffset % replyMax
			maxLen := h.blockMax() - firstFrameOff
			blockLen = h.remainingLength
			if blockLen > maxLen {
				blockLen = maxLen
			}
		} else {
			blockLen = h.remainingLength
			if blockLen > h.blockMax() {
				blockLen = h.blockMax()
			}
		}
		nrFrames := (blockLen + firstFrameOff + replyMax - 1) / replyMax
		if nrFrames == 0 {
			nrFrames = 1
		}
		bd := blockDesc{
			frameIndex:    h.nextFrameIndex,
			nrFrames:      nrFrames,
			bitmap:        lowBits(nrFrames),
			blockLength:   blockLen,
			firstFrameOff: firstFrameOff,
			msgOffsetBase: h.totalLength - h.remainingLength,
		}
		h.blocks[h.nrValidBlockDescs] = bd
		h.nrValidBlockDescs++
		h.nextFrameIndex += nrFrames
		h.nrRequestedFrames += nrFrames
		h.nrMissingFrames += nrFrames
		h.remainingLength -= blockLen

		h.requestBlock(&h.blocks[h.nrValidBlockDescs-1])
	}
}

func lowBits(n uint32) uint32 {
	if n >= 32 {
		return 0xFFFFFFFF
	}
	return (uint32(1) << n) - 1
}

func (h *Handle) requestBlock(bd *blockDesc) {
	if h.sender == nil {
		return
	}
	h.sender(wire.PullRequest{
		DstEndpoint:      h.dstEndpoint,
		SrcEndpoint:      h.srcEndpoint,
		Session:          h.session,
		TotalLength:      h.totalLength,
		PulledRdmaID:     h.pulledRdmaID,
		PulledRdmaSeqnum: h.pulledRdmaSeqnum,
		PulledRdmaOffset: h.pulledRdmaOffset + bd.msgOffsetBase,
		SrcPullHandle:    uint32(h.slotID),
		SrcMagic:         h.magic,
		FirstFrameOffset: bd.firstFrameOff,
		BlockLength:      bd.blockLength,
		FrameIndex:       bd.frameIndex,
	})
}

// Arm starts the retransmit timer; deadline is the absolute time at which
// the whole pull gives up with PullDoneTimeout.
func (h *Handle) Arm(deadline time.Time) {
	h.mu.Lock()
	h.lastRetransmitDeadline = deadline
	h.mu.Unlock()
	h.timer = time.AfterFunc(h.tickInterval, h.tick)
}

// tick is the retransmit timer callback, reused every period rather than
// scheduled fresh via AfterFunc per period, matching the teacher's
// core/concurrency/eventloop.go single-timer-reuse idiom — here expressed
// as Reset at the end of the function instead of a fresh AfterFunc.
func (h *Handle) tick() {
	h.mu.Lock()
	if Status(h.status.Load()) != StatusOk {
		h.mu.Unlock()
		h.exitTimer()
		return
	}
	if time.Now().After(h.lastRetransmitDeadline) {
		h.mu.Unlock()
		h.completeLocked(event.PullDoneTimeout)
		h.exitTimer()
		return
	}
	h.alreadyRerequested = 0
	if h.nrValidBlockDescs > 0 {
		h.requestBlock(&h.blocks[0])
	}
	for i := uint32(1); i < h.nrValidBlockDescs; i++ {
		if h.blocks[i].bitmap != 0 {
			h.requestBlock(&h.blocks[i])
		}
	}
	h.mu.Unlock()
	h.timer.Reset(h.tickInterval)
}

func (h *Handle) exitTimer() {
	if h.status.CompareAndSwap(int32(StatusTimerMustExit), int32(StatusTimerExited)) && h.onRetire != nil {
		h.onRetire()
	}
}

// ReplyInput is what the classifier extracts from an incoming PullReply
// frame before calling HandleReply.
type ReplyInput struct {
	SlotGeneration uint32
	Magic          uint32
	FrameSeqnum    uint8
	FrameLength    uint16
	MsgOffset      uint32
	Payload        []byte
}

// HandleReply applies spec.md §4.3 steps 1-10. The caller has already
// looked the handle up by slot index; step 1 (generation/magic check) is
// verified here against the values the classifier read off the wire.
func (h *Handle) HandleReply(in ReplyInput) {
	if in.SlotGeneration != h.slotID.Generation() || in.Magic != h.magic {
		return // step 1: stale slot or wrong endpoint, drop silently
	}
	h.mu.Lock()
	if Status(h.status.Load()) != StatusOk {
		h.mu.Unlock()
		return // step 2
	}
	replyMax := h.replyMax()
	frameSeqnumOffset := (uint32(in.FrameSeqnum) - (h.frameIndex % 256) + 256) % 256 // step 3

	expected := (in.MsgOffset + replyMax - 1) / replyMax
	if expected != h.frameIndex+frameSeqnumOffset { // step 4
		h.mu.Unlock()
		return
	}
	if frameSeqnumOffset >= h.nrRequestedFrames { // step 5
		h.mu.Unlock()
		return
	}

	bd, bitIdx := h.blockForOffset(frameSeqnumOffset)
	if bd == nil {
		h.mu.Unlock()
		return
	}
	bit := uint32(1) << bitIdx
	if bd.bitmap&bit == 0 { // step 6: duplicate
		h.mu.Unlock()
		return
	}
	bd.bitmap &^= bit // step 7
	h.nrMissingFrames--

	h.cache.Seek(int64(in.MsgOffset))
	if h.dma != nil {
		h.outstandingDMACopies.Add(1)
		n := h.region.CopyInDMA(h.dma, h.cache, in.Payload[:in.FrameLength], int64(h.totalLength))
		h.outstandingDMACopies.Add(-1)
		_ = n
	} else {
		h.region.CopyIn(h.cache, in.Payload[:in.FrameLength]) // step 8
	}

	if bd == &h.blocks[0] && bd.complete() {
		h.advanceCompletedFirstBlock()
	} else if bd != &h.blocks[0] && bd.complete() {
		// step 9, optimistic re-request branch: an out-of-order block
		// completed before block 0, matching
		// OMX_COUNTER_PULL_NONFIRST_BLOCK_DONE_EARLY in omx_pull.c.
		if h.counters != nil {
			h.counters.Inc(counters.PullNonfirstBlockDoneEarly)
		}
		if h.alreadyRerequested < idesc {
			h.alreadyRerequested++
			h.requestBlock(&h.blocks[0])
		}
	}

	done := h.remainingLength == 0 && h.nrMissingFrames == 0 && h.nrValidBlockDescs == 0
	h.mu.Unlock()

	if done {
		h.finishIfIdle()
	}
}

// blockForOffset maps a frame_seqnum_offset (relative to handle.frameIndex)
// to the block descriptor and bit index within it.
func (h *Handle) blockForOffset(offset uint32) (*blockDesc, uint32) {
	abs := h.frameIndex + offset
	for i := uint32(0); i < h.nrValidBlockDescs; i++ {
		bd := &h.blocks[i]
		if abs >= bd.frameIndex && abs < bd.frameIndex+bd.nrFrames {
			return bd, abs - bd.frameIndex
		}
	}
	return nil, 0
}

// advanceCompletedFirstBlock implements step 9's "this completes the
// first block" path: slide the block array left by one (dropping block 0),
// advance frame_index/nr_requested_frames by framesPerBlock, drain any
// further leading completed blocks, then top back up to
// PullBlockDescsNr with fresh blocks. Must be called with h.mu held.
func (h *Handle) advanceCompletedFirstBlock() {
	for h.nrValidBlockDescs > 0 && h.blocks[0].complete() {
		dropped := h.blocks[0]
		h.frameIndex += dropped.nrFrames
		h.nrRequestedFrames -= dropped.nrFrames
		copy(h.blocks[:h.nrValidBlockDescs-1], h.blocks[1:h.nrValidBlockDescs])
		h.nrValidBlockDescs--
	}
	h.fillBlocks()
}

// finishIfIdle posts PullDoneSuccess once no offloaded copy is still
// outstanding (step 10). HandleReply runs offloaded copies synchronously
// under h.mu, so none is outstanding once every frame has arrived; no
// later path posts the event if the count is nonzero.
func (h *Handle) finishIfIdle() {
	if h.outstandingDMACopies.Load() == 0 {
		h.completeLocked(event.PullDoneSuccess)
	}
}

// Nack completes the handle for a NACK reason; the enum coincidence
// asserted in init() means this is a direct cast.
func (h *Handle) Nack(reason wire.NackType) {
	h.completeLocked(event.PullDoneStatus(reason))
}

// completeLocked transitions Ok -> TimerMustExit, posts the done event,
// and arranges synchronous timer cancellation.
func (h *Handle) completeLocked(status event.PullDoneStatus) {
	if !h.status.CompareAndSwap(int32(StatusOk), int32(StatusTimerMustExit)) {
		return
	}
	if h.notify != nil {
		h.notify(event.PullDonePayload{SlotID: uint32(h.slotID), Status: status})
	}
	if h.timer != nil && h.timer.Stop() {
		h.exitTimer()
	}
	// else: the timer goroutine is either mid-tick (will see
	// TimerMustExit and self-transition) or already fired; both paths
	// converge on exitTimer eventually.
}

// Close implements the endpoint-close path: force the handle to
// TimerMustExit regardless of in-flight state, used when the owning
// endpoint is torn down.
func (h *Handle) Close() {
	h.completeLocked(event.PullDoneAborted)
}
