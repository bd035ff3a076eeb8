// Package pull implements the pull engine: per-endpoint pull handles that
// drive a block-pipelined, retransmitting RDMA-style read of a remote
// region into a local sink region, grounded on
// _examples/original_source/driver/backend/omx_pull.c (struct
// omx_pull_handle and its retransmit/close protocol) and on the teacher's
// core/concurrency/eventloop.go single-reused-timer idiom.
package pull

// SlotsMax is the fixed slot-table size: a slot id packs a 10-bit index
// (0..1023) with a 22-bit generation nonce, so the table itself never
// grows past 1024 live handles.
const SlotsMax = 1024

const (
	indexBits = 10
	indexMask = (1 << indexBits) - 1
	genShift  = indexBits
)

// SlotID packs index and generation the way the wire format expects them:
// low 10 bits index, remaining bits generation. A reply whose slot id's
// generation does not match the live handle's is silently dropped — it
// belongs to an already-recycled slot.
type SlotID uint32

// MakeSlotID packs an index (0..1023) and a generation counter into one
// wire-visible value.
func MakeSlotID(index int, generation uint32) SlotID {
	return SlotID(uint32(index&indexMask) | (generation << genShift))
}

// Index extracts the 10-bit slot index.
func (s SlotID) Index() int { return int(uint32(s) & indexMask) }

// Generation extracts the 22-bit generation nonce.
func (s SlotID) Generation() uint32 { return uint32(s) >> genShift }

// slotTable is the endpoint-owned fixed array of live handle pointers,
// indexed by SlotID.Index(); each entry's generation is bumped on reuse so
// a reply naming a stale generation reliably misses. Lookups are lock-free
// (RCU in the original; a plain atomic pointer load suffices here since Go
// has no separate grace-period reclaim and handles are GC'd once
// unreferenced).
type slotTable struct {
	slots       [SlotsMax]*Handle
	generations [SlotsMax]uint32
	free        []int
}

func newSlotTable() *slotTable {
	t := &slotTable{free: make([]int, SlotsMax)}
	for i := range t.free {
		t.free[i] = SlotsMax - 1 - i
	}
	return t
}

// alloc reserves a free index and returns a SlotID using that index's
// current generation; callers own removing the handle again via release.
func (t *slotTable) alloc(h *Handle) (SlotID, bool) {
	if len(t.free) == 0 {
		return 0, false
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	t.slots[idx] = h
	return MakeSlotID(idx, t.generations[idx]), true
}

// lookup returns the handle for a slot id, or nil if the index is free or
// the generation is stale.
func (t *slotTable) lookup(id SlotID) *Handle {
	idx := id.Index()
	if idx < 0 || idx >= SlotsMax {
		return nil
	}
	if t.generations[idx] != id.Generation() {
		return nil
	}
	return t.slots[idx]
}

// release removes the handle from its slot and bumps the generation so any
// in-flight packet still naming the old slot id now misses, per the
// teacher's "remove from slot array before timer teardown" ordering.
func (t *slotTable) release(id SlotID) {
	idx := id.Index()
	if idx < 0 || idx >= SlotsMax {
		return
	}
	t.slots[idx] = nil
	t.generations[idx]++
	t.free = append(t.free, idx)
}
