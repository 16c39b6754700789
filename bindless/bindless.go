// Package bindless hands out 32-bit descriptor indices into the single,
// process-wide SRV/UAV/CBV heap the device exposes to every shader stage.
// An index is stable for the lifetime
// of the resource it names; once freed it is quarantined until the
// retiring frame's fence has completed, so no in-flight command list can
// observe it rebound to a different resource.
//
// Grounded on Gekko3D-gekko's voxelrt/rt/gpu/manager.go SlotAllocator
// (Tail/Free []uint32, Alloc/FreeSlot), extended with a deferred
// per-frame retirement queue.
package bindless

import "sync"

// FenceSource reports the device's currently completed fence value.
// Satisfied by *device.Device; kept as a narrow interface so this package
// does not import device and can be tested without a real GPU handle.
type FenceSource interface {
	CompletedFenceValue() uint64
}

type retired struct {
	index      uint32
	fenceValue uint64 // fence value that must complete before reuse is safe
}

// Allocator hands out bindless indices. Zero value is not usable; use New.
type Allocator struct {
	mu sync.Mutex

	tail    uint32
	free    []uint32  // immediately reusable (already past quarantine)
	pending []retired // quarantined, ordered by increasing fenceValue
	fences  FenceSource

	allocated uint64
	freed     uint64
}

// New creates an Allocator that quarantines freed indices against fences
// reported by the given FenceSource.
func New(fences FenceSource) *Allocator {
	return &Allocator{fences: fences}
}

// Allocate returns a fresh or quarantine-expired bindless index. It never
// returns an index whose last Free occurred in a frame whose fence has not
// yet completed.
func (a *Allocator) Allocate() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.reclaimLocked()

	a.allocated++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		return idx
	}
	idx := a.tail
	a.tail++
	return idx
}

// Free retires index at the given retirement fence value: the value the
// current in-flight submission will complete at. The index becomes
// reusable once CompletedFenceValue() reaches that value (this design
// "Lifecycles": "retired ≥ FrameCount frames after the last use").
func (a *Allocator) Free(index uint32, retirementFence uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freed++
	a.pending = append(a.pending, retired{index: index, fenceValue: retirementFence})
}

// reclaimLocked moves every quarantined index whose retirement fence has
// completed into the immediately-reusable free list. Must be called with
// a.mu held.
func (a *Allocator) reclaimLocked() {
	completed := a.fences.CompletedFenceValue()
	kept := a.pending[:0]
	for _, r := range a.pending {
		if r.fenceValue <= completed {
			a.free = append(a.free, r.index)
		} else {
			kept = append(kept, r)
		}
	}
	a.pending = kept
}

// Stats reports allocator occupancy for diagnostics.
type Stats struct {
	Tail        uint32
	Free        int
	Quarantined int
	Allocated   uint64
	Freed       uint64
}

func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		Tail:        a.tail,
		Free:        len(a.free),
		Quarantined: len(a.pending),
		Allocated:   a.allocated,
		Freed:       a.freed,
	}
}
