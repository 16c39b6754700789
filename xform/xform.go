// Package xform is the process-wide structured buffer of world matrices:
// a 32-bit slot identifies a row-major 4x4 matrix; Set marks the slot dirty; once
// per frame the renderer merges contiguous dirty spans into a minimal set
// of copies before uploading.
//
// Grounded on Gekko3D-gekko's voxelrt/rt/gpu/manager.go UpdateCamera (the
// writeMat row-major packing closure) and ensureBuffer (geometric buffer
// growth, reused here for the CPU-side mirror slice). Unlike manager.go's
// dirty-flag maps (keyed by sector/brick coordinate, since the voxel world
// has no flat slot space), TransformBuffer's slots are already a dense
// index space, so dirty tracking is a sorted-set of slot indices merged
// into contiguous [lo, hi) spans at flush time.
package xform

import (
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/forgecore/gpupack"
)

const matrixSize = 64 // bytes per row-major mat4

// Buffer owns the CPU mirror of the world-matrix table and the dirty-slot
// bookkeeping that drives per-frame uploads.
type Buffer struct {
	mu sync.Mutex

	tail  uint32
	free  []uint32
	slots []mgl32.Mat4
	dirty map[uint32]struct{}
}

func New() *Buffer {
	return &Buffer{dirty: make(map[uint32]struct{})}
}

// AllocateSlot reserves a transform slot, bound to a renderable for its
// lifetime (this design "Lifecycles").
func (b *Buffer) AllocateSlot() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if n := len(b.free); n > 0 {
		idx := b.free[n-1]
		b.free = b.free[:n-1]
		return idx
	}
	idx := b.tail
	b.tail++
	b.slots = append(b.slots, mgl32.Ident4())
	return idx
}

// Set writes a slot's matrix and marks it dirty for the next Flush.
func (b *Buffer) Set(slot uint32, m mgl32.Mat4) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[slot] = m
	b.dirty[slot] = struct{}{}
}

// Get returns a slot's current matrix (test/debug use; production readers
// go through the bindless SRV on the GPU).
func (b *Buffer) Get(slot uint32) mgl32.Mat4 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slots[slot]
}

// Free releases a slot back to the allocator. The slot's matrix is reset
// to zero and marked dirty so a subsequent Allocate/Set sequence on the
// reused slot can never observe the previous owner's matrix on the GPU
// (this design: "a set followed by free followed by allocate must not
// yield M to the new owner").
func (b *Buffer) Free(slot uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slots[slot] = mgl32.Mat4{}
	b.dirty[slot] = struct{}{}
	b.free = append(b.free, slot)
}

// Span is a contiguous run of dirty slots, [Start, Start+Count).
type Span struct {
	Start uint32
	Count uint32
}

// DirtySpans merges the current dirty-slot set into ascending, maximal
// contiguous spans without mutating state; callers that want to clear the
// dirty set after uploading call Flush instead.
func (b *Buffer) DirtySpans() []Span {
	b.mu.Lock()
	defer b.mu.Unlock()
	return mergeSpans(b.dirty)
}

// Flush merges the dirty-slot set into contiguous spans, invokes upload
// once per span with the span's packed row-major matrix bytes and its
// starting byte offset, then clears the dirty set.
func (b *Buffer) Flush(upload func(byteOffset uint64, data []byte)) {
	b.mu.Lock()
	spans := mergeSpans(b.dirty)
	b.dirty = make(map[uint32]struct{})
	slots := b.slots
	b.mu.Unlock()

	for _, span := range spans {
		buf := make([]byte, int(span.Count)*matrixSize)
		for i := uint32(0); i < span.Count; i++ {
			gpupack.PutMat4RowMajor(buf, int(i)*matrixSize, [16]float32(slots[span.Start+i]))
		}
		upload(uint64(span.Start)*matrixSize, buf)
	}
}

func mergeSpans(dirty map[uint32]struct{}) []Span {
	if len(dirty) == 0 {
		return nil
	}
	ids := make([]uint32, 0, len(dirty))
	for id := range dirty {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	spans := make([]Span, 0, len(ids))
	start := ids[0]
	count := uint32(1)
	for i := 1; i < len(ids); i++ {
		if ids[i] == start+count {
			count++
			continue
		}
		spans = append(spans, Span{Start: start, Count: count})
		start = ids[i]
		count = 1
	}
	spans = append(spans, Span{Start: start, Count: count})
	return spans
}

// Len reports the number of allocated slots (tail), used by callers sizing
// the backing GPU buffer.
func (b *Buffer) Len() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tail
}
