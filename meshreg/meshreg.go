// Package meshreg is the process-wide table of mesh-part entries: each
// unique part gets a stable 32-bit id; registering the same part twice
// returns the same id without growing the table.
//
// Grounded on Gekko3D-gekko's voxelrt/rt/gpu/manager.go ensureBuffer
// (geometric growth of a GPU-backed append-only table) generalized from
// its 1.5x growth to a strict doubling policy, and on
// bvh/builder.go's BVHNode.ToBytes fixed-offset packing idiom (reused here
// via gpupack).
//
// Open Question resolution (custom-data layout type identity vs.
// idempotent registration by identity of the mesh-part object): Go has no
// notion of reference identity for the
// value the caller hands in — only pointer identity (fragile: two calls
// building an equal MeshPart from different allocations would wrongly
// register twice) or structural equality. MeshPart is defined so every
// field is comparable, so idempotence here is structural: registering two
// MeshParts with identical field values is defined to be the same part,
// which also gives the registry a plain map[MeshPart]uint32 for the
// identity check instead of a custom hash.
package meshreg

import (
	"sync"

	"github.com/gekko3d/forgecore/gpumath"
	"github.com/gekko3d/forgecore/gpupack"
)

// PartSize is the packed byte size of one MeshPart entry in the GPU
// structured buffer: 8 u32 fields + a 4-float local bounding sphere.
const PartSize = 8*4 + 4*4

// MeshPart is a contiguous index range within a mesh's index buffer
//. Every field is comparable, which is what lets the
// registry use MeshPart itself as a map key for idempotent registration.
type MeshPart struct {
	PositionsIdx   uint32
	NormalsIdx     uint32
	UVsIdx         uint32
	IndicesIdx     uint32
	BaseIndex      uint32
	IndexCount     uint32
	BoneWeightsIdx uint32
	BoneCount      uint32
	LocalSphere    gpumath.Sphere
}

// Encode packs a MeshPart into its GPU-visible byte layout.
func (p MeshPart) Encode() []byte {
	buf := make([]byte, PartSize)
	gpupack.PutU32(buf, 0, p.PositionsIdx)
	gpupack.PutU32(buf, 4, p.NormalsIdx)
	gpupack.PutU32(buf, 8, p.UVsIdx)
	gpupack.PutU32(buf, 12, p.IndicesIdx)
	gpupack.PutU32(buf, 16, p.BaseIndex)
	gpupack.PutU32(buf, 20, p.IndexCount)
	gpupack.PutU32(buf, 24, p.BoneWeightsIdx)
	gpupack.PutU32(buf, 28, p.BoneCount)
	gpupack.PutF32(buf, 32, p.LocalSphere.Center.X())
	gpupack.PutF32(buf, 36, p.LocalSphere.Center.Y())
	gpupack.PutF32(buf, 40, p.LocalSphere.Center.Z())
	gpupack.PutF32(buf, 44, p.LocalSphere.Radius)
	return buf
}

// baseCapacity is the registry's initial backing-buffer element count,
// matching the order of magnitude ensureBuffer reserves as headroom for
// other structured buffers in the teacher.
const baseCapacity = 256

// Registry is the append-only mesh-part table.
type Registry struct {
	mu sync.Mutex

	byKey   map[MeshPart]uint32
	parts   []MeshPart
	flushed int // parts[:flushed] have already been handed to an upload
}

func New() *Registry {
	return &Registry{byKey: make(map[MeshPart]uint32)}
}

// Register returns part's stable id, registering it if this is the first
// time this exact part has been seen (this design "Idempotence").
func (r *Registry) Register(part MeshPart) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[part]; ok {
		return id
	}
	id := uint32(len(r.parts))
	r.parts = append(r.parts, part)
	r.byKey[part] = id
	return id
}

// Count returns the number of distinct registered parts.
func (r *Registry) Count() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint32(len(r.parts))
}

// Capacity returns the backing buffer's element capacity under a strict
// doubling growth policy starting from baseCapacity (this design
// "growth policy is doubling").
func (r *Registry) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return capacityFor(len(r.parts))
}

func capacityFor(count int) int {
	capacity := baseCapacity
	for capacity < count {
		capacity *= 2
	}
	return capacity
}

// Flush hands every part registered since the last Flush to upload as one
// contiguous packed blob, along with the starting element index and
// whether growth requires the caller to recreate its backing buffer
// (preserving prior contents via a buffer-to-buffer copy, matching
// ensureBuffer's resize-and-copy path) before writing it.
func (r *Registry) Flush(upload func(startIndex uint32, grew bool, newCapacity int, data []byte)) {
	r.mu.Lock()
	prevCap := capacityFor(r.flushed)
	newParts := r.parts[r.flushed:]
	start := r.flushed
	r.flushed = len(r.parts)
	newCap := capacityFor(r.flushed)
	r.mu.Unlock()

	if len(newParts) == 0 {
		return
	}
	buf := make([]byte, len(newParts)*PartSize)
	for i, p := range newParts {
		copy(buf[i*PartSize:], p.Encode())
	}
	upload(uint32(start), newCap > prevCap, newCap, buf)
}
