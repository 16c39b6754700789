// Package material implements the Material/Effect side of the
// CommandBuffer contract (this design: "Pass mask is derived from the
// material's effect"): a fixed-layout PBR material record the GPU reads
// directly, and an Effect wrapping it with the pass mask that decides
// which of batch.Batcher's passes a submission lands in.
//
// Material's field set and 64-byte GPU layout are taken directly from
// Gekko3D-gekko's voxelrt/rt/core/material.go (BaseColor, Emissive,
// Roughness, Metalness, IOR, Transparency) and the byte packing
// voxelrt/rt/gpu/manager.go's UpdateScene performs for it (RGBA8 colors
// widened to vec4<f32>, four scalars, then 16 bytes of padding to a
// 64-byte stride). Registry's growth mirrors manager.go's
// MaterialTail/MaterialCapacity-per-allocation bookkeeping, generalized
// to meshreg's simpler whole-table doubling since this package has no
// per-object sub-allocation concept to preserve.
package material

import "github.com/gekko3d/forgecore/gpupack"

// Size is the fixed GPU-side byte stride of one material record.
const Size = 64

// Material is one physically-based material record (this module's domain
// stack: a real-time 3D engine needs a lit-surface representation beyond
// "mesh + transform").
type Material struct {
	BaseColor    [4]float32
	Emissive     [4]float32
	Roughness    float32
	Metalness    float32
	IOR          float32
	Transparency float32
}

// Default returns a neutral white, fully rough, non-metallic material,
// matching voxelrt/rt/core/material.go's DefaultMaterial.
func Default() Material {
	return Material{
		BaseColor:    [4]float32{1, 1, 1, 1},
		Roughness:    1.0,
		Metalness:    0.0,
		IOR:          1.0,
		Transparency: 0.0,
	}
}

// Encode packs m into its 64-byte GPU layout.
func (m Material) Encode() []byte {
	buf := make([]byte, Size)
	gpupack.PutVec4(buf, 0, m.BaseColor[0], m.BaseColor[1], m.BaseColor[2], m.BaseColor[3])
	gpupack.PutVec4(buf, 16, m.Emissive[0], m.Emissive[1], m.Emissive[2], m.Emissive[3])
	gpupack.PutF32(buf, 32, m.Roughness)
	gpupack.PutF32(buf, 36, m.Metalness)
	gpupack.PutF32(buf, 40, m.IOR)
	gpupack.PutF32(buf, 44, m.Transparency)
	return buf // remaining 16 bytes stay zero padding, matching the teacher's stride
}

const baseCapacity = 256

// Registry is an append-only, doubling-growth material table, indexed by
// the slot a Material is registered into (this design: materials are
// referenced by index from InstanceDescriptor/SubBatchKey).
type Registry struct {
	materials []Material
	flushed   int
}

func NewRegistry() *Registry { return &Registry{} }

// Register appends mat and returns its new slot index. Materials are not
// deduplicated: two submissions with the same visual parameters but
// distinct authoring intent (e.g. independently tweakable in an editor)
// must stay independently indexable, unlike meshreg's structural-
// identity mesh parts.
func (r *Registry) Register(mat Material) uint32 {
	r.materials = append(r.materials, mat)
	return uint32(len(r.materials) - 1)
}

func (r *Registry) Count() int { return len(r.materials) }

func (r *Registry) capacityFor(count int) int {
	capacity := baseCapacity
	for capacity < count {
		capacity *= 2
	}
	return capacity
}

func (r *Registry) Capacity() int { return r.capacityFor(len(r.materials)) }

// Flush hands newly-registered materials (since the last Flush) to
// upload, along with whether the backing buffer must grow and to what
// capacity "Grow buffers by doubling".
func (r *Registry) Flush(upload func(startIndex uint32, grew bool, newCapacity int, data []byte)) {
	if len(r.materials) == r.flushed {
		return
	}
	prevCapacity := r.capacityFor(r.flushed)
	newCapacity := r.capacityFor(len(r.materials))

	data := make([]byte, 0, (len(r.materials)-r.flushed)*Size)
	for _, m := range r.materials[r.flushed:] {
		data = append(data, m.Encode()...)
	}
	upload(uint32(r.flushed), newCapacity != prevCapacity, newCapacity, data)
	r.flushed = len(r.materials)
}
