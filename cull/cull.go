// Package cull implements the GpuCuller pipeline: per
// batch, a five-stage compute pipeline — visibility test, per-mesh-part
// histogram, prefix sum, scatter into a compacted visible-instance array,
// and indirect-draw-command emission — plus a Shadow4 variant that tests
// visibility against four cascade frustums in one dispatch.
//
// The real pipeline runs entirely as GPU compute passes (see Dispatch and
// shaders.CullWGSL), grounded on Gekko3D-gekko's
// voxelrt/rt/gpu/manager_edit.go compute-dispatch-and-bind-group idiom.
// Stages() is a pure-Go, single-threaded reference implementation of the
// same five stages; the voxel ray tracer this is adapted from has no GPU
// culling pipeline at all (voxel ray tracing has no draw call to cull),
// so Stages is built directly from this package's own numeric semantics
// and invariants. It exists to make those invariants
// unit-testable without a GPU and to back a headless/CPU occlusion path.
package cull

import (
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/forgecore"
	"github.com/gekko3d/forgecore/gpumath"
	"github.com/gekko3d/forgecore/gpupack"
	"github.com/gekko3d/forgecore/hiz"
	"github.com/gekko3d/forgecore/meshreg"
)

// Instance is one instance submission as seen by the culler: its
// transform slot, the mesh part it draws, and the data the emitted
// indirect draw command needs.
type Instance struct {
	TransformSlot uint32
	MaterialID    uint32
	MeshPartID    uint32
	CustomDataIdx uint32
	BoneBufferID  uint32
	CustomLayout  uint32
	// WorldSphere is the mesh part's local bounding sphere already
	// transformed into world space by the instance's current transform
	// (this design: bounding-sphere transform happens once per instance
	// before the frustum/Hi-Z tests).
	WorldSphere gpumath.Sphere
	Skinned     bool
}

// OcclusionTest reports whether a world-space sphere is fully occluded by
// the previous frame's Hi-Z pyramid. A nil OcclusionTest disables Hi-Z
// culling "frame 1, Hi-Z disabled, both survive".
type OcclusionTest func(sphere gpumath.Sphere) (occluded bool)

// NewHiZOcclusionTest builds a CPU-side OcclusionTest from a readback-ed
// Hi-Z pyramid and the previous frame's view-projection matrix — the same
// mip-selection-by-screen-radius, 2x2-sample, compare-against-
// gpumath.ViewSpaceNearZ test shaders.CullWGSL runs on GPU, used here by
// the CPU reference path (Stages, driven from batch.Batcher.Execute) that
// does not have a GPU compute shader to emit indirect-draw commands from.
func NewHiZOcclusionTest(pyramid []hiz.Mip, prevViewProj mgl32.Mat4, screenHeight float32) OcclusionTest {
	maxMip := len(pyramid) - 1
	return func(sphere gpumath.Sphere) bool {
		if maxMip < 0 {
			return false
		}
		c := sphere.Center
		clip := prevViewProj.Mul4x1(mgl32.Vec4{c.X(), c.Y(), c.Z(), 1})
		if clip.W() <= 0 {
			return false
		}
		ndcX, ndcY := clip.X()/clip.W(), clip.Y()/clip.W()
		if ndcX < -1 || ndcX > 1 || ndcY < -1 || ndcY > 1 {
			return false
		}

		screenRadius := (sphere.Radius / clip.W()) * screenHeight * 0.5
		if screenRadius < 1 {
			screenRadius = 1
		}
		level := int(log2Floor(screenRadius))
		if level < 0 {
			level = 0
		}
		if level > maxMip {
			level = maxMip
		}
		mip := pyramid[level]

		u := (ndcX*0.5 + 0.5) * float32(mip.Width)
		v := (1.0 - (ndcY*0.5 + 0.5)) * float32(mip.Height)
		x, y := uint32(clampF(u, 0, float32(mip.Width)-1)), uint32(clampF(v, 0, float32(mip.Height)-1))
		x1, y1 := x+1, y+1
		if x1 >= mip.Width {
			x1 = x
		}
		if y1 >= mip.Height {
			y1 = y
		}
		farthest := max(mip.At(x, y), mip.At(x1, y), mip.At(x, y1), mip.At(x1, y1))

		nearZ := gpumath.ViewSpaceNearZ(clip.W(), sphere.Radius)
		return nearZ > farthest
	}
}

func log2Floor(v float32) float32 {
	n := float32(0)
	for v >= 2 {
		v /= 2
		n++
	}
	return n
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MeshPartLookup resolves a mesh-part id to its registry entry, used by
// the emit stage to fill an indirect draw command's bindless indices.
type MeshPartLookup func(meshPartID uint32) meshreg.MeshPart

// Result is the output of the five-stage pipeline.
type Result struct {
	// VisibilityFlags[i] is 1 if instances[i] survived both tests, else 0
	// "visibility_flags[i] in {0,1}".
	VisibilityFlags []uint8
	// Histogram[meshPartID] counts visible instances targeting that part.
	Histogram []uint32
	// PrefixSum[meshPartID] is the base offset into VisibleIndices for
	// that part's visible instances.
	PrefixSum []uint32
	// VisibleIndices is the scattered, compacted instance index array,
	// grouped by mesh-part slot.
	VisibleIndices []uint32
	// DrawCommands has one entry per mesh-part slot with at least one
	// visible instance.
	DrawCommands []gpupack.IndirectDrawCommand
}

// Stages runs the visibility test, histogram, prefix sum, scatter, and
// emit-draw-commands stages against instances, single-threaded and in
// submission order — the deterministic scatter this design describes
// ("with atomic-scatter disabled and a fixed submission order... produce
// identical visible-index buffers").
func Stages(frustum gpumath.Frustum, occlusion OcclusionTest, numMeshParts uint32, instances []Instance, lookup MeshPartLookup) Result {
	flags := make([]uint8, len(instances))
	histogram := make([]uint32, numMeshParts)

	for i, inst := range instances {
		sphere := inst.WorldSphere
		if inst.Skinned {
			sphere = gpumath.InflateForSkinning(sphere)
		}
		if outside, _ := gpumath.SphereOutsideFrustum(frustum, sphere.Center, sphere.Radius); outside {
			continue
		}
		if occlusion != nil && occlusion(sphere) {
			continue
		}
		flags[i] = 1
		histogram[inst.MeshPartID]++
	}

	prefix := make([]uint32, numMeshParts)
	running := uint32(0)
	for part := uint32(0); part < numMeshParts; part++ {
		prefix[part] = running
		running += histogram[part]
	}

	visible := make([]uint32, running)
	cursor := append([]uint32(nil), prefix...)
	for i, inst := range instances {
		if flags[i] == 0 {
			continue
		}
		slot := cursor[inst.MeshPartID]
		visible[slot] = uint32(i)
		cursor[inst.MeshPartID]++
	}

	var commands []gpupack.IndirectDrawCommand
	for part := uint32(0); part < numMeshParts; part++ {
		count := histogram[part]
		if count == 0 {
			continue
		}
		meshPart := lookup(part)
		boneBuffer, customLayout := instanceBoneAndLayout(instances, visible[prefix[part]])
		commands = append(commands, gpupack.IndirectDrawCommand{
			PositionsIdx:  meshPart.PositionsIdx,
			NormalsIdx:    meshPart.NormalsIdx,
			UVsIdx:        meshPart.UVsIdx,
			IndicesIdx:    meshPart.IndicesIdx,
			MaterialID:    instances[visible[prefix[part]]].MaterialID,
			MeshPartID:    part,
			BoneBufferID:  boneBuffer,
			CustomLayout:  customLayout,
			BaseIndex:     meshPart.BaseIndex,
			StartInstance: prefix[part],
			Args: gpupack.IndirectDrawArgs{
				VertexCount:   meshPart.IndexCount,
				InstanceCount: count,
				FirstVertex:   0,
				FirstInstance: prefix[part],
			},
		})
	}

	return Result{
		VisibilityFlags: flags,
		Histogram:       histogram,
		PrefixSum:       prefix,
		VisibleIndices:  visible,
		DrawCommands:    commands,
	}
}

func instanceBoneAndLayout(instances []Instance, firstVisibleIdx uint32) (boneBuffer, customLayout uint32) {
	inst := instances[firstVisibleIdx]
	return inst.BoneBufferID, inst.CustomLayout
}

// ShadowCascadeResult holds one Result per cascade frustum (this design
// Shadow4: "each instance reads its world matrix once, writes to four
// visibility buffers").
type ShadowCascadeResult struct {
	// Cascades[c] is the Stages-equivalent result for cascade frustum c.
	Cascades [4]Result
}

// StagesShadow4 runs the visibility test (only; shadow draws do not
// occlusion-cull against Hi-Z) against four cascade frustums in a single
// logical pass over instances, grounded on this Shadow4
// description.
func StagesShadow4(cascadeFrustums [4]gpumath.Frustum, numMeshParts uint32, instances []Instance, lookup MeshPartLookup) ShadowCascadeResult {
	var out ShadowCascadeResult
	for c := 0; c < 4; c++ {
		out.Cascades[c] = Stages(cascadeFrustums[c], nil, numMeshParts, instances, lookup)
	}
	return out
}

// SumVisible returns sum(VisibilityFlags), the value this design requires
// to equal the total visible instance count across every emitted draw
// command's InstanceCount.
func (r Result) SumVisible() uint32 {
	var sum uint32
	for _, f := range r.VisibilityFlags {
		sum += uint32(f)
	}
	return sum
}

// InstanceStride is the byte size of one shaders.CullWGSL Instance record
// (8 u32 header dwords + vec3 center + f32 radius).
const InstanceStride = 8*4 + 16

// occlusionParamsSize is shaders.CullWGSL's OcclusionParams struct size:
// a mat4x4 (64 bytes) plus a vec4 of scalars.
const occlusionParamsSize = 64 + 16

// EncodeInstance packs inst into shaders.CullWGSL's Instance record at
// byte offset off within buf (buf must have InstanceStride bytes
// available from off).
func EncodeInstance(buf []byte, off int, inst Instance) {
	gpupack.PutU32(buf, off+0, inst.TransformSlot)
	gpupack.PutU32(buf, off+4, inst.MaterialID)
	gpupack.PutU32(buf, off+8, inst.MeshPartID)
	gpupack.PutU32(buf, off+12, inst.CustomDataIdx)
	gpupack.PutU32(buf, off+16, inst.BoneBufferID)
	gpupack.PutU32(buf, off+20, inst.CustomLayout)
	skinned := uint32(0)
	if inst.Skinned {
		skinned = 1
	}
	gpupack.PutU32(buf, off+24, skinned)
	gpupack.PutU32(buf, off+28, 0) // _pad
	gpupack.PutVec3(buf, off+32, inst.WorldSphere.Center.X(), inst.WorldSphere.Center.Y(), inst.WorldSphere.Center.Z())
	gpupack.PutF32(buf, off+44, inst.WorldSphere.Radius)
}

// Builder drives the real GPU visibility-test-and-scatter dispatch
// (shaders.CullWGSL), fusing this histogram/prefix-sum/scatter
// stages into one atomic-append compute pass. Stages/StagesShadow4 remain
// the CPU reference the deterministic-order invariant is tested against.
type Builder struct {
	logger forgecore.Logger
	gpu    *wgpu.Device

	pipeline *wgpu.ComputePipeline

	instanceCap int

	frustumUBO      *wgpu.Buffer
	instances       *wgpu.Buffer
	partBases       *wgpu.Buffer
	partCounters    *wgpu.Buffer
	visibilityFlags *wgpu.Buffer
	visibleIndices  *wgpu.Buffer
	occlusionUBO    *wgpu.Buffer
}

// HiZOcclusionParams mirrors shaders.CullWGSL's OcclusionParams uniform:
// the previous frame's view-projection matrix plus the scalars needed to
// pick a conservative mip from a sphere's screen-space footprint. Enabled
// false disables the Hi-Z test this design's "frame 1, Hi-Z disabled,
// both survive" case, without needing a dummy texture.
type HiZOcclusionParams struct {
	PrevViewProj mgl32.Mat4
	ScreenHeight float32
	MaxMip       float32
	Enabled      bool
}

func New(logger forgecore.Logger) *Builder {
	if logger == nil {
		logger = forgecore.NewNopLogger()
	}
	return &Builder{logger: logger}
}

// Setup allocates the buffers shaders.CullWGSL binds against, sized for
// up to instanceCapacity instances spread across numMeshParts parts, each
// given a worst-case slot range of instanceCapacity (this design doesn't
// bound per-part visible counts, so every part must be able to hold every
// instance in the pathological case).
func (b *Builder) Setup(gpu *wgpu.Device, shader *wgpu.ShaderModule, instanceCapacity int, numMeshParts uint32) error {
	b.releaseLocked()
	b.gpu = gpu
	b.instanceCap = instanceCapacity

	alloc := func(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
		buf, err := gpu.CreateBuffer(&wgpu.BufferDescriptor{Label: label, Size: size, Usage: usage})
		if err != nil {
			return nil, fmt.Errorf("cull: create %s: %w", label, err)
		}
		return buf, nil
	}

	var err error
	if b.frustumUBO, err = alloc("cull frustum", 6*16, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if b.instances, err = alloc("cull instances", uint64(instanceCapacity)*InstanceStride, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if b.occlusionUBO, err = alloc("cull occlusion params", occlusionParamsSize, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if b.partBases, err = alloc("cull part bases", uint64(numMeshParts)*4, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if b.partCounters, err = alloc("cull part counters", uint64(numMeshParts)*4, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst|wgpu.BufferUsageCopySrc); err != nil {
		return err
	}
	if b.visibilityFlags, err = alloc("cull visibility flags", uint64(instanceCapacity)*4, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc); err != nil {
		return err
	}
	if b.visibleIndices, err = alloc("cull visible indices", uint64(instanceCapacity)*uint64(numMeshParts)*4, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc); err != nil {
		return err
	}

	pipeline, err := gpu.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "cull visibility+scatter",
		Compute: wgpu.ProgrammableStageDescriptor{Module: shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("cull: create compute pipeline: %w", err)
	}
	b.pipeline = pipeline
	return nil
}

// Dispatch uploads the current frustum, the Hi-Z occlusion params and the
// per-part counter reset, then runs the visibility-test-and-scatter pass
// over instanceCount live instances. hizDepth must be a view over the
// whole Hi-Z mip chain (hiz.Builder.FullView), since the shader samples
// mip levels chosen by each sphere's screen radius. hizParams.Enabled
// false disables the Hi-Z test per this design scenario 3's "frame 1,
// Hi-Z disabled, both survive" case.
func (b *Builder) Dispatch(encoder *wgpu.CommandEncoder, queue *wgpu.Queue, frustum gpumath.Frustum, instanceCount uint32, hizDepth *wgpu.TextureView, hizParams HiZOcclusionParams) error {
	if b.pipeline == nil {
		return fmt.Errorf("cull: dispatch before setup")
	}

	planeBytes := make([]byte, 6*16)
	for i, p := range frustum.Planes {
		gpupack.PutVec4(planeBytes, i*16, p.X(), p.Y(), p.Z(), p.W())
	}
	queue.WriteBuffer(b.frustumUBO, 0, planeBytes)

	occlusionBytes := make([]byte, occlusionParamsSize)
	gpupack.PutMat4RowMajor(occlusionBytes, 0, hizParams.PrevViewProj)
	gpupack.PutF32(occlusionBytes, 64, hizParams.ScreenHeight)
	gpupack.PutF32(occlusionBytes, 68, hizParams.MaxMip)
	enabled := float32(0)
	if hizParams.Enabled {
		enabled = 1
	}
	gpupack.PutF32(occlusionBytes, 72, enabled)
	queue.WriteBuffer(b.occlusionUBO, 0, occlusionBytes)

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(b.pipeline)
	bgl := b.pipeline.GetBindGroupLayout(0)
	bg, err := b.gpu.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "cull bind group",
		Layout: bgl,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: b.frustumUBO, Size: 6 * 16},
			{Binding: 1, Buffer: b.instances, Size: uint64(instanceCount) * InstanceStride},
			{Binding: 2, Buffer: b.partBases},
			{Binding: 3, Buffer: b.partCounters},
			{Binding: 4, Buffer: b.visibilityFlags, Size: uint64(instanceCount) * 4},
			{Binding: 5, Buffer: b.visibleIndices},
			{Binding: 6, TextureView: hizDepth},
			{Binding: 7, Buffer: b.occlusionUBO, Size: occlusionParamsSize},
		},
	})
	if err != nil {
		pass.End()
		return fmt.Errorf("cull: bind group: %w", err)
	}
	pass.SetBindGroup(0, bg, nil)
	pass.DispatchWorkgroups((instanceCount+63)/64, 1, 1)
	pass.End()
	return nil
}

// UploadInstances writes packed shaders.CullWGSL Instance records and
// resets part_counters to zero, both required before Dispatch.
func (b *Builder) UploadInstances(queue *wgpu.Queue, data []byte, partCounterResetBytes []byte) {
	queue.WriteBuffer(b.instances, 0, data)
	queue.WriteBuffer(b.partCounters, 0, partCounterResetBytes)
}

// VisibleIndicesBuffer and VisibilityFlagsBuffer expose the scatter
// output for the emit-draw-commands step (gpupack.IndirectDrawCommand
// assembly) a caller runs after Dispatch.
func (b *Builder) VisibleIndicesBuffer() *wgpu.Buffer  { return b.visibleIndices }
func (b *Builder) VisibilityFlagsBuffer() *wgpu.Buffer { return b.visibilityFlags }

func (b *Builder) releaseLocked() {
	for _, buf := range []*wgpu.Buffer{b.frustumUBO, b.instances, b.partBases, b.partCounters, b.visibilityFlags, b.visibleIndices, b.occlusionUBO} {
		if buf != nil {
			buf.Release()
		}
	}
	b.frustumUBO, b.instances, b.partBases, b.partCounters, b.visibilityFlags, b.visibleIndices, b.occlusionUBO = nil, nil, nil, nil, nil, nil, nil
}

func (b *Builder) Close() { b.releaseLocked() }

// StableOrder returns VisibleIndices grouped by mesh-part slot with each
// slot's run sorted ascending by transform slot — the optional bitonic-
// sort-equivalent stability pass this design allows "if required by
// debug tools". Stages itself does not apply this; callers opt in.
func StableOrder(r Result, instances []Instance) []uint32 {
	out := append([]uint32(nil), r.VisibleIndices...)
	for part := range r.Histogram {
		start := r.PrefixSum[part]
		count := r.Histogram[part]
		run := out[start : start+count]
		sort.Slice(run, func(i, j int) bool {
			return instances[run[i]].TransformSlot < instances[run[j]].TransformSlot
		})
	}
	return out
}
