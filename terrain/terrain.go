package terrain

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/forgecore"
)

// leafStride is the byte size of one GPU-side emitted leaf record,
// terrain_emit.wgsl's Leaf struct: a packed instance_descriptor (12
// bytes), mesh_part_id (4 bytes), bounding_sphere (16 bytes),
// terrain_patch_data{rect: 16, lod_level: 4, stitch_mask: 4} and 8 bytes
// of padding to WGSL's 16-byte struct alignment (this design "EmitLeaves").
const leafStride = 12 + 4 + 16 + 16 + 4 + 4 + 8

// Builder owns the three GPU-driven terrain compute passes:
// MarkSplits, EmitLeaves and BuildDrawArgs; the terrain self-draw that
// consumes their draw args is issued by the caller. Its
// compute-pipeline-per-pass, bind-group-per-dispatch shape mirrors
// hiz.Builder, itself adapted from
// Gekko3D-gekko's voxelrt/rt/gpu/manager_hiz.go.
type Builder struct {
	logger forgecore.Logger
	gpu    *wgpu.Device

	maxDepth   int
	worldSize  float32
	nodeCount  int
	leafCap    int
	splitFlags *wgpu.Buffer
	leafOut    *wgpu.Buffer
	drawArgs   *wgpu.Buffer
	leafCount  *wgpu.Buffer

	markSplits   *wgpu.ComputePipeline
	emitLeaves   *wgpu.ComputePipeline
	buildDraw    *wgpu.ComputePipeline
}

func New(logger forgecore.Logger) *Builder {
	if logger == nil {
		logger = forgecore.NewNopLogger()
	}
	return &Builder{logger: logger}
}

// Setup allocates the split-flags array (one u32 per node), the leaf output buffer (sized
// for leafCapacity leaves, this design "BuildDrawArgs: clamps to
// capacity"), and the draw-args buffer, and compiles the three compute
// pipelines. Called once at startup and again whenever worldSize or
// maxDepth change (this design "height range pyramid: rebuilt... on
// terrain edit").
func (b *Builder) Setup(gpu *wgpu.Device, maxDepth int, worldSize float32, leafCapacity int, markSplitsShader, emitLeavesShader, buildDrawShader *wgpu.ShaderModule) error {
	b.releaseLocked()
	b.gpu = gpu
	b.maxDepth = maxDepth
	b.worldSize = worldSize
	b.nodeCount = TotalNodes(maxDepth)
	b.leafCap = leafCapacity

	splitFlags, err := gpu.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "terrain split flags",
		Size:  uint64(b.nodeCount) * 4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("terrain: create split flags buffer: %w", err)
	}
	b.splitFlags = splitFlags

	leafOut, err := gpu.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "terrain leaf output",
		Size:  uint64(leafCapacity) * uint64(leafStride),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("terrain: create leaf output buffer: %w", err)
	}
	b.leafOut = leafOut

	leafCount, err := gpu.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "terrain leaf count",
		Size:  4,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("terrain: create leaf count buffer: %w", err)
	}
	b.leafCount = leafCount

	drawArgs, err := gpu.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "terrain draw args",
		Size:  16, // DrawInstanced signature: vertex_count, instance_count, first_vertex, first_instance
		Usage: wgpu.BufferUsageIndirect | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("terrain: create draw args buffer: %w", err)
	}
	b.drawArgs = drawArgs

	if b.markSplits, err = gpu.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "terrain mark splits",
		Compute: wgpu.ProgrammableStageDescriptor{Module: markSplitsShader, EntryPoint: "main"},
	}); err != nil {
		return fmt.Errorf("terrain: create mark-splits pipeline: %w", err)
	}
	if b.emitLeaves, err = gpu.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "terrain emit leaves",
		Compute: wgpu.ProgrammableStageDescriptor{Module: emitLeavesShader, EntryPoint: "main"},
	}); err != nil {
		return fmt.Errorf("terrain: create emit-leaves pipeline: %w", err)
	}
	if b.buildDraw, err = gpu.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "terrain build draw args",
		Compute: wgpu.ProgrammableStageDescriptor{Module: buildDrawShader, EntryPoint: "main"},
	}); err != nil {
		return fmt.Errorf("terrain: create build-draw-args pipeline: %w", err)
	}
	return nil
}

// Dispatch runs MarkSplits, EmitLeaves and BuildDrawArgs in sequence
// (this three-compute-pass ordering); the caller issues the
// terrain self-draw separately via drawArgs using the same
// ExecuteIndirect/DrawInstanced signature as GpuCuller's output.
func (b *Builder) Dispatch(encoder *wgpu.CommandEncoder, globalBindGroup *wgpu.BindGroup) error {
	if b.markSplits == nil {
		return fmt.Errorf("terrain: dispatch before setup")
	}

	clear := encoder.BeginComputePass(nil)
	clear.End() // the caller's zero-fill of split_flags/leaf_count happens via ClearBuffer before this call

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(b.markSplits)
	pass.SetBindGroup(0, globalBindGroup, nil)
	pass.DispatchWorkgroups(uint32((b.nodeCount+63)/64), 1, 1)

	pass.SetPipeline(b.emitLeaves)
	pass.DispatchWorkgroups(uint32((b.nodeCount+63)/64), 1, 1)

	pass.SetPipeline(b.buildDraw)
	pass.DispatchWorkgroups(1, 1, 1)
	pass.End()

	return nil
}

// DrawArgs exposes the indirect draw-args buffer for the self-draw call
// (this design "Self-draw: push constants + ExecuteIndirect via
// DrawInstanced signature").
func (b *Builder) DrawArgs() *wgpu.Buffer { return b.drawArgs }

// LeafBuffer exposes the emitted-leaf storage buffer the vertex shader
// reads per patch instance.
func (b *Builder) LeafBuffer() *wgpu.Buffer { return b.leafOut }

func (b *Builder) releaseLocked() {
	if b.splitFlags != nil {
		b.splitFlags.Release()
	}
	if b.leafOut != nil {
		b.leafOut.Release()
	}
	if b.leafCount != nil {
		b.leafCount.Release()
	}
	if b.drawArgs != nil {
		b.drawArgs.Release()
	}
	b.splitFlags, b.leafOut, b.leafCount, b.drawArgs = nil, nil, nil, nil
}

// Close releases every GPU resource the builder owns.
func (b *Builder) Close() { b.releaseLocked() }
