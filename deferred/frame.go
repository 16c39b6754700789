package deferred

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/forgecore"
	"github.com/gekko3d/forgecore/batch"
	"github.com/gekko3d/forgecore/cull"
	"github.com/gekko3d/forgecore/device"
	"github.com/gekko3d/forgecore/gpumath"
	"github.com/gekko3d/forgecore/gpupack"
	"github.com/gekko3d/forgecore/hiz"
	"github.com/gekko3d/forgecore/shadow"
	"github.com/gekko3d/forgecore/terrain"
)

// DebugMode selects an alternate output the composition step writes
// instead of the lit result (this design: "debug modes cycled via a
// single u32").
type DebugMode uint32

const (
	DebugNone DebugMode = iota
	DebugGBufferNormal
	DebugGBufferMaterial
	DebugGBufferPosition
	DebugShadowCascades
	DebugHiZ
	debugModeCount
)

// CycleDebugMode advances to the next debug mode, wrapping back to
// DebugNone.
func CycleDebugMode(m DebugMode) DebugMode { return (m + 1) % debugModeCount }

// Pipelines groups the compiled shader-stage objects Frame dispatches;
// callers own compilation (typically via the shaders package) and pass
// the results in once at startup.
type Pipelines struct {
	GBufferPass     *wgpu.RenderPipeline
	HiZDownsample   *wgpu.ShaderModule
	ShadowCascade   *wgpu.ShaderModule
	LightPass       *wgpu.ComputePipeline
	CompositionPass *wgpu.ComputePipeline
}

// compositionParamsSize is shaders.CompositionWGSL's Params{debug_mode,
// frame_seed} uniform: two packed u32s.
const compositionParamsSize = 8

// CullParams bundles the per-frame inputs the GpuCuller's real visibility
// dispatch (stages 1-4, run for real every frame) and the CPU-side
// emit-draw-commands path (batch.Batcher.Execute, see its doc comment for
// why stage 5 runs on the CPU) both need.
type CullParams struct {
	Frustum gpumath.Frustum
	// Occlusion, if non-nil, is the CPU-side Hi-Z test (cull.NewHiZOcclusionTest)
	// batch.Batcher.Execute runs against staged instances. Leave nil to
	// disable Hi-Z culling for the draw-command path the same way
	// HiZEnabled false disables it for the GPU visibility dispatch.
	Occlusion    cull.OcclusionTest
	MeshLookup   cull.MeshPartLookup
	PrevViewProj mgl32.Mat4
	HiZEnabled   bool
}

// Frame orchestrates one call to DeferredRenderer's per-frame sequence
//. It owns the sub-builders each step drives but
// not the scene data itself (GpuCuller's Instance list, the Batcher, or
// the asset registries), which the caller supplies fresh each frame.
type Frame struct {
	logger    forgecore.Logger
	device    *device.Device
	gbuffer   *GBuffer
	hiz       *hiz.Builder
	shadow    *shadow.Builder
	culler    *cull.Builder
	terrain   *terrain.Builder
	pipelines Pipelines
	debug     DebugMode

	drawArgs          *wgpu.Buffer
	drawArgsCap       int
	compositionParams *wgpu.Buffer
	frameSeed         uint32
}

func New(logger forgecore.Logger, dev *device.Device, gbuffer *GBuffer, hizBuilder *hiz.Builder, shadowBuilder *shadow.Builder, culler *cull.Builder, terrainBuilder *terrain.Builder, pipelines Pipelines) *Frame {
	if logger == nil {
		logger = forgecore.NewNopLogger()
	}
	return &Frame{logger: logger, device: dev, gbuffer: gbuffer, hiz: hizBuilder, shadow: shadowBuilder, culler: culler, terrain: terrainBuilder, pipelines: pipelines}
}

// Setup allocates the indirect draw-command buffer (drawCapacity entries,
// see batch.Batcher.Execute) and the composition params uniform; called
// once at startup, before the first Encode.
func (f *Frame) Setup(drawCapacity int) error {
	f.releaseOwned()
	f.drawArgsCap = drawCapacity

	drawArgs, err := f.device.GPU.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "frame indirect draw commands",
		Size:  uint64(drawCapacity) * gpupack.IndirectDrawCommandSize,
		Usage: wgpu.BufferUsageIndirect | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("deferred: create draw-args buffer: %w", err)
	}
	f.drawArgs = drawArgs

	compositionParams, err := f.device.GPU.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "composition params",
		Size:  compositionParamsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("deferred: create composition params buffer: %w", err)
	}
	f.compositionParams = compositionParams
	return nil
}

func (f *Frame) releaseOwned() {
	if f.drawArgs != nil {
		f.drawArgs.Release()
	}
	if f.compositionParams != nil {
		f.compositionParams.Release()
	}
	f.drawArgs, f.compositionParams = nil, nil
}

// SetDebugMode overrides the composition step's output (this design
// "debug modes cycled via single u32").
func (f *Frame) SetDebugMode(mode DebugMode) { f.debug = mode % debugModeCount }

// DebugMode returns the frame's current debug output selection.
func (f *Frame) DebugMode() DebugMode { return f.debug }

// Encode runs the 8-step frame order:
//  1. update constants (camera/light uniform uploads — caller's responsibility
//     before calling Encode, since constant layout is scene-specific)
//  2. bind global root signature / bindless heap (encoder.SetBindGroup 0,
//     the caller's bindless.Allocator-backed group)
//  3. shadow pass: 4 cascades via shadow.Builder + Shadow4 culler, normal-offset biasing
//  4. G-buffer pass: GpuCuller visibility dispatch + terrain quadtree dispatch +
//     batcher.Execute's CPU emit-draw-commands step feed one real render
//     pass over 4 render targets + reverse-Z depth-stencil, issuing one
//     DrawIndirect per surviving sub-batch plus the terrain self-draw
//  5. Hi-Z build from the G-buffer position target's view-space depth
//  6. light pass: sun fullscreen quad + point-light spheres, additive blend
//  7. composition: gamma 2.2 + dither, written into backbuffer
//  8. present (the caller's RenderView/Swapchain, after Encode returns)
//
// gbufferBindGroup must match shaders.GBufferWGSL's layout (frame
// constants, transforms, per-instance descriptors, positions/normals/UVs,
// base color texture+sampler) -- rebuilt by the caller each frame since
// its buffers (transforms, opaqueDraws' staged descriptors) change with
// the scene. globalBindGroup continues to serve the shadow and light
// passes as before. backbuffer is the swapchain view composition writes
// the final frame into (renderview.AcquireFrame's result).
func (f *Frame) Encode(
	encoder *wgpu.CommandEncoder,
	globalBindGroup *wgpu.BindGroup,
	gbufferBindGroup *wgpu.BindGroup,
	cascadeVPBytes []byte,
	shadowCascadeIndices []uint32,
	batcher *batch.Batcher,
	opaqueDraws batch.StagedPass,
	cullParams CullParams,
	backbuffer *wgpu.TextureView,
) error {
	if err := f.shadow.Dispatch(encoder, f.device.Queue, cascadeVPBytes); err != nil {
		return fmt.Errorf("deferred: shadow pass: %w", err)
	}
	f.device.RecordDispatch(uint64(len(shadowCascadeIndices)))

	instanceCount := uint32(len(opaqueDraws.CullInstances))
	if instanceCount > 0 {
		instanceBytes := make([]byte, instanceCount*cull.InstanceStride)
		for i, inst := range opaqueDraws.CullInstances {
			cull.EncodeInstance(instanceBytes, i*cull.InstanceStride, inst)
		}
		partCounterReset := make([]byte, len(opaqueDraws.SubBatches)*4)
		f.culler.UploadInstances(f.device.Queue, instanceBytes, partCounterReset)

		hizParams := cull.HiZOcclusionParams{
			PrevViewProj: cullParams.PrevViewProj,
			ScreenHeight: float32(f.gbuffer.Height()),
			MaxMip:       float32(f.hiz.Count() - 1),
			Enabled:      cullParams.HiZEnabled,
		}
		if err := f.culler.Dispatch(encoder, f.device.Queue, cullParams.Frustum, instanceCount, f.hiz.FullView(), hizParams); err != nil {
			return fmt.Errorf("deferred: gpu culling dispatch: %w", err)
		}
	}

	if err := f.terrain.Dispatch(encoder, globalBindGroup); err != nil {
		return fmt.Errorf("deferred: terrain quadtree dispatch: %w", err)
	}

	dst := make([]byte, f.drawArgsCap*gpupack.IndirectDrawCommandSize)
	res := batcher.Execute(opaqueDraws, cullParams.Frustum, cullParams.Occlusion, cullParams.MeshLookup, dst)
	if len(res.DrawCommands) > f.drawArgsCap {
		return fmt.Errorf("deferred: %d draw commands exceed frame draw-args capacity %d", len(res.DrawCommands), f.drawArgsCap)
	}
	f.device.Queue.WriteBuffer(f.drawArgs, 0, dst[:len(res.DrawCommands)*gpupack.IndirectDrawCommandSize])

	gbPass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: "gbuffer pass",
		ColorAttachments: []wgpu.RenderPassColorAttachment{
			{View: f.gbuffer.AlbedoView, LoadOp: wgpu.LoadOpClear, StoreOp: wgpu.StoreOpStore, ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0}},
			{View: f.gbuffer.NormalView, LoadOp: wgpu.LoadOpClear, StoreOp: wgpu.StoreOpStore, ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0}},
			{View: f.gbuffer.MaterialView, LoadOp: wgpu.LoadOpClear, StoreOp: wgpu.StoreOpStore, ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0}},
			{View: f.gbuffer.PositionView, LoadOp: wgpu.LoadOpClear, StoreOp: wgpu.StoreOpStore, ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0}},
		},
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            f.gbuffer.DepthStencilView,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 0, // reverse-Z: far plane clears to 0
		},
	})
	if f.pipelines.GBufferPass != nil {
		gbPass.SetPipeline(f.pipelines.GBufferPass)
		gbPass.SetBindGroup(0, gbufferBindGroup, nil)
		for i := range res.DrawCommands {
			gbPass.DrawIndirect(f.drawArgs, uint64(i*gpupack.IndirectDrawCommandSize+gpupack.IndirectDrawArgsOffset))
		}
		// Terrain patches feed the G-buffer through the same opaque
		// shader as regular draws (this design's simplification:
		// terrain has no dedicated fragment pass of its own).
		gbPass.DrawIndirect(f.terrain.DrawArgs(), 0)
	}
	if err := gbPass.End(); err != nil {
		return fmt.Errorf("deferred: gbuffer pass: %w", err)
	}
	f.device.RecordDraw(uint64(len(res.DrawCommands) + 1))

	if err := f.hiz.Dispatch(encoder, f.gbuffer.PositionView); err != nil {
		return fmt.Errorf("deferred: hi-z build: %w", err)
	}

	if f.pipelines.LightPass != nil {
		lightPass := encoder.BeginComputePass(nil)
		lightPass.SetPipeline(f.pipelines.LightPass)
		lightPass.SetBindGroup(0, globalBindGroup, nil)
		lightPass.DispatchWorkgroups((f.gbuffer.Width()+7)/8, (f.gbuffer.Height()+7)/8, 1)
		lightPass.End()
	}

	if f.pipelines.CompositionPass != nil && backbuffer != nil {
		f.frameSeed++
		paramBytes := make([]byte, compositionParamsSize)
		gpupack.PutU32(paramBytes, 0, uint32(f.debug))
		gpupack.PutU32(paramBytes, 4, f.frameSeed)
		f.device.Queue.WriteBuffer(f.compositionParams, 0, paramBytes)

		compBG, err := f.device.GPU.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  "composition bind group",
			Layout: f.pipelines.CompositionPass.GetBindGroupLayout(0),
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, Buffer: f.compositionParams, Size: compositionParamsSize},
				{Binding: 1, TextureView: f.gbuffer.AlbedoView},
				{Binding: 2, TextureView: f.gbuffer.NormalView},
				{Binding: 3, TextureView: f.gbuffer.MaterialView},
				{Binding: 4, TextureView: f.gbuffer.PositionView},
				{Binding: 5, TextureView: f.gbuffer.LightView},
				{Binding: 6, TextureView: backbuffer},
			},
		})
		if err != nil {
			return fmt.Errorf("deferred: composition bind group: %w", err)
		}

		compPass := encoder.BeginComputePass(nil)
		compPass.SetPipeline(f.pipelines.CompositionPass)
		compPass.SetBindGroup(0, compBG, nil)
		compPass.DispatchWorkgroups((f.gbuffer.Width()+7)/8, (f.gbuffer.Height()+7)/8, 1)
		compPass.End()
	}

	return nil
}

// Resize re-allocates the G-buffer and Hi-Z pyramid for a new swapchain
// size (this design "Lifecycles": "recreated on swapchain resize only").
func (f *Frame) Resize(width, height uint32, hizShader *wgpu.ShaderModule) error {
	if err := f.gbuffer.Setup(f.device.GPU, width, height); err != nil {
		return err
	}
	return f.hiz.Setup(f.device.GPU, width, height, hizShader)
}

// Close releases the frame's owned resources (the draw-args and
// composition params buffers; the sub-builders Frame was constructed
// with remain the caller's to close).
func (f *Frame) Close() { f.releaseOwned() }
