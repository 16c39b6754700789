package shadow

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/forgecore"
)

// CascadeCount is the fixed number of shadow cascades this design
// specify ("4 cascades").
const CascadeCount = 4

// Builder owns the cascaded shadow map array and the compute pipeline
// that clears every layer of it to the far value 1.0; it rasterizes no
// geometry. Directly adapted from
// Gekko3D-gekko's voxelrt/rt/gpu/manager.go
// CreateShadowMapTextures/CreateShadowPipeline/CreateShadowBindGroups/
// DispatchShadowPass: the teacher allocates a 1024x1024x16 array layer
// per point light and binds scene/light/voxel buffers across three bind
// groups; this keeps that shape but fixes the array depth at
// CascadeCount and switches group 0 from a light-index list to each
// cascade's light-space view-projection matrix.
type Builder struct {
	logger forgecore.Logger
	gpu    *wgpu.Device

	resolution uint32
	array      *wgpu.Texture
	arrayView  *wgpu.TextureView
	cascadeVPs *wgpu.Buffer

	pipeline   *wgpu.ComputePipeline
	bindGroup0 *wgpu.BindGroup
	bindGroup1 *wgpu.BindGroup
}

func New(logger forgecore.Logger) *Builder {
	if logger == nil {
		logger = forgecore.NewNopLogger()
	}
	return &Builder{logger: logger}
}

// Setup (re)allocates the shadow map array at resolution x resolution x
// CascadeCount and compiles the depth compute pipeline. Called once at
// startup; the array itself never needs to resize on swapchain resize
// (this design "Lifecycles": shadow resolution is a quality setting, not
// tied to the backbuffer).
func (b *Builder) Setup(gpu *wgpu.Device, resolution uint32, shader *wgpu.ShaderModule) error {
	b.releaseLocked()
	b.gpu = gpu
	b.resolution = resolution

	array, err := gpu.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "shadow cascade array",
		Size:          wgpu.Extent3D{Width: resolution, Height: resolution, DepthOrArrayLayers: CascadeCount},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatR32Float,
		Usage:         wgpu.TextureUsageStorageBinding | wgpu.TextureUsageTextureBinding,
	})
	if err != nil {
		return fmt.Errorf("shadow: create cascade array: %w", err)
	}
	b.array = array

	view, err := array.CreateView(&wgpu.TextureViewDescriptor{
		Label:           "shadow cascade array view",
		Format:          wgpu.TextureFormatR32Float,
		Dimension:       wgpu.TextureViewDimension2DArray,
		BaseMipLevel:    0,
		MipLevelCount:   1,
		BaseArrayLayer:  0,
		ArrayLayerCount: CascadeCount,
	})
	if err != nil {
		return fmt.Errorf("shadow: create cascade array view: %w", err)
	}
	b.arrayView = view

	cascadeVPs, err := gpu.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "shadow cascade view-projections",
		Size:  CascadeCount * 64,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("shadow: create cascade VP buffer: %w", err)
	}
	b.cascadeVPs = cascadeVPs

	pipeline, err := gpu.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:   "shadow cascade depth",
		Compute: wgpu.ProgrammableStageDescriptor{Module: shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("shadow: create pipeline: %w", err)
	}
	b.pipeline = pipeline

	b.bindGroup0, err = gpu.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "shadow group 0",
		Layout: pipeline.GetBindGroupLayout(0),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: b.cascadeVPs, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("shadow: create bind group 0: %w", err)
	}

	b.bindGroup1, err = gpu.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "shadow group 1",
		Layout: pipeline.GetBindGroupLayout(1),
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: b.arrayView},
		},
	})
	if err != nil {
		return fmt.Errorf("shadow: create bind group 1: %w", err)
	}
	return nil
}

// Dispatch uploads the four cascades' view-projection matrices and runs
// one compute dispatch with one z-slice per cascade layer, mirroring DispatchShadowPass's
// upload-then-dispatch-per-workgroup-grid shape.
func (b *Builder) Dispatch(encoder *wgpu.CommandEncoder, queue *wgpu.Queue, cascadeVPBytes []byte) error {
	if b.pipeline == nil {
		return fmt.Errorf("shadow: dispatch before setup")
	}
	if len(cascadeVPBytes) != CascadeCount*64 {
		return fmt.Errorf("shadow: expected %d bytes of cascade view-projections, got %d", CascadeCount*64, len(cascadeVPBytes))
	}
	queue.WriteBuffer(b.cascadeVPs, 0, cascadeVPBytes)

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(b.pipeline)
	pass.SetBindGroup(0, b.bindGroup0, nil)
	pass.SetBindGroup(1, b.bindGroup1, nil)
	wg := (b.resolution + 7) / 8
	pass.DispatchWorkgroups(wg, wg, CascadeCount)
	pass.End()
	return nil
}

// ArrayView exposes the cascade array's view for the light pass's sample
// binding (this design "light pass... samples shadow cascades").
func (b *Builder) ArrayView() *wgpu.TextureView { return b.arrayView }

func (b *Builder) releaseLocked() {
	if b.array != nil {
		b.array.Release()
	}
	if b.cascadeVPs != nil {
		b.cascadeVPs.Release()
	}
	b.array, b.arrayView, b.cascadeVPs = nil, nil, nil
}

// Close releases every GPU resource the builder owns.
func (b *Builder) Close() { b.releaseLocked() }
