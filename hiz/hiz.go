// Package hiz builds the max-downsample Hi-Z depth pyramid: a single
// R32Float texture
// with floor(log2(max(W,H)))+1 mips, mip 0 the previous frame's view-space
// depth (sky-cleared to +infinity), each mip N+1 the 2x2 max-downsample of
// mip N.
//
// Directly adapted from Gekko3D-gekko's
// voxelrt/rt/gpu/manager_hiz.go (SetupHiZ/DispatchHiZ/ReadbackHiZ),
// generalized from a voxel ray tracer's depth source to the deferred
// renderer's G-buffer depth: mip-count computation, mip-view creation,
// the low-resolution CPU readback path (used here for CPU-side occlusion
// pre-pass / debug tooling, not the GPU culler's own Hi-Z test, which
// samples the texture directly in the compute shader), and the
// row-aligned CopyTextureToBuffer layout are all kept.
package hiz

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/forgecore"
)

// MipCount returns floor(log2(max(width,height)))+1 (the bit length of
// the larger dimension), the mip chain depth of the Hi-Z pyramid: each
// level halves the previous one, rounding down, until it reaches 1.
func MipCount(width, height uint32) uint32 {
	dim := width
	if height > dim {
		dim = height
	}
	count := uint32(0)
	for dim > 0 {
		count++
		dim >>= 1
	}
	return count
}

// readbackTargetWidth is the mip level width the CPU readback path
// targets, matching Gekko3D-gekko's ~64px readback resolution.
const readbackTargetWidth = 64

// rowAlign256 rounds bytesPerRow up to WebGPU's required 256-byte copy
// alignment.
func rowAlign256(bytesPerRow uint32) uint32 {
	return (bytesPerRow + 255) &^ 255
}

// Builder owns the Hi-Z texture, its per-mip views, the compute pipeline
// that downsamples it, and a low-resolution CPU readback of one mip used
// for CPU-side occlusion pre-passes and diagnostics.
type Builder struct {
	logger forgecore.Logger
	gpu    *wgpu.Device

	texture  *wgpu.Texture
	views    []*wgpu.TextureView
	fullView *wgpu.TextureView
	pipeline *wgpu.ComputePipeline
	readback *wgpu.Buffer

	readbackLevel  uint32
	readbackWidth  uint32
	readbackHeight uint32
	mapped         bool
}

func New(logger forgecore.Logger) *Builder {
	if logger == nil {
		logger = forgecore.NewNopLogger()
	}
	return &Builder{logger: logger}
}

// Setup (re)allocates the pyramid for the given resolution, called once at
// startup and again on every swapchain resize; Hi-Z and G-buffer textures
// are recreated on swapchain resize only.
func (b *Builder) Setup(gpu *wgpu.Device, width, height uint32, shader *wgpu.ShaderModule) error {
	b.releaseLocked()
	b.gpu = gpu

	mips := MipCount(width, height)

	texture, err := gpu.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "hiz pyramid",
		Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: mips,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatR32Float,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageStorageBinding | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("hiz: create texture: %w", err)
	}
	b.texture = texture

	b.views = make([]*wgpu.TextureView, mips)
	for i := uint32(0); i < mips; i++ {
		view, err := texture.CreateView(&wgpu.TextureViewDescriptor{
			Label:           fmt.Sprintf("hiz mip %d", i),
			Format:          wgpu.TextureFormatR32Float,
			Dimension:       wgpu.TextureViewDimension2D,
			BaseMipLevel:    i,
			MipLevelCount:   1,
			BaseArrayLayer:  0,
			ArrayLayerCount: 1,
		})
		if err != nil {
			return fmt.Errorf("hiz: create mip %d view: %w", i, err)
		}
		b.views[i] = view
	}

	fullView, err := texture.CreateView(&wgpu.TextureViewDescriptor{
		Label:           "hiz full pyramid",
		Format:          wgpu.TextureFormatR32Float,
		Dimension:       wgpu.TextureViewDimension2D,
		BaseMipLevel:    0,
		MipLevelCount:   mips,
		BaseArrayLayer:  0,
		ArrayLayerCount: 1,
	})
	if err != nil {
		return fmt.Errorf("hiz: create full pyramid view: %w", err)
	}
	b.fullView = fullView

	level := uint32(0)
	w, h := width, height
	for level < mips-1 && w > readbackTargetWidth {
		level++
		w >>= 1
		h >>= 1
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	b.readbackLevel, b.readbackWidth, b.readbackHeight = level, w, h

	bytesPerRow := rowAlign256(w * 4)
	readback, err := gpu.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "hiz readback",
		Size:  uint64(bytesPerRow) * uint64(h),
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return fmt.Errorf("hiz: create readback buffer: %w", err)
	}
	b.readback = readback

	pipeline, err := gpu.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "hiz downsample",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     shader,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("hiz: create compute pipeline: %w", err)
	}
	b.pipeline = pipeline

	return nil
}

// Dispatch copies sourceDepth into mip 0 (cleared texels become +inf),
// then downsamples each subsequent mip from the previous one, and finally
// copies the readback mip into the CPU-visible buffer.
func (b *Builder) Dispatch(encoder *wgpu.CommandEncoder, sourceDepthView *wgpu.TextureView) error {
	if b.pipeline == nil {
		return fmt.Errorf("hiz: dispatch before setup")
	}

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(b.pipeline)

	width := b.texture.GetWidth()
	height := b.texture.GetHeight()
	bgl := b.pipeline.GetBindGroupLayout(0)

	bg0, err := b.gpu.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "hiz pass 0",
		Layout: bgl,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, TextureView: sourceDepthView},
			{Binding: 1, TextureView: b.views[0]},
		},
	})
	if err != nil {
		pass.End()
		return fmt.Errorf("hiz: bind group pass 0: %w", err)
	}
	pass.SetBindGroup(0, bg0, nil)
	pass.DispatchWorkgroups((width+7)/8, (height+7)/8, 1)

	prevW, prevH := width, height
	for i := 0; i < len(b.views)-1; i++ {
		w, h := prevW>>1, prevH>>1
		if w == 0 {
			w = 1
		}
		if h == 0 {
			h = 1
		}
		bg, err := b.gpu.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:  fmt.Sprintf("hiz pass %d", i+1),
			Layout: bgl,
			Entries: []wgpu.BindGroupEntry{
				{Binding: 0, TextureView: b.views[i]},
				{Binding: 1, TextureView: b.views[i+1]},
			},
		})
		if err != nil {
			pass.End()
			return fmt.Errorf("hiz: bind group pass %d: %w", i+1, err)
		}
		pass.SetBindGroup(0, bg, nil)
		pass.DispatchWorkgroups((w+7)/8, (h+7)/8, 1)
		prevW, prevH = w, h
	}
	pass.End()

	bytesPerRow := rowAlign256(b.readbackWidth * 4)
	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{Texture: b.texture, MipLevel: b.readbackLevel, Origin: wgpu.Origin3D{X: 0, Y: 0, Z: 0}},
		&wgpu.ImageCopyBuffer{
			Buffer: b.readback,
			Layout: wgpu.TextureDataLayout{Offset: 0, BytesPerRow: bytesPerRow, RowsPerImage: b.readbackHeight},
		},
		&wgpu.Extent3D{Width: b.readbackWidth, Height: b.readbackHeight, DepthOrArrayLayers: 1},
	)
	return nil
}

// MipView exposes a single mip's view for the GpuCuller's bind group.
func (b *Builder) MipView(level int) *wgpu.TextureView { return b.views[level] }

// FullView exposes a view over the whole mip chain (base level 0, every
// level) for cull.wgsl's hiz_occluded, which samples whatever mip a
// sphere's screen-space footprint selects via textureLoad(hizDepth,
// texel, level).
func (b *Builder) FullView() *wgpu.TextureView { return b.fullView }

// Count returns the number of mips actually allocated by Setup.
func (b *Builder) Count() int { return len(b.views) }

func (b *Builder) releaseLocked() {
	if b.texture != nil {
		b.texture.Release()
	}
	if b.readback != nil {
		b.readback.Release()
	}
	for _, v := range b.views {
		v.Release()
	}
	if b.fullView != nil {
		b.fullView.Release()
	}
	b.texture, b.readback, b.views, b.fullView = nil, nil, nil, nil
	b.mapped = false
}

// Close releases every GPU resource the builder owns.
func (b *Builder) Close() { b.releaseLocked() }
