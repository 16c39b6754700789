// Package deferred implements the DeferredRenderer: the
// fixed G-buffer layout and the 8-step per-frame orchestration (update
// constants, shadow pass, G-buffer pass, Hi-Z build, light pass,
// composition, present) that ties together device, bindless, xform,
// streaming, hiz, cull, batch, material and shadow into one frame.
//
// GBuffer's four-texture, setupTexture-closure allocation is a direct
// adaptation of Gekko3D-gekko's voxelrt/rt/gpu/manager.go
// CreateGBufferTextures: albedo/normal/material/position targets
// (RGBA32Float albedo+material+position, RGBA16Float normal), recreated
// only on resize the same way. The teacher's
// transparent-accumulation (WBOIT) targets are out of this module's scope
// (deferred opaque shading only) and are not carried.
package deferred

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// GBuffer owns the deferred renderer's fixed set of render targets
// "G-buffer pass w/ 4 RTs + reverse-Z depth-stencil".
type GBuffer struct {
	width, height uint32

	albedoTex   *wgpu.Texture
	normalTex   *wgpu.Texture
	materialTex *wgpu.Texture
	positionTex *wgpu.Texture

	// AlbedoView, NormalView, MaterialView and PositionView are shaders.GBufferWGSL's
	// fs_main color attachments (albedo@0, normal@1, material@2, position@3); the
	// G-buffer render pass writes them directly as RenderAttachment targets, and
	// the light pass and Hi-Z build read them back as TextureBinding inputs.
	AlbedoView   *wgpu.TextureView
	NormalView   *wgpu.TextureView
	MaterialView *wgpu.TextureView
	PositionView *wgpu.TextureView

	depthStencilTex  *wgpu.Texture
	DepthStencilView *wgpu.TextureView

	// lightTex/LightView is the light pass's accumulation target (its
	// outLight binding) and composition's lightBuffer input -- not one
	// of the four fragment-shader attachments, but resized alongside
	// them since both live for exactly one frame at swapchain resolution.
	lightTex  *wgpu.Texture
	LightView *wgpu.TextureView
}

// Setup (re)allocates every G-buffer target at width x height; Hi-Z and
// G-buffer textures are recreated on swapchain resize only.
func (g *GBuffer) Setup(gpu *wgpu.Device, width, height uint32) error {
	g.release()
	g.width, g.height = width, height

	setup := func(tex **wgpu.Texture, view **wgpu.TextureView, label string, format wgpu.TextureFormat, usage wgpu.TextureUsage) error {
		t, err := gpu.CreateTexture(&wgpu.TextureDescriptor{
			Label:         label,
			Size:          wgpu.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     wgpu.TextureDimension2D,
			Format:        format,
			Usage:         usage,
		})
		if err != nil {
			return fmt.Errorf("deferred: create %s: %w", label, err)
		}
		*tex = t
		v, err := t.CreateView(nil)
		if err != nil {
			return fmt.Errorf("deferred: create %s view: %w", label, err)
		}
		*view = v
		return nil
	}

	if err := setup(&g.albedoTex, &g.AlbedoView, "gbuffer albedo", wgpu.TextureFormatRGBA32Float, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding); err != nil {
		return err
	}
	if err := setup(&g.normalTex, &g.NormalView, "gbuffer normal", wgpu.TextureFormatRGBA16Float, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding); err != nil {
		return err
	}
	if err := setup(&g.materialTex, &g.MaterialView, "gbuffer material", wgpu.TextureFormatRGBA32Float, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding); err != nil {
		return err
	}
	if err := setup(&g.positionTex, &g.PositionView, "gbuffer position", wgpu.TextureFormatRGBA32Float, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding); err != nil {
		return err
	}
	// Reverse-Z depth-stencil "reverse-Z depth-stencil".
	if err := setup(&g.depthStencilTex, &g.DepthStencilView, "gbuffer depth-stencil", wgpu.TextureFormatDepth32FloatStencil8, wgpu.TextureUsageRenderAttachment|wgpu.TextureUsageTextureBinding); err != nil {
		return err
	}
	if err := setup(&g.lightTex, &g.LightView, "gbuffer light accum", wgpu.TextureFormatRGBA16Float, wgpu.TextureUsageStorageBinding|wgpu.TextureUsageTextureBinding); err != nil {
		return err
	}
	return nil
}

func (g *GBuffer) Width() uint32  { return g.width }
func (g *GBuffer) Height() uint32 { return g.height }

func (g *GBuffer) release() {
	for _, t := range []*wgpu.Texture{g.albedoTex, g.normalTex, g.materialTex, g.positionTex, g.depthStencilTex, g.lightTex} {
		if t != nil {
			t.Release()
		}
	}
	g.albedoTex, g.normalTex, g.materialTex, g.positionTex, g.depthStencilTex, g.lightTex = nil, nil, nil, nil, nil, nil
}

func (g *GBuffer) Close() { g.release() }
