// Package shaders embeds the WGSL source for every compute/render stage
// the rendering core drives and provides the one
// CreateShaderModule call site every other package's Setup expects a
// *wgpu.ShaderModule from.
//
// Grounded on Gekko3D-gekko's voxelrt/rt/shaders/shaders.go (one
// //go:embed string per .wgsl file) and gpu_operations.go's
// createRenderPipeline (device.CreateShaderModule with a
// ShaderModuleWGSLDescriptor).
package shaders

import (
	_ "embed"
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

//go:embed cull.wgsl
var CullWGSL string

//go:embed hiz.wgsl
var HiZWGSL string

//go:embed terrain_split.wgsl
var TerrainSplitWGSL string

//go:embed terrain_emit.wgsl
var TerrainEmitWGSL string

//go:embed terrain_draw_args.wgsl
var TerrainDrawArgsWGSL string

//go:embed shadow_cascade.wgsl
var ShadowCascadeWGSL string

//go:embed gbuffer.wgsl
var GBufferWGSL string

//go:embed light_pass.wgsl
var LightPassWGSL string

//go:embed composition.wgsl
var CompositionWGSL string

// Compile wraps device.CreateShaderModule, the single call site every
// package's Setup(gpu, ..., shader *wgpu.ShaderModule) signature expects
// its caller to have already gone through.
func Compile(gpu *wgpu.Device, label, code string) (*wgpu.ShaderModule, error) {
	module, err := gpu.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return nil, fmt.Errorf("shaders: compile %s: %w", label, err)
	}
	return module, nil
}
