// Package renderview implements RenderView/Swapchain: a
// GLFW window, its WebGPU surface, and a small frame-pacing ring that
// gates CPU work N frames ahead of the GPU against device.Device's fence
// counter.
//
// Grounded on Gekko3D-gekko's gpu_operations.go
// (createWindowState/createGpuState: GLFW window -> wgpu surface ->
// RequestAdapter/RequestDevice -> surface.Configure) and
// mod_vox_client.go's voxelRendering present loop
// (GetCurrentTexture -> CreateView -> ... -> Submit -> Present).
package renderview

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/forgecore"
	"github.com/gekko3d/forgecore/device"
)

// FramesInFlight is the depth of the CPU/GPU pacing ring (this design:
// "frame index in {0,1,2}").
const FramesInFlight = 3

// RenderView owns the application window and its WebGPU surface, and
// tracks the fence value each in-flight frame slot must complete before
// its resources are safe to reuse (this design "Frame pacing").
type RenderView struct {
	logger forgecore.Logger

	window  *glfw.Window
	surface *wgpu.Surface
	config  wgpu.SurfaceConfiguration

	width, height uint32

	ringFences [FramesInFlight]uint64
}

// Options configure the window and initial swapchain.
type Options struct {
	Width, Height int
	Title         string
	VSync         bool
}

// NewWindow creates the GLFW window, matching createWindowState's
// NoAPI/Resizable hints (wgpu owns presentation, not GLFW's own GL/GLES
// context).
func NewWindow(opts Options) (*glfw.Window, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("renderview: glfw init: %w", err)
	}
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	win, err := glfw.CreateWindow(opts.Width, opts.Height, opts.Title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("renderview: create window: %w", err)
	}
	return win, nil
}

// New wraps window into a WebGPU surface, compatible with dev's adapter,
// and configures the swapchain (this design "Swapchain").
func New(logger forgecore.Logger, instance *wgpu.Instance, dev *device.Device, window *glfw.Window, opts Options) (*RenderView, error) {
	if logger == nil {
		logger = forgecore.NewNopLogger()
	}
	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))

	caps := surface.GetCapabilities(dev.Adapter)
	presentMode := wgpu.PresentModeImmediate
	if opts.VSync {
		presentMode = wgpu.PresentModeFifo
	}
	config := wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(opts.Width),
		Height:      uint32(opts.Height),
		PresentMode: presentMode,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(dev.Adapter, dev.GPU, &config)

	return &RenderView{
		logger:  logger,
		window:  window,
		surface: surface,
		config:  config,
		width:   uint32(opts.Width),
		height:  uint32(opts.Height),
	}, nil
}

// Resize reconfigures the swapchain for a new backbuffer size. Every
// resize-dependent resource, the swapchain included, is recreated on
// resize only.
func (r *RenderView) Resize(dev *device.Device, width, height uint32) {
	if width == 0 || height == 0 {
		return
	}
	r.width, r.height = width, height
	r.config.Width, r.config.Height = width, height
	r.surface.Configure(dev.Adapter, dev.GPU, &r.config)
}

func (r *RenderView) Width() uint32  { return r.width }
func (r *RenderView) Height() uint32 { return r.height }

// ShouldClose reports whether the user asked to close the window.
func (r *RenderView) ShouldClose() bool { return r.window.ShouldClose() }

// PollEvents pumps the GLFW event queue; call once per frame before
// AcquireFrame.
func (r *RenderView) PollEvents() { glfw.PollEvents() }

// AcquireFrame blocks on the pacing ring for slot (this frame's
// device.Device.FrameIndex()), then returns the swapchain's next backing
// texture view (this design "Frame pacing": "gate CPU work N frames
// ahead of the GPU").
func (r *RenderView) AcquireFrame(dev *device.Device) (*wgpu.TextureView, func(), error) {
	slot := dev.FrameIndex()
	if fence := r.ringFences[slot]; fence > 0 {
		dev.WaitForFence(fence)
	}

	texture, err := r.surface.GetCurrentTexture()
	if err != nil {
		return nil, nil, fmt.Errorf("renderview: get current texture: %w", err)
	}
	view, err := texture.CreateView(nil)
	if err != nil {
		return nil, nil, fmt.Errorf("renderview: create view: %w", err)
	}
	return view, view.Release, nil
}

// Present submits the frame's fence value into the pacing ring for the
// current slot and presents the swapchain image (this design: mirrors
// voxelRendering's Submit-then-Present ordering).
func (r *RenderView) Present(dev *device.Device, fenceValue uint64) {
	slot := dev.FrameIndex()
	r.ringFences[slot] = fenceValue
	r.surface.Present()
	dev.AdvanceFrame()
}

// Close releases the surface and destroys the window.
func (r *RenderView) Close() {
	if r.surface != nil {
		r.surface.Release()
	}
	if r.window != nil {
		r.window.Destroy()
	}
}
