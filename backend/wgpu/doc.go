// Package wgpu implements the gfx backend on top of the gogpu/wgpu HAL.
//
// The package registers one backend family, "wgpu", that opens a device on
// the first hardware API that reports an adapter (Vulkan, Metal, DX12, then
// GL), plus one backend per native API:
//
//	wgpu-vulkan    Vulkan
//	wgpu-metal     Metal
//	wgpu-dx12      Direct3D 12
//	wgpu-gl        OpenGL / OpenGL ES
//	wgpu-software  the HAL's CPU rasterizer
//
// Importing the package links every HAL backend of the platform:
//
//	import _ "github.com/gogpu/gfx/backend/wgpu"
//
// # Pipelines
//
// The gfx context binds state piecewise (shaders, blend, depth-stencil,
// rasterizer, input layout). At draw time the device folds the bound state
// into a pipeline key and looks the render pipeline up in a state cache, so
// a pipeline is compiled once per distinct combination. Samplers and bind
// group layouts are cached the same way.
//
// # Host applications
//
// NewFactoryFromProvider wraps the device of a host application that
// implements gpucontext.DeviceProvider, for example a gogpu window. Devices
// opened from it share the host's device and never destroy it.
package wgpu
