package backend

import (
	"image"

	"github.com/gogpu/gfx/internal/shaderinfo"
	"github.com/gogpu/gputypes"
)

// Resource is implemented by every object a Device creates.
type Resource interface {
	// NativeHandle returns the backend object handle, 0 when there is none.
	NativeHandle() uintptr

	// Release frees the native object. Releasing twice is a no-op.
	Release()
}

// Texture is a device texture of any variant.
type Texture interface {
	Resource
	Descriptor() *TextureDescriptor

	// Write uploads data into region. bytesPerRow of 0 means tightly packed.
	// For layered regions rows are ordered slice by slice.
	Write(region TextureRegion, data []byte, bytesPerRow int) error

	// Read downloads region into dst with the given row pitch. It
	// synchronizes with pending GPU work.
	Read(region TextureRegion, dst []byte, bytesPerRow int) error

	// SetSampler replaces the sampling parameters used when the texture is
	// bound to a texture unit.
	SetSampler(SamplerDesc) error
	Sampler() SamplerDesc
}

// Buffer is a linear device allocation.
type Buffer interface {
	Resource
	Descriptor() *BufferDescriptor

	// Write copies data to the buffer at offset.
	Write(offset int, data []byte) error

	// Read copies len(dst) bytes starting at offset. Staging and storage
	// buffers support it; other kinds return ErrUnsupported.
	Read(offset int, dst []byte) error
}

// RenderBuffer is a render-only surface.
type RenderBuffer interface {
	Resource
	Descriptor() *RenderBufferDescriptor
}

// View is a render target or depth-stencil view of a single surface.
type View interface {
	Resource
	Target() ViewTarget
	Width() int
	Height() int
	Format() gputypes.TextureFormat
}

// Shader is a compiled single-stage shader.
type Shader interface {
	Resource
	Descriptor() *ShaderDescriptor
	Stage() ShaderStage

	// EntryPoint returns the reflected interface of the entry point.
	EntryPoint() *shaderinfo.EntryPoint
	Module() *shaderinfo.Module
}

// InputLayout is a device-level vertex input layout object built for one
// program and one attribute set.
type InputLayout interface {
	Resource
	Layout() *VertexLayout
}

// RasterizerState is an immutable rasterizer state object.
type RasterizerState interface {
	Resource
	Desc() RasterizerDesc
}

// BlendState is an immutable blend state object.
type BlendState interface {
	Resource
	Desc() BlendDesc
}

// DepthStencilState is an immutable depth-stencil state object.
type DepthStencilState interface {
	Resource
	Desc() DepthStencilDesc
}

// Query is an occlusion query.
type Query interface {
	Resource

	// Result returns the number of samples that passed. ok is false while
	// the result is not yet available.
	Result() (samples uint64, ok bool, err error)
}

// SwapChain is the presentation chain of a window.
type SwapChain interface {
	Resource
	Descriptor() *SwapChainDescriptor

	// BackBuffer returns the texture rendering into the current back
	// buffer. The texture stays valid until Resize or Release.
	BackBuffer() (Texture, error)

	// Resize reallocates the buffers. Views on the old back buffer must be
	// released first.
	Resize(width, height int) error

	// Present shows the back buffer. interval 0 presents immediately, n>0
	// waits for n vertical blanks. damage limits the update to the given
	// rectangles; nil presents everything.
	Present(interval int, damage []image.Rectangle) error

	// NeedsShadowBuffer reports whether the back buffer loses its contents
	// across Present, so that partial updates need a shadow copy.
	NeedsShadowBuffer() bool
}

// Shareable is implemented by textures and buffers that can be opened on
// another device of the same backend.
type Shareable interface {
	ShareHandle() (uintptr, error)
}

// Device creates resources and owns a command stream.
type Device interface {
	// Backend returns the backend name, e.g. "soft" or "wgpu-vulkan".
	Backend() string
	Limits() Limits

	CreateTexture(desc *TextureDescriptor) (Texture, error)
	CreateBuffer(desc *BufferDescriptor) (Buffer, error)
	CreateRenderBuffer(desc *RenderBufferDescriptor) (RenderBuffer, error)
	CreateShader(desc *ShaderDescriptor) (Shader, error)
	CreateRenderTargetView(t ViewTarget) (View, error)
	CreateDepthStencilView(t ViewTarget) (View, error)

	// CreateInputLayout builds the input layout of program for the given
	// vertex attributes. Every program input must have an attribute.
	CreateInputLayout(program *ProgramInfo, attrs []VertexAttribute) (InputLayout, error)

	CreateRasterizerState(RasterizerDesc) (RasterizerState, error)
	CreateBlendState(BlendDesc) (BlendState, error)
	CreateDepthStencilState(DepthStencilDesc) (DepthStencilState, error)
	CreateQuery() (Query, error)
	CreateSwapChain(desc *SwapChainDescriptor) (SwapChain, error)

	// OpenSharedTexture and OpenSharedBuffer open a resource created on
	// another device from its share handle. Errors wrap ErrSharing.
	OpenSharedTexture(handle uintptr) (Texture, error)
	OpenSharedBuffer(handle uintptr) (Buffer, error)

	Commands() Commands
	NativeHandle() uintptr

	// Release destroys the device. Implementations call
	// NotifyDeviceDestroyed before freeing native state.
	Release()
}

// Commands records state changes and work on the device.
//
// Bindings are sticky: a value set stays set until replaced or cleared with
// nil. Unit indices are in [0, MaxUnits).
type Commands interface {
	SetRenderTargets(colors []View, depthStencil View) error
	RenderTargets() (colors []View, depthStencil View)
	SetReadTarget(View) error
	SetDrawBuffers(enabled []bool) error

	SetShader(stage ShaderStage, s Shader) error
	SetTexture(unit int, t Texture) error
	SetImageTexture(unit int, t Texture, level int) error
	SetUniformBuffer(unit int, b Buffer) error
	SetStorageBuffer(unit int, b Buffer) error

	SetRasterizerState(RasterizerState) error
	SetBlendState(BlendState) error
	SetDepthStencilState(DepthStencilState) error
	SetViewports([]Viewport) error
	SetScissors([]image.Rectangle) error

	SetInputLayout(InputLayout) error
	SetIndexBuffer(b Buffer, format gputypes.IndexFormat, offset int) error

	Draw(topology gputypes.PrimitiveTopology, vertexCount, instanceCount, firstVertex, firstInstance int) error
	DrawIndexed(topology gputypes.PrimitiveTopology, indexCount, instanceCount, firstIndex, baseVertex, firstInstance int) error
	Dispatch(x, y, z int) error

	ClearColor(v View, c gputypes.Color) error
	ClearDepthStencil(v View, flags ClearFlags, depth float32, stencil uint8) error

	CopyBuffer(dst Buffer, dstOffset int, src Buffer, srcOffset, size int) error
	CopyTexture(dst Texture, dstAt TextureRegion, src Texture, srcRegion TextureRegion) error
	CopyTextureToBuffer(dst Buffer, dstOffset, bytesPerRow int, src Texture, srcRegion TextureRegion) error

	// ReadPixels reads rect of the read target into dst.
	ReadPixels(rect image.Rectangle, dst []byte, bytesPerRow int) error

	BeginQuery(Query) error
	EndQuery(Query) error

	// Flush submits recorded work.
	Flush() error
}
