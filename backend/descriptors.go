package backend

import (
	"math"
	"math/bits"

	"github.com/gogpu/gputypes"
)

// MaxUnits bounds every unit-indexed binding (textures, images, uniform and
// storage buffers). Valid unit indices are [0, MaxUnits).
const MaxUnits = 256

// MaxColorTargets is the number of simultaneously bound color targets the
// contract describes. Devices may report fewer in Limits.
const MaxColorTargets = 8

// TextureKind selects a texture variant.
type TextureKind uint8

// Texture variants.
const (
	Texture2D TextureKind = iota
	Texture1D
	Texture1DArray
	Texture2DArray
	Texture3D
	TextureCube
	TextureCubeArray
)

func (k TextureKind) String() string {
	switch k {
	case Texture1D:
		return "1D"
	case Texture1DArray:
		return "1D-array"
	case Texture2D:
		return "2D"
	case Texture2DArray:
		return "2D-array"
	case Texture3D:
		return "3D"
	case TextureCube:
		return "cube"
	case TextureCubeArray:
		return "cube-array"
	}
	return "unknown"
}

// Dimension returns the storage dimension of the variant.
func (k TextureKind) Dimension() gputypes.TextureDimension {
	switch k {
	case Texture1D, Texture1DArray:
		return gputypes.TextureDimension1D
	case Texture3D:
		return gputypes.TextureDimension3D
	}
	return gputypes.TextureDimension2D
}

// ViewDimension returns the dimension a sampled view of the variant uses.
func (k TextureKind) ViewDimension() gputypes.TextureViewDimension {
	switch k {
	case Texture1D:
		return gputypes.TextureViewDimension1D
	case Texture1DArray, Texture2DArray:
		// 1D arrays are stored as 2D arrays of height 1.
		return gputypes.TextureViewDimension2DArray
	case Texture3D:
		return gputypes.TextureViewDimension3D
	case TextureCube:
		return gputypes.TextureViewDimensionCube
	case TextureCubeArray:
		return gputypes.TextureViewDimensionCubeArray
	}
	return gputypes.TextureViewDimension2D
}

// IsArray reports whether the variant has array layers.
func (k TextureKind) IsArray() bool {
	return k == Texture1DArray || k == Texture2DArray || k == TextureCubeArray
}

// IsCube reports whether the variant has six faces per layer.
func (k TextureKind) IsCube() bool { return k == TextureCube || k == TextureCubeArray }

// TextureDescriptor describes a texture.
//
// Width is always used. Height is used by every variant except the 1D ones,
// Depth only by 3D textures and Layers only by array variants (for cube
// arrays it counts cubes, not faces). Levels of 0 requests the full mip
// chain; ResolveTexture replaces it with the actual count.
type TextureDescriptor struct {
	Label   string
	Kind    TextureKind
	Width   int
	Height  int
	Depth   int
	Layers  int
	Format  gputypes.TextureFormat
	Levels  int
	Samples int
	Usage   gputypes.TextureUsage
}

// ArrayLayers returns the number of physical 2D slices, counting cube faces.
func (d *TextureDescriptor) ArrayLayers() int {
	n := 1
	if d.Kind.IsArray() {
		n = d.Layers
	}
	if d.Kind.IsCube() {
		n *= 6
	}
	return n
}

// LevelSize returns the dimensions of mip level n.
func (d *TextureDescriptor) LevelSize(n int) (w, h, depth int) {
	return mipDim(d.Width, n), mipDim(d.Height, n), mipDim(d.Depth, n)
}

func mipDim(v, n int) int {
	v >>= n
	if v < 1 {
		return 1
	}
	return v
}

// FullMipCount returns floor(log2(max(w, h, d))) + 1.
func FullMipCount(w, h, d int) int {
	m := max(w, h, d, 1)
	return bits.Len(uint(m))
}

// ResolveTexture validates d against the limits and returns a copy with
// defaults filled in and Levels resolved.
func ResolveTexture(d TextureDescriptor, lim Limits) (TextureDescriptor, error) {
	switch d.Kind {
	case Texture1D, Texture1DArray:
		d.Height = 1
		d.Depth = 1
	case Texture3D:
	default:
		d.Depth = 1
	}
	if d.Kind.IsCube() && d.Height != d.Width {
		return d, Invalid("cube texture must be square, got %dx%d", d.Width, d.Height)
	}
	if !d.Kind.IsArray() {
		d.Layers = 1
	}
	if d.Width <= 0 || d.Height <= 0 || d.Depth <= 0 || d.Layers <= 0 {
		return d, Invalid("texture dimensions %dx%dx%d with %d layers", d.Width, d.Height, d.Depth, d.Layers)
	}
	if d.Format == gputypes.TextureFormatUndefined {
		return d, Invalid("texture format undefined")
	}
	if d.Samples <= 0 {
		d.Samples = 1
	}

	maxDim := lim.MaxTextureSize
	if d.Kind == Texture3D {
		maxDim = lim.MaxTextureSize3D
	}
	if maxDim > 0 && (d.Width > maxDim || d.Height > maxDim || d.Depth > maxDim) {
		return d, Errorf("", "create texture", ErrCreation,
			"size %dx%dx%d exceeds max texture size %d", d.Width, d.Height, d.Depth, maxDim)
	}
	if lim.MaxArrayLayers > 0 && d.ArrayLayers() > lim.MaxArrayLayers {
		return d, Errorf("", "create texture", ErrCreation,
			"%d array layers exceeds limit %d", d.ArrayLayers(), lim.MaxArrayLayers)
	}

	depth := 1
	if d.Kind == Texture3D {
		depth = d.Depth
	}
	full := FullMipCount(d.Width, d.Height, depth)
	switch {
	case d.Levels == 0:
		d.Levels = full
	case d.Levels < 0 || d.Levels > full:
		return d, Invalid("%d mip levels requested, at most %d possible", d.Levels, full)
	}
	if d.Samples > 1 && d.Levels != 1 {
		return d, Invalid("multisampled texture must have one mip level")
	}
	if d.Usage == 0 {
		d.Usage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc
	}
	return d, nil
}

// TextureRegion addresses a box within one mip level. Z is the array layer
// (cube faces count as layers) for layered variants and the depth slice for
// 3D textures.
type TextureRegion struct {
	Level                int
	X, Y, Z              int
	Width, Height, Depth int
}

// FullRegion returns the region covering level n of d.
func FullRegion(d *TextureDescriptor, level int) TextureRegion {
	w, h, depth := d.LevelSize(level)
	if d.Kind != Texture3D {
		depth = d.ArrayLayers()
	}
	return TextureRegion{Level: level, Width: w, Height: h, Depth: depth}
}

// Within validates r against d.
func (r TextureRegion) Within(d *TextureDescriptor) error {
	if r.Level < 0 || r.Level >= d.Levels {
		return Invalid("mip level %d out of range [0,%d)", r.Level, d.Levels)
	}
	w, h, depth := d.LevelSize(r.Level)
	if d.Kind != Texture3D {
		depth = d.ArrayLayers()
	}
	if !InRange(r.X, r.Width, w) || !InRange(r.Y, r.Height, h) || !InRange(r.Z, r.Depth, depth) {
		return Invalid("region %d,%d,%d %dx%dx%d outside level %d of size %dx%dx%d",
			r.X, r.Y, r.Z, r.Width, r.Height, r.Depth, r.Level, w, h, depth)
	}
	return nil
}

// InRange reports whether the n units starting at offset lie inside
// [0,size). Negative values are out of range and the check cannot
// overflow.
func InRange(offset, n, size int) bool {
	return offset >= 0 && n >= 0 && offset <= size && n <= size-offset
}

// RangeEnd returns first+count, or false when the sum overflows int.
// first and count must not be negative.
func RangeEnd(first, count int) (int, bool) {
	if count > math.MaxInt-first {
		return 0, false
	}
	return first + count, true
}

// SamplerDesc holds the sampling parameters of a texture. It is comparable
// and used as a cache key.
type SamplerDesc struct {
	WrapS, WrapT, WrapR gputypes.AddressMode
	MinFilter           gputypes.FilterMode
	MagFilter           gputypes.FilterMode
	MipFilter           gputypes.MipmapFilterMode
	LODMin, LODMax      float32
	LODBias             float32
	BaseLevel, MaxLevel int
	// Compare enables depth comparison when not CompareFunctionUndefined.
	Compare    gputypes.CompareFunction
	Anisotropy uint16
}

// DefaultSampler returns repeat wrapping with linear filtering over every
// mip level.
func DefaultSampler() SamplerDesc {
	return SamplerDesc{
		WrapS:     gputypes.AddressModeRepeat,
		WrapT:     gputypes.AddressModeRepeat,
		WrapR:     gputypes.AddressModeRepeat,
		MinFilter: gputypes.FilterModeLinear,
		MagFilter: gputypes.FilterModeLinear,
		MipFilter: gputypes.MipmapFilterModeLinear,
		LODMin:    0,
		LODMax:    1000,
		MaxLevel:  1000,
	}
}

// BufferKind selects a buffer variant.
type BufferKind uint8

// Buffer variants.
const (
	BufferVertex BufferKind = iota
	BufferElement
	BufferUniform
	BufferStorage
	BufferStaging
)

func (k BufferKind) String() string {
	switch k {
	case BufferVertex:
		return "vertex"
	case BufferElement:
		return "element"
	case BufferUniform:
		return "uniform"
	case BufferStorage:
		return "storage"
	case BufferStaging:
		return "staging"
	}
	return "unknown"
}

// Usage is the update-frequency and access hint of a buffer.
type Usage uint8

// Usage hints: stream/static/dynamic crossed with draw/read/copy.
const (
	StaticDraw Usage = iota
	StaticRead
	StaticCopy
	DynamicDraw
	DynamicRead
	DynamicCopy
	StreamDraw
	StreamRead
	StreamCopy
)

// Dynamic reports whether the contents are expected to change often.
func (u Usage) Dynamic() bool { return u >= DynamicDraw }

// Direction is the transfer direction of a staging resource.
type Direction uint8

// Transfer directions.
const (
	ToGPU Direction = iota
	FromGPU
)

// BufferDescriptor describes a buffer.
type BufferDescriptor struct {
	Label     string
	Kind      BufferKind
	Size      int
	Usage     Usage
	Stride    int       // structure stride of storage buffers, 0 for raw
	Direction Direction // staging buffers only
}

// RenderBufferDescriptor describes a render-only surface (no sampling).
type RenderBufferDescriptor struct {
	Label   string
	Width   int
	Height  int
	Format  gputypes.TextureFormat
	Samples int
}

// FillMode selects how polygons are rasterized.
type FillMode uint8

// Fill modes.
const (
	FillSolid FillMode = iota
	FillWireframe
)

// RasterizerDesc describes rasterizer state.
type RasterizerDesc struct {
	Fill                 FillMode
	Cull                 gputypes.CullMode
	FrontFace            gputypes.FrontFace
	DepthBias            int32
	DepthBiasClamp       float32
	SlopeScaledDepthBias float32
	UnclippedDepth       bool
	Scissor              bool
	Multisample          bool
	AntialiasedLines     bool
}

// DefaultRasterizer returns solid fill, no culling, counter-clockwise front
// faces and scissoring off.
func DefaultRasterizer() RasterizerDesc {
	return RasterizerDesc{
		Fill:      FillSolid,
		Cull:      gputypes.CullModeNone,
		FrontFace: gputypes.FrontFaceCCW,
	}
}

// BlendTarget is the blend configuration of one color target.
type BlendTarget struct {
	Enable    bool
	Color     gputypes.BlendComponent
	Alpha     gputypes.BlendComponent
	WriteMask gputypes.ColorWriteMask
}

// BlendDesc describes blend state. Unless Independent is set, Targets[0]
// applies to every color target.
type BlendDesc struct {
	AlphaToCoverage bool
	Independent     bool
	Targets         [MaxColorTargets]BlendTarget
}

// Target returns the effective blend configuration of color target i.
func (d *BlendDesc) Target(i int) BlendTarget {
	if !d.Independent || i < 0 || i >= MaxColorTargets {
		return d.Targets[0]
	}
	return d.Targets[i]
}

// DefaultBlend returns blending disabled with every channel written.
func DefaultBlend() BlendDesc {
	var d BlendDesc
	replace := gputypes.BlendStateReplace()
	for i := range d.Targets {
		d.Targets[i] = BlendTarget{
			Color:     replace.Color,
			Alpha:     replace.Alpha,
			WriteMask: gputypes.ColorWriteMaskAll,
		}
	}
	return d
}

// AlphaBlend returns straight alpha blending on every target.
func AlphaBlend() BlendDesc {
	d := DefaultBlend()
	alpha := gputypes.BlendStateAlpha()
	for i := range d.Targets {
		d.Targets[i].Enable = true
		d.Targets[i].Color = alpha.Color
		d.Targets[i].Alpha = alpha.Alpha
	}
	return d
}

// StencilFace describes the stencil test of one face orientation.
type StencilFace struct {
	Func      gputypes.CompareFunction
	Fail      gputypes.StencilOperation
	DepthFail gputypes.StencilOperation
	Pass      gputypes.StencilOperation
}

// DepthStencilDesc describes depth and stencil state.
type DepthStencilDesc struct {
	DepthTest        bool
	DepthWrite       bool
	DepthFunc        gputypes.CompareFunction
	StencilTest      bool
	StencilReadMask  uint8
	StencilWriteMask uint8
	StencilRef       uint32
	Front, Back      StencilFace
}

// DefaultDepthStencil returns depth and stencil testing disabled.
func DefaultDepthStencil() DepthStencilDesc {
	keep := StencilFace{
		Func:      gputypes.CompareFunctionAlways,
		Fail:      gputypes.StencilOperationKeep,
		DepthFail: gputypes.StencilOperationKeep,
		Pass:      gputypes.StencilOperationKeep,
	}
	return DepthStencilDesc{
		DepthWrite:       true,
		DepthFunc:        gputypes.CompareFunctionLess,
		StencilReadMask:  0xff,
		StencilWriteMask: 0xff,
		Front:            keep,
		Back:             keep,
	}
}

// Viewport maps normalized device coordinates to a render target region.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// VertexAttribute binds one shader input location to vertex buffer data.
type VertexAttribute struct {
	Location uint32
	Buffer   Buffer
	Format   gputypes.VertexFormat
	Offset   uint64
	Stride   uint64
	StepMode gputypes.VertexStepMode
}

// ViewTarget addresses what a render target or depth-stencil view points
// at: one mip level and one layer (array slice, cube face or 3D slice) of a
// texture, or a render buffer. Exactly one of Texture and RenderBuffer is set.
type ViewTarget struct {
	Texture      Texture
	RenderBuffer RenderBuffer
	Level        int
	Layer        int
}

// Size returns the dimensions of the addressed surface.
func (t ViewTarget) Size() (w, h int) {
	if t.RenderBuffer != nil {
		d := t.RenderBuffer.Descriptor()
		return d.Width, d.Height
	}
	if t.Texture == nil {
		return 0, 0
	}
	d := t.Texture.Descriptor()
	w, h, _ = d.LevelSize(t.Level)
	return w, h
}

// Format returns the pixel format of the addressed surface.
func (t ViewTarget) Format() gputypes.TextureFormat {
	if t.RenderBuffer != nil {
		return t.RenderBuffer.Descriptor().Format
	}
	if t.Texture == nil {
		return gputypes.TextureFormatUndefined
	}
	return t.Texture.Descriptor().Format
}

// ClearFlags selects the aspects ClearDepthStencil touches.
type ClearFlags uint8

// Clear flags.
const (
	ClearDepth ClearFlags = 1 << iota
	ClearStencil
)

// SwapChainDescriptor describes the presentation buffers of a window.
type SwapChainDescriptor struct {
	Label       string
	Display     uintptr // platform display connection, 0 when not needed
	Window      uintptr // native window handle, 0 for headless
	Width       int
	Height      int
	Format      gputypes.TextureFormat
	BufferCount int
	VSync       bool
}

// Limits reports device capabilities the context validates against.
type Limits struct {
	MaxTextureSize      int
	MaxTextureSize3D    int
	MaxArrayLayers      int
	MaxColorTargets     int
	MaxViewports        int
	MaxVertexAttributes int
	MaxBufferSize       uint64
}

// DeviceOptions configures device creation.
type DeviceOptions struct {
	Label string
	// Variant selects a native API within a backend family. Zero lets the
	// family choose.
	Variant gputypes.Backend
	// PowerPreference is "low-power", "high-performance" or empty.
	PowerPreference string
}
