package gfx

import (
	"image"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/shaderinfo"
	"github.com/gogpu/gputypes"
)

// targetSource supplies the texture behind the default render target.
// Swap chains satisfy it.
type targetSource interface {
	BackBuffer() (backend.Texture, error)
}

// offscreen is the default render target of a headless context.
type offscreen struct {
	dev  backend.Device
	desc backend.TextureDescriptor
	tex  backend.Texture
}

func newOffscreen(dev backend.Device, o options) (*offscreen, error) {
	off := &offscreen{dev: dev, desc: backend.TextureDescriptor{
		Label:  "default target",
		Kind:   backend.Texture2D,
		Format: o.format,
		Levels: 1,
		Usage: gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc |
			gputypes.TextureUsageCopyDst | gputypes.TextureUsageTextureBinding,
	}}
	if err := off.resize(o.width, o.height); err != nil {
		return nil, err
	}
	return off, nil
}

func (o *offscreen) BackBuffer() (backend.Texture, error) { return o.tex, nil }

func (o *offscreen) resize(w, h int) error {
	desc := o.desc
	desc.Width, desc.Height = w, h
	tex, err := o.dev.CreateTexture(&desc)
	if err != nil {
		return err
	}
	if o.tex != nil {
		o.tex.Release()
	}
	o.tex, o.desc = tex, desc
	return nil
}

func (o *offscreen) release() {
	if o.tex != nil {
		o.tex.Release()
		o.tex = nil
	}
}

type imageUnit struct {
	tex   *Texture
	level int
}

type indexBinding struct {
	buf    backend.Buffer
	format gputypes.IndexFormat
	offset int
}

// defaultStates are bound whenever nil is set as a state object.
type defaultStates struct {
	raster       *RasterizerState
	blend        *BlendState
	depthStencil *DepthStencilState
}

// Context is the graphic context: it creates GPU resources on one device
// and tracks the pipeline state bound on that device's command stream.
// Setters forward to the backend only when the value changes.
//
// A Context belongs to a single goroutine.
type Context struct {
	dev   backend.Device
	cmds  backend.Commands
	owned bool // Release also releases dev
	opts  options

	src       targetSource
	off       *offscreen // nil for window contexts
	backView  backend.View
	depthRB   backend.RenderBuffer
	depthView backend.View
	size      image.Point
	ratio     float64
	resizing  bool

	states   stateCaches
	defaults defaultStates

	program      *Program
	textures     []*Texture
	images       []imageUnit
	uniforms     []*Buffer
	storage      []*Buffer
	write, read  *FrameBuffer
	writeGen     uint64
	readGen      uint64
	raster       *RasterizerState
	blend        *BlendState
	depthStencil *DepthStencilState
	viewports    []Viewport
	scissors     []image.Rectangle
	drawBuffers  []bool
	array        *PrimitivesArray
	elements     *Buffer
	index        indexBinding
	layoutDirty  bool

	arrays map[*PrimitivesArray]struct{}
}

// NewContext creates a headless context rendering into an offscreen
// default target. Without WithDevice it opens a device from the current
// backend and releases it with the context.
func NewContext(opts ...ContextOption) (*Context, error) {
	o := buildOptions(opts)
	dev, owned, err := openDevice(o)
	if err != nil {
		return nil, err
	}
	off, err := newOffscreen(dev, o)
	if err != nil {
		if owned {
			dev.Release()
		}
		return nil, err
	}
	c, err := newContext(dev, off, o)
	if err != nil {
		off.release()
		if owned {
			dev.Release()
		}
		return nil, err
	}
	c.off, c.owned = off, owned
	return c, nil
}

func openDevice(o options) (backend.Device, bool, error) {
	if o.device != nil {
		return o.device, false, nil
	}
	dev, err := backend.NewDevice(&backend.DeviceOptions{Label: o.label})
	if err != nil {
		return nil, false, err
	}
	return dev, true, nil
}

func newContext(dev backend.Device, src targetSource, o options) (*Context, error) {
	c := &Context{opts: o, ratio: o.pixelRatio, arrays: make(map[*PrimitivesArray]struct{})}
	if err := c.init(dev, src); err != nil {
		c.releaseInternals()
		return nil, err
	}
	Logger().Info("gfx: context created", "backend", dev.Backend(), "w", c.size.X, "h", c.size.Y)
	return c, nil
}

// init binds the context to dev and installs the default state and
// targets.
func (c *Context) init(dev backend.Device, src targetSource) error {
	c.dev, c.cmds, c.src = dev, dev.Commands(), src
	c.states = newStateCaches()
	var err error
	if c.defaults.raster, err = c.CreateRasterizerState(DefaultRasterizer()); err != nil {
		return err
	}
	if c.defaults.blend, err = c.CreateBlendState(DefaultBlend()); err != nil {
		return err
	}
	if c.defaults.depthStencil, err = c.CreateDepthStencilState(DefaultDepthStencil()); err != nil {
		return err
	}
	if err := c.SetRasterizerState(nil); err != nil {
		return err
	}
	if err := c.SetBlendState(nil); err != nil {
		return err
	}
	if err := c.SetDepthStencilState(nil); err != nil {
		return err
	}
	return c.attachDefault()
}

// reset forgets every recorded binding. Used when the device changes and
// the old bindings no longer mean anything.
func (c *Context) reset() {
	c.program = nil
	c.textures, c.images, c.uniforms, c.storage = nil, nil, nil, nil
	c.write, c.read, c.writeGen, c.readGen = nil, nil, 0, 0
	c.raster, c.blend, c.depthStencil = nil, nil, nil
	c.viewports, c.scissors, c.drawBuffers = nil, nil, nil
	c.array, c.elements, c.index = nil, nil, indexBinding{}
	c.layoutDirty = false
	c.defaults = defaultStates{}
}

// releaseInternals frees what the context itself created on its device.
func (c *Context) releaseInternals() {
	c.releaseDefaultTargets()
	if c.states.rasterizers != nil {
		c.states.release()
	}
}

// Release frees the default targets and state objects, and the device
// when the context opened it. Resources created from the context must be
// released by the caller.
func (c *Context) Release() {
	if c.dev == nil {
		return
	}
	c.unbindLayout()
	for a := range c.arrays {
		a.layouts.Close()
	}
	c.releaseInternals()
	if c.off != nil {
		c.off.release()
	}
	if c.owned {
		c.dev.Release()
	}
	Logger().Info("gfx: context released", "backend", c.dev.Backend())
	c.reset()
	c.dev, c.cmds = nil, nil
}

// attachDefault creates the views of the default targets and binds them
// where the default frame buffer is in use.
func (c *Context) attachDefault() error {
	tex, err := c.src.BackBuffer()
	if err != nil {
		return err
	}
	view, err := c.dev.CreateRenderTargetView(backend.ViewTarget{Texture: tex})
	if err != nil {
		return err
	}
	c.backView = view
	c.size = image.Pt(view.Width(), view.Height())
	if f := c.opts.depthStencil; f != gputypes.TextureFormatUndefined {
		rb, err := c.dev.CreateRenderBuffer(&backend.RenderBufferDescriptor{
			Label:  "default depth-stencil",
			Width:  c.size.X,
			Height: c.size.Y,
			Format: f,
		})
		if err != nil {
			return err
		}
		c.depthRB = rb
		if c.depthView, err = c.dev.CreateDepthStencilView(backend.ViewTarget{RenderBuffer: rb}); err != nil {
			return err
		}
	}
	if c.write == nil || c.read == nil {
		return c.bindTargets()
	}
	return nil
}

// detachDefault unbinds and releases the default target views. The
// backend must not hold a view of the back buffer when it is resized.
func (c *Context) detachDefault() {
	back, depth := c.backView, c.depthView
	c.backView, c.depthView = nil, nil
	if c.write == nil || c.read == nil {
		if err := c.bindTargets(); err != nil {
			Logger().Warn("gfx: unbinding default targets", "err", err)
		}
	}
	if back != nil {
		back.Release()
	}
	if depth != nil {
		depth.Release()
	}
	if c.depthRB != nil {
		c.depthRB.Release()
		c.depthRB = nil
	}
}

func (c *Context) releaseDefaultTargets() {
	if c.dev == nil {
		return
	}
	c.detachDefault()
}

// BeginResizeSwapChain detaches the default targets so that the swap
// chain behind them can be resized. Draws fail until EndResizeSwapChain.
func (c *Context) BeginResizeSwapChain() {
	if c.resizing {
		return
	}
	c.resizing = true
	c.detachDefault()
}

// EndResizeSwapChain recreates the default targets at the new back buffer
// size and restores their binding.
func (c *Context) EndResizeSwapChain() error {
	if !c.resizing {
		return nil
	}
	c.resizing = false
	return c.attachDefault()
}

// Resize resizes the offscreen default target of a headless context.
// Window contexts are resized through Window.Resize.
func (c *Context) Resize(width, height int) error {
	if c.off == nil {
		return invalid("context renders into a window, resize the window instead")
	}
	if width == c.size.X && height == c.size.Y {
		return nil
	}
	c.BeginResizeSwapChain()
	if err := c.off.resize(width, height); err != nil {
		// Restore the previous target so the context stays usable.
		if endErr := c.EndResizeSwapChain(); endErr != nil {
			Logger().Warn("gfx: restoring default target", "err", endErr)
		}
		return err
	}
	return c.EndResizeSwapChain()
}

// Size returns the size of the default render target in pixels.
func (c *Context) Size() image.Point { return c.size }

// PixelRatio returns the ratio of pixels to logical points.
func (c *Context) PixelRatio() float64 { return c.ratio }

// SetPixelRatio sets the ratio of pixels to logical points.
func (c *Context) SetPixelRatio(r float64) {
	if r > 0 {
		c.ratio = r
	}
}

// MaxTextureSize returns the largest texture dimension the device accepts.
func (c *Context) MaxTextureSize() int { return c.dev.Limits().MaxTextureSize }

// Limits returns the device limits.
func (c *Context) Limits() backend.Limits { return c.dev.Limits() }

// Backend returns the name of the device's backend.
func (c *Context) Backend() string { return c.dev.Backend() }

// Device returns the backend device. It does not add a reference.
func (c *Context) Device() backend.Device { return c.dev }

// DefaultTarget returns the backend texture behind the default render
// target.
func (c *Context) DefaultTarget() (backend.Texture, error) { return c.src.BackBuffer() }

// renderable reports whether textures of format f are created as render
// targets by default.
func renderable(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatRG8Unorm,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatR16Float, gputypes.TextureFormatRG16Float, gputypes.TextureFormatRGBA16Float,
		gputypes.TextureFormatR32Float, gputypes.TextureFormatRG32Float, gputypes.TextureFormatRGBA32Float,
		gputypes.TextureFormatDepth16Unorm, gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8, gputypes.TextureFormatDepth32Float,
		gputypes.TextureFormatDepth32FloatStencil8, gputypes.TextureFormatStencil8:
		return true
	}
	return false
}

// CreateTexture creates a texture. Levels 0 requests the full mip chain.
// Without an explicit usage the texture can be sampled, copied and, for
// renderable formats, attached to a frame buffer.
func (c *Context) CreateTexture(desc TextureDescriptor) (*Texture, error) {
	return c.createTexture(desc, false)
}

func (c *Context) createTexture(desc TextureDescriptor, staging bool) (*Texture, error) {
	if desc.Usage == 0 {
		desc.Usage = gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst | gputypes.TextureUsageCopySrc
		if renderable(desc.Format) && !staging {
			desc.Usage |= gputypes.TextureUsageRenderAttachment
		}
	}
	raw, err := c.dev.CreateTexture(&desc)
	if err != nil {
		return nil, err
	}
	t := newTexture(c, raw, staging)
	Logger().Debug("gfx: texture created", "kind", t.desc.Kind, "w", t.desc.Width, "h", t.desc.Height,
		"format", t.desc.Format, "levels", t.desc.Levels)
	return t, nil
}

// CreateTexture1D creates a 1D texture. levels 0 requests a full mip chain.
func (c *Context) CreateTexture1D(width int, f gputypes.TextureFormat, levels int) (*Texture, error) {
	return c.CreateTexture(TextureDescriptor{Kind: Texture1D, Width: width, Format: f, Levels: levels})
}

// CreateTexture1DArray creates an array of layers 1D textures.
func (c *Context) CreateTexture1DArray(width, layers int, f gputypes.TextureFormat, levels int) (*Texture, error) {
	return c.CreateTexture(TextureDescriptor{Kind: Texture1DArray, Width: width, Layers: layers, Format: f, Levels: levels})
}

// CreateTexture2D creates a 2D texture. levels 0 requests a full mip chain.
func (c *Context) CreateTexture2D(width, height int, f gputypes.TextureFormat, levels int) (*Texture, error) {
	return c.CreateTexture(TextureDescriptor{Kind: Texture2D, Width: width, Height: height, Format: f, Levels: levels})
}

// CreateTexture2DArray creates an array of layers 2D textures.
func (c *Context) CreateTexture2DArray(width, height, layers int, f gputypes.TextureFormat, levels int) (*Texture, error) {
	return c.CreateTexture(TextureDescriptor{
		Kind: Texture2DArray, Width: width, Height: height, Layers: layers, Format: f, Levels: levels,
	})
}

// CreateTexture3D creates a volume texture.
func (c *Context) CreateTexture3D(width, height, depth int, f gputypes.TextureFormat, levels int) (*Texture, error) {
	return c.CreateTexture(TextureDescriptor{
		Kind: Texture3D, Width: width, Height: height, Depth: depth, Format: f, Levels: levels,
	})
}

// CreateTextureCube creates a cube map with size x size faces.
func (c *Context) CreateTextureCube(size int, f gputypes.TextureFormat, levels int) (*Texture, error) {
	return c.CreateTexture(TextureDescriptor{Kind: TextureCube, Width: size, Height: size, Format: f, Levels: levels})
}

// CreateTextureCubeArray creates an array of cubes cube maps.
func (c *Context) CreateTextureCubeArray(size, cubes int, f gputypes.TextureFormat, levels int) (*Texture, error) {
	return c.CreateTexture(TextureDescriptor{
		Kind: TextureCubeArray, Width: size, Height: size, Layers: cubes, Format: f, Levels: levels,
	})
}

// CreateStagingTexture creates a single-level 2D texture used as a CPU
// transfer point.
func (c *Context) CreateStagingTexture(width, height int, f gputypes.TextureFormat) (*Texture, error) {
	return c.createTexture(TextureDescriptor{
		Label: "staging", Kind: Texture2D, Width: width, Height: height, Format: f, Levels: 1,
		Usage: gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	}, true)
}

// CreateBuffer creates a buffer of any kind.
func (c *Context) CreateBuffer(desc BufferDescriptor) (*Buffer, error) {
	raw, err := c.dev.CreateBuffer(&desc)
	if err != nil {
		return nil, err
	}
	Logger().Debug("gfx: buffer created", "kind", desc.Kind, "size", desc.Size, "usage", desc.Usage)
	return newBuffer(c, raw), nil
}

// CreateVertexBuffer creates a buffer of vertex attributes.
func (c *Context) CreateVertexBuffer(size int, usage BufferUsage) (*Buffer, error) {
	return c.CreateBuffer(BufferDescriptor{Kind: VertexBuffer, Size: size, Usage: usage})
}

// CreateElementBuffer creates a buffer of indices for indexed draws.
func (c *Context) CreateElementBuffer(size int, usage BufferUsage) (*Buffer, error) {
	return c.CreateBuffer(BufferDescriptor{Kind: ElementBuffer, Size: size, Usage: usage})
}

// CreateUniformBuffer creates a buffer of shader constants.
func (c *Context) CreateUniformBuffer(size int, usage BufferUsage) (*Buffer, error) {
	return c.CreateBuffer(BufferDescriptor{Kind: UniformBuffer, Size: size, Usage: usage})
}

// CreateStorageBuffer creates a storage buffer. stride is the structure
// size of structured buffers, 0 for raw ones.
func (c *Context) CreateStorageBuffer(size, stride int, usage BufferUsage) (*Buffer, error) {
	return c.CreateBuffer(BufferDescriptor{Kind: StorageBuffer, Size: size, Stride: stride, Usage: usage})
}

// CreateStagingBuffer creates a CPU transfer buffer for the given
// direction.
func (c *Context) CreateStagingBuffer(size int, dir Direction) (*Buffer, error) {
	usage := StreamCopy
	if dir == FromGPU {
		usage = StreamRead
	}
	return c.CreateBuffer(BufferDescriptor{Kind: StagingBuffer, Size: size, Usage: usage, Direction: dir})
}

// CreateRenderBuffer creates a render-only surface.
func (c *Context) CreateRenderBuffer(width, height int, f gputypes.TextureFormat, samples int) (*RenderBuffer, error) {
	desc := backend.RenderBufferDescriptor{Width: width, Height: height, Format: f, Samples: samples}
	raw, err := c.dev.CreateRenderBuffer(&desc)
	if err != nil {
		return nil, err
	}
	return &RenderBuffer{ctx: c, raw: raw, desc: *raw.Descriptor()}, nil
}

// CreateShader compiles the entry point of stage in WGSL source. An empty
// entry selects the first entry point of the stage.
func (c *Context) CreateShader(stage ShaderStage, source, entry string) (*Shader, error) {
	raw, err := c.dev.CreateShader(&backend.ShaderDescriptor{Stage: stage, Source: source, EntryPoint: entry})
	if err != nil {
		return nil, err
	}
	return &Shader{ctx: c, raw: raw}, nil
}

// CreateProgram links shaders: a vertex shader with an optional fragment
// shader, or a compute shader alone.
func (c *Context) CreateProgram(shaders ...*Shader) (*Program, error) {
	p := &Program{ctx: c}
	raws := make([]backend.Shader, 0, len(shaders))
	for _, s := range shaders {
		if s == nil {
			continue
		}
		if s.released {
			return nil, released("create program", "shader")
		}
		p.shaders[s.Stage()] = s
		raws = append(raws, s.raw)
	}
	info, err := backend.NewProgramInfo(raws...)
	if err != nil {
		return nil, err
	}
	p.info = info
	return p, nil
}

// CreateProgramFromSource compiles every stage a WGSL module defines into
// a program: its compute entry point, or its first vertex and fragment
// entry points.
func (c *Context) CreateProgramFromSource(source string) (*Program, error) {
	mod, err := shaderinfo.Reflect(source)
	if err != nil {
		return nil, backend.NewError(c.Backend(), "create program", ErrCreation, err)
	}
	var stages []ShaderStage
	if _, err := mod.EntryPoint("", StageCompute); err == nil {
		stages = []ShaderStage{StageCompute}
	} else {
		stages = []ShaderStage{StageVertex}
		if _, err := mod.EntryPoint("", StageFragment); err == nil {
			stages = append(stages, StageFragment)
		}
	}
	shaders := make([]*Shader, 0, len(stages))
	for _, st := range stages {
		s, err := c.CreateShader(st, source, "")
		if err != nil {
			for _, prev := range shaders {
				prev.Release()
			}
			return nil, err
		}
		shaders = append(shaders, s)
	}
	return c.CreateProgram(shaders...)
}

// CreateFrameBuffer creates an empty frame buffer.
func (c *Context) CreateFrameBuffer() *FrameBuffer { return &FrameBuffer{ctx: c} }

// CreatePrimitivesArray creates an empty primitives array.
func (c *Context) CreatePrimitivesArray() *PrimitivesArray {
	a := newPrimitivesArray(c)
	c.arrays[a] = struct{}{}
	return a
}

// CreateOcclusionQuery creates an occlusion query.
func (c *Context) CreateOcclusionQuery() (*OcclusionQuery, error) {
	raw, err := c.dev.CreateQuery()
	if err != nil {
		return nil, err
	}
	return &OcclusionQuery{ctx: c, raw: raw}, nil
}

// The forget helpers drop the bindings of a resource being released so
// the backend never keeps a reference to a freed object.

func (c *Context) forgetTexture(t *Texture) {
	for unit, v := range c.textures {
		if v != t {
			continue
		}
		if err := c.cmds.SetTexture(unit, nil); err != nil {
			Logger().Warn("gfx: unbinding texture", "unit", unit, "err", err)
		}
		c.textures[unit] = nil
	}
	for unit, b := range c.images {
		if b.tex != t {
			continue
		}
		if err := c.cmds.SetImageTexture(unit, nil, 0); err != nil {
			Logger().Warn("gfx: unbinding image", "unit", unit, "err", err)
		}
		c.images[unit] = imageUnit{}
	}
}

func (c *Context) forgetBuffer(b *Buffer) {
	for unit, v := range c.uniforms {
		if v != b {
			continue
		}
		if err := c.cmds.SetUniformBuffer(unit, nil); err != nil {
			Logger().Warn("gfx: unbinding uniform buffer", "unit", unit, "err", err)
		}
		c.uniforms[unit] = nil
	}
	for unit, v := range c.storage {
		if v != b {
			continue
		}
		if err := c.cmds.SetStorageBuffer(unit, nil); err != nil {
			Logger().Warn("gfx: unbinding storage buffer", "unit", unit, "err", err)
		}
		c.storage[unit] = nil
	}
	if c.elements == b {
		if err := c.ResetPrimitivesElements(); err != nil {
			Logger().Warn("gfx: unbinding element buffer", "err", err)
		}
	}
	if b.Kind() == VertexBuffer {
		for a := range c.arrays {
			a.dropBuffer(b)
		}
	}
}

func (c *Context) forgetFrameBuffer(fb *FrameBuffer) {
	if c.write != fb && c.read != fb {
		return
	}
	if err := c.ResetFrameBuffer(); err != nil {
		Logger().Warn("gfx: restoring default targets", "err", err)
	}
}

func (c *Context) forgetProgram(p *Program) {
	if c.program == p {
		if err := c.SetProgram(nil); err != nil {
			Logger().Warn("gfx: unbinding program", "err", err)
		}
		c.unbindLayout()
	}
	for a := range c.arrays {
		a.layouts.Forget(p)
	}
}

func (c *Context) forgetArray(a *PrimitivesArray) {
	delete(c.arrays, a)
	if c.array == a {
		c.array = nil
		c.unbindLayout()
	}
}

// unbindLayout clears the backend input layout before the layout objects
// it may reference are released.
func (c *Context) unbindLayout() {
	if err := c.cmds.SetInputLayout(nil); err != nil {
		Logger().Warn("gfx: unbinding input layout", "err", err)
	}
	c.layoutDirty = true
}
