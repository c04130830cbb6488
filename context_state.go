package gfx

import (
	"image"
	"slices"

	"github.com/gogpu/gfx/backend"
)

// MaxUnits is the number of texture, image, uniform and storage units.
const MaxUnits = backend.MaxUnits

func checkUnit(what string, unit int) error {
	if unit < 0 || unit >= MaxUnits {
		return invalid("%s unit %d outside [0,%d)", what, unit, MaxUnits)
	}
	return nil
}

// setAt stores v at index i, growing s on demand.
func setAt[T any](s []T, i int, v T) []T {
	if i >= len(s) {
		s = append(s, make([]T, i+1-len(s))...)
	}
	s[i] = v
	return s
}

// at returns s[i], the zero value past the end.
func at[T any](s []T, i int) T {
	var zero T
	if i < len(s) {
		return s[i]
	}
	return zero
}

func (c *Context) owns(what string, ctx *Context) error {
	if ctx != c {
		return invalid("%s belongs to another context", what)
	}
	return nil
}

func (c *Context) textureHandle(t *Texture) (backend.Texture, error) {
	if t == nil {
		return nil, nil
	}
	return t.Handle(c.dev)
}

func (c *Context) bufferHandle(b *Buffer) (backend.Buffer, error) {
	if b == nil {
		return nil, nil
	}
	return b.Handle(c.dev)
}

func (c *Context) checkBindable(t *Texture) error {
	switch {
	case t == nil:
		return nil
	case t.released:
		return released("bind", "texture")
	case t.staging:
		return invalid("staging texture cannot be bound to a unit")
	}
	return nil
}

// SetTexture binds t to a texture unit. Nil unbinds the unit. Textures
// created by another context are opened on this context's device.
func (c *Context) SetTexture(unit int, t *Texture) error {
	if err := checkUnit("texture", unit); err != nil {
		return err
	}
	if err := c.checkBindable(t); err != nil {
		return err
	}
	if at(c.textures, unit) == t {
		return nil
	}
	raw, err := c.textureHandle(t)
	if err != nil {
		return err
	}
	if err := c.cmds.SetTexture(unit, raw); err != nil {
		return err
	}
	c.textures = setAt(c.textures, unit, t)
	return nil
}

// Texture returns the texture bound to unit.
func (c *Context) Texture(unit int) *Texture { return at(c.textures, unit) }

// SetImageTexture binds one mip level of t to an image (storage texture)
// unit.
func (c *Context) SetImageTexture(unit int, t *Texture, level int) error {
	if err := checkUnit("image", unit); err != nil {
		return err
	}
	if err := c.checkBindable(t); err != nil {
		return err
	}
	if t == nil {
		level = 0
	} else if level < 0 || level >= t.desc.Levels {
		return invalid("image level %d out of range [0,%d)", level, t.desc.Levels)
	}
	b := imageUnit{tex: t, level: level}
	if at(c.images, unit) == b {
		return nil
	}
	raw, err := c.textureHandle(t)
	if err != nil {
		return err
	}
	if err := c.cmds.SetImageTexture(unit, raw, level); err != nil {
		return err
	}
	c.images = setAt(c.images, unit, b)
	return nil
}

func checkBuffer(b *Buffer, kind BufferKind) error {
	switch {
	case b == nil:
		return nil
	case b.released:
		return released("bind", "buffer")
	case b.Kind() != kind:
		return invalid("%s buffer bound as %s buffer", b.Kind(), kind)
	}
	return nil
}

// SetUniformBuffer binds b to a uniform unit.
func (c *Context) SetUniformBuffer(unit int, b *Buffer) error {
	if err := checkUnit("uniform", unit); err != nil {
		return err
	}
	if err := checkBuffer(b, UniformBuffer); err != nil {
		return err
	}
	if at(c.uniforms, unit) == b {
		return nil
	}
	raw, err := c.bufferHandle(b)
	if err != nil {
		return err
	}
	if err := c.cmds.SetUniformBuffer(unit, raw); err != nil {
		return err
	}
	c.uniforms = setAt(c.uniforms, unit, b)
	return nil
}

// SetStorageBuffer binds b to a storage unit.
func (c *Context) SetStorageBuffer(unit int, b *Buffer) error {
	if err := checkUnit("storage", unit); err != nil {
		return err
	}
	if err := checkBuffer(b, StorageBuffer); err != nil {
		return err
	}
	if at(c.storage, unit) == b {
		return nil
	}
	raw, err := c.bufferHandle(b)
	if err != nil {
		return err
	}
	if err := c.cmds.SetStorageBuffer(unit, raw); err != nil {
		return err
	}
	c.storage = setAt(c.storage, unit, b)
	return nil
}

// SetProgram binds p. The stages of the previous program are replaced by
// the stages of p, the input layout is rebuilt at the next draw and every
// recorded unit p reads is bound again. Nil unbinds every stage.
func (c *Context) SetProgram(p *Program) error {
	if p == c.program {
		return nil
	}
	if p != nil {
		if p.released {
			return released("set program", "program")
		}
		if err := c.owns("program", p.ctx); err != nil {
			return err
		}
	}
	for st := StageVertex; st <= StageCompute; st++ {
		prev, next := c.program.backendShader(st), p.backendShader(st)
		if prev == next {
			continue
		}
		if err := c.cmds.SetShader(st, next); err != nil {
			return err
		}
	}
	c.program = p
	c.layoutDirty = true
	if p == nil {
		return nil
	}
	return c.rebindUnits(p)
}

// rebindUnits binds the recorded units again for p.
func (c *Context) rebindUnits(p *Program) error {
	for unit, t := range c.textures {
		if t == nil || !p.Uses(backend.UnitTexture, unit) {
			continue
		}
		raw, err := c.textureHandle(t)
		if err != nil {
			return err
		}
		if err := c.cmds.SetTexture(unit, raw); err != nil {
			return err
		}
	}
	for unit, b := range c.images {
		if b.tex == nil || !p.Uses(backend.UnitImage, unit) {
			continue
		}
		raw, err := c.textureHandle(b.tex)
		if err != nil {
			return err
		}
		if err := c.cmds.SetImageTexture(unit, raw, b.level); err != nil {
			return err
		}
	}
	for unit, b := range c.uniforms {
		if b == nil || !p.Uses(backend.UnitUniform, unit) {
			continue
		}
		raw, err := c.bufferHandle(b)
		if err != nil {
			return err
		}
		if err := c.cmds.SetUniformBuffer(unit, raw); err != nil {
			return err
		}
	}
	for unit, b := range c.storage {
		if b == nil || !p.Uses(backend.UnitStorage, unit) {
			continue
		}
		raw, err := c.bufferHandle(b)
		if err != nil {
			return err
		}
		if err := c.cmds.SetStorageBuffer(unit, raw); err != nil {
			return err
		}
	}
	return nil
}

// Program returns the bound program.
func (c *Context) Program() *Program { return c.program }

// SetRasterizerState binds s. Nil binds the default rasterizer state.
func (c *Context) SetRasterizerState(s *RasterizerState) error {
	if s == nil {
		s = c.defaults.raster
	} else if err := c.owns("rasterizer state", s.ctx); err != nil {
		return err
	}
	if s == c.raster {
		return nil
	}
	if err := c.cmds.SetRasterizerState(s.raw); err != nil {
		return err
	}
	c.raster = s
	return nil
}

// SetBlendState binds s. Nil binds the default blend state.
func (c *Context) SetBlendState(s *BlendState) error {
	if s == nil {
		s = c.defaults.blend
	} else if err := c.owns("blend state", s.ctx); err != nil {
		return err
	}
	if s == c.blend {
		return nil
	}
	if err := c.cmds.SetBlendState(s.raw); err != nil {
		return err
	}
	c.blend = s
	return nil
}

// SetDepthStencilState binds s. Nil binds the default depth-stencil state.
func (c *Context) SetDepthStencilState(s *DepthStencilState) error {
	if s == nil {
		s = c.defaults.depthStencil
	} else if err := c.owns("depth-stencil state", s.ctx); err != nil {
		return err
	}
	if s == c.depthStencil {
		return nil
	}
	if err := c.cmds.SetDepthStencilState(s.raw); err != nil {
		return err
	}
	c.depthStencil = s
	return nil
}

// RasterizerState returns the bound rasterizer state.
func (c *Context) RasterizerState() *RasterizerState { return c.raster }

// BlendState returns the bound blend state.
func (c *Context) BlendState() *BlendState { return c.blend }

// DepthStencilState returns the bound depth-stencil state.
func (c *Context) DepthStencilState() *DepthStencilState { return c.depthStencil }

// SetViewport sets the viewport of color slot 0 only.
func (c *Context) SetViewport(vp Viewport) error { return c.SetViewports(vp) }

// SetViewports sets one viewport per color slot.
func (c *Context) SetViewports(vps ...Viewport) error {
	if limit := c.dev.Limits().MaxViewports; limit > 0 && len(vps) > limit {
		return invalid("%d viewports, limit %d", len(vps), limit)
	}
	if slices.Equal(vps, c.viewports) {
		return nil
	}
	if err := c.cmds.SetViewports(vps); err != nil {
		return err
	}
	c.viewports = slices.Clone(vps)
	return nil
}

// ResetViewport restores the viewport to cover the whole render target.
func (c *Context) ResetViewport() error { return c.SetViewports() }

// Viewports returns the viewports set, nil when they cover the target.
func (c *Context) Viewports() []Viewport { return slices.Clone(c.viewports) }

// SetScissor sets the scissor rectangle of color slot 0. Scissoring
// applies only while the bound rasterizer state enables it.
func (c *Context) SetScissor(r image.Rectangle) error { return c.SetScissors(r) }

// SetScissors sets one scissor rectangle per color slot.
func (c *Context) SetScissors(rects ...image.Rectangle) error {
	if limit := c.dev.Limits().MaxViewports; limit > 0 && len(rects) > limit {
		return invalid("%d scissor rects, limit %d", len(rects), limit)
	}
	if slices.Equal(rects, c.scissors) {
		return nil
	}
	if err := c.cmds.SetScissors(rects); err != nil {
		return err
	}
	c.scissors = slices.Clone(rects)
	return nil
}

// ResetScissor removes the scissor rectangles.
func (c *Context) ResetScissor() error { return c.SetScissors() }

// Scissors returns the scissor rectangles set.
func (c *Context) Scissors() []image.Rectangle { return slices.Clone(c.scissors) }

// SetDrawBuffers enables or disables color writes per slot. Slots past
// the end of enabled stay enabled.
func (c *Context) SetDrawBuffers(enabled ...bool) error {
	if len(enabled) > backend.MaxColorTargets {
		return invalid("%d draw buffers, limit %d", len(enabled), backend.MaxColorTargets)
	}
	if slices.Equal(enabled, c.drawBuffers) {
		return nil
	}
	if err := c.cmds.SetDrawBuffers(enabled); err != nil {
		return err
	}
	c.drawBuffers = slices.Clone(enabled)
	return nil
}

// SetDrawBuffer restricts color writes to slot i.
func (c *Context) SetDrawBuffer(i int) error {
	if i < 0 || i >= backend.MaxColorTargets {
		return invalid("draw buffer %d outside [0,%d)", i, backend.MaxColorTargets)
	}
	enabled := make([]bool, i+1)
	enabled[i] = true
	return c.SetDrawBuffers(enabled...)
}

// ResetDrawBuffers enables every color slot.
func (c *Context) ResetDrawBuffers() error { return c.SetDrawBuffers() }

// SetFrameBuffer renders into write and reads back from read. A nil read
// reads from write. Use ResetFrameBuffer to return to the default
// targets.
func (c *Context) SetFrameBuffer(write, read *FrameBuffer) error {
	if read == nil {
		read = write
	}
	for _, fb := range []*FrameBuffer{write, read} {
		if fb == nil {
			continue
		}
		if fb.released {
			return released("set frame buffer", "frame buffer")
		}
		if err := c.owns("frame buffer", fb.ctx); err != nil {
			return err
		}
	}
	return c.setFrameBuffers(write, read)
}

// ResetFrameBuffer binds the default back buffer and depth-stencil target.
func (c *Context) ResetFrameBuffer() error { return c.setFrameBuffers(nil, nil) }

func (c *Context) setFrameBuffers(write, read *FrameBuffer) error {
	if write == c.write && read == c.read &&
		write.generation() == c.writeGen && read.generation() == c.readGen {
		return nil
	}
	if err := c.applyTargets(write, read); err != nil {
		if restoreErr := c.bindTargets(); restoreErr != nil {
			Logger().Warn("gfx: restoring render targets", "err", restoreErr)
		}
		return err
	}
	c.write, c.read = write, read
	return nil
}

// FrameBuffers returns the bound write and read frame buffers, nil for
// the default targets.
func (c *Context) FrameBuffers() (write, read *FrameBuffer) { return c.write, c.read }

// bindTargets binds the recorded frame buffers again, picking up
// attachment and default target changes.
func (c *Context) bindTargets() error { return c.applyTargets(c.write, c.read) }

func (c *Context) applyTargets(write, read *FrameBuffer) error {
	var colors []backend.View
	ds := c.depthView
	if c.backView != nil {
		colors = []backend.View{c.backView}
	}
	if write != nil {
		var err error
		if colors, ds, err = write.views(); err != nil {
			return err
		}
	}
	if err := c.cmds.SetRenderTargets(colors, ds); err != nil {
		return err
	}
	rv := c.backView
	if read != nil {
		v, err := read.readView()
		if err != nil {
			return err
		}
		rv = v
	}
	if err := c.cmds.SetReadTarget(rv); err != nil {
		return err
	}
	c.writeGen, c.readGen = write.generation(), read.generation()
	return nil
}

// SetPrimitivesArray binds the vertex attributes of a. Nil unbinds them.
func (c *Context) SetPrimitivesArray(a *PrimitivesArray) error {
	if a != nil {
		if a.released {
			return released("set primitives array", "primitives array")
		}
		if err := c.owns("primitives array", a.ctx); err != nil {
			return err
		}
	}
	if a == c.array {
		return nil
	}
	c.array = a
	c.layoutDirty = true
	return nil
}

// PrimitivesArray returns the bound primitives array.
func (c *Context) PrimitivesArray() *PrimitivesArray { return c.array }

// SetPrimitivesElements binds the element buffer indexed draws read.
func (c *Context) SetPrimitivesElements(b *Buffer) error {
	if b == nil {
		return c.ResetPrimitivesElements()
	}
	if err := checkBuffer(b, ElementBuffer); err != nil {
		return err
	}
	c.elements = b
	return nil
}

// ResetPrimitivesElements unbinds the element buffer.
func (c *Context) ResetPrimitivesElements() error {
	c.elements = nil
	if c.index.buf == nil {
		return nil
	}
	if err := c.cmds.SetIndexBuffer(nil, 0, 0); err != nil {
		return err
	}
	c.index = indexBinding{}
	return nil
}

// PrimitivesElements returns the bound element buffer.
func (c *Context) PrimitivesElements() *Buffer { return c.elements }
