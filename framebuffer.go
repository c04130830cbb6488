package gfx

import (
	"image"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
)

// Attachment addresses the surface a frame buffer slot renders into: one
// mip level and layer of a texture, or a render buffer. The layer is the
// array slice, the cube face (6*cube+face for cube arrays) or the 3D slice.
type Attachment struct {
	Texture      *Texture
	RenderBuffer *RenderBuffer
	Level        int
	Layer        int
}

// TextureAttachment attaches level and layer of t.
func TextureAttachment(t *Texture, level, layer int) Attachment {
	return Attachment{Texture: t, Level: level, Layer: layer}
}

// RenderBufferAttachment attaches rb.
func RenderBufferAttachment(rb *RenderBuffer) Attachment {
	return Attachment{RenderBuffer: rb}
}

// IsZero reports whether the attachment is empty.
func (a Attachment) IsZero() bool { return a.Texture == nil && a.RenderBuffer == nil }

// Size returns the size of the attached surface.
func (a Attachment) Size() image.Point {
	switch {
	case a.RenderBuffer != nil:
		return a.RenderBuffer.Size()
	case a.Texture != nil:
		w, h, _ := a.Texture.LevelSize(a.Level)
		return image.Pt(w, h)
	}
	return image.Point{}
}

// Format returns the pixel format of the attached surface.
func (a Attachment) Format() gputypes.TextureFormat {
	switch {
	case a.RenderBuffer != nil:
		return a.RenderBuffer.Format()
	case a.Texture != nil:
		return a.Texture.Format()
	}
	return gputypes.TextureFormatUndefined
}

func (a Attachment) check(depth bool) error {
	switch {
	case a.Texture != nil && a.RenderBuffer != nil:
		return invalid("attachment holds both a texture and a render buffer")
	case a.Texture != nil:
		t := a.Texture
		if t.released {
			return released("attach", "texture")
		}
		if a.Level < 0 || a.Level >= t.desc.Levels {
			return invalid("attachment level %d out of range [0,%d)", a.Level, t.desc.Levels)
		}
		layers := t.desc.ArrayLayers()
		if t.desc.Kind == Texture3D {
			_, _, layers = t.desc.LevelSize(a.Level)
		}
		if a.Layer < 0 || a.Layer >= layers {
			return invalid("attachment layer %d out of range [0,%d)", a.Layer, layers)
		}
	case a.RenderBuffer != nil:
		if a.RenderBuffer.released {
			return released("attach", "render buffer")
		}
	}
	fi, ok := backend.DescribeFormat(a.Format())
	if !ok {
		return invalid("attachment format %v", a.Format())
	}
	if isDepth := fi.Depth || fi.Stencil; isDepth != depth {
		if depth {
			return invalid("format %v cannot be a depth or stencil attachment", a.Format())
		}
		return invalid("format %v cannot be a color attachment", a.Format())
	}
	return nil
}

// slot is one attachment point with its lazily created view.
type slot struct {
	att  Attachment
	view backend.View
}

func (s *slot) reset() {
	if s.view != nil {
		s.view.Release()
		s.view = nil
	}
	s.att = Attachment{}
}

func (s *slot) resolve(c *Context, depth bool) (backend.View, error) {
	if s.att.IsZero() || s.view != nil {
		return s.view, nil
	}
	target := backend.ViewTarget{Level: s.att.Level, Layer: s.att.Layer}
	if s.att.RenderBuffer != nil {
		target.RenderBuffer = s.att.RenderBuffer.raw
	} else {
		tex, err := s.att.Texture.Handle(c.dev)
		if err != nil {
			return nil, err
		}
		target.Texture = tex
	}
	var err error
	if depth {
		s.view, err = c.dev.CreateDepthStencilView(target)
	} else {
		s.view, err = c.dev.CreateRenderTargetView(target)
	}
	if err != nil {
		return nil, err
	}
	Logger().Debug("gfx: attachment view created", "depth", depth, "level", target.Level, "layer", target.Layer)
	return s.view, nil
}

// FrameBuffer is a set of render target attachments: color slots grown on
// demand plus depth, stencil and combined depth-stencil slots. Views of
// the attachments are created on first bind and kept until the slot
// changes.
type FrameBuffer struct {
	ctx          *Context
	colors       []slot
	depth        slot
	stencil      slot
	depthStencil slot
	gen          uint64
	released     bool
}

func (fb *FrameBuffer) attach(s *slot, a Attachment, depth bool) error {
	if fb.released {
		return released("attach", "frame buffer")
	}
	if !a.IsZero() {
		if err := a.check(depth); err != nil {
			return err
		}
	}
	s.reset()
	s.att = a
	return fb.changed()
}

// changed bumps the generation and rebinds the frame buffer when it is
// bound, so the backend never keeps a view of a replaced attachment.
func (fb *FrameBuffer) changed() error {
	fb.gen++
	if fb.ctx.write == fb || fb.ctx.read == fb {
		return fb.ctx.bindTargets()
	}
	return nil
}

// AttachColor replaces color slot i with a. The previous attachment of the
// slot is detached first. A zero Attachment detaches.
func (fb *FrameBuffer) AttachColor(i int, a Attachment) error {
	if i < 0 || i >= backend.MaxColorTargets {
		return invalid("color slot %d outside [0,%d)", i, backend.MaxColorTargets)
	}
	if i >= len(fb.colors) {
		if a.IsZero() {
			return nil
		}
		fb.colors = append(fb.colors, make([]slot, i+1-len(fb.colors))...)
	}
	return fb.attach(&fb.colors[i], a, false)
}

// AttachDepth replaces the depth attachment.
func (fb *FrameBuffer) AttachDepth(a Attachment) error { return fb.attach(&fb.depth, a, true) }

// AttachStencil replaces the stencil attachment.
func (fb *FrameBuffer) AttachStencil(a Attachment) error { return fb.attach(&fb.stencil, a, true) }

// AttachDepthStencil replaces the combined depth-stencil attachment. It
// takes precedence over separate depth and stencil attachments.
func (fb *FrameBuffer) AttachDepthStencil(a Attachment) error {
	return fb.attach(&fb.depthStencil, a, true)
}

// DetachColor empties color slot i.
func (fb *FrameBuffer) DetachColor(i int) error {
	if i < 0 || i >= len(fb.colors) {
		return nil
	}
	if err := fb.attach(&fb.colors[i], Attachment{}, false); err != nil {
		return err
	}
	for len(fb.colors) > 0 && fb.colors[len(fb.colors)-1].att.IsZero() {
		fb.colors = fb.colors[:len(fb.colors)-1]
	}
	return nil
}

// DetachDepth empties the depth slot.
func (fb *FrameBuffer) DetachDepth() error {
	return fb.attach(&fb.depth, Attachment{}, true)
}

// DetachStencil empties the stencil slot.
func (fb *FrameBuffer) DetachStencil() error {
	return fb.attach(&fb.stencil, Attachment{}, true)
}

// DetachDepthStencil empties the combined depth-stencil slot.
func (fb *FrameBuffer) DetachDepthStencil() error {
	return fb.attach(&fb.depthStencil, Attachment{}, true)
}

// Color returns the attachment of color slot i, zero when empty.
func (fb *FrameBuffer) Color(i int) Attachment {
	if i < 0 || i >= len(fb.colors) {
		return Attachment{}
	}
	return fb.colors[i].att
}

// ColorSlots returns one past the highest occupied color slot.
func (fb *FrameBuffer) ColorSlots() int { return len(fb.colors) }

// Depth returns the depth attachment, zero when empty.
func (fb *FrameBuffer) Depth() Attachment { return fb.depth.att }

// Stencil returns the stencil attachment, zero when empty.
func (fb *FrameBuffer) Stencil() Attachment { return fb.stencil.att }

// DepthStencil returns the combined depth-stencil attachment, zero when
// empty.
func (fb *FrameBuffer) DepthStencil() Attachment { return fb.depthStencil.att }

// Size returns the size of the first attachment found, zero when empty.
func (fb *FrameBuffer) Size() image.Point {
	for _, s := range fb.colors {
		if !s.att.IsZero() {
			return s.att.Size()
		}
	}
	for _, s := range []*slot{&fb.depthStencil, &fb.depth, &fb.stencil} {
		if !s.att.IsZero() {
			return s.att.Size()
		}
	}
	return image.Point{}
}

// generation counts attachment changes. The default targets (nil) never
// change.
func (fb *FrameBuffer) generation() uint64 {
	if fb == nil {
		return 0
	}
	return fb.gen
}

// depthSlot selects the slot bound as the backend depth-stencil target.
func (fb *FrameBuffer) depthSlot() (*slot, error) {
	switch {
	case !fb.depthStencil.att.IsZero():
		return &fb.depthStencil, nil
	case !fb.depth.att.IsZero() && !fb.stencil.att.IsZero():
		if fb.depth.att != fb.stencil.att {
			return nil, invalid("separate depth and stencil attachments must address the same surface")
		}
		return &fb.depth, nil
	case !fb.depth.att.IsZero():
		return &fb.depth, nil
	case !fb.stencil.att.IsZero():
		return &fb.stencil, nil
	}
	return nil, nil
}

// views resolves the views of every attachment.
func (fb *FrameBuffer) views() ([]backend.View, backend.View, error) {
	if fb.released {
		return nil, nil, released("bind", "frame buffer")
	}
	colors := make([]backend.View, len(fb.colors))
	for i := range fb.colors {
		v, err := fb.colors[i].resolve(fb.ctx, false)
		if err != nil {
			return nil, nil, err
		}
		colors[i] = v
	}
	ds, err := fb.depthSlot()
	if err != nil || ds == nil {
		return colors, nil, err
	}
	dv, err := ds.resolve(fb.ctx, true)
	if err != nil {
		return nil, nil, err
	}
	return colors, dv, nil
}

// colorView returns the view of color slot i.
func (fb *FrameBuffer) colorView(i int) (backend.View, error) {
	if fb.released {
		return nil, released("read", "frame buffer")
	}
	if i < 0 || i >= len(fb.colors) || fb.colors[i].att.IsZero() {
		return nil, invalid("color slot %d is empty", i)
	}
	return fb.colors[i].resolve(fb.ctx, false)
}

// readView returns the view of the first attached color slot, nil when
// there is none.
func (fb *FrameBuffer) readView() (backend.View, error) {
	for i := range fb.colors {
		if !fb.colors[i].att.IsZero() {
			return fb.colorView(i)
		}
	}
	return nil, nil
}

// Release drops every attachment and view. A bound frame buffer is
// replaced by the default targets first.
func (fb *FrameBuffer) Release() {
	if fb.released {
		return
	}
	fb.ctx.forgetFrameBuffer(fb)
	for i := range fb.colors {
		fb.colors[i].reset()
	}
	fb.colors = nil
	fb.depth.reset()
	fb.stencil.reset()
	fb.depthStencil.reset()
	fb.released = true
}
