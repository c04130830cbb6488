package gfx

import (
	"slices"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/layoutcache"
	"github.com/gogpu/gputypes"
)

// VertexAttribute binds the vertex input at Location to data in a vertex
// buffer. Format carries the component type, count and normalization.
// Stride 0 means tightly packed.
type VertexAttribute struct {
	Location    uint32
	Buffer      *Buffer
	Format      gputypes.VertexFormat
	Offset      uint64
	Stride      uint64
	PerInstance bool
}

// PrimitivesArray is a set of vertex attributes. The input layout derived
// from it is built once per program it is drawn with and rebuilt after
// the attributes change.
type PrimitivesArray struct {
	ctx      *Context
	attrs    []VertexAttribute
	layouts  *layoutcache.Cache[*Program, backend.InputLayout]
	released bool
}

func newPrimitivesArray(c *Context) *PrimitivesArray {
	return &PrimitivesArray{
		ctx:     c,
		layouts: layoutcache.New[*Program](backend.InputLayout.Release),
	}
}

func (a *PrimitivesArray) checkAttribute(attr VertexAttribute) error {
	switch {
	case a.released:
		return released("set attribute", "primitives array")
	case attr.Buffer == nil:
		return invalid("vertex attribute at location %d has no buffer", attr.Location)
	case attr.Buffer.released:
		return released("set attribute", "buffer")
	case attr.Buffer.Kind() != VertexBuffer:
		return invalid("vertex attribute at location %d uses a %s buffer", attr.Location, attr.Buffer.Kind())
	case attr.Format == gputypes.VertexFormatUndefined:
		return invalid("vertex attribute at location %d has no format", attr.Location)
	}
	if limit := a.ctx.dev.Limits().MaxVertexAttributes; limit > 0 && int(attr.Location) >= limit {
		return invalid("vertex attribute location %d, limit %d", attr.Location, limit)
	}
	return nil
}

// SetAttribute installs attr, replacing any attribute at the same
// location.
func (a *PrimitivesArray) SetAttribute(attr VertexAttribute) error {
	if err := a.checkAttribute(attr); err != nil {
		return err
	}
	i := slices.IndexFunc(a.attrs, func(v VertexAttribute) bool { return v.Location == attr.Location })
	if i >= 0 {
		if a.attrs[i] == attr {
			return nil
		}
		a.attrs[i] = attr
	} else {
		a.attrs = append(a.attrs, attr)
	}
	a.changed()
	return nil
}

// SetAttributes replaces every attribute.
func (a *PrimitivesArray) SetAttributes(attrs ...VertexAttribute) error {
	for _, attr := range attrs {
		if err := a.checkAttribute(attr); err != nil {
			return err
		}
	}
	a.attrs = append(a.attrs[:0:0], attrs...)
	a.changed()
	return nil
}

// RemoveAttribute drops the attribute at location.
func (a *PrimitivesArray) RemoveAttribute(location uint32) {
	n := len(a.attrs)
	a.attrs = slices.DeleteFunc(a.attrs, func(v VertexAttribute) bool { return v.Location == location })
	if len(a.attrs) != n {
		a.changed()
	}
}

// Attribute returns the attribute at location.
func (a *PrimitivesArray) Attribute(location uint32) (VertexAttribute, bool) {
	for _, v := range a.attrs {
		if v.Location == location {
			return v, true
		}
	}
	return VertexAttribute{}, false
}

// Attributes returns a copy of the attributes.
func (a *PrimitivesArray) Attributes() []VertexAttribute { return slices.Clone(a.attrs) }

func (a *PrimitivesArray) changed() {
	if a.ctx.array == a {
		a.ctx.unbindLayout()
	}
	a.layouts.Invalidate()
}

// dropBuffer removes every attribute reading b.
func (a *PrimitivesArray) dropBuffer(b *Buffer) {
	n := len(a.attrs)
	a.attrs = slices.DeleteFunc(a.attrs, func(v VertexAttribute) bool { return v.Buffer == b })
	if len(a.attrs) != n {
		a.changed()
	}
}

// layout returns the input layout of the array for p.
func (a *PrimitivesArray) layout(p *Program) (backend.InputLayout, error) {
	return a.layouts.Get(p, func(p *Program) (backend.InputLayout, error) {
		attrs := make([]backend.VertexAttribute, 0, len(a.attrs))
		for _, v := range a.attrs {
			buf, err := v.Buffer.Handle(a.ctx.dev)
			if err != nil {
				return nil, err
			}
			step := gputypes.VertexStepModeVertex
			if v.PerInstance {
				step = gputypes.VertexStepModeInstance
			}
			attrs = append(attrs, backend.VertexAttribute{
				Location: v.Location,
				Buffer:   buf,
				Format:   v.Format,
				Offset:   v.Offset,
				Stride:   v.Stride,
				StepMode: step,
			})
		}
		l, err := a.ctx.dev.CreateInputLayout(p.info, attrs)
		if err != nil {
			return nil, err
		}
		Logger().Debug("gfx: input layout built", "attributes", len(attrs), "slots", len(l.Layout().Slots))
		return l, nil
	})
}

// LayoutBuilds returns how many input layouts the array has built.
func (a *PrimitivesArray) LayoutBuilds() int { return a.layouts.Builds() }

// Release drops the cached input layouts and unbinds the array.
func (a *PrimitivesArray) Release() {
	if a.released {
		return
	}
	a.ctx.forgetArray(a)
	a.layouts.Close()
	a.attrs = nil
	a.released = true
}
