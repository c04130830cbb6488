package soft

import (
	"encoding/binary"
	"math"
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
)

// RenderBuffer is a soft render-only surface.
type RenderBuffer struct {
	dev      *Device
	desc     backend.RenderBufferDescriptor
	fi       backend.FormatInfo
	pix      []byte
	handle   uintptr
	views    atomic.Int32
	released atomic.Bool
}

// NativeHandle returns a process-unique id.
func (rb *RenderBuffer) NativeHandle() uintptr { return rb.handle }

// Descriptor returns the creation descriptor.
func (rb *RenderBuffer) Descriptor() *backend.RenderBufferDescriptor { return &rb.desc }

// Release frees the render buffer.
func (rb *RenderBuffer) Release() { rb.released.Store(true) }

// surface is a 2D pixel rectangle a view addresses.
type surface struct {
	pix    []byte
	pitch  int
	w, h   int
	format gputypes.TextureFormat
	fi     backend.FormatInfo
}

func (s surface) offset(x, y int) int { return y*s.pitch + x*s.fi.BlockBytes }

func surfaceOf(t backend.ViewTarget) (surface, error) {
	switch {
	case t.RenderBuffer != nil && t.Texture != nil:
		return surface{}, backend.Invalid("view target sets both a texture and a render buffer")
	case t.RenderBuffer != nil:
		rb, ok := t.RenderBuffer.(*RenderBuffer)
		if !ok {
			return surface{}, backend.Invalid("render buffer %T does not belong to the soft backend", t.RenderBuffer)
		}
		if rb.released.Load() {
			return surface{}, backend.Errorf(Name, "view", backend.ErrReleased, "render buffer released")
		}
		return surface{
			pix: rb.pix, pitch: rb.fi.RowPitch(rb.desc.Width),
			w: rb.desc.Width, h: rb.desc.Height, format: rb.desc.Format, fi: rb.fi,
		}, nil
	case t.Texture != nil:
		tex, ok := t.Texture.(*Texture)
		if !ok {
			return surface{}, backend.Invalid("texture %T does not belong to the soft backend", t.Texture)
		}
		if tex.released.Load() {
			return surface{}, backend.Errorf(Name, "view", backend.ErrReleased, "texture released")
		}
		if tex.fi.Compressed {
			return surface{}, backend.Invalid("compressed texture cannot be a render target")
		}
		if t.Level < 0 || t.Level >= tex.desc.Levels {
			return surface{}, backend.Invalid("view level %d out of range [0,%d)", t.Level, tex.desc.Levels)
		}
		if t.Layer < 0 || t.Layer >= tex.slices(t.Level) {
			return surface{}, backend.Invalid("view layer %d out of range [0,%d)", t.Layer, tex.slices(t.Level))
		}
		pix, pitch := tex.slice(t.Level, t.Layer)
		w, h, _ := tex.desc.LevelSize(t.Level)
		return surface{pix: pix, pitch: pitch, w: w, h: h, format: tex.desc.Format, fi: tex.fi}, nil
	}
	return surface{}, backend.Invalid("empty view target")
}

// View is a render target or depth-stencil view.
type View struct {
	dev      *Device
	target   backend.ViewTarget
	surf     surface
	depth    bool
	handle   uintptr
	released atomic.Bool
}

// NativeHandle returns a process-unique id.
func (v *View) NativeHandle() uintptr { return v.handle }

// Target returns what the view addresses.
func (v *View) Target() backend.ViewTarget { return v.target }

// Width returns the view width in pixels.
func (v *View) Width() int { return v.surf.w }

// Height returns the view height in pixels.
func (v *View) Height() int { return v.surf.h }

// Format returns the pixel format.
func (v *View) Format() gputypes.TextureFormat { return v.surf.format }

// pixels resolves the surface again, since swap chains rotate the memory
// behind their back buffer on every Present.
func (v *View) pixels() (surface, error) {
	if v.released.Load() {
		return surface{}, backend.Errorf(Name, "use view", backend.ErrReleased, "view released")
	}
	return surfaceOf(v.target)
}

// Release frees the view and unpins its surface.
func (v *View) Release() {
	if v.released.Swap(true) {
		return
	}
	switch {
	case v.target.Texture != nil:
		v.target.Texture.(*Texture).views.Add(-1)
	case v.target.RenderBuffer != nil:
		v.target.RenderBuffer.(*RenderBuffer).views.Add(-1)
	}
}

func (d *Device) createView(t backend.ViewTarget, depth bool) (*View, error) {
	op := "create render target view"
	if depth {
		op = "create depth-stencil view"
	}
	if err := d.check(op); err != nil {
		return nil, err
	}
	s, err := surfaceOf(t)
	if err != nil {
		return nil, err
	}
	if isDepth := s.fi.Depth || s.fi.Stencil; isDepth != depth {
		return nil, backend.Invalid("%s: format %v does not fit the view kind", op, s.format)
	}
	v := &View{dev: d, target: t, surf: s, depth: depth, handle: newHandle()}
	switch {
	case t.Texture != nil:
		t.Texture.(*Texture).views.Add(1)
	case t.RenderBuffer != nil:
		t.RenderBuffer.(*RenderBuffer).views.Add(1)
	}
	return v, nil
}

// CreateRenderTargetView creates a color view.
func (d *Device) CreateRenderTargetView(t backend.ViewTarget) (backend.View, error) {
	return d.createView(t, false)
}

// CreateDepthStencilView creates a depth-stencil view.
func (d *Device) CreateDepthStencilView(t backend.ViewTarget) (backend.View, error) {
	return d.createView(t, true)
}

func unorm8(v float64) byte {
	return byte(math.Round(max(0, min(1, v)) * 255))
}

// encodeColor returns the pixel value of c in format f.
func encodeColor(f gputypes.TextureFormat, c gputypes.Color) ([]byte, error) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		return []byte{unorm8(c.R), unorm8(c.G), unorm8(c.B), unorm8(c.A)}, nil
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return []byte{unorm8(c.B), unorm8(c.G), unorm8(c.R), unorm8(c.A)}, nil
	case gputypes.TextureFormatR8Unorm:
		return []byte{unorm8(c.R)}, nil
	case gputypes.TextureFormatRG8Unorm:
		return []byte{unorm8(c.R), unorm8(c.G)}, nil
	case gputypes.TextureFormatR32Float:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(float32(c.R))), nil
	case gputypes.TextureFormatRGBA32Float:
		out := make([]byte, 0, 16)
		for _, v := range [4]float64{c.R, c.G, c.B, c.A} {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(v)))
		}
		return out, nil
	}
	return nil, backend.Errorf(Name, "clear", backend.ErrUnsupported, "clear of format %v", f)
}

// writeDepthStencil updates one depth-stencil texel in place.
func writeDepthStencil(f gputypes.TextureFormat, px []byte, flags backend.ClearFlags, depth float32, stencil uint8) {
	d := float64(max(0, min(1, depth)))
	setDepth := flags&backend.ClearDepth != 0
	setStencil := flags&backend.ClearStencil != 0
	switch f {
	case gputypes.TextureFormatDepth16Unorm:
		if setDepth {
			binary.LittleEndian.PutUint16(px, uint16(math.Round(d*0xffff)))
		}
	case gputypes.TextureFormatDepth24Plus:
		if setDepth {
			binary.LittleEndian.PutUint32(px, uint32(math.Round(d*0xffffff)))
		}
	case gputypes.TextureFormatDepth24PlusStencil8:
		v := binary.LittleEndian.Uint32(px)
		if setDepth {
			v = v&0xff000000 | uint32(math.Round(d*0xffffff))
		}
		if setStencil {
			v = v&0x00ffffff | uint32(stencil)<<24
		}
		binary.LittleEndian.PutUint32(px, v)
	case gputypes.TextureFormatDepth32Float:
		if setDepth {
			binary.LittleEndian.PutUint32(px, math.Float32bits(depth))
		}
	case gputypes.TextureFormatDepth32FloatStencil8:
		if setDepth {
			binary.LittleEndian.PutUint32(px, math.Float32bits(depth))
		}
		if setStencil {
			px[4] = stencil
		}
	case gputypes.TextureFormatStencil8:
		if setStencil {
			px[0] = stencil
		}
	}
}
