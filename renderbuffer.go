package gfx

import (
	"image"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
)

// RenderBuffer is a render-only surface: a frame buffer can render into
// it, shaders cannot sample it.
type RenderBuffer struct {
	ctx      *Context
	raw      backend.RenderBuffer
	desc     backend.RenderBufferDescriptor
	released bool
}

// Width returns the width in pixels.
func (rb *RenderBuffer) Width() int { return rb.desc.Width }

// Height returns the height in pixels.
func (rb *RenderBuffer) Height() int { return rb.desc.Height }

// Size returns the width and height.
func (rb *RenderBuffer) Size() image.Point { return image.Pt(rb.desc.Width, rb.desc.Height) }

// Format returns the pixel format.
func (rb *RenderBuffer) Format() gputypes.TextureFormat { return rb.desc.Format }

// Samples returns the sample count.
func (rb *RenderBuffer) Samples() int { return rb.desc.Samples }

// NativeHandle returns the native object. It does not add a reference.
func (rb *RenderBuffer) NativeHandle() uintptr { return rb.raw.NativeHandle() }

// Release frees the render buffer.
func (rb *RenderBuffer) Release() {
	if rb.released {
		return
	}
	rb.released = true
	rb.raw.Release()
}
