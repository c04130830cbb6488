package gfx

import (
	"image"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
)

// prepareDraw validates the graphics pipeline and binds the input layout
// of the bound array for the bound program when either changed.
func (c *Context) prepareDraw(op string) error {
	switch {
	case c.resizing:
		return invalid("%s while the swap chain is resizing", op)
	case c.program == nil:
		return invalid("%s without a program", op)
	case c.program.Compute():
		return invalid("%s with a compute program", op)
	}
	if !c.layoutDirty {
		return nil
	}
	var layout backend.InputLayout
	if len(c.program.info.Inputs) > 0 {
		if c.array == nil {
			return invalid("%s: program reads %d vertex inputs but no primitives array is bound",
				op, len(c.program.info.Inputs))
		}
		l, err := c.array.layout(c.program)
		if err != nil {
			return err
		}
		layout = l
	}
	if err := c.cmds.SetInputLayout(layout); err != nil {
		return err
	}
	c.layoutDirty = false
	return nil
}

// DrawPrimitives binds array and draws its first count vertices.
func (c *Context) DrawPrimitives(topology gputypes.PrimitiveTopology, count int, array *PrimitivesArray) error {
	if err := c.SetPrimitivesArray(array); err != nil {
		return err
	}
	return c.DrawPrimitivesArrayInstanced(topology, 0, count, 1)
}

// DrawPrimitivesArray draws count vertices of the bound array starting at
// first.
func (c *Context) DrawPrimitivesArray(topology gputypes.PrimitiveTopology, first, count int) error {
	return c.DrawPrimitivesArrayInstanced(topology, first, count, 1)
}

// DrawPrimitivesArrayInstanced draws instances copies of count vertices.
func (c *Context) DrawPrimitivesArrayInstanced(topology gputypes.PrimitiveTopology, first, count, instances int) error {
	if first < 0 || count < 0 || instances < 0 {
		return invalid("draw of %d vertices from %d, %d instances", count, first, instances)
	}
	if err := c.prepareDraw("draw"); err != nil {
		return err
	}
	return c.cmds.Draw(topology, count, instances, first, 0)
}

// DrawPrimitivesElements draws count indices of the bound element buffer
// starting at byte offset. offset must be a multiple of the index size.
func (c *Context) DrawPrimitivesElements(topology gputypes.PrimitiveTopology, count int, format gputypes.IndexFormat, offset int) error {
	return c.DrawPrimitivesElementsInstanced(topology, count, format, offset, 1)
}

// DrawPrimitivesElementsInstanced draws instances copies of count indices.
func (c *Context) DrawPrimitivesElementsInstanced(topology gputypes.PrimitiveTopology, count int, format gputypes.IndexFormat, offset, instances int) error {
	size := int(format.Size())
	switch {
	case size == 0:
		return invalid("index format %v", format)
	case offset < 0 || offset%size != 0:
		return invalid("element offset %d is not a multiple of the %d byte index size", offset, size)
	case count < 0 || instances < 0:
		return invalid("draw of %d indices, %d instances", count, instances)
	case c.elements == nil:
		return invalid("indexed draw without an element buffer")
	case c.elements.released:
		return released("draw elements", "element buffer")
	case offset > c.elements.Size() || count > (c.elements.Size()-offset)/size:
		return invalid("%d indices from byte %d outside a %d byte element buffer", count, offset, c.elements.Size())
	}
	if err := c.prepareDraw("draw elements"); err != nil {
		return err
	}
	raw, err := c.elements.Handle(c.dev)
	if err != nil {
		return err
	}
	if b := (indexBinding{buf: raw, format: format, offset: offset}); b != c.index {
		if err := c.cmds.SetIndexBuffer(raw, format, offset); err != nil {
			return err
		}
		c.index = b
	}
	return c.cmds.DrawIndexed(topology, count, instances, 0, 0, 0)
}

// Dispatch runs the bound compute program over x*y*z workgroups.
func (c *Context) Dispatch(x, y, z int) error {
	switch {
	case c.program == nil:
		return invalid("dispatch without a program")
	case !c.program.Compute():
		return invalid("dispatch with a graphics program")
	case x < 0 || y < 0 || z < 0:
		return invalid("dispatch size %dx%dx%d", x, y, z)
	}
	return c.cmds.Dispatch(x, y, z)
}

// Clear fills every bound color target with col.
func (c *Context) Clear(col gputypes.Color) error {
	colors, _ := c.cmds.RenderTargets()
	for _, v := range colors {
		if v == nil {
			continue
		}
		if err := c.cmds.ClearColor(v, col); err != nil {
			return err
		}
	}
	return nil
}

// ClearDepth resets the depth of the bound depth-stencil target.
func (c *Context) ClearDepth(depth float32) error {
	return c.clearDepthStencil(backend.ClearDepth, depth, 0)
}

// ClearStencil resets the stencil of the bound depth-stencil target.
func (c *Context) ClearStencil(stencil uint8) error {
	return c.clearDepthStencil(backend.ClearStencil, 0, stencil)
}

// ClearDepthStencil resets depth and stencil together.
func (c *Context) ClearDepthStencil(depth float32, stencil uint8) error {
	return c.clearDepthStencil(backend.ClearDepth|backend.ClearStencil, depth, stencil)
}

func (c *Context) clearDepthStencil(flags backend.ClearFlags, depth float32, stencil uint8) error {
	_, ds := c.cmds.RenderTargets()
	if ds == nil {
		return invalid("no depth-stencil target bound")
	}
	return c.cmds.ClearDepthStencil(ds, flags, depth, stencil)
}

// readView returns the view pixel reads come from.
func (c *Context) readView() (backend.View, error) {
	if c.read != nil {
		return c.read.readView()
	}
	return c.backView, nil
}

// PixelData reads rect of the read target. A format other than
// TextureFormatUndefined converts the pixels.
func (c *Context) PixelData(rect image.Rectangle, f gputypes.TextureFormat) (*PixelBuffer, error) {
	v, err := c.readView()
	if err != nil {
		return nil, err
	}
	return c.readPixels(v, rect, f)
}

// PixelDataFrom reads rect of color slot i of fb without changing the
// bound read target.
func (c *Context) PixelDataFrom(fb *FrameBuffer, i int, rect image.Rectangle, f gputypes.TextureFormat) (*PixelBuffer, error) {
	if err := c.owns("frame buffer", fb.ctx); err != nil {
		return nil, err
	}
	v, err := fb.colorView(i)
	if err != nil {
		return nil, err
	}
	prev, err := c.readView()
	if err != nil {
		return nil, err
	}
	if err := c.cmds.SetReadTarget(v); err != nil {
		return nil, err
	}
	pb, err := c.readPixels(v, rect, f)
	if restoreErr := c.cmds.SetReadTarget(prev); restoreErr != nil && err == nil {
		err = restoreErr
	}
	if err != nil {
		return nil, err
	}
	return pb, nil
}

func (c *Context) readPixels(v backend.View, rect image.Rectangle, f gputypes.TextureFormat) (*PixelBuffer, error) {
	if v == nil {
		return nil, invalid("no read target bound")
	}
	if !rect.In(image.Rect(0, 0, v.Width(), v.Height())) {
		return nil, invalid("read rect %v outside %dx%d target", rect, v.Width(), v.Height())
	}
	pb, err := NewPixelBuffer(rect.Dx(), rect.Dy(), v.Format())
	if err != nil {
		return nil, err
	}
	if err := c.cmds.ReadPixels(rect, pb.Bytes(), pb.Pitch()); err != nil {
		return nil, err
	}
	pb.SetPixelRatio(c.ratio)
	if f == gputypes.TextureFormatUndefined || f == pb.Format() {
		return pb, nil
	}
	return pb.Convert(f)
}

// CopyBuffer copies size bytes from src at srcOffset to dst at dstOffset.
// Both ranges must lie inside their buffers and must not overlap when src
// and dst are the same buffer.
func (c *Context) CopyBuffer(dst *Buffer, dstOffset int, src *Buffer, srcOffset, size int) error {
	switch {
	case dst == nil || src == nil:
		return invalid("copy buffer with a nil buffer")
	case dst.released || src.released:
		return released("copy buffer", "buffer")
	case size < 0 || dstOffset < 0 || srcOffset < 0:
		return invalid("copy of %d bytes from %d to %d", size, srcOffset, dstOffset)
	case !backend.InRange(srcOffset, size, src.Size()):
		return invalid("source range of %d bytes at %d outside %d bytes", size, srcOffset, src.Size())
	case !backend.InRange(dstOffset, size, dst.Size()):
		return invalid("destination range of %d bytes at %d outside %d bytes", size, dstOffset, dst.Size())
	case src == dst && srcOffset < dstOffset+size && dstOffset < srcOffset+size:
		return invalid("overlapping copy within one buffer")
	}
	d, err := dst.Handle(c.dev)
	if err != nil {
		return err
	}
	s, err := src.Handle(c.dev)
	if err != nil {
		return err
	}
	return c.cmds.CopyBuffer(d, dstOffset, s, srcOffset, size)
}

// CopyTexture copies srcRegion of src into dst with its origin at dstAt.
// The size fields of dstAt are ignored.
func (c *Context) CopyTexture(dst *Texture, dstAt TextureRegion, src *Texture, srcRegion TextureRegion) error {
	switch {
	case dst == nil || src == nil:
		return invalid("copy texture with a nil texture")
	case dst.released || src.released:
		return released("copy texture", "texture")
	case dst.Format() != src.Format():
		return invalid("copy from %v to %v", src.Format(), dst.Format())
	}
	if err := srcRegion.Within(&src.desc); err != nil {
		return err
	}
	dstAt.Width, dstAt.Height, dstAt.Depth = srcRegion.Width, srcRegion.Height, srcRegion.Depth
	if err := dstAt.Within(&dst.desc); err != nil {
		return err
	}
	d, err := dst.Handle(c.dev)
	if err != nil {
		return err
	}
	s, err := src.Handle(c.dev)
	if err != nil {
		return err
	}
	return c.cmds.CopyTexture(d, dstAt, s, srcRegion)
}

// CopyTextureToBuffer copies region of src into dst at dstOffset with the
// given row pitch, 0 for tightly packed rows.
func (c *Context) CopyTextureToBuffer(dst *Buffer, dstOffset, bytesPerRow int, src *Texture, region TextureRegion) error {
	switch {
	case dst == nil || src == nil:
		return invalid("copy texture to buffer with a nil resource")
	case dst.released:
		return released("copy texture to buffer", "buffer")
	case src.released:
		return released("copy texture to buffer", "texture")
	case dstOffset < 0 || dstOffset > dst.Size():
		return invalid("buffer offset %d outside %d bytes", dstOffset, dst.Size())
	}
	if err := region.Within(&src.desc); err != nil {
		return err
	}
	if _, err := backend.CheckUpload(src.Format(), region, dst.Size()-dstOffset, bytesPerRow); err != nil {
		return err
	}
	d, err := dst.Handle(c.dev)
	if err != nil {
		return err
	}
	s, err := src.Handle(c.dev)
	if err != nil {
		return err
	}
	return c.cmds.CopyTextureToBuffer(d, dstOffset, bytesPerRow, s, region)
}

// Flush submits the recorded work. It does not wait for completion.
func (c *Context) Flush() error { return c.cmds.Flush() }
