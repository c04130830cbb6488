package gfx

import (
	"errors"
	"image"
	"testing"

	"github.com/gogpu/gputypes"
)

func newTarget(t *testing.T, c *Context, w, h int) *Texture {
	t.Helper()
	tex, err := c.CreateTexture2D(w, h, gputypes.TextureFormatRGBA8Unorm, 1)
	if err != nil {
		t.Fatalf("CreateTexture2D: %v", err)
	}
	return tex
}

func TestFrameBufferAttachReplaces(t *testing.T) {
	c, dev := newTestContext(t)
	a := newTarget(t, c, 16, 16)
	b := newTarget(t, c, 16, 16)
	fb := c.CreateFrameBuffer()
	defer fb.Release()

	if err := fb.AttachColor(0, TextureAttachment(a, 0, 0)); err != nil {
		t.Fatalf("AttachColor: %v", err)
	}
	if err := c.SetFrameBuffer(fb, nil); err != nil {
		t.Fatalf("SetFrameBuffer: %v", err)
	}
	colors, _ := dev.Commands().RenderTargets()
	first := colors[0]
	if first.Target().Texture != a.Backend() {
		t.Fatal("bound view does not address the attached texture")
	}

	// Replacing the slot of a bound frame buffer rebinds it at once.
	if err := fb.AttachColor(0, TextureAttachment(b, 0, 0)); err != nil {
		t.Fatalf("AttachColor: %v", err)
	}
	if fb.Color(0).Texture != b {
		t.Errorf("Color(0) = %v, want b", fb.Color(0).Texture)
	}
	colors, _ = dev.Commands().RenderTargets()
	if len(colors) != 1 || colors[0] == first || colors[0].Target().Texture != b.Backend() {
		t.Error("backend still renders into the replaced attachment")
	}

	if err := c.Clear(gputypes.Color{G: 1, A: 1}); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	pb, err := b.Image(0, 0)
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if got := pb.At(5, 5); got.G != 255 || got.R != 0 {
		t.Errorf("attached texture pixel = %v, want green", got)
	}
	pa, err := a.Image(0, 0)
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	if got := pa.At(5, 5); got.G != 0 {
		t.Errorf("detached texture was cleared: %v", got)
	}
}

func TestFrameBufferLazyViews(t *testing.T) {
	c, _ := newTestContext(t)
	fb := c.CreateFrameBuffer()
	defer fb.Release()
	if err := fb.AttachColor(1, TextureAttachment(newTarget(t, c, 8, 8), 0, 0)); err != nil {
		t.Fatalf("AttachColor: %v", err)
	}
	if fb.colors[1].view != nil {
		t.Fatal("view created before the frame buffer was bound")
	}
	if err := c.SetFrameBuffer(fb, nil); err != nil {
		t.Fatalf("SetFrameBuffer: %v", err)
	}
	v := fb.colors[1].view
	if v == nil {
		t.Fatal("view not created on bind")
	}
	if err := c.ResetFrameBuffer(); err != nil {
		t.Fatalf("ResetFrameBuffer: %v", err)
	}
	if err := c.SetFrameBuffer(fb, nil); err != nil {
		t.Fatalf("SetFrameBuffer: %v", err)
	}
	if fb.colors[1].view != v {
		t.Error("view recreated although the attachment did not change")
	}
}

func TestFrameBufferDetach(t *testing.T) {
	c, _ := newTestContext(t)
	fb := c.CreateFrameBuffer()
	defer fb.Release()
	tex := newTarget(t, c, 8, 8)
	for _, i := range []int{0, 2} {
		if err := fb.AttachColor(i, TextureAttachment(tex, 0, 0)); err != nil {
			t.Fatalf("AttachColor(%d): %v", i, err)
		}
	}
	if fb.ColorSlots() != 3 {
		t.Fatalf("ColorSlots() = %d, want 3", fb.ColorSlots())
	}
	if err := fb.DetachColor(2); err != nil {
		t.Fatalf("DetachColor: %v", err)
	}
	if fb.ColorSlots() != 1 {
		t.Errorf("ColorSlots() after detaching the last slot = %d, want 1", fb.ColorSlots())
	}
	if err := fb.DetachColor(7); err != nil {
		t.Errorf("DetachColor of an empty slot: %v", err)
	}
	if fb.Size() != image.Pt(8, 8) {
		t.Errorf("Size() = %v, want (8,8)", fb.Size())
	}
	if err := fb.AttachColor(8, TextureAttachment(tex, 0, 0)); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("AttachColor(8): err = %v, want ErrInvalidUsage", err)
	}
}

func TestFrameBufferAttachmentChecks(t *testing.T) {
	c, _ := newTestContext(t)
	fb := c.CreateFrameBuffer()
	defer fb.Release()
	color := newTarget(t, c, 8, 8)
	depth, err := c.CreateRenderBuffer(8, 8, gputypes.TextureFormatDepth24PlusStencil8, 1)
	if err != nil {
		t.Fatalf("CreateRenderBuffer: %v", err)
	}
	arr, err := c.CreateTexture2DArray(8, 8, 2, gputypes.TextureFormatRGBA8Unorm, 1)
	if err != nil {
		t.Fatalf("CreateTexture2DArray: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"depth in color slot", func() error { return fb.AttachColor(0, RenderBufferAttachment(depth)) }},
		{"color in depth slot", func() error { return fb.AttachDepth(TextureAttachment(color, 0, 0)) }},
		{"missing level", func() error { return fb.AttachColor(0, TextureAttachment(color, 1, 0)) }},
		{"missing layer", func() error { return fb.AttachColor(0, TextureAttachment(arr, 0, 2)) }},
		{"both surfaces", func() error {
			return fb.AttachColor(0, Attachment{Texture: color, RenderBuffer: depth})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrInvalidUsage) {
				t.Errorf("err = %v, want ErrInvalidUsage", err)
			}
		})
	}

	if err := fb.AttachColor(0, TextureAttachment(arr, 0, 1)); err != nil {
		t.Errorf("attach array layer: %v", err)
	}
	if err := fb.AttachDepthStencil(RenderBufferAttachment(depth)); err != nil {
		t.Errorf("AttachDepthStencil: %v", err)
	}
	if err := c.SetFrameBuffer(fb, nil); err != nil {
		t.Fatalf("SetFrameBuffer: %v", err)
	}
	if err := c.ClearDepthStencil(0.5, 1); err != nil {
		t.Errorf("ClearDepthStencil on frame buffer: %v", err)
	}
}

func TestSeparateReadFrameBuffer(t *testing.T) {
	c, _ := newTestContext(t)
	src := newTarget(t, c, 8, 8)
	dst := newTarget(t, c, 8, 8)
	write := c.CreateFrameBuffer()
	read := c.CreateFrameBuffer()
	defer write.Release()
	defer read.Release()
	if err := write.AttachColor(0, TextureAttachment(dst, 0, 0)); err != nil {
		t.Fatalf("AttachColor: %v", err)
	}
	if err := read.AttachColor(0, TextureAttachment(src, 0, 0)); err != nil {
		t.Fatalf("AttachColor: %v", err)
	}
	if err := c.SetFrameBuffer(read, nil); err != nil {
		t.Fatalf("SetFrameBuffer(read): %v", err)
	}
	if err := c.Clear(gputypes.Color{B: 1, A: 1}); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := c.SetFrameBuffer(write, read); err != nil {
		t.Fatalf("SetFrameBuffer(write, read): %v", err)
	}
	if err := c.Clear(gputypes.Color{R: 1, A: 1}); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	pb, err := c.PixelData(image.Rect(0, 0, 1, 1), gputypes.TextureFormatUndefined)
	if err != nil {
		t.Fatalf("PixelData: %v", err)
	}
	if got := pb.At(0, 0); got.B != 255 || got.R != 0 {
		t.Errorf("read pixel = %v, want the blue read target", got)
	}
	pw, err := c.PixelDataFrom(write, 0, image.Rect(0, 0, 1, 1), gputypes.TextureFormatUndefined)
	if err != nil {
		t.Fatalf("PixelDataFrom: %v", err)
	}
	if got := pw.At(0, 0); got.R != 255 {
		t.Errorf("PixelDataFrom pixel = %v, want red", got)
	}
	if w, r := c.FrameBuffers(); w != write || r != read {
		t.Error("PixelDataFrom changed the bound frame buffers")
	}

	// Releasing the bound frame buffer restores the default targets.
	write.Release()
	if w, r := c.FrameBuffers(); w != nil || r != nil {
		t.Errorf("FrameBuffers() after release = %v, %v; want defaults", w, r)
	}
}
