package gfx

import (
	"testing"

	"github.com/gogpu/gputypes"
)

func TestDefaultOptions(t *testing.T) {
	o := buildOptions(nil)
	if o.width != 256 || o.height != 256 {
		t.Errorf("size = %dx%d, want 256x256", o.width, o.height)
	}
	if o.format != gputypes.TextureFormatRGBA8Unorm || o.formatSet {
		t.Errorf("format = %v (set %v), want RGBA8Unorm unset", o.format, o.formatSet)
	}
	if o.bufferCount != 2 || !o.vsync || o.pixelRatio != 1 || o.shadow != nil {
		t.Errorf("buffers %d vsync %v ratio %v shadow %v", o.bufferCount, o.vsync, o.pixelRatio, o.shadow)
	}
}

func TestOptionsApplyInOrder(t *testing.T) {
	o := buildOptions([]Option{
		WithSize(10, 20),
		WithFormat(gputypes.TextureFormatBGRA8Unorm),
		WithPixelRatio(2),
		WithPixelRatio(0), // ignored
		WithShadowBuffer(false),
		WithVSync(false),
		WithSize(30, 40),
		WithLabel("main"),
	})
	if o.width != 30 || o.height != 40 {
		t.Errorf("size = %dx%d, want the later 30x40", o.width, o.height)
	}
	if !o.formatSet || o.format != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("format = %v (set %v)", o.format, o.formatSet)
	}
	if o.pixelRatio != 2 {
		t.Errorf("pixelRatio = %v, want 2", o.pixelRatio)
	}
	if o.shadow == nil || *o.shadow {
		t.Error("WithShadowBuffer(false) not recorded")
	}
	if o.vsync || o.label != "main" {
		t.Errorf("vsync %v label %q", o.vsync, o.label)
	}
}

func TestContextFormatOption(t *testing.T) {
	c, _ := newTestContext(t, WithFormat(gputypes.TextureFormatBGRA8Unorm), WithPixelRatio(1.5))
	back, err := c.DefaultTarget()
	if err != nil {
		t.Fatalf("DefaultTarget: %v", err)
	}
	if f := back.Descriptor().Format; f != gputypes.TextureFormatBGRA8Unorm {
		t.Errorf("default target format = %v, want BGRA8Unorm", f)
	}
	if c.PixelRatio() != 1.5 {
		t.Errorf("PixelRatio() = %v, want 1.5", c.PixelRatio())
	}
}
