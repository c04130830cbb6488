package gfx

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/gogpu/gfx/backend/soft"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// resizeSource records the resize callback the window registers.
type resizeSource struct {
	gpucontext.NullEventSource
	onResize func(w, h int)
}

func (s *resizeSource) OnResize(fn func(w, h int)) { s.onResize = fn }

func newTestWindow(t *testing.T, w, h int, opts ...WindowOption) (*Window, *soft.Device) {
	t.Helper()
	dev := soft.NewDevice(t.Name())
	t.Cleanup(dev.Release)
	win, err := NewWindow(WindowDescription{Width: w, Height: h}, append([]WindowOption{WithDevice(dev)}, opts...)...)
	if err != nil {
		t.Fatalf("NewWindow: %v", err)
	}
	t.Cleanup(win.Release)
	return win, dev
}

func presented(t *testing.T, win *Window) *soft.SwapChain {
	t.Helper()
	sc, ok := win.SwapChain().(*soft.SwapChain)
	if !ok {
		t.Fatalf("swap chain is %T, want *soft.SwapChain", win.SwapChain())
	}
	return sc
}

func TestWindowFlip(t *testing.T) {
	win, _ := newTestWindow(t, 8, 4)
	sc := presented(t, win)
	if win.Interval() != 1 {
		t.Errorf("Interval() = %d, want 1 with vsync", win.Interval())
	}
	if win.Shadow() == nil {
		t.Fatal("double-buffered swap chain got no shadow buffer")
	}
	if err := win.Context().Clear(gputypes.Color{R: 1, A: 1}); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	tests := []struct {
		interval int
		want     int
	}{
		{-1, 1},
		{0, 0},
		{-1, 0},
		{2, 2},
		{-1, 2},
	}
	for i, tt := range tests {
		if err := win.Flip(tt.interval); err != nil {
			t.Fatalf("Flip(%d) #%d: %v", tt.interval, i, err)
		}
		if sc.LastInterval() != tt.want {
			t.Errorf("Flip(%d) #%d presented with interval %d, want %d", tt.interval, i, sc.LastInterval(), tt.want)
		}
	}
	if sc.PresentCount() != len(tests) {
		t.Errorf("PresentCount() = %d, want %d", sc.PresentCount(), len(tests))
	}
	if err := win.Flip(-2); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("Flip(-2): err = %v, want ErrInvalidUsage", err)
	}
}

func TestWindowVSyncOff(t *testing.T) {
	win, _ := newTestWindow(t, 8, 4, WithVSync(false))
	if err := win.Flip(-1); err != nil {
		t.Fatalf("Flip: %v", err)
	}
	if got := presented(t, win).LastInterval(); got != 0 {
		t.Errorf("interval = %d, want 0 without vsync", got)
	}
}

// TestWindowUpdateComposites patches a rectangle of the shadow buffer and
// checks that only that rectangle reaches the presented image.
func TestWindowUpdateComposites(t *testing.T) {
	win, _ := newTestWindow(t, 8, 4)
	sc := presented(t, win)
	if err := win.Context().Clear(gputypes.Color{R: 1, A: 1}); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := win.Flip(0); err != nil {
		t.Fatalf("Flip: %v", err)
	}
	red := color.RGBA{R: 255, A: 255}
	if got := sc.Presented().RGBAAt(5, 3); got != red {
		t.Fatalf("presented pixel after flip = %v, want %v", got, red)
	}
	shadow, err := win.Shadow().Image(0, 0)
	if err != nil {
		t.Fatalf("shadow Image: %v", err)
	}
	if got := shadow.At(0, 0); got.R != 255 {
		t.Errorf("shadow not refreshed by Flip: %v", got)
	}

	rect := image.Rect(2, 1, 4, 3)
	green := solid(t, rect.Dx(), rect.Dy(), color.NRGBA{G: 255, A: 255})
	if err := win.Shadow().SetSubImage(0, 0, rect.Min, green); err != nil {
		t.Fatalf("SetSubImage on shadow: %v", err)
	}
	if err := win.Update(rect); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if d := sc.LastDamage(); len(d) != 1 || d[0] != rect {
		t.Errorf("LastDamage() = %v, want [%v]", d, rect)
	}
	check := func(patches map[image.Rectangle]color.RGBA) {
		t.Helper()
		img := sc.Presented()
		for y := 0; y < 4; y++ {
			for x := 0; x < 8; x++ {
				want := red
				for r, c := range patches {
					if image.Pt(x, y).In(r) {
						want = c
					}
				}
				if got := img.RGBAAt(x, y); got != want {
					t.Errorf("presented (%d,%d) = %v, want %v", x, y, got, want)
				}
			}
		}
	}
	check(map[image.Rectangle]color.RGBA{rect: {G: 255, A: 255}})

	// A second update with other shadow contents changes only its own
	// rectangle.
	rect2 := image.Rect(5, 0, 7, 2)
	blue := solid(t, rect2.Dx(), rect2.Dy(), color.NRGBA{B: 255, A: 255})
	if err := win.Shadow().SetSubImage(0, 0, rect2.Min, blue); err != nil {
		t.Fatalf("SetSubImage on shadow: %v", err)
	}
	if err := win.Update(rect2); err != nil {
		t.Fatalf("Update: %v", err)
	}
	check(map[image.Rectangle]color.RGBA{
		rect:  {G: 255, A: 255},
		rect2: {B: 255, A: 255},
	})

	// Rectangles are clipped to the window; empty ones present nothing.
	n := sc.PresentCount()
	if err := win.Update(image.Rect(20, 20, 30, 30)); err != nil {
		t.Errorf("Update outside the window: %v", err)
	}
	if sc.PresentCount() != n {
		t.Error("empty update presented a frame")
	}
}

func TestWindowShadowSelection(t *testing.T) {
	single, _ := newTestWindow(t, 4, 4, WithBufferCount(1))
	if single.Shadow() != nil {
		t.Error("single-buffered swap chain got a shadow buffer")
	}
	if err := single.Update(image.Rect(0, 0, 1, 1)); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("Update without shadow: err = %v, want ErrInvalidUsage", err)
	}
	forced, _ := newTestWindow(t, 4, 4, WithBufferCount(1), WithShadowBuffer(true))
	if forced.Shadow() == nil {
		t.Error("WithShadowBuffer(true) created no shadow buffer")
	}
	off, _ := newTestWindow(t, 4, 4, WithShadowBuffer(false))
	if off.Shadow() != nil {
		t.Error("WithShadowBuffer(false) created a shadow buffer")
	}
}

func TestWindowResize(t *testing.T) {
	win, _ := newTestWindow(t, 8, 4, WithDepthStencil(gputypes.TextureFormatDepth32Float))
	if err := win.Resize(16, 12); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if got := win.Size(); got != image.Pt(16, 12) {
		t.Errorf("Size() = %v, want (16,12)", got)
	}
	if got := win.Shadow().Size(); got != image.Pt(16, 12) {
		t.Errorf("shadow size = %v, want (16,12)", got)
	}
	if err := win.Context().ClearDepth(1); err != nil {
		t.Errorf("ClearDepth after resize: %v", err)
	}
	if err := win.Context().Clear(gputypes.Color{B: 1, A: 1}); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := win.Flip(0); err != nil {
		t.Fatalf("Flip: %v", err)
	}
	sc := presented(t, win)
	if b := sc.Presented().Bounds(); b != image.Rect(0, 0, 16, 12) {
		t.Errorf("presented bounds = %v", b)
	}
	if got := sc.Presented().RGBAAt(15, 11); got.B != 255 {
		t.Errorf("presented corner = %v, want blue", got)
	}
	if err := win.Resize(0, 4); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("Resize(0,4): err = %v, want ErrInvalidUsage", err)
	}
	if got := win.Size(); got != image.Pt(16, 12) {
		t.Errorf("failed resize changed the size to %v", got)
	}
}

func TestWindowFollowsHost(t *testing.T) {
	events := &resizeSource{}
	win, _ := newTestWindow(t, 0, 0,
		WithWindowProvider(gpucontext.NullWindowProvider{W: 10, H: 6, SF: 2}),
		WithEventSource(events))
	if got := win.Size(); got != image.Pt(20, 12) {
		t.Errorf("Size() = %v, want (20,12) from the provider", got)
	}
	if win.PixelRatio() != 2 {
		t.Errorf("PixelRatio() = %v, want 2", win.PixelRatio())
	}
	if events.onResize == nil {
		t.Fatal("window did not subscribe to resize events")
	}
	events.onResize(12, 7)
	if got := win.Size(); got != image.Pt(24, 14) {
		t.Errorf("Size() after host resize = %v, want (24,14)", got)
	}
}

func TestWindowRecreateAfterDeviceLoss(t *testing.T) {
	win, dev := newTestWindow(t, 8, 4)
	ctx := win.Context()
	dev.Lose("driver reset")
	if err := ctx.Clear(gputypes.Color{A: 1}); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Clear on lost device: err = %v, want ErrDeviceLost", err)
	}
	if err := win.Flip(0); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("Flip on lost device: err = %v, want ErrDeviceLost", err)
	}
	if err := win.Recreate(); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("Recreate of a WithDevice window: err = %v, want ErrInvalidUsage", err)
	}

	fresh := soft.NewDevice("fresh")
	t.Cleanup(fresh.Release)
	if err := win.RecreateWith(fresh); err != nil {
		t.Fatalf("RecreateWith: %v", err)
	}
	defer win.Release()
	if win.Context() != ctx {
		t.Error("Recreate replaced the Context")
	}
	if ctx.Device() != fresh {
		t.Error("context still on the lost device")
	}
	if win.Shadow() == nil {
		t.Error("shadow buffer not recreated")
	}
	if err := ctx.Clear(gputypes.Color{G: 1, A: 1}); err != nil {
		t.Fatalf("Clear after recreate: %v", err)
	}
	if err := win.Flip(-1); err != nil {
		t.Fatalf("Flip after recreate: %v", err)
	}
	if got := presented(t, win).Presented().RGBAAt(0, 0); got.G != 255 {
		t.Errorf("presented pixel = %v, want green", got)
	}
}
