package gfx

import (
	"errors"
	"image"
	"math"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
)

// WindowDescription identifies the native window a Window presents to.
type WindowDescription struct {
	// Width and Height are the back buffer size in pixels. Zero takes the
	// size from the window provider, then from WithSize.
	Width, Height int

	// Display is the platform display connection, 0 when not needed.
	Display uintptr
	// Handle is the native window handle, 0 for a headless swap chain.
	Handle uintptr

	// PixelRatio overrides the provider's scale factor when positive.
	PixelRatio float64
}

// Window owns the swap chain of a native window and the Context rendering
// into it.
//
// When the swap chain loses its contents across presents, or when
// WithShadowBuffer(true) is given, the window keeps a shadow copy of the
// back buffer. Flip refreshes the shadow from the back buffer; Update
// patches the back buffer from the shadow and presents only the patched
// rectangle.
type Window struct {
	desc     WindowDescription
	opts     options
	dev      backend.Device
	owned    bool
	sc       backend.SwapChain
	ctx      *Context
	shadow   *Texture
	interval int
	released bool
}

// NewWindow creates the swap chain of desc and its Context.
func NewWindow(desc WindowDescription, opts ...WindowOption) (*Window, error) {
	o := buildOptions(opts)
	ratio := o.pixelRatio
	if o.provider != nil {
		ratio = o.provider.ScaleFactor()
	}
	if desc.PixelRatio > 0 {
		ratio = desc.PixelRatio
	}
	if desc.Width == 0 || desc.Height == 0 {
		if o.provider != nil {
			w, h := o.provider.Size()
			desc.Width, desc.Height = scaled(w, ratio), scaled(h, ratio)
		}
		if desc.Width == 0 || desc.Height == 0 {
			desc.Width, desc.Height = o.width, o.height
		}
	}
	desc.PixelRatio = ratio
	o.pixelRatio = ratio

	w := &Window{desc: desc, opts: o, interval: 0}
	if o.vsync {
		w.interval = 1
	}
	if err := w.open(nil); err != nil {
		return nil, err
	}
	if o.events != nil {
		o.events.OnResize(w.onResize)
	}
	Logger().Info("gfx: window created", "backend", w.dev.Backend(),
		"w", desc.Width, "h", desc.Height, "shadow", w.shadow != nil)
	return w, nil
}

func scaled(v int, ratio float64) int { return int(math.Round(float64(v) * ratio)) }

// open creates the device, swap chain, context internals and shadow. dev
// overrides the device option. On failure everything created is freed.
func (w *Window) open(dev backend.Device) (err error) {
	owned := false
	if dev == nil {
		if dev, owned, err = openDevice(w.opts); err != nil {
			return err
		}
	}
	defer func() {
		if err != nil && owned {
			dev.Release()
		}
	}()
	format := gputypes.TextureFormatUndefined
	if w.opts.formatSet {
		format = w.opts.format
	}
	sc, err := dev.CreateSwapChain(&backend.SwapChainDescriptor{
		Label:       w.opts.label,
		Display:     w.desc.Display,
		Window:      w.desc.Handle,
		Width:       w.desc.Width,
		Height:      w.desc.Height,
		Format:      format,
		BufferCount: w.opts.bufferCount,
		VSync:       w.opts.vsync,
	})
	if err != nil {
		return err
	}
	if w.ctx == nil {
		w.ctx, err = newContext(dev, sc, w.opts)
	} else {
		if err = w.ctx.init(dev, sc); err != nil {
			w.ctx.releaseInternals()
		}
	}
	if err != nil {
		sc.Release()
		return err
	}
	w.dev, w.owned, w.sc = dev, owned, sc

	wantShadow := sc.NeedsShadowBuffer()
	if w.opts.shadow != nil {
		wantShadow = *w.opts.shadow
	}
	if wantShadow {
		if err = w.createShadow(); err != nil {
			w.close()
			return err
		}
	}
	return nil
}

func (w *Window) createShadow() error {
	d := w.sc.Descriptor()
	t, err := w.ctx.CreateStagingTexture(d.Width, d.Height, d.Format)
	if err != nil {
		return err
	}
	if w.shadow != nil {
		w.shadow.Release()
	}
	w.shadow = t
	return nil
}

// close frees everything open created, keeping the Context value.
func (w *Window) close() {
	if w.shadow != nil {
		w.shadow.Release()
		w.shadow = nil
	}
	if w.ctx.dev != nil {
		w.ctx.unbindLayout()
		for a := range w.ctx.arrays {
			a.layouts.Close()
		}
		w.ctx.releaseInternals()
		w.ctx.reset()
	}
	if w.sc != nil {
		w.sc.Release()
		w.sc = nil
	}
	if w.owned && w.dev != nil {
		w.dev.Release()
	}
	w.dev, w.owned = nil, false
}

// Context returns the context rendering into the window. The pointer stays
// the same across Recreate.
func (w *Window) Context() *Context { return w.ctx }

// SwapChain returns the backend swap chain.
func (w *Window) SwapChain() backend.SwapChain { return w.sc }

// Shadow returns the shadow copy of the back buffer, nil when the window
// has none.
func (w *Window) Shadow() *Texture { return w.shadow }

// Size returns the back buffer size in pixels.
func (w *Window) Size() image.Point { return w.ctx.Size() }

// PixelRatio returns the ratio of pixels to logical points.
func (w *Window) PixelRatio() float64 { return w.ctx.PixelRatio() }

// Interval returns the present interval Flip(-1) uses.
func (w *Window) Interval() int { return w.interval }

// onResize handles host resize events, given in logical points.
func (w *Window) onResize(width, height int) {
	if w.released {
		return
	}
	r := w.ctx.PixelRatio()
	if err := w.Resize(scaled(width, r), scaled(height, r)); err != nil {
		Logger().Warn("gfx: window resize failed", "w", width, "h", height, "err", err)
	}
}

// Resize resizes the back buffer to width x height pixels. The default
// targets are detached while the swap chain reallocates and bound again
// afterwards; a failed resize keeps the previous size.
func (w *Window) Resize(width, height int) error {
	if w.released {
		return released("resize", "window")
	}
	if width <= 0 || height <= 0 {
		return invalid("window size %dx%d", width, height)
	}
	if d := w.sc.Descriptor(); d.Width == width && d.Height == height {
		return nil
	}
	w.ctx.BeginResizeSwapChain()
	if err := w.sc.Resize(width, height); err != nil {
		if endErr := w.ctx.EndResizeSwapChain(); endErr != nil {
			Logger().Warn("gfx: restoring default targets", "err", endErr)
		}
		return err
	}
	if err := w.ctx.EndResizeSwapChain(); err != nil {
		return err
	}
	w.desc.Width, w.desc.Height = width, height
	if w.shadow != nil {
		if err := w.createShadow(); err != nil {
			return err
		}
	}
	Logger().Debug("gfx: window resized", "w", width, "h", height)
	return nil
}

func (w *Window) backBuffer() (backend.Texture, error) {
	if w.released {
		return nil, released("present", "window")
	}
	return w.sc.BackBuffer()
}

// Flip presents the whole back buffer. interval 0 presents immediately,
// n > 0 waits for n vertical blanks and -1 reuses the last interval, or 1
// with vsync and 0 without before any interval was given.
//
// With a shadow buffer the back buffer is copied into the shadow first.
// A returned error matching ErrDeviceLost means the window must be
// recreated.
func (w *Window) Flip(interval int) error {
	if interval < -1 {
		return invalid("present interval %d", interval)
	}
	back, err := w.backBuffer()
	if err != nil {
		return err
	}
	if interval == -1 {
		interval = w.interval
	}
	w.interval = interval
	if w.shadow != nil {
		src := backend.FullRegion(back.Descriptor(), 0)
		if err := w.ctx.cmds.CopyTexture(w.shadow.raw, TextureRegion{}, back, src); err != nil {
			return w.presentFailed(err)
		}
	}
	if err := w.ctx.Flush(); err != nil {
		return w.presentFailed(err)
	}
	return w.presentFailed(w.sc.Present(interval, nil))
}

// Update copies rect of the shadow buffer into the back buffer and
// presents only that rectangle. It requires a shadow buffer.
func (w *Window) Update(rect image.Rectangle) error {
	back, err := w.backBuffer()
	if err != nil {
		return err
	}
	if w.shadow == nil {
		return invalid("update without a shadow buffer")
	}
	rect = rect.Intersect(image.Rect(0, 0, w.desc.Width, w.desc.Height))
	if rect.Empty() {
		return nil
	}
	src := TextureRegion{
		X: rect.Min.X, Y: rect.Min.Y,
		Width: rect.Dx(), Height: rect.Dy(), Depth: 1,
	}
	dst := TextureRegion{X: rect.Min.X, Y: rect.Min.Y}
	if err := w.ctx.cmds.CopyTexture(back, dst, w.shadow.raw, src); err != nil {
		return w.presentFailed(err)
	}
	if err := w.ctx.Flush(); err != nil {
		return w.presentFailed(err)
	}
	return w.presentFailed(w.sc.Present(w.interval, []image.Rectangle{rect}))
}

func (w *Window) presentFailed(err error) error {
	if errors.Is(err, ErrDeviceLost) {
		Logger().Warn("gfx: device lost while presenting", "backend", w.dev.Backend(), "err", err)
	}
	return err
}

// Recreate rebuilds the device, swap chain and context internals after a
// device loss. The Context pointer stays valid; resources created on the
// old device must be created again.
func (w *Window) Recreate() error { return w.RecreateWith(nil) }

// RecreateWith is Recreate on dev, for windows given their device with
// WithDevice. A nil dev opens a device from the current backend.
func (w *Window) RecreateWith(dev backend.Device) error {
	if w.released {
		return released("recreate", "window")
	}
	if dev == nil && w.opts.device != nil && !w.owned {
		return invalid("window device was supplied with WithDevice, pass a new device to RecreateWith")
	}
	old := w.dev.Backend()
	w.close()
	if dev != nil {
		w.opts.device = dev
	}
	if err := w.open(dev); err != nil {
		return err
	}
	Logger().Info("gfx: window recreated", "old", old, "backend", w.dev.Backend())
	return nil
}

// Release frees the shadow, the context, the swap chain and, when the
// window opened it, the device.
func (w *Window) Release() {
	if w.released {
		return
	}
	w.close()
	w.released = true
	Logger().Info("gfx: window released")
}
