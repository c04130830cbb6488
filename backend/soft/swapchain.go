package soft

import (
	"image"
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
)

// SwapChain is a headless soft swap chain. Presented frames are composited
// into an RGBA image.
type SwapChain struct {
	dev    *Device
	desc   backend.SwapChainDescriptor
	back   *Texture
	stores []*texStore // back buffer memory, rotated on Present
	cur    int

	presented    *image.RGBA
	presents     int
	lastInterval int
	lastDamage   []image.Rectangle
	handle       uintptr
	released     atomic.Bool
}

func swapChainFormat(f gputypes.TextureFormat) bool {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return true
	}
	return false
}

// CreateSwapChain creates the presentation buffers of a window. The native
// window handle is ignored.
func (d *Device) CreateSwapChain(desc *backend.SwapChainDescriptor) (backend.SwapChain, error) {
	if err := d.check("create swap chain"); err != nil {
		return nil, err
	}
	sd := *desc
	if sd.Format == gputypes.TextureFormatUndefined {
		sd.Format = gputypes.TextureFormatBGRA8Unorm
	}
	if !swapChainFormat(sd.Format) {
		return nil, backend.Errorf(Name, "create swap chain", backend.ErrCreation, "unsupported format %v", sd.Format)
	}
	if sd.BufferCount <= 0 {
		sd.BufferCount = 2
	}
	if sd.BufferCount > 3 {
		return nil, backend.Invalid("%d swap chain buffers, at most 3", sd.BufferCount)
	}
	sc := &SwapChain{dev: d, desc: sd, handle: newHandle()}
	if err := sc.allocate(sd.Width, sd.Height); err != nil {
		return nil, err
	}
	backend.Logger().Info("soft swap chain created",
		"w", sd.Width, "h", sd.Height, "buffers", sd.BufferCount, "format", sd.Format)
	return sc, nil
}

func (sc *SwapChain) allocate(w, h int) error {
	if w <= 0 || h <= 0 {
		return backend.Invalid("swap chain size %dx%d", w, h)
	}
	tex, err := sc.dev.CreateTexture(&backend.TextureDescriptor{
		Label:  "back buffer",
		Kind:   backend.Texture2D,
		Width:  w,
		Height: h,
		Format: sc.desc.Format,
		Levels: 1,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return err
	}
	back := tex.(*Texture)
	stores := []*texStore{back.store}
	for i := 1; i < sc.desc.BufferCount; i++ {
		stores = append(stores, &texStore{levels: [][]byte{make([]byte, len(back.store.levels[0]))}})
	}
	if sc.back != nil {
		sc.back.Release()
	}
	sc.back, sc.stores, sc.cur = back, stores, 0
	sc.desc.Width, sc.desc.Height = w, h
	sc.presented = image.NewRGBA(image.Rect(0, 0, w, h))
	return nil
}

// NativeHandle returns a process-unique id.
func (sc *SwapChain) NativeHandle() uintptr { return sc.handle }

// Descriptor returns the current configuration.
func (sc *SwapChain) Descriptor() *backend.SwapChainDescriptor { return &sc.desc }

// NeedsShadowBuffer reports true when more than one buffer rotates.
func (sc *SwapChain) NeedsShadowBuffer() bool { return sc.desc.BufferCount > 1 }

// BackBuffer returns the back buffer texture. The same texture is returned
// until Resize.
func (sc *SwapChain) BackBuffer() (backend.Texture, error) {
	if sc.released.Load() {
		return nil, backend.Errorf(Name, "back buffer", backend.ErrReleased, "swap chain released")
	}
	return sc.back, nil
}

// Resize reallocates the buffers. It fails while a view of the back buffer
// exists.
func (sc *SwapChain) Resize(w, h int) error {
	if err := sc.dev.check("resize swap chain"); err != nil {
		return err
	}
	if n := sc.back.views.Load(); n > 0 {
		return backend.Invalid("resize with %d views of the back buffer alive", n)
	}
	if w == sc.desc.Width && h == sc.desc.Height {
		return nil
	}
	if err := sc.allocate(w, h); err != nil {
		return err
	}
	backend.Logger().Debug("soft swap chain resized", "w", w, "h", h)
	return nil
}

// Present composites the back buffer, or only the damage rectangles of it,
// into the presented image, then advances to the next buffer.
func (sc *SwapChain) Present(interval int, damage []image.Rectangle) error {
	if err := sc.dev.check("present"); err != nil {
		return err
	}
	if sc.released.Load() {
		return backend.Errorf(Name, "present", backend.ErrReleased, "swap chain released")
	}
	if interval < 0 {
		return backend.Invalid("present interval %d", interval)
	}
	bounds := sc.presented.Rect
	rects := damage
	if rects == nil {
		rects = []image.Rectangle{bounds}
	}
	src, pitch := sc.back.slice(0, 0)
	bgra := sc.desc.Format == gputypes.TextureFormatBGRA8Unorm || sc.desc.Format == gputypes.TextureFormatBGRA8UnormSrgb
	for _, r := range rects {
		r = r.Intersect(bounds)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			in := src[y*pitch+r.Min.X*4 : y*pitch+r.Max.X*4]
			out := sc.presented.Pix[sc.presented.PixOffset(r.Min.X, y):][:len(in)]
			copy(out, in)
			if bgra {
				for i := 0; i < len(out); i += 4 {
					out[i], out[i+2] = out[i+2], out[i]
				}
			}
		}
	}
	sc.presents++
	sc.lastInterval = interval
	sc.lastDamage = append([]image.Rectangle(nil), damage...)

	if len(sc.stores) > 1 {
		sc.cur = (sc.cur + 1) % len(sc.stores)
		sc.back.store = sc.stores[sc.cur]
	}
	return nil
}

// Presented returns the image composited by the last presents.
func (sc *SwapChain) Presented() *image.RGBA { return sc.presented }

// PresentCount returns the number of successful presents.
func (sc *SwapChain) PresentCount() int { return sc.presents }

// LastInterval returns the interval of the last present.
func (sc *SwapChain) LastInterval() int { return sc.lastInterval }

// LastDamage returns the damage rectangles of the last present, nil for a
// full present.
func (sc *SwapChain) LastDamage() []image.Rectangle { return sc.lastDamage }

// Release frees the buffers.
func (sc *SwapChain) Release() {
	if sc.released.Swap(true) {
		return
	}
	sc.back.Release()
}
