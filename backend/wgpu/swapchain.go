package wgpu

import (
	"errors"
	"image"
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// SwapChain presents through a HAL surface. Rendering goes into a proxy
// back buffer that Present copies into the acquired surface texture, so the
// back buffer keeps its contents across frames.
type SwapChain struct {
	dev     *Device
	desc    backend.SwapChainDescriptor
	surface hal.Surface
	back    *Texture
	mode    gputypes.PresentMode
	handle  uintptr

	released atomic.Bool
}

func presentMode(interval int) gputypes.PresentMode {
	if interval == 0 {
		return gputypes.PresentModeImmediate
	}
	return gputypes.PresentModeFifo
}

// CreateSwapChain creates a surface on the native window of desc. Devices
// borrowed from a host have no instance and cannot create one.
func (d *Device) CreateSwapChain(desc *backend.SwapChainDescriptor) (backend.SwapChain, error) {
	const op = "create swap chain"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if d.instance == nil {
		return nil, backend.Errorf(d.name, op, backend.ErrUnsupported, "device has no instance to create surfaces")
	}
	sd := *desc
	if sd.Width <= 0 || sd.Height <= 0 {
		return nil, backend.Invalid("swap chain size %dx%d", sd.Width, sd.Height)
	}
	if sd.Format == gputypes.TextureFormatUndefined {
		sd.Format = gputypes.TextureFormatBGRA8Unorm
	}
	if sd.BufferCount <= 0 {
		sd.BufferCount = 2
	}
	surface, err := d.instance.CreateSurface(sd.Display, sd.Window)
	if err != nil {
		return nil, d.fail(op, err)
	}
	sc := &SwapChain{dev: d, desc: sd, surface: surface, handle: nextHandle.Add(1)}
	sc.mode = gputypes.PresentModeImmediate
	if sd.VSync {
		sc.mode = gputypes.PresentModeFifo
	}
	if err := sc.configure(sd.Width, sd.Height); err != nil {
		surface.Destroy()
		return nil, err
	}
	backend.Logger().Info("wgpu swap chain created",
		"backend", d.name, "w", sd.Width, "h", sd.Height, "format", sd.Format, "mode", sc.mode)
	return sc, nil
}

// configure (re)configures the surface and allocates a matching back buffer.
func (sc *SwapChain) configure(w, h int) error {
	err := sc.surface.Configure(sc.dev.raw, &hal.SurfaceConfiguration{
		Width:       uint32(w),
		Height:      uint32(h),
		Format:      sc.desc.Format,
		Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst,
		PresentMode: sc.mode,
		AlphaMode:   gputypes.CompositeAlphaModeOpaque,
	})
	if err != nil {
		return sc.dev.fail("configure surface", err)
	}
	if sc.back != nil && sc.back.desc.Width == w && sc.back.desc.Height == h {
		return nil
	}
	tex, err := sc.dev.CreateTexture(&backend.TextureDescriptor{
		Label:  "back buffer",
		Kind:   backend.Texture2D,
		Width:  w,
		Height: h,
		Format: sc.desc.Format,
		Levels: 1,
		Usage:  gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return err
	}
	if sc.back != nil {
		sc.back.Release()
	}
	sc.back = tex.(*Texture)
	sc.desc.Width, sc.desc.Height = w, h
	return nil
}

func (sc *SwapChain) NativeHandle() uintptr                    { return sc.handle }
func (sc *SwapChain) Descriptor() *backend.SwapChainDescriptor { return &sc.desc }

// NeedsShadowBuffer is false: the proxy back buffer is never swapped out.
func (sc *SwapChain) NeedsShadowBuffer() bool { return false }

func (sc *SwapChain) BackBuffer() (backend.Texture, error) {
	if sc.released.Load() {
		return nil, backend.Errorf(sc.dev.name, "back buffer", backend.ErrReleased, "swap chain released")
	}
	return sc.back, nil
}

// Resize reconfigures the surface. It fails while a view of the back buffer
// exists.
func (sc *SwapChain) Resize(w, h int) error {
	const op = "resize swap chain"
	if err := sc.dev.check(op); err != nil {
		return err
	}
	if w <= 0 || h <= 0 {
		return backend.Invalid("swap chain size %dx%d", w, h)
	}
	if n := sc.back.liveViews(); n > 0 {
		return backend.Invalid("resize with %d views of the back buffer alive", n)
	}
	if w == sc.desc.Width && h == sc.desc.Height {
		return nil
	}
	if err := sc.dev.cmds.submit(); err != nil {
		return err
	}
	if err := sc.configure(w, h); err != nil {
		return err
	}
	backend.Logger().Debug("wgpu swap chain resized", "w", w, "h", h)
	return nil
}

// Present copies the back buffer into the next surface texture and queues
// it. interval 0 switches the surface to immediate mode, any other value to
// FIFO; the HAL has no way to skip more than one blank.
func (sc *SwapChain) Present(interval int, damage []image.Rectangle) error {
	const op = "present"
	if err := sc.dev.check(op); err != nil {
		return err
	}
	if sc.released.Load() {
		return backend.Errorf(sc.dev.name, op, backend.ErrReleased, "swap chain released")
	}
	if interval < 0 {
		return backend.Invalid("present interval %d", interval)
	}
	if m := presentMode(interval); m != sc.mode {
		sc.mode = m
		if err := sc.configure(sc.desc.Width, sc.desc.Height); err != nil {
			return err
		}
	}
	if err := sc.dev.cmds.submit(); err != nil {
		return err
	}

	acquired, err := sc.surface.AcquireTexture(nil)
	if errors.Is(err, hal.ErrSurfaceOutdated) {
		if err = sc.configure(sc.desc.Width, sc.desc.Height); err == nil {
			acquired, err = sc.surface.AcquireTexture(nil)
		}
	}
	if err != nil {
		return sc.dev.fail(op, err)
	}

	d := sc.dev
	enc, err := d.raw.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: op})
	if err != nil {
		sc.surface.DiscardTexture(acquired.Texture)
		return d.fail(op, err)
	}
	if err := enc.BeginEncoding(op); err != nil {
		sc.surface.DiscardTexture(acquired.Texture)
		return d.fail(op, err)
	}
	full := backend.FullRegion(&sc.back.desc, 0)
	enc.CopyTextureToTexture(sc.back.raw, acquired.Texture, []hal.TextureCopy{{
		SrcBase: imageCopy(sc.back.raw, full),
		DstBase: imageCopy(acquired.Texture, full),
		Size:    extent(full),
	}})
	cb, err := enc.EndEncoding()
	if err != nil {
		sc.surface.DiscardTexture(acquired.Texture)
		return d.fail(op, err)
	}
	defer d.raw.FreeCommandBuffer(cb)
	if _, err := d.queue.Submit([]hal.CommandBuffer{cb}); err != nil {
		sc.surface.DiscardTexture(acquired.Texture)
		return d.fail(op, err)
	}
	if err := d.raw.WaitIdle(); err != nil {
		return d.fail(op, err)
	}
	if err := d.queue.Present(sc.surface, acquired.Texture, damage); err != nil {
		return d.fail(op, err)
	}
	return nil
}

// Release unconfigures and destroys the surface.
func (sc *SwapChain) Release() {
	if sc.released.Swap(true) {
		return
	}
	sc.back.Release()
	sc.surface.Unconfigure(sc.dev.raw)
	sc.surface.Destroy()
}
