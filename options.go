package gfx

import (
	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Option configures a Context or a Window during creation.
//
// Example:
//
//	// Headless context with a depth buffer
//	ctx, err := gfx.NewContext(gfx.WithSize(640, 480),
//		gfx.WithDepthStencil(gputypes.TextureFormatDepth24PlusStencil8))
//
//	// Window presenting without vsync through three buffers
//	win, err := gfx.NewWindow(desc, gfx.WithVSync(false), gfx.WithBufferCount(3))
type Option func(*options)

// ContextOption is an Option passed to NewContext.
type ContextOption = Option

// WindowOption is an Option passed to NewWindow.
type WindowOption = Option

// options holds the optional configuration of contexts and windows.
type options struct {
	device       backend.Device
	label        string
	width        int
	height       int
	format       gputypes.TextureFormat
	formatSet    bool
	depthStencil gputypes.TextureFormat
	bufferCount  int
	shadow       *bool // nil follows the swap chain
	vsync        bool
	pixelRatio   float64
	provider     gpucontext.WindowProvider
	events       gpucontext.EventSource
}

// defaultOptions returns the default options.
func defaultOptions() options {
	return options{
		width:       256,
		height:      256,
		format:      gputypes.TextureFormatRGBA8Unorm,
		bufferCount: 2,
		vsync:       true,
		pixelRatio:  1,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithDevice makes the context or window use dev instead of opening a
// device from the current backend. The caller keeps ownership of dev.
func WithDevice(dev backend.Device) Option {
	return func(o *options) {
		o.device = dev
	}
}

// WithLabel sets the debug label passed to the device.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// WithSize sets the size of the default render target of a headless
// context. Windows take their size from the WindowDescription.
func WithSize(width, height int) Option {
	return func(o *options) {
		o.width, o.height = width, height
	}
}

// WithFormat sets the color format of the default render target.
// Windows default to the format the backend prefers for swap chains.
func WithFormat(f gputypes.TextureFormat) Option {
	return func(o *options) {
		o.format, o.formatSet = f, true
	}
}

// WithDepthStencil requests a default depth-stencil buffer of format f,
// sized to the default render target and recreated on resize.
//
// Example:
//
//	win, err := gfx.NewWindow(desc, gfx.WithDepthStencil(gputypes.TextureFormatDepth32Float))
func WithDepthStencil(f gputypes.TextureFormat) Option {
	return func(o *options) {
		o.depthStencil = f
	}
}

// WithBufferCount sets the number of swap chain buffers.
func WithBufferCount(n int) Option {
	return func(o *options) {
		o.bufferCount = n
	}
}

// WithShadowBuffer forces the shadow copy of the back buffer used by
// Window.Update on or off. Without it the window allocates one when the
// swap chain loses its contents across presents.
func WithShadowBuffer(enabled bool) Option {
	return func(o *options) {
		o.shadow = &enabled
	}
}

// WithVSync selects whether Flip(-1) waits for vertical blank before the
// first explicit interval is set. The default is true.
func WithVSync(enabled bool) Option {
	return func(o *options) {
		o.vsync = enabled
	}
}

// WithPixelRatio sets the ratio of physical pixels to logical points.
func WithPixelRatio(ratio float64) Option {
	return func(o *options) {
		if ratio > 0 {
			o.pixelRatio = ratio
		}
	}
}

// WithWindowProvider makes the window take its initial size and pixel
// ratio from the host window.
//
// Example:
//
//	win, err := gfx.NewWindow(gfx.WindowDescription{Handle: hwnd},
//		gfx.WithWindowProvider(app), gfx.WithEventSource(app))
func WithWindowProvider(p gpucontext.WindowProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithEventSource subscribes the window to host resize events.
func WithEventSource(es gpucontext.EventSource) Option {
	return func(o *options) {
		o.events = es
	}
}
