package soft

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
)

// Name is the registered backend name.
const Name = backend.NameSoft

func init() {
	backend.Register(Name, func() backend.Factory { return factory{} })
}

// SetCurrent installs the soft backend as the active backend.
func SetCurrent() error { return backend.SetCurrent(Name) }

// IsCurrent reports whether the soft backend is the active backend.
func IsCurrent() bool { return backend.IsCurrent(Name) }

type factory struct{}

func (factory) Name() string { return Name }
func (factory) Load() error  { return nil }

func (factory) NewDevice(opts *backend.DeviceOptions) (backend.Device, error) {
	label := ""
	if opts != nil {
		label = opts.Label
	}
	return NewDevice(label), nil
}

// Limits reported by every soft device.
var defaultLimits = backend.Limits{
	MaxTextureSize:      16384,
	MaxTextureSize3D:    2048,
	MaxArrayLayers:      2048,
	MaxColorTargets:     backend.MaxColorTargets,
	MaxViewports:        16,
	MaxVertexAttributes: 16,
	MaxBufferSize:       1 << 30,
}

var nextHandle atomic.Uintptr

func newHandle() uintptr { return nextHandle.Add(1) }

// Stats counts objects a device created and work it recorded.
type Stats struct {
	Textures           int
	Buffers            int
	InputLayouts       int
	RasterizerStates   int
	BlendStates        int
	DepthStencilStates int
	Draws              int
	Dispatches         int
	Flushes            int
}

// Device is a soft backend device.
type Device struct {
	label  string
	handle uintptr
	limits backend.Limits

	mu       sync.Mutex
	released bool
	lost     error
	stats    Stats
	draws    []DrawRecord
	cmds     *Commands
}

// NewDevice opens a soft device. It never fails.
func NewDevice(label string) *Device {
	d := &Device{label: label, handle: newHandle(), limits: defaultLimits}
	d.cmds = newCommands(d)
	backend.Logger().Info("soft device created", "label", label)
	return d
}

// Backend returns "soft".
func (d *Device) Backend() string { return Name }

// Limits returns the device limits.
func (d *Device) Limits() backend.Limits { return d.limits }

// SetLimits overrides the reported limits. Tests use it to exercise limit
// checks with small sizes.
func (d *Device) SetLimits(l backend.Limits) { d.limits = l }

// NativeHandle returns a process-unique id.
func (d *Device) NativeHandle() uintptr { return d.handle }

// Commands returns the device command stream.
func (d *Device) Commands() backend.Commands { return d.cmds }

// Stats returns a snapshot of the device counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Draws returns the draws recorded since the device was created or
// ResetDraws was called.
func (d *Device) Draws() []DrawRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DrawRecord(nil), d.draws...)
}

// ResetDraws forgets recorded draws.
func (d *Device) ResetDraws() {
	d.mu.Lock()
	d.draws = nil
	d.mu.Unlock()
}

// Lose simulates device loss. Every later operation that talks to the
// device fails with backend.ErrDeviceLost carrying reason.
func (d *Device) Lose(reason string) {
	d.mu.Lock()
	d.lost = errors.New(reason)
	d.mu.Unlock()
	backend.Logger().Warn("soft device lost", "label", d.label, "reason", reason)
}

// Released reports whether Release was called.
func (d *Device) Released() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Release destroys the device after notifying shared resources.
func (d *Device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	backend.NotifyDeviceDestroyed(d)

	d.mu.Lock()
	d.released = true
	d.draws = nil
	d.mu.Unlock()
	backend.Logger().Info("soft device released", "label", d.label)
}

// check returns an error when the device can no longer be used.
func (d *Device) check(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.released:
		return backend.Errorf(Name, op, backend.ErrReleased, "device released")
	case d.lost != nil:
		return backend.NewError(Name, op, backend.ErrDeviceLost, d.lost)
	}
	return nil
}

func (d *Device) count(f func(*Stats)) {
	d.mu.Lock()
	f(&d.stats)
	d.mu.Unlock()
}

// CreateTexture allocates a texture.
func (d *Device) CreateTexture(desc *backend.TextureDescriptor) (backend.Texture, error) {
	if err := d.check("create texture"); err != nil {
		return nil, err
	}
	resolved, err := backend.ResolveTexture(*desc, d.limits)
	if err != nil {
		return nil, err
	}
	fi, ok := backend.DescribeFormat(resolved.Format)
	if !ok {
		return nil, backend.Errorf(Name, "create texture", backend.ErrCreation, "unsupported format %v", resolved.Format)
	}
	t := newTexture(d, resolved, fi)
	d.count(func(s *Stats) { s.Textures++ })
	backend.Logger().Debug("soft texture created",
		"kind", resolved.Kind, "w", resolved.Width, "h", resolved.Height, "levels", resolved.Levels)
	return t, nil
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc *backend.BufferDescriptor) (backend.Buffer, error) {
	if err := d.check("create buffer"); err != nil {
		return nil, err
	}
	if desc.Size <= 0 {
		return nil, backend.Invalid("buffer size %d", desc.Size)
	}
	if uint64(desc.Size) > d.limits.MaxBufferSize {
		return nil, backend.Errorf(Name, "create buffer", backend.ErrCreation,
			"size %d exceeds limit %d", desc.Size, d.limits.MaxBufferSize)
	}
	if desc.Stride < 0 || (desc.Stride > 0 && desc.Size%desc.Stride != 0) {
		return nil, backend.Invalid("buffer size %d is not a multiple of stride %d", desc.Size, desc.Stride)
	}
	b := &Buffer{dev: d, desc: *desc, store: &bufStore{data: make([]byte, desc.Size)}, handle: newHandle()}
	d.count(func(s *Stats) { s.Buffers++ })
	return b, nil
}

// CreateRenderBuffer allocates a render-only surface.
func (d *Device) CreateRenderBuffer(desc *backend.RenderBufferDescriptor) (backend.RenderBuffer, error) {
	if err := d.check("create render buffer"); err != nil {
		return nil, err
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, backend.Invalid("render buffer size %dx%d", desc.Width, desc.Height)
	}
	if desc.Width > d.limits.MaxTextureSize || desc.Height > d.limits.MaxTextureSize {
		return nil, backend.Errorf(Name, "create render buffer", backend.ErrCreation,
			"size %dx%d exceeds max texture size %d", desc.Width, desc.Height, d.limits.MaxTextureSize)
	}
	fi, ok := backend.DescribeFormat(desc.Format)
	if !ok || fi.Compressed {
		return nil, backend.Errorf(Name, "create render buffer", backend.ErrCreation, "unsupported format %v", desc.Format)
	}
	rb := &RenderBuffer{dev: d, desc: *desc, fi: fi, handle: newHandle()}
	if rb.desc.Samples <= 0 {
		rb.desc.Samples = 1
	}
	rb.pix = make([]byte, fi.ImageSize(desc.Width, desc.Height, 1))
	return rb, nil
}

// CreateQuery creates an occlusion query.
func (d *Device) CreateQuery() (backend.Query, error) {
	if err := d.check("create query"); err != nil {
		return nil, err
	}
	return &Query{dev: d, handle: newHandle()}, nil
}

var (
	_ backend.Device       = (*Device)(nil)
	_ backend.Commands     = (*Commands)(nil)
	_ backend.Texture      = (*Texture)(nil)
	_ backend.Shareable    = (*Texture)(nil)
	_ backend.Buffer       = (*Buffer)(nil)
	_ backend.Shareable    = (*Buffer)(nil)
	_ backend.RenderBuffer = (*RenderBuffer)(nil)
	_ backend.View         = (*View)(nil)
	_ backend.Shader       = (*Shader)(nil)
	_ backend.InputLayout  = (*InputLayout)(nil)
	_ backend.Query        = (*Query)(nil)
	_ backend.SwapChain    = (*SwapChain)(nil)
)
