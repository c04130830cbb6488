package wgpu

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/statecache"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

var nextHandle atomic.Uintptr

type deviceConfig struct {
	name     string
	label    string
	info     gputypes.AdapterInfo
	limits   gputypes.Limits
	pitch    uint64
	dev      hal.Device
	queue    hal.Queue
	instance hal.Instance
	owned    bool
}

// Device is a HAL device with its queue and pipeline caches.
type Device struct {
	name     string
	label    string
	info     gputypes.AdapterInfo
	limits   backend.Limits
	pitch    int
	raw      hal.Device
	queue    hal.Queue
	instance hal.Instance // nil for devices borrowed from a host
	owned    bool
	handle   uintptr

	samplers  *statecache.Cache[backend.SamplerDesc, hal.Sampler]
	pipelines *statecache.Cache[pipelineKey, hal.RenderPipeline]
	computes  *statecache.Cache[computeKey, hal.ComputePipeline]
	layouts   *statecache.Cache[layoutKey, *programLayout]

	mu       sync.Mutex
	released bool
	lost     error
	cmds     *Commands
}

func newDevice(c deviceConfig) *Device {
	pitch := int(c.pitch)
	if pitch <= 0 {
		pitch = 256
	}
	d := &Device{
		name:      c.name,
		label:     c.label,
		info:      c.info,
		limits:    convertLimits(c.limits),
		pitch:     pitch,
		raw:       c.dev,
		queue:     c.queue,
		instance:  c.instance,
		owned:     c.owned,
		handle:    nextHandle.Add(1),
		samplers:  statecache.New[backend.SamplerDesc, hal.Sampler](),
		pipelines: statecache.New[pipelineKey, hal.RenderPipeline](),
		computes:  statecache.New[computeKey, hal.ComputePipeline](),
		layouts:   statecache.New[layoutKey, *programLayout](),
	}
	d.cmds = newCommands(d)
	return d
}

func convertLimits(l gputypes.Limits) backend.Limits {
	return backend.Limits{
		MaxTextureSize:      int(l.MaxTextureDimension2D),
		MaxTextureSize3D:    int(l.MaxTextureDimension3D),
		MaxArrayLayers:      int(l.MaxTextureArrayLayers),
		MaxColorTargets:     min(int(l.MaxColorAttachments), backend.MaxColorTargets),
		MaxViewports:        1,
		MaxVertexAttributes: int(l.MaxVertexAttributes),
		MaxBufferSize:       l.MaxBufferSize,
	}
}

// Backend returns the variant name, e.g. "wgpu-vulkan".
func (d *Device) Backend() string { return d.name }

// Limits returns the limits of the adapter the device was opened on.
func (d *Device) Limits() backend.Limits { return d.limits }

// AdapterInfo describes the adapter the device was opened on.
func (d *Device) AdapterInfo() gputypes.AdapterInfo { return d.info }

// NativeHandle returns a process-unique id. HAL devices expose no handle.
func (d *Device) NativeHandle() uintptr { return d.handle }

// HalDevice returns the underlying HAL device.
func (d *Device) HalDevice() hal.Device { return d.raw }

// Commands returns the device command stream.
func (d *Device) Commands() backend.Commands { return d.cmds }

// Release waits for the GPU, destroys cached pipeline objects and, for
// devices the factory opened, the HAL device itself.
func (d *Device) Release() {
	d.mu.Lock()
	if d.released {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	backend.NotifyDeviceDestroyed(d)
	d.cmds.discard()
	for _, p := range d.pipelines.Drain() {
		d.raw.DestroyRenderPipeline(p)
	}
	for _, p := range d.computes.Drain() {
		d.raw.DestroyComputePipeline(p)
	}
	for _, l := range d.layouts.Drain() {
		l.destroy(d.raw)
	}
	for _, s := range d.samplers.Drain() {
		d.raw.DestroySampler(s)
	}
	if d.owned {
		d.raw.Destroy()
	}

	d.mu.Lock()
	d.released = true
	d.mu.Unlock()
	backend.Logger().Info("wgpu device released", "backend", d.name, "label", d.label)
}

// check returns an error when the device can no longer be used.
func (d *Device) check(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.released:
		return backend.Errorf(d.name, op, backend.ErrReleased, "device released")
	case d.lost != nil:
		return backend.NewError(d.name, op, backend.ErrDeviceLost, d.lost)
	}
	return nil
}

// CreateTexture allocates a texture. Every texture can be copied to and
// from; renderable formats can also be attached to a frame buffer.
func (d *Device) CreateTexture(desc *backend.TextureDescriptor) (backend.Texture, error) {
	const op = "create texture"
	if err := d.check(op); err != nil {
		return nil, err
	}
	resolved, err := backend.ResolveTexture(*desc, d.limits)
	if err != nil {
		return nil, err
	}
	fi, ok := backend.DescribeFormat(resolved.Format)
	if !ok {
		return nil, backend.Errorf(d.name, op, backend.ErrCreation, "unsupported format %v", resolved.Format)
	}

	usage := resolved.Usage | gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst |
		gputypes.TextureUsageTextureBinding
	if !fi.Compressed && resolved.Kind != backend.Texture3D && resolved.Kind.Dimension() != gputypes.TextureDimension1D {
		usage |= gputypes.TextureUsageRenderAttachment
	}
	layers := resolved.ArrayLayers()
	if resolved.Kind == backend.Texture3D {
		layers = resolved.Depth
	}
	raw, err := d.raw.CreateTexture(&hal.TextureDescriptor{
		Label:         resolved.Label,
		Size:          hal.Extent3D{Width: uint32(resolved.Width), Height: uint32(resolved.Height), DepthOrArrayLayers: uint32(layers)},
		MipLevelCount: uint32(resolved.Levels),
		SampleCount:   uint32(resolved.Samples),
		Dimension:     storageDimension(resolved.Kind),
		Format:        resolved.Format,
		Usage:         usage,
	})
	if err != nil {
		return nil, d.fail(op, err)
	}
	backend.Logger().Debug("wgpu texture created",
		"kind", resolved.Kind, "w", resolved.Width, "h", resolved.Height, "levels", resolved.Levels)
	return newTexture(d, resolved, fi, raw), nil
}

// storageDimension is the dimension textures are allocated with. 1D arrays
// are 2D arrays of height 1 so they can have layers.
func storageDimension(k backend.TextureKind) gputypes.TextureDimension {
	if k == backend.Texture1DArray {
		return gputypes.TextureDimension2D
	}
	return k.Dimension()
}

// CreateBuffer allocates a buffer. The allocation is rounded up to a multiple
// of four bytes, the copy granularity of the HAL.
func (d *Device) CreateBuffer(desc *backend.BufferDescriptor) (backend.Buffer, error) {
	const op = "create buffer"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc.Size <= 0 {
		return nil, backend.Invalid("buffer size %d", desc.Size)
	}
	if uint64(desc.Size) > d.limits.MaxBufferSize {
		return nil, backend.Errorf(d.name, op, backend.ErrCreation,
			"size %d exceeds limit %d", desc.Size, d.limits.MaxBufferSize)
	}
	if desc.Stride < 0 || (desc.Stride > 0 && desc.Size%desc.Stride != 0) {
		return nil, backend.Invalid("buffer size %d is not a multiple of stride %d", desc.Size, desc.Stride)
	}
	size := alignUp(desc.Size, 4)
	raw, err := d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  uint64(size),
		Usage: bufferUsage(desc.Kind),
	})
	if err != nil {
		return nil, d.fail(op, err)
	}
	return &Buffer{dev: d, desc: *desc, raw: raw, alloc: size}, nil
}

func bufferUsage(k backend.BufferKind) gputypes.BufferUsage {
	u := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	switch k {
	case backend.BufferVertex:
		u |= gputypes.BufferUsageVertex
	case backend.BufferElement:
		u |= gputypes.BufferUsageIndex
	case backend.BufferUniform:
		u |= gputypes.BufferUsageUniform
	case backend.BufferStorage:
		u |= gputypes.BufferUsageStorage | gputypes.BufferUsageVertex
	}
	return u
}

// CreateRenderBuffer allocates a texture that is only ever rendered to and
// copied from.
func (d *Device) CreateRenderBuffer(desc *backend.RenderBufferDescriptor) (backend.RenderBuffer, error) {
	const op = "create render buffer"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, backend.Invalid("render buffer size %dx%d", desc.Width, desc.Height)
	}
	if desc.Width > d.limits.MaxTextureSize || desc.Height > d.limits.MaxTextureSize {
		return nil, backend.Errorf(d.name, op, backend.ErrCreation,
			"size %dx%d exceeds max texture size %d", desc.Width, desc.Height, d.limits.MaxTextureSize)
	}
	fi, ok := backend.DescribeFormat(desc.Format)
	if !ok || fi.Compressed {
		return nil, backend.Errorf(d.name, op, backend.ErrCreation, "unsupported format %v", desc.Format)
	}
	rb := &RenderBuffer{dev: d, desc: *desc, fi: fi}
	if rb.desc.Samples <= 0 {
		rb.desc.Samples = 1
	}
	raw, err := d.raw.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   uint32(rb.desc.Samples),
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return nil, d.fail(op, err)
	}
	rb.raw = raw
	return rb, nil
}

// CreateQuery reports ErrUnsupported: HAL render passes expose no
// occlusion query scopes.
func (d *Device) CreateQuery() (backend.Query, error) {
	if err := d.check("create query"); err != nil {
		return nil, err
	}
	return nil, backend.Errorf(d.name, "create query", backend.ErrUnsupported, "occlusion queries")
}

// OpenSharedTexture always fails: HAL resources belong to one device.
func (d *Device) OpenSharedTexture(handle uintptr) (backend.Texture, error) {
	return nil, backend.Errorf(d.name, "open shared texture", backend.ErrSharing,
		"handle %#x: resources cannot cross HAL devices", handle)
}

// OpenSharedBuffer always fails: HAL resources belong to one device.
func (d *Device) OpenSharedBuffer(handle uintptr) (backend.Buffer, error) {
	return nil, backend.Errorf(d.name, "open shared buffer", backend.ErrSharing,
		"handle %#x: resources cannot cross HAL devices", handle)
}

// readback submits pending work, records a copy into a mappable staging
// buffer of size bytes, waits for it and returns the staging contents.
func (d *Device) readback(op string, size int, record func(enc hal.CommandEncoder, dst hal.Buffer)) ([]byte, error) {
	if err := d.cmds.submit(); err != nil {
		return nil, err
	}
	n := uint64(alignUp(size, 4))
	staging, err := d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label: "gfx readback",
		Size:  n,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, d.fail(op, err)
	}
	defer d.raw.DestroyBuffer(staging)

	enc, err := d.raw.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: op})
	if err != nil {
		return nil, d.fail(op, err)
	}
	if err := enc.BeginEncoding(op); err != nil {
		return nil, d.fail(op, err)
	}
	record(enc, staging)
	cb, err := enc.EndEncoding()
	if err != nil {
		return nil, d.fail(op, err)
	}
	defer d.raw.FreeCommandBuffer(cb)
	if _, err := d.queue.Submit([]hal.CommandBuffer{cb}); err != nil {
		return nil, d.fail(op, err)
	}
	if err := d.raw.WaitIdle(); err != nil {
		return nil, d.fail(op, err)
	}

	m, err := d.raw.MapBuffer(staging, 0, n)
	if err != nil {
		return nil, d.fail(op, err)
	}
	out := make([]byte, size)
	copy(out, unsafe.Slice((*byte)(m.Ptr), size))
	if err := d.raw.UnmapBuffer(staging); err != nil {
		return nil, d.fail(op, err)
	}
	return out, nil
}

// readTexture downloads region of tex. Rows in the result are pitch bytes
// apart, pitch being the tight row size aligned to the device copy pitch.
func (d *Device) readTexture(op string, tex hal.Texture, fi backend.FormatInfo, region backend.TextureRegion) (data []byte, pitch int, err error) {
	pitch = alignUp(fi.RowPitch(region.Width), d.pitch)
	rows := fi.Rows(region.Height)
	data, err = d.readback(op, pitch*rows*region.Depth, func(enc hal.CommandEncoder, dst hal.Buffer) {
		enc.CopyTextureToBuffer(tex, dst, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: uint32(pitch), RowsPerImage: uint32(rows)},
			TextureBase:  imageCopy(tex, region),
			Size:         extent(region),
		}})
	})
	return data, pitch, err
}

func imageCopy(tex hal.Texture, r backend.TextureRegion) hal.ImageCopyTexture {
	return hal.ImageCopyTexture{
		Texture:  tex,
		MipLevel: uint32(r.Level),
		Origin:   hal.Origin3D{X: uint32(r.X), Y: uint32(r.Y), Z: uint32(r.Z)},
		Aspect:   gputypes.TextureAspectAll,
	}
}

func extent(r backend.TextureRegion) hal.Extent3D {
	return hal.Extent3D{Width: uint32(r.Width), Height: uint32(r.Height), DepthOrArrayLayers: uint32(r.Depth)}
}

// repack copies rows of rowBytes from src (srcPitch apart) to dst (dstPitch
// apart).
func repack(dst []byte, dstPitch int, src []byte, srcPitch, rowBytes, rows int) {
	for y := range rows {
		copy(dst[y*dstPitch:y*dstPitch+rowBytes], src[y*srcPitch:y*srcPitch+rowBytes])
	}
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}

var (
	_ backend.Device       = (*Device)(nil)
	_ backend.Commands     = (*Commands)(nil)
	_ backend.Texture      = (*Texture)(nil)
	_ backend.Buffer       = (*Buffer)(nil)
	_ backend.RenderBuffer = (*RenderBuffer)(nil)
	_ backend.View         = (*View)(nil)
	_ backend.Shader       = (*Shader)(nil)
	_ backend.InputLayout  = (*InputLayout)(nil)
	_ backend.SwapChain    = (*SwapChain)(nil)
)
