package wgpu

import (
	"sync"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Texture is a HAL texture with lazily created views for sampling and for
// image units.
type Texture struct {
	dev  *Device
	desc backend.TextureDescriptor
	fi   backend.FormatInfo
	raw  hal.Texture

	mu       sync.Mutex
	sampler  backend.SamplerDesc
	sampled  hal.TextureView
	images   map[int]hal.TextureView // by mip level
	views    int                     // live render target and depth views
	released bool
}

func newTexture(d *Device, desc backend.TextureDescriptor, fi backend.FormatInfo, raw hal.Texture) *Texture {
	return &Texture{dev: d, desc: desc, fi: fi, raw: raw, sampler: backend.DefaultSampler()}
}

func (t *Texture) NativeHandle() uintptr                  { return t.raw.NativeHandle() }
func (t *Texture) Descriptor() *backend.TextureDescriptor { return &t.desc }

// Release destroys the cached views and the texture.
func (t *Texture) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.dropViews()
	t.dev.raw.DestroyTexture(t.raw)
}

func (t *Texture) dropViews() {
	if t.sampled != nil {
		t.dev.raw.DestroyTextureView(t.sampled)
		t.sampled = nil
	}
	for level, v := range t.images {
		t.dev.raw.DestroyTextureView(v)
		delete(t.images, level)
	}
}

func (t *Texture) check(op string) error {
	t.mu.Lock()
	released := t.released
	t.mu.Unlock()
	if released {
		return backend.Errorf(t.dev.name, op, backend.ErrReleased, "texture released")
	}
	return t.dev.check(op)
}

// Write uploads data through the queue after submitting recorded commands,
// so earlier draws see the old contents.
func (t *Texture) Write(region backend.TextureRegion, data []byte, bytesPerRow int) error {
	const op = "write texture"
	if err := t.check(op); err != nil {
		return err
	}
	if err := region.Within(&t.desc); err != nil {
		return err
	}
	pitch, err := backend.CheckUpload(t.desc.Format, region, len(data), bytesPerRow)
	if err != nil {
		return err
	}
	if region.Width == 0 || region.Height == 0 || region.Depth == 0 {
		return nil
	}
	if err := t.dev.cmds.submit(); err != nil {
		return err
	}
	dst := imageCopy(t.raw, region)
	size := extent(region)
	layout := &hal.ImageDataLayout{BytesPerRow: uint32(pitch), RowsPerImage: uint32(t.fi.Rows(region.Height))}
	if err := t.dev.queue.WriteTexture(&dst, data, layout, &size); err != nil {
		return t.dev.fail(op, err)
	}
	return nil
}

// Read downloads region into dst with the given row pitch.
func (t *Texture) Read(region backend.TextureRegion, dst []byte, bytesPerRow int) error {
	const op = "read texture"
	if err := t.check(op); err != nil {
		return err
	}
	if err := region.Within(&t.desc); err != nil {
		return err
	}
	pitch, err := backend.CheckUpload(t.desc.Format, region, len(dst), bytesPerRow)
	if err != nil {
		return err
	}
	if region.Width == 0 || region.Height == 0 || region.Depth == 0 {
		return nil
	}
	data, srcPitch, err := t.dev.readTexture(op, t.raw, t.fi, region)
	if err != nil {
		return err
	}
	repack(dst, pitch, data, srcPitch, t.fi.RowPitch(region.Width), t.fi.Rows(region.Height)*region.Depth)
	return nil
}

// SetSampler replaces the sampling parameters. Samplers are shared through
// the device cache.
func (t *Texture) SetSampler(s backend.SamplerDesc) error {
	if err := t.check("set sampler"); err != nil {
		return err
	}
	t.mu.Lock()
	t.sampler = s
	t.mu.Unlock()
	return nil
}

func (t *Texture) Sampler() backend.SamplerDesc {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sampler
}

// sampledView returns the view covering every level and layer.
func (t *Texture) sampledView() (hal.TextureView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sampled != nil {
		return t.sampled, nil
	}
	aspect := gputypes.TextureAspectAll
	if t.fi.Depth {
		aspect = gputypes.TextureAspectDepthOnly
	}
	v, err := t.dev.raw.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:         t.desc.Label,
		Format:        t.desc.Format,
		Dimension:     t.desc.Kind.ViewDimension(),
		Aspect:        aspect,
		MipLevelCount: uint32(t.desc.Levels),
	})
	if err != nil {
		return nil, t.dev.fail("create texture view", err)
	}
	t.sampled = v
	return v, nil
}

// imageView returns the storage view of one mip level.
func (t *Texture) imageView(level int) (hal.TextureView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.images[level]; ok {
		return v, nil
	}
	v, err := t.dev.raw.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:         t.desc.Label,
		Format:        t.desc.Format,
		Dimension:     imageDimension(t.desc.Kind),
		Aspect:        gputypes.TextureAspectAll,
		BaseMipLevel:  uint32(level),
		MipLevelCount: 1,
	})
	if err != nil {
		return nil, t.dev.fail("create image view", err)
	}
	if t.images == nil {
		t.images = make(map[int]hal.TextureView)
	}
	t.images[level] = v
	return v, nil
}

// imageDimension is the view dimension of an image unit binding. Cube
// faces are bound as array layers.
func imageDimension(k backend.TextureKind) gputypes.TextureViewDimension {
	switch k {
	case backend.Texture1D:
		return gputypes.TextureViewDimension1D
	case backend.Texture2D:
		return gputypes.TextureViewDimension2D
	case backend.Texture3D:
		return gputypes.TextureViewDimension3D
	}
	return gputypes.TextureViewDimension2DArray
}

func (t *Texture) liveViews() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.views
}

func (t *Texture) addView(n int) {
	t.mu.Lock()
	t.views += n
	t.mu.Unlock()
}

// Buffer is a HAL buffer. The allocation is the requested size rounded up
// to four bytes.
type Buffer struct {
	dev   *Device
	desc  backend.BufferDescriptor
	raw   hal.Buffer
	alloc int

	mu       sync.Mutex
	released bool
}

func (b *Buffer) NativeHandle() uintptr                 { return b.raw.NativeHandle() }
func (b *Buffer) Descriptor() *backend.BufferDescriptor { return &b.desc }

func (b *Buffer) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return
	}
	b.released = true
	b.dev.raw.DestroyBuffer(b.raw)
}

func (b *Buffer) check(op string, offset, n int) error {
	b.mu.Lock()
	released := b.released
	b.mu.Unlock()
	if released {
		return backend.Errorf(b.dev.name, op, backend.ErrReleased, "buffer released")
	}
	if err := b.dev.check(op); err != nil {
		return err
	}
	if !backend.InRange(offset, n, b.desc.Size) {
		return backend.Invalid("%d bytes at %d outside buffer of %d bytes", n, offset, b.desc.Size)
	}
	return nil
}

// Write copies data to the buffer at offset. Writes that do not start and
// end on four-byte boundaries read the partial words back first.
func (b *Buffer) Write(offset int, data []byte) error {
	const op = "write buffer"
	if err := b.check(op, offset, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := b.dev.cmds.submit(); err != nil {
		return err
	}
	start := offset &^ 3
	end := alignUp(offset+len(data), 4)
	if start != offset || end != offset+len(data) {
		words, err := b.dev.readBuffer(op, b.raw, start, end-start)
		if err != nil {
			return err
		}
		copy(words[offset-start:], data)
		data = words
	}
	if err := b.dev.queue.WriteBuffer(b.raw, uint64(start), data); err != nil {
		return b.dev.fail(op, err)
	}
	return nil
}

// Read copies len(dst) bytes at offset. Only staging and storage buffers
// are readable.
func (b *Buffer) Read(offset int, dst []byte) error {
	const op = "read buffer"
	if b.desc.Kind != backend.BufferStaging && b.desc.Kind != backend.BufferStorage {
		return backend.Errorf(b.dev.name, op, backend.ErrUnsupported, "%s buffers are not readable", b.desc.Kind)
	}
	if err := b.check(op, offset, len(dst)); err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	start := offset &^ 3
	end := alignUp(offset+len(dst), 4)
	words, err := b.dev.readBuffer(op, b.raw, start, end-start)
	if err != nil {
		return err
	}
	copy(dst, words[offset-start:])
	return nil
}

// readBuffer downloads size bytes at offset. Both must be multiples of four.
func (d *Device) readBuffer(op string, src hal.Buffer, offset, size int) ([]byte, error) {
	return d.readback(op, size, func(enc hal.CommandEncoder, dst hal.Buffer) {
		enc.CopyBufferToBuffer(src, dst, []hal.BufferCopy{{SrcOffset: uint64(offset), Size: uint64(size)}})
	})
}

// RenderBuffer is a render-only HAL texture.
type RenderBuffer struct {
	dev  *Device
	desc backend.RenderBufferDescriptor
	fi   backend.FormatInfo
	raw  hal.Texture

	mu       sync.Mutex
	released bool
}

func (rb *RenderBuffer) NativeHandle() uintptr                       { return rb.raw.NativeHandle() }
func (rb *RenderBuffer) Descriptor() *backend.RenderBufferDescriptor { return &rb.desc }

func (rb *RenderBuffer) Release() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.released {
		return
	}
	rb.released = true
	rb.dev.raw.DestroyTexture(rb.raw)
}

// View is a single-level, single-layer attachment view.
type View struct {
	dev     *Device
	target  backend.ViewTarget
	raw     hal.TextureView
	tex     hal.Texture
	owner   *Texture // nil for render buffers
	fi      backend.FormatInfo
	depth   bool
	samples int
	w, h    int

	mu       sync.Mutex
	released bool
}

func (v *View) NativeHandle() uintptr          { return v.raw.NativeHandle() }
func (v *View) Target() backend.ViewTarget     { return v.target }
func (v *View) Width() int                     { return v.w }
func (v *View) Height() int                    { return v.h }
func (v *View) Format() gputypes.TextureFormat { return v.target.Format() }

// region maps a rectangle of the view to a region of its surface.
func (v *View) region(r backend.TextureRegion) backend.TextureRegion {
	r.Level = v.target.Level
	r.Z = v.target.Layer
	r.Depth = 1
	return r
}

func (v *View) isReleased() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.released
}

func (v *View) Release() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.released {
		return
	}
	v.released = true
	v.dev.raw.DestroyTextureView(v.raw)
	if v.owner != nil {
		v.owner.addView(-1)
	}
}

// CreateRenderTargetView creates a color attachment view.
func (d *Device) CreateRenderTargetView(t backend.ViewTarget) (backend.View, error) {
	return d.createView("create render target view", t, false)
}

// CreateDepthStencilView creates a depth-stencil attachment view.
func (d *Device) CreateDepthStencilView(t backend.ViewTarget) (backend.View, error) {
	return d.createView("create depth stencil view", t, true)
}

func (d *Device) createView(op string, t backend.ViewTarget, depth bool) (backend.View, error) {
	if err := d.check(op); err != nil {
		return nil, err
	}
	v := &View{dev: d, target: t, depth: depth}
	switch {
	case t.Texture != nil && t.RenderBuffer == nil:
		tex, ok := t.Texture.(*Texture)
		if !ok {
			return nil, backend.Invalid("texture %T does not belong to %s", t.Texture, d.name)
		}
		desc := tex.Descriptor()
		if desc.Kind == backend.Texture3D {
			return nil, backend.Errorf(d.name, op, backend.ErrUnsupported, "rendering into 3D texture slices")
		}
		if t.Level < 0 || t.Level >= desc.Levels || t.Layer < 0 || t.Layer >= desc.ArrayLayers() {
			return nil, backend.Invalid("view level %d layer %d outside texture with %d levels and %d layers",
				t.Level, t.Layer, desc.Levels, desc.ArrayLayers())
		}
		v.tex, v.owner, v.fi, v.samples = tex.raw, tex, tex.fi, desc.Samples
	case t.RenderBuffer != nil && t.Texture == nil:
		rb, ok := t.RenderBuffer.(*RenderBuffer)
		if !ok {
			return nil, backend.Invalid("render buffer %T does not belong to %s", t.RenderBuffer, d.name)
		}
		if t.Level != 0 || t.Layer != 0 {
			return nil, backend.Invalid("render buffer view at level %d layer %d", t.Level, t.Layer)
		}
		v.tex, v.fi, v.samples = rb.raw, rb.fi, rb.desc.Samples
	default:
		return nil, backend.Invalid("view target needs exactly one of texture and render buffer")
	}
	if v.fi.Compressed {
		return nil, backend.Errorf(d.name, op, backend.ErrUnsupported, "rendering into compressed format %v", t.Format())
	}
	if depth != (v.fi.Depth || v.fi.Stencil) {
		return nil, backend.Invalid("format %v cannot back this view kind", t.Format())
	}

	raw, err := d.raw.CreateTextureView(v.tex, &hal.TextureViewDescriptor{
		Format:          t.Format(),
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    uint32(t.Level),
		MipLevelCount:   1,
		BaseArrayLayer:  uint32(t.Layer),
		ArrayLayerCount: 1,
	})
	if err != nil {
		return nil, d.fail(op, err)
	}
	v.raw = raw
	v.w, v.h = t.Size()
	if v.owner != nil {
		v.owner.addView(1)
	}
	return v, nil
}
