package gfx

import (
	"errors"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/devshare"
)

// Buffer variants and usage hints.
type (
	BufferKind       = backend.BufferKind
	BufferUsage      = backend.Usage
	Direction        = backend.Direction
	BufferDescriptor = backend.BufferDescriptor
)

const (
	VertexBuffer  = backend.BufferVertex
	ElementBuffer = backend.BufferElement
	UniformBuffer = backend.BufferUniform
	StorageBuffer = backend.BufferStorage
	StagingBuffer = backend.BufferStaging

	StaticDraw  = backend.StaticDraw
	StaticRead  = backend.StaticRead
	StaticCopy  = backend.StaticCopy
	DynamicDraw = backend.DynamicDraw
	DynamicRead = backend.DynamicRead
	DynamicCopy = backend.DynamicCopy
	StreamDraw  = backend.StreamDraw
	StreamRead  = backend.StreamRead
	StreamCopy  = backend.StreamCopy

	ToGPU   = backend.ToGPU
	FromGPU = backend.FromGPU
)

type bufferHandles = devshare.Multiplexer[backend.Device, backend.Buffer]

// Buffer is a linear GPU allocation.
type Buffer struct {
	ctx      *Context
	raw      backend.Buffer
	desc     backend.BufferDescriptor
	handles  *bufferHandles
	shareID  uint64
	released bool
}

func newBuffer(c *Context, raw backend.Buffer) *Buffer {
	b := &Buffer{ctx: c, raw: raw, desc: *raw.Descriptor()}
	b.handles = devshare.New(c.dev, raw, openSharedBuffer, backend.Buffer.Release)
	b.shareID = backend.TrackShared(b.handles)
	return b
}

func openSharedBuffer(src backend.Buffer, dev backend.Device) (backend.Buffer, error) {
	const op = "open shared buffer"
	sh, ok := src.(backend.Shareable)
	if !ok {
		return nil, backend.Errorf(dev.Backend(), op, ErrSharing, "%T cannot be shared", src)
	}
	h, err := sh.ShareHandle()
	if err == nil {
		var b backend.Buffer
		if b, err = dev.OpenSharedBuffer(h); err == nil {
			return b, nil
		}
	}
	if !errors.Is(err, ErrSharing) {
		err = backend.NewError(dev.Backend(), op, ErrSharing, err)
	}
	return nil, err
}

// Kind returns what the buffer is bound as.
func (b *Buffer) Kind() BufferKind { return b.desc.Kind }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() int { return b.desc.Size }

// Usage returns the usage hint the buffer was created with.
func (b *Buffer) Usage() BufferUsage { return b.desc.Usage }

// Stride returns the element stride of a storage buffer, 0 for other kinds.
func (b *Buffer) Stride() int { return b.desc.Stride }

// Direction returns the transfer direction of a staging buffer.
func (b *Buffer) Direction() Direction { return b.desc.Direction }

// Descriptor returns a copy of the creation parameters.
func (b *Buffer) Descriptor() BufferDescriptor { return b.desc }

// NativeHandle returns the native handle on the creation device. It does
// not add a reference.
func (b *Buffer) NativeHandle() uintptr { return b.raw.NativeHandle() }

// Backend returns the backend buffer on the creation device.
func (b *Buffer) Backend() backend.Buffer { return b.raw }

// Handle returns the native buffer for dev, opening it through its share
// handle on first use.
func (b *Buffer) Handle(dev backend.Device) (backend.Buffer, error) {
	if b.released {
		return nil, released("buffer handle", "buffer")
	}
	h, err := b.handles.Get(dev)
	if err != nil {
		if errors.Is(err, devshare.ErrNoSource) {
			err = backend.NewError(dev.Backend(), "buffer handle", ErrSharing, err)
		}
		Logger().Warn("gfx: buffer sharing failed", "label", b.desc.Label, "backend", dev.Backend(), "err", err)
		return nil, err
	}
	return h, nil
}

// Devices returns the devices holding a native handle of the buffer,
// creation device first.
func (b *Buffer) Devices() []backend.Device { return b.handles.Devices() }

func (b *Buffer) checkRange(op string, offset, n int) error {
	if b.released {
		return released(op, "buffer")
	}
	if !backend.InRange(offset, n, b.desc.Size) {
		return invalid("%s: %d bytes at %d outside a %d byte buffer", op, n, offset, b.desc.Size)
	}
	return nil
}

// primary returns the authoritative native buffer, which moves to the
// oldest surviving device when the creation device is destroyed.
func (b *Buffer) primary(op string) (backend.Buffer, error) {
	_, h, ok := b.handles.Primary()
	if !ok {
		return nil, backend.Errorf("", op, ErrDeviceLost, "every device holding the buffer was destroyed")
	}
	return h, nil
}

// Upload replaces the whole contents. len(data) must equal Size.
func (b *Buffer) Upload(data []byte) error {
	if len(data) != b.desc.Size {
		return invalid("upload of %d bytes into a %d byte buffer", len(data), b.desc.Size)
	}
	return b.Write(0, data)
}

// Write copies data into the buffer at offset.
func (b *Buffer) Write(offset int, data []byte) error {
	if err := b.checkRange("write buffer", offset, len(data)); err != nil {
		return err
	}
	raw, err := b.primary("write buffer")
	if err != nil {
		return err
	}
	return raw.Write(offset, data)
}

// Read copies len(dst) bytes starting at offset. Staging and storage
// buffers support it.
func (b *Buffer) Read(offset int, dst []byte) error {
	if err := b.checkRange("read buffer", offset, len(dst)); err != nil {
		return err
	}
	raw, err := b.primary("read buffer")
	if err != nil {
		return err
	}
	return raw.Read(offset, dst)
}

// CopyFrom records a GPU copy of size bytes from src at srcOffset to b at
// dstOffset.
func (b *Buffer) CopyFrom(src *Buffer, dstOffset, srcOffset, size int) error {
	return b.ctx.CopyBuffer(b, dstOffset, src, srcOffset, size)
}

// CopyTo records a GPU copy of size bytes from b at srcOffset to dst at
// dstOffset.
func (b *Buffer) CopyTo(dst *Buffer, dstOffset, srcOffset, size int) error {
	return b.ctx.CopyBuffer(dst, dstOffset, b, srcOffset, size)
}

// Release frees the buffer on every device holding it.
func (b *Buffer) Release() {
	if b.released {
		return
	}
	b.ctx.forgetBuffer(b)
	b.released = true
	backend.UntrackShared(b.shareID)
	b.handles.Close()
}
