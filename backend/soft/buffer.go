package soft

import (
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
)

type bufStore struct {
	data []byte
}

// Buffer is a soft buffer.
type Buffer struct {
	dev      *Device
	desc     backend.BufferDescriptor
	store    *bufStore
	handle   uintptr
	released atomic.Bool
	shared   uintptr
}

// NativeHandle returns a process-unique id.
func (b *Buffer) NativeHandle() uintptr { return b.handle }

// Descriptor returns the creation descriptor.
func (b *Buffer) Descriptor() *backend.BufferDescriptor { return &b.desc }

// Bytes exposes the buffer memory. Tests use it to inspect contents of
// buffers that are not readable through Read.
func (b *Buffer) Bytes() []byte { return b.store.data }

// Release frees the buffer.
func (b *Buffer) Release() {
	if b.released.Swap(true) {
		return
	}
	if b.shared != 0 {
		unshare(b.shared)
	}
}

func (b *Buffer) usable(op string) error {
	if b.released.Load() {
		return backend.Errorf(Name, op, backend.ErrReleased, "buffer released")
	}
	return b.dev.check(op)
}

func (b *Buffer) checkRange(offset, n int) error {
	if !backend.InRange(offset, n, len(b.store.data)) {
		return backend.Invalid("%d bytes at %d outside %s buffer of %d bytes", n, offset, b.desc.Kind, len(b.store.data))
	}
	return nil
}

// Write copies data at offset.
func (b *Buffer) Write(offset int, data []byte) error {
	if err := b.usable("write buffer"); err != nil {
		return err
	}
	if err := b.checkRange(offset, len(data)); err != nil {
		return err
	}
	copy(b.store.data[offset:], data)
	return nil
}

// Read copies len(dst) bytes at offset. Staging and storage buffers are
// readable.
func (b *Buffer) Read(offset int, dst []byte) error {
	if err := b.usable("read buffer"); err != nil {
		return err
	}
	if b.desc.Kind != backend.BufferStaging && b.desc.Kind != backend.BufferStorage {
		return backend.Errorf(Name, "read buffer", backend.ErrUnsupported, "%s buffers are not CPU readable", b.desc.Kind)
	}
	if err := b.checkRange(offset, len(dst)); err != nil {
		return err
	}
	copy(dst, b.store.data[offset:])
	return nil
}

// ShareHandle exports the buffer for other soft devices.
func (b *Buffer) ShareHandle() (uintptr, error) {
	if err := b.usable("share buffer"); err != nil {
		return 0, err
	}
	if b.shared == 0 {
		b.shared = share(sharedObject{buf: b})
	}
	return b.shared, nil
}

// OpenSharedBuffer opens a buffer exported by any soft device.
func (d *Device) OpenSharedBuffer(handle uintptr) (backend.Buffer, error) {
	if err := d.check("open shared buffer"); err != nil {
		return nil, err
	}
	obj, ok := lookupShared(handle)
	if !ok || obj.buf == nil {
		return nil, backend.Errorf(Name, "open shared buffer", backend.ErrSharing, "unknown share handle %#x", handle)
	}
	src := obj.buf
	return &Buffer{dev: d, desc: src.desc, store: src.store, handle: newHandle()}, nil
}
