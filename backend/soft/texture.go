package soft

import (
	"sync/atomic"

	"github.com/gogpu/gfx/backend"
)

// texStore is the memory of a texture, shared by every device that opened it.
type texStore struct {
	levels [][]byte // per level: slices stored back to back
}

// Texture is a soft texture.
type Texture struct {
	dev    *Device
	desc   backend.TextureDescriptor
	fi     backend.FormatInfo
	store  *texStore
	handle uintptr

	sampler  backend.SamplerDesc
	views    atomic.Int32
	released atomic.Bool
	shared   uintptr // share handle, 0 when not exported
}

func newTexture(d *Device, desc backend.TextureDescriptor, fi backend.FormatInfo) *Texture {
	t := &Texture{dev: d, desc: desc, fi: fi, handle: newHandle(), sampler: backend.DefaultSampler()}
	st := &texStore{levels: make([][]byte, desc.Levels)}
	for lvl := range st.levels {
		w, h, _ := desc.LevelSize(lvl)
		st.levels[lvl] = make([]byte, fi.ImageSize(w, h, t.slices(lvl)))
	}
	t.store = st
	return t
}

// slices returns the number of 2D slices of a level.
func (t *Texture) slices(level int) int {
	if t.desc.Kind == backend.Texture3D {
		_, _, depth := t.desc.LevelSize(level)
		return depth
	}
	return t.desc.ArrayLayers()
}

// NativeHandle returns a process-unique id.
func (t *Texture) NativeHandle() uintptr { return t.handle }

// Descriptor returns the resolved descriptor.
func (t *Texture) Descriptor() *backend.TextureDescriptor { return &t.desc }

// Sampler returns the current sampling parameters.
func (t *Texture) Sampler() backend.SamplerDesc { return t.sampler }

// SetSampler replaces the sampling parameters.
func (t *Texture) SetSampler(s backend.SamplerDesc) error {
	if err := t.usable("set sampler"); err != nil {
		return err
	}
	if s.MaxLevel < s.BaseLevel {
		return backend.Invalid("sampler max level %d below base level %d", s.MaxLevel, s.BaseLevel)
	}
	if s.LODMax < s.LODMin {
		return backend.Invalid("sampler LOD range [%g,%g]", s.LODMin, s.LODMax)
	}
	t.sampler = s
	return nil
}

// Release frees the texture. Memory opened by other devices stays alive
// until they release it too.
func (t *Texture) Release() {
	if t.released.Swap(true) {
		return
	}
	if t.shared != 0 {
		unshare(t.shared)
	}
}

func (t *Texture) usable(op string) error {
	if t.released.Load() {
		return backend.Errorf(Name, op, backend.ErrReleased, "texture released")
	}
	return t.dev.check(op)
}

// slice returns the bytes of one 2D slice of a level and its row pitch.
func (t *Texture) slice(level, z int) ([]byte, int) {
	w, h, _ := t.desc.LevelSize(level)
	pitch := t.fi.RowPitch(w)
	size := pitch * t.fi.Rows(h)
	return t.store.levels[level][z*size : (z+1)*size], pitch
}

func (t *Texture) checkRegion(r backend.TextureRegion) error {
	if err := r.Within(&t.desc); err != nil {
		return err
	}
	if t.fi.Compressed {
		w, h, _ := t.desc.LevelSize(r.Level)
		if r.X%t.fi.BlockWidth != 0 || r.Y%t.fi.BlockHeight != 0 ||
			(r.Width%t.fi.BlockWidth != 0 && r.X+r.Width != w) ||
			(r.Height%t.fi.BlockHeight != 0 && r.Y+r.Height != h) {
			return backend.Invalid("region %+v is not aligned to %dx%d blocks", r, t.fi.BlockWidth, t.fi.BlockHeight)
		}
	}
	return nil
}

// Write uploads data into region.
func (t *Texture) Write(r backend.TextureRegion, data []byte, bytesPerRow int) error {
	if err := t.usable("write texture"); err != nil {
		return err
	}
	if err := t.checkRegion(r); err != nil {
		return err
	}
	pitch, err := backend.CheckUpload(t.desc.Format, r, len(data), bytesPerRow)
	if err != nil {
		return err
	}
	t.transfer(r, data, pitch, true)
	return nil
}

// Read downloads region into dst.
func (t *Texture) Read(r backend.TextureRegion, dst []byte, bytesPerRow int) error {
	if err := t.usable("read texture"); err != nil {
		return err
	}
	if err := t.checkRegion(r); err != nil {
		return err
	}
	pitch, err := backend.CheckUpload(t.desc.Format, r, len(dst), bytesPerRow)
	if err != nil {
		return err
	}
	t.transfer(r, dst, pitch, false)
	return nil
}

// transfer copies between region and a linear buffer with the given pitch.
func (t *Texture) transfer(r backend.TextureRegion, buf []byte, pitch int, upload bool) {
	rows := t.fi.Rows(r.Height)
	rowBytes := t.fi.RowPitch(r.Width)
	x0 := r.X / t.fi.BlockWidth * t.fi.BlockBytes
	y0 := r.Y / t.fi.BlockHeight
	for z := 0; z < r.Depth; z++ {
		sl, slPitch := t.slice(r.Level, r.Z+z)
		for row := 0; row < rows; row++ {
			tex := sl[(y0+row)*slPitch+x0:][:rowBytes]
			lin := buf[(z*rows+row)*pitch:][:rowBytes]
			if upload {
				copy(tex, lin)
			} else {
				copy(lin, tex)
			}
		}
	}
}

// ShareHandle exports the texture for other soft devices.
func (t *Texture) ShareHandle() (uintptr, error) {
	if err := t.usable("share texture"); err != nil {
		return 0, err
	}
	if t.shared == 0 {
		t.shared = share(sharedObject{tex: t})
	}
	return t.shared, nil
}

// OpenSharedTexture opens a texture exported by any soft device.
func (d *Device) OpenSharedTexture(handle uintptr) (backend.Texture, error) {
	if err := d.check("open shared texture"); err != nil {
		return nil, err
	}
	obj, ok := lookupShared(handle)
	if !ok || obj.tex == nil {
		return nil, backend.Errorf(Name, "open shared texture", backend.ErrSharing, "unknown share handle %#x", handle)
	}
	src := obj.tex
	t := &Texture{dev: d, desc: src.desc, fi: src.fi, store: src.store, handle: newHandle(), sampler: src.sampler}
	return t, nil
}
