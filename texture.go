package gfx

import (
	"errors"
	"image"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/devshare"
	"github.com/gogpu/gfx/internal/mipgen"
	"github.com/gogpu/gputypes"
)

// Texture variants.
type TextureKind = backend.TextureKind

const (
	Texture1D        = backend.Texture1D
	Texture1DArray   = backend.Texture1DArray
	Texture2D        = backend.Texture2D
	Texture2DArray   = backend.Texture2DArray
	Texture3D        = backend.Texture3D
	TextureCube      = backend.TextureCube
	TextureCubeArray = backend.TextureCubeArray
)

// Cube faces, usable as the layer of a cube texture.
const (
	CubePositiveX = iota
	CubeNegativeX
	CubePositiveY
	CubeNegativeY
	CubePositiveZ
	CubeNegativeZ
)

type (
	TextureDescriptor = backend.TextureDescriptor
	TextureRegion     = backend.TextureRegion
	SamplerDesc       = backend.SamplerDesc
)

// textureHandles maps devices to the native textures of one resource.
type textureHandles = devshare.Multiplexer[backend.Device, backend.Texture]

// Texture is a texture of any variant. The sampling parameters are part of
// the texture and apply whenever it is bound to a texture unit.
type Texture struct {
	ctx      *Context
	raw      backend.Texture
	desc     backend.TextureDescriptor
	staging  bool
	handles  *textureHandles
	shareID  uint64
	released bool
}

func newTexture(c *Context, raw backend.Texture, staging bool) *Texture {
	t := &Texture{ctx: c, raw: raw, desc: *raw.Descriptor(), staging: staging}
	t.handles = devshare.New(c.dev, raw, openSharedTexture, backend.Texture.Release)
	t.shareID = backend.TrackShared(t.handles)
	return t
}

func openSharedTexture(src backend.Texture, dev backend.Device) (backend.Texture, error) {
	const op = "open shared texture"
	sh, ok := src.(backend.Shareable)
	if !ok {
		return nil, backend.Errorf(dev.Backend(), op, ErrSharing, "%T cannot be shared", src)
	}
	h, err := sh.ShareHandle()
	if err == nil {
		var t backend.Texture
		if t, err = dev.OpenSharedTexture(h); err == nil {
			return t, nil
		}
	}
	if !errors.Is(err, ErrSharing) {
		err = backend.NewError(dev.Backend(), op, ErrSharing, err)
	}
	return nil, err
}

// Kind returns the texture dimensionality.
func (t *Texture) Kind() TextureKind { return t.desc.Kind }

// Width returns the width of level 0.
func (t *Texture) Width() int { return t.desc.Width }

// Height returns the height of level 0.
func (t *Texture) Height() int { return t.desc.Height }

// Depth returns the depth of level 0.
func (t *Texture) Depth() int { return t.desc.Depth }

// Layers returns the array layer count as created.
func (t *Texture) Layers() int { return t.desc.Layers }

// Levels returns the number of mip levels.
func (t *Texture) Levels() int { return t.desc.Levels }

// Samples returns the sample count.
func (t *Texture) Samples() int { return t.desc.Samples }

// Format returns the texel format.
func (t *Texture) Format() gputypes.TextureFormat { return t.desc.Format }

// Size returns the width and height of level 0.
func (t *Texture) Size() image.Point { return image.Pt(t.desc.Width, t.desc.Height) }

// Descriptor returns the resolved descriptor. Levels holds the actual
// level count even when the texture was created with 0.
func (t *Texture) Descriptor() TextureDescriptor { return t.desc }

// Staging reports whether the texture was created for CPU transfers.
func (t *Texture) Staging() bool { return t.staging }

// LevelSize returns the size of mip level n.
func (t *Texture) LevelSize(n int) (w, h, depth int) { return t.desc.LevelSize(n) }

// NativeHandle returns the native handle on the creation device. It does
// not add a reference.
func (t *Texture) NativeHandle() uintptr { return t.raw.NativeHandle() }

// Backend returns the backend texture on the creation device.
func (t *Texture) Backend() backend.Texture { return t.raw }

// Handle returns the native texture for dev, opening the texture on dev
// through its share handle on first use. Errors match ErrSharing and leave
// the texture usable on the devices it already has.
func (t *Texture) Handle(dev backend.Device) (backend.Texture, error) {
	if t.released {
		return nil, released("texture handle", "texture")
	}
	h, err := t.handles.Get(dev)
	if err != nil {
		if errors.Is(err, devshare.ErrNoSource) {
			err = backend.NewError(dev.Backend(), "texture handle", ErrSharing, err)
		}
		Logger().Warn("gfx: texture sharing failed", "label", t.desc.Label, "backend", dev.Backend(), "err", err)
		return nil, err
	}
	return h, nil
}

// Devices returns the devices holding a native handle of the texture,
// creation device first.
func (t *Texture) Devices() []backend.Device { return t.handles.Devices() }

func (t *Texture) usable(op string) error {
	if t.released {
		return released(op, "texture")
	}
	return nil
}

// primary returns the authoritative native texture. After its creation
// device is destroyed that is the handle on the oldest surviving device.
func (t *Texture) primary(op string) (backend.Texture, error) {
	if err := t.usable(op); err != nil {
		return nil, err
	}
	_, h, ok := t.handles.Primary()
	if !ok {
		return nil, backend.Errorf("", op, ErrDeviceLost, "every device holding the texture was destroyed")
	}
	return h, nil
}

// Sampler returns the sampling parameters.
func (t *Texture) Sampler() SamplerDesc {
	if _, h, ok := t.handles.Primary(); ok {
		return h.Sampler()
	}
	return t.raw.Sampler()
}

// SetSampler replaces the sampling parameters on every device holding the
// texture.
func (t *Texture) SetSampler(s SamplerDesc) error {
	if err := t.usable("set sampler"); err != nil {
		return err
	}
	for _, dev := range t.handles.Devices() {
		h, ok := t.handles.Lookup(dev)
		if !ok {
			continue
		}
		if err := h.SetSampler(s); err != nil {
			return err
		}
	}
	return nil
}

func (t *Texture) updateSampler(fn func(*SamplerDesc)) error {
	s := t.Sampler()
	fn(&s)
	return t.SetSampler(s)
}

// SetWrap sets the address mode per axis.
func (t *Texture) SetWrap(s, tt, r gputypes.AddressMode) error {
	return t.updateSampler(func(d *SamplerDesc) { d.WrapS, d.WrapT, d.WrapR = s, tt, r })
}

// SetFilter sets the minification, magnification and mipmap filters.
func (t *Texture) SetFilter(minFilter, magFilter gputypes.FilterMode, mip gputypes.MipmapFilterMode) error {
	return t.updateSampler(func(d *SamplerDesc) { d.MinFilter, d.MagFilter, d.MipFilter = minFilter, magFilter, mip })
}

// SetLOD sets the level-of-detail clamp range and bias.
func (t *Texture) SetLOD(minLOD, maxLOD, bias float32) error {
	return t.updateSampler(func(d *SamplerDesc) { d.LODMin, d.LODMax, d.LODBias = minLOD, maxLOD, bias })
}

// SetLevelRange restricts sampling to levels [base, maxLevel].
func (t *Texture) SetLevelRange(base, maxLevel int) error {
	return t.updateSampler(func(d *SamplerDesc) { d.BaseLevel, d.MaxLevel = base, maxLevel })
}

// SetCompare enables depth comparison with fn.
// CompareFunctionUndefined turns it off.
func (t *Texture) SetCompare(fn gputypes.CompareFunction) error {
	return t.updateSampler(func(d *SamplerDesc) { d.Compare = fn })
}

// SetAnisotropy sets the maximum anisotropy, 0 or 1 to disable.
func (t *Texture) SetAnisotropy(n uint16) error {
	return t.updateSampler(func(d *SamplerDesc) { d.Anisotropy = n })
}

// Write uploads raw bytes into region. bytesPerRow 0 means tightly packed.
func (t *Texture) Write(region TextureRegion, data []byte, bytesPerRow int) error {
	raw, err := t.primary("write texture")
	if err != nil {
		return err
	}
	return raw.Write(region, data, bytesPerRow)
}

// Read downloads region into dst.
func (t *Texture) Read(region TextureRegion, dst []byte, bytesPerRow int) error {
	raw, err := t.primary("read texture")
	if err != nil {
		return err
	}
	return raw.Read(region, dst, bytesPerRow)
}

// SetImage replaces layer 0 of mip level level with pb. pb must cover the
// whole level.
func (t *Texture) SetImage(level int, pb *PixelBuffer) error {
	if level < 0 || level >= t.desc.Levels {
		return invalid("mip level %d out of range [0,%d)", level, t.desc.Levels)
	}
	w, h, _ := t.desc.LevelSize(level)
	if pb.Width() != w || pb.Height() != h {
		return invalid("image %dx%d does not match level %d of size %dx%d", pb.Width(), pb.Height(), level, w, h)
	}
	return t.SetSubImage(level, 0, image.Point{}, pb)
}

// SetSubImage uploads pb at position at of one layer (array slice, cube
// face or 3D slice) of mip level level. 8-bit RGBA and BGRA pixels are
// converted to the texture format.
func (t *Texture) SetSubImage(level, layer int, at image.Point, pb *PixelBuffer) error {
	raw, err := t.primary("set sub image")
	if err != nil {
		return err
	}
	src, err := pb.Convert(t.desc.Format)
	if err != nil {
		return err
	}
	region := TextureRegion{
		Level: level, X: at.X, Y: at.Y, Z: layer,
		Width: pb.Width(), Height: pb.Height(), Depth: 1,
	}
	if err := region.Within(&t.desc); err != nil {
		return err
	}
	return raw.Write(region, src.Bytes(), src.Pitch())
}

// Image reads one layer of mip level level back into a new PixelBuffer.
func (t *Texture) Image(level, layer int) (*PixelBuffer, error) {
	raw, err := t.primary("read image")
	if err != nil {
		return nil, err
	}
	if level < 0 || level >= t.desc.Levels {
		return nil, invalid("mip level %d out of range [0,%d)", level, t.desc.Levels)
	}
	w, h, _ := t.desc.LevelSize(level)
	pb, err := NewPixelBuffer(w, h, t.desc.Format)
	if err != nil {
		return nil, err
	}
	region := TextureRegion{Level: level, Z: layer, Width: w, Height: h, Depth: 1}
	if err := raw.Read(region, pb.Bytes(), pb.Pitch()); err != nil {
		return nil, err
	}
	return pb, nil
}

// GenerateMipmap rebuilds levels 1.. of every layer from level 0 with a
// bilinear filter. Only 8-bit RGBA and BGRA 2D-style textures are
// supported.
func (t *Texture) GenerateMipmap() error {
	raw, err := t.primary("generate mipmap")
	if err != nil {
		return err
	}
	if ok, _ := isRGBA8(t.desc.Format); !ok || t.desc.Kind == Texture3D || t.desc.Kind == Texture1D || t.desc.Kind == Texture1DArray {
		return backend.Errorf(t.ctx.Backend(), "generate mipmap", ErrUnsupported,
			"%s texture of format %v", t.desc.Kind, t.desc.Format)
	}
	if t.desc.Levels <= 1 {
		return nil
	}
	for layer := 0; layer < t.desc.ArrayLayers(); layer++ {
		base, err := t.Image(0, layer)
		if err != nil {
			return err
		}
		levels, err := mipgen.Generate(base.Bytes(), base.Width(), base.Height(), base.Pitch(), t.desc.Levels)
		if err != nil {
			return invalid("%v", err)
		}
		for i, l := range levels {
			region := TextureRegion{Level: i + 1, Z: layer, Width: l.Width, Height: l.Height, Depth: 1}
			if err := raw.Write(region, l.Pix, 0); err != nil {
				return err
			}
		}
	}
	Logger().Debug("gfx: mipmaps generated", "label", t.desc.Label, "levels", t.desc.Levels)
	return nil
}

// Release frees the texture on every device holding it. Releasing twice
// is a no-op.
func (t *Texture) Release() {
	if t.released {
		return
	}
	t.ctx.forgetTexture(t)
	t.released = true
	backend.UntrackShared(t.shareID)
	t.handles.Close()
}
