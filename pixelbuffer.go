package gfx

import (
	"fmt"
	"image"
	"image/color"
	"io"

	// Decoders for LoadPixelBuffer.
	_ "image/jpeg"
	_ "image/png"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/draw"
)

// Pixel buffer errors. All of them match ErrInvalidUsage.
var (
	ErrInvalidDimensions = fmt.Errorf("%w: invalid pixel buffer dimensions", ErrInvalidUsage)
	ErrInvalidFormat     = fmt.Errorf("%w: unknown pixel format", ErrInvalidUsage)
	ErrInvalidPitch      = fmt.Errorf("%w: pitch too small for width", ErrInvalidUsage)
	ErrDataTooSmall      = fmt.Errorf("%w: pixel data too small", ErrInvalidUsage)
)

// PixelBuffer is CPU-side image memory in a texture format. It is the
// input of texture uploads and the output of readbacks.
//
// Rows are pitch bytes apart. Compressed formats store rows of 4x4 blocks,
// so Rows is smaller than Height for them. A buffer either owns its memory
// or references memory supplied by the caller (see WrapPixelBuffer).
type PixelBuffer struct {
	data   []byte
	width  int
	height int
	pitch  int
	format gputypes.TextureFormat
	info   backend.FormatInfo
	ratio  float64
	owned  bool
	premul bool
}

func describe(width, height int, format gputypes.TextureFormat) (backend.FormatInfo, error) {
	if width <= 0 || height <= 0 {
		return backend.FormatInfo{}, ErrInvalidDimensions
	}
	fi, ok := backend.DescribeFormat(format)
	if !ok {
		return backend.FormatInfo{}, fmt.Errorf("%w: %v", ErrInvalidFormat, format)
	}
	return fi, nil
}

// NewPixelBuffer allocates a zeroed, tightly packed buffer.
func NewPixelBuffer(width, height int, format gputypes.TextureFormat) (*PixelBuffer, error) {
	fi, err := describe(width, height, format)
	if err != nil {
		return nil, err
	}
	return NewPixelBufferWithPitch(width, height, format, fi.RowPitch(width))
}

// NewPixelBufferWithPitch allocates a zeroed buffer with a custom row pitch.
func NewPixelBufferWithPitch(width, height int, format gputypes.TextureFormat, pitch int) (*PixelBuffer, error) {
	fi, err := describe(width, height, format)
	if err != nil {
		return nil, err
	}
	if pitch < fi.RowPitch(width) {
		return nil, ErrInvalidPitch
	}
	return &PixelBuffer{
		data:   make([]byte, pitch*fi.Rows(height)),
		width:  width,
		height: height,
		pitch:  pitch,
		format: format,
		info:   fi,
		ratio:  1,
		owned:  true,
	}, nil
}

// WrapPixelBuffer references data without copying. The caller keeps data
// alive and unchanged for as long as the buffer is used. pitch 0 means
// tightly packed.
func WrapPixelBuffer(data []byte, width, height int, format gputypes.TextureFormat, pitch int) (*PixelBuffer, error) {
	fi, err := describe(width, height, format)
	if err != nil {
		return nil, err
	}
	if pitch == 0 {
		pitch = fi.RowPitch(width)
	}
	if pitch < fi.RowPitch(width) {
		return nil, ErrInvalidPitch
	}
	need := pitch*(fi.Rows(height)-1) + fi.RowPitch(width)
	if len(data) < need {
		return nil, ErrDataTooSmall
	}
	return &PixelBuffer{
		data:   data,
		width:  width,
		height: height,
		pitch:  pitch,
		format: format,
		info:   fi,
		ratio:  1,
	}, nil
}

// PixelBufferFromImage converts img to a straight-alpha RGBA8 buffer.
// An *image.RGBA source is kept premultiplied.
func PixelBufferFromImage(img image.Image) *PixelBuffer {
	b := img.Bounds()
	pb, err := NewPixelBuffer(max(b.Dx(), 1), max(b.Dy(), 1), gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		panic(err) // unreachable: size clamped and format known
	}
	switch src := img.(type) {
	case *image.NRGBA:
		pb.copyRows(src.Pix[src.PixOffset(b.Min.X, b.Min.Y):], src.Stride, b.Dx(), b.Dy())
	case *image.RGBA:
		pb.copyRows(src.Pix[src.PixOffset(b.Min.X, b.Min.Y):], src.Stride, b.Dx(), b.Dy())
		pb.premul = true
	default:
		dst := &image.NRGBA{Pix: pb.data, Stride: pb.pitch, Rect: image.Rect(0, 0, pb.width, pb.height)}
		draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	}
	return pb
}

func (pb *PixelBuffer) copyRows(src []byte, stride, w, h int) {
	row := w * 4
	for y := 0; y < h; y++ {
		copy(pb.data[y*pb.pitch:][:row], src[y*stride:])
	}
}

// LoadPixelBuffer decodes a PNG or JPEG image.
func LoadPixelBuffer(r io.Reader) (*PixelBuffer, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("gfx: decode image: %w", err)
	}
	return PixelBufferFromImage(img), nil
}

// TryLoadPixelBuffer is LoadPixelBuffer for callers that treat a broken
// image as a soft failure. It returns nil and the reason instead of an
// error.
func TryLoadPixelBuffer(r io.Reader) (*PixelBuffer, string) {
	pb, err := LoadPixelBuffer(r)
	if err != nil {
		return nil, err.Error()
	}
	return pb, ""
}

// Width returns the width in pixels.
func (pb *PixelBuffer) Width() int { return pb.width }

// Height returns the height in pixels.
func (pb *PixelBuffer) Height() int { return pb.height }

// Size returns width and height as a point.
func (pb *PixelBuffer) Size() image.Point { return image.Pt(pb.width, pb.height) }

// Format returns the texture format of the pixels.
func (pb *PixelBuffer) Format() gputypes.TextureFormat { return pb.format }

// Pitch returns the byte distance between rows.
func (pb *PixelBuffer) Pitch() int { return pb.pitch }

// Rows returns the number of stored rows, block rows for compressed formats.
func (pb *PixelBuffer) Rows() int { return pb.info.Rows(pb.height) }

// Compressed reports whether the format is block compressed.
func (pb *PixelBuffer) Compressed() bool { return pb.info.Compressed }

// Bytes returns the pixel memory.
func (pb *PixelBuffer) Bytes() []byte { return pb.data }

// Owned reports whether the buffer owns its memory.
func (pb *PixelBuffer) Owned() bool { return pb.owned }

// PixelRatio returns the ratio of pixels to logical points.
func (pb *PixelBuffer) PixelRatio() float64 { return pb.ratio }

// SetPixelRatio sets the ratio of pixels to logical points.
func (pb *PixelBuffer) SetPixelRatio(r float64) {
	if r > 0 {
		pb.ratio = r
	}
}

// Premultiplied reports whether color channels are multiplied by alpha.
func (pb *PixelBuffer) Premultiplied() bool { return pb.premul }

// Row returns the bytes of row y without the pitch padding.
func (pb *PixelBuffer) Row(y int) []byte {
	if y < 0 || y >= pb.Rows() {
		return nil
	}
	return pb.data[y*pb.pitch:][:pb.info.RowPitch(pb.width)]
}

// Clone returns an owned, tightly packed copy.
func (pb *PixelBuffer) Clone() *PixelBuffer {
	c, _ := NewPixelBuffer(pb.width, pb.height, pb.format)
	for y := 0; y < pb.Rows(); y++ {
		copy(c.Row(y), pb.Row(y))
	}
	c.ratio, c.premul = pb.ratio, pb.premul
	return c
}

// SubImage copies rect into a new owned buffer. For compressed formats rect
// must be aligned to blocks, except where it touches the right or bottom
// edge.
func (pb *PixelBuffer) SubImage(rect image.Rectangle) (*PixelBuffer, error) {
	if rect.Empty() || !rect.In(image.Rect(0, 0, pb.width, pb.height)) {
		return nil, invalid("sub image %v outside %dx%d buffer", rect, pb.width, pb.height)
	}
	bw, bh := pb.info.BlockWidth, pb.info.BlockHeight
	if rect.Min.X%bw != 0 || rect.Min.Y%bh != 0 ||
		(rect.Dx()%bw != 0 && rect.Max.X != pb.width) ||
		(rect.Dy()%bh != 0 && rect.Max.Y != pb.height) {
		return nil, invalid("sub image %v is not aligned to %dx%d blocks", rect, bw, bh)
	}
	out, err := NewPixelBuffer(rect.Dx(), rect.Dy(), pb.format)
	if err != nil {
		return nil, err
	}
	x0 := rect.Min.X / bw * pb.info.BlockBytes
	y0 := rect.Min.Y / bh
	for y := 0; y < out.Rows(); y++ {
		copy(out.Row(y), pb.data[(y0+y)*pb.pitch+x0:])
	}
	out.ratio, out.premul = pb.ratio, pb.premul
	return out, nil
}

// FlipVertical reverses the row order in place. Compressed formats are
// flipped by block rows only; the texels inside a block are not reordered.
func (pb *PixelBuffer) FlipVertical() {
	rows := pb.Rows()
	tmp := make([]byte, pb.info.RowPitch(pb.width))
	for top, bottom := 0, rows-1; top < bottom; top, bottom = top+1, bottom-1 {
		a, b := pb.Row(top), pb.Row(bottom)
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

// isRGBA8 reports whether f stores four 8-bit channels, and whether red
// and blue are swapped.
func isRGBA8(f gputypes.TextureFormat) (ok, bgra bool) {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb:
		return true, false
	case gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb:
		return true, true
	}
	return false, false
}

// Premultiply multiplies the color channels by alpha in place. Only 8-bit
// RGBA and BGRA buffers are supported.
func (pb *PixelBuffer) Premultiply() error {
	if ok, _ := isRGBA8(pb.format); !ok {
		return backend.Errorf("", "premultiply", ErrUnsupported, "format %v", pb.format)
	}
	if pb.premul {
		return nil
	}
	for y := 0; y < pb.height; y++ {
		row := pb.Row(y)
		for i := 0; i+3 < len(row); i += 4 {
			a := uint32(row[i+3])
			if a == 255 {
				continue
			}
			row[i] = uint8((uint32(row[i])*a + 127) / 255)
			row[i+1] = uint8((uint32(row[i+1])*a + 127) / 255)
			row[i+2] = uint8((uint32(row[i+2])*a + 127) / 255)
		}
	}
	pb.premul = true
	return nil
}

// Convert returns the pixels in format f. Converting to the same format
// returns pb itself; 8-bit RGBA and BGRA convert into each other.
func (pb *PixelBuffer) Convert(f gputypes.TextureFormat) (*PixelBuffer, error) {
	if f == pb.format {
		return pb, nil
	}
	srcOK, srcBGRA := isRGBA8(pb.format)
	dstOK, dstBGRA := isRGBA8(f)
	if !srcOK || !dstOK {
		return nil, backend.Errorf("", "convert pixels", ErrUnsupported, "%v to %v", pb.format, f)
	}
	out := pb.Clone()
	out.format = f
	if srcBGRA != dstBGRA {
		out.swapRB()
	}
	return out, nil
}

func (pb *PixelBuffer) swapRB() {
	for y := 0; y < pb.height; y++ {
		row := pb.Row(y)
		for i := 0; i+3 < len(row); i += 4 {
			row[i], row[i+2] = row[i+2], row[i]
		}
	}
}

// Image returns a copy of the pixels as an *image.NRGBA, or an
// *image.RGBA when the buffer is premultiplied. Only 8-bit RGBA and BGRA
// buffers convert.
func (pb *PixelBuffer) Image() (image.Image, error) {
	rgba, err := pb.Convert(gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		return nil, err
	}
	if rgba == pb {
		rgba = pb.Clone()
	}
	rect := image.Rect(0, 0, pb.width, pb.height)
	if pb.premul {
		return &image.RGBA{Pix: rgba.data, Stride: rgba.pitch, Rect: rect}, nil
	}
	return &image.NRGBA{Pix: rgba.data, Stride: rgba.pitch, Rect: rect}, nil
}

// At returns the color of pixel (x, y) of an 8-bit RGBA or BGRA buffer.
func (pb *PixelBuffer) At(x, y int) color.NRGBA {
	ok, bgra := isRGBA8(pb.format)
	if !ok || x < 0 || y < 0 || x >= pb.width || y >= pb.height {
		return color.NRGBA{}
	}
	p := pb.data[y*pb.pitch+x*4:]
	if bgra {
		return color.NRGBA{R: p[2], G: p[1], B: p[0], A: p[3]}
	}
	return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// Scaled returns a bilinearly resampled copy of size width x height in the
// same format.
func (pb *PixelBuffer) Scaled(width, height int) (*PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrInvalidDimensions
	}
	src, err := pb.Image()
	if err != nil {
		return nil, err
	}
	out, err := NewPixelBuffer(width, height, gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, width, height)
	var dst draw.Image = &image.NRGBA{Pix: out.data, Stride: out.pitch, Rect: rect}
	if pb.premul {
		dst = &image.RGBA{Pix: out.data, Stride: out.pitch, Rect: rect}
	}
	draw.BiLinear.Scale(dst, rect, src, src.Bounds(), draw.Src, nil)
	out.ratio, out.premul = pb.ratio, pb.premul
	return out.Convert(pb.format)
}
