package backend

import "github.com/gogpu/gputypes"

// FormatInfo describes the memory layout of a texture format.
type FormatInfo struct {
	BlockWidth  int
	BlockHeight int
	BlockBytes  int
	Compressed  bool
	Depth       bool
	Stencil     bool
}

// DescribeFormat returns the layout of f. ok is false for formats the
// context does not know how to address in memory.
func DescribeFormat(f gputypes.TextureFormat) (info FormatInfo, ok bool) {
	px := func(n int) FormatInfo { return FormatInfo{BlockWidth: 1, BlockHeight: 1, BlockBytes: n} }
	block := func(n int) FormatInfo {
		return FormatInfo{BlockWidth: 4, BlockHeight: 4, BlockBytes: n, Compressed: true}
	}

	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint:
		return px(1), true
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint, gputypes.TextureFormatR16Float,
		gputypes.TextureFormatRG8Unorm, gputypes.TextureFormatRG8Snorm,
		gputypes.TextureFormatRG8Uint, gputypes.TextureFormatRG8Sint:
		return px(2), true
	case gputypes.TextureFormatR32Float, gputypes.TextureFormatR32Uint, gputypes.TextureFormatR32Sint,
		gputypes.TextureFormatRG16Unorm, gputypes.TextureFormatRG16Snorm,
		gputypes.TextureFormatRG16Uint, gputypes.TextureFormatRG16Sint, gputypes.TextureFormatRG16Float,
		gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatRGBA8UnormSrgb,
		gputypes.TextureFormatRGBA8Snorm, gputypes.TextureFormatRGBA8Uint, gputypes.TextureFormatRGBA8Sint,
		gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatBGRA8UnormSrgb,
		gputypes.TextureFormatRGB10A2Uint, gputypes.TextureFormatRGB10A2Unorm,
		gputypes.TextureFormatRG11B10Ufloat, gputypes.TextureFormatRGB9E5Ufloat:
		return px(4), true
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint, gputypes.TextureFormatRG32Sint,
		gputypes.TextureFormatRGBA16Unorm, gputypes.TextureFormatRGBA16Snorm,
		gputypes.TextureFormatRGBA16Uint, gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA16Float:
		return px(8), true
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint, gputypes.TextureFormatRGBA32Sint:
		return px(16), true

	case gputypes.TextureFormatStencil8:
		return FormatInfo{BlockWidth: 1, BlockHeight: 1, BlockBytes: 1, Stencil: true}, true
	case gputypes.TextureFormatDepth16Unorm:
		return FormatInfo{BlockWidth: 1, BlockHeight: 1, BlockBytes: 2, Depth: true}, true
	case gputypes.TextureFormatDepth24Plus, gputypes.TextureFormatDepth32Float:
		return FormatInfo{BlockWidth: 1, BlockHeight: 1, BlockBytes: 4, Depth: true}, true
	case gputypes.TextureFormatDepth24PlusStencil8:
		return FormatInfo{BlockWidth: 1, BlockHeight: 1, BlockBytes: 4, Depth: true, Stencil: true}, true
	case gputypes.TextureFormatDepth32FloatStencil8:
		return FormatInfo{BlockWidth: 1, BlockHeight: 1, BlockBytes: 8, Depth: true, Stencil: true}, true

	case gputypes.TextureFormatBC1RGBAUnorm, gputypes.TextureFormatBC1RGBAUnormSrgb,
		gputypes.TextureFormatBC4RUnorm, gputypes.TextureFormatBC4RSnorm,
		gputypes.TextureFormatETC2RGB8Unorm, gputypes.TextureFormatETC2RGB8UnormSrgb,
		gputypes.TextureFormatETC2RGB8A1Unorm, gputypes.TextureFormatETC2RGB8A1UnormSrgb,
		gputypes.TextureFormatEACR11Unorm, gputypes.TextureFormatEACR11Snorm:
		return block(8), true
	case gputypes.TextureFormatBC2RGBAUnorm, gputypes.TextureFormatBC2RGBAUnormSrgb,
		gputypes.TextureFormatBC3RGBAUnorm, gputypes.TextureFormatBC3RGBAUnormSrgb,
		gputypes.TextureFormatBC5RGUnorm, gputypes.TextureFormatBC5RGSnorm,
		gputypes.TextureFormatBC6HRGBUfloat, gputypes.TextureFormatBC6HRGBFloat,
		gputypes.TextureFormatBC7RGBAUnorm, gputypes.TextureFormatBC7RGBAUnormSrgb,
		gputypes.TextureFormatETC2RGBA8Unorm, gputypes.TextureFormatETC2RGBA8UnormSrgb,
		gputypes.TextureFormatEACRG11Unorm, gputypes.TextureFormatEACRG11Snorm,
		gputypes.TextureFormatASTC4x4Unorm, gputypes.TextureFormatASTC4x4UnormSrgb:
		return block(16), true
	}
	return FormatInfo{}, false
}

// RowPitch returns the tightly packed byte size of a row of blocks covering
// width pixels.
func (fi FormatInfo) RowPitch(width int) int {
	return (width + fi.BlockWidth - 1) / fi.BlockWidth * fi.BlockBytes
}

// Rows returns the number of block rows covering height pixels.
func (fi FormatInfo) Rows(height int) int {
	return (height + fi.BlockHeight - 1) / fi.BlockHeight
}

// ImageSize returns the tightly packed size of a width x height x depth box.
func (fi FormatInfo) ImageSize(width, height, depth int) int {
	return fi.RowPitch(width) * fi.Rows(height) * depth
}

// BytesPerPixel returns the pixel size of an uncompressed format, 0 for
// compressed and unknown formats.
func BytesPerPixel(f gputypes.TextureFormat) int {
	fi, ok := DescribeFormat(f)
	if !ok || fi.Compressed {
		return 0
	}
	return fi.BlockBytes
}

// CheckUpload validates an upload of data into region of a texture with
// format f. bytesPerRow 0 means tightly packed; it returns the effective
// row pitch.
func CheckUpload(f gputypes.TextureFormat, region TextureRegion, dataLen, bytesPerRow int) (int, error) {
	fi, ok := DescribeFormat(f)
	if !ok {
		return 0, Errorf("", "upload", ErrUnsupported, "format %v", f)
	}
	tight := fi.RowPitch(region.Width)
	if bytesPerRow == 0 {
		bytesPerRow = tight
	}
	if bytesPerRow < tight {
		return 0, Invalid("row pitch %d smaller than row size %d", bytesPerRow, tight)
	}
	rows := fi.Rows(region.Height)
	need := 0
	if rows > 0 && region.Depth > 0 {
		need = bytesPerRow*(rows*region.Depth-1) + tight
	}
	if dataLen < need {
		return 0, Invalid("%d bytes given for a %dx%dx%d region needing %d", dataLen, region.Width, region.Height, region.Depth, need)
	}
	return bytesPerRow, nil
}
