// Package mipgen builds mipmap chains for 8-bit RGBA textures on the CPU.
package mipgen

import (
	"errors"
	"image"

	"golang.org/x/image/draw"
)

// ErrSize is returned when the data does not match the given dimensions.
var ErrSize = errors.New("mipgen: data size does not match dimensions")

// Level is one generated mip level, tightly packed (stride = 4*Width).
type Level struct {
	Width, Height int
	Pix           []byte
}

// LevelSize returns the size of mip level n for a base dimension.
func LevelSize(base, n int) int {
	s := base >> n
	if s < 1 {
		return 1
	}
	return s
}

// Generate downsamples an RGBA8 base image into levels-1 further levels.
// Each level is filtered from the previous one with a bilinear kernel.
// The returned slice excludes the base level.
func Generate(pix []byte, width, height, stride, levels int) ([]Level, error) {
	if width <= 0 || height <= 0 || stride < 4*width || len(pix) < stride*(height-1)+4*width {
		return nil, ErrSize
	}
	src := &image.RGBA{Pix: pix, Stride: stride, Rect: image.Rect(0, 0, width, height)}

	out := make([]Level, 0, max(levels-1, 0))
	for n := 1; n < levels; n++ {
		w, h := LevelSize(width, n), LevelSize(height, n)
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		out = append(out, Level{Width: w, Height: h, Pix: dst.Pix})
		src = dst
	}
	return out, nil
}
