// Package gfx provides a backend-agnostic graphic context for GPU rendering.
//
// # Overview
//
// gfx sits between a drawing layer and a native graphics API. It owns the
// GPU resources (textures, buffers, frame buffers, shaders, programs and
// immutable state objects), tracks the bound pipeline state and forwards
// only real changes to the active backend. The backend family is chosen
// once per process through package backend.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/gfx"
//		_ "github.com/gogpu/gfx/backend/soft"
//	)
//
//	ctx, err := gfx.NewContext(gfx.WithSize(512, 512))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ctx.Release()
//
//	ctx.Clear(gputypes.Color{R: 1, A: 1})
//	pb, err := ctx.PixelData(image.Rect(0, 0, 512, 512), gputypes.TextureFormatRGBA8Unorm)
//
// # Windows
//
// A [Window] owns a swap chain and the [Context] rendering into it. Resize,
// Flip and Update keep the context's default render target in sync with
// the swap chain; partial updates go through a shadow copy of the back
// buffer when the swap chain does not preserve its contents.
//
// # Shaders
//
// Shaders are WGSL. Resources follow a fixed unit convention so that units
// set on the context map to shader bindings:
//
//	@group(0) @binding(N)     uniform buffer unit N
//	@group(1) @binding(2N)    texture unit N
//	@group(1) @binding(2N+1)  sampler of texture unit N
//	@group(2) @binding(N)     storage buffer unit N
//	@group(3) @binding(N)     image unit N
//
// # Errors
//
// Every failure matches one of the sentinel errors ([ErrCreation],
// [ErrInvalidUsage], [ErrDeviceLost], [ErrSharing], ...) with errors.Is.
// Recovery from device loss is the window owner's job, see [Window.Recreate].
//
// # Concurrency
//
// A Context and the resources created from it belong to one goroutine.
package gfx
