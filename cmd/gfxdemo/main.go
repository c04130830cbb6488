// Command gfxdemo renders a frame through a headless gfx context and saves
// it as PNG.
//
// Usage:
//
//	gfxdemo [-config demo.toml] [-backend soft] [-width 256] [-height 256] [-output out.png]
package main

import (
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/gogpu/gfx"
	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"

	// Backends selectable with -backend.
	_ "github.com/gogpu/gfx/backend/soft"
	_ "github.com/gogpu/gfx/backend/wgpu"
)

const triangleWGSL = `
@vertex
fn vs_main(@location(0) position: vec2<f32>) -> @builtin(position) vec4<f32> {
    return vec4<f32>(position, 0.0, 1.0);
}

@fragment
fn fs_main() -> @location(0) vec4<f32> {
    return vec4<f32>(1.0, 0.3, 0.2, 1.0);
}
`

func main() {
	var (
		configPath = flag.String("config", "", "TOML configuration file")
		dumpConfig = flag.String("dump-config", "", "write the effective configuration to this file and exit")
		backendFl  = flag.String("backend", "", "backend name (default: "+backend.EnvBackend+" or the platform default)")
		width      = flag.Int("width", 0, "image width")
		height     = flag.Int("height", 0, "image height")
		output     = flag.String("output", "", "output file")
		verbose    = flag.Bool("v", false, "log to stderr")
		list       = flag.Bool("list", false, "list registered backends and exit")
	)
	flag.Parse()

	if *list {
		for _, name := range backend.Available() {
			fmt.Println(name)
		}
		return
	}

	conf, err := loadConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			conf.Backend = *backendFl
		case "width":
			conf.Width = *width
		case "height":
			conf.Height = *height
		case "output":
			conf.Output = *output
		case "v":
			conf.Verbose = *verbose
		}
	})
	if err := conf.validate(); err != nil {
		log.Fatal(err)
	}
	if *dumpConfig != "" {
		if err := writeConfig(*dumpConfig, conf); err != nil {
			log.Fatal(err)
		}
		return
	}

	if conf.Verbose {
		gfx.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	img, err := render(conf)
	if err != nil {
		log.Fatalf("render: %v", err)
	}
	if err := savePNG(conf.Output, img); err != nil {
		log.Fatalf("save: %v", err)
	}
	log.Printf("Frame saved to %s (%dx%d)\n", conf.Output, conf.Width, conf.Height)
}

// render draws the demo frame into an offscreen color target and reads it
// back.
func render(conf Config) (image.Image, error) {
	if conf.Backend != "" {
		if err := backend.SetCurrent(conf.Backend); err != nil {
			return nil, err
		}
	}
	ctx, err := gfx.NewContext(
		gfx.WithLabel("gfxdemo"),
		gfx.WithSize(conf.Width, conf.Height),
		gfx.WithDepthStencil(gputypes.TextureFormatDepth24PlusStencil8),
	)
	if err != nil {
		return nil, err
	}
	defer ctx.Release()
	log.Printf("Backend %s, max texture size %d\n", ctx.Backend(), ctx.MaxTextureSize())

	target, err := ctx.CreateTexture2D(conf.Width, conf.Height, gputypes.TextureFormatRGBA8Unorm, 1)
	if err != nil {
		return nil, err
	}
	defer target.Release()
	fb := ctx.CreateFrameBuffer()
	defer fb.Release()
	if err := fb.AttachColor(0, gfx.TextureAttachment(target, 0, 0)); err != nil {
		return nil, err
	}
	if err := ctx.SetFrameBuffer(fb, nil); err != nil {
		return nil, err
	}
	if err := ctx.Clear(conf.clearColor()); err != nil {
		return nil, err
	}

	if err := drawChecker(ctx, target, conf); err != nil {
		return nil, err
	}
	if conf.Triangle {
		if err := drawTriangle(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Flush(); err != nil {
		return nil, err
	}

	pb, err := ctx.PixelDataFrom(fb, 0, image.Rect(0, 0, conf.Width, conf.Height), gputypes.TextureFormatRGBA8Unorm)
	if err != nil {
		return nil, err
	}
	return pb.Image()
}

// drawChecker uploads a checkerboard with a mip chain and copies its
// second level into the middle of target.
func drawChecker(ctx *gfx.Context, target *gfx.Texture, conf Config) error {
	w, h := conf.Width, conf.Height
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 240, G: 240, B: 240, A: 255}
			if (x/conf.Tile+y/conf.Tile)%2 == 1 {
				c = color.NRGBA{R: 30, G: 30, B: 30, A: 255}
			}
			src.SetNRGBA(x, y, c)
		}
	}
	levels := 1
	if conf.Mipmaps {
		levels = 0
	}
	tex, err := ctx.CreateTexture2D(w, h, gputypes.TextureFormatRGBA8Unorm, levels)
	if err != nil {
		return err
	}
	defer tex.Release()
	if err := tex.SetImage(0, gfx.PixelBufferFromImage(src)); err != nil {
		return err
	}
	level := 0
	if tex.Levels() > 1 {
		if err := tex.GenerateMipmap(); err != nil {
			return err
		}
		level = 1
	}
	lw, lh, _ := tex.LevelSize(level)
	region := gfx.TextureRegion{Level: level, Width: lw, Height: lh, Depth: 1}
	at := gfx.TextureRegion{X: (w - lw) / 2, Y: (h - lh) / 2}
	return ctx.CopyTexture(target, at, tex, region)
}

// drawTriangle draws one triangle and reports the samples counted by an
// occlusion query around it.
func drawTriangle(ctx *gfx.Context) error {
	prog, err := ctx.CreateProgramFromSource(triangleWGSL)
	if err != nil {
		return err
	}
	defer prog.Release()
	verts := []float32{-0.8, -0.8, 0.8, -0.8, 0, 0.8}
	data := make([]byte, len(verts)*4)
	for i, v := range verts {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	vb, err := ctx.CreateVertexBuffer(len(data), gfx.StaticDraw)
	if err != nil {
		return err
	}
	defer vb.Release()
	if err := vb.Upload(data); err != nil {
		return err
	}
	arr := ctx.CreatePrimitivesArray()
	defer arr.Release()
	if err := arr.SetAttributes(gfx.VertexAttribute{
		Location: 0, Buffer: vb, Format: gputypes.VertexFormatFloat32x2, Stride: 8,
	}); err != nil {
		return err
	}
	if err := ctx.SetProgram(prog); err != nil {
		return err
	}

	// Occlusion queries are optional; wgpu devices do not provide them.
	q, err := ctx.CreateOcclusionQuery()
	switch {
	case errors.Is(err, gfx.ErrUnsupported):
		return ctx.DrawPrimitives(gputypes.PrimitiveTopologyTriangleList, 3, arr)
	case err != nil:
		return err
	}
	defer q.Release()
	if err := q.Begin(); err != nil {
		return err
	}
	if err := ctx.DrawPrimitives(gputypes.PrimitiveTopologyTriangleList, 3, arr); err != nil {
		return err
	}
	if err := q.End(); err != nil {
		return err
	}
	if err := ctx.Flush(); err != nil {
		return err
	}
	if samples, ok, err := q.Result(); err != nil {
		return err
	} else if ok {
		log.Printf("Triangle passed %d samples\n", samples)
	}
	return nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
