package soft

import (
	"bytes"
	"errors"
	"math"
	"image"
	"testing"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
)

const testWGSL = `
struct Uniforms {
    transform: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> u: Uniforms;
@group(1) @binding(0) var tex: texture_2d<f32>;
@group(1) @binding(1) var samp: sampler;

struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@location(0) position: vec3<f32>, @location(1) uv: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.position = u.transform * vec4<f32>(position, 1.0);
    out.uv = uv;
    return out;
}

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(tex, samp, in.uv);
}
`

func newTestDevice(t *testing.T) *Device {
	t.Helper()
	d := NewDevice(t.Name())
	t.Cleanup(d.Release)
	return d
}

func newRGBA(t *testing.T, d *Device, w, h int) *Texture {
	t.Helper()
	tex, err := d.CreateTexture(&backend.TextureDescriptor{
		Kind: backend.Texture2D, Width: w, Height: h, Levels: 1,
		Format: gputypes.TextureFormatRGBA8Unorm,
	})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	return tex.(*Texture)
}

func TestTextureWriteRead(t *testing.T) {
	d := newTestDevice(t)
	tex := newRGBA(t, d, 8, 4)

	data := make([]byte, 3*2*4)
	for i := range data {
		data[i] = byte(i + 1)
	}
	region := backend.TextureRegion{X: 2, Y: 1, Width: 3, Height: 2, Depth: 1}
	if err := tex.Write(region, data, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := make([]byte, len(data))
	if err := tex.Read(region, got, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read = %v, want %v", got, data)
	}

	// Pixel (1,1) lies outside the written region.
	px := make([]byte, 4)
	if err := tex.Read(backend.TextureRegion{X: 1, Y: 1, Width: 1, Height: 1, Depth: 1}, px, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(px, []byte{0, 0, 0, 0}) {
		t.Errorf("untouched pixel = %v", px)
	}

	if err := tex.Write(backend.TextureRegion{X: 7, Width: 2, Height: 1, Depth: 1}, data, 0); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("out of bounds write error = %v", err)
	}
	if err := tex.Write(region, data[:10], 0); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("short write error = %v", err)
	}
}

func TestTextureLayersAndLevels(t *testing.T) {
	d := newTestDevice(t)
	tex, err := d.CreateTexture(&backend.TextureDescriptor{
		Kind: backend.TextureCube, Width: 4, Height: 4, Format: gputypes.TextureFormatR8Unorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	desc := tex.Descriptor()
	if desc.Levels != 3 || desc.ArrayLayers() != 6 {
		t.Fatalf("levels=%d layers=%d, want 3 and 6", desc.Levels, desc.ArrayLayers())
	}
	face := backend.TextureRegion{Level: 1, Z: 5, Width: 2, Height: 2, Depth: 1}
	if err := tex.Write(face, []byte{9, 8, 7, 6}, 0); err != nil {
		t.Fatalf("Write face 5: %v", err)
	}
	got := make([]byte, 4)
	other := face
	other.Z = 4
	if err := tex.Read(other, got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, make([]byte, 4)) {
		t.Errorf("face 4 = %v, want zeros", got)
	}
	if err := tex.Read(face, got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{9, 8, 7, 6}) {
		t.Errorf("face 5 = %v", got)
	}
}

func TestCompressedTextureBlocks(t *testing.T) {
	d := newTestDevice(t)
	tex, err := d.CreateTexture(&backend.TextureDescriptor{
		Kind: backend.Texture2D, Width: 8, Height: 8, Levels: 1,
		Format: gputypes.TextureFormatBC1RGBAUnorm,
	})
	if err != nil {
		t.Fatal(err)
	}
	// 8x8 pixels = 2x2 blocks of 8 bytes.
	if err := tex.Write(backend.TextureRegion{Width: 8, Height: 8, Depth: 1}, make([]byte, 32), 0); err != nil {
		t.Errorf("full block upload: %v", err)
	}
	if err := tex.Write(backend.TextureRegion{X: 2, Width: 4, Height: 4, Depth: 1}, make([]byte, 8), 0); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("unaligned block upload error = %v", err)
	}
}

func TestBufferAccess(t *testing.T) {
	d := newTestDevice(t)
	vb, _ := d.CreateBuffer(&backend.BufferDescriptor{Kind: backend.BufferVertex, Size: 16})
	st, _ := d.CreateBuffer(&backend.BufferDescriptor{Kind: backend.BufferStaging, Size: 16, Direction: backend.FromGPU})

	if err := vb.Write(0, []byte{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := vb.Read(0, make([]byte, 4)); !errors.Is(err, backend.ErrUnsupported) {
		t.Errorf("vertex buffer Read error = %v, want ErrUnsupported", err)
	}
	if err := vb.Write(14, []byte{1, 2, 3}); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("overflowing write error = %v", err)
	}

	cmds := d.Commands()
	if err := cmds.CopyBuffer(st, 4, vb, 0, 4); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 8)
	if err := st.Read(0, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{0, 0, 0, 0, 1, 2, 3, 4}) {
		t.Errorf("staging = %v", got)
	}
}

func TestCopyBufferBounds(t *testing.T) {
	d := newTestDevice(t)
	a, _ := d.CreateBuffer(&backend.BufferDescriptor{Kind: backend.BufferStaging, Size: 8})
	b, _ := d.CreateBuffer(&backend.BufferDescriptor{Kind: backend.BufferStaging, Size: 4})
	cmds := d.Commands()
	for dstPos := 0; dstPos <= 5; dstPos++ {
		for srcPos := 0; srcPos <= 9; srcPos++ {
			for size := 0; size <= 5; size++ {
				err := cmds.CopyBuffer(b, dstPos, a, srcPos, size)
				inBounds := dstPos+size <= 4 && srcPos+size <= 8
				if inBounds && err != nil {
					t.Errorf("copy(dst=%d, src=%d, n=%d) error = %v", dstPos, srcPos, size, err)
				}
				if !inBounds && !errors.Is(err, backend.ErrInvalidUsage) {
					t.Errorf("copy(dst=%d, src=%d, n=%d) error = %v, want ErrInvalidUsage", dstPos, srcPos, size, err)
				}
			}
		}
	}
	for _, c := range [][3]int{{1, 1, math.MaxInt}, {math.MaxInt, 0, 1}, {0, math.MaxInt, 1}} {
		if err := cmds.CopyBuffer(b, c[0], a, c[1], c[2]); !errors.Is(err, backend.ErrInvalidUsage) {
			t.Errorf("copy(dst=%d, src=%d, n=%d) error = %v, want ErrInvalidUsage", c[0], c[1], c[2], err)
		}
	}
}

func TestClearAndReadPixels(t *testing.T) {
	d := newTestDevice(t)
	tex := newRGBA(t, d, 4, 4)
	v, err := d.CreateRenderTargetView(backend.ViewTarget{Texture: tex})
	if err != nil {
		t.Fatal(err)
	}
	defer v.Release()

	cmds := d.Commands()
	if err := cmds.SetRenderTargets([]backend.View{v}, nil); err != nil {
		t.Fatal(err)
	}
	if err := cmds.ClearColor(v, gputypes.Color{R: 1, G: 0, B: 0, A: 1}); err != nil {
		t.Fatal(err)
	}
	px := make([]byte, 2*2*4)
	if err := cmds.ReadPixels(image.Rect(1, 1, 3, 3), px, 0); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < len(px); i += 4 {
		if !bytes.Equal(px[i:i+4], []byte{255, 0, 0, 255}) {
			t.Fatalf("pixel %d = %v, want red", i/4, px[i:i+4])
		}
	}
	if err := cmds.ReadPixels(image.Rect(2, 2, 5, 3), px, 0); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("out of bounds read error = %v", err)
	}
}

func TestClearDepthStencil(t *testing.T) {
	d := newTestDevice(t)
	rb, err := d.CreateRenderBuffer(&backend.RenderBufferDescriptor{
		Width: 2, Height: 2, Format: gputypes.TextureFormatDepth24PlusStencil8,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := d.CreateRenderTargetView(backend.ViewTarget{RenderBuffer: rb}); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("color view of depth buffer error = %v", err)
	}
	v, err := d.CreateDepthStencilView(backend.ViewTarget{RenderBuffer: rb})
	if err != nil {
		t.Fatal(err)
	}
	cmds := d.Commands()
	if err := cmds.ClearDepthStencil(v, backend.ClearDepth|backend.ClearStencil, 1, 0x7f); err != nil {
		t.Fatal(err)
	}
	if err := cmds.ClearDepthStencil(v, backend.ClearStencil, 0, 3); err != nil {
		t.Fatal(err)
	}
	pix := rb.(*RenderBuffer).pix
	if pix[0] != 0xff || pix[1] != 0xff || pix[2] != 0xff || pix[3] != 3 {
		t.Errorf("texel = % x, want depth 1.0 and stencil 3", pix[:4])
	}
}

func TestCopyTextureToBuffer(t *testing.T) {
	d := newTestDevice(t)
	tex := newRGBA(t, d, 4, 2)
	src := make([]byte, 4*2*4)
	for i := range src {
		src[i] = byte(i)
	}
	if err := tex.Write(backend.TextureRegion{Width: 4, Height: 2, Depth: 1}, src, 0); err != nil {
		t.Fatal(err)
	}
	buf, _ := d.CreateBuffer(&backend.BufferDescriptor{Kind: backend.BufferStaging, Size: 64, Direction: backend.FromGPU})
	cmds := d.Commands()
	region := backend.TextureRegion{X: 1, Width: 2, Height: 2, Depth: 1}
	if err := cmds.CopyTextureToBuffer(buf, 0, 32, tex, region); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 64)
	_ = buf.Read(0, got)
	if !bytes.Equal(got[0:8], src[4:12]) || !bytes.Equal(got[32:40], src[20:28]) {
		t.Errorf("copied rows = %v / %v", got[0:8], got[32:40])
	}
	if err := cmds.CopyTextureToBuffer(buf, 40, 32, tex, region); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("overflowing copy error = %v", err)
	}
}

func TestCopyTexture(t *testing.T) {
	d := newTestDevice(t)
	a := newRGBA(t, d, 4, 4)
	b := newRGBA(t, d, 4, 4)
	red := bytes.Repeat([]byte{255, 0, 0, 255}, 4)
	_ = a.Write(backend.TextureRegion{Width: 2, Height: 2, Depth: 1}, red, 0)

	cmds := d.Commands()
	err := cmds.CopyTexture(b, backend.TextureRegion{X: 2, Y: 2}, a, backend.TextureRegion{Width: 2, Height: 2, Depth: 1})
	if err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 16)
	_ = b.Read(backend.TextureRegion{X: 2, Y: 2, Width: 2, Height: 2, Depth: 1}, got, 0)
	if !bytes.Equal(got, red) {
		t.Errorf("copied = %v", got)
	}
	err = cmds.CopyTexture(b, backend.TextureRegion{X: 3, Y: 3}, a, backend.TextureRegion{Width: 2, Height: 2, Depth: 1})
	if !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("out of bounds copy error = %v", err)
	}
}

func TestShareTexture(t *testing.T) {
	d1 := newTestDevice(t)
	d2 := newTestDevice(t)
	tex := newRGBA(t, d1, 2, 2)

	h, err := tex.ShareHandle()
	if err != nil {
		t.Fatal(err)
	}
	opened, err := d2.OpenSharedTexture(h)
	if err != nil {
		t.Fatal(err)
	}
	if opened.NativeHandle() == tex.NativeHandle() {
		t.Error("opened texture reuses the source handle")
	}
	_ = tex.Write(backend.TextureRegion{Width: 1, Height: 1, Depth: 1}, []byte{1, 2, 3, 4}, 0)
	got := make([]byte, 4)
	if err := opened.Read(backend.TextureRegion{Width: 1, Height: 1, Depth: 1}, got, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("shared read = %v", got)
	}

	if _, err := d2.OpenSharedTexture(0xdead); !errors.Is(err, backend.ErrSharing) {
		t.Errorf("unknown handle error = %v, want ErrSharing", err)
	}
	tex.Release()
	if _, err := d2.OpenSharedTexture(h); !errors.Is(err, backend.ErrSharing) {
		t.Errorf("released handle error = %v, want ErrSharing", err)
	}
}

func TestDeviceLost(t *testing.T) {
	d := newTestDevice(t)
	d.Lose("driver reset")
	_, err := d.CreateBuffer(&backend.BufferDescriptor{Kind: backend.BufferVertex, Size: 4})
	if !errors.Is(err, backend.ErrDeviceLost) {
		t.Fatalf("error = %v, want ErrDeviceLost", err)
	}
	var be *backend.Error
	if !errors.As(err, &be) || be.Reason != "driver reset" {
		t.Errorf("reason = %+v", be)
	}
}

func TestReleasedDevice(t *testing.T) {
	d := NewDevice("released")
	buf, _ := d.CreateBuffer(&backend.BufferDescriptor{Kind: backend.BufferStaging, Size: 4})
	d.Release()
	if err := buf.Write(0, []byte{1}); !errors.Is(err, backend.ErrReleased) {
		t.Errorf("write after device release error = %v, want ErrReleased", err)
	}
}

type drawSetup struct {
	dev  *Device
	cmds backend.Commands
	vs   backend.Shader
	fs   backend.Shader
	info *backend.ProgramInfo
	vb   backend.Buffer
	rt   backend.View
}

func newDrawSetup(t *testing.T) *drawSetup {
	t.Helper()
	d := newTestDevice(t)
	vs, err := d.CreateShader(&backend.ShaderDescriptor{Stage: backend.StageVertex, Source: testWGSL})
	if err != nil {
		t.Fatalf("vertex shader: %v", err)
	}
	fs, err := d.CreateShader(&backend.ShaderDescriptor{Stage: backend.StageFragment, Source: testWGSL})
	if err != nil {
		t.Fatalf("fragment shader: %v", err)
	}
	info, err := backend.NewProgramInfo(vs, fs)
	if err != nil {
		t.Fatal(err)
	}
	vb, _ := d.CreateBuffer(&backend.BufferDescriptor{Kind: backend.BufferVertex, Size: 3 * 20})
	rt, err := d.CreateRenderTargetView(backend.ViewTarget{Texture: newRGBA(t, d, 4, 4)})
	if err != nil {
		t.Fatal(err)
	}
	cmds := d.Commands()
	_ = cmds.SetRenderTargets([]backend.View{rt}, nil)
	_ = cmds.SetShader(backend.StageVertex, vs)
	_ = cmds.SetShader(backend.StageFragment, fs)
	return &drawSetup{dev: d, cmds: cmds, vs: vs, fs: fs, info: info, vb: vb, rt: rt}
}

func (s *drawSetup) layout(t *testing.T) backend.InputLayout {
	t.Helper()
	l, err := s.dev.CreateInputLayout(s.info, []backend.VertexAttribute{
		{Location: 0, Buffer: s.vb, Format: gputypes.VertexFormatFloat32x3, Stride: 20},
		{Location: 1, Buffer: s.vb, Format: gputypes.VertexFormatFloat32x2, Offset: 12, Stride: 20},
	})
	if err != nil {
		t.Fatalf("CreateInputLayout: %v", err)
	}
	return l
}

func TestDrawRequiresLayout(t *testing.T) {
	s := newDrawSetup(t)
	if err := s.cmds.Draw(gputypes.PrimitiveTopologyTriangleList, 3, 1, 0, 0); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("draw without layout error = %v", err)
	}
	_ = s.cmds.SetInputLayout(s.layout(t))
	if err := s.cmds.Draw(gputypes.PrimitiveTopologyTriangleList, 3, 1, 0, 0); err != nil {
		t.Fatalf("draw: %v", err)
	}
	if err := s.cmds.Draw(gputypes.PrimitiveTopologyTriangleList, 4, 1, 0, 0); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("draw past vertex buffer error = %v", err)
	}
	for _, a := range [][4]int{
		{math.MaxInt, 1, 1, 0},
		{math.MaxInt / 2, 1, 0, 0},
		{3, math.MaxInt, 0, 1},
	} {
		if err := s.cmds.Draw(gputypes.PrimitiveTopologyTriangleList, a[0], a[1], a[2], a[3]); !errors.Is(err, backend.ErrInvalidUsage) {
			t.Errorf("Draw%v error = %v, want ErrInvalidUsage", a, err)
		}
	}

	draws := s.dev.Draws()
	if len(draws) != 1 {
		t.Fatalf("recorded %d draws, want 1", len(draws))
	}
	rec := draws[0]
	if rec.VertexCount != 3 || rec.LayoutProgram != s.info || rec.Rasterizer != backend.DefaultRasterizer() {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Colors) != 1 || rec.Colors[0] != s.rt {
		t.Errorf("record colors = %v", rec.Colors)
	}
}

func TestDrawIndexed(t *testing.T) {
	s := newDrawSetup(t)
	_ = s.cmds.SetInputLayout(s.layout(t))
	ib, _ := s.dev.CreateBuffer(&backend.BufferDescriptor{Kind: backend.BufferElement, Size: 8})
	_ = ib.Write(0, []byte{0, 0, 1, 0, 2, 0, 3, 0})

	if err := s.cmds.SetIndexBuffer(ib, gputypes.IndexFormatUint16, 1); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("unaligned index offset error = %v", err)
	}
	if err := s.cmds.SetIndexBuffer(ib, gputypes.IndexFormatUint16, 0); err != nil {
		t.Fatal(err)
	}
	if err := s.cmds.DrawIndexed(gputypes.PrimitiveTopologyTriangleList, 3, 1, 0, 0, 0); err != nil {
		t.Fatalf("DrawIndexed: %v", err)
	}
	// Index 3 addresses a fourth vertex the buffer does not hold.
	if err := s.cmds.DrawIndexed(gputypes.PrimitiveTopologyTriangleList, 3, 1, 1, 0, 0); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("draw reading vertex 3 error = %v", err)
	}
	if err := s.cmds.DrawIndexed(gputypes.PrimitiveTopologyTriangleList, 6, 1, 0, 0, 0); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("draw past index buffer error = %v", err)
	}
	for _, a := range [][3]int{
		{math.MaxInt/2 + 1, 0, 0},
		{1, math.MaxInt, 0},
		{3, 0, math.MaxInt},
	} {
		if err := s.cmds.DrawIndexed(gputypes.PrimitiveTopologyTriangleList, a[0], 1, a[1], a[2], 0); !errors.Is(err, backend.ErrInvalidUsage) {
			t.Errorf("DrawIndexed(count %d, first %d, base %d) error = %v, want ErrInvalidUsage", a[0], a[1], a[2], err)
		}
	}
	if n := len(s.dev.Draws()); n != 1 {
		t.Errorf("recorded %d draws, want 1", n)
	}
}

func TestOcclusionQuery(t *testing.T) {
	s := newDrawSetup(t)
	_ = s.cmds.SetInputLayout(s.layout(t))
	q, _ := s.dev.CreateQuery()
	if err := s.cmds.BeginQuery(q); err != nil {
		t.Fatal(err)
	}
	_ = s.cmds.Draw(gputypes.PrimitiveTopologyTriangleList, 3, 2, 0, 0)
	if _, _, err := q.Result(); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("Result while active error = %v", err)
	}
	_ = s.cmds.EndQuery(q)
	n, ok, err := q.Result()
	if err != nil || !ok || n != 6 {
		t.Errorf("Result() = %d, %v, %v; want 6, true", n, ok, err)
	}
}

func TestUnitRange(t *testing.T) {
	d := newTestDevice(t)
	cmds := d.Commands()
	for _, unit := range []int{-1, backend.MaxUnits} {
		if err := cmds.SetTexture(unit, nil); !errors.Is(err, backend.ErrInvalidUsage) {
			t.Errorf("SetTexture(%d) error = %v", unit, err)
		}
		if err := cmds.SetUniformBuffer(unit, nil); !errors.Is(err, backend.ErrInvalidUsage) {
			t.Errorf("SetUniformBuffer(%d) error = %v", unit, err)
		}
	}
	if err := cmds.SetStorageBuffer(backend.MaxUnits-1, nil); err != nil {
		t.Errorf("SetStorageBuffer(255) error = %v", err)
	}
}

func TestSwapChainPresent(t *testing.T) {
	d := newTestDevice(t)
	sc, err := d.CreateSwapChain(&backend.SwapChainDescriptor{Width: 4, Height: 4, BufferCount: 2})
	if err != nil {
		t.Fatal(err)
	}
	soft := sc.(*SwapChain)
	if !sc.NeedsShadowBuffer() {
		t.Error("double-buffered swap chain should need a shadow buffer")
	}
	back, _ := sc.BackBuffer()
	v, err := d.CreateRenderTargetView(backend.ViewTarget{Texture: back})
	if err != nil {
		t.Fatal(err)
	}
	cmds := d.Commands()

	// BGRA back buffer; presented image is RGBA.
	_ = cmds.ClearColor(v, gputypes.Color{R: 1, A: 1})
	if err := sc.Present(1, nil); err != nil {
		t.Fatal(err)
	}
	if got := soft.Presented().RGBAAt(3, 3); got.R != 255 || got.B != 0 {
		t.Errorf("presented pixel = %v, want red", got)
	}

	_ = cmds.ClearColor(v, gputypes.Color{G: 1, A: 1})
	if err := sc.Present(0, []image.Rectangle{image.Rect(0, 0, 2, 2)}); err != nil {
		t.Fatal(err)
	}
	if got := soft.Presented().RGBAAt(1, 1); got.G != 255 {
		t.Errorf("damaged pixel = %v, want green", got)
	}
	if got := soft.Presented().RGBAAt(3, 3); got.R != 255 {
		t.Errorf("undamaged pixel = %v, want red", got)
	}
	if soft.PresentCount() != 2 || soft.LastInterval() != 0 {
		t.Errorf("count=%d interval=%d", soft.PresentCount(), soft.LastInterval())
	}

	if err := sc.Resize(8, 8); !errors.Is(err, backend.ErrInvalidUsage) {
		t.Errorf("resize with live view error = %v", err)
	}
	v.Release()
	if err := sc.Resize(8, 8); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	back2, _ := sc.BackBuffer()
	if w := back2.Descriptor().Width; w != 8 {
		t.Errorf("back buffer width = %d, want 8", w)
	}
}

func TestSwapChainRotatesContents(t *testing.T) {
	d := newTestDevice(t)
	sc, _ := d.CreateSwapChain(&backend.SwapChainDescriptor{Width: 2, Height: 2, BufferCount: 2, Format: gputypes.TextureFormatRGBA8Unorm})
	back, _ := sc.BackBuffer()
	v, _ := d.CreateRenderTargetView(backend.ViewTarget{Texture: back})
	_ = d.Commands().ClearColor(v, gputypes.Color{B: 1, A: 1})
	_ = sc.Present(0, nil)

	px := make([]byte, 4)
	_ = back.Read(backend.TextureRegion{Width: 1, Height: 1, Depth: 1}, px, 0)
	if px[2] == 255 {
		t.Error("back buffer kept its contents across Present")
	}
}
