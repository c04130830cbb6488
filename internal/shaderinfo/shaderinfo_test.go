package shaderinfo

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

const texturedWGSL = `
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

const computeWGSL = `
@group(2) @binding(0) var<storage, read> src: array<u32>;
@group(2) @binding(1) var<storage, read_write> dst: array<u32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    dst[id.x] = src[id.x] * 2u;
}
`

func TestReflectVertexInputs(t *testing.T) {
	m, err := Reflect(texturedWGSL)
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	vs, err := m.EntryPoint("vs_main", StageVertex)
	if err != nil {
		t.Fatalf("EntryPoint(vs_main): %v", err)
	}
	want := []Input{
		{Name: "position", Location: 0, Format: gputypes.VertexFormatFloat32x3},
		{Name: "uv", Location: 1, Format: gputypes.VertexFormatFloat32x2},
	}
	if len(vs.Inputs) != len(want) {
		t.Fatalf("len(Inputs) = %d, want %d", len(vs.Inputs), len(want))
	}
	for i, in := range vs.Inputs {
		if in.Location != want[i].Location || in.Format != want[i].Format {
			t.Errorf("Inputs[%d] = %+v, want %+v", i, in, want[i])
		}
	}

	fs, err := m.EntryPoint("", StageFragment)
	if err != nil {
		t.Fatalf("EntryPoint(fragment): %v", err)
	}
	if fs.Name != "fs_main" || fs.Outputs != 1 {
		t.Errorf("fragment entry = %q with %d outputs, want fs_main with 1", fs.Name, fs.Outputs)
	}
}

func TestReflectResources(t *testing.T) {
	m, err := Reflect(texturedWGSL)
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	tests := []struct {
		group, binding uint32
		kind           ResourceKind
	}{
		{0, 0, ResourceUniform},
		{1, 0, ResourceTexture},
		{1, 1, ResourceSampler},
	}
	if len(m.Resources) != len(tests) {
		t.Fatalf("len(Resources) = %d, want %d", len(m.Resources), len(tests))
	}
	for i, tt := range tests {
		r := m.Resources[i]
		if r.Group != tt.group || r.Binding != tt.binding || r.Kind != tt.kind {
			t.Errorf("Resources[%d] = %d/%d %s, want %d/%d %s",
				i, r.Group, r.Binding, r.Kind, tt.group, tt.binding, tt.kind)
		}
	}
	if tex := m.Resources[1]; tex.ViewDimension != gputypes.TextureViewDimension2D ||
		tex.SampleType != gputypes.TextureSampleTypeFloat {
		t.Errorf("texture binding = %+v", tex)
	}
}

func TestReflectCompute(t *testing.T) {
	m, err := Reflect(computeWGSL)
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	cs, err := m.EntryPoint("main", StageCompute)
	if err != nil {
		t.Fatalf("EntryPoint: %v", err)
	}
	if cs.Workgroup[0] != 64 {
		t.Errorf("Workgroup = %v, want [64 1 1]", cs.Workgroup)
	}
	if len(m.Resources) != 2 {
		t.Fatalf("len(Resources) = %d, want 2", len(m.Resources))
	}
	if !m.Resources[0].ReadOnly || m.Resources[1].ReadOnly {
		t.Errorf("read-only flags = %v, %v; want true, false",
			m.Resources[0].ReadOnly, m.Resources[1].ReadOnly)
	}
}

func TestEntryPointMissing(t *testing.T) {
	m, err := Reflect(computeWGSL)
	if err != nil {
		t.Fatalf("Reflect: %v", err)
	}
	if _, err := m.EntryPoint("", StageVertex); !errors.Is(err, ErrNoEntryPoint) {
		t.Errorf("err = %v, want ErrNoEntryPoint", err)
	}
}

func TestReflectSyntaxError(t *testing.T) {
	if _, err := Reflect("@vertex fn broken( -> {"); err == nil {
		t.Error("Reflect accepted invalid WGSL")
	}
}
