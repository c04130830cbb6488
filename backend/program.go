package backend

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gogpu/gfx/internal/shaderinfo"
	"github.com/gogpu/gputypes"
)

// ShaderStage is a pipeline stage.
type ShaderStage = shaderinfo.Stage

// Shader stages.
const (
	StageVertex   = shaderinfo.StageVertex
	StageFragment = shaderinfo.StageFragment
	StageCompute  = shaderinfo.StageCompute
)

// ShaderDescriptor describes a WGSL shader. EntryPoint may be empty to
// select the first entry point of Stage.
type ShaderDescriptor struct {
	Label      string
	Stage      ShaderStage
	Source     string
	EntryPoint string
}

// Bind groups of the unit convention. Shaders address units by
// @group/@binding:
//
//	group 0, binding N     uniform buffer unit N
//	group 1, binding 2N    texture unit N
//	group 1, binding 2N+1  sampler of texture unit N
//	group 2, binding N     storage buffer unit N
//	group 3, binding N     image (storage texture) unit N
const (
	GroupUniform = 0
	GroupTexture = 1
	GroupStorage = 2
	GroupImage   = 3
	NumGroups    = 4
)

// UnitKind is the kind of unit a binding occupies.
type UnitKind uint8

// Unit kinds.
const (
	UnitUniform UnitKind = iota
	UnitTexture
	UnitSampler
	UnitStorage
	UnitImage
)

func (k UnitKind) String() string {
	switch k {
	case UnitUniform:
		return "uniform"
	case UnitTexture:
		return "texture"
	case UnitSampler:
		return "sampler"
	case UnitStorage:
		return "storage"
	case UnitImage:
		return "image"
	}
	return "unknown"
}

// UnitBinding is one resource binding of a program mapped to its unit.
type UnitBinding struct {
	Kind     UnitKind
	Unit     int
	Stages   gputypes.ShaderStage
	Resource shaderinfo.Resource
}

// ProgramInfo is the merged interface of the shaders of a program.
type ProgramInfo struct {
	Inputs  []shaderinfo.Input
	Units   []UnitBinding // sorted by group, then binding
	Outputs int
	Compute bool
}

// Uses reports whether the program reads unit of the given kind.
func (p *ProgramInfo) Uses(kind UnitKind, unit int) bool {
	return p.Unit(kind, unit) != nil
}

// Unit returns the binding of unit, or nil.
func (p *ProgramInfo) Unit(kind UnitKind, unit int) *UnitBinding {
	for i := range p.Units {
		if p.Units[i].Kind == kind && p.Units[i].Unit == unit {
			return &p.Units[i]
		}
	}
	return nil
}

// Input returns the vertex input at location, or nil.
func (p *ProgramInfo) Input(location uint32) *shaderinfo.Input {
	for i := range p.Inputs {
		if p.Inputs[i].Location == location {
			return &p.Inputs[i]
		}
	}
	return nil
}

// NewProgramInfo merges the reflected interfaces of shaders. A program is
// either a compute shader alone or a vertex shader with an optional
// fragment shader.
func NewProgramInfo(shaders ...Shader) (*ProgramInfo, error) {
	info := &ProgramInfo{}
	var seen [3]bool
	for _, s := range shaders {
		if s == nil {
			continue
		}
		st := s.Stage()
		if seen[st] {
			return nil, Invalid("program has two %s shaders", st)
		}
		seen[st] = true
		ep := s.EntryPoint()
		switch st {
		case StageVertex:
			info.Inputs = append(info.Inputs, ep.Inputs...)
		case StageFragment:
			info.Outputs = ep.Outputs
		case StageCompute:
			info.Compute = true
		}
		for _, r := range s.Module().Resources {
			if err := info.addResource(r, st.ShaderStage()); err != nil {
				return nil, err
			}
		}
	}
	switch {
	case info.Compute && (seen[StageVertex] || seen[StageFragment]):
		return nil, Invalid("compute shader cannot be combined with graphics stages")
	case !info.Compute && !seen[StageVertex]:
		return nil, Invalid("program has no vertex shader")
	}
	sort.Slice(info.Units, func(i, j int) bool {
		a, b := info.Units[i].Resource, info.Units[j].Resource
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Binding < b.Binding
	})
	return info, nil
}

func (p *ProgramInfo) addResource(r shaderinfo.Resource, stage gputypes.ShaderStage) error {
	kind, unit, err := unitOf(r)
	if err != nil {
		return err
	}
	if unit >= MaxUnits {
		return Invalid("%s %q uses unit %d, limit is %d", kind, r.Name, unit, MaxUnits)
	}
	if u := p.Unit(kind, unit); u != nil {
		u.Stages |= stage
		return nil
	}
	p.Units = append(p.Units, UnitBinding{Kind: kind, Unit: unit, Stages: stage, Resource: r})
	return nil
}

func unitOf(r shaderinfo.Resource) (UnitKind, int, error) {
	b := int(r.Binding)
	switch r.Group {
	case GroupUniform:
		if r.Kind == shaderinfo.ResourceUniform {
			return UnitUniform, b, nil
		}
	case GroupTexture:
		if r.Kind == shaderinfo.ResourceTexture && b%2 == 0 {
			return UnitTexture, b / 2, nil
		}
		if r.Kind == shaderinfo.ResourceSampler && b%2 == 1 {
			return UnitSampler, b / 2, nil
		}
	case GroupStorage:
		if r.Kind == shaderinfo.ResourceStorage {
			return UnitStorage, b, nil
		}
	case GroupImage:
		if r.Kind == shaderinfo.ResourceStorageTexture {
			return UnitImage, b, nil
		}
	}
	return 0, 0, Invalid("%s %q at @group(%d) @binding(%d) does not follow the unit layout",
		r.Kind, r.Name, r.Group, r.Binding)
}

// VertexSlot is one vertex buffer binding of a layout.
type VertexSlot struct {
	Buffer Buffer
	Offset uint64 // byte offset of the slot in Buffer
	Layout gputypes.VertexBufferLayout
}

// VertexLayout is the resolved vertex input of a draw.
type VertexLayout struct {
	Slots []VertexSlot
}

// Key returns a string identifying the layout shape, independent of the
// buffers bound.
func (l *VertexLayout) Key() string {
	var sb strings.Builder
	for i, s := range l.Slots {
		fmt.Fprintf(&sb, "%d:%d/%d", i, s.Layout.ArrayStride, s.Layout.StepMode)
		for _, a := range s.Layout.Attributes {
			fmt.Fprintf(&sb, ",%d=%d@%d", a.ShaderLocation, a.Format, a.Offset)
		}
		sb.WriteByte(';')
	}
	return sb.String()
}

// BuildVertexLayout matches attrs to the inputs of program and groups them
// into vertex buffer slots. Attributes sharing a buffer, stride and step
// mode share a slot. Attributes the program does not read are dropped.
func BuildVertexLayout(program *ProgramInfo, attrs []VertexAttribute) (*VertexLayout, error) {
	type slotKey struct {
		buf    Buffer
		base   uint64
		stride uint64
		step   gputypes.VertexStepMode
	}
	layout := &VertexLayout{}
	index := make(map[slotKey]int)

	for _, in := range program.Inputs {
		a := findAttribute(attrs, in.Location)
		if a == nil {
			return nil, Invalid("program input %q at location %d has no vertex attribute", in.Name, in.Location)
		}
		if a.Buffer == nil {
			return nil, Invalid("vertex attribute at location %d has no buffer", in.Location)
		}
		if a.Format == gputypes.VertexFormatUndefined {
			return nil, Invalid("vertex attribute at location %d has no format", in.Location)
		}
		stride := a.Stride
		if stride == 0 {
			stride = a.Format.Size()
		}
		step := a.StepMode
		if step == gputypes.VertexStepModeUndefined {
			step = gputypes.VertexStepModeVertex
		}
		// Offsets past the stride address a separate array in the same
		// buffer and get a slot of their own.
		base := a.Offset - a.Offset%stride
		k := slotKey{a.Buffer, base, stride, step}
		i, ok := index[k]
		if !ok {
			i = len(layout.Slots)
			index[k] = i
			layout.Slots = append(layout.Slots, VertexSlot{
				Buffer: a.Buffer,
				Offset: base,
				Layout: gputypes.VertexBufferLayout{ArrayStride: stride, StepMode: step},
			})
		}
		slot := &layout.Slots[i]
		slot.Layout.Attributes = append(slot.Layout.Attributes, gputypes.VertexAttribute{
			Format:         a.Format,
			Offset:         a.Offset - base,
			ShaderLocation: in.Location,
		})
	}
	return layout, nil
}

func findAttribute(attrs []VertexAttribute, loc uint32) *VertexAttribute {
	for i := range attrs {
		if attrs[i].Location == loc {
			return &attrs[i]
		}
	}
	return nil
}
