// Package shaderinfo reflects WGSL shader modules through naga.
//
// It extracts what the graphic context needs to bind a program without
// looking at backend bytecode: the entry points, the per-vertex inputs of
// vertex entry points (location and format), and the resource bindings
// (@group/@binding) with their kind.
package shaderinfo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
)

// ErrNoEntryPoint is returned when a requested entry point does not exist.
var ErrNoEntryPoint = errors.New("shaderinfo: entry point not found")

// Stage is a shader pipeline stage.
type Stage uint8

// Shader stages.
const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	}
	return "unknown"
}

// ShaderStage converts to the gputypes visibility flag.
func (s Stage) ShaderStage() gputypes.ShaderStage {
	switch s {
	case StageVertex:
		return gputypes.ShaderStageVertex
	case StageFragment:
		return gputypes.ShaderStageFragment
	case StageCompute:
		return gputypes.ShaderStageCompute
	}
	return gputypes.ShaderStageNone
}

// ResourceKind classifies a resource binding.
type ResourceKind uint8

// Resource kinds.
const (
	ResourceUniform ResourceKind = iota
	ResourceStorage
	ResourceTexture
	ResourceSampler
	ResourceStorageTexture
)

func (k ResourceKind) String() string {
	switch k {
	case ResourceUniform:
		return "uniform"
	case ResourceStorage:
		return "storage"
	case ResourceTexture:
		return "texture"
	case ResourceSampler:
		return "sampler"
	case ResourceStorageTexture:
		return "storage-texture"
	}
	return "unknown"
}

// Input is a per-vertex input of a vertex entry point.
type Input struct {
	Name     string
	Location uint32
	Format   gputypes.VertexFormat
}

// Resource is a global resource binding.
type Resource struct {
	Name    string
	Group   uint32
	Binding uint32
	Kind    ResourceKind

	ReadOnly      bool // storage buffers
	Comparison    bool // samplers
	ViewDimension gputypes.TextureViewDimension
	SampleType    gputypes.TextureSampleType
}

// EntryPoint describes one entry point of a module.
type EntryPoint struct {
	Name      string
	Stage     Stage
	Inputs    []Input
	Outputs   int // number of @location outputs
	Workgroup [3]uint32
}

// Module is the reflected form of a WGSL source.
type Module struct {
	EntryPoints []EntryPoint
	Resources   []Resource
}

// Reflect parses and lowers WGSL source and extracts its interface.
func Reflect(source string) (*Module, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("shaderinfo: %w", err)
	}
	mod, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("shaderinfo: %w", err)
	}
	return fromIR(mod), nil
}

// EntryPoint returns the entry point with the given name and stage. An empty
// name selects the first entry point of that stage.
func (m *Module) EntryPoint(name string, stage Stage) (*EntryPoint, error) {
	for i := range m.EntryPoints {
		ep := &m.EntryPoints[i]
		if ep.Stage != stage {
			continue
		}
		if name == "" || ep.Name == name {
			return ep, nil
		}
	}
	if name == "" {
		return nil, fmt.Errorf("%w: no %s stage", ErrNoEntryPoint, stage)
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrNoEntryPoint, name, stage)
}

func fromIR(mod *ir.Module) *Module {
	out := &Module{}
	for _, ep := range mod.EntryPoints {
		stage, ok := convertStage(ep.Stage)
		if !ok {
			continue
		}
		e := EntryPoint{Name: ep.Name, Stage: stage, Workgroup: ep.Workgroup}
		if stage == StageVertex {
			e.Inputs = vertexInputs(mod, &ep.Function)
		}
		if ep.Function.Result != nil {
			e.Outputs = countLocations(mod, ep.Function.Result.Type, ep.Function.Result.Binding)
		}
		out.EntryPoints = append(out.EntryPoints, e)
	}

	for _, gv := range mod.GlobalVariables {
		if gv.Binding == nil {
			continue
		}
		r := Resource{Name: gv.Name, Group: gv.Binding.Group, Binding: gv.Binding.Binding}
		switch gv.Space {
		case ir.SpaceUniform:
			r.Kind = ResourceUniform
		case ir.SpaceStorage:
			r.Kind = ResourceStorage
			r.ReadOnly = gv.Access == ir.StorageRead
		case ir.SpaceHandle:
			if !describeHandle(mod, gv.Type, &r) {
				continue
			}
		default:
			continue
		}
		out.Resources = append(out.Resources, r)
	}
	sort.Slice(out.Resources, func(i, j int) bool {
		a, b := out.Resources[i], out.Resources[j]
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Binding < b.Binding
	})
	return out
}

func convertStage(s ir.ShaderStage) (Stage, bool) {
	switch s {
	case ir.StageVertex:
		return StageVertex, true
	case ir.StageFragment:
		return StageFragment, true
	case ir.StageCompute:
		return StageCompute, true
	}
	return 0, false
}

func vertexInputs(mod *ir.Module, fn *ir.Function) []Input {
	var inputs []Input
	for _, arg := range fn.Arguments {
		if arg.Binding != nil {
			if loc, ok := (*arg.Binding).(ir.LocationBinding); ok {
				inputs = append(inputs, Input{
					Name:     arg.Name,
					Location: loc.Location,
					Format:   vertexFormat(mod, arg.Type),
				})
			}
			continue
		}
		// Inputs grouped in a struct argument carry bindings on the members.
		st, ok := typeInner(mod, arg.Type).(ir.StructType)
		if !ok {
			continue
		}
		for _, m := range st.Members {
			if m.Binding == nil {
				continue
			}
			if loc, ok := (*m.Binding).(ir.LocationBinding); ok {
				inputs = append(inputs, Input{
					Name:     m.Name,
					Location: loc.Location,
					Format:   vertexFormat(mod, m.Type),
				})
			}
		}
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].Location < inputs[j].Location })
	return inputs
}

func countLocations(mod *ir.Module, th ir.TypeHandle, b *ir.Binding) int {
	if b != nil {
		if _, ok := (*b).(ir.LocationBinding); ok {
			return 1
		}
		return 0
	}
	st, ok := typeInner(mod, th).(ir.StructType)
	if !ok {
		return 0
	}
	n := 0
	for _, m := range st.Members {
		if m.Binding == nil {
			continue
		}
		if _, ok := (*m.Binding).(ir.LocationBinding); ok {
			n++
		}
	}
	return n
}

func typeInner(mod *ir.Module, th ir.TypeHandle) ir.TypeInner {
	if int(th) >= len(mod.Types) {
		return nil
	}
	return mod.Types[th].Inner
}

func describeHandle(mod *ir.Module, th ir.TypeHandle, r *Resource) bool {
	inner := typeInner(mod, th)
	if ba, ok := inner.(ir.BindingArrayType); ok {
		inner = typeInner(mod, ba.Base)
	}
	switch t := inner.(type) {
	case ir.SamplerType:
		r.Kind = ResourceSampler
		r.Comparison = t.Comparison
	case ir.ImageType:
		r.ViewDimension = viewDimension(t.Dim, t.Arrayed)
		if t.Class == ir.ImageClassStorage {
			r.Kind = ResourceStorageTexture
			return true
		}
		r.Kind = ResourceTexture
		switch {
		case t.Class == ir.ImageClassDepth:
			r.SampleType = gputypes.TextureSampleTypeDepth
		case t.SampledKind == ir.ScalarSint:
			r.SampleType = gputypes.TextureSampleTypeSint
		case t.SampledKind == ir.ScalarUint:
			r.SampleType = gputypes.TextureSampleTypeUint
		default:
			r.SampleType = gputypes.TextureSampleTypeFloat
		}
	default:
		return false
	}
	return true
}

func viewDimension(dim ir.ImageDimension, arrayed bool) gputypes.TextureViewDimension {
	switch dim {
	case ir.Dim1D:
		return gputypes.TextureViewDimension1D
	case ir.Dim3D:
		return gputypes.TextureViewDimension3D
	case ir.DimCube:
		if arrayed {
			return gputypes.TextureViewDimensionCubeArray
		}
		return gputypes.TextureViewDimensionCube
	}
	if arrayed {
		return gputypes.TextureViewDimension2DArray
	}
	return gputypes.TextureViewDimension2D
}

func vertexFormat(mod *ir.Module, th ir.TypeHandle) gputypes.VertexFormat {
	switch t := typeInner(mod, th).(type) {
	case ir.ScalarType:
		return scalarFormat(t, 1)
	case ir.VectorType:
		return scalarFormat(t.Scalar, int(t.Size))
	}
	return gputypes.VertexFormatUndefined
}

var vertexFormats = map[ir.ScalarKind][4]gputypes.VertexFormat{
	ir.ScalarFloat: {
		gputypes.VertexFormatFloat32, gputypes.VertexFormatFloat32x2,
		gputypes.VertexFormatFloat32x3, gputypes.VertexFormatFloat32x4,
	},
	ir.ScalarUint: {
		gputypes.VertexFormatUint32, gputypes.VertexFormatUint32x2,
		gputypes.VertexFormatUint32x3, gputypes.VertexFormatUint32x4,
	},
	ir.ScalarSint: {
		gputypes.VertexFormatSint32, gputypes.VertexFormatSint32x2,
		gputypes.VertexFormatSint32x3, gputypes.VertexFormatSint32x4,
	},
}

func scalarFormat(s ir.ScalarType, n int) gputypes.VertexFormat {
	if n < 1 || n > 4 {
		return gputypes.VertexFormatUndefined
	}
	if s.Kind == ir.ScalarFloat && s.Width == 2 {
		switch n {
		case 2:
			return gputypes.VertexFormatFloat16x2
		case 4:
			return gputypes.VertexFormatFloat16x4
		}
		return gputypes.VertexFormatUndefined
	}
	formats, ok := vertexFormats[s.Kind]
	if !ok {
		return gputypes.VertexFormatUndefined
	}
	return formats[n-1]
}
