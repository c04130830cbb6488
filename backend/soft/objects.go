package soft

import (
	"fmt"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/shaderinfo"
)

// Shader is a reflected WGSL shader. The soft backend does not execute it.
type Shader struct {
	desc   backend.ShaderDescriptor
	module *shaderinfo.Module
	ep     *shaderinfo.EntryPoint
	handle uintptr
}

func (s *Shader) NativeHandle() uintptr                 { return s.handle }
func (s *Shader) Release()                              {}
func (s *Shader) Descriptor() *backend.ShaderDescriptor { return &s.desc }
func (s *Shader) Stage() backend.ShaderStage            { return s.desc.Stage }
func (s *Shader) EntryPoint() *shaderinfo.EntryPoint    { return s.ep }
func (s *Shader) Module() *shaderinfo.Module            { return s.module }

// CreateShader parses and reflects WGSL source.
func (d *Device) CreateShader(desc *backend.ShaderDescriptor) (backend.Shader, error) {
	if err := d.check("create shader"); err != nil {
		return nil, err
	}
	mod, err := shaderinfo.Reflect(desc.Source)
	if err != nil {
		return nil, backend.NewError(Name, "create shader", backend.ErrCreation, err)
	}
	ep, err := mod.EntryPoint(desc.EntryPoint, desc.Stage)
	if err != nil {
		return nil, backend.NewError(Name, "create shader", backend.ErrCreation, err)
	}
	s := &Shader{desc: *desc, module: mod, ep: ep, handle: newHandle()}
	s.desc.EntryPoint = ep.Name
	return s, nil
}

// InputLayout is a soft input layout.
type InputLayout struct {
	layout  *backend.VertexLayout
	program *backend.ProgramInfo
	handle  uintptr
}

func (l *InputLayout) NativeHandle() uintptr         { return l.handle }
func (l *InputLayout) Release()                      {}
func (l *InputLayout) Layout() *backend.VertexLayout { return l.layout }

// Program returns the program the layout was built for.
func (l *InputLayout) Program() *backend.ProgramInfo { return l.program }

// CreateInputLayout resolves attrs against program.
func (d *Device) CreateInputLayout(program *backend.ProgramInfo, attrs []backend.VertexAttribute) (backend.InputLayout, error) {
	if err := d.check("create input layout"); err != nil {
		return nil, err
	}
	if len(attrs) > d.limits.MaxVertexAttributes {
		return nil, backend.Invalid("%d vertex attributes, limit %d", len(attrs), d.limits.MaxVertexAttributes)
	}
	layout, err := backend.BuildVertexLayout(program, attrs)
	if err != nil {
		return nil, err
	}
	for _, s := range layout.Slots {
		if _, ok := s.Buffer.(*Buffer); !ok {
			return nil, backend.Invalid("vertex buffer %T does not belong to the soft backend", s.Buffer)
		}
	}
	d.count(func(s *Stats) { s.InputLayouts++ })
	return &InputLayout{layout: layout, program: program, handle: newHandle()}, nil
}

type rasterizerState struct {
	desc   backend.RasterizerDesc
	handle uintptr
}

func (s *rasterizerState) NativeHandle() uintptr        { return s.handle }
func (s *rasterizerState) Release()                     {}
func (s *rasterizerState) Desc() backend.RasterizerDesc { return s.desc }

type blendState struct {
	desc   backend.BlendDesc
	handle uintptr
}

func (s *blendState) NativeHandle() uintptr   { return s.handle }
func (s *blendState) Release()                {}
func (s *blendState) Desc() backend.BlendDesc { return s.desc }

type depthStencilState struct {
	desc   backend.DepthStencilDesc
	handle uintptr
}

func (s *depthStencilState) NativeHandle() uintptr          { return s.handle }
func (s *depthStencilState) Release()                       {}
func (s *depthStencilState) Desc() backend.DepthStencilDesc { return s.desc }

// CreateRasterizerState creates a rasterizer state object. Deduplication is
// the caller's job; every call creates a new object.
func (d *Device) CreateRasterizerState(desc backend.RasterizerDesc) (backend.RasterizerState, error) {
	if err := d.check("create rasterizer state"); err != nil {
		return nil, err
	}
	if desc.Fill > backend.FillWireframe {
		return nil, backend.Invalid("fill mode %d", desc.Fill)
	}
	d.count(func(s *Stats) { s.RasterizerStates++ })
	return &rasterizerState{desc: desc, handle: newHandle()}, nil
}

// CreateBlendState creates a blend state object.
func (d *Device) CreateBlendState(desc backend.BlendDesc) (backend.BlendState, error) {
	if err := d.check("create blend state"); err != nil {
		return nil, err
	}
	d.count(func(s *Stats) { s.BlendStates++ })
	return &blendState{desc: desc, handle: newHandle()}, nil
}

// CreateDepthStencilState creates a depth-stencil state object.
func (d *Device) CreateDepthStencilState(desc backend.DepthStencilDesc) (backend.DepthStencilState, error) {
	if err := d.check("create depth-stencil state"); err != nil {
		return nil, err
	}
	d.count(func(s *Stats) { s.DepthStencilStates++ })
	return &depthStencilState{desc: desc, handle: newHandle()}, nil
}

// Query is a soft occlusion query. Its result is the number of vertices
// times instances drawn while it was active.
type Query struct {
	dev     *Device
	handle  uintptr
	samples uint64
	active  bool
	ended   bool
}

func (q *Query) NativeHandle() uintptr { return q.handle }
func (q *Query) Release()              {}

// Result returns the sample count once the query has ended.
func (q *Query) Result() (uint64, bool, error) {
	if err := q.dev.check("query result"); err != nil {
		return 0, false, err
	}
	if q.active {
		return 0, false, fmt.Errorf("%w: query still active", backend.ErrInvalidUsage)
	}
	return q.samples, q.ended, nil
}
