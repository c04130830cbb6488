package wgpu

import (
	"sync"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/shaderinfo"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Shader is a HAL shader module with its reflected interface.
type Shader struct {
	dev    *Device
	desc   backend.ShaderDescriptor
	module *shaderinfo.Module
	ep     *shaderinfo.EntryPoint
	raw    hal.ShaderModule
	handle uintptr

	once sync.Once
}

func (s *Shader) NativeHandle() uintptr                 { return s.handle }
func (s *Shader) Descriptor() *backend.ShaderDescriptor { return &s.desc }
func (s *Shader) Stage() backend.ShaderStage            { return s.desc.Stage }
func (s *Shader) EntryPoint() *shaderinfo.EntryPoint    { return s.ep }
func (s *Shader) Module() *shaderinfo.Module            { return s.module }

// Release destroys the module. Pipelines already built from it stay valid.
func (s *Shader) Release() {
	s.once.Do(func() { s.dev.raw.DestroyShaderModule(s.raw) })
}

// CreateShader reflects the WGSL source and compiles it into a module.
func (d *Device) CreateShader(desc *backend.ShaderDescriptor) (backend.Shader, error) {
	const op = "create shader"
	if err := d.check(op); err != nil {
		return nil, err
	}
	mod, err := shaderinfo.Reflect(desc.Source)
	if err != nil {
		return nil, backend.NewError(d.name, op, backend.ErrCreation, err)
	}
	ep, err := mod.EntryPoint(desc.EntryPoint, desc.Stage)
	if err != nil {
		return nil, backend.NewError(d.name, op, backend.ErrCreation, err)
	}
	raw, err := d.raw.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{WGSL: desc.Source},
	})
	if err != nil {
		return nil, d.fail(op, err)
	}
	s := &Shader{dev: d, desc: *desc, module: mod, ep: ep, raw: raw, handle: nextHandle.Add(1)}
	s.desc.EntryPoint = ep.Name
	return s, nil
}

// InputLayout is a vertex layout resolved for one program. The HAL has no
// separate object for it; the layout becomes part of the pipeline key.
type InputLayout struct {
	layout  *backend.VertexLayout
	program *backend.ProgramInfo
	key     string
	buffers []gputypes.VertexBufferLayout
	handle  uintptr
}

func (l *InputLayout) NativeHandle() uintptr         { return l.handle }
func (l *InputLayout) Release()                      {}
func (l *InputLayout) Layout() *backend.VertexLayout { return l.layout }

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
	l := &InputLayout{layout: layout, program: program, key: layout.Key(), handle: nextHandle.Add(1)}
	for _, s := range layout.Slots {
		if _, ok := s.Buffer.(*Buffer); !ok {
			return nil, backend.Invalid("vertex buffer %T does not belong to %s", s.Buffer, d.name)
		}
		l.buffers = append(l.buffers, s.Layout)
	}
	return l, nil
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

// CreateRasterizerState records the description. Wireframe fill has no
// WebGPU equivalent.
func (d *Device) CreateRasterizerState(desc backend.RasterizerDesc) (backend.RasterizerState, error) {
	const op = "create rasterizer state"
	if err := d.check(op); err != nil {
		return nil, err
	}
	if desc.Fill == backend.FillWireframe {
		return nil, backend.Errorf(d.name, op, backend.ErrUnsupported, "wireframe fill")
	}
	return &rasterizerState{desc: desc, handle: nextHandle.Add(1)}, nil
}

func (d *Device) CreateBlendState(desc backend.BlendDesc) (backend.BlendState, error) {
	if err := d.check("create blend state"); err != nil {
		return nil, err
	}
	return &blendState{desc: desc, handle: nextHandle.Add(1)}, nil
}

func (d *Device) CreateDepthStencilState(desc backend.DepthStencilDesc) (backend.DepthStencilState, error) {
	if err := d.check("create depth stencil state"); err != nil {
		return nil, err
	}
	return &depthStencilState{desc: desc, handle: nextHandle.Add(1)}, nil
}

// sampler returns the cached sampler for s.
func (d *Device) sampler(s backend.SamplerDesc) (hal.Sampler, error) {
	return d.samplers.GetOrCreate(s, func(s backend.SamplerDesc) (hal.Sampler, error) {
		raw, err := d.raw.CreateSampler(&hal.SamplerDescriptor{
			Label:        "gfx sampler",
			AddressModeU: addressMode(s.WrapS),
			AddressModeV: addressMode(s.WrapT),
			AddressModeW: addressMode(s.WrapR),
			MagFilter:    filterMode(s.MagFilter),
			MinFilter:    filterMode(s.MinFilter),
			MipmapFilter: filterMode(gputypes.FilterMode(s.MipFilter)),
			LodMinClamp:  max(s.LODMin, float32(s.BaseLevel)),
			LodMaxClamp:  min(s.LODMax, float32(s.MaxLevel), 32),
			Compare:      s.Compare,
			Anisotropy:   max(s.Anisotropy, 1),
		})
		if err != nil {
			return nil, d.fail("create sampler", err)
		}
		return raw, nil
	})
}

func addressMode(m gputypes.AddressMode) gputypes.AddressMode {
	if m == gputypes.AddressModeUndefined {
		return gputypes.AddressModeClampToEdge
	}
	return m
}

func filterMode(m gputypes.FilterMode) gputypes.FilterMode {
	if m == gputypes.FilterModeUndefined {
		return gputypes.FilterModeNearest
	}
	return m
}

// layoutKey identifies the bind group layouts of a program. Image units
// carry their texture format in the layout, so the formats bound to them
// are part of the key.
type layoutKey struct {
	shaders [3]*Shader
	images  string
}

// programLayout holds one bind group layout per group up to the highest
// group the program uses, and the pipeline layout combining them.
type programLayout struct {
	groups []hal.BindGroupLayout
	units  [][]backend.UnitBinding // bindings of each group
	raw    hal.PipelineLayout
}

func (l *programLayout) destroy(dev hal.Device) {
	if l.raw != nil {
		dev.DestroyPipelineLayout(l.raw)
	}
	for _, g := range l.groups {
		dev.DestroyBindGroupLayout(g)
	}
}

// programLayout returns the cached layout of the program made of shaders.
// imageFormat reports the format of the texture bound to an image unit.
func (d *Device) programLayout(key layoutKey, info *backend.ProgramInfo, imageFormat func(unit int) gputypes.TextureFormat) (*programLayout, error) {
	return d.layouts.GetOrCreate(key, func(layoutKey) (*programLayout, error) {
		const op = "create pipeline layout"
		n := 0
		for _, u := range info.Units {
			n = max(n, int(u.Resource.Group)+1)
		}
		pl := &programLayout{groups: make([]hal.BindGroupLayout, n), units: make([][]backend.UnitBinding, n)}
		for _, u := range info.Units {
			pl.units[u.Resource.Group] = append(pl.units[u.Resource.Group], u)
		}
		for g := range n {
			entries := make([]gputypes.BindGroupLayoutEntry, 0, len(pl.units[g]))
			for _, u := range pl.units[g] {
				var format gputypes.TextureFormat
				if u.Kind == backend.UnitImage {
					format = imageFormat(u.Unit)
				}
				entries = append(entries, layoutEntry(u, format))
			}
			raw, err := d.raw.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: "gfx group", Entries: entries})
			if err != nil {
				pl.destroy(d.raw)
				return nil, d.fail(op, err)
			}
			pl.groups[g] = raw
		}
		raw, err := d.raw.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{Label: "gfx layout", BindGroupLayouts: pl.groups})
		if err != nil {
			pl.destroy(d.raw)
			return nil, d.fail(op, err)
		}
		pl.raw = raw
		return pl, nil
	})
}

func layoutEntry(u backend.UnitBinding, format gputypes.TextureFormat) gputypes.BindGroupLayoutEntry {
	r := u.Resource
	e := gputypes.BindGroupLayoutEntry{Binding: r.Binding, Visibility: u.Stages}
	dim := r.ViewDimension
	if dim == gputypes.TextureViewDimensionUndefined {
		dim = gputypes.TextureViewDimension2D
	}
	switch u.Kind {
	case backend.UnitUniform:
		e.Buffer = &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}
	case backend.UnitStorage:
		t := gputypes.BufferBindingTypeStorage
		if r.ReadOnly {
			t = gputypes.BufferBindingTypeReadOnlyStorage
		}
		e.Buffer = &gputypes.BufferBindingLayout{Type: t}
	case backend.UnitTexture:
		st := r.SampleType
		if st == gputypes.TextureSampleTypeUndefined {
			st = gputypes.TextureSampleTypeFloat
		}
		e.Texture = &gputypes.TextureBindingLayout{SampleType: st, ViewDimension: dim}
	case backend.UnitSampler:
		t := gputypes.SamplerBindingTypeFiltering
		if r.Comparison {
			t = gputypes.SamplerBindingTypeComparison
		}
		e.Sampler = &gputypes.SamplerBindingLayout{Type: t}
	case backend.UnitImage:
		e.StorageTexture = &gputypes.StorageTextureBindingLayout{
			Access:        gputypes.StorageTextureAccessWriteOnly,
			Format:        format,
			ViewDimension: dim,
		}
	}
	return e
}

// pipelineKey is everything a render pipeline bakes in. Stencil reference,
// viewports and scissors are dynamic pass state and stay out of it.
type pipelineKey struct {
	layout   layoutKey
	vertex   string
	topology gputypes.PrimitiveTopology
	strip    gputypes.IndexFormat
	raster   backend.RasterizerDesc
	blend    backend.BlendDesc
	ds       backend.DepthStencilDesc
	colors   [backend.MaxColorTargets]gputypes.TextureFormat
	writes   uint8 // draw buffers with writes enabled
	depth    gputypes.TextureFormat
	samples  uint32
}

type computeKey struct {
	layout layoutKey
}

// renderPipeline returns the cached pipeline for k.
func (d *Device) renderPipeline(k pipelineKey, pl *programLayout, buffers []gputypes.VertexBufferLayout) (hal.RenderPipeline, error) {
	created := false
	p, err := d.pipelines.GetOrCreate(k, func(k pipelineKey) (hal.RenderPipeline, error) {
		vs, fs := k.layout.shaders[backend.StageVertex], k.layout.shaders[backend.StageFragment]
		prim := gputypes.PrimitiveState{
			Topology:       k.topology,
			FrontFace:      k.raster.FrontFace,
			CullMode:       k.raster.Cull,
			UnclippedDepth: k.raster.UnclippedDepth,
		}
		if k.strip != gputypes.IndexFormatUndefined {
			strip := k.strip
			prim.StripIndexFormat = &strip
		}
		desc := &hal.RenderPipelineDescriptor{
			Label:     "gfx pipeline",
			Layout:    pl.raw,
			Vertex:    hal.VertexState{Module: vs.raw, EntryPoint: vs.ep.Name, Buffers: buffers},
			Primitive: prim,
			Multisample: gputypes.MultisampleState{
				Count:                  max(k.samples, 1),
				Mask:                   ^uint64(0),
				AlphaToCoverageEnabled: k.blend.AlphaToCoverage,
			},
		}
		if k.depth != gputypes.TextureFormatUndefined {
			desc.DepthStencil = depthStencil(k.ds, k.depth, k.raster)
		}
		if fs != nil {
			desc.Fragment = &hal.FragmentState{Module: fs.raw, EntryPoint: fs.ep.Name, Targets: colorTargets(k)}
		}
		raw, err := d.raw.CreateRenderPipeline(desc)
		if err != nil {
			return nil, d.fail("create render pipeline", err)
		}
		created = true
		return raw, nil
	})
	if created {
		backend.Logger().Debug("wgpu render pipeline created", "backend", d.name, "pipelines", d.pipelines.Len())
	}
	return p, err
}

func colorTargets(k pipelineKey) []gputypes.ColorTargetState {
	n := 0
	for i, f := range k.colors {
		if f != gputypes.TextureFormatUndefined {
			n = i + 1
		}
	}
	targets := make([]gputypes.ColorTargetState, n)
	for i := range targets {
		bt := k.blend.Target(i)
		ct := gputypes.ColorTargetState{Format: k.colors[i], WriteMask: bt.WriteMask}
		if k.writes&(1<<i) == 0 {
			ct.WriteMask = gputypes.ColorWriteMaskNone
		}
		if bt.Enable {
			ct.Blend = &gputypes.BlendState{Color: bt.Color, Alpha: bt.Alpha}
		}
		targets[i] = ct
	}
	return targets
}

func depthStencil(ds backend.DepthStencilDesc, format gputypes.TextureFormat, r backend.RasterizerDesc) *hal.DepthStencilState {
	keep := hal.StencilFaceState{
		Compare:     gputypes.CompareFunctionAlways,
		FailOp:      hal.StencilOperationKeep,
		DepthFailOp: hal.StencilOperationKeep,
		PassOp:      hal.StencilOperationKeep,
	}
	s := &hal.DepthStencilState{
		Format:              format,
		DepthCompare:        gputypes.CompareFunctionAlways,
		StencilFront:        keep,
		StencilBack:         keep,
		StencilReadMask:     0xff,
		StencilWriteMask:    0xff,
		DepthBias:           r.DepthBias,
		DepthBiasSlopeScale: r.SlopeScaledDepthBias,
		DepthBiasClamp:      r.DepthBiasClamp,
	}
	if ds.DepthTest {
		s.DepthWriteEnabled = ds.DepthWrite
		s.DepthCompare = ds.DepthFunc
	}
	if ds.StencilTest {
		s.StencilFront = stencilFace(ds.Front)
		s.StencilBack = stencilFace(ds.Back)
		s.StencilReadMask = uint32(ds.StencilReadMask)
		s.StencilWriteMask = uint32(ds.StencilWriteMask)
	}
	return s
}

func stencilFace(f backend.StencilFace) hal.StencilFaceState {
	cmp := f.Func
	if cmp == gputypes.CompareFunctionUndefined {
		cmp = gputypes.CompareFunctionAlways
	}
	return hal.StencilFaceState{
		Compare:     cmp,
		FailOp:      stencilOp(f.Fail),
		DepthFailOp: stencilOp(f.DepthFail),
		PassOp:      stencilOp(f.Pass),
	}
}

// stencilOp converts between the two enumerations. The HAL one has no
// undefined value and starts at Keep.
func stencilOp(op gputypes.StencilOperation) hal.StencilOperation {
	if op == gputypes.StencilOperationUndefined {
		return hal.StencilOperationKeep
	}
	return hal.StencilOperation(op - 1)
}

// computePipeline returns the cached pipeline of the compute program.
func (d *Device) computePipeline(k computeKey, pl *programLayout) (hal.ComputePipeline, error) {
	return d.computes.GetOrCreate(k, func(k computeKey) (hal.ComputePipeline, error) {
		cs := k.layout.shaders[backend.StageCompute]
		raw, err := d.raw.CreateComputePipeline(&hal.ComputePipelineDescriptor{
			Label:   "gfx compute",
			Layout:  pl.raw,
			Compute: hal.ComputeState{Module: cs.raw, EntryPoint: cs.ep.Name},
		})
		if err != nil {
			return nil, d.fail("create compute pipeline", err)
		}
		return raw, nil
	})
}
