package gfx

import (
	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/shaderinfo"
)

// ShaderStage is a pipeline stage.
type ShaderStage = backend.ShaderStage

const (
	StageVertex   = backend.StageVertex
	StageFragment = backend.StageFragment
	StageCompute  = backend.StageCompute
)

// Shader is one compiled WGSL entry point.
type Shader struct {
	ctx      *Context
	raw      backend.Shader
	released bool
}

// Stage returns the pipeline stage of the shader.
func (s *Shader) Stage() ShaderStage { return s.raw.Stage() }

// EntryPoint returns the name of the compiled entry point.
func (s *Shader) EntryPoint() string { return s.raw.EntryPoint().Name }

// Inputs returns the vertex inputs of a vertex shader.
func (s *Shader) Inputs() []shaderinfo.Input { return s.raw.EntryPoint().Inputs }

// NativeHandle returns the native shader handle.
func (s *Shader) NativeHandle() uintptr { return s.raw.NativeHandle() }

// Release frees the shader. Programs built from it keep working until
// they are released.
func (s *Shader) Release() {
	if s.released {
		return
	}
	s.released = true
	s.raw.Release()
}

// Program links a vertex shader with an optional fragment shader, or
// stands alone as a compute shader.
type Program struct {
	ctx      *Context
	shaders  [3]*Shader
	info     *backend.ProgramInfo
	released bool
}

// Info returns the merged interface of the program's shaders.
func (p *Program) Info() *backend.ProgramInfo { return p.info }

// Compute reports whether the program is a compute program.
func (p *Program) Compute() bool { return p.info.Compute }

// Shader returns the shader of stage, nil when absent.
func (p *Program) Shader(stage ShaderStage) *Shader {
	if int(stage) >= len(p.shaders) {
		return nil
	}
	return p.shaders[stage]
}

// Uses reports whether the program reads the given unit.
func (p *Program) Uses(kind backend.UnitKind, unit int) bool { return p.info.Uses(kind, unit) }

// backendShader returns the backend shader bound to stage, nil when the
// program has none.
func (p *Program) backendShader(stage ShaderStage) backend.Shader {
	if p == nil || p.shaders[stage] == nil {
		return nil
	}
	return p.shaders[stage].raw
}

// Release unbinds the program from its context and drops the input
// layouts built for it. The shaders stay owned by the caller.
func (p *Program) Release() {
	if p.released {
		return
	}
	p.ctx.forgetProgram(p)
	p.released = true
}
