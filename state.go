package gfx

import (
	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gfx/internal/statecache"
)

// State descriptions. They are comparable values: equal descriptions
// yield the same state object.
type (
	RasterizerDesc   = backend.RasterizerDesc
	BlendDesc        = backend.BlendDesc
	BlendTarget      = backend.BlendTarget
	DepthStencilDesc = backend.DepthStencilDesc
	StencilFace      = backend.StencilFace
	Viewport         = backend.Viewport
)

// Default state descriptions, used when a nil state object is bound.
var (
	DefaultRasterizer   = backend.DefaultRasterizer
	DefaultBlend        = backend.DefaultBlend
	AlphaBlend          = backend.AlphaBlend
	DefaultDepthStencil = backend.DefaultDepthStencil
)

// RasterizerState is an immutable rasterizer state object shared by every
// caller asking for the same description.
type RasterizerState struct {
	ctx *Context
	raw backend.RasterizerState
}

// Desc returns the description the state was created from.
func (s *RasterizerState) Desc() RasterizerDesc { return s.raw.Desc() }

// BlendState is an immutable blend state object.
type BlendState struct {
	ctx *Context
	raw backend.BlendState
}

// Desc returns the description the state was created from.
func (s *BlendState) Desc() BlendDesc { return s.raw.Desc() }

// DepthStencilState is an immutable depth-stencil state object.
type DepthStencilState struct {
	ctx *Context
	raw backend.DepthStencilState
}

// Desc returns the description the state was created from.
func (s *DepthStencilState) Desc() DepthStencilDesc { return s.raw.Desc() }

// stateCaches holds the state objects of a context. Entries live as long
// as the context.
type stateCaches struct {
	rasterizers   *statecache.Cache[RasterizerDesc, *RasterizerState]
	blends        *statecache.Cache[BlendDesc, *BlendState]
	depthStencils *statecache.Cache[DepthStencilDesc, *DepthStencilState]
}

func newStateCaches() stateCaches {
	return stateCaches{
		rasterizers:   statecache.New[RasterizerDesc, *RasterizerState](),
		blends:        statecache.New[BlendDesc, *BlendState](),
		depthStencils: statecache.New[DepthStencilDesc, *DepthStencilState](),
	}
}

func (sc stateCaches) release() {
	for _, s := range sc.rasterizers.Drain() {
		s.raw.Release()
	}
	for _, s := range sc.blends.Drain() {
		s.raw.Release()
	}
	for _, s := range sc.depthStencils.Drain() {
		s.raw.Release()
	}
}

// CreateRasterizerState returns the rasterizer state for desc. Equal
// descriptions return the same object.
func (c *Context) CreateRasterizerState(desc RasterizerDesc) (*RasterizerState, error) {
	return c.states.rasterizers.GetOrCreate(desc, func(d RasterizerDesc) (*RasterizerState, error) {
		raw, err := c.dev.CreateRasterizerState(d)
		if err != nil {
			return nil, err
		}
		Logger().Debug("gfx: rasterizer state created", "fill", d.Fill, "cull", d.Cull, "scissor", d.Scissor)
		return &RasterizerState{ctx: c, raw: raw}, nil
	})
}

// CreateBlendState returns the blend state for desc. Equal descriptions
// return the same object.
func (c *Context) CreateBlendState(desc BlendDesc) (*BlendState, error) {
	return c.states.blends.GetOrCreate(desc, func(d BlendDesc) (*BlendState, error) {
		raw, err := c.dev.CreateBlendState(d)
		if err != nil {
			return nil, err
		}
		Logger().Debug("gfx: blend state created", "enable", d.Targets[0].Enable, "independent", d.Independent)
		return &BlendState{ctx: c, raw: raw}, nil
	})
}

// CreateDepthStencilState returns the depth-stencil state for desc. Equal
// descriptions return the same object.
func (c *Context) CreateDepthStencilState(desc DepthStencilDesc) (*DepthStencilState, error) {
	return c.states.depthStencils.GetOrCreate(desc, func(d DepthStencilDesc) (*DepthStencilState, error) {
		raw, err := c.dev.CreateDepthStencilState(d)
		if err != nil {
			return nil, err
		}
		Logger().Debug("gfx: depth-stencil state created", "depth", d.DepthTest, "stencil", d.StencilTest)
		return &DepthStencilState{ctx: c, raw: raw}, nil
	})
}

// StateCacheStats reports the hits and misses of the three state caches
// together.
func (c *Context) StateCacheStats() (hits, misses uint64) {
	for _, f := range []func() (uint64, uint64){
		c.states.rasterizers.Stats, c.states.blends.Stats, c.states.depthStencils.Stats,
	} {
		h, m := f()
		hits += h
		misses += m
	}
	return hits, misses
}
