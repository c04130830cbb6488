package wgpu

import (
	"fmt"
	"image"
	"slices"
	"strings"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

type imageBinding struct {
	tex   *Texture
	level int
}

// submission is a command buffer in flight together with the bind groups
// it references.
type submission struct {
	index  uint64
	cmd    hal.CommandBuffer
	groups []hal.BindGroup
}

// Commands records into one command encoder. Draws share a render pass
// until the render targets change or a non-draw command needs the encoder.
type Commands struct {
	dev *Device

	enc      hal.CommandEncoder
	pass     hal.RenderPassEncoder
	newPass  bool // render targets changed since the pass began
	groups   []hal.BindGroup
	inflight []submission

	colors      []backend.View
	depth       backend.View
	read        backend.View
	drawBuffers []bool

	shaders         [3]*Shader
	graphicsProgram *backend.ProgramInfo
	computeProgram  *backend.ProgramInfo

	textures [backend.MaxUnits]*Texture
	images   [backend.MaxUnits]imageBinding
	uniforms [backend.MaxUnits]*Buffer
	storage  [backend.MaxUnits]*Buffer

	raster backend.RasterizerState
	blend  backend.BlendState
	ds     backend.DepthStencilState

	viewports []backend.Viewport
	scissors  []image.Rectangle

	layout      *InputLayout
	index       *Buffer
	indexFormat gputypes.IndexFormat
	indexOffset int
}

func newCommands(d *Device) *Commands { return &Commands{dev: d} }

func checkUnit(unit int) error {
	if unit < 0 || unit >= backend.MaxUnits {
		return backend.Invalid("unit %d outside [0,%d)", unit, backend.MaxUnits)
	}
	return nil
}

func (c *Commands) asView(v backend.View) (*View, error) {
	if v == nil {
		return nil, nil
	}
	wv, ok := v.(*View)
	if !ok {
		return nil, backend.Invalid("view %T does not belong to %s", v, c.dev.name)
	}
	if wv.isReleased() {
		return nil, backend.Errorf(c.dev.name, "bind view", backend.ErrReleased, "view released")
	}
	return wv, nil
}

func (c *Commands) asBuffer(b backend.Buffer) (*Buffer, error) {
	wb, ok := b.(*Buffer)
	if !ok || wb == nil {
		return nil, backend.Invalid("buffer %T does not belong to %s", b, c.dev.name)
	}
	if err := wb.check("copy", 0, 0); err != nil {
		return nil, err
	}
	return wb, nil
}

func (c *Commands) asTexture(t backend.Texture) (*Texture, error) {
	wt, ok := t.(*Texture)
	if !ok || wt == nil {
		return nil, backend.Invalid("texture %T does not belong to %s", t, c.dev.name)
	}
	if err := wt.check("copy"); err != nil {
		return nil, err
	}
	return wt, nil
}

// encoder returns the open command encoder, beginning one if needed.
func (c *Commands) encoder(op string) (hal.CommandEncoder, error) {
	if c.enc != nil {
		return c.enc, nil
	}
	enc, err := c.dev.raw.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gfx commands"})
	if err != nil {
		return nil, c.dev.fail(op, err)
	}
	if err := enc.BeginEncoding("gfx commands"); err != nil {
		return nil, c.dev.fail(op, err)
	}
	c.enc = enc
	return enc, nil
}

func (c *Commands) endPass() {
	if c.pass != nil {
		c.pass.End()
		c.pass = nil
	}
}

// renderPass returns a pass on the bound render targets that loads and
// stores their contents.
func (c *Commands) renderPass(op string) (hal.RenderPassEncoder, error) {
	if c.pass != nil && !c.newPass {
		return c.pass, nil
	}
	c.endPass()
	enc, err := c.encoder(op)
	if err != nil {
		return nil, err
	}
	desc := &hal.RenderPassDescriptor{Label: "gfx pass"}
	for _, v := range c.colors {
		var raw hal.TextureView
		if v != nil {
			raw = v.(*View).raw
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:    raw,
			LoadOp:  gputypes.LoadOpLoad,
			StoreOp: gputypes.StoreOpStore,
		})
	}
	if c.depth != nil {
		dv := c.depth.(*View)
		att := &hal.RenderPassDepthStencilAttachment{View: dv.raw}
		if dv.fi.Depth {
			att.DepthLoadOp, att.DepthStoreOp = gputypes.LoadOpLoad, gputypes.StoreOpStore
		}
		if dv.fi.Stencil {
			att.StencilLoadOp, att.StencilStoreOp = gputypes.LoadOpLoad, gputypes.StoreOpStore
		}
		desc.DepthStencilAttachment = att
	}
	c.pass = enc.BeginRenderPass(desc)
	c.newPass = false
	return c.pass, nil
}

// submit ends the open pass and encoder and submits them. Bind groups of
// the submission are destroyed once the queue reports it complete.
func (c *Commands) submit() error {
	c.endPass()
	c.reclaim()
	if c.enc == nil {
		return nil
	}
	enc := c.enc
	c.enc = nil
	cb, err := enc.EndEncoding()
	if err != nil {
		return c.dev.fail("submit", err)
	}
	idx, err := c.dev.queue.Submit([]hal.CommandBuffer{cb})
	if err != nil {
		c.dev.raw.FreeCommandBuffer(cb)
		return c.dev.fail("submit", err)
	}
	c.inflight = append(c.inflight, submission{index: idx, cmd: cb, groups: c.groups})
	c.groups = nil
	return nil
}

func (c *Commands) reclaim() {
	done := c.dev.queue.PollCompleted()
	keep := c.inflight[:0]
	for _, s := range c.inflight {
		if s.index > done {
			keep = append(keep, s)
			continue
		}
		c.free(s)
	}
	c.inflight = keep
}

func (c *Commands) free(s submission) {
	c.dev.raw.FreeCommandBuffer(s.cmd)
	for _, g := range s.groups {
		c.dev.raw.DestroyBindGroup(g)
	}
}

// discard drops recorded work, waits for the queue and frees everything in
// flight. Device.Release calls it.
func (c *Commands) discard() {
	c.endPass()
	if c.enc != nil {
		c.enc.DiscardEncoding()
		c.enc = nil
	}
	if err := c.dev.raw.WaitIdle(); err != nil {
		backend.Logger().Warn("wgpu wait idle failed", "backend", c.dev.name, "err", err)
	}
	for _, s := range c.inflight {
		c.free(s)
	}
	c.inflight = nil
	for _, g := range c.groups {
		c.dev.raw.DestroyBindGroup(g)
	}
	c.groups = nil
}

// SetRenderTargets binds color views and an optional depth-stencil view.
// Binding the views already bound keeps the current render pass open.
func (c *Commands) SetRenderTargets(colors []backend.View, depthStencil backend.View) error {
	if err := c.dev.check("set render targets"); err != nil {
		return err
	}
	if len(colors) > c.dev.limits.MaxColorTargets {
		return backend.Invalid("%d color targets, limit %d", len(colors), c.dev.limits.MaxColorTargets)
	}
	w, h := -1, -1
	sameSize := func(v *View) error {
		if w < 0 {
			w, h = v.w, v.h
			return nil
		}
		if v.w != w || v.h != h {
			return backend.Invalid("render target %dx%d differs from %dx%d", v.w, v.h, w, h)
		}
		return nil
	}
	for i, v := range colors {
		wv, err := c.asView(v)
		if err != nil {
			return err
		}
		if wv == nil {
			continue
		}
		if wv.depth {
			return backend.Invalid("color slot %d holds a depth-stencil view", i)
		}
		if err := sameSize(wv); err != nil {
			return err
		}
	}
	dv, err := c.asView(depthStencil)
	if err != nil {
		return err
	}
	if dv != nil {
		if !dv.depth {
			return backend.Invalid("depth-stencil slot holds a color view")
		}
		if err := sameSize(dv); err != nil {
			return err
		}
	}
	if !slices.Equal(colors, c.colors) || depthStencil != c.depth {
		c.newPass = true
	}
	c.colors = append(c.colors[:0:0], colors...)
	c.depth = depthStencil
	return nil
}

// RenderTargets returns the bound color views and depth-stencil view.
func (c *Commands) RenderTargets() ([]backend.View, backend.View) {
	return append([]backend.View(nil), c.colors...), c.depth
}

// SetReadTarget selects the view ReadPixels reads. Nil reads the first
// color target.
func (c *Commands) SetReadTarget(v backend.View) error {
	if _, err := c.asView(v); err != nil {
		return err
	}
	c.read = v
	return nil
}

// SetDrawBuffers enables or disables writes per color slot. Slots past the
// end of enabled stay enabled.
func (c *Commands) SetDrawBuffers(enabled []bool) error {
	if len(enabled) > c.dev.limits.MaxColorTargets {
		return backend.Invalid("%d draw buffers, limit %d", len(enabled), c.dev.limits.MaxColorTargets)
	}
	c.drawBuffers = append([]bool(nil), enabled...)
	return nil
}

// SetShader binds s to stage. Nil unbinds the stage.
func (c *Commands) SetShader(stage backend.ShaderStage, s backend.Shader) error {
	if int(stage) >= len(c.shaders) {
		return backend.Invalid("shader stage %d", stage)
	}
	var ws *Shader
	if s != nil {
		var ok bool
		if ws, ok = s.(*Shader); !ok {
			return backend.Invalid("shader %T does not belong to %s", s, c.dev.name)
		}
		if s.Stage() != stage {
			return backend.Invalid("%s shader bound to the %s stage", s.Stage(), stage)
		}
	}
	if c.shaders[stage] != ws {
		c.shaders[stage] = ws
		c.graphicsProgram, c.computeProgram = nil, nil
	}
	return nil
}

// SetTexture binds t to a texture unit.
func (c *Commands) SetTexture(unit int, t backend.Texture) error {
	if err := checkUnit(unit); err != nil {
		return err
	}
	if t == nil {
		c.textures[unit] = nil
		return nil
	}
	wt, ok := t.(*Texture)
	if !ok {
		return backend.Invalid("texture %T does not belong to %s", t, c.dev.name)
	}
	c.textures[unit] = wt
	return nil
}

// SetImageTexture binds level of t as a storage image.
func (c *Commands) SetImageTexture(unit int, t backend.Texture, level int) error {
	if err := checkUnit(unit); err != nil {
		return err
	}
	if t == nil {
		c.images[unit] = imageBinding{}
		return nil
	}
	wt, ok := t.(*Texture)
	if !ok {
		return backend.Invalid("texture %T does not belong to %s", t, c.dev.name)
	}
	if level < 0 || level >= wt.desc.Levels {
		return backend.Invalid("image level %d out of range [0,%d)", level, wt.desc.Levels)
	}
	c.images[unit] = imageBinding{tex: wt, level: level}
	return nil
}

// SetUniformBuffer binds b to a uniform unit.
func (c *Commands) SetUniformBuffer(unit int, b backend.Buffer) error {
	return c.setBuffer(&c.uniforms, unit, b)
}

// SetStorageBuffer binds b to a storage unit.
func (c *Commands) SetStorageBuffer(unit int, b backend.Buffer) error {
	return c.setBuffer(&c.storage, unit, b)
}

func (c *Commands) setBuffer(units *[backend.MaxUnits]*Buffer, unit int, b backend.Buffer) error {
	if err := checkUnit(unit); err != nil {
		return err
	}
	if b == nil {
		units[unit] = nil
		return nil
	}
	wb, ok := b.(*Buffer)
	if !ok {
		return backend.Invalid("buffer %T does not belong to %s", b, c.dev.name)
	}
	units[unit] = wb
	return nil
}

// SetRasterizerState selects the rasterizer state of later draws.
func (c *Commands) SetRasterizerState(s backend.RasterizerState) error {
	c.raster = s
	return nil
}

// SetBlendState selects the blend state of later draws.
func (c *Commands) SetBlendState(s backend.BlendState) error {
	c.blend = s
	return nil
}

// SetDepthStencilState selects the depth-stencil state of later draws.
func (c *Commands) SetDepthStencilState(s backend.DepthStencilState) error {
	c.ds = s
	return nil
}

// SetViewports sets the viewport. HAL devices support a single one.
func (c *Commands) SetViewports(vps []backend.Viewport) error {
	if len(vps) > c.dev.limits.MaxViewports {
		return backend.Invalid("%d viewports, limit %d", len(vps), c.dev.limits.MaxViewports)
	}
	c.viewports = append([]backend.Viewport(nil), vps...)
	return nil
}

// SetScissors sets one scissor rectangle per viewport.
func (c *Commands) SetScissors(rects []image.Rectangle) error {
	if len(rects) > c.dev.limits.MaxViewports {
		return backend.Invalid("%d scissor rects, limit %d", len(rects), c.dev.limits.MaxViewports)
	}
	c.scissors = append([]image.Rectangle(nil), rects...)
	return nil
}

// SetInputLayout binds the vertex buffers of l.
func (c *Commands) SetInputLayout(l backend.InputLayout) error {
	if l == nil {
		c.layout = nil
		return nil
	}
	wl, ok := l.(*InputLayout)
	if !ok {
		return backend.Invalid("input layout %T does not belong to %s", l, c.dev.name)
	}
	c.layout = wl
	return nil
}

// SetIndexBuffer binds b as the element buffer. Nil unbinds it.
func (c *Commands) SetIndexBuffer(b backend.Buffer, format gputypes.IndexFormat, offset int) error {
	if b == nil {
		c.index = nil
		return nil
	}
	wb, ok := b.(*Buffer)
	if !ok {
		return backend.Invalid("index buffer %T does not belong to %s", b, c.dev.name)
	}
	size := int(format.Size())
	if size == 0 {
		return backend.Invalid("index format %v", format)
	}
	if offset < 0 || offset%size != 0 {
		return backend.Invalid("index offset %d is not a multiple of %d", offset, size)
	}
	c.index, c.indexFormat, c.indexOffset = wb, format, offset
	return nil
}

func (c *Commands) rasterDesc() backend.RasterizerDesc {
	if c.raster != nil {
		return c.raster.Desc()
	}
	return backend.DefaultRasterizer()
}

func (c *Commands) blendDesc() backend.BlendDesc {
	if c.blend != nil {
		return c.blend.Desc()
	}
	return backend.DefaultBlend()
}

func (c *Commands) depthStencilDesc() backend.DepthStencilDesc {
	if c.ds != nil {
		return c.ds.Desc()
	}
	return backend.DefaultDepthStencil()
}

// program returns the merged interface of the bound graphics or compute
// shaders.
func (c *Commands) program(compute bool) (*backend.ProgramInfo, error) {
	cached := &c.graphicsProgram
	stages := []backend.ShaderStage{backend.StageVertex, backend.StageFragment}
	if compute {
		cached = &c.computeProgram
		stages = []backend.ShaderStage{backend.StageCompute}
	}
	if *cached != nil {
		return *cached, nil
	}
	var shaders []backend.Shader
	for _, st := range stages {
		if s := c.shaders[st]; s != nil {
			shaders = append(shaders, s)
		}
	}
	info, err := backend.NewProgramInfo(shaders...)
	if err != nil {
		return nil, err
	}
	*cached = info
	return info, nil
}

func (c *Commands) imageFormat(unit int) gputypes.TextureFormat {
	if t := c.images[unit].tex; t != nil {
		return t.desc.Format
	}
	return gputypes.TextureFormatUndefined
}

func (c *Commands) layoutKey(info *backend.ProgramInfo, shaders [3]*Shader) layoutKey {
	var sb strings.Builder
	for _, u := range info.Units {
		if u.Kind == backend.UnitImage {
			fmt.Fprintf(&sb, "%d=%d;", u.Unit, c.imageFormat(u.Unit))
		}
	}
	return layoutKey{shaders: shaders, images: sb.String()}
}

// bindGroups creates the bind groups of one draw or dispatch from the bound
// units. They live until the submission that uses them completes.
func (c *Commands) bindGroups(pl *programLayout) ([]hal.BindGroup, error) {
	groups := make([]hal.BindGroup, 0, len(pl.groups))
	for g, units := range pl.units {
		entries := make([]gputypes.BindGroupEntry, 0, len(units))
		for _, u := range units {
			res, err := c.resource(u)
			if err != nil {
				c.groups = append(c.groups, groups...)
				return nil, err
			}
			entries = append(entries, gputypes.BindGroupEntry{Binding: u.Resource.Binding, Resource: res})
		}
		raw, err := c.dev.raw.CreateBindGroup(&hal.BindGroupDescriptor{
			Label:   "gfx bindings",
			Layout:  pl.groups[g],
			Entries: entries,
		})
		if err != nil {
			c.groups = append(c.groups, groups...)
			return nil, c.dev.fail("create bind group", err)
		}
		groups = append(groups, raw)
	}
	c.groups = append(c.groups, groups...)
	return groups, nil
}

func (c *Commands) resource(u backend.UnitBinding) (gputypes.BindingResource, error) {
	unbound := func() error {
		return backend.Invalid("%s unit %d (%q) is not bound", u.Kind, u.Unit, u.Resource.Name)
	}
	switch u.Kind {
	case backend.UnitUniform, backend.UnitStorage:
		b := c.uniforms[u.Unit]
		if u.Kind == backend.UnitStorage {
			b = c.storage[u.Unit]
		}
		if b == nil {
			return nil, unbound()
		}
		return gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Size: uint64(b.desc.Size)}, nil
	case backend.UnitTexture:
		t := c.textures[u.Unit]
		if t == nil {
			return nil, unbound()
		}
		v, err := t.sampledView()
		if err != nil {
			return nil, err
		}
		return gputypes.TextureViewBinding{TextureView: v.NativeHandle()}, nil
	case backend.UnitSampler:
		t := c.textures[u.Unit]
		if t == nil {
			return nil, unbound()
		}
		s, err := c.dev.sampler(t.Sampler())
		if err != nil {
			return nil, err
		}
		return gputypes.SamplerBinding{Sampler: s.NativeHandle()}, nil
	case backend.UnitImage:
		ib := c.images[u.Unit]
		if ib.tex == nil {
			return nil, unbound()
		}
		v, err := ib.tex.imageView(ib.level)
		if err != nil {
			return nil, err
		}
		return gputypes.TextureViewBinding{TextureView: v.NativeHandle()}, nil
	}
	return nil, backend.Invalid("unit kind %v", u.Kind)
}

func (c *Commands) checkGraphics() error {
	vs := c.shaders[backend.StageVertex]
	if vs == nil {
		return backend.Invalid("draw without a vertex shader")
	}
	if len(c.colors) == 0 && c.depth == nil {
		return backend.Invalid("draw without a render target")
	}
	for _, in := range vs.EntryPoint().Inputs {
		if c.layout == nil {
			return backend.Invalid("vertex input %q at location %d has no input layout", in.Name, in.Location)
		}
		if !layoutHas(c.layout.layout, in.Location) {
			return backend.Invalid("input layout does not feed location %d (%q)", in.Location, in.Name)
		}
	}
	return nil
}

func layoutHas(l *backend.VertexLayout, loc uint32) bool {
	for _, s := range l.Slots {
		for _, a := range s.Layout.Attributes {
			if a.ShaderLocation == loc {
				return true
			}
		}
	}
	return false
}

// checkVertexRange verifies that vertices [0,vertexEnd) and instances
// [0,instanceEnd) lie inside the bound vertex buffers.
func (c *Commands) checkVertexRange(vertexEnd, instanceEnd int) error {
	if c.layout == nil {
		return nil
	}
	for i, s := range c.layout.layout.Slots {
		n := vertexEnd
		if s.Layout.StepMode == gputypes.VertexStepModeInstance {
			n = instanceEnd
		}
		if n <= 0 {
			continue
		}
		var end uint64
		for _, a := range s.Layout.Attributes {
			end = max(end, a.Offset+a.Format.Size())
		}
		size := uint64(s.Buffer.Descriptor().Size)
		stride := s.Layout.ArrayStride
		if s.Offset > size || end > size-s.Offset ||
			(stride > 0 && uint64(n-1) > (size-s.Offset-end)/stride) {
			return backend.Invalid("vertex slot %d: %d elements do not fit a %d byte buffer", i, n, size)
		}
	}
	return nil
}

func validTopology(t gputypes.PrimitiveTopology) error {
	if t > gputypes.PrimitiveTopologyTriangleStrip {
		return backend.Invalid("primitive topology %d", t)
	}
	return nil
}

// pipelineKey folds the bound state into the key of a render pipeline.
func (c *Commands) pipelineKey(lk layoutKey, topology gputypes.PrimitiveTopology, indexed bool) pipelineKey {
	k := pipelineKey{
		layout:   lk,
		topology: topology,
		raster:   c.rasterDesc(),
		blend:    c.blendDesc(),
		samples:  1,
	}
	if indexed && (topology == gputypes.PrimitiveTopologyLineStrip || topology == gputypes.PrimitiveTopologyTriangleStrip) {
		k.strip = c.indexFormat
	}
	if c.layout != nil {
		k.vertex = c.layout.key
	}
	for i, v := range c.colors {
		if v == nil {
			continue
		}
		k.colors[i] = v.Format()
		k.samples = uint32(v.(*View).samples)
		if i >= len(c.drawBuffers) || c.drawBuffers[i] {
			k.writes |= 1 << i
		}
	}
	if c.depth != nil {
		k.depth = c.depth.Format()
		k.samples = uint32(c.depth.(*View).samples)
		k.ds = c.depthStencilDesc()
		k.ds.StencilRef = 0
	}
	return k
}

// bindDraw prepares the render pass for a draw: pipeline, bind groups,
// vertex and index buffers and the dynamic state.
func (c *Commands) bindDraw(op string, topology gputypes.PrimitiveTopology, indexed bool) (hal.RenderPassEncoder, error) {
	info, err := c.program(false)
	if err != nil {
		return nil, err
	}
	var shaders [3]*Shader
	shaders[backend.StageVertex] = c.shaders[backend.StageVertex]
	shaders[backend.StageFragment] = c.shaders[backend.StageFragment]
	lk := c.layoutKey(info, shaders)
	pl, err := c.dev.programLayout(lk, info, c.imageFormat)
	if err != nil {
		return nil, err
	}
	var buffers []gputypes.VertexBufferLayout
	if c.layout != nil {
		buffers = c.layout.buffers
	}
	pipe, err := c.dev.renderPipeline(c.pipelineKey(lk, topology, indexed), pl, buffers)
	if err != nil {
		return nil, err
	}
	groups, err := c.bindGroups(pl)
	if err != nil {
		return nil, err
	}
	pass, err := c.renderPass(op)
	if err != nil {
		return nil, err
	}

	pass.SetPipeline(pipe)
	for i, g := range groups {
		pass.SetBindGroup(uint32(i), g, nil)
	}
	if c.layout != nil {
		for i, s := range c.layout.layout.Slots {
			pass.SetVertexBuffer(uint32(i), s.Buffer.(*Buffer).raw, s.Offset)
		}
	}
	if indexed {
		pass.SetIndexBuffer(c.index.raw, c.indexFormat, uint64(c.indexOffset))
	}

	w, h := c.targetSize()
	if len(c.viewports) > 0 {
		vp := c.viewports[0]
		pass.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
	} else {
		pass.SetViewport(0, 0, float32(w), float32(h), 0, 1)
	}
	scissor := image.Rect(0, 0, w, h)
	if c.rasterDesc().Scissor && len(c.scissors) > 0 {
		scissor = c.scissors[0].Intersect(scissor)
	}
	pass.SetScissorRect(uint32(scissor.Min.X), uint32(scissor.Min.Y), uint32(scissor.Dx()), uint32(scissor.Dy()))
	if c.depth != nil {
		pass.SetStencilReference(c.depthStencilDesc().StencilRef)
	}
	return pass, nil
}

func (c *Commands) targetSize() (w, h int) {
	for _, v := range c.colors {
		if v != nil {
			return v.Width(), v.Height()
		}
	}
	if c.depth != nil {
		return c.depth.Width(), c.depth.Height()
	}
	return 0, 0
}

// Draw records a non-indexed draw.
func (c *Commands) Draw(topology gputypes.PrimitiveTopology, vertexCount, instanceCount, firstVertex, firstInstance int) error {
	const op = "draw"
	if err := c.dev.check(op); err != nil {
		return err
	}
	if err := validTopology(topology); err != nil {
		return err
	}
	if vertexCount < 0 || instanceCount < 0 || firstVertex < 0 || firstInstance < 0 {
		return backend.Invalid("negative draw arguments")
	}
	if err := c.checkGraphics(); err != nil {
		return err
	}
	if vertexCount == 0 || instanceCount == 0 {
		return nil
	}
	vend, ok := backend.RangeEnd(firstVertex, vertexCount)
	iend, iok := backend.RangeEnd(firstInstance, instanceCount)
	if !ok || !iok {
		return backend.Invalid("draw range overflows")
	}
	if err := c.checkVertexRange(vend, iend); err != nil {
		return err
	}
	pass, err := c.bindDraw(op, topology, false)
	if err != nil {
		return err
	}
	pass.Draw(uint32(vertexCount), uint32(instanceCount), uint32(firstVertex), uint32(firstInstance))
	return nil
}

// DrawIndexed records an indexed draw. Index values are not inspected;
// out-of-range vertices are subject to the driver's robust buffer access.
func (c *Commands) DrawIndexed(topology gputypes.PrimitiveTopology, indexCount, instanceCount, firstIndex, baseVertex, firstInstance int) error {
	const op = "draw indexed"
	if err := c.dev.check(op); err != nil {
		return err
	}
	if err := validTopology(topology); err != nil {
		return err
	}
	if indexCount < 0 || instanceCount < 0 || firstIndex < 0 || firstInstance < 0 {
		return backend.Invalid("negative draw arguments")
	}
	if c.index == nil {
		return backend.Invalid("indexed draw without an element buffer")
	}
	if err := c.checkGraphics(); err != nil {
		return err
	}
	size := int(c.indexFormat.Size())
	if n := c.index.desc.Size; c.indexOffset > n || !backend.InRange(firstIndex, indexCount, (n-c.indexOffset)/size) {
		return backend.Invalid("%d indices from index %d outside a %d byte element buffer", indexCount, firstIndex, n)
	}
	if indexCount == 0 || instanceCount == 0 {
		return nil
	}
	pass, err := c.bindDraw(op, topology, true)
	if err != nil {
		return err
	}
	pass.DrawIndexed(uint32(indexCount), uint32(instanceCount), uint32(firstIndex), int32(baseVertex), uint32(firstInstance))
	return nil
}

// Dispatch records a compute dispatch in its own compute pass.
func (c *Commands) Dispatch(x, y, z int) error {
	const op = "dispatch"
	if err := c.dev.check(op); err != nil {
		return err
	}
	cs := c.shaders[backend.StageCompute]
	if cs == nil {
		return backend.Invalid("dispatch without a compute shader")
	}
	if x < 0 || y < 0 || z < 0 {
		return backend.Invalid("dispatch size %dx%dx%d", x, y, z)
	}
	if x == 0 || y == 0 || z == 0 {
		return nil
	}
	info, err := c.program(true)
	if err != nil {
		return err
	}
	var shaders [3]*Shader
	shaders[backend.StageCompute] = cs
	lk := c.layoutKey(info, shaders)
	pl, err := c.dev.programLayout(lk, info, c.imageFormat)
	if err != nil {
		return err
	}
	pipe, err := c.dev.computePipeline(computeKey{layout: lk}, pl)
	if err != nil {
		return err
	}
	groups, err := c.bindGroups(pl)
	if err != nil {
		return err
	}
	c.endPass()
	enc, err := c.encoder(op)
	if err != nil {
		return err
	}
	pass := enc.BeginComputePass(&hal.ComputePassDescriptor{Label: "gfx dispatch"})
	pass.SetPipeline(pipe)
	for i, g := range groups {
		pass.SetBindGroup(uint32(i), g, nil)
	}
	pass.Dispatch(uint32(x), uint32(y), uint32(z))
	pass.End()
	return nil
}

// ClearColor records a pass that clears v. The next draw opens a new pass
// that loads the cleared contents.
func (c *Commands) ClearColor(v backend.View, col gputypes.Color) error {
	const op = "clear"
	if err := c.dev.check(op); err != nil {
		return err
	}
	wv, err := c.asView(v)
	if err != nil {
		return err
	}
	if wv == nil || wv.depth {
		return backend.Invalid("clear color needs a color view")
	}
	c.endPass()
	enc, err := c.encoder(op)
	if err != nil {
		return err
	}
	enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "gfx clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       wv.raw,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: col,
		}},
	}).End()
	c.newPass = true
	return nil
}

// ClearDepthStencil records a pass that clears the selected aspects of v.
func (c *Commands) ClearDepthStencil(v backend.View, flags backend.ClearFlags, depth float32, stencil uint8) error {
	const op = "clear depth-stencil"
	if err := c.dev.check(op); err != nil {
		return err
	}
	wv, err := c.asView(v)
	if err != nil {
		return err
	}
	if wv == nil || !wv.depth {
		return backend.Invalid("clear depth-stencil needs a depth-stencil view")
	}
	att := &hal.RenderPassDepthStencilAttachment{
		View:              wv.raw,
		DepthClearValue:   depth,
		StencilClearValue: uint32(stencil),
	}
	if wv.fi.Depth {
		att.DepthLoadOp, att.DepthStoreOp = gputypes.LoadOpLoad, gputypes.StoreOpStore
		if flags&backend.ClearDepth != 0 {
			att.DepthLoadOp = gputypes.LoadOpClear
		}
	}
	if wv.fi.Stencil {
		att.StencilLoadOp, att.StencilStoreOp = gputypes.LoadOpLoad, gputypes.StoreOpStore
		if flags&backend.ClearStencil != 0 {
			att.StencilLoadOp = gputypes.LoadOpClear
		}
	}
	c.endPass()
	enc, err := c.encoder(op)
	if err != nil {
		return err
	}
	enc.BeginRenderPass(&hal.RenderPassDescriptor{Label: "gfx clear", DepthStencilAttachment: att}).End()
	c.newPass = true
	return nil
}

// CopyBuffer copies size bytes between buffers. Copies that overlap or are
// not four-byte aligned go through host memory.
func (c *Commands) CopyBuffer(dst backend.Buffer, dstOffset int, src backend.Buffer, srcOffset, size int) error {
	const op = "copy buffer"
	d, err := c.asBuffer(dst)
	if err != nil {
		return err
	}
	s, err := c.asBuffer(src)
	if err != nil {
		return err
	}
	if size < 0 {
		return backend.Invalid("copy size %d", size)
	}
	if err := s.check(op, srcOffset, size); err != nil {
		return err
	}
	if err := d.check(op, dstOffset, size); err != nil {
		return err
	}
	if size == 0 {
		return nil
	}
	overlap := d == s && srcOffset < dstOffset+size && dstOffset < srcOffset+size
	if overlap || (srcOffset|dstOffset|size)&3 != 0 {
		start := srcOffset &^ 3
		words, err := c.dev.readBuffer(op, s.raw, start, alignUp(srcOffset+size, 4)-start)
		if err != nil {
			return err
		}
		return d.Write(dstOffset, words[srcOffset-start:][:size])
	}
	c.endPass()
	enc, err := c.encoder(op)
	if err != nil {
		return err
	}
	enc.CopyBufferToBuffer(s.raw, d.raw, []hal.BufferCopy{{
		SrcOffset: uint64(srcOffset),
		DstOffset: uint64(dstOffset),
		Size:      uint64(size),
	}})
	return nil
}

// CopyTexture copies srcRegion of src to dst with its origin at dstAt.
// dstAt's size fields are ignored.
func (c *Commands) CopyTexture(dst backend.Texture, dstAt backend.TextureRegion, src backend.Texture, srcRegion backend.TextureRegion) error {
	const op = "copy texture"
	d, err := c.asTexture(dst)
	if err != nil {
		return err
	}
	s, err := c.asTexture(src)
	if err != nil {
		return err
	}
	if d.fi.BlockBytes != s.fi.BlockBytes || d.fi.BlockWidth != s.fi.BlockWidth || d.fi.BlockHeight != s.fi.BlockHeight {
		return backend.Invalid("copy between incompatible formats %v and %v", s.desc.Format, d.desc.Format)
	}
	if err := srcRegion.Within(&s.desc); err != nil {
		return err
	}
	dstAt.Width, dstAt.Height, dstAt.Depth = srcRegion.Width, srcRegion.Height, srcRegion.Depth
	if err := dstAt.Within(&d.desc); err != nil {
		return err
	}
	if srcRegion.Width == 0 || srcRegion.Height == 0 || srcRegion.Depth == 0 {
		return nil
	}
	c.endPass()
	enc, err := c.encoder(op)
	if err != nil {
		return err
	}
	enc.CopyTextureToTexture(s.raw, d.raw, []hal.TextureCopy{{
		SrcBase: imageCopy(s.raw, srcRegion),
		DstBase: imageCopy(d.raw, dstAt),
		Size:    extent(srcRegion),
	}})
	return nil
}

// CopyTextureToBuffer copies a texture region into a buffer with an
// arbitrary row pitch. The region is read back and written row by row, so
// bytes between rows keep their contents.
func (c *Commands) CopyTextureToBuffer(dst backend.Buffer, dstOffset, bytesPerRow int, src backend.Texture, region backend.TextureRegion) error {
	const op = "copy texture to buffer"
	d, err := c.asBuffer(dst)
	if err != nil {
		return err
	}
	s, err := c.asTexture(src)
	if err != nil {
		return err
	}
	if err := region.Within(&s.desc); err != nil {
		return err
	}
	if dstOffset < 0 || dstOffset > d.desc.Size {
		return backend.Invalid("buffer offset %d outside %d bytes", dstOffset, d.desc.Size)
	}
	pitch, err := backend.CheckUpload(s.desc.Format, region, d.desc.Size-dstOffset, bytesPerRow)
	if err != nil {
		return err
	}
	if region.Width == 0 || region.Height == 0 || region.Depth == 0 {
		return nil
	}
	data, srcPitch, err := c.dev.readTexture(op, s.raw, s.fi, region)
	if err != nil {
		return err
	}
	rowBytes := s.fi.RowPitch(region.Width)
	rows := s.fi.Rows(region.Height) * region.Depth
	if pitch == rowBytes {
		tight := make([]byte, rowBytes*rows)
		repack(tight, rowBytes, data, srcPitch, rowBytes, rows)
		return d.Write(dstOffset, tight)
	}
	for y := range rows {
		if err := d.Write(dstOffset+y*pitch, data[y*srcPitch:][:rowBytes]); err != nil {
			return err
		}
	}
	return nil
}

// ReadPixels copies rect of the read target into dst.
func (c *Commands) ReadPixels(rect image.Rectangle, dst []byte, bytesPerRow int) error {
	const op = "read pixels"
	if err := c.dev.check(op); err != nil {
		return err
	}
	v := c.read
	if v == nil && len(c.colors) > 0 {
		v = c.colors[0]
	}
	wv, err := c.asView(v)
	if err != nil {
		return err
	}
	if wv == nil {
		return backend.Invalid("read pixels without a read target")
	}
	if !rect.In(image.Rect(0, 0, wv.w, wv.h)) {
		return backend.Invalid("read rect %v outside %dx%d target", rect, wv.w, wv.h)
	}
	rowBytes := rect.Dx() * wv.fi.BlockBytes
	if bytesPerRow == 0 {
		bytesPerRow = rowBytes
	}
	if bytesPerRow < rowBytes {
		return backend.Invalid("row pitch %d smaller than row size %d", bytesPerRow, rowBytes)
	}
	if rect.Empty() {
		return nil
	}
	if need := bytesPerRow*(rect.Dy()-1) + rowBytes; len(dst) < need {
		return backend.Invalid("%d bytes given for a %v read needing %d", len(dst), rect, need)
	}
	region := wv.region(backend.TextureRegion{X: rect.Min.X, Y: rect.Min.Y, Width: rect.Dx(), Height: rect.Dy()})
	data, pitch, err := c.dev.readTexture(op, wv.tex, wv.fi, region)
	if err != nil {
		return err
	}
	repack(dst, bytesPerRow, data, pitch, rowBytes, rect.Dy())
	return nil
}

// BeginQuery fails: CreateQuery never returns a query on this backend.
func (c *Commands) BeginQuery(backend.Query) error {
	return backend.Errorf(c.dev.name, "begin query", backend.ErrUnsupported, "occlusion queries")
}

// EndQuery fails like BeginQuery.
func (c *Commands) EndQuery(backend.Query) error {
	return backend.Errorf(c.dev.name, "end query", backend.ErrUnsupported, "occlusion queries")
}

// Flush submits recorded work without waiting for it.
func (c *Commands) Flush() error {
	if err := c.dev.check("flush"); err != nil {
		return err
	}
	return c.submit()
}
