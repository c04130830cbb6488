package soft

import (
	"encoding/binary"
	"image"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gputypes"
)

// DrawRecord is the pipeline snapshot of one recorded draw or dispatch.
type DrawRecord struct {
	Topology gputypes.PrimitiveTopology
	Indexed  bool
	Compute  bool

	VertexCount   int
	InstanceCount int
	FirstVertex   int
	FirstInstance int
	IndexCount    int
	FirstIndex    int
	BaseVertex    int
	IndexFormat   gputypes.IndexFormat
	IndexOffset   int
	Groups        [3]int

	// The state objects bound at draw time (nil when unset) and the
	// configuration actually used.
	RasterizerState   backend.RasterizerState
	BlendState        backend.BlendState
	DepthStencilState backend.DepthStencilState
	Rasterizer        backend.RasterizerDesc
	Blend             backend.BlendDesc
	DepthStencil      backend.DepthStencilDesc

	Shaders       [3]backend.Shader
	Layout        *backend.VertexLayout
	LayoutProgram *backend.ProgramInfo
	Colors        []backend.View
	DepthTarget   backend.View
	DrawBuffers   []bool
	Viewports     []backend.Viewport
	Scissors      []image.Rectangle
	Textures      map[int]backend.Texture
	Images        map[int]backend.Texture
	Uniforms      map[int]backend.Buffer
	Storage       map[int]backend.Buffer
}

type imageBinding struct {
	tex   backend.Texture
	level int
}

// Commands is the soft command stream.
type Commands struct {
	dev *Device

	colors      []backend.View
	depth       backend.View
	read        backend.View
	drawBuffers []bool

	shaders  [3]backend.Shader
	textures []backend.Texture
	images   []imageBinding
	uniforms []backend.Buffer
	storage  []backend.Buffer

	raster backend.RasterizerState
	blend  backend.BlendState
	ds     backend.DepthStencilState

	viewports []backend.Viewport
	scissors  []image.Rectangle

	layout      *InputLayout
	index       *Buffer
	indexFormat gputypes.IndexFormat
	indexOffset int

	queries []*Query
}

func newCommands(d *Device) *Commands { return &Commands{dev: d} }

// setAt stores v at index i, growing s on demand.
func setAt[T any](s []T, i int, v T) []T {
	if i >= len(s) {
		s = append(s, make([]T, i+1-len(s))...)
	}
	s[i] = v
	return s
}

func checkUnit(unit int) error {
	if unit < 0 || unit >= backend.MaxUnits {
		return backend.Invalid("unit %d outside [0,%d)", unit, backend.MaxUnits)
	}
	return nil
}

func asView(v backend.View) (*View, error) {
	if v == nil {
		return nil, nil
	}
	sv, ok := v.(*View)
	if !ok {
		return nil, backend.Invalid("view %T does not belong to the soft backend", v)
	}
	if sv.released.Load() {
		return nil, backend.Errorf(Name, "bind view", backend.ErrReleased, "view released")
	}
	return sv, nil
}

// SetRenderTargets binds color views and an optional depth-stencil view.
// Nil entries leave a color slot empty. Every bound view must have the same
// size.
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
			w, h = v.Width(), v.Height()
			return nil
		}
		if v.Width() != w || v.Height() != h {
			return backend.Invalid("render target %dx%d differs from %dx%d", v.Width(), v.Height(), w, h)
		}
		return nil
	}
	for i, v := range colors {
		sv, err := asView(v)
		if err != nil {
			return err
		}
		if sv == nil {
			continue
		}
		if sv.depth {
			return backend.Invalid("color slot %d holds a depth-stencil view", i)
		}
		if err := sameSize(sv); err != nil {
			return err
		}
	}
	dv, err := asView(depthStencil)
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
	c.colors = append(c.colors[:0:0], colors...)
	c.depth = depthStencil
	return nil
}

// RenderTargets returns the bound views.
func (c *Commands) RenderTargets() ([]backend.View, backend.View) {
	return append([]backend.View(nil), c.colors...), c.depth
}

// SetReadTarget selects the view ReadPixels reads. Nil reads the first
// color target.
func (c *Commands) SetReadTarget(v backend.View) error {
	if _, err := asView(v); err != nil {
		return err
	}
	c.read = v
	return nil
}

// SetDrawBuffers enables or disables writes per color slot.
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
	if s != nil && s.Stage() != stage {
		return backend.Invalid("%s shader bound to the %s stage", s.Stage(), stage)
	}
	c.shaders[stage] = s
	return nil
}

// SetTexture binds t to a texture unit.
func (c *Commands) SetTexture(unit int, t backend.Texture) error {
	if err := checkUnit(unit); err != nil {
		return err
	}
	c.textures = setAt(c.textures, unit, t)
	return nil
}

// SetImageTexture binds one level of t to an image unit.
func (c *Commands) SetImageTexture(unit int, t backend.Texture, level int) error {
	if err := checkUnit(unit); err != nil {
		return err
	}
	if t != nil && (level < 0 || level >= t.Descriptor().Levels) {
		return backend.Invalid("image level %d out of range [0,%d)", level, t.Descriptor().Levels)
	}
	c.images = setAt(c.images, unit, imageBinding{tex: t, level: level})
	return nil
}

// SetUniformBuffer binds b to a uniform unit.
func (c *Commands) SetUniformBuffer(unit int, b backend.Buffer) error {
	if err := checkUnit(unit); err != nil {
		return err
	}
	c.uniforms = setAt(c.uniforms, unit, b)
	return nil
}

// SetStorageBuffer binds b to a storage unit.
func (c *Commands) SetStorageBuffer(unit int, b backend.Buffer) error {
	if err := checkUnit(unit); err != nil {
		return err
	}
	c.storage = setAt(c.storage, unit, b)
	return nil
}

// SetRasterizerState binds a rasterizer state. Nil selects the default.
func (c *Commands) SetRasterizerState(s backend.RasterizerState) error {
	c.raster = s
	return nil
}

// SetBlendState binds a blend state. Nil selects the default.
func (c *Commands) SetBlendState(s backend.BlendState) error {
	c.blend = s
	return nil
}

// SetDepthStencilState binds a depth-stencil state. Nil selects the default.
func (c *Commands) SetDepthStencilState(s backend.DepthStencilState) error {
	c.ds = s
	return nil
}

// SetViewports sets one viewport per color slot.
func (c *Commands) SetViewports(vps []backend.Viewport) error {
	if len(vps) > c.dev.limits.MaxViewports {
		return backend.Invalid("%d viewports, limit %d", len(vps), c.dev.limits.MaxViewports)
	}
	c.viewports = append([]backend.Viewport(nil), vps...)
	return nil
}

// SetScissors sets one scissor rectangle per color slot.
func (c *Commands) SetScissors(rects []image.Rectangle) error {
	if len(rects) > c.dev.limits.MaxViewports {
		return backend.Invalid("%d scissor rects, limit %d", len(rects), c.dev.limits.MaxViewports)
	}
	c.scissors = append([]image.Rectangle(nil), rects...)
	return nil
}

// SetInputLayout binds a vertex input layout. Nil unbinds it.
func (c *Commands) SetInputLayout(l backend.InputLayout) error {
	if l == nil {
		c.layout = nil
		return nil
	}
	sl, ok := l.(*InputLayout)
	if !ok {
		return backend.Invalid("input layout %T does not belong to the soft backend", l)
	}
	c.layout = sl
	return nil
}

// SetIndexBuffer binds an element buffer. Nil unbinds it.
func (c *Commands) SetIndexBuffer(b backend.Buffer, format gputypes.IndexFormat, offset int) error {
	if b == nil {
		c.index = nil
		return nil
	}
	sb, ok := b.(*Buffer)
	if !ok {
		return backend.Invalid("index buffer %T does not belong to the soft backend", b)
	}
	size := int(format.Size())
	if size == 0 {
		return backend.Invalid("index format %v", format)
	}
	if offset < 0 || offset%size != 0 {
		return backend.Invalid("index offset %d is not a multiple of %d", offset, size)
	}
	c.index, c.indexFormat, c.indexOffset = sb, format, offset
	return nil
}

func (c *Commands) snapshot(rec *DrawRecord) {
	rec.RasterizerState, rec.BlendState, rec.DepthStencilState = c.raster, c.blend, c.ds
	rec.Rasterizer = backend.DefaultRasterizer()
	if c.raster != nil {
		rec.Rasterizer = c.raster.Desc()
	}
	rec.Blend = backend.DefaultBlend()
	if c.blend != nil {
		rec.Blend = c.blend.Desc()
	}
	rec.DepthStencil = backend.DefaultDepthStencil()
	if c.ds != nil {
		rec.DepthStencil = c.ds.Desc()
	}
	rec.Shaders = c.shaders
	if c.layout != nil {
		rec.Layout = c.layout.layout
		rec.LayoutProgram = c.layout.program
	}
	rec.Colors = append([]backend.View(nil), c.colors...)
	rec.DepthTarget = c.depth
	rec.DrawBuffers = append([]bool(nil), c.drawBuffers...)
	rec.Viewports = append([]backend.Viewport(nil), c.viewports...)
	rec.Scissors = append([]image.Rectangle(nil), c.scissors...)
	rec.Textures = collect(c.textures)
	rec.Uniforms = collect(c.uniforms)
	rec.Storage = collect(c.storage)
	rec.Images = make(map[int]backend.Texture)
	for i, b := range c.images {
		if b.tex != nil {
			rec.Images[i] = b.tex
		}
	}
}

func collect[T comparable](s []T) map[int]T {
	var zero T
	m := make(map[int]T)
	for i, v := range s {
		if v != zero {
			m[i] = v
		}
	}
	return m
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

func (c *Commands) record(rec DrawRecord, samples uint64) {
	c.snapshot(&rec)
	for _, q := range c.queries {
		q.samples += samples
	}
	d := c.dev
	d.mu.Lock()
	d.draws = append(d.draws, rec)
	if rec.Compute {
		d.stats.Dispatches++
	} else {
		d.stats.Draws++
	}
	d.mu.Unlock()
}

// Draw records a non-indexed draw.
func (c *Commands) Draw(topology gputypes.PrimitiveTopology, vertexCount, instanceCount, firstVertex, firstInstance int) error {
	if err := c.dev.check("draw"); err != nil {
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
	if vertexCount > 0 && instanceCount > 0 {
		vend, ok := backend.RangeEnd(firstVertex, vertexCount)
		iend, iok := backend.RangeEnd(firstInstance, instanceCount)
		if !ok || !iok {
			return backend.Invalid("draw range overflows")
		}
		if err := c.checkVertexRange(vend, iend); err != nil {
			return err
		}
	}
	c.record(DrawRecord{
		Topology:      topology,
		VertexCount:   vertexCount,
		InstanceCount: instanceCount,
		FirstVertex:   firstVertex,
		FirstInstance: firstInstance,
	}, uint64(vertexCount)*uint64(instanceCount))
	return nil
}

// DrawIndexed records an indexed draw. The indices are read to check that
// every referenced vertex lies inside the vertex buffers.
func (c *Commands) DrawIndexed(topology gputypes.PrimitiveTopology, indexCount, instanceCount, firstIndex, baseVertex, firstInstance int) error {
	if err := c.dev.check("draw indexed"); err != nil {
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
	data := c.index.store.data
	if c.indexOffset > len(data) || !backend.InRange(firstIndex, indexCount, (len(data)-c.indexOffset)/size) {
		return backend.Invalid("%d indices from index %d outside a %d byte element buffer", indexCount, firstIndex, len(data))
	}
	start := c.indexOffset + firstIndex*size
	end := start + indexCount*size
	if indexCount > 0 && instanceCount > 0 {
		maxIndex := 0
		for off := start; off < end; off += size {
			var idx int
			if size == 2 {
				idx = int(binary.LittleEndian.Uint16(data[off:]))
			} else {
				idx = int(binary.LittleEndian.Uint32(data[off:]))
			}
			maxIndex = max(maxIndex, idx)
		}
		vend, ok := maxIndex+1+baseVertex, true
		if baseVertex > 0 {
			vend, ok = backend.RangeEnd(maxIndex+1, baseVertex)
		}
		iend, iok := backend.RangeEnd(firstInstance, instanceCount)
		if !ok || !iok {
			return backend.Invalid("draw range overflows")
		}
		if err := c.checkVertexRange(vend, iend); err != nil {
			return err
		}
	}
	c.record(DrawRecord{
		Topology:      topology,
		Indexed:       true,
		IndexCount:    indexCount,
		InstanceCount: instanceCount,
		FirstIndex:    firstIndex,
		BaseVertex:    baseVertex,
		FirstInstance: firstInstance,
		IndexFormat:   c.indexFormat,
		IndexOffset:   c.indexOffset,
	}, uint64(indexCount)*uint64(instanceCount))
	return nil
}

// Dispatch records a compute dispatch.
func (c *Commands) Dispatch(x, y, z int) error {
	if err := c.dev.check("dispatch"); err != nil {
		return err
	}
	if c.shaders[backend.StageCompute] == nil {
		return backend.Invalid("dispatch without a compute shader")
	}
	if x < 0 || y < 0 || z < 0 {
		return backend.Invalid("dispatch size %dx%dx%d", x, y, z)
	}
	c.record(DrawRecord{Compute: true, Groups: [3]int{x, y, z}}, 0)
	return nil
}

// ClearColor fills a color view.
func (c *Commands) ClearColor(v backend.View, col gputypes.Color) error {
	if err := c.dev.check("clear"); err != nil {
		return err
	}
	sv, err := asView(v)
	if err != nil {
		return err
	}
	if sv == nil || sv.depth {
		return backend.Invalid("clear color needs a color view")
	}
	s, err := sv.pixels()
	if err != nil {
		return err
	}
	px, err := encodeColor(s.format, col)
	if err != nil {
		return err
	}
	for y := 0; y < s.h; y++ {
		row := s.pix[y*s.pitch:][:s.w*len(px)]
		for x := 0; x < len(row); x += len(px) {
			copy(row[x:], px)
		}
	}
	return nil
}

// ClearDepthStencil clears the selected aspects of a depth-stencil view.
func (c *Commands) ClearDepthStencil(v backend.View, flags backend.ClearFlags, depth float32, stencil uint8) error {
	if err := c.dev.check("clear depth-stencil"); err != nil {
		return err
	}
	sv, err := asView(v)
	if err != nil {
		return err
	}
	if sv == nil || !sv.depth {
		return backend.Invalid("clear depth-stencil needs a depth-stencil view")
	}
	s, err := sv.pixels()
	if err != nil {
		return err
	}
	bpp := s.fi.BlockBytes
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			writeDepthStencil(s.format, s.pix[s.offset(x, y):][:bpp], flags, depth, stencil)
		}
	}
	return nil
}

func asBuffer(b backend.Buffer) (*Buffer, error) {
	sb, ok := b.(*Buffer)
	if !ok || sb == nil {
		return nil, backend.Invalid("buffer %T does not belong to the soft backend", b)
	}
	if err := sb.usable("copy"); err != nil {
		return nil, err
	}
	return sb, nil
}

func asTexture(t backend.Texture) (*Texture, error) {
	st, ok := t.(*Texture)
	if !ok || st == nil {
		return nil, backend.Invalid("texture %T does not belong to the soft backend", t)
	}
	if err := st.usable("copy"); err != nil {
		return nil, err
	}
	return st, nil
}

// CopyBuffer copies size bytes between buffers. Ranges may overlap.
func (c *Commands) CopyBuffer(dst backend.Buffer, dstOffset int, src backend.Buffer, srcOffset, size int) error {
	if err := c.dev.check("copy buffer"); err != nil {
		return err
	}
	d, err := asBuffer(dst)
	if err != nil {
		return err
	}
	s, err := asBuffer(src)
	if err != nil {
		return err
	}
	if size < 0 {
		return backend.Invalid("copy size %d", size)
	}
	if err := s.checkRange(srcOffset, size); err != nil {
		return err
	}
	if err := d.checkRange(dstOffset, size); err != nil {
		return err
	}
	copy(d.store.data[dstOffset:dstOffset+size], s.store.data[srcOffset:srcOffset+size])
	return nil
}

// CopyTexture copies srcRegion of src to dst with its origin at dstAt.
// dstAt's size fields are ignored.
func (c *Commands) CopyTexture(dst backend.Texture, dstAt backend.TextureRegion, src backend.Texture, srcRegion backend.TextureRegion) error {
	if err := c.dev.check("copy texture"); err != nil {
		return err
	}
	d, err := asTexture(dst)
	if err != nil {
		return err
	}
	s, err := asTexture(src)
	if err != nil {
		return err
	}
	if d.fi.BlockBytes != s.fi.BlockBytes || d.fi.BlockWidth != s.fi.BlockWidth || d.fi.BlockHeight != s.fi.BlockHeight {
		return backend.Invalid("copy between incompatible formats %v and %v", s.desc.Format, d.desc.Format)
	}
	if err := s.checkRegion(srcRegion); err != nil {
		return err
	}
	dstAt.Width, dstAt.Height, dstAt.Depth = srcRegion.Width, srcRegion.Height, srcRegion.Depth
	if err := d.checkRegion(dstAt); err != nil {
		return err
	}
	pitch := s.fi.RowPitch(srcRegion.Width)
	tmp := make([]byte, s.fi.ImageSize(srcRegion.Width, srcRegion.Height, srcRegion.Depth))
	s.transfer(srcRegion, tmp, pitch, false)
	d.transfer(dstAt, tmp, pitch, true)
	return nil
}

// CopyTextureToBuffer copies a texture region into a buffer.
func (c *Commands) CopyTextureToBuffer(dst backend.Buffer, dstOffset, bytesPerRow int, src backend.Texture, region backend.TextureRegion) error {
	if err := c.dev.check("copy texture to buffer"); err != nil {
		return err
	}
	d, err := asBuffer(dst)
	if err != nil {
		return err
	}
	s, err := asTexture(src)
	if err != nil {
		return err
	}
	if err := s.checkRegion(region); err != nil {
		return err
	}
	if dstOffset < 0 || dstOffset > len(d.store.data) {
		return backend.Invalid("buffer offset %d outside %d bytes", dstOffset, len(d.store.data))
	}
	pitch, err := backend.CheckUpload(s.desc.Format, region, len(d.store.data)-dstOffset, bytesPerRow)
	if err != nil {
		return err
	}
	s.transfer(region, d.store.data[dstOffset:], pitch, false)
	return nil
}

// ReadPixels copies rect of the read target into dst.
func (c *Commands) ReadPixels(rect image.Rectangle, dst []byte, bytesPerRow int) error {
	if err := c.dev.check("read pixels"); err != nil {
		return err
	}
	v := c.read
	if v == nil && len(c.colors) > 0 {
		v = c.colors[0]
	}
	sv, err := asView(v)
	if err != nil {
		return err
	}
	if sv == nil {
		return backend.Invalid("read pixels without a read target")
	}
	s, err := sv.pixels()
	if err != nil {
		return err
	}
	if !rect.In(image.Rect(0, 0, s.w, s.h)) {
		return backend.Invalid("read rect %v outside %dx%d target", rect, s.w, s.h)
	}
	rowBytes := rect.Dx() * s.fi.BlockBytes
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
	for y := 0; y < rect.Dy(); y++ {
		copy(dst[y*bytesPerRow:][:rowBytes], s.pix[s.offset(rect.Min.X, rect.Min.Y+y):])
	}
	return nil
}

// BeginQuery starts counting samples into q.
func (c *Commands) BeginQuery(q backend.Query) error {
	sq, ok := q.(*Query)
	if !ok {
		return backend.Invalid("query %T does not belong to the soft backend", q)
	}
	if sq.active {
		return backend.Invalid("query already active")
	}
	sq.active, sq.ended, sq.samples = true, false, 0
	c.queries = append(c.queries, sq)
	return nil
}

// EndQuery stops q. Its result is available immediately.
func (c *Commands) EndQuery(q backend.Query) error {
	sq, ok := q.(*Query)
	if !ok || !sq.active {
		return backend.Invalid("query not active")
	}
	sq.active, sq.ended = false, true
	for i, a := range c.queries {
		if a == sq {
			c.queries = append(c.queries[:i], c.queries[i+1:]...)
			break
		}
	}
	return nil
}

// Flush counts a submission. Soft work completes synchronously.
func (c *Commands) Flush() error {
	if err := c.dev.check("flush"); err != nil {
		return err
	}
	c.dev.count(func(s *Stats) { s.Flushes++ })
	return nil
}
