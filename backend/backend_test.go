package backend

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/gogpu/gfx/internal/shaderinfo"
	"github.com/gogpu/gputypes"
)

type fakeFactory struct {
	name    string
	loadErr error
	loads   *atomic.Int32
}

func (f *fakeFactory) Name() string { return f.name }

func (f *fakeFactory) Load() error {
	if f.loads != nil {
		f.loads.Add(1)
	}
	return f.loadErr
}

func (f *fakeFactory) NewDevice(*DeviceOptions) (Device, error) {
	return nil, ErrUnsupported
}

// withRegistry isolates registry tests from backends registered by other
// packages' init functions.
func withRegistry(t *testing.T, names ...string) {
	t.Helper()
	saved := Available()
	for _, n := range saved {
		Unregister(n)
	}
	resetCurrent()
	t.Cleanup(func() {
		for _, n := range Available() {
			Unregister(n)
		}
		for _, n := range names {
			delete(loadErr, n)
		}
		resetCurrent()
	})
}

func TestRegistryCurrentPriority(t *testing.T) {
	withRegistry(t, "t-wgpu", "t-soft")
	t.Setenv(EnvBackend, "")

	Register(NameSoft, func() Factory { return &fakeFactory{name: "t-soft"} })
	Register(NameWGPU, func() Factory { return &fakeFactory{name: "t-wgpu"} })

	f, err := Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if f.Name() != "t-wgpu" {
		t.Errorf("Current() = %q, want t-wgpu", f.Name())
	}
	if !IsCurrent(NameWGPU) || IsCurrent(NameSoft) {
		t.Errorf("IsCurrent: wgpu=%v soft=%v", IsCurrent(NameWGPU), IsCurrent(NameSoft))
	}
}

func TestRegistryFallsBackWhenLoadFails(t *testing.T) {
	withRegistry(t, "t-broken", "t-soft2")
	t.Setenv(EnvBackend, "")

	Register(NameWGPU, func() Factory {
		return &fakeFactory{name: "t-broken", loadErr: errors.New("no adapter")}
	})
	Register(NameSoft, func() Factory { return &fakeFactory{name: "t-soft2"} })

	f, err := Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if f.Name() != "t-soft2" {
		t.Errorf("Current() = %q, want t-soft2", f.Name())
	}
}

func TestRegistryEnvOverride(t *testing.T) {
	withRegistry(t, "t-a", "t-b")
	t.Setenv(EnvBackend, "custom")

	Register(NameWGPU, func() Factory { return &fakeFactory{name: "t-a"} })
	Register("custom", func() Factory { return &fakeFactory{name: "t-b"} })

	f, err := Current()
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if f.Name() != "t-b" {
		t.Errorf("Current() = %q, want t-b", f.Name())
	}
	if CurrentName() != "custom" {
		t.Errorf("CurrentName() = %q, want custom", CurrentName())
	}
}

func TestRegistrySetCurrent(t *testing.T) {
	withRegistry(t, "t-x", "t-y")
	t.Setenv(EnvBackend, "")

	Register("x", func() Factory { return &fakeFactory{name: "t-x"} })
	Register("y", func() Factory { return &fakeFactory{name: "t-y"} })

	if err := SetCurrent("missing"); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("SetCurrent(missing) error = %v, want ErrNotAvailable", err)
	}
	if err := SetCurrent("y"); err != nil {
		t.Fatalf("SetCurrent(y) error = %v", err)
	}
	f, err := Current()
	if err != nil || f.Name() != "t-y" {
		t.Errorf("Current() = %v, %v; want t-y", f, err)
	}

	Unregister("y")
	if CurrentName() != "" {
		t.Errorf("CurrentName() after Unregister = %q, want empty", CurrentName())
	}
}

func TestRegistryEmpty(t *testing.T) {
	withRegistry(t)
	t.Setenv(EnvBackend, "")
	if _, err := Current(); !errors.Is(err, ErrNotAvailable) {
		t.Errorf("Current() error = %v, want ErrNotAvailable", err)
	}
}

func TestLoadOnceConcurrent(t *testing.T) {
	var calls atomic.Int32
	key := "load-once-test"
	t.Cleanup(func() { delete(loadErr, key) })

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = LoadOnce(key, func() error {
				calls.Add(1)
				return nil
			})
		}()
	}
	wg.Wait()
	if calls.Load() != 1 {
		t.Errorf("load ran %d times, want 1", calls.Load())
	}
}

func TestLoadOnceRemembersFailure(t *testing.T) {
	key := "load-fail-test"
	t.Cleanup(func() { delete(loadErr, key) })
	want := errors.New("driver missing")
	calls := 0
	for range 3 {
		err := LoadOnce(key, func() error { calls++; return want })
		if !errors.Is(err, want) {
			t.Errorf("LoadOnce() error = %v, want %v", err, want)
		}
	}
	if calls != 1 {
		t.Errorf("load ran %d times, want 1", calls)
	}
}

func TestFullMipCount(t *testing.T) {
	tests := []struct {
		w, h, d int
		want    int
	}{
		{1, 1, 1, 1},
		{2, 1, 1, 2},
		{256, 256, 1, 9},
		{255, 17, 1, 8},
		{640, 480, 1, 10},
		{1, 1024, 1, 11},
		{8, 8, 64, 7},
	}
	for _, tt := range tests {
		if got := FullMipCount(tt.w, tt.h, tt.d); got != tt.want {
			t.Errorf("FullMipCount(%d,%d,%d) = %d, want %d", tt.w, tt.h, tt.d, got, tt.want)
		}
	}
}

func TestResolveTexture(t *testing.T) {
	lim := Limits{MaxTextureSize: 4096, MaxTextureSize3D: 256, MaxArrayLayers: 256}
	rgba := gputypes.TextureFormatRGBA8Unorm

	tests := []struct {
		name       string
		desc       TextureDescriptor
		wantLevels int
		wantLayers int
		wantErr    error
	}{
		{"full chain", TextureDescriptor{Kind: Texture2D, Width: 300, Height: 200, Format: rgba}, 9, 1, nil},
		{"explicit", TextureDescriptor{Kind: Texture2D, Width: 300, Height: 200, Format: rgba, Levels: 3}, 3, 1, nil},
		{"too many levels", TextureDescriptor{Kind: Texture2D, Width: 4, Height: 4, Format: rgba, Levels: 4}, 0, 0, ErrInvalidUsage},
		{"1D ignores height", TextureDescriptor{Kind: Texture1D, Width: 64, Height: 999, Format: rgba}, 7, 1, nil},
		{"cube faces", TextureDescriptor{Kind: TextureCube, Width: 32, Height: 32, Format: rgba}, 6, 6, nil},
		{"cube array", TextureDescriptor{Kind: TextureCubeArray, Width: 32, Height: 32, Layers: 2, Format: rgba}, 6, 12, nil},
		{"cube not square", TextureDescriptor{Kind: TextureCube, Width: 32, Height: 16, Format: rgba}, 0, 0, ErrInvalidUsage},
		{"too large", TextureDescriptor{Kind: Texture2D, Width: 8192, Height: 8, Format: rgba}, 0, 0, ErrCreation},
		{"3D limit", TextureDescriptor{Kind: Texture3D, Width: 512, Height: 8, Depth: 8, Format: rgba}, 0, 0, ErrCreation},
		{"zero size", TextureDescriptor{Kind: Texture2D, Width: 0, Height: 8, Format: rgba}, 0, 0, ErrInvalidUsage},
		{"no format", TextureDescriptor{Kind: Texture2D, Width: 8, Height: 8}, 0, 0, ErrInvalidUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTexture(tt.desc, lim)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Levels != tt.wantLevels {
				t.Errorf("Levels = %d, want %d", got.Levels, tt.wantLevels)
			}
			if got.ArrayLayers() != tt.wantLayers {
				t.Errorf("ArrayLayers() = %d, want %d", got.ArrayLayers(), tt.wantLayers)
			}
		})
	}
}

func TestRegionWithin(t *testing.T) {
	d := TextureDescriptor{Kind: Texture2D, Width: 16, Height: 8, Depth: 1, Layers: 1, Levels: 2}
	tests := []struct {
		r    TextureRegion
		want bool
	}{
		{TextureRegion{Width: 16, Height: 8, Depth: 1}, true},
		{TextureRegion{Level: 1, Width: 8, Height: 4, Depth: 1}, true},
		{TextureRegion{Level: 1, Width: 9, Height: 4, Depth: 1}, false},
		{TextureRegion{Level: 2, Width: 1, Height: 1, Depth: 1}, false},
		{TextureRegion{X: 15, Y: 7, Width: 1, Height: 1, Depth: 1}, true},
		{TextureRegion{X: -1, Width: 1, Height: 1, Depth: 1}, false},
		{TextureRegion{Z: 1, Width: 1, Height: 1, Depth: 1}, false},
		{TextureRegion{X: 1, Width: math.MaxInt, Height: 1, Depth: 1}, false},
		{TextureRegion{Y: math.MaxInt, Width: 1, Height: 1, Depth: 1}, false},
		{TextureRegion{Z: math.MaxInt, Width: 1, Height: 1, Depth: 1}, false},
	}
	for _, tt := range tests {
		err := tt.r.Within(&d)
		if (err == nil) != tt.want {
			t.Errorf("%+v.Within() error = %v, want ok=%v", tt.r, err, tt.want)
		}
	}
}

func TestInRange(t *testing.T) {
	tests := []struct {
		offset, n, size int
		want            bool
	}{
		{0, 0, 0, true},
		{0, 8, 8, true},
		{8, 0, 8, true},
		{4, 5, 8, false},
		{9, 0, 8, false},
		{-1, 1, 8, false},
		{0, -1, 8, false},
		{1, math.MaxInt, 8, false},
		{math.MaxInt, 1, 8, false},
		{math.MaxInt, math.MaxInt, math.MaxInt, false},
	}
	for _, tt := range tests {
		if got := InRange(tt.offset, tt.n, tt.size); got != tt.want {
			t.Errorf("InRange(%d, %d, %d) = %v, want %v", tt.offset, tt.n, tt.size, got, tt.want)
		}
	}
	if _, ok := RangeEnd(1, math.MaxInt); ok {
		t.Error("RangeEnd(1, MaxInt) did not report the overflow")
	}
	if end, ok := RangeEnd(3, 4); !ok || end != 7 {
		t.Errorf("RangeEnd(3, 4) = %d, %v, want 7, true", end, ok)
	}
}

func TestFormatSizes(t *testing.T) {
	tests := []struct {
		f         gputypes.TextureFormat
		w, h      int
		pitch, sz int
	}{
		{gputypes.TextureFormatRGBA8Unorm, 10, 3, 40, 120},
		{gputypes.TextureFormatR8Unorm, 10, 3, 10, 30},
		{gputypes.TextureFormatRGBA32Float, 2, 2, 32, 64},
		// 4x4 blocks: 10 px -> 3 blocks wide, 3 px -> 1 block tall.
		{gputypes.TextureFormatBC1RGBAUnorm, 10, 3, 24, 24},
		{gputypes.TextureFormatBC3RGBAUnorm, 8, 8, 32, 64},
	}
	for _, tt := range tests {
		fi, ok := DescribeFormat(tt.f)
		if !ok {
			t.Fatalf("DescribeFormat(%v) not ok", tt.f)
		}
		if got := fi.RowPitch(tt.w); got != tt.pitch {
			t.Errorf("%v RowPitch(%d) = %d, want %d", tt.f, tt.w, got, tt.pitch)
		}
		if got := fi.ImageSize(tt.w, tt.h, 1); got != tt.sz {
			t.Errorf("%v ImageSize(%d,%d) = %d, want %d", tt.f, tt.w, tt.h, got, tt.sz)
		}
	}
}

func TestCheckUpload(t *testing.T) {
	f := gputypes.TextureFormatRGBA8Unorm
	r := TextureRegion{Width: 4, Height: 2, Depth: 1}
	if pitch, err := CheckUpload(f, r, 32, 0); err != nil || pitch != 16 {
		t.Errorf("tight upload: pitch=%d err=%v", pitch, err)
	}
	if _, err := CheckUpload(f, r, 31, 0); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("short upload error = %v, want ErrInvalidUsage", err)
	}
	if _, err := CheckUpload(f, r, 100, 8); !errors.Is(err, ErrInvalidUsage) {
		t.Errorf("small pitch error = %v, want ErrInvalidUsage", err)
	}
	// Last row needs only its own bytes, not a full pitch.
	if _, err := CheckUpload(f, r, 64+16, 64); err != nil {
		t.Errorf("padded upload error = %v", err)
	}
}

type stubBuffer struct{ size int }

func (stubBuffer) NativeHandle() uintptr           { return 0 }
func (stubBuffer) Release()                        {}
func (b stubBuffer) Descriptor() *BufferDescriptor { return &BufferDescriptor{Size: b.size} }
func (stubBuffer) Write(int, []byte) error         { return nil }
func (stubBuffer) Read(int, []byte) error          { return nil }

func TestBuildVertexLayout(t *testing.T) {
	prog := &ProgramInfo{Inputs: []shaderinfo.Input{
		{Name: "pos", Location: 0, Format: gputypes.VertexFormatFloat32x3},
		{Name: "uv", Location: 1, Format: gputypes.VertexFormatFloat32x2},
	}}
	vb := &stubBuffer{size: 1024}
	other := &stubBuffer{size: 1024}

	t.Run("interleaved", func(t *testing.T) {
		l, err := BuildVertexLayout(prog, []VertexAttribute{
			{Location: 0, Buffer: vb, Format: gputypes.VertexFormatFloat32x3, Stride: 20},
			{Location: 1, Buffer: vb, Format: gputypes.VertexFormatFloat32x2, Offset: 12, Stride: 20},
			{Location: 5, Buffer: vb, Format: gputypes.VertexFormatFloat32, Stride: 20},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(l.Slots) != 1 {
			t.Fatalf("slots = %d, want 1", len(l.Slots))
		}
		attrs := l.Slots[0].Layout.Attributes
		if len(attrs) != 2 || attrs[1].Offset != 12 || l.Slots[0].Layout.StepMode != gputypes.VertexStepModeVertex {
			t.Errorf("layout = %+v", l.Slots[0].Layout)
		}
	})

	t.Run("separate buffers", func(t *testing.T) {
		l, err := BuildVertexLayout(prog, []VertexAttribute{
			{Location: 0, Buffer: vb, Format: gputypes.VertexFormatFloat32x3},
			{Location: 1, Buffer: other, Format: gputypes.VertexFormatFloat32x2},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(l.Slots) != 2 {
			t.Fatalf("slots = %d, want 2", len(l.Slots))
		}
		if l.Slots[0].Layout.ArrayStride != 12 || l.Slots[1].Layout.ArrayStride != 8 {
			t.Errorf("strides = %d, %d", l.Slots[0].Layout.ArrayStride, l.Slots[1].Layout.ArrayStride)
		}
	})

	t.Run("planar arrays in one buffer", func(t *testing.T) {
		l, err := BuildVertexLayout(prog, []VertexAttribute{
			{Location: 0, Buffer: vb, Format: gputypes.VertexFormatFloat32x3, Stride: 12},
			{Location: 1, Buffer: vb, Format: gputypes.VertexFormatFloat32x2, Offset: 480, Stride: 8},
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(l.Slots) != 2 || l.Slots[1].Offset != 480 || l.Slots[1].Layout.Attributes[0].Offset != 0 {
			t.Errorf("slots = %+v", l.Slots)
		}
	})

	t.Run("missing input", func(t *testing.T) {
		_, err := BuildVertexLayout(prog, []VertexAttribute{
			{Location: 0, Buffer: vb, Format: gputypes.VertexFormatFloat32x3},
		})
		if !errors.Is(err, ErrInvalidUsage) {
			t.Errorf("error = %v, want ErrInvalidUsage", err)
		}
	})
}

func TestUnitMapping(t *testing.T) {
	tests := []struct {
		r        shaderinfo.Resource
		kind     UnitKind
		unit     int
		wantFail bool
	}{
		{shaderinfo.Resource{Group: 0, Binding: 3, Kind: shaderinfo.ResourceUniform}, UnitUniform, 3, false},
		{shaderinfo.Resource{Group: 1, Binding: 4, Kind: shaderinfo.ResourceTexture}, UnitTexture, 2, false},
		{shaderinfo.Resource{Group: 1, Binding: 5, Kind: shaderinfo.ResourceSampler}, UnitSampler, 2, false},
		{shaderinfo.Resource{Group: 2, Binding: 1, Kind: shaderinfo.ResourceStorage}, UnitStorage, 1, false},
		{shaderinfo.Resource{Group: 3, Binding: 0, Kind: shaderinfo.ResourceStorageTexture}, UnitImage, 0, false},
		{shaderinfo.Resource{Group: 1, Binding: 1, Kind: shaderinfo.ResourceTexture}, 0, 0, true},
		{shaderinfo.Resource{Group: 0, Binding: 0, Kind: shaderinfo.ResourceStorage}, 0, 0, true},
	}
	for _, tt := range tests {
		kind, unit, err := unitOf(tt.r)
		if tt.wantFail {
			if !errors.Is(err, ErrInvalidUsage) {
				t.Errorf("unitOf(%+v) error = %v, want ErrInvalidUsage", tt.r, err)
			}
			continue
		}
		if err != nil || kind != tt.kind || unit != tt.unit {
			t.Errorf("unitOf(%+v) = %v, %d, %v; want %v, %d", tt.r, kind, unit, err, tt.kind, tt.unit)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	native := errors.New("VK_ERROR_DEVICE_LOST")
	err := NewError("wgpu-vulkan", "present", ErrDeviceLost, native)
	if !errors.Is(err, ErrDeviceLost) {
		t.Error("errors.Is(err, ErrDeviceLost) = false")
	}
	if !errors.Is(err, native) {
		t.Error("errors.Is(err, native) = false")
	}
	if err.Reason != "VK_ERROR_DEVICE_LOST" {
		t.Errorf("Reason = %q", err.Reason)
	}
	want := "backend: device lost: present (wgpu-vulkan): VK_ERROR_DEVICE_LOST"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

type countingListener struct {
	dev  Device
	hits int
}

func (l *countingListener) DeviceDestroyed(dev Device) bool {
	if dev == l.dev {
		l.hits++
		return true
	}
	return false
}

type nameDevice struct {
	Device
	name string
}

func (d *nameDevice) Backend() string { return d.name }

func TestNotifyDeviceDestroyed(t *testing.T) {
	d1 := &nameDevice{name: "one"}
	d2 := &nameDevice{name: "two"}
	l := &countingListener{dev: d1}
	id := TrackShared(l)

	if n := NotifyDeviceDestroyed(d2); n != 0 {
		t.Errorf("notify d2 = %d, want 0", n)
	}
	if n := NotifyDeviceDestroyed(d1); n != 1 {
		t.Errorf("notify d1 = %d, want 1", n)
	}
	UntrackShared(id)
	NotifyDeviceDestroyed(d1)
	if l.hits != 1 {
		t.Errorf("listener hits = %d, want 1", l.hits)
	}
}
