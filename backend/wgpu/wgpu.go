package wgpu

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register every HAL backend of the platform.
	_ "github.com/gogpu/wgpu/hal/allbackends"
)

// Registered backend names.
const (
	Name         = backend.NameWGPU
	NameVulkan   = "wgpu-vulkan"
	NameMetal    = "wgpu-metal"
	NameDX12     = "wgpu-dx12"
	NameGL       = "wgpu-gl"
	NameSoftware = "wgpu-software"
)

// factories holds one long-lived factory per name. The registry calls the
// constructor on every lookup, so the constructors return these instances
// and loaded instances survive across lookups.
var factories = map[string]*factory{
	Name:         newFactory(Name, platformVariants(runtime.GOOS)...),
	NameVulkan:   newFactory(NameVulkan, gputypes.BackendVulkan),
	NameMetal:    newFactory(NameMetal, gputypes.BackendMetal),
	NameDX12:     newFactory(NameDX12, gputypes.BackendDX12),
	NameGL:       newFactory(NameGL, gputypes.BackendGL),
	NameSoftware: newFactory(NameSoftware, gputypes.BackendEmpty),
}

// platformVariants returns the native APIs the wgpu family tries on goos,
// preferred first: DX12 on Windows, Metal on Apple systems, Vulkan then GL
// elsewhere.
func platformVariants(goos string) []gputypes.Backend {
	switch goos {
	case "windows":
		return []gputypes.Backend{gputypes.BackendDX12, gputypes.BackendVulkan, gputypes.BackendGL}
	case "darwin", "ios":
		return []gputypes.Backend{gputypes.BackendMetal, gputypes.BackendVulkan}
	}
	return []gputypes.Backend{gputypes.BackendVulkan, gputypes.BackendGL}
}

func init() {
	for name, f := range factories {
		backend.Register(name, func() backend.Factory { return f })
	}
}

// SetCurrent installs the wgpu family as the active backend.
func SetCurrent() error { return backend.SetCurrent(Name) }

// IsCurrent reports whether a wgpu backend is the active backend.
func IsCurrent() bool {
	for name := range factories {
		if backend.IsCurrent(name) {
			return true
		}
	}
	return false
}

// halInstance is an instance of one native API together with its adapters.
type halInstance struct {
	variant  gputypes.Backend
	instance hal.Instance
	adapters []hal.ExposedAdapter
}

type factory struct {
	name     string
	variants []gputypes.Backend

	mu        sync.Mutex
	instances []*halInstance
}

func newFactory(name string, variants ...gputypes.Backend) *factory {
	return &factory{name: name, variants: variants}
}

func (f *factory) Name() string { return f.name }

// Load creates an instance of every variant of the factory and keeps the
// ones that expose at least one adapter.
func (f *factory) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, v := range f.variants {
		hi, err := openInstance(v)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		backend.Logger().Debug("wgpu instance created",
			"backend", f.name, "variant", v, "adapters", len(hi.adapters))
		f.instances = append(f.instances, hi)
	}
	if len(f.instances) == 0 {
		return backend.NewError(f.name, "load", backend.ErrNotAvailable, errors.Join(errs...))
	}
	return nil
}

func openInstance(v gputypes.Backend) (*halInstance, error) {
	b, ok := hal.GetBackend(v)
	if !ok {
		return nil, fmt.Errorf("%v: %w", v, hal.ErrBackendNotFound)
	}
	inst, err := b.CreateInstance(&hal.InstanceDescriptor{
		Backends:           gputypes.Backends(1) << v,
		Flags:              gputypes.InstanceFlagsNone,
		Dx12ShaderCompiler: gputypes.Dx12ShaderCompilerDxc,
		GLBackend:          gputypes.GLBackendGL,
	})
	if err != nil {
		return nil, fmt.Errorf("%v: create instance: %w", v, err)
	}
	adapters := inst.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		inst.Destroy()
		return nil, fmt.Errorf("%v: no adapters", v)
	}
	return &halInstance{variant: v, instance: inst, adapters: adapters}, nil
}

// NewDevice opens a device on the preferred adapter. opts.Variant restricts
// the choice to one native API.
func (f *factory) NewDevice(opts *backend.DeviceOptions) (backend.Device, error) {
	if err := backend.LoadOnce(f.name, f.Load); err != nil {
		return nil, err
	}
	var o backend.DeviceOptions
	if opts != nil {
		o = *opts
	}

	f.mu.Lock()
	hi, ad, ok := pickAdapter(f.instances, o.Variant, o.PowerPreference)
	f.mu.Unlock()
	if !ok {
		return nil, backend.Errorf(f.name, "open device", backend.ErrNotAvailable, "no adapter for variant %v", o.Variant)
	}

	open, err := ad.Adapter.Open(0, ad.Capabilities.Limits)
	if err != nil {
		return nil, backend.NewError(f.name, "open device", errorKind(err), err)
	}
	d := newDevice(deviceConfig{
		name:     variantName(hi.variant),
		label:    o.Label,
		info:     ad.Info,
		limits:   ad.Capabilities.Limits,
		pitch:    ad.Capabilities.AlignmentsMask.BufferCopyPitch,
		dev:      open.Device,
		queue:    open.Queue,
		instance: hi.instance,
		owned:    true,
	})
	backend.Logger().Info("wgpu device opened",
		"backend", d.name, "adapter", ad.Info.Name, "type", ad.Info.DeviceType)
	return d, nil
}

// pickAdapter returns the first adapter matching the power preference, or
// the first adapter of the first instance when none matches.
func pickAdapter(instances []*halInstance, variant gputypes.Backend, pref string) (*halInstance, *hal.ExposedAdapter, bool) {
	want := gputypes.DeviceTypeOther
	switch pref {
	case "high-performance":
		want = gputypes.DeviceTypeDiscreteGPU
	case "low-power":
		want = gputypes.DeviceTypeIntegratedGPU
	}

	var first *halInstance
	for _, hi := range instances {
		if variant != gputypes.BackendEmpty && hi.variant != variant {
			continue
		}
		if first == nil {
			first = hi
		}
		if want == gputypes.DeviceTypeOther {
			break
		}
		for i := range hi.adapters {
			if hi.adapters[i].Info.DeviceType == want {
				return hi, &hi.adapters[i], true
			}
		}
	}
	if first == nil {
		return nil, nil, false
	}
	return first, &first.adapters[0], true
}

func variantName(v gputypes.Backend) string {
	switch v {
	case gputypes.BackendVulkan:
		return NameVulkan
	case gputypes.BackendMetal:
		return NameMetal
	case gputypes.BackendDX12:
		return NameDX12
	case gputypes.BackendGL:
		return NameGL
	case gputypes.BackendEmpty:
		return NameSoftware
	}
	return Name
}

// halProvider is implemented by *wgpu.Device.
type halProvider interface {
	HalDevice() hal.Device
	HalQueue() hal.Queue
}

type providerFactory struct {
	name     string
	provider gpucontext.DeviceProvider
	dev      hal.Device
	queue    hal.Queue
}

// NewFactoryFromProvider returns a factory whose devices share the device of
// a host application. Register it under a name of your choice:
//
//	f, err := wgpu.NewFactoryFromProvider("host", app)
//	backend.Register("host", func() backend.Factory { return f })
//
// Swap chains are not available on such devices; the host presents.
func NewFactoryFromProvider(name string, p gpucontext.DeviceProvider) (backend.Factory, error) {
	hp, ok := p.Device().(halProvider)
	if !ok {
		return nil, backend.Errorf(name, "wrap provider", backend.ErrUnsupported,
			"device %T does not expose a HAL device", p.Device())
	}
	return &providerFactory{name: name, provider: p, dev: hp.HalDevice(), queue: hp.HalQueue()}, nil
}

func (f *providerFactory) Name() string { return f.name }
func (f *providerFactory) Load() error  { return nil }

func (f *providerFactory) NewDevice(opts *backend.DeviceOptions) (backend.Device, error) {
	label := ""
	if opts != nil {
		label = opts.Label
	}
	ai := f.provider.AdapterInfo()
	info := gputypes.AdapterInfo{Name: ai.Name, DeviceType: adapterType(ai.Type)}
	return newDevice(deviceConfig{
		name:   f.name,
		label:  label,
		info:   info,
		limits: gputypes.DefaultLimits(),
		pitch:  256,
		dev:    f.dev,
		queue:  f.queue,
	}), nil
}

func adapterType(t gpucontext.AdapterType) gputypes.DeviceType {
	switch t {
	case gpucontext.AdapterTypeDiscrete:
		return gputypes.DeviceTypeDiscreteGPU
	case gpucontext.AdapterTypeIntegrated:
		return gputypes.DeviceTypeIntegratedGPU
	case gpucontext.AdapterTypeSoftware:
		return gputypes.DeviceTypeCPU
	}
	return gputypes.DeviceTypeOther
}
