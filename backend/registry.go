package backend

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/gogpu/gpucontext"
)

// EnvBackend names the environment variable that overrides the platform
// default on the first lazy selection.
const EnvBackend = "GFX_BACKEND"

// Backend family names.
const (
	NameWGPU = "wgpu"
	NameSoft = "soft"
)

// Factory opens devices of one backend family.
type Factory interface {
	// Name returns the registered name.
	Name() string

	// Load loads the native driver entry points. It is called through
	// LoadOnce, so implementations need no locking of their own.
	Load() error

	// NewDevice opens a device. opts may be nil.
	NewDevice(opts *DeviceOptions) (Device, error)
}

var (
	registry = gpucontext.NewRegistry[Factory](
		gpucontext.WithPriority(NameWGPU, NameSoft),
	)

	currentMu   sync.Mutex
	current     Factory
	currentName string
)

// Register adds a backend factory under name. Backend packages call it from
// init. Registering an existing name replaces it.
func Register(name string, factory func() Factory) {
	registry.Register(name, factory)
}

// Unregister removes a backend. If it is current, the selection is reset and
// the next Current call selects again.
func Unregister(name string) {
	registry.Unregister(name)
	currentMu.Lock()
	if currentName == name {
		current, currentName = nil, ""
	}
	currentMu.Unlock()
}

// Available returns the sorted names of registered backends.
func Available() []string {
	names := registry.Available()
	sort.Strings(names)
	return names
}

// IsRegistered reports whether name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// SetCurrent installs the named backend for every device opened afterwards.
// Existing devices are not affected. The backend's driver is loaded once.
func SetCurrent(name string) error {
	if !registry.Has(name) {
		return fmt.Errorf("%w: %q (registered: %v)", ErrNotAvailable, name, Available())
	}
	f := registry.Get(name)
	if err := load(f); err != nil {
		return err
	}

	currentMu.Lock()
	current, currentName = f, name
	currentMu.Unlock()
	Logger().Info("backend selected", "name", name)
	return nil
}

// Current returns the active backend factory. With none installed it selects
// one: the backend named by GFX_BACKEND, otherwise the registered backends in
// priority order (wgpu, then soft, then the rest), taking the first whose
// driver loads.
func Current() (Factory, error) {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current != nil {
		return current, nil
	}

	if name := os.Getenv(EnvBackend); name != "" {
		if !registry.Has(name) {
			return nil, fmt.Errorf("%w: %s=%q", ErrNotAvailable, EnvBackend, name)
		}
		f := registry.Get(name)
		if err := load(f); err != nil {
			return nil, err
		}
		current, currentName = f, name
		Logger().Info("backend selected", "name", name, "source", EnvBackend)
		return f, nil
	}

	var errs []error
	for _, name := range candidates() {
		f := registry.Get(name)
		if f == nil {
			continue
		}
		if err := load(f); err != nil {
			Logger().Debug("backend unavailable", "name", name, "err", err)
			errs = append(errs, err)
			continue
		}
		current, currentName = f, name
		Logger().Info("backend selected", "name", name)
		return f, nil
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, errs)
	}
	return nil, fmt.Errorf("%w: no backend registered", ErrNotAvailable)
}

// candidates lists registered names, the registry's best first.
func candidates() []string {
	names := Available()
	best := registry.BestName()
	order := make([]string, 0, len(names))
	for _, n := range []string{best, NameWGPU, NameSoft} {
		if n != "" && registry.Has(n) && !contains(order, n) {
			order = append(order, n)
		}
	}
	for _, n := range names {
		if !contains(order, n) {
			order = append(order, n)
		}
	}
	return order
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// CurrentName returns the name of the installed backend, or "" when none has
// been selected yet.
func CurrentName() string {
	currentMu.Lock()
	defer currentMu.Unlock()
	return currentName
}

// IsCurrent reports whether name is the installed backend. It does not
// trigger the lazy selection.
func IsCurrent(name string) bool {
	return CurrentName() == name
}

// NewDevice opens a device on the current backend.
func NewDevice(opts *DeviceOptions) (Device, error) {
	f, err := Current()
	if err != nil {
		return nil, err
	}
	return f.NewDevice(opts)
}

// resetCurrent clears the selection. Tests use it.
func resetCurrent() {
	currentMu.Lock()
	current, currentName = nil, ""
	currentMu.Unlock()
}

func load(f Factory) error {
	return LoadOnce(f.Name(), f.Load)
}
