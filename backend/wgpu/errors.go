package wgpu

import (
	"errors"

	"github.com/gogpu/gfx/backend"
	"github.com/gogpu/wgpu/hal"
)

// errorKind maps a HAL error to the backend taxonomy.
func errorKind(err error) error {
	switch {
	case errors.Is(err, hal.ErrDeviceLost):
		return backend.ErrDeviceLost
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return backend.ErrOutOfMemory
	case errors.Is(err, hal.ErrZeroArea), errors.Is(err, hal.ErrInvalidMapRange):
		return backend.ErrInvalidUsage
	case errors.Is(err, hal.ErrBackendNotFound):
		return backend.ErrNotAvailable
	}
	return backend.ErrCreation
}

// fail wraps a HAL error. A lost device stays lost: later operations fail
// in check without reaching the driver.
func (d *Device) fail(op string, err error) error {
	kind := errorKind(err)
	if kind == backend.ErrDeviceLost {
		d.mu.Lock()
		if d.lost == nil {
			d.lost = err
		}
		d.mu.Unlock()
		backend.Logger().Warn("wgpu device lost", "backend", d.name, "op", op, "err", err)
	}
	return backend.NewError(d.name, op, kind, err)
}
