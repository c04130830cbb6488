package gfx

import "github.com/gogpu/gfx/backend"

// Errors returned by gfx. They are the backend taxonomy, re-exported so
// that callers can match with errors.Is without importing the backend
// package.
var (
	ErrCreation     = backend.ErrCreation
	ErrInvalidUsage = backend.ErrInvalidUsage
	ErrDeviceLost   = backend.ErrDeviceLost
	ErrOutOfMemory  = backend.ErrOutOfMemory
	ErrSharing      = backend.ErrSharing
	ErrUnsupported  = backend.ErrUnsupported
	ErrNotAvailable = backend.ErrNotAvailable
	ErrReleased     = backend.ErrReleased
)

// Error is the detailed error carried by backend failures.
type Error = backend.Error

// invalid is shorthand for backend.Invalid.
func invalid(format string, args ...any) error {
	return backend.Invalid(format, args...)
}

// released returns the error for use of a released wrapper.
func released(op, what string) error {
	return backend.Errorf("", op, ErrReleased, "%s released", what)
}
