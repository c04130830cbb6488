package backend

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every error returned by a backend matches one of these
// with errors.Is.
var (
	// ErrCreation is returned when a resource cannot be created: unsupported
	// format, size above the device limits, or a native creation failure.
	ErrCreation = errors.New("backend: resource creation failed")

	// ErrInvalidUsage reports a caller programming error detected before any
	// native call: size mismatch, out-of-bounds region, bad unit index,
	// unaligned element offset.
	ErrInvalidUsage = errors.New("backend: invalid usage")

	// ErrDeviceLost is returned once the native device became unusable. The
	// owner must recreate the device and every resource created on it.
	ErrDeviceLost = errors.New("backend: device lost")

	// ErrOutOfMemory is returned when the device ran out of memory.
	ErrOutOfMemory = errors.New("backend: out of memory")

	// ErrSharing is returned when a resource cannot be opened on another
	// device. The resource stays usable on the devices it already has.
	ErrSharing = errors.New("backend: resource sharing failed")

	// ErrUnsupported is returned for features the backend does not implement.
	ErrUnsupported = errors.New("backend: unsupported")

	// ErrNotAvailable is returned when a requested backend is not registered
	// or cannot open a device on this system.
	ErrNotAvailable = errors.New("backend: not available")

	// ErrReleased is returned when a released resource is used.
	ErrReleased = errors.New("backend: resource released")
)

// Error carries a native failure together with the taxonomy sentinel it maps
// to and the backend-specific reason.
type Error struct {
	Op      string // operation, e.g. "create texture"
	Backend string // backend name
	Kind    error  // one of the sentinel errors above
	Reason  string // decoded native reason
	Err     error  // native error, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Backend != "" {
		msg += " (" + e.Backend + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap exposes both the sentinel and the native error to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError wraps a native error. The reason is taken from err.
func NewError(backendName, op string, kind, err error) *Error {
	e := &Error{Op: op, Backend: backendName, Kind: kind, Err: err}
	if err != nil {
		e.Reason = err.Error()
	}
	return e
}

// Errorf builds an Error with a formatted reason and no native error.
func Errorf(backendName, op string, kind error, format string, args ...any) *Error {
	return &Error{Op: op, Backend: backendName, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Invalid returns an ErrInvalidUsage error with a formatted detail.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidUsage, fmt.Sprintf(format, args...))
}
