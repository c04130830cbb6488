// Package backend defines the contract every graphics backend satisfies and
// selects which backend family is active for the process.
//
// # Backend Contract
//
// A backend family provides a [Factory]. The factory loads the native driver
// once per process and opens [Device] values. A device creates the resource
// kinds the graphic context works with (textures, buffers, render buffers,
// views, shaders, programs, input layouts, immutable state objects, queries
// and swap chains) and exposes its immediate [Commands] stream. Each resource
// kind is a small capability interface, so one family is implemented as one
// set of concrete types and there is no per-call branching on backend type.
//
// # Backend Selection
//
// Backend packages register their factories from init functions:
//
//	import _ "github.com/gogpu/gfx/backend/soft"
//	import _ "github.com/gogpu/gfx/backend/wgpu"
//
// The active backend is installed with [SetCurrent] before the first window
// is created. If nothing has been installed, the first call to [Current]
// picks the platform default: the GFX_BACKEND environment variable when set,
// otherwise the highest priority registered family. Changing the current
// backend later does not affect devices that already exist.
//
//	if err := backend.SetCurrent("soft"); err != nil {
//		log.Fatal(err)
//	}
//	dev, err := backend.NewDevice(nil)
//
// # Errors
//
// Failures are reported with the sentinel errors of this package, usually
// wrapped in an [*Error] that records the operation, the backend and the
// decoded native reason:
//
//	if errors.Is(err, backend.ErrDeviceLost) {
//		// recreate the device
//	}
//
// # Cross-Device Sharing
//
// Resources that are opened on more than one device register with the
// process-wide share list. Backends call [NotifyDeviceDestroyed] before a
// device is released so no resource keeps a handle into a dead device.
package backend
