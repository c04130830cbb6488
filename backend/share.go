package backend

import "github.com/gogpu/gfx/internal/devshare"

// DeviceListener is notified before a device is destroyed. Resources shared
// across devices register one so they can drop their handles for it.
type DeviceListener = devshare.Listener[Device]

var shareList = devshare.NewShareList[Device]()

// TrackShared registers l with the process-wide share list and returns the
// id to pass to UntrackShared.
func TrackShared(l DeviceListener) uint64 {
	return shareList.Add(l)
}

// UntrackShared removes a listener registered with TrackShared.
func UntrackShared(id uint64) {
	shareList.Remove(id)
}

// NotifyDeviceDestroyed tells every tracked resource that dev is going
// away. Devices call it at the start of Release. It returns the number of
// per-device handles dropped.
func NotifyDeviceDestroyed(dev Device) int {
	n := shareList.DeviceDestroyed(dev)
	if n > 0 {
		Logger().Debug("dropped shared handles", "backend", dev.Backend(), "handles", n)
	}
	return n
}
