// Package devshare tracks per-device native handles of resources that are
// shared between GPU devices.
//
// A resource starts with exactly one (device, handle) entry for the device
// that created it. Other devices obtain their own handle on demand by
// opening a share handle exported from an existing entry. When a device is
// destroyed, every resource drops the entry for that device before the
// device is released; the process-wide ShareList fans the notification out.
package devshare

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoSource is returned when a handle must be opened on a new device but
// the resource no longer holds any entry to share from.
var ErrNoSource = errors.New("devshare: no live handle to share from")

// OpenFunc opens a handle for dev by sharing from src.
type OpenFunc[D comparable, H any] func(src H, dev D) (H, error)

type entry[D comparable, H any] struct {
	dev    D
	handle H
}

// Multiplexer holds one native handle per device for a single resource.
//
// The first entry is authoritative for size and format queries. Entries are
// appended in the order devices first request them and are never reordered.
type Multiplexer[D comparable, H any] struct {
	mu      sync.Mutex
	entries []entry[D, H]
	open    OpenFunc[D, H]
	release func(H)
}

// New creates a multiplexer whose first entry is (owner, handle).
// release may be nil; it is called for handles dropped by DeviceDestroyed
// and Close, except the handle of a destroyed device.
func New[D comparable, H any](owner D, handle H, open OpenFunc[D, H], release func(H)) *Multiplexer[D, H] {
	return &Multiplexer[D, H]{
		entries: []entry[D, H]{{dev: owner, handle: handle}},
		open:    open,
		release: release,
	}
}

// Get returns the handle for dev, opening and appending a new one on miss.
// A failed open leaves the existing entries untouched.
func (m *Multiplexer[D, H]) Get(dev D) (H, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entries {
		if e.dev == dev {
			return e.handle, nil
		}
	}

	var zero H
	if len(m.entries) == 0 {
		return zero, ErrNoSource
	}
	if m.open == nil {
		return zero, fmt.Errorf("devshare: resource is not shareable")
	}
	h, err := m.open(m.entries[0].handle, dev)
	if err != nil {
		return zero, err
	}
	m.entries = append(m.entries, entry[D, H]{dev: dev, handle: h})
	return h, nil
}

// Lookup returns the handle for dev without opening a new one.
func (m *Multiplexer[D, H]) Lookup(dev D) (H, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.dev == dev {
			return e.handle, true
		}
	}
	var zero H
	return zero, false
}

// Primary returns the authoritative (first) entry.
func (m *Multiplexer[D, H]) Primary() (D, H, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		var d D
		var h H
		return d, h, false
	}
	return m.entries[0].dev, m.entries[0].handle, true
}

// Devices returns the devices holding a handle, in entry order.
func (m *Multiplexer[D, H]) Devices() []D {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]D, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.dev
	}
	return out
}

// DeviceDestroyed removes the entry for dev and reports whether one existed.
// The handle is not released: it dies with its device.
func (m *Multiplexer[D, H]) DeviceDestroyed(dev D) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.dev == dev {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Close releases every remaining handle and empties the multiplexer.
func (m *Multiplexer[D, H]) Close() {
	m.mu.Lock()
	entries := m.entries
	m.entries = nil
	m.mu.Unlock()

	if m.release == nil {
		return
	}
	for _, e := range entries {
		m.release(e.handle)
	}
}

// Listener is notified when a device is destroyed.
type Listener[D comparable] interface {
	DeviceDestroyed(dev D) bool
}

// ShareList is the registry of resources that must hear about device
// destruction. It is safe for concurrent use.
type ShareList[D comparable] struct {
	mu      sync.Mutex
	nextID  uint64
	members map[uint64]Listener[D]
}

// NewShareList creates an empty share list.
func NewShareList[D comparable]() *ShareList[D] {
	return &ShareList[D]{members: make(map[uint64]Listener[D])}
}

// Add registers l and returns the id to pass to Remove.
func (s *ShareList[D]) Add(l Listener[D]) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.members[s.nextID] = l
	return s.nextID
}

// Remove unregisters the listener with the given id.
func (s *ShareList[D]) Remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, id)
}

// Len returns the number of registered listeners.
func (s *ShareList[D]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

// DeviceDestroyed notifies every listener and returns how many of them
// held an entry for dev.
func (s *ShareList[D]) DeviceDestroyed(dev D) int {
	s.mu.Lock()
	members := make([]Listener[D], 0, len(s.members))
	for _, l := range s.members {
		members = append(members, l)
	}
	s.mu.Unlock()

	n := 0
	for _, l := range members {
		if l.DeviceDestroyed(dev) {
			n++
		}
	}
	return n
}
