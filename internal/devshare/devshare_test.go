package devshare

import (
	"errors"
	"testing"
)

type device struct {
	name string
	dead bool
}

type handle struct {
	dev  *device
	data *[]byte
}

var errDeviceGone = errors.New("device gone")

func openOn(src handle, dev *device) (handle, error) {
	if dev.dead {
		return handle{}, errDeviceGone
	}
	return handle{dev: dev, data: src.data}, nil
}

func newResource(owner *device) *Multiplexer[*device, handle] {
	data := []byte{1, 2, 3, 4}
	return New(owner, handle{dev: owner, data: &data}, openOn, nil)
}

func TestGetOpensOnce(t *testing.T) {
	d1, d2 := &device{name: "d1"}, &device{name: "d2"}
	m := newResource(d1)

	h2, err := m.Get(d2)
	if err != nil {
		t.Fatalf("Get(d2): %v", err)
	}
	if h2.dev != d2 {
		t.Errorf("handle opened on %s, want d2", h2.dev.name)
	}
	again, _ := m.Get(d2)
	if again != h2 {
		t.Errorf("second Get(d2) opened a new handle")
	}
	if got := m.Devices(); len(got) != 2 || got[0] != d1 || got[1] != d2 {
		t.Errorf("Devices() = %v, want [d1 d2]", got)
	}
	(*h2.data)[0] = 9
	h1, _ := m.Get(d1)
	if (*h1.data)[0] != 9 {
		t.Errorf("shared handle does not alias the original storage")
	}
}

func TestDeviceDestroyedRoundTrip(t *testing.T) {
	d1, d2 := &device{name: "d1"}, &device{name: "d2"}
	m := newResource(d1)
	h2, err := m.Get(d2)
	if err != nil {
		t.Fatalf("Get(d2): %v", err)
	}

	d1.dead = true
	if !m.DeviceDestroyed(d1) {
		t.Fatalf("DeviceDestroyed(d1) = false, want true")
	}
	if m.DeviceDestroyed(d1) {
		t.Errorf("second DeviceDestroyed(d1) = true, want false")
	}

	if _, err := m.Get(d1); !errors.Is(err, errDeviceGone) {
		t.Errorf("Get(d1) after destroy: err = %v, want %v", err, errDeviceGone)
	}
	if _, ok := m.Lookup(d1); ok {
		t.Errorf("stale entry for d1 still present")
	}

	got, err := m.Get(d2)
	if err != nil || got != h2 {
		t.Errorf("Get(d2) after destroying d1 = %v, %v; want the original handle", got, err)
	}
	if dev, _, _ := m.Primary(); dev != d2 {
		t.Errorf("Primary() device = %s, want d2", dev.name)
	}
}

func TestReacquireAfterRecreate(t *testing.T) {
	d1, d2 := &device{name: "d1"}, &device{name: "d2"}
	m := newResource(d1)
	_, _ = m.Get(d2)
	m.DeviceDestroyed(d1)

	// The device identity came back alive; a fresh handle must be opened.
	h, err := m.Get(d1)
	if err != nil {
		t.Fatalf("Get(d1): %v", err)
	}
	if h.dev != d1 {
		t.Errorf("reacquired handle belongs to %s", h.dev.name)
	}
	if devs := m.Devices(); devs[0] != d2 || devs[1] != d1 {
		t.Errorf("entries were reordered: %v", devs)
	}
}

func TestFailedOpenKeepsEntries(t *testing.T) {
	d1 := &device{name: "d1"}
	dead := &device{name: "dead", dead: true}
	m := newResource(d1)
	if _, err := m.Get(dead); err == nil {
		t.Fatal("Get on dead device succeeded")
	}
	if n := len(m.Devices()); n != 1 {
		t.Errorf("len(Devices()) = %d after failed open, want 1", n)
	}
}

func TestNotShareable(t *testing.T) {
	d1, d2 := &device{name: "d1"}, &device{name: "d2"}
	m := New[*device, handle](d1, handle{dev: d1}, nil, nil)
	if _, err := m.Get(d2); err == nil {
		t.Error("Get on a non-shareable resource succeeded")
	}
	if _, err := m.Get(d1); err != nil {
		t.Errorf("Get on owner failed: %v", err)
	}
}

func TestCloseReleases(t *testing.T) {
	d1, d2 := &device{name: "d1"}, &device{name: "d2"}
	var released int
	data := []byte{0}
	m := New(d1, handle{dev: d1, data: &data}, openOn, func(handle) { released++ })
	_, _ = m.Get(d2)
	m.Close()
	if released != 2 {
		t.Errorf("released %d handles, want 2", released)
	}
	if _, err := m.Get(d1); !errors.Is(err, ErrNoSource) {
		t.Errorf("Get after Close: err = %v, want ErrNoSource", err)
	}
}

func TestShareList(t *testing.T) {
	d1, d2 := &device{name: "d1"}, &device{name: "d2"}
	list := NewShareList[*device]()

	a := newResource(d1)
	b := newResource(d2)
	_, _ = b.Get(d1)

	idA := list.Add(a)
	list.Add(b)
	if list.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", list.Len())
	}

	if n := list.DeviceDestroyed(d1); n != 2 {
		t.Errorf("DeviceDestroyed(d1) notified %d holders, want 2", n)
	}
	if _, ok := b.Lookup(d1); ok {
		t.Errorf("b still holds a handle for d1")
	}

	list.Remove(idA)
	if list.Len() != 1 {
		t.Errorf("Len() after Remove = %d, want 1", list.Len())
	}
}
