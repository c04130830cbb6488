package statecache

import (
	"errors"
	"sync"
	"testing"
)

type desc struct {
	Cull  int
	Fill  int
	Depth float32
	Clip  bool
}

type object struct {
	d desc
}

func newObject(d desc) (*object, error) { return &object{d: d}, nil }

func TestGetOrCreateIdentity(t *testing.T) {
	c := New[desc, *object]()

	a, err := c.GetOrCreate(desc{Cull: 1, Fill: 2}, newObject)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	// Same values built field by field in a different order.
	var d desc
	d.Fill = 2
	d.Cull = 1
	b, err := c.GetOrCreate(d, newObject)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if a != b {
		t.Errorf("equal descriptions returned different objects")
	}

	other, _ := c.GetOrCreate(desc{Cull: 2, Fill: 2}, newObject)
	if other == a {
		t.Errorf("different descriptions returned the same object")
	}

	hits, misses := c.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("Stats() = %d hits, %d misses, want 1, 2", hits, misses)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestGetOrCreateError(t *testing.T) {
	c := New[desc, *object]()
	errBoom := errors.New("boom")

	_, err := c.GetOrCreate(desc{}, func(desc) (*object, error) { return nil, errBoom })
	if !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want %v", err, errBoom)
	}
	if c.Len() != 0 {
		t.Errorf("failed create was cached")
	}
	if _, ok := c.Get(desc{}); ok {
		t.Errorf("Get found an entry after failed create")
	}
}

func TestKeyIsCopied(t *testing.T) {
	c := New[desc, *object]()
	d := desc{Cull: 1}
	first, _ := c.GetOrCreate(d, newObject)
	d.Cull = 3
	if got, ok := c.Get(desc{Cull: 1}); !ok || got != first {
		t.Errorf("mutating the caller's description changed the cache key")
	}
}

func TestConcurrentGetOrCreate(t *testing.T) {
	c := New[desc, *object]()
	var wg sync.WaitGroup
	results := make([]*object, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.GetOrCreate(desc{Clip: true}, newObject)
		}(i)
	}
	wg.Wait()
	for i, r := range results {
		if r != results[0] {
			t.Fatalf("result %d differs from result 0", i)
		}
	}
}

func TestDrain(t *testing.T) {
	c := New[desc, *object]()
	_, _ = c.GetOrCreate(desc{Cull: 1}, newObject)
	_, _ = c.GetOrCreate(desc{Cull: 2}, newObject)

	var seen int
	c.Range(func(desc, *object) bool { seen++; return true })
	if seen != 2 {
		t.Errorf("Range visited %d entries, want 2", seen)
	}

	if got := len(c.Drain()); got != 2 {
		t.Errorf("Drain() returned %d values, want 2", got)
	}
	if c.Len() != 0 {
		t.Errorf("Len() after Drain = %d", c.Len())
	}
}
