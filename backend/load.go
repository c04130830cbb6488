package backend

import "sync"

var (
	loadMu  sync.Mutex
	loadErr = make(map[string]error)
)

// LoadOnce runs fn the first time it is called for key and returns its
// result on every call. Concurrent first calls block until the load
// finishes. A failed load is remembered and not retried.
func LoadOnce(key string, fn func() error) error {
	loadMu.Lock()
	defer loadMu.Unlock()
	if err, done := loadErr[key]; done {
		return err
	}
	err := fn()
	loadErr[key] = err
	if err != nil {
		Logger().Warn("backend driver load failed", "backend", key, "err", err)
	} else {
		Logger().Debug("backend driver loaded", "backend", key)
	}
	return err
}
