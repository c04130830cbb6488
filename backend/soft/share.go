package soft

import "sync"

type sharedObject struct {
	tex *Texture
	buf *Buffer
}

var (
	sharedMu sync.Mutex
	shared   = make(map[uintptr]sharedObject)
)

func share(obj sharedObject) uintptr {
	h := newHandle()
	sharedMu.Lock()
	shared[h] = obj
	sharedMu.Unlock()
	return h
}

func unshare(h uintptr) {
	sharedMu.Lock()
	delete(shared, h)
	sharedMu.Unlock()
}

func lookupShared(h uintptr) (sharedObject, bool) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	obj, ok := shared[h]
	return obj, ok
}
