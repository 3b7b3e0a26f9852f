package sync

import "sync"

// KeyLock is an in-process keyed mutex, guaranteeing at-most-one concurrent
// operation per (doctype, docname) within this process (§4.4, §5). It is the
// in-memory half of per-key mutual exclusion; the persisted is_syncing flag
// on the sync record is the cross-restart half.
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyLock creates an empty KeyLock.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[string]*sync.Mutex)}
}

// TryLock attempts to acquire the lock for key without blocking. Returns a
// release function and true on success, or (nil, false) if another
// goroutine already holds it.
func (k *KeyLock) TryLock(key string) (release func(), ok bool) {
	k.mu.Lock()
	m, exists := k.locks[key]
	if !exists {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	if !m.TryLock() {
		return nil, false
	}

	return func() { m.Unlock() }, true
}
