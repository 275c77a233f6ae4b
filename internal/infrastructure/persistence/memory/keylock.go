// Package memory provides in-process implementations of the repository
// contracts. Writers on the same key are serialised by per-key mutexes;
// different keys proceed in parallel.
package memory

import "sync"

// keyLocks hands out one mutex per key. An entry lives only while some
// caller holds or waits on it, so the map stays bounded by concurrency
// rather than by the number of keys ever seen.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		k.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
