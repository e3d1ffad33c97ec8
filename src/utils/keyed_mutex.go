package utils

import "sync"

// KeyedMutex hands out one mutex per key. Entries are reference counted and dropped once unused.
type KeyedMutex struct {
	globalMu sync.Mutex
	locks    map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until the mutex for key is held and returns its unlock func.
func (k *KeyedMutex) Lock(key string) func() {
	k.globalMu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.globalMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		k.globalMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.globalMu.Unlock()
	}
}
