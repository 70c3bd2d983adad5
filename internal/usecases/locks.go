package usecases

import "sync"

// keyedMutex serializes work per integer key (bot id, owner id). Entries are
// created on demand and kept; the fleet's id space is small enough that no
// eviction is needed.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int]*sync.Mutex)}
}

func (k *keyedMutex) Lock(id int) *sync.Mutex {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &sync.Mutex{}
		k.locks[id] = m
	}
	k.mu.Unlock()
	m.Lock()
	return m
}
