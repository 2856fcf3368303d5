package review

import (
	"sync"

	"github.com/conorfennell/knolsched/internal/domain"
)

// keyedMutex serializes work on the same card while letting different cards
// proceed in parallel. Entries are dropped once nobody holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.CardKey]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[domain.CardKey]*keyedLock)}
}

// lock blocks until key is free and returns the matching unlock.
func (k *keyedMutex) lock(key domain.CardKey) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
