package kitchen

import (
	"sort"
	"sync"
)

// keyedLocks serializes work per ingredient name. Entries are reference
// counted and dropped when the last holder releases them.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// Lock acquires every key in sorted order and returns the matching unlock.
// Sorting keeps two preparations sharing ingredients from deadlocking.
func (k *keyedLocks) Lock(keys []string) func() {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	sorted = dedupeSorted(sorted)

	held := make([]*keyedLock, 0, len(sorted))
	for _, key := range sorted {
		l := k.acquire(key)
		l.mu.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.release(sorted[i])
		}
	}
}

func (k *keyedLocks) acquire(key string) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedLocks) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

func dedupeSorted(keys []string) []string {
	out := keys[:0]
	for i, key := range keys {
		if i == 0 || key != keys[i-1] {
			out = append(out, key)
		}
	}
	return out
}
