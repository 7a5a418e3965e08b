package services

import (
	"sort"
	"sync"
)

// keyLocker hands out one mutex per key. Entries are dropped once no caller
// holds or waits on them so the map stays bounded by live keys.
type keyLocker struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyLocker() *keyLocker {
	return &keyLocker{locks: make(map[string]*refMutex)}
}

// lockKeys locks every key in sorted order and returns the matching unlock.
func (k *keyLocker) lockKeys(keys ...string) func() {
	if len(keys) == 0 {
		return func() {}
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	sorted = dedupSorted(sorted)

	k.mu.Lock()
	acquired := make([]*refMutex, 0, len(sorted))
	for _, key := range sorted {
		m := k.locks[key]
		if m == nil {
			m = &refMutex{}
			k.locks[key] = m
		}
		m.refs++
		acquired = append(acquired, m)
	}
	k.mu.Unlock()

	for _, m := range acquired {
		m.Lock()
	}
	return func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			acquired[i].Unlock()
		}
		k.mu.Lock()
		for i, key := range sorted {
			acquired[i].refs--
			if acquired[i].refs == 0 {
				delete(k.locks, key)
			}
		}
		k.mu.Unlock()
	}
}

func (k *keyLocker) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func dedupSorted(keys []string) []string {
	out := keys[:0]
	for _, key := range keys {
		if len(out) > 0 && out[len(out)-1] == key {
			continue
		}
		out = append(out, key)
	}
	return out
}
