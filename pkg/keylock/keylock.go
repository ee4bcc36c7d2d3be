package keylock

import "sync"

// Map serializes work per key. Entries are reference counted and dropped
// once the last holder unlocks, so idle references cost nothing.
type Map struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty lock map.
func New() *Map {
	return &Map{entries: make(map[string]*keyEntry)}
}

// Lock blocks until key is free and returns the matching unlock.
func (l *Map) Lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &keyEntry{}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, key)
		}
		l.mu.Unlock()
	}
}

// Len reports how many keys are currently held or awaited.
func (l *Map) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
