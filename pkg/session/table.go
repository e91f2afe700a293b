package session

import "sync"

// slots maps back-reference ids to live session containers. Go pointers
// cannot be stored in native memory, so the native field holds an id instead.
var slots = &table{entries: make(map[uintptr]entry)}

type entry interface {
	releaseSlot()
}

type table struct {
	mu      sync.RWMutex
	entries map[uintptr]entry
	next    uintptr
}

func (t *table) insert(e entry) uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.entries[t.next] = e
	return t.next
}

func (t *table) lookup(id uintptr) (entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	return e, ok
}

func (t *table) remove(id uintptr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

func (t *table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Live returns the number of sessions whose host state has not been torn down.
func Live() int {
	return slots.len()
}
