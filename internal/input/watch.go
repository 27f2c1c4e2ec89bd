package input

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// WatchRegistry is a reference-counted set of key codes.
//
// Writers serialise on a mutex and publish an immutable snapshot; Contains
// reads the snapshot without locking because it runs inside the OS hook.
type WatchRegistry struct {
	mu     sync.Mutex
	counts map[KeyCode]int
	snap   atomic.Pointer[map[KeyCode]int]
}

// NewWatchRegistry returns an empty registry.
func NewWatchRegistry() *WatchRegistry {
	w := &WatchRegistry{counts: make(map[KeyCode]int)}
	w.publish()
	return w
}

// AddKey increments the refcount of code, creating it at 1.
func (w *WatchRegistry) AddKey(code KeyCode) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.counts[code]++
	w.publish()
}

// RemoveKey decrements the refcount of code and drops it at zero. Removing an
// unknown key is a no-op. It reports whether the key was present.
func (w *WatchRegistry) RemoveKey(code KeyCode) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, ok := w.counts[code]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(w.counts, code)
	} else {
		w.counts[code] = n - 1
	}
	w.publish()
	return true
}

// Contains reports whether code has at least one watcher.
func (w *WatchRegistry) Contains(code KeyCode) bool {
	_, ok := (*w.snap.Load())[code]
	return ok
}

// Count returns the refcount of code.
func (w *WatchRegistry) Count(code KeyCode) int {
	return (*w.snap.Load())[code]
}

// Keys returns the watched codes in ascending order.
func (w *WatchRegistry) Keys() []KeyCode {
	return slices.Sorted(maps.Keys(*w.snap.Load()))
}

// Clear drops every watched key.
func (w *WatchRegistry) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	clear(w.counts)
	w.publish()
}

func (w *WatchRegistry) publish() {
	snap := maps.Clone(w.counts)
	w.snap.Store(&snap)
}
