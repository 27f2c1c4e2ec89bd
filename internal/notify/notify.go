// Package notify provides ordered observer lists with per-subscriber panic isolation.
package notify

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ID identifies a subscription within a List.
type ID uint64

type entry[T any] struct {
	id ID
	fn func(T)
}

// List is an ordered set of callbacks. Emit delivers to every subscriber in
// registration order; a panicking subscriber is logged and skipped.
//
// Emit never takes a lock, so it is safe to call from OS callback threads.
type List[T any] struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	nextID ID
	subs   atomic.Pointer[[]entry[T]]
}

// NewList creates an empty list. The name is attached to panic logs.
func NewList[T any](name string, logger *slog.Logger) *List[T] {
	if logger == nil {
		logger = slog.Default()
	}
	l := &List[T]{name: name, logger: logger}
	empty := make([]entry[T], 0)
	l.subs.Store(&empty)
	return l
}

// Add appends fn and returns an ID usable with Remove.
func (l *List[T]) Add(fn func(T)) ID {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	cur := *l.subs.Load()
	next := make([]entry[T], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, entry[T]{id: l.nextID, fn: fn})
	l.subs.Store(&next)
	return l.nextID
}

// Remove drops the subscription. It reports whether it was present.
func (l *List[T]) Remove(id ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := *l.subs.Load()
	for i, e := range cur {
		if e.id != id {
			continue
		}
		next := make([]entry[T], 0, len(cur)-1)
		next = append(next, cur[:i]...)
		next = append(next, cur[i+1:]...)
		l.subs.Store(&next)
		return true
	}
	return false
}

// Clear drops every subscription.
func (l *List[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	empty := make([]entry[T], 0)
	l.subs.Store(&empty)
}

// Len returns the number of subscribers.
func (l *List[T]) Len() int {
	return len(*l.subs.Load())
}

// Emit calls every subscriber with v.
func (l *List[T]) Emit(v T) {
	for _, e := range *l.subs.Load() {
		l.call(e, v)
	}
}

func (l *List[T]) call(e entry[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Subscriber panicked",
				slog.String("component", l.name),
				slog.Uint64("subscription", uint64(e.id)),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	e.fn(v)
}
