// Package router delivers global key transitions to callbacks registered for
// the target window that currently has focus.
package router

import (
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"

	"keyroute/internal/input"
	"keyroute/internal/notify"
	"keyroute/internal/window"
)

// Source raises global key transitions.
type Source interface {
	OnEvent(fn func(input.Event)) notify.ID
	RemoveEvent(id notify.ID) bool
}

// Watcher maintains the refcounted set of keys the global hook forwards.
type Watcher interface {
	WatchKey(code input.KeyCode)
	UnwatchKey(code input.KeyCode)
}

// Resolver maps foreground handles to target windows.
type Resolver interface {
	Resolve(h window.Handle) (window.Target, bool)
	ResolveFocusedWindow() (window.Target, bool)
}

// Callback runs when key transitions while target has focus.
type Callback func(target window.Target, key input.KeyCode)

// KeyEvent is raised for every watched transition that happened while a
// target window had focus.
type KeyEvent struct {
	Window window.Target
	Key    input.KeyCode
	Dir    input.Direction
}

// Subscription describes a registered per-window callback.
type Subscription struct {
	Window window.Handle
	Key    input.KeyCode
	Dir    input.Direction
}

// listener holds the callbacks of one window for one direction.
type listener struct {
	callbacks map[input.KeyCode]Callback
}

// Router keeps independent down and up callback tables per window.
type Router struct {
	logger *slog.Logger
	watch  Watcher
	focus  Resolver

	mu     sync.RWMutex
	tables [2]map[window.Handle]*listener

	windowDown *notify.List[KeyEvent]
	windowUp   *notify.List[KeyEvent]

	attachMu sync.Mutex
	source   Source
	eventID  notify.ID
}

// New creates a detached router.
func New(watch Watcher, focus Resolver, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "router"))
	return &Router{
		logger:     logger,
		watch:      watch,
		focus:      focus,
		tables:     [2]map[window.Handle]*listener{make(map[window.Handle]*listener), make(map[window.Handle]*listener)},
		windowDown: notify.NewList[KeyEvent]("router.window-keydown", logger),
		windowUp:   notify.NewList[KeyEvent]("router.window-keyup", logger),
	}
}

// Attach starts routing notifications from src. Attaching again logs a
// warning and keeps the existing source.
func (r *Router) Attach(src Source) {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()

	if r.source != nil {
		r.logger.Warn("Router already attached")
		return
	}
	r.source = src
	r.eventID = src.OnEvent(r.HandleEvent)
}

// Detach stops routing. Subscriptions are kept.
func (r *Router) Detach() {
	r.attachMu.Lock()
	defer r.attachMu.Unlock()

	if r.source == nil {
		return
	}
	r.source.RemoveEvent(r.eventID)
	r.source = nil
}

// Subscribe registers cb for key transitions in direction dir while target has
// focus. A second registration for the same (target, key, dir) is rejected
// and leaves the first callback in place.
func (r *Router) Subscribe(target window.Handle, key input.KeyCode, dir input.Direction, cb Callback) bool {
	if cb == nil || key == input.NoKey || dir > input.Up {
		return false
	}

	r.mu.Lock()
	table := r.tables[dir]
	l, ok := table[target]
	if !ok {
		l = &listener{callbacks: make(map[input.KeyCode]Callback)}
		table[target] = l
	}
	if _, dup := l.callbacks[key]; dup {
		r.mu.Unlock()
		return false
	}
	l.callbacks[key] = cb
	r.mu.Unlock()

	r.watch.WatchKey(key)
	return true
}

// Unsubscribe removes the callback for (target, key, dir) and releases its
// watch reference. It reports false when nothing was registered.
func (r *Router) Unsubscribe(target window.Handle, key input.KeyCode, dir input.Direction) bool {
	if dir > input.Up {
		return false
	}
	r.mu.Lock()
	table := r.tables[dir]
	l, ok := table[target]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, ok := l.callbacks[key]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(l.callbacks, key)
	if len(l.callbacks) == 0 {
		delete(table, target)
	}
	r.mu.Unlock()

	r.watch.UnwatchKey(key)
	return true
}

// UnsubscribeWindow removes every callback registered for target and returns
// how many were dropped.
func (r *Router) UnsubscribeWindow(target window.Handle) int {
	var keys []input.KeyCode
	r.mu.Lock()
	for _, table := range r.tables {
		if l, ok := table[target]; ok {
			for k := range l.callbacks {
				keys = append(keys, k)
			}
			delete(table, target)
		}
	}
	r.mu.Unlock()

	for _, k := range keys {
		r.watch.UnwatchKey(k)
	}
	return len(keys)
}

// Subscriptions lists the registered callbacks.
func (r *Router) Subscriptions() []Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var subs []Subscription
	for dir, table := range r.tables {
		for h, l := range table {
			for k := range l.callbacks {
				subs = append(subs, Subscription{Window: h, Key: k, Dir: input.Direction(dir)})
			}
		}
	}
	slices.SortFunc(subs, func(a, b Subscription) int {
		switch {
		case a.Window != b.Window:
			return cmpHandle(a.Window, b.Window)
		case a.Dir != b.Dir:
			return int(a.Dir) - int(b.Dir)
		}
		return int(a.Key - b.Key)
	})
	return subs
}

func cmpHandle(a, b window.Handle) int {
	if a < b {
		return -1
	}
	return 1
}

// OnWindowKeyDown registers fn for key presses in any focused target window.
func (r *Router) OnWindowKeyDown(fn func(KeyEvent)) notify.ID { return r.windowDown.Add(fn) }

// OnWindowKeyUp registers fn for key releases in any focused target window.
func (r *Router) OnWindowKeyUp(fn func(KeyEvent)) notify.ID { return r.windowUp.Add(fn) }

// RemoveWindowKeyDown drops an OnWindowKeyDown subscription.
func (r *Router) RemoveWindowKeyDown(id notify.ID) bool { return r.windowDown.Remove(id) }

// RemoveWindowKeyUp drops an OnWindowKeyUp subscription.
func (r *Router) RemoveWindowKeyUp(id notify.ID) bool { return r.windowUp.Remove(id) }

// HandleEvent routes ev to the target that had focus when the OS reported
// it, so a dispatch backlog never leaks keys into a window focused later.
// Events without a focus stamp use the current foreground.
func (r *Router) HandleEvent(ev input.Event) {
	if ev.Focus == 0 {
		r.HandleKey(ev.Code, ev.Dir)
		return
	}
	if target, ok := r.focus.Resolve(ev.Focus); ok {
		r.route(target, ev.Code, ev.Dir)
	}
}

// HandleKey routes one transition to the current foreground target. Without
// a focused target it is dropped; otherwise the matching callback runs, then
// the window-scoped notification is raised whether or not a callback matched.
func (r *Router) HandleKey(key input.KeyCode, dir input.Direction) {
	target, ok := r.focus.ResolveFocusedWindow()
	if !ok {
		return
	}
	r.route(target, key, dir)
}

func (r *Router) route(target window.Target, key input.KeyCode, dir input.Direction) {
	r.mu.RLock()
	var cb Callback
	if l, ok := r.tables[dir][target.Handle]; ok {
		cb = l.callbacks[key]
	}
	r.mu.RUnlock()

	if cb != nil {
		r.invoke(cb, target, key, dir)
	}

	ev := KeyEvent{Window: target, Key: key, Dir: dir}
	if dir == input.Down {
		r.windowDown.Emit(ev)
	} else {
		r.windowUp.Emit(ev)
	}
}

func (r *Router) invoke(cb Callback, target window.Target, key input.KeyCode, dir input.Direction) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Key callback panicked",
				slog.String("window", target.Handle.String()),
				slog.String("key", key.String()),
				slog.String("direction", dir.String()),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	cb(target, key)
}
