package input

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"keyroute/internal/notify"
	"keyroute/internal/window"
)

// DefaultQueueSize is the number of filtered events buffered between the OS
// hook and the dispatcher.
const DefaultQueueSize = 256

// ErrAlreadyInstalled is wrapped in a HookError when another installer
// already owns the process-wide low-level hooks.
var ErrAlreadyInstalled = errors.New("low-level hooks already installed in this process")

// HookError reports a failure to install an OS input hook.
type HookError struct {
	Hook string // "keyboard", "mouse" or "winevent"
	Err  error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("install %s hook: %v", e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Installer places the OS low-level hooks. onKey and onMouse run on the OS
// hook thread and must return promptly; the installer always forwards the
// event down the hook chain after they return.
type Installer interface {
	Install(onKey func(vk, msg uint32), onMouse func(msg, mouseData uint32)) error
	Uninstall() error
}

// Event is a watched key transition. Focus is the foreground window at the
// moment the OS reported the transition, or zero without a focus source.
type Event struct {
	Code  KeyCode
	Dir   Direction
	Focus window.Handle
}

// Hook is the global keyboard and mouse observer. The OS callback only
// filters against the watch registry and enqueues; a dispatcher goroutine
// raises OnKeyDown/OnKeyUp in arrival order.
type Hook struct {
	logger    *slog.Logger
	installer Installer
	watch     *WatchRegistry
	events    chan Event

	mu      sync.Mutex
	started atomic.Bool
	quit    chan struct{}
	done    chan struct{}

	dropped atomic.Uint64
	focus   atomic.Pointer[func() window.Handle]

	transitions *notify.List[Event]
	keyDown     *notify.List[KeyCode]
	keyUp       *notify.List[KeyCode]
}

// NewHook creates a stopped hook. queueSize <= 0 selects DefaultQueueSize.
func NewHook(installer Installer, watch *WatchRegistry, queueSize int, logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.Default()
	}
	if watch == nil {
		watch = NewWatchRegistry()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	logger = logger.With(slog.String("component", "input.hook"))
	return &Hook{
		logger:    logger,
		installer: installer,
		watch:     watch,
		events:    make(chan Event, queueSize),

		transitions: notify.NewList[Event]("input.events", logger),
		keyDown:     notify.NewList[KeyCode]("input.keydown", logger),
		keyUp:       notify.NewList[KeyCode]("input.keyup", logger),
	}
}

// SetFocusSource makes the OS callback stamp every event with fn's result.
// fn runs on the hook thread and must be a cheap read.
func (h *Hook) SetFocusSource(fn func() window.Handle) {
	if fn == nil {
		h.focus.Store(nil)
		return
	}
	h.focus.Store(&fn)
}

// OnEvent registers fn for every watched transition. It runs before the
// OnKeyDown/OnKeyUp observers.
func (h *Hook) OnEvent(fn func(Event)) notify.ID { return h.transitions.Add(fn) }

// RemoveEvent drops an OnEvent subscription.
func (h *Hook) RemoveEvent(id notify.ID) bool { return h.transitions.Remove(id) }

// Watch returns the registry the hook filters against.
func (h *Hook) Watch() *WatchRegistry { return h.watch }

// WatchKey adds one reference to code.
func (h *Hook) WatchKey(code KeyCode) { h.watch.AddKey(code) }

// UnwatchKey drops one reference to code.
func (h *Hook) UnwatchKey(code KeyCode) { h.watch.RemoveKey(code) }

// OnKeyDown registers fn for every watched key press.
func (h *Hook) OnKeyDown(fn func(KeyCode)) notify.ID { return h.keyDown.Add(fn) }

// OnKeyUp registers fn for every watched key release.
func (h *Hook) OnKeyUp(fn func(KeyCode)) notify.ID { return h.keyUp.Add(fn) }

// RemoveKeyDown drops an OnKeyDown subscription.
func (h *Hook) RemoveKeyDown(id notify.ID) bool { return h.keyDown.Remove(id) }

// RemoveKeyUp drops an OnKeyUp subscription.
func (h *Hook) RemoveKeyUp(id notify.ID) bool { return h.keyUp.Remove(id) }

// IsStarted reports whether the OS hooks are installed.
func (h *Hook) IsStarted() bool { return h.started.Load() }

// Dropped returns how many watched events were discarded because the
// dispatcher queue was full.
func (h *Hook) Dropped() uint64 { return h.dropped.Load() }

// Start installs the hooks. A second Start logs a warning and returns nil.
// On failure the error is logged, returned as a *HookError and the hook
// stays stopped.
func (h *Hook) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started.Load() {
		h.logger.Warn("Global input hook already started")
		return nil
	}

	if err := h.installer.Install(h.onKeyboard, h.onMouse); err != nil {
		var he *HookError
		if !errors.As(err, &he) {
			err = &HookError{Hook: "input", Err: err}
		}
		h.logger.Error("Failed to install global input hook", slog.String("error", err.Error()))
		return err
	}

	h.quit = make(chan struct{})
	h.done = make(chan struct{})
	go h.dispatch(h.quit, h.done)

	h.started.Store(true)
	h.logger.Info("Global input hook started")
	return nil
}

// Stop removes the hooks and waits for queued events to be delivered.
// It must not be called from an OnKeyDown/OnKeyUp subscriber.
func (h *Hook) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started.Load() {
		return nil
	}

	err := h.installer.Uninstall()
	if err != nil {
		h.logger.Warn("Failed to remove global input hook", slog.String("error", err.Error()))
	}

	close(h.quit)
	<-h.done
	h.started.Store(false)
	h.logger.Info("Global input hook stopped")
	return err
}

func (h *Hook) onKeyboard(vk, msg uint32) {
	dir, ok := ClassifyKeyboard(msg)
	if !ok {
		return
	}
	h.offer(KeyCode(vk), dir)
}

func (h *Hook) onMouse(msg, mouseData uint32) {
	code, dir := ClassifyMouse(msg, mouseData)
	if code == NoKey {
		return
	}
	h.offer(code, dir)
}

// offer runs on the OS hook thread.
func (h *Hook) offer(code KeyCode, dir Direction) {
	if !h.watch.Contains(code) {
		return
	}
	ev := Event{Code: code, Dir: dir}
	if fn := h.focus.Load(); fn != nil {
		ev.Focus = (*fn)()
	}
	select {
	case h.events <- ev:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hook) dispatch(quit <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case ev := <-h.events:
			h.emit(ev)
		case <-quit:
			for {
				select {
				case ev := <-h.events:
					h.emit(ev)
				default:
					return
				}
			}
		}
	}
}

func (h *Hook) emit(ev Event) {
	h.transitions.Emit(ev)
	if ev.Dir == Down {
		h.keyDown.Emit(ev.Code)
	} else {
		h.keyUp.Emit(ev.Code)
	}
}
