// Package engine is the composition root of the input-routing core. It owns
// the global input hook, the focus tracker and its hook, the per-window
// router and the target window registry, and exposes the subscriber API.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"keyroute/internal/focus"
	"keyroute/internal/input"
	"keyroute/internal/notify"
	"keyroute/internal/pump"
	"keyroute/internal/router"
	"keyroute/internal/window"
)

// Options configures an Engine. Zero values select the platform defaults.
type Options struct {
	Logger *slog.Logger

	InputInstaller input.Installer
	FocusInstaller focus.Installer
	Finder         window.Finder
	Poster         input.Poster

	QueueSize   int
	StopTimeout time.Duration
}

// Engine wires the core services together.
type Engine struct {
	logger *slog.Logger

	windows   *window.Registry
	finderMu  sync.RWMutex
	finder    window.Finder
	tracker   *focus.Tracker
	hook      *input.Hook
	focusHook *focus.Hook
	router    *router.Router
	sender    *input.Sender
}

// New builds a stopped engine.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.InputInstaller == nil {
		opts.InputInstaller = input.NewPlatformInstaller(logger)
	}
	if opts.FocusInstaller == nil {
		opts.FocusInstaller = focus.NewPlatformInstaller()
	}

	e := &Engine{
		logger:  logger.With(slog.String("component", "engine")),
		windows: window.NewRegistry(logger),
		finder:  opts.Finder,
	}
	e.tracker = focus.NewTracker(e.windows)
	e.windows.OnChange(func([]window.Target) { e.tracker.Invalidate() })

	e.hook = input.NewHook(opts.InputInstaller, input.NewWatchRegistry(), opts.QueueSize, logger)
	e.hook.SetFocusSource(e.tracker.Focused)

	var pumpOpts []pump.Option
	if opts.StopTimeout > 0 {
		pumpOpts = append(pumpOpts, pump.WithStopTimeout(opts.StopTimeout))
	}
	e.focusHook = focus.NewHook(e.tracker, opts.FocusInstaller, pump.New("focus.pump", logger, pumpOpts...), logger)

	e.router = router.New(e.hook, e.tracker, logger)
	e.router.Attach(e.hook)

	if opts.Poster != nil {
		e.sender = input.NewSenderWithPoster(opts.Poster, logger)
	} else {
		e.sender = input.NewSender(logger)
	}
	return e
}

// Windows returns the target window registry.
func (e *Engine) Windows() *window.Registry { return e.windows }

// Sender returns the synthetic input sender.
func (e *Engine) Sender() *input.Sender { return e.sender }

// Router returns the per-window router.
func (e *Engine) Router() *router.Router { return e.router }

// StartListening installs the global keyboard and mouse hooks.
func (e *Engine) StartListening() error { return e.hook.Start() }

// StopListening removes the global hooks. Watched keys and subscriptions persist.
func (e *Engine) StopListening() error { return e.hook.Stop() }

// IsListening reports whether the global hooks are installed.
func (e *Engine) IsListening() bool { return e.hook.IsStarted() }

// StartFocusTracking installs the foreground hook on its pump thread.
func (e *Engine) StartFocusTracking() error { return e.focusHook.Start() }

// StopFocusTracking removes the foreground hook and stops its pump thread.
func (e *Engine) StopFocusTracking() error { return e.focusHook.Stop() }

// IsTrackingFocus reports whether the foreground hook is installed.
func (e *Engine) IsTrackingFocus() bool { return e.focusHook.IsStarted() }

// Start begins focus tracking and listening. If listening fails, focus
// tracking is rolled back.
func (e *Engine) Start() error {
	if e.currentFinder() != nil {
		if _, err := e.RefreshWindows(); err != nil {
			e.logger.Warn("Initial window discovery failed", slog.String("error", err.Error()))
		}
	}
	if err := e.StartFocusTracking(); err != nil {
		return err
	}
	if err := e.StartListening(); err != nil {
		if stopErr := e.StopFocusTracking(); stopErr != nil {
			e.logger.Warn("Failed to roll back focus tracking", slog.String("error", stopErr.Error()))
		}
		return err
	}
	return nil
}

// Stop removes both hooks.
func (e *Engine) Stop() error {
	return errors.Join(e.StopListening(), e.StopFocusTracking())
}

// WatchKey adds a reference to code in the global filter.
func (e *Engine) WatchKey(code input.KeyCode) { e.hook.WatchKey(code) }

// UnwatchKey drops a reference to code from the global filter.
func (e *Engine) UnwatchKey(code input.KeyCode) { e.hook.UnwatchKey(code) }

// WatchedKeys returns the keys currently forwarded by the global hook.
func (e *Engine) WatchedKeys() []input.KeyCode { return e.hook.Watch().Keys() }

// SubscribeKeyDown registers cb for presses of key while target has focus.
func (e *Engine) SubscribeKeyDown(target window.Handle, key input.KeyCode, cb router.Callback) bool {
	return e.router.Subscribe(target, key, input.Down, cb)
}

// UnsubscribeKeyDown removes the press callback for (target, key).
func (e *Engine) UnsubscribeKeyDown(target window.Handle, key input.KeyCode) bool {
	return e.router.Unsubscribe(target, key, input.Down)
}

// SubscribeKeyUp registers cb for releases of key while target has focus.
func (e *Engine) SubscribeKeyUp(target window.Handle, key input.KeyCode, cb router.Callback) bool {
	return e.router.Subscribe(target, key, input.Up, cb)
}

// UnsubscribeKeyUp removes the release callback for (target, key).
func (e *Engine) UnsubscribeKeyUp(target window.Handle, key input.KeyCode) bool {
	return e.router.Unsubscribe(target, key, input.Up)
}

// OnKeyDown registers fn for every watched key press, regardless of focus.
func (e *Engine) OnKeyDown(fn func(input.KeyCode)) notify.ID { return e.hook.OnKeyDown(fn) }

// OnKeyUp registers fn for every watched key release, regardless of focus.
func (e *Engine) OnKeyUp(fn func(input.KeyCode)) notify.ID { return e.hook.OnKeyUp(fn) }

// OnWindowKeyDown registers fn for watched presses inside a focused target.
func (e *Engine) OnWindowKeyDown(fn func(router.KeyEvent)) notify.ID {
	return e.router.OnWindowKeyDown(fn)
}

// OnWindowKeyUp registers fn for watched releases inside a focused target.
func (e *Engine) OnWindowKeyUp(fn func(router.KeyEvent)) notify.ID {
	return e.router.OnWindowKeyUp(fn)
}

// OnWindowFocused registers fn for every foreground change.
func (e *Engine) OnWindowFocused(fn func(window.Handle)) notify.ID {
	return e.focusHook.OnWindowFocused(fn)
}

func (e *Engine) RemoveKeyDown(id notify.ID) bool       { return e.hook.RemoveKeyDown(id) }
func (e *Engine) RemoveKeyUp(id notify.ID) bool         { return e.hook.RemoveKeyUp(id) }
func (e *Engine) RemoveWindowKeyDown(id notify.ID) bool { return e.router.RemoveWindowKeyDown(id) }
func (e *Engine) RemoveWindowKeyUp(id notify.ID) bool   { return e.router.RemoveWindowKeyUp(id) }
func (e *Engine) RemoveWindowFocused(id notify.ID) bool { return e.focusHook.RemoveWindowFocused(id) }

// FocusedWindow resolves the focused target window.
func (e *Engine) FocusedWindow() (window.Target, bool) {
	return e.tracker.ResolveFocusedWindow()
}

// IsFocused reports whether h is the foreground window.
func (e *Engine) IsFocused(h window.Handle) bool {
	return e.tracker.IsFocused(h)
}

// SetFinder replaces the window finder used by RefreshWindows.
func (e *Engine) SetFinder(f window.Finder) {
	e.finderMu.Lock()
	e.finder = f
	e.finderMu.Unlock()
}

func (e *Engine) currentFinder() window.Finder {
	e.finderMu.RLock()
	defer e.finderMu.RUnlock()
	return e.finder
}

// RefreshWindows rediscovers target windows with the configured finder.
func (e *Engine) RefreshWindows() (int, error) {
	f := e.currentFinder()
	if f == nil {
		return e.windows.Len(), nil
	}
	return e.windows.Refresh(f)
}

// RunWindowRefresh refreshes the target windows every interval until ctx is done.
func (e *Engine) RunWindowRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RefreshWindows(); err != nil {
				e.logger.Warn("Window refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Listening     bool            `json:"listening"`
	FocusTracking bool            `json:"focus_tracking"`
	Focused       *window.Target  `json:"focused,omitempty"`
	FocusedHandle window.Handle   `json:"focused_handle"`
	WatchedKeys   []string        `json:"watched_keys"`
	Subscriptions int             `json:"subscriptions"`
	Windows       []window.Target `json:"windows"`
	Dropped       uint64          `json:"dropped_events"`
}

// Status returns the current engine state.
func (e *Engine) Status() Status {
	st := Status{
		Listening:     e.IsListening(),
		FocusTracking: e.IsTrackingFocus(),
		FocusedHandle: e.tracker.Focused(),
		Subscriptions: len(e.router.Subscriptions()),
		Windows:       e.windows.ListKnownWindows(),
		Dropped:       e.hook.Dropped(),
	}
	if t, ok := e.tracker.ResolveFocusedWindow(); ok {
		st.Focused = &t
	}
	for _, k := range e.WatchedKeys() {
		st.WatchedKeys = append(st.WatchedKeys, k.String())
	}
	return st
}
