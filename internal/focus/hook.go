package focus

import (
	"errors"
	"log/slog"

	"keyroute/internal/input"
	"keyroute/internal/notify"
	"keyroute/internal/pump"
	"keyroute/internal/window"
)

// Installer places the foreground-change OS hook. Install and Uninstall are
// called on the pump thread, and onFocus is invoked there as well.
type Installer interface {
	Install(onFocus func(window.Handle)) error
	Uninstall() error
}

// Hook keeps the foreground-change hook alive on its own pump thread and
// feeds the Tracker.
type Hook struct {
	logger    *slog.Logger
	tracker   *Tracker
	installer Installer
	pump      *pump.Pump
	focused   *notify.List[window.Handle]
}

// NewHook wires tracker to installer. p may be nil to use a default pump.
func NewHook(tracker *Tracker, installer Installer, p *pump.Pump, logger *slog.Logger) *Hook {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		p = pump.New("focus.pump", logger)
	}
	logger = logger.With(slog.String("component", "focus.hook"))
	return &Hook{
		logger:    logger,
		tracker:   tracker,
		installer: installer,
		pump:      p,
		focused:   notify.NewList[window.Handle]("focus.changed", logger),
	}
}

// OnWindowFocused registers fn for every foreground change. It runs on the
// pump thread and should return quickly.
func (h *Hook) OnWindowFocused(fn func(window.Handle)) notify.ID {
	return h.focused.Add(fn)
}

// RemoveWindowFocused drops an OnWindowFocused subscription.
func (h *Hook) RemoveWindowFocused(id notify.ID) bool {
	return h.focused.Remove(id)
}

// IsStarted reports whether the hook is installed.
func (h *Hook) IsStarted() bool { return h.pump.IsStarted() }

// Start launches the pump thread and installs the hook on it. Starting twice
// logs a warning.
func (h *Hook) Start() error {
	return h.pump.Start(h.install, h.uninstall)
}

// Stop removes the hook and ends the pump thread.
func (h *Hook) Stop() error {
	return h.pump.Stop()
}

func (h *Hook) install() error {
	if err := h.installer.Install(h.handle); err != nil {
		var he *input.HookError
		if !errors.As(err, &he) {
			err = &input.HookError{Hook: "winevent", Err: err}
		}
		h.logger.Error("Failed to install window focus hook", slog.String("error", err.Error()))
		return err
	}
	h.logger.Info("Window focus hook started")
	return nil
}

func (h *Hook) uninstall() {
	if err := h.installer.Uninstall(); err != nil {
		h.logger.Warn("Failed to unhook window focus events", slog.String("error", err.Error()))
		return
	}
	h.logger.Info("Window focus hook stopped")
}

func (h *Hook) handle(hwnd window.Handle) {
	h.tracker.SetFocused(hwnd)
	h.focused.Emit(hwnd)
}
