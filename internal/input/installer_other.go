//go:build !windows

package input

import (
	"errors"
	"log/slog"
)

var errNoHooks = errors.New("low-level input hooks are only available on Windows")

type unsupportedInstaller struct{}

// NewPlatformInstaller returns an installer that always fails on this platform.
func NewPlatformInstaller(_ *slog.Logger) Installer {
	return unsupportedInstaller{}
}

func (unsupportedInstaller) Install(func(vk, msg uint32), func(msg, mouseData uint32)) error {
	return &HookError{Hook: "keyboard", Err: errNoHooks}
}

func (unsupportedInstaller) Uninstall() error { return nil }
