//go:build !windows

package focus

import (
	"errors"

	"keyroute/internal/input"
	"keyroute/internal/window"
)

type unsupportedInstaller struct{}

// NewPlatformInstaller returns an installer that always fails on this platform.
func NewPlatformInstaller() Installer {
	return unsupportedInstaller{}
}

func (unsupportedInstaller) Install(func(window.Handle)) error {
	return &input.HookError{Hook: "winevent", Err: errors.New("foreground hooks are only available on Windows")}
}

func (unsupportedInstaller) Uninstall() error { return nil }
