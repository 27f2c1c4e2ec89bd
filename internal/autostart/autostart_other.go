//go:build !windows

package autostart

func Enable(args ...string) error { return ErrUnsupported }

func Disable() error { return ErrUnsupported }

func IsEnabled() bool { return false }

func Command() (string, bool) { return "", false }
