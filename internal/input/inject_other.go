//go:build !windows

package input

import (
	"errors"

	"keyroute/internal/window"
)

type platformPoster struct{}

func (platformPoster) Post(window.Handle, uint32, uintptr, uintptr) error {
	return errors.New("input injection not supported on this platform")
}
