//go:build windows

package input

import (
	"errors"

	"github.com/lxn/win"

	"keyroute/internal/window"
)

type platformPoster struct{}

func (platformPoster) Post(h window.Handle, msg uint32, wParam, lParam uintptr) error {
	if win.PostMessage(win.HWND(h), msg, wParam, lParam) == 0 {
		return errors.New("PostMessage failed")
	}
	return nil
}
