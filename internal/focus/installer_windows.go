//go:build windows

package focus

import (
	"errors"
	"sync/atomic"

	"github.com/lxn/win"

	"keyroute/internal/input"
	"keyroute/internal/window"
)

const objidWindow = 0

var activeFocus atomic.Pointer[func(window.Handle)]

func winEventProc(_ win.HWINEVENTHOOK, event uint32, hwnd win.HWND, idObject, _ int32, _, _ uint32) uintptr {
	if event != win.EVENT_SYSTEM_FOREGROUND || idObject != objidWindow || hwnd == 0 {
		return 0
	}
	if fn := activeFocus.Load(); fn != nil {
		(*fn)(window.Handle(hwnd))
	}
	return 0
}

// WinEventInstaller listens for EVENT_SYSTEM_FOREGROUND out of context.
type WinEventInstaller struct {
	hook win.HWINEVENTHOOK
}

// NewPlatformInstaller returns the Windows foreground hook installer.
func NewPlatformInstaller() Installer {
	return &WinEventInstaller{}
}

func (i *WinEventInstaller) Install(onFocus func(window.Handle)) error {
	if !activeFocus.CompareAndSwap(nil, &onFocus) {
		return &input.HookError{Hook: "winevent", Err: input.ErrAlreadyInstalled}
	}
	h, err := win.SetWinEventHook(
		win.EVENT_SYSTEM_FOREGROUND, win.EVENT_SYSTEM_FOREGROUND,
		0, winEventProc, 0, 0, win.WINEVENT_OUTOFCONTEXT)
	if err != nil {
		activeFocus.Store(nil)
		return &input.HookError{Hook: "winevent", Err: err}
	}
	i.hook = h

	// The hook only reports changes; seed with whatever is in front now.
	if fg := win.GetForegroundWindow(); fg != 0 {
		onFocus(window.Handle(fg))
	}
	return nil
}

func (i *WinEventInstaller) Uninstall() error {
	activeFocus.Store(nil)
	if i.hook == 0 {
		return nil
	}
	h := i.hook
	i.hook = 0
	if !win.UnhookWinEvent(h) {
		return errors.New("UnhookWinEvent failed")
	}
	return nil
}
