//go:build windows

package window

import (
	"errors"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

// All helpers treat a zero handle as "target gone" and return without
// touching the desktop.

// Focus brings h to the foreground, restoring it first when minimized.
func Focus(h Handle) error {
	if h == 0 {
		return nil
	}
	hwnd := win.HWND(h)
	if win.IsIconic(hwnd) {
		win.ShowWindow(hwnd, win.SW_RESTORE)
	}

	// Foreground changes are only honoured for the thread owning the current
	// foreground window, so borrow its input state for the duration.
	fg := win.GetForegroundWindow()
	if fg != 0 && fg != hwnd {
		fgThread := int32(win.GetWindowThreadProcessId(fg, nil))
		self := int32(win.GetCurrentThreadId())
		if fgThread != 0 && fgThread != self && win.AttachThreadInput(self, fgThread, true) {
			defer win.AttachThreadInput(self, fgThread, false)
		}
	}

	win.BringWindowToTop(hwnd)
	if !win.SetForegroundWindow(hwnd) {
		return errors.New("SetForegroundWindow refused")
	}
	return nil
}

// IsForeground reports whether h is the current foreground window.
func IsForeground(h Handle) bool {
	return h != 0 && win.GetForegroundWindow() == win.HWND(h)
}

// IsAlive reports whether h still identifies an existing window.
func IsAlive(h Handle) bool {
	return h != 0 && windows.IsWindow(windows.HWND(h))
}

func Maximize(h Handle) error { return show(h, win.SW_MAXIMIZE) }
func Minimize(h Handle) error { return show(h, win.SW_MINIMIZE) }
func Restore(h Handle) error  { return show(h, win.SW_RESTORE) }

func show(h Handle, cmd int32) error {
	if h == 0 {
		return nil
	}
	// ShowWindow returns the previous visibility, not success.
	win.ShowWindow(win.HWND(h), cmd)
	return nil
}

// IsMinimized reports whether h is iconic.
func IsMinimized(h Handle) bool {
	return h != 0 && win.IsIconic(win.HWND(h))
}

// IsMaximized reports whether h is zoomed.
func IsMaximized(h Handle) bool {
	return h != 0 && win.IsZoomed(win.HWND(h))
}

// Bounds returns the window rectangle in screen coordinates.
func Bounds(h Handle) (Rect, error) {
	if h == 0 {
		return Rect{}, nil
	}
	var r win.RECT
	if !win.GetWindowRect(win.HWND(h), &r) {
		return Rect{}, errors.New("GetWindowRect failed")
	}
	return Rect{Left: r.Left, Top: r.Top, Right: r.Right, Bottom: r.Bottom}, nil
}

// Move places the top-left corner at (x, y) keeping the current size.
func Move(h Handle, x, y int32) error {
	return setPos(h, x, y, 0, 0, win.SWP_NOSIZE)
}

// Resize changes the window size keeping its position.
func Resize(h Handle, width, height int32) error {
	return setPos(h, 0, 0, width, height, win.SWP_NOMOVE)
}

// SetBounds moves and resizes h to r.
func SetBounds(h Handle, r Rect) error {
	return setPos(h, r.Left, r.Top, r.Width(), r.Height(), 0)
}

func setPos(h Handle, x, y, w, hgt int32, flags uint32) error {
	if h == 0 {
		return nil
	}
	if !win.SetWindowPos(win.HWND(h), 0, x, y, w, hgt, flags|win.SWP_NOZORDER|win.SWP_NOACTIVATE) {
		return errors.New("SetWindowPos failed")
	}
	return nil
}

// CursorPosition returns the cursor position relative to the client area of h.
func CursorPosition(h Handle) (x, y int32, err error) {
	if h == 0 {
		return 0, 0, nil
	}
	var pt win.POINT
	if !win.GetCursorPos(&pt) {
		return 0, 0, errors.New("GetCursorPos failed")
	}
	if !win.ScreenToClient(win.HWND(h), &pt) {
		return 0, 0, errors.New("ScreenToClient failed")
	}
	return pt.X, pt.Y, nil
}
