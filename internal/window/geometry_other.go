//go:build !windows

package window

func Focus(h Handle) error { return unsupported(h) }

func Maximize(h Handle) error { return unsupported(h) }

func Minimize(h Handle) error { return unsupported(h) }

func Restore(h Handle) error { return unsupported(h) }

func Move(h Handle, x, y int32) error { return unsupported(h) }

func Resize(h Handle, width, height int32) error { return unsupported(h) }

func SetBounds(h Handle, r Rect) error { return unsupported(h) }

func IsForeground(h Handle) bool { return false }

func IsAlive(h Handle) bool { return false }

func IsMinimized(h Handle) bool { return false }

func IsMaximized(h Handle) bool { return false }

func Bounds(h Handle) (Rect, error) { return Rect{}, unsupported(h) }

func CursorPosition(h Handle) (x, y int32, err error) { return 0, 0, unsupported(h) }

func unsupported(h Handle) error {
	if h == 0 {
		return nil
	}
	return ErrUnsupported
}
