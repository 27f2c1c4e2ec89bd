package input

// Window messages delivered to low-level hooks.
const (
	WM_KEYDOWN     = 0x0100
	WM_KEYUP       = 0x0101
	WM_CHAR        = 0x0102
	WM_SYSKEYDOWN  = 0x0104
	WM_SYSKEYUP    = 0x0105
	WM_LBUTTONDOWN = 0x0201
	WM_LBUTTONUP   = 0x0202
	WM_RBUTTONDOWN = 0x0204
	WM_RBUTTONUP   = 0x0205
	WM_MBUTTONDOWN = 0x0207
	WM_MBUTTONUP   = 0x0208
	WM_XBUTTONDOWN = 0x020B
	WM_XBUTTONUP   = 0x020C
)

// XBUTTON identifiers carried in the high word of the mouse data.
const (
	xButton1 = 0x0001
	xButton2 = 0x0002
)

// ClassifyKeyboard reports whether a keyboard hook message is a key press.
// ok is false for messages that are neither a press nor a release.
func ClassifyKeyboard(msg uint32) (dir Direction, ok bool) {
	switch msg {
	case WM_KEYDOWN, WM_SYSKEYDOWN:
		return Down, true
	case WM_KEYUP, WM_SYSKEYUP:
		return Up, true
	}
	return Down, false
}

// ClassifyMouse maps a mouse hook message to a button pseudo key code.
// mouseData is the MSLLHOOKSTRUCT field whose high word names the X button.
// Messages that are not button transitions return NoKey.
func ClassifyMouse(msg uint32, mouseData uint32) (KeyCode, Direction) {
	switch msg {
	case WM_LBUTTONDOWN:
		return MouseLeft, Down
	case WM_LBUTTONUP:
		return MouseLeft, Up
	case WM_RBUTTONDOWN:
		return MouseRight, Down
	case WM_RBUTTONUP:
		return MouseRight, Up
	case WM_MBUTTONDOWN:
		return MouseMiddle, Down
	case WM_MBUTTONUP:
		return MouseMiddle, Up
	case WM_XBUTTONDOWN:
		return xButton(mouseData), Down
	case WM_XBUTTONUP:
		return xButton(mouseData), Up
	}
	return NoKey, Down
}

func xButton(mouseData uint32) KeyCode {
	switch mouseData >> 16 {
	case xButton1:
		return MouseX1
	case xButton2:
		return MouseX2
	}
	return NoKey
}
