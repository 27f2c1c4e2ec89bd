package input

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"keyroute/internal/window"
)

// DefaultHold is the delay between the down and up halves of a key press or click.
const DefaultHold = 50 * time.Millisecond

// Mouse key-state flags carried in wParam of button messages.
const (
	MK_LBUTTON  = 0x0001
	MK_RBUTTON  = 0x0002
	MK_MBUTTON  = 0x0010
	MK_XBUTTON1 = 0x0020
	MK_XBUTTON2 = 0x0040
)

// ErrNotClickable is returned for key codes that are not mouse buttons.
var ErrNotClickable = errors.New("key code is not a mouse button")

// Poster delivers a window message without waiting for it to be processed.
type Poster interface {
	Post(h window.Handle, msg uint32, wParam, lParam uintptr) error
}

// Click describes a mouse click in client coordinates of the target window.
type Click struct {
	X, Y   int32
	Button KeyCode
}

// Sender posts synthetic keyboard and mouse messages to target windows. It
// does not move the real cursor or steal focus. A zero handle is ignored.
type Sender struct {
	logger *slog.Logger
	poster Poster
}

// NewSender returns a sender using the platform poster.
func NewSender(logger *slog.Logger) *Sender {
	return NewSenderWithPoster(platformPoster{}, logger)
}

// NewSenderWithPoster returns a sender delivering through p.
func NewSenderWithPoster(p Poster, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{logger: logger.With(slog.String("component", "input.sender")), poster: p}
}

func (s *Sender) post(h window.Handle, msg uint32, wParam, lParam uintptr) error {
	if h == 0 {
		return nil
	}
	if err := s.poster.Post(h, msg, wParam, lParam); err != nil {
		return fmt.Errorf("post 0x%04X to %s: %w", msg, h, err)
	}
	return nil
}

// KeyDown posts WM_KEYDOWN for code.
func (s *Sender) KeyDown(h window.Handle, code KeyCode) error {
	return s.post(h, WM_KEYDOWN, uintptr(code), 0)
}

// KeyUp posts WM_KEYUP for code.
func (s *Sender) KeyUp(h window.Handle, code KeyCode) error {
	return s.post(h, WM_KEYUP, uintptr(code), 0)
}

// Key presses code, waits hold and releases it. The release is posted even
// when ctx is cancelled during the hold so no key is left down.
func (s *Sender) Key(ctx context.Context, h window.Handle, code KeyCode, hold time.Duration) error {
	if code.IsMouse() {
		return s.Click(ctx, h, Click{Button: code}, hold)
	}
	if err := s.KeyDown(h, code); err != nil {
		return err
	}
	waitErr := sleep(ctx, hold)
	if err := s.KeyUp(h, code); err != nil {
		return err
	}
	return waitErr
}

// Char posts WM_CHAR for r.
func (s *Sender) Char(h window.Handle, r rune) error {
	return s.post(h, WM_CHAR, uintptr(r), 0)
}

// Text posts each rune of text as WM_CHAR, pausing gap between runes.
func (s *Sender) Text(ctx context.Context, h window.Handle, text string, gap time.Duration) error {
	for i, r := range []rune(text) {
		if i > 0 {
			if err := sleep(ctx, gap); err != nil {
				return err
			}
		}
		if err := s.Char(h, r); err != nil {
			return err
		}
	}
	return nil
}

// ClickDown posts the button-down message for c.
func (s *Sender) ClickDown(h window.Handle, c Click) error {
	msg, _, wParam, err := buttonMessages(c.Button)
	if err != nil {
		return err
	}
	return s.post(h, msg, wParam, MakeLParam(c.X, c.Y))
}

// ClickUp posts the button-up message for c.
func (s *Sender) ClickUp(h window.Handle, c Click) error {
	_, msg, wParam, err := buttonMessages(c.Button)
	if err != nil {
		return err
	}
	// wParam reports the buttons still held after the release.
	return s.post(h, msg, wParam&^buttonFlag(c.Button), MakeLParam(c.X, c.Y))
}

// Click posts a down/up pair separated by hold.
func (s *Sender) Click(ctx context.Context, h window.Handle, c Click, hold time.Duration) error {
	if err := s.ClickDown(h, c); err != nil {
		return err
	}
	waitErr := sleep(ctx, hold)
	if err := s.ClickUp(h, c); err != nil {
		return err
	}
	return waitErr
}

// MakeLParam packs client coordinates the way mouse messages expect them.
func MakeLParam(x, y int32) uintptr {
	return uintptr(uint32(uint16(x)) | uint32(uint16(y))<<16)
}

func buttonMessages(b KeyCode) (down, up uint32, wParam uintptr, err error) {
	switch b {
	case MouseLeft, 0:
		return WM_LBUTTONDOWN, WM_LBUTTONUP, MK_LBUTTON, nil
	case MouseRight:
		return WM_RBUTTONDOWN, WM_RBUTTONUP, MK_RBUTTON, nil
	case MouseMiddle:
		return WM_MBUTTONDOWN, WM_MBUTTONUP, MK_MBUTTON, nil
	case MouseX1:
		return WM_XBUTTONDOWN, WM_XBUTTONUP, uintptr(xButton1)<<16 | MK_XBUTTON1, nil
	case MouseX2:
		return WM_XBUTTONDOWN, WM_XBUTTONUP, uintptr(xButton2)<<16 | MK_XBUTTON2, nil
	}
	return 0, 0, 0, fmt.Errorf("%w: %s", ErrNotClickable, b)
}

func buttonFlag(b KeyCode) uintptr {
	switch b {
	case MouseRight:
		return MK_RBUTTON
	case MouseMiddle:
		return MK_MBUTTON
	case MouseX1:
		return MK_XBUTTON1
	case MouseX2:
		return MK_XBUTTON2
	}
	return MK_LBUTTON
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
