package input

import (
	"context"
	"errors"
	"testing"
	"time"

	"keyroute/internal/window"
)

type postedMsg struct {
	h      window.Handle
	msg    uint32
	wParam uintptr
	lParam uintptr
}

type recordingPoster struct {
	posted []postedMsg
	err    error
}

func (p *recordingPoster) Post(h window.Handle, msg uint32, wParam, lParam uintptr) error {
	if p.err != nil {
		return p.err
	}
	p.posted = append(p.posted, postedMsg{h, msg, wParam, lParam})
	return nil
}

func TestSenderKey(t *testing.T) {
	p := &recordingPoster{}
	s := NewSenderWithPoster(p, quietLogger())

	if err := s.Key(context.Background(), 0x100, 0x41, time.Millisecond); err != nil {
		t.Fatalf("Key failed: %v", err)
	}
	if len(p.posted) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(p.posted))
	}
	if p.posted[0].msg != WM_KEYDOWN || p.posted[1].msg != WM_KEYUP {
		t.Errorf("Expected KEYDOWN then KEYUP, got 0x%X then 0x%X", p.posted[0].msg, p.posted[1].msg)
	}
	if p.posted[0].wParam != 0x41 || p.posted[0].h != 0x100 {
		t.Errorf("Unexpected down message %+v", p.posted[0])
	}
}

func TestSenderReleasesOnCancel(t *testing.T) {
	p := &recordingPoster{}
	s := NewSenderWithPoster(p, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Key(ctx, 0x100, 0x41, time.Hour)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if len(p.posted) != 2 || p.posted[1].msg != WM_KEYUP {
		t.Errorf("Expected key to be released after cancel, got %+v", p.posted)
	}
}

func TestSenderZeroHandleIsNoOp(t *testing.T) {
	p := &recordingPoster{}
	s := NewSenderWithPoster(p, quietLogger())

	if err := s.Key(context.Background(), 0, 0x41, 0); err != nil {
		t.Errorf("Expected nil for zero handle, got %v", err)
	}
	if err := s.Char(0, 'x'); err != nil {
		t.Errorf("Expected nil for zero handle, got %v", err)
	}
	if len(p.posted) != 0 {
		t.Errorf("Expected nothing posted, got %d messages", len(p.posted))
	}
}

func TestSenderClick(t *testing.T) {
	p := &recordingPoster{}
	s := NewSenderWithPoster(p, quietLogger())

	err := s.Click(context.Background(), 0x200, Click{X: 10, Y: 20, Button: MouseRight}, 0)
	if err != nil {
		t.Fatalf("Click failed: %v", err)
	}
	if len(p.posted) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(p.posted))
	}
	down, up := p.posted[0], p.posted[1]
	if down.msg != WM_RBUTTONDOWN || down.wParam != MK_RBUTTON {
		t.Errorf("Unexpected down message %+v", down)
	}
	if up.msg != WM_RBUTTONUP || up.wParam != 0 {
		t.Errorf("Unexpected up message %+v", up)
	}
	if down.lParam != MakeLParam(10, 20) {
		t.Errorf("Expected lParam 0x%X, got 0x%X", MakeLParam(10, 20), down.lParam)
	}
}

func TestSenderXButtonClick(t *testing.T) {
	p := &recordingPoster{}
	s := NewSenderWithPoster(p, quietLogger())

	if err := s.ClickDown(0x200, Click{Button: MouseX2}); err != nil {
		t.Fatalf("ClickDown failed: %v", err)
	}
	got := p.posted[0]
	if got.msg != WM_XBUTTONDOWN || got.wParam>>16 != 2 {
		t.Errorf("Expected XBUTTONDOWN for X2, got %+v", got)
	}
}

func TestSenderRejectsKeyboardClick(t *testing.T) {
	s := NewSenderWithPoster(&recordingPoster{}, quietLogger())
	if err := s.ClickDown(0x200, Click{Button: 0x41}); !errors.Is(err, ErrNotClickable) {
		t.Errorf("Expected ErrNotClickable, got %v", err)
	}
}

func TestSenderText(t *testing.T) {
	p := &recordingPoster{}
	s := NewSenderWithPoster(p, quietLogger())
	if err := s.Text(context.Background(), 0x1, "hé", 0); err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if len(p.posted) != 2 || p.posted[1].wParam != uintptr('é') {
		t.Errorf("Expected two WM_CHAR messages ending with é, got %+v", p.posted)
	}
}

func TestSenderPropagatesPostError(t *testing.T) {
	cause := errors.New("window gone")
	s := NewSenderWithPoster(&recordingPoster{err: cause}, quietLogger())
	if err := s.KeyDown(0x1, 0x41); !errors.Is(err, cause) {
		t.Errorf("Expected wrapped post error, got %v", err)
	}
}

func TestMakeLParam(t *testing.T) {
	if got := MakeLParam(0x12, 0x34); got != 0x00340012 {
		t.Errorf("Expected 0x00340012, got 0x%X", got)
	}
	if got := MakeLParam(-1, 0); got != 0x0000FFFF {
		t.Errorf("Expected negative x to be truncated to 16 bits, got 0x%X", got)
	}
}
