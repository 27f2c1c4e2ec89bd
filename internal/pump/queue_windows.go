//go:build windows

package pump

import (
	"fmt"
	"sync/atomic"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

var (
	user32                = windows.NewLazySystemDLL("user32.dll")
	procPostThreadMessage = user32.NewProc("PostThreadMessageW")
)

// wmWake is posted to the pump thread so GetMessage returns and the loop can
// observe a stop request.
const wmWake = win.WM_APP + 0x51

type threadQueue struct {
	tid atomic.Uint32
	msg win.MSG
}

func newPlatformQueue() Queue {
	return &threadQueue{}
}

// Bind forces creation of the thread message queue so PostThreadMessage
// cannot race the first GetMessage.
func (q *threadQueue) Bind() error {
	win.PeekMessage(&q.msg, 0, win.WM_USER, win.WM_USER, win.PM_NOREMOVE)
	q.tid.Store(win.GetCurrentThreadId())
	return nil
}

func (q *threadQueue) Next() bool {
	// -1 is an error, 0 is WM_QUIT.
	return win.GetMessage(&q.msg, 0, 0, 0) > 0
}

func (q *threadQueue) Dispatch() {
	if q.msg.HWnd == 0 && q.msg.Message == wmWake {
		return
	}
	win.TranslateMessage(&q.msg)
	win.DispatchMessage(&q.msg)
}

func (q *threadQueue) Wake() error {
	tid := q.tid.Load()
	if tid == 0 {
		return nil
	}
	ret, _, err := procPostThreadMessage.Call(uintptr(tid), wmWake, 0, 0)
	if ret == 0 {
		return fmt.Errorf("PostThreadMessage: %w", err)
	}
	return nil
}

func (q *threadQueue) Close() {
	q.tid.Store(0)
}
