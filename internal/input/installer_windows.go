//go:build windows

package input

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/windows"

	"keyroute/internal/pump"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procGetModuleHandle     = kernel32.NewProc("GetModuleHandleW")
)

const (
	WH_KEYBOARD_LL = 13
	WH_MOUSE_LL    = 14
	HC_ACTION      = 0
)

type KBDLLHOOKSTRUCT struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type MSLLHOOKSTRUCT struct {
	Point       struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// Low-level hooks are process-wide: the callbacks are created once and route
// to whichever installer is active.
var (
	activeLL         atomic.Pointer[LowLevelInstaller]
	keyboardCallback = windows.NewCallback(keyboardHookProc)
	mouseCallback    = windows.NewCallback(mouseHookProc)
)

// LowLevelInstaller installs WH_KEYBOARD_LL and WH_MOUSE_LL on a dedicated
// pump thread. Hooks must be registered in the thread that runs the message loop.
type LowLevelInstaller struct {
	logger *slog.Logger
	pump   *pump.Pump

	mu        sync.Mutex
	keyHook   uintptr
	mouseHook uintptr
	unhookErr error

	onKey   func(vk, msg uint32)
	onMouse func(msg, mouseData uint32)
}

// NewPlatformInstaller returns the Windows low-level hook installer.
func NewPlatformInstaller(logger *slog.Logger) Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LowLevelInstaller{
		logger: logger,
		pump:   pump.New("input.hook-thread", logger),
	}
}

func (i *LowLevelInstaller) Install(onKey func(vk, msg uint32), onMouse func(msg, mouseData uint32)) error {
	if !activeLL.CompareAndSwap(nil, i) {
		return &HookError{Hook: "keyboard", Err: ErrAlreadyInstalled}
	}
	i.onKey, i.onMouse = onKey, onMouse
	if err := i.pump.Start(i.install, i.uninstall); err != nil {
		activeLL.Store(nil)
		return err
	}
	return nil
}

func (i *LowLevelInstaller) Uninstall() error {
	err := i.pump.Stop()

	i.mu.Lock()
	err = errors.Join(err, i.unhookErr)
	i.unhookErr = nil
	i.mu.Unlock()

	// A timed-out loop still owns the hooks; uninstall releases the slot
	// when it finally runs.
	if !errors.Is(err, pump.ErrStopTimeout) {
		activeLL.CompareAndSwap(i, nil)
	}
	return err
}

// install runs on the pump thread.
func (i *LowLevelInstaller) install() error {
	hMod, _, _ := procGetModuleHandle.Call(0)

	kh, _, err := procSetWindowsHookEx.Call(WH_KEYBOARD_LL, keyboardCallback, hMod, 0)
	if kh == 0 {
		return &HookError{Hook: "keyboard", Err: err}
	}
	mh, _, err := procSetWindowsHookEx.Call(WH_MOUSE_LL, mouseCallback, hMod, 0)
	if mh == 0 {
		procUnhookWindowsHookEx.Call(kh)
		return &HookError{Hook: "mouse", Err: err}
	}

	i.mu.Lock()
	i.keyHook, i.mouseHook = kh, mh
	i.mu.Unlock()
	i.logger.Debug("Low-level keyboard and mouse hooks installed")
	return nil
}

// uninstall runs on the pump thread.
func (i *LowLevelInstaller) uninstall() {
	i.mu.Lock()
	defer i.mu.Unlock()

	var errs []error
	for _, h := range []*uintptr{&i.keyHook, &i.mouseHook} {
		if *h == 0 {
			continue
		}
		if ret, _, err := procUnhookWindowsHookEx.Call(*h); ret == 0 {
			errs = append(errs, err)
		}
		*h = 0
	}
	i.unhookErr = errors.Join(errs...)
	activeLL.CompareAndSwap(i, nil)
}

func keyboardHookProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == HC_ACTION {
		if i := activeLL.Load(); i != nil && i.onKey != nil {
			kbd := (*KBDLLHOOKSTRUCT)(unsafe.Pointer(lParam))
			i.onKey(kbd.VkCode, uint32(wParam))
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}

func mouseHookProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	if nCode == HC_ACTION {
		if i := activeLL.Load(); i != nil && i.onMouse != nil {
			ms := (*MSLLHOOKSTRUCT)(unsafe.Pointer(lParam))
			i.onMouse(uint32(wParam), ms.MouseData)
		}
	}
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}
