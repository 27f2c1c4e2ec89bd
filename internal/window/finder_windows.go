//go:build windows

package window

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"unsafe"

	"github.com/lxn/win"
	"golang.org/x/sys/windows"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procGetWindowText       = user32.NewProc("GetWindowTextW")
	procGetWindowTextLength = user32.NewProc("GetWindowTextLengthW")
)

// EnumWindows callbacks are a finite resource, so a single one is created and
// the scan state is handed over through enumState.
var (
	enumMu       sync.Mutex
	enumState    *enumContext
	enumCallback = windows.NewCallback(enumWindowsProc)
)

type enumContext struct {
	executables []string
	seenPIDs    map[uint32]bool
	found       []Target
	logger      *slog.Logger
}

// ProcessFinder finds the main window of every process whose image name is
// in Executables.
type ProcessFinder struct {
	Executables []string
	Logger      *slog.Logger
}

// NewProcessFinder returns a finder for the given executable names.
func NewProcessFinder(executables []string, logger *slog.Logger) *ProcessFinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessFinder{Executables: NormalizeExecutables(executables), Logger: logger}
}

// FindWindows enumerates visible unowned top-level windows.
func (f *ProcessFinder) FindWindows() ([]Target, error) {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumState = &enumContext{
		executables: f.Executables,
		seenPIDs:    make(map[uint32]bool),
		logger:      f.Logger,
	}
	defer func() { enumState = nil }()

	if err := windows.EnumWindows(enumCallback, nil); err != nil {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	return slices.Clone(enumState.found), nil
}

func enumWindowsProc(hwnd windows.HWND, _ uintptr) uintptr {
	ctx := enumState
	if ctx == nil || hwnd == 0 {
		return 1
	}
	if !windows.IsWindowVisible(hwnd) {
		return 1
	}
	if win.GetWindow(win.HWND(hwnd), win.GW_OWNER) != 0 {
		return 1
	}

	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(hwnd, &pid); err != nil || pid == 0 {
		return 1
	}
	if ctx.seenPIDs[pid] {
		return 1
	}

	exe, err := processImageName(pid)
	if err != nil {
		ctx.logger.Debug("Failed to get process image name",
			slog.Uint64("pid", uint64(pid)),
			slog.String("error", err.Error()))
		return 1
	}
	if !slices.Contains(ctx.executables, exe) {
		return 1
	}

	ctx.seenPIDs[pid] = true
	ctx.found = append(ctx.found, Target{
		Handle:     Handle(hwnd),
		PID:        pid,
		Title:      windowText(hwnd),
		Class:      className(hwnd),
		Executable: exe,
	})
	return 1
}

func processImageName(pid uint32) (string, error) {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", err
	}
	defer windows.CloseHandle(h)

	var buf [windows.MAX_PATH]uint16
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return "", err
	}
	return ExecutableBase(windows.UTF16ToString(buf[:size])), nil
}

func windowText(hwnd windows.HWND) string {
	n, _, _ := procGetWindowTextLength.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	ret, _, _ := procGetWindowText.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	if ret == 0 {
		return ""
	}
	return windows.UTF16ToString(buf)
}

func className(hwnd windows.HWND) string {
	buf := make([]uint16, 256)
	n, err := windows.GetClassName(hwnd, &buf[0], int32(len(buf)))
	if err != nil || n == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}
