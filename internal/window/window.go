// Package window keeps track of the target windows input is routed to and
// wraps the native calls used to inspect and arrange them.
package window

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"keyroute/internal/notify"
)

// ErrUnsupported is returned by native helpers on platforms without a window manager binding.
var ErrUnsupported = errors.New("window: not supported on this platform")

// Handle is a native top-level window handle. Zero means "no window".
type Handle uintptr

func (h Handle) String() string {
	return fmt.Sprintf("0x%X", uintptr(h))
}

// Target describes a window belonging to an application we route input to.
type Target struct {
	Handle     Handle `json:"handle"`
	PID        uint32 `json:"pid"`
	Title      string `json:"title"`
	Class      string `json:"class"`
	Executable string `json:"executable"`
}

// Rect is a window rectangle in screen coordinates.
type Rect struct {
	Left   int32 `json:"left"`
	Top    int32 `json:"top"`
	Right  int32 `json:"right"`
	Bottom int32 `json:"bottom"`
}

func (r Rect) Width() int32  { return r.Right - r.Left }
func (r Rect) Height() int32 { return r.Bottom - r.Top }

// Directory lists the windows that are currently known to be targets.
type Directory interface {
	ListKnownWindows() []Target
}

// Finder discovers target windows on the desktop.
type Finder interface {
	FindWindows() ([]Target, error)
}

// Registry is the process-wide Directory. It is refreshed from a Finder and
// notifies observers whenever its contents change.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	targets []Target

	changed *notify.List[[]Target]
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		changed: notify.NewList[[]Target]("window.registry", logger),
	}
}

// ListKnownWindows returns a snapshot of the known targets.
func (r *Registry) ListKnownWindows() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.targets)
}

// Lookup returns the target owning h.
func (r *Registry) Lookup(h Handle) (Target, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.targets {
		if t.Handle == h {
			return t, true
		}
	}
	return Target{}, false
}

// Len returns the number of known targets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.targets)
}

// Set replaces the known targets. Observers run only when the set of handles
// or their metadata actually changed.
func (r *Registry) Set(targets []Target) {
	next := slices.Clone(targets)
	slices.SortFunc(next, func(a, b Target) int {
		switch {
		case a.Handle < b.Handle:
			return -1
		case a.Handle > b.Handle:
			return 1
		}
		return 0
	})
	next = slices.CompactFunc(next, func(a, b Target) bool { return a.Handle == b.Handle })

	r.mu.Lock()
	same := slices.Equal(r.targets, next)
	r.targets = next
	r.mu.Unlock()

	if same {
		return
	}
	r.logger.Debug("Target windows changed", slog.Int("count", len(next)))
	r.changed.Emit(slices.Clone(next))
}

// Refresh replaces the known targets with what f currently finds.
func (r *Registry) Refresh(f Finder) (int, error) {
	found, err := f.FindWindows()
	if err != nil {
		return 0, fmt.Errorf("find target windows: %w", err)
	}
	r.Set(found)
	return len(found), nil
}

// OnChange registers fn to run after every effective Set.
func (r *Registry) OnChange(fn func([]Target)) notify.ID {
	return r.changed.Add(fn)
}

// RemoveOnChange drops an observer registered with OnChange.
func (r *Registry) RemoveOnChange(id notify.ID) bool {
	return r.changed.Remove(id)
}

// NormalizeExecutables lower-cases executable names and drops duplicates and blanks.
func NormalizeExecutables(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" || slices.Contains(out, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// ExecutableBase returns the lower-cased file name of a native image path.
func ExecutableBase(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i != -1 {
		path = path[i+1:]
	}
	return strings.ToLower(path)
}
