// Package focus tracks which target window owns the OS foreground.
package focus

import (
	"sync/atomic"

	"keyroute/internal/window"
)

// Tracker holds the last foreground handle reported by the OS and lazily
// resolves it to a known target window. The resolution is cached until the
// raw handle changes or Invalidate is called.
type Tracker struct {
	dir window.Directory

	raw   atomic.Uintptr
	gen   atomic.Uint64
	cache atomic.Pointer[resolution]
	scans atomic.Uint64
}

type resolution struct {
	raw    window.Handle
	gen    uint64
	target window.Target
	ok     bool
}

// NewTracker resolves focus against dir.
func NewTracker(dir window.Directory) *Tracker {
	return &Tracker{dir: dir}
}

// SetFocused records the raw foreground handle. It does not resolve it.
func (t *Tracker) SetFocused(h window.Handle) {
	t.raw.Store(uintptr(h))
}

// Focused returns the raw foreground handle, or zero if none was reported.
func (t *Tracker) Focused() window.Handle {
	return window.Handle(t.raw.Load())
}

// ResolveFocusedWindow returns the target owning the foreground. ok is false
// when nothing is focused or the foreground window is not a target.
func (t *Tracker) ResolveFocusedWindow() (window.Target, bool) {
	return t.Resolve(t.Focused())
}

// Resolve maps a foreground handle to a known target. The last resolution is
// cached until a different handle is asked for or Invalidate is called.
func (t *Tracker) Resolve(raw window.Handle) (window.Target, bool) {
	if raw == 0 {
		return window.Target{}, false
	}
	gen := t.gen.Load()
	if c := t.cache.Load(); c != nil && c.raw == raw && c.gen == gen {
		return c.target, c.ok
	}

	t.scans.Add(1)
	r := &resolution{raw: raw, gen: gen}
	for _, w := range t.dir.ListKnownWindows() {
		if w.Handle == raw {
			r.target, r.ok = w, true
			break
		}
	}
	t.cache.Store(r)
	return r.target, r.ok
}

// IsFocused reports whether h is the current foreground window.
func (t *Tracker) IsFocused(h window.Handle) bool {
	return h != 0 && t.Focused() == h
}

// Invalidate forces the next resolve to rescan, e.g. after the target list changed.
func (t *Tracker) Invalidate() {
	t.gen.Add(1)
}

// Scans returns how many times the directory was scanned.
func (t *Tracker) Scans() uint64 {
	return t.scans.Load()
}
