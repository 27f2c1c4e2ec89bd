package router

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"keyroute/internal/input"
	"keyroute/internal/notify"
	"keyroute/internal/window"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFocus struct {
	mu      sync.Mutex
	current window.Handle
	known   map[window.Handle]window.Target
}

func newFakeFocus(targets ...window.Target) *fakeFocus {
	f := &fakeFocus{known: make(map[window.Handle]window.Target)}
	for _, t := range targets {
		f.known[t.Handle] = t
	}
	return f
}

func (f *fakeFocus) focus(h window.Handle) {
	f.mu.Lock()
	f.current = h
	f.mu.Unlock()
}

func (f *fakeFocus) Resolve(h window.Handle) (window.Target, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.known[h]
	return t, ok
}

func (f *fakeFocus) ResolveFocusedWindow() (window.Target, bool) {
	f.mu.Lock()
	h := f.current
	f.mu.Unlock()
	return f.Resolve(h)
}

type fakeSource struct {
	events *notify.List[input.Event]
}

func newFakeSource() *fakeSource {
	return &fakeSource{events: notify.NewList[input.Event]("events", quietLogger())}
}

func (s *fakeSource) OnEvent(fn func(input.Event)) notify.ID { return s.events.Add(fn) }
func (s *fakeSource) RemoveEvent(id notify.ID) bool          { return s.events.Remove(id) }

func (s *fakeSource) press(k input.KeyCode) {
	s.events.Emit(input.Event{Code: k, Dir: input.Down})
}

func (s *fakeSource) release(k input.KeyCode) {
	s.events.Emit(input.Event{Code: k, Dir: input.Up})
}

var (
	winA = window.Target{Handle: 0xA, Title: "A"}
	winB = window.Target{Handle: 0xB, Title: "B"}
)

const keyF1 input.KeyCode = 0x70

func newTestRouter() (*Router, *input.WatchRegistry, *fakeFocus, *fakeSource) {
	watch := input.NewWatchRegistry()
	focus := newFakeFocus(winA, winB)
	r := New(&watchAdapter{watch}, focus, quietLogger())
	src := newFakeSource()
	r.Attach(src)
	return r, watch, focus, src
}

type watchAdapter struct{ w *input.WatchRegistry }

func (a *watchAdapter) WatchKey(k input.KeyCode)   { a.w.AddKey(k) }
func (a *watchAdapter) UnwatchKey(k input.KeyCode) { a.w.RemoveKey(k) }

func TestDuplicateSubscribeRejected(t *testing.T) {
	r, watch, focus, src := newTestRouter()
	var fired []string
	first := func(window.Target, input.KeyCode) { fired = append(fired, "first") }
	second := func(window.Target, input.KeyCode) { fired = append(fired, "second") }

	if !r.Subscribe(winA.Handle, keyF1, input.Down, first) {
		t.Fatal("Expected first subscribe to succeed")
	}
	if r.Subscribe(winA.Handle, keyF1, input.Down, second) {
		t.Error("Expected duplicate subscribe to fail")
	}
	if watch.Count(keyF1) != 1 {
		t.Errorf("Expected duplicate not to add a watch reference, got %d", watch.Count(keyF1))
	}

	focus.focus(winA.Handle)
	src.press(keyF1)
	if len(fired) != 1 || fired[0] != "first" {
		t.Errorf("Expected only the first callback, got %v", fired)
	}
}

func TestUnsubscribeNotSubscribed(t *testing.T) {
	r, watch, _, _ := newTestRouter()
	watch.AddKey(keyF1)

	if r.Unsubscribe(winA.Handle, keyF1, input.Down) {
		t.Error("Expected unsubscribe of unknown window to fail")
	}
	r.Subscribe(winA.Handle, 0x41, input.Down, func(window.Target, input.KeyCode) {})
	if r.Unsubscribe(winA.Handle, keyF1, input.Down) {
		t.Error("Expected unsubscribe of unknown key to fail")
	}
	if watch.Count(keyF1) != 1 {
		t.Errorf("Expected failed unsubscribe to leave watch count alone, got %d", watch.Count(keyF1))
	}
}

func TestUnsubscribeReleasesWatch(t *testing.T) {
	r, watch, _, _ := newTestRouter()
	cb := func(window.Target, input.KeyCode) {}

	for i := 0; i < 5; i++ {
		r.Subscribe(winA.Handle, keyF1, input.Down, cb)
		r.Unsubscribe(winA.Handle, keyF1, input.Down)
	}
	if watch.Contains(keyF1) {
		t.Errorf("Expected key unwatched after balanced cycles, count=%d", watch.Count(keyF1))
	}
}

func TestUnsubscribeKeepsOtherKeys(t *testing.T) {
	r, _, focus, src := newTestRouter()
	fired := 0
	r.Subscribe(winA.Handle, keyF1, input.Down, func(window.Target, input.KeyCode) {})
	r.Subscribe(winA.Handle, 0x41, input.Down, func(window.Target, input.KeyCode) { fired++ })

	r.Unsubscribe(winA.Handle, keyF1, input.Down)

	focus.focus(winA.Handle)
	src.press(0x41)
	if fired != 1 {
		t.Errorf("Expected remaining callback for the window to fire, got %d", fired)
	}
}

func TestRoutesOnlyToFocusedWindow(t *testing.T) {
	r, _, focus, src := newTestRouter()
	var fired []string
	r.Subscribe(winA.Handle, keyF1, input.Down, func(w window.Target, _ input.KeyCode) { fired = append(fired, w.Title) })
	r.Subscribe(winB.Handle, keyF1, input.Down, func(w window.Target, _ input.KeyCode) { fired = append(fired, w.Title) })

	focus.focus(winA.Handle)
	src.press(keyF1)
	if len(fired) != 1 || fired[0] != "A" {
		t.Fatalf("Expected only A to fire, got %v", fired)
	}

	focus.focus(winB.Handle)
	src.press(keyF1)
	if len(fired) != 2 || fired[1] != "B" {
		t.Errorf("Expected B to fire after focus change, got %v", fired)
	}
}

func TestNoFocusedTargetDropsEvent(t *testing.T) {
	r, _, focus, src := newTestRouter()
	fired := 0
	r.Subscribe(winA.Handle, keyF1, input.Down, func(window.Target, input.KeyCode) { fired++ })
	notified := 0
	r.OnWindowKeyDown(func(KeyEvent) { notified++ })

	focus.focus(0x999)
	src.press(keyF1)
	if fired != 0 || notified != 0 {
		t.Errorf("Expected nothing for a non-target window, got fired=%d notified=%d", fired, notified)
	}
}

func TestKeyUpSubscriptionsAreSeparate(t *testing.T) {
	r, _, focus, src := newTestRouter()
	var fired []string
	if !r.Subscribe(winA.Handle, keyF1, input.Up, func(window.Target, input.KeyCode) { fired = append(fired, "up") }) {
		t.Fatal("Expected key-up subscribe to succeed")
	}
	// A key-down subscription for the same key must not collide with the key-up one.
	if !r.Subscribe(winA.Handle, keyF1, input.Down, func(window.Target, input.KeyCode) { fired = append(fired, "down") }) {
		t.Fatal("Expected key-down subscribe for the same key to succeed")
	}

	focus.focus(winA.Handle)
	src.press(keyF1)
	src.release(keyF1)
	if len(fired) != 2 || fired[0] != "down" || fired[1] != "up" {
		t.Errorf("Expected [down up], got %v", fired)
	}

	if !r.Unsubscribe(winA.Handle, keyF1, input.Up) {
		t.Error("Expected key-up unsubscribe to succeed")
	}
	src.release(keyF1)
	src.press(keyF1)
	if len(fired) != 3 || fired[2] != "down" {
		t.Errorf("Expected key-down callback to survive key-up unsubscribe, got %v", fired)
	}
}

func TestWindowNotificationAlwaysRaised(t *testing.T) {
	r, _, focus, src := newTestRouter()
	var events []KeyEvent
	r.OnWindowKeyDown(func(ev KeyEvent) { events = append(events, ev) })
	r.OnWindowKeyUp(func(ev KeyEvent) { events = append(events, ev) })

	focus.focus(winB.Handle)
	src.press(0x41)
	src.release(0x41)

	if len(events) != 2 {
		t.Fatalf("Expected 2 window events without any subscription, got %d", len(events))
	}
	if events[0].Window.Handle != winB.Handle || events[0].Dir != input.Down || events[1].Dir != input.Up {
		t.Errorf("Unexpected events %+v", events)
	}
}

func TestPanickingCallbackStillNotifies(t *testing.T) {
	r, _, focus, src := newTestRouter()
	r.Subscribe(winA.Handle, keyF1, input.Down, func(window.Target, input.KeyCode) { panic("bad") })
	notified := 0
	r.OnWindowKeyDown(func(KeyEvent) { notified++ })

	focus.focus(winA.Handle)
	src.press(keyF1)
	if notified != 1 {
		t.Errorf("Expected window notification after panicking callback, got %d", notified)
	}
}

func TestAttachTwiceAndDetach(t *testing.T) {
	r, _, focus, src := newTestRouter()
	r.Attach(src)
	fired := 0
	r.Subscribe(winA.Handle, keyF1, input.Down, func(window.Target, input.KeyCode) { fired++ })
	focus.focus(winA.Handle)

	src.press(keyF1)
	if fired != 1 {
		t.Errorf("Expected single delivery after double attach, got %d", fired)
	}

	r.Detach()
	src.press(keyF1)
	if fired != 1 {
		t.Errorf("Expected no delivery after detach, got %d", fired)
	}
}

func TestUnsubscribeWindow(t *testing.T) {
	r, watch, _, _ := newTestRouter()
	cb := func(window.Target, input.KeyCode) {}
	r.Subscribe(winA.Handle, keyF1, input.Down, cb)
	r.Subscribe(winA.Handle, keyF1, input.Up, cb)
	r.Subscribe(winB.Handle, keyF1, input.Down, cb)

	if n := r.UnsubscribeWindow(winA.Handle); n != 2 {
		t.Errorf("Expected 2 removed, got %d", n)
	}
	if watch.Count(keyF1) != 1 {
		t.Errorf("Expected one remaining watch reference, got %d", watch.Count(keyF1))
	}
	subs := r.Subscriptions()
	if len(subs) != 1 || subs[0].Window != winB.Handle {
		t.Errorf("Expected only B's subscription left, got %+v", subs)
	}
}

func TestEventRoutesToWindowFocusedWhenObserved(t *testing.T) {
	r, _, focus, src := newTestRouter()
	var fired []string
	r.Subscribe(winA.Handle, keyF1, input.Down, func(w window.Target, _ input.KeyCode) { fired = append(fired, w.Title) })
	r.Subscribe(winB.Handle, keyF1, input.Down, func(w window.Target, _ input.KeyCode) { fired = append(fired, w.Title) })

	// The key was pressed in A, but B took the foreground before dispatch.
	focus.focus(winB.Handle)
	src.events.Emit(input.Event{Code: keyF1, Dir: input.Down, Focus: winA.Handle})
	if len(fired) != 1 || fired[0] != "A" {
		t.Errorf("Expected delivery to A, got %v", fired)
	}

	// A stamp on a non-target window drops the event even if B is focused now.
	src.events.Emit(input.Event{Code: keyF1, Dir: input.Down, Focus: 0x999})
	if len(fired) != 1 {
		t.Errorf("Expected no delivery for a non-target stamp, got %v", fired)
	}
}
