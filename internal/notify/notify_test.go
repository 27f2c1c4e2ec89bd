package notify

import (
	"io"
	"log/slog"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitInRegistrationOrder(t *testing.T) {
	l := NewList[int]("test", quietLogger())
	var got []string
	l.Add(func(int) { got = append(got, "a") })
	l.Add(func(int) { got = append(got, "b") })
	l.Add(func(int) { got = append(got, "c") })

	l.Emit(1)

	want := "abc"
	var s string
	for _, g := range got {
		s += g
	}
	if s != want {
		t.Errorf("Expected order %q, got %q", want, s)
	}
}

func TestPanickingSubscriberDoesNotStopOthers(t *testing.T) {
	l := NewList[string]("test", quietLogger())
	var after []string
	l.Add(func(string) { panic("boom") })
	l.Add(func(v string) { after = append(after, v) })

	l.Emit("x")
	l.Emit("y")

	if len(after) != 2 || after[0] != "x" || after[1] != "y" {
		t.Errorf("Expected second subscriber to receive [x y], got %v", after)
	}
}

func TestRemove(t *testing.T) {
	l := NewList[int]("test", quietLogger())
	calls := 0
	id := l.Add(func(int) { calls++ })
	l.Add(func(int) { calls += 10 })

	if !l.Remove(id) {
		t.Fatal("Expected Remove to report true for a live subscription")
	}
	if l.Remove(id) {
		t.Error("Expected second Remove to report false")
	}
	l.Emit(0)
	if calls != 10 {
		t.Errorf("Expected only remaining subscriber to run, got calls=%d", calls)
	}
	if l.Len() != 1 {
		t.Errorf("Expected Len 1, got %d", l.Len())
	}
}

func TestClear(t *testing.T) {
	l := NewList[int]("test", nil)
	l.Add(func(int) { t.Error("cleared subscriber called") })
	l.Clear()
	l.Emit(0)
	if l.Len() != 0 {
		t.Errorf("Expected Len 0, got %d", l.Len())
	}
}

func TestAddDuringEmit(t *testing.T) {
	l := NewList[int]("test", quietLogger())
	added := 0
	l.Add(func(int) {
		l.Add(func(int) { added++ })
	})

	l.Emit(0)
	if added != 0 {
		t.Errorf("Expected subscriber added during Emit to wait for next Emit, got %d calls", added)
	}
	l.Emit(0)
	if added != 1 {
		t.Errorf("Expected 1 call on next Emit, got %d", added)
	}
}
