package main

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"keyroute/internal/config"
	"keyroute/internal/input"
	"keyroute/internal/router"
	"keyroute/internal/window"
)

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "keyroute" {
		t.Errorf("Expected command name 'keyroute', got '%s'", rootCmd.Use)
	}

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "watch", "events", "windows", "send", "autostart", "version"} {
		if !names[want] {
			t.Errorf("Expected subcommand %s", want)
		}
	}

	for _, name := range []string{"config", "debug", "log-format", "log-file"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("Expected persistent flag --%s", name)
		}
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	if !strings.Contains(out.String(), version) {
		t.Errorf("Expected version in output, got %q", out.String())
	}
}

func TestRunFlags(t *testing.T) {
	for _, name := range []string{"tray", "no-tray", "port", "exe"} {
		if runCmd.Flags().Lookup(name) == nil {
			t.Errorf("Expected run flag --%s", name)
		}
	}

	if err := runCmd.ParseFlags([]string{"--tray=false", "--port", "19000", "--exe", "a.exe,b.exe"}); err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	cfg := config.DefaultConfig()
	applyRunFlags(runCmd, cfg)

	if cfg.General.Tray {
		t.Error("Expected tray disabled")
	}
	if cfg.API.Port != 19000 {
		t.Errorf("Expected port 19000, got %d", cfg.API.Port)
	}
	if len(cfg.Targets.Executables) != 2 || cfg.Targets.Executables[1] != "b.exe" {
		t.Errorf("Expected [a.exe b.exe], got %v", cfg.Targets.Executables)
	}
}

func TestAutostartArgs(t *testing.T) {
	if err := autostartCmd.Args(autostartCmd, []string{"enable"}); err != nil {
		t.Errorf("Expected enable to be valid, got %v", err)
	}
	if err := autostartCmd.Args(autostartCmd, []string{"bogus"}); err == nil {
		t.Error("Expected error for invalid argument")
	}
	if err := autostartCmd.Args(autostartCmd, nil); err == nil {
		t.Error("Expected error for missing argument")
	}
}

type fakeSubscriber struct {
	mu   sync.Mutex
	subs map[string]router.Callback
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{subs: make(map[string]router.Callback)}
}

func subKey(h window.Handle, k input.KeyCode, dir string) string {
	return h.String() + "/" + k.String() + "/" + dir
}

func (f *fakeSubscriber) add(key string, cb router.Callback) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.subs[key]; ok {
		return false
	}
	f.subs[key] = cb
	return true
}

func (f *fakeSubscriber) remove(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[key]
	delete(f.subs, key)
	return ok
}

func (f *fakeSubscriber) SubscribeKeyDown(h window.Handle, k input.KeyCode, cb router.Callback) bool {
	return f.add(subKey(h, k, "down"), cb)
}

func (f *fakeSubscriber) SubscribeKeyUp(h window.Handle, k input.KeyCode, cb router.Callback) bool {
	return f.add(subKey(h, k, "up"), cb)
}

func (f *fakeSubscriber) UnsubscribeKeyDown(h window.Handle, k input.KeyCode) bool {
	return f.remove(subKey(h, k, "down"))
}

func (f *fakeSubscriber) UnsubscribeKeyUp(h window.Handle, k input.KeyCode) bool {
	return f.remove(subKey(h, k, "up"))
}

func TestWindowWatchSync(t *testing.T) {
	a := window.Target{Handle: 0x10, Title: "Character A"}
	b := window.Target{Handle: 0x20, Title: "Character B"}
	sub := newFakeSubscriber()
	var out bytes.Buffer
	w := newWindowWatch(sub, []input.KeyCode{0x70, input.MouseX1}, &out)

	w.sync([]window.Target{a, b})
	if len(sub.subs) != 8 {
		t.Fatalf("Expected 8 subscriptions, got %d", len(sub.subs))
	}

	// Re-syncing the same targets is a no-op.
	w.sync([]window.Target{a, b})
	if len(sub.subs) != 8 {
		t.Errorf("Expected 8 subscriptions after resync, got %d", len(sub.subs))
	}

	w.sync([]window.Target{b})
	if len(sub.subs) != 4 {
		t.Errorf("Expected 4 subscriptions after A vanished, got %d", len(sub.subs))
	}
	if _, ok := sub.subs[subKey(a.Handle, 0x70, "down")]; ok {
		t.Error("Expected A's subscriptions removed")
	}

	sub.subs[subKey(b.Handle, input.MouseX1, "up")](b, input.MouseX1)
	if got := out.String(); !strings.Contains(got, `"Character B" MOUSE4 up`) {
		t.Errorf("Unexpected output %q", got)
	}
}

type countingWatcher struct {
	counts map[input.KeyCode]int
}

func (c *countingWatcher) WatchKey(k input.KeyCode)   { c.counts[k]++ }
func (c *countingWatcher) UnwatchKey(k input.KeyCode) { c.counts[k]-- }

func TestConfigWatchReleasesPreviousKeys(t *testing.T) {
	cw := &countingWatcher{counts: make(map[input.KeyCode]int)}
	var logs bytes.Buffer
	w := newConfigWatch(cw, slog.New(slog.NewTextHandler(&logs, nil)))

	w.apply([]string{"F1", "F2"})
	w.apply([]string{"F2", "F3"})

	want := map[input.KeyCode]int{0x70: 0, 0x71: 1, 0x72: 1}
	for k, n := range want {
		if cw.counts[k] != n {
			t.Errorf("Expected %s refcount %d, got %d", k, n, cw.counts[k])
		}
	}

	// An invalid list leaves the current references alone.
	w.apply([]string{"NOPE"})
	if cw.counts[0x72] != 1 {
		t.Errorf("Expected F3 still watched, got %d", cw.counts[0x72])
	}
	if got := logs.String(); !strings.Contains(got, "level=WARN") || !strings.Contains(got, "NOPE") {
		t.Errorf("Expected a warning naming the bad key, got %q", got)
	}
}

func TestSelectWindow(t *testing.T) {
	a := window.Target{Handle: 0x10, Title: "Character A"}
	b := window.Target{Handle: 0x20, Title: "Character B"}
	targets := []window.Target{a, b}

	tests := []struct {
		name    string
		handle  string
		title   string
		targets []window.Target
		want    window.Handle
		wantErr bool
	}{
		{"by handle", "0x20", "", targets, b.Handle, false},
		{"by decimal handle", "16", "", targets, a.Handle, false},
		{"unknown handle", "0x30", "", targets, 0, true},
		{"bad handle", "zz", "", targets, 0, true},
		{"by title", "", "character a", targets, a.Handle, false},
		{"unknown title", "", "Z", targets, 0, true},
		{"only target", "", "", []window.Target{b}, b.Handle, false},
		{"ambiguous", "", "", targets, 0, true},
		{"none", "", "", nil, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := selectWindow(tt.targets, tt.handle, tt.title)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Expected error=%v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && got.Handle != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got.Handle)
			}
		})
	}
}

func TestPrintWindows(t *testing.T) {
	var out bytes.Buffer
	printWindows(&out, nil)
	if !strings.Contains(out.String(), "No target windows") {
		t.Errorf("Unexpected output %q", out.String())
	}

	out.Reset()
	printWindows(&out, []window.Target{{Handle: 0x10, PID: 42, Title: "Character A", Executable: "game.exe"}})
	if !strings.Contains(out.String(), "0x10") || !strings.Contains(out.String(), "Character A") {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestParseSubscription(t *testing.T) {
	tests := []struct {
		in      string
		handle  window.Handle
		key     string
		dir     string
		wantErr bool
	}{
		{"F1", 0, "F1", "down", false},
		{"MOUSE4:up", 0, "MOUSE4", "up", false},
		{"F2:down@0x1A2B", 0x1A2B, "F2", "down", false},
		{"A@16", 16, "A", "down", false},
		{"A@nope", 0, "", "", true},
		{":up", 0, "", "", true},
	}

	for _, tt := range tests {
		h, key, dir, err := parseSubscription(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: expected error=%v, got %v", tt.in, tt.wantErr, err)
			continue
		}
		if !tt.wantErr && (h != tt.handle || key != tt.key || dir != tt.dir) {
			t.Errorf("%s: expected %s %s %s, got %s %s %s", tt.in, tt.handle, tt.key, tt.dir, h, key, dir)
		}
	}
}
