package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestNewJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := New(Options{Level: "debug", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer closer.Close()

	l.Warn("Failed to unhook", slog.String("component", "focus.hook"), slog.Int("code", 5))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if rec["component"] != "focus.hook" || rec["level"] != "WARN" {
		t.Errorf("Unexpected record %v", rec)
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, _, err := New(Options{Level: "error", Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("hidden")
	l.Error("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("Unexpected output %q", buf.String())
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "keyroute.log")
	var buf bytes.Buffer
	l, closer, err := New(Options{File: path, Output: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	l.Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("Expected log file to contain message, got %q", data)
	}
}
