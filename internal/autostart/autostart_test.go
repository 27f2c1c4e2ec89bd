package autostart

import "testing"

func TestCommandLine(t *testing.T) {
	tests := []struct {
		exe  string
		args []string
		want string
	}{
		{`C:\keyroute\keyroute.exe`, []string{"run"}, `C:\keyroute\keyroute.exe run`},
		{`C:\Program Files\keyroute\keyroute.exe`, []string{"run", "--tray"}, `"C:\Program Files\keyroute\keyroute.exe" run --tray`},
		{`C:\k.exe`, []string{"--config", `C:\My Config\c.json`}, `C:\k.exe --config "C:\My Config\c.json"`},
		{`C:\k.exe`, []string{""}, `C:\k.exe ""`},
	}

	for _, tt := range tests {
		if got := CommandLine(tt.exe, tt.args...); got != tt.want {
			t.Errorf("Expected %s, got %s", tt.want, got)
		}
	}
}
