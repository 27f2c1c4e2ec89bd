package input

import "testing"

func TestParseKey(t *testing.T) {
	tests := []struct {
		in   string
		want KeyCode
	}{
		{"a", 0x41},
		{"Z", 0x5A},
		{"5", 0x35},
		{"F1", 0x70},
		{"f12", 0x7B},
		{"SPACE", 0x20},
		{"escape", 0x1B},
		{"MOUSE1", MouseLeft},
		{"mouse4", MouseX1},
		{"XBUTTON2", MouseX2},
		{"NUM3", 0x63},
		{"0x41", 0x41},
		{"VK_0xE2", 0xE2},
	}
	for _, tt := range tests {
		got, err := ParseKey(tt.in)
		if err != nil {
			t.Errorf("ParseKey(%q): unexpected error %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKey(%q): expected 0x%X, got 0x%X", tt.in, int32(tt.want), int32(got))
		}
	}
}

func TestParseKeyErrors(t *testing.T) {
	for _, in := range []string{"", "NOPE", "F99", "0x1FF"} {
		if _, err := ParseKey(in); err == nil {
			t.Errorf("ParseKey(%q): expected error", in)
		}
	}
}

func TestKeyCodeStringRoundTrip(t *testing.T) {
	for _, k := range []KeyCode{0x41, 0x30, 0x70, 0x87, 0x20, MouseLeft, MouseX2, 0x63, 0xE2} {
		name := k.String()
		back, err := ParseKey(name)
		if err != nil {
			t.Errorf("ParseKey(%q) failed: %v", name, err)
			continue
		}
		if back != k {
			t.Errorf("Round trip of 0x%X via %q gave 0x%X", int32(k), name, int32(back))
		}
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection("UP"); err != nil || d != Up {
		t.Errorf("Expected Up, got %s (%v)", d, err)
	}
	if d, err := ParseDirection(""); err != nil || d != Down {
		t.Errorf("Expected Down default, got %s (%v)", d, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("Expected error for unknown direction")
	}
}
