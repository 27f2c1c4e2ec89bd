// Package input observes global keyboard and mouse input and posts synthetic
// input to target windows.
package input

import (
	"fmt"
	"strconv"
	"strings"
)

// KeyCode is a Windows virtual-key code. Mouse buttons use the virtual-key
// codes Windows assigns to them, so both share one namespace.
type KeyCode int32

// NoKey is returned for input that does not map to a key.
const NoKey KeyCode = -1

// Mouse button pseudo key codes.
const (
	MouseLeft   KeyCode = 0x01
	MouseRight  KeyCode = 0x02
	MouseMiddle KeyCode = 0x04
	MouseX1     KeyCode = 0x05
	MouseX2     KeyCode = 0x06
)

// Direction is the transition a key went through.
type Direction uint8

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// ParseDirection accepts "down" or "up".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "down", "":
		return Down, nil
	case "up":
		return Up, nil
	}
	return Down, fmt.Errorf("unknown key direction %q", s)
}

// IsMouse reports whether k is a mouse button code.
func (k KeyCode) IsMouse() bool {
	switch k {
	case MouseLeft, MouseRight, MouseMiddle, MouseX1, MouseX2:
		return true
	}
	return false
}

var namedKeys = map[KeyCode]string{
	MouseLeft:   "MOUSE1",
	MouseRight:  "MOUSE2",
	MouseMiddle: "MOUSE3",
	MouseX1:     "MOUSE4",
	MouseX2:     "MOUSE5",
	0x08:        "BACKSPACE",
	0x09:        "TAB",
	0x0D:        "ENTER",
	0x10:        "SHIFT",
	0x11:        "CTRL",
	0x12:        "ALT",
	0x13:        "PAUSE",
	0x14:        "CAPSLOCK",
	0x1B:        "ESC",
	0x20:        "SPACE",
	0x21:        "PAGEUP",
	0x22:        "PAGEDOWN",
	0x23:        "END",
	0x24:        "HOME",
	0x25:        "LEFT",
	0x26:        "UP",
	0x27:        "RIGHT",
	0x28:        "DOWN",
	0x2C:        "PRINTSCREEN",
	0x2D:        "INSERT",
	0x2E:        "DELETE",
	0x5B:        "LWIN",
	0x5C:        "RWIN",
	0x6A:        "MULTIPLY",
	0x6B:        "ADD",
	0x6D:        "SUBTRACT",
	0x6E:        "DECIMAL",
	0x6F:        "DIVIDE",
	0x90:        "NUMLOCK",
	0x91:        "SCROLLLOCK",
	0xA0:        "LSHIFT",
	0xA1:        "RSHIFT",
	0xA2:        "LCTRL",
	0xA3:        "RCTRL",
	0xA4:        "LALT",
	0xA5:        "RALT",
	0xBA:        "SEMICOLON",
	0xBB:        "PLUS",
	0xBC:        "COMMA",
	0xBD:        "MINUS",
	0xBE:        "PERIOD",
	0xBF:        "SLASH",
	0xC0:        "BACKQUOTE",
	0xDB:        "LBRACKET",
	0xDC:        "BACKSLASH",
	0xDD:        "RBRACKET",
	0xDE:        "QUOTE",
}

var keysByName = func() map[string]KeyCode {
	m := make(map[string]KeyCode, len(namedKeys)+8)
	for k, n := range namedKeys {
		m[n] = k
	}
	// common aliases
	m["ESCAPE"] = 0x1B
	m["RETURN"] = 0x0D
	m["CONTROL"] = 0x11
	m["DEL"] = 0x2E
	m["LBUTTON"] = MouseLeft
	m["RBUTTON"] = MouseRight
	m["MBUTTON"] = MouseMiddle
	m["XBUTTON1"] = MouseX1
	m["XBUTTON2"] = MouseX2
	return m
}()

// String returns the key name, e.g. "A", "F5", "MOUSE4" or "VK_0xE2" for
// codes without a name.
func (k KeyCode) String() string {
	if n, ok := namedKeys[k]; ok {
		return n
	}
	switch {
	case k >= 0x30 && k <= 0x39, k >= 0x41 && k <= 0x5A:
		return string(rune(k))
	case k >= 0x60 && k <= 0x69:
		return fmt.Sprintf("NUM%d", k-0x60)
	case k >= 0x70 && k <= 0x87:
		return fmt.Sprintf("F%d", k-0x6F)
	case k == NoKey:
		return "NONE"
	}
	return fmt.Sprintf("VK_0x%02X", int32(k))
}

// ParseKey resolves a key name as produced by String. Numeric forms
// ("0x41", "65") are accepted as raw virtual-key codes.
func ParseKey(s string) (KeyCode, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "" {
		return NoKey, fmt.Errorf("empty key name")
	}
	if k, ok := keysByName[name]; ok {
		return k, nil
	}
	if len(name) == 1 {
		c := name[0]
		if (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') {
			return KeyCode(c), nil
		}
	}
	if n, ok := strings.CutPrefix(name, "NUM"); ok {
		if d, err := strconv.Atoi(n); err == nil && d >= 0 && d <= 9 {
			return KeyCode(0x60 + d), nil
		}
	}
	if n, ok := strings.CutPrefix(name, "F"); ok {
		if d, err := strconv.Atoi(n); err == nil && d >= 1 && d <= 24 {
			return KeyCode(0x6F + d), nil
		}
	}
	raw := strings.TrimPrefix(name, "VK_")
	if v, err := strconv.ParseInt(raw, 0, 32); err == nil && v > 0 && v <= 0xFE {
		return KeyCode(v), nil
	}
	return NoKey, fmt.Errorf("unknown key %q", s)
}

// ParseKeys parses a list of key names, failing on the first unknown one.
func ParseKeys(names []string) ([]KeyCode, error) {
	out := make([]KeyCode, 0, len(names))
	for _, n := range names {
		k, err := ParseKey(n)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}
