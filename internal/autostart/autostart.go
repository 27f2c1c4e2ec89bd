// Package autostart registers keyroute to start on user logon.
package autostart

import (
	"errors"
	"strings"
)

// ValueName is the name the logon entry is stored under.
const ValueName = "keyroute"

// ErrUnsupported is returned on platforms without a logon registration.
var ErrUnsupported = errors.New("autostart: not supported on this platform")

// CommandLine joins exe and args into a command line, quoting every part
// that contains a space or is empty.
func CommandLine(exe string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	for _, p := range append([]string{exe}, args...) {
		if p == "" || strings.ContainsAny(p, " \t") {
			p = `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, " ")
}
