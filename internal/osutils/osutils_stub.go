//go:build !windows

// Package osutils holds small process-level OS queries.
package osutils

// IsAdmin reports false on platforms without an elevation model we check.
func IsAdmin() bool {
	return false
}
