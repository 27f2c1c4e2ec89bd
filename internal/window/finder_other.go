//go:build !windows

package window

import "log/slog"

// ProcessFinder finds the main window of every process whose image name is
// in Executables. Window enumeration is only implemented on Windows.
type ProcessFinder struct {
	Executables []string
	Logger      *slog.Logger
}

// NewProcessFinder returns a finder for the given executable names.
func NewProcessFinder(executables []string, logger *slog.Logger) *ProcessFinder {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessFinder{Executables: NormalizeExecutables(executables), Logger: logger}
}

func (f *ProcessFinder) FindWindows() ([]Target, error) {
	return nil, ErrUnsupported
}
