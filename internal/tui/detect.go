package tui

import (
	"os"

	"golang.org/x/term"
)

// Mode represents how progress is rendered.
type Mode int

const (
	// ModeNonInteractive is used for CI/CD pipelines, cron jobs, and redirected output.
	ModeNonInteractive Mode = iota
	// ModeInteractive is used when a human is watching the terminal.
	ModeInteractive
)

// DetectMode determines whether the live progress view can be shown.
//
// Returns ModeNonInteractive if:
//   - stderr is not a terminal (the view is drawn on stderr)
//   - STOCKIMPORT_NON_INTERACTIVE=1 is set
//   - CI is set (common CI/CD convention)
//   - NO_COLOR is set (accessibility/automation indicator)
func DetectMode() Mode {
	if os.Getenv("STOCKIMPORT_NON_INTERACTIVE") == "1" {
		return ModeNonInteractive
	}
	if os.Getenv("CI") != "" {
		return ModeNonInteractive
	}
	if os.Getenv("NO_COLOR") != "" {
		return ModeNonInteractive
	}

	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return ModeNonInteractive
	}

	return ModeInteractive
}

// IsInteractive returns true if running in interactive mode.
func IsInteractive() bool {
	return DetectMode() == ModeInteractive
}
