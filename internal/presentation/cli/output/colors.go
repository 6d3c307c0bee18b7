package output

import (
	"os"

	"github.com/jbctechsolutions/wikisync/internal/domain/conflict"
	"github.com/jbctechsolutions/wikisync/internal/domain/syncstate"
)

// colorsEnabled caches the result of color support detection.
var colorsEnabled *bool

// IsColorSupported determines if color output should be enabled.
// It checks for NO_COLOR environment variable and terminal capability.
func IsColorSupported() bool {
	if colorsEnabled != nil {
		return *colorsEnabled
	}

	enabled := detectColorSupport()
	colorsEnabled = &enabled
	return enabled
}

// detectColorSupport checks environment variables and terminal capabilities.
func detectColorSupport() bool {
	// NO_COLOR takes precedence - if set to any value, disable colors
	// See https://no-color.org/
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}

	if _, exists := os.LookupEnv("FORCE_COLOR"); exists {
		return true
	}

	stat, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	if stat.Mode()&os.ModeCharDevice == 0 {
		return false
	}

	term := os.Getenv("TERM")
	if term == "" || term == "dumb" {
		return false
	}

	return true
}

// ResetColorDetection clears the cached color detection result.
func ResetColorDetection() {
	colorsEnabled = nil
}

// StatusColor picks the color for an engine status.
func StatusColor(s syncstate.Status) Color {
	switch s {
	case syncstate.StatusSyncing:
		return ColorCyan
	case syncstate.StatusError:
		return ColorRed
	default:
		return ColorGreen
	}
}

// EventColor picks the color for a history entry.
func EventColor(t syncstate.EventType) Color {
	switch t {
	case syncstate.EventSuccess:
		return ColorGreen
	case syncstate.EventError:
		return ColorRed
	case syncstate.EventConflict:
		return ColorMagenta
	case syncstate.EventWarning:
		return ColorYellow
	default:
		return ColorWhite
	}
}

// ChangeColor picks the color for a queued change.
func ChangeColor(t syncstate.ChangeType) Color {
	switch t {
	case syncstate.ChangeCreate:
		return ColorGreen
	case syncstate.ChangeDelete:
		return ColorRed
	default:
		return ColorYellow
	}
}

// OutcomeColor picks the color for a conflict outcome.
func OutcomeColor(o conflict.Outcome) Color {
	switch o {
	case conflict.OutcomeLocalApplied:
		return ColorBlue
	case conflict.OutcomeRemoteApplied:
		return ColorCyan
	case conflict.OutcomeMerged:
		return ColorGreen
	default:
		return ColorYellow
	}
}
