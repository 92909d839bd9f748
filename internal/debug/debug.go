// Package debug provides the env-var-gated diagnostic logging used across
// the engine and its CLI. Adapted from the teacher's internal/debug
// package: same Enabled/Logf/verbose-vs-quiet shape, with the
// project-local event-log writer (LogEvent, tied to a .beads directory
// layout that has no equivalent here) dropped.
package debug

import (
	"fmt"
	"os"
)

var (
	enabled     = os.Getenv("RTDB_DEBUG") != ""
	verboseMode = false
	quietMode   = false
)

// Enabled reports whether debug output is currently on, either via the
// RTDB_DEBUG environment variable or SetVerbose.
func Enabled() bool {
	return enabled || verboseMode
}

// SetVerbose turns debug output on for the process in addition to the
// environment variable. SetVerbose(false) does not turn off output that
// RTDB_DEBUG enabled.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// SetQuiet suppresses PrintNormal/PrintlnNormal output.
func SetQuiet(quiet bool) {
	quietMode = quiet
}

// IsQuiet reports whether quiet mode is enabled.
func IsQuiet() bool {
	return quietMode
}

// Logf writes to stderr when debug output is enabled.
func Logf(format string, args ...interface{}) {
	if Enabled() {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Printf writes to stdout when debug output is enabled.
func Printf(format string, args ...interface{}) {
	if Enabled() {
		fmt.Printf(format, args...)
	}
}

// PrintNormal prints unless quiet mode is enabled.
func PrintNormal(format string, args ...interface{}) {
	if !quietMode {
		fmt.Printf(format, args...)
	}
}

// PrintlnNormal prints a line unless quiet mode is enabled.
func PrintlnNormal(args ...interface{}) {
	if !quietMode {
		fmt.Println(args...)
	}
}
