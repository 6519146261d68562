package claudecli

import (
	"fmt"
	"strings"
)

// ProcessError reports a CLI process that failed to start or exited badly.
type ProcessError struct {
	Cause    error
	Message  string
	Stderr   string
	ExitCode int
}

func (e *ProcessError) Error() string {
	var b strings.Builder
	b.WriteString("claude process error: ")
	b.WriteString(e.Message)
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		b.WriteString(": ")
		b.WriteString(e.Stderr)
	}
	return b.String()
}

func (e *ProcessError) Unwrap() error { return e.Cause }

func (e *ProcessError) ErrorType() string { return "ProcessError" }

// CLINotFoundError indicates the claude binary could not be executed.
type CLINotFoundError struct {
	Cause error
	Path  string
}

func (e *CLINotFoundError) Error() string {
	return fmt.Sprintf("claude CLI not found at %q: %v", e.Path, e.Cause)
}

func (e *CLINotFoundError) Unwrap() error { return e.Cause }

func (e *CLINotFoundError) ErrorType() string { return "CLINotFoundError" }
