package cmd

import (
	"errors"
	"fmt"
)

// Exit codes for beaconspec CLI
const (
	// ExitSuccess indicates all assertions passed
	ExitSuccess = 0

	// ExitTestFailure indicates one or more assertions failed or errored
	ExitTestFailure = 1

	// ExitParseError indicates an invalid test document
	ExitParseError = 2

	// ExitConfigError indicates a configuration error
	ExitConfigError = 3

	// ExitBrowserError indicates the browser failed to launch or a step aborted a run
	ExitBrowserError = 4

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// exitError carries the process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitUsageError
}
