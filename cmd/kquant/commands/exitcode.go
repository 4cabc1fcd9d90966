package commands

import (
	"errors"
	"fmt"
)

// ExitCode categorizes a CLI failure: 0 success, 1 configuration error,
// 2 runtime error, 3 data unavailable.
type ExitCode int

const (
	ExitConfigError     ExitCode = 1
	ExitRuntimeError    ExitCode = 2
	ExitDataUnavailable ExitCode = 3
)

// CLIError pairs an error with the exit code main should report for it.
type CLIError struct {
	Code ExitCode
	Err  error
}

func (e *CLIError) Error() string { return e.Err.Error() }
func (e *CLIError) Unwrap() error { return e.Err }

func configErrorf(format string, args ...interface{}) error {
	return &CLIError{Code: ExitConfigError, Err: fmt.Errorf(format, args...)}
}

func dataUnavailablef(format string, args ...interface{}) error {
	return &CLIError{Code: ExitDataUnavailable, Err: fmt.Errorf(format, args...)}
}

// ExitCodeFor maps a RunE error to the process exit code main should use.
// Errors not tagged with a CLIError are treated as runtime errors.
func ExitCodeFor(err error) ExitCode {
	if err == nil {
		return 0
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code
	}
	return ExitRuntimeError
}
