package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"adoflow/internal/config"
)

// Process exit codes.
const (
	ExitSuccess     = 0
	ExitFailure     = 1
	ExitConfigError = 2
	ExitCancelled   = 130
)

// ExitError carries an explicit exit code through the command layer.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitCode maps an error to the process exit code and prints it. Cobra's own
// printing is silenced so every failure goes through here exactly once.
func exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	var ce *config.ConfigError
	if errors.As(err, &ce) {
		return ExitConfigError
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ExitCancelled
	}
	return ExitFailure
}
