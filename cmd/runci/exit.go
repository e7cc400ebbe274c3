package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/runci/internal/engine"
	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

// Process exit codes.
const (
	exitSuccess      = 0
	exitFailure      = 1
	exitCanceled     = 2
	exitUndetermined = 3
	exitConfig       = 4
)

const (
	msgSucceeded    = "Pipeline has run successfully."
	msgFailed       = "Pipeline has failed."
	msgCanceled     = "Pipeline has been canceled."
	msgUndetermined = "Pipeline has been run but outcome is undetermined. Please report this as a bug."
)

// ExitError carries the process exit code of a finished invocation.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// configError classifies a load or build failure. Unknown requested targets
// get the short listing form; dependency errors keep their validation message.
func configError(err error) *ExitError {
	if unknown, ok := err.(*runcierrors.UnknownTargetError); ok {
		return &ExitError{Code: exitConfig, Message: "Unknown targets: " + strings.Join(unknown.Names, " "), Err: err}
	}
	return &ExitError{Code: exitConfig, Message: err.Error(), Err: err}
}

// outcome maps the root status to a message and exit code. An engine
// invariant violation always wins; any other error fails the run.
func outcome(status engine.Status, err error) (string, int) {
	if errors.Is(err, runcierrors.ErrUndeterminedOutcome) || !status.Terminal() {
		return msgUndetermined, exitUndetermined
	}
	if err != nil {
		return fmt.Sprintf("%s %v", msgFailed, err), exitFailure
	}
	switch status {
	case engine.StatusSucceeded:
		return msgSucceeded, exitSuccess
	case engine.StatusFailed:
		return msgFailed, exitFailure
	default:
		return msgCanceled, exitCanceled
	}
}
