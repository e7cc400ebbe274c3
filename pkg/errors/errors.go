package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUndeterminedOutcome marks an engine invariant violation: a result the engine
// cannot classify as success, failure, or cancellation.
var ErrUndeterminedOutcome = errors.New("undetermined outcome")

// ParseError represents a pipeline file parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// UnknownTargetError is returned when requested or referenced target names do not exist.
type UnknownTargetError struct {
	Names []string
}

// NewUnknownTargetError constructs an UnknownTargetError.
func NewUnknownTargetError(names ...string) error {
	return &UnknownTargetError{Names: append([]string(nil), names...)}
}

func (e *UnknownTargetError) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Names) == 1 {
		return fmt.Sprintf("unknown target %q", e.Names[0])
	}
	return fmt.Sprintf("unknown targets: %s", strings.Join(e.Names, " "))
}

// CycleError reports a dependency cycle between targets.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// ExecutionError represents a runtime failure while executing a target.
type ExecutionError struct {
	Target string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(target string, err error) error {
	return &ExecutionError{Target: target, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Target != "" {
		return fmt.Sprintf("execution error on target %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("execution error: %v", e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PluginError indicates issues within plugin registration or construction.
type PluginError struct {
	Plugin  string
	Message string
	Err     error
}

// NewPluginError constructs a PluginError for the given step type.
func NewPluginError(plugin string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &PluginError{Plugin: plugin, Message: message, Err: err}
}

func (e *PluginError) Error() string {
	if e == nil {
		return ""
	}
	if e.Plugin != "" {
		return fmt.Sprintf("plugin error [%s]: %s", e.Plugin, e.Message)
	}
	return fmt.Sprintf("plugin error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *PluginError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RunnerFault wraps an error returned (or a panic raised) by a step runner.
// It is contained at the runner boundary and turned into a failed step.
type RunnerFault struct {
	Runner string
	Cause  error
}

// NewRunnerFault constructs a RunnerFault.
func NewRunnerFault(runner string, cause error) error {
	return &RunnerFault{Runner: runner, Cause: cause}
}

func (e *RunnerFault) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("runner %s failed: %v", e.Runner, e.Cause)
}

// Unwrap exposes the cause.
func (e *RunnerFault) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
