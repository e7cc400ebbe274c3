package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/logger"
	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

// Runner performs the action of one step type.
//
// RunInternal reports output through exec and signals failure either by
// returning an error or by setting the execution status to RunnerFailed.
// Returned errors and panics are contained by Execution.Run.
type Runner interface {
	RunInternal(ctx context.Context, exec *Execution) error
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context, exec *Execution) error

// RunInternal calls f.
func (f RunnerFunc) RunInternal(ctx context.Context, exec *Execution) error {
	return f(ctx, exec)
}

// RunnerFactory builds a runner for one step spec; it may reject the spec.
type RunnerFactory func(spec config.Spec) (Runner, error)

// Execution is the state shared by a runner and the job running it.
type Execution struct {
	rc   *Context
	job  *Job
	step config.Step
	log  *logger.Logger

	mu     sync.Mutex
	status RunnerStatus
}

func newExecution(job *Job, step config.Step) *Execution {
	return &Execution{
		rc:   job.rc,
		job:  job,
		step: step,
		log:  job.log.WithFields(map[string]any{"step": step.Name, "type": step.Type}),
	}
}

// Run drives runner through its lifecycle. The returned error is the
// *errors.RunnerFault describing a contained failure, if any; the step outcome
// itself is read from Status.
func (e *Execution) Run(ctx context.Context, runner Runner) error {
	e.SetStatus(RunnerStarted)
	e.Messagef(event.Stdout, "Starting %s runner", e.step.Type)

	if err := e.invoke(ctx, runner); err != nil {
		return e.fault(err)
	}

	e.succeedIfStarted()
	return nil
}

func (e *Execution) invoke(ctx context.Context, runner Runner) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return runner.RunInternal(ctx, e)
}

// fault records cause as a contained runner failure.
func (e *Execution) fault(cause error) error {
	fault := runcierrors.NewRunnerFault(e.step.Type, cause)
	e.Messagef(event.Stderr, "Runner %s failed:", e.step.Type)
	for _, line := range strings.Split(strings.TrimRight(cause.Error(), "\n"), "\n") {
		e.Message(event.Stderr, line)
	}
	e.SetStatus(RunnerFailed)
	e.log.Error(cause, "runner failed")
	return fault
}

// Message emits one line of output on the given channel.
func (e *Execution) Message(channel event.Channel, line string) {
	e.job.emit(event.NewMessage(e.job.Name(), e.step.Name, channel, line))
}

// Messagef formats and emits one line of output.
func (e *Execution) Messagef(channel event.Channel, format string, args ...any) {
	e.Message(channel, fmt.Sprintf(format, args...))
}

// Emit emits a step-scoped lifecycle event, e.g. StepPause.
func (e *Execution) Emit(kind event.Kind) {
	e.job.emit(event.NewStep(kind, e.job.Name(), e.step.Name))
}

// SetStatus overrides the runner status.
func (e *Execution) SetStatus(status RunnerStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = status
}

// Status returns the runner status.
func (e *Execution) Status() RunnerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// succeedIfStarted moves STARTED to SUCCEEDED and leaves anything else alone.
func (e *Execution) succeedIfStarted() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == RunnerStarted {
		e.status = RunnerSucceeded
	}
}

// Spec returns the step spec; never nil.
func (e *Execution) Spec() config.Spec {
	if e.step.Spec == nil {
		return config.Spec{}
	}
	return e.step.Spec
}

// Context returns the run context.
func (e *Execution) Context() *Context {
	return e.rc
}

// Job returns the job running this step.
func (e *Execution) Job() *Job {
	return e.job
}

// Target returns the owning target.
func (e *Execution) Target() config.Target {
	return e.job.Target()
}

// Step returns the step being run.
func (e *Execution) Step() config.Step {
	return e.step
}

// Logger returns a logger scoped to the target and step.
func (e *Execution) Logger() *logger.Logger {
	return e.log
}
