package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/logger"
	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

// Job executes one target's steps at most once per Context.
//
// Lifecycle and step events are appended to the job's own queue. Listeners
// registered on the Context fire synchronously when an event is emitted;
// processors fire later, when the queue is released. Once the job reaches a
// terminal status nothing more is queued, so a drained queue always ends with
// exactly one of Success, Failure or Canceled.
type Job struct {
	rc     *Context
	target config.Target
	log    *logger.Logger

	events *event.Queue
	done   chan struct{}
	once   sync.Once

	mu      sync.Mutex
	status  Status
	started bool
	cancel  context.CancelFunc
	err     error
}

func newJob(rc *Context, target config.Target) *Job {
	return &Job{
		rc:     rc,
		target: target,
		log:    rc.log.WithFields(map[string]any{"target": target.Name}),
		events: event.NewQueue(),
		done:   make(chan struct{}),
	}
}

// Target returns the target this job executes.
func (j *Job) Target() config.Target {
	return j.target
}

// Name is the target name, empty for the anonymous root.
func (j *Job) Name() string {
	return j.target.Name
}

// Status returns the current lifecycle state.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Done is closed once the job has settled and its step loop, if any, has exited.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the engine invariant violation captured while running a step, if any.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Start launches the step loop the first time it is called and returns the
// completion channel. Later calls, and calls after Fail or Cancel, return the
// same channel without running anything.
func (j *Job) Start(ctx context.Context) <-chan struct{} {
	j.mu.Lock()
	if j.status != StatusCreated {
		j.mu.Unlock()
		return j.done
	}
	runCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.started = true
	j.status = StatusStarted
	ev := event.New(event.Start, j.target.Name)
	j.events.Push(ev)
	j.mu.Unlock()

	j.log.Debug("job started")
	j.rc.notify(ev)

	go j.run(runCtx, cancel)
	return j.done
}

// Wait blocks until the job settles or ctx ends.
func (j *Job) Wait(ctx context.Context) (Status, error) {
	select {
	case <-j.done:
		return j.Status(), nil
	case <-ctx.Done():
		return j.Status(), ctx.Err()
	}
}

// Fail marks a job that never started as FAILED because one of its
// dependencies did not succeed. It reports whether the transition happened.
func (j *Job) Fail() bool {
	if !j.transition(StatusFailed, event.Failure, func(s Status) bool { return s == StatusCreated }) {
		return false
	}
	j.log.Debug("job failed before starting: dependency did not succeed")
	return true
}

// Pause surfaces a step blocked on nested jobs. STARTED → PAUSED.
func (j *Job) Pause() bool {
	return j.transition(StatusPaused, event.Pause, func(s Status) bool { return s == StatusStarted })
}

// Resume reverts Pause. PAUSED → STARTED.
func (j *Job) Resume() bool {
	return j.transition(StatusStarted, event.Resume, func(s Status) bool { return s == StatusPaused })
}

// Cancel settles the job as CANCELED. A running step has its context
// canceled; subprocesses it spawned are killed.
func (j *Job) Cancel() bool {
	ok := j.transition(StatusCanceled, event.Canceled, func(s Status) bool { return !s.Terminal() })
	if !ok {
		return false
	}

	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	j.log.Debug("job canceled")
	return true
}

// HasEvents reports whether undrained events are pending.
func (j *Job) HasEvents() bool {
	return j.events.Len() > 0
}

// Drain removes and returns the pending events without dispatching them.
func (j *Job) Drain() []event.Event {
	return j.events.Drain()
}

// Release drains pending events into the Context's processors.
func (j *Job) Release() int {
	events := j.events.Drain()
	for _, ev := range events {
		j.rc.process(ev)
	}
	return len(events)
}

// Follow hands every event to fn as it arrives until the job has settled and
// its queue is empty, or ctx ends.
func (j *Job) Follow(ctx context.Context, fn event.Handler) error {
	waitCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-j.done:
		case <-waitCtx.Done():
		}
		stop()
	}()

	for {
		for _, ev := range j.events.Drain() {
			fn(ev)
		}

		select {
		case <-j.done:
			if j.events.Len() == 0 {
				return nil
			}
			continue
		default:
		}

		if err := j.events.Wait(waitCtx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (j *Job) run(ctx context.Context, cancel context.CancelFunc) {
	defer j.closeDone()
	defer cancel()

	for _, step := range j.target.Steps {
		if ctx.Err() != nil {
			break
		}
		if !j.runStep(ctx, step) {
			j.finish(StatusFailed, event.Failure)
			return
		}
	}

	if ctx.Err() != nil {
		j.finish(StatusCanceled, event.Canceled)
		return
	}
	j.finish(StatusSucceeded, event.Success)
}

// runStep reports whether the loop may continue with the next step.
func (j *Job) runStep(ctx context.Context, step config.Step) bool {
	log := j.log.WithFields(map[string]any{"step": step.Name, "type": step.Type})
	j.emit(event.NewStep(event.StepStart, j.target.Name, step.Name))

	factory, ok := j.rc.Runner(step.Type)
	if !ok {
		log.Debug("no runner registered for step type")
		j.emit(event.NewStep(event.StepUnknownType, j.target.Name, step.Name))
		j.emit(event.NewMessage(j.target.Name, step.Name, event.Stderr, "Unknown step type: "+step.Type))
		return false
	}

	exec := newExecution(j, step)
	var err error
	runner, factoryErr := factory(step.Spec)
	if factoryErr != nil {
		err = exec.fault(runcierrors.NewPluginError(step.Type, factoryErr))
	} else {
		err = exec.Run(ctx, runner)
	}

	if errors.Is(err, runcierrors.ErrUndeterminedOutcome) {
		j.mu.Lock()
		j.err = errors.Join(j.err, runcierrors.NewExecutionError(j.target.Name, err))
		j.mu.Unlock()
	}

	if ctx.Err() != nil {
		// canceled mid-step: the caller settles the job without more step events
		return true
	}

	if exec.Status() == RunnerSucceeded {
		j.emit(event.NewStep(event.StepSuccess, j.target.Name, step.Name))
		log.Debug("step succeeded")
		return true
	}

	j.emit(event.NewStep(event.StepFailure, j.target.Name, step.Name))
	log.DebugFields("step failed", map[string]any{"runner_status": exec.Status().String()})
	return false
}

// emit queues a non-terminal event unless the job has already settled.
func (j *Job) emit(ev event.Event) bool {
	j.mu.Lock()
	if j.status.Terminal() {
		j.mu.Unlock()
		return false
	}
	j.events.Push(ev)
	j.mu.Unlock()

	j.rc.notify(ev)
	return true
}

// finish settles a running job. It is a no-op if Cancel got there first.
func (j *Job) finish(status Status, kind event.Kind) {
	if j.transition(status, kind, Status.active) {
		j.log.DebugFields("job finished", map[string]any{"status": status.String()})
	}
}

// transition moves to next if allowed(current) and queues kind in the same
// critical section, so an observer that sees a terminal status also finds the
// terminal event queued (or already drained).
func (j *Job) transition(next Status, kind event.Kind, allowed func(Status) bool) bool {
	j.mu.Lock()
	if !allowed(j.status) {
		j.mu.Unlock()
		return false
	}
	j.status = next
	ev := event.New(kind, j.target.Name)
	j.events.Push(ev)
	closeNow := next.Terminal() && !j.started
	j.mu.Unlock()

	if closeNow {
		j.closeDone()
	}
	j.rc.notify(ev)
	return true
}

func (j *Job) closeDone() {
	j.once.Do(func() { close(j.done) })
}
