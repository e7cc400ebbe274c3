package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/logger"
	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

// Context is the per-invocation state: the project, the caller's parameters,
// the runner/listener/processor registries and the memoized job table.
//
// Registries are normally filled before the run starts. The job table grows
// during the run as well, because nested target invocation creates jobs on
// demand, so every accessor is guarded.
type Context struct {
	Project    *config.Project
	Parameters config.Parameters

	runID string
	log   *logger.Logger

	mu         sync.RWMutex
	targets    map[string]config.Target
	runners    map[string]RunnerFactory
	invokes    map[string]InvocationFunc
	listeners  map[event.Kind][]event.Handler
	processors map[event.Kind][]event.Handler
	jobs       map[string]*Job
	order      []*Job
}

// Option customises a Context.
type Option func(*Context)

// WithLogger sets the logger used by the engine.
func WithLogger(log *logger.Logger) Option {
	return func(rc *Context) {
		if log != nil {
			rc.log = log
		}
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(rc *Context) {
		if id != "" {
			rc.runID = id
		}
	}
}

// NewContext prepares a run over project. Target names must be unique.
// The built-in pause/resume listeners are registered before anything else.
func NewContext(project *config.Project, params config.Parameters, opts ...Option) (*Context, error) {
	if project == nil {
		return nil, runcierrors.NewValidationError("project", "project is nil", nil)
	}

	rc := &Context{
		Project:    project,
		Parameters: params,
		runID:      uuid.NewString(),
		targets:    make(map[string]config.Target, len(project.Targets)),
		runners:    make(map[string]RunnerFactory),
		invokes:    make(map[string]InvocationFunc),
		listeners:  make(map[event.Kind][]event.Handler),
		processors: make(map[event.Kind][]event.Handler),
		jobs:       make(map[string]*Job),
	}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.log == nil {
		rc.log = logger.Nop()
	}
	rc.log = rc.log.WithFields(map[string]any{"run_id": rc.runID})

	for _, target := range project.Targets {
		if _, exists := rc.targets[target.Name]; exists {
			return nil, runcierrors.NewValidationError(
				fmt.Sprintf("targets.%s.name", target.Name),
				fmt.Sprintf("duplicate target name %q", target.Name),
				nil,
			)
		}
		rc.targets[target.Name] = target
	}

	rc.AddListener(event.StepPause, rc.pauseOwner)
	rc.AddListener(event.StepResume, rc.resumeOwner)

	return rc, nil
}

// RunID identifies this invocation in logs.
func (rc *Context) RunID() string {
	return rc.runID
}

// RegisterRunner binds a step-type selector to a runner factory.
func (rc *Context) RegisterRunner(selector string, factory RunnerFactory) error {
	if selector == "" || factory == nil {
		return runcierrors.NewPluginError(selector, fmt.Errorf("selector and factory are required"))
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, exists := rc.runners[selector]; exists {
		return runcierrors.NewPluginError(selector, fmt.Errorf("runner already registered"))
	}
	rc.runners[selector] = factory
	rc.log.DebugFields("runner registered", map[string]any{"selector": selector})
	return nil
}

// InvocationFunc lists the targets a step of one type runs while executing.
type InvocationFunc func(spec config.Spec) []string

// RegisterInvocation declares that steps of selector run other targets. Build
// follows these edges when it looks for cycles.
func (rc *Context) RegisterInvocation(selector string, fn InvocationFunc) {
	if selector == "" || fn == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.invokes[selector] = fn
}

// invoked returns the targets step runs, nil for ordinary steps.
func (rc *Context) invoked(step config.Step) []string {
	rc.mu.RLock()
	fn, ok := rc.invokes[step.Type]
	rc.mu.RUnlock()
	if !ok {
		return nil
	}
	return fn(step.Spec)
}

// Runner resolves a factory by step type.
func (rc *Context) Runner(selector string) (RunnerFactory, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	factory, ok := rc.runners[selector]
	return factory, ok
}

// Selectors lists registered step types in sorted order.
func (rc *Context) Selectors() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]string, 0, len(rc.runners))
	for selector := range rc.runners {
		out = append(out, selector)
	}
	sort.Strings(out)
	return out
}

// AddListener registers a handler invoked synchronously when kind is emitted.
// Handlers run in registration order on the emitting goroutine; they must not
// block.
func (rc *Context) AddListener(kind event.Kind, handler event.Handler) {
	if handler == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.listeners[kind] = append(rc.listeners[kind], handler)
}

// AddProcessor registers a handler invoked when events of kind are released.
func (rc *Context) AddProcessor(kind event.Kind, handler event.Handler) {
	if handler == nil {
		return
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.processors[kind] = append(rc.processors[kind], handler)
}

// AddProcessorAll registers handler for every event kind.
func (rc *Context) AddProcessorAll(handler event.Handler) {
	for _, kind := range event.Kinds() {
		rc.AddProcessor(kind, handler)
	}
}

func (rc *Context) notify(ev event.Event) {
	rc.mu.RLock()
	handlers := append([]event.Handler(nil), rc.listeners[ev.Kind]...)
	rc.mu.RUnlock()

	for _, handler := range handlers {
		handler(ev)
	}
}

func (rc *Context) process(ev event.Event) {
	rc.mu.RLock()
	handlers := append([]event.Handler(nil), rc.processors[ev.Kind]...)
	rc.mu.RUnlock()

	for _, handler := range handlers {
		handler(ev)
	}
}

// Target returns the named target.
func (rc *Context) Target(name string) (config.Target, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	target, ok := rc.targets[name]
	if !ok {
		return config.Target{}, runcierrors.NewUnknownTargetError(name)
	}
	return target, nil
}

// Job returns the job for target, creating it on first reference.
func (rc *Context) Job(target config.Target) *Job {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if job, ok := rc.jobs[target.Name]; ok {
		return job
	}
	job := newJob(rc, target)
	rc.jobs[target.Name] = job
	rc.order = append(rc.order, job)
	return job
}

// JobFor looks up an existing job by target name.
func (rc *Context) JobFor(name string) (*Job, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	job, ok := rc.jobs[name]
	return job, ok
}

// Jobs lists the job table in creation order.
func (rc *Context) Jobs() []*Job {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return append([]*Job(nil), rc.order...)
}

func (rc *Context) pauseOwner(ev event.Event) {
	if job, ok := rc.JobFor(ev.Target); ok {
		job.Pause()
	}
}

func (rc *Context) resumeOwner(ev event.Event) {
	if job, ok := rc.JobFor(ev.Target); ok {
		job.Resume()
	}
}
