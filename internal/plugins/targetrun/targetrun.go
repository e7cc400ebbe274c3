// Package targetrun lets a step run other targets of the same pipeline.
package targetrun

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

// Selector is the step type served by this plugin.
const Selector = "target-run"

// New returns the plugin for the bootstrap list.
func New() plugin.Plugin {
	return plugin.Plugin{
		Metadata: plugin.Metadata{
			Name:        Selector,
			Version:     "1.0.0",
			Description: "Runs other targets and waits for them.",
		},
		Factory: Factory,
		Invokes: Targets,
	}
}

// Targets returns the names listed under "target" or the scalar shorthand.
func Targets(spec config.Spec) []string {
	return spec.Fields("target", config.ScalarKey)
}

// Factory reads the target list from "target" or the scalar shorthand.
func Factory(spec config.Spec) (engine.Runner, error) {
	names := Targets(spec)
	if len(names) == 0 {
		return nil, errors.New("target should be specified for target-run step")
	}
	return &runner{names: names}, nil
}

type runner struct {
	names []string
}

// RunInternal starts the targets' jobs, which are shared with the rest of
// the run, and pauses the owning job until all of them settle. The nested
// jobs do not inherit the step's cancellation: canceling only the owning job
// stops the wait, and the nested jobs settle through Graph.Cancel.
func (r *runner) RunInternal(ctx context.Context, exec *engine.Execution) error {
	exec.Messagef(event.Stdout, "Running the following targets: %s", strings.Join(r.names, " "))

	rc := exec.Context()
	jobs := make([]*engine.Job, 0, len(r.names))
	for _, name := range r.names {
		if name == exec.Target().Name {
			return fmt.Errorf("target %q cannot run itself", name)
		}
		target, err := rc.Target(name)
		if err != nil {
			return err
		}
		jobs = append(jobs, rc.Job(target))
	}

	exec.SetStatus(engine.RunnerPaused)
	exec.Emit(event.StepPause)
	for _, job := range jobs {
		job.Start(context.WithoutCancel(ctx))
	}
	for _, job := range jobs {
		if _, err := job.Wait(ctx); err != nil {
			return err
		}
	}
	exec.SetStatus(engine.RunnerStarted)
	exec.Emit(event.StepResume)

	statuses := make([]engine.Status, 0, len(jobs))
	for _, job := range jobs {
		statuses = append(statuses, job.Status())
	}
	outcome, err := Outcome(statuses)
	if err != nil {
		return err
	}
	exec.SetStatus(outcome)
	return nil
}

// Outcome reduces the nested jobs' statuses: any FAILED wins, then any
// CANCELED, then all SUCCEEDED. Anything else means a job reported done
// without settling, which is reported as errors.ErrUndeterminedOutcome.
func Outcome(statuses []engine.Status) (engine.RunnerStatus, error) {
	has := func(want engine.Status) bool {
		for _, s := range statuses {
			if s == want {
				return true
			}
		}
		return false
	}

	switch {
	case has(engine.StatusFailed):
		return engine.RunnerFailed, nil
	case has(engine.StatusCanceled):
		return engine.RunnerCanceled, nil
	}
	for _, s := range statuses {
		if s != engine.StatusSucceeded {
			return engine.RunnerFailed, fmt.Errorf("target-run has encountered inconsistent target results (%s): %w", s, runcierrors.ErrUndeterminedOutcome)
		}
	}
	return engine.RunnerSucceeded, nil
}
