// Package plugintest runs plugins through a real engine for tests.
package plugintest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/engine"
	"github.com/alexisbeaulieu97/runci/internal/event"
	"github.com/alexisbeaulieu97/runci/internal/plugin"
)

// Timeout bounds every Run.
const Timeout = 30 * time.Second

// Result is the outcome of running one target.
type Result struct {
	Context *engine.Context
	Job     *engine.Job
	Status  engine.Status
	Events  []event.Event
}

// Stdout returns the payloads of stdout messages.
func (r Result) Stdout() []string {
	return r.messages(event.Stdout)
}

// Stderr returns the payloads of stderr messages.
func (r Result) Stderr() []string {
	return r.messages(event.Stderr)
}

// Kinds returns the event kinds in emission order.
func (r Result) Kinds() []event.Kind {
	out := make([]event.Kind, 0, len(r.Events))
	for _, ev := range r.Events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r Result) messages(channel event.Channel) []string {
	var out []string
	for _, ev := range r.Events {
		if ev.Kind == event.Message && ev.Channel == channel {
			out = append(out, ev.Payload)
		}
	}
	return out
}

// RunStep runs a single step in a one-target project with the given plugins
// installed.
func RunStep(t *testing.T, step config.Step, plugins ...plugin.Plugin) Result {
	t.Helper()
	project := &config.Project{Targets: []config.Target{{Name: "test", Steps: []config.Step{step}}}}
	return RunTarget(t, project, config.Parameters{}, "test", plugins...)
}

// RunTarget starts the named target's job directly and waits for it.
func RunTarget(t *testing.T, project *config.Project, params config.Parameters, name string, plugins ...plugin.Plugin) Result {
	t.Helper()

	rc, err := engine.NewContext(project, params)
	require.NoError(t, err)
	require.NoError(t, plugin.Install(rc, plugins...))

	target, err := rc.Target(name)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), Timeout)
	defer cancel()

	job := rc.Job(target)
	job.Start(ctx)
	status, err := job.Wait(ctx)
	require.NoError(t, err, "target %q did not settle", name)

	return Result{Context: rc, Job: job, Status: status, Events: job.Drain()}
}
