package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/runci/internal/config"
	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

func diamond() []config.Target {
	return []config.Target{
		target("base", nil, spyStep("b")),
		target("left", []string{"base"}, spyStep("l")),
		target("right", []string{"base"}, spyStep("r")),
		target("top", []string{"left", "right"}, spyStep("t")),
	}
}

func TestGraphRunsSharedDependencyOnce(t *testing.T) {
	t.Parallel()

	for _, sequential := range []bool{false, true} {
		rc, s := newTestContext(t, []string{"top"}, diamond()...)
		graph, err := Build(rc)
		require.NoError(t, err)

		require.Equal(t, StatusSucceeded, graph.Run(context.Background(), sequential))
		assert.Equal(t, 1, s.count("base/b"))
		assert.Equal(t, 1, s.count("top/t"))
		assert.Len(t, s.Calls(), 4)
		assert.Len(t, rc.Jobs(), 4)
		assert.Equal(t, "top/t", s.Calls()[3])
		assert.NoError(t, graph.Err())
	}
}

func TestGraphDependencyFailurePropagates(t *testing.T) {
	t.Parallel()

	rc, s := newTestContext(t, []string{"release"},
		target("build", nil, failingStep("compile")),
		target("lint", nil, spyStep("vet")),
		target("utests", []string{"build"}, spyStep("run")),
		target("release", []string{"utests", "lint"}, spyStep("publish")),
	)
	graph, err := Build(rc)
	require.NoError(t, err)

	require.Equal(t, StatusFailed, graph.Run(context.Background(), false))
	assert.Zero(t, s.count("utests/run"))
	assert.Zero(t, s.count("release/publish"))
	assert.Equal(t, 1, s.count("lint/vet"))

	utests, ok := rc.JobFor("utests")
	require.True(t, ok)
	assert.Equal(t, StatusFailed, utests.Status())
	assert.Equal(t, "job.failure", utests.Drain()[0].Kind.String())
}

func TestBuildRejectsUnknownTargets(t *testing.T) {
	t.Parallel()

	rc, s := newTestContext(t, []string{"build", "nope", "missing"}, target("build", nil, spyStep("x")))
	graph, err := Build(rc)
	require.Nil(t, graph)

	var unknown *runcierrors.UnknownTargetError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"nope", "missing"}, unknown.Names)
	assert.Empty(t, rc.Jobs())
	assert.Empty(t, s.Calls())
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	t.Parallel()

	rc, _ := newTestContext(t, []string{"build"}, target("build", []string{"ghost"}))
	_, err := Build(rc)

	var validation *runcierrors.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "targets.build.dependencies", validation.Field)

	var unknown *runcierrors.UnknownTargetError
	require.ErrorAs(t, err, &unknown)
}

func TestBuildDetectsCycles(t *testing.T) {
	t.Parallel()

	rc, _ := newTestContext(t, []string{"a"},
		target("a", []string{"b"}),
		target("b", []string{"c"}),
		target("c", []string{"a"}),
	)
	_, err := Build(rc)

	var cycle *runcierrors.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "c", "a"}, cycle.Cycle)
}

func TestBuildDetectsCyclesThroughInvokedTargets(t *testing.T) {
	t.Parallel()

	invoke := func(name string) config.Step {
		return config.NewStep("run "+name, "invoke", config.Spec{"target": name})
	}
	rc, _ := newTestContext(t, []string{"a"},
		target("a", nil, invoke("b")),
		target("b", nil, spyStep("prepare"), invoke("a")),
	)
	rc.RegisterInvocation("invoke", func(spec config.Spec) []string {
		return spec.Fields("target")
	})

	_, err := Build(rc)

	var cycle *runcierrors.CycleError
	require.ErrorAs(t, err, &cycle)
	assert.Equal(t, []string{"a", "b", "a"}, cycle.Cycle)
	assert.Empty(t, rc.Jobs())
}

func TestBuildIgnoresUnknownInvokedTargets(t *testing.T) {
	t.Parallel()

	rc, _ := newTestContext(t, []string{"a"},
		target("a", nil, config.NewStep("run", "invoke", config.Spec{"target": "ghost"})),
	)
	rc.RegisterInvocation("invoke", func(spec config.Spec) []string {
		return spec.Fields("target")
	})

	_, err := Build(rc)
	require.NoError(t, err)
}

func TestBuildDefaultsToDefaultTarget(t *testing.T) {
	t.Parallel()

	rc, s := newTestContext(t, nil, target(config.DefaultTarget, nil, spyStep("only")))
	graph, err := Build(rc)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultTarget, graph.Root().Job.Name())
	require.Equal(t, StatusSucceeded, graph.Run(context.Background(), false))
	assert.Equal(t, []string{"default/only"}, s.Calls())
}

func TestGraphMultipleTargetsUseAnonymousRoot(t *testing.T) {
	t.Parallel()

	rc, s := newTestContext(t, []string{"a", "b"},
		target("a", nil, spyStep("x")),
		target("b", nil, spyStep("y")),
	)
	graph, err := Build(rc)
	require.NoError(t, err)

	root := graph.Root()
	assert.Empty(t, root.Job.Name())
	assert.Len(t, root.Dependencies, 2)
	assert.Len(t, rc.Jobs(), 2)
	assert.Len(t, graph.Jobs(), 3)
	assert.Len(t, graph.Nodes(), 3)

	require.Equal(t, StatusSucceeded, graph.Run(context.Background(), false))
	assert.ElementsMatch(t, []string{"a/x", "b/y"}, s.Calls())
}

func TestGraphSequentialFollowsDeclarationOrder(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		rc, s := newTestContext(t, []string{"a", "b", "c"},
			target("a", nil, spyStep("1")),
			target("b", nil, spyStep("2")),
			target("c", nil, spyStep("3")),
		)
		graph, err := Build(rc)
		require.NoError(t, err)

		require.Equal(t, StatusSucceeded, graph.Run(context.Background(), true))
		require.Equal(t, []string{"a/1", "b/2", "c/3"}, s.Calls())
	}
}

func TestGraphCancelSettlesEverything(t *testing.T) {
	t.Parallel()

	rc, s := newTestContext(t, []string{"deploy"},
		target("build", nil, config.NewStep("wait", "block", nil)),
		target("deploy", []string{"build"}, spyStep("never")),
	)
	started := make(chan struct{})
	require.NoError(t, rc.RegisterRunner("block", blockingRunner(started)))

	graph, err := Build(rc)
	require.NoError(t, err)

	done := graph.Start(context.Background(), false)
	waitDone(t, started)
	graph.Cancel()
	waitDone(t, done)

	assert.Equal(t, StatusCanceled, graph.Status())
	for _, job := range rc.Jobs() {
		assert.Equal(t, StatusCanceled, job.Status(), job.Name())
	}
	assert.Empty(t, s.Calls())
}

func TestGraphErrJoinsUndeterminedOutcomes(t *testing.T) {
	t.Parallel()

	rc, _ := newTestContext(t, []string{"build"}, target("build", nil, config.NewStep("s", "odd", nil)))
	require.NoError(t, rc.RegisterRunner("odd", func(config.Spec) (Runner, error) {
		return RunnerFunc(func(context.Context, *Execution) error {
			return runcierrors.ErrUndeterminedOutcome
		}), nil
	}))

	graph, err := Build(rc)
	require.NoError(t, err)

	require.Equal(t, StatusFailed, graph.Run(context.Background(), false))
	require.True(t, errors.Is(graph.Err(), runcierrors.ErrUndeterminedOutcome))

	var execErr *runcierrors.ExecutionError
	require.ErrorAs(t, graph.Err(), &execErr)
	assert.Equal(t, "build", execErr.Target)
}
