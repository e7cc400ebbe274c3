package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/event"
)

func TestJobRunsStepsInOrder(t *testing.T) {
	t.Parallel()

	build := target("build", nil, spyStep("compile"), spyStep("package"))
	rc, s := newTestContext(t, nil, build)
	job := rc.Job(build)

	waitDone(t, job.Start(context.Background()))

	require.Equal(t, StatusSucceeded, job.Status())
	require.Equal(t, []string{"build/compile", "build/package"}, s.Calls())

	events := job.Drain()
	require.Equal(t, []event.Kind{
		event.Start,
		event.StepStart, event.Message, event.StepSuccess,
		event.StepStart, event.Message, event.StepSuccess,
		event.Success,
	}, kinds(events))
	require.Equal(t, []string{"Starting spy runner", "Starting spy runner"}, messages(events, event.Stdout))
	require.Equal(t, "compile", events[1].Step)

	require.False(t, job.HasEvents())
	require.Empty(t, job.Drain())
}

func TestJobStartIsIdempotent(t *testing.T) {
	t.Parallel()

	build := target("build", nil, spyStep("once"))
	rc, s := newTestContext(t, nil, build)
	job := rc.Job(build)

	var wg sync.WaitGroup
	channels := make([]<-chan struct{}, 16)
	for i := range channels {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			channels[i] = job.Start(context.Background())
		}(i)
	}
	wg.Wait()

	for _, ch := range channels {
		waitDone(t, ch)
	}
	require.Equal(t, 1, s.count("build/once"))

	waitDone(t, job.Start(context.Background()))
	require.Equal(t, 1, s.count("build/once"))
}

func TestJobUnknownStepType(t *testing.T) {
	t.Parallel()

	build := target("build", nil, config.NewStep("mystery", "nope", nil), spyStep("never"))
	rc, s := newTestContext(t, nil, build)
	job := rc.Job(build)

	waitDone(t, job.Start(context.Background()))

	require.Equal(t, StatusFailed, job.Status())
	require.Empty(t, s.Calls())

	events := job.Drain()
	require.Equal(t, []event.Kind{event.Start, event.StepStart, event.StepUnknownType, event.Message, event.Failure}, kinds(events))
	require.Equal(t, []string{"Unknown step type: nope"}, messages(events, event.Stderr))
}

func TestJobStepFailureStopsTarget(t *testing.T) {
	t.Parallel()

	build := target("build", nil, failingStep("broken"), spyStep("after"))
	rc, s := newTestContext(t, nil, build)
	job := rc.Job(build)

	waitDone(t, job.Start(context.Background()))

	require.Equal(t, StatusFailed, job.Status())
	require.Equal(t, []string{"build/broken"}, s.Calls())
	require.Equal(t, []event.Kind{event.Start, event.StepStart, event.Message, event.StepFailure, event.Failure}, kinds(job.Drain()))
}

func TestJobContainsRunnerFaults(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		runner RunnerFunc
		detail string
	}{
		{
			name:   "returned error",
			runner: func(context.Context, *Execution) error { return errors.New("boom") },
			detail: "boom",
		},
		{
			name:   "panic",
			runner: func(context.Context, *Execution) error { panic("kaboom") },
			detail: "panic: kaboom",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			build := target("build", nil, config.NewStep("s", "faulty", nil))
			rc, _ := newTestContext(t, nil, build)
			require.NoError(t, rc.RegisterRunner("faulty", func(config.Spec) (Runner, error) { return tc.runner, nil }))

			job := rc.Job(build)
			waitDone(t, job.Start(context.Background()))

			require.Equal(t, StatusFailed, job.Status())
			require.NoError(t, job.Err())

			events := job.Drain()
			stderr := messages(events, event.Stderr)
			require.NotEmpty(t, stderr)
			require.Equal(t, "Runner faulty failed:", stderr[0])
			require.Equal(t, tc.detail, stderr[1])
			require.Equal(t, event.StepFailure, events[len(events)-2].Kind)
			require.Equal(t, event.Failure, events[len(events)-1].Kind)
		})
	}
}

func TestJobFactoryErrorFailsStep(t *testing.T) {
	t.Parallel()

	build := target("build", nil, config.NewStep("s", "picky", nil))
	rc, _ := newTestContext(t, nil, build)
	require.NoError(t, rc.RegisterRunner("picky", func(config.Spec) (Runner, error) {
		return nil, errors.New("image is required")
	}))

	job := rc.Job(build)
	waitDone(t, job.Start(context.Background()))

	require.Equal(t, StatusFailed, job.Status())
	events := job.Drain()
	require.Contains(t, messages(events, event.Stderr), "plugin error [picky]: image is required")
	require.Equal(t, event.Failure, events[len(events)-1].Kind)
}

func TestJobFailOnlyFromCreated(t *testing.T) {
	t.Parallel()

	build := target("build", nil, spyStep("never"))
	rc, s := newTestContext(t, nil, build)
	job := rc.Job(build)

	require.True(t, job.Fail())
	require.False(t, job.Fail())
	waitDone(t, job.Done())

	waitDone(t, job.Start(context.Background()))
	require.Equal(t, StatusFailed, job.Status())
	require.Empty(t, s.Calls())
	require.Equal(t, []event.Kind{event.Failure}, kinds(job.Drain()))
}

func TestJobCancelBeforeStart(t *testing.T) {
	t.Parallel()

	build := target("build", nil, spyStep("never"))
	rc, s := newTestContext(t, nil, build)
	job := rc.Job(build)

	require.True(t, job.Cancel())
	require.False(t, job.Cancel())
	waitDone(t, job.Start(context.Background()))

	require.Equal(t, StatusCanceled, job.Status())
	require.Empty(t, s.Calls())
	require.Equal(t, []event.Kind{event.Canceled}, kinds(job.Drain()))
}

func TestJobCancelWhileRunning(t *testing.T) {
	t.Parallel()

	build := target("build", nil, config.NewStep("wait", "block", nil), spyStep("never"))
	rc, s := newTestContext(t, nil, build)
	started := make(chan struct{})
	require.NoError(t, rc.RegisterRunner("block", blockingRunner(started)))

	job := rc.Job(build)
	done := job.Start(context.Background())
	waitDone(t, started)

	require.True(t, job.Cancel())
	waitDone(t, done)

	require.Equal(t, StatusCanceled, job.Status())
	require.Empty(t, s.Calls())

	events := job.Drain()
	require.Equal(t, event.Canceled, events[len(events)-1].Kind)
	terminal := 0
	for _, ev := range events {
		require.NotEqual(t, event.StepFailure, ev.Kind)
		if ev.Kind.Terminal() {
			terminal++
		}
	}
	require.Equal(t, 1, terminal)
}

func TestJobParentContextEndsAsCanceled(t *testing.T) {
	t.Parallel()

	build := target("build", nil, config.NewStep("wait", "block", nil))
	rc, _ := newTestContext(t, nil, build)
	started := make(chan struct{})
	require.NoError(t, rc.RegisterRunner("block", blockingRunner(started)))

	ctx, cancel := context.WithCancel(context.Background())
	job := rc.Job(build)
	done := job.Start(ctx)
	waitDone(t, started)
	cancel()
	waitDone(t, done)

	require.Equal(t, StatusCanceled, job.Status())
	events := job.Drain()
	require.Equal(t, event.Canceled, events[len(events)-1].Kind)
}

func TestJobPauseResumeThroughListeners(t *testing.T) {
	t.Parallel()

	build := target("build", nil, config.NewStep("nested", "pauser", nil))
	rc, _ := newTestContext(t, nil, build)

	var seenWhilePaused Status
	require.NoError(t, rc.RegisterRunner("pauser", func(config.Spec) (Runner, error) {
		return RunnerFunc(func(ctx context.Context, exec *Execution) error {
			exec.Emit(event.StepPause)
			seenWhilePaused = exec.Job().Status()
			exec.Emit(event.StepResume)
			return nil
		}), nil
	}))

	job := rc.Job(build)
	waitDone(t, job.Start(context.Background()))

	require.Equal(t, StatusPaused, seenWhilePaused)
	require.Equal(t, StatusSucceeded, job.Status())
	require.Equal(t, []event.Kind{
		event.Start, event.StepStart, event.Message,
		event.StepPause, event.Pause, event.StepResume, event.Resume,
		event.StepSuccess, event.Success,
	}, kinds(job.Drain()))
}

func TestJobPauseRequiresStarted(t *testing.T) {
	t.Parallel()

	build := target("build", nil)
	rc, _ := newTestContext(t, nil, build)
	job := rc.Job(build)

	require.False(t, job.Pause())
	require.False(t, job.Resume())
	require.Equal(t, StatusCreated, job.Status())
}

func TestJobFollowDeliversEverything(t *testing.T) {
	t.Parallel()

	build := target("build", nil, spyStep("a"), spyStep("b"))
	rc, _ := newTestContext(t, nil, build)
	job := rc.Job(build)

	var got []event.Event
	followed := make(chan error, 1)
	go func() {
		followed <- job.Follow(context.Background(), func(ev event.Event) { got = append(got, ev) })
	}()

	job.Start(context.Background())
	require.NoError(t, <-followed)

	require.Len(t, got, 8)
	require.Equal(t, event.Success, got[len(got)-1].Kind)
	require.False(t, job.HasEvents())
}

func TestJobFollowStopsWithContext(t *testing.T) {
	t.Parallel()

	build := target("build", nil)
	rc, _ := newTestContext(t, nil, build)
	job := rc.Job(build)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, job.Follow(ctx, func(event.Event) {}), context.Canceled)
}

func TestListenersFireAtEmissionInOrder(t *testing.T) {
	t.Parallel()

	build := target("build", nil, spyStep("a"))
	rc, _ := newTestContext(t, nil, build)

	var order []string
	var mu sync.Mutex
	record := func(tag string) event.Handler {
		return func(ev event.Event) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, tag+":"+ev.Kind.String())
		}
	}
	rc.AddListener(event.Start, record("first"))
	rc.AddListener(event.Start, record("second"))
	rc.AddListener(event.Start, record("first"))

	var processed atomic.Int32
	rc.AddProcessorAll(func(event.Event) { processed.Add(1) })

	job := rc.Job(build)
	waitDone(t, job.Start(context.Background()))

	mu.Lock()
	assert.Equal(t, []string{"first:job.start", "second:job.start", "first:job.start"}, order)
	mu.Unlock()

	assert.Zero(t, processed.Load())
	assert.Equal(t, 5, job.Release())
	assert.EqualValues(t, 5, processed.Load())
	assert.Zero(t, job.Release())
}
