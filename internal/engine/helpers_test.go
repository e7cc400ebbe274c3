package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/runci/internal/config"
	"github.com/alexisbeaulieu97/runci/internal/event"
)

// spy records every step it runs as "target/step". A step whose spec has
// fail: true reports failure through the runner status.
type spy struct {
	mu    sync.Mutex
	calls []string
}

func (s *spy) factory(spec config.Spec) (Runner, error) {
	return RunnerFunc(func(ctx context.Context, exec *Execution) error {
		s.mu.Lock()
		s.calls = append(s.calls, exec.Target().Name+"/"+exec.Step().Name)
		s.mu.Unlock()
		if spec.Bool("fail") {
			exec.SetStatus(RunnerFailed)
		}
		return nil
	}), nil
}

func (s *spy) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *spy) count(call string) int {
	n := 0
	for _, c := range s.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func spyStep(name string) config.Step {
	return config.NewStep(name, "spy", nil)
}

func failingStep(name string) config.Step {
	return config.NewStep(name, "spy", config.Spec{"fail": true})
}

func target(name string, deps []string, steps ...config.Step) config.Target {
	return config.Target{Name: name, Dependencies: deps, Steps: steps}
}

func newTestContext(t *testing.T, requested []string, targets ...config.Target) (*Context, *spy) {
	t.Helper()

	rc, err := NewContext(&config.Project{Targets: targets}, config.Parameters{Targets: requested})
	require.NoError(t, err)

	s := &spy{}
	require.NoError(t, rc.RegisterRunner("spy", s.factory))
	return rc, s
}

func kinds(events []event.Event) []event.Kind {
	out := make([]event.Kind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func messages(events []event.Event, channel event.Channel) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == event.Message && ev.Channel == channel {
			out = append(out, ev.Payload)
		}
	}
	return out
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

// blockingRunner signals started and then blocks until its context ends.
func blockingRunner(started chan<- struct{}) RunnerFactory {
	return func(config.Spec) (Runner, error) {
		return RunnerFunc(func(ctx context.Context, exec *Execution) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}), nil
	}
}
