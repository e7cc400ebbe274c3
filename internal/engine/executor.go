package engine

import (
	"context"
	"fmt"
	"time"

	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

// DefaultPollInterval is how often Execute releases pending events.
const DefaultPollInterval = 100 * time.Millisecond

// ExecuteOptions tunes the driver loop.
type ExecuteOptions struct {
	Sequential   bool
	PollInterval time.Duration
}

// Execute runs graph to completion, releasing every job's pending events to
// the processors as it goes and once more after the root settles. Ending ctx
// cancels the graph; Execute still waits for it to settle. It returns the
// root status and any engine invariant violation (see Graph.Err).
func Execute(ctx context.Context, graph *Graph, opts ExecuteOptions) (Status, error) {
	if graph == nil {
		return StatusCreated, runcierrors.NewExecutionError("", fmt.Errorf("graph is nil"))
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	log := graph.rc.log
	log.DebugFields("run starting", map[string]any{"sequential": opts.Sequential})

	// jobs are canceled through Graph.Cancel, never through ctx
	done := graph.Start(context.WithoutCancel(ctx), opts.Sequential)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	interrupt := ctx.Done()
	for {
		releaseAll(graph)

		select {
		case <-done:
			releaseAll(graph)
			status := graph.Status()
			log.DebugFields("run finished", map[string]any{"status": status.String()})
			return status, graph.Err()
		case <-interrupt:
			log.Info("run interrupted, canceling")
			graph.Cancel()
			interrupt = nil
		case <-ticker.C:
		}
	}
}

func releaseAll(graph *Graph) {
	for _, job := range graph.Jobs() {
		job.Release()
	}
}
