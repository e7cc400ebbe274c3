package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Node is a vertex of the dependency graph. Nodes for the same target are
// shared, so a diamond dependency is one node reached twice.
type Node struct {
	Job          *Job
	Dependencies []*Node

	once sync.Once
	jobs []*Job
}

// Graph is the dependency graph built for the requested targets.
type Graph struct {
	rc   *Context
	root *Node
	// anonymous is set when several targets were requested and root aggregates them.
	anonymous bool

	startOnce sync.Once
	done      chan struct{}
	canceled  atomic.Bool
}

// Root returns the top node.
func (g *Graph) Root() *Node {
	return g.root
}

// Context returns the run context the graph was built from.
func (g *Graph) Context() *Context {
	return g.rc
}

// Nodes lists every node once, depth-first from the root in dependency order.
func (g *Graph) Nodes() []*Node {
	var out []*Node
	seen := make(map[*Node]bool)
	var walk func(*Node)
	walk = func(n *Node) {
		if seen[n] {
			return
		}
		seen[n] = true
		out = append(out, n)
		for _, dep := range n.Dependencies {
			walk(dep)
		}
	}
	walk(g.root)
	return out
}

// Jobs returns the job table in creation order, followed by the anonymous
// root when there is one. Nested invocation may add jobs while running.
func (g *Graph) Jobs() []*Job {
	jobs := g.rc.Jobs()
	if g.anonymous {
		jobs = append(jobs, g.root.Job)
	}
	return jobs
}

// Start runs the graph in the background and returns a channel closed once
// the root job has settled. Dependencies of a node run concurrently unless
// sequential is set, in which case they complete one at a time in
// declaration order. Only the first call has an effect.
func (g *Graph) Start(ctx context.Context, sequential bool) <-chan struct{} {
	g.startOnce.Do(func() {
		go func() {
			defer close(g.done)
			g.runNode(ctx, g.root, sequential)
		}()
	})
	return g.done
}

// Run starts the graph and waits for it.
func (g *Graph) Run(ctx context.Context, sequential bool) Status {
	<-g.Start(ctx, sequential)
	return g.Status()
}

// Status is the root job status.
func (g *Graph) Status() Status {
	return g.root.Job.Status()
}

// Cancel settles every unsettled job as CANCELED, including those not yet
// reached, and kills running steps.
func (g *Graph) Cancel() {
	g.canceled.Store(true)
	for _, job := range g.Jobs() {
		job.Cancel()
	}
}

// Err joins the engine invariant violations recorded by any job.
func (g *Graph) Err() error {
	var errs []error
	for _, job := range g.Jobs() {
		if err := job.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runNode settles n once and returns the jobs produced by its subtree,
// including n's own.
func (g *Graph) runNode(ctx context.Context, n *Node, sequential bool) []*Job {
	n.once.Do(func() {
		jobs := g.runDependencies(ctx, n, sequential)

		switch {
		case g.canceled.Load():
			n.Job.Cancel()
		case anyUnsuccessful(jobs):
			n.Job.Fail()
		default:
			n.Job.Start(ctx)
		}
		<-n.Job.Done()

		n.jobs = append(jobs, n.Job)
	})
	return n.jobs
}

func (g *Graph) runDependencies(ctx context.Context, n *Node, sequential bool) []*Job {
	results := make([][]*Job, len(n.Dependencies))

	if sequential {
		for i, dep := range n.Dependencies {
			results[i] = g.runNode(ctx, dep, true)
		}
	} else {
		var group errgroup.Group
		for i, dep := range n.Dependencies {
			i, dep := i, dep
			group.Go(func() error {
				results[i] = g.runNode(ctx, dep, false)
				return nil
			})
		}
		_ = group.Wait()
	}

	seen := make(map[*Job]bool)
	var jobs []*Job
	for _, batch := range results {
		for _, job := range batch {
			if !seen[job] {
				seen[job] = true
				jobs = append(jobs, job)
			}
		}
	}
	return jobs
}

func anyUnsuccessful(jobs []*Job) bool {
	for _, job := range jobs {
		switch job.Status() {
		case StatusFailed, StatusCanceled:
			return true
		}
	}
	return false
}
