package engine

import (
	"errors"

	"github.com/alexisbeaulieu97/runci/internal/config"
	runcierrors "github.com/alexisbeaulieu97/runci/pkg/errors"
)

// Build resolves the requested targets (default "default") into a graph,
// creating one memoized job per reachable target. When several targets are
// requested an anonymous root job with no steps depends on all of them; it is
// not part of the job table. Unknown target names and dependency cycles are
// reported before anything runs, including cycles that pass through steps
// running other targets (see Context.RegisterInvocation).
func Build(rc *Context) (*Graph, error) {
	if rc == nil {
		return nil, runcierrors.NewValidationError("context", "run context is nil", nil)
	}

	requested := rc.Parameters.RequestedTargets()

	var unknown []string
	for _, name := range requested {
		if _, err := rc.Target(name); err != nil {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, runcierrors.NewUnknownTargetError(unknown...)
	}

	if cycle := invocationCycle(rc, requested); len(cycle) > 0 {
		return nil, &runcierrors.CycleError{Cycle: cycle}
	}

	b := &builder{rc: rc, nodes: make(map[string]*Node), visiting: make(map[string]bool)}
	graph := &Graph{rc: rc, done: make(chan struct{})}

	if len(requested) == 1 {
		root, err := b.node(requested[0])
		if err != nil {
			return nil, err
		}
		graph.root = root
	} else {
		root := &Node{Job: newJob(rc, config.Target{})}
		for _, name := range requested {
			child, err := b.node(name)
			if err != nil {
				return nil, err
			}
			root.Dependencies = append(root.Dependencies, child)
		}
		graph.root = root
		graph.anonymous = true
	}

	rc.log.DebugFields("dependency graph built", map[string]any{
		"requested": requested,
		"nodes":     len(b.nodes),
	})
	return graph, nil
}

type builder struct {
	rc       *Context
	nodes    map[string]*Node
	visiting map[string]bool
	path     []string
}

func (b *builder) node(name string) (*Node, error) {
	if n, ok := b.nodes[name]; ok {
		return n, nil
	}
	if b.visiting[name] {
		cycle := append([]string{}, b.path[indexOf(b.path, name):]...)
		return nil, &runcierrors.CycleError{Cycle: append(cycle, name)}
	}

	target, err := b.rc.Target(name)
	if err != nil {
		var unknown *runcierrors.UnknownTargetError
		if errors.As(err, &unknown) && len(b.path) > 0 {
			return nil, runcierrors.NewValidationError(
				"targets."+b.path[len(b.path)-1]+".dependencies",
				"references unknown target \""+name+"\"",
				err,
			)
		}
		return nil, err
	}

	b.visiting[name] = true
	b.path = append(b.path, name)

	n := &Node{Job: b.rc.Job(target)}
	for _, dep := range target.Dependencies {
		child, err := b.node(dep)
		if err != nil {
			return nil, err
		}
		n.Dependencies = append(n.Dependencies, child)
	}

	b.path = b.path[:len(b.path)-1]
	b.visiting[name] = false
	b.nodes[name] = n
	return n, nil
}

// invocationCycle walks dependencies and invoked targets together from the
// requested names and returns the first cycle found. Unknown invoked names
// are left for the invoking step to report.
func invocationCycle(rc *Context, requested []string) []string {
	const (
		visiting = 1
		visited  = 2
	)
	state := make(map[string]int)
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		switch state[name] {
		case visiting:
			cycle := append([]string{}, path[indexOf(path, name):]...)
			return append(cycle, name)
		case visited:
			return nil
		}
		target, err := rc.Target(name)
		if err != nil {
			state[name] = visited
			return nil
		}

		state[name] = visiting
		path = append(path, name)
		edges := append([]string(nil), target.Dependencies...)
		for _, step := range target.Steps {
			edges = append(edges, rc.invoked(step)...)
		}
		for _, next := range edges {
			if cycle := visit(next); cycle != nil {
				return cycle
			}
		}
		path = path[:len(path)-1]
		state[name] = visited
		return nil
	}

	for _, name := range requested {
		if cycle := visit(name); cycle != nil {
			return cycle
		}
	}
	return nil
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}
