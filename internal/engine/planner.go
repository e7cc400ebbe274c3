package engine

import (
	"fmt"
	"sort"
	"strings"
)

// ExecutionPlan groups the graph's targets into levels: every target depends
// only on targets of earlier levels. It describes what a run would do; the
// scheduler itself does not wait for whole levels.
type ExecutionPlan struct {
	Levels []ExecutionLevel
}

// ExecutionLevel is a set of targets that may run in parallel.
type ExecutionLevel struct {
	Targets []string
}

// GeneratePlan computes the plan with Kahn's algorithm. The anonymous root
// is left out.
func GeneratePlan(graph *Graph) (*ExecutionPlan, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph cannot be nil")
	}

	nodes := graph.Nodes()
	indegree := make(map[*Node]int, len(nodes))
	dependents := make(map[*Node][]*Node, len(nodes))
	for _, n := range nodes {
		indegree[n] += 0
		for _, dep := range n.Dependencies {
			indegree[n]++
			dependents[dep] = append(dependents[dep], n)
		}
	}

	var queue []*Node
	for _, n := range nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	processed := 0
	var levels []ExecutionLevel
	for len(queue) > 0 {
		var names []string
		var next []*Node
		for _, n := range queue {
			processed++
			if n.Job.Name() != "" {
				names = append(names, n.Job.Name())
			}
			for _, dependent := range dependents[n] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		if len(names) > 0 {
			sort.Strings(names)
			levels = append(levels, ExecutionLevel{Targets: names})
		}
		queue = next
	}

	if processed != len(nodes) {
		return nil, fmt.Errorf("cycle detected while sorting graph")
	}

	return &ExecutionPlan{Levels: levels}, nil
}

// String renders a human readable summary of the plan.
func (p *ExecutionPlan) String() string {
	if p == nil {
		return ""
	}

	var b strings.Builder
	for i, level := range p.Levels {
		fmt.Fprintf(&b, "Level %d (%d targets): %s\n", i, len(level.Targets), strings.Join(level.Targets, ", "))
	}
	return b.String()
}
