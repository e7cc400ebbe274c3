package config

// detectCycle returns the targets participating in a dependency cycle, closed
// by repeating the first name, or nil if the graph is acyclic. Dependencies on
// undeclared targets are ignored here. Traversal follows declaration order so
// the reported cycle is deterministic.
func detectCycle(targets []Target) []string {
	graph := make(map[string][]string, len(targets))
	for _, target := range targets {
		graph[target.Name] = target.Dependencies
	}

	visiting := make(map[string]bool, len(targets))
	visited := make(map[string]bool, len(targets))
	var stack []string

	var cycle []string
	var dfs func(string) bool
	dfs = func(node string) bool {
		visiting[node] = true
		stack = append(stack, node)

		for _, dep := range graph[node] {
			if _, declared := graph[dep]; !declared || visited[dep] {
				continue
			}
			if visiting[dep] {
				if idx := indexOf(stack, dep); idx >= 0 {
					cycle = append([]string{}, stack[idx:]...)
					cycle = append(cycle, dep)
				}
				return true
			}
			if dfs(dep) {
				return true
			}
		}

		visiting[node] = false
		visited[node] = true
		stack = stack[:len(stack)-1]
		return false
	}

	for _, target := range targets {
		if visited[target.Name] {
			continue
		}
		if dfs(target.Name) {
			break
		}
	}

	return cycle
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}
