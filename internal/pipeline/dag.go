package pipeline

import "fmt"

// ValidateChain checks that the chain's tasks form a valid DAG:
// no out-of-range indices, no self-references, and no cycles.
func ValidateChain(c Chain) error {
	n := len(c.Tasks)
	for i, task := range c.Tasks {
		for _, dep := range task.Context {
			if dep < 0 || dep >= n {
				return fmt.Errorf("task %d: context index %d out of range [0, %d)", i, dep, n)
			}
			if dep == i {
				return fmt.Errorf("task %d: self-dependency", i)
			}
		}
	}

	// Detect cycles using DFS with coloring.
	const (
		white = 0 // Not visited.
		gray  = 1 // In current path.
		black = 2 // Fully processed.
	)
	colors := make([]int, n)

	var dfs func(node int) error
	dfs = func(node int) error {
		colors[node] = gray
		for _, dep := range c.Tasks[node].Context {
			switch colors[dep] {
			case gray:
				return fmt.Errorf("cycle detected involving tasks %d and %d", node, dep)
			case white:
				if err := dfs(dep); err != nil {
					return err
				}
			}
		}
		colors[node] = black
		return nil
	}

	for i := range c.Tasks {
		if colors[i] == white {
			if err := dfs(i); err != nil {
				return err
			}
		}
	}

	return nil
}

// TopologicalOrder returns task indices in an execution order where every
// task comes after all of its context dependencies. Ties are broken by
// chain position, so a strictly linear chain executes in declaration order.
func TopologicalOrder(c Chain) ([]int, error) {
	if err := ValidateChain(c); err != nil {
		return nil, err
	}

	n := len(c.Tasks)
	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i, task := range c.Tasks {
		indegree[i] = len(task.Context)
		for _, dep := range task.Context {
			dependents[dep] = append(dependents[dep], i)
		}
	}

	var order []int
	ready := make([]bool, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !ready[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, fmt.Errorf("no ready task among %d remaining", n-len(order))
		}
		ready[next] = true
		order = append(order, next)
		for _, d := range dependents[next] {
			indegree[d]--
		}
	}

	return order, nil
}
