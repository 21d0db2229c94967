package scheduler

import "github.com/khaosresearch/dramax/internal/model"

// topoSort implements spec.md §4.1: build the dependency graph with an
// edge dependency -> dependent for every entry in a task's DependsOn,
// then perform an iterative DFS emitting nodes in post-order and reverse
// to get a valid linear extension. Roots are tasks with empty DependsOn.
// Roots, and each task's dependents, are visited in submission order, so
// the result is deterministic for a given list; because the post-order is
// reversed, it does not keep submission order among independent tasks (for
// [a, b] with no edges the result is [b, a]).
func topoSort(tasks []model.Task) []model.Task {
	index := make(map[string]int, len(tasks))
	for i, t := range tasks {
		index[t.ID] = i
	}

	// adjacency[d] holds the indices of tasks that declare d as a dependency,
	// in submission order.
	adjacency := make([][]int, len(tasks))
	var roots []int
	for i, t := range tasks {
		if len(t.DependsOn) == 0 {
			roots = append(roots, i)
		}
		for _, depID := range t.DependsOn {
			if depIdx, ok := index[depID]; ok {
				adjacency[depIdx] = append(adjacency[depIdx], i)
			}
		}
	}

	visited := make([]bool, len(tasks))
	var postorder []int

	for _, root := range roots {
		if visited[root] {
			continue
		}
		dfs(root, adjacency, visited, &postorder)
	}

	out := make([]model.Task, len(postorder))
	for i, idx := range postorder {
		out[len(postorder)-1-i] = tasks[idx]
	}
	return out
}

// frame is one entry of the explicit DFS stack: the node plus how many of
// its children have already been pushed.
type frame struct {
	node     int
	children int
}

func dfs(start int, adjacency [][]int, visited []bool, postorder *[]int) {
	stack := []frame{{node: start}}
	visited[start] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		children := adjacency[top.node]

		if top.children < len(children) {
			child := children[top.children]
			top.children++
			if !visited[child] {
				visited[child] = true
				stack = append(stack, frame{node: child})
			}
			continue
		}

		*postorder = append(*postorder, top.node)
		stack = stack[:len(stack)-1]
	}
}
