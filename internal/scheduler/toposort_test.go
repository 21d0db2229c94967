package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khaosresearch/dramax/internal/model"
)

func task(id string, dependsOn ...string) model.Task {
	return model.Task{ID: id, Name: id, DependsOn: dependsOn}
}

// indexOf returns the position of id in the ordered task slice.
func indexOf(tasks []model.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func TestTopoSort_Linear(t *testing.T) {
	tasks := []model.Task{task("a"), task("b", "a"), task("c", "b")}
	out := topoSort(tasks)
	require.Len(t, out, 3)
	assert.Less(t, indexOf(out, "a"), indexOf(out, "b"))
	assert.Less(t, indexOf(out, "b"), indexOf(out, "c"))
}

func TestTopoSort_Diamond(t *testing.T) {
	// a -> b, a -> c, b -> d, c -> d
	tasks := []model.Task{
		task("a"),
		task("b", "a"),
		task("c", "a"),
		task("d", "b", "c"),
	}
	out := topoSort(tasks)
	require.Len(t, out, 4)
	assert.Less(t, indexOf(out, "a"), indexOf(out, "b"))
	assert.Less(t, indexOf(out, "a"), indexOf(out, "c"))
	assert.Less(t, indexOf(out, "b"), indexOf(out, "d"))
	assert.Less(t, indexOf(out, "c"), indexOf(out, "d"))
}

func TestTopoSort_DisconnectedRoots(t *testing.T) {
	tasks := []model.Task{task("a"), task("b"), task("c", "a")}
	out := topoSort(tasks)
	require.Len(t, out, 3)
	assert.Less(t, indexOf(out, "a"), indexOf(out, "c"))
}

func TestTopoSort_DanglingDependencyIsDropped(t *testing.T) {
	// "a" depends on "ghost", which does not exist among the submitted
	// tasks: "a" is neither a root nor reachable from one, so it is absent
	// from the output. Scheduler.Submit (never topoSort itself) is what
	// turns this into a MissingTasks error — Workflow.Validate rejects the
	// dangling reference before topoSort ever runs in the real pipeline.
	tasks := []model.Task{task("a", "ghost"), task("b")}
	out := topoSort(tasks)
	assert.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}

func TestTopoSort_EmptyInput(t *testing.T) {
	assert.Empty(t, topoSort(nil))
}
