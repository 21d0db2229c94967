// Package executor is the Executors component of spec.md §4.5: a tagged
// union of Container and HTTP task runners dispatched through a small
// Registry, grounded in the teacher's ExecutorRegistry
// (station/internal/workflows/runtime/executor.go) but keyed on
// model.ExecutorKind rather than a step-type string, since this engine has
// exactly two variants fixed by the task's Executor field instead of an
// open step-type catalogue.
package executor

import (
	"context"
	"fmt"

	"github.com/khaosresearch/dramax/internal/model"
)

// Executor runs one task to completion inside workdir and returns the
// combined log text, or an error classified per spec.md §7. The full task
// is passed (not just its Executor spec) since the HTTP executor's
// multipart mode attaches the task's declared input artifacts.
type Executor interface {
	Execute(ctx context.Context, task model.Task, workdir string) (string, error)
}

// Registry dispatches to the Executor registered for a given kind.
type Registry struct {
	executors map[model.ExecutorKind]Executor
}

func NewRegistry() *Registry {
	return &Registry{executors: make(map[model.ExecutorKind]Executor)}
}

func (r *Registry) Register(kind model.ExecutorKind, e Executor) {
	r.executors[kind] = e
}

// Execute dispatches task to its registered Executor. Returns
// model.ErrInvalidExecutor if the task's executor spec fails validation or
// no Executor is registered for its kind.
func (r *Registry) Execute(ctx context.Context, task model.Task, workdir string) (string, error) {
	if err := task.Executor.Validate(); err != nil {
		return "", err
	}
	e, ok := r.executors[task.Executor.Kind]
	if !ok {
		return "", fmt.Errorf("%w: no executor registered for kind %q", model.ErrInvalidExecutor, task.Executor.Kind)
	}
	return e.Execute(ctx, task, workdir)
}
