// Package aggregator is the Workflow State Aggregator of spec.md §4.7: a
// pure rule-table function over a workflow's task statuses, plus a thin
// Run method that loads, derives, and upserts. Grounded in the teacher's
// preference for small pure derivation functions next to their stateful
// callers (e.g. StepStatus-to-run-status mapping in
// internal/workflows/runtime/consumer.go's executeStep switch), generalized
// here into a standalone rule table since spec.md spells one out literally.
package aggregator

import (
	"context"
	"fmt"

	"github.com/khaosresearch/dramax/internal/model"
	"github.com/khaosresearch/dramax/internal/state"
)

// Aggregator recomputes and persists workflow status after every task
// transition.
type Aggregator struct {
	store *state.Store
}

func New(store *state.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Run loads the workflow and its tasks, derives the new status, and
// upserts it. Safe to call concurrently: last write wins, since Derive is
// a pure function of state read at call time (spec.md §4.7).
func (a *Aggregator) Run(ctx context.Context, workflowID string) error {
	wf, err := a.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("aggregate %s: load workflow: %w", workflowID, err)
	}

	tasks, err := a.store.Tasks.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("aggregate %s: load tasks: %w", workflowID, err)
	}

	status := Derive(wf, tasks)

	if err := a.store.Workflows.UpdateStatus(ctx, workflowID, status); err != nil {
		return fmt.Errorf("aggregate %s: update status: %w", workflowID, err)
	}
	return nil
}

// Derive evaluates the rule table of spec.md §4.7 top-to-bottom, first
// match wins. A workflow with zero tasks is special-cased to `pending`:
// "all tasks success" is vacuously true over the empty set and would
// otherwise wrongly read as `success` (resolved Open Question, see
// SPEC_FULL.md §9).
func Derive(wf model.WorkflowRecord, tasks []model.TaskRecord) model.WorkflowStatus {
	if wf.Revoked {
		return model.WorkflowRevoked
	}

	if len(tasks) == 0 {
		return model.WorkflowPending
	}

	var success, pending, running, failure int
	for _, t := range tasks {
		switch t.Status {
		case model.TaskSuccess:
			success++
		case model.TaskPending:
			pending++
		case model.TaskRunning:
			running++
		case model.TaskFailure:
			failure++
		}
	}
	n := len(tasks)

	switch {
	case success == n:
		return model.WorkflowSuccess
	case pending == n:
		return model.WorkflowPending
	case failure > 0:
		return model.WorkflowFailure
	case pending > 0:
		return model.WorkflowPending
	case running > 0:
		return model.WorkflowRunning
	default:
		return model.WorkflowPending
	}
}
