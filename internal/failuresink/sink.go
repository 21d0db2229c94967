// Package failuresink is the Failure Sink Actor of spec.md §4.6: invoked
// by the broker after a Worker Actor message exhausts its delivery
// attempts. Grounded in the teacher's FailRun path in
// WorkflowConsumer.executeStep (record failure, propagate no further).
package failuresink

import (
	"context"
	"fmt"

	"github.com/khaosresearch/dramax/internal/aggregator"
	"github.com/khaosresearch/dramax/internal/model"
	"github.com/khaosresearch/dramax/internal/state"
)

// Sink records a terminal delivery failure and triggers re-aggregation.
type Sink struct {
	store      *state.Store
	aggregator *aggregator.Aggregator
}

func New(store *state.Store, agg *aggregator.Aggregator) *Sink {
	return &Sink{store: store, aggregator: agg}
}

// Handle reads workflow_id/task_id from the message envelope, records the
// traceback as the task's result message, sets status to failure, and
// triggers workflow aggregation (spec.md §4.6).
func (s *Sink) Handle(ctx context.Context, msg model.Message, traceback string) error {
	result := model.Result{Message: traceback}

	if err := s.store.Tasks.UpdateStatus(ctx, msg.WorkflowID, msg.TaskID, model.TaskFailure, result); err != nil {
		return fmt.Errorf("failure sink: record failure for %s/%s: %w", msg.WorkflowID, msg.TaskID, err)
	}

	if err := s.aggregator.Run(ctx, msg.WorkflowID); err != nil {
		return fmt.Errorf("failure sink: aggregate %s: %w", msg.WorkflowID, err)
	}
	return nil
}
