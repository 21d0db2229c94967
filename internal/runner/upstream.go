package runner

import (
	"context"
	"fmt"

	"github.com/khaosresearch/dramax/internal/model"
	"github.com/khaosresearch/dramax/internal/state"
)

// CheckUpstream implements spec.md §4.4: examine the persisted status of
// each sibling listed in task.DependsOn and report the worker's next
// outcome. Tasks with no dependencies return OutcomeProceed immediately.
func CheckUpstream(ctx context.Context, tasks *state.TaskRepo, workflowID string, task model.Task) (model.Outcome, string, error) {
	if len(task.DependsOn) == 0 {
		return model.OutcomeProceed, "", nil
	}

	var pending []string
	for _, depID := range task.DependsOn {
		dep, err := tasks.Get(ctx, workflowID, depID)
		if err != nil {
			return model.OutcomeDeferred, "", fmt.Errorf("fetch dependency %s: %w", depID, err)
		}

		switch dep.Status {
		case model.TaskFailure:
			return model.OutcomeUpstreamFailed, depID, nil
		case model.TaskPending, model.TaskRunning:
			pending = append(pending, depID)
		}
	}

	if len(pending) > 0 {
		return model.OutcomeDeferred, pending[0], nil
	}

	return model.OutcomeProceed, "", nil
}
