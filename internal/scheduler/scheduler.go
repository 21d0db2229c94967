// Package scheduler is the Scheduler component of spec.md §4.1:
// topologically orders a workflow's tasks, persists workflow and task
// records, and publishes one broker message per task. Grounded in the
// dependency-graph walk the teacher's workflow translation layer performs
// before dispatch (internal/workflows, since deleted after grounding — see
// DESIGN.md), generalized from a step graph to the task DAG of this engine.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/khaosresearch/dramax/internal/broker"
	"github.com/khaosresearch/dramax/internal/dramaxerr"
	"github.com/khaosresearch/dramax/internal/model"
	"github.com/khaosresearch/dramax/internal/state"
)

const defaultQueue = "default"

// Scheduler admits a workflow submission.
type Scheduler struct {
	store  *state.Store
	broker *broker.Broker
}

func New(store *state.Store, br *broker.Broker) *Scheduler {
	return &Scheduler{store: store, broker: br}
}

// Submit validates, persists, and enqueues a workflow per spec.md §4.1.
func (s *Scheduler) Submit(ctx context.Context, wf model.Workflow) (model.WorkflowRecord, error) {
	if wf.ID == "" {
		wf.ID = "workflow-" + ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
	}

	if err := wf.Validate(); err != nil {
		return model.WorkflowRecord{}, &dramaxerr.InvalidWorkflow{Cause: err}
	}

	ordered := topoSort(wf.Tasks)
	if len(ordered) != len(wf.Tasks) {
		return model.WorkflowRecord{}, &dramaxerr.MissingTasks{Want: len(wf.Tasks), Got: len(ordered)}
	}

	rec, err := s.store.Workflows.Insert(ctx, wf)
	if err != nil {
		return model.WorkflowRecord{}, fmt.Errorf("persist workflow %s: %w", wf.ID, err)
	}

	for _, t := range ordered {
		if err := s.enqueue(ctx, wf, t); err != nil {
			return rec, err
		}
	}

	return rec, nil
}

func (s *Scheduler) enqueue(ctx context.Context, wf model.Workflow, t model.Task) error {
	if _, err := s.store.Tasks.Insert(ctx, wf.ID, t); err != nil {
		return fmt.Errorf("persist task %s: %w", t.ID, err)
	}

	queue := t.Options.QueueName
	if queue == "" {
		queue = defaultQueue
	}

	msg := model.Message{Task: t, WorkflowID: wf.ID, TaskID: t.ID, Queue: queue}
	msg.Task.Metadata = mergeMetadata(wf.Metadata, t.Metadata)

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message for task %s: %w", t.ID, err)
	}

	if err := s.broker.Publish(ctx, queue, data); err != nil {
		return fmt.Errorf("publish task %s: %w", t.ID, err)
	}
	return nil
}

// mergeMetadata propagates workflow metadata into a task's own metadata per
// spec.md §3/§4.1, with task-level keys winning on conflict. "author" is
// guaranteed to resolve even when neither side sets it explicitly.
func mergeMetadata(wfMeta, taskMeta model.Metadata) map[string]string {
	merged := make(map[string]string, len(wfMeta)+len(taskMeta))
	for k, v := range wfMeta {
		merged[k] = v
	}
	for k, v := range taskMeta {
		merged[k] = v
	}
	if _, ok := merged["author"]; !ok {
		merged["author"] = wfMeta.Author()
	}
	return merged
}
