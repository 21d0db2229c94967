// Package worker is the Worker Actor of spec.md §4.2: consumes a message
// carrying a serialised task, re-verifies upstream readiness, and invokes
// the Task Runner. Grounded in the teacher's WorkflowConsumer
// (handleMessage/executeStep pair in
// internal/workflows/runtime/consumer.go): same per-message context
// timeout, same "parse, record start, execute, record outcome" shape, new
// domain semantics (task-DAG readiness instead of a step state machine).
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/khaosresearch/dramax/internal/aggregator"
	"github.com/khaosresearch/dramax/internal/broker"
	"github.com/khaosresearch/dramax/internal/logging"
	"github.com/khaosresearch/dramax/internal/model"
	"github.com/khaosresearch/dramax/internal/runner"
	"github.com/khaosresearch/dramax/internal/state"
)

// messageTimeout bounds one task execution's context to 30 minutes, modeled
// on the per-message timeout in the teacher's WorkflowConsumer.handleMessage
// (which uses 5 minutes).
const messageTimeout = 30 * time.Minute

// Actor invokes the Task Runner for each broker message, honoring the
// upstream check and cleanup options of spec.md §4.2.
type Actor struct {
	store      *state.Store
	broker     *broker.Broker
	runner     *runner.Runner
	aggregator *aggregator.Aggregator
	backoff    Backoff
	dataDir    string
}

func New(store *state.Store, br *broker.Broker, rn *runner.Runner, agg *aggregator.Aggregator, backoff Backoff, dataDir string) *Actor {
	return &Actor{store: store, broker: br, runner: rn, aggregator: agg, backoff: backoff, dataDir: dataDir}
}

// HandleMessage implements broker.Handler. It is the single entry point
// invoked once per delivered message.
func (a *Actor) HandleMessage(ctx context.Context, data []byte, delivered int) error {
	ctx, cancel := context.WithTimeout(ctx, messageTimeout)
	defer cancel()

	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parse message payload: %w", err)
	}

	logCtx := logging.With("message_id", uuid.NewString(), "task_id", msg.TaskID, "workflow_id", msg.WorkflowID)
	logCtx.Info("worker: received task (delivery %d)", delivered)

	outcome, failedDep, err := runner.CheckUpstream(ctx, a.store.Tasks, msg.WorkflowID, msg.Task)
	if err != nil {
		logCtx.Error("worker: upstream check failed: %v", err)
		return err
	}

	switch outcome {
	case model.OutcomeDeferred:
		return a.defer_(ctx, logCtx, msg)
	case model.OutcomeUpstreamFailed:
		return a.failUpstream(ctx, logCtx, msg, failedDep)
	case model.OutcomeProceed:
		return a.proceed(ctx, logCtx, msg)
	default:
		return fmt.Errorf("worker: unknown outcome %v", outcome)
	}
}

func (a *Actor) defer_(ctx context.Context, logCtx logging.Context, msg model.Message) error {
	logCtx.Info("worker: deferring, upstream not yet settled")

	if delay := a.backoff.Delay(msg.DeferCount); delay > 0 {
		time.Sleep(delay)
	}

	msg.DeferCount++

	queue := msg.Queue
	if queue == "" {
		queue = msg.Task.Options.QueueName
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal deferred task: %w", err)
	}
	if err := a.broker.Publish(ctx, queue, data); err != nil {
		return fmt.Errorf("re-enqueue deferred task: %w", err)
	}
	return nil
}

func (a *Actor) failUpstream(ctx context.Context, logCtx logging.Context, msg model.Message, failedDep string) error {
	logCtx.Error("worker: upstream dependency %s failed", failedDep)

	result := model.Result{Message: fmt.Sprintf("upstream dependency %q failed", failedDep)}
	if err := a.store.Tasks.UpdateStatus(ctx, msg.WorkflowID, msg.TaskID, model.TaskFailure, result); err != nil {
		return fmt.Errorf("record upstream failure: %w", err)
	}
	if err := a.aggregator.Run(ctx, msg.WorkflowID); err != nil {
		logCtx.Error("worker: aggregation failed: %v", err)
	}
	return fmt.Errorf("upstream dependency %q failed for task %q", failedDep, msg.TaskID)
}

func (a *Actor) proceed(ctx context.Context, logCtx logging.Context, msg model.Message) error {
	if err := a.store.Tasks.UpdateStatus(ctx, msg.WorkflowID, msg.TaskID, model.TaskRunning, model.Result{}); err != nil {
		return fmt.Errorf("mark task running: %w", err)
	}
	if err := a.aggregator.Run(ctx, msg.WorkflowID); err != nil {
		logCtx.Error("worker: aggregation failed: %v", err)
	}

	author := msg.Task.Metadata["author"]
	if author == "" {
		author = "anonymous"
	}
	workdir := filepath.Join(a.dataDir, author, msg.WorkflowID, msg.TaskID)

	logText, err := a.runner.Run(ctx, author, msg.WorkflowID, msg.Task, workdir)

	if err != nil {
		// Per spec.md §7 "Propagation policy", the Worker Actor does not
		// catch or record artifact/executor errors itself: it lets the
		// broker route the error to the Failure Sink, which performs the
		// single authoritative `failure` write once redelivery is
		// exhausted. Writing `failure` here too would let a redelivered
		// message re-enter proceed and overwrite it back to `running`,
		// violating "no task record transitions out of failure" (§8).
		logCtx.Error("worker: task failed: %v", err)
		a.cleanup(logCtx, msg.Task.Options, workdir, false)
		return err
	}

	result := model.Result{Log: logText}
	if err := a.store.Tasks.UpdateStatus(ctx, msg.WorkflowID, msg.TaskID, model.TaskSuccess, result); err != nil {
		return fmt.Errorf("record task success: %w", err)
	}
	if err := a.aggregator.Run(ctx, msg.WorkflowID); err != nil {
		logCtx.Error("worker: aggregation failed: %v", err)
	}

	a.cleanup(logCtx, msg.Task.Options, workdir, true)
	logCtx.Info("worker: task succeeded")
	return nil
}

// cleanup resolves the Open Question spec.md §9 left unanswered: both
// on_fail_remove_local_dir and on_finish_remove_local_dir are consulted
// here, one per terminal outcome (SPEC_FULL.md §9, item 4).
func (a *Actor) cleanup(logCtx logging.Context, opts model.Options, workdir string, succeeded bool) {
	remove := opts.OnFinishRemoveLocalDir
	if !succeeded {
		remove = opts.OnFailRemoveLocalDir
	}
	if !remove {
		return
	}
	if err := os.RemoveAll(workdir); err != nil {
		logCtx.Error("worker: failed to remove working directory %s: %v", workdir, err)
	}
}
