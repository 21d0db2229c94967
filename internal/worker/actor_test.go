package worker

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/khaosresearch/dramax/internal/aggregator"
	"github.com/khaosresearch/dramax/internal/broker"
	"github.com/khaosresearch/dramax/internal/db"
	"github.com/khaosresearch/dramax/internal/executor"
	"github.com/khaosresearch/dramax/internal/model"
	"github.com/khaosresearch/dramax/internal/runner"
	"github.com/khaosresearch/dramax/internal/state"
)

// fakeArtifactStore is an in-memory artifact.Store double, avoiding any real
// S3 endpoint for these worker-level tests.
type fakeArtifactStore struct{ objects map[string][]byte }

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{objects: map[string][]byte{}}
}

func (f *fakeArtifactStore) EnsureBucket(ctx context.Context) error { return nil }

func (f *fakeArtifactStore) FGetObject(ctx context.Context, objectName, filePath string) error {
	data, ok := f.objects[objectName]
	if !ok {
		return os.ErrNotExist
	}
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(filePath, data, 0644)
}

func (f *fakeArtifactStore) FPutObject(ctx context.Context, objectName, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	f.objects[objectName] = data
	return nil
}

func (f *fakeArtifactStore) PutReader(ctx context.Context, objectName string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[objectName] = data
	return nil
}

// scriptedExecutor returns a canned log/error and, on success, writes any
// declared outputs so the Task Runner's upload phase has something to find.
type scriptedExecutor struct {
	log string
	err error
}

func (e *scriptedExecutor) Execute(ctx context.Context, task model.Task, workdir string) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	for _, out := range task.Outputs {
		path := filepath.Join(workdir, out.Path)
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", err
			}
		}
		if err := os.WriteFile(path, []byte("produced"), 0644); err != nil {
			return "", err
		}
	}
	return e.log, nil
}

type testHarness struct {
	store *state.Store
	agg   *aggregator.Aggregator
	actor *Actor
	br    *broker.Broker
}

func newHarness(t *testing.T, exec executor.Executor) *testHarness {
	t.Helper()

	testDB, err := db.NewTest(t)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testDB.Close() })

	store := state.New(testDB)
	agg := aggregator.New(store)

	reg := executor.NewRegistry()
	reg.Register(model.ExecutorContainer, exec)
	rn := runner.New(newFakeArtifactStore(), reg, nil)

	br, err := broker.Connect(broker.Config{Embedded: true})
	require.NoError(t, err)
	t.Cleanup(br.Close)

	dataDir := t.TempDir()
	actor := New(store, br, rn, agg, NewBackoff(time.Millisecond, time.Millisecond), dataDir)

	return &testHarness{store: store, agg: agg, actor: actor, br: br}
}

func insertWorkflowAndTask(t *testing.T, h *testHarness, workflowID string, task model.Task) {
	t.Helper()
	ctx := context.Background()
	_, err := h.store.Workflows.Insert(ctx, model.Workflow{ID: workflowID, Metadata: model.Metadata{"author": "alice"}})
	require.NoError(t, err)
	_, err = h.store.Tasks.Insert(ctx, workflowID, task)
	require.NoError(t, err)
}

func containerTask(id string, dependsOn ...string) model.Task {
	return model.Task{
		ID:   id,
		Name: id,
		Executor: model.Executor{
			Kind:      model.ExecutorContainer,
			Container: &model.ContainerSpec{Image: "busybox"},
		},
		DependsOn: dependsOn,
		Options:   model.DefaultOptions(),
		Metadata:  map[string]string{"author": "alice"},
	}
}

func TestActor_HandleMessage_SucceedsWithoutDependencies(t *testing.T) {
	h := newHarness(t, &scriptedExecutor{log: "hello"})
	task := containerTask("t1")
	insertWorkflowAndTask(t, h, "wf-1", task)

	msg := model.Message{Task: task, WorkflowID: "wf-1", TaskID: "t1", Queue: "default"}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	err = h.actor.HandleMessage(context.Background(), data, 1)
	require.NoError(t, err)

	rec, err := h.store.Tasks.Get(context.Background(), "wf-1", "t1")
	require.NoError(t, err)
	require.Equal(t, model.TaskSuccess, rec.Status)
	require.Equal(t, "hello", rec.Result.Log)

	wf, err := h.store.Workflows.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Equal(t, model.WorkflowSuccess, wf.Status)
}

// TestActor_HandleMessage_ExecutorFailurePropagatesWithoutRecordingFailure
// covers the Worker Actor's side of the error-propagation policy (spec.md
// §7): it must not write the `failure` status itself on a runner error,
// since the broker will redeliver the returned error and only the Failure
// Sink performs the single authoritative failure write, once redelivery is
// exhausted. The task stays `running` (set before the runner call) until
// then.
func TestActor_HandleMessage_ExecutorFailurePropagatesWithoutRecordingFailure(t *testing.T) {
	h := newHarness(t, &scriptedExecutor{err: context.DeadlineExceeded})
	task := containerTask("t1")
	insertWorkflowAndTask(t, h, "wf-1", task)

	msg := model.Message{Task: task, WorkflowID: "wf-1", TaskID: "t1", Queue: "default"}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	err = h.actor.HandleMessage(context.Background(), data, 1)
	require.Error(t, err)

	rec, err := h.store.Tasks.Get(context.Background(), "wf-1", "t1")
	require.NoError(t, err)
	require.Equal(t, model.TaskRunning, rec.Status, "the worker must leave the failure write to the Failure Sink")

	wf, err := h.store.Workflows.Get(context.Background(), "wf-1")
	require.NoError(t, err)
	require.Equal(t, model.WorkflowRunning, wf.Status)
}

func TestActor_HandleMessage_DefersWhenUpstreamPending(t *testing.T) {
	h := newHarness(t, &scriptedExecutor{log: "ran"})

	a := containerTask("a")
	b := containerTask("b", "a")
	ctx := context.Background()
	_, err := h.store.Workflows.Insert(ctx, model.Workflow{ID: "wf-1", Metadata: model.Metadata{"author": "alice"}})
	require.NoError(t, err)
	_, err = h.store.Tasks.Insert(ctx, "wf-1", a)
	require.NoError(t, err)
	_, err = h.store.Tasks.Insert(ctx, "wf-1", b)
	require.NoError(t, err)

	msg := model.Message{Task: b, WorkflowID: "wf-1", TaskID: "b", Queue: "default"}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	err = h.actor.HandleMessage(ctx, data, 1)
	require.NoError(t, err, "a deferred message must not surface as an error")

	rec, err := h.store.Tasks.Get(ctx, "wf-1", "b")
	require.NoError(t, err)
	require.Equal(t, model.TaskPending, rec.Status, "b should still be pending, not yet run")
}

func TestActor_Defer_IncrementsDeferCountAcrossRepublish(t *testing.T) {
	h := newHarness(t, &scriptedExecutor{log: "ran"})

	a := containerTask("a")
	b := containerTask("b", "a")
	ctx := context.Background()
	_, err := h.store.Workflows.Insert(ctx, model.Workflow{ID: "wf-1", Metadata: model.Metadata{"author": "alice"}})
	require.NoError(t, err)
	_, err = h.store.Tasks.Insert(ctx, "wf-1", a)
	require.NoError(t, err)
	_, err = h.store.Tasks.Insert(ctx, "wf-1", b)
	require.NoError(t, err)

	msg := model.Message{Task: b, WorkflowID: "wf-1", TaskID: "b", Queue: "default"}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	err = h.actor.HandleMessage(ctx, data, 1)
	require.NoError(t, err, "a deferred message must not surface as an error")

	// Reading back the republished message verifies DeferCount travels in
	// the payload rather than relying on the broker's own redelivery count,
	// which resets to 1 every time defer_ acks and republishes (see
	// model.Message.DeferCount).
	received := make(chan model.Message, 1)
	consumer, err := h.br.Subscribe(ctx, "default", "defer-count-test", 1, 5,
		func(ctx context.Context, data []byte, delivered int) error {
			var got model.Message
			if err := json.Unmarshal(data, &got); err == nil {
				select {
				case received <- got:
				default:
				}
			}
			return nil
		}, nil)
	require.NoError(t, err)
	defer consumer.Stop()

	select {
	case got := <-received:
		require.Equal(t, 1, got.DeferCount, "defer_ must increment DeferCount before republishing")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for republished message")
	}
}

func TestActor_HandleMessage_UpstreamFailurePropagatesAsFailure(t *testing.T) {
	h := newHarness(t, &scriptedExecutor{log: "ran"})

	a := containerTask("a")
	b := containerTask("b", "a")
	ctx := context.Background()
	_, err := h.store.Workflows.Insert(ctx, model.Workflow{ID: "wf-1", Metadata: model.Metadata{"author": "alice"}})
	require.NoError(t, err)
	_, err = h.store.Tasks.Insert(ctx, "wf-1", a)
	require.NoError(t, err)
	require.NoError(t, h.store.Tasks.UpdateStatus(ctx, "wf-1", "a", model.TaskFailure, model.Result{Message: "boom"}))
	_, err = h.store.Tasks.Insert(ctx, "wf-1", b)
	require.NoError(t, err)

	msg := model.Message{Task: b, WorkflowID: "wf-1", TaskID: "b", Queue: "default"}
	data, err := json.Marshal(msg)
	require.NoError(t, err)

	err = h.actor.HandleMessage(ctx, data, 1)
	require.Error(t, err)

	rec, err := h.store.Tasks.Get(ctx, "wf-1", "b")
	require.NoError(t, err)
	require.Equal(t, model.TaskFailure, rec.Status)
	require.Contains(t, rec.Result.Message, "a")
}
