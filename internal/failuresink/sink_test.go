package failuresink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/khaosresearch/dramax/internal/aggregator"
	"github.com/khaosresearch/dramax/internal/db"
	"github.com/khaosresearch/dramax/internal/model"
	"github.com/khaosresearch/dramax/internal/state"
)

func TestSink_Handle_RecordsFailureAndAggregates(t *testing.T) {
	ctx := context.Background()

	testDB, err := db.NewTest(t)
	require.NoError(t, err)
	defer testDB.Close()

	store := state.New(testDB)
	agg := aggregator.New(store)
	sink := New(store, agg)

	_, err = store.Workflows.Insert(ctx, model.Workflow{ID: "wf-1", Metadata: model.Metadata{"author": "alice"}})
	require.NoError(t, err)

	task := model.Task{
		ID:   "t1",
		Name: "t1",
		Executor: model.Executor{
			Kind:      model.ExecutorContainer,
			Container: &model.ContainerSpec{Image: "busybox"},
		},
	}
	_, err = store.Tasks.Insert(ctx, "wf-1", task)
	require.NoError(t, err)

	msg := model.Message{WorkflowID: "wf-1", TaskID: "t1"}
	err = sink.Handle(ctx, msg, "panic: exit status 137\ngoroutine 1 [running]:\n...")
	require.NoError(t, err)

	rec, err := store.Tasks.Get(ctx, "wf-1", "t1")
	require.NoError(t, err)
	require.Equal(t, model.TaskFailure, rec.Status)
	require.Contains(t, rec.Result.Message, "exit status 137")

	wf, err := store.Workflows.Get(ctx, "wf-1")
	require.NoError(t, err)
	require.Equal(t, model.WorkflowFailure, wf.Status)
}
