package runner

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/khaosresearch/dramax/internal/dramaxerr"
	"github.com/khaosresearch/dramax/internal/executor"
	"github.com/khaosresearch/dramax/internal/model"
)

// fakeStore is an in-memory artifact.Store double keyed by object name,
// standing in for the S3-backed implementation in these pure-logic tests.
type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore { return &fakeStore{objects: map[string][]byte{}} }

func (f *fakeStore) EnsureBucket(ctx context.Context) error { return nil }

func (f *fakeStore) FGetObject(ctx context.Context, objectName, filePath string) error {
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

func (f *fakeStore) FPutObject(ctx context.Context, objectName, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	f.objects[objectName] = data
	return nil
}

func (f *fakeStore) PutReader(ctx context.Context, objectName string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[objectName] = data
	return nil
}

// fakeExecutor returns a canned log and error for every task it executes.
type fakeExecutor struct {
	log string
	err error
}

func (e *fakeExecutor) Execute(ctx context.Context, task model.Task, workdir string) (string, error) {
	return e.log, e.err
}

func newRunnerWithExecutor(store *fakeStore, exec executor.Executor) *Runner {
	reg := executor.NewRegistry()
	reg.Register(model.ExecutorContainer, exec)
	return New(store, reg, nil)
}

func TestRunner_Run_DownloadsInputsAndUploadsOutputs(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.objects["alice/wf-1/t1/mnt/shared/cities10.tsv"] = []byte("city,pop\nA,1\n")

	task := model.Task{
		ID:   "t2",
		Name: "t2",
		Executor: model.Executor{
			Kind:      model.ExecutorContainer,
			Container: &model.ContainerSpec{Image: "busybox"},
		},
		Inputs: []model.Artifact{
			{Path: "/mnt/shared/input.tsv", Source: "t1", SourcePath: "/mnt/shared/cities10.tsv"},
		},
		Outputs: []model.Artifact{
			{Path: "/mnt/shared/result.tsv"},
		},
	}

	exec := &fakeExecutor{log: "ran ok"}
	r := newRunnerWithExecutor(store, exec)

	workdir := t.TempDir()
	// Executor is faked, so it never actually creates the output; write it
	// directly to simulate what a real container would have produced.
	require.NoError(t, os.MkdirAll(filepath.Join(workdir, "mnt", "shared"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "mnt", "shared", "result.tsv"), []byte("out"), 0644))

	log, err := r.Run(ctx, "alice", "wf-1", task, workdir)
	require.NoError(t, err)
	require.Equal(t, "ran ok", log)

	downloaded, err := os.ReadFile(filepath.Join(workdir, "mnt", "shared", "input.tsv"))
	require.NoError(t, err)
	require.Equal(t, "city,pop\nA,1\n", string(downloaded))

	uploaded, ok := store.objects["alice/wf-1/t2/mnt/shared/result.tsv"]
	require.True(t, ok)
	require.Equal(t, "out", string(uploaded))

	// A log object with some name under the task prefix must also have
	// been uploaded (phase 4).
	found := false
	for name := range store.objects {
		if filepath.Dir(name) == "alice/wf-1/t2" {
			found = true
		}
	}
	require.True(t, found, "expected a log object under alice/wf-1/t2")
}

func TestRunner_Run_MissingOutputFails(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	task := model.Task{
		ID:   "t1",
		Name: "t1",
		Executor: model.Executor{
			Kind:      model.ExecutorContainer,
			Container: &model.ContainerSpec{Image: "busybox"},
		},
		Outputs: []model.Artifact{{Path: "/mnt/outputs/missing.txt"}},
	}
	r := newRunnerWithExecutor(store, &fakeExecutor{log: "ran"})

	_, err := r.Run(ctx, "alice", "wf-1", task, t.TempDir())
	require.Error(t, err)
	var notFound *dramaxerr.FileNotFoundForUpload
	require.ErrorAs(t, err, &notFound)
}

func TestRunner_Run_InputDownloadFailurePropagates(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore() // empty: every FGetObject call will fail

	task := model.Task{
		ID:   "t2",
		Name: "t2",
		Executor: model.Executor{
			Kind:      model.ExecutorContainer,
			Container: &model.ContainerSpec{Image: "busybox"},
		},
		Inputs: []model.Artifact{{Path: "/in.csv", Source: "t1", SourcePath: "/out.csv"}},
	}
	r := newRunnerWithExecutor(store, &fakeExecutor{log: "ran"})

	_, err := r.Run(ctx, "alice", "wf-1", task, t.TempDir())
	require.Error(t, err)
	var dlErr *dramaxerr.InputDownloadError
	require.ErrorAs(t, err, &dlErr)
}

func TestRunner_Run_ExecutorErrorPropagates(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	task := model.Task{
		ID:   "t1",
		Name: "t1",
		Executor: model.Executor{
			Kind:      model.ExecutorContainer,
			Container: &model.ContainerSpec{Image: "busybox"},
		},
	}
	sentinel := &dramaxerr.ContainerExecutionError{StatusCode: 1, Logs: "boom"}
	r := newRunnerWithExecutor(store, &fakeExecutor{err: sentinel})

	_, err := r.Run(ctx, "alice", "wf-1", task, t.TempDir())
	require.ErrorIs(t, err, sentinel)
}
