// Package runner is the Task Runner of spec.md §4.3: download inputs,
// execute, upload outputs, upload log — plus the Upstream Check of §4.4,
// kept alongside it since both are pure consumers of state-store data.
// Grounded in the teacher's download/execute/persist pipeline shape around
// WorkflowConsumer.executeStep, generalized from step-output mapping to the
// artifact contract.
package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/khaosresearch/dramax/internal/artifact"
	"github.com/khaosresearch/dramax/internal/dramaxerr"
	"github.com/khaosresearch/dramax/internal/executor"
	"github.com/khaosresearch/dramax/internal/model"
)

// Runner executes one task's full lifecycle inside a working directory.
type Runner struct {
	store    artifact.Store
	registry *executor.Registry
	location *time.Location
}

func New(store artifact.Store, registry *executor.Registry, location *time.Location) *Runner {
	if location == nil {
		location = time.UTC
	}
	return &Runner{store: store, registry: registry, location: location}
}

// Run performs all four phases of spec.md §4.3 for task inside workdir,
// enforcing task.Options.TimeLimitSeconds around phase 2 if set
// (SUPPLEMENTED feature, see SPEC_FULL.md). Returns the executor's log
// text on success.
func (r *Runner) Run(ctx context.Context, author, workflowID string, task model.Task, workdir string) (string, error) {
	if err := r.downloadInputs(ctx, author, workflowID, task, workdir); err != nil {
		return "", err
	}

	log, err := r.execute(ctx, task, workdir)
	if err != nil {
		return "", err
	}

	if err := r.uploadOutputs(ctx, author, workflowID, task, workdir); err != nil {
		return "", err
	}

	if err := r.uploadLog(ctx, author, workflowID, task.ID, log); err != nil {
		return "", err
	}

	return log, nil
}

// downloadInputs is phase 1: fetch each input artifact from the object it
// was produced under, named from (author, workflow_id, source, sourcePath)
// rather than this task's own ID, since inputs reference a sibling's output.
func (r *Runner) downloadInputs(ctx context.Context, author, workflowID string, task model.Task, workdir string) error {
	for _, in := range task.Inputs {
		objectName := artifact.ObjectName(author, workflowID, in.Source, model.Artifact{Path: in.SourcePath})
		localPath := filepath.Join(workdir, in.Path)

		if dir := filepath.Dir(localPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return &dramaxerr.InputDownloadError{ObjectName: objectName, FilePath: localPath, Cause: err}
			}
		}

		if err := r.store.FGetObject(ctx, objectName, localPath); err != nil {
			return &dramaxerr.InputDownloadError{ObjectName: objectName, FilePath: localPath, Cause: err}
		}
	}
	return nil
}

// execute is phase 2: dispatch to the registered Executor, honoring
// task.Options.TimeLimitSeconds if set.
func (r *Runner) execute(ctx context.Context, task model.Task, workdir string) (string, error) {
	if task.Options.TimeLimitSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(task.Options.TimeLimitSeconds)*time.Second)
		defer cancel()
	}
	return r.registry.Execute(ctx, task, workdir)
}

// uploadOutputs is phase 3.
func (r *Runner) uploadOutputs(ctx context.Context, author, workflowID string, task model.Task, workdir string) error {
	for _, out := range task.Outputs {
		localPath := filepath.Join(workdir, out.Path)

		if _, err := os.Stat(localPath); err != nil {
			return &dramaxerr.FileNotFoundForUpload{Path: localPath}
		}

		objectName := artifact.ObjectName(author, workflowID, task.ID, out)
		if err := r.store.FPutObject(ctx, objectName, localPath); err != nil {
			return &dramaxerr.UploadError{ObjectName: objectName, FilePath: localPath, Cause: err}
		}
	}
	return nil
}

// uploadLog is phase 4: compose a timestamped log filename in the
// configured timezone and upload the executor's log text.
func (r *Runner) uploadLog(ctx context.Context, author, workflowID, taskID, logText string) error {
	if logText == "" {
		logText = "(no output produced)"
	}

	filename := time.Now().In(r.location).Format("02-01-2006-15:04:05") + "-log.txt"
	objectName := artifact.ObjectName(author, workflowID, taskID, model.Artifact{Path: "/" + filename})

	if err := r.store.PutReader(ctx, objectName, strings.NewReader(logText)); err != nil {
		return &dramaxerr.UploadError{ObjectName: objectName, FilePath: filename, Cause: err}
	}
	return nil
}
