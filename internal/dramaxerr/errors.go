// Package dramaxerr implements the error taxonomy of spec.md §7: transient
// coordination (TaskDeferred, recovered locally), terminal task failures
// that the Worker Actor lets the broker route to the Failure Sink, and
// submission-time validation errors that never reach the broker at all.
package dramaxerr

import (
	"errors"
	"fmt"
)

// InvalidWorkflow is surfaced to the submitting caller; the workflow is
// never persisted or enqueued.
type InvalidWorkflow struct {
	Cause error
}

func (e *InvalidWorkflow) Error() string { return fmt.Sprintf("invalid workflow: %v", e.Cause) }
func (e *InvalidWorkflow) Unwrap() error { return e.Cause }

// MissingTasks indicates the topological sort dropped tasks, meaning the
// submitted graph was disconnected in a way that lost nodes.
type MissingTasks struct {
	Want, Got int
}

func (e *MissingTasks) Error() string {
	return fmt.Sprintf("topological sort produced %d tasks, want %d", e.Got, e.Want)
}

// UpstreamFailed is terminal for the task that observes it: one of its
// declared dependencies has already failed.
type UpstreamFailed struct {
	TaskID    string
	FailedDep string
}

func (e *UpstreamFailed) Error() string {
	return fmt.Sprintf("task %q: upstream dependency %q failed", e.TaskID, e.FailedDep)
}

// InputDownloadError wraps a failure fetching an input artifact.
type InputDownloadError struct {
	ObjectName, FilePath string
	Cause                error
}

func (e *InputDownloadError) Error() string {
	return fmt.Sprintf("download %s -> %s: %v", e.ObjectName, e.FilePath, e.Cause)
}
func (e *InputDownloadError) Unwrap() error { return e.Cause }

// FileNotFoundForUpload is raised when a declared output artifact is
// missing from the local filesystem at upload time.
type FileNotFoundForUpload struct {
	Path string
}

func (e *FileNotFoundForUpload) Error() string {
	return fmt.Sprintf("output file not found for upload: %s", e.Path)
}

// UploadError wraps a failure pushing an artifact or log to the blob store.
type UploadError struct {
	ObjectName, FilePath string
	Cause                error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s -> %s: %v", e.FilePath, e.ObjectName, e.Cause)
}
func (e *UploadError) Unwrap() error { return e.Cause }

// ContainerExecutionError carries the container's diagnostic payload.
type ContainerExecutionError struct {
	StatusCode int64
	Logs       string
}

func (e *ContainerExecutionError) Error() string {
	return fmt.Sprintf("container exited with status %d", e.StatusCode)
}

// TransportError wraps an HTTP executor transport or timeout failure.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return fmt.Sprintf("http transport error: %v", e.Cause) }
func (e *TransportError) Unwrap() error { return e.Cause }

// ErrTaskDeferred names the deferred outcome as an error value. Nothing in
// this module returns it: runner.CheckUpstream reports a deferral as
// model.OutcomeDeferred, and the Worker Actor republishes the message and
// returns nil.
var ErrTaskDeferred = errors.New("task deferred: upstream not yet settled")
