package artifact

import "github.com/khaosresearch/dramax/internal/model"

// ObjectName resolves the blob-store key for an artifact produced or
// consumed by a task, per SPEC_FULL.md §4.3's resolved naming rule:
// ⟨author⟩/⟨workflow_id⟩/⟨task_id⟩⟨artifact.path⟩. artifact.path already
// carries its own leading slash, so no extra separator is inserted.
func ObjectName(author, workflowID, taskID string, a model.Artifact) string {
	return author + "/" + workflowID + "/" + taskID + a.Path
}
