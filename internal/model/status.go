package model

// TaskStatus is the lifecycle state of a persisted task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskSuccess TaskStatus = "success"
	TaskFailure TaskStatus = "failure"
)

// WorkflowStatus is the lifecycle state of a workflow, written as `pending`
// at insert and afterwards recomputed by the aggregator. Revoke sets only the
// revoked flag; the aggregator then reports WorkflowRevoked.
type WorkflowStatus string

const (
	WorkflowPending WorkflowStatus = "pending"
	WorkflowRunning WorkflowStatus = "running"
	WorkflowSuccess WorkflowStatus = "success"
	WorkflowFailure WorkflowStatus = "failure"
	WorkflowRevoked WorkflowStatus = "revoked"
)
