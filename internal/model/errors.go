package model

import "errors"

// Sentinel validation errors surfaced by Workflow/Task construction, wrapped
// with context by callers. These are submission-time errors only — see
// internal/dramaxerr for the runtime error taxonomy of spec.md §7.
var (
	ErrInvalidExecutor  = errors.New("invalid executor")
	ErrDuplicateTaskID  = errors.New("duplicate task id")
	ErrUnknownDependsOn = errors.New("depends_on references unknown task")
	ErrUnknownSource    = errors.New("artifact source references unknown task")
	ErrInvalidTaskName  = errors.New("task name must not contain spaces or dots")
)
