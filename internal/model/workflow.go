package model

import (
	"fmt"
	"time"
)

// Metadata is the open-ended workflow/task metadata bag. "author" is the
// one field every other component relies on (it prefixes every artifact
// object name, per spec.md §4.3).
type Metadata map[string]string

// Author returns the "author" field, defaulting to "anonymous" so the
// artifact naming rule always has a usable path component.
func (m Metadata) Author() string {
	if m == nil {
		return "anonymous"
	}
	if a, ok := m["author"]; ok && a != "" {
		return a
	}
	return "anonymous"
}

// Workflow is the request form submitted by a caller.
type Workflow struct {
	ID       string   `json:"id,omitempty"`
	Label    string   `json:"label,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
	Tasks    []Task   `json:"tasks"`
}

// Validate enforces the submission-time invariants of spec.md §3: task IDs
// unique within a workflow, every depends_on target and artifact source
// resolves to a sibling task, executor is exactly one variant, names are
// clean.
func (w Workflow) Validate() error {
	seen := make(map[string]bool, len(w.Tasks))
	for _, t := range w.Tasks {
		if seen[t.ID] {
			return fmt.Errorf("%w: %q", ErrDuplicateTaskID, t.ID)
		}
		seen[t.ID] = true
	}

	for _, t := range w.Tasks {
		if err := t.ValidateName(); err != nil {
			return err
		}
		if err := t.Executor.Validate(); err != nil {
			return fmt.Errorf("task %q: %w", t.ID, err)
		}
		for _, dep := range t.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("task %q: %w: %q", t.ID, ErrUnknownDependsOn, dep)
			}
		}
		for _, in := range t.Inputs {
			if in.IsRouted() && !seen[in.Source] {
				return fmt.Errorf("task %q: %w: %q", t.ID, ErrUnknownSource, in.Source)
			}
		}
	}
	return nil
}

// WorkflowRecord is the persisted form of a Workflow.
type WorkflowRecord struct {
	ID        string         `json:"id"`
	Label     string         `json:"label,omitempty"`
	Metadata  Metadata       `json:"metadata,omitempty"`
	Status    WorkflowStatus `json:"status"`
	Revoked   bool           `json:"revoked"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
