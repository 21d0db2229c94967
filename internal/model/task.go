package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// taskNamePattern rejects spaces and dots, per spec.md §3.
var taskNamePattern = regexp.MustCompile(`^[^\s.]+$`)

// Task is the request form submitted as part of a Workflow.
type Task struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Executor   Executor          `json:"executor"`
	Inputs     []Artifact        `json:"inputs,omitempty"`
	Outputs    []Artifact        `json:"outputs,omitempty"`
	DependsOn  []string          `json:"depends_on,omitempty"`
	Options    Options           `json:"options"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// UnmarshalJSON defaults Options to DefaultOptions before decoding, so a
// task submitted with no "options" key at all (not just an empty one)
// still gets the spec §3 defaults rather than Options' zero value.
func (t *Task) UnmarshalJSON(data []byte) error {
	type alias Task
	v := alias{Options: DefaultOptions()}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*t = Task(v)
	return nil
}

// ValidateName enforces the "no spaces, no dots" invariant.
func (t Task) ValidateName() error {
	if t.Name == "" || !taskNamePattern.MatchString(t.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidTaskName, t.Name)
	}
	return nil
}

// TaskRecord is the persisted form: a Task plus workflow linkage, timestamps,
// status and result. Uniqueness key is (ParentID, ID).
type TaskRecord struct {
	Task
	ParentID  string     `json:"parent_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Status    TaskStatus `json:"status"`
	Result    Result     `json:"result"`
}

// Result carries the outcome of a finished task execution.
type Result struct {
	Log     string `json:"log,omitempty"`
	Message string `json:"message,omitempty"`
}

// Key identifies a task record uniquely within the state store.
func (t TaskRecord) Key() (parent, id string) {
	return t.ParentID, t.ID
}
