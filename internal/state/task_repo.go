package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/khaosresearch/dramax/internal/db"
	"github.com/khaosresearch/dramax/internal/model"
)

// ErrTaskNotFound is returned when a (parent, id) pair has no record.
var ErrTaskNotFound = errors.New("task record not found")

// TaskRepo persists TaskRecord documents keyed by (parent_id, id).
type TaskRepo struct {
	conn *sql.DB
}

func NewTaskRepo(conn *sql.DB) *TaskRepo {
	return &TaskRepo{conn: conn}
}

// Insert writes a task row in `pending` status with its full request-form
// payload serialised, per spec.md §4.1 "Enqueue".
func (r *TaskRepo) Insert(ctx context.Context, workflowID string, t model.Task) (model.TaskRecord, error) {
	now := time.Now().UTC()
	payload, err := json.Marshal(t)
	if err != nil {
		return model.TaskRecord{}, fmt.Errorf("marshal task %s: %w", t.ID, err)
	}

	db.SQLiteWriteMutex.Lock()
	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO tasks (parent_id, id, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, workflowID, t.ID, string(payload), string(model.TaskPending), now, now)
	db.SQLiteWriteMutex.Unlock()
	if err != nil {
		return model.TaskRecord{}, fmt.Errorf("insert task %s/%s: %w", workflowID, t.ID, err)
	}

	return model.TaskRecord{
		Task:      t,
		ParentID:  workflowID,
		Status:    model.TaskPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get fetches a single task record by its (parent, id) key.
func (r *TaskRepo) Get(ctx context.Context, workflowID, taskID string) (model.TaskRecord, error) {
	row := r.conn.QueryRowContext(ctx, `
		SELECT parent_id, id, payload, status, log, message, created_at, updated_at
		FROM tasks WHERE parent_id = ? AND id = ?
	`, workflowID, taskID)

	rec, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TaskRecord{}, ErrTaskNotFound
	}
	return rec, err
}

// ListByWorkflow returns every task record belonging to a workflow, used by
// the Aggregator (spec.md §4.7) to recompute workflow status.
func (r *TaskRepo) ListByWorkflow(ctx context.Context, workflowID string) ([]model.TaskRecord, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT parent_id, id, payload, status, log, message, created_at, updated_at
		FROM tasks WHERE parent_id = ?
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", workflowID, err)
	}
	defer rows.Close()

	var out []model.TaskRecord
	for rows.Next() {
		rec, err := scanTaskRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateStatus sets status, updated_at and the result (log and message) of
// the row keyed by (parent, id) on every call; a call with an empty Result,
// such as the `running` transition, clears any earlier log and message.
// It is a plain UPDATE of the row Insert pre-created: when no row matches,
// nothing is inserted and no error is returned. Repeating the same write is
// harmless, so redelivery of the same broker message is too: the last write
// wins on updated_at, and no caller depends on ordering between writers.
func (r *TaskRepo) UpdateStatus(ctx context.Context, workflowID, taskID string, status model.TaskStatus, result model.Result) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.conn.ExecContext(ctx, `
		UPDATE tasks SET status = ?, log = ?, message = ?, updated_at = ?
		WHERE parent_id = ? AND id = ?
	`, string(status), result.Log, result.Message, time.Now().UTC(), workflowID, taskID)
	if err != nil {
		return fmt.Errorf("update task %s/%s status: %w", workflowID, taskID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row *sql.Row) (model.TaskRecord, error) {
	return scanTaskGeneric(row)
}

func scanTaskRows(rows *sql.Rows) (model.TaskRecord, error) {
	return scanTaskGeneric(rows)
}

func scanTaskGeneric(s rowScanner) (model.TaskRecord, error) {
	var rec model.TaskRecord
	var payload string
	if err := s.Scan(&rec.ParentID, &rec.ID, &payload, &rec.Status, &rec.Result.Log, &rec.Result.Message, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return model.TaskRecord{}, fmt.Errorf("scan task: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &rec.Task); err != nil {
		return model.TaskRecord{}, fmt.Errorf("unmarshal task payload: %w", err)
	}
	rec.Task.ID = rec.ID
	return rec, nil
}
