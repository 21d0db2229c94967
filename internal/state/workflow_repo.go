// Package state is the State Store of spec.md §4 (component D): two
// tables, workflow keyed by id and task keyed by (parent, id), exposed as
// single-statement writes on that key so concurrent workers and redelivered
// broker messages never corrupt a record (spec.md §4.2 "Idempotence note",
// §5 "Locking discipline").
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/khaosresearch/dramax/internal/db"
	"github.com/khaosresearch/dramax/internal/model"
)

// WorkflowRepo persists WorkflowRecord documents.
type WorkflowRepo struct {
	conn *sql.DB
}

func NewWorkflowRepo(conn *sql.DB) *WorkflowRepo {
	return &WorkflowRepo{conn: conn}
}

// Insert creates a new workflow record in `pending` status. Scheduler is
// the only caller (spec.md §4.1).
func (r *WorkflowRepo) Insert(ctx context.Context, w model.Workflow) (model.WorkflowRecord, error) {
	now := time.Now().UTC()
	meta, err := json.Marshal(w.Metadata)
	if err != nil {
		return model.WorkflowRecord{}, fmt.Errorf("marshal metadata: %w", err)
	}

	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err = r.conn.ExecContext(ctx, `
		INSERT INTO workflows (id, label, metadata, status, revoked, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, w.ID, w.Label, string(meta), string(model.WorkflowPending), now, now)
	if err != nil {
		return model.WorkflowRecord{}, fmt.Errorf("insert workflow %s: %w", w.ID, err)
	}

	return model.WorkflowRecord{
		ID:        w.ID,
		Label:     w.Label,
		Metadata:  w.Metadata,
		Status:    model.WorkflowPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Get fetches a workflow record by id.
func (r *WorkflowRepo) Get(ctx context.Context, id string) (model.WorkflowRecord, error) {
	row := r.conn.QueryRowContext(ctx, `
		SELECT id, label, metadata, status, revoked, created_at, updated_at
		FROM workflows WHERE id = ?
	`, id)
	return scanWorkflow(row)
}

// UpdateStatus sets the workflow's status/updated_at with a plain UPDATE;
// an unknown id inserts nothing and returns no error. Called only by the
// Aggregator (spec.md §4.7) — a pure function of task statuses at read
// time, so last-writer-wins under concurrency is acceptable.
func (r *WorkflowRepo) UpdateStatus(ctx context.Context, id string, status model.WorkflowStatus) error {
	db.SQLiteWriteMutex.Lock()
	defer db.SQLiteWriteMutex.Unlock()

	_, err := r.conn.ExecContext(ctx, `
		UPDATE workflows SET status = ?, updated_at = ? WHERE id = ?
	`, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update workflow %s status: %w", id, err)
	}
	return nil
}

// Revoke sets is_revoked=true. Per design note §9 / SPEC_FULL.md, this does
// not interrupt in-flight or queued tasks — only the Aggregator's read of
// is_revoked changes.
func (r *WorkflowRepo) Revoke(ctx context.Context, id string) (model.WorkflowRecord, error) {
	db.SQLiteWriteMutex.Lock()
	_, err := r.conn.ExecContext(ctx, `
		UPDATE workflows SET revoked = 1, updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	db.SQLiteWriteMutex.Unlock()
	if err != nil {
		return model.WorkflowRecord{}, fmt.Errorf("revoke workflow %s: %w", id, err)
	}
	return r.Get(ctx, id)
}

// RevokeByLabel revokes every workflow carrying the given label, whatever
// its current status, and returns their ids. SUPPLEMENTED feature (see SPEC_FULL.md): grounded in the original
// dramax manager's bulk-revoke-by-label operation.
func (r *WorkflowRepo) RevokeByLabel(ctx context.Context, label string) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx, `SELECT id FROM workflows WHERE label = ?`, label)
	if err != nil {
		return nil, fmt.Errorf("query workflows by label %s: %w", label, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		if _, err := r.Revoke(ctx, id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func scanWorkflow(row *sql.Row) (model.WorkflowRecord, error) {
	var rec model.WorkflowRecord
	var metaRaw string
	var revoked int
	if err := row.Scan(&rec.ID, &rec.Label, &metaRaw, &rec.Status, &revoked, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return model.WorkflowRecord{}, fmt.Errorf("scan workflow: %w", err)
	}
	rec.Revoked = revoked != 0
	if metaRaw != "" {
		_ = json.Unmarshal([]byte(metaRaw), &rec.Metadata)
	}
	return rec, nil
}
