// Package db owns the SQL connection backing the State Store (spec.md §4,
// component D): per-task and per-workflow records, keyed for upsert-on-key
// semantics so concurrent/redelivered writes are harmless (spec.md §4.2
// "Idempotence note").
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	conn *sql.DB
}

// New opens a SQLite database at databaseURL, retrying with backoff to
// tolerate concurrent worker processes racing to create the file, and
// tunes pragmas for the multi-writer workload described in spec.md §5.
func New(databaseURL string) (*DB, error) {
	dbDir := filepath.Dir(databaseURL)
	if dbDir != "." && dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
		}
	}

	var conn *sql.DB
	var err error

	maxRetries := 5
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		conn, err = sql.Open("sqlite", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)

		if err := conn.Ping(); err != nil {
			if attempt == maxRetries-1 {
				return nil, fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
			}
			conn.Close()
			delay := baseDelay * time.Duration(1<<uint(attempt))
			time.Sleep(delay)
			continue
		}

		break
	}

	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign key constraints: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 30000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := conn.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	db.conn.SetMaxOpenConns(0)
	db.conn.SetMaxIdleConns(0)
	db.conn.SetConnMaxLifetime(0)
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Migrate runs the embedded goose migrations.
func (db *DB) Migrate() error {
	return RunMigrations(db.conn)
}
