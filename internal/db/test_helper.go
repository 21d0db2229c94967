package db

import (
	"database/sql"
	"path/filepath"
	"testing"
)

// TestDB is a throwaway SQLite-backed Database for unit tests, grounded on
// the teacher's own internal/db/test_helper.go NewTest helper.
type TestDB struct {
	db *DB
}

// NewTest creates a temp-file-backed database with migrations applied.
func NewTest(tb testing.TB) (*TestDB, error) {
	tempDir := tb.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	database, err := New(dbPath)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(database.conn); err != nil {
		database.Close()
		return nil, err
	}

	return &TestDB{db: database}, nil
}

func (tdb *TestDB) Conn() *sql.DB { return tdb.db.conn }
func (tdb *TestDB) Close() error  { return tdb.db.Close() }
func (tdb *TestDB) Migrate() error {
	return RunMigrations(tdb.db.conn)
}

var _ Database = (*TestDB)(nil)
