package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the embedded backend, used for single-node deployments and
// as the real datastore in tests.
type SQLiteStore struct {
	*sqlStore
}

var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS pre_analysis_cache (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		key         TEXT    UNIQUE NOT NULL,
		status      TEXT    NOT NULL,
		record      TEXT    NOT NULL DEFAULT '{}',
		error       TEXT    NOT NULL DEFAULT '',
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_status ON pre_analysis_cache(status);

	CREATE TABLE IF NOT EXISTS diagnostics (
		id          TEXT    PRIMARY KEY,
		kind        TEXT    NOT NULL,
		url         TEXT    NOT NULL DEFAULT '',
		portal      TEXT    NOT NULL DEFAULT '',
		status      TEXT    NOT NULL DEFAULT '',
		payload     TEXT    NOT NULL,
		created_at  INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_diagnostics_kind_created ON diagnostics(kind, created_at);
	CREATE INDEX IF NOT EXISTS idx_diagnostics_portal       ON diagnostics(portal);
`

// NewSQLiteStore opens (creating if needed) the database file at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	for _, p := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	return &SQLiteStore{&sqlStore{db: db, d: sqliteDialect(), now: time.Now}}, nil
}

// OpenSQLiteMemory opens an in-memory store for tests and closes it when the
// test ends.
func OpenSQLiteMemory(t testing.TB) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("storage.OpenSQLiteMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
