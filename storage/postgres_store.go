package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore persists the result cache and diagnostics to PostgreSQL.
type PostgresStore struct {
	*sqlStore
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			db.Close()
			return nil, fmt.Errorf("postgres: ping: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{&sqlStore{db: db, d: postgresDialect(), now: time.Now}}
	if err := ps.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pre_analysis_cache (
			id          BIGSERIAL PRIMARY KEY,
			key         TEXT        UNIQUE NOT NULL,
			status      VARCHAR(20) NOT NULL,
			record      JSONB       NOT NULL DEFAULT '{}',
			error       TEXT        NOT NULL DEFAULT '',
			created_at  BIGINT      NOT NULL,
			updated_at  BIGINT      NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_cache_status ON pre_analysis_cache(status);

		CREATE TABLE IF NOT EXISTS diagnostics (
			id          TEXT        PRIMARY KEY,
			kind        VARCHAR(20) NOT NULL,
			url         TEXT        NOT NULL DEFAULT '',
			portal      VARCHAR(50) NOT NULL DEFAULT '',
			status      VARCHAR(20) NOT NULL DEFAULT '',
			payload     JSONB       NOT NULL,
			created_at  BIGINT      NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_diagnostics_kind_created ON diagnostics(kind, created_at);
		CREATE INDEX IF NOT EXISTS idx_diagnostics_portal       ON diagnostics(portal);
	`)
	return err
}
