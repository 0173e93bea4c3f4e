package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"leilao-insights/models"
)

// dialect captures the few differences between Postgres and SQLite that the
// shared SQL store cares about.
type dialect struct {
	name      string
	forUpdate string
	rebind    func(string) string
	retryable func(error) bool
}

func postgresDialect() dialect {
	return dialect{
		name:      "postgres",
		forUpdate: " FOR UPDATE",
		rebind:    func(q string) string { return q },
		retryable: func(error) bool { return false },
	}
}

func sqliteDialect() dialect {
	return dialect{
		name:      "sqlite",
		rebind:    rebindQuestion,
		retryable: isSQLiteBusy,
	}
}

// rebindQuestion turns $1, $2... into ? placeholders.
func rebindQuestion(q string) string {
	var b strings.Builder
	for i := 0; i < len(q); i++ {
		if q[i] == '$' && i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(q) && q[i+1] >= '0' && q[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// sqlStore implements Store on database/sql.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	now func() time.Time
}

func (s *sqlStore) q(query string) string { return s.d.rebind(query) }

func (s *sqlStore) Close() error {
	return s.db.Close()
}

// runTx runs fn in a transaction, retrying with a short backoff while the
// backend reports lock contention.
func (s *sqlStore) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < 4; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		err = s.tryTx(ctx, fn)
		if err == nil || !s.d.retryable(err) {
			return err
		}
	}
	return err
}

func (s *sqlStore) tryTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner, key string) (*models.CacheEntry, error) {
	var (
		status, record, errText string
		created, updated        int64
	)
	if err := row.Scan(&status, &record, &errText, &created, &updated); err != nil {
		return nil, err
	}
	e := &models.CacheEntry{
		Key:       key,
		Status:    models.CacheStatus(status),
		Error:     errText,
		CreatedAt: time.UnixMilli(created).UTC(),
		UpdatedAt: time.UnixMilli(updated).UTC(),
	}
	if record != "" {
		if err := json.Unmarshal([]byte(record), &e.Record); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
	}
	return e, nil
}

func (s *sqlStore) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT status, record, error, created_at, updated_at
		FROM pre_analysis_cache WHERE key = $1`), key)
	e, err := scanEntry(row, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: get: %w", s.d.name, err)
	}
	return e, nil
}

func (s *sqlStore) MarkPending(ctx context.Context, key string) error {
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO pre_analysis_cache (key, status, record, error, created_at, updated_at)
		VALUES ($1, $2, $3, '', $4, $5)
		ON CONFLICT (key) DO NOTHING`),
		key, string(models.CachePending), "{}", now, now)
	if err != nil {
		return fmt.Errorf("%s: mark pending: %w", s.d.name, err)
	}
	return nil
}

func (s *sqlStore) Put(ctx context.Context, key string, w models.CacheWrite) (*models.CacheEntry, error) {
	var stored models.CacheEntry
	err := s.runTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		// the placeholder row makes concurrent writers queue on the same lock
		if _, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO pre_analysis_cache (key, status, record, error, created_at, updated_at)
			VALUES ($1, $2, $3, '', $4, $5)
			ON CONFLICT (key) DO NOTHING`),
			key, string(models.CachePending), "{}", now.UnixMilli(), now.UnixMilli()); err != nil {
			return err
		}

		row := tx.QueryRowContext(ctx, s.q(`
			SELECT status, record, error, created_at, updated_at
			FROM pre_analysis_cache WHERE key = $1`+s.d.forUpdate), key)
		existing, err := scanEntry(row, key)
		if err != nil {
			return err
		}
		stored = applyWrite(existing, key, w, now)

		record, err := json.Marshal(stored.Record)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		_, err = tx.ExecContext(ctx, s.q(`
			UPDATE pre_analysis_cache
			SET status = $1, record = $2, error = $3, updated_at = $4
			WHERE key = $5`),
			string(stored.Status), string(record), stored.Error, stored.UpdatedAt.UnixMilli(), key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: put: %w", s.d.name, err)
	}
	return &stored, nil
}

func (s *sqlStore) Purge(ctx context.Context, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM pre_analysis_cache WHERE key = $1`), key)
	if err != nil {
		return false, fmt.Errorf("%s: purge: %w", s.d.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: purge: %w", s.d.name, err)
	}
	return n > 0, nil
}

const (
	kindDomainCheck = "domain_check"
	kindSnapshot    = "snapshot"
	kindExtraction  = "extraction"
)

func (s *sqlStore) insertDiagnostic(ctx context.Context, id, kind, url, portal, status string, createdAt time.Time, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: encode %s: %w", s.d.name, kind, err)
	}
	if id == "" {
		id = newID()
	}
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO diagnostics (id, kind, url, portal, status, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`),
		id, kind, url, portal, status, string(body), createdAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("%s: insert %s: %w", s.d.name, kind, err)
	}
	return nil
}

func (s *sqlStore) RecordDomainCheck(ctx context.Context, c models.DomainCheck) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	return s.insertDiagnostic(ctx, c.ID, kindDomainCheck, c.URL, "", string(c.Verdict), c.CreatedAt, c)
}

func (s *sqlStore) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	if snap.ID == "" {
		snap.ID = newID()
	}
	if snap.CapturedAt.IsZero() {
		snap.CapturedAt = s.now()
	}
	return s.insertDiagnostic(ctx, snap.ID, kindSnapshot, snap.URL, "", string(snap.Origin), snap.CapturedAt, snap)
}

func (s *sqlStore) RecordExtraction(ctx context.Context, l models.ExtractionLog) error {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	return s.insertDiagnostic(ctx, l.ID, kindExtraction, l.URL, l.Portal, string(l.Status), l.CreatedAt, l)
}

func (s *sqlStore) ListExtractions(ctx context.Context, f models.ExtractionLogFilter) ([]models.ExtractionLog, error) {
	query := `SELECT payload FROM diagnostics WHERE kind = $1`
	args := []any{kindExtraction}
	if f.Portal != "" {
		query += ` AND portal = $2`
		args = append(args, f.Portal)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ` + strconv.Itoa(f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: list extractions: %w", s.d.name, err)
	}
	defer rows.Close()

	var logs []models.ExtractionLog
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", s.d.name, err)
		}
		var l models.ExtractionLog
		if err := json.Unmarshal([]byte(payload), &l); err != nil {
			return nil, fmt.Errorf("%s: decode extraction: %w", s.d.name, err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
