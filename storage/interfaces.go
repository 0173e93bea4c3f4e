package storage

import (
	"context"

	"leilao-insights/models"
)

// CacheStore is the keyed result cache. Keys are normalized listing URLs.
type CacheStore interface {
	// Get returns nil, nil when no entry exists for key.
	Get(ctx context.Context, key string) (*models.CacheEntry, error)
	// MarkPending creates a pending entry unless one already exists.
	MarkPending(ctx context.Context, key string) error
	// Put merges w into the entry for key and returns the stored result.
	Put(ctx context.Context, key string, w models.CacheWrite) (*models.CacheEntry, error)
	// Purge deletes the entry and reports whether it existed.
	Purge(ctx context.Context, key string) (bool, error)
}

type DomainCheckRecorder interface {
	RecordDomainCheck(ctx context.Context, c models.DomainCheck) error
}

type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, s models.Snapshot) error
}

type ExtractionRecorder interface {
	RecordExtraction(ctx context.Context, l models.ExtractionLog) error
}

// DiagnosticsStore holds the audit and debug records. Nothing in it is unique
// and no pipeline decision depends on it.
type DiagnosticsStore interface {
	DomainCheckRecorder
	SnapshotSaver
	ExtractionRecorder
	// ListExtractions returns logs newest first.
	ListExtractions(ctx context.Context, f models.ExtractionLogFilter) ([]models.ExtractionLog, error)
}

// Store is a backend serving both the cache and the diagnostics.
type Store interface {
	CacheStore
	DiagnosticsStore
	Close() error
}

var (
	_ Store  = (*PostgresStore)(nil)
	_ Store  = (*SQLiteStore)(nil)
	_ Store  = (*MongoStore)(nil)
	_ Locker = (*RedisLocker)(nil)
)
