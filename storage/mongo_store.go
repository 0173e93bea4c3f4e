package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"leilao-insights/models"
)

// MongoStore keeps the cache in the pre_analysis_cache collection and every
// diagnostic record in the diagnostics collection.
type MongoStore struct {
	client      *mongo.Client
	cache       *mongo.Collection
	diagnostics *mongo.Collection
	now         func() time.Time
}

// cacheDoc is a cache entry plus the write counter Put guards on.
type cacheDoc struct {
	models.CacheEntry `bson:",inline"`
	Version           int64 `bson:"version"`
}

// versionFilter matches the document for key only if no write landed since
// version was read. Documents written before the counter existed have none.
func versionFilter(key string, version int64) bson.M {
	if version == 0 {
		return bson.M{"key": key, "version": bson.M{"$in": bson.A{0, nil}}}
	}
	return bson.M{"key": key, "version": version}
}

// diagnosticDoc wraps a diagnostic payload with the fields it is queried by.
type diagnosticDoc struct {
	ID        string    `bson:"_id"`
	Kind      string    `bson:"kind"`
	URL       string    `bson:"url"`
	Portal    string    `bson:"portal,omitempty"`
	Status    string    `bson:"status,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	Payload   bson.Raw  `bson:"payload"`
}

// NewMongoStore connects to uri and prepares the collections of database.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	db := client.Database(database)
	ms := &MongoStore{
		client:      client,
		cache:       db.Collection("pre_analysis_cache"),
		diagnostics: db.Collection("diagnostics"),
		now:         time.Now,
	}
	if err := ms.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: indexes: %w", err)
	}
	return ms, nil
}

func (ms *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := ms.cache.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = ms.diagnostics.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "portal", Value: 1}}},
	})
	return err
}

func (ms *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

func (ms *MongoStore) Get(ctx context.Context, key string) (*models.CacheEntry, error) {
	doc, err := ms.getDoc(ctx, key)
	if err != nil || doc == nil {
		return nil, err
	}
	return &doc.CacheEntry, nil
}

func (ms *MongoStore) getDoc(ctx context.Context, key string) (*cacheDoc, error) {
	var doc cacheDoc
	err := ms.cache.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get: %w", err)
	}
	return &doc, nil
}

func (ms *MongoStore) MarkPending(ctx context.Context, key string) error {
	now := ms.now().UTC()
	_, err := ms.cache.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$setOnInsert": cacheDoc{
			CacheEntry: models.CacheEntry{
				Key:       key,
				Status:    models.CachePending,
				CreatedAt: now,
				UpdatedAt: now,
			},
			Version: 1,
		}},
		options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongo: mark pending: %w", err)
	}
	return nil
}

// Put reads, merges and writes back guarded by the version counter,
// retrying when a concurrent writer got there first.
func (ms *MongoStore) Put(ctx context.Context, key string, w models.CacheWrite) (*models.CacheEntry, error) {
	for attempt := 0; attempt < 5; attempt++ {
		existing, err := ms.getDoc(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("mongo: put: %w", err)
		}

		if existing == nil {
			stored := applyWrite(nil, key, w, ms.now().UTC())
			_, err = ms.cache.InsertOne(ctx, cacheDoc{CacheEntry: stored, Version: 1})
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("mongo: put: %w", err)
			}
			return &stored, nil
		}

		stored := applyWrite(&existing.CacheEntry, key, w, ms.now().UTC())
		res, err := ms.cache.ReplaceOne(ctx,
			versionFilter(key, existing.Version),
			cacheDoc{CacheEntry: stored, Version: existing.Version + 1})
		if err != nil {
			return nil, fmt.Errorf("mongo: put: %w", err)
		}
		if res.MatchedCount == 1 {
			return &stored, nil
		}
	}
	return nil, fmt.Errorf("mongo: put: %s: too much write contention", key)
}

func (ms *MongoStore) Purge(ctx context.Context, key string) (bool, error) {
	res, err := ms.cache.DeleteOne(ctx, bson.M{"key": key})
	if err != nil {
		return false, fmt.Errorf("mongo: purge: %w", err)
	}
	return res.DeletedCount > 0, nil
}

func (ms *MongoStore) insertDiagnostic(ctx context.Context, doc diagnosticDoc, payload any) error {
	raw, err := bson.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mongo: encode %s: %w", doc.Kind, err)
	}
	doc.Payload = raw
	if doc.ID == "" {
		doc.ID = newID()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = ms.now().UTC()
	}
	if _, err := ms.diagnostics.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo: insert %s: %w", doc.Kind, err)
	}
	return nil
}

func (ms *MongoStore) RecordDomainCheck(ctx context.Context, c models.DomainCheck) error {
	if c.ID == "" {
		c.ID = newID()
	}
	return ms.insertDiagnostic(ctx, diagnosticDoc{
		ID: c.ID, Kind: kindDomainCheck, URL: c.URL, Status: string(c.Verdict), CreatedAt: c.CreatedAt,
	}, c)
}

func (ms *MongoStore) SaveSnapshot(ctx context.Context, s models.Snapshot) error {
	if s.ID == "" {
		s.ID = newID()
	}
	return ms.insertDiagnostic(ctx, diagnosticDoc{
		ID: s.ID, Kind: kindSnapshot, URL: s.URL, Status: string(s.Origin), CreatedAt: s.CapturedAt,
	}, s)
}

func (ms *MongoStore) RecordExtraction(ctx context.Context, l models.ExtractionLog) error {
	if l.ID == "" {
		l.ID = newID()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = ms.now().UTC()
	}
	return ms.insertDiagnostic(ctx, diagnosticDoc{
		ID: l.ID, Kind: kindExtraction, URL: l.URL, Portal: l.Portal, Status: string(l.Status), CreatedAt: l.CreatedAt,
	}, l)
}

func (ms *MongoStore) ListExtractions(ctx context.Context, f models.ExtractionLogFilter) ([]models.ExtractionLog, error) {
	filter := bson.M{"kind": kindExtraction}
	if f.Portal != "" {
		filter["portal"] = f.Portal
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}

	cursor, err := ms.diagnostics.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list extractions: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []models.ExtractionLog
	for cursor.Next(ctx) {
		var doc diagnosticDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo: decode row: %w", err)
		}
		var l models.ExtractionLog
		if err := bson.Unmarshal(doc.Payload, &l); err != nil {
			return nil, fmt.Errorf("mongo: decode extraction: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, cursor.Err()
}
