package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker grants at most one holder per key at a time.
type Locker interface {
	// TryLock returns a release func when the lock was acquired, nil otherwise.
	TryLock(ctx context.Context, key string) (func(), error)
}

// releaseScript deletes the lock only if it is still held by the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a per-key lock shared by every process pointed at the same
// Redis, so only one of them extracts a given listing at a time.
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisLocker connects to addr. ttl bounds how long a crashed holder can
// block a key.
func NewRedisLocker(ctx context.Context, addr string, ttl time.Duration) (*RedisLocker, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &RedisLocker{rdb: rdb, prefix: "leilao:extract:", ttl: ttl}, nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (func(), error) {
	token := newID()
	ok, err := l.rdb.SetNX(ctx, l.prefix+key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: lock: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, l.rdb, []string{l.prefix + key}, token).Err()
	}, nil
}

func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}
