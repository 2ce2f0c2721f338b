// Package cache provides the read-through record cache used by the
// service layer. The cache is strictly an optimization: every
// implementation degrades to always-miss rather than surfacing errors,
// so callers behave identically whether or not Redis is reachable.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the cache capability injected into services. Writes and
// deletes are fire-and-forget; Get reports a hit only when the cached
// payload decoded cleanly into dest.
type Store interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
	DeleteByPrefix(ctx context.Context, prefix string)
	Exists(ctx context.Context, key string) bool
	Ping(ctx context.Context) error
	Flush(ctx context.Context)
}

type redisStore struct {
	rdb        *redis.Client
	defaultTTL time.Duration
}

// New returns a Redis-backed Store, or the disabled no-op store when
// rdb is nil (connection failed at startup or caching turned off).
// Callers never need to branch on cache availability.
func New(rdb *redis.Client, defaultTTL time.Duration) Store {
	if rdb == nil {
		return Disabled()
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &redisStore{rdb: rdb, defaultTTL: defaultTTL}
}

func (s *redisStore) Get(ctx context.Context, key string, dest any) bool {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache: get %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		log.Printf("cache: decode %s: %v", key, err)
		return false
	}
	return true
}

func (s *redisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache: encode %s: %v", key, err)
		return
	}
	if err := s.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		log.Printf("cache: set %s: %v", key, err)
	}
}

func (s *redisStore) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache: delete %v: %v", keys, err)
	}
}

// DeleteByPrefix walks the keyspace with SCAN rather than KEYS so a
// coarse invalidation cannot block Redis on a large cache.
func (s *redisStore) DeleteByPrefix(ctx context.Context, prefix string) {
	iter := s.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	batch := make([]string, 0, 100)
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			s.Delete(ctx, batch...)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		log.Printf("cache: scan %s*: %v", prefix, err)
	}
	s.Delete(ctx, batch...)
}

func (s *redisStore) Exists(ctx context.Context, key string) bool {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		log.Printf("cache: exists %s: %v", key, err)
		return false
	}
	return n > 0
}

func (s *redisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *redisStore) Flush(ctx context.Context) {
	if err := s.rdb.FlushDB(ctx).Err(); err != nil {
		log.Printf("cache: flush: %v", err)
	}
}
