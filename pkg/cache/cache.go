// Package cache is a Redis-backed side cache for embeddings and
// assembled query results. Every failure degrades to a miss or a no-op
// so that a broken Redis never takes the query path down with it.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/OFFIS-RIT/lemur/backend/internal/util"
	"github.com/OFFIS-RIT/lemur/backend/pkg/logger"
)

// Namespace separates the key spaces the cache serves.
type Namespace string

const (
	// NamespaceEmbedding caches embedding vectors keyed by content
	// hash and model name.
	NamespaceEmbedding Namespace = "embedding"
	// NamespaceResult caches fully assembled query results keyed by
	// normalized query hash.
	NamespaceResult Namespace = "result"
)

const (
	defaultTTL     = 24 * time.Hour
	clearScanCount = 256
	keySeparator   = ":"
	keyPrefix      = "lemur"
)

// Store wraps a Redis client with namespaced, TTL-bound entries.
type Store struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultTTL overrides the TTL applied when Set is called with a
// zero duration.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.defaultTTL = ttl
		}
	}
}

// NewStore creates a cache on top of an existing Redis client. A nil
// client is allowed and yields a store where every read is a miss.
func NewStore(client *redis.Client, opts ...Option) *Store {
	s := &Store{
		client:     client,
		defaultTTL: defaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(ns Namespace, parts ...string) string {
	k := keyPrefix + keySeparator + string(ns)
	for _, p := range parts {
		k += keySeparator + p
	}
	return k
}

// GetEmbedding returns a cached embedding for the given content and
// model, or (nil, false) on a miss or any Redis error.
func (s *Store) GetEmbedding(ctx context.Context, content, model string) ([]float32, bool) {
	key := s.key(NamespaceEmbedding, model, util.ContentHash(content))

	var vector []float32
	if !s.get(ctx, key, &vector) {
		return nil, false
	}
	return vector, true
}

// SetEmbedding caches an embedding under the content hash and model.
func (s *Store) SetEmbedding(ctx context.Context, content, model string, vector []float32) {
	key := s.key(NamespaceEmbedding, model, util.ContentHash(content))
	s.set(ctx, key, vector, 0)
}

// GetResult loads a cached query result into out and reports whether
// the key was present. Any error is treated as a miss.
func (s *Store) GetResult(ctx context.Context, queryHash string, out any) bool {
	return s.get(ctx, s.key(NamespaceResult, queryHash), out)
}

// SetResult caches a query result under the normalized query hash with
// the given TTL. A zero TTL uses the configured default.
func (s *Store) SetResult(ctx context.Context, queryHash string, value any, ttl time.Duration) {
	s.set(ctx, s.key(NamespaceResult, queryHash), value, ttl)
}

// Clear removes every entry in the given namespace and returns how
// many keys were deleted.
func (s *Store) Clear(ctx context.Context, ns Namespace) int {
	if s.client == nil {
		return 0
	}

	pattern := s.key(ns) + keySeparator + "*"
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, clearScanCount).Result()
		if err != nil {
			logger.Debug("cache scan failed", "namespace", ns, "error", err)
			return deleted
		}
		if len(keys) > 0 {
			removed, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				logger.Debug("cache delete failed", "namespace", ns, "error", err)
				return deleted
			}
			deleted += int(removed)
		}
		cursor = next
		if cursor == 0 {
			return deleted
		}
	}
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return redis.ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

func (s *Store) get(ctx context.Context, key string, out any) bool {
	if s.client == nil {
		return false
	}

	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		logger.Debug("cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		logger.Debug("cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) set(ctx context.Context, key string, value any, ttl time.Duration) {
	if s.client == nil {
		return
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	data, err := json.Marshal(value)
	if err != nil {
		logger.Debug("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		logger.Debug("cache write failed", "key", key, "error", err)
	}
}
