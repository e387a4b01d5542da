// Package cache implements the read-through/write-through accelerator in
// front of the Store (spec §4.1): a keyed value store with per-entry TTL and
// pattern invalidation that must degrade to a transparent no-op whenever
// Redis is unavailable. Shaped after the Caqil-goride cache service's
// Get/Set/Delete/DeletePattern surface, backed by go-redis/v9 instead of a
// hand-rolled client.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// TTL tiers named in spec §4.1's key-family table.
const (
	TTLShort  = 2 * time.Minute
	TTLMedium = 5 * time.Minute
	TTLHour   = time.Hour
)

// Cache is the interface pkg/services depends on. The Disabled{} value is a
// valid Cache that behaves as an always-miss no-op; it is selected by the
// CACHE_DISABLE config knob (spec §6.3).
type Cache interface {
	// Get unmarshals the cached value into dest. Returns ErrMiss if absent
	// or if the cache is unavailable/disabled — callers must treat both
	// identically and fall back to the Store.
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Del(ctx context.Context, keys ...string)
	DelPattern(ctx context.Context, pattern string)
}

// ErrMiss is returned by Get for both a true cache miss and a degraded
// (unavailable) cache. Errors are never otherwise propagated.
var ErrMiss = errors.New("cache: miss")

// RedisCache is the production Cache backed by go-redis/v9.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache creates a RedisCache. prefix namespaces every key, useful
// for running multiple environments against one Redis instance.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}

// Get reads and unmarshals a cached value. Any Redis error — including a
// real miss, a connection failure, or a context timeout — degrades to
// ErrMiss per the "cache must never fail a request" contract in spec §4.1.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache get degraded", "key", key, "error", err)
		}
		return ErrMiss
	}
	if err := json.Unmarshal(data, dest); err != nil {
		slog.Warn("cache value unmarshal failed, treating as miss", "key", key, "error", err)
		return ErrMiss
	}
	return nil
}

// Set overwrites a key with the given TTL. Failures are logged, never
// returned — a cache write is an optimization, not a requirement.
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("cache value marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, c.key(key), data, ttl).Err(); err != nil {
		slog.Warn("cache set degraded", "key", key, "error", err)
	}
}

// Del removes one or more keys.
func (c *RedisCache) Del(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		slog.Warn("cache del degraded", "keys", keys, "error", err)
	}
}

// DelPattern removes every key matching a glob pattern, scanning instead of
// KEYS to avoid blocking a shared Redis instance under load.
func (c *RedisCache) DelPattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, c.key(pattern), 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= 200 {
			c.delBatch(ctx, batch)
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		slog.Warn("cache delPattern scan degraded", "pattern", pattern, "error", err)
		return
	}
	c.delBatch(ctx, batch)
}

func (c *RedisCache) delBatch(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache delPattern del degraded", "error", err)
	}
}

// Disabled is a Cache that always misses and never writes, used when
// CACHE_DISABLE is set (spec §6.3) or Redis cannot be reached at startup.
type Disabled struct{}

func (Disabled) Get(_ context.Context, _ string, _ interface{}) error { return ErrMiss }
func (Disabled) Set(_ context.Context, _ string, _ interface{}, _ time.Duration) {}
func (Disabled) Del(_ context.Context, _ ...string)                              {}
func (Disabled) DelPattern(_ context.Context, _ string)                          {}

// Ping verifies Redis connectivity at startup; callers fall back to Disabled
// on error instead of failing to boot (spec: cache absence must degrade
// gracefully, it is never a startup requirement).
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
