package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ehs/pkg/platform/sentinel"
)

// Entry is a cached search result and the time it was fetched.
type Entry struct {
	Companies []Company `json:"companies"`
	StoredAt  time.Time `json:"stored_at"`
}

// Cache stores search results. Get returns sentinel.ErrNotFound on a miss
// and never filters by age; freshness is the caller's decision.
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry Entry) error
}

// CacheKey normalizes a search term into a cache key.
func CacheKey(name string) string {
	return "registry:search:" + strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// InMemoryCache keeps entries for the process lifetime.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: make(map[string]Entry)}
}

func (c *InMemoryCache) Get(_ context.Context, key string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, fmt.Errorf("registry cache %s: %w", key, sentinel.ErrNotFound)
	}
	return &e, nil
}

func (c *InMemoryCache) Set(_ context.Context, key string, entry Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry
	return nil
}

// RedisCache stores entries as JSON. Retention is longer than the freshness
// TTL so expired entries can still serve stale reads during an outage.
type RedisCache struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisCache(client *redis.Client, retention time.Duration) *RedisCache {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &RedisCache{client: client, retention: retention}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("registry cache %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("registry cache get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode registry cache entry: %w", err)
	}
	return &e, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode registry cache entry: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, c.retention).Err(); err != nil {
		return fmt.Errorf("registry cache set: %w", err)
	}
	return nil
}
