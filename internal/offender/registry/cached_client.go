package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ehs/pkg/platform/resilience"
	"ehs/pkg/platform/retry"
	"ehs/pkg/platform/sentinel"
)

// LimiterName is the rate limiter guarding register searches.
const LimiterName = "company_registry"

// CachedClient serves searches from the cache while fresh and otherwise calls
// the register through the resilience guard.
type CachedClient struct {
	client  Client
	cache   Cache
	guard   *resilience.Guard
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*CachedClient)

func WithGuard(g *resilience.Guard) Option {
	return func(c *CachedClient) { c.guard = g }
}

func WithTTL(ttl time.Duration) Option {
	return func(c *CachedClient) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithTimeout bounds each register attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *CachedClient) { c.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *CachedClient) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *CachedClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewCachedClient(client Client, cache Cache, opts ...Option) (*CachedClient, error) {
	if client == nil {
		return nil, errors.New("registry client is required")
	}
	if cache == nil {
		cache = NewInMemoryCache()
	}
	c := &CachedClient{
		client: client,
		cache:  cache,
		ttl:    24 * time.Hour,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *CachedClient) Search(ctx context.Context, name string) ([]Company, error) {
	key := CacheKey(name)
	if entry, err := c.cache.Get(ctx, key); err == nil && c.now().Sub(entry.StoredAt) < c.ttl {
		return entry.Companies, nil
	} else if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		c.logger.WarnContext(ctx, "registry cache read failed", "error", err)
	}

	companies, err := c.fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, Entry{Companies: companies, StoredAt: c.now()}); err != nil {
		c.logger.WarnContext(ctx, "registry cache write failed", "error", err)
	}
	return companies, nil
}

func (c *CachedClient) fetch(ctx context.Context, name string) ([]Company, error) {
	if c.guard == nil {
		return c.client.Search(ctx, name)
	}
	return resilience.Value(ctx, c.guard, resilience.Call{
		Policy:    retry.PolicyAPI,
		Operation: "registry.search",
		Limiter:   LimiterName,
		Timeout:   c.timeout,
	}, func(ctx context.Context) ([]Company, error) {
		return c.client.Search(ctx, name)
	})
}

// SearchStale returns a cached result regardless of age. It is the fallback
// used when the register keeps timing out.
func (c *CachedClient) SearchStale(ctx context.Context, name string) ([]Company, time.Time, error) {
	entry, err := c.cache.Get(ctx, CacheKey(name))
	if err != nil {
		return nil, time.Time{}, err
	}
	return entry.Companies, entry.StoredAt, nil
}
