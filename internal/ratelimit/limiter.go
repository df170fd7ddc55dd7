// Package ratelimit admits or rejects calls to named upstream dependencies
// using a sliding window. Limiters never delay: a full window is reported
// immediately as a *LimitError.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"ehs/internal/platform/metrics"
	"ehs/internal/ratelimit/models"
	"ehs/internal/ratelimit/ports"
	"ehs/internal/ratelimit/store/bucket"
)

type BucketStore = ports.BucketStore

// ErrRateLimited is matched by every *LimitError.
var ErrRateLimited = errors.New("rate limit exceeded")

// LimitError reports a rejected call.
type LimitError struct {
	Name       string
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limit %q exceeded: %d per %s, retry after %s", e.Name, e.Limit, e.Window, e.RetryAfter)
}

func (e *LimitError) Is(target error) bool { return target == ErrRateLimited }

// Config describes one named limiter.
type Config struct {
	Name        string        `yaml:"name" json:"name"`
	MaxRequests int           `yaml:"max_requests" json:"max_requests"`
	Window      time.Duration `yaml:"window" json:"window"`
}

func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("limiter name is required")
	}
	if c.MaxRequests < 1 {
		return fmt.Errorf("limiter %s: max_requests must be positive", c.Name)
	}
	if c.Window <= 0 {
		return fmt.Errorf("limiter %s: window must be positive", c.Name)
	}
	return nil
}

// Defaults returns the built-in upstream limits.
func Defaults() []Config {
	return []Config{
		{Name: "company_registry", MaxRequests: 600, Window: 5 * time.Minute},
		{Name: "hse_api", MaxRequests: 60, Window: time.Minute},
		{Name: "ea_api", MaxRequests: 60, Window: time.Minute},
	}
}

// Limiter is one named sliding window backed by a BucketStore.
type Limiter struct {
	cfg      Config
	key      string
	store    BucketStore
	now      func() time.Time
	logger   *slog.Logger
	metrics  *metrics.Store
	rejected atomic.Int64
}

type Option func(*Limiter)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Store) Option {
	return func(l *Limiter) {
		l.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New creates a limiter. A nil store falls back to an in-process window.
func New(cfg Config, store BucketStore, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		store = bucket.NewInMemoryBucketStore()
	}
	l := &Limiter{
		cfg:    cfg,
		key:    models.NewLimiterKey(cfg.Name),
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Limiter) Name() string { return l.cfg.Name }

// Allow records one call, or returns a *LimitError when the trailing window
// already holds MaxRequests calls. Store failures are returned as-is.
func (l *Limiter) Allow(ctx context.Context) error {
	res, err := l.store.Allow(ctx, l.key, l.cfg.MaxRequests, l.cfg.Window)
	if err != nil {
		return fmt.Errorf("rate limiter %s: %w", l.cfg.Name, err)
	}
	if res.Allowed {
		return nil
	}

	l.rejected.Add(1)
	l.metrics.IncRateLimitRejection(l.cfg.Name)
	retryAfter := res.RetryAfter(l.now())
	l.logger.DebugContext(ctx, "rate limit exceeded",
		"limiter", l.cfg.Name,
		"limit", l.cfg.MaxRequests,
		"retry_after", retryAfter,
	)
	return &LimitError{
		Name:       l.cfg.Name,
		Limit:      l.cfg.MaxRequests,
		Window:     l.cfg.Window,
		RetryAfter: retryAfter,
	}
}

// Reset empties the window.
func (l *Limiter) Reset(ctx context.Context) error {
	return l.store.Reset(ctx, l.key)
}

// Status returns the limiter's current load. Rejections are counted per process.
func (l *Limiter) Status(ctx context.Context) (models.LimiterStatus, error) {
	current, err := l.store.GetCurrentCount(ctx, l.key, l.cfg.Window)
	if err != nil {
		return models.LimiterStatus{}, err
	}
	return models.LimiterStatus{
		Name:        l.cfg.Name,
		MaxRequests: l.cfg.MaxRequests,
		Window:      l.cfg.Window,
		Current:     current,
		Rejected:    l.rejected.Load(),
	}, nil
}

// Registry holds the process's named limiters over one shared store.
type Registry struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
	store    BucketStore
	opts     []Option
}

func NewRegistry(store BucketStore, opts ...Option) *Registry {
	if store == nil {
		store = bucket.NewInMemoryBucketStore()
	}
	return &Registry{
		limiters: make(map[string]*Limiter),
		store:    store,
		opts:     opts,
	}
}

// NewDefaultRegistry registers the built-in limiters.
func NewDefaultRegistry(store BucketStore, opts ...Option) *Registry {
	r := NewRegistry(store, opts...)
	for _, cfg := range Defaults() {
		// Defaults are valid by construction.
		_ = r.Register(cfg)
	}
	return r
}

// Register adds or replaces a limiter.
func (r *Registry) Register(cfg Config) error {
	l, err := New(cfg, r.store, r.opts...)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limiters[cfg.Name] = l
	return nil
}

func (r *Registry) Get(name string) (*Limiter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.limiters[name]
	return l, ok
}

// Allow checks the named limiter. Unknown names are not limited.
func (r *Registry) Allow(ctx context.Context, name string) error {
	l, ok := r.Get(name)
	if !ok {
		return nil
	}
	return l.Allow(ctx)
}

// Statuses returns every limiter's status, sorted by name.
func (r *Registry) Statuses(ctx context.Context) ([]models.LimiterStatus, error) {
	r.mu.RLock()
	limiters := make([]*Limiter, 0, len(r.limiters))
	for _, l := range r.limiters {
		limiters = append(limiters, l)
	}
	r.mu.RUnlock()

	out := make([]models.LimiterStatus, 0, len(limiters))
	for _, l := range limiters {
		st, err := l.Status(ctx)
		if err != nil {
			return nil, fmt.Errorf("limiter %s status: %w", l.Name(), err)
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
