// Package ports defines the storage interface shared by limiter backends.
package ports

import (
	"context"
	"time"

	"ehs/internal/ratelimit/models"
)

// BucketStore manages sliding window rate limit counters.
type BucketStore interface {
	// Allow checks if a single request is allowed and records it if so.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error)

	// AllowN checks if 'cost' requests are allowed and records that many if so.
	AllowN(ctx context.Context, key string, cost, limit int, window time.Duration) (*models.RateLimitResult, error)

	// Reset clears the rate limit counter for a key.
	Reset(ctx context.Context, key string) error

	// GetCurrentCount returns the admitted request count in the trailing window.
	GetCurrentCount(ctx context.Context, key string, window time.Duration) (int, error)
}
