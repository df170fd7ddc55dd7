package models

import (
	"strings"
	"time"
)

// RateLimitResult represents the outcome of a sliding-window check.
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// RetryAfter returns how long until the oldest admitted call leaves the window.
func (r *RateLimitResult) RetryAfter(now time.Time) time.Duration {
	if r == nil || r.Allowed {
		return 0
	}
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// LimiterStatus is the observable state of one named limiter.
type LimiterStatus struct {
	Name        string        `json:"name"`
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`
	Current     int           `json:"current"`
	Rejected    int64         `json:"rejected"`
}

// NewLimiterKey namespaces a limiter name in the bucket store. Delimiters in
// the name are escaped so one limiter cannot address another's bucket.
func NewLimiterKey(name string) string {
	return "ratelimit:" + strings.ReplaceAll(name, ":", "_")
}
