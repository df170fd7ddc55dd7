package bucket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ehs/internal/ratelimit/models"
)

// slidingWindowScript trims the sorted set to the trailing window, then admits
// the request only if the remaining entries plus cost fit under the limit.
// Returns {allowed, count, oldest_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local member = ARGV[5]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count + cost <= limit then
  for i = 1, cost do
    redis.call('ZADD', key, now, member .. ':' .. i)
  end
  count = count + cost
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local oldest = now
local first = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if first[2] then
  oldest = tonumber(first[2])
end
return {allowed, count, oldest}
`)

// RedisBucketStore is a sliding-window limiter shared by every process that
// points at the same Redis. Each admitted unit is a sorted-set member scored
// by its admission time in milliseconds.
type RedisBucketStore struct {
	client *redis.Client
	now    func() time.Time
}

// RedisOption configures a RedisBucketStore.
type RedisOption func(*RedisBucketStore)

// WithRedisClock injects the time source used for scores.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisBucketStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRedisBucketStore(client *redis.Client, opts ...RedisOption) *RedisBucketStore {
	s := &RedisBucketStore{client: client, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.RateLimitResult, error) {
	return s.AllowN(ctx, key, 1, limit, window)
}

func (s *RedisBucketStore) AllowN(ctx context.Context, key string, cost int, limit int, window time.Duration) (*models.RateLimitResult, error) {
	now := s.now()
	windowMs := window.Milliseconds()
	if windowMs <= 0 {
		return nil, fmt.Errorf("invalid window %s", window)
	}

	raw, err := slidingWindowScript.Run(ctx, s.client, []string{key},
		now.UnixMilli(), windowMs, limit, cost, uuid.NewString()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("sliding window %s: %w", key, err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("sliding window %s: unexpected reply %v", key, raw)
	}

	allowed := raw[0] == 1
	remaining := 0
	if allowed {
		remaining = max(limit-int(raw[1]), 0)
	}
	return &models.RateLimitResult{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(raw[2]).Add(window),
	}, nil
}

func (s *RedisBucketStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// GetCurrentCount counts members admitted inside the trailing window.
func (s *RedisBucketStore) GetCurrentCount(ctx context.Context, key string, window time.Duration) (int, error) {
	cutoff := s.now().Add(-window).UnixMilli()
	n, err := s.client.ZCount(ctx, key, "("+strconv.FormatInt(cutoff, 10), "+inf").Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
