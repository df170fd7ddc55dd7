//go:build integration

package bucket_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ehs/internal/ratelimit/store/bucket"
	"ehs/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *bucket.RedisBucketStore
	now   atomic.Int64
}

func TestRedisBucketStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.store = bucket.NewRedisBucketStore(s.redis.Client, bucket.WithRedisClock(func() time.Time {
		return time.UnixMilli(s.now.Load())
	}))
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.now.Store(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).UnixMilli())
}

func (s *RedisBucketStoreSuite) advance(d time.Duration) {
	s.now.Add(d.Milliseconds())
}

func (s *RedisBucketStoreSuite) TestSlidingWindow() {
	ctx := context.Background()
	key := "ratelimit:hse_api"

	for i := range 3 {
		res, err := s.store.Allow(ctx, key, 3, time.Minute)
		s.Require().NoError(err)
		s.True(res.Allowed)
		s.Equal(2-i, res.Remaining)
		s.advance(10 * time.Second)
	}

	res, err := s.store.Allow(ctx, key, 3, time.Minute)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal(time.UnixMilli(s.now.Load()).Add(30*time.Second), res.ResetAt)

	count, err := s.store.GetCurrentCount(ctx, key, time.Minute)
	s.Require().NoError(err)
	s.Equal(3, count, "rejected request is not recorded")

	s.advance(31 * time.Second)
	res, err = s.store.Allow(ctx, key, 3, time.Minute)
	s.Require().NoError(err)
	s.True(res.Allowed, "oldest entry left the window")
}

func (s *RedisBucketStoreSuite) TestConcurrentCallersShareOneWindow() {
	ctx := context.Background()
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			res, err := s.store.Allow(ctx, "ratelimit:company_registry", 20, time.Minute)
			s.NoError(err)
			if res != nil && res.Allowed {
				allowed.Add(1)
			}
		})
	}
	wg.Wait()
	s.Equal(int32(20), allowed.Load())
}

func (s *RedisBucketStoreSuite) TestReset() {
	ctx := context.Background()
	_, err := s.store.AllowN(ctx, "ratelimit:ea_api", 5, 5, time.Minute)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(ctx, "ratelimit:ea_api"))

	count, err := s.store.GetCurrentCount(ctx, "ratelimit:ea_api", time.Minute)
	s.Require().NoError(err)
	s.Zero(count)
}
