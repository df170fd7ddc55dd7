package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ehs/pkg/platform/resilience"
	"ehs/pkg/platform/retry"
	"ehs/pkg/platform/sentinel"
)

const searchBody = `{"items":[{"company_number":"01234567","title":"ACME WIDGETS LIMITED","company_status":"active","address":{"postal_code":"LS1 4AP"}}]}`

func TestHTTPClientSearch(t *testing.T) {
	t.Run("decodes hits and sends credentials", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "key", user)
			assert.Equal(t, "/search/companies", r.URL.Path)
			assert.Equal(t, "Acme Widgets", r.URL.Query().Get("q"))
			_, _ = w.Write([]byte(searchBody))
		}))
		defer srv.Close()

		companies, err := NewHTTPClient(srv.URL, "key", time.Second).Search(context.Background(), "Acme Widgets")
		require.NoError(t, err)
		require.Len(t, companies, 1)
		assert.Equal(t, "01234567", companies[0].Number)
		assert.Equal(t, "ACME WIDGETS LIMITED", companies[0].Name)
		assert.Equal(t, "LS1 4AP", companies[0].Postcode)
	})

	t.Run("non-200 becomes a status error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewHTTPClient(srv.URL, "", time.Second).Search(context.Background(), "x")
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusTooManyRequests, statusErr.Code)
		assert.Equal(t, 30*time.Second, statusErr.RetryAfter)
		assert.True(t, statusErr.Temporary())
	})
}

type countingClient struct {
	calls atomic.Int32
	err   error
}

func (c *countingClient) Search(context.Context, string) ([]Company, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return []Company{{Number: "01234567", Name: "ACME WIDGETS LIMITED"}}, nil
}

func TestCachedClient(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	t.Run("fresh entries skip the register", func(t *testing.T) {
		inner := &countingClient{}
		c, err := NewCachedClient(inner, NewInMemoryCache(), WithClock(clock), WithTTL(time.Hour))
		require.NoError(t, err)

		_, err = c.Search(ctx, "Acme  Widgets")
		require.NoError(t, err)
		_, err = c.Search(ctx, "acme widgets")
		require.NoError(t, err)
		assert.Equal(t, int32(1), inner.calls.Load())
	})

	t.Run("expired entries are refetched but still readable stale", func(t *testing.T) {
		inner := &countingClient{}
		cache := NewInMemoryCache()
		require.NoError(t, cache.Set(ctx, CacheKey("acme"), Entry{
			Companies: []Company{{Number: "OLD"}},
			StoredAt:  now.Add(-48 * time.Hour),
		}))
		c, err := NewCachedClient(inner, cache, WithClock(clock), WithTTL(24*time.Hour))
		require.NoError(t, err)

		stale, storedAt, err := c.SearchStale(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "OLD", stale[0].Number)
		assert.Equal(t, now.Add(-48*time.Hour), storedAt)

		fresh, err := c.Search(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "01234567", fresh[0].Number)
		assert.Equal(t, int32(1), inner.calls.Load())
	})

	t.Run("stale miss is not found", func(t *testing.T) {
		c, err := NewCachedClient(&countingClient{}, nil)
		require.NoError(t, err)
		_, _, err = c.SearchStale(ctx, "nobody")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("guarded fetch retries under the api policy", func(t *testing.T) {
		inner := &countingClient{err: errors.New("connection reset")}
		policies := retry.NewPolicies(retry.Policy{
			Name: retry.PolicyAPI, MaxAttempts: 3, BaseDelay: time.Millisecond,
			MaxDelay: time.Millisecond, Backoff: retry.BackoffLinear,
		})
		guard := resilience.New(policies, resilience.WithSleeper(func(context.Context, time.Duration) error { return nil }))
		c, err := NewCachedClient(inner, nil, WithGuard(guard))
		require.NoError(t, err)

		_, err = c.Search(ctx, "acme")
		require.ErrorIs(t, err, retry.ErrExhausted)
		assert.Equal(t, int32(3), inner.calls.Load())
	})

	t.Run("nil client rejected", func(t *testing.T) {
		_, err := NewCachedClient(nil, nil)
		require.Error(t, err)
	})
}
