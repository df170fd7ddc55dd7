package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ms(v ...int) []time.Duration {
	out := make([]time.Duration, len(v))
	for i, n := range v {
		out[i] = time.Duration(n) * time.Millisecond
	}
	return out
}

func TestDelays(t *testing.T) {
	t.Run("exponential without jitter doubles from base", func(t *testing.T) {
		p := Policy{Name: "p", MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Backoff: BackoffExponential}
		assert.Equal(t, ms(1000, 2000, 4000, 8000, 16000), Delays(p))
	})

	t.Run("exponential is capped at the ceiling", func(t *testing.T) {
		p := Policy{Name: "p", MaxAttempts: 7, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Backoff: BackoffExponential}
		assert.Equal(t, ms(1000, 2000, 4000, 8000, 16000, 30000, 30000), Delays(p))
	})

	t.Run("linear repeats the base delay", func(t *testing.T) {
		p := Policy{Name: "p", MaxAttempts: 4, BaseDelay: 250 * time.Millisecond, Backoff: BackoffLinear}
		assert.Equal(t, ms(250, 250, 250, 250), Delays(p))
	})

	t.Run("fibonacci scales base by fib(n)", func(t *testing.T) {
		p := Policy{Name: "p", MaxAttempts: 8, BaseDelay: 100 * time.Millisecond, MaxDelay: 1500 * time.Millisecond, Backoff: BackoffFibonacci}
		assert.Equal(t, ms(100, 100, 200, 300, 500, 800, 1300, 1500), Delays(p))
	})

	t.Run("jitter stays within half of the delay either way", func(t *testing.T) {
		p := Policy{Name: "p", MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Backoff: BackoffExponential, Jitter: true}
		for range 100 {
			got := Delays(p)
			for i, want := range ms(1000, 2000, 4000, 8000, 16000) {
				assert.GreaterOrEqual(t, got[i], want/2)
				assert.Less(t, got[i], want+want/2)
			}
		}
	})

	t.Run("jitter extremes are deterministic with a fixed source", func(t *testing.T) {
		p := Policy{Name: "p", MaxAttempts: 2, BaseDelay: time.Second, MaxDelay: time.Minute, Backoff: BackoffExponential, Jitter: true}
		assert.Equal(t, ms(500, 1000), delays(p, func() float64 { return 0 }))
	})

	t.Run("huge attempt counts saturate instead of overflowing", func(t *testing.T) {
		p := Policy{Name: "p", MaxAttempts: 80, BaseDelay: time.Second, MaxDelay: time.Minute, Backoff: BackoffExponential}
		got := Delays(p)
		assert.Equal(t, time.Minute, got[79])
		p.Backoff = BackoffFibonacci
		got = Delays(p)
		assert.Equal(t, time.Minute, got[79])
	})
}

func TestDefaults(t *testing.T) {
	policies := DefaultPolicies()

	api, ok := policies.Get(PolicyAPI)
	require.True(t, ok)
	assert.Equal(t, 3, api.MaxAttempts)
	assert.False(t, api.CircuitBreaker)

	db, ok := policies.Get(PolicyDatabase)
	require.True(t, ok)
	assert.Equal(t, ms(500, 1000, 2000, 4000, 8000), Delays(db))
	assert.True(t, db.CircuitBreaker)

	critical, ok := policies.Get(PolicyCritical)
	require.True(t, ok)
	assert.Equal(t, BackoffFibonacci, critical.Backoff)
	assert.Len(t, Delays(critical), 10)

	for _, p := range policies.All() {
		assert.NoError(t, p.Validate(), p.Name)
	}
}

func TestPolicies_SetValidates(t *testing.T) {
	policies := NewPolicies()
	err := policies.Set(Policy{Name: "bad", MaxAttempts: 0, Backoff: BackoffLinear})
	require.Error(t, err)
	err = policies.Set(Policy{Name: "bad", MaxAttempts: 1, Backoff: "quadratic"})
	require.Error(t, err)
	require.NoError(t, policies.Set(Policy{Name: "ok", MaxAttempts: 1, Backoff: BackoffLinear}))
	_, ok := policies.Get("ok")
	assert.True(t, ok)
}

type recordingSleeper struct {
	slept []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func TestDo(t *testing.T) {
	policy := Policy{Name: "test", MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second, Backoff: BackoffExponential}
	errBoom := errors.New("boom")

	t.Run("stops at first success", func(t *testing.T) {
		s := &recordingSleeper{}
		calls := 0
		err := Do(context.Background(), policy, func(context.Context) error {
			calls++
			if calls < 3 {
				return errBoom
			}
			return nil
		}, WithSleeper(s.sleep))
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, ms(1000, 2000), s.slept)
	})

	t.Run("exhausts the schedule and wraps the last error", func(t *testing.T) {
		s := &recordingSleeper{}
		calls := 0
		err := Do(context.Background(), policy, func(context.Context) error {
			calls++
			return errBoom
		}, WithSleeper(s.sleep))
		require.Error(t, err)
		assert.Equal(t, 5, calls)
		assert.ErrorIs(t, err, ErrExhausted)
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, ms(1000, 2000, 4000, 8000), s.slept)

		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 5, exhausted.Attempts)
	})

	t.Run("condition stops on non-retryable errors", func(t *testing.T) {
		s := &recordingSleeper{}
		errFatal := errors.New("fatal")
		calls := 0
		err := Do(context.Background(), policy, func(context.Context) error {
			calls++
			if calls == 2 {
				return errFatal
			}
			return errBoom
		}, WithSleeper(s.sleep), WithCondition(func(err error) bool { return !errors.Is(err, errFatal) }))
		assert.Equal(t, errFatal, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("on retry hook sees attempt numbers", func(t *testing.T) {
		s := &recordingSleeper{}
		var attempts []int
		_ = Do(context.Background(), policy, func(context.Context) error { return errBoom },
			WithSleeper(s.sleep),
			WithOnRetry(func(attempt int, _ time.Duration, _ error) { attempts = append(attempts, attempt) }))
		assert.Equal(t, []int{1, 2, 3, 4}, attempts)
	})

	t.Run("cancellation during sleep stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Do(ctx, policy, func(context.Context) error {
			calls++
			return errBoom
		}, WithSleeper(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}))
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})

	t.Run("real sleeper honors short delays", func(t *testing.T) {
		p := Policy{Name: "fast", MaxAttempts: 3, BaseDelay: time.Millisecond, Backoff: BackoffLinear}
		calls := 0
		err := Do(context.Background(), p, func(context.Context) error {
			calls++
			if calls < 3 {
				return errBoom
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})
}

func TestDoValue(t *testing.T) {
	p := Policy{Name: "v", MaxAttempts: 2, Backoff: BackoffLinear}
	calls := 0
	v, err := DoValue(context.Background(), p, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errors.New("transient")
		}
		return 42, nil
	}, WithSleeper(func(context.Context, time.Duration) error { return nil }))
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}
