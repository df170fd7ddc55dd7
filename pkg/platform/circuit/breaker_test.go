package circuit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errDependency = errors.New("dependency failed")

func failing(context.Context) error { return errDependency }
func passing(context.Context) error { return nil }

func TestBreaker_InitialState(t *testing.T) {
	b := New("test")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "test", b.Name())
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New("test", WithFailureThreshold(3))

	// First two failures don't open
	change := b.RecordFailure()
	assert.False(t, change.Opened)
	change = b.RecordFailure()
	assert.False(t, change.Opened)

	// Third failure opens the circuit
	change = b.RecordFailure()
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("test", WithFailureThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	// Success resets count
	b.RecordSuccess()

	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())

	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreaker_OpenRejectsWithoutInvoking(t *testing.T) {
	clock := newFakeClock()
	b := New("registry", WithFailureThreshold(2), WithCooldown(time.Minute), WithClock(clock.Now))

	require.ErrorIs(t, b.Execute(context.Background(), failing), errDependency)
	require.ErrorIs(t, b.Execute(context.Background(), failing), errDependency)
	require.True(t, b.IsOpen())

	invoked := false
	err := b.Execute(context.Background(), func(context.Context) error {
		invoked = true
		return nil
	})
	require.ErrorIs(t, err, ErrOpen)
	assert.False(t, invoked)

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "registry", openErr.Name)
	assert.Equal(t, time.Minute, openErr.RetryAfter)
	assert.Equal(t, int64(1), b.Stats().BlockedCalls)
}

func TestBreaker_HalfOpenAllowsExactlyOneTrial(t *testing.T) {
	clock := newFakeClock()
	b := New("db", WithFailureThreshold(1), WithCooldown(30*time.Second), WithClock(clock.Now))
	b.RecordFailure()
	require.True(t, b.IsOpen())

	clock.Advance(29 * time.Second)
	allowed, _ := b.Allow()
	assert.False(t, allowed, "cooldown has not elapsed")

	clock.Advance(time.Second)
	assert.Equal(t, StateHalfOpen, b.State())

	allowed, _ = b.Allow()
	assert.True(t, allowed, "first call after cooldown is the trial")
	allowed, _ = b.Allow()
	assert.False(t, allowed, "second concurrent call is blocked while the trial runs")
}

func TestBreaker_HalfOpenTrialOutcome(t *testing.T) {
	t.Run("success closes and resets failures", func(t *testing.T) {
		clock := newFakeClock()
		b := New("db", WithFailureThreshold(2), WithCooldown(time.Second), WithClock(clock.Now))
		b.RecordFailure()
		b.RecordFailure()
		clock.Advance(time.Second)

		require.NoError(t, b.Execute(context.Background(), passing))
		stats := b.Stats()
		assert.Equal(t, StateClosed, stats.State)
		assert.Equal(t, 0, stats.Failures)
	})

	t.Run("failure re-opens for another cooldown", func(t *testing.T) {
		clock := newFakeClock()
		b := New("db", WithFailureThreshold(2), WithCooldown(time.Second), WithClock(clock.Now))
		b.RecordFailure()
		b.RecordFailure()
		clock.Advance(time.Second)

		require.ErrorIs(t, b.Execute(context.Background(), failing), errDependency)
		assert.Equal(t, StateOpen, b.State())
		require.ErrorIs(t, b.Execute(context.Background(), passing), ErrOpen)

		clock.Advance(time.Second)
		require.NoError(t, b.Execute(context.Background(), passing))
		assert.Equal(t, StateClosed, b.State())
	})
}

func TestBreaker_FailurePredicate(t *testing.T) {
	errInvalid := errors.New("invalid input")
	b := New("db", WithFailureThreshold(1), WithFailurePredicate(func(err error) bool {
		return !errors.Is(err, errInvalid)
	}))

	err := b.Execute(context.Background(), func(context.Context) error { return errInvalid })
	require.ErrorIs(t, err, errInvalid)
	assert.False(t, b.IsOpen(), "errors excluded by the predicate do not trip the circuit")
}

func TestBreaker_CancellationReleasesTrial(t *testing.T) {
	clock := newFakeClock()
	b := New("api", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(clock.Now))
	b.RecordFailure()
	clock.Advance(time.Second)

	err := b.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	require.ErrorIs(t, err, context.Canceled)

	allowed, _ := b.Allow()
	assert.True(t, allowed, "a cancelled trial does not consume the half-open slot")
}

func TestBreaker_StatsAreObservable(t *testing.T) {
	b := New("api", WithFailureThreshold(10))
	for range 3 {
		_ = b.Execute(context.Background(), passing)
	}
	_ = b.Execute(context.Background(), failing)

	before := b.Stats()
	after := b.Stats()
	assert.Equal(t, before, after, "reading stats does not change state")
	assert.Equal(t, int64(4), before.TotalCalls)
	assert.Equal(t, int64(3), before.SuccessfulCalls)
	assert.Equal(t, int64(1), before.FailedCalls)
	assert.InDelta(t, 0.25, before.FailureRate, 0.0001)
}

func TestBreaker_StateChangeHook(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	b := New("hook", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(clock.Now),
		WithOnStateChange(func(_ string, from, to State) {
			transitions = append(transitions, string(from)+"->"+string(to))
		}))

	b.RecordFailure()
	clock.Advance(time.Second)
	_ = b.Execute(context.Background(), passing)

	assert.Equal(t, []string{"closed->open", "open->half_open", "half_open->closed"}, transitions)
}

func TestBreaker_Reset(t *testing.T) {
	b := New("test", WithFailureThreshold(1))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ConcurrentHalfOpen(t *testing.T) {
	clock := newFakeClock()
	b := New("race", WithFailureThreshold(1), WithCooldown(time.Second), WithClock(clock.Now))
	b.RecordFailure()
	clock.Advance(time.Second)

	release := make(chan struct{})
	var invoked, rejected atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(context.Background(), func(context.Context) error {
				invoked.Add(1)
				<-release
				return nil
			})
			if errors.Is(err, ErrOpen) {
				rejected.Add(1)
			}
		}()
	}
	require.Eventually(t, func() bool { return rejected.Load() == 19 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), invoked.Load())
	assert.Equal(t, StateClosed, b.State())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(WithFailureThreshold(2))
	r.Configure("strict", WithFailureThreshold(1))

	a := r.Get("lenient")
	assert.Same(t, a, r.Get("lenient"))

	r.Get("strict").RecordFailure()
	assert.True(t, r.Get("strict").IsOpen())

	a.RecordFailure()
	assert.False(t, a.IsOpen())

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "lenient", stats[0].Name)
	assert.Equal(t, StateOpen, stats[1].State)

	assert.True(t, r.Reset("strict"))
	assert.False(t, r.Reset("missing"))
	assert.False(t, r.Get("strict").IsOpen())
}
