package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted matches any error returned after the last attempt failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// ExhaustedError carries the final attempt's error.
type ExhaustedError struct {
	Policy   string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts (policy %s): %v", ErrExhausted, e.Attempts, e.Policy, e.Err)
}

func (e *ExhaustedError) Unwrap() []error { return []error{ErrExhausted, e.Err} }

// Condition decides whether a failed attempt may be retried.
type Condition func(err error) bool

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type options struct {
	condition Condition
	sleep     Sleeper
	onRetry   func(attempt int, delay time.Duration, err error)
}

// Option configures a single Do call.
type Option func(*options)

// WithCondition stops retrying as soon as cond returns false for an error.
func WithCondition(cond Condition) Option {
	return func(o *options) {
		if cond != nil {
			o.condition = cond
		}
	}
}

// WithSleeper replaces the context-aware timer, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleep = s
		}
	}
}

// WithOnRetry registers a hook invoked before each sleep.
func WithOnRetry(fn func(attempt int, delay time.Duration, err error)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn once per delay slot of p until it succeeds, the condition
// rejects the error, or the attempts run out. Non-retryable errors are
// returned unchanged.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error, opts ...Option) error {
	o := options{
		condition: func(error) bool { return true },
		sleep:     SleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}

	schedule := Delays(p)
	if len(schedule) == 0 {
		schedule = []time.Duration{0}
	}

	var lastErr error
	for attempt, delay := range schedule {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !o.condition(lastErr) {
			return lastErr
		}
		if attempt == len(schedule)-1 {
			break
		}
		if o.onRetry != nil {
			o.onRetry(attempt+1, delay, lastErr)
		}
		if err := o.sleep(ctx, delay); err != nil {
			return fmt.Errorf("%w (last error: %v)", err, lastErr)
		}
	}

	return &ExhaustedError{Policy: p.Name, Attempts: len(schedule), Err: lastErr}
}

// DoValue is Do for calls that produce a value.
func DoValue[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	var out T
	err := Do(ctx, p, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts...)
	return out, err
}
