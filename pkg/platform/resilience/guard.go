// Package resilience composes the limiter, retry and circuit breaker layers
// around one call. Each layer is usable on its own; Guard fixes their order:
//
//	limiter (once) -> retry policy -> breaker (per attempt) -> timeout -> fn
//
// A rejected limiter check or an open circuit is returned immediately and is
// never retried.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ehs/pkg/platform/circuit"
	"ehs/pkg/platform/retry"
)

// ErrUnknownPolicy is returned when a call names a policy that is not registered.
var ErrUnknownPolicy = errors.New("unknown retry policy")

// Limiters admits calls to a named upstream. A nil error means admitted.
type Limiters interface {
	Allow(ctx context.Context, name string) error
}

// Recorder receives resilience counters.
type Recorder interface {
	IncRetryAttempt(policy, operation string)
	IncRetryExhausted(policy, operation string)
	IncBreakerBlocked(circuit string)
}

// Call names the layers that apply to one invocation.
type Call struct {
	// Policy is the retry policy name, e.g. retry.PolicyDatabase.
	Policy string
	// Operation labels logs and metrics, e.g. "enforcement.upsert".
	Operation string
	// Limiter is checked once before the first attempt when set.
	Limiter string
	// Circuit overrides the breaker name; defaults to Operation.
	Circuit string
	// Timeout bounds each attempt when positive.
	Timeout time.Duration
}

func (c Call) circuitName() string {
	if c.Circuit != "" {
		return c.Circuit
	}
	return c.Operation
}

type Guard struct {
	policies  *retry.Policies
	breakers  *circuit.Registry
	limiters  Limiters
	logger    *slog.Logger
	metrics   Recorder
	sleeper   retry.Sleeper
	retryable func(error) bool
}

type Option func(*Guard)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		g.logger = logger
	}
}

func WithMetrics(m Recorder) Option {
	return func(g *Guard) {
		g.metrics = m
	}
}

func WithLimiters(l Limiters) Option {
	return func(g *Guard) {
		g.limiters = l
	}
}

func WithBreakers(r *circuit.Registry) Option {
	return func(g *Guard) {
		if r != nil {
			g.breakers = r
		}
	}
}

// WithSleeper replaces the sleep between attempts, mainly for tests.
func WithSleeper(s retry.Sleeper) Option {
	return func(g *Guard) {
		g.sleeper = s
	}
}

// WithRetryable narrows which errors are retried. Open circuits and
// cancellation are never retried regardless of fn.
func WithRetryable(fn func(error) bool) Option {
	return func(g *Guard) {
		if fn != nil {
			g.retryable = fn
		}
	}
}

func New(policies *retry.Policies, opts ...Option) *Guard {
	if policies == nil {
		policies = retry.DefaultPolicies()
	}
	g := &Guard{
		policies:  policies,
		breakers:  circuit.NewRegistry(),
		logger:    slog.Default(),
		sleeper:   retry.SleepContext,
		retryable: func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Breakers exposes the breaker registry for status reporting.
func (g *Guard) Breakers() *circuit.Registry { return g.breakers }

// Policies exposes the policy registry.
func (g *Guard) Policies() *retry.Policies { return g.policies }

// Do runs fn under the layers named by call.
func (g *Guard) Do(ctx context.Context, call Call, fn func(ctx context.Context) error) error {
	policy, ok := g.policies.Get(call.Policy)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, call.Policy)
	}

	if call.Limiter != "" && g.limiters != nil {
		if err := g.limiters.Allow(ctx, call.Limiter); err != nil {
			return err
		}
	}

	var breaker *circuit.Breaker
	if policy.CircuitBreaker {
		breaker = g.breakers.Get(call.circuitName())
	}

	attempt := func(ctx context.Context) error {
		if call.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, call.Timeout)
			defer cancel()
		}
		if breaker != nil {
			return breaker.Execute(ctx, fn)
		}
		return fn(ctx)
	}

	err := retry.Do(ctx, policy, attempt,
		retry.WithCondition(g.shouldRetry),
		retry.WithSleeper(g.sleeper),
		retry.WithOnRetry(func(n int, delay time.Duration, err error) {
			if g.metrics != nil {
				g.metrics.IncRetryAttempt(policy.Name, call.Operation)
			}
			g.logger.DebugContext(ctx, "retrying operation",
				"operation", call.Operation,
				"policy", policy.Name,
				"attempt", n,
				"delay", delay,
				"error", err,
			)
		}),
	)
	if errors.Is(err, circuit.ErrOpen) && breaker != nil && g.metrics != nil {
		g.metrics.IncBreakerBlocked(breaker.Name())
	}
	if errors.Is(err, retry.ErrExhausted) {
		if g.metrics != nil {
			g.metrics.IncRetryExhausted(policy.Name, call.Operation)
		}
		g.logger.WarnContext(ctx, "retry attempts exhausted",
			"operation", call.Operation,
			"policy", policy.Name,
			"error", err,
		)
	}
	return err
}

func (g *Guard) shouldRetry(err error) bool {
	if errors.Is(err, circuit.ErrOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	return g.retryable(err)
}

// Value is Do for calls that produce a value.
func Value[T any](ctx context.Context, g *Guard, call Call, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, call, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
