// Package circuit implements a named closed/open/half-open circuit breaker and
// a registry that owns one breaker per dependency.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker's current mode.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen matches every rejection made while a circuit is open.
var ErrOpen = errors.New("circuit open")

// OpenError names the circuit that rejected the call.
type OpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: %s (retry after %s)", ErrOpen, e.Name, e.RetryAfter)
}

func (e *OpenError) Is(target error) bool { return target == ErrOpen }

// StateChange reports a transition caused by a Record call.
type StateChange struct {
	Opened     bool
	HalfOpened bool
	Closed     bool
}

// Stats is a point-in-time view of a breaker. Reading it never changes
// breaker state.
type Stats struct {
	Name             string        `json:"name"`
	State            State         `json:"state"`
	Failures         int           `json:"failure_count"`
	FailureThreshold int           `json:"failure_threshold"`
	LastFailure      time.Time     `json:"last_failure_at,omitzero"`
	Cooldown         time.Duration `json:"cooldown"`
	TotalCalls       int64         `json:"total_calls"`
	SuccessfulCalls  int64         `json:"successful_calls"`
	FailedCalls      int64         `json:"failed_calls"`
	BlockedCalls     int64         `json:"blocked_calls"`
	FailureRate      float64       `json:"failure_rate"`
}

// Breaker stops calling a failing dependency until it likely recovered.
//
// closed: calls pass; consecutive failures reaching the threshold open it.
// open: calls are rejected until cooldown has elapsed since the last failure.
// half_open: exactly one trial call passes; success closes, failure re-opens.
type Breaker struct {
	mu sync.Mutex

	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	isFailure func(error) bool
	onChange  func(name string, from, to State)

	state       State
	failures    int
	lastFailure time.Time
	trialActive bool

	total   int64
	success int64
	failed  int64
	blocked int64
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets consecutive failures needed to open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long the circuit stays open after the last failure.
func WithCooldown(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithFailurePredicate decides which errors count against the circuit. Errors
// it rejects are treated as the dependency answering, i.e. as success.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(b *Breaker) {
		if fn != nil {
			b.isFailure = fn
		}
	}
}

// WithOnStateChange registers a transition hook. It runs outside the lock.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// New creates a closed breaker. Defaults: threshold 5, cooldown 30s.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: 5,
		cooldown:  30 * time.Second,
		now:       time.Now,
		isFailure: defaultIsFailure,
		state:     StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

// State returns the current state, promoting open to half_open for display
// once the cooldown has elapsed without admitting a trial.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.cooldownElapsed() {
		return StateHalfOpen
	}
	return b.state
}

func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

func (b *Breaker) cooldownElapsed() bool {
	return !b.now().Before(b.lastFailure.Add(b.cooldown))
}

// Allow reports whether a call may proceed and reserves the half-open trial
// when it does.
func (b *Breaker) Allow() (bool, time.Duration) {
	b.mu.Lock()
	allowed, retryAfter, change := b.allowLocked()
	b.mu.Unlock()
	b.notify(change)
	return allowed, retryAfter
}

func (b *Breaker) allowLocked() (bool, time.Duration, *transition) {
	switch b.state {
	case StateClosed:
		return true, 0, nil
	case StateOpen:
		if b.cooldownElapsed() {
			b.state = StateHalfOpen
			b.trialActive = true
			return true, 0, &transition{from: StateOpen, to: StateHalfOpen}
		}
		b.blocked++
		return false, b.lastFailure.Add(b.cooldown).Sub(b.now()), nil
	default:
		if b.trialActive {
			b.blocked++
			return false, 0, nil
		}
		b.trialActive = true
		return true, 0, nil
	}
}

type transition struct {
	from, to State
}

func (b *Breaker) notify(t *transition) {
	if t != nil && b.onChange != nil {
		b.onChange(b.name, t.from, t.to)
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() StateChange {
	b.mu.Lock()
	b.total++
	b.success++
	var t *transition
	var change StateChange
	switch b.state {
	case StateHalfOpen:
		t = &transition{from: StateHalfOpen, to: StateClosed}
		change.Closed = true
		b.state = StateClosed
		b.failures = 0
		b.trialActive = false
	case StateClosed:
		b.failures = 0
	}
	b.mu.Unlock()
	b.notify(t)
	return change
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() StateChange {
	b.mu.Lock()
	b.total++
	b.failed++
	b.failures++
	b.lastFailure = b.now()

	var t *transition
	var change StateChange
	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			b.state = StateOpen
			t = &transition{from: StateClosed, to: StateOpen}
			change.Opened = true
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.trialActive = false
		t = &transition{from: StateHalfOpen, to: StateOpen}
		change.Opened = true
	}
	b.mu.Unlock()
	b.notify(t)
	return change
}

// release gives back a reserved half-open trial without recording a result.
func (b *Breaker) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialActive = false
}

// Execute runs fn unless the circuit rejects the call.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	allowed, retryAfter := b.Allow()
	if !allowed {
		return &OpenError{Name: b.name, RetryAfter: retryAfter}
	}

	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordSuccess()
	case errors.Is(err, context.Canceled):
		b.release()
	case b.isFailure(err):
		b.RecordFailure()
	default:
		b.RecordSuccess()
	}
	return err
}

// Reset manually closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.trialActive = false
	b.mu.Unlock()
	if from != StateClosed {
		b.notify(&transition{from: from, to: StateClosed})
	}
}

// Stats returns a snapshot of counters and state.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.state
	if state == StateOpen && b.cooldownElapsed() {
		state = StateHalfOpen
	}
	var rate float64
	if b.total > 0 {
		rate = float64(b.failed) / float64(b.total)
	}
	return Stats{
		Name:             b.name,
		State:            state,
		Failures:         b.failures,
		FailureThreshold: b.threshold,
		LastFailure:      b.lastFailure,
		Cooldown:         b.cooldown,
		TotalCalls:       b.total,
		SuccessfulCalls:  b.success,
		FailedCalls:      b.failed,
		BlockedCalls:     b.blocked,
		FailureRate:      rate,
	}
}
