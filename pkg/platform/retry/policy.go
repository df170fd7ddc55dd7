// Package retry turns a Policy into a delay sequence and drives a call through
// it. Delay computation is pure so callers and tests can inspect the exact
// schedule a policy produces.
package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

// Backoff is the shape of the delay sequence.
type Backoff string

const (
	BackoffExponential Backoff = "exponential"
	BackoffLinear      Backoff = "linear"
	BackoffFibonacci   Backoff = "fibonacci"
)

// IsValid checks if the backoff is one of the supported shapes.
func (b Backoff) IsValid() bool {
	switch b {
	case BackoffExponential, BackoffLinear, BackoffFibonacci:
		return true
	}
	return false
}

// Names of the built-in policies.
const (
	PolicyAPI      = "api_operations"
	PolicyDatabase = "database_operations"
	PolicyCritical = "critical_operations"
)

// Policy is an immutable retry configuration.
type Policy struct {
	Name           string        `yaml:"name" json:"name"`
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay       time.Duration `yaml:"max_delay" json:"max_delay"`
	Backoff        Backoff       `yaml:"backoff" json:"backoff"`
	Jitter         bool          `yaml:"jitter" json:"jitter"`
	CircuitBreaker bool          `yaml:"circuit_breaker" json:"circuit_breaker"`
}

// Validate reports the first invalid field.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("policy %q: max_attempts must be at least 1", p.Name)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("policy %q: base_delay must not be negative", p.Name)
	}
	if p.MaxDelay > 0 && p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("policy %q: max_delay must be >= base_delay", p.Name)
	}
	if !p.Backoff.IsValid() {
		return fmt.Errorf("policy %q: unknown backoff %q", p.Name, p.Backoff)
	}
	return nil
}

// Delays returns one delay per attempt. The driver sleeps delays[i] after the
// i-th failed attempt when another attempt follows.
func Delays(p Policy) []time.Duration {
	return delays(p, rand.Float64)
}

func delays(p Policy, rnd func() float64) []time.Duration {
	if p.MaxAttempts < 1 {
		return nil
	}
	out := make([]time.Duration, p.MaxAttempts)
	for n := 1; n <= p.MaxAttempts; n++ {
		var d time.Duration
		switch p.Backoff {
		case BackoffLinear:
			d = p.BaseDelay
		case BackoffFibonacci:
			d = capped(scale(p.BaseDelay, fib(n)), p.MaxDelay)
		default:
			d = capped(scale(p.BaseDelay, pow2(n-1)), p.MaxDelay)
			if p.Jitter {
				d = jitter(d, rnd)
			}
		}
		out[n-1] = d
	}
	return out
}

// jitter spreads d uniformly over [0.5d, 1.5d).
func jitter(d time.Duration, rnd func() float64) time.Duration {
	if d <= 0 {
		return d
	}
	return time.Duration(float64(d) * (0.5 + rnd()))
}

func capped(d, ceiling time.Duration) time.Duration {
	if ceiling > 0 && (d > ceiling || d < 0) {
		return ceiling
	}
	return d
}

// scale multiplies without wrapping; overflow saturates.
func scale(base time.Duration, factor uint64) time.Duration {
	if base <= 0 || factor == 0 {
		return 0
	}
	if factor > uint64(math.MaxInt64)/uint64(base) {
		return time.Duration(math.MaxInt64)
	}
	return base * time.Duration(factor)
}

func pow2(n int) uint64 {
	if n >= 63 {
		return math.MaxUint64
	}
	return 1 << uint(n)
}

func fib(n int) uint64 {
	a, b := uint64(0), uint64(1)
	for i := 0; i < n; i++ {
		if b > math.MaxUint64-a {
			return math.MaxUint64
		}
		a, b = b, a+b
	}
	return a
}

// Defaults returns the built-in named policies.
func Defaults() []Policy {
	return []Policy{
		{
			Name:        PolicyAPI,
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Backoff:     BackoffExponential,
			Jitter:      true,
		},
		{
			Name:           PolicyDatabase,
			MaxAttempts:    5,
			BaseDelay:      500 * time.Millisecond,
			MaxDelay:       10 * time.Second,
			Backoff:        BackoffExponential,
			CircuitBreaker: true,
		},
		{
			Name:           PolicyCritical,
			MaxAttempts:    10,
			BaseDelay:      100 * time.Millisecond,
			MaxDelay:       60 * time.Second,
			Backoff:        BackoffFibonacci,
			CircuitBreaker: true,
		},
	}
}

// Policies is a concurrency-safe set of named policies.
type Policies struct {
	mu     sync.RWMutex
	byName map[string]Policy
}

// NewPolicies creates a set seeded with the given policies.
func NewPolicies(policies ...Policy) *Policies {
	p := &Policies{byName: make(map[string]Policy, len(policies))}
	for _, policy := range policies {
		p.byName[policy.Name] = policy
	}
	return p
}

// DefaultPolicies returns a set seeded with Defaults.
func DefaultPolicies() *Policies {
	return NewPolicies(Defaults()...)
}

func (p *Policies) Get(name string) (Policy, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	policy, ok := p.byName[name]
	return policy, ok
}

// Set adds or replaces a policy after validating it.
func (p *Policies) Set(policy Policy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byName[policy.Name] = policy
	return nil
}

// All returns the policies sorted by name.
func (p *Policies) All() []Policy {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Policy, 0, len(p.byName))
	for _, policy := range p.byName {
		out = append(out, policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
