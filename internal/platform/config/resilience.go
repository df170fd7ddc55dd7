package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ehs/internal/ratelimit"
	"ehs/pkg/platform/retry"
)

// Resilience is the tunable part of the ingestion runtime. Anything absent
// from the YAML file keeps its built-in default.
type Resilience struct {
	Policies       []retry.Policy     `yaml:"policies"`
	RateLimits     []ratelimit.Config `yaml:"rate_limits"`
	CircuitBreaker BreakerConfig      `yaml:"circuit_breaker"`
	Resolver       ResolverConfig     `yaml:"resolver"`
	Failure        FailureConfig      `yaml:"failure"`
}

type BreakerConfig struct {
	FailureThreshold int                      `yaml:"failure_threshold" json:"failure_threshold"`
	Cooldown         time.Duration            `yaml:"cooldown" json:"cooldown"`
	Overrides        map[string]BreakerConfig `yaml:"overrides" json:"overrides,omitempty"`
}

type ResolverConfig struct {
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
	AutoAccept     float64 `yaml:"auto_accept"`
	MaxCandidates  int     `yaml:"max_candidates"`
}

type FailureConfig struct {
	ConsecutiveThreshold int           `yaml:"consecutive_threshold"`
	DedupeWindow         time.Duration `yaml:"dedupe_window"`
}

// DefaultResilience returns the built-in settings.
func DefaultResilience() Resilience {
	return Resilience{
		Policies:   retry.Defaults(),
		RateLimits: ratelimit.Defaults(),
		CircuitBreaker: BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
		Resolver: ResolverConfig{
			FuzzyThreshold: 0.85,
			AutoAccept:     0.90,
			MaxCandidates:  3,
		},
		Failure: FailureConfig{
			ConsecutiveThreshold: 5,
			DedupeWindow:         10 * time.Minute,
		},
	}
}

// LoadResilience reads a YAML file, expands ${ENV} references and merges the
// result over DefaultResilience. An empty path returns the defaults.
func LoadResilience(path string) (Resilience, error) {
	cfg := DefaultResilience()
	if path == "" {
		return cfg, nil
	}

	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Resilience{}, fmt.Errorf("read resilience config: %w", err)
	}
	return ParseResilience(raw)
}

// ParseResilience merges YAML bytes over DefaultResilience.
func ParseResilience(raw []byte) (Resilience, error) {
	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var file Resilience
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return Resilience{}, fmt.Errorf("parse resilience config: %w", err)
	}

	cfg := DefaultResilience()
	cfg.Policies = mergeByName(cfg.Policies, file.Policies, func(p retry.Policy) string { return p.Name })
	cfg.RateLimits = mergeByName(cfg.RateLimits, file.RateLimits, func(c ratelimit.Config) string { return c.Name })
	if file.CircuitBreaker.FailureThreshold > 0 {
		cfg.CircuitBreaker.FailureThreshold = file.CircuitBreaker.FailureThreshold
	}
	if file.CircuitBreaker.Cooldown > 0 {
		cfg.CircuitBreaker.Cooldown = file.CircuitBreaker.Cooldown
	}
	cfg.CircuitBreaker.Overrides = file.CircuitBreaker.Overrides
	if file.Resolver.FuzzyThreshold > 0 {
		cfg.Resolver.FuzzyThreshold = file.Resolver.FuzzyThreshold
	}
	if file.Resolver.AutoAccept > 0 {
		cfg.Resolver.AutoAccept = file.Resolver.AutoAccept
	}
	if file.Resolver.MaxCandidates > 0 {
		cfg.Resolver.MaxCandidates = file.Resolver.MaxCandidates
	}
	if file.Failure.ConsecutiveThreshold > 0 {
		cfg.Failure.ConsecutiveThreshold = file.Failure.ConsecutiveThreshold
	}
	if file.Failure.DedupeWindow > 0 {
		cfg.Failure.DedupeWindow = file.Failure.DedupeWindow
	}

	return cfg, cfg.Validate()
}

func (c Resilience) Validate() error {
	var errs []error
	for _, p := range c.Policies {
		errs = append(errs, p.Validate())
	}
	for _, l := range c.RateLimits {
		errs = append(errs, l.Validate())
	}
	if c.CircuitBreaker.FailureThreshold < 1 {
		errs = append(errs, errors.New("circuit_breaker.failure_threshold must be positive"))
	}
	for name, o := range c.CircuitBreaker.Overrides {
		if o.FailureThreshold < 0 || o.Cooldown < 0 {
			errs = append(errs, fmt.Errorf("circuit_breaker.overrides.%s must not be negative", name))
		}
	}
	if c.Resolver.FuzzyThreshold <= 0 || c.Resolver.FuzzyThreshold > 1 {
		errs = append(errs, errors.New("resolver.fuzzy_threshold must be in (0, 1]"))
	}
	if c.Resolver.AutoAccept < c.Resolver.FuzzyThreshold || c.Resolver.AutoAccept > 1 {
		errs = append(errs, errors.New("resolver.auto_accept must be between fuzzy_threshold and 1"))
	}
	return errors.Join(errs...)
}

// mergeByName replaces defaults that share a name with an override and
// appends new names, keeping default order first.
func mergeByName[T any](defaults, overrides []T, name func(T) string) []T {
	out := append([]T(nil), defaults...)
	index := make(map[string]int, len(out))
	for i, v := range out {
		index[name(v)] = i
	}
	for _, v := range overrides {
		if i, ok := index[name(v)]; ok {
			out[i] = v
			continue
		}
		index[name(v)] = len(out)
		out = append(out, v)
	}
	return out
}
