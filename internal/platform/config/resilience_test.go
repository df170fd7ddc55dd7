package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ehs/pkg/platform/retry"
)

func TestLoadResilience_Defaults(t *testing.T) {
	cfg, err := LoadResilience("")
	require.NoError(t, err)

	require.Len(t, cfg.Policies, 3)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.Cooldown)
	assert.InDelta(t, 0.85, cfg.Resolver.FuzzyThreshold, 1e-9)
	assert.Equal(t, 3, cfg.Resolver.MaxCandidates)
}

func TestParseResilience_MergesOverDefaults(t *testing.T) {
	t.Setenv("EHS_TEST_ATTEMPTS", "7")
	raw := []byte(`
policies:
  - name: api_operations
    max_attempts: ${EHS_TEST_ATTEMPTS}
    base_delay: 2s
    max_delay: 20s
    backoff: linear
  - name: registry_lookups
    max_attempts: 2
    base_delay: 250ms
    max_delay: 1s
    backoff: exponential
rate_limits:
  - name: hse_api
    max_requests: 30
    window: 1m
circuit_breaker:
  cooldown: 45s
  overrides:
    enforcement.upsert:
      failure_threshold: 3
`)

	cfg, err := ParseResilience(raw)
	require.NoError(t, err)

	byName := map[string]retry.Policy{}
	for _, p := range cfg.Policies {
		byName[p.Name] = p
	}
	require.Len(t, byName, 4)
	assert.Equal(t, 7, byName[retry.PolicyAPI].MaxAttempts)
	assert.Equal(t, retry.BackoffLinear, byName[retry.PolicyAPI].Backoff)
	assert.Equal(t, 250*time.Millisecond, byName["registry_lookups"].BaseDelay)
	assert.Equal(t, 5, byName[retry.PolicyDatabase].MaxAttempts, "untouched defaults survive")

	assert.Equal(t, 45*time.Second, cfg.CircuitBreaker.Cooldown)
	assert.Equal(t, 5, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 3, cfg.CircuitBreaker.Overrides["enforcement.upsert"].FailureThreshold)

	for _, l := range cfg.RateLimits {
		if l.Name == "hse_api" {
			assert.Equal(t, 30, l.MaxRequests)
		}
	}
}

func TestParseResilience_RejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown backoff": "policies:\n  - name: x\n    max_attempts: 1\n    backoff: quadratic\n",
		"zero attempts":   "policies:\n  - name: x\n    max_attempts: 0\n    backoff: linear\n",
		"bad limiter":     "rate_limits:\n  - name: x\n    max_requests: 0\n    window: 1m\n",
		"bad threshold":   "resolver:\n  fuzzy_threshold: 0.95\n  auto_accept: 0.9\n",
		"not yaml":        "policies: [",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseResilience([]byte(raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadResilience_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resilience.yaml")
	require.NoError(t, os.WriteFile(path, []byte("failure:\n  consecutive_threshold: 8\n"), 0o600))

	cfg, err := LoadResilience(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Failure.ConsecutiveThreshold)

	_, err = LoadResilience(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("EHS_ADDR", ":9090")
	t.Setenv("EHS_KAFKA_BROKERS", "a:9092, b:9092,,")
	t.Setenv("EHS_REDIS_READ_TIMEOUT", "750ms")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 750*time.Millisecond, cfg.Redis.ReadTimeout)
	assert.Equal(t, "ehs", cfg.Kafka.TopicPrefix)
}
