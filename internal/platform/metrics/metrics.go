package metrics

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store holds the Prometheus collectors and the in-process counters shared by
// every ingestion session. It owns its own registry so tests and multiple
// pipelines in one process never collide on global registration.
//
// All methods are safe on a nil receiver so components can treat metrics as
// optional.
type Store struct {
	registry *prometheus.Registry
	counters sync.Map // string -> *atomic.Int64

	RetryAttempts       *prometheus.CounterVec
	RetryExhausted      *prometheus.CounterVec
	BreakerTransitions  *prometheus.CounterVec
	BreakerBlocked      *prometheus.CounterVec
	RateLimitRejections *prometheus.CounterVec
	UpsertOutcomes      *prometheus.CounterVec
	Resolutions         *prometheus.CounterVec
	ClassifiedErrors    *prometheus.CounterVec
	Recoveries          *prometheus.CounterVec
	EventPublishFailed  *prometheus.CounterVec
	RecordDuration      prometheus.Histogram
}

// New creates a Store with all collectors registered on a private registry.
func New() *Store {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Store{
		registry: reg,
		RetryAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ehs_retry_attempts_total",
			Help: "Retry attempts made after a failed call, by policy and operation",
		}, []string{"policy", "operation"}),
		RetryExhausted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ehs_retry_exhausted_total",
			Help: "Calls that failed after every attempt of their retry policy",
		}, []string{"policy", "operation"}),
		BreakerTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ehs_circuit_transitions_total",
			Help: "Circuit breaker state transitions, by circuit and target state",
		}, []string{"circuit", "state"}),
		BreakerBlocked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ehs_circuit_blocked_total",
			Help: "Calls rejected without invocation because the circuit was open",
		}, []string{"circuit"}),
		RateLimitRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ehs_ratelimit_rejections_total",
			Help: "Calls rejected by a sliding-window limiter",
		}, []string{"limiter"}),
		UpsertOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ehs_upsert_outcomes_total",
			Help: "Enforcement record upserts by agency, kind, workflow and outcome",
		}, []string{"agency", "kind", "workflow", "outcome"}),
		Resolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ehs_offender_resolutions_total",
			Help: "Offender resolutions by matching tier",
		}, []string{"tier"}),
		ClassifiedErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ehs_classified_errors_total",
			Help: "Errors passed through the classifier, by kind, subkind and chosen action",
		}, []string{"kind", "subkind", "action"}),
		Recoveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ehs_recoveries_total",
			Help: "Automatic recovery attempts by remedy and result",
		}, []string{"remedy", "result"}),
		EventPublishFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ehs_event_publish_failures_total",
			Help: "Outcome events that could not be published",
		}, []string{"workflow"}),
		RecordDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ehs_record_processing_seconds",
			Help:    "End-to-end processing time of one raw record",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// Registry exposes the private registry for the /metrics handler.
func (s *Store) Registry() *prometheus.Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Store) counter(key string) *atomic.Int64 {
	if c, ok := s.counters.Load(key); ok {
		return c.(*atomic.Int64)
	}
	c, _ := s.counters.LoadOrStore(key, new(atomic.Int64))
	return c.(*atomic.Int64)
}

// Inc increments the in-process counter for key and returns the new value.
func (s *Store) Inc(key string) int64 {
	return s.Add(key, 1)
}

// Add adds n to the counter for key and returns the new value.
func (s *Store) Add(key string, n int64) int64 {
	if s == nil {
		return 0
	}
	return s.counter(key).Add(n)
}

// Get returns the current value of the counter for key.
func (s *Store) Get(key string) int64 {
	if s == nil {
		return 0
	}
	if c, ok := s.counters.Load(key); ok {
		return c.(*atomic.Int64).Load()
	}
	return 0
}

// Reset sets the counter for key back to zero.
func (s *Store) Reset(key string) {
	if s == nil {
		return
	}
	if c, ok := s.counters.Load(key); ok {
		c.(*atomic.Int64).Store(0)
	}
}

// Snapshot copies every in-process counter.
func (s *Store) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	if s == nil {
		return out
	}
	s.counters.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

// Keys returns the counter keys in sorted order.
func (s *Store) Keys() []string {
	snap := s.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) IncRetryAttempt(policy, operation string) {
	if s == nil {
		return
	}
	s.RetryAttempts.WithLabelValues(policy, operation).Inc()
	s.Inc("retry_attempts:" + operation)
}

func (s *Store) IncRetryExhausted(policy, operation string) {
	if s == nil {
		return
	}
	s.RetryExhausted.WithLabelValues(policy, operation).Inc()
	s.Inc("retry_exhausted:" + operation)
}

func (s *Store) IncBreakerTransition(circuit, state string) {
	if s == nil {
		return
	}
	s.BreakerTransitions.WithLabelValues(circuit, state).Inc()
}

func (s *Store) IncBreakerBlocked(circuit string) {
	if s == nil {
		return
	}
	s.BreakerBlocked.WithLabelValues(circuit).Inc()
}

func (s *Store) IncRateLimitRejection(limiter string) {
	if s == nil {
		return
	}
	s.RateLimitRejections.WithLabelValues(limiter).Inc()
	s.Inc("ratelimit_rejections:" + limiter)
}

func (s *Store) IncUpsertOutcome(agency, kind, workflow, outcome string) {
	if s == nil {
		return
	}
	s.UpsertOutcomes.WithLabelValues(agency, kind, workflow, outcome).Inc()
	s.Inc("upsert:" + outcome)
}

func (s *Store) IncResolution(tier string) {
	if s == nil {
		return
	}
	s.Resolutions.WithLabelValues(tier).Inc()
}

func (s *Store) IncClassifiedError(kind, subkind, action string) {
	if s == nil {
		return
	}
	s.ClassifiedErrors.WithLabelValues(kind, subkind, action).Inc()
	s.Inc("errors:" + kind + ":" + subkind)
}

func (s *Store) IncRecovery(remedy string, succeeded bool) {
	if s == nil {
		return
	}
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	s.Recoveries.WithLabelValues(remedy, result).Inc()
	s.Inc("recovery:" + result)
}

func (s *Store) IncEventPublishFailed(workflow string) {
	if s == nil {
		return
	}
	s.EventPublishFailed.WithLabelValues(workflow).Inc()
}

func (s *Store) ObserveRecordDuration(seconds float64) {
	if s == nil {
		return
	}
	s.RecordDuration.Observe(seconds)
}
