// Package pipeline runs raw enforcement records through normalization,
// offender resolution and the duplicate-safe upsert.
package pipeline

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ehs/internal/domain"
	"ehs/internal/enforcement/models"
	"ehs/internal/failure"
	offendermodels "ehs/internal/offender/models"
	"ehs/pkg/platform/resilience"
	"ehs/pkg/platform/retry"
	"ehs/pkg/platform/sentinel"
)

// Operation names used for breakers, metrics and failure fingerprints.
const (
	OpNormalize = "record.normalize"
	OpResolve   = "offender.resolve"
	OpUpsert    = "enforcement.upsert"
	OpCorrect   = "enforcement.correct"
	OpRegistry  = "registry.search"
)

type Normalizer interface {
	Normalize(raw domain.RawRecord) (domain.NormalizedRecord, error)
}

type Resolver interface {
	ResolveOrCreate(ctx context.Context, subject domain.Subject, agency domain.Agency) (*offendermodels.Resolution, error)
}

type Upserter interface {
	Process(ctx context.Context, rec domain.NormalizedRecord, offender *offendermodels.Offender) (models.Result, error)
}

// Corrector applies operator corrections to records that already exist.
type Corrector interface {
	Correct(ctx context.Context, rec domain.NormalizedRecord) (models.Result, error)
}

// ErrCorrectionsDisabled is returned by CorrectRecord when no Corrector is wired.
var ErrCorrectionsDisabled = errors.New("record corrections are not configured")

type Metrics interface {
	ObserveRecordDuration(seconds float64)
}

// parked is a record whose upsert failed with a business error and could not
// be reconciled inline.
type parked struct {
	rec      domain.NormalizedRecord
	offender *offendermodels.Offender
	cause    *failure.ClassifiedError
}

type Service struct {
	normalizer   Normalizer
	resolver     Resolver
	upserter     Upserter
	corrector    Corrector
	guard        *resilience.Guard
	failures     *failure.Handler
	orchestrator *failure.Orchestrator
	metrics      Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time

	mu      sync.Mutex
	pending map[domain.RecordKey]parked
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Deps are the collaborators every Service needs.
type Deps struct {
	Normalizer   Normalizer
	Resolver     Resolver
	Upserter     Upserter
	Guard        *resilience.Guard
	Failures     *failure.Handler
	Orchestrator *failure.Orchestrator
	// Corrector is optional; without it CorrectRecord is disabled.
	Corrector Corrector
}

func New(deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Normalizer == nil:
		return nil, errors.New("normalizer is required")
	case deps.Resolver == nil:
		return nil, errors.New("offender resolver is required")
	case deps.Upserter == nil:
		return nil, errors.New("upsert engine is required")
	case deps.Guard == nil:
		return nil, errors.New("resilience guard is required")
	case deps.Failures == nil:
		return nil, errors.New("failure handler is required")
	case deps.Orchestrator == nil:
		return nil, errors.New("recovery orchestrator is required")
	}
	s := &Service{
		normalizer:   deps.Normalizer,
		resolver:     deps.Resolver,
		upserter:     deps.Upserter,
		corrector:    deps.Corrector,
		guard:        deps.Guard,
		failures:     deps.Failures,
		orchestrator: deps.Orchestrator,
		logger:       slog.Default(),
		tracer:       otel.Tracer("ehs/pipeline"),
		now:          time.Now,
		pending:      make(map[domain.RecordKey]parked),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProcessRecord normalizes raw, resolves its offender and upserts it. Errors
// are returned as *failure.ClassifiedError wrapping the cause. A business
// failure is reconciled once inline; if that fails the record is parked for
// ReconcilePending.
func (s *Service) ProcessRecord(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "pipeline.process_record", trace.WithAttributes(
		attribute.String("agency", string(raw.Agency)),
		attribute.String("kind", string(raw.Kind)),
		attribute.String("regulator_id", raw.RegulatorID),
	))
	defer span.End()
	start := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveRecordDuration(s.now().Sub(start).Seconds())
		}
	}()

	rec, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, "", s.fail(ctx, span, err, failure.Context{Operation: OpNormalize, Source: string(raw.Agency), Layer: failure.LayerApplication})
	}
	s.failures.RecordSuccess(OpNormalize)

	resolution, err := resilience.Value(ctx, s.guard, resilience.Call{Policy: retry.PolicyDatabase, Operation: OpResolve},
		func(ctx context.Context) (*offendermodels.Resolution, error) {
			return s.resolver.ResolveOrCreate(ctx, rec.Subject, rec.Key.Agency)
		})
	if err != nil {
		return nil, "", s.fail(ctx, span, err, failure.Context{Operation: OpResolve, Source: string(rec.Key.Agency), Layer: failure.LayerDatabase})
	}
	s.failures.RecordSuccess(OpResolve)
	span.SetAttributes(attribute.String("offender_tier", string(resolution.Tier)))

	result, err := s.upsert(ctx, rec, resolution.Offender)
	if err != nil {
		ectx := failure.Context{Operation: OpUpsert, Source: string(rec.Key.Agency), Layer: failure.LayerDatabase}
		ce := s.failures.Handle(ctx, err, ectx)
		if ce.Action != failure.ActionHandleBusinessLogic {
			return nil, "", s.traced(span, ce)
		}
		rr := s.orchestrator.Recover(ctx, ce, failure.RecoveryOptions{
			Reconcile: func(ctx context.Context) error {
				var rerr error
				result, rerr = s.upsert(ctx, rec, resolution.Offender)
				return rerr
			},
		})
		if !rr.Succeeded {
			s.park(rec, resolution.Offender, ce)
			return nil, "", s.traced(span, ce)
		}
	}
	s.failures.RecordSuccess(OpUpsert)

	span.SetAttributes(attribute.String("outcome", string(result.Outcome)))
	s.logger.InfoContext(ctx, "record processed",
		"agency", rec.Key.Agency,
		"regulator_id", rec.Key.RegulatorID,
		"offender_id", resolution.Offender.ID.String(),
		"tier", resolution.Tier,
		"outcome", result.Outcome,
	)
	return result.Record, result.Outcome, nil
}

// CorrectRecord applies raw as an operator correction to the record with the
// same key. A missing record returns an error matching sentinel.ErrNotFound
// and is not counted as a failure.
func (s *Service) CorrectRecord(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error) {
	if s.corrector == nil {
		return nil, "", ErrCorrectionsDisabled
	}
	ctx, span := s.tracer.Start(ctx, "pipeline.correct_record", trace.WithAttributes(
		attribute.String("agency", string(raw.Agency)),
		attribute.String("regulator_id", raw.RegulatorID),
	))
	defer span.End()

	rec, err := s.normalizer.Normalize(raw)
	if err != nil {
		return nil, "", s.fail(ctx, span, err, failure.Context{Operation: OpNormalize, Source: string(raw.Agency), Layer: failure.LayerApplication})
	}
	s.failures.RecordSuccess(OpNormalize)

	var missing error
	result, err := resilience.Value(ctx, s.guard, resilience.Call{Policy: retry.PolicyDatabase, Operation: OpCorrect},
		func(ctx context.Context) (models.Result, error) {
			res, err := s.corrector.Correct(ctx, rec)
			if errors.Is(err, sentinel.ErrNotFound) {
				missing = err
				return res, nil
			}
			return res, err
		})
	if err != nil {
		return nil, "", s.fail(ctx, span, err, failure.Context{Operation: OpCorrect, Source: string(rec.Key.Agency), Layer: failure.LayerDatabase})
	}
	if missing != nil {
		span.SetStatus(codes.Error, "record not found")
		return nil, "", missing
	}
	s.failures.RecordSuccess(OpCorrect)

	s.logger.InfoContext(ctx, "record corrected",
		"agency", rec.Key.Agency,
		"regulator_id", rec.Key.RegulatorID,
		"outcome", result.Outcome,
		"changed", result.Changed,
	)
	return result.Record, result.Outcome, nil
}

func (s *Service) upsert(ctx context.Context, rec domain.NormalizedRecord, offender *offendermodels.Offender) (models.Result, error) {
	return resilience.Value(ctx, s.guard, resilience.Call{Policy: retry.PolicyDatabase, Operation: OpUpsert},
		func(ctx context.Context) (models.Result, error) {
			return s.upserter.Process(ctx, rec, offender)
		})
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error, ectx failure.Context) error {
	return s.traced(span, s.failures.Handle(ctx, err, ectx))
}

func (s *Service) traced(span trace.Span, ce *failure.ClassifiedError) error {
	span.RecordError(ce.Err)
	span.SetStatus(codes.Error, ce.Classification.String())
	return ce
}

func (s *Service) park(rec domain.NormalizedRecord, offender *offendermodels.Offender, cause *failure.ClassifiedError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[rec.Key] = parked{rec: rec, offender: offender, cause: cause}
}

// Pending lists the keys parked for reconciliation, sorted.
func (s *Service) Pending() []domain.RecordKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]domain.RecordKey, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b domain.RecordKey) int { return cmp.Compare(a.String(), b.String()) })
	return keys
}

// ReconcilePending retries every parked record through the upsert path.
// Reconciled records leave the queue.
func (s *Service) ReconcilePending(ctx context.Context) []failure.RecoveryResult {
	s.mu.Lock()
	items := make([]failure.ReconcileItem, 0, len(s.pending))
	work := make(map[domain.RecordKey]parked, len(s.pending))
	for k, p := range s.pending {
		items = append(items, failure.ReconcileItem{Key: k, Cause: p.cause})
		work[k] = p
	}
	s.mu.Unlock()
	slices.SortFunc(items, func(a, b failure.ReconcileItem) int { return cmp.Compare(a.Key.String(), b.Key.String()) })

	results := s.orchestrator.Reconcile(ctx, items, func(ctx context.Context, item failure.ReconcileItem) error {
		p := work[item.Key]
		_, err := s.upsert(ctx, p.rec, p.offender)
		return err
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		if r.Succeeded {
			delete(s.pending, r.Key)
		}
	}
	return results
}

// Failures exposes the failure handler for reporting.
func (s *Service) Failures() *failure.Handler { return s.failures }
