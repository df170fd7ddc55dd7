// Package service implements the duplicate-safe upsert of enforcement
// records keyed by (agency, regulator id).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ehs/internal/domain"
	"ehs/internal/enforcement/models"
	"ehs/internal/events"
	offendermodels "ehs/internal/offender/models"
	id "ehs/pkg/domain"
	"ehs/pkg/platform/dberr"
	"ehs/pkg/platform/sentinel"
)

// Store persists records. Insert returns *dberr.ConstraintViolation naming
// models.KeyConstraint when the key exists; lookups return
// sentinel.ErrNotFound.
type Store interface {
	Insert(ctx context.Context, r *models.Record) error
	FindByKey(ctx context.Context, key domain.RecordKey) (*models.Record, error)
	UpdateFields(ctx context.Context, recordID id.RecordID, changes models.Changes, now time.Time) (*models.Record, error)
}

// Metrics receives upsert counters.
type Metrics interface {
	IncUpsertOutcome(agency, kind, workflow, outcome string)
	IncEventPublishFailed(workflow string)
}

var (
	ErrNoOffender = errors.New("resolved offender is required")
	ErrWorkflow   = errors.New("unknown workflow")
)

type Engine struct {
	store     Store
	publisher events.Publisher
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Engine)

func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(store Store, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("record store is required")
	}
	e := &Engine{
		store:     store,
		publisher: events.Discard{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Process upserts rec for offender on the ingestion workflow.
func (e *Engine) Process(ctx context.Context, rec domain.NormalizedRecord, offender *offendermodels.Offender) (models.Result, error) {
	return e.ProcessWith(ctx, rec, offender, models.WorkflowIngestion)
}

// ProcessWith inserts rec, or on a key collision reconciles it with the
// stored row: no differing field means OutcomeExisting with no write,
// otherwise only the differing fields are updated.
func (e *Engine) ProcessWith(ctx context.Context, rec domain.NormalizedRecord, offender *offendermodels.Offender, workflow models.Workflow) (models.Result, error) {
	if !workflow.IsValid() {
		return models.Result{}, fmt.Errorf("%w: %q", ErrWorkflow, workflow)
	}
	if err := rec.Validate(); err != nil {
		return models.Result{}, err
	}
	if offender == nil || offender.ID.IsNil() {
		return models.Result{}, ErrNoOffender
	}

	result, err := e.upsert(ctx, rec, offender.ID)
	if err != nil {
		return models.Result{}, err
	}
	e.emit(ctx, workflow, result)
	return result, nil
}

func (e *Engine) upsert(ctx context.Context, rec domain.NormalizedRecord, offenderID id.OffenderID) (models.Result, error) {
	// The second pass covers a row deleted between our insert and read.
	for attempt := 0; attempt < 2; attempt++ {
		next := models.NewRecord(rec, offenderID, e.now())
		err := e.store.Insert(ctx, next)
		if err == nil {
			return models.Result{Record: next, Outcome: models.OutcomeCreated}, nil
		}
		if !dberr.On(err, models.KeyConstraint) {
			return models.Result{}, err
		}

		result, err := e.reconcile(ctx, rec.Key, next)
		if errors.Is(err, sentinel.ErrNotFound) {
			e.logger.DebugContext(ctx, "record vanished after key collision, retrying insert", "key", rec.Key.String())
			continue
		}
		return result, err
	}
	return models.Result{}, &domain.BusinessError{
		Kind: domain.BusinessSyncFailure,
		Key:  rec.Key,
		Err:  errors.New("record kept vanishing between insert and read"),
	}
}

// reconcile diffs next against the stored row for key and applies the
// difference.
func (e *Engine) reconcile(ctx context.Context, key domain.RecordKey, next *models.Record) (models.Result, error) {
	current, err := e.store.FindByKey(ctx, key)
	if err != nil {
		return models.Result{}, err
	}
	changes := models.Diff(current, next)
	if changes.Empty() {
		return models.Result{Record: current, Outcome: models.OutcomeExisting}, nil
	}
	updated, err := e.store.UpdateFields(ctx, current.ID, changes, e.now())
	if err != nil {
		return models.Result{}, err
	}
	return models.Result{Record: updated, Outcome: models.OutcomeUpdated, Changed: changes.Fields}, nil
}

// Correct applies an operator correction to an existing record. The record
// must exist; its outcome is published on the correction workflow.
func (e *Engine) Correct(ctx context.Context, rec domain.NormalizedRecord) (models.Result, error) {
	if err := rec.Validate(); err != nil {
		return models.Result{}, err
	}
	current, err := e.store.FindByKey(ctx, rec.Key)
	if err != nil {
		return models.Result{}, fmt.Errorf("correct %s: %w", rec.Key, err)
	}
	result, err := e.reconcile(ctx, rec.Key, models.NewRecord(rec, current.OffenderID, e.now()))
	if err != nil {
		return models.Result{}, fmt.Errorf("correct %s: %w", rec.Key, err)
	}
	e.emit(ctx, models.WorkflowCorrection, result)
	return result, nil
}

// emit records and publishes the outcome. Publishing failures never change
// the outcome.
func (e *Engine) emit(ctx context.Context, workflow models.Workflow, result models.Result) {
	r := result.Record
	if e.metrics != nil {
		e.metrics.IncUpsertOutcome(string(r.Key.Agency), string(r.Kind), string(workflow), string(result.Outcome))
	}
	e.logger.DebugContext(ctx, "record upserted",
		"key", r.Key.String(),
		"outcome", result.Outcome,
		"workflow", workflow,
		"changed", result.Changed,
	)
	if err := e.publisher.Publish(ctx, events.New(workflow, result, e.now())); err != nil {
		if e.metrics != nil {
			e.metrics.IncEventPublishFailed(string(workflow))
		}
		e.logger.WarnContext(ctx, "failed to publish outcome event",
			"key", r.Key.String(),
			"workflow", workflow,
			"error", err,
		)
	}
}
