// Package service resolves the subject of an enforcement record to a stable
// offender identity, creating one when no tier matches.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"ehs/internal/domain"
	"ehs/internal/normalize"
	"ehs/internal/offender/models"
	"ehs/internal/offender/names"
	"ehs/internal/offender/registry"
	id "ehs/pkg/domain"
	"ehs/pkg/platform/dberr"
)

// Store persists offender identities. Lookups return sentinel.ErrNotFound on
// a miss; Create returns *dberr.ConstraintViolation when a unique index
// rejects the row.
type Store interface {
	Create(ctx context.Context, o *models.Offender) error
	FindByID(ctx context.Context, offenderID id.OffenderID) (*models.Offender, error)
	FindByCompanyNumber(ctx context.Context, number string) (*models.Offender, error)
	FindByNameAndPostcode(ctx context.Context, normalizedName, postcode string) (*models.Offender, error)
	FindByName(ctx context.Context, normalizedName string) ([]*models.Offender, error)
	// FindByNameBlock returns up to limit offenders whose normalized name
	// falls inside block, oldest first.
	FindByNameBlock(ctx context.Context, block names.Block, limit int) ([]*models.Offender, error)
	AddAgency(ctx context.Context, offenderID id.OffenderID, agency domain.Agency, now time.Time) (*models.Offender, error)
}

// Registry looks up companies by name for enrichment.
type Registry interface {
	Search(ctx context.Context, name string) ([]registry.Company, error)
}

// Metrics receives resolution counters.
type Metrics interface {
	IncResolution(tier string)
}

// ErrEmptyName is returned when a subject has no usable name.
var ErrEmptyName = errors.New("subject name is empty after normalization")

// Thresholds tune the fuzzy tier.
type Thresholds struct {
	Fuzzy         float64
	AutoAccept    float64
	MaxCandidates int
}

// DefaultThresholds are the Jaro-Winkler cutoffs used when none are configured.
func DefaultThresholds() Thresholds {
	return Thresholds{Fuzzy: 0.85, AutoAccept: 0.90, MaxCandidates: 3}
}

type Resolver struct {
	store      Store
	registry   Registry
	metrics    Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	thresholds Thresholds
	now        func() time.Time
	match      Matcher
	group      singleflight.Group
}

type Option func(*Resolver)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithRegistry enables company registry enrichment for new identities.
func WithRegistry(reg Registry) Option {
	return func(r *Resolver) { r.registry = reg }
}

func WithThresholds(th Thresholds) Option {
	return func(r *Resolver) {
		if th.Fuzzy > 0 {
			r.thresholds.Fuzzy = th.Fuzzy
		}
		if th.AutoAccept > 0 {
			r.thresholds.AutoAccept = th.AutoAccept
		}
		if th.MaxCandidates > 0 {
			r.thresholds.MaxCandidates = th.MaxCandidates
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

func New(store Store, opts ...Option) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("offender store is required")
	}
	r := &Resolver{
		store:      store,
		logger:     slog.Default(),
		tracer:     otel.Tracer("ehs/offender"),
		thresholds: DefaultThresholds(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.match = chain(
		companyNumberMatcher(store),
		namePostcodeMatcher(store),
		nameMatcher(store),
		fuzzyMatcher(store, r.thresholds),
	)
	return r, nil
}

// QueryFor reduces a subject to its comparable form. Malformed company
// numbers are dropped rather than matched on.
func QueryFor(subject domain.Subject) Query {
	q := Query{
		Name:     names.Normalize(subject.Name),
		Postcode: normalize.NormalizePostcode(subject.Postcode),
	}
	if number, ok := names.NormalizeCompanyNumber(subject.CompanyNumber); ok {
		q.CompanyNumber = number
	}
	return q
}

// ResolveOrCreate returns the identity subject refers to, tagging it with
// agency. Concurrent calls for the same subject in this process share one
// resolution.
func (r *Resolver) ResolveOrCreate(ctx context.Context, subject domain.Subject, agency domain.Agency) (*models.Resolution, error) {
	q := QueryFor(subject)
	if q.Name == "" {
		return nil, &domain.ValidationError{Field: "subject_name", Reason: domain.ReasonRequired, Detail: ErrEmptyName.Error()}
	}

	// The shared resolution outlives any one caller; a caller that gives up
	// stops waiting without failing the others.
	key := strings.Join([]string{q.Name, q.Postcode, q.CompanyNumber, string(agency)}, "|")
	ch := r.group.DoChan(key, func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx), subject, q, agency)
	})
	var out singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out = <-ch:
	}
	if out.Err != nil {
		return nil, out.Err
	}
	res := *out.Val.(*models.Resolution)
	res.Offender = res.Offender.Clone()
	return &res, nil
}

func (r *Resolver) resolve(ctx context.Context, subject domain.Subject, q Query, agency domain.Agency) (*models.Resolution, error) {
	ctx, span := r.tracer.Start(ctx, "offender.resolve")
	defer span.End()

	res, err := r.match(ctx, q)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("match offender: %w", err)
	}
	if res.Matched() {
		return r.attach(ctx, span, res, agency)
	}

	if q.CompanyNumber == "" {
		enriched, number := r.enrich(ctx, subject, q)
		if enriched.Matched() {
			return r.attach(ctx, span, enriched, agency)
		}
		q.CompanyNumber = number
	}

	if len(res.Candidates) > 0 {
		r.logger.WarnContext(ctx, "ambiguous offender match, creating new identity for review",
			"name", subject.Name,
			"candidates", candidateNames(res.Candidates),
		)
	}

	created, err := r.create(ctx, subject, q, agency)
	if err != nil {
		var violation *dberr.ConstraintViolation
		if !errors.As(err, &violation) {
			span.RecordError(err)
			return nil, err
		}
		// Another writer created the identity first; converge on theirs.
		winner, err := r.reread(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("re-read offender after %s: %w", violation.Constraint, err)
		}
		return r.attach(ctx, span, winner, agency)
	}

	r.record(models.TierCreated)
	span.SetAttributes(attribute.String("offender.tier", string(models.TierCreated)))
	return &models.Resolution{
		Offender:   created,
		Tier:       models.TierCreated,
		Created:    true,
		Candidates: res.Candidates,
	}, nil
}

func (r *Resolver) attach(ctx context.Context, span trace.Span, res MatchResult, agency domain.Agency) (*models.Resolution, error) {
	o := res.Offender
	if !o.HasAgency(agency) {
		updated, err := r.store.AddAgency(ctx, o.ID, agency, r.now())
		if err != nil {
			return nil, fmt.Errorf("tag offender %s with %s: %w", o.ID, agency, err)
		}
		o = updated
	}
	r.record(res.Tier)
	span.SetAttributes(
		attribute.String("offender.tier", string(res.Tier)),
		attribute.String("offender.id", o.ID.String()),
	)
	return &models.Resolution{Offender: o, Tier: res.Tier, Score: res.Score}, nil
}

func (r *Resolver) reread(ctx context.Context, q Query) (MatchResult, error) {
	res, err := chain(companyNumberMatcher(r.store), namePostcodeMatcher(r.store))(ctx, q)
	if err != nil {
		return MatchResult{}, err
	}
	if !res.Matched() {
		return MatchResult{}, errors.New("conflicting offender not found")
	}
	return res, nil
}

// enrich asks the registry for a registration number when the subject has
// none. A registry failure never blocks creation.
func (r *Resolver) enrich(ctx context.Context, subject domain.Subject, q Query) (MatchResult, string) {
	if r.registry == nil || !isCompany(subject.BusinessType) {
		return MatchResult{}, ""
	}
	companies, err := r.registry.Search(ctx, subject.Name)
	if err != nil {
		r.logger.WarnContext(ctx, "company registry lookup failed, continuing with name only",
			"name", subject.Name,
			"error", err,
		)
		return MatchResult{}, ""
	}
	for _, c := range companies {
		if names.Normalize(c.Name) != q.Name {
			continue
		}
		if pc := normalize.NormalizePostcode(c.Postcode); q.Postcode != "" && pc != "" && pc != q.Postcode {
			continue
		}
		number, ok := names.NormalizeCompanyNumber(c.Number)
		if !ok {
			continue
		}
		existing, err := found(r.store.FindByCompanyNumber(ctx, number))
		if err != nil {
			r.logger.WarnContext(ctx, "offender lookup by registry number failed", "error", err)
			return MatchResult{}, ""
		}
		if existing != nil {
			return MatchResult{Offender: existing, Tier: models.TierCompanyNumber, Score: 1}, ""
		}
		return MatchResult{}, number
	}
	return MatchResult{}, ""
}

func isCompany(bt domain.BusinessType) bool {
	return bt != domain.BusinessIndividual && bt != domain.BusinessPublicBody
}

func (r *Resolver) create(ctx context.Context, subject domain.Subject, q Query, agency domain.Agency) (*models.Offender, error) {
	now := r.now()
	o := &models.Offender{
		ID:             id.NewOffenderID(),
		Name:           strings.TrimSpace(subject.Name),
		NormalizedName: q.Name,
		Address:        subject.Address,
		Town:           subject.Town,
		Postcode:       q.Postcode,
		CompanyNumber:  q.CompanyNumber,
		BusinessType:   subject.BusinessType,
		Agencies:       []domain.Agency{agency},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create offender: %w", err)
	}
	return o, nil
}

func (r *Resolver) record(tier models.Tier) {
	if r.metrics != nil {
		r.metrics.IncResolution(string(tier))
	}
}

func candidateNames(candidates []models.MatchCandidate) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = fmt.Sprintf("%s (%.2f)", c.Offender.Name, c.Score)
	}
	return out
}
