package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ehs/internal/domain"
	"ehs/internal/enforcement/models"
	"ehs/internal/failure"
	id "ehs/pkg/domain"
	"ehs/pkg/requestcontext"
)

var errNoSource = errors.New("session source is required")

// Processor handles one raw record; *Service implements it.
type Processor interface {
	ProcessRecord(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error)
}

// Session is one ingestion run for an agency and record kind.
type Session struct {
	ID     id.SessionID
	Agency domain.Agency
	Kind   domain.RecordKind
	Source Source
}

// NewSession creates a session with a fresh ID.
func NewSession(agency domain.Agency, kind domain.RecordKind, src Source) Session {
	return Session{ID: id.NewSessionID(), Agency: agency, Kind: kind, Source: src}
}

// Stats counts what a session did.
type Stats struct {
	SessionID  id.SessionID      `json:"session_id"`
	Agency     domain.Agency     `json:"agency"`
	Kind       domain.RecordKind `json:"kind"`
	Units      int               `json:"units"`
	Created    int               `json:"created"`
	Updated    int               `json:"updated"`
	Existing   int               `json:"existing"`
	Failed     int               `json:"failed"`
	Skipped    int               `json:"skipped"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

func (s Stats) Processed() int {
	return s.Created + s.Updated + s.Existing + s.Failed + s.Skipped
}

func (s *Stats) count(outcome models.Outcome) {
	switch outcome {
	case models.OutcomeCreated:
		s.Created++
	case models.OutcomeUpdated:
		s.Updated++
	case models.OutcomeExisting:
		s.Existing++
	}
}

// Runner drives sessions. Records within a session are processed one at a
// time; separate sessions run concurrently.
type Runner struct {
	processor Processor
	logger    *slog.Logger
	now       func() time.Time
}

type RunnerOption func(*Runner)

func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRunner(p Processor, opts ...RunnerOption) (*Runner, error) {
	if p == nil {
		return nil, errors.New("record processor is required")
	}
	r := &Runner{processor: p, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run processes every unit of the session's source. Cancellation is checked
// between records, so each record is either fully upserted or untouched.
// Validation failures are skipped, other record failures counted; a
// circuit_break aborts the session.
func (r *Runner) Run(ctx context.Context, s Session) (stats Stats, err error) {
	stats = Stats{SessionID: s.ID, Agency: s.Agency, Kind: s.Kind, StartedAt: r.now()}
	defer func() { stats.FinishedAt = r.now() }()
	if s.Source == nil {
		return stats, errNoSource
	}
	ctx = requestcontext.WithSessionID(ctx, s.ID)
	logger := r.logger.With("session_id", s.ID.String(), "agency", s.Agency, "kind", s.Kind)

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		unit, err := s.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stats, fmt.Errorf("session %s: %w", s.ID, err)
		}
		stats.Units++

		for _, raw := range unit.Records {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			if raw.Agency == "" {
				raw.Agency = s.Agency
			}
			if raw.Kind == "" {
				raw.Kind = s.Kind
			}

			_, outcome, err := r.processor.ProcessRecord(ctx, raw)
			if err == nil {
				stats.count(outcome)
				continue
			}

			var ce *failure.ClassifiedError
			switch {
			case errors.As(err, &ce) && ce.Action == failure.ActionCircuitBreak:
				stats.Failed++
				return stats, fmt.Errorf("session %s aborted at %s: %w", s.ID, raw.RegulatorID, err)
			case errors.Is(err, context.Canceled):
				return stats, err
			case domain.IsValidation(err):
				stats.Skipped++
				logger.WarnContext(ctx, "record skipped", "regulator_id", raw.RegulatorID, "error", err)
			default:
				stats.Failed++
				logger.ErrorContext(ctx, "record failed", "regulator_id", raw.RegulatorID, "error", err)
			}
		}
		logger.InfoContext(ctx, "unit processed", "unit", unit.Name, "records", len(unit.Records))
	}

	logger.InfoContext(ctx, "session finished",
		"units", stats.Units,
		"created", stats.Created,
		"updated", stats.Updated,
		"existing", stats.Existing,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

// RunAll runs independent sessions concurrently. A failing session does
// not cancel its siblings; stats are returned for every session in input
// order and the session errors are joined.
func (r *Runner) RunAll(ctx context.Context, sessions ...Session) ([]Stats, error) {
	out := make([]Stats, len(sessions))
	errs := make([]error, len(sessions))
	var g errgroup.Group
	for i, s := range sessions {
		g.Go(func() error {
			out[i], errs[i] = r.Run(ctx, s)
			return nil
		})
	}
	_ = g.Wait()
	return out, errors.Join(errs...)
}
