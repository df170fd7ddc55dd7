package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ehs/internal/domain"
	"ehs/internal/enforcement/models"
	"ehs/internal/failure"
	"ehs/internal/platform/logger"
	id "ehs/pkg/domain"
	"ehs/pkg/platform/resilience"
	"ehs/pkg/platform/retry"
	"ehs/pkg/requestcontext"
)

// processorFunc adapts a function to Processor.
type processorFunc func(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error)

func (f processorFunc) ProcessRecord(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error) {
	return f(ctx, raw)
}

// outcomes answers by regulator id prefix: c=created, u=updated, e=existing,
// v=validation failure, anything else fails.
func outcomes(_ context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error) {
	switch raw.RegulatorID[0] {
	case 'c':
		return &models.Record{}, models.OutcomeCreated, nil
	case 'u':
		return &models.Record{}, models.OutcomeUpdated, nil
	case 'e':
		return &models.Record{}, models.OutcomeExisting, nil
	case 'v':
		return nil, "", &domain.ValidationError{Field: "subject_name", Reason: domain.ReasonRequired}
	}
	return nil, "", errors.New("store unavailable")
}

func raws(ids ...string) []domain.RawRecord {
	out := make([]domain.RawRecord, len(ids))
	for i, regulatorID := range ids {
		out[i] = domain.RawRecord{RegulatorID: regulatorID}
	}
	return out
}

func newRunner(t *testing.T, p Processor) *Runner {
	r, err := NewRunner(p, WithRunnerLogger(logger.Discard()))
	require.NoError(t, err)
	return r
}

func TestRunnerStats(t *testing.T) {
	var seen []domain.RawRecord
	var sessionIDs []id.SessionID
	r := newRunner(t, processorFunc(func(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error) {
		seen = append(seen, raw)
		sessionIDs = append(sessionIDs, requestcontext.SessionID(ctx))
		return outcomes(ctx, raw)
	}))

	session := NewSession(domain.AgencyHSE, domain.KindNotice, NewSliceSource(raws("c1", "c2", "e1", "u1", "v1", "x1"), 4))
	stats, err := r.Run(context.Background(), session)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Units)
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Updated)
	assert.Equal(t, 1, stats.Existing)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 6, stats.Processed())
	assert.Equal(t, session.ID, stats.SessionID)
	assert.False(t, stats.FinishedAt.IsZero())

	require.Len(t, seen, 6)
	assert.Equal(t, domain.AgencyHSE, seen[0].Agency, "records inherit the session's agency")
	assert.Equal(t, domain.KindNotice, seen[0].Kind)
	assert.Equal(t, session.ID, sessionIDs[5], "the session is tagged on the context")
}

func TestRunnerCancelsBetweenRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newRunner(t, processorFunc(func(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error) {
		if raw.RegulatorID == "c2" {
			cancel()
		}
		return outcomes(ctx, raw)
	}))

	stats, err := r.Run(ctx, NewSession(domain.AgencyEA, domain.KindCase, NewSliceSource(raws("c1", "c2", "c3", "c4"), 10)))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, stats.Created, "the record in flight completes, later ones are untouched")
}

func TestRunnerAbortsOnCircuitBreak(t *testing.T) {
	r := newRunner(t, processorFunc(func(context.Context, domain.RawRecord) (*models.Record, models.Outcome, error) {
		return nil, "", &failure.ClassifiedError{Action: failure.ActionCircuitBreak, Err: errors.New("db down")}
	}))

	stats, err := r.Run(context.Background(), NewSession(domain.AgencyEA, domain.KindCase, NewSliceSource(raws("a", "b"), 1)))
	require.ErrorContains(t, err, "aborted at a")
	assert.Equal(t, 1, stats.Failed)
}

func TestRunnerRequiresSource(t *testing.T) {
	_, err := newRunner(t, processorFunc(outcomes)).Run(context.Background(), Session{})
	assert.ErrorIs(t, err, errNoSource)

	_, err = NewRunner(nil)
	assert.Error(t, err)
}

func TestRunAllRunsSessionsConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	release := make(chan struct{})
	r := newRunner(t, processorFunc(func(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == 2 {
			close(release)
		}
		select {
		case <-release:
		case <-time.After(time.Second):
		}
		inFlight.Add(-1)
		return outcomes(ctx, raw)
	}))

	stats, err := r.RunAll(context.Background(),
		NewSession(domain.AgencyHSE, domain.KindCase, NewSliceSource(raws("c1"), 1)),
		NewSession(domain.AgencyEA, domain.KindCase, NewSliceSource(raws("e1"), 1)),
	)
	require.NoError(t, err)
	assert.Equal(t, int32(2), peak.Load())
	assert.Equal(t, 1, stats[0].Created)
	assert.Equal(t, 1, stats[1].Existing)
}

func TestRunAllKeepsSessionsIndependent(t *testing.T) {
	r := newRunner(t, processorFunc(func(ctx context.Context, raw domain.RawRecord) (*models.Record, models.Outcome, error) {
		// Give the failing session time to return before this one finishes.
		time.Sleep(20 * time.Millisecond)
		return outcomes(ctx, raw)
	}))
	failing := &PagedSource{fetch: func(context.Context, int) ([]domain.RawRecord, error) { return nil, errors.New("agency down") }, page: 1}

	stats, err := r.RunAll(context.Background(),
		NewSession(domain.AgencyHSE, domain.KindCase, failing),
		NewSession(domain.AgencyEA, domain.KindCase, NewSliceSource(raws("c1", "c2", "c3"), 1)),
	)
	require.ErrorContains(t, err, "agency down")
	assert.NotErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, stats[1].Created, "the sibling session runs to completion")
	assert.Equal(t, 3, stats[1].Units)
}

func TestRunAllJoinsSessionErrors(t *testing.T) {
	r := newRunner(t, processorFunc(outcomes))
	down := func(msg string) *PagedSource {
		return &PagedSource{fetch: func(context.Context, int) ([]domain.RawRecord, error) { return nil, errors.New(msg) }, page: 1}
	}

	_, err := r.RunAll(context.Background(),
		NewSession(domain.AgencyHSE, domain.KindCase, down("hse down")),
		NewSession(domain.AgencyEA, domain.KindCase, down("ea down")),
	)
	require.Error(t, err)
	assert.ErrorContains(t, err, "hse down")
	assert.ErrorContains(t, err, "ea down")
}

// =============================================================================
// Sources
// =============================================================================

func drain(t *testing.T, src Source) []Unit {
	t.Helper()
	var units []Unit
	for {
		u, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return units
		}
		require.NoError(t, err)
		units = append(units, u)
	}
}

func TestPagedSource(t *testing.T) {
	var pages []int
	src := NewPagedSource(func(_ context.Context, page int) ([]domain.RawRecord, error) {
		pages = append(pages, page)
		if page > 2 {
			return nil, nil
		}
		return raws("c1", "c2"), nil
	}, 0)

	units := drain(t, src)
	assert.Len(t, units, 2)
	assert.Equal(t, "page 2", units[1].Name)
	assert.Equal(t, []int{1, 2, 3}, pages)

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, pages, 3, "an exhausted source does not fetch again")
}

func TestDateRangeSource(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 10)

	t.Run("single result set", func(t *testing.T) {
		calls := 0
		units := drain(t, NewDateRangeSource(func(_ context.Context, f, tt time.Time) ([]domain.RawRecord, error) {
			calls++
			assert.Equal(t, from, f)
			assert.Equal(t, to, tt)
			return raws("c1"), nil
		}, from, to, 0))
		assert.Len(t, units, 1)
		assert.Equal(t, 1, calls)
	})

	t.Run("windows", func(t *testing.T) {
		var windows [][2]time.Time
		drain(t, NewDateRangeSource(func(_ context.Context, f, tt time.Time) ([]domain.RawRecord, error) {
			windows = append(windows, [2]time.Time{f, tt})
			return nil, nil
		}, from, to, 4*24*time.Hour))
		require.Len(t, windows, 3)
		assert.Equal(t, to, windows[2][1])
		assert.Equal(t, windows[0][1], windows[1][0])
	})
}

func TestJSONLinesSource(t *testing.T) {
	input := `{"agency":"ea","kind":"case","regulator_id":"X1","subject_name":"A","action_date":"2024-01-01"}

{"agency":"hse","kind":"notice","regulator_id":"N1","subject_name":"B","action_date":"2024-01-02"}
{"agency":"hse","kind":"notice","regulator_id":"N2","subject_name":"C","action_date":"2024-01-03"}
`
	units := drain(t, NewJSONLinesSource(strings.NewReader(input), 2))
	require.Len(t, units, 2)
	assert.Equal(t, "X1", units[0].Records[0].RegulatorID)
	assert.Equal(t, domain.AgencyHSE, units[0].Records[1].Agency)
	assert.Len(t, units[1].Records, 1)

	_, err := NewJSONLinesSource(strings.NewReader("{not json}\n"), 1).Next(context.Background())
	assert.ErrorContains(t, err, "line 1")
}

func TestGuardPagesRetriesTransientFetches(t *testing.T) {
	guard := resilience.New(retry.DefaultPolicies(),
		resilience.WithSleeper(func(context.Context, time.Duration) error { return nil }),
		resilience.WithRetryable(failure.Retryable),
		resilience.WithLogger(logger.Discard()),
	)
	calls := 0
	fetch := GuardPages(guard, resilience.Call{Policy: retry.PolicyAPI, Operation: "hse.fetch"},
		func(context.Context, int) ([]domain.RawRecord, error) {
			calls++
			if calls == 1 {
				return nil, context.DeadlineExceeded
			}
			return raws("c1"), nil
		})

	records, err := fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, 2, calls)
}
