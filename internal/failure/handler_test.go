package failure_test

//go:generate mockgen -destination=mocks/mocks.go -package=mocks ehs/internal/failure Notifier,Metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ehs/internal/domain"
	"ehs/internal/failure"
	"ehs/internal/failure/mocks"
	"ehs/internal/platform/logger"
	"ehs/pkg/platform/dberr"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	registryCtx = failure.Context{Operation: "registry.search", Source: "offender.enrich", Layer: failure.LayerAPI, Critical: true}
	upsertCtx   = failure.Context{Operation: "enforcement.upsert", Source: "pipeline", Layer: failure.LayerDatabase}
)

// HandlerSuite covers classification bookkeeping: consecutive-failure
// tracking and fingerprint alert dedupe.
type HandlerSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	notifier *mocks.MockNotifier
	metrics  *mocks.MockMetrics
	clock    *clock
	handler  *failure.Handler
	ctx      context.Context
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.metrics = mocks.NewMockMetrics(s.ctrl)
	s.metrics.EXPECT().IncClassifiedError(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	s.clock = newClock()
	s.handler = failure.NewHandler(
		failure.WithNotifier(s.notifier),
		failure.WithMetrics(s.metrics),
		failure.WithLogger(logger.Discard()),
		failure.WithClock(s.clock.Now),
		failure.WithConsecutiveThreshold(3),
		failure.WithDedupeWindow(time.Minute),
	)
	s.ctx = context.Background()
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

// =============================================================================
// Alert dedupe
// =============================================================================
// Justification: repeated identical failures must produce one alert per
// dedupe window, not one per occurrence.

func (s *HandlerSuite) TestAlertDedupe() {
	timeout := context.DeadlineExceeded

	s.Run("first occurrence alerts, repeats inside the window do not", func() {
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a failure.Alert) error {
				s.Equal(failure.Fingerprint(failure.Classification{Kind: failure.KindAPI, Subkind: failure.SubTimeout}, registryCtx), a.Fingerprint)
				s.Equal(failure.ActionRetry, a.Action)
				s.Equal(1, a.Occurrences)
				return nil
			})

		first := s.handler.Handle(s.ctx, timeout, registryCtx)
		s.True(first.Alerted)
		s.handler.RecordSuccess(registryCtx.Operation)

		s.clock.Advance(30 * time.Second)
		second := s.handler.Handle(s.ctx, timeout, registryCtx)
		s.False(second.Alerted)
		s.Equal(first.Fingerprint, second.Fingerprint)
	})

	s.Run("the window reopens after it elapses", func() {
		s.clock.Advance(time.Minute)
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, a failure.Alert) error {
				s.Equal(3, a.Occurrences)
				return nil
			})
		s.True(s.handler.Handle(s.ctx, timeout, registryCtx).Alerted)
	})

	s.Run("a different source is a different fingerprint", func() {
		s.handler.RecordSuccess(registryCtx.Operation)
		other := registryCtx
		other.Source = "recovery"
		s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)
		s.True(s.handler.Handle(s.ctx, timeout, other).Alerted)
	})
}

func (s *HandlerSuite) TestSilentActions() {
	s.Run("degraded api calls do not alert", func() {
		degraded := registryCtx
		degraded.Critical = false
		ce := s.handler.Handle(s.ctx, context.DeadlineExceeded, degraded)
		s.Equal(failure.ActionDegrade, ce.Action)
		s.False(ce.Alerted)
	})

	s.Run("cancellation does not alert", func() {
		ce := s.handler.Handle(s.ctx, context.Canceled, upsertCtx)
		s.Equal(failure.ActionFail, ce.Action)
		s.False(ce.Alerted)
	})
}

func (s *HandlerSuite) TestNotifierErrorIsNotReturned() {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(errors.New("pager down"))
	ce := s.handler.Handle(s.ctx, errors.New("boom"), upsertCtx)
	s.Require().NotNil(ce)
	s.Equal(failure.ActionEscalate, ce.Action)
}

// =============================================================================
// Consecutive failures
// =============================================================================

func (s *HandlerSuite) TestConsecutiveFailures() {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	dbDown := context.DeadlineExceeded

	s.Run("threshold trips circuit_break", func() {
		s.Equal(failure.ActionRetry, s.handler.Handle(s.ctx, dbDown, upsertCtx).Action)
		s.Equal(failure.ActionRetry, s.handler.Handle(s.ctx, dbDown, upsertCtx).Action)
		s.Equal(failure.ActionCircuitBreak, s.handler.DetermineStrategy(dbDown, upsertCtx), "the next failure would reach the threshold")
		s.Equal(2, s.handler.Consecutive(upsertCtx.Operation), "DetermineStrategy records nothing")

		ce := s.handler.Handle(s.ctx, dbDown, upsertCtx)
		s.Equal(failure.ActionCircuitBreak, ce.Action)
		s.Equal(3, ce.Consecutive)
	})

	s.Run("success resets the count", func() {
		s.handler.RecordSuccess(upsertCtx.Operation)
		s.Equal(0, s.handler.Consecutive(upsertCtx.Operation))
		s.Equal(failure.ActionRetry, s.handler.Handle(s.ctx, dbDown, upsertCtx).Action)
	})

	s.Run("operations are tracked separately", func() {
		s.Equal(0, s.handler.Consecutive(registryCtx.Operation))
	})
}

// Justification: a run of malformed or conflicting records must not abort a
// session that has a healthy database behind it.
func (s *HandlerSuite) TestInputFailuresAreNotCounted() {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	normalizeCtx := failure.Context{Operation: "record.normalize", Source: "pipeline", Layer: failure.LayerApplication}
	invalid := &domain.ValidationError{Field: "subject_name", Reason: domain.ReasonInvalid}
	syncErr := &domain.BusinessError{Kind: domain.BusinessSyncFailure}

	s.Run("validation errors", func() {
		for range 10 {
			s.Equal(failure.ActionFail, s.handler.Handle(s.ctx, invalid, normalizeCtx).Action)
		}
		s.Equal(0, s.handler.Consecutive(normalizeCtx.Operation))
		s.Equal(failure.ActionFail, s.handler.DetermineStrategy(invalid, normalizeCtx))
	})

	s.Run("business conflicts", func() {
		for range 10 {
			s.Equal(failure.ActionHandleBusinessLogic, s.handler.Handle(s.ctx, syncErr, upsertCtx).Action)
		}
		s.Equal(0, s.handler.Consecutive(upsertCtx.Operation))
	})

	s.Run("cancellation", func() {
		s.handler.Handle(s.ctx, context.Canceled, upsertCtx)
		s.Equal(0, s.handler.Consecutive(upsertCtx.Operation))
	})

	s.Run("an existing streak is not tripped by bad input", func() {
		s.handler.Handle(s.ctx, context.DeadlineExceeded, upsertCtx)
		s.handler.Handle(s.ctx, context.DeadlineExceeded, upsertCtx)
		ce := s.handler.Handle(s.ctx, syncErr, upsertCtx)
		s.Equal(failure.ActionHandleBusinessLogic, ce.Action)
		s.Equal(2, ce.Consecutive)
	})
}

func (s *HandlerSuite) TestHandleResult() {
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	s.Run("nil error", func() {
		s.Nil(s.handler.Handle(s.ctx, nil, upsertCtx))
	})

	s.Run("validation is user facing and wraps the cause", func() {
		cause := &domain.ValidationError{Field: "subject_name", Reason: domain.ReasonRequired}
		ce := s.handler.Handle(s.ctx, cause, upsertCtx)
		s.True(ce.UserFacing)
		s.Equal(failure.ActionFail, ce.Action)
		s.ErrorIs(ce, cause)
		s.True(domain.IsValidation(ce))
	})

	s.Run("an already classified error is returned as is", func() {
		ce := s.handler.Handle(s.ctx, errors.New("boom"), upsertCtx)
		s.Same(ce, s.handler.Handle(s.ctx, ce, registryCtx))
	})
}

func TestHandlerRecordsMetrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockMetrics(ctrl)
	m.EXPECT().IncClassifiedError("database_error", "constraint_violation", "fail")

	h := failure.NewHandler(failure.WithMetrics(m), failure.WithNotifier(failure.NewAlertLog()), failure.WithLogger(logger.Discard()))
	h.Handle(context.Background(), &dberr.ConstraintViolation{Constraint: "enforcement_records_agency_regulator_id_key"}, upsertCtx)
}
