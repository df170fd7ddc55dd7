package service

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks Store,Metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"ehs/internal/domain"
	"ehs/internal/enforcement/models"
	"ehs/internal/enforcement/service/mocks"
	"ehs/internal/enforcement/store"
	"ehs/internal/events"
	offendermodels "ehs/internal/offender/models"
	"ehs/internal/platform/logger"
	"ehs/internal/platform/metrics"
	id "ehs/pkg/domain"
	"ehs/pkg/platform/dberr"
	"ehs/pkg/platform/sentinel"
)

var actionDate = time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)

func eaCase(regulatorID string, finePounds int64) domain.NormalizedRecord {
	hearing := actionDate.AddDate(0, 1, 0)
	return domain.NormalizedRecord{
		Key:           domain.RecordKey{Agency: domain.AgencyEA, RegulatorID: regulatorID},
		Kind:          domain.KindCase,
		CaseReference: "EA/2024/001",
		Subject:       domain.Subject{Name: "Acme Widgets Ltd"},
		OffenceResult: "Guilty",
		Fine:          domain.Pounds(finePounds),
		Costs:         domain.Pounds(350),
		ActionDate:    actionDate,
		HearingDate:   &hearing,
		URL:           "https://environment.data.gov.uk/public-register/enforcement-action/" + regulatorID,
		RelatedRefs:   []string{"X2", "X3"},
	}
}

func offenderFixture() *offendermodels.Offender {
	return &offendermodels.Offender{ID: id.NewOffenderID(), Name: "Acme Widgets Ltd"}
}

type steppingClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now advances a second per call so every write gets a distinct timestamp.
func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// =============================================================================
// Upsert behaviour against the in-memory store
// =============================================================================
// Justification: idempotence and update correctness are properties of the
// engine and store together; the in-memory store enforces the same key.

type EngineSuite struct {
	suite.Suite
	store       *store.InMemory
	broadcaster *events.Broadcaster
	metrics     *metrics.Store
	engine      *Engine
	offender    *offendermodels.Offender
	ctx         context.Context
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.broadcaster = events.NewBroadcaster()
	s.metrics = metrics.New()
	s.offender = offenderFixture()
	clock := &steppingClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
	var err error
	s.engine, err = New(s.store,
		WithPublisher(s.broadcaster),
		WithMetrics(s.metrics),
		WithLogger(logger.Discard()),
		WithClock(clock.Now),
	)
	s.Require().NoError(err)
}

func (s *EngineSuite) TearDownTest() {
	s.broadcaster.Close()
}

func (s *EngineSuite) TestScenarioEAX1() {
	first, err := s.engine.Process(s.ctx, eaCase("X1", 4000), s.offender)
	s.Require().NoError(err)
	s.Equal(models.OutcomeCreated, first.Outcome)
	s.Equal(domain.Pounds(4000), first.Record.Fine)

	again, err := s.engine.Process(s.ctx, eaCase("X1", 4000), s.offender)
	s.Require().NoError(err)
	s.Equal(models.OutcomeExisting, again.Outcome)
	s.Equal(domain.Pounds(4000), again.Record.Fine)
	s.Equal(first.Record.UpdatedAt, again.Record.UpdatedAt)
	s.Equal(1, s.store.Writes(), "existing issues no write")

	changed, err := s.engine.Process(s.ctx, eaCase("X1", 5000), s.offender)
	s.Require().NoError(err)
	s.Equal(models.OutcomeUpdated, changed.Outcome)
	s.Equal(domain.Pounds(5000), changed.Record.Fine)
	s.Equal([]models.Field{models.FieldFine}, changed.Changed)
	s.True(changed.Record.UpdatedAt.After(first.Record.UpdatedAt))

	s.Equal(int64(1), s.metrics.Get("upsert:created"))
	s.Equal(int64(1), s.metrics.Get("upsert:existing"))
	s.Equal(int64(1), s.metrics.Get("upsert:updated"))
}

func (s *EngineSuite) TestUpdateLeavesImmutableFieldsAlone() {
	created, err := s.engine.Process(s.ctx, eaCase("X7", 100), s.offender)
	s.Require().NoError(err)

	other := offenderFixture()
	rec := eaCase("X7", 100)
	rec.OffenceResult = "Guilty - appeal dismissed"
	updated, err := s.engine.Process(s.ctx, rec, other)
	s.Require().NoError(err)

	s.Equal(models.OutcomeUpdated, updated.Outcome)
	s.Equal("Guilty - appeal dismissed", updated.Record.OffenceResult)
	s.Equal(created.Record.ID, updated.Record.ID)
	s.Equal(s.offender.ID, updated.Record.OffenderID, "subject linkage is not rewritten")
	s.Equal(created.Record.CreatedAt, updated.Record.CreatedAt)
}

func (s *EngineSuite) TestNormalizedComparison() {
	_, err := s.engine.Process(s.ctx, eaCase("X8", 10), s.offender)
	s.Require().NoError(err)

	rec := eaCase("X8", 10)
	rec.OffenceResult = "  Guilty "
	rec.RelatedRefs = []string{"X3", " X2", "X3"}
	later := rec.HearingDate.Add(9 * time.Hour)
	rec.HearingDate = &later

	res, err := s.engine.Process(s.ctx, rec, s.offender)
	s.Require().NoError(err)
	s.Equal(models.OutcomeExisting, res.Outcome, "whitespace, order and time of day are not changes")
}

func (s *EngineSuite) TestNilHearingDateIsAChange() {
	_, err := s.engine.Process(s.ctx, eaCase("X9", 10), s.offender)
	s.Require().NoError(err)

	rec := eaCase("X9", 10)
	rec.HearingDate = nil
	res, err := s.engine.Process(s.ctx, rec, s.offender)
	s.Require().NoError(err)
	s.Equal(models.OutcomeUpdated, res.Outcome)
	s.Nil(res.Record.HearingDate)
}

func (s *EngineSuite) TestSharedCaseReferenceStaysDistinct() {
	a := eaCase("X10", 100)
	b := eaCase("X11", 900)
	s.Equal(a.CaseReference, b.CaseReference)

	ra, err := s.engine.Process(s.ctx, a, s.offender)
	s.Require().NoError(err)
	rb, err := s.engine.Process(s.ctx, b, s.offender)
	s.Require().NoError(err)

	s.Equal(models.OutcomeCreated, ra.Outcome)
	s.Equal(models.OutcomeCreated, rb.Outcome)
	s.Len(s.store.List(s.ctx), 2)
}

func (s *EngineSuite) TestConcurrentPassesKeepOneRecord() {
	var wg sync.WaitGroup
	for i := range 40 {
		wg.Go(func() {
			_, err := s.engine.Process(s.ctx, eaCase("X20", int64(1000+i%2)), s.offender)
			s.NoError(err)
		})
	}
	wg.Wait()

	all := s.store.List(s.ctx)
	s.Len(all, 1)
	s.Contains([]domain.Money{domain.Pounds(1000), domain.Pounds(1001)}, all[0].Fine)
}

func (s *EngineSuite) TestOutcomesArePublishedPerWorkflow() {
	ingestion, cancelIngestion := s.broadcaster.Subscribe(models.WorkflowIngestion, 4)
	defer cancelIngestion()
	corrections, cancelCorrections := s.broadcaster.Subscribe(models.WorkflowCorrection, 4)
	defer cancelCorrections()

	_, err := s.engine.Process(s.ctx, eaCase("X30", 10), s.offender)
	s.Require().NoError(err)

	fixed := eaCase("X30", 10)
	fixed.Description = "operator note"
	res, err := s.engine.Correct(s.ctx, fixed)
	s.Require().NoError(err)
	s.Equal(models.OutcomeUpdated, res.Outcome)

	event := <-ingestion
	s.Equal(models.OutcomeCreated, event.Outcome)
	s.Equal("ea/X30", event.Record.Key.String())

	correction := <-corrections
	s.Equal(models.WorkflowCorrection, correction.Workflow)
	s.Equal([]models.Field{models.FieldDescription}, correction.Changed)
	s.Empty(ingestion, "a correction is not published as an ingestion")
}

func (s *EngineSuite) TestCorrectRequiresExistingRecord() {
	_, err := s.engine.Correct(s.ctx, eaCase("missing", 1))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *EngineSuite) TestValidation() {
	s.Run("invalid record", func() {
		rec := eaCase("", 1)
		_, err := s.engine.Process(s.ctx, rec, s.offender)
		s.True(domain.IsValidation(err))
	})

	s.Run("missing offender", func() {
		_, err := s.engine.Process(s.ctx, eaCase("X40", 1), nil)
		s.ErrorIs(err, ErrNoOffender)
	})

	s.Run("unknown workflow", func() {
		_, err := s.engine.ProcessWith(s.ctx, eaCase("X40", 1), s.offender, "backfill")
		s.ErrorIs(err, ErrWorkflow)
	})
}

// =============================================================================
// Error paths (mocked store)
// =============================================================================
// Justification: store failures and races cannot be provoked reliably with a
// real store; the mock scripts them exactly.

type EngineErrorSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockStore
	metrics *mocks.MockMetrics
	engine  *Engine
	ctx     context.Context
}

func TestEngineErrorSuite(t *testing.T) {
	suite.Run(t, new(EngineErrorSuite))
}

func (s *EngineErrorSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockStore(s.ctrl)
	s.metrics = mocks.NewMockMetrics(s.ctrl)
	s.ctx = context.Background()
	var err error
	s.engine, err = New(s.store, WithMetrics(s.metrics), WithLogger(logger.Discard()))
	s.Require().NoError(err)
}

func (s *EngineErrorSuite) TearDownTest() {
	s.ctrl.Finish()
}

func keyViolation() error {
	return fmt.Errorf("insert: %w", &dberr.ConstraintViolation{Constraint: models.KeyConstraint, Code: dberr.UniqueViolation})
}

func (s *EngineErrorSuite) TestNew() {
	_, err := New(nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "record store is required")
}

func (s *EngineErrorSuite) TestNonKeyErrorsAreReturnedUnchanged() {
	s.Run("connectivity", func() {
		boom := errors.New("connection reset by peer")
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(boom)
		_, err := s.engine.Process(s.ctx, eaCase("X1", 1), offenderFixture())
		s.Same(boom, err)
	})

	s.Run("violation of another constraint", func() {
		other := &dberr.ConstraintViolation{Constraint: "enforcement_records_offender_id_fkey"}
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(other)
		_, err := s.engine.Process(s.ctx, eaCase("X1", 1), offenderFixture())
		s.Same(other, err)
	})

	s.Run("lookup failure after collision", func() {
		boom := errors.New("timeout")
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(keyViolation())
		s.store.EXPECT().FindByKey(gomock.Any(), gomock.Any()).Return(nil, boom)
		_, err := s.engine.Process(s.ctx, eaCase("X1", 1), offenderFixture())
		s.ErrorIs(err, boom)
	})
}

func (s *EngineErrorSuite) TestVanishedRowRetriesInsertOnce() {
	s.Run("second insert succeeds", func() {
		gomock.InOrder(
			s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(keyViolation()),
			s.store.EXPECT().FindByKey(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound),
			s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil),
		)
		s.metrics.EXPECT().IncUpsertOutcome("ea", "case", "ingestion", "created")

		res, err := s.engine.Process(s.ctx, eaCase("X1", 1), offenderFixture())
		s.Require().NoError(err)
		s.Equal(models.OutcomeCreated, res.Outcome)
	})

	s.Run("gives up as a sync failure", func() {
		s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(keyViolation()).Times(2)
		s.store.EXPECT().FindByKey(gomock.Any(), gomock.Any()).Return(nil, sentinel.ErrNotFound).Times(2)

		_, err := s.engine.Process(s.ctx, eaCase("X1", 1), offenderFixture())
		var business *domain.BusinessError
		s.Require().ErrorAs(err, &business)
		s.Equal(domain.BusinessSyncFailure, business.Kind)
	})
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker unavailable")
}

func (s *EngineErrorSuite) TestPublishFailureDoesNotChangeOutcome() {
	engine, err := New(s.store, WithMetrics(s.metrics), WithPublisher(failingPublisher{}), WithLogger(logger.Discard()))
	s.Require().NoError(err)

	s.store.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)
	s.metrics.EXPECT().IncUpsertOutcome("ea", "case", "ingestion", "created")
	s.metrics.EXPECT().IncEventPublishFailed("ingestion")

	res, err := engine.Process(s.ctx, eaCase("X1", 1), offenderFixture())
	s.Require().NoError(err)
	s.Equal(models.OutcomeCreated, res.Outcome)
}
