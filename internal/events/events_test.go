package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ehs/internal/domain"
	"ehs/internal/enforcement/models"
	"ehs/internal/platform/logger"
)

var at = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func event(workflow models.Workflow, outcome models.Outcome) Event {
	return New(workflow, models.Result{
		Record:  &models.Record{Key: domain.RecordKey{Agency: domain.AgencyEA, RegulatorID: "X1"}},
		Outcome: outcome,
	}, at)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "ehs.ingestion.outcomes", Topic("ehs", models.WorkflowIngestion))
	assert.Equal(t, "correction.outcomes", Topic("", models.WorkflowCorrection))
}

func TestBroadcasterDeliversPerWorkflow(t *testing.T) {
	b := NewBroadcaster()
	ingestion, cancelIngestion := b.Subscribe(models.WorkflowIngestion, 4)
	correction, cancelCorrection := b.Subscribe(models.WorkflowCorrection, 4)
	defer cancelCorrection()

	require.NoError(t, b.Publish(context.Background(), event(models.WorkflowIngestion, models.OutcomeCreated)))

	got := <-ingestion
	assert.Equal(t, models.OutcomeCreated, got.Outcome)
	assert.Empty(t, correction)

	cancelIngestion()
	cancelIngestion()
	_, open := <-ingestion
	assert.False(t, open, "cancel closes the channel")
}

func TestBroadcasterDropsForSlowSubscribers(t *testing.T) {
	b := NewBroadcaster()
	_, cancel := b.Subscribe(models.WorkflowIngestion, 1)
	defer cancel()

	for range 3 {
		require.NoError(t, b.Publish(context.Background(), event(models.WorkflowIngestion, models.OutcomeExisting)))
	}
	assert.Equal(t, int64(2), b.Dropped())
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(models.WorkflowIngestion, 1)
	b.Close()
	_, open := <-ch
	assert.False(t, open)
	cancel()

	late, _ := b.Subscribe(models.WorkflowIngestion, 1)
	_, open = <-late
	assert.False(t, open, "subscribing after close yields a closed channel")
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, Event) error { return f.err }

func TestMulti(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	b := NewBroadcaster()
	ch, cancel := b.Subscribe(models.WorkflowIngestion, 1)
	defer cancel()

	err := Multi{failingPublisher{errA}, nil, b, failingPublisher{errB}}.
		Publish(context.Background(), event(models.WorkflowIngestion, models.OutcomeUpdated))
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Len(t, ch, 1, "a failing publisher does not stop the others")

	assert.NoError(t, Multi{Discard{}}.Publish(context.Background(), Event{}))
}

func TestRouter(t *testing.T) {
	var handled, fell []models.Workflow
	record := func(dst *[]models.Workflow) Handler {
		return HandlerFunc(func(_ context.Context, e Event) error {
			*dst = append(*dst, e.Workflow)
			return nil
		})
	}

	r := NewRouter(logger.Discard(), nil)
	r.Register(models.WorkflowIngestion, record(&handled))
	require.NoError(t, r.Handle(context.Background(), event(models.WorkflowIngestion, models.OutcomeCreated)))
	require.NoError(t, r.Handle(context.Background(), event(models.WorkflowCorrection, models.OutcomeCreated)), "unrouted events are skipped")
	assert.Equal(t, []models.Workflow{models.WorkflowIngestion}, handled)

	withFallback := NewRouter(logger.Discard(), record(&fell))
	require.NoError(t, withFallback.Handle(context.Background(), event(models.WorkflowCorrection, models.OutcomeUpdated)))
	assert.Equal(t, []models.Workflow{models.WorkflowCorrection}, fell)
}
