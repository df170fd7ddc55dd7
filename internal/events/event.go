// Package events carries upsert outcomes to downstream consumers, one
// channel per workflow.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ehs/internal/enforcement/models"
	id "ehs/pkg/domain"
)

// Event reports one upsert outcome.
type Event struct {
	ID         id.EventID      `json:"id"`
	Workflow   models.Workflow `json:"workflow"`
	Outcome    models.Outcome  `json:"outcome"`
	Record     *models.Record  `json:"record"`
	Changed    []models.Field  `json:"changed,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New builds an event for result on workflow.
func New(workflow models.Workflow, result models.Result, now time.Time) Event {
	return Event{
		ID:         id.NewEventID(),
		Workflow:   workflow,
		Outcome:    result.Outcome,
		Record:     result.Record,
		Changed:    result.Changed,
		OccurredAt: now,
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Topic is the Kafka topic for a workflow, e.g. "ehs.ingestion.outcomes".
func Topic(prefix string, workflow models.Workflow) string {
	if prefix == "" {
		return fmt.Sprintf("%s.outcomes", workflow)
	}
	return fmt.Sprintf("%s.%s.outcomes", prefix, workflow)
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
