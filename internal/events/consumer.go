package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"ehs/internal/enforcement/models"
)

// Handler processes one consumed event.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error { return f(ctx, event) }

// Router dispatches consumed events to the handler of their workflow.
type Router struct {
	handlers map[models.Workflow]Handler
	fallback Handler
	logger   *slog.Logger
}

// NewRouter creates a workflow router with an optional fallback handler.
func NewRouter(logger *slog.Logger, fallback Handler) *Router {
	return &Router{
		handlers: make(map[models.Workflow]Handler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register adds a handler for a workflow.
func (r *Router) Register(workflow models.Workflow, handler Handler) {
	r.handlers[workflow] = handler
}

func (r *Router) Handle(ctx context.Context, event Event) error {
	handler, ok := r.handlers[event.Workflow]
	if !ok {
		if r.fallback != nil {
			return r.fallback.Handle(ctx, event)
		}
		r.logger.WarnContext(ctx, "no handler for workflow, skipping event",
			"workflow", event.Workflow,
			"event_id", event.ID.String(),
		)
		return nil
	}
	return handler.Handle(ctx, event)
}

// Consumer reads outcome topics and hands decoded events to a Handler.
type Consumer struct {
	client *kgo.Client
	logger *slog.Logger
}

// NewConsumer subscribes a consumer group to the outcome topics of workflows.
func NewConsumer(brokers []string, prefix, group string, logger *slog.Logger, workflows ...models.Workflow) (*Consumer, error) {
	if len(workflows) == 0 {
		workflows = models.Workflows()
	}
	topics := make([]string, len(workflows))
	for i, w := range workflows {
		topics[i] = Topic(prefix, w)
	}
	client, err := NewKafkaClient(brokers,
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: client, logger: logger}, nil
}

// Run polls until ctx is done. Undecodable records are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var fetchErr error
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			fetchErr = fmt.Errorf("fetch %s[%d]: %w", topic, partition, err)
		})
		if fetchErr != nil {
			return fetchErr
		}

		var handleErr error
		fetches.EachRecord(func(rec *kgo.Record) {
			if handleErr != nil {
				return
			}
			var event Event
			if err := json.Unmarshal(rec.Value, &event); err != nil {
				c.logger.WarnContext(ctx, "skipping undecodable event", "topic", rec.Topic, "offset", rec.Offset, "error", err)
				return
			}
			handleErr = handler.Handle(ctx, event)
		})
		if handleErr != nil {
			return handleErr
		}
	}
}

func (c *Consumer) Close() {
	c.client.Close()
}
