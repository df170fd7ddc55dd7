package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ehs/internal/enforcement/models"
	"ehs/internal/events"
	"ehs/internal/platform/config"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var group string
	var workflows []string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow upsert outcome events from Kafka",
		Long: `Follow the outcome topics and print one line per created, updated or
existing record. Requires EHS_KAFKA_BROKERS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWatch(ctx, rootOpts, group, workflows, cmd)
		},
	}
	cmd.Flags().StringVar(&group, "group", "ehs-watch", "consumer group")
	cmd.Flags().StringSliceVar(&workflows, "workflow", nil, "workflows to follow (ingestion, correction); default all")
	return cmd
}

func runWatch(ctx context.Context, rootOpts *RootOptions, group string, names []string, cmd *cobra.Command) error {
	cfg := config.FromEnv()
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("EHS_KAFKA_BROKERS is not set")
	}
	workflows := make([]models.Workflow, 0, len(names))
	for _, n := range names {
		w := models.Workflow(n)
		if !w.IsValid() {
			return fmt.Errorf("unknown workflow %q", n)
		}
		workflows = append(workflows, w)
	}

	log := rootOpts.logger(cmd.ErrOrStderr())
	consumer, err := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, group, log, workflows...)
	if err != nil {
		return err
	}
	defer consumer.Close()

	p := newPrinter(cmd.OutOrStdout(), rootOpts)
	show := events.HandlerFunc(func(_ context.Context, e events.Event) error {
		if rootOpts.Format == "json" {
			return p.json(e)
		}
		p.event(e)
		return nil
	})

	err = consumer.Run(ctx, events.NewRouter(log, show))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
