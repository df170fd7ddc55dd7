package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ehs/internal/platform/config"
	"ehs/internal/platform/httpserver"
	httptransport "ehs/internal/transport/http"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion service",
		Long: `Run the HTTP ingestion service.

Records are accepted on POST /records. Breaker, rate limiter and error
report endpoints are exposed for operators, with Prometheus metrics on
/metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, addr, cmd)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default $EHS_ADDR or :8080)")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, addr string, cmd *cobra.Command) error {
	cfg := config.FromEnv()
	if addr != "" {
		cfg.Addr = addr
	}
	log := opts.logger(cmd.ErrOrStderr())
	res, err := opts.resilience()
	if err != nil {
		return err
	}

	app, err := Bootstrap(ctx, cfg, res, log)
	if err != nil {
		return err
	}
	defer app.Close()

	handler, err := httptransport.New(app.Service, app.Failures, app.Guard.Breakers(), app.Limiters, log)
	if err != nil {
		return err
	}
	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		Logger:   log,
		Registry: app.Metrics.Registry(),
		Checks:   app.Checks(),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(ctx, httpserver.New(cfg.Addr, router), cfg.ShutdownTimeout, log)
	})
	g.Go(func() error {
		if err := app.RunAlerts(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return g.Wait()
}
