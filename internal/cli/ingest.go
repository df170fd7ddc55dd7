package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ehs/internal/domain"
	"ehs/internal/failure"
	"ehs/internal/pipeline"
	"ehs/internal/platform/config"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	Agency    string
	Kind      string
	BatchSize int
	Reconcile bool
	Report    bool
}

// IngestResult is the JSON output of ingest.
type IngestResult struct {
	Sessions  []pipeline.Stats         `json:"sessions"`
	Reconcile []failure.RecoveryResult `json:"reconcile,omitempty"`
	Pending   []domain.RecordKey       `json:"pending,omitempty"`
	Report    *failure.Report          `json:"report,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{}
	cmd := &cobra.Command{
		Use:   "ingest <file.jsonl>...",
		Short: "Ingest raw records from JSON Lines files",
		Long: `Ingest raw records from JSON Lines files, one record per line.

Each file runs as its own session; sessions run concurrently. Use "-" to
read stdin. Records without agency or kind inherit --agency and --kind.
Records parked by a business failure are reconciled once all sessions end.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runIngest(ctx, rootOpts, opts, args, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.Agency, "agency", "", "default agency for records that omit it (hse|ea)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "default record kind for records that omit it (case|notice)")
	cmd.Flags().IntVar(&opts.BatchSize, "batch", 100, "records per unit of work")
	cmd.Flags().BoolVar(&opts.Reconcile, "reconcile", true, "reconcile parked records after ingestion")
	cmd.Flags().BoolVar(&opts.Report, "report", false, "print the error report after ingestion")
	return cmd
}

func (o *IngestOptions) defaults() (domain.Agency, domain.RecordKind, error) {
	var agency domain.Agency
	var kind domain.RecordKind
	var err error
	if o.Agency != "" {
		if agency, err = domain.ParseAgency(o.Agency); err != nil {
			return "", "", err
		}
	}
	if o.Kind != "" {
		if kind, err = domain.ParseRecordKind(o.Kind); err != nil {
			return "", "", err
		}
	}
	return agency, kind, nil
}

func runIngest(ctx context.Context, rootOpts *RootOptions, opts *IngestOptions, paths []string, cmd *cobra.Command) error {
	agency, kind, err := opts.defaults()
	if err != nil {
		return err
	}
	log := rootOpts.logger(cmd.ErrOrStderr())
	res, err := rootOpts.resilience()
	if err != nil {
		return err
	}

	sessions := make([]pipeline.Session, 0, len(paths))
	for _, path := range paths {
		r, closeFn, err := openInput(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		defer closeFn()
		sessions = append(sessions, pipeline.NewSession(agency, kind, pipeline.NewJSONLinesSource(r, opts.BatchSize)))
	}

	app, err := Bootstrap(ctx, config.FromEnv(), res, log)
	if err != nil {
		return err
	}
	defer app.Close()

	alertCtx, stopAlerts := context.WithCancel(ctx)
	alertsDone := make(chan struct{})
	go func() {
		defer close(alertsDone)
		_ = app.RunAlerts(alertCtx)
	}()
	defer func() {
		stopAlerts()
		<-alertsDone
	}()

	runner, err := pipeline.NewRunner(app.Service, pipeline.WithRunnerLogger(log))
	if err != nil {
		return err
	}
	stats, runErr := runner.RunAll(ctx, sessions...)

	out := IngestResult{Sessions: stats}
	if opts.Reconcile && len(app.Service.Pending()) > 0 && ctx.Err() == nil {
		out.Reconcile = app.Service.ReconcilePending(ctx)
	}
	out.Pending = app.Service.Pending()
	if opts.Report {
		report := app.Failures.Report(time.Now())
		out.Report = &report
	}
	if runErr != nil {
		out.Error = runErr.Error()
	}

	p := newPrinter(cmd.OutOrStdout(), rootOpts)
	if rootOpts.Format == "json" {
		if err := p.json(out); err != nil {
			return err
		}
	} else {
		p.ingest(paths, out)
	}
	return runErr
}

// openInput opens path, or returns stdin for "-".
func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		if stdin == nil {
			return nil, nil, errors.New("stdin is not available")
		}
		return stdin, func() {}, nil
	}
	// #nosec G304 -- path is an operator-provided input file.
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
