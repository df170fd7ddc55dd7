// Package cli is the ehs command line: the HTTP ingestion service, batch
// ingestion from JSON Lines files, and operator views.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"ehs/internal/platform/config"
	"ehs/internal/platform/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogFormat  string
	LogLevel   string
	Format     string // "text" | "json"
	NoColor    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	env := config.FromEnv()
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "ehs",
		Short:         "Ingest HSE and EA enforcement records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", env.ResiliencePath, "resilience YAML file (retry, rate limit, breaker settings)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", env.LogFormat, "log format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", env.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().BoolVar(&opts.NoColor, "no-color", false, "disable colored output")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewIngestCommand(opts))
	cmd.AddCommand(NewPoliciesCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// logger writes logs to stderr so text and JSON output on stdout stay clean.
func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	return logger.NewWriter(w, o.LogFormat, o.LogLevel)
}

func (o *RootOptions) resilience() (config.Resilience, error) {
	return config.LoadResilience(o.ConfigPath)
}
