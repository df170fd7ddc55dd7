package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ehs/internal/failure"
)

const reportTimeout = 10 * time.Second

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	var server string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Show the error report of a running service",
		Long: `Fetch GET /errors/report from a running service and show the error
breakdown, the most frequent fingerprints, recovery rates and
recommendations.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := fetchReport(cmd.Context(), server)
			if err != nil {
				return err
			}
			p := newPrinter(cmd.OutOrStdout(), rootOpts)
			if rootOpts.Format == "json" {
				return p.json(report)
			}
			p.report(report)
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "base URL of the ehs service")
	return cmd
}

func fetchReport(ctx context.Context, server string) (failure.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	url := strings.TrimRight(server, "/") + "/errors/report"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failure.Report{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return failure.Report{}, fmt.Errorf("fetch report: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failure.Report{}, fmt.Errorf("fetch report: %s returned %s", url, resp.Status)
	}

	var report failure.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return failure.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}
