package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"ehs/internal/enforcement/models"
	"ehs/internal/events"
	"ehs/internal/failure"
)

// printer renders command output as colored text or indented JSON.
type printer struct {
	w       io.Writer
	heading *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color
	dim     *color.Color
}

func newPrinter(w io.Writer, opts *RootOptions) *printer {
	p := &printer{
		w:       w,
		heading: color.New(color.Bold),
		good:    color.New(color.FgHiGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
		dim:     color.New(color.FgHiBlack),
	}
	if opts != nil && opts.NoColor {
		for _, c := range []*color.Color{p.heading, p.good, p.warn, p.bad, p.dim} {
			c.DisableColor()
		}
	}
	return p
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) ingest(paths []string, out IngestResult) {
	p.heading.Fprintln(p.w, "Sessions")
	for i, s := range out.Sessions {
		name := ""
		if i < len(paths) {
			name = paths[i]
		}
		p.line("  %s %s", name, p.dim.Sprintf("(%s, %s)", s.SessionID, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond)))
		p.line("    %s  %s  %s  %s  %s",
			p.good.Sprintf("created %d", s.Created),
			p.good.Sprintf("updated %d", s.Updated),
			fmt.Sprintf("existing %d", s.Existing),
			p.warn.Sprintf("skipped %d", s.Skipped),
			p.failed(s.Failed),
		)
	}

	if len(out.Reconcile) > 0 {
		p.heading.Fprintln(p.w, "Reconciliation")
		for _, r := range out.Reconcile {
			mark := p.good.Sprint("ok")
			if !r.Succeeded {
				mark = p.bad.Sprint("failed")
			}
			p.line("  %s %s %s", r.Key, mark, p.dim.Sprint(r.Detail))
		}
	}
	if len(out.Pending) > 0 {
		p.warn.Fprintf(p.w, "%d record(s) still pending reconciliation\n", len(out.Pending))
	}
	if out.Report != nil {
		p.report(*out.Report)
	}
	if out.Error != "" {
		p.bad.Fprintf(p.w, "error: %s\n", out.Error)
	}
}

func (p *printer) failed(n int) string {
	if n == 0 {
		return fmt.Sprintf("failed %d", n)
	}
	return p.bad.Sprintf("failed %d", n)
}

func (p *printer) policies(out PoliciesResult) {
	p.heading.Fprintln(p.w, "Retry policies")
	for _, pol := range out.Policies {
		breaker := ""
		if pol.CircuitBreaker {
			breaker = p.warn.Sprint(" +breaker")
		}
		delays := make([]string, len(pol.Delays))
		for i, d := range pol.Delays {
			delays[i] = d.String()
		}
		jitter := ""
		if pol.Jitter {
			jitter = " ±jitter"
		}
		p.line("  %-10s %d attempts, %s backoff%s%s", pol.Name, pol.MaxAttempts, pol.Backoff, jitter, breaker)
		p.line("  %-10s %s", "", p.dim.Sprint(strings.Join(delays, " → ")))
	}

	p.heading.Fprintln(p.w, "Rate limits")
	for _, rl := range out.RateLimits {
		p.line("  %-18s %d per %s", rl.Name, rl.MaxRequests, rl.Window)
	}

	cb := out.CircuitBreaker
	p.heading.Fprintln(p.w, "Circuit breaker")
	p.line("  opens after %d consecutive failures, cooldown %s", cb.FailureThreshold, cb.Cooldown)
	for name, o := range cb.Overrides {
		p.line("  %-18s threshold %d, cooldown %s", name, o.FailureThreshold, o.Cooldown)
	}
}

func (p *printer) report(r failure.Report) {
	p.heading.Fprintf(p.w, "Error report %s\n", p.dim.Sprint(r.GeneratedAt.Format(time.RFC3339)))
	if r.TotalErrors == 0 {
		p.good.Fprintln(p.w, "  no errors recorded")
	} else {
		p.line("  %d error(s)", r.TotalErrors)
	}

	for _, c := range r.ByClassification {
		p.line("  %-40s %d", c.Classification, c.Count)
	}

	if len(r.TopFingerprints) > 0 {
		p.heading.Fprintln(p.w, "Top fingerprints")
		for _, f := range r.TopFingerprints {
			p.line("  %s %-32s %-20s %s x%d",
				p.dim.Sprint(shortFingerprint(f.Fingerprint)),
				f.Classification, f.Operation, p.action(f.LastAction), f.Count)
		}
	}

	rec := r.Recovery
	if rec.Attempted > 0 {
		p.heading.Fprintln(p.w, "Recovery")
		rate := fmt.Sprintf("%.0f%%", rec.SuccessRate*100)
		if rec.SuccessRate < 0.5 {
			rate = p.bad.Sprint(rate)
		} else {
			rate = p.good.Sprint(rate)
		}
		p.line("  %d of %d succeeded (%s)", rec.Succeeded, rec.Attempted, rate)
	}

	if len(r.Recommendations) > 0 {
		p.heading.Fprintln(p.w, "Recommendations")
		for _, advice := range r.Recommendations {
			p.warn.Fprintf(p.w, "  - %s\n", advice)
		}
	}
}

func (p *printer) action(a failure.Action) string {
	switch a {
	case failure.ActionEscalate, failure.ActionCircuitBreak:
		return p.bad.Sprint(a)
	case failure.ActionRetry, failure.ActionDegrade:
		return p.warn.Sprint(a)
	}
	return string(a)
}

func (p *printer) event(e events.Event) {
	outcome := string(e.Outcome)
	switch e.Outcome {
	case models.OutcomeCreated:
		outcome = p.good.Sprint(outcome)
	case models.OutcomeUpdated:
		outcome = p.warn.Sprint(outcome)
	default:
		outcome = p.dim.Sprint(outcome)
	}
	key := ""
	if e.Record != nil {
		key = e.Record.Key.String()
	}
	changed := ""
	if len(e.Changed) > 0 {
		fields := make([]string, len(e.Changed))
		for i, f := range e.Changed {
			fields[i] = string(f)
		}
		changed = p.dim.Sprintf(" [%s]", strings.Join(fields, ","))
	}
	p.line("%s %-10s %-8s %s%s", e.OccurredAt.Format(time.RFC3339), e.Workflow, outcome, key, changed)
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
