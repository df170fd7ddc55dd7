package cli

import (
	"time"

	"github.com/spf13/cobra"

	"ehs/internal/platform/config"
	"ehs/internal/ratelimit"
	"ehs/pkg/platform/retry"
)

// PolicyView is a retry policy with its delay schedule.
type PolicyView struct {
	retry.Policy
	Delays []time.Duration `json:"delays"`
}

// PoliciesResult is the JSON output of policies.
type PoliciesResult struct {
	Policies       []PolicyView         `json:"policies"`
	RateLimits     []ratelimit.Config   `json:"rate_limits"`
	CircuitBreaker config.BreakerConfig `json:"circuit_breaker"`
}

// NewPoliciesCommand creates the policies command.
func NewPoliciesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "policies",
		Short: "Show the effective retry, rate limit and circuit breaker settings",
		Long: `Show the effective resilience settings after merging --config over the
built-in defaults. Delay schedules are shown without jitter.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := rootOpts.resilience()
			if err != nil {
				return err
			}
			out := policiesResult(res)
			p := newPrinter(cmd.OutOrStdout(), rootOpts)
			if rootOpts.Format == "json" {
				return p.json(out)
			}
			p.policies(out)
			return nil
		},
	}
}

func policiesResult(res config.Resilience) PoliciesResult {
	out := PoliciesResult{
		RateLimits:     res.RateLimits,
		CircuitBreaker: res.CircuitBreaker,
	}
	for _, p := range retry.NewPolicies(res.Policies...).All() {
		shown := p
		shown.Jitter = false
		out.Policies = append(out.Policies, PolicyView{Policy: p, Delays: retry.Delays(shown)})
	}
	return out
}
