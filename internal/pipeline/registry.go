package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ehs/internal/failure"
	"ehs/internal/offender/registry"
)

// StaleSearcher is a registry client that can also serve expired cache
// entries, as registry.CachedClient does.
type StaleSearcher interface {
	Search(ctx context.Context, name string) ([]registry.Company, error)
	SearchStale(ctx context.Context, name string) ([]registry.Company, time.Time, error)
}

// RecoveringRegistry classifies register failures and, once timeouts
// repeat, answers from stale cache entries instead.
type RecoveringRegistry struct {
	client       StaleSearcher
	failures     *failure.Handler
	orchestrator *failure.Orchestrator
	logger       *slog.Logger
	now          func() time.Time
}

func NewRecoveringRegistry(client StaleSearcher, failures *failure.Handler, orchestrator *failure.Orchestrator, logger *slog.Logger) (*RecoveringRegistry, error) {
	if client == nil || failures == nil || orchestrator == nil {
		return nil, errors.New("registry client, failure handler and orchestrator are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RecoveringRegistry{client: client, failures: failures, orchestrator: orchestrator, logger: logger, now: time.Now}, nil
}

func (r *RecoveringRegistry) Search(ctx context.Context, name string) ([]registry.Company, error) {
	companies, err := r.client.Search(ctx, name)
	if err == nil {
		r.failures.RecordSuccess(OpRegistry)
		return companies, nil
	}

	ce := r.failures.Handle(ctx, err, failure.Context{Operation: OpRegistry, Source: "offender.enrich", Layer: failure.LayerAPI})
	var stale []registry.Company
	res := r.orchestrator.Recover(ctx, ce, failure.RecoveryOptions{
		Stale: func(ctx context.Context) error {
			found, storedAt, err := r.client.SearchStale(ctx, name)
			if err != nil {
				return err
			}
			r.logger.InfoContext(ctx, "serving stale registry result", "name", name, "age", r.now().Sub(storedAt))
			stale = found
			return nil
		},
	})
	if res.Succeeded {
		return stale, nil
	}
	return nil, ce
}
