package failure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ehs/internal/domain"
	"ehs/pkg/platform/retry"
)

// Remedy is an automatic recovery technique.
type Remedy string

const (
	RemedyStaleCache Remedy = "stale_cache"
	RemedyRetry      Remedy = "retry"
	RemedyManual     Remedy = "manual_intervention"
	RemedyReconcile  Remedy = "reconcile"
	RemedyNone       Remedy = "none"
)

// staleAfter is how many consecutive timeouts make stale data preferable to
// another retry.
const staleAfter = 2

// RecoveryOptions supplies the callbacks a remedy may use. Nil callbacks
// disable the corresponding remedy.
type RecoveryOptions struct {
	// Operation re-runs the failed call.
	Operation func(ctx context.Context) error
	// Stale serves previously cached data in place of the failed call.
	Stale func(ctx context.Context) error
	// Reconcile runs the duplicate-safe write path for a business failure.
	Reconcile func(ctx context.Context) error
	// Policy overrides the retry policy chosen from the error's layer.
	Policy string
}

type RecoveryResult struct {
	Attempted      bool             `json:"attempted"`
	Succeeded      bool             `json:"succeeded"`
	Remedy         Remedy           `json:"remedy"`
	Action         Action           `json:"action"`
	Classification Classification   `json:"classification"`
	Key            domain.RecordKey `json:"key,omitzero"`
	Detail         string           `json:"detail,omitempty"`
	Err            error            `json:"-"`
}

// Orchestrator picks and runs an automatic remedy for a classified error.
type Orchestrator struct {
	handler  *Handler
	policies *retry.Policies
	sleep    retry.Sleeper
	logger   *slog.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithSleeper replaces the backoff timer used by the retry remedy.
func WithSleeper(s retry.Sleeper) OrchestratorOption {
	return func(o *Orchestrator) {
		if s != nil {
			o.sleep = s
		}
	}
}

func WithOrchestratorLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func NewOrchestrator(handler *Handler, policies *retry.Policies, opts ...OrchestratorOption) (*Orchestrator, error) {
	if handler == nil {
		return nil, errors.New("failure handler is required")
	}
	if policies == nil {
		return nil, errors.New("retry policies are required")
	}
	o := &Orchestrator{
		handler:  handler,
		policies: policies,
		sleep:    retry.SleepContext,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Recover attempts the remedy for ce and records the result.
func (o *Orchestrator) Recover(ctx context.Context, ce *ClassifiedError, opts RecoveryOptions) RecoveryResult {
	if ce == nil {
		return RecoveryResult{Remedy: RemedyNone, Detail: "nothing to recover"}
	}
	res := o.recover(ctx, ce, opts)
	res.Action = ce.Action
	res.Classification = ce.Classification
	o.handler.recordRecovery(res)

	o.logger.InfoContext(ctx, "recovery finished",
		"operation", ce.Context.Operation,
		"classification", ce.Classification.String(),
		"remedy", res.Remedy,
		"attempted", res.Attempted,
		"succeeded", res.Succeeded,
	)
	return res
}

func (o *Orchestrator) recover(ctx context.Context, ce *ClassifiedError, opts RecoveryOptions) RecoveryResult {
	c := ce.Classification
	switch {
	case c == Classification{KindAPI, SubTimeout} && ce.Consecutive >= staleAfter && opts.Stale != nil:
		return attempt(RemedyStaleCache, opts.Stale(ctx))
	case transient(c) && opts.Operation != nil:
		return o.retry(ctx, ce, opts)
	case c.Subkind == SubConstraintViolation:
		return RecoveryResult{Remedy: RemedyManual, Detail: "constraint violation requires manual intervention"}
	case c.Kind == KindBusiness && opts.Reconcile != nil:
		return attempt(RemedyReconcile, opts.Reconcile(ctx))
	}
	return RecoveryResult{Remedy: RemedyNone, Detail: "no automatic remedy for " + c.String()}
}

func (o *Orchestrator) retry(ctx context.Context, ce *ClassifiedError, opts RecoveryOptions) RecoveryResult {
	name := opts.Policy
	if name == "" {
		name = retry.PolicyAPI
		if ce.Classification.Kind == KindDatabase {
			name = retry.PolicyDatabase
		}
	}
	p, ok := o.policies.Get(name)
	if !ok {
		return RecoveryResult{Remedy: RemedyRetry, Detail: fmt.Sprintf("unknown retry policy %q", name)}
	}
	err := retry.Do(ctx, p, opts.Operation,
		retry.WithSleeper(o.sleep),
		retry.WithCondition(func(err error) bool { return transient(Classify(err, ce.Context)) }),
	)
	return attempt(RemedyRetry, err)
}

func attempt(remedy Remedy, err error) RecoveryResult {
	res := RecoveryResult{Attempted: true, Succeeded: err == nil, Remedy: remedy, Err: err}
	if err != nil {
		res.Detail = err.Error()
	}
	return res
}

func transient(c Classification) bool {
	switch c.Kind {
	case KindAPI:
		return c.Subkind == SubTimeout || c.Subkind == SubConnectionRefused || c.Subkind == SubTransport
	case KindDatabase:
		return transientDatabase(c.Subkind)
	}
	return false
}

// ReconcileItem is one failed record queued for reconciliation.
type ReconcileItem struct {
	Key   domain.RecordKey
	Cause *ClassifiedError
}

// Reconcile runs handler over items in order and records one result per
// item. Items left when ctx is cancelled are reported as not attempted.
func (o *Orchestrator) Reconcile(ctx context.Context, items []ReconcileItem, handler func(ctx context.Context, item ReconcileItem) error) []RecoveryResult {
	results := make([]RecoveryResult, 0, len(items))
	for _, item := range items {
		var res RecoveryResult
		if err := ctx.Err(); err != nil {
			res = RecoveryResult{Remedy: RemedyReconcile, Detail: "cancelled", Err: err}
		} else {
			res = attempt(RemedyReconcile, handler(ctx, item))
		}
		res.Key = item.Key
		if item.Cause != nil {
			res.Action = item.Cause.Action
			res.Classification = item.Cause.Classification
		}
		o.handler.recordRecovery(res)
		results = append(results, res)
	}
	return results
}
