package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"

	enforcementservice "ehs/internal/enforcement/service"
	enforcementstore "ehs/internal/enforcement/store"
	"ehs/internal/events"
	"ehs/internal/failure"
	"ehs/internal/normalize"
	"ehs/internal/offender/registry"
	offenderservice "ehs/internal/offender/service"
	offenderstore "ehs/internal/offender/store"
	"ehs/internal/pipeline"
	"ehs/internal/platform/config"
	"ehs/internal/platform/metrics"
	"ehs/internal/platform/postgres"
	"ehs/internal/platform/redis"
	"ehs/internal/ratelimit"
	"ehs/internal/ratelimit/store/bucket"
	httptransport "ehs/internal/transport/http"
	"ehs/pkg/platform/circuit"
	"ehs/pkg/platform/resilience"
	"ehs/pkg/platform/retry"
)

// alertQueueSize bounds alerts waiting for the notifier worker.
const alertQueueSize = 256

// App is the wired ingestion runtime shared by serve and ingest.
type App struct {
	Config     config.Server
	Resilience config.Resilience
	Logger     *slog.Logger
	Metrics    *metrics.Store

	Guard        *resilience.Guard
	Limiters     *ratelimit.Registry
	Failures     *failure.Handler
	Orchestrator *failure.Orchestrator
	Service      *pipeline.Service
	Broadcaster  *events.Broadcaster

	alerts  *failure.Worker
	checks  map[string]httptransport.HealthCheck
	closers []func()
}

// Bootstrap connects every configured backend and wires the pipeline.
// Missing Postgres, Redis or Kafka settings fall back to in-process
// implementations, so a bare environment still runs end to end.
func Bootstrap(ctx context.Context, cfg config.Server, res config.Resilience, logger *slog.Logger) (_ *App, err error) {
	app := &App{
		Config:     cfg,
		Resilience: res,
		Logger:     logger,
		Metrics:    metrics.New(),
		checks:     make(map[string]httptransport.HealthCheck),
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	var buckets ratelimit.BucketStore = bucket.NewInMemoryBucketStore()
	if rc != nil {
		app.onClose(func() { _ = rc.Close() })
		app.checks["redis"] = rc.Health
		buckets = bucket.NewRedisBucketStore(rc.Client)
	}

	app.Limiters = ratelimit.NewRegistry(buckets,
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(app.Metrics),
	)
	for _, lc := range res.RateLimits {
		if err := app.Limiters.Register(lc); err != nil {
			return nil, err
		}
	}

	policies := retry.NewPolicies(res.Policies...)
	app.Guard = resilience.New(policies,
		resilience.WithLogger(logger),
		resilience.WithMetrics(app.Metrics),
		resilience.WithLimiters(app.Limiters),
		resilience.WithBreakers(app.breakers()),
		resilience.WithRetryable(failure.Retryable),
	)

	queue := failure.NewQueue(alertQueueSize)
	app.alerts = failure.NewWorker(queue, failure.NewLogNotifier(logger), logger)
	app.Failures = failure.NewHandler(
		failure.WithLogger(logger),
		failure.WithMetrics(app.Metrics),
		failure.WithNotifier(queue),
		failure.WithConsecutiveThreshold(res.Failure.ConsecutiveThreshold),
		failure.WithDedupeWindow(res.Failure.DedupeWindow),
	)
	app.Orchestrator, err = failure.NewOrchestrator(app.Failures, policies, failure.WithOrchestratorLogger(logger))
	if err != nil {
		return nil, err
	}

	records, offenders, err := app.openStores(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.openPublisher(ctx)
	if err != nil {
		return nil, err
	}

	resolverOpts := []offenderservice.Option{
		offenderservice.WithLogger(logger),
		offenderservice.WithMetrics(app.Metrics),
		offenderservice.WithThresholds(offenderservice.Thresholds{
			Fuzzy:         res.Resolver.FuzzyThreshold,
			AutoAccept:    res.Resolver.AutoAccept,
			MaxCandidates: res.Resolver.MaxCandidates,
		}),
	}
	if reg, err := app.openRegistry(rc); err != nil {
		return nil, err
	} else if reg != nil {
		resolverOpts = append(resolverOpts, offenderservice.WithRegistry(reg))
	}
	resolver, err := offenderservice.New(offenders, resolverOpts...)
	if err != nil {
		return nil, err
	}

	engine, err := enforcementservice.New(records,
		enforcementservice.WithPublisher(publisher),
		enforcementservice.WithMetrics(app.Metrics),
		enforcementservice.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	app.Service, err = pipeline.New(pipeline.Deps{
		Normalizer:   normalize.New(normalize.WithBaseURLs(cfg.SourceBaseURLHSE, cfg.SourceBaseURLEA)),
		Resolver:     resolver,
		Upserter:     engine,
		Corrector:    engine,
		Guard:        app.Guard,
		Failures:     app.Failures,
		Orchestrator: app.Orchestrator,
	}, pipeline.WithLogger(logger), pipeline.WithMetrics(app.Metrics))
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (a *App) breakers() *circuit.Registry {
	cb := a.Resilience.CircuitBreaker
	onChange := circuit.WithOnStateChange(func(name string, from, to circuit.State) {
		a.Metrics.IncBreakerTransition(name, string(to))
		a.Logger.Warn("circuit state changed", "circuit", name, "from", from, "to", to)
	})
	reg := circuit.NewRegistry(
		circuit.WithFailureThreshold(cb.FailureThreshold),
		circuit.WithCooldown(cb.Cooldown),
		circuit.WithFailurePredicate(failure.DependencyFailure),
		onChange,
	)
	for name, o := range cb.Overrides {
		opts := []circuit.Option{onChange}
		if o.FailureThreshold > 0 {
			opts = append(opts, circuit.WithFailureThreshold(o.FailureThreshold))
		}
		if o.Cooldown > 0 {
			opts = append(opts, circuit.WithCooldown(o.Cooldown))
		}
		reg.Configure(name, opts...)
	}
	return reg
}

func (a *App) openStores(ctx context.Context) (enforcementservice.Store, offenderservice.Store, error) {
	pool, err := postgres.OpenPool(ctx, a.Config.Postgres)
	if errors.Is(err, postgres.ErrNotConfigured) {
		a.Logger.Warn("EHS_DATABASE_URL not set, using in-memory stores")
		return enforcementstore.NewInMemory(), offenderstore.NewInMemory(), nil
	}
	if err != nil {
		return nil, nil, err
	}
	a.onClose(pool.Close)
	if err := postgres.Migrate(ctx, pool); err != nil {
		return nil, nil, err
	}

	var db *sql.DB
	db, err = postgres.OpenDB(ctx, a.Config.Postgres)
	if err != nil {
		return nil, nil, err
	}
	a.onClose(func() { _ = db.Close() })
	a.checks["postgres"] = pingPool(pool)
	return enforcementstore.NewPostgres(pool), offenderstore.NewPostgres(db), nil
}

func pingPool(pool *pgxpool.Pool) httptransport.HealthCheck {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

// openPublisher always includes the in-process broadcaster; Kafka is added
// when brokers are configured.
func (a *App) openPublisher(ctx context.Context) (events.Publisher, error) {
	a.Broadcaster = events.NewBroadcaster()
	a.onClose(a.Broadcaster.Close)
	publishers := events.Multi{a.Broadcaster}

	kc := a.Config.Kafka
	if len(kc.Brokers) == 0 {
		return publishers, nil
	}
	client, err := events.NewKafkaClient(kc.Brokers)
	if err != nil {
		return nil, err
	}
	a.onClose(client.Close)
	if err := events.EnsureTopics(ctx, client, kc.TopicPrefix, kc.Partitions, kc.Replication, a.Logger); err != nil {
		return nil, err
	}
	a.checks["kafka"] = pingKafka(client)
	return append(publishers, events.NewKafkaPublisher(client, kc.TopicPrefix)), nil
}

func pingKafka(client *kgo.Client) httptransport.HealthCheck {
	return func(ctx context.Context) error { return client.Ping(ctx) }
}

// openRegistry returns nil when no company registry is configured.
func (a *App) openRegistry(rc *redis.Client) (*pipeline.RecoveringRegistry, error) {
	rcfg := a.Config.Registry
	if rcfg.BaseURL == "" {
		return nil, nil
	}
	var cache registry.Cache = registry.NewInMemoryCache()
	if rc != nil {
		// Entries outlive the TTL so stale results can stand in during outages.
		cache = registry.NewRedisCache(rc.Client, 7*rcfg.CacheTTL)
	}
	cached, err := registry.NewCachedClient(
		registry.NewHTTPClient(rcfg.BaseURL, rcfg.APIKey, rcfg.Timeout),
		cache,
		registry.WithGuard(a.Guard),
		registry.WithTTL(rcfg.CacheTTL),
		registry.WithTimeout(rcfg.Timeout),
		registry.WithLogger(a.Logger),
	)
	if err != nil {
		return nil, fmt.Errorf("company registry: %w", err)
	}
	return pipeline.NewRecoveringRegistry(cached, a.Failures, a.Orchestrator, a.Logger)
}

// RunAlerts drains the alert queue until ctx is done.
func (a *App) RunAlerts(ctx context.Context) error {
	return a.alerts.Run(ctx)
}

// Checks returns the health checks of the connected backends.
func (a *App) Checks() map[string]httptransport.HealthCheck {
	return a.checks
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
