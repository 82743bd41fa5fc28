package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/pideploy/pideploy/internal/cache"
	"github.com/pideploy/pideploy/internal/checks"
	"github.com/pideploy/pideploy/internal/config"
	"github.com/pideploy/pideploy/internal/database"
	"github.com/pideploy/pideploy/internal/piwebapi"
	"github.com/pideploy/pideploy/internal/report"
	"github.com/pideploy/pideploy/internal/repository"
	"github.com/pideploy/pideploy/pkg/logger"
)

// app holds the configuration and the lazily opened backends of one command.
type app struct {
	cfg *config.Config
	log *logger.Logger

	cache   cache.Cache
	pool    *database.Pool
	closers []func() error
}

func loadApp(opts *globalOptions) (*app, error) {
	cfg, err := config.LoadFile(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.App.Version = Version

	log := logger.NewWithFormat(opts.stderr, cfg.App.LogLevel, cfg.App.LogFormat)
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases backends in reverse order of opening.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// sharedCache returns Redis when configured, otherwise a process-local cache.
func (a *app) sharedCache(ctx context.Context) (cache.Cache, error) {
	if a.cache != nil {
		return a.cache, nil
	}
	if !a.cfg.RedisEnabled() {
		mem := cache.NewMemoryCache()
		a.onClose(mem.Close)
		a.cache = mem
		return mem, nil
	}

	rc, err := cache.NewRedisCache(ctx, &a.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.onClose(rc.Close)
	a.log.Info("Connected to redis", "host", a.cfg.Redis.Host)
	a.cache = rc
	return rc, nil
}

func (a *app) database(ctx context.Context) (*database.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if !a.cfg.DatabaseEnabled() {
		return nil, fmt.Errorf("%w: DB_HOST and DB_PASSWORD", config.ErrMissingSetting)
	}
	pool, err := database.NewPool(ctx, &a.cfg.Database)
	if err != nil {
		return nil, err
	}
	a.onClose(func() error { pool.Close(); return nil })
	a.pool = pool
	return pool, nil
}

// checkDeps connects to PI Web API, and to PI Manual Logger Web when it is
// configured, and sets up WebId caching.
func (a *app) checkDeps(ctx context.Context) (*checks.Deps, error) {
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := piwebapi.NewFromConfig(ctx, &a.cfg.PI, a.log)
	if err != nil {
		return nil, err
	}

	c, err := a.sharedCache(ctx)
	if err != nil {
		return nil, err
	}
	webIDs := cache.NewWebIDCache(c, "webid:", a.cfg.PI.CacheTTL)

	deps := &checks.Deps{
		Client:   client,
		Resolver: piwebapi.NewCachedResolver(client, webIDs, a.log),
		PI:       a.cfg.PI,
		Polling:  a.cfg.Polling,
		Log:      a.log.Named("checks"),
	}
	if a.cfg.PI.ManualLogger != "" {
		if deps.ManualLogger, err = piwebapi.NewManualLoggerFromConfig(ctx, &a.cfg.PI, a.log); err != nil {
			return nil, err
		}
	}
	return deps, nil
}

// runRepository stores history in PostgreSQL when configured, otherwise in
// memory. Finished runs are cached.
func (a *app) runRepository(ctx context.Context) (repository.RunRepository, error) {
	var repo repository.RunRepository
	if a.cfg.DatabaseEnabled() {
		pool, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		repo = repository.NewPostgresRunRepository(pool)
	} else {
		a.log.Info("No database configured, keeping run history in memory")
		repo = repository.NewMemoryRunRepository(0)
	}

	c, err := a.sharedCache(ctx)
	if err != nil {
		return nil, err
	}
	return repository.NewCachedRunRepository(repo, c, 0), nil
}

// publisher returns nil when Kafka is not configured.
func (a *app) publisher() *report.Publisher {
	if !a.cfg.KafkaEnabled() {
		return nil
	}
	flusher := report.NewKafkaFlusher(a.cfg.Kafka)
	a.onClose(flusher.Close)

	pub := report.NewPublisher(report.Config{
		FlushInterval: a.cfg.Kafka.FlushInterval,
		BatchSize:     a.cfg.Kafka.BatchSize,
	}, flusher, a.log.Named("publisher"))
	a.onClose(func() error { pub.Stop(); return nil })

	a.log.Info("Publishing results to kafka", "topic", a.cfg.Kafka.Topic)
	return pub
}
