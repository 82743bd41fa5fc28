package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pideploy/pideploy/internal/cache"
	"github.com/pideploy/pideploy/internal/models"
)

// CachedRunRepository wraps a RunRepository and caches finished runs, which
// never change once FinishRun has been called.
type CachedRunRepository struct {
	repo     RunRepository
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewCachedRunRepository creates a cached run repository.
func NewCachedRunRepository(repo RunRepository, c cache.Cache, cacheTTL time.Duration) *CachedRunRepository {
	if cacheTTL == 0 {
		cacheTTL = 24 * time.Hour
	}
	return &CachedRunRepository{repo: repo, cache: c, cacheTTL: cacheTTL}
}

func runKey(id string) string {
	return "run:" + id
}

// CreateRun stores a new run in the database.
func (c *CachedRunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	return c.repo.CreateRun(ctx, run)
}

// FinishRun updates the run and drops any stale cache entry.
func (c *CachedRunRepository) FinishRun(ctx context.Context, id string, status models.Status, summary models.Summary, finishedAt time.Time) error {
	if err := c.repo.FinishRun(ctx, id, status, summary, finishedAt); err != nil {
		return err
	}
	_ = c.cache.Delete(ctx, runKey(id))
	return nil
}

// AddResult records a result in the database.
func (c *CachedRunRepository) AddResult(ctx context.Context, res *models.CheckResult) error {
	return c.repo.AddResult(ctx, res)
}

// GetRun checks the cache first and caches finished runs read from the
// database.
func (c *CachedRunRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	if data, err := c.cache.Get(ctx, runKey(id)); err == nil {
		var run models.Run
		if json.Unmarshal(data, &run) == nil {
			return &run, nil
		}
	}

	run, err := c.repo.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.IsFinished() {
		if data, err := json.Marshal(run); err == nil {
			_ = c.cache.Set(ctx, runKey(id), data, c.cacheTTL)
		}
	}
	return run, nil
}

// ListRuns always reads from the database.
func (c *CachedRunRepository) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	return c.repo.ListRuns(ctx, limit)
}

// HealthCheck checks both cache and database health.
func (c *CachedRunRepository) HealthCheck(ctx context.Context) error {
	if err := c.cache.Ping(ctx); err != nil {
		return err
	}
	return c.repo.HealthCheck(ctx)
}
