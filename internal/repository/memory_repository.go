package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pideploy/pideploy/internal/models"
)

// MemoryRunRepository keeps run history in process memory. It is used when
// no database is configured and keeps at most maxRuns runs.
type MemoryRunRepository struct {
	mu      sync.RWMutex
	runs    map[string]*models.Run
	maxRuns int
}

// NewMemoryRunRepository creates an in-memory repository. maxRuns <= 0 keeps
// 100 runs.
func NewMemoryRunRepository(maxRuns int) *MemoryRunRepository {
	if maxRuns <= 0 {
		maxRuns = 100
	}
	return &MemoryRunRepository{runs: make(map[string]*models.Run), maxRuns: maxRuns}
}

// CreateRun stores a copy of run.
func (m *MemoryRunRepository) CreateRun(_ context.Context, run *models.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("failed to create run: duplicate id %s", run.ID)
	}
	cp := copyRun(run)
	cp.Results = nil
	m.runs[run.ID] = cp
	m.evictLocked()
	return nil
}

// FinishRun records the final status.
func (m *MemoryRunRepository) FinishRun(_ context.Context, id string, status models.Status, summary models.Summary, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[id]
	if !ok {
		return models.ErrRunNotFound
	}
	run.Status = status
	run.Summary = summary
	run.FinishedAt = &finishedAt
	return nil
}

// AddResult appends a result to its run.
func (m *MemoryRunRepository) AddResult(_ context.Context, res *models.CheckResult) error {
	if err := res.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[res.RunID]
	if !ok {
		return models.ErrRunNotFound
	}
	for _, existing := range run.Results {
		if existing.Suite == res.Suite && existing.CheckID == res.CheckID {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateResult, res.Suite, res.CheckID)
		}
	}
	run.Results = append(run.Results, *res)
	return nil
}

// GetRun returns a copy of the run with its results.
func (m *MemoryRunRepository) GetRun(_ context.Context, id string) (*models.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]
	if !ok {
		return nil, models.ErrRunNotFound
	}
	return copyRun(run), nil
}

// ListRuns returns up to limit runs, newest first.
func (m *MemoryRunRepository) ListRuns(_ context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]models.Run, 0, len(m.runs))
	for _, run := range m.runs {
		cp := copyRun(run)
		cp.Results = nil
		runs = append(runs, *cp)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// HealthCheck always succeeds.
func (m *MemoryRunRepository) HealthCheck(context.Context) error {
	return nil
}

func (m *MemoryRunRepository) evictLocked() {
	for len(m.runs) > m.maxRuns {
		var oldest *models.Run
		for _, run := range m.runs {
			if oldest == nil || run.StartedAt.Before(oldest.StartedAt) {
				oldest = run
			}
		}
		delete(m.runs, oldest.ID)
	}
}

func copyRun(run *models.Run) *models.Run {
	cp := *run
	cp.Suites = append([]string(nil), run.Suites...)
	cp.Results = append([]models.CheckResult(nil), run.Results...)
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
