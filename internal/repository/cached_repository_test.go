package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pideploy/pideploy/internal/cache"
	"github.com/pideploy/pideploy/internal/models"
)

// MockRunRepository is a mock implementation of RunRepository.
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *MockRunRepository) FinishRun(ctx context.Context, id string, status models.Status, summary models.Summary, finishedAt time.Time) error {
	return m.Called(ctx, id, status, summary, finishedAt).Error(0)
}

func (m *MockRunRepository) AddResult(ctx context.Context, res *models.CheckResult) error {
	return m.Called(ctx, res).Error(0)
}

func (m *MockRunRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Run), args.Error(1)
}

func (m *MockRunRepository) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Run), args.Error(1)
}

func (m *MockRunRepository) HealthCheck(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestCachedRunRepository_CachesFinishedRuns(t *testing.T) {
	repo := new(MockRunRepository)
	mem := cache.NewMemoryCache()
	cached := NewCachedRunRepository(repo, mem, time.Minute)
	ctx := context.Background()

	end := time.Date(2026, 10, 1, 8, 1, 0, 0, time.UTC)
	run := &models.Run{ID: "r1", Status: models.StatusPass, StartedAt: end.Add(-time.Minute), FinishedAt: &end}
	repo.On("GetRun", ctx, "r1").Return(run, nil).Once()

	got, err := cached.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ID)

	got, err = cached.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPass, got.Status)
	assert.True(t, end.Equal(*got.FinishedAt))

	repo.AssertNumberOfCalls(t, "GetRun", 1)
}

func TestCachedRunRepository_DoesNotCacheRunningRuns(t *testing.T) {
	repo := new(MockRunRepository)
	cached := NewCachedRunRepository(repo, cache.NewMemoryCache(), 0)
	ctx := context.Background()

	repo.On("GetRun", ctx, "r1").Return(&models.Run{ID: "r1", Status: models.StatusRunning}, nil)

	for i := 0; i < 2; i++ {
		_, err := cached.GetRun(ctx, "r1")
		require.NoError(t, err)
	}
	repo.AssertNumberOfCalls(t, "GetRun", 2)
}

func TestCachedRunRepository_FinishInvalidates(t *testing.T) {
	repo := new(MockRunRepository)
	mem := cache.NewMemoryCache()
	cached := NewCachedRunRepository(repo, mem, time.Minute)
	ctx := context.Background()

	require.NoError(t, mem.Set(ctx, runKey("r1"), []byte(`{"id":"r1","status":"fail"}`), 0))
	finished := time.Now()
	repo.On("FinishRun", ctx, "r1", models.StatusPass, models.Summary{Passed: 1}, finished).Return(nil)

	require.NoError(t, cached.FinishRun(ctx, "r1", models.StatusPass, models.Summary{Passed: 1}, finished))
	assert.Equal(t, 0, mem.Len())
}

func TestCachedRunRepository_PassThrough(t *testing.T) {
	repo := new(MockRunRepository)
	cached := NewCachedRunRepository(repo, cache.NewMemoryCache(), time.Minute)
	ctx := context.Background()

	run := &models.Run{ID: "r1"}
	res := &models.CheckResult{RunID: "r1", CheckID: "batch", Status: models.StatusPass}
	repo.On("CreateRun", ctx, run).Return(nil)
	repo.On("AddResult", ctx, res).Return(nil)
	repo.On("ListRuns", ctx, 5).Return([]models.Run{*run}, nil)
	repo.On("GetRun", ctx, "missing").Return(nil, models.ErrRunNotFound)
	repo.On("HealthCheck", ctx).Return(errors.New("db down"))

	require.NoError(t, cached.CreateRun(ctx, run))
	require.NoError(t, cached.AddResult(ctx, res))
	runs, err := cached.ListRuns(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	_, err = cached.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrRunNotFound)

	assert.EqualError(t, cached.HealthCheck(ctx), "db down")
	repo.AssertExpectations(t)
}
