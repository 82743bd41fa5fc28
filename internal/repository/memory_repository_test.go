package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pideploy/pideploy/internal/models"
)

func newRun(id string, startedAt time.Time) *models.Run {
	return &models.Run{
		ID:          id,
		Target:      "https://pi.example.com:443/piwebapi",
		Suites:      []string{"preliminary"},
		Status:      models.StatusRunning,
		TriggeredBy: "test",
		StartedAt:   startedAt,
	}
}

func TestMemoryRunRepository_Lifecycle(t *testing.T) {
	repo := NewMemoryRunRepository(0)
	ctx := context.Background()
	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateRun(ctx, newRun("r1", start)))

	res := &models.CheckResult{RunID: "r1", Suite: "preliminary", CheckID: "webapi-home-page", Status: models.StatusPass, StartedAt: start, Duration: 120 * time.Millisecond}
	require.NoError(t, repo.AddResult(ctx, res))

	err := repo.AddResult(ctx, res)
	assert.ErrorIs(t, err, ErrDuplicateResult)

	summary := models.Summary{Passed: 1}
	require.NoError(t, repo.FinishRun(ctx, "r1", models.StatusPass, summary, start.Add(time.Second)))

	run, err := repo.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPass, run.Status)
	assert.Equal(t, summary, run.Summary)
	assert.Equal(t, time.Second, run.Duration())
	require.Len(t, run.Results, 1)
	assert.Equal(t, "webapi-home-page", run.Results[0].CheckID)

	run.Results[0].CheckID = "mutated"
	again, err := repo.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "webapi-home-page", again.Results[0].CheckID)
}

func TestMemoryRunRepository_NotFound(t *testing.T) {
	repo := NewMemoryRunRepository(0)
	ctx := context.Background()

	_, err := repo.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrRunNotFound)

	err = repo.FinishRun(ctx, "missing", models.StatusPass, models.Summary{}, time.Now())
	assert.ErrorIs(t, err, models.ErrRunNotFound)

	err = repo.AddResult(ctx, &models.CheckResult{RunID: "missing", CheckID: "x", Status: models.StatusPass})
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}

func TestMemoryRunRepository_InvalidResult(t *testing.T) {
	repo := NewMemoryRunRepository(0)
	err := repo.AddResult(context.Background(), &models.CheckResult{RunID: "r1", Status: models.StatusPass})
	assert.ErrorIs(t, err, models.ErrEmptyCheckID)
}

func TestMemoryRunRepository_ListAndEvict(t *testing.T) {
	repo := NewMemoryRunRepository(3)
	ctx := context.Background()
	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.CreateRun(ctx, newRun(fmt.Sprintf("r%d", i), start.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := repo.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"r4", "r3", "r2"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	runs, err = repo.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r4", runs[0].ID)

	_, err = repo.GetRun(ctx, "r0")
	assert.ErrorIs(t, err, models.ErrRunNotFound)
}

func TestMemoryRunRepository_DuplicateRun(t *testing.T) {
	repo := NewMemoryRunRepository(0)
	ctx := context.Background()
	require.NoError(t, repo.CreateRun(ctx, newRun("r1", time.Now())))
	assert.Error(t, repo.CreateRun(ctx, newRun("r1", time.Now())))
}
