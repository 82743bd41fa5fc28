// Package repository handles run history persistence.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pideploy/pideploy/internal/database"
	"github.com/pideploy/pideploy/internal/metrics"
	"github.com/pideploy/pideploy/internal/models"
)

// ErrDuplicateResult is returned when a check is recorded twice for a run.
var ErrDuplicateResult = errors.New("check result already recorded")

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// RunRepository stores verification runs and their check results.
type RunRepository interface {
	// CreateRun stores a new run in the running state.
	CreateRun(ctx context.Context, run *models.Run) error

	// FinishRun records the final status and counts of a run.
	FinishRun(ctx context.Context, id string, status models.Status, summary models.Summary, finishedAt time.Time) error

	// AddResult records the outcome of one check.
	AddResult(ctx context.Context, result *models.CheckResult) error

	// GetRun returns a run with its results.
	GetRun(ctx context.Context, id string) (*models.Run, error)

	// ListRuns returns the most recent runs without results.
	ListRuns(ctx context.Context, limit int) ([]models.Run, error)

	// HealthCheck verifies the repository is healthy.
	HealthCheck(ctx context.Context) error
}

// PostgresRunRepository implements RunRepository using PostgreSQL.
type PostgresRunRepository struct {
	pool *database.Pool
}

// NewPostgresRunRepository creates a PostgreSQL-backed run repository.
func NewPostgresRunRepository(pool *database.Pool) *PostgresRunRepository {
	return &PostgresRunRepository{pool: pool}
}

// CreateRun stores a new run.
func (r *PostgresRunRepository) CreateRun(ctx context.Context, run *models.Run) error {
	defer observe("create_run", time.Now())

	query := `
		INSERT INTO runs (id, target, suites, status, triggered_by, started_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query, run.ID, run.Target, run.Suites, string(run.Status), run.TriggeredBy, run.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// FinishRun records the final status of a run.
func (r *PostgresRunRepository) FinishRun(ctx context.Context, id string, status models.Status, summary models.Summary, finishedAt time.Time) error {
	defer observe("finish_run", time.Now())

	query := `
		UPDATE runs
		SET status = $2, finished_at = $3, passed = $4, failed = $5, skipped = $6, errored = $7
		WHERE id = $1::uuid
	`
	result, err := r.pool.Exec(ctx, query, id, string(status), finishedAt,
		summary.Passed, summary.Failed, summary.Skipped, summary.Errored)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrRunNotFound
	}
	return nil
}

// AddResult records one check result.
func (r *PostgresRunRepository) AddResult(ctx context.Context, res *models.CheckResult) error {
	if err := res.Validate(); err != nil {
		return err
	}
	defer observe("add_result", time.Now())

	query := `
		INSERT INTO check_results (run_id, suite, check_id, status, message, started_at, duration_ms)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query, res.RunID, res.Suite, res.CheckID, string(res.Status),
		res.Message, res.StartedAt, res.Duration.Milliseconds())
	if err != nil {
		switch pgCode(err) {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s/%s", ErrDuplicateResult, res.Suite, res.CheckID)
		case pgForeignKeyViolation:
			return models.ErrRunNotFound
		}
		return fmt.Errorf("failed to add result: %w", err)
	}
	return nil
}

// GetRun returns a run and its results ordered by start time.
func (r *PostgresRunRepository) GetRun(ctx context.Context, id string) (*models.Run, error) {
	defer observe("get_run", time.Now())

	query := `
		SELECT id::text, target, suites, status, triggered_by, started_at, finished_at,
		       passed, failed, skipped, errored
		FROM runs
		WHERE id = $1::uuid
	`
	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgCode(err) == "22P02" {
			return nil, models.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT suite, check_id, status, message, started_at, duration_ms
		FROM check_results
		WHERE run_id = $1::uuid
		ORDER BY started_at, id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			res        models.CheckResult
			status     string
			durationMS int64
		)
		if err := rows.Scan(&res.Suite, &res.CheckID, &status, &res.Message, &res.StartedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		res.RunID = run.ID
		res.Status = models.Status(status)
		res.Duration = time.Duration(durationMS) * time.Millisecond
		run.Results = append(run.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	return run, nil
}

// ListRuns returns up to limit runs, newest first.
func (r *PostgresRunRepository) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	defer observe("list_runs", time.Now())

	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, target, suites, status, triggered_by, started_at, finished_at,
		       passed, failed, skipped, errored
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]models.Run, 0, limit)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// HealthCheck pings the database.
func (r *PostgresRunRepository) HealthCheck(ctx context.Context) error {
	return r.pool.HealthCheck(ctx)
}

func scanRun(row pgx.Row) (*models.Run, error) {
	var (
		run    models.Run
		status string
	)
	err := row.Scan(&run.ID, &run.Target, &run.Suites, &status, &run.TriggeredBy, &run.StartedAt, &run.FinishedAt,
		&run.Summary.Passed, &run.Summary.Failed, &run.Summary.Skipped, &run.Summary.Errored)
	if err != nil {
		return nil, err
	}
	run.Status = models.Status(status)
	return &run, nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func observe(operation string, start time.Time) {
	metrics.RecordDBQuery(operation, time.Since(start))
}
