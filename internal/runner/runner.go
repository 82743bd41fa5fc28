// Package runner executes selected checks against a PI Web API and records
// the outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pideploy/pideploy/internal/checks"
	"github.com/pideploy/pideploy/internal/metrics"
	"github.com/pideploy/pideploy/internal/models"
	"github.com/pideploy/pideploy/internal/repository"
	"github.com/pideploy/pideploy/pkg/logger"
)

// ErrNoChecks is returned when a selection matches nothing.
var ErrNoChecks = errors.New("no checks selected")

// Publisher receives every check result as it completes.
type Publisher interface {
	Publish(result models.CheckResult)
}

// Selection chooses which checks a run executes.
type Selection struct {
	Suites      []string
	Checks      []string
	TriggeredBy string
}

// Runner runs checks sequentially on the calling goroutine.
type Runner struct {
	registry     *checks.Registry
	deps         *checks.Deps
	repo         repository.RunRepository
	publisher    Publisher
	onResult     func(models.CheckResult)
	log          *logger.Logger
	checkTimeout time.Duration
	now          func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithRepository persists runs and results.
func WithRepository(repo repository.RunRepository) Option {
	return func(r *Runner) { r.repo = repo }
}

// WithPublisher hands results to p.
func WithPublisher(p Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// WithResultHook calls fn after each check, e.g. to print progress.
func WithResultHook(fn func(models.CheckResult)) Option {
	return func(r *Runner) { r.onResult = fn }
}

// WithLogger sets the runner logger.
func WithLogger(log *logger.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithCheckTimeout bounds each check. Zero disables the bound.
func WithCheckTimeout(d time.Duration) Option {
	return func(r *Runner) { r.checkTimeout = d }
}

// New creates a Runner over registry.
func New(registry *checks.Registry, deps *checks.Deps, opts ...Option) *Runner {
	r := &Runner{
		registry: registry,
		deps:     deps,
		log:      logger.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.deps.Log == nil {
		cp := *r.deps
		cp.Log = r.log
		r.deps = &cp
	}
	return r
}

// Registry returns the check catalogue.
func (r *Runner) Registry() *checks.Registry {
	return r.registry
}

// Prepare validates sel and creates the run record without executing it.
func (r *Runner) Prepare(ctx context.Context, sel Selection) (*models.Run, []*checks.Check, error) {
	selected, err := r.registry.Select(sel.Suites, sel.Checks)
	if err != nil {
		return nil, nil, err
	}
	if len(selected) == 0 {
		return nil, nil, ErrNoChecks
	}

	run := &models.Run{
		ID:          uuid.NewString(),
		Target:      r.target(),
		Suites:      suitesOf(selected),
		Status:      models.StatusRunning,
		TriggeredBy: sel.TriggeredBy,
		StartedAt:   r.now().UTC(),
	}
	if run.TriggeredBy == "" {
		run.TriggeredBy = "cli"
	}
	if r.repo != nil {
		if err := r.repo.CreateRun(ctx, run); err != nil {
			return nil, nil, fmt.Errorf("failed to store run: %w", err)
		}
	}
	return run, selected, nil
}

// Run selects and executes checks and returns the finished run.
func (r *Runner) Run(ctx context.Context, sel Selection) (*models.Run, error) {
	run, selected, err := r.Prepare(ctx, sel)
	if err != nil {
		return nil, err
	}
	r.Execute(ctx, run, selected)
	return run, nil
}

// Execute runs the prepared checks, filling in run as results arrive.
func (r *Runner) Execute(ctx context.Context, run *models.Run, selected []*checks.Check) {
	metrics.SetRunInProgress(true)
	defer metrics.SetRunInProgress(false)

	log := r.log.With("run_id", run.ID)
	log.Info("Run started", "target", run.Target, "checks", len(selected))

	env := checks.DiscoverEnvironment(ctx, r.deps.Client)
	if env.HomeErr != nil {
		log.Warn("PI Web API home page unavailable", "error", env.HomeErr.Error())
	}

	for _, check := range selected {
		var result models.CheckResult
		if err := ctx.Err(); err != nil {
			result = models.CheckResult{
				Suite:     check.Suite,
				CheckID:   check.ID,
				Status:    models.StatusError,
				Message:   "run cancelled: " + err.Error(),
				StartedAt: r.now().UTC(),
			}
		} else {
			result = r.runOne(ctx, check, env)
		}
		result.RunID = run.ID
		r.record(ctx, log, run, result)
	}

	finished := r.now().UTC()
	run.FinishedAt = &finished
	run.Status = run.Summary.Status()
	metrics.RecordRun(string(run.Status))

	if r.repo != nil {
		if err := r.repo.FinishRun(context.WithoutCancel(ctx), run.ID, run.Status, run.Summary, finished); err != nil {
			log.Error("Failed to store run outcome", "error", err.Error())
		}
	}
	log.Info("Run finished", "status", string(run.Status), "passed", run.Summary.Passed,
		"failed", run.Summary.Failed, "skipped", run.Summary.Skipped, "errored", run.Summary.Errored,
		"duration_ms", run.Duration().Milliseconds())
}

func (r *Runner) runOne(ctx context.Context, check *checks.Check, env *checks.Environment) models.CheckResult {
	if r.checkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.checkTimeout)
		defer cancel()
	}

	started := r.now()
	err := checks.Execute(ctx, check, r.deps, env)
	result := models.CheckResult{
		Suite:     check.Suite,
		CheckID:   check.ID,
		Status:    checks.Classify(err),
		StartedAt: started.UTC(),
		Duration:  r.now().Sub(started),
	}
	if err != nil {
		result.Message = message(err)
	}
	return result
}

func (r *Runner) record(ctx context.Context, log *logger.Logger, run *models.Run, result models.CheckResult) {
	run.Results = append(run.Results, result)
	run.Summary.Add(result.Status)
	metrics.RecordCheck(result.Suite, result.CheckID, string(result.Status), result.Duration)

	keyvals := []interface{}{"suite", result.Suite, "check", result.CheckID,
		"status", string(result.Status), "duration_ms", result.Duration.Milliseconds()}
	if result.Message != "" {
		keyvals = append(keyvals, "message", result.Message)
	}
	if result.Status.Failed() {
		log.Warn("Check finished", keyvals...)
	} else {
		log.Info("Check finished", keyvals...)
	}

	if r.repo != nil {
		if err := r.repo.AddResult(context.WithoutCancel(ctx), &result); err != nil {
			log.Error("Failed to store check result", "check", result.CheckID, "error", err.Error())
		}
	}
	if r.publisher != nil {
		r.publisher.Publish(result)
	}
	if r.onResult != nil {
		r.onResult(result)
	}
}

func (r *Runner) target() string {
	if r.deps.Client != nil {
		return r.deps.Client.BaseURL()
	}
	return r.deps.PI.BaseURL()
}

func message(err error) string {
	var skip *checks.SkipError
	if errors.As(err, &skip) {
		return skip.Reason
	}
	return err.Error()
}

func suitesOf(selected []*checks.Check) []string {
	var suites []string
	seen := make(map[string]bool)
	for _, c := range selected {
		if !seen[c.Suite] {
			seen[c.Suite] = true
			suites = append(suites, c.Suite)
		}
	}
	return suites
}
