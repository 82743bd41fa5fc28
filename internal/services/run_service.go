// Package services contains business logic.
package services

import (
	"context"
	"errors"
	"sync"

	"github.com/pideploy/pideploy/internal/checks"
	"github.com/pideploy/pideploy/internal/models"
	"github.com/pideploy/pideploy/internal/repository"
	"github.com/pideploy/pideploy/internal/runner"
	"github.com/pideploy/pideploy/pkg/logger"
)

// ErrRunInProgress is returned when a run is requested while another executes.
var ErrRunInProgress = errors.New("a run is already in progress")

// DefaultListLimit bounds ListRuns when no limit is given.
const DefaultListLimit = 20

// StartRunRequest represents the input for starting a run.
type StartRunRequest struct {
	Suites      []string
	Checks      []string
	TriggeredBy string
}

// CheckInfo describes one registered check.
type CheckInfo struct {
	ID          string `json:"id"`
	Suite       string `json:"suite"`
	Description string `json:"description"`
}

// RunService defines the operations behind the HTTP API.
type RunService interface {
	Checks() []CheckInfo
	Start(ctx context.Context, req StartRunRequest) (*models.Run, error)
	Get(ctx context.Context, id string) (*models.Run, error)
	List(ctx context.Context, limit int) ([]models.Run, error)
}

// RunServiceImpl runs at most one check run at a time in the background.
type RunServiceImpl struct {
	runner *runner.Runner
	repo   repository.RunRepository
	log    *logger.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	active string
	wg     sync.WaitGroup
}

// NewRunService creates a RunService. The runner must persist to repo.
func NewRunService(r *runner.Runner, repo repository.RunRepository, log *logger.Logger) *RunServiceImpl {
	if log == nil {
		log = logger.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RunServiceImpl{
		runner:  r,
		repo:    repo,
		log:     log,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Checks lists the catalogue.
func (s *RunServiceImpl) Checks() []CheckInfo {
	all := s.runner.Registry().All()
	infos := make([]CheckInfo, 0, len(all))
	for _, c := range all {
		infos = append(infos, CheckInfo{ID: c.ID, Suite: c.Suite, Description: c.Description})
	}
	return infos
}

// Start validates the selection, stores the run and executes it in the
// background. The returned run is a snapshot taken before execution.
func (s *RunServiceImpl) Start(ctx context.Context, req StartRunRequest) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" {
		return nil, ErrRunInProgress
	}
	if s.baseCtx.Err() != nil {
		return nil, context.Canceled
	}

	run, selected, err := s.runner.Prepare(ctx, runner.Selection{
		Suites:      req.Suites,
		Checks:      req.Checks,
		TriggeredBy: req.TriggeredBy,
	})
	if err != nil {
		return nil, err
	}

	snapshot := *run
	s.active = run.ID
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runner.Execute(s.baseCtx, run, selected)

		s.mu.Lock()
		s.active = ""
		s.mu.Unlock()
	}()

	return &snapshot, nil
}

// Get returns a run with its results.
func (s *RunServiceImpl) Get(ctx context.Context, id string) (*models.Run, error) {
	return s.repo.GetRun(ctx, id)
}

// List returns recent runs, newest first.
func (s *RunServiceImpl) List(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return s.repo.ListRuns(ctx, limit)
}

// Active returns the id of the executing run, if any.
func (s *RunServiceImpl) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Shutdown cancels an executing run and waits for it to record its outcome.
func (s *RunServiceImpl) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsValidationError reports whether err comes from a bad selection.
func IsValidationError(err error) bool {
	return errors.Is(err, checks.ErrUnknownSuite) ||
		errors.Is(err, checks.ErrUnknownCheck) ||
		errors.Is(err, runner.ErrNoChecks)
}
