package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pideploy/pideploy/internal/checks"
	"github.com/pideploy/pideploy/internal/config"
	"github.com/pideploy/pideploy/internal/models"
	"github.com/pideploy/pideploy/internal/piwebapi"
	"github.com/pideploy/pideploy/internal/repository"
	"github.com/pideploy/pideploy/internal/testutil"
)

type recordingPublisher struct {
	mu      sync.Mutex
	results []models.CheckResult
}

func (p *recordingPublisher) Publish(result models.CheckResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)
}

func fakeDeps(t *testing.T) *checks.Deps {
	t.Helper()
	fake := testutil.NewFakePIWebAPI(t)
	fake.SeedAnalyses()
	ml := testutil.NewFakeManualLogger(t)
	mlHost, mlPort := ml.HostPort()

	auth := piwebapi.BasicAuth{User: "piadmin", Password: "pw"}
	return &checks.Deps{
		Client: piwebapi.New(fake.BaseURL(), piwebapi.WithAuthenticator(auth)),
		PI: config.PIConfig{
			WebAPIHost:       "localhost",
			AFServer:         testutil.FakeAFServer,
			AFDatabase:       testutil.FakeAFDatabase,
			DataArchive:      testutil.FakeDataArchive,
			TestPointName:    testutil.FakeTestPoint,
			AnalysisService:  "pias01",
			ManualLogger:     mlHost,
			ManualLoggerPort: mlPort,
			AuthMethod:       config.AuthBasic,
		},
		Polling: config.PollingConfig{
			Timeout:        2 * time.Second,
			Interval:       10 * time.Millisecond,
			StreamTimeout:  2 * time.Second,
			StreamInterval: 10 * time.Millisecond,
		},
		ManualLogger: piwebapi.New(ml.BaseURL(), piwebapi.WithHTTPClient(ml.Server.Client()), piwebapi.WithAuthenticator(auth)),
		TLSRoots:     ml.Roots(),
	}
}

func scriptedRegistry() *checks.Registry {
	r := checks.NewRegistry()
	r.MustRegister(
		&checks.Check{ID: "passes", Suite: "one", Run: func(*checks.Context) error { return nil }},
		&checks.Check{ID: "fails", Suite: "one", Run: func(*checks.Context) error { return checks.Failf("expected 1, got 2") }},
		&checks.Check{ID: "skips", Suite: "two", Run: func(c *checks.Context) error { return c.Skip("not installed") }},
		&checks.Check{ID: "panics", Suite: "two", Run: func(*checks.Context) error { panic("boom") }},
		&checks.Check{ID: "errors", Suite: "two", Run: func(*checks.Context) error { return errors.New("connection reset") }},
		&checks.Check{ID: "hangs", Suite: "three", Run: func(c *checks.Context) error {
			<-c.Context().Done()
			return c.Context().Err()
		}},
	)
	return r
}

func TestRunner_RecordsEveryOutcome(t *testing.T) {
	repo := repository.NewMemoryRunRepository(10)
	pub := &recordingPublisher{}
	var hooked []string

	r := New(scriptedRegistry(), fakeDeps(t),
		WithRepository(repo),
		WithPublisher(pub),
		WithResultHook(func(res models.CheckResult) { hooked = append(hooked, res.CheckID) }),
		WithCheckTimeout(50*time.Millisecond),
	)

	run, err := r.Run(context.Background(), Selection{TriggeredBy: "test"})
	require.NoError(t, err)

	want := map[string]models.Status{
		"passes": models.StatusPass,
		"fails":  models.StatusFail,
		"skips":  models.StatusSkip,
		"panics": models.StatusFail,
		"errors": models.StatusError,
		"hangs":  models.StatusFail,
	}
	require.Len(t, run.Results, len(want))
	for _, res := range run.Results {
		assert.Equal(t, want[res.CheckID], res.Status, res.CheckID)
		assert.Equal(t, run.ID, res.RunID)
	}
	assert.Equal(t, "not installed", run.Results[2].Message)
	assert.Contains(t, run.Results[3].Message, "boom")

	assert.Equal(t, models.Summary{Passed: 1, Failed: 3, Skipped: 1, Errored: 1}, run.Summary)
	assert.Equal(t, models.StatusFail, run.Status)
	assert.True(t, run.IsFinished())
	assert.Equal(t, []string{"one", "two", "three"}, run.Suites)
	assert.Equal(t, "test", run.TriggeredBy)
	assert.Equal(t, []string{"passes", "fails", "skips", "panics", "errors", "hangs"}, hooked)
	assert.Len(t, pub.results, 6)

	stored, err := repo.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFail, stored.Status)
	assert.Len(t, stored.Results, 6)
}

func TestRunner_Selection(t *testing.T) {
	r := New(scriptedRegistry(), fakeDeps(t))

	run, err := r.Run(context.Background(), Selection{Suites: []string{"one"}, Checks: []string{"passes"}})
	require.NoError(t, err)
	require.Len(t, run.Results, 1)
	assert.Equal(t, models.StatusPass, run.Status)
	assert.Equal(t, "cli", run.TriggeredBy)

	_, err = r.Run(context.Background(), Selection{Suites: []string{"missing"}})
	assert.ErrorIs(t, err, checks.ErrUnknownSuite)

	_, err = r.Run(context.Background(), Selection{Suites: []string{"two"}, Checks: []string{"passes"}})
	assert.ErrorIs(t, err, ErrNoChecks)
}

func TestRunner_CancelledRunMarksRemainingChecks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reg := checks.NewRegistry()
	reg.MustRegister(
		&checks.Check{ID: "first", Suite: "s", Run: func(*checks.Context) error { cancel(); return nil }},
		&checks.Check{ID: "second", Suite: "s", Run: func(*checks.Context) error { return nil }},
	)

	run, err := New(reg, fakeDeps(t)).Run(ctx, Selection{})
	require.NoError(t, err)
	require.Len(t, run.Results, 2)
	assert.Equal(t, models.StatusPass, run.Results[0].Status)
	assert.Equal(t, models.StatusError, run.Results[1].Status)
	assert.Contains(t, run.Results[1].Message, "run cancelled")
}

func TestRunner_DefaultCatalogueAgainstFake(t *testing.T) {
	r := New(checks.Default(), fakeDeps(t), WithCheckTimeout(20*time.Second))

	run, err := r.Run(context.Background(), Selection{})
	require.NoError(t, err)
	for _, res := range run.Results {
		assert.Equal(t, models.StatusPass, res.Status, "%s: %s", res.CheckID, res.Message)
	}
	assert.Equal(t, models.StatusPass, run.Status)
	assert.Equal(t, len(checks.Default().All()), run.Summary.Passed)
}
