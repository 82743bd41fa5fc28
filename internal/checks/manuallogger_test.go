package checks

import (
	"context"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pideploy/pideploy/internal/eventually"
	"github.com/pideploy/pideploy/internal/models"
	"github.com/pideploy/pideploy/internal/piwebapi"
	"github.com/pideploy/pideploy/internal/testutil"
)

// withFakeManualLogger points deps at a fresh fake the test can configure.
func withFakeManualLogger(t *testing.T, deps *Deps) *testutil.FakeManualLogger {
	t.Helper()
	ml := testutil.NewFakeManualLogger(t)
	deps.PI.ManualLogger, deps.PI.ManualLoggerPort = ml.HostPort()
	deps.ManualLogger = piwebapi.New(ml.BaseURL(),
		piwebapi.WithHTTPClient(ml.Server.Client()),
		piwebapi.WithAuthenticator(piwebapi.BasicAuth{User: "piadmin", Password: "pw"}))
	deps.TLSRoots = ml.Roots()
	return ml
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) Sleep(ctx context.Context, d time.Duration) error {
	return eventually.SystemClock.Sleep(ctx, d)
}

func TestManualLogger_Offline(t *testing.T) {
	tests := []struct {
		name      string
		check     string
		configure func(*testutil.FakeManualLoggerSettings)
		want      string
	}{
		{"api", "ml-api-connection", func(s *testutil.FakeManualLoggerSettings) { s.Offline = true }, "PI Manual Logger API is not online"},
		{"database", "ml-db-connection", func(s *testutil.FakeManualLoggerSettings) { s.DBOffline = true }, "cannot reach its SQL database"},
		{"username", "ml-username", func(s *testutil.FakeManualLoggerSettings) { s.Username = "" }, "empty username"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, deps := newFakeDeps(t)
			ml := withFakeManualLogger(t, deps)
			ml.Configure(tt.configure)

			err := runCheck(t, deps, tt.check)
			assert.Equal(t, models.StatusFail, Classify(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestManualLogger_Unauthorized(t *testing.T) {
	_, deps := newFakeDeps(t)
	ml := withFakeManualLogger(t, deps)
	deps.ManualLogger = piwebapi.New(ml.BaseURL(), piwebapi.WithHTTPClient(ml.Server.Client()))

	err := runCheck(t, deps, "ml-home-page")
	assert.Equal(t, models.StatusFail, Classify(err))
	assert.Contains(t, err.Error(), "401")
}

func TestManualLogger_UntrustedCertificate(t *testing.T) {
	_, deps := newFakeDeps(t)
	withFakeManualLogger(t, deps)
	deps.TLSRoots = x509.NewCertPool()

	err := runCheck(t, deps, "ml-https-certificate")
	assert.Equal(t, models.StatusFail, Classify(err))
	assert.Contains(t, err.Error(), "is not trusted")
}

func TestManualLogger_ExpiredCertificate(t *testing.T) {
	_, deps := newFakeDeps(t)
	withFakeManualLogger(t, deps)
	deps.Clock = fixedClock{now: time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)}

	err := runCheck(t, deps, "ml-https-certificate")
	assert.Equal(t, models.StatusFail, Classify(err))
	assert.Contains(t, err.Error(), "expired on")
}

func TestManualLogger_CertificateSkippedWithoutValidation(t *testing.T) {
	_, deps := newFakeDeps(t)
	deps.PI.SkipCertificateValidation = true

	err := runCheck(t, deps, "ml-https-certificate")
	assert.Equal(t, models.StatusSkip, Classify(err))
}

func TestManualLoggerChecks_SkipWithoutSetting(t *testing.T) {
	_, deps := newFakeDeps(t)
	deps.PI.ManualLogger = ""

	for _, check := range Default().All() {
		if check.Suite != SuiteManualLogger {
			continue
		}
		err := runCheck(t, deps, check.ID)
		assert.Equal(t, models.StatusSkip, Classify(err), check.ID)
	}
}

func TestManualLoggerChecks_SkipWithoutClient(t *testing.T) {
	_, deps := newFakeDeps(t)
	deps.ManualLogger = nil

	err := runCheck(t, deps, "ml-username")
	assert.Equal(t, models.StatusSkip, Classify(err))
}
