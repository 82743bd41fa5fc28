package piwebapi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pideploy/pideploy/internal/config"
	"github.com/pideploy/pideploy/internal/testutil"
)

func TestClient_ManualLogger(t *testing.T) {
	ml := testutil.NewFakeManualLogger(t)
	client := New(ml.BaseURL(), WithHTTPClient(ml.Server.Client()), WithAuthenticator(BasicAuth{User: "tester", Password: "secret"}))
	ctx := context.Background()

	page, err := client.GetPage(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, string(page), "PI Manual Logger")

	online, err := client.ManualLoggerConnection(ctx)
	require.NoError(t, err)
	assert.True(t, online)

	online, err = client.ManualLoggerDatabaseConnection(ctx)
	require.NoError(t, err)
	assert.True(t, online)

	name, err := client.ManualLoggerUsername(ctx)
	require.NoError(t, err)
	assert.Equal(t, `CORP\piadmin`, name)

	ml.Configure(func(s *testutil.FakeManualLoggerSettings) {
		s.Offline = true
		s.DBOffline = true
	})
	online, err = client.ManualLoggerConnection(ctx)
	require.NoError(t, err)
	assert.False(t, online)
	online, err = client.ManualLoggerDatabaseConnection(ctx)
	require.NoError(t, err)
	assert.False(t, online)
}

func TestClient_ManualLoggerUnauthorized(t *testing.T) {
	ml := testutil.NewFakeManualLogger(t)
	client := New(ml.BaseURL(), WithHTTPClient(ml.Server.Client()))

	_, err := client.ManualLoggerUsername(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.StatusCode)
}

func TestNewManualLoggerFromConfig(t *testing.T) {
	_, err := NewManualLoggerFromConfig(context.Background(), &config.PIConfig{WebAPIHost: "pi.example.com"}, nil)
	assert.ErrorIs(t, err, config.ErrMissingSetting)
	assert.Contains(t, err.Error(), "PIManualLogger")

	cfg := &config.PIConfig{ManualLogger: "ml.example.com", ManualLoggerPort: 8443, AuthMethod: config.AuthAnonymous}
	client, err := NewManualLoggerFromConfig(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://ml.example.com:8443/"+config.ManualLoggerSite, client.BaseURL())

	cfg.AuthMethod = "kerberos"
	_, err = NewManualLoggerFromConfig(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, ErrUnsupportedAuth)
}
