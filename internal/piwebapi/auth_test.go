package piwebapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/pideploy/pideploy/internal/config"
)

func newFakeIssuer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var tokens int32

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/auth",
			"token_endpoint":         srv.URL + "/token",
			"jwks_uri":               srv.URL + "/keys",
		})
	})
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "pideploy" || secret != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&tokens, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "token-abc",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	return srv, &tokens
}

func TestBasicAuth_Authorize(t *testing.T) {
	h := http.Header{}
	require.NoError(t, BasicAuth{User: "piadmin", Password: "pw"}.Authorize(context.Background(), h))
	assert.Equal(t, "Basic cGlhZG1pbjpwdw==", h.Get("Authorization"))
}

func TestAnonymous_Authorize(t *testing.T) {
	h := http.Header{}
	require.NoError(t, Anonymous{}.Authorize(context.Background(), h))
	assert.Empty(t, h.Get("Authorization"))
}

func TestNewBearerAuth(t *testing.T) {
	issuer, tokens := newFakeIssuer(t)

	auth, err := NewBearerAuth(context.Background(), config.OIDCConfig{
		IssuerURL:    issuer.URL,
		ClientID:     "pideploy",
		ClientSecret: "s3cret",
		Scopes:       []string{"piwebapi"},
	}, issuer.Client())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		h := http.Header{}
		require.NoError(t, auth.Authorize(context.Background(), h))
		assert.Equal(t, "Bearer token-abc", h.Get("Authorization"))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(tokens), "token should be reused until it expires")
}

func TestNewBearerAuth_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewBearerAuth(context.Background(), config.OIDCConfig{IssuerURL: srv.URL}, srv.Client())
	assert.ErrorContains(t, err, "discover OIDC issuer")
}

func TestBearerAuth_TokenError(t *testing.T) {
	issuer, _ := newFakeIssuer(t)

	auth, err := NewBearerAuth(context.Background(), config.OIDCConfig{
		IssuerURL:    issuer.URL,
		ClientID:     "wrong",
		ClientSecret: "wrong",
	}, issuer.Client())
	require.NoError(t, err)

	err = auth.Authorize(context.Background(), http.Header{})
	assert.ErrorContains(t, err, "fetch access token")
}

func TestNewBearerAuthFromSource(t *testing.T) {
	auth := NewBearerAuthFromSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "static", TokenType: "Bearer"}))

	h := http.Header{}
	require.NoError(t, auth.Authorize(context.Background(), h))
	assert.Equal(t, "Bearer static", h.Get("Authorization"))
}

func TestNewAuthenticator(t *testing.T) {
	a, err := NewAuthenticator(context.Background(), &config.PIConfig{AuthMethod: config.AuthBasic, User: "u", Password: "p"}, nil)
	require.NoError(t, err)
	assert.Equal(t, BasicAuth{User: "u", Password: "p"}, a)

	a, err = NewAuthenticator(context.Background(), &config.PIConfig{AuthMethod: config.AuthAnonymous}, nil)
	require.NoError(t, err)
	assert.Equal(t, Anonymous{}, a)

	_, err = NewAuthenticator(context.Background(), &config.PIConfig{AuthMethod: "kerberos"}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedAuth)
}

func TestClient_BearerRequests(t *testing.T) {
	issuer, _ := newFakeIssuer(t)
	auth, err := NewBearerAuth(context.Background(), config.OIDCConfig{
		IssuerURL: issuer.URL, ClientID: "pideploy", ClientSecret: "s3cret",
	}, issuer.Client())
	require.NoError(t, err)

	client, fake := newTestClient(t)
	client = New(client.BaseURL(), WithAuthenticator(auth))

	_, err = client.Home(context.Background())
	require.NoError(t, err)

	reqs := fake.Requests()
	assert.Equal(t, "Bearer token-abc", reqs[len(reqs)-1].Authorization)
}
