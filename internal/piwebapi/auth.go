package piwebapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/pideploy/pideploy/internal/config"
)

// ErrUnsupportedAuth is returned for authentication methods the client cannot perform.
var ErrUnsupportedAuth = errors.New("unsupported authentication method")

// Authenticator adds credentials to outgoing request headers. It is used for
// both REST requests and websocket handshakes.
type Authenticator interface {
	Authorize(ctx context.Context, h http.Header) error
}

// Anonymous sends no credentials.
type Anonymous struct{}

// Authorize implements Authenticator.
func (Anonymous) Authorize(context.Context, http.Header) error { return nil }

// BasicAuth sends a user name and password.
type BasicAuth struct {
	User     string
	Password string
}

// Authorize implements Authenticator.
func (b BasicAuth) Authorize(_ context.Context, h http.Header) error {
	creds := base64.StdEncoding.EncodeToString([]byte(b.User + ":" + b.Password))
	h.Set("Authorization", "Basic "+creds)
	return nil
}

// BearerAuth sends an OAuth2 access token.
type BearerAuth struct {
	source oauth2.TokenSource
}

// NewBearerAuthFromSource wraps an existing token source.
func NewBearerAuthFromSource(ts oauth2.TokenSource) *BearerAuth {
	return &BearerAuth{source: oauth2.ReuseTokenSource(nil, ts)}
}

// NewBearerAuth discovers the issuer's token endpoint and fetches tokens with
// the client credentials grant.
func NewBearerAuth(ctx context.Context, cfg config.OIDCConfig, hc *http.Client) (*BearerAuth, error) {
	if hc != nil {
		ctx = oidc.ClientContext(ctx, hc)
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("discover OIDC issuer %s: %w", cfg.IssuerURL, err)
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     provider.Endpoint().TokenURL,
		Scopes:       cfg.Scopes,
	}
	return NewBearerAuthFromSource(cc.TokenSource(ctx)), nil
}

// Authorize implements Authenticator.
func (b *BearerAuth) Authorize(_ context.Context, h http.Header) error {
	tok, err := b.source.Token()
	if err != nil {
		return fmt.Errorf("fetch access token: %w", err)
	}
	h.Set("Authorization", tok.Type()+" "+tok.AccessToken)
	return nil
}

// NewAuthenticator returns the Authenticator for the configured method.
func NewAuthenticator(ctx context.Context, cfg *config.PIConfig, hc *http.Client) (Authenticator, error) {
	switch cfg.AuthMethod {
	case config.AuthBasic, "":
		return BasicAuth{User: cfg.User, Password: cfg.Password}, nil
	case config.AuthAnonymous:
		return Anonymous{}, nil
	case config.AuthBearer:
		return NewBearerAuth(ctx, cfg.OIDC, hc)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAuth, cfg.AuthMethod)
	}
}
