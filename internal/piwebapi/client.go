// Package piwebapi is a client for the PI Web API REST and channel endpoints.
package piwebapi

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pideploy/pideploy/internal/config"
	"github.com/pideploy/pideploy/internal/metrics"
	"github.com/pideploy/pideploy/pkg/logger"
)

// DefaultRequestTimeout bounds a single REST call.
const DefaultRequestTimeout = 30 * time.Second

// Client talks to a single PI Web API instance.
type Client struct {
	baseURL    string
	channelURL string
	httpClient *http.Client
	dialer     *websocket.Dialer
	auth       Authenticator
	log        *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for REST calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAuthenticator sets how requests are authorized.
func WithAuthenticator(a Authenticator) Option {
	return func(c *Client) { c.auth = a }
}

// WithLogger sets the client logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithChannelURL overrides the websocket root used by OpenChannel.
func WithChannelURL(u string) Option {
	return func(c *Client) { c.channelURL = strings.TrimRight(u, "/") }
}

// WithDialer sets the websocket dialer used by OpenChannel.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// New creates a client rooted at baseURL, e.g. https://host/piwebapi.
func New(baseURL string, opts ...Option) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	c := &Client{
		baseURL:    baseURL,
		channelURL: websocketURL(baseURL),
		httpClient: &http.Client{Timeout: DefaultRequestTimeout},
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment},
		auth:       Anonymous{},
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from the PI settings, wiring TLS and the
// configured authentication method.
func NewFromConfig(ctx context.Context, cfg *config.PIConfig, log *logger.Logger) (*Client, error) {
	if cfg.WebAPIHost == "" {
		return nil, fmt.Errorf("%w: PIWebAPI", config.ErrMissingSetting)
	}
	opts, err := configuredOptions(ctx, cfg, log, "piwebapi")
	if err != nil {
		return nil, err
	}
	return New(cfg.BaseURL(), append(opts, WithChannelURL(cfg.ChannelURL()))...), nil
}

// NewManualLoggerFromConfig builds a client for the PI Manual Logger Web API.
// It shares TLS and authentication settings with the PI Web API client.
func NewManualLoggerFromConfig(ctx context.Context, cfg *config.PIConfig, log *logger.Logger) (*Client, error) {
	if cfg.ManualLogger == "" {
		return nil, fmt.Errorf("%w: PIManualLogger", config.ErrMissingSetting)
	}
	opts, err := configuredOptions(ctx, cfg, log, "manuallogger")
	if err != nil {
		return nil, err
	}
	return New(cfg.ManualLoggerURL(), opts...), nil
}

func configuredOptions(ctx context.Context, cfg *config.PIConfig, log *logger.Logger, name string) ([]Option, error) {
	if log == nil {
		log = logger.Nop()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	if cfg.SkipCertificateValidation {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator opt-in
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}    //nolint:gosec // operator opt-in
	}
	hc := &http.Client{Transport: transport, Timeout: timeout}

	auth, err := NewAuthenticator(ctx, cfg, hc)
	if err != nil {
		return nil, err
	}

	return []Option{
		WithHTTPClient(hc),
		WithAuthenticator(auth),
		WithDialer(dialer),
		WithLogger(log.Named(name)),
	}, nil
}

// BaseURL returns the home page URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithoutAuth returns a copy of the client that sends no credentials.
func (c *Client) WithoutAuth() *Client {
	cp := *c
	cp.auth = Anonymous{}
	return &cp
}

// URL resolves a target against the base URL. Absolute URLs, such as
// Location headers and Links, are returned unchanged.
func (c *Client) URL(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return target
	}
	if target == "" {
		return c.baseURL
	}
	return c.baseURL + "/" + strings.TrimLeft(target, "/")
}

// Get decodes the JSON body of a GET into out.
func (c *Client) Get(ctx context.Context, target string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, target, nil, nil)
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// GetPage returns the body of a GET for target, requested as HTML.
func (c *Client) GetPage(ctx context.Context, target string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, target, nil, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

// Post sends body as JSON and returns the Location header of the response.
func (c *Client) Post(ctx context.Context, target string, body interface{}) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, target, body, nil)
	if err != nil {
		return "", err
	}
	return resp.location, nil
}

// Patch updates the object at location.
func (c *Client) Patch(ctx context.Context, location string, body interface{}) error {
	_, err := c.do(ctx, http.MethodPatch, location, body, nil)
	return err
}

// Put replaces the resource at target.
func (c *Client) Put(ctx context.Context, target string, body interface{}) error {
	_, err := c.do(ctx, http.MethodPut, target, body, nil)
	return err
}

// Delete removes the object at location.
func (c *Client) Delete(ctx context.Context, location string) error {
	_, err := c.do(ctx, http.MethodDelete, location, nil, nil)
	return err
}

type response struct {
	status   int
	location string
	body     []byte
}

func (c *Client) do(ctx context.Context, method, target string, body interface{}, headers map[string]string) (*response, error) {
	u := c.URL(target)

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case []byte:
			reader = bytes.NewReader(b)
		case json.RawMessage:
			reader = bytes.NewReader(b)
		default:
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encode request body: %w", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodGet {
		req.Header.Set("Cache-Control", "no-cache")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if err := c.auth.Authorize(ctx, req.Header); err != nil {
		return nil, fmt.Errorf("authorize request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordPIWebAPIRequest(method, 0, time.Since(start))
		c.log.Debug("request failed", "method", method, "url", u, "error", err.Error())
		return nil, fmt.Errorf("%s %s: %w", method, u, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	metrics.RecordPIWebAPIRequest(method, resp.StatusCode, duration)
	c.log.Debug("request", "method", method, "url", u, "status", resp.StatusCode, "duration_ms", duration.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, newAPIError(method, u, resp, data)
	}

	return &response{
		status:   resp.StatusCode,
		location: resp.Header.Get("Location"),
		body:     data,
	}, nil
}

func decode(resp *response, out interface{}) error {
	if out == nil || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func websocketURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}

func withQuery(target string, params url.Values) string {
	if len(params) == 0 {
		return target
	}
	return target + "?" + params.Encode()
}

// ResourceURL returns the absolute URL of target with params, as used for
// batch sub-request resources.
func (c *Client) ResourceURL(target string, params url.Values) string {
	return c.URL(withQuery(target, params))
}
