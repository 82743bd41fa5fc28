package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pideploy/pideploy/pkg/logger"
)

func TestContextGetters(t *testing.T) {
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, ClientIPKey, "10.0.0.1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "10.0.0.1", GetClientIP(ctx))

	assert.Empty(t, GetRequestID(context.Background()))
	assert.Empty(t, GetClientIP(context.WithValue(context.Background(), ClientIPKey, 42)))
}

func tag(name string, order *[]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			*order = append(*order, name)
			next.ServeHTTP(w, r)
		})
	}
}

func TestChain(t *testing.T) {
	t.Run("first middleware is outermost", func(t *testing.T) {
		var order []string
		h := New(tag("a", &order), tag("b", &order)).Then(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			order = append(order, "handler")
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"a", "b", "handler"}, order)
	})

	t.Run("append leaves the original chain alone", func(t *testing.T) {
		var order []string
		base := New(tag("a", &order))
		extended := base.Append(tag("b", &order))

		noop := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		base.Then(noop).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"a"}, order)

		order = nil
		extended.Then(noop).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"a", "b"}, order)
	})

	t.Run("nil handler falls back to the default mux", func(t *testing.T) {
		assert.NotNil(t, New().Then(nil))
	})
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name   string
		header string
		keep   bool
	}{
		{"generates when missing", "", false},
		{"keeps a valid id", "trace-abc_123", true},
		{"replaces unsafe characters", "bad id<script>", false},
		{"replaces oversized ids", strings.Repeat("a", requestIDMaxLength+1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(HeaderXRequestID, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(HeaderXRequestID))
			if tt.keep {
				assert.Equal(t, tt.header, seen)
			} else {
				assert.NotEqual(t, tt.header, seen)
				assert.Len(t, seen, 36)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		remote     string
		headers    map[string]string
		want       string
	}{
		{"remote address", false, "192.0.2.1:5000", nil, "192.0.2.1"},
		{"remote without port", false, "192.0.2.1", nil, "192.0.2.1"},
		{"ipv6 remote", false, "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"untrusted forwarding ignored", false, "192.0.2.1:5000", map[string]string{HeaderXForwardedFor: "203.0.113.9"}, "192.0.2.1"},
		{"first forwarded address", true, "192.0.2.1:5000", map[string]string{HeaderXForwardedFor: "203.0.113.9, 10.0.0.2"}, "203.0.113.9"},
		{"real ip fallback", true, "192.0.2.1:5000", map[string]string{HeaderXRealIP: " 203.0.113.7 "}, "203.0.113.7"},
		{"no headers when trusted", true, "192.0.2.1:5000", nil, "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := ClientIP(tt.trustProxy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetClientIP(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, seen)
		})
	}
}

func TestMetrics(t *testing.T) {
	h := Metrics()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)
	assert.Equal(t, http.StatusOK, rw.statusCode)

	rw.WriteHeader(http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, rw.statusCode)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf, "info")

	h := New(RequestID(), ClientIP(false), AccessLog(log)).Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/abc", nil)
	req.Header.Set(HeaderXRequestID, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "192.0.2.1", entry["client_ip"])
	assert.Equal(t, float64(500), entry["status"])
}

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/health":           "/health",
		"/ready":            "/ready",
		"/metrics":          "/metrics",
		"/api/v1/checks":    "/api/v1/checks",
		"/api/v1/runs":      "/api/v1/runs",
		"/api/v1/runs/1234": "/api/v1/runs/{id}",
		"/something/else":   "/other",
	}
	for path, want := range tests {
		assert.Equal(t, want, normalizePath(path), path)
	}
}
