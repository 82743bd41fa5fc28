package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/pideploy/pideploy/internal/metrics"
	"github.com/pideploy/pideploy/pkg/logger"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Metrics records request counts and latency.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)
			metrics.RecordRequest(r.Method, normalizePath(r.URL.Path), rw.statusCode, time.Since(start))
		})
	}
}

// AccessLog logs one line per request. It must run inside RequestID and
// ClientIP to pick up their values.
func AccessLog(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			keyvals := []interface{}{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", GetRequestID(r.Context()),
				"client_ip", GetClientIP(r.Context()),
			}
			if rw.statusCode >= http.StatusInternalServerError {
				log.Error("request failed", keyvals...)
				return
			}
			log.Debug("request", keyvals...)
		})
	}
}

// normalizePath collapses run ids so metric labels stay bounded.
func normalizePath(path string) string {
	switch {
	case path == "/health", path == "/ready", path == "/metrics",
		path == "/api/v1/checks", path == "/api/v1/runs":
		return path
	case strings.HasPrefix(path, "/api/v1/runs/"):
		return "/api/v1/runs/{id}"
	default:
		return "/other"
	}
}
