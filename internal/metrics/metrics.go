// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration measures request latency in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// ChecksTotal counts finished checks by suite, check, and status.
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pideploy_checks_total",
			Help: "Total number of deployment checks executed",
		},
		[]string{"suite", "check", "status"},
	)

	// CheckDuration measures how long each check ran.
	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pideploy_check_duration_seconds",
			Help:    "Deployment check duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"suite", "check"},
	)

	// PollAttempts records how many attempts an eventual assertion needed.
	PollAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pideploy_poll_attempts",
			Help:    "Number of attempts per eventual assertion",
			Buckets: []float64{1, 2, 3, 5, 10, 20, 30, 60},
		},
		[]string{"outcome"},
	)

	// RunsTotal counts finished runs by status.
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pideploy_runs_total",
			Help: "Total number of deployment check runs",
		},
		[]string{"status"},
	)

	// RunInProgress is 1 while a run is executing.
	RunInProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pideploy_run_in_progress",
			Help: "Whether a deployment check run is executing",
		},
	)

	// PIWebAPIRequestsTotal counts outbound PI Web API requests.
	PIWebAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "piwebapi_requests_total",
			Help: "Total number of PI Web API requests",
		},
		[]string{"method", "status"},
	)

	// PIWebAPIRequestDuration measures PI Web API latency.
	PIWebAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "piwebapi_request_duration_seconds",
			Help:    "PI Web API request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)

	// CacheHitsTotal counts WebId cache hits.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webid_cache_hits_total",
			Help: "Total number of WebId cache hits",
		},
	)

	// CacheMissesTotal counts WebId cache misses.
	CacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "webid_cache_misses_total",
			Help: "Total number of WebId cache misses",
		},
	)

	// DBQueryDuration measures database query latency.
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// ResultsPublishedTotal counts check results flushed to the message bus.
	ResultsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pideploy_results_published_total",
			Help: "Total number of check results published",
		},
		[]string{"outcome"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records an HTTP request metric.
func RecordRequest(method, path string, status int, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCheck records a finished check.
func RecordCheck(suite, check, status string, duration time.Duration) {
	ChecksTotal.WithLabelValues(suite, check, status).Inc()
	CheckDuration.WithLabelValues(suite, check).Observe(duration.Seconds())
}

// RecordPoll records the attempts an eventual assertion took.
func RecordPoll(attempts int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	PollAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// RecordRun records a finished run.
func RecordRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}

// SetRunInProgress flips the in-progress gauge.
func SetRunInProgress(running bool) {
	if running {
		RunInProgress.Set(1)
		return
	}
	RunInProgress.Set(0)
}

// RecordPIWebAPIRequest records an outbound PI Web API call. A status of 0
// means the request never got a response.
func RecordPIWebAPIRequest(method string, status int, duration time.Duration) {
	PIWebAPIRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	PIWebAPIRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCacheHit records a cache hit.
func RecordCacheHit() {
	CacheHitsTotal.Inc()
}

// RecordCacheMiss records a cache miss.
func RecordCacheMiss() {
	CacheMissesTotal.Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordPublished records results handed to the publisher's flusher.
func RecordPublished(count int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	ResultsPublishedTotal.WithLabelValues(outcome).Add(float64(count))
}
