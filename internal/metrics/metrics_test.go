package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler(t *testing.T) {
	handler := Handler()
	require.NotNil(t, handler)

	RecordCacheHit()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "webid_cache_hits_total")
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/runs", "200"))

	RecordRequest("GET", "/api/v1/runs", 200, 100*time.Millisecond)

	after := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/runs", "200"))
	assert.Equal(t, before+1, after)
}

func TestRecordCheck(t *testing.T) {
	before := testutil.ToFloat64(ChecksTotal.WithLabelValues("piwebapi", "omf", "pass"))

	RecordCheck("piwebapi", "omf", "pass", 2*time.Second)
	RecordCheck("piwebapi", "omf", "fail", time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(ChecksTotal.WithLabelValues("piwebapi", "omf", "pass")))
}

func TestRecordPoll(t *testing.T) {
	RecordPoll(3, nil)
	RecordPoll(30, errors.New("timed out"))

	assert.Equal(t, 2, testutil.CollectAndCount(PollAttempts))
}

func TestRecordRun(t *testing.T) {
	before := testutil.ToFloat64(RunsTotal.WithLabelValues("fail"))
	RecordRun("fail")
	assert.Equal(t, before+1, testutil.ToFloat64(RunsTotal.WithLabelValues("fail")))
}

func TestSetRunInProgress(t *testing.T) {
	SetRunInProgress(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(RunInProgress))

	SetRunInProgress(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(RunInProgress))
}

func TestRecordPIWebAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(PIWebAPIRequestsTotal.WithLabelValues("POST", "201"))

	RecordPIWebAPIRequest("POST", 201, 40*time.Millisecond)
	RecordPIWebAPIRequest("GET", 0, time.Second)

	assert.Equal(t, before+1, testutil.ToFloat64(PIWebAPIRequestsTotal.WithLabelValues("POST", "201")))
}

func TestRecordCacheHitMiss(t *testing.T) {
	hits := testutil.ToFloat64(CacheHitsTotal)
	misses := testutil.ToFloat64(CacheMissesTotal)

	RecordCacheHit()
	RecordCacheMiss()
	RecordCacheMiss()

	assert.Equal(t, hits+1, testutil.ToFloat64(CacheHitsTotal))
	assert.Equal(t, misses+2, testutil.ToFloat64(CacheMissesTotal))
}

func TestRecordDBQuery(t *testing.T) {
	// This should not panic
	RecordDBQuery("create_run", 50*time.Millisecond)
	RecordDBQuery("get_run", 10*time.Millisecond)
}

func TestRecordPublished(t *testing.T) {
	before := testutil.ToFloat64(ResultsPublishedTotal.WithLabelValues("failure"))

	RecordPublished(5, errors.New("broker down"))

	assert.Equal(t, before+5, testutil.ToFloat64(ResultsPublishedTotal.WithLabelValues("failure")))
}
