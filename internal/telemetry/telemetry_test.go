package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.UploadSucceeded(3, time.Second)
	r.UploadFailed("validating", "SchemaError", time.Second)
	r.HTTPRequest("GET", "/summary", 200, time.Millisecond)
	r.CacheLookup(true)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.UploadSucceeded(10, 20*time.Millisecond)
	r.UploadSucceeded(5, 20*time.Millisecond)
	r.UploadFailed("validating", "BusinessRuleError", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.uploads.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.uploads.WithLabelValues("failed")))
	assert.Equal(t, 15.0, testutil.ToFloat64(r.rowsLoaded))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageFailures.WithLabelValues("validating", "BusinessRuleError")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.HTTPRequest("GET", "/summary", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `campaign_etl_http_requests_total{code="200",method="GET",route="/summary"} 1`))
}
