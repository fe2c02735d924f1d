package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/campaign-etl/internal/ingest"
	"github.com/AngelCh415/campaign-etl/internal/metrics"
	"github.com/AngelCh415/campaign-etl/internal/store"
	"github.com/AngelCh415/campaign-etl/internal/telemetry"
)

const sampleCSV = `date,campaign_name,impressions,clicks,spend,revenue
2026-01-01,Google Search,5000,150,500,2500
2026-01-02,Meta Ads,3000,90,300,1800
2026-01-02,Google Search,1000,10,100,50
`

type fixture struct {
	st  *store.MemoryStore
	srv http.Handler
	dir string
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemoryStore()
	opts.TempDir = t.TempDir()
	etl := ingest.NewETL(st, log)
	svc := metrics.NewService(st, metrics.WithLogger(log))
	return fixture{st: st, srv: NewRouter(log, etl, svc, opts), dir: opts.TempDir}
}

func upload(t *testing.T, h http.Handler, filename, body string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload-csv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestUploadAndReports(t *testing.T) {
	f := newFixture(t, Options{})

	w := upload(t, f.srv, "jan.csv", sampleCSV)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(3), body["rows_loaded"])
	assert.Equal(t, "jan.csv", body["filename"])

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp upload should be removed")

	m := decode(t, get(f.srv, "/metrics?campaign=google"))
	assert.Equal(t, float64(2), m["count"])
	first := m["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "2026-01-02", first["date"])

	s := decode(t, get(f.srv, "/summary"))
	assert.Equal(t, float64(900), s["total_spend"])
	assert.Equal(t, float64(3), s["total_records"])
	assert.Equal(t, float64(2), s["num_campaigns"])

	c := decode(t, get(f.srv, "/campaigns"))
	assert.Equal(t, []any{"google search", "meta ads"}, c["campaigns"])

	d := decode(t, get(f.srv, "/daily-performance"))
	assert.Equal(t, float64(2), d["count"])

	top := decode(t, get(f.srv, "/top-campaigns?metric=roi&limit=1"))
	assert.Equal(t, "roi", top["metric"])
	assert.Equal(t, float64(2), top["count"])
	assert.Len(t, top["data"], 1)

	logs := decode(t, get(f.srv, "/upload-logs"))
	assert.Equal(t, float64(1), logs["count"])
}

func TestUploadRejectsNonCSV(t *testing.T) {
	f := newFixture(t, Options{})
	w := upload(t, f.srv, "jan.xlsx", sampleCSV)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "File must be CSV format", decode(t, w)["detail"])

	logs, err := f.st.UploadLogs(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestUploadPipelineFailure(t *testing.T) {
	f := newFixture(t, Options{})
	w := upload(t, f.srv, "bad.csv", "date,campaign_name\n2026-01-01,a\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Missing columns: clicks, impressions, spend", decode(t, w)["detail"])

	logs := decode(t, get(f.srv, "/upload-logs"))
	entry := logs["data"].([]any)[0].(map[string]any)
	assert.Equal(t, "failed", entry["status"])
	assert.Equal(t, "Missing columns: clicks, impressions, spend", entry["error_message"])
}

func TestUploadMissingField(t *testing.T) {
	f := newFixture(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/upload-csv", nil)
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTopCampaignsInvalidMetric(t *testing.T) {
	f := newFixture(t, Options{})
	w := get(f.srv, "/top-campaigns?metric=cpc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["detail"], "Must be one of")
}

func TestBadDateFilter(t *testing.T) {
	f := newFixture(t, Options{})
	assert.Equal(t, http.StatusBadRequest, get(f.srv, "/metrics?date_from=yesterday").Code)
}

func TestEmptyReports(t *testing.T) {
	f := newFixture(t, Options{})
	m := decode(t, get(f.srv, "/metrics"))
	assert.Equal(t, []any{}, m["data"])
	assert.Equal(t, float64(0), m["count"])

	s := decode(t, get(f.srv, "/summary"))
	assert.Equal(t, float64(0), s["total_records"])
}

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(t, Options{Ready: func(context.Context) error { return errors.New("db down") }})
	h := decode(t, get(f.srv, "/health"))
	assert.Equal(t, "healthy", h["status"])

	assert.Equal(t, http.StatusOK, get(f.srv, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(f.srv, "/readyz").Code)

	root := decode(t, get(f.srv, "/"))
	assert.Contains(t, root["endpoints"], "upload")
}

func TestPrometheusEndpoint(t *testing.T) {
	rec := telemetry.New()
	f := newFixture(t, Options{Telemetry: rec})
	get(f.srv, "/health")

	w := get(f.srv, "/internal/prometheus")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `campaign_etl_http_requests_total{code="200",method="GET",route="/health"} 1`)

	assert.Equal(t, http.StatusNotFound, get(newFixture(t, Options{}).srv, "/internal/prometheus").Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Options{CORSOrigins: []string{"https://dash.example.com"}})
	req := httptest.NewRequest(http.MethodOptions, "/summary", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	f.srv.ServeHTTP(w, req)
	assert.Equal(t, "https://dash.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
