package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/AngelCh415/campaign-etl/internal/ingest"
	"github.com/AngelCh415/campaign-etl/internal/metrics"
	"github.com/AngelCh415/campaign-etl/internal/telemetry"
	"github.com/AngelCh415/campaign-etl/internal/utils"
)

const (
	serviceName    = "Marketing Automation Tool"
	serviceVersion = "1.0.0"
)

// Options tune the router. Zero values are usable.
type Options struct {
	CORSOrigins    []string
	MaxUploadBytes int64
	TempDir        string
	Telemetry      *telemetry.Recorder
	// Ready backs /readyz; nil means always ready.
	Ready func(ctx context.Context) error
}

type handlers struct {
	log  *slog.Logger
	etl  *ingest.ETL
	svc  *metrics.Service
	opts Options
}

func NewRouter(log *slog.Logger, etl *ingest.ETL, svc *metrics.Service, opts Options) http.Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	h := &handlers{log: log, etl: etl, svc: svc, opts: opts}

	mux := chi.NewRouter()
	mux.Use(utils.RequestID)
	mux.Use(utils.Logger(log, opts.Telemetry))
	mux.Use(middleware.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", utils.RequestIDHeader},
		ExposedHeaders:   []string{utils.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	mux.Get("/", h.index)
	mux.Post("/upload-csv", h.uploadCSV)
	mux.Get("/metrics", h.metrics)
	mux.Get("/summary", h.summary)
	mux.Get("/campaigns", h.campaigns)
	mux.Get("/daily-performance", h.dailyPerformance)
	mux.Get("/top-campaigns", h.topCampaigns)
	mux.Get("/upload-logs", h.uploadLogs)

	mux.Get("/health", h.health)
	mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
	mux.Get("/readyz", h.ready)
	mux.Method(http.MethodGet, "/internal/prometheus", opts.Telemetry.Handler())

	return mux
}

func (h *handlers) index(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]any{
		"message": serviceName + " API",
		"endpoints": map[string]string{
			"upload":            "POST /upload-csv",
			"metrics":           "GET /metrics",
			"summary":           "GET /summary",
			"campaigns":         "GET /campaigns",
			"daily_performance": "GET /daily-performance",
			"top_campaigns":     "GET /top-campaigns",
			"upload_logs":       "GET /upload-logs",
			"health":            "GET /health",
		},
	})
}

type uploadResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	RowsLoaded int    `json:"rows_loaded"`
	Filename   string `json:"filename"`
}

func (h *handlers) uploadCSV(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			fail(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		fail(w, http.StatusBadRequest, "Multipart field \"file\" is required")
		return
	}
	defer file.Close()

	filename := header.Filename
	if !strings.HasSuffix(filename, ".csv") {
		fail(w, http.StatusBadRequest, "File must be CSV format")
		return
	}

	path, err := h.spool(file)
	if err != nil {
		internalError(w, r, h.log, err)
		return
	}
	defer os.Remove(path)

	res := h.etl.Run(r.Context(), path, filename)
	if !res.OK {
		fail(w, http.StatusBadRequest, res.Message)
		return
	}
	ok(w, uploadResponse{Status: "success", Message: res.Message, RowsLoaded: res.RowsLoaded, Filename: filename})
}

// spool copies the upload to a uniquely named temp file.
func (h *handlers) spool(src io.Reader) (string, error) {
	dir := h.opts.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, "upload-"+uuid.NewString()+".csv")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

func (h *handlers) metrics(w http.ResponseWriter, r *http.Request) {
	q, err := metrics.ParseQuery(r.URL.Query())
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, err := h.svc.Records(r.Context(), q)
	if err != nil {
		internalError(w, r, h.log, err)
		return
	}
	ok(w, list(recs))
}

func (h *handlers) summary(w http.ResponseWriter, r *http.Request) {
	q, err := metrics.ParseQuery(r.URL.Query())
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	s, err := h.svc.Summary(r.Context(), q)
	if err != nil {
		internalError(w, r, h.log, err)
		return
	}
	ok(w, s)
}

func (h *handlers) campaigns(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Campaigns(r.Context())
	if err != nil {
		internalError(w, r, h.log, err)
		return
	}
	ok(w, map[string]any{"campaigns": names, "count": len(names)})
}

func (h *handlers) dailyPerformance(w http.ResponseWriter, r *http.Request) {
	q, err := metrics.ParseQuery(r.URL.Query())
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	days, err := h.svc.DailyPerformance(r.Context(), q)
	if err != nil {
		internalError(w, r, h.log, err)
		return
	}
	ok(w, list(days))
}

func (h *handlers) topCampaigns(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query()
	q, err := metrics.ParseQuery(v)
	if err != nil {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	metric := v.Get("metric")
	if metric == "" {
		metric = "spend"
	}
	limit := metrics.AtoiDef(v.Get("limit"), metrics.DefaultTopLimit)

	res, err := h.svc.TopCampaigns(r.Context(), q, limit, metric)
	if errors.Is(err, metrics.ErrInvalidMetric) {
		fail(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		internalError(w, r, h.log, err)
		return
	}
	ok(w, res)
}

func (h *handlers) uploadLogs(w http.ResponseWriter, r *http.Request) {
	limit := metrics.AtoiDef(r.URL.Query().Get("limit"), metrics.DefaultLogsLimit)
	logs, err := h.svc.UploadLogs(r.Context(), limit)
	if err != nil {
		internalError(w, r, h.log, err)
		return
	}
	ok(w, list(logs))
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	ok(w, map[string]string{"status": "healthy", "version": serviceVersion, "service": serviceName})
}

func (h *handlers) ready(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		if err := h.opts.Ready(r.Context()); err != nil {
			h.log.Warn("not ready", slog.String("err", err.Error()))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(200)
	w.Write([]byte("ready"))
}
