// Package telemetry owns the Prometheus collectors of the service. A nil
// *Recorder is valid and records nothing.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "campaign_etl"

type Recorder struct {
	reg *prometheus.Registry

	uploads       *prometheus.CounterVec
	rowsLoaded    prometheus.Counter
	stageFailures *prometheus.CounterVec
	pipelineDur   prometheus.Histogram
	httpRequests  *prometheus.CounterVec
	httpDur       *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
}

func New() *Recorder {
	r := &Recorder{reg: prometheus.NewRegistry()}
	r.uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Upload attempts by outcome",
	}, []string{"status"})
	r.rowsLoaded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_loaded_total",
		Help:      "Rows persisted by successful uploads",
	})
	r.stageFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stage_failures_total",
		Help:      "Failed uploads by pipeline stage and error kind",
	}, []string{"stage", "kind"})
	r.pipelineDur = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_duration_seconds",
		Help:      "Wall time of one upload through the pipeline",
		Buckets:   prometheus.DefBuckets,
	})
	r.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status code",
	}, []string{"method", "route", "code"})
	r.httpDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})
	r.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "report_cache_lookups_total",
		Help:      "Report cache lookups by result",
	}, []string{"result"})

	r.reg.MustRegister(r.uploads, r.rowsLoaded, r.stageFailures, r.pipelineDur,
		r.httpRequests, r.httpDur, r.cacheLookups,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return r
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Recorder) UploadSucceeded(rows int, d time.Duration) {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues("success").Inc()
	r.rowsLoaded.Add(float64(rows))
	r.pipelineDur.Observe(d.Seconds())
}

func (r *Recorder) UploadFailed(stage, kind string, d time.Duration) {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues("failed").Inc()
	r.stageFailures.WithLabelValues(stage, kind).Inc()
	r.pipelineDur.Observe(d.Seconds())
}

func (r *Recorder) HTTPRequest(method, route string, code int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	r.httpDur.WithLabelValues(route).Observe(d.Seconds())
}

func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	if hit {
		r.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.cacheLookups.WithLabelValues("miss").Inc()
}
