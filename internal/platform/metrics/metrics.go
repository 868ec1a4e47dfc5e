package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for one application instance. Each
// instance owns its registry so several apps can live in one test binary.
type Metrics struct {
	registry *prometheus.Registry

	JobsEnqueued  *prometheus.CounterVec
	JobsProcessed *prometheus.CounterVec
	JobsFailed    *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	KVOperations  *prometheus.CounterVec
	HTTPLatency   *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		JobsEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "busybeaver_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		}, []string{"job"}),
		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "busybeaver_jobs_processed_total",
			Help: "Total number of jobs that finished successfully",
		}, []string{"job"}),
		JobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "busybeaver_jobs_failed_total",
			Help: "Total number of jobs that returned an error",
		}, []string{"job"}),
		JobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "busybeaver_job_duration_seconds",
			Help:    "Job execution time",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		KVOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "busybeaver_kv_operations_total",
			Help: "Key-value store operations by kind",
		}, []string{"op"}),
		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "busybeaver_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// Handler exposes this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) IncrementJobsEnqueued(job string) {
	if m == nil {
		return
	}
	m.JobsEnqueued.WithLabelValues(job).Inc()
}

func (m *Metrics) ObserveJob(job string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(job).Observe(d.Seconds())
	if err != nil {
		m.JobsFailed.WithLabelValues(job).Inc()
		return
	}
	m.JobsProcessed.WithLabelValues(job).Inc()
}

func (m *Metrics) IncrementKV(op string) {
	if m == nil {
		return
	}
	m.KVOperations.WithLabelValues(op).Inc()
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPLatency.WithLabelValues(method, route, status).Observe(d.Seconds())
}
