package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process collectors. A nil *Metrics is valid and records
// nothing, so callers never need to check.
type Metrics struct {
	registry *prometheus.Registry

	selectionEvents *prometheus.CounterVec
	itemBankSync    *prometheus.CounterVec
	searchIndexOps  *prometheus.CounterVec
	searchRebuild   prometheus.Histogram
	jobRuns         *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		selectionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentlib_selection_events_total",
			Help: "Learner selection change events by kind and reason.",
		}, []string{"kind", "reason"}),
		itemBankSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentlib_itembank_sync_total",
			Help: "Item-bank library syncs by outcome.",
		}, []string{"status"}),
		searchIndexOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentlib_search_index_ops_total",
			Help: "Search index writes by operation and outcome.",
		}, []string{"op", "status"}),
		searchRebuild: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "contentlib_search_rebuild_duration_seconds",
			Help:    "Wall time of full search index rebuilds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentlib_job_runs_total",
			Help: "Background job executions by type and outcome.",
		}, []string{"job_type", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contentlib_http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"method", "route", "status"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "contentlib_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.selectionEvents,
		m.itemBankSync,
		m.searchIndexOps,
		m.searchRebuild,
		m.jobRuns,
		m.httpRequests,
		m.httpLatency,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveSelectionEvent(kind, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "none"
	}
	m.selectionEvents.WithLabelValues(kind, reason).Inc()
}

func (m *Metrics) ObserveItemBankSync(err error) {
	if m == nil {
		return
	}
	m.itemBankSync.WithLabelValues(statusLabel(err)).Inc()
}

func (m *Metrics) ObserveSearchIndexOp(op string, err error) {
	if m == nil {
		return
	}
	m.searchIndexOps.WithLabelValues(op, statusLabel(err)).Inc()
}

func (m *Metrics) ObserveSearchRebuild(d time.Duration) {
	if m == nil {
		return
	}
	m.searchRebuild.Observe(d.Seconds())
}

func (m *Metrics) ObserveJobRun(jobType string, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(jobType, statusLabel(err)).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
