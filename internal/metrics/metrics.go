// Package metrics exposes Prometheus collectors for the license server.
//
// Every recorder method is safe to call on a nil *Metrics so components can
// run without instrumentation in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "license_server"

// Metrics holds the collectors and the registry they are registered with.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	Validations     *prometheus.CounterVec
	LicensesIssued  *prometheus.CounterVec
	IssueRejections *prometheus.CounterVec

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	RateLimitHits *prometheus.CounterVec
	SyncErrors    prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
		Validations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validations_total",
				Help:      "License validations by result and failure reason",
			},
			[]string{"result", "reason"},
		),
		LicensesIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "licenses_issued_total",
				Help:      "Licenses issued by license type",
			},
			[]string{"license_type"},
		),
		IssueRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "issue_rejections_total",
				Help:      "Rejected issuance requests by error kind",
			},
			[]string{"kind"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_cache_hits_total",
				Help:      "Catalog cache hits",
			},
		),
		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_cache_misses_total",
				Help:      "Catalog cache misses",
			},
		),
		RateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_hits_total",
				Help:      "Requests rejected by the per-client rate limiter",
			},
			[]string{"route"},
		),
		SyncErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sheet_sync_errors_total",
				Help:      "Failed spreadsheet mirror writes",
			},
		),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.Validations,
		m.LicensesIssued,
		m.IssueRejections,
		m.CacheHits,
		m.CacheMisses,
		m.RateLimitHits,
		m.SyncErrors,
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the exposition format for m's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordValidation counts a validation outcome. reason is empty on success.
func (m *Metrics) RecordValidation(result, reason string) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) RecordIssued(licenseType string) {
	if m == nil {
		return
	}
	m.LicensesIssued.WithLabelValues(licenseType).Inc()
}

func (m *Metrics) RecordIssueRejected(kind string) {
	if m == nil {
		return
	}
	m.IssueRejections.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) RecordRateLimitHit(route string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(route).Inc()
}

func (m *Metrics) RecordSyncError() {
	if m == nil {
		return
	}
	m.SyncErrors.Inc()
}
