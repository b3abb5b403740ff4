package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gearconnect_landing"

// Metrics holds the Prometheus collectors for the site. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	backendRequests *prometheus.CounterVec
	backendDuration *prometheus.HistogramVec
	proxyOutcomes   *prometheus.CounterVec
	syncResults     *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		backendRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backend_requests_total",
				Help:      "Total calls made to the GearConnect backend",
			},
			[]string{"operation", "outcome"},
		),
		backendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backend_request_duration_seconds",
				Help:      "Duration of backend calls in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
			},
			[]string{"operation"},
		),
		proxyOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "proxy_outcomes_total",
				Help:      "Proxied route outcomes",
			},
			[]string{"route", "outcome"},
		),
		syncResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "account_sync_total",
				Help:      "Account sync attempts by result",
			},
			[]string{"result"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Cache lookups by cache and result",
			},
			[]string{"cache", "result"},
		),
	}
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(method, route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusLabel(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(latency.Seconds())
}

func (m *Metrics) ObserveBackend(operation, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.backendRequests.WithLabelValues(operation, outcome).Inc()
	m.backendDuration.WithLabelValues(operation).Observe(latency.Seconds())
}

func (m *Metrics) RecordProxyOutcome(route, outcome string) {
	if m == nil {
		return
	}
	m.proxyOutcomes.WithLabelValues(route, outcome).Inc()
}

func (m *Metrics) RecordSync(result string) {
	if m == nil {
		return
	}
	m.syncResults.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCacheLookup(cache, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}
