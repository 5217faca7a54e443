package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for fieldlink.
type Metrics struct {
	registry             *prometheus.Registry
	probeDurationSeconds *prometheus.HistogramVec
	serviceUp            *prometheus.GaugeVec
	probeErrorsTotal     *prometheus.CounterVec
	cycleDurationSeconds prometheus.Histogram
	alertsTotal          *prometheus.CounterVec
	cacheHitsTotal       prometheus.Counter
	cacheMissesTotal     prometheus.Counter
	lastSuccessfulCycle  prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		probeDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fieldlink_probe_duration_seconds",
			Help:    "Duration of downstream health probes in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		serviceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fieldlink_service_up",
			Help: "Whether the downstream service answered its last probe (1) or not (0).",
		}, []string{"service"}),
		probeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldlink_probe_errors_total",
			Help: "Total transport-level probe errors by service.",
		}, []string{"service"}),
		cycleDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldlink_cycle_duration_seconds",
			Help:    "Duration of monitor poll cycles in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldlink_alerts_total",
			Help: "Total status-transition alerts emitted by service and status.",
		}, []string{"service", "status"}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldlink_sync_cache_hits_total",
			Help: "Total sync cache hits.",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldlink_sync_cache_misses_total",
			Help: "Total sync cache misses.",
		}),
		lastSuccessfulCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldlink_last_successful_cycle_timestamp",
			Help: "Unix timestamp of the last completed poll cycle.",
		}),
	}

	registry.MustRegister(
		m.probeDurationSeconds,
		m.serviceUp,
		m.probeErrorsTotal,
		m.cycleDurationSeconds,
		m.alertsTotal,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.lastSuccessfulCycle,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveProbeDuration records the duration of one health probe.
func (m *Metrics) ObserveProbeDuration(service string, duration time.Duration) {
	if m == nil {
		return
	}
	m.probeDurationSeconds.WithLabelValues(service).Observe(duration.Seconds())
}

// SetServiceUp records the outcome of the latest probe for a service.
func (m *Metrics) SetServiceUp(service string, up bool) {
	if m == nil {
		return
	}
	value := 0.0
	if up {
		value = 1.0
	}
	m.serviceUp.WithLabelValues(service).Set(value)
}

// IncProbeErrors increments the probe error counter for a service.
func (m *Metrics) IncProbeErrors(service string) {
	if m == nil {
		return
	}
	m.probeErrorsTotal.WithLabelValues(service).Inc()
}

// ObserveCycleDuration records the duration of a completed poll cycle.
func (m *Metrics) ObserveCycleDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.cycleDurationSeconds.Observe(duration.Seconds())
}

// IncAlertsTotal increments the alert counter for a service/status pair.
func (m *Metrics) IncAlertsTotal(service, status string) {
	if m == nil {
		return
	}
	m.alertsTotal.WithLabelValues(service, status).Inc()
}

// IncCacheHits increments the sync cache hit counter.
func (m *Metrics) IncCacheHits() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

// IncCacheMisses increments the sync cache miss counter.
func (m *Metrics) IncCacheMisses() {
	if m == nil {
		return
	}
	m.cacheMissesTotal.Inc()
}

// SetLastSuccessfulCycleTimestamp sets the last completed cycle time.
func (m *Metrics) SetLastSuccessfulCycleTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulCycle.Set(float64(t.Unix()))
}
