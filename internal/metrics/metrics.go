// Package metrics exposes the daemon's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fitstogo/internal/store"
)

const namespace = "fitstogo"

// Metrics owns a registry and every application collector.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	tryOnSessions *prometheus.CounterVec
	tryOnDuration *prometheus.HistogramVec
	syncProducts  *prometheus.CounterVec
	clicks        *prometheus.CounterVec
	cacheRequests *prometheus.CounterVec
	billingEvents *prometheus.CounterVec
	workersBusy   prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		tryOnSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tryon_sessions_total",
			Help:      "Try-on sessions finished, by terminal status.",
		}, []string{"status"}),
		tryOnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tryon_duration_seconds",
			Help:      "Time spent processing a try-on session.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 9), // 1s to ~4m
		}, []string{"provider"}),
		syncProducts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "affiliate_sync_products_total",
			Help:      "Products upserted by affiliate syncs.",
		}, []string{"platform"}),
		clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_total",
			Help:      "Affiliate click-throughs.",
		}, []string{"platform"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Catalog cache lookups by outcome.",
		}, []string{"result"}),
		billingEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "billing_events_total",
			Help:      "Stripe webhook events that changed a subscription.",
		}, []string{"type"}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_workers_busy",
			Help:      "Workers currently processing a try-on session.",
		}),
	}
	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.tryOnSessions,
		m.tryOnDuration,
		m.syncProducts,
		m.clicks,
		m.cacheRequests,
		m.billingEvents,
		m.workersBusy,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one handled request. route is the matched route
// pattern, never the raw path.
func (m *Metrics) ObserveHTTP(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	method = strings.ToUpper(method)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// WorkerBusy adjusts the busy-worker gauge.
func (m *Metrics) WorkerBusy(delta int) {
	m.workersBusy.Add(float64(delta))
}

// SessionFinished records a terminal try-on session.
func (m *Metrics) SessionFinished(provider string, status store.SessionStatus, duration time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	m.tryOnSessions.WithLabelValues(string(status)).Inc()
	m.tryOnDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// SyncFinished records the products upserted by one platform sync.
func (m *Metrics) SyncFinished(platform store.Platform, _ store.SyncStatus, count int) {
	m.syncProducts.WithLabelValues(string(platform)).Add(float64(count))
}

// Click records an affiliate click-through.
func (m *Metrics) Click(platform store.Platform) {
	m.clicks.WithLabelValues(string(platform)).Inc()
}

// CacheResult records a cache lookup outcome.
func (m *Metrics) CacheResult(result string) {
	m.cacheRequests.WithLabelValues(result).Inc()
}

// BillingEvent records a subscription-changing webhook.
func (m *Metrics) BillingEvent(eventType string) {
	m.billingEvents.WithLabelValues(eventType).Inc()
}
