// Package metrics defines the Collector sink and its Prometheus-backed
// implementation. The security validator reports through RecordViolation
// and the auth manager through RecordKeyEvent; RecordRequest, RecordError
// and RecordAuthEvent are part of the interface, but nothing in this
// module calls them. Every recording method is non-blocking and never
// returns an error: a metrics backend hiccup must never affect request
// outcome.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the sink every instrumented component reports through.
// pkg/security.ViolationSink and pkg/auth.AuditSink are both satisfied
// by any Collector (and so by *PromCollector) directly, so it can be
// wired into either without an adapter.
type Collector interface {
	RecordRequest(method string, d time.Duration, outcome string)
	RecordError(kind string)
	RecordAuthEvent(eventKind, keyID string)
	RecordViolation(kind string)
	RecordKeyEvent(event string, keyID string, metadata map[string]string)
}

// PromCollector is the Prometheus-backed Collector used in production.
// The zero value is not usable; build one with NewPromCollector.
type PromCollector struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	requestSeconds *prometheus.HistogramVec
	errorsTotal    *prometheus.CounterVec
	authEvents     *prometheus.CounterVec
	violations     *prometheus.CounterVec
	keyEvents      *prometheus.CounterVec
}

// NewPromCollector registers the metric families on a fresh registry
// and returns a ready-to-use Collector.
func NewPromCollector(namespace string) *PromCollector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PromCollector{
		registry: reg,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total number of dispatched JSON-RPC requests, labeled by method and outcome.",
		}, []string{"method", "outcome"}),
		requestSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Dispatch latency in seconds, labeled by method.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}, []string{"method"}),
		errorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "errors_total",
			Help:      "Total number of dispatch errors, labeled by error kind.",
		}, []string{"kind"}),
		authEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Authentication outcomes, labeled by event kind (success, unauthorized, forbidden, rate_limited).",
		}, []string{"event"}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "violations_total",
			Help:      "Pre-auth validator rejections, labeled by violation kind.",
		}, []string{"kind"}),
		keyEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "key_events_total",
			Help:      "Api key lifecycle events, labeled by event (key_created, key_revoked, key_rotated, key_locked).",
		}, []string{"event"}),
	}
}

// RecordRequest records one dispatched request's outcome and latency.
func (c *PromCollector) RecordRequest(method string, d time.Duration, outcome string) {
	c.requestsTotal.WithLabelValues(method, outcome).Inc()
	c.requestSeconds.WithLabelValues(method).Observe(d.Seconds())
}

// RecordError increments the error counter for kind.
func (c *PromCollector) RecordError(kind string) {
	c.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordAuthEvent records an authentication outcome. keyID is accepted
// for interface symmetry with RecordKeyEvent but intentionally not used
// as a label, to avoid unbounded cardinality on api key identifiers.
func (c *PromCollector) RecordAuthEvent(eventKind, keyID string) {
	c.authEvents.WithLabelValues(eventKind).Inc()
}

// RecordViolation satisfies pkg/security.ViolationSink.
func (c *PromCollector) RecordViolation(kind string) {
	c.violations.WithLabelValues(kind).Inc()
}

// RecordKeyEvent satisfies pkg/auth.AuditSink. metadata is accepted for
// interface compatibility but not used as a label set.
func (c *PromCollector) RecordKeyEvent(event string, keyID string, metadata map[string]string) {
	c.keyEvents.WithLabelValues(event).Inc()
}

// Handler exposes the registry in the Prometheus exposition format, for
// mounting at /metrics.
func (c *PromCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
