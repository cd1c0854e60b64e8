/*
metrics.go - Prometheus instrumentation

PURPOSE:
  Counters and histograms for the HTTP surface and the accounting core:
  requests by route and status, entry lifecycle counts, batch sweep
  outcomes. Exposed on GET /metrics.

REGISTRY:
  Each Metrics value owns its registry instead of using the process-wide
  default. Tests build many handlers per process; a shared default
  registry would panic on the second registration.

SEE ALSO:
  - server.go: mounts the /metrics endpoint and the HTTP middleware
  - handlers.go: increments the domain counters
*/
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetcore/ledger-engine/events"
)

// Metrics bundles every collector the server exports.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	EntriesCreated  prometheus.Counter
	EntriesPosted   prometheus.Counter
	EntriesReversed prometheus.Counter

	BatchEvents *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		EntriesCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_entries_created_total",
			Help: "Journal entries created.",
		}),
		EntriesPosted: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_entries_posted_total",
			Help: "Journal entries posted.",
		}),
		EntriesReversed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ledger_entries_reversed_total",
			Help: "Journal entries reversed.",
		}),
		BatchEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_batch_events_total",
			Help: "Batch sweep event outcomes.",
		}, []string{"kind", "outcome"}),
	}
}

// ObserveBatch records one run's tally.
func (m *Metrics) ObserveBatch(run *events.BatchRun) {
	m.BatchEvents.WithLabelValues(run.Kind, "processed").Add(float64(run.Processed))
	m.BatchEvents.WithLabelValues(run.Kind, "skipped").Add(float64(run.Skipped))
	m.BatchEvents.WithLabelValues(run.Kind, "failed").Add(float64(run.Failed))
}

// Handler serves the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware instruments every request with count and latency, labeled
// by the chi route pattern rather than the raw path to keep cardinality
// bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := chiRoutePattern(r)
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		m.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// chiRoutePattern is only meaningful after routing has matched, which
// holds because the middleware wraps the handler chain from the outside
// and reads the pattern on the way out.
func chiRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
