package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskflow_ai"

// Metrics holds the Prometheus collectors for provider calls and HTTP traffic.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	ProviderTokens   *prometheus.CounterVec
	ProviderCost     *prometheus.CounterVec
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics registers all collectors on reg. Pass prometheus.NewRegistry()
// in tests to keep them isolated from the default registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		ProviderCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Total number of AI provider calls",
			},
			[]string{"provider", "operation", "status"},
		),
		ProviderDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "AI provider call duration in seconds",
				Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"provider", "operation"},
		),
		ProviderTokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "tokens_total",
				Help:      "Tokens consumed by AI provider calls",
			},
			[]string{"provider", "model"},
		),
		ProviderCost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "cost_usd_total",
				Help:      "Estimated cost of AI provider calls in USD",
			},
			[]string{"provider", "model"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "route"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.ProviderCalls,
		m.ProviderDuration,
		m.ProviderTokens,
		m.ProviderCost,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

// RecordProviderCall counts one call and observes its duration
func (m *Metrics) RecordProviderCall(provider, operation, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, operation, status).Inc()
	m.ProviderDuration.WithLabelValues(provider, operation).Observe(elapsed.Seconds())
}

// RecordUsage adds reported tokens and cost
func (m *Metrics) RecordUsage(provider, model string, tokens int, cost float64) {
	if m == nil {
		return
	}
	if tokens > 0 {
		m.ProviderTokens.WithLabelValues(provider, model).Add(float64(tokens))
	}
	if cost > 0 {
		m.ProviderCost.WithLabelValues(provider, model).Add(cost)
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency labelled by chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
