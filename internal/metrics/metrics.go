// Package metrics exposes Prometheus instruments for the gate, the upstream
// search API, the result cache, sessions and HTTP requests.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/adamwoolhether/reposearch/fetch"
	"github.com/adamwoolhether/reposearch/ghapi"
)

const namespace = "reposearch"

// Metrics holds every instrument, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	GateAttempts     *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration prometheus.Histogram
	CacheLookups     *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers the instruments plus the Go runtime and process collectors
// on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		GateAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gate_attempts_total",
				Help:      "User actions offered to a session gate, by outcome.",
			},
			[]string{"outcome"},
		),
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Search API calls, by outcome.",
			},
			[]string{"outcome"},
		),
		UpstreamDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Search API call duration.",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_lookups_total",
				Help:      "Result cache lookups, by outcome.",
			},
			[]string{"outcome"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_sessions",
				Help:      "Live search sessions.",
			},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests served, by route and status.",
			},
			[]string{"route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration, by route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the registry the instruments are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveGate counts one gate decision.
func (m *Metrics) ObserveGate(fired bool) {
	outcome := "dropped"
	if fired {
		outcome = "fired"
	}
	m.GateAttempts.WithLabelValues(outcome).Inc()
}

// ObserveCache counts one cache lookup.
func (m *Metrics) ObserveCache(o fetch.Outcome) {
	m.CacheLookups.WithLabelValues(string(o)).Inc()
}

// SetSessions records the live session count.
func (m *Metrics) SetSessions(active int) {
	m.ActiveSessions.Set(float64(active))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Fetcher wraps f so every upstream call is timed and counted.
func (m *Metrics) Fetcher(f fetch.Fetcher) fetch.Fetcher {
	return fetch.FetcherFunc(func(ctx context.Context, term string, page int) (fetch.Result, error) {
		start := time.Now()
		res, err := f.Search(ctx, term, page)

		m.UpstreamDuration.Observe(time.Since(start).Seconds())
		m.UpstreamRequests.WithLabelValues(upstreamOutcome(err)).Inc()

		return res, err
	})
}

func upstreamOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ghapi.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ghapi.ErrInvalidQuery):
		return "invalid_query"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "error"
	}
}
