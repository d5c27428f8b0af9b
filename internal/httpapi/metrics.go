package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// apiMetrics is the Prometheus instrumentation for the read API. A dedicated
// registry keeps the endpoint limited to what this process actually exports.
type apiMetrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshRuns     *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	itemsServed     prometheus.Gauge
}

func newAPIMetrics() *apiMetrics {
	m := &apiMetrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adoflow",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "API requests by route, method, and status code.",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "adoflow",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		refreshRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adoflow",
			Name:      "refresh_runs_total",
			Help:      "Refresh cycles by outcome.",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "adoflow",
			Name:      "refresh_duration_seconds",
			Help:      "Wall-clock duration of refresh cycles.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		itemsServed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "adoflow",
			Name:      "work_items",
			Help:      "Work items in the current snapshot.",
		}),
	}
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.refreshRuns,
		m.refreshDuration,
		m.itemsServed,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *apiMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *apiMetrics) observeRequest(route, method string, status int, elapsed time.Duration) {
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *apiMetrics) observeRefresh(outcome string, elapsed time.Duration) {
	m.refreshRuns.WithLabelValues(outcome).Inc()
	m.refreshDuration.Observe(elapsed.Seconds())
}
