package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the manifest resolver.
type Metrics struct {
	registry                *prometheus.Registry
	requestsTotal           prometheus.Counter
	errorsTotal             prometheus.Counter
	resolutionsTotal        prometheus.Counter
	resolutionFailuresTotal prometheus.Counter
	clockFetchesTotal       prometheus.Counter
	clockFetchFailuresTotal prometheus.Counter
	xlinkRoundsTotal        prometheus.Counter
	xlinkFetchesTotal       prometheus.Counter
	warningsTotal           prometheus.Counter
	manifestsTracked        prometheus.Gauge
	requestDuration         *prometheus.HistogramVec
}

// New creates and registers Prometheus metrics for the resolver service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dash_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dash_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		resolutionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dash_resolutions_total",
			Help: "Total number of manifests resolved",
		}),
		resolutionFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dash_resolution_failures_total",
			Help: "Total number of manifest resolutions that failed",
		}),
		clockFetchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dash_clock_fetches_total",
			Help: "Total number of UTCTiming resources fetched",
		}),
		clockFetchFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dash_clock_fetch_failures_total",
			Help: "Total number of UTCTiming fetches that failed",
		}),
		xlinkRoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dash_xlink_rounds_total",
			Help: "Total number of xlink resolution rounds",
		}),
		xlinkFetchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dash_xlink_fetches_total",
			Help: "Total number of xlink payloads fetched",
		}),
		warningsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dash_warnings_total",
			Help: "Total number of non-fatal warnings reported by resolutions",
		}),
		manifestsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dash_manifests_tracked",
			Help: "Number of manifests currently tracked",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dash_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.resolutionsTotal,
		m.resolutionFailuresTotal,
		m.clockFetchesTotal,
		m.clockFetchFailuresTotal,
		m.xlinkRoundsTotal,
		m.xlinkFetchesTotal,
		m.warningsTotal,
		m.manifestsTracked,
		m.requestDuration,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncResolutions increments the successful resolutions counter.
func (m *Metrics) IncResolutions() {
	m.resolutionsTotal.Inc()
}

// IncResolutionFailures increments the failed resolutions counter.
func (m *Metrics) IncResolutionFailures() {
	m.resolutionFailuresTotal.Inc()
}

// IncClockFetches counts a clock fetch and, when failed is set, its failure.
func (m *Metrics) IncClockFetches(failed bool) {
	m.clockFetchesTotal.Inc()
	if failed {
		m.clockFetchFailuresTotal.Inc()
	}
}

// IncXLinkRound counts one xlink round of n fetches.
func (m *Metrics) IncXLinkRound(n int) {
	m.xlinkRoundsTotal.Inc()
	m.xlinkFetchesTotal.Add(float64(n))
}

// AddWarnings adds n to the warnings counter.
func (m *Metrics) AddWarnings(n int) {
	m.warningsTotal.Add(float64(n))
}

// SetManifestsTracked sets the tracked manifests gauge.
func (m *Metrics) SetManifestsTracked(n int) {
	m.manifestsTracked.Set(float64(n))
}

// ObserveRequest records the latency of one request.
func (m *Metrics) ObserveRequest(route, method string, seconds float64) {
	m.requestDuration.WithLabelValues(route, method).Observe(seconds)
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
