package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Analysis outcomes used as the "outcome" label
const (
	OutcomeOK      = "ok"
	OutcomeNoData  = "no_data"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	analysesTotal    *prometheus.CounterVec
	analysisDuration prometheus.Histogram
	barsAnalyzed     prometheus.Histogram
	cacheLookups     *prometheus.CounterVec
	exportsTotal     *prometheus.CounterVec
	warmupRuns       *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),

		analysesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tadash_analyses_total",
				Help: "Total number of analysis requests by outcome",
			},
			[]string{"interval", "outcome"},
		),

		analysisDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tadash_analysis_duration_seconds",
				Help:    "Time to fetch and enrich one series",
				Buckets: prometheus.DefBuckets,
			},
		),

		barsAnalyzed: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tadash_analysis_bars",
				Help:    "Number of bars in an analyzed series",
				Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500},
			},
		),

		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tadash_cache_lookups_total",
				Help: "Market data cache lookups by result",
			},
			[]string{"result"},
		),

		exportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tadash_exports_total",
				Help: "CSV exports by destination and status",
			},
			[]string{"destination", "status"},
		),

		warmupRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tadash_warmup_refreshes_total",
				Help: "Scheduled cache refreshes by status",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)
	reg.MustRegister(r.analysesTotal)
	reg.MustRegister(r.analysisDuration)
	reg.MustRegister(r.barsAnalyzed)
	reg.MustRegister(r.cacheLookups)
	reg.MustRegister(r.exportsTotal)
	reg.MustRegister(r.warmupRuns)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	r.httpRequestsTotal.WithLabelValues(method, path, statusToString(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordAnalysis records one analysis request.
func (r *Registry) RecordAnalysis(interval, outcome string, bars int, duration float64) {
	r.analysesTotal.WithLabelValues(interval, outcome).Inc()
	r.analysisDuration.Observe(duration)
	if outcome == OutcomeOK {
		r.barsAnalyzed.Observe(float64(bars))
	}
}

// RecordCacheLookup counts a cache hit or miss.
func (r *Registry) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// RecordExport counts an export written to "download" or "archive".
func (r *Registry) RecordExport(destination string, err error) {
	r.exportsTotal.WithLabelValues(destination, errStatus(err)).Inc()
}

// RecordWarmup counts one scheduled refresh.
func (r *Registry) RecordWarmup(err error) {
	r.warmupRuns.WithLabelValues(errStatus(err)).Inc()
}

func errStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
