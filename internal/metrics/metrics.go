package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the service's Prometheus collectors. It satisfies the
// recorder interfaces of the backtester, collector registry, generator and
// HTTP handlers.
type Registry struct {
	*prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	backtests        *prometheus.CounterVec
	backtestDuration prometheus.Histogram
	sandboxRuns      *prometheus.CounterVec
	sandboxDuration  prometheus.Histogram
	generations      *prometheus.CounterVec
	fetches          *prometheus.CounterVec
	jobs             *prometheus.GaugeVec
}

// NewRegistry creates a registry with runtime, HTTP and engine metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		Registry: reg,

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently in flight",
		}),

		backtests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prism",
			Name:      "backtests_total",
			Help:      "Backtests by outcome (success or error code)",
		}, []string{"outcome"}),
		backtestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prism",
			Name:      "backtest_duration_seconds",
			Help:      "End-to-end backtest duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		sandboxRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prism",
			Name:      "sandbox_runs_total",
			Help:      "Strategy sandbox runs by outcome",
		}, []string{"outcome"}),
		sandboxDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "prism",
			Name:      "sandbox_duration_seconds",
			Help:      "Strategy sandbox run duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
		generations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prism",
			Name:      "generations_total",
			Help:      "LLM strategy generations by provider and outcome",
		}, []string{"provider", "outcome"}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prism",
			Name:      "collector_fetches_total",
			Help:      "Market data fetches by collector and outcome",
		}, []string{"collector", "outcome"}),
		jobs: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "prism",
			Name:      "jobs",
			Help:      "Backtest jobs held in memory by status",
		}, []string{"status"}),
	}
}

func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	r.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	r.httpDuration.WithLabelValues(method, path).Observe(duration)
}

func (r *Registry) InFlightInc() { r.httpInFlight.Inc() }
func (r *Registry) InFlightDec() { r.httpInFlight.Dec() }

func (r *Registry) RecordBacktest(outcome string, duration time.Duration) {
	r.backtests.WithLabelValues(outcome).Inc()
	r.backtestDuration.Observe(duration.Seconds())
}

func (r *Registry) RecordSandbox(outcome string, duration time.Duration) {
	r.sandboxRuns.WithLabelValues(outcome).Inc()
	r.sandboxDuration.Observe(duration.Seconds())
}

func (r *Registry) RecordGeneration(provider, outcome string) {
	r.generations.WithLabelValues(provider, outcome).Inc()
}

func (r *Registry) RecordFetch(collector, outcome string) {
	r.fetches.WithLabelValues(collector, outcome).Inc()
}

// SetJobs sets the number of jobs in a status.
func (r *Registry) SetJobs(status string, count int) {
	r.jobs.WithLabelValues(status).Set(float64(count))
}

// statusClass folds a status code into 1xx..5xx to bound label cardinality.
func statusClass(status int) string {
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
