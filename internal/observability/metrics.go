package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce              sync.Once
	httpRequestsTotal         *prometheus.CounterVec
	httpLatencySeconds        *prometheus.HistogramVec
	evaluationsStartedTotal   *prometheus.CounterVec
	evaluationsCompletedTotal *prometheus.CounterVec
	evaluationDurationSecs    prometheus.Histogram
	runnerLatencySecs         prometheus.Histogram
	resultsDeliveredTotal     *prometheus.CounterVec
	realtimeClientsActive     prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		evaluationsStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluations_started_total",
			Help: "Total number of evaluation runs accepted for scheduling.",
		}, []string{"language"})

		evaluationsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "evaluations_completed_total",
			Help: "Total number of evaluation runs that reached a terminal summary.",
		}, []string{"status"})

		evaluationDurationSecs = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "evaluation_duration_seconds",
			Help:    "Wall-clock duration of full evaluation runs.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		})

		runnerLatencySecs = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "runner_latency_seconds",
			Help:    "Latency of calls to the remote execution service.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		})

		resultsDeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "results_delivered_total",
			Help: "Total number of evaluation results handed to the push channel.",
		}, []string{"status"})

		realtimeClientsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "realtime_clients_active",
			Help: "Number of currently connected realtime result subscribers.",
		})

		prometheus.MustRegister(
			httpRequestsTotal,
			httpLatencySeconds,
			evaluationsStartedTotal,
			evaluationsCompletedTotal,
			evaluationDurationSecs,
			runnerLatencySecs,
			resultsDeliveredTotal,
			realtimeClientsActive,
		)
	})
}

// HTTPRequests exposes the counter for API requests.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the latency histogram for API requests.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// EvaluationsStartedTotal counts accepted triggers by language.
func EvaluationsStartedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsStartedTotal
}

// EvaluationsCompletedTotal counts finished runs by overall status.
func EvaluationsCompletedTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return evaluationsCompletedTotal
}

// EvaluationDurationSeconds observes full run durations.
func EvaluationDurationSeconds() prometheus.Histogram {
	RegisterMetrics()
	return evaluationDurationSecs
}

// RunnerLatencySeconds observes remote runner call latency.
func RunnerLatencySeconds() prometheus.Histogram {
	RegisterMetrics()
	return runnerLatencySecs
}

// ResultsDeliveredTotal counts results handed to the push channel by status.
func ResultsDeliveredTotal() *prometheus.CounterVec {
	RegisterMetrics()
	return resultsDeliveredTotal
}

// RealtimeClientsActive exposes the connected subscriber gauge.
func RealtimeClientsActive() prometheus.Gauge {
	RegisterMetrics()
	return realtimeClientsActive
}
