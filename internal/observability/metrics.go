package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpRequestsTotal       *prometheus.CounterVec
	httpLatencySeconds      *prometheus.HistogramVec
	httpErrorsTotal         *prometheus.CounterVec
	provisioningCompleted   *prometheus.CounterVec
	provisioningFailed      *prometheus.CounterVec
	attemptTransitionsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used across the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talentforge_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "talentforge_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talentforge_errors_total",
			Help: "Total number of error responses returned by API endpoints.",
		}, []string{"method", "route", "status"})

		provisioningCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talentforge_provisioning_completed_total",
			Help: "Completed repository provisioning workflows by kind.",
		}, []string{"workflow"})

		provisioningFailed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talentforge_provisioning_failures_total",
			Help: "Failed repository provisioning workflows by kind and step.",
		}, []string{"workflow", "step"})

		attemptTransitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "talentforge_attempt_transitions_total",
			Help: "Candidate attempt lifecycle transitions by target status.",
		}, []string{"to"})

		prometheus.MustRegister(httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			provisioningCompleted, provisioningFailed, attemptTransitionsTotal)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// Errors exposes the counter for API error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// ProvisioningCompleted counts finished provisioning workflows.
func ProvisioningCompleted() *prometheus.CounterVec {
	RegisterMetrics()
	return provisioningCompleted
}

// ProvisioningFailures counts provisioning failures by failing step.
func ProvisioningFailures() *prometheus.CounterVec {
	RegisterMetrics()
	return provisioningFailed
}

// AttemptTransitions counts attempt lifecycle transitions.
func AttemptTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptTransitionsTotal
}
