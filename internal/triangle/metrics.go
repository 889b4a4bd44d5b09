// internal/triangle/metrics.go
package triangle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the upstream client.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ct_upstream_requests_total",
			Help: "Total HTTP requests issued against the upstream catalog API.",
		},
		[]string{"operation"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ct_upstream_request_duration_seconds",
			Help:    "Latency of upstream catalog API requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ct_upstream_retries_total",
			Help: "Total retry attempts against the upstream catalog API.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ct_upstream_errors_total",
			Help: "Total upstream request errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

func (m *Metrics) incRequest(operation string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(operation).Inc()
}

func (m *Metrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

func (m *Metrics) incRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) incError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
