// Package metrics provides Prometheus metrics for the pipeline stages.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics implements types.Metrics with one set of collectors per
// component, named {namespace}_{component}_*.
type PrometheusMetrics struct {
	component string

	// processedTotal counts operations by status (success/error) and type
	processedTotal *prometheus.CounterVec
	// errorsTotal counts errors by error type and operation
	errorsTotal     *prometheus.CounterVec
	durationSeconds *prometheus.HistogramVec
	// payloadSizeBytes uses exponential buckets from 1KB to 1GB
	payloadSizeBytes *prometheus.HistogramVec
	inProgress       *prometheus.GaugeVec
}

// New creates the collectors for a component and registers them with reg.
// Panics if registration fails (e.g., the component was registered twice
// on the same registry).
func New(namespace, component string, reg prometheus.Registerer) *PrometheusMetrics {
	namespace = sanitize(namespace)
	subsystem := sanitize(component)

	m := &PrometheusMetrics{component: component}

	m.processedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "processed_total",
			Help:      "Total operations by status and type",
		},
		[]string{"status", "type"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total errors by error type and operation",
		},
		[]string{"error_type", "operation"},
	)

	// Polling stages run for minutes, so the default buckets are extended
	m.durationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duration_seconds",
			Help:      "Operation duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"operation"},
	)

	m.payloadSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payload_size_bytes",
			Help:      "Payload sizes in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 10, 7),
		},
		[]string{"file_type"},
	)

	m.inProgress = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "in_progress",
			Help:      "Operations in progress",
		},
		[]string{"operation"},
	)

	reg.MustRegister(
		m.processedTotal,
		m.errorsTotal,
		m.durationSeconds,
		m.payloadSizeBytes,
		m.inProgress,
	)

	return m
}

// RecordSuccess increments processed_total with status="success".
func (m *PrometheusMetrics) RecordSuccess(operationType string) {
	m.processedTotal.WithLabelValues("success", operationType).Inc()
}

// RecordError increments both processed_total (status="error") and the
// detailed errors_total counter.
func (m *PrometheusMetrics) RecordError(operationType string, errorType string) {
	m.processedTotal.WithLabelValues("error", operationType).Inc()
	m.errorsTotal.WithLabelValues(errorType, operationType).Inc()
}

// RecordDuration records the duration of an operation in seconds.
func (m *PrometheusMetrics) RecordDuration(operation string, duration float64) {
	m.durationSeconds.WithLabelValues(operation).Observe(duration)
}

// RecordFileSize records the size of a payload in bytes.
func (m *PrometheusMetrics) RecordFileSize(fileType string, bytes int64) {
	m.payloadSizeBytes.WithLabelValues(fileType).Observe(float64(bytes))
}

// StartOperation increments the in-progress gauge for an operation.
func (m *PrometheusMetrics) StartOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Inc()
}

// EndOperation decrements the in-progress gauge for an operation.
func (m *PrometheusMetrics) EndOperation(operation string) {
	m.inProgress.WithLabelValues(operation).Dec()
}

func sanitize(name string) string {
	return strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(name)
}
