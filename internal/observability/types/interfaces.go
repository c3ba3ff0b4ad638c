// Package types holds the observability contracts shared by the logger,
// metrics and provider packages.
package types

import (
	"context"
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Logger defines the contract for structured logging.
// Implementations write one JSON object per entry. All methods are
// context-aware so the run identifier can be attached to every line.
type Logger interface {
	// Info logs an informational message.
	Info(ctx context.Context, msg string, fields Fields)

	// Error logs an error message with the associated error.
	Error(ctx context.Context, msg string, err error, fields Fields)

	// Warn logs a warning message.
	Warn(ctx context.Context, msg string, fields Fields)

	// Debug logs a debug message. Filtered out unless the level is "debug".
	Debug(ctx context.Context, msg string, fields Fields)

	// WithFields returns a new Logger that adds fields to every entry.
	WithFields(fields Fields) Logger
}

// Metrics defines the contract for metrics collection.
// Implementations should follow Prometheus naming conventions.
type Metrics interface {
	// RecordSuccess increments the success counter for an operation type.
	RecordSuccess(operationType string)

	// RecordError increments the error counter for an operation and error type.
	//
	// Parameters:
	//   - operationType: The operation that failed (e.g., "fetch", "upload")
	//   - errorType: The category of error (e.g., "poll_timeout", "AccessDenied")
	RecordError(operationType string, errorType string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, duration float64)

	// RecordFileSize records the size of a payload in bytes.
	RecordFileSize(fileType string, bytes int64)

	// StartOperation increments the in-progress gauge for an operation.
	// Must be paired with EndOperation.
	StartOperation(operation string)

	// EndOperation decrements the in-progress gauge for an operation.
	EndOperation(operation string)
}

// Fields represents structured logging fields as key-value pairs.
// Values can be any JSON-serializable type.
type Fields map[string]interface{}

// Config holds observability configuration for the provider.
type Config struct {
	// ServiceName identifies the service in logs and prefixes metric names.
	ServiceName string

	// Environment specifies the deployment environment.
	Environment string

	// LogLevel sets the minimum log level to output.
	// Valid values: "debug", "info", "warn", "error".
	LogLevel string

	// LogOutput specifies where logs should be written.
	// If nil, defaults to os.Stderr. Closed by Provider.Close when it is an
	// io.Closer other than the standard streams.
	LogOutput io.Writer

	// PushgatewayURL, when set, makes Provider.Close push all collected
	// metrics to a Prometheus Pushgateway under the service name as job.
	PushgatewayURL string

	// MetricsSinks receive the gathered metrics on Provider.Close, after
	// the Pushgateway push.
	MetricsSinks []MetricsSink

	// AdditionalFields are fields included in every log entry.
	AdditionalFields Fields
}

// MetricsSink ships a snapshot of collected metrics to another backend.
type MetricsSink interface {
	Export(ctx context.Context, gatherer prometheus.Gatherer) error
}

// Provider manages the lifecycle of observability components.
// Each component gets its own Logger and Metrics instance.
type Provider interface {
	// Logger returns the Logger for a component, creating it on first use.
	Logger(component string) Logger

	// Metrics returns the Metrics for a component, creating it on first use.
	Metrics(component string) Metrics

	// Close flushes metrics and releases the log output.
	Close() error
}

type contextKey string

const runIDKey contextKey = "run_id"

// WithRunID returns a context carrying the pipeline run identifier.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID extracts the pipeline run identifier, if any.
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok
}
