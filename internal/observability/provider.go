// Package observability provides the provider that hands out per-component
// loggers and metrics to the pipeline stages.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"sportsdatalake/internal/observability/logger"
	"sportsdatalake/internal/observability/metrics"
	"sportsdatalake/internal/observability/types"
)

// Logger is a type alias for the Logger interface from the types package.
type Logger = types.Logger

// Metrics is a type alias for the Metrics interface from the types package.
type Metrics = types.Metrics

// Fields is a type alias for structured logging fields.
type Fields = types.Fields

// Config is a type alias for the observability configuration.
type Config = types.Config

// Provider is a type alias for the Provider interface from the types package.
type Provider = types.Provider

// MetricsSink is a type alias for the MetricsSink interface from the types package.
type MetricsSink = types.MetricsSink

// WithRunID and RunID are re-exported so callers only import this package.
var (
	WithRunID = types.WithRunID
	RunID     = types.RunID
)

const sinkTimeout = 30 * time.Second

// DefaultProvider implements the Provider interface.
// Loggers and metrics are created lazily, once per component.
type DefaultProvider struct {
	config   *Config
	registry *prometheus.Registry
	loggers  map[string]Logger
	metrics  map[string]Metrics
	mu       sync.RWMutex
}

// NewProvider creates a new observability provider with the given configuration.
// If LogOutput is not specified it defaults to os.Stderr.
//
// Example:
//
//	provider := NewProvider(&Config{
//		ServiceName: "sportsdata-pipeline",
//		Environment: "production",
//		LogLevel:    "info",
//	})
//	log := provider.Logger("fetcher")
func NewProvider(config *Config) *DefaultProvider {
	if config.LogOutput == nil {
		config.LogOutput = os.Stderr
	}

	return &DefaultProvider{
		config:   config,
		registry: prometheus.NewRegistry(),
		loggers:  make(map[string]Logger),
		metrics:  make(map[string]Metrics),
	}
}

// Logger returns the Logger for a component.
//
// The returned logger includes:
//   - All fields from the provider's config.AdditionalFields
//   - A "component" field set to the provided component name
//   - Service name formatted as "{config.ServiceName}.{component}"
func (p *DefaultProvider) Logger(component string) Logger {
	p.mu.RLock()
	if l, exists := p.loggers[component]; exists {
		p.mu.RUnlock()
		return l
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if l, exists := p.loggers[component]; exists {
		return l
	}

	fields := make(Fields, len(p.config.AdditionalFields)+1)
	for k, v := range p.config.AdditionalFields {
		fields[k] = v
	}
	fields["component"] = component

	l := logger.New(
		fmt.Sprintf("%s.%s", p.config.ServiceName, component),
		p.config.Environment,
		p.config.LogLevel,
		p.config.LogOutput,
		fields,
	)
	p.loggers[component] = l

	return l
}

// Metrics returns the Metrics for a component, registered on the provider's
// own registry.
func (p *DefaultProvider) Metrics(component string) Metrics {
	p.mu.RLock()
	if m, exists := p.metrics[component]; exists {
		p.mu.RUnlock()
		return m
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check
	if m, exists := p.metrics[component]; exists {
		return m
	}

	m := metrics.New(p.config.ServiceName, component, p.registry)
	p.metrics[component] = m

	return m
}

// Registry exposes the registry that holds every component's collectors.
func (p *DefaultProvider) Registry() *prometheus.Registry {
	return p.registry
}

// Close pushes metrics to the Pushgateway when one is configured, exports
// them to every MetricsSink, then closes LogOutput if it is an io.Closer
// other than os.Stdout/os.Stderr. All steps run; the first error is
// returned.
func (p *DefaultProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error

	if p.config.PushgatewayURL != "" {
		err := push.New(p.config.PushgatewayURL, metricsJobName(p.config.ServiceName)).
			Gatherer(p.registry).
			Push()
		if err != nil {
			firstErr = fmt.Errorf("failed to push metrics: %w", err)
		}
	}

	if len(p.config.MetricsSinks) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		defer cancel()
		for _, sink := range p.config.MetricsSinks {
			if err := sink.Export(ctx, p.registry); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to export metrics: %w", err)
			}
		}
	}

	if closer, ok := p.config.LogOutput.(io.Closer); ok {
		if closer != os.Stdout && closer != os.Stderr {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("failed to close log output: %w", err)
			}
		}
	}

	return firstErr
}

func metricsJobName(serviceName string) string {
	if serviceName == "" {
		return "sportsdata_pipeline"
	}
	return serviceName
}
