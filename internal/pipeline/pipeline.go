// Package pipeline runs the fetch, upload, catalog and query stages in
// order for a single batch.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sportsdatalake/internal/config"
	"sportsdatalake/internal/domain"
	"sportsdatalake/internal/observability"
)

// Fetcher retrieves the upstream payload.
type Fetcher interface {
	Fetch(ctx context.Context) (domain.Payload, error)
}

// Uploader stores a payload in the object store.
type Uploader interface {
	Upload(ctx context.Context, payload domain.Payload) (domain.StoredObject, error)
}

// Cataloger makes stored objects queryable.
type Cataloger interface {
	Run(ctx context.Context) (domain.CrawlerStatus, error)
}

// QueryRunner executes SQL against the catalog.
type QueryRunner interface {
	Run(ctx context.Context, sql, database, outputLocation string) (*domain.ResultSet, error)
}

// Stages groups the components a run drives.
type Stages struct {
	Fetcher  Fetcher
	Uploader Uploader
	Catalog  Cataloger
	Query    QueryRunner
}

// Settings are the values the pipeline passes between stages.
type Settings struct {
	SQL              string
	Database         string
	OutputLocation   string
	SourcePath       string
	ValidateLocation bool
}

// SettingsFromConfig extracts Settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		SQL:              cfg.Query.SQL,
		Database:         cfg.Query.Database,
		OutputLocation:   cfg.Query.OutputLocation,
		SourcePath:       cfg.Catalog.SourcePath,
		ValidateLocation: cfg.Pipeline.ValidateLocation,
	}
}

// Report summarizes a successful run.
type Report struct {
	RunID    string               `json:"run_id"`
	Object   domain.StoredObject  `json:"object"`
	Crawler  domain.CrawlerStatus `json:"crawler"`
	Results  *domain.ResultSet    `json:"results"`
	Duration time.Duration        `json:"duration"`
}

// Pipeline is one configured batch job. It holds no state between runs.
type Pipeline struct {
	stages   Stages
	settings Settings
	logger   observability.Logger
	metrics  observability.Metrics
	newID    func() string
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithRunIDs replaces the generator of run identifiers.
func WithRunIDs(newID func() string) Option {
	return func(p *Pipeline) { p.newID = newID }
}

// New creates a Pipeline.
func New(stages Stages, settings Settings, logger observability.Logger, metrics observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		stages:   stages,
		settings: settings,
		logger:   logger,
		metrics:  metrics,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the stages strictly in sequence. The first failing stage
// aborts the run and its error is returned unchanged; nothing created by
// earlier stages is removed.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	runID := p.newID()
	ctx = observability.WithRunID(ctx, runID)

	p.metrics.StartOperation("pipeline")
	defer p.metrics.EndOperation("pipeline")
	startTime := time.Now()
	defer func() {
		p.metrics.RecordDuration("pipeline", time.Since(startTime).Seconds())
	}()

	report := &Report{RunID: runID}
	p.logger.Info(ctx, "Pipeline run started", nil)

	payload, err := p.stages.Fetcher.Fetch(ctx)
	if err != nil {
		return nil, p.abort(ctx, "fetch", err)
	}

	obj, err := p.stages.Uploader.Upload(ctx, payload)
	if err != nil {
		return nil, p.abort(ctx, "upload", err)
	}
	report.Object = obj
	p.logger.Info(ctx, "Data uploaded to S3", observability.Fields{"location": obj.Location})

	if p.settings.ValidateLocation {
		if err := CheckLocation(obj.Location, p.settings.SourcePath); err != nil {
			return nil, p.abort(ctx, "validate location", err)
		}
	}

	crawler, err := p.stages.Catalog.Run(ctx)
	if err != nil {
		return nil, p.abort(ctx, "catalog", err)
	}
	report.Crawler = crawler

	results, err := p.stages.Query.Run(ctx, p.settings.SQL, p.settings.Database, p.settings.OutputLocation)
	if err != nil {
		return nil, p.abort(ctx, "query", err)
	}
	report.Results = results
	report.Duration = time.Since(startTime)

	p.logger.Info(ctx, "Athena Query Results", observability.Fields{"results": results})
	p.metrics.RecordSuccess("pipeline")
	p.logger.Info(ctx, "Pipeline run completed", observability.Fields{
		"duration_ms": report.Duration.Milliseconds(),
		"rows":        len(results.Rows),
	})
	return report, nil
}

func (p *Pipeline) abort(ctx context.Context, stage string, err error) error {
	p.metrics.RecordError("pipeline", domain.ErrorType(err))
	p.logger.Warn(ctx, "Pipeline run aborted", observability.Fields{
		"stage":      stage,
		"error_type": domain.ErrorType(err),
	})
	return err
}

// CheckLocation verifies that an uploaded object lies under the prefix the
// crawler scans. Objects written elsewhere would never be cataloged.
func CheckLocation(location, sourcePath string) error {
	prefix := sourcePath
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	if strings.HasPrefix(location, prefix) {
		return nil
	}
	return domain.NewDomainError(domain.CodeLocationDrift,
		fmt.Sprintf("%s is not under crawler path %s", location, sourcePath), nil, false)
}
