// Package app assembles the pipeline from configuration. Both entrypoints
// build through here so the wiring lives in one place.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/google/uuid"

	"sportsdatalake/internal/awsclient"
	"sportsdatalake/internal/catalog"
	"sportsdatalake/internal/config"
	"sportsdatalake/internal/fetcher"
	"sportsdatalake/internal/notify"
	"sportsdatalake/internal/observability"
	"sportsdatalake/internal/observability/cloudwatch"
	"sportsdatalake/internal/pipeline"
	"sportsdatalake/internal/query"
	"sportsdatalake/internal/runstore"
	s3storage "sportsdatalake/internal/storage/s3"
	"sportsdatalake/internal/uploader"
)

// App holds a ready-to-run pipeline and the observability it reports to.
// Close must be called once the run finishes so logs and metrics are
// flushed.
type App struct {
	Pipeline *pipeline.Pipeline
	Logger   observability.Logger
	RunID    string

	notifier  *notify.Notifier
	history   *runstore.Store
	historyDB io.Closer
	provider  *observability.DefaultProvider
}

// recordTimeout bounds the run history update and the run event once the
// pipeline has returned.
const recordTimeout = 10 * time.Second

type buildOptions struct {
	logOutput io.Writer
}

// Option customizes Build.
type Option func(*buildOptions)

// WithLogOutput sends console logs to w instead of stderr. The CloudWatch
// writer mirrors to w as well.
func WithLogOutput(w io.Writer) Option {
	return func(o *buildOptions) { o.logOutput = w }
}

// Build creates every client and stage for a single run.
func Build(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	bo := buildOptions{logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&bo)
	}

	awsCfg, err := awsclient.LoadConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, err
	}
	clients := awsclient.NewClients(awsCfg, cfg.Storage)

	runID := uuid.NewString()

	logOutput := bo.logOutput
	if cfg.Observability.LogProvider == "cloudwatch" {
		logOutput = cloudwatch.NewWriter(clients.Logs, cfg.Observability.CloudWatchLogGroup,
			cloudwatch.StreamName(cfg.ServiceName, runID), bo.logOutput)
	}

	var sinks []observability.MetricsSink
	if cfg.Observability.CloudWatchNamespace != "" {
		sinks = append(sinks, cloudwatch.NewMetricsExporter(clients.Metrics, cfg.Observability.CloudWatchNamespace,
			map[string]string{"environment": cfg.Environment}))
	}

	provider := observability.NewProvider(&observability.Config{
		ServiceName:    cfg.ServiceName,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
		LogOutput:      logOutput,
		PushgatewayURL: cfg.Observability.PushgatewayURL,
		MetricsSinks:   sinks,
		AdditionalFields: observability.Fields{
			"version": cfg.Version,
		},
	})

	publisher, err := notify.NewPublisher(cfg.Notify, clients.SQS)
	if err != nil {
		_ = provider.Close()
		return nil, fmt.Errorf("failed to create notify publisher: %w", err)
	}
	var notifier *notify.Notifier
	if publisher != nil {
		notifier = notify.New(publisher, cfg.Notify.Target, provider.Logger("notify"), provider.Metrics("notify"))
	}

	var (
		history   *runstore.Store
		historyDB io.Closer
	)
	if cfg.RunStore.DSN != "" {
		db, err := runstore.Connect(ctx, cfg.RunStore.DSN, cfg.RunStore.MaxOpenConns)
		if err == nil {
			history = runstore.New(db)
			historyDB = db
			err = history.EnsureSchema(ctx)
		}
		if err != nil {
			if historyDB != nil {
				_ = historyDB.Close()
			}
			if notifier != nil {
				_ = notifier.Close()
			}
			_ = provider.Close()
			return nil, fmt.Errorf("failed to open run history: %w", err)
		}
	}

	stages := pipeline.Stages{
		Fetcher: fetcher.New(&http.Client{Timeout: cfg.SportsAPI.Timeout}, cfg.SportsAPI,
			provider.Logger("fetcher"), provider.Metrics("fetcher")),
		Uploader: uploader.New(
			s3storage.NewClient(clients.S3, provider.Logger("storage.s3"), provider.Metrics("storage")),
			cfg.Storage, provider.Logger("uploader"), provider.Metrics("uploader")),
		Catalog: catalog.New(clients.Glue, cfg.Catalog, provider.Logger("catalog"), provider.Metrics("catalog")),
		Query:   query.New(clients.Athena, cfg.Query, provider.Logger("query"), provider.Metrics("query")),
	}

	logger := provider.Logger("pipeline")
	p := pipeline.New(stages, pipeline.SettingsFromConfig(cfg), logger, provider.Metrics("pipeline"),
		pipeline.WithRunIDs(func() string { return runID }))

	return &App{
		Pipeline:  p,
		Logger:    logger,
		RunID:     runID,
		notifier:  notifier,
		history:   history,
		historyDB: historyDB,
		provider:  provider,
	}, nil
}

// Run executes the pipeline once and logs a failure as a single error line.
// The run history and the notifier, when enabled, see the outcome either
// way; their own failures are logged and do not change the result.
// Both are recorded even when ctx was cancelled mid-run.
func (a *App) Run(ctx context.Context) (*pipeline.Report, error) {
	logCtx := observability.WithRunID(ctx, a.RunID)

	if a.history != nil {
		if err := a.history.Start(logCtx, a.RunID, time.Now()); err != nil {
			a.Logger.Warn(logCtx, "Failed to record run start", observability.Fields{"reason": err.Error()})
		}
	}

	report, err := a.Pipeline.Run(ctx)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(logCtx), recordTimeout)
	defer cancel()

	if err != nil {
		a.Logger.Error(logCtx, "Error in processing", err, nil)
		a.finish(recordCtx, runstore.Run{Status: runstore.StatusFailed, ErrorMessage: aws.String(err.Error())})
		if a.notifier != nil {
			_ = a.notifier.Notify(recordCtx, a.notifier.Failed(a.RunID, err))
		}
		return nil, err
	}

	rows := len(report.Results.Rows)
	a.finish(recordCtx, runstore.Run{
		Status:         runstore.StatusSucceeded,
		ObjectLocation: aws.String(report.Object.Location),
		Rows:           &rows,
	})
	if a.notifier != nil {
		_ = a.notifier.Notify(recordCtx, a.notifier.Succeeded(a.RunID, report.Object, report.Results))
	}
	return report, nil
}

func (a *App) finish(ctx context.Context, run runstore.Run) {
	if a.history == nil {
		return
	}
	run.ID = a.RunID
	if err := a.history.Finish(ctx, run); err != nil {
		a.Logger.Warn(ctx, "Failed to record run outcome", observability.Fields{"reason": err.Error()})
	}
}

// Close releases the notifier and the history database, then flushes logs
// and metrics.
func (a *App) Close() error {
	var firstErr error
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close notifier: %w", err)
		}
	}
	if a.historyDB != nil {
		if err := a.historyDB.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close run history: %w", err)
		}
	}
	if err := a.provider.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to flush observability: %w", err)
	}
	return firstErr
}
