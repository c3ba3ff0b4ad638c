// Package catalog registers uploaded data with the Glue Data Catalog by
// creating a database and a crawler over the bucket, then running it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"

	"sportsdatalake/internal/config"
	"sportsdatalake/internal/domain"
	"sportsdatalake/internal/observability"
	"sportsdatalake/internal/poll"
)

// GlueAPI is the subset of the Glue client the orchestrator calls.
type GlueAPI interface {
	CreateDatabase(ctx context.Context, params *glue.CreateDatabaseInput, optFns ...func(*glue.Options)) (*glue.CreateDatabaseOutput, error)
	CreateCrawler(ctx context.Context, params *glue.CreateCrawlerInput, optFns ...func(*glue.Options)) (*glue.CreateCrawlerOutput, error)
	UpdateCrawler(ctx context.Context, params *glue.UpdateCrawlerInput, optFns ...func(*glue.Options)) (*glue.UpdateCrawlerOutput, error)
	StartCrawler(ctx context.Context, params *glue.StartCrawlerInput, optFns ...func(*glue.Options)) (*glue.StartCrawlerOutput, error)
	GetCrawler(ctx context.Context, params *glue.GetCrawlerInput, optFns ...func(*glue.Options)) (*glue.GetCrawlerOutput, error)
}

// Orchestrator drives the database and crawler lifecycle.
type Orchestrator struct {
	api     GlueAPI
	config  config.CatalogConfig
	logger  observability.Logger
	metrics observability.Metrics
	timer   poll.Timer
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithTimer replaces the timer used between crawler status checks.
func WithTimer(t poll.Timer) Option {
	return func(o *Orchestrator) { o.timer = t }
}

// New creates an Orchestrator.
func New(api GlueAPI, cfg config.CatalogConfig, logger observability.Logger, metrics observability.Metrics, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		api:     api,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Definition returns the crawler the orchestrator creates.
func (o *Orchestrator) Definition() domain.CrawlerDefinition {
	return domain.CrawlerDefinition{
		Name:         o.config.CrawlerName,
		DatabaseName: o.config.DatabaseName,
		TablePrefix:  o.config.TablePrefix,
		SourcePath:   o.config.SourcePath,
		Role:         o.config.RoleARN,
	}
}

// Run creates the database, creates the crawler, starts it and waits until
// it leaves the RUNNING state. The steps run strictly in that order and the
// first failure stops the rest.
func (o *Orchestrator) Run(ctx context.Context) (domain.CrawlerStatus, error) {
	o.metrics.StartOperation("catalog")
	defer o.metrics.EndOperation("catalog")
	startTime := time.Now()
	defer func() {
		o.metrics.RecordDuration("catalog", time.Since(startTime).Seconds())
	}()

	def := o.Definition()

	if err := o.ensureDatabase(ctx, def); err != nil {
		return domain.CrawlerStatus{}, o.fail(ctx, "create database", err)
	}
	if err := o.ensureCrawler(ctx, def); err != nil {
		return domain.CrawlerStatus{}, o.fail(ctx, "create crawler", err)
	}

	if _, err := o.api.StartCrawler(ctx, &glue.StartCrawlerInput{Name: aws.String(def.Name)}); err != nil {
		return domain.CrawlerStatus{}, o.fail(ctx, "start crawler", err)
	}
	o.logger.Info(ctx, "Crawler started", observability.Fields{"crawler": def.Name})

	status, err := o.waitForCrawler(ctx, def.Name)
	if err != nil {
		return status, o.fail(ctx, "wait for crawler", err)
	}

	if err := o.checkOutcome(status); err != nil {
		return status, o.fail(ctx, "crawl", err)
	}

	o.metrics.RecordSuccess("catalog")
	o.logger.Info(ctx, "Crawler execution completed", observability.Fields{
		"crawler":           def.Name,
		"state":             status.State,
		"last_crawl_status": status.LastCrawlStatus,
	})
	return status, nil
}

func (o *Orchestrator) ensureDatabase(ctx context.Context, def domain.CrawlerDefinition) error {
	_, err := o.api.CreateDatabase(ctx, &glue.CreateDatabaseInput{
		DatabaseInput: &gluetypes.DatabaseInput{
			Name:        aws.String(def.DatabaseName),
			Description: aws.String(o.config.DatabaseDescription),
		},
	})
	if err != nil {
		if o.config.ReuseExisting && isAlreadyExists(err) {
			o.logger.Info(ctx, "Database already exists, reusing it", observability.Fields{"database": def.DatabaseName})
			return nil
		}
		return err
	}
	o.logger.Info(ctx, "Database created", observability.Fields{"database": def.DatabaseName})
	return nil
}

func (o *Orchestrator) ensureCrawler(ctx context.Context, def domain.CrawlerDefinition) error {
	targets := &gluetypes.CrawlerTargets{
		S3Targets: []gluetypes.S3Target{{Path: aws.String(def.SourcePath)}},
	}

	_, err := o.api.CreateCrawler(ctx, &glue.CreateCrawlerInput{
		Name:         aws.String(def.Name),
		Role:         aws.String(def.Role),
		DatabaseName: aws.String(def.DatabaseName),
		TablePrefix:  aws.String(def.TablePrefix),
		Targets:      targets,
	})
	if err == nil {
		o.logger.Info(ctx, "Crawler created", observability.Fields{"crawler": def.Name, "source_path": def.SourcePath})
		return nil
	}
	if !o.config.ReuseExisting || !isAlreadyExists(err) {
		return err
	}

	_, err = o.api.UpdateCrawler(ctx, &glue.UpdateCrawlerInput{
		Name:         aws.String(def.Name),
		Role:         aws.String(def.Role),
		DatabaseName: aws.String(def.DatabaseName),
		TablePrefix:  aws.String(def.TablePrefix),
		Targets:      targets,
	})
	if err != nil {
		return fmt.Errorf("failed to update existing crawler: %w", err)
	}
	o.logger.Info(ctx, "Crawler already exists, definition updated", observability.Fields{"crawler": def.Name})
	return nil
}

func (o *Orchestrator) waitForCrawler(ctx context.Context, name string) (domain.CrawlerStatus, error) {
	var last domain.CrawlerStatus

	p := poll.Poller{
		Interval:    o.config.PollInterval,
		MaxAttempts: uint(o.config.PollMaxAttempts),
		OnWait: func(attempt uint, status string) {
			o.logger.Debug(ctx, "Waiting for crawler", observability.Fields{
				"crawler":  name,
				"state":    status,
				"attempt":  attempt,
				"interval": o.config.PollInterval.String(),
			})
		},
		Timer: o.timer,
	}
	_, err := p.Until(ctx, func(ctx context.Context) (string, bool, error) {
		out, err := o.api.GetCrawler(ctx, &glue.GetCrawlerInput{Name: aws.String(name)})
		if err != nil {
			return "", false, err
		}
		last = crawlerStatus(out.Crawler)
		o.logger.Info(ctx, "Crawler state", observability.Fields{"crawler": name, "state": last.State})
		return last.State, last.State != domain.CrawlerStateRunning, nil
	})
	return last, err
}

// checkOutcome applies the optional allow-list. The outcome is the last
// crawl status when the service reports one, otherwise the crawler state.
func (o *Orchestrator) checkOutcome(status domain.CrawlerStatus) error {
	if len(o.config.SuccessStates) == 0 {
		return nil
	}
	outcome := status.State
	if status.LastCrawlStatus != "" {
		outcome = status.LastCrawlStatus
	}
	if slices.Contains(o.config.SuccessStates, outcome) {
		return nil
	}
	if status.LastCrawlError != "" {
		return fmt.Errorf("crawler finished with %s: %s", outcome, status.LastCrawlError)
	}
	return fmt.Errorf("crawler finished with %s", outcome)
}

func (o *Orchestrator) fail(ctx context.Context, step string, err error) error {
	o.metrics.RecordError("catalog", domain.ErrorType(err))
	o.logger.Error(ctx, "Error creating Glue crawler or database", err, observability.Fields{
		"step":     step,
		"crawler":  o.config.CrawlerName,
		"database": o.config.DatabaseName,
	})
	return domain.CatalogError(step, err)
}

func crawlerStatus(c *gluetypes.Crawler) domain.CrawlerStatus {
	if c == nil {
		return domain.CrawlerStatus{}
	}
	status := domain.CrawlerStatus{State: string(c.State)}
	if c.LastCrawl != nil {
		status.LastCrawlStatus = string(c.LastCrawl.Status)
		status.LastCrawlError = aws.ToString(c.LastCrawl.ErrorMessage)
	}
	return status
}

func isAlreadyExists(err error) bool {
	var exists *gluetypes.AlreadyExistsException
	return errors.As(err, &exists)
}
