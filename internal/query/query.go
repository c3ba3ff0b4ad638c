// Package query runs SQL against the catalog with Athena and collects the
// result rows.
package query

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"

	"sportsdatalake/internal/config"
	"sportsdatalake/internal/domain"
	"sportsdatalake/internal/observability"
	"sportsdatalake/internal/poll"
)

// AthenaAPI is the subset of the Athena client the runner calls.
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
}

// Runner submits queries and waits for them to finish.
type Runner struct {
	api     AthenaAPI
	config  config.QueryConfig
	logger  observability.Logger
	metrics observability.Metrics
	timer   poll.Timer
}

// Option customizes a Runner.
type Option func(*Runner)

// WithTimer replaces the timer used between execution status checks.
func WithTimer(t poll.Timer) Option {
	return func(r *Runner) { r.timer = t }
}

// New creates a Runner. Only the workgroup and polling settings of cfg are
// read; the SQL and its context are passed to Run.
func New(api AthenaAPI, cfg config.QueryConfig, logger observability.Logger, metrics observability.Metrics, opts ...Option) *Runner {
	r := &Runner{
		api:     api,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts sql in database, writing engine output under outputLocation,
// waits while the execution is QUEUED or RUNNING and returns its rows.
// Any terminal state other than SUCCEEDED is an error and no results are
// fetched.
func (r *Runner) Run(ctx context.Context, sql, database, outputLocation string) (*domain.ResultSet, error) {
	r.metrics.StartOperation("query")
	defer r.metrics.EndOperation("query")
	startTime := time.Now()
	defer func() {
		r.metrics.RecordDuration("query", time.Since(startTime).Seconds())
	}()

	input := &athena.StartQueryExecutionInput{
		QueryString:           aws.String(sql),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{Database: aws.String(database)},
		ResultConfiguration:   &athenatypes.ResultConfiguration{OutputLocation: aws.String(outputLocation)},
	}
	if r.config.WorkGroup != "" {
		input.WorkGroup = aws.String(r.config.WorkGroup)
	}

	started, err := r.api.StartQueryExecution(ctx, input)
	if err != nil {
		return nil, r.fail(ctx, "start query", "", err)
	}
	id := aws.ToString(started.QueryExecutionId)
	r.logger.Info(ctx, "Athena query started successfully", observability.Fields{
		"query_execution_id": id,
		"database":           database,
	})

	exec, err := r.waitForQuery(ctx, id)
	if err != nil {
		return nil, r.fail(ctx, "wait for query", id, err)
	}
	if exec.State != domain.QueryStateSucceeded {
		err := domain.QueryStateError(exec.State, exec.StateReason)
		r.metrics.RecordError("query", "query_"+exec.State)
		r.logger.Error(ctx, "Athena query did not succeed", err, observability.Fields{
			"query_execution_id": id,
			"state":              exec.State,
		})
		return nil, err
	}

	results, err := r.fetchResults(ctx, exec)
	if err != nil {
		return nil, r.fail(ctx, "get query results", id, err)
	}

	r.metrics.RecordFileSize("query_scan", exec.DataScanned)
	r.metrics.RecordSuccess("query")
	r.logger.Info(ctx, "Athena query completed", observability.Fields{
		"query_execution_id": id,
		"rows":               len(results.Rows),
		"data_scanned_bytes": exec.DataScanned,
		"engine_time_ms":     exec.EngineTimeMs,
		"output_file":        exec.OutputFile,
	})
	return results, nil
}

func (r *Runner) waitForQuery(ctx context.Context, id string) (domain.QueryExecution, error) {
	var last domain.QueryExecution

	p := poll.Poller{
		Interval:    r.config.PollInterval,
		MaxAttempts: uint(r.config.PollMaxAttempts),
		OnWait: func(attempt uint, status string) {
			r.logger.Debug(ctx, "Waiting for Athena query", observability.Fields{
				"query_execution_id": id,
				"state":              status,
				"attempt":            attempt,
				"interval":           r.config.PollInterval.String(),
			})
		},
		Timer: r.timer,
	}
	_, err := p.Until(ctx, func(ctx context.Context) (string, bool, error) {
		out, err := r.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
		if err != nil {
			return "", false, err
		}
		last = queryExecution(id, out.QueryExecution)
		r.logger.Info(ctx, "Athena query state", observability.Fields{"query_execution_id": id, "state": last.State})
		return last.State, !last.InProgress(), nil
	})
	return last, err
}

func (r *Runner) fetchResults(ctx context.Context, exec domain.QueryExecution) (*domain.ResultSet, error) {
	results := &domain.ResultSet{ExecutionID: exec.ID, Rows: [][]string{}}
	// DML results repeat the column names as the first row of the first
	// page. DDL and utility statements carry no such row.
	skipHeader := exec.StatementType == string(athenatypes.StatementTypeDml)

	paginator := athena.NewGetQueryResultsPaginator(r.api, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(exec.ID),
	})
	first := true
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		if page.ResultSet == nil {
			continue
		}
		if first && page.ResultSet.ResultSetMetadata != nil {
			for _, col := range page.ResultSet.ResultSetMetadata.ColumnInfo {
				results.Columns = append(results.Columns, aws.ToString(col.Name))
			}
		}
		for i, row := range page.ResultSet.Rows {
			if first && i == 0 && skipHeader {
				continue
			}
			results.Rows = append(results.Rows, rowValues(row))
		}
		first = false
	}
	return results, nil
}

func (r *Runner) fail(ctx context.Context, step, id string, err error) error {
	r.metrics.RecordError("query", domain.ErrorType(err))
	r.logger.Error(ctx, "Error executing Athena query", err, observability.Fields{
		"step":               step,
		"query_execution_id": id,
	})
	return domain.QueryError(step, err)
}

func queryExecution(id string, q *athenatypes.QueryExecution) domain.QueryExecution {
	exec := domain.QueryExecution{ID: id}
	if q == nil {
		return exec
	}
	exec.StatementType = string(q.StatementType)
	if q.Status != nil {
		exec.State = string(q.Status.State)
		exec.StateReason = aws.ToString(q.Status.StateChangeReason)
		if q.Status.AthenaError != nil && exec.StateReason == "" {
			exec.StateReason = aws.ToString(q.Status.AthenaError.ErrorMessage)
		}
	}
	if q.ResultConfiguration != nil {
		exec.OutputFile = aws.ToString(q.ResultConfiguration.OutputLocation)
	}
	if q.Statistics != nil {
		exec.DataScanned = aws.ToInt64(q.Statistics.DataScannedInBytes)
		exec.EngineTimeMs = aws.ToInt64(q.Statistics.EngineExecutionTimeInMillis)
	}
	return exec
}

func rowValues(row athenatypes.Row) []string {
	values := make([]string, len(row.Data))
	for i, d := range row.Data {
		values[i] = aws.ToString(d.VarCharValue)
	}
	return values
}
