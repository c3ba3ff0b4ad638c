package app

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sportsdatalake/internal/config"
	"sportsdatalake/internal/domain"
	"sportsdatalake/internal/notify"
	obmocks "sportsdatalake/internal/observability/mocks"
	"sportsdatalake/internal/pipeline"
	"sportsdatalake/internal/runstore"
)

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		Environment: "test",
		ServiceName: "sportsdata-pipeline",
		LogLevel:    "error",
		Version:     "test",
		SportsAPI: config.SportsAPIConfig{
			URL:       apiURL,
			APIKey:    "test-key",
			KeyHeader: "Ocp-Apim-Subscription-Key",
			Timeout:   5 * time.Second,
		},
		AWS: config.AWSConfig{
			Region:          "us-east-1",
			AccessKeyID:     "test",
			SecretAccessKey: "test",
			Endpoint:        "http://localhost:4566",
		},
		Storage: config.StorageConfig{Bucket: "nbadatalake", UsePathStyle: true},
		Catalog: config.CatalogConfig{
			DatabaseName:    "sportsdata_db",
			CrawlerName:     "sportsdata-crawler",
			SourcePath:      "s3://nbadatalake/",
			PollInterval:    10 * time.Second,
			PollMaxAttempts: 1,
		},
		Query: config.QueryConfig{
			SQL:             "SELECT 1",
			Database:        "sportsdata_db",
			OutputLocation:  "s3://nbadatalake/athena-results/",
			PollInterval:    5 * time.Second,
			PollMaxAttempts: 1,
		},
		Observability: config.ObservabilityConfig{LogProvider: "console"},
	}
}

func TestBuild(t *testing.T) {
	a, err := Build(context.Background(), testConfig("http://example.invalid"))

	require.NoError(t, err)
	assert.NotNil(t, a.Pipeline)
	assert.NotEmpty(t, a.RunID)
	assert.NoError(t, a.Close())
}

func TestBuild_CloudWatchLogs(t *testing.T) {
	cfg := testConfig("http://example.invalid")
	cfg.Observability.LogProvider = "cloudwatch"
	cfg.Observability.CloudWatchLogGroup = "/sportsdata/pipeline"

	a, err := Build(context.Background(), cfg)

	require.NoError(t, err)
	assert.NotNil(t, a.provider)
}

func TestApp_RunStopsAtUpstreamFailure(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	a, err := Build(context.Background(), testConfig(api.URL))
	require.NoError(t, err)
	defer a.Close()

	report, err := a.Run(context.Background())

	assert.Nil(t, report)
	assert.ErrorIs(t, err, domain.ErrUpstreamRequest)
}

func TestBuild_InvalidNotifyBroker(t *testing.T) {
	cfg := testConfig("http://example.invalid")
	cfg.Notify = config.NotifyConfig{
		Adapter:     config.NotifyAdapterRabbitMQ,
		Target:      "runs",
		RabbitMQURL: "not-a-url",
	}

	a, err := Build(context.Background(), cfg)

	assert.Nil(t, a)
	assert.ErrorContains(t, err, "failed to create notify publisher")
}

func TestBuild_UnreachableRunHistory(t *testing.T) {
	cfg := testConfig("http://example.invalid")
	cfg.RunStore = config.RunStoreConfig{
		DSN:          "postgres://user@127.0.0.1:1/runs?sslmode=disable&connect_timeout=1",
		MaxOpenConns: 1,
	}

	a, err := Build(context.Background(), cfg)

	assert.Nil(t, a)
	assert.ErrorContains(t, err, "failed to open run history")
}

// historyDB records statements and fails on a finished context like a
// real driver does.
type historyDB struct {
	execs [][]interface{}
	err   error
}

func (h *historyDB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.err != nil {
		return nil, h.err
	}
	h.execs = append(h.execs, args)
	return driver.RowsAffected(1), nil
}

func (h *historyDB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return errors.New("not implemented")
}

type queuePublisher struct {
	events []notify.Event
	err    error
}

func (q *queuePublisher) Publish(ctx context.Context, target string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.err != nil {
		return q.err
	}
	var e notify.Event
	if err := json.Unmarshal(body, &e); err != nil {
		return err
	}
	q.events = append(q.events, e)
	return nil
}

func (q *queuePublisher) Close() error { return nil }

type stubFetcher func(ctx context.Context) (domain.Payload, error)

func (f stubFetcher) Fetch(ctx context.Context) (domain.Payload, error) { return f(ctx) }

type stubUploader struct{}

func (stubUploader) Upload(ctx context.Context, payload domain.Payload) (domain.StoredObject, error) {
	return domain.StoredObject{
		Bucket:   "nbadatalake",
		Key:      "sportsdata-1.json",
		Location: "s3://nbadatalake/sportsdata-1.json",
	}, nil
}

type stubCatalog struct{}

func (stubCatalog) Run(ctx context.Context) (domain.CrawlerStatus, error) {
	return domain.CrawlerStatus{State: "READY"}, nil
}

type stubQuery struct{}

func (stubQuery) Run(ctx context.Context, sql, database, outputLocation string) (*domain.ResultSet, error) {
	return &domain.ResultSet{Columns: []string{"id"}, Rows: [][]string{{"1"}, {"2"}}}, nil
}

func newRecordingApp(fetch stubFetcher, db *historyDB, pub *queuePublisher) *App {
	logger := obmocks.NewNopLogger()
	p := pipeline.New(pipeline.Stages{
		Fetcher:  fetch,
		Uploader: stubUploader{},
		Catalog:  stubCatalog{},
		Query:    stubQuery{},
	}, pipeline.Settings{
		SQL:              "SELECT 1",
		Database:         "sportsdata_db",
		OutputLocation:   "s3://nbadatalake/athena-results/",
		SourcePath:       "s3://nbadatalake/",
		ValidateLocation: true,
	}, logger, obmocks.NewNopMetrics(), pipeline.WithRunIDs(func() string { return "run-1" }))

	return &App{
		Pipeline: p,
		Logger:   logger,
		RunID:    "run-1",
		history:  runstore.New(db),
		notifier: notify.New(pub, "runs", logger, obmocks.NewNopMetrics()),
	}
}

func TestApp_RunRecordsOutcome(t *testing.T) {
	players := func(ctx context.Context) (domain.Payload, error) {
		return domain.Payload(`[{"id":1}]`), nil
	}
	errUpstream := domain.UpstreamRequestError(errors.New("status 503"))

	tests := []struct {
		name         string
		fetch        func(ctx context.Context, cancel context.CancelFunc) (domain.Payload, error)
		dbErr        error
		pubErr       error
		wantErr      error
		wantStatus   string
		wantRecorded bool
	}{
		{
			name: "succeeded",
			fetch: func(ctx context.Context, _ context.CancelFunc) (domain.Payload, error) {
				return players(ctx)
			},
			wantStatus:   "succeeded",
			wantRecorded: true,
		},
		{
			name: "failed",
			fetch: func(context.Context, context.CancelFunc) (domain.Payload, error) {
				return nil, errUpstream
			},
			wantErr:      domain.ErrUpstreamRequest,
			wantStatus:   "failed",
			wantRecorded: true,
		},
		{
			name: "cancelled mid-run",
			fetch: func(ctx context.Context, cancel context.CancelFunc) (domain.Payload, error) {
				cancel()
				return nil, ctx.Err()
			},
			wantErr:      context.Canceled,
			wantStatus:   "failed",
			wantRecorded: true,
		},
		{
			name: "side channel errors keep the result",
			fetch: func(ctx context.Context, _ context.CancelFunc) (domain.Payload, error) {
				return players(ctx)
			},
			dbErr:  errors.New("connection reset"),
			pubErr: errors.New("queue unavailable"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			db := &historyDB{err: tt.dbErr}
			pub := &queuePublisher{err: tt.pubErr}
			a := newRecordingApp(func(ctx context.Context) (domain.Payload, error) {
				return tt.fetch(ctx, cancel)
			}, db, pub)

			report, err := a.Run(ctx)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, report)
			} else {
				require.NoError(t, err)
				assert.Len(t, report.Results.Rows, 2)
			}

			if !tt.wantRecorded {
				assert.Empty(t, db.execs)
				assert.Empty(t, pub.events)
				return
			}

			require.Len(t, db.execs, 2, "start and finish")
			assert.Equal(t, "run-1", db.execs[0][0])
			finish := db.execs[1]
			assert.Equal(t, tt.wantStatus, finish[0])
			assert.Equal(t, "run-1", finish[len(finish)-1])

			require.Len(t, pub.events, 1)
			event := pub.events[0]
			assert.Equal(t, "run-1", event.RunID)
			assert.Equal(t, tt.wantStatus, event.Status)

			if tt.wantErr == nil {
				assert.Contains(t, finish, "s3://nbadatalake/sportsdata-1.json")
				assert.Contains(t, finish, 2)
				assert.Equal(t, "s3://nbadatalake/sportsdata-1.json", event.Location)
				assert.Equal(t, 2, event.Rows)
			} else {
				assert.Contains(t, finish, err.Error())
				assert.Equal(t, err.Error(), event.Error)
			}
		})
	}
}
