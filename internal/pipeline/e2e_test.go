package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"sportsdatalake/internal/catalog"
	"sportsdatalake/internal/config"
	"sportsdatalake/internal/fetcher"
	"sportsdatalake/internal/observability"
	"sportsdatalake/internal/query"
	stmocks "sportsdatalake/internal/storage/mocks"
	"sportsdatalake/internal/uploader"
)

type instantTimer struct{}

func (instantTimer) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

type fakeGlue struct {
	states []gluetypes.CrawlerState
	polls  int
}

func (f *fakeGlue) CreateDatabase(context.Context, *glue.CreateDatabaseInput, ...func(*glue.Options)) (*glue.CreateDatabaseOutput, error) {
	return &glue.CreateDatabaseOutput{}, nil
}

func (f *fakeGlue) CreateCrawler(context.Context, *glue.CreateCrawlerInput, ...func(*glue.Options)) (*glue.CreateCrawlerOutput, error) {
	return &glue.CreateCrawlerOutput{}, nil
}

func (f *fakeGlue) UpdateCrawler(context.Context, *glue.UpdateCrawlerInput, ...func(*glue.Options)) (*glue.UpdateCrawlerOutput, error) {
	return &glue.UpdateCrawlerOutput{}, nil
}

func (f *fakeGlue) StartCrawler(context.Context, *glue.StartCrawlerInput, ...func(*glue.Options)) (*glue.StartCrawlerOutput, error) {
	return &glue.StartCrawlerOutput{}, nil
}

func (f *fakeGlue) GetCrawler(context.Context, *glue.GetCrawlerInput, ...func(*glue.Options)) (*glue.GetCrawlerOutput, error) {
	state := f.states[min(f.polls, len(f.states)-1)]
	f.polls++
	return &glue.GetCrawlerOutput{Crawler: &gluetypes.Crawler{State: state}}, nil
}

type fakeAthena struct{}

func (fakeAthena) StartQueryExecution(context.Context, *athena.StartQueryExecutionInput, ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("q-e2e")}, nil
}

func (fakeAthena) GetQueryExecution(context.Context, *athena.GetQueryExecutionInput, ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	return &athena.GetQueryExecutionOutput{QueryExecution: &athenatypes.QueryExecution{
		Status:        &athenatypes.QueryExecutionStatus{State: athenatypes.QueryExecutionStateSucceeded},
		StatementType: athenatypes.StatementTypeDml,
	}}, nil
}

func (fakeAthena) GetQueryResults(context.Context, *athena.GetQueryResultsInput, ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	return &athena.GetQueryResultsOutput{ResultSet: &athenatypes.ResultSet{
		ResultSetMetadata: &athenatypes.ResultSetMetadata{ColumnInfo: []athenatypes.ColumnInfo{{Name: aws.String("id")}}},
		Rows: []athenatypes.Row{
			{Data: []athenatypes.Datum{{VarCharValue: aws.String("id")}}},
			{Data: []athenatypes.Datum{{VarCharValue: aws.String("1")}}},
		},
	}}, nil
}

func TestPipeline_EndToEnd(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"players":[{"id":1}]}`))
	}))
	defer api.Close()

	var logs bytes.Buffer
	provider := observability.NewProvider(&observability.Config{
		ServiceName: "sportsdata-pipeline",
		Environment: "test",
		LogLevel:    "info",
		LogOutput:   &logs,
	})

	store := &stmocks.MockObjectStorage{}
	store.On("Put", mock.Anything, "nbadatalake", mock.Anything, mock.Anything).Return(nil)

	glueAPI := &fakeGlue{states: []gluetypes.CrawlerState{gluetypes.CrawlerStateRunning, gluetypes.CrawlerStateReady}}
	catalogCfg := config.CatalogConfig{
		DatabaseName:    "sportsdata_db",
		CrawlerName:     "sportsdata-crawler",
		TablePrefix:     "sports_",
		SourcePath:      "s3://nbadatalake/",
		PollInterval:    10 * time.Second,
		PollMaxAttempts: 5,
	}
	queryCfg := config.QueryConfig{PollInterval: 5 * time.Second, PollMaxAttempts: 5}

	stages := Stages{
		Fetcher: fetcher.New(api.Client(), config.SportsAPIConfig{
			URL:       api.URL,
			APIKey:    "test-key",
			KeyHeader: "Ocp-Apim-Subscription-Key",
			Timeout:   5 * time.Second,
		}, provider.Logger("fetcher"), provider.Metrics("fetcher")),
		Uploader: uploader.New(store, config.StorageConfig{Bucket: "nbadatalake"},
			provider.Logger("uploader"), provider.Metrics("uploader")),
		Catalog: catalog.New(glueAPI, catalogCfg, provider.Logger("catalog"), provider.Metrics("catalog"),
			catalog.WithTimer(instantTimer{})),
		Query: query.New(fakeAthena{}, queryCfg, provider.Logger("query"), provider.Metrics("query"),
			query.WithTimer(instantTimer{})),
	}
	p := New(stages, Settings{
		SQL:              `SELECT * FROM "sportsdata_db"."sports_nbadatalake" LIMIT 10;`,
		Database:         "sportsdata_db",
		OutputLocation:   "s3://nbadatalake/athena-results/",
		SourcePath:       "s3://nbadatalake/",
		ValidateLocation: true,
	}, provider.Logger("pipeline"), provider.Metrics("pipeline"))

	report, err := p.Run(context.Background())

	require.NoError(t, err)
	require.NoError(t, provider.Close())
	assert.Equal(t, 2, glueAPI.polls)
	assert.Equal(t, [][]string{{"1"}}, report.Results.Rows)
	require.Len(t, store.Bodies, 1)
	for _, body := range store.Bodies {
		assert.JSONEq(t, `{"players":[{"id":1}]}`, string(body))
	}

	var found bool
	scanner := bufio.NewScanner(&logs)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		assert.Equal(t, report.RunID, entry["run_id"])
		if entry["message"] != "Athena Query Results" {
			continue
		}
		found = true
		results, ok := entry["results"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, []interface{}{[]interface{}{"1"}}, results["rows"])
	}
	assert.True(t, found, "results were not logged")
}
