package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	Environment string
	ServiceName string
	LogLevel    string
	Version     string

	// Component configurations
	SportsAPI     SportsAPIConfig
	AWS           AWSConfig
	Storage       StorageConfig
	Catalog       CatalogConfig
	Query         QueryConfig
	Pipeline      PipelineConfig
	Notify        NotifyConfig
	RunStore      RunStoreConfig
	Observability ObservabilityConfig
}

// SportsAPIConfig holds the upstream HTTP API configuration
type SportsAPIConfig struct {
	URL       string
	APIKey    string
	KeyHeader string
	Timeout   time.Duration
	UserAgent string
}

// AWSConfig holds credentials and client settings shared by every AWS client
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Endpoint        string // Only for local development (LocalStack)
	MaxRetries      int
}

// StorageConfig holds object store configuration
type StorageConfig struct {
	Bucket       string
	KeyPrefix    string
	UsePathStyle bool
}

// CatalogConfig holds the crawler definition and its polling policy
type CatalogConfig struct {
	DatabaseName        string
	DatabaseDescription string
	CrawlerName         string
	TablePrefix         string
	SourcePath          string
	RoleARN             string

	// ReuseExisting tolerates a database or crawler left by a previous run.
	ReuseExisting bool
	// SuccessStates is an allow-list of terminal crawler outcomes. Empty
	// means any state other than RUNNING counts as done.
	SuccessStates []string

	PollInterval    time.Duration
	PollMaxAttempts int
}

// QueryConfig holds query engine configuration
type QueryConfig struct {
	SQL             string
	Database        string
	OutputLocation  string
	WorkGroup       string
	PollInterval    time.Duration
	PollMaxAttempts int
}

// PipelineConfig holds cross-stage settings
type PipelineConfig struct {
	ValidateLocation bool
}

// Notify adapters
const (
	NotifyAdapterNone     = "none"
	NotifyAdapterSQS      = "sqs"
	NotifyAdapterRabbitMQ = "rabbitmq"
)

// NotifyConfig selects where run events are published
type NotifyConfig struct {
	Adapter     string
	Target      string // queue name, or a queue URL for SQS
	RabbitMQURL string
}

// RunStoreConfig holds the optional run history database
type RunStoreConfig struct {
	DSN          string // empty disables the history
	MaxOpenConns int
}

// ObservabilityConfig holds logging and metrics sinks
type ObservabilityConfig struct {
	LogProvider         string
	CloudWatchLogGroup  string
	CloudWatchNamespace string // empty disables CloudWatch metrics
	PushgatewayURL      string
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var errors []string

	if c.ServiceName == "" {
		errors = append(errors, "SERVICE_NAME is required")
	}
	if c.SportsAPI.URL == "" {
		errors = append(errors, "SPORTS_API_URL is required")
	}
	if c.SportsAPI.Timeout <= 0 {
		errors = append(errors, "HTTP_TIMEOUT must be positive")
	}
	if c.Storage.Bucket == "" {
		errors = append(errors, "S3_BUCKET is required")
	}
	if c.AWS.MaxRetries < 0 {
		errors = append(errors, "AWS_MAX_RETRIES cannot be negative")
	}

	if c.Catalog.DatabaseName == "" {
		errors = append(errors, "GLUE_DATABASE_NAME is required")
	}
	if c.Catalog.CrawlerName == "" {
		errors = append(errors, "GLUE_CRAWLER_NAME is required")
	}
	if !strings.HasPrefix(c.Catalog.SourcePath, "s3://") {
		errors = append(errors, "GLUE_CRAWLER_SOURCE_PATH must be an s3:// URI")
	}
	if c.Catalog.PollInterval <= 0 {
		errors = append(errors, "GLUE_POLL_INTERVAL must be positive")
	}
	if c.Catalog.PollMaxAttempts < 0 {
		errors = append(errors, "GLUE_POLL_MAX_ATTEMPTS cannot be negative")
	}

	if c.Query.SQL == "" {
		errors = append(errors, "ATHENA_QUERY is required")
	}
	if !strings.HasPrefix(c.Query.OutputLocation, "s3://") {
		errors = append(errors, "ATHENA_OUTPUT_LOCATION must be an s3:// URI")
	}
	if c.Query.PollInterval <= 0 {
		errors = append(errors, "ATHENA_POLL_INTERVAL must be positive")
	}
	if c.Query.PollMaxAttempts < 0 {
		errors = append(errors, "ATHENA_POLL_MAX_ATTEMPTS cannot be negative")
	}

	switch c.Notify.Adapter {
	case NotifyAdapterNone:
	case NotifyAdapterSQS, NotifyAdapterRabbitMQ:
		if c.Notify.Target == "" {
			errors = append(errors, "NOTIFY_TARGET is required when notifications are enabled")
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown NOTIFY_ADAPTER %q", c.Notify.Adapter))
	}

	if c.RunStore.DSN != "" && c.RunStore.MaxOpenConns <= 0 {
		errors = append(errors, "RUNSTORE_MAX_OPEN_CONNS must be positive")
	}

	switch c.Observability.LogProvider {
	case "console":
	case "cloudwatch":
		if c.Observability.CloudWatchLogGroup == "" {
			errors = append(errors, "OBSERVABILITY_CLOUDWATCH_LOG_GROUP is required for the cloudwatch log provider")
		}
	default:
		errors = append(errors, fmt.Sprintf("unknown OBSERVABILITY_LOG_PROVIDER %q", c.Observability.LogProvider))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// applyDefaults derives resource locations that depend on other settings
func (c *Config) applyDefaults() {
	if c.Catalog.SourcePath == "" {
		c.Catalog.SourcePath = fmt.Sprintf("s3://%s/", c.Storage.Bucket)
	}
	if c.Query.Database == "" {
		c.Query.Database = c.Catalog.DatabaseName
	}
	if c.Query.OutputLocation == "" {
		c.Query.OutputLocation = fmt.Sprintf("s3://%s/athena-results/", c.Storage.Bucket)
	}
	if c.Query.SQL == "" {
		c.Query.SQL = fmt.Sprintf(`SELECT * FROM "%s"."%s%s" LIMIT 10;`,
			c.Catalog.DatabaseName, c.Catalog.TablePrefix, c.Storage.Bucket)
	}
}
