// Package awsclient builds the AWS SDK configuration and service clients
// once per process so every stage shares the same credentials and retries.
package awsclient

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"sportsdatalake/internal/config"
)

// Clients holds one client per AWS service used by the pipeline.
type Clients struct {
	S3      *s3.Client
	Glue    *glue.Client
	Athena  *athena.Client
	Logs    *cloudwatchlogs.Client
	Metrics *cloudwatch.Client
	SQS     *sqs.Client
}

// LoadConfig builds the AWS configuration from the pipeline settings.
// Static credentials are used only when both key parts are present; the
// default credential chain applies otherwise.
func LoadConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	if cfg.MaxRetries > 0 {
		optFns = append(optFns, awsconfig.WithRetryMaxAttempts(cfg.MaxRetries))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	return awsCfg, nil
}

// NewClients creates the service clients from a single AWS configuration.
func NewClients(awsCfg aws.Config, storage config.StorageConfig) *Clients {
	return &Clients{
		S3: s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.UsePathStyle = storage.UsePathStyle
		}),
		Glue:    glue.NewFromConfig(awsCfg),
		Athena:  athena.NewFromConfig(awsCfg),
		Logs:    cloudwatchlogs.NewFromConfig(awsCfg),
		Metrics: cloudwatch.NewFromConfig(awsCfg),
		SQS:     sqs.NewFromConfig(awsCfg),
	}
}
