// Package s3 implements storage.ObjectStorage on AWS S3.
package s3

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"sportsdatalake/internal/observability"
	"sportsdatalake/internal/storage"
)

// API is the subset of the S3 client used here.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client implements the ObjectStorage interface for AWS S3
type Client struct {
	s3Client API
	logger   observability.Logger
	metrics  observability.Metrics
}

// NewClient creates a new S3 storage client
func NewClient(s3Client API, logger observability.Logger, metrics observability.Metrics) *Client {
	return &Client{
		s3Client: s3Client,
		logger:   logger,
		metrics:  metrics,
	}
}

// Put stores an object in S3 with a single PutObject call
func (c *Client) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata storage.ObjectMetadata) error {
	start := time.Now()
	defer func() {
		c.metrics.RecordDuration("s3_put", time.Since(start).Seconds())
	}()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String(metadata.ContentType),
	}

	// Add optional metadata
	if metadata.ContentLength > 0 {
		input.ContentLength = aws.Int64(metadata.ContentLength)
	}
	if len(metadata.UserMetadata) > 0 {
		input.Metadata = metadata.UserMetadata
	}

	out, err := c.s3Client.PutObject(ctx, input)
	if err != nil {
		c.logger.Error(ctx, "failed to put object", err, observability.Fields{
			"bucket": bucket,
			"key":    key,
		})
		return fmt.Errorf("failed to put object: %w", err)
	}

	c.logger.Debug(ctx, "object stored successfully", observability.Fields{
		"bucket": bucket,
		"key":    key,
		"etag":   aws.ToString(out.ETag),
	})

	return nil
}
