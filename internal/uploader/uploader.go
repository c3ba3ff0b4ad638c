// Package uploader writes fetched payloads to the object store.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sportsdatalake/internal/config"
	"sportsdatalake/internal/domain"
	"sportsdatalake/internal/observability"
	"sportsdatalake/internal/storage"
)

const contentType = "application/json"

// Uploader stores a payload as a timestamped JSON object.
type Uploader struct {
	storage storage.ObjectStorage
	config  config.StorageConfig
	logger  observability.Logger
	metrics observability.Metrics
	now     func() time.Time
}

// Option customizes an Uploader.
type Option func(*Uploader)

// WithClock replaces the clock used to build object keys.
func WithClock(now func() time.Time) Option {
	return func(u *Uploader) { u.now = now }
}

// New creates an Uploader.
func New(store storage.ObjectStorage, cfg config.StorageConfig, logger observability.Logger, metrics observability.Metrics, opts ...Option) *Uploader {
	u := &Uploader{
		storage: store,
		config:  cfg,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ObjectKey builds the key for an upload at t. Two uploads in the same
// millisecond collide.
func ObjectKey(prefix string, t time.Time) string {
	return fmt.Sprintf("%ssportsdata-%d.json", prefix, t.UnixMilli())
}

// Location returns the s3:// URI of an object.
func Location(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// Upload serializes payload to compact JSON text and writes it with a
// single Put. There is no retry and no existing-object check.
func (u *Uploader) Upload(ctx context.Context, payload domain.Payload) (domain.StoredObject, error) {
	u.metrics.StartOperation("upload")
	defer u.metrics.EndOperation("upload")
	startTime := time.Now()
	defer func() {
		u.metrics.RecordDuration("upload", time.Since(startTime).Seconds())
	}()

	var body bytes.Buffer
	if err := json.Compact(&body, payload); err != nil {
		u.metrics.RecordError("upload", "serialization")
		return domain.StoredObject{}, domain.StorageWriteError(fmt.Errorf("failed to serialize payload: %w", err))
	}

	uploadedAt := u.now()
	key := ObjectKey(u.config.KeyPrefix, uploadedAt)
	size := int64(body.Len())

	metadata := storage.ObjectMetadata{
		ContentType:   contentType,
		ContentLength: size,
	}
	if runID, ok := observability.RunID(ctx); ok {
		metadata.UserMetadata = map[string]string{"run-id": runID}
	}

	// S3 needs a seekable body to sign requests over plain HTTP endpoints
	err := u.storage.Put(ctx, u.config.Bucket, key, bytes.NewReader(body.Bytes()), metadata)
	if err != nil {
		u.metrics.RecordError("upload", domain.ErrorType(err))
		u.logger.Error(ctx, "Error uploading to S3", err, observability.Fields{
			"bucket": u.config.Bucket,
			"key":    key,
		})
		return domain.StoredObject{}, domain.StorageWriteError(err)
	}

	obj := domain.StoredObject{
		Bucket:     u.config.Bucket,
		Key:        key,
		Location:   Location(u.config.Bucket, key),
		Size:       size,
		UploadedAt: uploadedAt,
	}

	u.metrics.RecordFileSize("json", size)
	u.metrics.RecordSuccess("upload")
	u.logger.Info(ctx, "File uploaded to S3", observability.Fields{
		"location": obj.Location,
		"bytes":    size,
	})

	return obj, nil
}
