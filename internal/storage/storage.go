// Package storage defines the object store port used by the uploader.
package storage

import (
	"context"
	"io"
)

// ObjectStorage abstracts the object store so the uploader can be tested
// without S3.
type ObjectStorage interface {
	// Put stores an object in the specified bucket with the given key
	Put(ctx context.Context, bucket, key string, reader io.Reader, metadata ObjectMetadata) error
}

// ObjectMetadata carries the headers written with an object
type ObjectMetadata struct {
	ContentType   string
	ContentLength int64
	UserMetadata  map[string]string
}
