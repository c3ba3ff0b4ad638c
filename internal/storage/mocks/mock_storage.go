// Package mocks provides mock implementations for testing
package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"sportsdatalake/internal/storage"
)

// MockObjectStorage is a mock implementation of ObjectStorage interface.
// The reader passed to Put is drained into Bodies so tests can inspect
// what was written.
type MockObjectStorage struct {
	mock.Mock
	Bodies map[string][]byte
}

// Put mocks the Put method
func (m *MockObjectStorage) Put(ctx context.Context, bucket, key string, reader io.Reader, metadata storage.ObjectMetadata) error {
	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if m.Bodies == nil {
		m.Bodies = make(map[string][]byte)
	}
	m.Bodies[bucket+"/"+key] = body

	args := m.Called(ctx, bucket, key, metadata)
	return args.Error(0)
}
