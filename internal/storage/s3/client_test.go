package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	obmocks "sportsdatalake/internal/observability/mocks"
	"sportsdatalake/internal/storage"
)

type mockS3API struct {
	mock.Mock
}

func (m *mockS3API) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, params)
	if out, ok := args.Get(0).(*s3.PutObjectOutput); ok {
		return out, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestClient_Put(t *testing.T) {
	api := &mockS3API{}
	api.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		body, _ := io.ReadAll(in.Body)
		return aws.ToString(in.Bucket) == "nbadatalake" &&
			aws.ToString(in.Key) == "sportsdata-1.json" &&
			aws.ToString(in.ContentType) == "application/json" &&
			aws.ToInt64(in.ContentLength) == 2 &&
			in.Metadata["run-id"] == "run-1" &&
			string(body) == "{}"
	})).Return(&s3.PutObjectOutput{ETag: aws.String(`"etag"`)}, nil)

	client := NewClient(api, obmocks.NewNopLogger(), obmocks.NewNopMetrics())
	err := client.Put(context.Background(), "nbadatalake", "sportsdata-1.json", strings.NewReader("{}"), storage.ObjectMetadata{
		ContentType:   "application/json",
		ContentLength: 2,
		UserMetadata:  map[string]string{"run-id": "run-1"},
	})

	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestClient_PutError(t *testing.T) {
	api := &mockS3API{}
	api.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("AccessDenied"))

	client := NewClient(api, obmocks.NewNopLogger(), obmocks.NewNopMetrics())
	err := client.Put(context.Background(), "nbadatalake", "k", strings.NewReader("{}"), storage.ObjectMetadata{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to put object")
	assert.Contains(t, err.Error(), "AccessDenied")
}
