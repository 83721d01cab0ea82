package storage

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/infrastructure/config"
)

type mockS3 struct {
	mock.Mock
	body []byte
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if in.Body != nil {
		m.body, _ = io.ReadAll(in.Body)
	}
	args := m.Called(ctx, in)
	return &s3.PutObjectOutput{}, args.Error(0)
}

func (m *mockS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	args := m.Called(ctx, in)
	return &s3.HeadBucketOutput{}, args.Error(0)
}

func (m *mockS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	args := m.Called(ctx, in)
	return &s3.CreateBucketOutput{}, args.Error(0)
}

func fixedArchiver(client s3API, prefix string) *S3Archiver {
	a := newS3Archiver(client, "meter-archive", prefix, zap.NewNop())
	a.now = func() time.Time { return time.Date(2026, 10, 15, 23, 30, 0, 0, time.FixedZone("EST", -5*3600)) }
	return a
}

func TestS3Archiver_Archive(t *testing.T) {
	t.Run("puts the upload under a dated key", func(t *testing.T) {
		client := new(mockS3)
		client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
			return aws.ToString(in.Bucket) == "meter-archive" &&
				aws.ToString(in.ContentType) == "text/csv" &&
				in.Metadata["utility-kind"] == "Power"
		})).Return(nil)

		key, err := fixedArchiver(client, "prod").Archive(context.Background(), billing.UtilityPower, "../march readings.csv", []byte("unitId,timestamp,usage\n"))
		require.NoError(t, err)

		assert.Regexp(t, `^prod/meter-uploads/power/2026/10/16/[0-9a-f-]{36}-march_readings\.csv$`, key)
		assert.Equal(t, "unitId,timestamp,usage\n", string(client.body))
		client.AssertExpectations(t)
	})

	t.Run("wraps put failures", func(t *testing.T) {
		client := new(mockS3)
		client.On("PutObject", mock.Anything, mock.Anything).Return(errors.New("access denied"))

		_, err := fixedArchiver(client, "").Archive(context.Background(), billing.UtilityWater, "w.csv", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access denied")
	})

	t.Run("falls back to a default name", func(t *testing.T) {
		a := fixedArchiver(new(mockS3), "")
		assert.Regexp(t, `^meter-uploads/water/2026/10/16/[0-9a-f-]{36}-upload\.csv$`, a.objectKey(billing.UtilityWater, ""))
	})
}

func TestS3Archiver_EnsureBucket(t *testing.T) {
	t.Run("existing bucket", func(t *testing.T) {
		client := new(mockS3)
		client.On("HeadBucket", mock.Anything, mock.Anything).Return(nil)
		require.NoError(t, fixedArchiver(client, "").EnsureBucket(context.Background()))
		client.AssertNotCalled(t, "CreateBucket", mock.Anything, mock.Anything)
	})

	t.Run("creates a missing bucket", func(t *testing.T) {
		client := new(mockS3)
		client.On("HeadBucket", mock.Anything, mock.Anything).Return(&types.NotFound{})
		client.On("CreateBucket", mock.Anything, mock.Anything).Return(nil)
		require.NoError(t, fixedArchiver(client, "").EnsureBucket(context.Background()))
		client.AssertExpectations(t)
	})

	t.Run("tolerates a concurrent create", func(t *testing.T) {
		client := new(mockS3)
		client.On("HeadBucket", mock.Anything, mock.Anything).Return(&types.NoSuchBucket{})
		client.On("CreateBucket", mock.Anything, mock.Anything).Return(&types.BucketAlreadyOwnedByYou{})
		require.NoError(t, fixedArchiver(client, "").EnsureBucket(context.Background()))
	})

	t.Run("reports other errors", func(t *testing.T) {
		client := new(mockS3)
		client.On("HeadBucket", mock.Anything, mock.Anything).Return(errors.New("forbidden"))
		assert.Error(t, fixedArchiver(client, "").EnsureBucket(context.Background()))
	})
}

func TestNewS3Archiver(t *testing.T) {
	t.Run("requires a bucket", func(t *testing.T) {
		_, err := NewS3Archiver(context.Background(), config.StorageConfig{}, zap.NewNop())
		assert.Error(t, err)
	})

	t.Run("builds a client for a custom endpoint", func(t *testing.T) {
		a, err := NewS3Archiver(context.Background(), config.StorageConfig{
			Bucket:          "meter-archive",
			Endpoint:        "minio.local:9000",
			AccessKeyID:     "key",
			SecretAccessKey: "secret",
			UsePathStyle:    true,
			KeyPrefix:       "dev",
		}, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "dev/", a.prefix)
	})

	assert.Equal(t, "https://s3.example.com", normalizeEndpoint("s3.example.com"))
	assert.Equal(t, "http://localhost:9000", normalizeEndpoint("http://localhost:9000"))
}

func TestMemoryArchiver(t *testing.T) {
	m := NewMemoryArchiver()
	data := []byte("a,b,c")
	key, err := m.Archive(context.Background(), billing.UtilityPower, "x.csv", data)
	require.NoError(t, err)
	data[0] = 'z'

	got, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, "a,b,c", string(got))
}
