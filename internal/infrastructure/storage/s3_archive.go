// Package storage archives raw meter-reading uploads in S3-compatible
// object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	billingapp "github.com/rentals/backend/internal/application/billing"
	"github.com/rentals/backend/internal/domain/billing"
	"github.com/rentals/backend/internal/infrastructure/config"
)

var _ billingapp.UploadArchiver = (*S3Archiver)(nil)

// s3API is the subset of the S3 client the archiver calls
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3Archiver stores each upload under
// {prefix}meter-uploads/{kind}/{yyyy}/{mm}/{dd}/{uuid}-{filename}
type S3Archiver struct {
	client s3API
	bucket string
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewS3Archiver creates an archiver from configuration. An empty endpoint
// means AWS itself; any other value points at an S3-compatible store.
func NewS3Archiver(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(normalizeEndpoint(cfg.Endpoint))
		}
	})
	return newS3Archiver(client, cfg.Bucket, cfg.KeyPrefix, logger), nil
}

func newS3Archiver(client s3API, bucket, prefix string, logger *zap.Logger) *S3Archiver {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix, logger: logger, now: time.Now}
}

func normalizeEndpoint(endpoint string) string {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	return "https://" + endpoint
}

// EnsureBucket creates the bucket if it doesn't exist
func (a *S3Archiver) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("Creating archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads data and returns its object key
func (a *S3Archiver) Archive(ctx context.Context, kind billing.UtilityKind, filename string, data []byte) (string, error) {
	key := a.objectKey(kind, filename)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
		Metadata: map[string]string{
			"utility-kind":      kind.String(),
			"original-filename": filename,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive upload: %w", err)
	}
	a.logger.Debug("Meter upload archived", zap.String("bucket", a.bucket), zap.String("key", key), zap.Int("bytes", len(data)))
	return key, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (a *S3Archiver) objectKey(kind billing.UtilityKind, filename string) string {
	name := unsafeName.ReplaceAllString(path.Base(filename), "_")
	if name == "" || name == "." || name == "_" {
		name = "upload.csv"
	}
	day := a.now().UTC().Format("2006/01/02")
	return fmt.Sprintf("%smeter-uploads/%s/%s/%s-%s",
		a.prefix, strings.ToLower(kind.String()), day, uuid.NewString(), name)
}
