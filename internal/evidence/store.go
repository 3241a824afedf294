// Package evidence uploads a snapshot of every frame that produced saved
// behavior events to S3-compatible object storage.
package evidence

import (
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/examwatch/examwatch/internal/conf"
	"github.com/examwatch/examwatch/internal/errors"
	"github.com/examwatch/examwatch/internal/privacy"
)

// ObjectStore is the part of an object storage client the uploader needs.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
}

// MinioStore is an ObjectStore backed by minio-go.
type MinioStore struct {
	client *minio.Client
	region string
}

// NewMinioStore creates a client for the configured endpoint. No network
// traffic happens until the first call.
func NewMinioStore(settings *conf.EvidenceSettings) (*MinioStore, error) {
	client, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: settings.UseSSL,
		Region: settings.Region,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("evidence").
			Category(errors.CategoryConfiguration).
			Context("endpoint", settings.Endpoint).
			Build()
	}
	return &MinioStore{client: client, region: settings.Region}, nil
}

// EnsureBucket creates bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return storageError(err, "bucket_exists", bucket)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return storageError(err, "make_bucket", bucket)
	}
	return nil
}

// Put uploads one object.
func (s *MinioStore) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return storageError(err, "put_object", bucket)
	}
	return nil
}

// storageError categorizes err with URLs in its message redacted; minio
// errors can carry presigned request URLs.
func storageError(err error, op, bucket string) error {
	return errors.New(privacy.WrapError(err)).
		Component("evidence").
		Category(errors.CategoryEvidence).
		Context("operation", op).
		Context("bucket", bucket).
		Build()
}
