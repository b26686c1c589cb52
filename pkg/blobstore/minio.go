package blobstore

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config holds configuration for the proof object store
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Store persists payment proof files
type Store interface {
	Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error
}

// MinioStore implements Store on a minio/S3-compatible backend
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore creates a new minio-backed proof store
func NewMinioStore(config Config) (*MinioStore, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	return &MinioStore{
		client: client,
		bucket: config.Bucket,
	}, nil
}

// Put uploads an object. The caller bounds the upload with a context
// deadline; a deadline exceeded is returned unwrapped so callers can
// distinguish timeouts from storage faults.
func (s *MinioStore) Put(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectKey, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to store object %s: %w", objectKey, err)
	}

	return nil
}
