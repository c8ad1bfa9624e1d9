// Package blobstore provides blob storage adapters for processed images.
//
// This package includes:
//   - MinioStore: an S3-compatible object store adapter
//   - FSStore: a local filesystem adapter for dev runs and tests
//
// The BlobStore interface is defined in pkg/core. Keys are deterministic
// per item, so re-uploads after retries are idempotent.
package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aager/image-backfill/pkg/core"
)

// MinioConfig addresses an S3-compatible object store.
type MinioConfig struct {
	Endpoint      string
	Bucket        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string
}

// MinioStore implements core.BlobStore on an S3-compatible object store.
type MinioStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinioStore creates a MinIO-backed blob store.
func NewMinioStore(cfg MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client for %s: %w", cfg.Endpoint, err)
	}
	return &MinioStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket check %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put uploads the payload under key. Re-uploading the same key replaces
// the object, so retries converge on the same final state.
func (s *MinioStore) Put(ctx context.Context, key string, payload core.ImagePayload) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key,
		bytes.NewReader(payload.Data), int64(len(payload.Data)),
		minio.PutObjectOptions{ContentType: payload.ContentType})
	if err != nil {
		return "", core.Transient("upload_failed", err)
	}
	return s.ref(key), nil
}

// ref builds the stable reference written back to the catalog.
func (s *MinioStore) ref(key string) string {
	if s.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, s.bucket, key)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key)
}
