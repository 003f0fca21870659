package export

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore uploads rendered exports and hands out presigned download URLs.
type MinIOStore struct {
	client *minio.Client
	bucket string
	ttl    time.Duration
}

func NewMinIOStore(endpoint, accessKey, secretKey, bucket string, useSSL bool, ttl time.Duration) (*MinIOStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &MinIOStore{client: client, bucket: bucket, ttl: ttl}, nil
}

// EnsureBucket creates the export bucket when it does not exist yet.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

func (s *MinIOStore) Upload(ctx context.Context, key string, result *Result) (string, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(result.Data), int64(len(result.Data)), minio.PutObjectOptions{
		ContentType: result.MimeType,
	})
	if err != nil {
		return "", fmt.Errorf("put export object: %w", err)
	}

	params := url.Values{}
	params.Set("response-content-disposition", fmt.Sprintf(`attachment; filename="%s"`, result.Filename))
	signed, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign export object: %w", err)
	}
	return signed.String(), nil
}
