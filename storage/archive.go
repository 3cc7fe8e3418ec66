package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"playlog/config"
)

// Archive writes every accepted raw event body to object storage for audit.
// It is optional; the collector runs without it when MinIO is not configured.
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive connects to MinIO and makes sure the archive bucket exists.
func NewArchive(cfg *config.Config) (*Archive, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create archive bucket: %w", err)
		}
	}

	return &Archive{client: client, bucket: cfg.MinioBucket}, nil
}

// Store archives one raw event body under a date-prefixed key.
func (a *Archive) Store(ctx context.Context, eventType string, body []byte) error {
	key := fmt.Sprintf("%s/%s-%s.json",
		time.Now().UTC().Format("2006/01/02"), eventType, uuid.New().String())

	_, err := a.client.PutObject(ctx, a.bucket, key,
		bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("archive event %s: %w", key, err)
	}
	return nil
}
