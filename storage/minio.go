package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"musinotes/config"
	"musinotes/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore reads and writes objects in one bucket.
type MinioStore struct {
	client     *minio.Client
	bucketName string
}

// NewMinioStore connects to the endpoint and creates the bucket when missing.
func NewMinioStore(cfg config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		logger.Info("Created MinIO bucket", logger.String("bucket", cfg.Bucket))
	}

	logger.Info("MinIO client initialized",
		logger.String("endpoint", cfg.Endpoint),
		logger.String("bucket", cfg.Bucket))
	return &MinioStore{client: client, bucketName: cfg.Bucket}, nil
}

// Get returns the object body. found is false when the key does not exist.
func (m *MinioStore) Get(ctx context.Context, key string) (data []byte, found bool, err error) {
	object, err := m.client.GetObject(ctx, m.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer object.Close()

	// GetObject is lazy; Stat surfaces a missing key.
	if _, err := object.Stat(); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to stat object %s: %w", key, err)
	}

	data, err = io.ReadAll(object)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, true, nil
}

// Put uploads data under key.
func (m *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := m.client.PutObject(ctx, m.bucketName, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (m *MinioStore) Ping(ctx context.Context) error {
	_, err := m.client.BucketExists(ctx, m.bucketName)
	return err
}

// BucketName returns the bucket this store writes to.
func (m *MinioStore) BucketName() string {
	return m.bucketName
}
