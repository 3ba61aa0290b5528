package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	// Prefix is prepended to every object name.
	Prefix string
}

// Minio uploads documents to an S3-compatible bucket.
type Minio struct {
	client *minio.Client
	config MinioConfig
	logger zerolog.Logger
}

func NewMinio(cfg MinioConfig, logger zerolog.Logger) (*Minio, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "ackaudit"
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &Minio{
		client: client,
		config: cfg,
		logger: logger.With().Str("component", "minio_sink").Logger(),
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.config.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.config.Bucket, minio.MakeBucketOptions{Region: m.config.Region}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	m.logger.Info().Str("bucket", m.config.Bucket).Msg("created bucket")
	return nil
}

// Put uploads data as <prefix>/<uuid>/<name> and returns an s3:// locator.
func (m *Minio) Put(ctx context.Context, name string, data []byte) (string, error) {
	object := m.ObjectName(name)
	_, err := m.client.PutObject(ctx, m.config.Bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", object, err)
	}
	m.logger.Debug().Str("object", object).Int("bytes", len(data)).Msg("uploaded document")
	return fmt.Sprintf("s3://%s/%s", m.config.Bucket, object), nil
}

func (m *Minio) ObjectName(name string) string {
	return path.Join(m.config.Prefix, uuid.NewString(), CleanName(name))
}
