// Package archive stores raw log shipments in S3-compatible object storage
// before normalization, so the original payloads survive retention pruning.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds the object storage settings for raw payload archival.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// S3Archiver writes each ingest payload as one object, keyed by receive date
// and a random suffix.
type S3Archiver struct {
	client *s3.Client
	bucket string
	logger zerolog.Logger
}

func NewS3Archiver(cfg Config, logger zerolog.Logger) *S3Archiver {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(cfg.Endpoint),
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	})
	return &S3Archiver{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With().Str("component", "archive").Logger(),
	}
}

// Archive stores the raw payload under logs/<yyyy>/<mm>/<dd>/<ts>-<uuid>.json.
func (a *S3Archiver) Archive(ctx context.Context, receivedAt time.Time, raw []byte) error {
	key := fmt.Sprintf("logs/%s/%d-%s.json",
		receivedAt.UTC().Format("2006/01/02"),
		receivedAt.UnixNano(),
		uuid.NewString(),
	)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive payload to s3: %w", err)
	}
	a.logger.Debug().Str("key", key).Int("bytes", len(raw)).Msg("archived raw payload")
	return nil
}
