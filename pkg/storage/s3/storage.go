package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/srich36/blueberry-sentry-forwarder/pkg/models"
	"github.com/srich36/blueberry-sentry-forwarder/pkg/storage"
)

// Storage implements an S3 backend for undelivered and archived events
type Storage struct {
	config    storage.Config
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// NewStorage creates a new S3 storage backend
func NewStorage(cfg storage.Config, awsCfg aws.Config) (*Storage, error) {
	client := s3.NewFromConfig(awsCfg)

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid S3 URL: %w", err)
	}

	bucket := ""
	keyPrefix := ""

	if strings.Contains(u.Host, ".s3.") || strings.Contains(u.Host, ".s3-") {
		// Virtual-hosted-style URL: bucket.s3.region.amazonaws.com
		parts := strings.Split(u.Host, ".")
		if len(parts) > 0 {
			bucket = parts[0]
		}
		keyPrefix = strings.Trim(u.Path, "/")
	} else {
		// Path-style URL: s3.region.amazonaws.com/bucket
		pathParts := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)
		if len(pathParts) > 0 {
			bucket = pathParts[0]
		}
		if len(pathParts) > 1 {
			keyPrefix = pathParts[1]
		}
	}

	if bucket == "" {
		return nil, fmt.Errorf("could not parse bucket name from URL: %s", cfg.URL)
	}

	return &Storage{
		config:    cfg,
		client:    client,
		bucket:    bucket,
		keyPrefix: keyPrefix,
	}, nil
}

// Store writes the events as one gzipped NDJSON object
func (s *Storage) Store(ctx context.Context, events []*models.SentryEvent) error {
	var buf bytes.Buffer
	gz, _ := gzip.NewWriterLevel(&buf, gzip.BestCompression)

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			slog.Error("failed to marshal event for storage", "error", err)
			continue
		}
		if _, err := gz.Write(data); err != nil {
			slog.Error("failed to write to gzip", "error", err)
		}
		gz.Write([]byte("\n"))
	}
	gz.Close()

	// key is prefix/year/month/day/hour/timestamp-uuid.json.gz
	now := time.Now()
	key := fmt.Sprintf("%s/%d/%02d/%02d/%02d/%s-%s.json.gz",
		s.keyPrefix,
		now.Year(),
		now.Month(),
		now.Day(),
		now.Hour(),
		now.Format("2006-01-02T15:04:05.000Z"),
		uuid.New().String(),
	)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	slog.Info("stored events to S3", "count", len(events), "bucket", s.bucket, "key", key)
	return nil
}

// Close cleans up resources
func (s *Storage) Close() error {
	return nil
}
