package storage

import (
	"context"

	"github.com/srich36/blueberry-sentry-forwarder/pkg/models"
)

// Backend defines the interface for fallback and archive storage
type Backend interface {
	// Store saves events when delivery fails or for cold archival
	Store(ctx context.Context, events []*models.SentryEvent) error

	// Close cleans up resources
	Close() error
}

// Config holds common storage configuration
type Config struct {
	Provider   string // s3
	URL        string
	AccessKey  string
	SecretKey  string
	Region     string
	PathPrefix string
}
