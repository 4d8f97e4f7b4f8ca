package sentry

import (
	"fmt"
	"net/url"
	"strings"
)

const clientName = "blueberry-sentry-forwarder/1.0"

// DSN identifies one Sentry project ingestion endpoint, parsed from the
// usual https://PUBLICKEY@HOST/PROJECT form.
type DSN struct {
	publicKey string
	projectID string
	storeURL  string
	baseURL   string
}

// ParseDSN validates and splits a Sentry DSN.
func ParseDSN(raw string) (*DSN, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid DSN: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid DSN scheme: %q", u.Scheme)
	}
	if u.User == nil || u.User.Username() == "" {
		return nil, fmt.Errorf("DSN is missing a public key: %s", raw)
	}
	projectID := strings.Trim(u.Path, "/")
	if projectID == "" || strings.Contains(projectID, "/") {
		return nil, fmt.Errorf("DSN is missing a project ID: %s", raw)
	}

	return &DSN{
		publicKey: u.User.Username(),
		projectID: projectID,
		storeURL:  fmt.Sprintf("%s://%s/api/%s/store/", u.Scheme, u.Host, projectID),
		baseURL:   fmt.Sprintf("%s://%s/", u.Scheme, u.Host),
	}, nil
}

// StoreURL returns the event submission endpoint.
func (d *DSN) StoreURL() string { return d.storeURL }

// AuthHeader returns the X-Sentry-Auth header value for this project.
func (d *DSN) AuthHeader() string {
	return fmt.Sprintf("Sentry sentry_version=7, sentry_client=%s, sentry_key=%s",
		clientName, d.publicKey)
}
