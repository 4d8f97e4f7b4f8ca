// Package sentry delivers canonical events to one or more Sentry projects,
// with health-checked connections and storage fallback.
package sentry

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/srich36/blueberry-sentry-forwarder/pkg/models"
	"github.com/srich36/blueberry-sentry-forwarder/pkg/storage"
)

// Config holds delivery client configuration
type Config struct {
	DSNs            []string
	TLSSkipVerify   bool
	Proxy           string
	Timeout         time.Duration
	BalanceStrategy string // first_available, sticky, random, roundrobin
	HealthInterval  time.Duration
}

const (
	FirstAvailable = 1
	Sticky         = 2
	Random         = 3
	RoundRobin     = 4
)

const defaultTimeout = 10 * time.Second

// Client manages connections to the configured DSNs and delivers events.
// Events that cannot be delivered go to failure storage; every event is
// teed to cold storage when one is configured.
type Client struct {
	config          Config
	connections     []*connection
	failureStorage  storage.Backend
	coldStorage     storage.Backend
	balanceStrategy uint8
	count           int
}

type connection struct {
	dsn        *DSN
	httpClient *http.Client
	isHealthy  bool
}

// NewClient creates a delivery client. failureStorage and coldStorage may
// be nil.
func NewClient(cfg Config, failureStorage, coldStorage storage.Backend) (*Client, error) {
	client := &Client{
		config:         cfg,
		failureStorage: failureStorage,
		coldStorage:    coldStorage,
	}

	switch cfg.BalanceStrategy {
	case "first_available", "":
		client.balanceStrategy = FirstAvailable
	case "sticky":
		client.balanceStrategy = Sticky
	case "random":
		client.balanceStrategy = Random
	case "roundrobin":
		client.balanceStrategy = RoundRobin
	default:
		slog.Warn("unknown balance strategy, using first_available", "strategy", cfg.BalanceStrategy)
		client.balanceStrategy = FirstAvailable
	}

	for _, raw := range cfg.DSNs {
		conn, err := newConnection(raw, cfg)
		if err != nil {
			slog.Error("skipping DSN", "error", err)
			continue
		}
		client.connections = append(client.connections, conn)
		go conn.healthCheck(cfg.HealthInterval)
	}

	if len(client.connections) == 0 {
		return nil, fmt.Errorf("no valid sentry DSNs configured")
	}

	return client, nil
}

func newConnection(rawDSN string, cfg Config) (*connection, error) {
	dsn, err := ParseDSN(rawDSN)
	if err != nil {
		return nil, err
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify},
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	conn := &connection{
		dsn: dsn,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
	conn.updateHealth()

	return conn, nil
}

// updateHealth probes the ingest host. Any HTTP response counts as healthy;
// only transport-level failures mark the connection down.
func (c *connection) updateHealth() {
	resp, err := c.httpClient.Get(c.dsn.baseURL)
	if err != nil {
		c.isHealthy = false
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	c.isHealthy = true
}

func (c *connection) healthCheck(interval time.Duration) {
	if interval == 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		c.updateHealth()
	}
}

// send posts one event to the project store endpoint.
func (c *connection) send(ctx context.Context, event *models.SentryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.dsn.StoreURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sentry-Auth", c.dsn.AuthHeader())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sentry store returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}

// SendEvents delivers each event independently, with no retry. Events that
// fail are handed to failure storage when one is configured.
func (c *Client) SendEvents(ctx context.Context, events []*models.SentryEvent) error {
	if c.coldStorage != nil {
		if err := c.coldStorage.Store(ctx, events); err != nil {
			slog.Error("failed to tee events to cold storage", "error", err)
		}
	}

	for _, event := range events {
		if event.EventID == "" {
			event.EventID = strings.ReplaceAll(uuid.New().String(), "-", "")
		}
	}

	conn := c.getConnection()
	if conn == nil {
		slog.Warn("no healthy sentry connection available")
		if c.failureStorage != nil {
			return c.failureStorage.Store(ctx, events)
		}
		return fmt.Errorf("no healthy connections and no failure storage configured")
	}

	var failed []*models.SentryEvent
	var lastErr error
	for _, event := range events {
		if err := conn.send(ctx, event); err != nil {
			slog.Error("failed to deliver event", "event_id", event.EventID, "error", err)
			failed = append(failed, event)
			lastErr = err
		}
	}

	if len(failed) > 0 {
		if c.failureStorage != nil {
			if err := c.failureStorage.Store(ctx, failed); err != nil {
				slog.Error("failed to store undelivered events", "error", err)
			}
		}
		return fmt.Errorf("delivery failed for %d of %d events: %w", len(failed), len(events), lastErr)
	}
	return nil
}

func (c *Client) getConnection() *connection {
	switch c.balanceStrategy {
	case FirstAvailable:
		return c.getFirstAvailable()
	case Sticky:
		return c.getSticky()
	case Random:
		return c.getRandom()
	case RoundRobin:
		return c.getRoundRobin()
	default:
		return c.getFirstAvailable()
	}
}

func (c *Client) getFirstAvailable() *connection {
	for _, conn := range c.connections {
		if conn.isHealthy {
			return conn
		}
	}
	return nil
}

func (c *Client) getSticky() *connection {
	if c.count >= len(c.connections) {
		c.count = 0
	}
	conn := c.connections[c.count]
	if conn.isHealthy {
		return conn
	}
	return c.getFirstAvailable()
}

func (c *Client) getRandom() *connection {
	healthy := make([]*connection, 0, len(c.connections))
	for _, conn := range c.connections {
		if conn.isHealthy {
			healthy = append(healthy, conn)
		}
	}
	if len(healthy) == 0 {
		return nil
	}
	return healthy[rand.Intn(len(healthy))]
}

func (c *Client) getRoundRobin() *connection {
	for range c.connections {
		c.count = (c.count + 1) % len(c.connections)
		if c.connections[c.count].isHealthy {
			return c.connections[c.count]
		}
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	// Connections are closed automatically
	return nil
}
