package sentry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/srich36/blueberry-sentry-forwarder/pkg/models"
)

func TestParseDSN(t *testing.T) {
	dsn, err := ParseDSN("https://abc123@o42.ingest.sentry.io/987")
	if err != nil {
		t.Fatalf("ParseDSN failed: %v", err)
	}
	if dsn.publicKey != "abc123" {
		t.Errorf("Expected public key 'abc123', got '%s'", dsn.publicKey)
	}
	if dsn.projectID != "987" {
		t.Errorf("Expected project ID '987', got '%s'", dsn.projectID)
	}
	if dsn.StoreURL() != "https://o42.ingest.sentry.io/api/987/store/" {
		t.Errorf("Unexpected store URL: %s", dsn.StoreURL())
	}
	if !strings.Contains(dsn.AuthHeader(), "sentry_key=abc123") {
		t.Errorf("Auth header is missing the key: %s", dsn.AuthHeader())
	}
}

func TestParseDSN_Invalid(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
	}{
		{"no key", "https://o42.ingest.sentry.io/987"},
		{"no project", "https://abc123@o42.ingest.sentry.io/"},
		{"bad scheme", "ftp://abc123@host/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDSN(tt.dsn); err == nil {
				t.Errorf("Expected error for DSN %q", tt.dsn)
			}
		})
	}
}

func TestNewClient_NoValidDSNs(t *testing.T) {
	client, err := NewClient(Config{DSNs: []string{"not-a-dsn"}}, nil, nil)
	if err == nil {
		t.Error("Expected error for no valid DSNs, got nil")
	}
	if client != nil {
		t.Error("Expected nil client for no valid DSNs")
	}
}

func TestClient_SendEvents(t *testing.T) {
	received := make(chan *http.Request, 4)
	var body models.SentryEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewDecoder(r.Body).Decode(&body)
			received <- r
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	dsn := strings.Replace(srv.URL, "http://", "http://testkey@", 1) + "/42"
	client, err := NewClient(Config{DSNs: []string{dsn}, HealthInterval: time.Hour}, nil, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	event := &models.SentryEvent{Message: "boom", Level: models.LevelError}
	if err := client.SendEvents(context.Background(), []*models.SentryEvent{event}); err != nil {
		t.Fatalf("SendEvents failed: %v", err)
	}

	select {
	case r := <-received:
		if r.URL.Path != "/api/42/store/" {
			t.Errorf("Expected store path, got %s", r.URL.Path)
		}
		if !strings.Contains(r.Header.Get("X-Sentry-Auth"), "sentry_key=testkey") {
			t.Errorf("Missing auth header, got %q", r.Header.Get("X-Sentry-Auth"))
		}
	default:
		t.Fatal("Expected a store request")
	}

	if len(event.EventID) != 32 {
		t.Errorf("Expected a 32-char event_id, got %q", event.EventID)
	}
	if body.Message != "boom" || body.Level != "error" {
		t.Errorf("Unexpected delivered body: %+v", body)
	}
}

type recordingBackend struct {
	stored [][]*models.SentryEvent
}

func (b *recordingBackend) Store(_ context.Context, events []*models.SentryEvent) error {
	b.stored = append(b.stored, events)
	return nil
}

func (b *recordingBackend) Close() error { return nil }

func TestClient_FailureStorageFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	failure := &recordingBackend{}
	dsn := strings.Replace(srv.URL, "http://", "http://testkey@", 1) + "/42"
	client, err := NewClient(Config{DSNs: []string{dsn}, HealthInterval: time.Hour}, failure, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	events := []*models.SentryEvent{{Message: "boom", Level: models.LevelError}}
	if err := client.SendEvents(context.Background(), events); err == nil {
		t.Error("Expected delivery error")
	}
	if len(failure.stored) != 1 || len(failure.stored[0]) != 1 {
		t.Fatalf("Expected failed event in failure storage, got %v", failure.stored)
	}
}

func TestClient_ColdStorageTee(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cold := &recordingBackend{}
	dsn := strings.Replace(srv.URL, "http://", "http://testkey@", 1) + "/42"
	client, err := NewClient(Config{DSNs: []string{dsn}, HealthInterval: time.Hour}, nil, cold)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	events := []*models.SentryEvent{{Message: "ok", Level: models.LevelInfo}}
	if err := client.SendEvents(context.Background(), events); err != nil {
		t.Fatalf("SendEvents failed: %v", err)
	}
	if len(cold.stored) != 1 {
		t.Errorf("Expected events teed to cold storage, got %v", cold.stored)
	}
}

func TestClient_BalanceStrategies(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		expected uint8
	}{
		{"first_available", "first_available", FirstAvailable},
		{"sticky", "sticky", Sticky},
		{"random", "random", Random},
		{"roundrobin", "roundrobin", RoundRobin},
		{"empty", "", FirstAvailable},
		{"unknown", "unknown", FirstAvailable},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	dsn := strings.Replace(srv.URL, "http://", "http://testkey@", 1) + "/42"

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(Config{
				DSNs:            []string{dsn},
				BalanceStrategy: tt.strategy,
				HealthInterval:  time.Hour,
			}, nil, nil)
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}
			if client.balanceStrategy != tt.expected {
				t.Errorf("Expected strategy %d, got %d", tt.expected, client.balanceStrategy)
			}
			if client.getConnection() == nil {
				t.Error("Expected a healthy connection")
			}
		})
	}
}
