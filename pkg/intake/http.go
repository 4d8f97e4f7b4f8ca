// Package intake receives raw log records over HTTP webhooks or AMQP and
// hands each record off for transformation and delivery.
package intake

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/srich36/blueberry-sentry-forwarder/pkg/models"
)

// Handler accepts log-pipeline webhook batches. The body may be a single
// JSON record or an array of records; each record is forwarded on its own
// goroutine with no ordering guarantee between records.
type Handler struct {
	// Forward processes one record. It must be safe for concurrent use.
	Forward func(ctx context.Context, record models.RawLogRecord)

	// MaxBodyBytes caps the decoded request body. Zero means 10 MiB.
	MaxBodyBytes int64

	wg sync.WaitGroup
}

const defaultMaxBodyBytes = 10 << 20

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := h.readBody(r)
	if err != nil {
		http.Error(w, "bad input: "+err.Error(), http.StatusBadRequest)
		return
	}

	records, err := DecodeRecords(body)
	if err != nil {
		http.Error(w, "bad input: "+err.Error(), http.StatusBadRequest)
		return
	}

	for _, record := range records {
		h.wg.Add(1)
		go func(rec models.RawLogRecord) {
			defer h.wg.Done()
			h.Forward(context.Background(), rec)
		}(record)
	}

	w.WriteHeader(http.StatusAccepted)
}

// Drain blocks until all dispatched records have been forwarded.
func (h *Handler) Drain() {
	h.wg.Wait()
}

func (h *Handler) readBody(r *http.Request) ([]byte, error) {
	max := h.MaxBodyBytes
	if max == 0 {
		max = defaultMaxBodyBytes
	}

	var reader io.Reader = http.MaxBytesReader(nil, r.Body, max)
	switch strings.ToLower(r.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(reader)
		defer fl.Close()
		reader = fl
	}

	return io.ReadAll(reader)
}

// DecodeRecords parses a webhook body as either a JSON array of records or
// a single record object.
func DecodeRecords(body []byte) ([]models.RawLogRecord, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var records []models.RawLogRecord
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var record models.RawLogRecord
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, err
	}
	return []models.RawLogRecord{record}, nil
}
