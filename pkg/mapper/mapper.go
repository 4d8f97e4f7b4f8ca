// Package mapper derives canonical Sentry events from raw log-pipeline
// records. The mapping is total: every field has a fallback, type
// mismatches are coerced or ignored, and no input can make it fail.
package mapper

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/srich36/blueberry-sentry-forwarder/pkg/models"
	"github.com/srich36/blueberry-sentry-forwarder/pkg/normalize"
)

const (
	// Platform and LoggerName are fixed markers on every emitted event.
	Platform   = "other"
	LoggerName = "datadog"

	maxMessageLen  = 8000
	maxOriginalLen = 2000
)

// timestampFormats lists date-string layouts we attempt, in order.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
}

// ToEvent maps one raw log record to a Sentry event. Field derivation walks
// the record's top-level fields, then the nested attributes, then falls back
// to a default; see the per-field helpers. The record is not mutated.
func ToEvent(record models.RawLogRecord) *models.SentryEvent {
	attrs := record.Attributes()
	fn := attrs.Map("function")

	message := deriveMessage(record)
	normalized, extractedIDs := normalize.Normalize(message)

	functionPath := fn.Str("path")
	if functionPath == "" {
		functionPath = "n/a"
	}
	functionType := fn.Str("type")

	tags := map[string]string{
		"service":       firstNonEmpty(record.Str("service"), attrs.Str("service"), "unknown"),
		"host":          firstNonEmpty(record.Str("host"), attrs.Str("hostname"), "unknown"),
		"dd_source":     firstNonEmpty(record.Str("source"), "datadog"),
		"function_path": functionPath,
		"function_type": firstNonEmpty(functionType, "unknown"),
		"has_retry":     strconv.FormatBool(truthy(fn["retries"])),
	}

	functionMeta := map[string]any{"path": functionPath}
	if functionType != "" {
		functionMeta["type"] = functionType
	}
	if v, ok := fn["retries"]; ok {
		functionMeta["retries"] = v
	}
	if requestID := fn.Str("request_id"); requestID != "" {
		functionMeta["request_id"] = requestID
	}

	extra := map[string]any{
		"function":         functionMeta,
		"extracted_ids":    extractedIDs,
		"original_message": truncate(message, maxOriginalLen),
	}
	if v, ok := record["id"]; ok && v != nil {
		extra["log_id"] = v
	}
	if topic := attrs.Str("topic"); topic != "" {
		extra["topic"] = topic
	}
	if convex := attrs.Map("convex"); convex != nil {
		extra["convex"] = map[string]any(convex)
	}
	if attrs != nil {
		extra["attributes"] = map[string]any(attrs)
	}

	return &models.SentryEvent{
		Message:     truncate(normalized, maxMessageLen),
		Level:       deriveLevel(record, attrs),
		Timestamp:   deriveTimestamp(record, attrs),
		Platform:    Platform,
		Logger:      LoggerName,
		Environment: deriveEnvironment(record, attrs),
		Tags:        tags,
		Extra:       extra,
	}
}

// deriveMessage prefers the top-level message field, stringifying non-string
// values; with no usable message the whole record is serialized so nothing
// is silently dropped.
func deriveMessage(record models.RawLogRecord) string {
	if v, ok := record["message"]; ok && v != nil {
		if s, ok := v.(string); ok {
			if s != "" {
				return s
			}
		} else if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}
	if b, err := json.Marshal(record); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", map[string]any(record))
}

func deriveLevel(record, attrs models.RawLogRecord) string {
	for _, v := range []any{record["level"], record["status"], attrs["log_level"], attrs["level"]} {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprintf("%v", v)
		}
		if s == "" {
			continue
		}
		return canonicalLevel(s)
	}
	return models.LevelError
}

// canonicalLevel folds a source severity onto the five-value Sentry set.
// Anything unrecognized is treated as an error.
func canonicalLevel(s string) string {
	switch strings.ToLower(s) {
	case "fatal", "emergency", "critical", "alert":
		return models.LevelFatal
	case "warn", "warning":
		return models.LevelWarning
	case "error", "err":
		return models.LevelError
	case "debug":
		return models.LevelDebug
	case "info", "notice":
		return models.LevelInfo
	default:
		return models.LevelError
	}
}

// deriveTimestamp picks the first present timestamp source and converts it:
// numbers (or numeric strings) are epoch milliseconds, anything else is
// tried as a date string. A source that fails to parse yields "" so the
// timestamp field is omitted rather than defaulted to now.
func deriveTimestamp(record, attrs models.RawLogRecord) string {
	for _, v := range []any{record["date"], record["timestamp"], attrs["timestamp"]} {
		switch t := v.(type) {
		case nil:
			continue
		case float64:
			if t == 0 {
				continue
			}
			return formatEpochMillis(int64(t))
		case int64:
			if t == 0 {
				continue
			}
			return formatEpochMillis(t)
		case int:
			if t == 0 {
				continue
			}
			return formatEpochMillis(int64(t))
		case string:
			if t == "" {
				continue
			}
			if ms, err := strconv.ParseFloat(t, 64); err == nil {
				return formatEpochMillis(int64(ms))
			}
			return parseTimeString(t)
		default:
			return ""
		}
	}
	return ""
}

func formatEpochMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}

func parseTimeString(s string) string {
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format("2006-01-02T15:04:05.000Z")
		}
	}
	return ""
}

func deriveEnvironment(record, attrs models.RawLogRecord) string {
	env := firstNonEmpty(
		record.Str("environment"),
		record.Str("env"),
		attrs.Str("env"),
		attrs.Map("convex").Str("deployment_type"),
		"prod",
	)
	if env == "production" {
		return "prod"
	}
	return env
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// truthy mirrors loose-typed truthiness for the retry counter: present,
// non-zero, non-empty, not false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	case int64:
		return t != 0
	case string:
		return t != "" && t != "0" && !strings.EqualFold(t, "false")
	default:
		return true
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
