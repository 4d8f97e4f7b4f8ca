package models

// Severity levels accepted by the Sentry store endpoint
const (
	LevelFatal   = "fatal"
	LevelError   = "error"
	LevelWarning = "warning"
	LevelInfo    = "info"
	LevelDebug   = "debug"
)

// SentryEvent is a canonical event ready for delivery to a Sentry project.
// Message and Level are always populated; everything else is best-effort.
type SentryEvent struct {
	EventID     string            `json:"event_id,omitempty"`
	Message     string            `json:"message"`
	Level       string            `json:"level"`
	Timestamp   string            `json:"timestamp,omitempty"`
	Platform    string            `json:"platform"`
	Logger      string            `json:"logger"`
	Environment string            `json:"environment"`
	Tags        map[string]string `json:"tags"`
	Extra       map[string]any    `json:"extra"`
}

// RawLogRecord is one decoded record from the log pipeline. No field is
// guaranteed present or correctly typed; accessors coerce or skip rather
// than fail. The record is never mutated.
type RawLogRecord map[string]any

// Str returns the string value at key, or "" if absent or not a string.
func (r RawLogRecord) Str(key string) string {
	if v, ok := r[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Map returns the nested sub-record at key, or nil if absent or not a map.
// Accessors on a nil RawLogRecord are safe and return zero values.
func (r RawLogRecord) Map(key string) RawLogRecord {
	if v, ok := r[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return RawLogRecord(m)
		}
	}
	return nil
}

// Attributes returns the nested attributes sub-record, if any.
func (r RawLogRecord) Attributes() RawLogRecord {
	return r.Map("attributes")
}
