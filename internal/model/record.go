// Package model defines the wire and domain types shared across the
// ingestion-queue-worker-persistence pipeline: the LogRecord unit of work,
// its DMQ-level wrapper PendingEntry, the ConsumerGroup status snapshot, and
// the CacheEntry convention.
package model

import "time"

// LogLevel is the bounded enum carried by every LogRecord.
type LogLevel string

const (
	LevelDebug    LogLevel = "DEBUG"
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// ValidLogLevels lists the enum's members in the order they're documented.
var ValidLogLevels = []LogLevel{LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical}

// IsValid reports whether lvl is one of the five recognized levels.
func (lvl LogLevel) IsValid() bool {
	switch lvl {
	case LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical:
		return true
	default:
		return false
	}
}

const (
	// MaxDeviceIDLen is the bound on LogRecord.DeviceID.
	MaxDeviceIDLen = 50
	// MaxMessageLen is the bound on LogRecord.Message.
	MaxMessageLen = 1000
	// MaxBatchSize is the bound on SubmitBatch.
	MaxBatchSize = 1000
)

// LogRecord is the unit of work flowing through the pipeline.
type LogRecord struct {
	DeviceID  string          `json:"device_id" validate:"required,max=50"`
	LogLevel  LogLevel        `json:"log_level" validate:"required,loglevel"`
	Message   string          `json:"message" validate:"required,max=1000"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	LogData   map[string]any  `json:"log_data,omitempty"`
	IngestID  int64           `json:"ingest_id,omitempty"`
}

// ApplyDefaults assigns a server-side timestamp when the client omitted one.
func (r *LogRecord) ApplyDefaults(now time.Time) {
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
}

// PendingEntry is the DMQ-level wrapper over a delivered-not-acked
// LogRecord.
type PendingEntry struct {
	IngestID         int64
	DeliveryCount    int64
	FirstDeliveredAt time.Time
	LastDeliveredAt  time.Time
	OwningConsumer   string
}

// ConsumerPendingSummary is one row of PendingSummary(group): a consumer and
// its pending count. Queue.PendingSummary fills ConsumerID and PendingCount
// only; it does not report idle times, so IdleTime is left zero.
type ConsumerPendingSummary struct {
	ConsumerID   string
	PendingCount int64
	IdleTime     time.Duration
}

// CacheEntry documents the query-result cache convention. The
// cache itself stores only serialized bytes; this type exists to name the
// key shape used throughout internal/adapters/redis and internal/ingest.
type CacheEntry struct {
	DeviceID string
	Limit    int
	TTL      time.Duration
}
