// Package logging configures the service logger and defines the structured
// log sink consumed by the request pipeline.
package logging

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Record is one structured log entry. Fields are expected to be sanitized
// before the record is built; the sink never inspects them.
type Record struct {
	Time      time.Time
	Level     zapcore.Level
	Event     string
	RequestID string
	Fields    map[string]any
}

// Sink receives structured records. Implementations must not block the
// request path; delivery failures are the sink's own concern.
type Sink interface {
	Write(record Record)
}

// NewLogger builds the service logger. Production uses the JSON encoder with
// ISO-8601 timestamps; any other environment gets the development config.
func NewLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		return cfg.Build()
	}
	return zap.NewDevelopment()
}

// ZapSink writes records through a zap logger.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps a zap logger as a Sink.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

// Write emits the record at its level with the event name as the message.
func (s *ZapSink) Write(record Record) {
	fields := make([]zap.Field, 0, len(record.Fields)+1)
	if record.RequestID != "" {
		fields = append(fields, zap.String("request_id", record.RequestID))
	}

	keys := make([]string, 0, len(record.Fields))
	for k := range record.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, record.Fields[k]))
	}

	if ce := s.logger.Check(record.Level, record.Event); ce != nil {
		ce.Write(fields...)
	}
}

// MemorySink buffers records in memory. Used in tests to assert on emitted
// log content and ordering.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(record Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
}

// Records returns a snapshot of everything written so far.
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// FailingSink always panics on write. Used in tests to verify that sink
// failures never escape the pipeline.
type FailingSink struct{}

func (FailingSink) Write(Record) {
	panic("log sink unavailable")
}
