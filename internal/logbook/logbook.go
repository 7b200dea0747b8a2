// Package logbook is the append-only activity log shared by every pipeline
// stage. Events are mirrored to slog for console visibility and appended to
// the durable log collection for the dashboard's activity view.
package logbook

import (
	"context"
	"log/slog"
	"time"
)

// Severity classifies an activity event.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event is one logged activity. Events are never mutated or deleted.
type Event struct {
	Severity  Severity       `bson:"severity" json:"severity"`
	Action    string         `bson:"action" json:"action"`
	Details   map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	Timestamp time.Time      `bson:"timestamp" json:"timestamp"`
}

// Sink receives events for durable storage. Appends from concurrent writers
// may arrive in any order.
type Sink interface {
	Append(ctx context.Context, e Event) error
}

// Log records activity events. It is injected into each component rather
// than accessed as a global.
type Log struct {
	sink   Sink
	logger *slog.Logger
}

// New creates a Log writing to the given sink. A nil sink degrades to
// slog-only output, which tests and the CLI use.
func New(sink Sink, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{sink: sink, logger: logger}
}

// Info records an informational event.
func (l *Log) Info(ctx context.Context, action string, details map[string]any) {
	l.record(ctx, SeverityInfo, action, details)
}

// Warn records a warning event.
func (l *Log) Warn(ctx context.Context, action string, details map[string]any) {
	l.record(ctx, SeverityWarn, action, details)
}

// Error records an error event.
func (l *Log) Error(ctx context.Context, action string, details map[string]any) {
	l.record(ctx, SeverityError, action, details)
}

func (l *Log) record(ctx context.Context, sev Severity, action string, details map[string]any) {
	attrs := make([]any, 0, len(details)*2)
	for k, v := range details {
		attrs = append(attrs, k, v)
	}
	switch sev {
	case SeverityWarn:
		l.logger.Warn(action, attrs...)
	case SeverityError:
		l.logger.Error(action, attrs...)
	default:
		l.logger.Info(action, attrs...)
	}

	if l.sink == nil {
		return
	}
	e := Event{
		Severity:  sev,
		Action:    action,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	if err := l.sink.Append(ctx, e); err != nil {
		// A broken log store must not break the pipeline.
		l.logger.Warn("activity log append failed", "action", action, "error", err)
	}
}
