// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package audit provides structured audit logging for lockout lifecycle
// changes. It follows the WHO/WHAT/WHEN pattern for compliance and forensics.
package audit

import (
	"context"
	"sort"
	"time"

	"github.com/ManuGH/egmlock/internal/log"
	"github.com/rs/zerolog"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Aggregate lockout transitions
	EventSystemDisabled EventType = "system.disabled"
	EventSystemEnabled  EventType = "system.enabled"

	// Individual reasons
	EventDisableAdded   EventType = "disable.added"
	EventDisableRemoved EventType = "disable.removed"
	EventDisableExpired EventType = "disable.expired"
	EventDisableUpdated EventType = "disable.updated"

	// Coordinator bookkeeping
	EventOccurrenceCleared EventType = "coordinator.occurrence_cleared"
)

// Event represents a structured audit event.
type Event struct {
	Timestamp     time.Time         `json:"timestamp"`
	Type          EventType         `json:"type"`
	Actor         string            `json:"actor"`    // WHO: subsystem or "system"
	Action        string            `json:"action"`   // WHAT: human-readable action description
	Resource      string            `json:"resource"` // Reason key or rule affected
	Result        string            `json:"result"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// Logger provides audit logging functionality.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new audit logger with a dedicated "audit" component.
func NewLogger() *Logger {
	return NewLoggerWith(log.WithComponent("audit"))
}

// NewLoggerWith wraps base; every record carries log_type=audit.
func NewLoggerWith(base zerolog.Logger) *Logger {
	return &Logger{logger: base.With().Str("log_type", "audit").Logger()}
}

// Log writes an audit event to the audit log.
func (l *Logger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	logEvent := l.logger.Info().
		Time("timestamp", event.Timestamp).
		Str(log.FieldEventType, string(event.Type)).
		Str("actor", event.Actor).
		Str("action", event.Action).
		Str("resource", event.Resource).
		Str("result", event.Result)

	if event.CorrelationID != "" {
		logEvent.Str(log.FieldCorrelationID, event.CorrelationID)
	}

	// Details are flattened in key order so records diff cleanly.
	keys := make([]string, 0, len(event.Details))
	for k := range event.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		logEvent.Str(k, event.Details[k])
	}

	logEvent.Msg("audit event")
}

// LogFromContext logs event, taking the correlation ID from ctx when unset.
func (l *Logger) LogFromContext(ctx context.Context, event Event) {
	if event.CorrelationID == "" {
		event.CorrelationID = log.CorrelationIDFromContext(ctx)
	}
	l.Log(event)
}
