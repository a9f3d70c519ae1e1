// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldCorrelationID = "correlation_id"
	FieldDisableKey    = "disable_key"
	FieldRuleID        = "rule_id"
	FieldCoordinator   = "coordinator"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldTopic     = "topic"
	FieldTopics    = "topics"
	FieldOutcome   = "outcome"
	FieldReason    = "reason"

	// Lockout fields
	FieldPriority       = "priority"
	FieldEventType      = "event_type"
	FieldReasonCode     = "reason_code"
	FieldReasonText     = "reason_text"
	FieldIdleAffected   = "idle_state_affected"
	FieldStillDisabled  = "still_disabled"
	FieldPendingCount   = "pending"
	FieldDevice         = "device"
	FieldDeviceReasons  = "device_reasons"
	FieldDeviceEnabled  = "device_enabled"
	FieldExpiresAfter   = "expires_after"
	FieldTriggeredEvent = "triggering_event"
)
