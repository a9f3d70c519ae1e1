// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared by egmd spans.
const (
	BusTopicKey = "egm.bus.topic"

	CoordinatorNameKey = "egm.coordinator.name"
	RuleIDKey          = "egm.rule.id"
	RuleOutcomeKey     = "egm.rule.outcome"
	EnableCodeKey      = "egm.reason.enable_code"
	DisableCodeKey     = "egm.reason.disable_code"
	PendingCountKey    = "egm.pending.count"

	DeviceNameKey = "egm.device.name"
)

// CoordinatorAttributes describes the delivery a coordinator is handling.
func CoordinatorAttributes(coordinator, topic string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(CoordinatorNameKey, coordinator),
		attribute.String(BusTopicKey, topic),
	}
}

// RuleAttributes describes one rule taking part in a delivery. Empty codes
// are omitted.
func RuleAttributes(ruleID, disableCode, enableCode string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(RuleIDKey, ruleID)}
	if disableCode != "" {
		attrs = append(attrs, attribute.String(DisableCodeKey, disableCode))
	}
	if enableCode != "" {
		attrs = append(attrs, attribute.String(EnableCodeKey, enableCode))
	}
	return attrs
}
