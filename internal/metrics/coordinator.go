// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CoordinatorPendingOccurrences tracks in-flight rule occurrences per coordinator.
	CoordinatorPendingOccurrences = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "egm_coordinator_pending_occurrences",
		Help: "Current number of pending rule occurrences, by coordinator.",
	}, []string{"coordinator"})

	// CoordinatorTriggersTotal counts observed trigger events by outcome.
	CoordinatorTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egm_coordinator_triggers_total",
		Help: "Total number of trigger events observed, by coordinator and outcome (disabled/duplicate).",
	}, []string{"coordinator", "outcome"})

	// CoordinatorDeferredEnablesTotal counts clearing events that left the device disabled.
	CoordinatorDeferredEnablesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egm_coordinator_deferred_enables_total",
		Help: "Total number of enables deferred because other occurrences share the reason code.",
	}, []string{"coordinator"})

	// DeviceCallsTotal counts device-level enable/disable calls.
	DeviceCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egm_device_calls_total",
		Help: "Total number of device enable/disable calls, by device, op and result.",
	}, []string{"device", "op", "result"})
)

// SetPendingOccurrences records the pending occurrence count for a coordinator.
func SetPendingOccurrences(coordinator string, n int) {
	CoordinatorPendingOccurrences.WithLabelValues(coordinator).Set(float64(n))
}

// RecordTrigger increments the trigger counter.
func RecordTrigger(coordinator, outcome string) {
	CoordinatorTriggersTotal.WithLabelValues(coordinator, outcome).Inc()
}

// RecordDeferredEnable increments the deferred enable counter.
func RecordDeferredEnable(coordinator string) {
	CoordinatorDeferredEnablesTotal.WithLabelValues(coordinator).Inc()
}

// RecordDeviceCall increments the device call counter.
func RecordDeviceCall(device, op, result string) {
	DeviceCallsTotal.WithLabelValues(device, op, result).Inc()
}
