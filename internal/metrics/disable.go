// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label cardinality stays bounded: no disable keys or reason texts in labels.
var (
	// DisableActiveReasons tracks the number of currently active disable reasons.
	DisableActiveReasons = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "egm_disable_active_reasons",
		Help: "Current number of active disable reasons.",
	})

	// DisableImmediateReasons tracks active reasons with immediate priority.
	DisableImmediateReasons = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "egm_disable_immediate_reasons",
		Help: "Current number of active disable reasons with immediate priority.",
	})

	// DisableTransitionsTotal counts aggregate lockout transitions.
	DisableTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egm_disable_transitions_total",
		Help: "Total number of aggregate lockout transitions, by direction (disabled/enabled).",
	}, []string{"direction"})

	// DisableReasonEventsTotal counts per-reason registry mutations.
	DisableReasonEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "egm_disable_reason_events_total",
		Help: "Total number of disable reason mutations, by kind (added/removed/updated/expired).",
	}, []string{"kind"})
)

// SetDisableReasons updates the active reason gauges.
func SetDisableReasons(active, immediate int) {
	DisableActiveReasons.Set(float64(active))
	DisableImmediateReasons.Set(float64(immediate))
}

// RecordDisableTransition increments the transition counter for a direction.
func RecordDisableTransition(direction string) {
	DisableTransitionsTotal.WithLabelValues(direction).Inc()
}

// RecordDisableReasonEvent increments the mutation counter for a kind.
func RecordDisableReasonEvent(kind string) {
	DisableReasonEventsTotal.WithLabelValues(kind).Inc()
}
