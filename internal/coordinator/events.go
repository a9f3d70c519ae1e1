// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package coordinator

import (
	"time"

	"github.com/ManuGH/egmlock/internal/device"
)

// TopicOccurrenceCleared carries PendingOccurrenceClearedEvent.
const TopicOccurrenceCleared = "coordinator.occurrence_cleared"

// PendingOccurrence is one triggered rule awaiting its clearing event.
type PendingOccurrence struct {
	Rule       Rule
	ObservedAt time.Time
}

// PendingOccurrenceClearedEvent is published once per removed occurrence,
// whether or not the device was re-enabled.
type PendingOccurrenceClearedEvent struct {
	Coordinator string
	RuleID      string
	EnableCode  device.Reason
	// Remaining counts pending occurrences still sharing EnableCode.
	Remaining int
	// DeviceEnabled is true when this clearance re-enabled the device.
	DeviceEnabled bool
	At            time.Time
}

func (PendingOccurrenceClearedEvent) Topic() string { return TopicOccurrenceCleared }
