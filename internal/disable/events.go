// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package disable

import (
	"time"

	"github.com/google/uuid"
)

// Bus topics the service publishes on.
const (
	TopicSystemDisabled = "disable.system_disabled"
	TopicSystemEnabled  = "disable.system_enabled"
	TopicDisableAdded   = "disable.added"
	TopicDisableRemoved = "disable.removed"
	TopicDisableUpdated = "disable.updated"
)

// Topics lists every topic published by the service.
var Topics = []string{
	TopicSystemDisabled,
	TopicSystemEnabled,
	TopicDisableAdded,
	TopicDisableRemoved,
	TopicDisableUpdated,
}

// Event is a lifecycle event published by the service.
type Event interface {
	Topic() string
}

// SystemDisabledEvent is published once when the machine becomes disabled.
type SystemDisabledEvent struct {
	Priority Priority
	At       time.Time
}

// SystemEnabledEvent is published once when the last reason clears.
type SystemEnabledEvent struct {
	At time.Time
}

// DisableAddedEvent is published for every new reason.
type DisableAddedEvent struct {
	Key               uuid.UUID
	Priority          Priority
	ReasonText        string
	IdleStateAffected bool
	TriggeringEvent   string
	At                time.Time
}

// DisableRemovedEvent is published for every removed reason. StillDisabled
// and IdleStateAffected describe the aggregate after the removal. Expired is
// set when the reason's duration elapsed rather than being enabled.
type DisableRemovedEvent struct {
	Key               uuid.UUID
	Priority          Priority
	ReasonText        string
	StillDisabled     bool
	IdleStateAffected bool
	Expired           bool
	At                time.Time
}

// DisableUpdatedEvent is published when an active key is disabled again.
type DisableUpdatedEvent struct {
	Key               uuid.UUID
	Priority          Priority
	PreviousPriority  Priority
	ReasonText        string
	IdleStateAffected bool
	TriggeringEvent   string
	At                time.Time
}

func (SystemDisabledEvent) Topic() string { return TopicSystemDisabled }
func (SystemEnabledEvent) Topic() string  { return TopicSystemEnabled }
func (DisableAddedEvent) Topic() string   { return TopicDisableAdded }
func (DisableRemovedEvent) Topic() string { return TopicDisableRemoved }
func (DisableUpdatedEvent) Topic() string { return TopicDisableUpdated }

// withReasonText fills in text resolved outside the registry lock.
func withReasonText(ev Event, text string) Event {
	switch e := ev.(type) {
	case DisableAddedEvent:
		e.ReasonText = text
		return e
	case DisableRemovedEvent:
		e.ReasonText = text
		return e
	case DisableUpdatedEvent:
		e.ReasonText = text
		return e
	default:
		return ev
	}
}
