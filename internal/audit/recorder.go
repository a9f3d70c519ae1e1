// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package audit

import (
	"context"
	"strconv"

	"github.com/ManuGH/egmlock/internal/bus"
	"github.com/ManuGH/egmlock/internal/coordinator"
	"github.com/ManuGH/egmlock/internal/disable"
	"github.com/ManuGH/egmlock/internal/log"
	"github.com/rs/zerolog"
)

// Recorder mirrors lockout lifecycle events into the audit log and, when a
// journal is configured, into SQLite.
type Recorder struct {
	bus     bus.Bus
	audit   *Logger
	journal *Journal
	logger  zerolog.Logger
	ready   chan struct{}
}

// NewRecorder builds a recorder. journal may be nil.
func NewRecorder(b bus.Bus, audit *Logger, journal *Journal) *Recorder {
	if audit == nil {
		audit = NewLogger()
	}
	return &Recorder{
		bus:     b,
		audit:   audit,
		journal: journal,
		logger:  log.WithComponent("audit"),
		ready:   make(chan struct{}),
	}
}

// Ready is closed once Run holds its subscription.
func (r *Recorder) Ready() <-chan struct{} { return r.ready }

// Run records events until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	topics := append(append([]string(nil), disable.Topics...), coordinator.TopicOccurrenceCleared)
	sub, err := r.bus.Subscribe(ctx, topics...)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()
	close(r.ready)

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-sub.C():
			if !ok {
				return nil
			}
			r.record(ctx, env.Payload)
		}
	}
}

func (r *Recorder) record(ctx context.Context, payload bus.Message) {
	ev, entry, ok := translate(payload)
	if !ok {
		r.logger.Debug().Str(log.FieldEvent, "audit.unknown_payload").Msgf("ignoring %T", payload)
		return
	}
	r.audit.LogFromContext(ctx, ev)

	if r.journal == nil {
		return
	}
	// Journal writes outlive shutdown so the final transitions are kept.
	if err := r.journal.Record(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Warn().Err(err).
			Str(log.FieldEvent, "audit.journal_failed").
			Str(log.FieldEventType, string(entry.Kind)).
			Msg("audit journal write failed")
	}
}

// translate maps a bus payload to its audit record and journal entry.
func translate(payload bus.Message) (Event, Entry, bool) {
	const actor = "system"
	switch e := payload.(type) {
	case disable.SystemDisabledEvent:
		return Event{
				Timestamp: e.At, Type: EventSystemDisabled, Actor: actor,
				Action: "machine locked out", Resource: "lockout", Result: "disabled",
				Details: map[string]string{"priority": e.Priority.String()},
			}, Entry{
				At: e.At, Kind: EventSystemDisabled, Priority: e.Priority.String(), StillDisabled: true,
			}, true

	case disable.SystemEnabledEvent:
		return Event{
				Timestamp: e.At, Type: EventSystemEnabled, Actor: actor,
				Action: "machine released", Resource: "lockout", Result: "enabled",
			}, Entry{
				At: e.At, Kind: EventSystemEnabled,
			}, true

	case disable.DisableAddedEvent:
		return Event{
				Timestamp: e.At, Type: EventDisableAdded, Actor: actorFor(e.TriggeringEvent),
				Action: "disable reason added", Resource: e.Key.String(), Result: "active",
				Details: map[string]string{
					"priority":    e.Priority.String(),
					"reason_text": e.ReasonText,
					"idle":        strconv.FormatBool(e.IdleStateAffected),
				},
			}, Entry{
				At: e.At, Kind: EventDisableAdded, ReasonKey: e.Key.String(), Priority: e.Priority.String(),
				ReasonText: e.ReasonText, TriggeringEvent: e.TriggeringEvent,
				IdleStateAffected: e.IdleStateAffected, StillDisabled: true,
			}, true

	case disable.DisableUpdatedEvent:
		return Event{
				Timestamp: e.At, Type: EventDisableUpdated, Actor: actorFor(e.TriggeringEvent),
				Action: "disable reason updated", Resource: e.Key.String(), Result: "active",
				Details: map[string]string{
					"priority":          e.Priority.String(),
					"previous_priority": e.PreviousPriority.String(),
					"reason_text":       e.ReasonText,
				},
			}, Entry{
				At: e.At, Kind: EventDisableUpdated, ReasonKey: e.Key.String(), Priority: e.Priority.String(),
				PreviousPriority: e.PreviousPriority.String(), ReasonText: e.ReasonText,
				TriggeringEvent: e.TriggeringEvent, IdleStateAffected: e.IdleStateAffected, StillDisabled: true,
			}, true

	case disable.DisableRemovedEvent:
		kind, action := EventDisableRemoved, "disable reason removed"
		if e.Expired {
			kind, action = EventDisableExpired, "disable reason expired"
		}
		return Event{
				Timestamp: e.At, Type: kind, Actor: actor,
				Action: action, Resource: e.Key.String(), Result: "cleared",
				Details: map[string]string{
					"priority":       e.Priority.String(),
					"reason_text":    e.ReasonText,
					"still_disabled": strconv.FormatBool(e.StillDisabled),
				},
			}, Entry{
				At: e.At, Kind: kind, ReasonKey: e.Key.String(), Priority: e.Priority.String(),
				ReasonText: e.ReasonText, IdleStateAffected: e.IdleStateAffected, StillDisabled: e.StillDisabled,
			}, true

	case coordinator.PendingOccurrenceClearedEvent:
		return Event{
				Timestamp: e.At, Type: EventOccurrenceCleared, Actor: e.Coordinator,
				Action: "pending occurrence cleared", Resource: e.RuleID, Result: clearedResult(e),
				Details: map[string]string{
					"enable_code": e.EnableCode.String(),
					"remaining":   strconv.Itoa(e.Remaining),
				},
			}, Entry{
				At: e.At, Kind: EventOccurrenceCleared, ReasonKey: e.RuleID,
				TriggeringEvent: e.EnableCode.String(), StillDisabled: e.Remaining > 0,
			}, true
	}
	return Event{}, Entry{}, false
}

func actorFor(triggeringEvent string) string {
	if triggeringEvent == "" {
		return "caller"
	}
	return triggeringEvent
}

func clearedResult(e coordinator.PendingOccurrenceClearedEvent) string {
	switch {
	case e.DeviceEnabled:
		return "device_enabled"
	case e.Remaining > 0:
		return "deferred"
	default:
		return "released"
	}
}
