// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package disable is the single source of truth for whether the machine is
// locked out. Independent subsystems register keyed disable reasons; the
// machine is enabled only when no reason remains.
package disable

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/egmlock/internal/bus"
	"github.com/ManuGH/egmlock/internal/log"
	"github.com/ManuGH/egmlock/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultPublishTimeout bounds how long one lifecycle event may wait for a
// slow subscriber before it is dropped.
const DefaultPublishTimeout = 2 * time.Second

// Reason is a snapshot of one active disable reason.
type Reason struct {
	Key              uuid.UUID
	Priority         Priority
	Message          Text
	AffectsIdleState bool
	HelpText         Text
	Duration         time.Duration
	TriggeringEvent  string
	DisabledAt       time.Time
}

// State is the aggregate derived from the active reasons. It is never stored.
type State struct {
	IsDisabled          bool
	DisableImmediately  bool
	IsIdleStateAffected bool
	Keys                []uuid.UUID
	ImmediateKeys       []uuid.UUID
}

// Options configures a Service.
type Options struct {
	// Publisher receives lifecycle events. Nil discards them.
	Publisher bus.Publisher
	// Localizer resolves Localized texts in published events.
	Localizer Localizer
	// PublishTimeout bounds each publish; zero means DefaultPublishTimeout.
	PublishTimeout time.Duration
	// Logger overrides the component logger.
	Logger *zerolog.Logger
	// Now overrides the clock used for event timestamps.
	Now func() time.Time
}

// DisableOption customises a Disable call.
type DisableOption func(*Reason)

// WithIdleState sets whether the reason suppresses attract/idle mode (default true).
func WithIdleState(affects bool) DisableOption {
	return func(r *Reason) { r.AffectsIdleState = affects }
}

// WithHelpText attaches remediation text.
func WithHelpText(t Text) DisableOption {
	return func(r *Reason) { r.HelpText = t }
}

// WithDuration makes the reason expire automatically after d.
func WithDuration(d time.Duration) DisableOption {
	return func(r *Reason) { r.Duration = d }
}

// WithTriggeringEvent records the domain event that caused the reason.
func WithTriggeringEvent(eventType string) DisableOption {
	return func(r *Reason) { r.TriggeringEvent = eventType }
}

type entry struct {
	reason Reason
	timer  *time.Timer
	gen    uint64
}

type outgoing struct {
	event Event
	text  Text
}

// Service is the disable arbitration service. It is safe for concurrent use.
type Service struct {
	mu      sync.RWMutex
	reasons map[uuid.UUID]*entry
	closed  bool

	// outbox is appended under mu so delivery order equals mutation order.
	outMu  sync.Mutex
	outbox []outgoing
	emitMu sync.Mutex

	pub            bus.Publisher
	localizer      Localizer
	publishTimeout time.Duration
	now            func() time.Time
	logger         zerolog.Logger
}

// NewService creates an empty arbitration service.
func NewService(opts Options) *Service {
	s := &Service{
		reasons:        make(map[uuid.UUID]*entry),
		pub:            opts.Publisher,
		localizer:      opts.Localizer,
		publishTimeout: opts.PublishTimeout,
		now:            opts.Now,
	}
	if s.localizer == nil {
		s.localizer = keyLocalizer{}
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = DefaultPublishTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	} else {
		s.logger = log.WithComponent("disable")
	}
	return s
}

// Disable registers or refreshes the reason under key. Calling it again with
// an active key overwrites the reason in place.
func (s *Service) Disable(ctx context.Context, key uuid.UUID, priority Priority, msg Text, opts ...DisableOption) {
	r := Reason{
		Key:              key,
		Priority:         priority,
		Message:          msg,
		AffectsIdleState: true,
	}
	for _, opt := range opts {
		opt(&r)
	}

	s.mu.Lock()
	before := s.aggregateLocked()
	now := s.now()

	e, exists := s.reasons[key]
	var previous Priority
	if exists {
		previous = e.reason.Priority
		r.DisabledAt = e.reason.DisabledAt
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	} else {
		r.DisabledAt = now
		e = &entry{}
		s.reasons[key] = e
	}
	e.reason = r
	e.gen++
	if r.Duration > 0 && !s.closed {
		gen := e.gen
		e.timer = time.AfterFunc(r.Duration, func() { s.expire(key, gen) })
	}

	after := s.aggregateLocked()
	if exists {
		s.enqueueLocked(DisableUpdatedEvent{
			Key:               key,
			Priority:          priority,
			PreviousPriority:  previous,
			IdleStateAffected: r.AffectsIdleState,
			TriggeringEvent:   r.TriggeringEvent,
			At:                now,
		}, msg)
		metrics.RecordDisableReasonEvent("updated")
	} else {
		s.enqueueLocked(DisableAddedEvent{
			Key:               key,
			Priority:          priority,
			IdleStateAffected: r.AffectsIdleState,
			TriggeringEvent:   r.TriggeringEvent,
			At:                now,
		}, msg)
		metrics.RecordDisableReasonEvent("added")
	}
	s.transitionLocked(before, after, now)
	s.mu.Unlock()

	ev := s.logger.Debug()
	if !exists {
		ev = s.logger.Info()
	}
	ev.Str(log.FieldEvent, addedOrUpdated(exists)).
		Str(log.FieldDisableKey, key.String()).
		Str(log.FieldPriority, priority.String()).
		Bool(log.FieldIdleAffected, r.AffectsIdleState).
		Str(log.FieldTriggeredEvent, r.TriggeringEvent).
		Dur(log.FieldExpiresAfter, r.Duration).
		Msg("disable reason registered")

	s.flush(ctx)
}

// Enable removes the reason under key. Unknown keys are ignored.
func (s *Service) Enable(ctx context.Context, key uuid.UUID) {
	if !s.remove(key, 0, false) {
		s.logger.Debug().
			Str(log.FieldEvent, "disable.enable_unknown").
			Str(log.FieldDisableKey, key.String()).
			Msg("enable for inactive key ignored")
		return
	}
	s.flush(ctx)
}

func (s *Service) expire(key uuid.UUID, gen uint64) {
	if s.remove(key, gen, true) {
		s.flush(context.Background())
	}
}

// remove deletes key. When expired is set the entry is only removed if it is
// still the generation the timer was armed for.
func (s *Service) remove(key uuid.UUID, gen uint64, expired bool) bool {
	s.mu.Lock()
	e, ok := s.reasons[key]
	if !ok || (expired && e.gen != gen) {
		s.mu.Unlock()
		return false
	}
	before := s.aggregateLocked()
	now := s.now()
	if e.timer != nil {
		e.timer.Stop()
	}
	delete(s.reasons, key)
	after := s.aggregateLocked()

	s.enqueueLocked(DisableRemovedEvent{
		Key:               key,
		Priority:          e.reason.Priority,
		StillDisabled:     after.IsDisabled,
		IdleStateAffected: after.IsIdleStateAffected,
		Expired:           expired,
		At:                now,
	}, e.reason.Message)
	if expired {
		metrics.RecordDisableReasonEvent("expired")
	} else {
		metrics.RecordDisableReasonEvent("removed")
	}
	s.transitionLocked(before, after, now)
	s.mu.Unlock()

	event := "disable.removed"
	if expired {
		event = "disable.expired"
	}
	s.logger.Info().
		Str(log.FieldEvent, event).
		Str(log.FieldDisableKey, key.String()).
		Str(log.FieldPriority, e.reason.Priority.String()).
		Bool(log.FieldStillDisabled, after.IsDisabled).
		Msg("disable reason removed")
	return true
}

// transitionLocked records the edge between two aggregates. Caller holds mu.
func (s *Service) transitionLocked(before, after State, now time.Time) {
	metrics.SetDisableReasons(len(after.Keys), len(after.ImmediateKeys))
	switch {
	case !before.IsDisabled && after.IsDisabled:
		priority := PriorityNormal
		if after.DisableImmediately {
			priority = PriorityImmediate
		}
		s.enqueueLocked(SystemDisabledEvent{Priority: priority, At: now}, nil)
		metrics.RecordDisableTransition("disabled")
		s.logger.Warn().
			Str(log.FieldEvent, "system.disabled").
			Str(log.FieldPriority, priority.String()).
			Msg("system disabled")
	case before.IsDisabled && !after.IsDisabled:
		s.enqueueLocked(SystemEnabledEvent{At: now}, nil)
		metrics.RecordDisableTransition("enabled")
		s.logger.Info().
			Str(log.FieldEvent, "system.enabled").
			Msg("system enabled")
	}
}

func (s *Service) enqueueLocked(ev Event, text Text) {
	s.outMu.Lock()
	s.outbox = append(s.outbox, outgoing{event: ev, text: text})
	s.outMu.Unlock()
}

// flush publishes queued events outside the registry lock. If another
// goroutine is already flushing it delivers our events too, so a subscriber
// that re-enters the service from its handler never waits here.
func (s *Service) flush(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	base := context.WithoutCancel(ctx)
	for {
		if !s.emitMu.TryLock() {
			return
		}
		for {
			s.outMu.Lock()
			batch := s.outbox
			s.outbox = nil
			s.outMu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, o := range batch {
				s.publish(base, o)
			}
		}
		s.emitMu.Unlock()

		// Events queued between the last drain and Unlock belong to a caller
		// whose TryLock failed; pick them up.
		s.outMu.Lock()
		pending := len(s.outbox) > 0
		s.outMu.Unlock()
		if !pending {
			return
		}
	}
}

func (s *Service) publish(ctx context.Context, o outgoing) {
	if s.pub == nil {
		return
	}
	ev := o.event
	if o.text != nil {
		ev = withReasonText(ev, resolve(o.text, s.localizer))
	}
	pctx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	if err := s.pub.Publish(pctx, ev.Topic(), ev); err != nil {
		s.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "disable.publish_failed").
			Str(log.FieldTopic, ev.Topic()).
			Msg("failed to publish lifecycle event")
	}
}

// aggregateLocked computes the derived state. Caller holds mu (read or write).
func (s *Service) aggregateLocked() State {
	st := State{
		Keys:          make([]uuid.UUID, 0, len(s.reasons)),
		ImmediateKeys: []uuid.UUID{},
	}
	for k, e := range s.reasons {
		st.Keys = append(st.Keys, k)
		if e.reason.Priority == PriorityImmediate {
			st.DisableImmediately = true
			st.ImmediateKeys = append(st.ImmediateKeys, k)
		}
		if e.reason.AffectsIdleState {
			st.IsIdleStateAffected = true
		}
	}
	st.IsDisabled = len(st.Keys) > 0
	sortKeys(st.Keys)
	sortKeys(st.ImmediateKeys)
	return st
}

func sortKeys(keys []uuid.UUID) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
}

// Snapshot returns the aggregate state under one consistent read.
func (s *Service) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aggregateLocked()
}

// IsDisabled reports whether any reason is active.
func (s *Service) IsDisabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reasons) > 0
}

// DisableImmediately reports whether an active reason has immediate priority.
func (s *Service) DisableImmediately() bool {
	return s.Snapshot().DisableImmediately
}

// IsIdleStateAffected reports whether an active reason affects the idle state.
func (s *Service) IsIdleStateAffected() bool {
	return s.Snapshot().IsIdleStateAffected
}

// CurrentDisableKeys returns the keys of all active reasons, sorted.
func (s *Service) CurrentDisableKeys() []uuid.UUID {
	return s.Snapshot().Keys
}

// CurrentImmediateDisableKeys returns the sorted keys of active reasons that
// disable immediately.
func (s *Service) CurrentImmediateDisableKeys() []uuid.UUID {
	return s.Snapshot().ImmediateKeys
}

// Reasons returns copies of the active reasons ordered by DisabledAt.
func (s *Service) Reasons() []Reason {
	s.mu.RLock()
	out := make([]Reason, 0, len(s.reasons))
	for _, e := range s.reasons {
		out = append(out, e.reason)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisabledAt.Equal(out[j].DisabledAt) {
			return out[i].Key.String() < out[j].Key.String()
		}
		return out[i].DisabledAt.Before(out[j].DisabledAt)
	})
	return out
}

// Resolve renders a reason's message and help text with the service localizer.
func (s *Service) Resolve(r Reason) (message, help string) {
	return resolve(r.Message, s.localizer), resolve(r.HelpText, s.localizer)
}

// Close stops pending expiry timers. Active reasons stay registered and
// no new timers are armed afterwards.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for _, e := range s.reasons {
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
	}
}

func addedOrUpdated(exists bool) string {
	if exists {
		return "disable.updated"
	}
	return "disable.added"
}
