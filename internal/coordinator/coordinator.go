// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package coordinator turns domain events into disable reasons using a
// declarative rule set. Rules sharing an enable code share one logical
// reason, so the device is re-enabled only after every pending occurrence
// for that code has cleared.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/egmlock/internal/bus"
	"github.com/ManuGH/egmlock/internal/device"
	"github.com/ManuGH/egmlock/internal/disable"
	"github.com/ManuGH/egmlock/internal/log"
	"github.com/ManuGH/egmlock/internal/metrics"
	"github.com/ManuGH/egmlock/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/ManuGH/egmlock/internal/coordinator"

// reasonNamespace seeds the logical reason keys derived per enable code.
var reasonNamespace = uuid.MustParse("6f1c2a4e-8d3b-5e7f-9a10-2b4c6d8e0f13")

var (
	ErrMissingDependency = errors.New("coordinator: missing dependency")
	ErrAlreadyRunning    = errors.New("coordinator: already running")
)

// Options wires a Coordinator.
type Options struct {
	// Name identifies the instance in logs, metrics and reason keys.
	Name    string
	Rules   []Rule
	Catalog *Catalog
	Service *disable.Service
	Bus     bus.Bus
	// Device is wrapped in a device.Guard unless it already is one.
	Device device.Device
	// AllClearTopic triggers device reconciliation. Defaults to
	// disable.TopicSystemEnabled.
	AllClearTopic string
	Logger        *zerolog.Logger
	Now           func() time.Time
}

// Coordinator is one rule-driven bridge between the bus and the disable
// service. Deliveries are handled sequentially by Run.
type Coordinator struct {
	name     string
	cat      *Catalog
	svc      *disable.Service
	bus      bus.Bus
	dev      *device.Guard
	allClear string
	logger   zerolog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	triggers map[EventType]Rule
	clearers map[EventType][]Rule
	topics   []string // rule topics, all-clear excluded

	mu      sync.RWMutex
	pending map[string]PendingOccurrence // by rule ID

	runMu   sync.Mutex
	running bool
	ready   chan struct{}
}

// New validates the rules and builds a coordinator. It subscribes to nothing;
// an invalid rule set returns an error wrapping ErrInvalidRules.
func New(opts Options) (*Coordinator, error) {
	switch {
	case opts.Catalog == nil:
		return nil, fmt.Errorf("%w: catalog", ErrMissingDependency)
	case opts.Service == nil:
		return nil, fmt.Errorf("%w: disable service", ErrMissingDependency)
	case opts.Bus == nil:
		return nil, fmt.Errorf("%w: bus", ErrMissingDependency)
	}
	if err := ValidateRules(opts.Catalog, opts.Rules); err != nil {
		return nil, err
	}

	c := &Coordinator{
		name:     opts.Name,
		cat:      opts.Catalog,
		svc:      opts.Service,
		bus:      opts.Bus,
		allClear: opts.AllClearTopic,
		now:      opts.Now,
		tracer:   telemetry.Tracer(tracerName),
		triggers: make(map[EventType]Rule, len(opts.Rules)),
		clearers: make(map[EventType][]Rule),
		pending:  make(map[string]PendingOccurrence),
		ready:    make(chan struct{}),
	}
	if c.name == "" {
		c.name = "coordinator"
	}
	if c.allClear == "" {
		c.allClear = disable.TopicSystemEnabled
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.Logger != nil {
		c.logger = opts.Logger.With().Str(log.FieldCoordinator, c.name).Logger()
	} else {
		c.logger = log.Derive(func(ctx *zerolog.Context) {
			ctx.Str(log.FieldComponent, "coordinator").Str(log.FieldCoordinator, c.name)
		})
	}
	if g, ok := opts.Device.(*device.Guard); ok {
		c.dev = g
	} else {
		c.dev = device.NewGuard(opts.Device, 3, 10*time.Second)
	}

	seen := make(map[string]struct{})
	addTopic := func(t EventType) {
		name := c.cat.Name(t)
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			c.topics = append(c.topics, name)
		}
	}
	for _, r := range opts.Rules {
		c.triggers[r.Trigger] = r
		addTopic(r.Trigger)
		for _, ev := range r.Clearing {
			c.clearers[ev] = append(c.clearers[ev], r)
			addTopic(ev)
		}
	}
	metrics.SetPendingOccurrences(c.name, 0)
	return c, nil
}

// Name returns the coordinator name.
func (c *Coordinator) Name() string { return c.name }

// Topics lists every topic Run subscribes to, the all-clear topic first.
func (c *Coordinator) Topics() []string {
	return append([]string{c.allClear}, c.topics...)
}

// Ready is closed once Run holds its subscriptions.
func (c *Coordinator) Ready() <-chan struct{} { return c.ready }

// ReasonKey is the logical disable key used for enableCode.
func (c *Coordinator) ReasonKey(enableCode device.Reason) uuid.UUID {
	return uuid.NewSHA1(reasonNamespace, []byte(c.name+"/"+enableCode.String()))
}

// Pending returns the outstanding occurrences ordered by observation time.
func (c *Coordinator) Pending() []PendingOccurrence {
	c.mu.RLock()
	out := make([]PendingOccurrence, 0, len(c.pending))
	for _, p := range c.pending {
		out = append(out, p)
	}
	c.mu.RUnlock()
	sortOccurrences(out)
	return out
}

// Run subscribes to every rule topic in one ordered subscription and handles
// deliveries until ctx is done. The all-clear topic has its own subscription,
// drained continuously, because the coordinator publishes it itself through
// the disable service; a reconcile request is coalesced and handled between
// deliveries.
func (c *Coordinator) Run(ctx context.Context) error {
	c.runMu.Lock()
	if c.running {
		c.runMu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.runMu.Unlock()

	allClear, err := c.bus.Subscribe(ctx, c.allClear)
	if err != nil {
		return fmt.Errorf("coordinator %s: subscribe %s: %w", c.name, c.allClear, err)
	}
	reconcile := make(chan struct{}, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range allClear.C() {
			select {
			case reconcile <- struct{}{}:
			default:
			}
		}
	}()
	defer func() {
		_ = allClear.Close()
		wg.Wait()
	}()

	var events <-chan bus.Envelope
	if len(c.topics) > 0 {
		sub, err := c.bus.Subscribe(ctx, c.topics...)
		if err != nil {
			return fmt.Errorf("coordinator %s: subscribe: %w", c.name, err)
		}
		defer func() { _ = sub.Close() }()
		events = sub.C()
	}
	close(c.ready)

	c.logger.Info().
		Str(log.FieldEvent, "coordinator.started").
		Strs(log.FieldTopics, c.Topics()).
		Msg("coordinator listening")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reconcile:
			c.reconcile(ctx)
		case env, ok := <-events:
			if !ok {
				return nil
			}
			c.dispatch(ctx, env)
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, env bus.Envelope) {
	ctx, span := c.tracer.Start(ctx, "coordinator.dispatch",
		trace.WithAttributes(telemetry.CoordinatorAttributes(c.name, env.Topic)...))
	defer span.End()

	t, ok := c.cat.Resolve(env.Topic)
	if !ok {
		return
	}
	// Clearing first: an event that clears one rule and triggers another
	// must not release the occurrence it just created.
	if _, ok := c.clearers[t]; ok {
		c.handleClearing(ctx, t)
	}
	if r, ok := c.triggers[t]; ok {
		c.handleTrigger(ctx, r)
	}
}

func (c *Coordinator) handleTrigger(ctx context.Context, r Rule) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.RuleAttributes(r.ID, r.DisableCode.String(), r.EnableCode.String())...)
	trigger := c.cat.Name(r.Trigger)

	c.mu.Lock()
	if _, dup := c.pending[r.ID]; dup {
		c.mu.Unlock()
		c.recordTrigger(span, "duplicate")
		c.logger.Info().
			Str(log.FieldEvent, "coordinator.trigger_ignored").
			Str(log.FieldRuleID, r.ID).
			Str(log.FieldEventType, trigger).
			Msg("occurrence already pending, trigger ignored")
		return
	}
	occ := PendingOccurrence{Rule: r, ObservedAt: c.now()}
	c.pending[r.ID] = occ
	agg := c.aggregateLocked(r.EnableCode)
	total := len(c.pending)
	c.mu.Unlock()
	metrics.SetPendingOccurrences(c.name, total)

	c.assert(ctx, r.EnableCode, agg, occ)

	outcome := c.disableDevice(ctx, r)
	c.recordTrigger(span, outcome)
	c.logger.Info().
		Str(log.FieldEvent, "coordinator.triggered").
		Str(log.FieldRuleID, r.ID).
		Str(log.FieldEventType, trigger).
		Str(log.FieldReasonCode, r.DisableCode.String()).
		Int(log.FieldPendingCount, agg.count).
		Str(log.FieldOutcome, outcome).
		Msg("rule triggered")
}

// disableDevice issues the device-level disable for r and returns the
// trigger outcome.
func (c *Coordinator) disableDevice(ctx context.Context, r Rule) string {
	if !c.dev.Reachable() {
		c.logger.Warn().
			Str(log.FieldEvent, "coordinator.device_unreachable").
			Str(log.FieldRuleID, r.ID).
			Str(log.FieldDevice, c.dev.Name()).
			Msg("device unreachable, disable kept logically")
		return "device_unreachable"
	}
	active := c.dev.ActiveDisableReasons()
	if active&^r.DisableCode != device.ReasonNone && !r.DisableCode.IsSafety() {
		c.logger.Debug().
			Str(log.FieldEvent, "coordinator.device_disable_suppressed").
			Str(log.FieldRuleID, r.ID).
			Str(log.FieldDeviceReasons, active.String()).
			Msg("device already disabled for another reason")
		return "suppressed"
	}
	if err := c.dev.Disable(ctx, r.DisableCode); err != nil {
		c.logger.Warn().Err(err).
			Str(log.FieldEvent, "coordinator.device_disable_failed").
			Str(log.FieldRuleID, r.ID).
			Str(log.FieldDevice, c.dev.Name()).
			Str(log.FieldReasonCode, r.DisableCode.String()).
			Msg("device disable failed, disable kept logically")
		return "device_error"
	}
	return "disabled"
}

func (c *Coordinator) handleClearing(ctx context.Context, t EventType) {
	span := trace.SpanFromContext(ctx)

	c.mu.Lock()
	var cleared []PendingOccurrence
	for _, r := range c.clearers[t] {
		if occ, ok := c.pending[r.ID]; ok {
			delete(c.pending, r.ID)
			cleared = append(cleared, occ)
		}
	}
	sortOccurrences(cleared)
	// Codes in first-cleared order with what still holds them.
	var affected []device.Reason
	remaining := make(map[device.Reason]aggregate)
	for _, occ := range cleared {
		code := occ.Rule.EnableCode
		if _, ok := remaining[code]; !ok {
			affected = append(affected, code)
			remaining[code] = c.aggregateLocked(code)
		}
	}
	total := len(c.pending)
	c.mu.Unlock()

	if len(cleared) == 0 {
		c.logger.Debug().
			Str(log.FieldEvent, "coordinator.clear_unmatched").
			Str(log.FieldEventType, c.cat.Name(t)).
			Msg("no pending occurrence for clearing event")
		return
	}
	metrics.SetPendingOccurrences(c.name, total)
	span.SetAttributes(attribute.Int(telemetry.PendingCountKey, total))

	enabled := make(map[device.Reason]bool, len(affected))
	for _, code := range affected {
		agg := remaining[code]
		if agg.count > 0 {
			metrics.RecordDeferredEnable(c.name)
			c.logger.Info().
				Str(log.FieldEvent, "coordinator.enable_deferred").
				Str(log.FieldReasonCode, code.String()).
				Int(log.FieldPendingCount, agg.count).
				Msg("enable deferred, occurrences still pending")
			c.assert(ctx, code, agg, agg.latest)
			continue
		}
		enabled[code] = c.enableDevice(ctx, code)
		c.svc.Enable(ctx, c.ReasonKey(code))
	}

	for _, occ := range cleared {
		code := occ.Rule.EnableCode
		ev := PendingOccurrenceClearedEvent{
			Coordinator:   c.name,
			RuleID:        occ.Rule.ID,
			EnableCode:    code,
			Remaining:     remaining[code].count,
			DeviceEnabled: enabled[code],
			At:            c.now(),
		}
		if err := c.bus.Publish(ctx, TopicOccurrenceCleared, ev); err != nil {
			c.logger.Warn().Err(err).
				Str(log.FieldEvent, "coordinator.publish_failed").
				Str(log.FieldRuleID, occ.Rule.ID).
				Msg("occurrence cleared notification dropped")
		}
		c.logger.Info().
			Str(log.FieldEvent, "coordinator.cleared").
			Str(log.FieldRuleID, occ.Rule.ID).
			Str(log.FieldEventType, c.cat.Name(t)).
			Int(log.FieldPendingCount, ev.Remaining).
			Bool(log.FieldDeviceEnabled, ev.DeviceEnabled).
			Msg("pending occurrence cleared")
	}
}

// enableDevice reports whether the device accepted the enable.
func (c *Coordinator) enableDevice(ctx context.Context, code device.Reason) bool {
	if !c.dev.Reachable() {
		c.logger.Warn().
			Str(log.FieldEvent, "coordinator.device_unreachable").
			Str(log.FieldDevice, c.dev.Name()).
			Str(log.FieldReasonCode, code.String()).
			Msg("device unreachable, enable skipped")
		return false
	}
	if err := c.dev.Enable(ctx, code); err != nil {
		c.logger.Warn().Err(err).
			Str(log.FieldEvent, "coordinator.device_enable_failed").
			Str(log.FieldDevice, c.dev.Name()).
			Str(log.FieldReasonCode, code.String()).
			Msg("device enable failed")
		return false
	}
	return true
}

// reconcile re-enables a device left disabled for a system reason that no
// pending occurrence accounts for.
func (c *Coordinator) reconcile(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "coordinator.reconcile",
		trace.WithAttributes(telemetry.CoordinatorAttributes(c.name, c.allClear)...))
	defer span.End()

	active := c.dev.ActiveDisableReasons()
	if c.dev.IsEnabled() || !active.Has(device.ReasonSystem) {
		return
	}

	c.mu.RLock()
	held := c.aggregateLocked(device.ReasonSystem).count > 0
	c.mu.RUnlock()
	if held {
		return
	}

	c.logger.Info().
		Str(log.FieldEvent, "coordinator.reconcile").
		Str(log.FieldDeviceReasons, active.String()).
		Msg("device disabled for system reason without pending occurrence, re-enabling")
	c.enableDevice(ctx, device.ReasonSystem)
}

// assert registers (or refreshes) the logical reason for code. Priority is
// the highest among pending occurrences and idle state is affected if any of
// them affects it, so a later trigger never downgrades the reason.
func (c *Coordinator) assert(ctx context.Context, code device.Reason, agg aggregate, occ PendingOccurrence) {
	c.svc.Disable(ctx, c.ReasonKey(code), agg.priority, occ.Rule.Message,
		disable.WithIdleState(agg.idle),
		disable.WithTriggeringEvent(c.cat.Name(occ.Rule.Trigger)),
	)
}

type aggregate struct {
	count    int
	priority disable.Priority
	idle     bool
	latest   PendingOccurrence
}

// aggregateLocked summarizes pending occurrences sharing code. Caller holds mu.
func (c *Coordinator) aggregateLocked(code device.Reason) aggregate {
	var a aggregate
	for _, p := range c.pending {
		if p.Rule.EnableCode != code {
			continue
		}
		a.count++
		if p.Rule.Priority == disable.PriorityImmediate {
			a.priority = disable.PriorityImmediate
		}
		a.idle = a.idle || p.Rule.AffectsIdleState
		if a.count == 1 || p.ObservedAt.After(a.latest.ObservedAt) {
			a.latest = p
		}
	}
	return a
}

func (c *Coordinator) recordTrigger(span trace.Span, outcome string) {
	metrics.RecordTrigger(c.name, outcome)
	span.SetAttributes(attribute.String(telemetry.RuleOutcomeKey, outcome))
	if outcome == "device_error" {
		span.SetStatus(codes.Error, "device disable failed")
	}
}

func sortOccurrences(occ []PendingOccurrence) {
	sort.Slice(occ, func(i, j int) bool {
		if !occ[i].ObservedAt.Equal(occ[j].ObservedAt) {
			return occ[i].ObservedAt.Before(occ[j].ObservedAt)
		}
		return occ[i].Rule.ID < occ[j].Rule.ID
	})
}
