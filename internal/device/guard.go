// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/egmlock/internal/metrics"
	"github.com/ManuGH/egmlock/internal/resilience"
)

// ErrDriverPanic is returned when the wrapped driver panicked during a call.
var ErrDriverPanic = errors.New("device driver panicked")

// Guard wraps a Device with a circuit breaker so a failing driver is not
// hammered with calls. A nil inner device is permanently unreachable.
type Guard struct {
	dev     Device
	breaker *resilience.Breaker
}

// NewGuard returns a Guard around dev.
func NewGuard(dev Device, threshold int, resetTimeout time.Duration) *Guard {
	name := "device"
	if dev != nil {
		name = dev.Name()
	}
	return &Guard{
		dev:     dev,
		breaker: resilience.New("device:"+name, resilience.Settings{Threshold: threshold, Cooldown: resetTimeout}),
	}
}

func (g *Guard) Name() string {
	if g.dev == nil {
		return "none"
	}
	return g.dev.Name()
}

func (g *Guard) Connected() bool {
	return g.dev != nil && g.dev.Connected()
}

// Reachable reports whether a call would currently be attempted.
func (g *Guard) Reachable() bool {
	return g.Connected() && g.breaker.Allows()
}

func (g *Guard) Enable(ctx context.Context, reason Reason) error {
	return g.call(ctx, "enable", func() error { return g.dev.Enable(ctx, reason) })
}

func (g *Guard) Disable(ctx context.Context, reason Reason) error {
	return g.call(ctx, "disable", func() error { return g.dev.Disable(ctx, reason) })
}

// call runs fn through the breaker. A panicking driver counts as a breaker
// failure and surfaces as ErrDriverPanic.
func (g *Guard) call(ctx context.Context, op string, fn func() error) (err error) {
	if !g.Connected() {
		metrics.RecordDeviceCall(g.Name(), op, "unreachable")
		return ErrUnreachable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDeviceCall(g.Name(), op, "panic")
			err = fmt.Errorf("%w: %s: %v", ErrDriverPanic, op, r)
		}
	}()
	err = g.breaker.Do(fn)
	switch {
	case err == nil:
		metrics.RecordDeviceCall(g.Name(), op, "ok")
	case errors.Is(err, resilience.ErrCircuitOpen):
		metrics.RecordDeviceCall(g.Name(), op, "circuit_open")
		return errors.Join(ErrUnreachable, err)
	default:
		metrics.RecordDeviceCall(g.Name(), op, "error")
	}
	return err
}

// IsEnabled reports the inner device state. An absent device reports enabled
// so reconciliation never tries to re-enable it.
func (g *Guard) IsEnabled() bool {
	if g.dev == nil {
		return true
	}
	return g.dev.IsEnabled()
}

func (g *Guard) ActiveDisableReasons() Reason {
	if g.dev == nil {
		return ReasonNone
	}
	return g.dev.ActiveDisableReasons()
}

var _ Device = (*Guard)(nil)
