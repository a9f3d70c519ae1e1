// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"context"
	"sync"
)

// Call records one Enable or Disable issued against a Simulated device.
type Call struct {
	Op     string
	Reason Reason
}

// Simulated is an in-memory Device. It is safe for concurrent use.
type Simulated struct {
	name string

	mu        sync.Mutex
	reasons   Reason
	connected bool
	failWith  error
	calls     []Call
}

// NewSimulated returns a connected, enabled simulated device.
func NewSimulated(name string) *Simulated {
	return &Simulated{name: name, connected: true}
}

func (s *Simulated) Name() string { return s.name }

func (s *Simulated) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SetConnected simulates plugging or unplugging the device.
func (s *Simulated) SetConnected(connected bool) {
	s.mu.Lock()
	s.connected = connected
	s.mu.Unlock()
}

// FailWith makes subsequent Enable/Disable calls fail with err; nil restores success.
func (s *Simulated) FailWith(err error) {
	s.mu.Lock()
	s.failWith = err
	s.mu.Unlock()
}

// Seed sets the active reason mask directly, as if the device booted disabled.
func (s *Simulated) Seed(reasons Reason) {
	s.mu.Lock()
	s.reasons = reasons
	s.mu.Unlock()
}

func (s *Simulated) Enable(ctx context.Context, reason Reason) error {
	return s.apply(ctx, "enable", reason)
}

func (s *Simulated) Disable(ctx context.Context, reason Reason) error {
	return s.apply(ctx, "disable", reason)
}

func (s *Simulated) apply(ctx context.Context, op string, reason Reason) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Op: op, Reason: reason})
	if s.failWith != nil {
		return s.failWith
	}
	if !s.connected {
		return ErrUnreachable
	}
	if op == "enable" {
		s.reasons &^= reason
	} else {
		s.reasons |= reason
	}
	return nil
}

func (s *Simulated) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reasons == ReasonNone
}

func (s *Simulated) ActiveDisableReasons() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reasons
}

// Calls returns a copy of every call issued so far.
func (s *Simulated) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

var _ Device = (*Simulated)(nil)
