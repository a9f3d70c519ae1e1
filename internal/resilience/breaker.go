// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package resilience keeps a failing driver from being called in a tight loop.
package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/egmlock/internal/metrics"
)

// ErrCircuitOpen is returned by Do while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the admission state of a Breaker.
type State uint8

const (
	// Closed admits every call.
	Closed State = iota
	// Tripped rejects calls until the cooldown has passed.
	Tripped
	// Trial admits a single call whose outcome decides between Closed and Tripped.
	Trial
)

// String returns the metric label of the state.
func (s State) String() string {
	switch s {
	case Tripped:
		return "open"
	case Trial:
		return "half-open"
	default:
		return "closed"
	}
}

const (
	defaultThreshold = 3
	defaultCooldown  = 30 * time.Second
)

// Settings tunes a Breaker. Zero fields take defaults.
type Settings struct {
	// Threshold is the number of consecutive failures that trips the breaker.
	Threshold int
	// Cooldown is how long a tripped breaker rejects calls.
	Cooldown time.Duration
	// Now replaces time.Now.
	Now func() time.Time
}

// Breaker counts consecutive failures of a component and stops calling it
// once Threshold is reached. After Cooldown one trial call is let through.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	streak   int
	reopenAt time.Time
	inTrial  bool
}

// New returns a closed breaker for the named component.
func New(name string, s Settings) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: s.Threshold,
		cooldown:  s.Cooldown,
		now:       s.Now,
	}
	if b.threshold <= 0 {
		b.threshold = defaultThreshold
	}
	if b.cooldown <= 0 {
		b.cooldown = defaultCooldown
	}
	if b.now == nil {
		b.now = time.Now
	}
	metrics.SetCircuitBreakerState(name, Closed.String())
	return b
}

// Name returns the component name used in metrics.
func (b *Breaker) Name() string { return b.name }

// State returns the current admission state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allows reports whether Do would run its function right now.
func (b *Breaker) Allows() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Tripped:
		return !b.now().Before(b.reopenAt)
	case Trial:
		return !b.inTrial
	default:
		return true
	}
}

// Do runs fn unless the breaker rejects it. An error or a panic from fn
// counts as a failure; the panic keeps unwinding after it is recorded.
func (b *Breaker) Do(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	returned := false
	defer func() {
		if !returned {
			b.record(false)
		}
	}()
	err := fn()
	returned = true
	b.record(err == nil)
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Tripped:
		if b.now().Before(b.reopenAt) {
			return false
		}
		b.setState(Trial)
		fallthrough
	case Trial:
		if b.inTrial {
			return false
		}
		b.inTrial = true
	}
	return true
}

func (b *Breaker) record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	wasTrial := b.state == Trial
	b.inTrial = false
	if b.state == Tripped {
		// Late result of a call admitted before the trip.
		return
	}
	if ok {
		b.streak = 0
		b.setState(Closed)
		return
	}
	b.streak++
	switch {
	case wasTrial:
		b.trip("trial_failed")
	case b.streak >= b.threshold:
		b.trip("threshold_exceeded")
	}
}

// Caller holds b.mu.
func (b *Breaker) trip(reason string) {
	b.reopenAt = b.now().Add(b.cooldown)
	metrics.RecordCircuitBreakerTrip(b.name, reason)
	b.setState(Tripped)
}

// Caller holds b.mu.
func (b *Breaker) setState(s State) {
	if b.state == s {
		return
	}
	b.state = s
	metrics.SetCircuitBreakerState(b.name, s.String())
}
