// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package device defines the guarded hardware facade consumed by the
// coordinators, an in-memory simulation of it, and a circuit-breaking guard.
package device

import (
	"context"
	"errors"
)

// ErrUnreachable is returned when the device is disconnected or its breaker is open.
var ErrUnreachable = errors.New("device unreachable")

// Device is the hardware abstraction a coordinator guards. Enable and
// Disable may block on I/O.
type Device interface {
	// Name identifies the device in logs and metrics.
	Name() string
	// Connected reports whether the device is currently reachable.
	Connected() bool
	// Enable clears reason from the device's active disable reasons.
	Enable(ctx context.Context, reason Reason) error
	// Disable adds reason to the device's active disable reasons.
	Disable(ctx context.Context, reason Reason) error
	// IsEnabled reports whether the device has no active disable reasons.
	IsEnabled() bool
	// ActiveDisableReasons returns the device's active disable reason mask.
	ActiveDisableReasons() Reason
}
