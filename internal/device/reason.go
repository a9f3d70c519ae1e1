// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package device

import (
	"fmt"
	"strings"
)

// Reason is a device-level disable reason. A device keeps a bitmask of all
// reasons it is currently disabled for.
type Reason uint32

const (
	ReasonSystem Reason = 1 << iota
	ReasonBackend
	ReasonOperator
	ReasonConfiguration
	ReasonDoor
	ReasonError
	ReasonDisconnected

	// ReasonNone is the empty mask; a device with no active reasons is enabled.
	ReasonNone Reason = 0
)

var reasonNames = []struct {
	r    Reason
	name string
}{
	{ReasonSystem, "system"},
	{ReasonBackend, "backend"},
	{ReasonOperator, "operator"},
	{ReasonConfiguration, "configuration"},
	{ReasonDoor, "door"},
	{ReasonError, "error"},
	{ReasonDisconnected, "disconnected"},
}

// ParseReason resolves a single reason by its configuration name.
func ParseReason(name string) (Reason, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, e := range reasonNames {
		if e.name == n {
			return e.r, nil
		}
	}
	return ReasonNone, fmt.Errorf("unknown device reason %q", name)
}

// IsSafety reports whether the mask contains a safety-error reason. Disables
// for safety reasons are never suppressed.
func (r Reason) IsSafety() bool {
	return r&ReasonError != 0
}

// Has reports whether every bit of other is set in r.
func (r Reason) Has(other Reason) bool {
	return other != ReasonNone && r&other == other
}

func (r Reason) String() string {
	if r == ReasonNone {
		return "none"
	}
	var parts []string
	rest := r
	for _, e := range reasonNames {
		if r&e.r != 0 {
			parts = append(parts, e.name)
			rest &^= e.r
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}
