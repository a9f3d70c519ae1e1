// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package disable

import (
	"fmt"
	"strings"
)

// Priority says whether a lockout may wait for in-progress work.
type Priority int

const (
	// PriorityNormal lets an in-progress task (a game round) finish first.
	PriorityNormal Priority = iota
	// PriorityImmediate interrupts in-progress work now.
	PriorityImmediate
)

func (p Priority) String() string {
	switch p {
	case PriorityNormal:
		return "normal"
	case PriorityImmediate:
		return "immediate"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// ParsePriority resolves a configuration name; the empty string is Normal.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return PriorityNormal, nil
	case "immediate":
		return PriorityImmediate, nil
	default:
		return PriorityNormal, fmt.Errorf("unknown priority %q", s)
	}
}
