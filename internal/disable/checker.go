// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package disable

import (
	"context"
	"fmt"

	"github.com/ManuGH/egmlock/internal/health"
)

// Checker reports the lockout state as a health component. A locked-out
// machine is degraded, not unhealthy: the process itself works.
type Checker struct {
	svc *Service
}

// NewChecker returns a health checker backed by svc.
func NewChecker(svc *Service) *Checker {
	return &Checker{svc: svc}
}

func (c *Checker) Name() string { return "lockout" }

func (c *Checker) Check(_ context.Context) health.CheckResult {
	st := c.svc.Snapshot()
	if !st.IsDisabled {
		return health.CheckResult{Status: health.StatusHealthy, Message: "enabled"}
	}
	msg := fmt.Sprintf("disabled by %d reason(s)", len(st.Keys))
	if st.DisableImmediately {
		msg += ", immediate"
	}
	return health.CheckResult{Status: health.StatusDegraded, Message: msg}
}
