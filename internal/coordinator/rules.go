// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package coordinator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ManuGH/egmlock/internal/config"
	"github.com/ManuGH/egmlock/internal/device"
	"github.com/ManuGH/egmlock/internal/disable"
	"github.com/ManuGH/egmlock/internal/validate"
)

// ErrInvalidRules marks a rule set that must stop startup. The wrapped
// validate.ValidationError lists every violation.
var ErrInvalidRules = errors.New("invalid coordinator rules")

// Rule maps one trigger event to a disable reason and the events that clear it.
type Rule struct {
	ID               string
	Trigger          EventType
	DisableCode      device.Reason
	EnableCode       device.Reason
	Clearing         []EventType
	Priority         disable.Priority
	Message          disable.Text
	AffectsIdleState bool
}

// ClearedBy reports whether t releases this rule.
func (r Rule) ClearedBy(t EventType) bool {
	return slices.Contains(r.Clearing, t)
}

// ResolveRules turns rule-file entries into rules, resolving every name
// against cat. Any unknown name fails the whole set.
func ResolveRules(specs []config.RuleSpec, cat *Catalog) ([]Rule, error) {
	v := validate.New()
	rules := make([]Rule, 0, len(specs))

	for i, s := range specs {
		field := fmt.Sprintf("rules[%d]", i)
		r := Rule{ID: s.ID, AffectsIdleState: true}

		r.Trigger = resolveEvent(v, cat, field+".trigger", s.Trigger)
		for j, name := range s.Clearing {
			r.Clearing = append(r.Clearing, resolveEvent(v, cat, fmt.Sprintf("%s.clearing[%d]", field, j), name))
		}

		var err error
		if r.DisableCode, err = device.ParseReason(s.DisableCode); err != nil {
			v.AddError(field+".disable_code", err.Error(), s.DisableCode)
		}
		if r.EnableCode, err = device.ParseReason(s.EnableCode); err != nil {
			v.AddError(field+".enable_code", err.Error(), s.EnableCode)
		}
		if r.Priority, err = disable.ParsePriority(s.Priority); err != nil {
			v.AddError(field+".priority", err.Error(), s.Priority)
		}

		switch {
		case s.MessageKey != "":
			r.Message = disable.Localized{Key: s.MessageKey}
		case s.Message != "":
			r.Message = disable.Literal(s.Message)
		default:
			r.Message = disable.Literal(s.ID)
		}
		if s.AffectsIdleState != nil {
			r.AffectsIdleState = *s.AffectsIdleState
		}
		rules = append(rules, r)
	}

	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRules, err)
	}
	return rules, nil
}

func resolveEvent(v *validate.Validator, cat *Catalog, field, name string) EventType {
	if name == "" {
		v.AddError(field, "event type is required", name)
		return EventNone
	}
	t, ok := cat.Resolve(name)
	if !ok {
		v.AddError(field, fmt.Sprintf("unknown event type %q", name), name)
	}
	return t
}

// ValidateRules checks the structural invariants of a rule set: every event
// type resolves, no trigger is shared between rules, and every rule has at
// least one clearing event that is not its own trigger.
func ValidateRules(cat *Catalog, rules []Rule) error {
	v := validate.New()
	ids := make(map[string]string, len(rules))
	triggers := make(map[string]string, len(rules))

	for i, r := range rules {
		field := fmt.Sprintf("rules[%d]", i)
		owner := fmt.Sprintf("rule %q", r.ID)

		v.NotEmpty(field+".id", r.ID)
		if r.ID != "" {
			v.Unique(field+".id", r.ID, owner, ids)
		}

		if !cat.Known(r.Trigger) {
			v.AddError(field+".trigger", "missing or unresolvable event type", r.Trigger)
		} else {
			v.Unique(field+".trigger", cat.Name(r.Trigger), owner, triggers)
		}

		if len(r.Clearing) == 0 {
			v.AddError(field+".clearing", "at least one clearing event type is required", r.Clearing)
		}
		for j, c := range r.Clearing {
			cf := fmt.Sprintf("%s.clearing[%d]", field, j)
			switch {
			case !cat.Known(c):
				v.AddError(cf, "missing or unresolvable event type", c)
			case c == r.Trigger:
				v.AddError(cf, "a rule cannot be cleared by its own trigger", cat.Name(c))
			}
		}

		if r.EnableCode == device.ReasonNone {
			v.AddError(field+".enable_code", "enable code is required", r.EnableCode)
		}
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRules, err)
	}
	return nil
}
