// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package coordinator

import (
	"errors"
	"testing"

	"github.com/ManuGH/egmlock/internal/config"
	"github.com/ManuGH/egmlock/internal/device"
	"github.com/ManuGH/egmlock/internal/disable"
	"github.com/ManuGH/egmlock/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fieldsOf(t *testing.T, err error) []string {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidRules), "got %v", err)
	var verr validate.ValidationError
	require.True(t, errors.As(err, &verr), "got %T", err)
	out := make([]string, 0, len(verr.Errors()))
	for _, e := range verr.Errors() {
		out = append(out, e.Field)
	}
	return out
}

func TestValidateRules(t *testing.T) {
	noClearing := doorRule
	noClearing.Clearing = nil

	unresolved := doorRule
	unresolved.Trigger = EventNone

	badClearing := doorRule
	badClearing.Clearing = []EventType{EventType(9999)}

	selfClearing := doorRule
	selfClearing.Clearing = []EventType{doorRule.Trigger}

	sameID := jamRule
	sameID.ID = doorRule.ID

	noCode := doorRule
	noCode.EnableCode = device.ReasonNone

	tests := []struct {
		name   string
		rules  []Rule
		fields []string
	}{
		{"valid", []Rule{doorRule, jamRule, stackerRule}, nil},
		{"empty set", nil, nil},
		{"duplicate trigger", []Rule{stackerRule, func() Rule { r := stackerRule; r.ID = "other"; return r }()}, []string{"rules[1].trigger"}},
		{"zero clearing events", []Rule{noClearing}, []string{"rules[0].clearing"}},
		{"unresolvable trigger", []Rule{unresolved}, []string{"rules[0].trigger"}},
		{"unresolvable clearing", []Rule{badClearing}, []string{"rules[0].clearing[0]"}},
		{"cleared by own trigger", []Rule{selfClearing}, []string{"rules[0].clearing[0]"}},
		{"duplicate id", []Rule{doorRule, sameID}, []string{"rules[1].id"}},
		{"missing enable code", []Rule{noCode}, []string{"rules[0].enable_code"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRules(testCatalog, tt.rules)
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.fields, fieldsOf(t, err))
		})
	}
}

func TestResolveRules(t *testing.T) {
	idle := false
	specs := []config.RuleSpec{
		{
			ID:          "cashbox-door",
			Trigger:     EventCashboxDoorOpened,
			DisableCode: "door",
			EnableCode:  "door",
			Clearing:    []string{EventCashboxDoorClosed},
			Priority:    "immediate",
			MessageKey:  "reason.cashbox_door",
		},
		{
			ID:               "stacker-removed",
			Trigger:          EventStackerRemoved,
			DisableCode:      "system",
			EnableCode:       "System",
			Clearing:         []string{EventStackerInserted},
			Message:          "Stacker removed",
			AffectsIdleState: &idle,
		},
	}

	rules, err := ResolveRules(specs, testCatalog)
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, testCatalog.MustResolve(EventCashboxDoorOpened), rules[0].Trigger)
	assert.Equal(t, device.ReasonDoor, rules[0].DisableCode)
	assert.Equal(t, disable.PriorityImmediate, rules[0].Priority)
	assert.Equal(t, disable.Localized{Key: "reason.cashbox_door"}, rules[0].Message)
	assert.True(t, rules[0].AffectsIdleState, "idle state defaults to affected")

	assert.Equal(t, device.ReasonSystem, rules[1].EnableCode)
	assert.Equal(t, disable.PriorityNormal, rules[1].Priority)
	assert.Equal(t, disable.Literal("Stacker removed"), rules[1].Message)
	assert.False(t, rules[1].AffectsIdleState)
	assert.True(t, rules[1].ClearedBy(testCatalog.MustResolve(EventStackerInserted)))

	require.NoError(t, ValidateRules(testCatalog, rules))
}

func TestResolveRules_ReportsEveryUnknownName(t *testing.T) {
	specs := []config.RuleSpec{{
		ID:          "bad",
		Trigger:     "door.belly.opened",
		DisableCode: "tilt",
		EnableCode:  "door",
		Clearing:    []string{EventCashboxDoorClosed, ""},
		Priority:    "urgent",
	}}

	_, err := ResolveRules(specs, testCatalog)
	assert.Equal(t, []string{
		"rules[0].trigger",
		"rules[0].clearing[1]",
		"rules[0].disable_code",
		"rules[0].priority",
	}, fieldsOf(t, err))
}

func TestCatalog(t *testing.T) {
	c := NewCatalog("a.opened")
	a := c.Register("a.opened")
	b := c.Register("b.opened")

	assert.Equal(t, c.MustResolve("a.opened"), a, "re-registering returns the existing type")
	assert.NotEqual(t, a, b)
	assert.Equal(t, "b.opened", c.Name(b))
	assert.True(t, c.Known(b))
	assert.False(t, c.Known(EventNone))
	assert.False(t, c.Known(EventType(3)))
	assert.Equal(t, []string{"a.opened", "b.opened"}, c.Names())

	_, ok := c.Resolve("c.opened")
	assert.False(t, ok)
	assert.Panics(t, func() { c.MustResolve("c.opened") })
}
