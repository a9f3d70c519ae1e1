// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strings"
)

// RuleSpec is one disable rule as written in the rule file. Names are
// resolved against the event catalog by the coordinator.
type RuleSpec struct {
	ID               string   `yaml:"id"`
	Trigger          string   `yaml:"trigger"`
	DisableCode      string   `yaml:"disable_code"`
	EnableCode       string   `yaml:"enable_code"`
	Clearing         []string `yaml:"clearing"`
	Priority         string   `yaml:"priority"`
	Message          string   `yaml:"message"`
	MessageKey       string   `yaml:"message_key"`
	AffectsIdleState *bool    `yaml:"affects_idle_state"`
}

// RuleFile is the decoded rule file. Messages maps a locale to the
// message_key formats shown for that display language.
type RuleFile struct {
	Rules    []RuleSpec                   `yaml:"rules"`
	Messages map[string]map[string]string `yaml:"messages"`
}

// MessagesFor returns the formats for locale, falling back to its base
// language ("de" for "de-AT").
func (f RuleFile) MessagesFor(locale string) map[string]string {
	if m, ok := f.Messages[locale]; ok {
		return m
	}
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		return f.Messages[locale[:i]]
	}
	return nil
}

// LoadRuleFile strictly decodes a rule file including its message table.
func LoadRuleFile(path string) (RuleFile, error) {
	var f RuleFile
	if err := decodeStrictFile(path, &f); err != nil {
		return RuleFile{}, fmt.Errorf("load rules: %w", err)
	}
	return f, nil
}

// LoadRules strictly decodes a rule file and returns only its rules.
func LoadRules(path string) ([]RuleSpec, error) {
	f, err := LoadRuleFile(path)
	if err != nil {
		return nil, err
	}
	return f.Rules, nil
}
