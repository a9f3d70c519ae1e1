// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ManuGH/egmlock/internal/validate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	cfg, err := NewLoader("testdata/config.yaml", "1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "egmd", cfg.LogService, "unset fields keep defaults")
	assert.Equal(t, "de", cfg.Locale)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.PublishTimeout)
	assert.Equal(t, DeviceConfig{Name: "bill-validator", BreakerThreshold: 5, BreakerReset: 30 * time.Second}, cfg.Device)
	assert.Equal(t, "1.2.3", cfg.Version)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvBreakerThreshold, "7")
	t.Setenv(EnvPublishTimeout, "not-a-duration")

	l := NewLoader("testdata/config.yaml", "")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7, cfg.Device.BreakerThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.PublishTimeout, "invalid env keeps the file value")
	assert.Contains(t, l.ConsumedEnvKeys, EnvJournalPath)
}

func TestLoad_NoFileRequiresRulesPath(t *testing.T) {
	_, err := NewLoader("", "").Load()
	require.Error(t, err)

	var verr validate.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Len(t, verr.Errors(), 1)
	assert.Equal(t, "RulesPath", verr.Errors()[0].Field)
}

func TestLoad_UnknownFieldIsStrict(t *testing.T) {
	p := writeFile(t, "config.yaml", "rulesPath: /r.yaml\nunknownField: x\n")
	_, err := NewLoader(p, "").Load()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField), "got %v", err)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	p := writeFile(t, "config.json", "{}")
	_, err := NewLoader(p, "").Load()
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "got %v", err)
}

func TestLoad_RejectsTrailingDocuments(t *testing.T) {
	p := writeFile(t, "config.yaml", "rulesPath: /a.yaml\n---\nrulesPath: /b.yaml\n")
	_, err := NewLoader(p, "").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple documents")
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "chatty"
	cfg.Locale = "!!"
	cfg.MetricsAddr = "nope"
	cfg.PublishTimeout = 0
	cfg.Device.BreakerThreshold = 0

	err := Validate(cfg)
	require.Error(t, err)

	var verr validate.ValidationError
	require.True(t, errors.As(err, &verr))
	fields := make([]string, 0, len(verr.Errors()))
	for _, e := range verr.Errors() {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{
		"LogLevel", "Locale", "MetricsAddr", "RulesPath", "PublishTimeout", "Device.BreakerThreshold",
	}, fields)
}

func TestParseBool(t *testing.T) {
	const key = "EGM_TEST_BOOL"
	for in, want := range map[string]bool{"yes": true, "0": false, "TRUE": true, "maybe": true} {
		t.Setenv(key, in)
		assert.Equal(t, want, ParseBool(key, true), "input %q", in)
	}
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("testdata/rules.yaml")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "cashbox-door", rules[0].ID)
	assert.Equal(t, []string{"door.cashbox.closed"}, rules[0].Clearing)
	assert.Equal(t, "immediate", rules[0].Priority)
	assert.Nil(t, rules[0].AffectsIdleState)

	require.NotNil(t, rules[1].AffectsIdleState)
	assert.False(t, *rules[1].AffectsIdleState)
	assert.Equal(t, "Stacker removed", rules[1].Message)
}

func TestLoadRules_UnknownKey(t *testing.T) {
	p := writeFile(t, "rules.yaml", "rules:\n  - id: a\n    triger: door.cashbox.opened\n")
	_, err := LoadRules(p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownConfigField))
	assert.True(t, strings.Contains(err.Error(), "triger"), err.Error())
}

func TestLoadRules_Empty(t *testing.T) {
	rules, err := LoadRules(writeFile(t, "rules.yml", ""))
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestLoad_Telemetry(t *testing.T) {
	cfg, err := NewLoader("testdata/config.yaml", "").Load()
	require.NoError(t, err)
	assert.Equal(t, TelemetryConfig{Enabled: true, Exporter: "http", Endpoint: "collector:4318", SamplingRate: 0.25}, cfg.Telemetry)

	t.Setenv(EnvOTelEnabled, "no")
	t.Setenv(EnvOTelSamplingRate, "2")
	cfg, err = NewLoader("testdata/config.yaml", "").Load()
	require.NoError(t, err, "disabled telemetry skips exporter validation")
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 2.0, cfg.Telemetry.SamplingRate)
}

func TestLoadRuleFile_Messages(t *testing.T) {
	f, err := LoadRuleFile("testdata/rules.yaml")
	require.NoError(t, err)
	require.Len(t, f.Rules, 2)

	assert.Equal(t, "Kassentür offen", f.MessagesFor("de")["reason.cashbox_door"])
	assert.Equal(t, "Kassentür offen", f.MessagesFor("de-AT")["reason.cashbox_door"], "falls back to base language")
	assert.Equal(t, "Cashbox door open", f.MessagesFor("en")["reason.cashbox_door"])
	assert.Nil(t, f.MessagesFor("fr"))
}
