// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

const validRules = `rules:
  - id: cashbox-door
    trigger: door.cashbox.opened
    disable_code: door
    enable_code: door
    clearing: [door.cashbox.closed]
`

func TestValidateCLI(t *testing.T) {
	rules := writeFile(t, "rules.yaml", validRules)
	config := writeFile(t, "config.yaml", "logLevel: debug\nrulesPath: "+rules+"\n")

	tests := []struct {
		name       string
		args       []string
		wantExit   int
		wantStdout string
		wantStderr string
	}{
		{
			name:       "config only resolves rulesPath",
			args:       []string{"-f", config},
			wantExit:   0,
			wantStdout: rules + " is valid",
		},
		{
			name:       "explicit rules",
			args:       []string{"-r", rules},
			wantExit:   0,
			wantStdout: "is valid",
		},
		{
			name:       "unknown config key",
			args:       []string{"-f", writeFile(t, "bad.yaml", "logLevl: debug\n")},
			wantExit:   1,
			wantStderr: "Configuration error",
		},
		{
			name:       "invalid config value",
			args:       []string{"--file", writeFile(t, "level.yaml", "logLevel: loud\n")},
			wantExit:   1,
			wantStderr: "LogLevel",
		},
		{
			name: "rule without clearing event",
			args: []string{"-r", writeFile(t, "noclear.yaml", `rules:
  - id: a
    trigger: door.main.opened
    disable_code: door
    enable_code: door
`)},
			wantExit:   1,
			wantStderr: "Rule error",
		},
		{
			name: "shared trigger",
			args: []string{"-r", writeFile(t, "dup.yaml", validRules+`  - id: b
    trigger: door.cashbox.opened
    disable_code: door
    enable_code: door
    clearing: [door.main.closed]
`)},
			wantExit:   1,
			wantStderr: "door.cashbox.opened",
		},
		{
			name:       "missing rule file",
			args:       []string{"-r", filepath.Join(t.TempDir(), "absent.yaml")},
			wantExit:   1,
			wantStderr: "Rule error",
		},
		{
			name:       "no flags",
			wantExit:   2,
			wantStderr: "--file or --rules is required",
		},
		{
			name:     "unknown flag",
			args:     []string{"--nope"},
			wantExit: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(tt.args, &stdout, &stderr)

			assert.Equal(t, tt.wantExit, code, "stdout=%s stderr=%s", stdout.String(), stderr.String())
			if tt.wantStdout != "" {
				assert.Contains(t, stdout.String(), tt.wantStdout)
			}
			if tt.wantStderr != "" {
				assert.Contains(t, stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestValidateCLI_Version(t *testing.T) {
	var stdout bytes.Buffer
	assert.Equal(t, 0, run([]string{"-version"}, &stdout, &bytes.Buffer{}))
	assert.NotEmpty(t, stdout.String())
}
