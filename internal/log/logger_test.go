// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithComponentAddsServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "egm-test", Version: "v0.0.1"})
	t.Cleanup(func() { Configure(Config{}) })

	l := WithComponent("disable")
	l.Info().Str(FieldEvent, "disable.added").Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "egm-test", entry["service"])
	require.Equal(t, "v0.0.1", entry["version"])
	require.Equal(t, "disable", entry[FieldComponent])
	require.Equal(t, "disable.added", entry[FieldEvent])
}

func TestWithContextAddsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "info", Output: &buf})
	t.Cleanup(func() { Configure(Config{}) })

	ctx := ContextWithCorrelationID(context.Background(), "cid-42")
	require.Equal(t, "cid-42", CorrelationIDFromContext(ctx))

	l := WithContext(ctx, Base())
	l.Info().Msg("x")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "cid-42", entry[FieldCorrelationID])
}

func TestCorrelationIDFromNilContext(t *testing.T) {
	//nolint:staticcheck // nil context is part of the contract
	require.Empty(t, CorrelationIDFromContext(nil))
}

func TestFromContextFallsBackToBase(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
}
