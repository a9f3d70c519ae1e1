// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/egmlock/internal/log"
)

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to reserve listen addr")
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func testDeps() Deps {
	return Deps{
		Logger: log.WithComponent("test"),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	}
}

func TestNewManager_ValidDeps(t *testing.T) {
	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), testDeps())
	require.NoError(t, err)
	assert.NotNil(t, mgr)
}

func TestNewManager_MissingLogger(t *testing.T) {
	deps := testDeps()
	deps.Logger = zerolog.Nop()

	_, err := NewManager(DefaultServerConfig("127.0.0.1:0"), deps)
	assert.ErrorIs(t, err, ErrMissingLogger)
}

func TestNewManager_MissingHandler(t *testing.T) {
	deps := testDeps()
	deps.Handler = nil

	_, err := NewManager(DefaultServerConfig("127.0.0.1:0"), deps)
	assert.ErrorIs(t, err, ErrMissingHandler)
}

func TestManager_StartStop_OK(t *testing.T) {
	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), testDeps())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	addr, err := mgr.(*manager).Addr(waitCtx)
	require.NoError(t, err)

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}, Timeout: time.Second}
	resp, err := client.Get("http://" + addr + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestManager_HooksRunInReverseOrder(t *testing.T) {
	mgr, err := NewManager(ServerConfig{ShutdownTimeout: time.Second}, testDeps())
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"journal", "recorder", "coordinator"} {
		mgr.RegisterShutdownHook(name, func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, mgr.Start(ctx))

	assert.Equal(t, []string{"coordinator", "recorder", "journal"}, order)
}

func TestManager_HookErrorsAreJoined(t *testing.T) {
	mgr, err := NewManager(ServerConfig{ShutdownTimeout: time.Second}, testDeps())
	require.NoError(t, err)

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	mgr.RegisterShutdownHook("a", func(context.Context) error { return errA })
	mgr.RegisterShutdownHook("b", func(context.Context) error { return errB })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = mgr.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestManager_Shutdown_NotStarted(t *testing.T) {
	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), testDeps())
	require.NoError(t, err)

	assert.ErrorIs(t, mgr.Shutdown(context.Background()), ErrManagerNotStarted)
}

func TestManager_StartTwice(t *testing.T) {
	mgr, err := NewManager(ServerConfig{}, testDeps())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, mgr.Start(ctx))
	assert.ErrorIs(t, mgr.Start(ctx), ErrManagerStarted)
}

func TestManager_PropagatesListenErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	mgr, err := NewManager(DefaultServerConfig(ln.Addr().String()), testDeps())
	require.NoError(t, err)

	var hookRan bool
	mgr.RegisterShutdownHook("cleanup", func(context.Context) error {
		hookRan = true
		return nil
	})

	err = mgr.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
	assert.True(t, hookRan, "hooks still run when the listener cannot bind")
}
