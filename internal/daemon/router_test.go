// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/egmlock/internal/audit"
	"github.com/ManuGH/egmlock/internal/bus"
	"github.com/ManuGH/egmlock/internal/coordinator"
	"github.com/ManuGH/egmlock/internal/device"
	"github.com/ManuGH/egmlock/internal/disable"
	"github.com/ManuGH/egmlock/internal/health"
)

type fakePending struct {
	name string
	occ  []coordinator.PendingOccurrence
}

func (f fakePending) Name() string { return f.name }
func (f fakePending) Pending() []coordinator.PendingOccurrence { return f.occ }

type fakeJournal struct {
	entries []audit.Entry
	err     error
	limit   int
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]audit.Entry, error) {
	f.limit = limit
	return f.entries, f.err
}

func newTestRouter(t *testing.T, mutate func(*RouterDeps)) (http.Handler, *disable.Service) {
	t.Helper()
	svc := disable.NewService(disable.Options{})
	t.Cleanup(svc.Close)

	deps := RouterDeps{
		ServiceName: "egmd-test",
		Health:      health.NewManager("test"),
		Lockout:     svc,
		Catalog:     coordinator.DefaultCatalog(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewRouter(deps), svc
}

func get(t *testing.T, h http.Handler, target string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthEndpoints(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)

	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# TYPE")
}

func TestRouter_ReadyzReflectsLockout(t *testing.T) {
	hm := health.NewManager("test")
	h, svc := newTestRouter(t, func(d *RouterDeps) { d.Health = hm })
	hm.RegisterChecker(disable.NewChecker(svc))

	require.Equal(t, http.StatusOK, get(t, h, "/readyz").Code)

	svc.Disable(context.Background(), uuid.New(), disable.PriorityImmediate, disable.Literal("cashbox door open"))
	rec := get(t, h, "/readyz?verbose=true")
	assert.Contains(t, rec.Body.String(), "lockout")
}

func TestRouter_Lockout(t *testing.T) {
	h, svc := newTestRouter(t, nil)

	empty := get(t, h, "/api/v1/lockout")
	require.Equal(t, http.StatusOK, empty.Code)
	assert.JSONEq(t, `{"isDisabled":false,"disableImmediately":false,"isIdleStateAffected":false,"reasons":[]}`, empty.Body.String())

	key := uuid.New()
	svc.Disable(context.Background(), key, disable.PriorityImmediate, disable.Literal("stacker removed"),
		disable.WithTriggeringEvent(coordinator.EventStackerRemoved))

	rec := get(t, h, "/api/v1/lockout")
	require.Equal(t, http.StatusOK, rec.Code)

	var view lockoutView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.IsDisabled)
	assert.True(t, view.DisableImmediately)
	require.Len(t, view.Reasons, 1)
	assert.Equal(t, key.String(), view.Reasons[0].Key)
	assert.Equal(t, "immediate", view.Reasons[0].Priority)
	assert.Equal(t, "stacker removed", view.Reasons[0].Message)
	assert.Equal(t, coordinator.EventStackerRemoved, view.Reasons[0].TriggeringEvent)
}

func TestRouter_Pending(t *testing.T) {
	cat := coordinator.DefaultCatalog()
	observed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	src := fakePending{name: "note-acceptor", occ: []coordinator.PendingOccurrence{{
		Rule: coordinator.Rule{
			ID:         "stacker-removed",
			Trigger:    cat.MustResolve(coordinator.EventStackerRemoved),
			EnableCode: device.ReasonDoor,
			Priority:   disable.PriorityImmediate,
		},
		ObservedAt: observed,
	}}}
	h, _ := newTestRouter(t, func(d *RouterDeps) {
		d.Catalog = cat
		d.Coordinators = []PendingSource{src}
	})

	rec := get(t, h, "/api/v1/coordinators/pending")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []pendingView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, pendingView{
		Coordinator: "note-acceptor",
		RuleID:      "stacker-removed",
		Trigger:     coordinator.EventStackerRemoved,
		EnableCode:  device.ReasonDoor.String(),
		Priority:    "immediate",
		ObservedAt:  observed,
	}, got[0])
}

func TestRouter_Journal(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h, _ := newTestRouter(t, nil)
		assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/lockout/journal").Code)
	})

	t.Run("default limit", func(t *testing.T) {
		j := &fakeJournal{}
		h, _ := newTestRouter(t, func(d *RouterDeps) { d.Journal = j })
		rec := get(t, h, "/api/v1/lockout/journal")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 100, j.limit)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("explicit limit", func(t *testing.T) {
		j := &fakeJournal{entries: []audit.Entry{{ID: 7, Kind: audit.EventDisableAdded}}}
		h, _ := newTestRouter(t, func(d *RouterDeps) { d.Journal = j })
		rec := get(t, h, "/api/v1/lockout/journal?limit=5")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 5, j.limit)
		assert.Contains(t, rec.Body.String(), `"ID":7`)
	})

	for _, bad := range []string{"0", "-1", "abc", "1001"} {
		t.Run("rejects "+bad, func(t *testing.T) {
			h, _ := newTestRouter(t, func(d *RouterDeps) { d.Journal = &fakeJournal{} })
			assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/v1/lockout/journal?limit="+bad).Code)
		})
	}

	t.Run("store error", func(t *testing.T) {
		h, _ := newTestRouter(t, func(d *RouterDeps) { d.Journal = &fakeJournal{err: errors.New("disk full")} })
		assert.Equal(t, http.StatusInternalServerError, get(t, h, "/api/v1/lockout/journal").Code)
	})
}

func TestRouter_RequestIDEchoed(t *testing.T) {
	h, _ := newTestRouter(t, nil)

	rec := get(t, h, "/healthz", HeaderRequestID, "req-42")
	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))

	minted := get(t, h, "/healthz").Header().Get(HeaderRequestID)
	_, err := uuid.Parse(minted)
	assert.NoError(t, err)
}

func TestRouter_RateLimit(t *testing.T) {
	h, _ := newTestRouter(t, func(d *RouterDeps) {
		d.RateLimit = RateLimitConfig{RequestLimit: 2, WindowSize: time.Minute}
	})

	for range 2 {
		require.Equal(t, http.StatusOK, get(t, h, "/api/v1/lockout").Code)
	}
	rec := get(t, h, "/api/v1/lockout")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code, "health endpoints are not rate limited")
}

func TestRecoverer(t *testing.T) {
	h := RequestID(Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rec := get(t, h, "/", HeaderRequestID, "req-panic")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error","requestId":"req-panic"}`, rec.Body.String())
}

func TestRouter_EmitEvent(t *testing.T) {
	b := bus.NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), coordinator.EventCashboxDoorOpened)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	h, _ := newTestRouter(t, func(d *RouterDeps) { d.Events = b })

	post := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := post(`{"event":"door.cashbox.opened","source":"service-tool"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	select {
	case env := <-sub.C():
		ev, ok := env.Payload.(coordinator.DomainEvent)
		require.True(t, ok)
		assert.Equal(t, "service-tool", ev.Source)
	case <-time.After(time.Second):
		t.Fatal("event not published")
	}

	assert.Equal(t, http.StatusBadRequest, post(`{"event":"door.unknown"}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`{"event":"door.cashbox.opened","extra":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(`not json`).Code)
}

func TestRouter_EmitRouteAbsentWithoutPublisher(t *testing.T) {
	h, _ := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
