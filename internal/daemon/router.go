// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/egmlock/internal/audit"
	"github.com/ManuGH/egmlock/internal/bus"
	"github.com/ManuGH/egmlock/internal/coordinator"
	"github.com/ManuGH/egmlock/internal/disable"
	"github.com/ManuGH/egmlock/internal/health"
)

const maxJournalLimit = 1000

// LockoutSource is the read side of the disable service.
type LockoutSource interface {
	Snapshot() disable.State
	Reasons() []disable.Reason
	Resolve(r disable.Reason) (message, help string)
}

// PendingSource exposes a coordinator's outstanding occurrences.
type PendingSource interface {
	Name() string
	Pending() []coordinator.PendingOccurrence
}

// JournalSource reads persisted lifecycle entries.
type JournalSource interface {
	Recent(ctx context.Context, limit int) ([]audit.Entry, error)
}

// RouterDeps wires the read-only HTTP surface.
type RouterDeps struct {
	ServiceName  string
	Health       *health.Manager
	Lockout      LockoutSource
	Catalog      *coordinator.Catalog
	Coordinators []PendingSource
	// Journal is optional; the endpoint answers 404 without it.
	Journal JournalSource
	// Events enables POST /api/v1/events for injecting domain events from
	// maintenance tooling. Nil leaves the route unregistered.
	Events    bus.Publisher
	RateLimit RateLimitConfig
}

// NewRouter builds the chi router serving health checks, metrics and the lockout API.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(Tracing(deps.ServiceName))

	r.Get("/healthz", deps.Health.ServeHealth)
	r.Get("/readyz", deps.Health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	h := &apiHandler{deps: deps}
	r.Route("/api/v1", func(r chi.Router) {
		if deps.RateLimit.RequestLimit > 0 {
			r.Use(RateLimit(deps.RateLimit))
		}
		r.Get("/lockout", h.lockout)
		r.Get("/lockout/journal", h.journal)
		r.Get("/coordinators/pending", h.pending)
		if deps.Events != nil && deps.Catalog != nil {
			r.Post("/events", h.emit)
		}
	})
	return r
}

type apiHandler struct {
	deps RouterDeps
}

type reasonView struct {
	Key              string        `json:"key"`
	Priority         string        `json:"priority"`
	Message          string        `json:"message"`
	HelpText         string        `json:"helpText,omitempty"`
	AffectsIdleState bool          `json:"affectsIdleState"`
	TriggeringEvent  string        `json:"triggeringEvent,omitempty"`
	DisabledAt       time.Time     `json:"disabledAt"`
	Duration         time.Duration `json:"durationNs,omitempty"`
}

type lockoutView struct {
	IsDisabled          bool         `json:"isDisabled"`
	DisableImmediately  bool         `json:"disableImmediately"`
	IsIdleStateAffected bool         `json:"isIdleStateAffected"`
	Reasons             []reasonView `json:"reasons"`
}

func (h *apiHandler) lockout(w http.ResponseWriter, _ *http.Request) {
	st := h.deps.Lockout.Snapshot()
	view := lockoutView{
		IsDisabled:          st.IsDisabled,
		DisableImmediately:  st.DisableImmediately,
		IsIdleStateAffected: st.IsIdleStateAffected,
		Reasons:             []reasonView{},
	}
	for _, rs := range h.deps.Lockout.Reasons() {
		msg, help := h.deps.Lockout.Resolve(rs)
		view.Reasons = append(view.Reasons, reasonView{
			Key:              rs.Key.String(),
			Priority:         rs.Priority.String(),
			Message:          msg,
			HelpText:         help,
			AffectsIdleState: rs.AffectsIdleState,
			TriggeringEvent:  rs.TriggeringEvent,
			DisabledAt:       rs.DisabledAt,
			Duration:         rs.Duration,
		})
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *apiHandler) journal(w http.ResponseWriter, r *http.Request) {
	if h.deps.Journal == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "journal disabled"})
		return
	}
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxJournalLimit {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}
	entries, err := h.deps.Journal.Recent(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type pendingView struct {
	Coordinator string    `json:"coordinator"`
	RuleID      string    `json:"ruleId"`
	Trigger     string    `json:"trigger"`
	EnableCode  string    `json:"enableCode"`
	Priority    string    `json:"priority"`
	ObservedAt  time.Time `json:"observedAt"`
}

func (h *apiHandler) pending(w http.ResponseWriter, _ *http.Request) {
	out := []pendingView{}
	for _, c := range h.deps.Coordinators {
		for _, p := range c.Pending() {
			trigger := ""
			if h.deps.Catalog != nil {
				trigger = h.deps.Catalog.Name(p.Rule.Trigger)
			}
			out = append(out, pendingView{
				Coordinator: c.Name(),
				RuleID:      p.Rule.ID,
				Trigger:     trigger,
				EnableCode:  p.Rule.EnableCode.String(),
				Priority:    p.Rule.Priority.String(),
				ObservedAt:  p.ObservedAt,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type emitRequest struct {
	Event  string `json:"event"`
	Source string `json:"source"`
}

func (h *apiHandler) emit(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	t, ok := h.deps.Catalog.Resolve(req.Event)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown event " + strconv.Quote(req.Event)})
		return
	}
	if req.Source == "" {
		req.Source = "api"
	}
	if err := h.deps.Catalog.Emit(r.Context(), h.deps.Events, t, req.Source); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"event": req.Event})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
