// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"github.com/ManuGH/egmlock/internal/audit"
	"github.com/ManuGH/egmlock/internal/bus"
	"github.com/ManuGH/egmlock/internal/config"
	"github.com/ManuGH/egmlock/internal/coordinator"
	"github.com/ManuGH/egmlock/internal/daemon"
	"github.com/ManuGH/egmlock/internal/device"
	"github.com/ManuGH/egmlock/internal/disable"
	"github.com/ManuGH/egmlock/internal/health"
	"github.com/ManuGH/egmlock/internal/telemetry"
)

// runtime holds everything egmd wires at startup.
type runtime struct {
	app      *daemon.App
	manager  daemon.Manager
	bus      *bus.MemoryBus
	catalog  *coordinator.Catalog
	service  *disable.Service
	device   *device.Simulated
	coord    *coordinator.Coordinator
	recorder *audit.Recorder
	journal  *audit.Journal
	tracing  *telemetry.Provider
}

func newRuntime(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (_ *runtime, err error) {
	rt := &runtime{catalog: coordinator.DefaultCatalog()}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	ruleFile, err := config.LoadRuleFile(cfg.RulesPath)
	if err != nil {
		return nil, err
	}
	rules, err := coordinator.ResolveRules(ruleFile.Rules, rt.catalog)
	if err != nil {
		return nil, err
	}

	tag, err := language.Parse(cfg.Locale)
	if err != nil {
		return nil, fmt.Errorf("locale %q: %w", cfg.Locale, err)
	}
	localizer, err := disable.NewCatalogLocalizer(tag, ruleFile.MessagesFor(cfg.Locale))
	if err != nil {
		return nil, err
	}

	rt.tracing, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.LogService,
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	rt.bus = bus.NewMemoryBus()
	rt.service = disable.NewService(disable.Options{
		Publisher:      rt.bus,
		Localizer:      localizer,
		PublishTimeout: cfg.PublishTimeout,
	})

	rt.device = device.NewSimulated(cfg.Device.Name)
	guard := device.NewGuard(rt.device, cfg.Device.BreakerThreshold, cfg.Device.BreakerReset)

	rt.coord, err = coordinator.New(coordinator.Options{
		Name:    cfg.Device.Name,
		Rules:   rules,
		Catalog: rt.catalog,
		Service: rt.service,
		Bus:     rt.bus,
		Device:  guard,
	})
	if err != nil {
		return nil, err
	}

	if cfg.JournalPath != "" {
		rt.journal, err = audit.OpenJournal(ctx, cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}
	rt.recorder = audit.NewRecorder(rt.bus, audit.NewLogger(), rt.journal)

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(disable.NewChecker(rt.service))

	routes := daemon.RouterDeps{
		ServiceName:  cfg.LogService,
		Health:       hm,
		Lockout:      rt.service,
		Catalog:      rt.catalog,
		Coordinators: []daemon.PendingSource{rt.coord},
		Events:       rt.bus,
		RateLimit:    daemon.RateLimitConfig{RequestLimit: 600, WindowSize: time.Minute},
	}
	if rt.journal != nil {
		hm.RegisterChecker(rt.journal.Checker())
		routes.Journal = rt.journal
	}

	rt.manager, err = daemon.NewManager(daemon.DefaultServerConfig(cfg.MetricsAddr), daemon.Deps{
		Logger:  logger,
		Handler: daemon.NewRouter(routes),
	})
	if err != nil {
		return nil, err
	}
	rt.manager.RegisterShutdownHook("disable-service", func(context.Context) error {
		rt.service.Close()
		return nil
	})

	rt.app = daemon.NewApp(logger, rt.manager,
		daemon.Worker{Name: "recorder", Run: rt.recorder.Run},
		daemon.Worker{Name: "coordinator:" + rt.coord.Name(), Run: rt.coord.Run},
	)
	return rt, nil
}

// Close releases what outlives the workers. Call it after App.Run returns.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.journal != nil {
		if err := rt.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("journal: %w", err))
		}
	}
	if rt.tracing != nil {
		if err := rt.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
