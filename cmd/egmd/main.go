// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// egmd runs the disable coordination core: the lockout service, the
// note-acceptor coordinator, the audit recorder and the health server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/egmlock/internal/config"
	egmlog "github.com/ManuGH/egmlock/internal/log"
	"github.com/ManuGH/egmlock/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	rulesPath := flag.String("rules", "", "path to rule file (overrides rulesPath)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	egmlog.Configure(egmlog.Config{
		Level:   "info",
		Service: "egmd",
		Version: version.Version,
	})
	logger := egmlog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := strings.TrimSpace(*configPath)
	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", path).
			Msg("failed to load configuration")
	}
	if p := strings.TrimSpace(*rulesPath); p != "" {
		cfg.RulesPath = p
	}

	egmlog.Configure(egmlog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
	})
	logger = egmlog.WithComponent("daemon")

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.MetricsAddr).
		Str("rules", cfg.RulesPath).
		Str("locale", cfg.Locale).
		Msg("starting egmd")

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.failed").
			Msg("failed to wire runtime")
	}

	runErr := rt.app.Run(ctx)
	closeErr := rt.Close(context.WithoutCancel(ctx))
	if runErr != nil || closeErr != nil {
		logger.Error().
			AnErr("run_error", runErr).
			AnErr("close_error", closeErr).
			Str("event", "daemon.failed").
			Msg("daemon stopped with errors")
		os.Exit(1)
	}

	logger.Info().Msg("egmd exiting")
}
