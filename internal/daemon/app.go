// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Worker is a long-lived loop owned by the App. Run must return once ctx is done.
type Worker struct {
	Name string
	Run  func(ctx context.Context) error
}

// App owns the background workers and delegates server management to Manager.
type App struct {
	logger  zerolog.Logger
	manager Manager
	workers []Worker
}

// NewApp creates a new App orchestrator.
func NewApp(logger zerolog.Logger, manager Manager, workers ...Worker) *App {
	return &App{
		logger:  logger,
		manager: manager,
		workers: workers,
	}
}

// Run starts every worker and the manager, blocking until ctx is cancelled
// or one of them fails. A failing worker cancels the rest.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, w := range a.workers {
		g.Go(func() error {
			a.logger.Debug().Str("worker", w.Name).Msg("worker started")
			err := w.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error().Err(err).Str("worker", w.Name).Str("event", "worker.failed").Msg("worker stopped with error")
				return fmt.Errorf("worker %s: %w", w.Name, err)
			}
			a.logger.Debug().Str("worker", w.Name).Msg("worker stopped")
			return nil
		})
	}

	g.Go(func() error {
		return a.manager.Start(gctx)
	})

	return g.Wait()
}
