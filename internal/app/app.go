// Package app initializes and orchestrates the main components of the
// service: the HTTP server, the embedding worker pool, and the cleanup
// reaper.
package app

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/repo-embedder/internal/cleanup"
	"github.com/sevigo/repo-embedder/internal/config"
	"github.com/sevigo/repo-embedder/internal/server"
	"github.com/sevigo/repo-embedder/internal/worker"
)

// App holds the main application components.
type App struct {
	cfg    *config.Config
	server *server.Server
	runner *worker.Runner
	reaper *cleanup.Reaper
	logger *slog.Logger

	cancelBackground context.CancelFunc
	background       *errgroup.Group
}

// NewApp wires the application together from its already-constructed parts.
func NewApp(cfg *config.Config, srv *server.Server, runner *worker.Runner, reaper *cleanup.Reaper, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		server: srv,
		runner: runner,
		reaper: reaper,
		logger: logger,
	}
}

// Start launches the worker pool and the reaper, then blocks serving HTTP.
func (a *App) Start() error {
	a.logger.Info("starting repo-embedder",
		"server_port", a.cfg.ServerPort,
		"server_id", a.cfg.ServerID,
		"max_workers", a.cfg.MaxWorkers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancelBackground = cancel

	g, gctx := errgroup.WithContext(ctx)
	a.background = g
	g.Go(func() error { return a.runner.Run(gctx) })
	g.Go(func() error { return a.reaper.Run(gctx) })

	return a.server.Start()
}

// Stop shuts down the application cleanly: the HTTP server first to stop new
// requests, then the background loops, letting in-flight jobs finish.
func (a *App) Stop() error {
	a.logger.Info("shutting down repo-embedder services")

	serverErr := a.server.Stop()
	if serverErr != nil {
		a.logger.Error("error during HTTP server shutdown", "error", serverErr)
	}

	if a.cancelBackground != nil {
		a.cancelBackground()
	}
	if a.background != nil {
		if err := a.background.Wait(); err != nil {
			a.logger.Error("background workers stopped with error", "error", err)
		}
	}

	if serverErr != nil {
		return serverErr
	}

	a.logger.Info("repo-embedder stopped successfully")
	return nil
}
