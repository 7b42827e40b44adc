// Package app provides the top-level application lifecycle for the ingestion
// service. It wires together the sinks, trackers, feeds, and listeners, and
// starts the appropriate goroutines based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Oceanjackson1/Polymarket-BTC-5m-Scraper-API-Soluation/internal/config"
)

// flushTimeout bounds the final flush during shutdown.
const flushTimeout = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. On return it flushes the sinks and runs all
// registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	var runErr error
	switch strings.ToLower(a.cfg.Mode) {
	case "record":
		runErr = a.RecordMode(ctx, deps)
	case "stream":
		runErr = a.StreamMode(ctx, deps)
	case "full":
		runErr = a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}

	// The run context is already cancelled; flush on a fresh one so buffered
	// records reach disk before cleanup closes the files.
	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if err := deps.Sink.Flush(flushCtx); err != nil {
		a.logger.Error("final flush failed", slog.String("error", err.Error()))
	}

	return runErr
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
