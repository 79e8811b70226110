// Package app wires deltasync's stores, caches, object storage and
// notifications from configuration and exposes the operations the CLI runs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/deltasync/internal/config"
	"github.com/alanyoungcy/deltasync/internal/domain"
	"github.com/alanyoungcy/deltasync/internal/pipeline"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
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

// Run wires every dependency and processes dates in the configured mode. An
// empty dates slice falls back to run.dates from the configuration.
func (a *App) Run(ctx context.Context, dates []domain.TradingDate) ([]pipeline.Report, error) {
	if len(dates) == 0 {
		var err error
		if dates, err = ConfiguredDates(a.cfg); err != nil {
			return nil, err
		}
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("app: no dates to process")
	}

	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting run",
		slog.String("mode", mode),
		slog.Int("dates", len(dates)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	runner, err := pipeline.NewRunner(RunOptions(a.cfg), deps.runnerDeps(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return runner.Run(ctx, dates)
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

// ConfiguredDates parses run.dates.
func ConfiguredDates(cfg *config.Config) ([]domain.TradingDate, error) {
	out := make([]domain.TradingDate, 0, len(cfg.Run.Dates))
	for _, s := range cfg.Run.Dates {
		d, err := domain.ParseTradingDate(s)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		out = append(out, d)
	}
	return out, nil
}
