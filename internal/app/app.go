// Package app wires dependencies and runs the application's subcommands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skybotdev/skybot/internal/analytics"
	"github.com/skybotdev/skybot/internal/config"
	"github.com/skybotdev/skybot/internal/domain"
	"github.com/skybotdev/skybot/internal/market"
	"github.com/skybotdev/skybot/internal/oms"
	"github.com/skybotdev/skybot/internal/risk"
	"github.com/skybotdev/skybot/internal/server"
	"github.com/skybotdev/skybot/internal/server/handler"
	"github.com/skybotdev/skybot/internal/strategy"
	"github.com/skybotdev/skybot/internal/trader"
	"github.com/skybotdev/skybot/internal/weather"
)

// tradingLockKey is the distributed lock held while a trader instance runs.
const tradingLockKey = "skybot:trader"

// tradingLockTTL bounds how long a crashed instance blocks a restart.
const tradingLockTTL = 5 * time.Minute

// App owns the wired dependencies for one process lifetime.
type App struct {
	cfg     *config.Config
	deps    *Dependencies
	cleanup func()
	logger  *slog.Logger
}

// New wires the application from configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	deps, cleanup, err := Wire(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:     cfg,
		deps:    deps,
		cleanup: cleanup,
		logger:  logger.With(slog.String("component", "app")),
	}, nil
}

// Close releases all wired resources.
func (a *App) Close() {
	if a.cleanup != nil {
		a.cleanup()
	}
}

// buildOMS constructs the order management system from the wired deps.
func (a *App) buildOMS() *oms.OMS {
	return oms.New(
		a.deps.Exchange,
		oms.Stores{
			Intents:   a.deps.IntentStore,
			Orders:    a.deps.OrderStore,
			Fills:     a.deps.FillStore,
			Positions: a.deps.PositionStore,
			Cursors:   a.deps.CursorStore,
			Events:    a.deps.RiskEvents,
		},
		oms.Config{
			RepriceInterval: a.cfg.RepriceInterval(),
			MaxChaseCents:   a.cfg.OMS.MaxChaseCents,
		},
		a.deps.Cities.ClusterOf,
		a.deps.EventBus,
		a.logger,
	)
}

// RunTrading starts the trading loop, the cron jobs, and the read-only API
// server, blocking until the context is cancelled.
func (a *App) RunTrading(ctx context.Context) error {
	// Only one trader instance may run against an account.
	unlock, err := a.deps.LockManager.Acquire(ctx, tradingLockKey, tradingLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return fmt.Errorf("app: another trader instance holds the lock: %w", err)
		}
		return fmt.Errorf("app: acquire trading lock: %w", err)
	}
	defer unlock()

	orderManager := a.buildOMS()

	// Startup reconciliation before the first cycle.
	if a.cfg.Mode != config.ModeShadow {
		report, err := orderManager.ReconcileStartup(ctx)
		if err != nil && !errors.Is(err, domain.ErrReconcileMismatch) {
			return fmt.Errorf("app: startup reconciliation: %w", err)
		}
		if report.OrphansImported > 0 || report.Mismatches > 0 {
			_ = a.deps.Notifier.Notify(ctx, "reconcile_mismatch",
				"Startup reconciliation",
				fmt.Sprintf("%d orphan(s) imported, %d mismatch(es)", report.OrphansImported, report.Mismatches),
			)
		}
		a.logger.Info("startup reconciliation complete",
			slog.Int("exchange_open", report.ExchangeOpen),
			slog.Int("orphans_imported", report.OrphansImported),
			slog.Int("stale_closed", report.StaleClosed),
		)
	}

	weatherProvider := weather.NewProvider(a.deps.Weather, weather.Config{
		CacheTTL:       a.cfg.WeatherCacheTTL(),
		StaleCeiling:   a.cfg.WeatherStaleCeiling(),
		DefaultStdDevF: a.cfg.Trading.DefaultStdDevF,
	}, a.logger)

	marketProvider := market.NewProvider(
		a.deps.Exchange,
		a.deps.QuoteCache,
		time.Duration(a.cfg.Redis.QuoteTTLSec)*time.Second,
		a.logger,
	)

	registry := strategy.NewRegistry()
	dailyHigh := strategy.NewDailyHighTemp()
	if err := registry.Register(dailyHigh); err != nil {
		return fmt.Errorf("app: register strategy: %w", err)
	}

	caps := risk.CapsFromConfig(a.cfg.Trading)
	engine := risk.NewEngine(caps, a.logger)
	breaker := risk.NewBreaker(
		caps.DailyLossCap,
		a.cfg.Trading.MaxRejectsPerWindow,
		a.cfg.RejectWindow(),
		a.logger,
	)

	loop := trader.New(
		a.cfg,
		a.deps.Cities,
		weatherProvider,
		marketProvider,
		dailyHigh,
		engine,
		breaker,
		orderManager,
		trader.Stores{
			Weather:   a.deps.WeatherStore,
			Markets:   a.deps.MarketStore,
			Signals:   a.deps.SignalStore,
			Positions: a.deps.PositionStore,
			Events:    a.deps.RiskEvents,
			Health:    a.deps.HealthStore,
		},
		a.deps.Notifier,
		a.logger,
	)

	// Scheduled jobs: daily rollups and the archival sweep.
	rollupEngine := analytics.NewEngine(a.deps.RollupStore, a.deps.PositionStore, a.cfg.Trading.Bankroll, a.logger)
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(a.cfg.Rollups.Cron, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		// Cover yesterday and today so late fills land in the right day.
		if err := rollupEngine.Recompute(jobCtx, 2); err != nil {
			a.logger.Error("scheduled rollups failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("app: schedule rollups: %w", err)
	}
	if a.deps.Archiver != nil {
		if _, err := scheduler.AddFunc(a.cfg.Archive.Cron, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
			defer cancel()
			if _, err := a.deps.Archiver.Run(jobCtx, archiveCutoff(a.cfg.Archive.RetentionDays)); err != nil {
				a.logger.Error("archival sweep failed", slog.String("error", err.Error()))
			}
		}); err != nil {
			return fmt.Errorf("app: schedule archival: %w", err)
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Read-only API server.
	if a.cfg.Server.Enabled {
		srv := server.NewServer(
			server.Config{Port: a.cfg.Server.Port, CORSOrigins: a.cfg.Server.CORSOrigins},
			server.Handlers{
				Health: handler.NewHealthHandler(a.deps.HealthStore, a.logger),
				Public: handler.NewPublicHandler(a.deps.PublicTrades, a.logger),
			},
			a.logger,
		)
		go func() {
			if err := srv.Start(); err != nil {
				a.logger.Error("server failed", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	return loop.Run(ctx)
}

// RunReconcile performs one-shot startup reconciliation.
func (a *App) RunReconcile(ctx context.Context) (oms.StartupReport, error) {
	return a.buildOMS().ReconcileStartup(ctx)
}

// RunRollups regenerates analytics aggregates for the trailing number of
// days.
func (a *App) RunRollups(ctx context.Context, days int) error {
	engine := analytics.NewEngine(a.deps.RollupStore, a.deps.PositionStore, a.cfg.Trading.Bankroll, a.logger)
	return engine.Recompute(ctx, days)
}
