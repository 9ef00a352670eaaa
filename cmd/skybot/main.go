// Command skybot is the trading agent's entry point. It loads and
// validates configuration, wires dependencies, and runs one of the
// subcommands: run (trading loop), reconcile (one-shot startup
// reconciliation), or rollups (regenerate analytics aggregates).
//
// Exit codes: 0 normal shutdown, 1 configuration error, 2 reconciliation
// mismatch, 3 fatal exchange-auth or internal failure.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skybotdev/skybot/internal/app"
	"github.com/skybotdev/skybot/internal/config"
	"github.com/skybotdev/skybot/internal/domain"
)

const (
	exitOK        = 0
	exitConfig    = 1
	exitReconcile = 2
	exitFatal     = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	flags := flag.NewFlagSet("skybot", flag.ContinueOnError)
	configPath := flags.String("config", "config.toml", "path to configuration file")
	mode := flags.String("mode", "", "override trading mode: shadow, paper, live")
	confirmLive := flags.Bool("confirm-live", false, "explicitly confirm live trading")
	days := flags.Int("days", 7, "trailing days for the rollups subcommand")

	args := os.Args[1:]
	subcommand := "run"
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		subcommand = args[0]
		args = args[1:]
	}
	if err := flags.Parse(args); err != nil {
		return exitConfig
	}

	// Bootstrap logger; replaced once the configured level is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return exitConfig
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return exitConfig
	}

	// Live trading requires an explicit process-startup confirmation flag
	// before any submission can happen.
	if subcommand == "run" && cfg.Mode == config.ModeLive && !*confirmLive {
		logger.Error("live mode requires --confirm-live")
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("skybot starting",
		slog.String("subcommand", subcommand),
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("wiring failed", slog.String("error", err.Error()))
		if errors.Is(err, domain.ErrAuth) {
			return exitFatal
		}
		return exitConfig
	}
	defer application.Close()

	switch subcommand {
	case "run":
		err = application.RunTrading(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			logger.Info("skybot stopped")
			return exitOK
		}
		logger.Error("trading loop exited", slog.String("error", err.Error()))
		if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrFatalInternal) {
			return exitFatal
		}
		return exitFatal

	case "reconcile":
		report, err := application.RunReconcile(ctx)
		if err != nil {
			logger.Error("reconciliation failed", slog.String("error", err.Error()))
			if errors.Is(err, domain.ErrReconcileMismatch) {
				return exitReconcile
			}
			if errors.Is(err, domain.ErrAuth) {
				return exitFatal
			}
			return exitFatal
		}
		logger.Info("reconciliation complete",
			slog.Int("exchange_open", report.ExchangeOpen),
			slog.Int("orphans_imported", report.OrphansImported),
			slog.Int("stale_closed", report.StaleClosed),
		)
		return exitOK

	case "rollups":
		if err := application.RunRollups(ctx, *days); err != nil {
			logger.Error("rollups failed", slog.String("error", err.Error()))
			return exitFatal
		}
		logger.Info("rollups complete", slog.Int("days", *days))
		return exitOK

	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q (valid: run, reconcile, rollups)\n", subcommand)
		return exitConfig
	}
}
