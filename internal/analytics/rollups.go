// Package analytics computes the idempotent daily aggregates: per-city
// totals, per-strategy stats, and equity-curve snapshots. A recompute from
// scratch equals the incremental result for any day.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/skybotdev/skybot/internal/domain"
)

// Engine runs the rollup computations against the rollup store.
type Engine struct {
	rollups   domain.RollupStore
	positions domain.PositionStore
	bankroll  float64
	logger    *slog.Logger

	now func() time.Time
}

// NewEngine creates a rollup Engine. bankroll is the configured baseline
// for the equity curve.
func NewEngine(rollups domain.RollupStore, positions domain.PositionStore, bankroll float64, logger *slog.Logger) *Engine {
	return &Engine{
		rollups:   rollups,
		positions: positions,
		bankroll:  bankroll,
		logger:    logger.With(slog.String("component", "rollups")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine's clock. Tests only.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// RunDay recomputes every aggregate for one UTC day and upserts the
// results. Running it twice for the same day is a no-op.
func (e *Engine) RunDay(ctx context.Context, day time.Time) error {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

	cityRows, err := e.rollups.CityAggregates(ctx, day)
	if err != nil {
		return fmt.Errorf("analytics: city aggregates %s: %w", day.Format("2006-01-02"), err)
	}
	if err := e.rollups.UpsertCityDaily(ctx, cityRows); err != nil {
		return fmt.Errorf("analytics: upsert city daily: %w", err)
	}

	strategyRows, err := e.rollups.StrategyAggregates(ctx, day)
	if err != nil {
		return fmt.Errorf("analytics: strategy aggregates %s: %w", day.Format("2006-01-02"), err)
	}
	if err := e.rollups.UpsertStrategyDaily(ctx, strategyRows); err != nil {
		return fmt.Errorf("analytics: upsert strategy daily: %w", err)
	}

	realized, err := e.positions.RealizedPnLSince(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("analytics: realized pnl: %w", err)
	}
	unrealized, err := e.positions.UnrealizedPnL(ctx)
	if err != nil {
		return fmt.Errorf("analytics: unrealized pnl: %w", err)
	}
	point := domain.EquityPoint{
		Day:        day,
		Realized:   realized,
		Unrealized: unrealized,
		Bankroll:   e.bankroll,
		Equity:     e.bankroll + realized + unrealized,
	}
	if err := e.rollups.UpsertEquityPoint(ctx, point); err != nil {
		return fmt.Errorf("analytics: upsert equity point: %w", err)
	}

	e.logger.InfoContext(ctx, "rollups computed",
		slog.String("day", day.Format("2006-01-02")),
		slog.Int("city_rows", len(cityRows)),
		slog.Int("strategy_rows", len(strategyRows)),
		slog.Float64("equity", point.Equity),
	)

	return nil
}

// Recompute regenerates aggregates for the trailing number of days,
// today included.
func (e *Engine) Recompute(ctx context.Context, days int) error {
	if days < 1 {
		days = 1
	}
	today := e.now()
	for i := days - 1; i >= 0; i-- {
		if err := e.RunDay(ctx, today.AddDate(0, 0, -i)); err != nil {
			return err
		}
	}
	return nil
}
