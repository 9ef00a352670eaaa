package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// RollupStore implements domain.RollupStore using PostgreSQL. Aggregates
// are computed from ops rows and upserted into analytics tables, so a full
// recompute for any day equals the incremental result.
type RollupStore struct {
	pool *pgxpool.Pool
}

// NewRollupStore creates a RollupStore backed by the given pool.
func NewRollupStore(pool *pgxpool.Pool) *RollupStore {
	return &RollupStore{pool: pool}
}

// dayBounds returns the UTC day window [start, end) containing day.
func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

// CityAggregates computes the per-city rollup for one day: fill count, and
// PnL plus win rate over positions closed that day.
func (s *RollupStore) CityAggregates(ctx context.Context, day time.Time) ([]domain.CityDaily, error) {
	start, end := dayBounds(day)

	byCity := make(map[string]*domain.CityDaily)
	get := func(code string) *domain.CityDaily {
		row, ok := byCity[code]
		if !ok {
			row = &domain.CityDaily{Day: start, CityCode: code}
			byCity[code] = row
		}
		return row
	}

	rows, err := s.pool.Query(ctx, `
		SELECT city_code, COUNT(*)
		FROM ops.fills
		WHERE filled_at >= $1 AND filled_at < $2
		GROUP BY city_code`, start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: city fill counts: %w", err)
	}
	for rows.Next() {
		var code string
		var trades int
		if err := rows.Scan(&code, &trades); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan city fill count: %w", err)
		}
		get(code).Trades = trades
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `
		SELECT city_code,
		       COALESCE(SUM(realized_pnl), 0),
		       COUNT(*) FILTER (WHERE realized_pnl > 0),
		       COUNT(*)
		FROM ops.positions
		WHERE closed_at IS NOT NULL AND closed_at >= $1 AND closed_at < $2
		GROUP BY city_code`, start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: city pnl: %w", err)
	}
	for rows.Next() {
		var code string
		var pnl float64
		var wins, closed int
		if err := rows.Scan(&code, &pnl, &wins, &closed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("postgres: scan city pnl: %w", err)
		}
		row := get(code)
		row.PnL = pnl
		if closed > 0 {
			row.WinRate = float64(wins) / float64(closed)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.CityDaily, 0, len(byCity))
	for _, row := range byCity {
		out = append(out, *row)
	}
	return out, nil
}

// StrategyAggregates computes the per-strategy rollup for one day: signal
// count and the mean edge across BUY signals.
func (s *RollupStore) StrategyAggregates(ctx context.Context, day time.Time) ([]domain.StrategyDaily, error) {
	start, end := dayBounds(day)

	rows, err := s.pool.Query(ctx, `
		SELECT strategy_name,
		       COUNT(*),
		       COALESCE(AVG(edge) FILTER (WHERE action = 'BUY'), 0)
		FROM ops.signals
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY strategy_name`, start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: strategy aggregates: %w", err)
	}
	defer rows.Close()

	var out []domain.StrategyDaily
	for rows.Next() {
		row := domain.StrategyDaily{Day: start}
		if err := rows.Scan(&row.StrategyName, &row.SignalCount, &row.RealizedEdge); err != nil {
			return nil, fmt.Errorf("postgres: scan strategy aggregate: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// UpsertCityDaily writes per-city rollup rows.
func (s *RollupStore) UpsertCityDaily(ctx context.Context, rowsIn []domain.CityDaily) error {
	for _, row := range rowsIn {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO analytics.city_daily (day, city_code, pnl, win_rate, trades)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (day, city_code) DO UPDATE SET
				pnl = EXCLUDED.pnl,
				win_rate = EXCLUDED.win_rate,
				trades = EXCLUDED.trades`,
			row.Day, row.CityCode, row.PnL, row.WinRate, row.Trades,
		)
		if err != nil {
			return fmt.Errorf("postgres: upsert city daily %s: %w", row.CityCode, err)
		}
	}
	return nil
}

// UpsertStrategyDaily writes per-strategy rollup rows.
func (s *RollupStore) UpsertStrategyDaily(ctx context.Context, rowsIn []domain.StrategyDaily) error {
	for _, row := range rowsIn {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO analytics.strategy_daily (day, strategy_name, signal_count, realized_edge)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (day, strategy_name) DO UPDATE SET
				signal_count = EXCLUDED.signal_count,
				realized_edge = EXCLUDED.realized_edge`,
			row.Day, row.StrategyName, row.SignalCount, row.RealizedEdge,
		)
		if err != nil {
			return fmt.Errorf("postgres: upsert strategy daily %s: %w", row.StrategyName, err)
		}
	}
	return nil
}

// UpsertEquityPoint writes one equity-curve snapshot.
func (s *RollupStore) UpsertEquityPoint(ctx context.Context, p domain.EquityPoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO analytics.equity_curve (day, realized, unrealized, bankroll, equity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (day) DO UPDATE SET
			realized = EXCLUDED.realized,
			unrealized = EXCLUDED.unrealized,
			bankroll = EXCLUDED.bankroll,
			equity = EXCLUDED.equity`,
		p.Day, p.Realized, p.Unrealized, p.Bankroll, p.Equity,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert equity point: %w", err)
	}
	return nil
}
