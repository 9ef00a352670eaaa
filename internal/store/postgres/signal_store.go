package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a SignalStore backed by the given pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// Save inserts a signal row and returns its ID.
func (s *SignalStore) Save(ctx context.Context, sig domain.Signal) (int64, error) {
	const query = `
		INSERT INTO ops.signals (
			city_code, ticker, strategy_name, p_model_yes, uncertainty,
			p_market_yes, edge, action, side, max_price_cents, size_hint,
			reasons, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	reasons := make([]string, len(sig.Reasons))
	for i, r := range sig.Reasons {
		reasons[i] = string(r)
	}

	var id int64
	err := s.pool.QueryRow(ctx, query,
		sig.CityCode, sig.Ticker, sig.StrategyName, sig.PModelYes, sig.Uncertainty,
		sig.PMarketYes, sig.Edge, string(sig.Action), string(sig.Side),
		sig.MaxPriceCents, sig.SizeHint, reasons, sig.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: save signal %s: %w", sig.Ticker, err)
	}
	return id, nil
}

// ListBefore returns signals created strictly before the cutoff.
func (s *SignalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, city_code, ticker, strategy_name, p_model_yes, uncertainty,
		       p_market_yes, edge, action, side, max_price_cents, size_hint,
		       reasons, created_at
		FROM ops.signals WHERE created_at < $1 ORDER BY created_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var action, side string
		var reasons []string
		if err := rows.Scan(
			&sig.ID, &sig.CityCode, &sig.Ticker, &sig.StrategyName, &sig.PModelYes, &sig.Uncertainty,
			&sig.PMarketYes, &sig.Edge, &action, &side, &sig.MaxPriceCents, &sig.SizeHint,
			&reasons, &sig.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		sig.Action = domain.Action(action)
		sig.Side = domain.Side(side)
		sig.Reasons = make([]domain.ReasonCode, len(reasons))
		for i, r := range reasons {
			sig.Reasons[i] = domain.ReasonCode(r)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
