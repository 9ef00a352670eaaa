package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// FillStore implements domain.FillStore using PostgreSQL.
type FillStore struct {
	pool *pgxpool.Pool
}

// NewFillStore creates a FillStore backed by the given pool.
func NewFillStore(pool *pgxpool.Pool) *FillStore {
	return &FillStore{pool: pool}
}

// Insert records one fill event.
func (s *FillStore) Insert(ctx context.Context, f domain.Fill) error {
	const query = `
		INSERT INTO ops.fills (
			id, order_id, client_order_id, exchange_trade_id, ticker,
			city_code, side, filled_at, quantity, price_cents, fees_cents,
			realized_pnl
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		f.ID, f.OrderID, f.ClientOrderID, f.ExchangeTradeID, f.Ticker,
		f.CityCode, string(f.Side), f.FilledAt, f.Quantity, f.PriceCents,
		f.FeesCents, f.RealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert fill %s: %w", f.ID, err)
	}
	return nil
}

// ExistsByTradeID reports whether a fill with the exchange trade ID is
// already recorded. Reconciliation uses this for replay idempotency.
func (s *FillStore) ExistsByTradeID(ctx context.Context, exchangeTradeID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM ops.fills WHERE exchange_trade_id = $1)`,
		exchangeTradeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: fill exists %s: %w", exchangeTradeID, err)
	}
	return exists, nil
}
