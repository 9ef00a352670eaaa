package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// PublicTradeStore implements domain.PublicTradeStore using PostgreSQL.
// It is the query behind the delayed, redacted public projection: no order
// identifiers, no intent keys, no raw payloads, timestamps rounded to the
// minute.
type PublicTradeStore struct {
	pool  *pgxpool.Pool
	delay time.Duration
}

// NewPublicTradeStore creates a PublicTradeStore with the configured
// public-disclosure delay.
func NewPublicTradeStore(pool *pgxpool.Pool, delay time.Duration) *PublicTradeStore {
	return &PublicTradeStore{pool: pool, delay: delay}
}

// List returns the newest public trades, each at least the configured
// delay old.
func (s *PublicTradeStore) List(ctx context.Context, limit int) ([]domain.PublicTrade, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT ticker, city_code, side, quantity, price_cents,
		       date_trunc('minute', filled_at) AS filled_at
		FROM ops.fills
		WHERE filled_at <= NOW() - ($1 * INTERVAL '1 second')
		ORDER BY filled_at DESC
		LIMIT $2`,
		int64(s.delay.Seconds()), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list public trades: %w", err)
	}
	defer rows.Close()

	var out []domain.PublicTrade
	for rows.Next() {
		var t domain.PublicTrade
		var side string
		if err := rows.Scan(&t.Ticker, &t.CityCode, &side, &t.Quantity, &t.PriceCents, &t.FilledAt); err != nil {
			return nil, fmt.Errorf("postgres: scan public trade: %w", err)
		}
		t.Side = domain.Side(side)
		out = append(out, t)
	}
	return out, rows.Err()
}
