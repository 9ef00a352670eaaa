package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, ticker, city_code, threshold_f, direction, event_date,
	yes_bid, yes_ask, no_bid, no_ask, volume, open_interest, close_time, captured_at`

// SaveSnapshot inserts a market snapshot and returns its row ID.
func (s *MarketStore) SaveSnapshot(ctx context.Context, snap domain.MarketSnapshot) (int64, error) {
	const query = `
		INSERT INTO ops.market_snapshots (
			ticker, city_code, threshold_f, direction, event_date,
			yes_bid, yes_ask, no_bid, no_ask, volume, open_interest,
			close_time, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		snap.Ticker, snap.CityCode, snap.ThresholdF, string(snap.Direction), snap.EventDate,
		snap.YesBid, snap.YesAsk, snap.NoBid, snap.NoAsk, snap.Volume, snap.OpenInterest,
		snap.CloseTime, snap.CapturedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: save market snapshot %s: %w", snap.Ticker, err)
	}
	return id, nil
}

// ListBefore returns snapshots captured strictly before the cutoff.
func (s *MarketStore) ListBefore(ctx context.Context, before time.Time) ([]domain.MarketSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketCols+` FROM ops.market_snapshots
		 WHERE captured_at < $1 ORDER BY captured_at`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list market snapshots before: %w", err)
	}
	defer rows.Close()

	var out []domain.MarketSnapshot
	for rows.Next() {
		var snap domain.MarketSnapshot
		var direction string
		if err := rows.Scan(
			&snap.ID, &snap.Ticker, &snap.CityCode, &snap.ThresholdF, &direction, &snap.EventDate,
			&snap.YesBid, &snap.YesAsk, &snap.NoBid, &snap.NoAsk, &snap.Volume, &snap.OpenInterest,
			&snap.CloseTime, &snap.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan market snapshot: %w", err)
		}
		snap.Direction = domain.Direction(direction)
		out = append(out, snap)
	}
	return out, rows.Err()
}
