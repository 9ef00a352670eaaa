package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// IntentStore implements domain.IntentStore using PostgreSQL.
type IntentStore struct {
	pool *pgxpool.Pool
}

// NewIntentStore creates an IntentStore backed by the given pool.
func NewIntentStore(pool *pgxpool.Pool) *IntentStore {
	return &IntentStore{pool: pool}
}

// Upsert inserts or refreshes an intent row.
func (s *IntentStore) Upsert(ctx context.Context, intent domain.Intent) error {
	const query = `
		INSERT INTO ops.intents (key, city_code, ticker, side, strategy_name, event_date, origin)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (key) DO UPDATE SET origin = EXCLUDED.origin`

	_, err := s.pool.Exec(ctx, query,
		intent.Key, intent.CityCode, intent.Ticker, string(intent.Side),
		intent.StrategyName, intent.EventDate, string(intent.Origin),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert intent %s: %w", intent.Key, err)
	}
	return nil
}

// Get retrieves an intent by key.
func (s *IntentStore) Get(ctx context.Context, key string) (domain.Intent, error) {
	var intent domain.Intent
	var side, origin string
	err := s.pool.QueryRow(ctx,
		`SELECT key, city_code, ticker, side, strategy_name, event_date, origin
		 FROM ops.intents WHERE key = $1`, key,
	).Scan(&intent.Key, &intent.CityCode, &intent.Ticker, &side, &intent.StrategyName, &intent.EventDate, &origin)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Intent{}, domain.ErrNotFound
		}
		return domain.Intent{}, fmt.Errorf("postgres: get intent %s: %w", key, err)
	}
	intent.Side = domain.Side(side)
	intent.Origin = domain.IntentOrigin(origin)
	return intent, nil
}
