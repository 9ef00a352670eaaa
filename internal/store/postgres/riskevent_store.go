package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// RiskEventStore implements domain.RiskEventStore using PostgreSQL.
type RiskEventStore struct {
	pool *pgxpool.Pool
}

// NewRiskEventStore creates a RiskEventStore backed by the given pool.
func NewRiskEventStore(pool *pgxpool.Pool) *RiskEventStore {
	return &RiskEventStore{pool: pool}
}

// Insert records one risk event.
func (s *RiskEventStore) Insert(ctx context.Context, ev domain.RiskEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ops.risk_events (id, event_type, severity, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, string(ev.Type), string(ev.Severity), ev.Payload, ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert risk event %s: %w", ev.ID, err)
	}
	return nil
}
