package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// HealthStore implements domain.HealthStore using PostgreSQL.
type HealthStore struct {
	pool *pgxpool.Pool
}

// NewHealthStore creates a HealthStore backed by the given pool.
func NewHealthStore(pool *pgxpool.Pool) *HealthStore {
	return &HealthStore{pool: pool}
}

// Upsert records the latest status for a component. LastOK is only
// advanced when the new row carries one.
func (s *HealthStore) Upsert(ctx context.Context, status domain.HealthStatus) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ops.health (component, status, last_ok, message, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (component) DO UPDATE SET
			status = EXCLUDED.status,
			last_ok = COALESCE(EXCLUDED.last_ok, ops.health.last_ok),
			message = EXCLUDED.message,
			updated_at = EXCLUDED.updated_at`,
		string(status.Component), string(status.Status), status.LastOK,
		status.Message, status.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert health %s: %w", status.Component, err)
	}
	return nil
}

// List returns the latest status per component.
func (s *HealthStore) List(ctx context.Context) ([]domain.HealthStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT component, status, last_ok, message, updated_at
		 FROM ops.health ORDER BY component`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list health: %w", err)
	}
	defer rows.Close()

	var out []domain.HealthStatus
	for rows.Next() {
		var st domain.HealthStatus
		var component, state string
		if err := rows.Scan(&component, &state, &st.LastOK, &st.Message, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan health: %w", err)
		}
		st.Component = domain.Component(component)
		st.Status = domain.HealthState(state)
		out = append(out, st)
	}
	return out, rows.Err()
}
