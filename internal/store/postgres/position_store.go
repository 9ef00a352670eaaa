package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, ticker, city_code, cluster, side, quantity_open,
	avg_entry_cents, avg_exit_cents, realized_pnl, status, opened_at, closed_at`

// Create inserts a position and returns its row ID.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) (int64, error) {
	const query = `
		INSERT INTO ops.positions (
			ticker, city_code, cluster, side, quantity_open, avg_entry_cents,
			avg_exit_cents, realized_pnl, status, opened_at, closed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		p.Ticker, p.CityCode, string(p.Cluster), string(p.Side), p.QuantityOpen,
		p.AvgEntryCents, p.AvgExitCents, p.RealizedPnL, string(p.Status),
		p.OpenedAt, p.ClosedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create position %s/%s: %w", p.Ticker, p.Side, err)
	}
	return id, nil
}

// Update persists the mutable position fields.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	const query = `
		UPDATE ops.positions SET
			quantity_open = $1,
			avg_entry_cents = $2,
			avg_exit_cents = $3,
			realized_pnl = $4,
			status = $5,
			closed_at = $6
		WHERE id = $7`

	tag, err := s.pool.Exec(ctx, query,
		p.QuantityOpen, p.AvgEntryCents, p.AvgExitCents, p.RealizedPnL,
		string(p.Status), p.ClosedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %d: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByTickerSide retrieves the position aggregate for one (market, side).
func (s *PositionStore) GetByTickerSide(ctx context.Context, ticker string, side domain.Side) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM ops.positions WHERE ticker = $1 AND side = $2`,
		ticker, string(side))

	p, err := scanPosition(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s/%s: %w", ticker, side, err)
	}
	return p, nil
}

// GetOpen returns all open positions.
func (s *PositionStore) GetOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM ops.positions WHERE status = 'OPEN' ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RealizedPnLSince sums realized PnL from positions closed at or after the
// cutoff, plus realized PnL recorded on still-open positions that traded.
func (s *PositionStore) RealizedPnLSince(ctx context.Context, since time.Time) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(realized_pnl), 0)
		FROM ops.positions
		WHERE (closed_at IS NOT NULL AND closed_at >= $1)
		   OR (status = 'OPEN' AND realized_pnl <> 0)`, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: realized pnl since: %w", err)
	}
	return total, nil
}

// UnrealizedPnL marks open positions against the latest market snapshot
// mid. A NO-side position is marked against the complement of the YES mid.
func (s *PositionStore) UnrealizedPnL(ctx context.Context) (float64, error) {
	var total float64
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(
			p.quantity_open * (
				CASE WHEN p.side = 'NO'
					THEN 100 - m.mid_yes
					ELSE m.mid_yes
				END - p.avg_entry_cents
			) / 100.0
		), 0)
		FROM ops.positions p
		JOIN LATERAL (
			SELECT (ms.yes_bid + ms.yes_ask) / 2.0 AS mid_yes
			FROM ops.market_snapshots ms
			WHERE ms.ticker = p.ticker
			  AND ms.yes_bid IS NOT NULL AND ms.yes_ask IS NOT NULL
			ORDER BY ms.captured_at DESC
			LIMIT 1
		) m ON TRUE
		WHERE p.status = 'OPEN'`,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("postgres: unrealized pnl: %w", err)
	}
	return total, nil
}

func scanPosition(scanner interface{ Scan(dest ...any) error }) (domain.Position, error) {
	var p domain.Position
	var cluster, side, status string
	err := scanner.Scan(
		&p.ID, &p.Ticker, &p.CityCode, &cluster, &side, &p.QuantityOpen,
		&p.AvgEntryCents, &p.AvgExitCents, &p.RealizedPnL, &status,
		&p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Cluster = domain.Cluster(cluster)
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}
