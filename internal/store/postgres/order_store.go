package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skybotdev/skybot/internal/domain"
)

// activeStatuses is the SQL set of non-terminal, fillable order statuses.
const activeStatuses = `('NEW', 'SUBMITTED', 'RESTING', 'PARTIAL')`

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates an OrderStore backed by the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderCols = `id, intent_key, intent_version, client_order_id, exchange_order_id,
	ticker, city_code, event_date, side, quantity, filled_quantity,
	limit_price_cents, avg_fill_cents, status, created_at, updated_at`

// Create inserts a new order and returns its row ID.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) (int64, error) {
	const query = `
		INSERT INTO ops.orders (
			intent_key, intent_version, client_order_id, exchange_order_id,
			ticker, city_code, event_date, side, quantity, filled_quantity,
			limit_price_cents, avg_fill_cents, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		o.IntentKey, o.IntentVersion, o.ClientOrderID, o.ExchangeOrderID,
		o.Ticker, o.CityCode, o.EventDate, string(o.Side), o.Quantity, o.FilledQuantity,
		o.LimitPriceCents, o.AvgFillCents, string(o.Status), o.CreatedAt, o.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create order %s: %w", o.ClientOrderID, err)
	}
	return id, nil
}

// Update persists the mutable order fields.
func (s *OrderStore) Update(ctx context.Context, o domain.Order) error {
	const query = `
		UPDATE ops.orders SET
			exchange_order_id = $1,
			filled_quantity = $2,
			avg_fill_cents = $3,
			status = $4,
			updated_at = $5
		WHERE id = $6`

	tag, err := s.pool.Exec(ctx, query,
		o.ExchangeOrderID, o.FilledQuantity, o.AvgFillCents, string(o.Status), o.UpdatedAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update order %d: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByClientOrderID retrieves an order by its client order ID.
func (s *OrderStore) GetByClientOrderID(ctx context.Context, clientOrderID string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderCols+` FROM ops.orders WHERE client_order_id = $1`, clientOrderID)
	return scanOrderOrNotFound(row, clientOrderID)
}

// GetByExchangeOrderID retrieves an order by the exchange's order ID.
func (s *OrderStore) GetByExchangeOrderID(ctx context.Context, exchangeOrderID string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderCols+` FROM ops.orders WHERE exchange_order_id = $1`, exchangeOrderID)
	return scanOrderOrNotFound(row, exchangeOrderID)
}

// ActiveByIntentKey returns the active order for an intent, if any.
func (s *OrderStore) ActiveByIntentKey(ctx context.Context, intentKey string) (domain.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderCols+` FROM ops.orders
		 WHERE intent_key = $1 AND status IN `+activeStatuses+`
		 ORDER BY intent_version DESC LIMIT 1`, intentKey)
	return scanOrderOrNotFound(row, intentKey)
}

// LatestVersion returns the highest intent version recorded for the key, or
// ErrNotFound when no order exists yet.
func (s *OrderStore) LatestVersion(ctx context.Context, intentKey string) (int, error) {
	var version *int
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(intent_version) FROM ops.orders WHERE intent_key = $1`, intentKey,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("postgres: latest version %s: %w", intentKey, err)
	}
	if version == nil {
		return 0, domain.ErrNotFound
	}
	return *version, nil
}

// ListActive returns all non-terminal orders.
func (s *OrderStore) ListActive(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderCols+` FROM ops.orders
		 WHERE status IN `+activeStatuses+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active orders: %w", err)
	}
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan active order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, status string
	err := scanner.Scan(
		&o.ID, &o.IntentKey, &o.IntentVersion, &o.ClientOrderID, &o.ExchangeOrderID,
		&o.Ticker, &o.CityCode, &o.EventDate, &side, &o.Quantity, &o.FilledQuantity,
		&o.LimitPriceCents, &o.AvgFillCents, &status, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Side = domain.Side(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderOrNotFound(row pgx.Row, key string) (domain.Order, error) {
	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", key, err)
	}
	return o, nil
}
