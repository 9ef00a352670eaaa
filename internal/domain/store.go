package domain

import (
	"context"
	"time"
)

// WeatherStore persists weather snapshots.
type WeatherStore interface {
	SaveSnapshot(ctx context.Context, snap WeatherSnapshot) (int64, error)
	LatestByCity(ctx context.Context, cityCode string) (WeatherSnapshot, error)
	ListBefore(ctx context.Context, before time.Time) ([]WeatherSnapshot, error)
}

// MarketStore persists market snapshots.
type MarketStore interface {
	SaveSnapshot(ctx context.Context, snap MarketSnapshot) (int64, error)
	ListBefore(ctx context.Context, before time.Time) ([]MarketSnapshot, error)
}

// SignalStore persists strategy signals, including HOLDs, for audit.
type SignalStore interface {
	Save(ctx context.Context, sig Signal) (int64, error)
	ListBefore(ctx context.Context, before time.Time) ([]Signal, error)
}

// IntentStore persists trading intents keyed by their deterministic hash.
type IntentStore interface {
	Upsert(ctx context.Context, intent Intent) error
	Get(ctx context.Context, key string) (Intent, error)
}

// OrderStore persists orders. Status changes go through the OMS state
// machine; the store only records the outcome.
type OrderStore interface {
	Create(ctx context.Context, order Order) (int64, error)
	Update(ctx context.Context, order Order) error
	GetByClientOrderID(ctx context.Context, clientOrderID string) (Order, error)
	GetByExchangeOrderID(ctx context.Context, exchangeOrderID string) (Order, error)
	ActiveByIntentKey(ctx context.Context, intentKey string) (Order, error)
	LatestVersion(ctx context.Context, intentKey string) (int, error)
	ListActive(ctx context.Context) ([]Order, error)
}

// FillStore persists exchange fill events.
type FillStore interface {
	Insert(ctx context.Context, fill Fill) error
	ExistsByTradeID(ctx context.Context, exchangeTradeID string) (bool, error)
}

// PositionStore persists aggregated positions and answers the PnL queries
// the daily-loss breaker needs.
type PositionStore interface {
	Create(ctx context.Context, pos Position) (int64, error)
	Update(ctx context.Context, pos Position) error
	GetByTickerSide(ctx context.Context, ticker string, side Side) (Position, error)
	GetOpen(ctx context.Context) ([]Position, error)
	RealizedPnLSince(ctx context.Context, since time.Time) (float64, error)
	UnrealizedPnL(ctx context.Context) (float64, error)
}

// RiskEventStore persists boundary-hitting risk decisions.
type RiskEventStore interface {
	Insert(ctx context.Context, ev RiskEvent) error
}

// HealthStore persists the latest health status per component.
type HealthStore interface {
	Upsert(ctx context.Context, status HealthStatus) error
	List(ctx context.Context) ([]HealthStatus, error)
}

// CursorStore persists named progress cursors (e.g. the fill reconciliation
// cursor) so restarts resume where they left off.
type CursorStore interface {
	Get(ctx context.Context, name string) (string, error)
	Set(ctx context.Context, name, value string) error
}

// PublicTradeStore reads the delayed, redacted public projection of fills.
type PublicTradeStore interface {
	List(ctx context.Context, limit int) ([]PublicTrade, error)
}

// RollupStore computes and persists the idempotent daily aggregates.
type RollupStore interface {
	CityAggregates(ctx context.Context, day time.Time) ([]CityDaily, error)
	StrategyAggregates(ctx context.Context, day time.Time) ([]StrategyDaily, error)
	UpsertCityDaily(ctx context.Context, rows []CityDaily) error
	UpsertStrategyDaily(ctx context.Context, rows []StrategyDaily) error
	UpsertEquityPoint(ctx context.Context, point EquityPoint) error
}
