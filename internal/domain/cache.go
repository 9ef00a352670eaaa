package domain

import (
	"context"
	"time"
)

// QuoteCache caches market snapshots between the REST client and the
// trading loop so repeated quotes within a cycle don't hit the exchange.
type QuoteCache interface {
	Get(ctx context.Context, ticker string) (MarketSnapshot, bool, error)
	Set(ctx context.Context, snap MarketSnapshot, ttl time.Duration) error
}

// LockManager provides distributed locks so at most one trader instance
// runs against a given account.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned
	// function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// EventBus publishes durable ordered events (fills, risk events) for
// external read-only consumers.
type EventBus interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
