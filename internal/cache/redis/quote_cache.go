package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skybotdev/skybot/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis string values with a
// per-key TTL. It keeps repeated quotes for the same contract within a
// cycle from hitting the exchange.
type QuoteCache struct {
	rdb *redis.Client
}

// NewQuoteCache creates a QuoteCache backed by the given Client.
func NewQuoteCache(c *Client) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying()}
}

func quoteKey(ticker string) string {
	return "quote:" + ticker
}

// Get returns the cached snapshot for a ticker. The second return value is
// false on a cache miss.
func (qc *QuoteCache) Get(ctx context.Context, ticker string) (domain.MarketSnapshot, bool, error) {
	data, err := qc.rdb.Get(ctx, quoteKey(ticker)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.MarketSnapshot{}, false, nil
		}
		return domain.MarketSnapshot{}, false, fmt.Errorf("redis: get quote %s: %w", ticker, err)
	}

	var snap domain.MarketSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.MarketSnapshot{}, false, fmt.Errorf("redis: decode quote %s: %w", ticker, err)
	}
	return snap, true, nil
}

// Set stores a snapshot under its ticker with the given TTL.
func (qc *QuoteCache) Set(ctx context.Context, snap domain.MarketSnapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: encode quote %s: %w", snap.Ticker, err)
	}
	if err := qc.rdb.Set(ctx, quoteKey(snap.Ticker), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", snap.Ticker, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
