// Package weather provides cache-aware access to forecast and observation
// data with staleness tracking.
package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skybotdev/skybot/internal/domain"
	"github.com/skybotdev/skybot/internal/platform/nws"
)

const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 4 * time.Second
	maxAttempts    = 3
)

// ForecastAPI is the weather client surface the provider consumes.
type ForecastAPI interface {
	GetForecast(ctx context.Context, office string, gridX, gridY int) (nws.Forecast, error)
	GetLatestObservation(ctx context.Context, stationID string) (nws.Observation, error)
}

// Config holds the provider's tunables.
type Config struct {
	CacheTTL       time.Duration // serve cached snapshots younger than this
	StaleCeiling   time.Duration // source data older than this is stale
	DefaultStdDevF float64       // forecast std dev when the source gives no interval
}

// Provider fetches weather per city with a TTL cache and a last-known-good
// fallback. The cache is safe for concurrent readers; readers take a read
// lock, writers an exclusive lock.
type Provider struct {
	client ForecastAPI
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	cache    map[string]domain.WeatherSnapshot
	lastGood map[string]domain.WeatherSnapshot
}

// NewProvider creates a weather Provider.
func NewProvider(client ForecastAPI, cfg Config, logger *slog.Logger) *Provider {
	if cfg.DefaultStdDevF <= 0 {
		cfg.DefaultStdDevF = 3.0
	}
	return &Provider{
		client:   client,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "weather_provider")),
		cache:    make(map[string]domain.WeatherSnapshot),
		lastGood: make(map[string]domain.WeatherSnapshot),
	}
}

// Get returns a weather snapshot for the city, served from cache when fresh.
// On permanent fetch failure it returns the last known good snapshot marked
// stale; with no last known good it returns an error and the city is skipped
// this cycle.
func (p *Provider) Get(ctx context.Context, city domain.City) (domain.WeatherSnapshot, error) {
	now := time.Now().UTC()

	p.mu.RLock()
	cached, ok := p.cache[city.Code]
	p.mu.RUnlock()
	if ok && now.Sub(cached.CapturedAt) < p.cfg.CacheTTL {
		return cached, nil
	}

	snap, err := p.fetch(ctx, city, now)
	if err != nil {
		p.mu.RLock()
		fallback, ok := p.lastGood[city.Code]
		p.mu.RUnlock()
		if !ok {
			return domain.WeatherSnapshot{}, fmt.Errorf("weather: %s: %w: %v", city.Code, domain.ErrStaleData, err)
		}
		p.logger.WarnContext(ctx, "fetch failed, serving last known good",
			slog.String("city", city.Code),
			slog.String("error", err.Error()),
		)
		fallback.CapturedAt = now
		fallback.Stale = true
		return fallback, nil
	}

	p.mu.Lock()
	p.cache[city.Code] = snap
	if !snap.Stale {
		p.lastGood[city.Code] = snap
	}
	p.mu.Unlock()

	return snap, nil
}

// fetch pulls forecast and observation from the source, retrying transient
// failures with exponential backoff. This is the only retry layer for
// weather data.
func (p *Provider) fetch(ctx context.Context, city domain.City, now time.Time) (domain.WeatherSnapshot, error) {
	forecast, err := withRetry(ctx, func() (nws.Forecast, error) {
		return p.client.GetForecast(ctx, city.ForecastOffice, city.GridX, city.GridY)
	})
	if err != nil {
		return domain.WeatherSnapshot{}, err
	}

	high, ok := forecast.DaytimeHigh()
	if !ok {
		return domain.WeatherSnapshot{}, fmt.Errorf("%w: forecast for %s has no daytime period", domain.ErrDataValidation, city.Code)
	}

	snap := domain.WeatherSnapshot{
		CityCode:        city.Code,
		CapturedAt:      now,
		ForecastHighF:   high,
		ForecastStdDevF: p.cfg.DefaultStdDevF,
	}
	if !forecast.UpdatedAt.IsZero() {
		issued := forecast.UpdatedAt
		snap.ForecastIssued = &issued
		if now.Sub(issued) > p.cfg.StaleCeiling {
			snap.Stale = true
		}
	}

	// The observation is best-effort; a missing observation does not block
	// trading on the forecast.
	obs, err := withRetry(ctx, func() (nws.Observation, error) {
		return p.client.GetLatestObservation(ctx, city.SettlementStation)
	})
	if err != nil {
		p.logger.WarnContext(ctx, "observation fetch failed",
			slog.String("city", city.Code),
			slog.String("station", city.SettlementStation),
			slog.String("error", err.Error()),
		)
	} else {
		snap.ObservedTempF = obs.TempF()
		if !obs.Timestamp.IsZero() {
			ts := obs.Timestamp
			snap.ObservedAt = &ts
			if now.Sub(ts) > p.cfg.StaleCeiling {
				snap.Stale = true
			}
		}
	}

	return snap, nil
}

// withRetry runs fn up to maxAttempts times, backing off on transient
// errors only.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	delay := retryBaseDelay
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !errors.Is(err, domain.ErrTransientNetwork) {
			return zero, err
		}
	}

	return zero, lastErr
}
