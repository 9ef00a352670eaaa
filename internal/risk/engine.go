// Package risk implements the portfolio risk engine: dollar caps derived
// from the bankroll, position sizing against those caps, and the circuit
// breakers that pause trading.
package risk

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/skybotdev/skybot/internal/config"
	"github.com/skybotdev/skybot/internal/domain"
)

// Caps holds the dollar limits derived from the bankroll and ratio fields.
// The engine carries no defaults of its own; everything comes from the
// single configuration source.
type Caps struct {
	Bankroll        float64
	TradeCap        float64
	CityCap         float64
	ClusterCap      float64
	DailyLossCap    float64
	MaxPositionSize int
}

// CapsFromConfig derives the dollar caps from the trading configuration.
func CapsFromConfig(t config.TradingConfig) Caps {
	return Caps{
		Bankroll:        t.Bankroll,
		TradeCap:        t.Bankroll * t.MaxTradeRiskPct,
		CityCap:         t.Bankroll * t.MaxCityExposurePct,
		ClusterCap:      t.Bankroll * t.MaxClusterExposurePct,
		DailyLossCap:    t.Bankroll * t.MaxDailyLossPct,
		MaxPositionSize: t.MaxPositionSize,
	}
}

// Engine applies the per-trade, per-city, and per-cluster caps to candidate
// orders. It is stateless; the caller supplies current positions including
// the in-cycle accumulator.
type Engine struct {
	caps   Caps
	logger *slog.Logger
}

// NewEngine creates a risk Engine with the given caps.
func NewEngine(caps Caps, logger *slog.Logger) *Engine {
	return &Engine{
		caps:   caps,
		logger: logger.With(slog.String("component", "risk_engine")),
	}
}

// Caps returns the engine's derived dollar limits.
func (e *Engine) Caps() Caps { return e.caps }

// Size determines the order quantity for a signal. The per-trade cap is
// applied first, then the quantity is reduced to fit the remaining headroom
// in the city and cluster caps given the open exposure — which must include
// the in-cycle accumulator, never an empty list mid-cycle. A nil refusal
// means the returned quantity (>= 1) may be placed at the signal's limit.
func (e *Engine) Size(sig domain.Signal, cluster domain.Cluster, open []domain.OpenExposure) (int, *domain.Refusal) {
	price := sig.MaxPriceCents
	if price <= 0 || sig.SizeHint <= 0 {
		return 0, &domain.Refusal{
			Cap:    domain.RiskEventTradeCapHit,
			Limit:  e.caps.TradeCap,
			Detail: "signal carries no tradable size",
		}
	}

	perContract := float64(price) / 100.0

	qty := sig.SizeHint
	if qty > e.caps.MaxPositionSize {
		qty = e.caps.MaxPositionSize
	}

	// Per-trade cap first.
	if float64(qty)*perContract > e.caps.TradeCap {
		qty = int(math.Floor(e.caps.TradeCap / perContract))
	}
	if qty < 1 {
		return 0, &domain.Refusal{
			Cap:     domain.RiskEventTradeCapHit,
			Current: 0,
			Limit:   e.caps.TradeCap,
			Detail:  fmt.Sprintf("per-trade cap leaves no room at %d cents", price),
		}
	}

	// City and cluster headroom given everything already committed.
	var cityExposure, clusterExposure float64
	for _, p := range open {
		if p.CityCode == sig.CityCode {
			cityExposure += p.Dollars
		}
		if p.Cluster == cluster {
			clusterExposure += p.Dollars
		}
	}

	cityHeadroom := e.caps.CityCap - cityExposure
	clusterHeadroom := e.caps.ClusterCap - clusterExposure

	allowed := math.Min(cityHeadroom, clusterHeadroom)
	if float64(qty)*perContract > allowed {
		qty = int(math.Floor(allowed / perContract))
	}
	if qty < 1 {
		refusal := &domain.Refusal{
			Cap:     domain.RiskEventCityCapHit,
			Current: cityExposure,
			Limit:   e.caps.CityCap,
		}
		if clusterHeadroom < cityHeadroom {
			refusal = &domain.Refusal{
				Cap:     domain.RiskEventClusterCapHit,
				Current: clusterExposure,
				Limit:   e.caps.ClusterCap,
			}
		}
		e.logger.Info("candidate refused",
			slog.String("city", sig.CityCode),
			slog.String("ticker", sig.Ticker),
			slog.String("cap", string(refusal.Cap)),
			slog.Float64("current_exposure", refusal.Current),
			slog.Float64("limit", refusal.Limit),
		)
		return 0, refusal
	}

	return qty, nil
}
