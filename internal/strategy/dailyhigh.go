package strategy

import (
	"math"

	"github.com/skybotdev/skybot/internal/domain"
)

// uncertaintyScaleF normalizes the forecast standard deviation into the
// uncertainty score. With a 0.30 uncertainty ceiling, std devs up to 4.5 °F
// stay at or below the ceiling.
const uncertaintyScaleF = 15.0

// DailyHighTemp models the next-day high temperature as a Gaussian centered
// on the forecast high and trades the threshold contracts against the
// market-implied probability.
type DailyHighTemp struct{}

// NewDailyHighTemp creates the daily-high temperature strategy.
func NewDailyHighTemp() *DailyHighTemp {
	return &DailyHighTemp{}
}

// Name returns the strategy identifier used in intent keys and persistence.
func (s *DailyHighTemp) Name() string { return "daily_high_temp" }

// Evaluate produces a signal for one (weather, market) pair.
func (s *DailyHighTemp) Evaluate(in Inputs, p Params) domain.Signal {
	sig := domain.Signal{
		CityCode:     in.Market.CityCode,
		Ticker:       in.Market.Ticker,
		StrategyName: s.Name(),
		Action:       domain.ActionHold,
	}

	if in.Weather.Stale {
		sig.Reasons = []domain.ReasonCode{domain.ReasonStaleWeather}
		return sig
	}

	sigma := in.Weather.ForecastStdDevF
	if sigma <= 0 {
		sig.Reasons = []domain.ReasonCode{domain.ReasonHighUncertainty}
		return sig
	}

	mu := in.Weather.ForecastHighF
	pAbove := 0.5 * (1 - math.Erf((in.Market.ThresholdF-mu)/(sigma*math.Sqrt2)))
	pModel := pAbove
	if in.Market.Direction == domain.DirectionBelow {
		pModel = 1 - pAbove
	}
	sig.PModelYes = pModel

	rawUncertainty := sigma / uncertaintyScaleF
	sig.Uncertainty = math.Min(rawUncertainty, p.MaxUncertainty)

	midYes, ok := in.Market.MidYes()
	if !ok {
		sig.Reasons = []domain.ReasonCode{domain.ReasonHoldDefault}
		return sig
	}
	pMarket := midYes / 100
	sig.PMarketYes = pMarket

	edge := pModel - pMarket
	sig.Edge = edge

	// Prefer YES on positive edge; otherwise consider the NO side, whose
	// model probability is the complement.
	side := domain.SideYes
	pSide := pModel
	if edge <= 0 {
		side = domain.SideNo
		pSide = 1 - pModel
	}

	var reasons []domain.ReasonCode
	if edge > 0 {
		reasons = append(reasons, domain.ReasonEdgePositive)
	} else if edge < 0 {
		reasons = append(reasons, domain.ReasonEdgeNegative)
	}

	if rawUncertainty > p.MaxUncertainty {
		reasons = append(reasons, domain.ReasonHighUncertainty)
		sig.Reasons = reasons
		return sig
	}

	if math.Abs(edge) < p.MinEdgeAfterCosts {
		reasons = append(reasons, domain.ReasonBelowMinEdge)
		sig.Reasons = reasons
		return sig
	}

	maxPrice := int(math.Floor(100 * (pSide - p.MinEdgeAfterCosts)))
	if maxPrice < 1 {
		reasons = append(reasons, domain.ReasonBelowMinEdge)
		sig.Reasons = reasons
		return sig
	}

	ask, ok := in.Market.AskFor(side)
	if !ok || ask > maxPrice {
		reasons = append(reasons, domain.ReasonBelowMinEdge)
		sig.Reasons = reasons
		return sig
	}

	if len(reasons) == 0 {
		reasons = append(reasons, domain.ReasonHoldDefault)
	}

	sig.Action = domain.ActionBuy
	sig.Side = side
	sig.MaxPriceCents = maxPrice
	sig.SizeHint = sizeHint(sig.Uncertainty, maxPrice, p)
	sig.Reasons = reasons
	return sig
}

// sizeHint converts confidence-weighted dollars at risk into a contract
// count, floored and capped at the configured per-trade maximum.
func sizeHint(uncertainty float64, priceCents int, p Params) int {
	if priceCents <= 0 || p.MaxUncertainty <= 0 {
		return 0
	}
	confidence := 1 - uncertainty/p.MaxUncertainty
	dollarsAtRisk := p.Bankroll * p.MaxTradeRiskPct * confidence
	qty := int(math.Floor(dollarsAtRisk / (float64(priceCents) / 100)))
	if qty > p.MaxPositionSize {
		qty = p.MaxPositionSize
	}
	if qty < 0 {
		qty = 0
	}
	return qty
}
