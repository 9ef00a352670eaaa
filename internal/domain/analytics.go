package domain

import "time"

// PublicTrade is the redacted, delayed projection of a fill. It carries no
// order identifiers, intent keys, or raw payloads, and its timestamp is
// rounded to the minute.
type PublicTrade struct {
	Ticker     string
	CityCode   string
	Side       Side
	Quantity   int
	PriceCents int
	FilledAt   time.Time
}

// CityDaily is the per-city daily rollup row.
type CityDaily struct {
	Day      time.Time // UTC date
	CityCode string
	PnL      float64
	WinRate  float64
	Trades   int
}

// StrategyDaily is the per-strategy daily rollup row.
type StrategyDaily struct {
	Day          time.Time
	StrategyName string
	SignalCount  int
	RealizedEdge float64
}

// EquityPoint is one equity-curve snapshot.
type EquityPoint struct {
	Day        time.Time
	Realized   float64
	Unrealized float64
	Bankroll   float64 // configured baseline
	Equity     float64 // bankroll + realized + unrealized
}
