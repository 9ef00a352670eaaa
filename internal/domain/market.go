package domain

import "time"

// Direction indicates which side of the temperature threshold settles YES.
type Direction string

const (
	DirectionAbove Direction = "ABOVE"
	DirectionBelow Direction = "BELOW"
)

// MarketSnapshot is one orderbook fetch for a daily-high temperature
// contract. Prices are integer cents in [1, 99]; a nil side means the book
// had no resting orders there and the market is ineligible for trading.
type MarketSnapshot struct {
	ID           int64
	Ticker       string
	CityCode     string
	ThresholdF   float64
	Direction    Direction
	EventDate    string // local settlement date, YYYY-MM-DD
	YesBid       *int
	YesAsk       *int
	NoBid        *int
	NoAsk        *int
	Volume       int64
	OpenInterest int64
	CloseTime    time.Time
	CapturedAt   time.Time
}

// Eligible reports whether both sides of the YES book are quoted.
func (m MarketSnapshot) Eligible() bool {
	return m.YesBid != nil && m.YesAsk != nil
}

// MidYes returns the YES mid price in cents.
func (m MarketSnapshot) MidYes() (float64, bool) {
	if !m.Eligible() {
		return 0, false
	}
	return float64(*m.YesBid+*m.YesAsk) / 2, true
}

// SpreadCents returns the YES bid/ask spread.
func (m MarketSnapshot) SpreadCents() (int, bool) {
	if !m.Eligible() {
		return 0, false
	}
	return *m.YesAsk - *m.YesBid, true
}

// AskFor returns the ask price for the given side. NO asks fall back to the
// market-making identity (100 - yes_bid) when the NO book is not quoted.
func (m MarketSnapshot) AskFor(side Side) (int, bool) {
	switch side {
	case SideYes:
		if m.YesAsk == nil {
			return 0, false
		}
		return *m.YesAsk, true
	case SideNo:
		if m.NoAsk != nil {
			return *m.NoAsk, true
		}
		if m.YesBid != nil {
			return 100 - *m.YesBid, true
		}
	}
	return 0, false
}
