package domain

import "time"

// Fill is one exchange fill event applied to an order.
type Fill struct {
	ID              string // UUID
	OrderID         int64
	ClientOrderID   string
	ExchangeTradeID string
	Ticker          string
	CityCode        string
	Side            Side
	FilledAt        time.Time
	Quantity        int
	PriceCents      int
	FeesCents       int
	RealizedPnL     *float64 // nil until the position closes
}

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// Position aggregates fills per (market, side).
type Position struct {
	ID            int64
	Ticker        string
	CityCode      string
	Cluster       Cluster
	Side          Side
	QuantityOpen  int
	AvgEntryCents float64
	AvgExitCents  *float64
	RealizedPnL   float64
	Status        PositionStatus
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// ExposureDollars is the capital committed to the open quantity at entry.
func (p Position) ExposureDollars() float64 {
	return float64(p.QuantityOpen) * p.AvgEntryCents / 100.0
}

// OpenExposure is the minimal view of a position the risk engine needs when
// accumulating city and cluster exposure, including in-cycle placements that
// have no position row yet.
type OpenExposure struct {
	CityCode string
	Cluster  Cluster
	Dollars  float64
}
