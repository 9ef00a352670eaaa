package domain

import "time"

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusResting   OrderStatus = "RESTING"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusClosed    OrderStatus = "CLOSED"
)

// validTransitions is the authoritative order state machine. Anything not
// listed here is rejected with ErrInvalidTransition.
var validTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:       {OrderStatusSubmitted, OrderStatusRejected},
	OrderStatusSubmitted: {OrderStatusResting, OrderStatusPartial, OrderStatusFilled, OrderStatusRejected, OrderStatusCanceled},
	OrderStatusResting:   {OrderStatusPartial, OrderStatusFilled, OrderStatusCanceled},
	OrderStatusPartial:   {OrderStatusFilled, OrderStatusCanceled},
	OrderStatusFilled:    {OrderStatusClosed},
	OrderStatusCanceled:  {},
	OrderStatusRejected:  {},
	OrderStatusClosed:    {},
}

// CanTransition reports whether moving from one order status to another is
// allowed by the state machine.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status accepts no further transitions.
func (s OrderStatus) Terminal() bool {
	return len(validTransitions[s]) == 0
}

// Active reports whether the order can still produce fills on the exchange.
func (s OrderStatus) Active() bool {
	switch s {
	case OrderStatusNew, OrderStatusSubmitted, OrderStatusResting, OrderStatusPartial:
		return true
	}
	return false
}

// IntentOrigin records how an intent came to exist.
type IntentOrigin string

const (
	IntentOriginTrade           IntentOrigin = "TRADE"
	IntentOriginReconcileImport IntentOrigin = "RECONCILE_IMPORT"
)

// Intent is the abstract desire to hold a position in a given (city,
// contract, side) on a given event date. Its key is deterministic across
// process restarts.
type Intent struct {
	Key          string // hex sha256 over the canonical tuple
	CityCode     string
	Ticker       string
	Side         Side
	StrategyName string
	EventDate    string // YYYY-MM-DD
	Origin       IntentOrigin
}

// Order is one concrete attempt to realize an intent.
type Order struct {
	ID              int64
	IntentKey       string
	IntentVersion   int
	ClientOrderID   string  // intent_key + "#" + version
	ExchangeOrderID *string // nil until the exchange acks
	Ticker          string
	CityCode        string
	EventDate       string
	Side            Side
	Quantity        int
	FilledQuantity  int
	LimitPriceCents int
	AvgFillCents    *float64
	Status          OrderStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RiskDollars is the capital at risk if the order fills completely.
func (o Order) RiskDollars() float64 {
	return float64(o.Quantity) * float64(o.LimitPriceCents) / 100.0
}

// RemainingQuantity is the unfilled contract count.
func (o Order) RemainingQuantity() int {
	return o.Quantity - o.FilledQuantity
}
