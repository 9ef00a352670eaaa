// Package oms is the order management system: deterministic intent keys, a
// validated order state machine, idempotent placement, bounded
// cancel/replace, and reconciliation against the exchange.
package oms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skybotdev/skybot/internal/domain"
	"github.com/skybotdev/skybot/internal/platform/kalshi"
)

// ExchangeGateway is the exchange surface the OMS consumes.
type ExchangeGateway interface {
	PlaceOrder(ctx context.Context, req kalshi.OrderRequest) (kalshi.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	ListOpenOrders(ctx context.Context) ([]kalshi.Order, error)
	ListPositions(ctx context.Context) ([]kalshi.Position, error)
	ListFills(ctx context.Context, since time.Time) ([]kalshi.Fill, error)
}

// Stores bundles the persistence the OMS writes through.
type Stores struct {
	Intents   domain.IntentStore
	Orders    domain.OrderStore
	Fills     domain.FillStore
	Positions domain.PositionStore
	Cursors   domain.CursorStore
	Events    domain.RiskEventStore
}

// Config holds the cancel/replace policy.
type Config struct {
	RepriceInterval time.Duration
	MaxChaseCents   int
}

// OMS owns order lifecycle. All state-table mutations pass through a single
// mutex so transitions apply serially; readers get value snapshots from the
// stores.
type OMS struct {
	exchange  ExchangeGateway
	stores    Stores
	cfg       Config
	clusterOf func(cityCode string) domain.Cluster
	bus       domain.EventBus
	logger    *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// New creates an OMS. bus may be nil to disable event publication.
func New(exchange ExchangeGateway, stores Stores, cfg Config, clusterOf func(string) domain.Cluster, bus domain.EventBus, logger *slog.Logger) *OMS {
	return &OMS{
		exchange:  exchange,
		stores:    stores,
		cfg:       cfg,
		clusterOf: clusterOf,
		bus:       bus,
		logger:    logger.With(slog.String("component", "oms")),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the OMS clock. Tests only.
func (o *OMS) SetClock(now func() time.Time) { o.now = now }

// PlaceResult reports what one placement attempt did.
type PlaceResult struct {
	Order    domain.Order
	Placed   bool // false when an active order for the intent already exists
	Rejected bool // exchange rejected the submission
}

// Place realizes a signal as at most one order per (intent, version). A
// cycle that finds an existing active order for the intent does not place
// another.
func (o *OMS) Place(ctx context.Context, sig domain.Signal, eventDate string, quantity int) (PlaceResult, error) {
	key := IntentKey(sig.CityCode, sig.Ticker, sig.Side, sig.StrategyName, eventDate)

	order, existing, err := o.prepareOrder(ctx, sig, key, eventDate, quantity)
	if err != nil {
		return PlaceResult{}, err
	}
	if existing != nil {
		return PlaceResult{Order: *existing}, nil
	}

	// The exchange call happens outside the serialization lock; nothing
	// else can touch this order until its transitions are applied.
	ack, err := o.exchange.PlaceOrder(ctx, orderRequest(order))
	if err != nil {
		if terr := o.transition(ctx, &order, domain.OrderStatusRejected); terr != nil {
			o.logger.ErrorContext(ctx, "rejected-transition failed", slog.String("error", terr.Error()))
		}
		return PlaceResult{Order: order, Rejected: true}, fmt.Errorf("oms: submit %s: %w", order.ClientOrderID, err)
	}

	o.mu.Lock()
	if ack.OrderID != "" {
		order.ExchangeOrderID = &ack.OrderID
	}
	if err := o.transitionLocked(ctx, &order, domain.OrderStatusSubmitted); err != nil {
		o.mu.Unlock()
		return PlaceResult{Order: order}, err
	}
	next := statusFromExchange(ack.Status)
	if next != order.Status {
		if err := o.transitionLocked(ctx, &order, next); err != nil {
			o.mu.Unlock()
			return PlaceResult{Order: order}, err
		}
	}
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "order submitted",
		slog.String("client_order_id", order.ClientOrderID),
		slog.String("ticker", order.Ticker),
		slog.String("side", string(order.Side)),
		slog.Int("quantity", order.Quantity),
		slog.Int("limit_price_cents", order.LimitPriceCents),
	)

	return PlaceResult{Order: order, Placed: true}, nil
}

// PlaceSimulated records an order and an immediate simulated fill at the
// given ask price without touching the exchange. Shadow mode only.
func (o *OMS) PlaceSimulated(ctx context.Context, sig domain.Signal, eventDate string, quantity, askCents int) (PlaceResult, error) {
	key := IntentKey(sig.CityCode, sig.Ticker, sig.Side, sig.StrategyName, eventDate)

	order, existing, err := o.prepareOrder(ctx, sig, key, eventDate, quantity)
	if err != nil {
		return PlaceResult{}, err
	}
	if existing != nil {
		return PlaceResult{Order: *existing}, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.transitionLocked(ctx, &order, domain.OrderStatusSubmitted); err != nil {
		return PlaceResult{Order: order}, err
	}

	fill := kalshi.Fill{
		TradeID:     "sim-" + uuid.New().String(),
		OrderID:     "sim-" + order.ClientOrderID,
		Ticker:      order.Ticker,
		Side:        sideParam(order.Side),
		Action:      "buy",
		Count:       quantity,
		CreatedTime: o.now(),
	}
	if order.Side == domain.SideNo {
		fill.NoPrice = askCents
	} else {
		fill.YesPrice = askCents
	}
	order.ExchangeOrderID = &fill.OrderID
	if err := o.applyFillLocked(ctx, &order, fill); err != nil {
		return PlaceResult{Order: order}, err
	}

	o.logger.InfoContext(ctx, "simulated fill recorded",
		slog.String("client_order_id", order.ClientOrderID),
		slog.Int("price_cents", askCents),
		slog.Int("quantity", quantity),
	)

	return PlaceResult{Order: order, Placed: true}, nil
}

// RefreshByIntent looks up the active order for the signal's intent and
// applies the cancel/replace policy to it. It is a no-op when the intent
// has no active order.
func (o *OMS) RefreshByIntent(ctx context.Context, sig domain.Signal, eventDate string, gatesPass bool) error {
	key := IntentKey(sig.CityCode, sig.Ticker, sig.Side, sig.StrategyName, eventDate)

	order, err := o.stores.Orders.ActiveByIntentKey(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("oms: lookup intent %s: %w", key, err)
	}
	return o.Refresh(ctx, order, sig, gatesPass)
}

// Refresh applies the cancel/replace policy to an active order. The order
// is canceled when the market no longer passes the gates, and repriced when
// the signal's limit moved, the reprice interval elapsed, and the cumulative
// move from the version-1 price stays within the chase budget.
func (o *OMS) Refresh(ctx context.Context, order domain.Order, sig domain.Signal, gatesPass bool) error {
	if !order.Status.Active() || order.ExchangeOrderID == nil {
		return nil
	}

	if !gatesPass {
		return o.cancel(ctx, &order, "gates no longer pass")
	}

	if sig.MaxPriceCents == order.LimitPriceCents {
		return nil
	}
	if o.now().Sub(order.UpdatedAt) < o.cfg.RepriceInterval {
		return nil
	}

	original, err := o.stores.Orders.GetByClientOrderID(ctx, ClientOrderID(order.IntentKey, 1))
	if err != nil {
		return fmt.Errorf("oms: original order for %s: %w", order.IntentKey, err)
	}
	chase := sig.MaxPriceCents - original.LimitPriceCents
	if chase < 0 {
		chase = -chase
	}
	if chase > o.cfg.MaxChaseCents {
		o.logger.InfoContext(ctx, "reprice skipped, chase budget exhausted",
			slog.String("client_order_id", order.ClientOrderID),
			slog.Int("chase_cents", chase),
			slog.Int("max_chase_cents", o.cfg.MaxChaseCents),
		)
		return nil
	}

	if err := o.cancel(ctx, &order, "reprice"); err != nil {
		return err
	}

	o.mu.Lock()
	replacement, err := o.createOrderLocked(ctx, sig, order.IntentKey, order.EventDate, order.RemainingQuantity(), domain.IntentOriginTrade)
	o.mu.Unlock()
	if err != nil {
		return err
	}

	ack, err := o.exchange.PlaceOrder(ctx, orderRequest(replacement))
	if err != nil {
		if terr := o.transition(ctx, &replacement, domain.OrderStatusRejected); terr != nil {
			o.logger.ErrorContext(ctx, "rejected-transition failed", slog.String("error", terr.Error()))
		}
		return fmt.Errorf("oms: replace %s: %w", replacement.ClientOrderID, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if ack.OrderID != "" {
		replacement.ExchangeOrderID = &ack.OrderID
	}
	if err := o.transitionLocked(ctx, &replacement, domain.OrderStatusSubmitted); err != nil {
		return err
	}
	if next := statusFromExchange(ack.Status); next != replacement.Status {
		if err := o.transitionLocked(ctx, &replacement, next); err != nil {
			return err
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// internals
// ---------------------------------------------------------------------------

// prepareOrder takes the serialization lock to check for an existing active
// order and, absent one, records the intent and a NEW order. Exactly one of
// the return values is meaningful: existing when the intent already has an
// active order, order otherwise.
func (o *OMS) prepareOrder(ctx context.Context, sig domain.Signal, key, eventDate string, quantity int) (domain.Order, *domain.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, err := o.stores.Orders.ActiveByIntentKey(ctx, key); err == nil {
		return domain.Order{}, &existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, nil, fmt.Errorf("oms: lookup intent %s: %w", key, err)
	}

	order, err := o.createOrderLocked(ctx, sig, key, eventDate, quantity, domain.IntentOriginTrade)
	if err != nil {
		return domain.Order{}, nil, err
	}
	return order, nil, nil
}

// transition applies one validated transition under the serialization lock.
func (o *OMS) transition(ctx context.Context, order *domain.Order, to domain.OrderStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transitionLocked(ctx, order, to)
}

// cancel revokes an active order on the exchange, then applies the local
// transition. The exchange call happens outside the serialization lock.
func (o *OMS) cancel(ctx context.Context, order *domain.Order, reason string) error {
	if order.ExchangeOrderID != nil {
		if err := o.exchange.CancelOrder(ctx, *order.ExchangeOrderID); err != nil {
			return fmt.Errorf("oms: cancel %s: %w", order.ClientOrderID, err)
		}
	}
	o.logger.InfoContext(ctx, "order canceled",
		slog.String("client_order_id", order.ClientOrderID),
		slog.String("reason", reason),
	)
	return o.transition(ctx, order, domain.OrderStatusCanceled)
}

// createOrderLocked persists the intent and a NEW order for its next
// version. Callers hold o.mu.
func (o *OMS) createOrderLocked(ctx context.Context, sig domain.Signal, key, eventDate string, quantity int, origin domain.IntentOrigin) (domain.Order, error) {
	intent := domain.Intent{
		Key:          key,
		CityCode:     sig.CityCode,
		Ticker:       sig.Ticker,
		Side:         sig.Side,
		StrategyName: sig.StrategyName,
		EventDate:    eventDate,
		Origin:       origin,
	}
	if err := o.stores.Intents.Upsert(ctx, intent); err != nil {
		return domain.Order{}, fmt.Errorf("oms: upsert intent %s: %w", key, err)
	}

	version, err := o.stores.Orders.LatestVersion(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.Order{}, fmt.Errorf("oms: latest version %s: %w", key, err)
	}
	version++

	now := o.now()
	order := domain.Order{
		IntentKey:       key,
		IntentVersion:   version,
		ClientOrderID:   ClientOrderID(key, version),
		Ticker:          sig.Ticker,
		CityCode:        sig.CityCode,
		EventDate:       eventDate,
		Side:            sig.Side,
		Quantity:        quantity,
		LimitPriceCents: sig.MaxPriceCents,
		Status:          domain.OrderStatusNew,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	id, err := o.stores.Orders.Create(ctx, order)
	if err != nil {
		return domain.Order{}, fmt.Errorf("oms: create order %s: %w", order.ClientOrderID, err)
	}
	order.ID = id
	return order, nil
}

// transitionLocked applies one validated state-machine transition and
// persists the result. An invalid transition is a programming error: it is
// logged and recorded, the state is left untouched, and the loop goes on.
func (o *OMS) transitionLocked(ctx context.Context, order *domain.Order, to domain.OrderStatus) error {
	if !domain.CanTransition(order.Status, to) {
		o.logger.ErrorContext(ctx, "invalid order transition",
			slog.String("client_order_id", order.ClientOrderID),
			slog.String("from", string(order.Status)),
			slog.String("to", string(to)),
		)
		return fmt.Errorf("oms: %s -> %s for %s: %w", order.Status, to, order.ClientOrderID, domain.ErrInvalidTransition)
	}
	order.Status = to
	order.UpdatedAt = o.now()
	if err := o.stores.Orders.Update(ctx, *order); err != nil {
		return fmt.Errorf("oms: persist transition %s: %w", order.ClientOrderID, err)
	}
	return nil
}

// applyFillLocked records one fill: order progress, fill row, and the
// position aggregate, then publishes the fill to the event bus. Callers
// hold o.mu.
func (o *OMS) applyFillLocked(ctx context.Context, order *domain.Order, f kalshi.Fill) error {
	priceCents := f.PriceCents()

	prevFilled := order.FilledQuantity
	order.FilledQuantity += f.Count
	if order.AvgFillCents == nil {
		avg := float64(priceCents)
		order.AvgFillCents = &avg
	} else {
		avg := (*order.AvgFillCents*float64(prevFilled) + float64(priceCents)*float64(f.Count)) / float64(order.FilledQuantity)
		order.AvgFillCents = &avg
	}

	next := domain.OrderStatusPartial
	if order.FilledQuantity >= order.Quantity {
		next = domain.OrderStatusFilled
	}
	if next == order.Status {
		// Another partial on an already-partial order: progress only.
		order.UpdatedAt = o.now()
		if err := o.stores.Orders.Update(ctx, *order); err != nil {
			return fmt.Errorf("oms: persist fill progress %s: %w", order.ClientOrderID, err)
		}
	} else if err := o.transitionLocked(ctx, order, next); err != nil {
		return err
	}

	fill := domain.Fill{
		ID:              uuid.New().String(),
		OrderID:         order.ID,
		ClientOrderID:   order.ClientOrderID,
		ExchangeTradeID: f.TradeID,
		Ticker:          order.Ticker,
		CityCode:        order.CityCode,
		Side:            order.Side,
		FilledAt:        f.CreatedTime,
		Quantity:        f.Count,
		PriceCents:      priceCents,
	}
	if err := o.stores.Fills.Insert(ctx, fill); err != nil {
		return fmt.Errorf("oms: insert fill %s: %w", fill.ID, err)
	}

	if err := o.updatePosition(ctx, *order, f); err != nil {
		return err
	}

	o.publish(ctx, "skybot:fills", map[string]any{
		"ticker":      fill.Ticker,
		"city_code":   fill.CityCode,
		"side":        fill.Side,
		"quantity":    fill.Quantity,
		"price_cents": fill.PriceCents,
		"filled_at":   fill.FilledAt.Format(time.RFC3339),
	})

	return nil
}

// updatePosition folds a fill into the per-(market, side) aggregate.
func (o *OMS) updatePosition(ctx context.Context, order domain.Order, f kalshi.Fill) error {
	priceCents := float64(f.PriceCents())

	pos, err := o.stores.Positions.GetByTickerSide(ctx, order.Ticker, order.Side)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		pos = domain.Position{
			Ticker:        order.Ticker,
			CityCode:      order.CityCode,
			Cluster:       o.clusterOf(order.CityCode),
			Side:          order.Side,
			QuantityOpen:  f.Count,
			AvgEntryCents: priceCents,
			Status:        domain.PositionStatusOpen,
			OpenedAt:      f.CreatedTime,
		}
		if _, err := o.stores.Positions.Create(ctx, pos); err != nil {
			return fmt.Errorf("oms: create position %s/%s: %w", order.Ticker, order.Side, err)
		}
		return nil
	case err != nil:
		return fmt.Errorf("oms: get position %s/%s: %w", order.Ticker, order.Side, err)
	}

	if f.Action == "sell" {
		closed := f.Count
		if closed > pos.QuantityOpen {
			closed = pos.QuantityOpen
		}
		pos.RealizedPnL += float64(closed) * (priceCents - pos.AvgEntryCents) / 100.0
		pos.QuantityOpen -= closed
		exit := priceCents
		pos.AvgExitCents = &exit
		if pos.QuantityOpen == 0 {
			pos.Status = domain.PositionStatusClosed
			closedAt := f.CreatedTime
			pos.ClosedAt = &closedAt
		}
	} else {
		total := pos.QuantityOpen + f.Count
		pos.AvgEntryCents = (pos.AvgEntryCents*float64(pos.QuantityOpen) + priceCents*float64(f.Count)) / float64(total)
		pos.QuantityOpen = total
	}

	if err := o.stores.Positions.Update(ctx, pos); err != nil {
		return fmt.Errorf("oms: update position %s/%s: %w", order.Ticker, order.Side, err)
	}
	return nil
}

// publish best-effort appends an event to the bus.
func (o *OMS) publish(ctx context.Context, stream string, payload map[string]any) {
	if o.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := o.bus.StreamAppend(ctx, stream, data); err != nil {
		o.logger.WarnContext(ctx, "event publish failed",
			slog.String("stream", stream),
			slog.String("error", err.Error()),
		)
	}
}

// orderRequest converts a local order into the exchange payload.
func orderRequest(order domain.Order) kalshi.OrderRequest {
	req := kalshi.OrderRequest{
		Ticker:        order.Ticker,
		ClientOrderID: order.ClientOrderID,
		Side:          sideParam(order.Side),
		Action:        "buy",
		Count:         order.Quantity,
		Type:          "limit",
	}
	price := order.LimitPriceCents
	if order.Side == domain.SideNo {
		req.NoPrice = &price
	} else {
		req.YesPrice = &price
	}
	return req
}

// sideParam maps the domain side to the exchange's lowercase parameter.
func sideParam(side domain.Side) string {
	if side == domain.SideNo {
		return "no"
	}
	return "yes"
}

// statusFromExchange maps the exchange's order status strings onto the
// local state machine.
func statusFromExchange(status string) domain.OrderStatus {
	switch status {
	case "resting":
		return domain.OrderStatusResting
	case "executed":
		return domain.OrderStatusFilled
	case "canceled":
		return domain.OrderStatusCanceled
	case "pending":
		return domain.OrderStatusSubmitted
	default:
		return domain.OrderStatusSubmitted
	}
}
