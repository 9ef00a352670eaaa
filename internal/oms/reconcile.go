package oms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skybotdev/skybot/internal/domain"
)

// fillCursorName is the named cursor tracking fill reconciliation progress.
const fillCursorName = "fills"

// FillReport summarizes one in-cycle fill reconciliation.
type FillReport struct {
	Total    int
	Matched  int
	Orphaned int
}

// ReconcileFills replays fills from the exchange since the stored cursor
// into local orders, fill rows, and positions, then advances the cursor.
// It runs at the start of every cycle, before risk checks.
func (o *OMS) ReconcileFills(ctx context.Context) (FillReport, error) {
	var since time.Time
	cursor, err := o.stores.Cursors.Get(ctx, fillCursorName)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return FillReport{}, fmt.Errorf("oms: read fill cursor: %w", err)
	}
	if cursor != "" {
		if ts, perr := time.Parse(time.RFC3339, cursor); perr == nil {
			since = ts
		}
	}

	// Fetch outside the serialization lock; apply under it.
	fills, err := o.exchange.ListFills(ctx, since)
	if err != nil {
		return FillReport{}, fmt.Errorf("oms: list fills: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	report := FillReport{Total: len(fills)}
	latest := since

	for _, f := range fills {
		if f.CreatedTime.After(latest) {
			latest = f.CreatedTime
		}

		seen, err := o.stores.Fills.ExistsByTradeID(ctx, f.TradeID)
		if err != nil {
			return report, fmt.Errorf("oms: check fill %s: %w", f.TradeID, err)
		}
		if seen {
			continue
		}

		order, err := o.stores.Orders.GetByExchangeOrderID(ctx, f.OrderID)
		if errors.Is(err, domain.ErrNotFound) {
			report.Orphaned++
			o.logger.WarnContext(ctx, "orphaned fill, no matching local order",
				slog.String("exchange_order_id", f.OrderID),
				slog.String("ticker", f.Ticker),
				slog.Int("quantity", f.Count),
			)
			continue
		}
		if err != nil {
			return report, fmt.Errorf("oms: match fill %s: %w", f.TradeID, err)
		}

		if err := o.applyFillLocked(ctx, &order, f); err != nil {
			return report, err
		}
		report.Matched++
	}

	if latest.After(since) {
		if err := o.stores.Cursors.Set(ctx, fillCursorName, latest.Format(time.RFC3339)); err != nil {
			return report, fmt.Errorf("oms: advance fill cursor: %w", err)
		}
	}

	return report, nil
}

// StartupReport summarizes startup reconciliation.
type StartupReport struct {
	ExchangeOpen   int
	OrphansImported int
	StaleClosed    int
	Mismatches     int
}

// ReconcileStartup aligns local order state with the exchange at boot.
// Unknown exchange orders are imported as orphans under a synthetic intent
// and never canceled; local active orders absent from the exchange are
// closed as stale.
func (o *OMS) ReconcileStartup(ctx context.Context) (StartupReport, error) {
	open, err := o.exchange.ListOpenOrders(ctx)
	if err != nil {
		return StartupReport{}, fmt.Errorf("oms: list open orders: %w", err)
	}
	exPositions, err := o.exchange.ListPositions(ctx)
	if err != nil {
		return StartupReport{}, fmt.Errorf("oms: list positions: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	report := StartupReport{ExchangeOpen: len(open)}
	onExchange := make(map[string]bool, len(open))

	for _, ex := range open {
		onExchange[ex.ClientOrderID] = true

		_, err := o.stores.Orders.GetByClientOrderID(ctx, ex.ClientOrderID)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return report, fmt.Errorf("oms: lookup %s: %w", ex.ClientOrderID, err)
		}

		if err := o.importOrphanLocked(ctx, ex.ClientOrderID, ex.OrderID, ex.Ticker, ex.Side, ex.RemainingCount, ex.YesPrice, ex.NoPrice, ex.CreatedTime); err != nil {
			return report, err
		}
		report.OrphansImported++
	}

	active, err := o.stores.Orders.ListActive(ctx)
	if err != nil {
		return report, fmt.Errorf("oms: list active orders: %w", err)
	}
	staleClosed := 0
	for _, order := range active {
		if onExchange[order.ClientOrderID] {
			continue
		}
		if order.Status == domain.OrderStatusNew {
			// Never made it to the exchange; a crash between create and
			// submit. Reject locally.
			if err := o.transitionLocked(ctx, &order, domain.OrderStatusRejected); err != nil {
				return report, err
			}
			continue
		}
		o.logger.WarnContext(ctx, "local order missing on exchange, closing",
			slog.String("client_order_id", order.ClientOrderID),
			slog.String("reason", "RECONCILE_STALE"),
		)
		if err := o.transitionLocked(ctx, &order, domain.OrderStatusCanceled); err != nil {
			return report, err
		}
		staleClosed++
	}
	report.StaleClosed = staleClosed

	// Cross-check exchange positions against local aggregates. Differences
	// are surfaced, not auto-corrected.
	local, err := o.stores.Positions.GetOpen(ctx)
	if err != nil {
		return report, fmt.Errorf("oms: list local positions: %w", err)
	}
	localQty := make(map[string]int, len(local))
	for _, p := range local {
		qty := p.QuantityOpen
		if p.Side == domain.SideNo {
			qty = -qty
		}
		localQty[p.Ticker] += qty
	}
	for _, ep := range exPositions {
		if ep.Position != localQty[ep.Ticker] {
			report.Mismatches++
			o.logger.ErrorContext(ctx, "position mismatch",
				slog.String("ticker", ep.Ticker),
				slog.Int("exchange", ep.Position),
				slog.Int("local", localQty[ep.Ticker]),
			)
		}
	}
	if report.Mismatches > 0 {
		return report, fmt.Errorf("oms: %d position(s) differ: %w", report.Mismatches, domain.ErrReconcileMismatch)
	}

	return report, nil
}

// importOrphanLocked inserts a local record for an exchange order we have
// no history of, linked to a synthetic intent. No cancel is issued.
func (o *OMS) importOrphanLocked(ctx context.Context, clientOrderID, exchangeOrderID, ticker, side string, remaining, yesPrice, noPrice int, createdAt time.Time) error {
	domainSide := domain.SideYes
	price := yesPrice
	if side == "no" {
		domainSide = domain.SideNo
		price = noPrice
	}

	cityCode := cityFromTicker(ticker)
	eventDate := ""
	if parts := strings.Split(ticker, "-"); len(parts) >= 2 {
		if t, err := time.Parse("02Jan06", parts[1]); err == nil {
			eventDate = t.Format("2006-01-02")
		}
	}

	// The orphan keeps its exchange-side client order ID. The synthetic
	// intent reuses the intent key carried in that ID when it has one, and
	// otherwise gets a fresh "import-" key.
	key := "import-" + uuid.New().String()
	if ik, ok := SplitClientOrderID(clientOrderID); ok {
		key = ik
	}

	intent := domain.Intent{
		Key:          key,
		CityCode:     cityCode,
		Ticker:       ticker,
		Side:         domainSide,
		StrategyName: "unknown",
		EventDate:    eventDate,
		Origin:       domain.IntentOriginReconcileImport,
	}
	if err := o.stores.Intents.Upsert(ctx, intent); err != nil {
		return fmt.Errorf("oms: upsert orphan intent: %w", err)
	}

	now := o.now()
	order := domain.Order{
		IntentKey:       key,
		IntentVersion:   1,
		ClientOrderID:   clientOrderID,
		ExchangeOrderID: &exchangeOrderID,
		Ticker:          ticker,
		CityCode:        cityCode,
		EventDate:       eventDate,
		Side:            domainSide,
		Quantity:        remaining,
		LimitPriceCents: price,
		Status:          domain.OrderStatusResting,
		CreatedAt:       createdAt,
		UpdatedAt:       now,
	}
	id, err := o.stores.Orders.Create(ctx, order)
	if err != nil {
		return fmt.Errorf("oms: import orphan %s: %w", clientOrderID, err)
	}

	o.logger.WarnContext(ctx, "orphan order imported",
		slog.Int64("order_id", id),
		slog.String("client_order_id", clientOrderID),
		slog.String("ticker", ticker),
	)

	o.publish(ctx, "skybot:events", map[string]any{
		"type":            "orphan_import",
		"client_order_id": clientOrderID,
		"ticker":          ticker,
	})

	return nil
}

// cityFromTicker extracts the city code from a series ticker such as
// HIGHNYC-10FEB26-B72.
func cityFromTicker(ticker string) string {
	head, _, _ := strings.Cut(ticker, "-")
	if len(head) > 4 && strings.HasPrefix(head, "HIGH") {
		return head[4:]
	}
	return ""
}
