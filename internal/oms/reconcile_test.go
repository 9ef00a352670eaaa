package oms

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybotdev/skybot/internal/domain"
	"github.com/skybotdev/skybot/internal/platform/kalshi"
)

func TestReconcileFillsUpdatesOrderAndPosition(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{}
	o := newTestOMS(mem, exchange)

	placed, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)

	fillTime := time.Date(2026, 2, 10, 15, 5, 0, 0, time.UTC)
	exchange.fills = []kalshi.Fill{
		{
			TradeID:     "t1",
			OrderID:     *placed.Order.ExchangeOrderID,
			Ticker:      placed.Order.Ticker,
			Side:        "yes",
			Action:      "buy",
			Count:       4,
			YesPrice:    70,
			CreatedTime: fillTime,
		},
		{
			TradeID:     "t2",
			OrderID:     *placed.Order.ExchangeOrderID,
			Ticker:      placed.Order.Ticker,
			Side:        "yes",
			Action:      "buy",
			Count:       5,
			YesPrice:    71,
			CreatedTime: fillTime.Add(time.Minute),
		},
	}

	report, err := o.ReconcileFills(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Matched)
	assert.Zero(t, report.Orphaned)

	order, err := mem.stores().Orders.GetByClientOrderID(context.Background(), placed.Order.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, order.Status)
	assert.Equal(t, 9, order.FilledQuantity)
	require.NotNil(t, order.AvgFillCents)
	assert.InDelta(t, (70.0*4+71.0*5)/9.0, *order.AvgFillCents, 1e-9)

	pos, err := mem.stores().Positions.GetByTickerSide(context.Background(), order.Ticker, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, 9, pos.QuantityOpen)

	// The cursor advanced to the latest fill time.
	cursor, err := mem.stores().Cursors.Get(context.Background(), fillCursorName)
	require.NoError(t, err)
	assert.Equal(t, fillTime.Add(time.Minute).Format(time.RFC3339), cursor)
}

func TestReconcileFillsIsReplayIdempotent(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{}
	o := newTestOMS(mem, exchange)

	placed, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)

	exchange.fills = []kalshi.Fill{{
		TradeID:     "t1",
		OrderID:     *placed.Order.ExchangeOrderID,
		Ticker:      placed.Order.Ticker,
		Side:        "yes",
		Action:      "buy",
		Count:       9,
		YesPrice:    71,
		CreatedTime: time.Date(2026, 2, 10, 15, 5, 0, 0, time.UTC),
	}}

	_, err = o.ReconcileFills(context.Background())
	require.NoError(t, err)

	// The exchange re-serves the same fill; nothing double-applies.
	report, err := o.ReconcileFills(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Matched)
	assert.Len(t, mem.fills, 1)

	pos, err := mem.stores().Positions.GetByTickerSide(context.Background(), placed.Order.Ticker, domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, 9, pos.QuantityOpen)
}

func TestReconcileFillsCountsOrphans(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{
		fills: []kalshi.Fill{{
			TradeID:     "t-unknown",
			OrderID:     "ex-nobody",
			Ticker:      "HIGHCHI-10FEB26-B40",
			Side:        "yes",
			Action:      "buy",
			Count:       3,
			YesPrice:    50,
			CreatedTime: time.Date(2026, 2, 10, 15, 5, 0, 0, time.UTC),
		}},
	}
	o := newTestOMS(mem, exchange)

	report, err := o.ReconcileFills(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Orphaned)
	assert.Empty(t, mem.fills)
}

func TestStartupReconcileImportsOrphanOrder(t *testing.T) {
	mem := newMemStores()
	key := IntentKey("NYC", "HIGHNYC-10FEB26-B70", domain.SideYes, "daily_high_temp", "2026-02-10")
	exchange := &fakeExchange{
		openOrders: []kalshi.Order{{
			OrderID:        "ex-orphan",
			ClientOrderID:  ClientOrderID(key, 1),
			Ticker:         "HIGHNYC-10FEB26-B70",
			Side:           "yes",
			Status:         "resting",
			YesPrice:       71,
			Count:          9,
			RemainingCount: 9,
			CreatedTime:    time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC),
		}},
	}
	o := newTestOMS(mem, exchange)

	report, err := o.ReconcileStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.OrphansImported)

	// The orphan is imported as RESTING under a RECONCILE_IMPORT intent,
	// and no cancel is issued.
	order, err := mem.stores().Orders.GetByClientOrderID(context.Background(), ClientOrderID(key, 1))
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusResting, order.Status)
	assert.Equal(t, "NYC", order.CityCode)
	assert.Equal(t, "2026-02-10", order.EventDate)
	assert.Empty(t, exchange.canceled)

	intent, err := mem.stores().Intents.Get(context.Background(), order.IntentKey)
	require.NoError(t, err)
	assert.Equal(t, domain.IntentOriginReconcileImport, intent.Origin)
}

func TestStartupReconcileClosesStaleLocalOrders(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{}
	o := newTestOMS(mem, exchange)

	placed, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)
	require.True(t, placed.Order.Status.Active())

	// The exchange reports no open orders: the local one is stale.
	report, err := o.ReconcileStartup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.StaleClosed)

	order, err := mem.stores().Orders.GetByClientOrderID(context.Background(), placed.Order.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, order.Status)
}

func TestStartupReconcileFlagsPositionMismatch(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{
		positions: []kalshi.Position{{Ticker: "HIGHNYC-10FEB26-B70", Position: 9}},
	}
	o := newTestOMS(mem, exchange)

	_, err := o.ReconcileStartup(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrReconcileMismatch)
}
