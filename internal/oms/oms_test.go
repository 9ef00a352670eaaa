package oms

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybotdev/skybot/internal/domain"
)

func clusterOf(string) domain.Cluster { return domain.ClusterNE }

func newTestOMS(mem *memStores, exchange *fakeExchange) *OMS {
	o := New(exchange, mem.stores(), Config{
		RepriceInterval: 120 * time.Second,
		MaxChaseCents:   5,
	}, clusterOf, nil, slog.Default())
	base := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	o.SetClock(func() time.Time { return base })
	return o
}

func buySignal() domain.Signal {
	return domain.Signal{
		CityCode:      "NYC",
		Ticker:        "HIGHNYC-10FEB26-B70",
		StrategyName:  "daily_high_temp",
		Action:        domain.ActionBuy,
		Side:          domain.SideYes,
		MaxPriceCents: 71,
		SizeHint:      9,
	}
}

func TestPlaceSubmitsLimitOrder(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{}
	o := newTestOMS(mem, exchange)

	result, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)

	assert.True(t, result.Placed)
	assert.Equal(t, domain.OrderStatusResting, result.Order.Status)
	assert.Equal(t, 71, result.Order.LimitPriceCents)
	require.NotNil(t, result.Order.ExchangeOrderID)

	require.Len(t, exchange.placed, 1)
	req := exchange.placed[0]
	assert.Equal(t, "limit", req.Type)
	assert.Equal(t, "yes", req.Side)
	assert.Equal(t, "buy", req.Action)
	require.NotNil(t, req.YesPrice)
	assert.Equal(t, 71, *req.YesPrice)

	key := IntentKey("NYC", "HIGHNYC-10FEB26-B70", domain.SideYes, "daily_high_temp", "2026-02-10")
	assert.Equal(t, ClientOrderID(key, 1), req.ClientOrderID)
}

func TestPlaceIsIdempotentPerIntent(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{}
	o := newTestOMS(mem, exchange)

	first, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)
	require.True(t, first.Placed)

	// Same intent twice in one cycle yields exactly one order.
	second, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)

	assert.False(t, second.Placed)
	assert.Equal(t, first.Order.ClientOrderID, second.Order.ClientOrderID)
	assert.Len(t, exchange.placed, 1)
}

func TestPlaceRejectionMarksOrderRejected(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{placeErr: errors.New("insufficient balance")}
	o := newTestOMS(mem, exchange)

	result, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)

	require.Error(t, err)
	assert.True(t, result.Rejected)
	assert.Equal(t, domain.OrderStatusRejected, result.Order.Status)

	// The rejected order does not block a later attempt; the next version
	// increments.
	exchange.placeErr = nil
	retry, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)
	assert.True(t, retry.Placed)
	assert.Equal(t, 2, retry.Order.IntentVersion)
}

func TestPlaceSimulatedFillsAtAsk(t *testing.T) {
	mem := newMemStores()
	o := newTestOMS(mem, &fakeExchange{})

	result, err := o.PlaceSimulated(context.Background(), buySignal(), "2026-02-10", 9, 48)
	require.NoError(t, err)

	assert.True(t, result.Placed)
	assert.Equal(t, domain.OrderStatusFilled, result.Order.Status)
	assert.Equal(t, 9, result.Order.FilledQuantity)
	require.NotNil(t, result.Order.AvgFillCents)
	assert.InDelta(t, 48.0, *result.Order.AvgFillCents, 1e-9)

	require.Len(t, mem.fills, 1)
	assert.Equal(t, 48, mem.fills[0].PriceCents)

	pos, err := mem.stores().Positions.GetByTickerSide(context.Background(), "HIGHNYC-10FEB26-B70", domain.SideYes)
	require.NoError(t, err)
	assert.Equal(t, 9, pos.QuantityOpen)
	assert.InDelta(t, 48.0, pos.AvgEntryCents, 1e-9)
	assert.Equal(t, domain.ClusterNE, pos.Cluster)
}

func TestRefreshCancelsWhenGatesFail(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{}
	o := newTestOMS(mem, exchange)

	placed, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)

	require.NoError(t, o.Refresh(context.Background(), placed.Order, buySignal(), false))

	assert.Len(t, exchange.canceled, 1)
	updated, err := mem.stores().Orders.GetByClientOrderID(context.Background(), placed.Order.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, updated.Status)
}

func TestRefreshByIntentCancelsRestingOrderOnGateFailure(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{}
	o := newTestOMS(mem, exchange)

	placed, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)

	require.NoError(t, o.RefreshByIntent(context.Background(), buySignal(), "2026-02-10", false))
	assert.Len(t, exchange.canceled, 1)

	// With no active order left, the call is a no-op.
	require.NoError(t, o.RefreshByIntent(context.Background(), buySignal(), "2026-02-10", false))
	assert.Len(t, exchange.canceled, 1)

	order, err := mem.stores().Orders.GetByClientOrderID(context.Background(), placed.Order.ClientOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, order.Status)
}

func TestRefreshRepricesWithinChaseBudget(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{}
	o := newTestOMS(mem, exchange)

	base := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	now := base
	o.SetClock(func() time.Time { return now })

	placed, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)

	moved := buySignal()
	moved.MaxPriceCents = 73 // 2 cents from the original, within the budget

	// Inside the reprice interval nothing happens.
	require.NoError(t, o.Refresh(context.Background(), placed.Order, moved, true))
	assert.Empty(t, exchange.canceled)

	// After the interval the order is canceled and replaced at version 2.
	now = base.Add(3 * time.Minute)
	current, err := mem.stores().Orders.ActiveByIntentKey(context.Background(), placed.Order.IntentKey)
	require.NoError(t, err)
	require.NoError(t, o.Refresh(context.Background(), current, moved, true))

	assert.Len(t, exchange.canceled, 1)
	replacement, err := mem.stores().Orders.ActiveByIntentKey(context.Background(), placed.Order.IntentKey)
	require.NoError(t, err)
	assert.Equal(t, 2, replacement.IntentVersion)
	assert.Equal(t, 73, replacement.LimitPriceCents)
}

func TestRefreshHonorsChaseBudget(t *testing.T) {
	mem := newMemStores()
	exchange := &fakeExchange{}
	o := newTestOMS(mem, exchange)

	base := time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
	now := base
	o.SetClock(func() time.Time { return now })

	placed, err := o.Place(context.Background(), buySignal(), "2026-02-10", 9)
	require.NoError(t, err)

	runaway := buySignal()
	runaway.MaxPriceCents = 80 // 9 cents from the original, over max_chase 5

	now = base.Add(3 * time.Minute)
	require.NoError(t, o.Refresh(context.Background(), placed.Order, runaway, true))

	assert.Empty(t, exchange.canceled)
	current, err := mem.stores().Orders.ActiveByIntentKey(context.Background(), placed.Order.IntentKey)
	require.NoError(t, err)
	assert.Equal(t, 1, current.IntentVersion)
}
