package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionMatrix(t *testing.T) {
	all := []OrderStatus{
		OrderStatusNew, OrderStatusSubmitted, OrderStatusResting,
		OrderStatusPartial, OrderStatusFilled, OrderStatusCanceled,
		OrderStatusRejected, OrderStatusClosed,
	}

	valid := map[OrderStatus][]OrderStatus{
		OrderStatusNew:       {OrderStatusSubmitted, OrderStatusRejected},
		OrderStatusSubmitted: {OrderStatusResting, OrderStatusPartial, OrderStatusFilled, OrderStatusRejected, OrderStatusCanceled},
		OrderStatusResting:   {OrderStatusPartial, OrderStatusFilled, OrderStatusCanceled},
		OrderStatusPartial:   {OrderStatusFilled, OrderStatusCanceled},
		OrderStatusFilled:    {OrderStatusClosed},
	}

	for _, from := range all {
		allowed := map[OrderStatus]bool{}
		for _, to := range valid[from] {
			allowed[to] = true
		}
		for _, to := range all {
			assert.Equal(t, allowed[to], CanTransition(from, to),
				"%s -> %s", from, to)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, OrderStatusCanceled.Terminal())
	assert.True(t, OrderStatusRejected.Terminal())
	assert.True(t, OrderStatusClosed.Terminal())

	assert.False(t, OrderStatusNew.Terminal())
	assert.False(t, OrderStatusFilled.Terminal()) // FILLED may still close
}

func TestActiveStates(t *testing.T) {
	assert.True(t, OrderStatusNew.Active())
	assert.True(t, OrderStatusSubmitted.Active())
	assert.True(t, OrderStatusResting.Active())
	assert.True(t, OrderStatusPartial.Active())

	assert.False(t, OrderStatusFilled.Active())
	assert.False(t, OrderStatusCanceled.Active())
	assert.False(t, OrderStatusRejected.Active())
	assert.False(t, OrderStatusClosed.Active())
}

func TestOrderRiskDollars(t *testing.T) {
	o := Order{Quantity: 9, LimitPriceCents: 71}
	assert.InDelta(t, 6.39, o.RiskDollars(), 1e-9)
}
