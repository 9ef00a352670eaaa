package risk

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybotdev/skybot/internal/config"
	"github.com/skybotdev/skybot/internal/domain"
)

func testTradingConfig() config.TradingConfig {
	return config.TradingConfig{
		Bankroll:              992.10,
		MaxTradeRiskPct:       0.02,
		MaxCityExposurePct:    0.03,
		MaxClusterExposurePct: 0.05,
		MaxDailyLossPct:       0.05,
		MaxPositionSize:       200,
	}
}

func testEngine() *Engine {
	return NewEngine(CapsFromConfig(testTradingConfig()), slog.Default())
}

func TestCapsFromConfig(t *testing.T) {
	caps := CapsFromConfig(testTradingConfig())

	assert.InDelta(t, 19.842, caps.TradeCap, 1e-9)
	assert.InDelta(t, 29.763, caps.CityCap, 1e-9)
	assert.InDelta(t, 49.605, caps.ClusterCap, 1e-9)
	assert.InDelta(t, 49.605, caps.DailyLossCap, 1e-9)
}

func buySignal(city string, sizeHint, priceCents int) domain.Signal {
	return domain.Signal{
		CityCode:      city,
		Ticker:        "HIGH" + city + "-10FEB26-B70",
		StrategyName:  "daily_high_temp",
		Action:        domain.ActionBuy,
		Side:          domain.SideYes,
		MaxPriceCents: priceCents,
		SizeHint:      sizeHint,
	}
}

func TestSizeAppliesPerTradeCapFirst(t *testing.T) {
	e := testEngine()

	// 100 contracts at 50¢ is $50, over the $19.84 trade cap.
	qty, refusal := e.Size(buySignal("NYC", 100, 50), domain.ClusterNE, nil)

	require.Nil(t, refusal)
	assert.Equal(t, 39, qty) // floor(19.842 / 0.50)
}

func TestSizeReducesToCityHeadroom(t *testing.T) {
	e := testEngine()

	// Existing NYC exposure $25.00 against the $29.76 city cap leaves
	// $4.76 of headroom; a naive $10 trade must shrink to fit.
	open := []domain.OpenExposure{
		{CityCode: "NYC", Cluster: domain.ClusterNE, Dollars: 25.00},
	}
	qty, refusal := e.Size(buySignal("NYC", 20, 50), domain.ClusterNE, open)

	require.Nil(t, refusal)
	assert.Equal(t, 9, qty) // floor(4.763 / 0.50)
}

func TestSizeRefusesWhenCityCapLeavesNoRoom(t *testing.T) {
	e := testEngine()

	open := []domain.OpenExposure{
		{CityCode: "NYC", Cluster: domain.ClusterNE, Dollars: 29.50},
	}
	qty, refusal := e.Size(buySignal("NYC", 20, 50), domain.ClusterNE, open)

	assert.Zero(t, qty)
	require.NotNil(t, refusal)
	assert.Equal(t, domain.RiskEventCityCapHit, refusal.Cap)
	assert.InDelta(t, 29.50, refusal.Current, 1e-9)
	assert.InDelta(t, 29.763, refusal.Limit, 1e-9)
}

func TestSizeRefusesOnClusterCap(t *testing.T) {
	e := testEngine()

	// Other NE cities already hold the cluster near its $49.61 cap, while
	// NYC itself is clean.
	open := []domain.OpenExposure{
		{CityCode: "BOS", Cluster: domain.ClusterNE, Dollars: 25.00},
		{CityCode: "PHL", Cluster: domain.ClusterNE, Dollars: 24.40},
	}
	qty, refusal := e.Size(buySignal("NYC", 20, 50), domain.ClusterNE, open)

	assert.Zero(t, qty)
	require.NotNil(t, refusal)
	assert.Equal(t, domain.RiskEventClusterCapHit, refusal.Cap)
}

func TestSizeCountsInCycleAccumulator(t *testing.T) {
	e := testEngine()

	// Sequential candidates in the same cycle: the second sizing must see
	// the first placement, never an empty list.
	first, refusal := e.Size(buySignal("NYC", 20, 50), domain.ClusterNE, nil)
	require.Nil(t, refusal)

	accumulated := []domain.OpenExposure{
		{CityCode: "NYC", Cluster: domain.ClusterNE, Dollars: float64(first) * 0.50},
	}
	second, refusal := e.Size(buySignal("NYC", 40, 50), domain.ClusterNE, accumulated)

	require.Nil(t, refusal)
	assert.Less(t, second, 40)
	assert.LessOrEqual(t, float64(first+second)*0.50, e.Caps().CityCap)
}

func TestSizeRefusesEmptySignal(t *testing.T) {
	e := testEngine()

	qty, refusal := e.Size(domain.Signal{CityCode: "NYC"}, domain.ClusterNE, nil)

	assert.Zero(t, qty)
	require.NotNil(t, refusal)
	assert.Equal(t, domain.RiskEventTradeCapHit, refusal.Cap)
}
