package trader

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybotdev/skybot/internal/cities"
	"github.com/skybotdev/skybot/internal/config"
	"github.com/skybotdev/skybot/internal/domain"
	"github.com/skybotdev/skybot/internal/oms"
	"github.com/skybotdev/skybot/internal/risk"
	"github.com/skybotdev/skybot/internal/strategy"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type fakeWeather struct {
	snaps map[string]domain.WeatherSnapshot
	errs  map[string]error
}

func (f *fakeWeather) Get(_ context.Context, city domain.City) (domain.WeatherSnapshot, error) {
	if err := f.errs[city.Code]; err != nil {
		return domain.WeatherSnapshot{}, err
	}
	return f.snaps[city.Code], nil
}

type fakeMarkets struct {
	tickers map[string][]string
	quotes  map[string]domain.MarketSnapshot
}

func (f *fakeMarkets) ListActive(_ context.Context, cityCode, _ string) ([]string, error) {
	return f.tickers[cityCode], nil
}

func (f *fakeMarkets) Quote(_ context.Context, _, ticker string) (domain.MarketSnapshot, error) {
	return f.quotes[ticker], nil
}

type placedOrder struct {
	sig       domain.Signal
	quantity  int
	askCents  int
	simulated bool
}

type fakeOrders struct {
	mu     sync.Mutex
	placed []placedOrder
}

func (f *fakeOrders) ReconcileFills(context.Context) (oms.FillReport, error) {
	return oms.FillReport{}, nil
}

func (f *fakeOrders) Place(_ context.Context, sig domain.Signal, _ string, quantity int) (oms.PlaceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, placedOrder{sig: sig, quantity: quantity})
	return oms.PlaceResult{
		Placed: true,
		Order: domain.Order{
			Ticker:          sig.Ticker,
			CityCode:        sig.CityCode,
			Side:            sig.Side,
			Quantity:        quantity,
			LimitPriceCents: sig.MaxPriceCents,
			Status:          domain.OrderStatusResting,
		},
	}, nil
}

func (f *fakeOrders) PlaceSimulated(_ context.Context, sig domain.Signal, _ string, quantity, askCents int) (oms.PlaceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, placedOrder{sig: sig, quantity: quantity, askCents: askCents, simulated: true})
	return oms.PlaceResult{
		Placed: true,
		Order: domain.Order{
			Ticker:          sig.Ticker,
			CityCode:        sig.CityCode,
			Side:            sig.Side,
			Quantity:        quantity,
			FilledQuantity:  quantity,
			LimitPriceCents: sig.MaxPriceCents,
			Status:          domain.OrderStatusFilled,
		},
	}, nil
}

func (f *fakeOrders) Refresh(context.Context, domain.Order, domain.Signal, bool) error {
	return nil
}

func (f *fakeOrders) RefreshByIntent(context.Context, domain.Signal, string, bool) error {
	return nil
}

type memLoopStores struct {
	mu       sync.Mutex
	weather  []domain.WeatherSnapshot
	markets  []domain.MarketSnapshot
	signals  []domain.Signal
	events   []domain.RiskEvent
	health   map[domain.Component]domain.HealthStatus
	open     []domain.Position
	realized float64
	unreal   float64
}

func newMemLoopStores() *memLoopStores {
	return &memLoopStores{health: map[domain.Component]domain.HealthStatus{}}
}

func (m *memLoopStores) SaveSnapshot(_ context.Context, s domain.WeatherSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.weather = append(m.weather, s)
	return int64(len(m.weather)), nil
}

func (m *memLoopStores) LatestByCity(context.Context, string) (domain.WeatherSnapshot, error) {
	return domain.WeatherSnapshot{}, domain.ErrNotFound
}

func (m *memLoopStores) ListBefore(context.Context, time.Time) ([]domain.WeatherSnapshot, error) {
	return nil, nil
}

type memMarketStore memLoopStores

func (m *memMarketStore) SaveSnapshot(_ context.Context, s domain.MarketSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markets = append(m.markets, s)
	return int64(len(m.markets)), nil
}

func (m *memMarketStore) ListBefore(context.Context, time.Time) ([]domain.MarketSnapshot, error) {
	return nil, nil
}

type memSignalStore memLoopStores

func (m *memSignalStore) Save(_ context.Context, s domain.Signal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals = append(m.signals, s)
	return int64(len(m.signals)), nil
}

func (m *memSignalStore) ListBefore(context.Context, time.Time) ([]domain.Signal, error) {
	return nil, nil
}

type memPositionStore memLoopStores

func (m *memPositionStore) Create(context.Context, domain.Position) (int64, error) { return 0, nil }
func (m *memPositionStore) Update(context.Context, domain.Position) error          { return nil }
func (m *memPositionStore) GetByTickerSide(context.Context, string, domain.Side) (domain.Position, error) {
	return domain.Position{}, domain.ErrNotFound
}

func (m *memPositionStore) GetOpen(context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open, nil
}

func (m *memPositionStore) RealizedPnLSince(context.Context, time.Time) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.realized, nil
}

func (m *memPositionStore) UnrealizedPnL(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unreal, nil
}

type memEventStore memLoopStores

func (m *memEventStore) Insert(_ context.Context, ev domain.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

type memHealthStore memLoopStores

func (m *memHealthStore) Upsert(_ context.Context, st domain.HealthStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health[st.Component] = st
	return nil
}

func (m *memHealthStore) List(context.Context) ([]domain.HealthStatus, error) { return nil, nil }

func (m *memLoopStores) stores() Stores {
	return Stores{
		Weather:   m,
		Markets:   (*memMarketStore)(m),
		Signals:   (*memSignalStore)(m),
		Positions: (*memPositionStore)(m),
		Events:    (*memEventStore)(m),
		Health:    (*memHealthStore)(m),
	}
}

func (m *memLoopStores) eventTypes() []domain.RiskEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.RiskEventType, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Type)
	}
	return out
}

// ---------------------------------------------------------------------------
// fixtures
// ---------------------------------------------------------------------------

func intPtr(v int) *int { return &v }

func testLoopConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Mode = config.ModeShadow
	return &cfg
}

func goodWeather(code string) domain.WeatherSnapshot {
	return domain.WeatherSnapshot{
		CityCode:        code,
		CapturedAt:      time.Now().UTC(),
		ForecastHighF:   72.0,
		ForecastStdDevF: 3.0,
	}
}

func goodQuote(ticker, city string) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Ticker:       ticker,
		CityCode:     city,
		ThresholdF:   70.0,
		Direction:    domain.DirectionAbove,
		EventDate:    "2026-02-10",
		YesBid:       intPtr(45),
		YesAsk:       intPtr(48),
		NoBid:        intPtr(52),
		NoAsk:        intPtr(55),
		Volume:       1200,
		OpenInterest: 3000,
		CloseTime:    time.Now().UTC().Add(12 * time.Hour),
		CapturedAt:   time.Now().UTC(),
	}
}

func newTestLoop(t *testing.T, cfg *config.Config, w *fakeWeather, m *fakeMarkets, orders *fakeOrders, stores *memLoopStores, breaker *risk.Breaker) *Loop {
	t.Helper()
	registry, err := cities.Load()
	require.NoError(t, err)

	caps := risk.CapsFromConfig(cfg.Trading)
	engine := risk.NewEngine(caps, slog.Default())
	if breaker == nil {
		breaker = risk.NewBreaker(caps.DailyLossCap, cfg.Trading.MaxRejectsPerWindow, cfg.RejectWindow(), slog.Default())
	}

	return New(cfg, registry, w, m, strategy.NewDailyHighTemp(), engine, breaker, orders, stores.stores(), nil, slog.Default())
}

func weatherForAll(snap func(string) domain.WeatherSnapshot) *fakeWeather {
	w := &fakeWeather{snaps: map[string]domain.WeatherSnapshot{}, errs: map[string]error{}}
	for _, code := range cities.Codes {
		w.snaps[code] = snap(code)
	}
	return w
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestCycleHappyPathPlacesSimulatedOrder(t *testing.T) {
	cfg := testLoopConfig()
	w := weatherForAll(goodWeather)
	m := &fakeMarkets{
		tickers: map[string][]string{"NYC": {"HIGHNYC-10FEB26-B70"}},
		quotes:  map[string]domain.MarketSnapshot{"HIGHNYC-10FEB26-B70": goodQuote("HIGHNYC-10FEB26-B70", "NYC")},
	}
	orders := &fakeOrders{}
	stores := newMemLoopStores()

	loop := newTestLoop(t, cfg, w, m, orders, stores, nil)
	require.NoError(t, loop.runCycle(context.Background()))

	require.Len(t, orders.placed, 1)
	placed := orders.placed[0]
	assert.True(t, placed.simulated) // shadow mode fills at the ask
	assert.Equal(t, 48, placed.askCents)
	assert.Equal(t, domain.SideYes, placed.sig.Side)
	assert.Equal(t, 71, placed.sig.MaxPriceCents)
	assert.Positive(t, placed.quantity)

	// Snapshots and the signal row were persisted.
	assert.Len(t, stores.weather, 10) // every city fetched weather
	assert.Len(t, stores.markets, 1)
	require.Len(t, stores.signals, 1)
	assert.Equal(t, domain.ActionBuy, stores.signals[0].Action)
	assert.False(t, stores.signals[0].CreatedAt.IsZero())
}

func TestCycleStaleWeatherSkipsCity(t *testing.T) {
	cfg := testLoopConfig()
	w := weatherForAll(goodWeather)
	stale := goodWeather("NYC")
	stale.Stale = true
	w.snaps["NYC"] = stale

	m := &fakeMarkets{
		tickers: map[string][]string{"NYC": {"HIGHNYC-10FEB26-B70"}},
		quotes:  map[string]domain.MarketSnapshot{"HIGHNYC-10FEB26-B70": goodQuote("HIGHNYC-10FEB26-B70", "NYC")},
	}
	orders := &fakeOrders{}
	stores := newMemLoopStores()

	loop := newTestLoop(t, cfg, w, m, orders, stores, nil)
	require.NoError(t, loop.runCycle(context.Background()))

	// No order for the stale city, one STALE_WEATHER event, and a HOLD
	// signal row written for audit.
	assert.Empty(t, orders.placed)
	assert.Contains(t, stores.eventTypes(), domain.RiskEventStaleWeather)

	require.Len(t, stores.signals, 1)
	assert.Equal(t, domain.ActionHold, stores.signals[0].Action)
	assert.Contains(t, stores.signals[0].Reasons, domain.ReasonStaleWeather)
}

func TestCycleDailyLossTripBlocksAllCities(t *testing.T) {
	cfg := testLoopConfig()
	w := weatherForAll(goodWeather)
	m := &fakeMarkets{
		tickers: map[string][]string{"NYC": {"HIGHNYC-10FEB26-B70"}},
		quotes:  map[string]domain.MarketSnapshot{"HIGHNYC-10FEB26-B70": goodQuote("HIGHNYC-10FEB26-B70", "NYC")},
	}
	orders := &fakeOrders{}
	stores := newMemLoopStores()
	stores.realized = -40.00
	stores.unreal = -12.00 // total -52 breaches the 49.61 cap

	loop := newTestLoop(t, cfg, w, m, orders, stores, nil)
	require.NoError(t, loop.runCycle(context.Background()))

	assert.Empty(t, orders.placed)
	assert.Contains(t, stores.eventTypes(), domain.RiskEventDailyLossHit)
	// Weather snapshots are still persisted while tripped.
	assert.Len(t, stores.weather, 10)

	// The trip event is not re-emitted every cycle.
	require.NoError(t, loop.runCycle(context.Background()))
	count := 0
	for _, typ := range stores.eventTypes() {
		if typ == domain.RiskEventDailyLossHit {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCycleAccumulatorConstrainsLaterCandidates(t *testing.T) {
	cfg := testLoopConfig()
	w := weatherForAll(goodWeather)

	// Two NYC markets whose naive sizes together would breach the city
	// cap; the accumulator must shrink or refuse the second.
	tickers := []string{"HIGHNYC-10FEB26-B70", "HIGHNYC-10FEB26-B71"}
	quotes := map[string]domain.MarketSnapshot{}
	for _, tk := range tickers {
		quotes[tk] = goodQuote(tk, "NYC")
	}
	m := &fakeMarkets{tickers: map[string][]string{"NYC": tickers}, quotes: quotes}
	orders := &fakeOrders{}
	stores := newMemLoopStores()

	// Leave little city headroom so the second candidate cannot size fully.
	stores.open = []domain.Position{{
		Ticker:        "HIGHNYC-09FEB26-B70",
		CityCode:      "NYC",
		Cluster:       domain.ClusterNE,
		Side:          domain.SideYes,
		QuantityOpen:  50,
		AvgEntryCents: 48,
		Status:        domain.PositionStatusOpen,
	}} // $24 of $29.76 cap used

	loop := newTestLoop(t, cfg, w, m, orders, stores, nil)
	require.NoError(t, loop.runCycle(context.Background()))

	var totalDollars float64
	for _, p := range orders.placed {
		totalDollars += float64(p.quantity) * float64(p.sig.MaxPriceCents) / 100.0
	}
	assert.LessOrEqual(t, totalDollars, 29.763-24.0+1e-9)

	if len(orders.placed) < len(tickers) {
		// The refused candidate left a cap event behind.
		assert.Contains(t, stores.eventTypes(), domain.RiskEventCityCapHit)
	}
}
