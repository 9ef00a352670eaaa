package oms

import (
	"context"
	"sync"
	"time"

	"github.com/skybotdev/skybot/internal/domain"
	"github.com/skybotdev/skybot/internal/platform/kalshi"
)

// memStores is an in-memory implementation of the OMS persistence surface.
type memStores struct {
	mu        sync.Mutex
	intents   map[string]domain.Intent
	orders    map[int64]domain.Order
	fills     []domain.Fill
	positions map[string]domain.Position // ticker|side
	cursors   map[string]string
	events    []domain.RiskEvent
	nextID    int64
}

func newMemStores() *memStores {
	return &memStores{
		intents:   map[string]domain.Intent{},
		orders:    map[int64]domain.Order{},
		positions: map[string]domain.Position{},
		cursors:   map[string]string{},
	}
}

func (m *memStores) stores() Stores {
	return Stores{
		Intents:   (*memIntents)(m),
		Orders:    (*memOrders)(m),
		Fills:     (*memFills)(m),
		Positions: (*memPositions)(m),
		Cursors:   (*memCursors)(m),
		Events:    (*memEvents)(m),
	}
}

type memIntents memStores

func (m *memIntents) Upsert(_ context.Context, intent domain.Intent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[intent.Key] = intent
	return nil
}

func (m *memIntents) Get(_ context.Context, key string) (domain.Intent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	intent, ok := m.intents[key]
	if !ok {
		return domain.Intent{}, domain.ErrNotFound
	}
	return intent, nil
}

type memOrders memStores

func (m *memOrders) Create(_ context.Context, o domain.Order) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	m.orders[o.ID] = o
	return o.ID, nil
}

func (m *memOrders) Update(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; !ok {
		return domain.ErrNotFound
	}
	m.orders[o.ID] = o
	return nil
}

func (m *memOrders) GetByClientOrderID(_ context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ClientOrderID == id {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (m *memOrders) GetByExchangeOrderID(_ context.Context, id string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ExchangeOrderID != nil && *o.ExchangeOrderID == id {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (m *memOrders) ActiveByIntentKey(_ context.Context, key string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	best := domain.Order{}
	found := false
	for _, o := range m.orders {
		if o.IntentKey == key && o.Status.Active() && (!found || o.IntentVersion > best.IntentVersion) {
			best = o
			found = true
		}
	}
	if !found {
		return domain.Order{}, domain.ErrNotFound
	}
	return best, nil
}

func (m *memOrders) LatestVersion(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, o := range m.orders {
		if o.IntentKey == key && o.IntentVersion > max {
			max = o.IntentVersion
		}
	}
	if max == 0 {
		return 0, domain.ErrNotFound
	}
	return max, nil
}

func (m *memOrders) ListActive(_ context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.Status.Active() {
			out = append(out, o)
		}
	}
	return out, nil
}

type memFills memStores

func (m *memFills) Insert(_ context.Context, f domain.Fill) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills = append(m.fills, f)
	return nil
}

func (m *memFills) ExistsByTradeID(_ context.Context, tradeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.fills {
		if f.ExchangeTradeID == tradeID {
			return true, nil
		}
	}
	return false, nil
}

type memPositions memStores

func posKey(ticker string, side domain.Side) string { return ticker + "|" + string(side) }

func (m *memPositions) Create(_ context.Context, p domain.Position) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.positions[posKey(p.Ticker, p.Side)] = p
	return p.ID, nil
}

func (m *memPositions) Update(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[posKey(p.Ticker, p.Side)] = p
	return nil
}

func (m *memPositions) GetByTickerSide(_ context.Context, ticker string, side domain.Side) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[posKey(ticker, side)]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositions) GetOpen(_ context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.positions {
		if p.Status == domain.PositionStatusOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPositions) RealizedPnLSince(context.Context, time.Time) (float64, error) { return 0, nil }
func (m *memPositions) UnrealizedPnL(context.Context) (float64, error)               { return 0, nil }

type memCursors memStores

func (m *memCursors) Get(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cursors[name]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (m *memCursors) Set(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[name] = value
	return nil
}

type memEvents memStores

func (m *memEvents) Insert(_ context.Context, ev domain.RiskEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// fakeExchange is a scriptable ExchangeGateway.
type fakeExchange struct {
	mu          sync.Mutex
	placed      []kalshi.OrderRequest
	canceled    []string
	placeErr    error
	ackStatus   string
	openOrders  []kalshi.Order
	positions   []kalshi.Position
	fills       []kalshi.Fill
	nextOrderID int
}

func (f *fakeExchange) PlaceOrder(_ context.Context, req kalshi.OrderRequest) (kalshi.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return kalshi.Order{}, f.placeErr
	}
	f.placed = append(f.placed, req)
	f.nextOrderID++
	status := f.ackStatus
	if status == "" {
		status = "resting"
	}
	return kalshi.Order{
		OrderID:       "ex-" + req.ClientOrderID,
		ClientOrderID: req.ClientOrderID,
		Ticker:        req.Ticker,
		Status:        status,
	}, nil
}

func (f *fakeExchange) CancelOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, orderID)
	return nil
}

func (f *fakeExchange) ListOpenOrders(context.Context) ([]kalshi.Order, error) {
	return f.openOrders, nil
}

func (f *fakeExchange) ListPositions(context.Context) ([]kalshi.Position, error) {
	return f.positions, nil
}

func (f *fakeExchange) ListFills(context.Context, time.Time) ([]kalshi.Fill, error) {
	return f.fills, nil
}
