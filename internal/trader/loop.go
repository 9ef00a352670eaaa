// Package trader contains the trading-loop orchestrator: it schedules
// cycles, fans city work out to a bounded worker pool, and threads every
// candidate through strategy, gates, risk sizing, and the OMS.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/skybotdev/skybot/internal/cities"
	"github.com/skybotdev/skybot/internal/config"
	"github.com/skybotdev/skybot/internal/domain"
	"github.com/skybotdev/skybot/internal/gates"
	"github.com/skybotdev/skybot/internal/oms"
	"github.com/skybotdev/skybot/internal/risk"
	"github.com/skybotdev/skybot/internal/strategy"
)

// WeatherProvider is the weather surface the loop consumes.
type WeatherProvider interface {
	Get(ctx context.Context, city domain.City) (domain.WeatherSnapshot, error)
}

// MarketProvider is the market-data surface the loop consumes.
type MarketProvider interface {
	ListActive(ctx context.Context, cityCode, eventDate string) ([]string, error)
	Quote(ctx context.Context, cityCode, ticker string) (domain.MarketSnapshot, error)
}

// OrderManager is the OMS surface the loop consumes.
type OrderManager interface {
	ReconcileFills(ctx context.Context) (oms.FillReport, error)
	Place(ctx context.Context, sig domain.Signal, eventDate string, quantity int) (oms.PlaceResult, error)
	PlaceSimulated(ctx context.Context, sig domain.Signal, eventDate string, quantity, askCents int) (oms.PlaceResult, error)
	Refresh(ctx context.Context, order domain.Order, sig domain.Signal, gatesPass bool) error
	RefreshByIntent(ctx context.Context, sig domain.Signal, eventDate string, gatesPass bool) error
}

// Alerter is the operator-notification surface the loop consumes.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Stores bundles the persistence the loop writes through.
type Stores struct {
	Weather   domain.WeatherStore
	Markets   domain.MarketStore
	Signals   domain.SignalStore
	Positions domain.PositionStore
	Events    domain.RiskEventStore
	Health    domain.HealthStore
}

// Loop runs the trading cycle.
type Loop struct {
	cfg      *config.Config
	registry *cities.Registry
	weather  WeatherProvider
	markets  MarketProvider
	strat    strategy.Strategy
	params   strategy.Params
	engine   *risk.Engine
	breaker  *risk.Breaker
	orders   OrderManager
	stores   Stores
	alerts   Alerter
	logger   *slog.Logger

	now func() time.Time

	authPaused   bool
	lossAlerted  bool
	burstAlerted bool
}

// New creates a trading Loop. alerts may be nil.
func New(
	cfg *config.Config,
	registry *cities.Registry,
	weather WeatherProvider,
	markets MarketProvider,
	strat strategy.Strategy,
	engine *risk.Engine,
	breaker *risk.Breaker,
	orders OrderManager,
	stores Stores,
	alerts Alerter,
	logger *slog.Logger,
) *Loop {
	return &Loop{
		cfg:      cfg,
		registry: registry,
		weather:  weather,
		markets:  markets,
		strat:    strat,
		params: strategy.Params{
			MinEdgeAfterCosts: cfg.Gates.MinEdgeAfterCosts,
			MaxUncertainty:    cfg.Trading.MaxUncertainty,
			Bankroll:          cfg.Trading.Bankroll,
			MaxTradeRiskPct:   cfg.Trading.MaxTradeRiskPct,
			MaxPositionSize:   cfg.Trading.MaxPositionSize,
		},
		engine:  engine,
		breaker: breaker,
		orders:  orders,
		stores:  stores,
		alerts:  alerts,
		logger:  logger.With(slog.String("component", "trading_loop")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run executes cycles at the configured interval until the context is
// cancelled. A cycle that errors degrades health, sleeps the error
// interval, and continues.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("trading loop started",
		slog.String("mode", l.cfg.Mode),
		slog.String("strategy", l.strat.Name()),
	)
	defer l.logger.Info("trading loop stopped")

	ticker := time.NewTicker(l.cfg.CycleInterval())
	defer ticker.Stop()

	for {
		if err := l.runCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrFatalInternal) {
				return err
			}
			l.logger.Error("cycle failed", slog.String("error", err.Error()))
			l.setHealth(ctx, domain.ComponentTrader, domain.HealthDegraded, err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.cfg.ErrorSleep()):
			}
			continue
		}

		l.setHealth(ctx, domain.ComponentTrader, domain.HealthOK, "")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle executes one full trading cycle within the cycle budget.
func (l *Loop) runCycle(ctx context.Context) error {
	cycleCtx, cancel := context.WithTimeout(ctx, l.cfg.CycleBudget())
	defer cancel()

	// 1. Replay exchange fills before anything else.
	if l.cfg.Mode != config.ModeShadow {
		report, err := l.orders.ReconcileFills(cycleCtx)
		if err != nil {
			if errors.Is(err, domain.ErrAuth) {
				l.pauseForAuth(cycleCtx, err)
				return nil
			}
			l.setHealth(cycleCtx, domain.ComponentExchangeAPI, domain.HealthDegraded, err.Error())
			return fmt.Errorf("reconcile fills: %w", err)
		}
		l.authPaused = false
		l.setHealth(cycleCtx, domain.ComponentExchangeAPI, domain.HealthOK, "")
		if report.Matched > 0 || report.Orphaned > 0 {
			l.logger.Info("fills reconciled",
				slog.Int("matched", report.Matched),
				slog.Int("orphaned", report.Orphaned),
			)
		}
	}

	// 2. Circuit breakers.
	tradingAllowed := l.checkBreakers(cycleCtx)
	if l.authPaused {
		tradingAllowed = false
	}

	// 3. Fan out city work to the bounded pool.
	openPositions, err := l.stores.Positions.GetOpen(cycleCtx)
	if err != nil {
		return fmt.Errorf("%w: load open positions: %v", domain.ErrFatalInternal, err)
	}
	baseExposure := make([]domain.OpenExposure, 0, len(openPositions))
	for _, p := range openPositions {
		baseExposure = append(baseExposure, domain.OpenExposure{
			CityCode: p.CityCode,
			Cluster:  p.Cluster,
			Dollars:  p.ExposureDollars(),
		})
	}
	accum := newExposureAccumulator()

	g, gctx := errgroup.WithContext(cycleCtx)
	g.SetLimit(l.cfg.Loop.CityConcurrency)
	for _, city := range l.registry.All() {
		city := city
		g.Go(func() error {
			l.cityCycle(gctx, city, tradingAllowed, baseExposure, accum)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return cycleCtx.Err()
}

// checkBreakers evaluates the daily-loss and rejection-burst breakers,
// persisting a risk event and alerting on a fresh trip. It returns whether
// the trading stage may run.
func (l *Loop) checkBreakers(ctx context.Context) bool {
	since := l.startOfDay()
	realized, err := l.stores.Positions.RealizedPnLSince(ctx, since)
	if err != nil {
		l.logger.Error("realized pnl query failed", slog.String("error", err.Error()))
		return false
	}
	unrealized, err := l.stores.Positions.UnrealizedPnL(ctx)
	if err != nil {
		l.logger.Error("unrealized pnl query failed", slog.String("error", err.Error()))
		return false
	}

	if !l.breaker.CheckDailyLoss(realized, unrealized) {
		if !l.lossAlerted {
			l.lossAlerted = true
			l.recordEvent(ctx, domain.RiskEvent{
				Type:     domain.RiskEventDailyLossHit,
				Severity: domain.RiskSeverityCritical,
				Payload: map[string]any{
					"realized_pnl":   realized,
					"unrealized_pnl": unrealized,
					"cap":            l.engine.Caps().DailyLossCap,
				},
			})
			l.alert(ctx, "daily_loss_trip", "Daily loss limit hit", l.breaker.Reason())
		}
		return false
	}
	l.lossAlerted = false

	if l.breaker.RejectionBurst() {
		if !l.burstAlerted {
			l.burstAlerted = true
			l.recordEvent(ctx, domain.RiskEvent{
				Type:     domain.RiskEventRejectBurst,
				Severity: domain.RiskSeverityCritical,
				Payload:  map[string]any{"window_minutes": l.cfg.Trading.RejectWindowMinutes},
			})
			l.alert(ctx, "reject_burst_trip", "Order reject burst", "order submissions paused")
		}
		return false
	}
	l.burstAlerted = false

	return true
}

// cityCycle runs fetch → evaluate → gate → risk → place for one city.
// Failures skip the city; they never abort the cycle.
func (l *Loop) cityCycle(ctx context.Context, city domain.City, tradingAllowed bool, base []domain.OpenExposure, accum *exposureAccumulator) {
	log := l.logger.With(slog.String("city", city.Code))

	snap, err := l.fetchWeather(ctx, city)
	if err != nil {
		log.Warn("weather unavailable, city skipped", slog.String("error", err.Error()))
		l.setHealth(ctx, domain.ComponentWeatherAPI, domain.HealthDegraded, err.Error())
		return
	}
	l.setHealth(ctx, domain.ComponentWeatherAPI, domain.HealthOK, "")

	snapID, err := l.stores.Weather.SaveSnapshot(ctx, snap)
	if err != nil {
		log.Error("weather snapshot persist failed", slog.String("error", err.Error()))
	} else {
		snap.ID = snapID
	}

	if snap.Stale {
		l.recordEvent(ctx, domain.RiskEvent{
			Type:     domain.RiskEventStaleWeather,
			Severity: domain.RiskSeverityWarning,
			Payload:  map[string]any{"city_code": city.Code, "captured_at": snap.CapturedAt.Format(time.RFC3339)},
		})
		l.persistSignal(ctx, domain.Signal{
			CityCode:     city.Code,
			StrategyName: l.strat.Name(),
			Action:       domain.ActionHold,
			Reasons:      []domain.ReasonCode{domain.ReasonStaleWeather},
		})
		log.Warn("stale weather, trading skipped for city")
		return
	}

	if !tradingAllowed {
		return
	}

	eventDate := l.localEventDate(city)

	tickers, err := l.listMarkets(ctx, city, eventDate)
	if err != nil {
		log.Warn("market listing failed, city skipped", slog.String("error", err.Error()))
		l.setHealth(ctx, domain.ComponentExchangeAPI, domain.HealthDegraded, err.Error())
		return
	}

	for _, ticker := range tickers {
		select {
		case <-ctx.Done():
			return
		default:
		}
		l.evaluateMarket(ctx, city, eventDate, ticker, snap, base, accum, log)
	}
}

// evaluateMarket runs one market through strategy, gates, risk, and the OMS.
func (l *Loop) evaluateMarket(
	ctx context.Context,
	city domain.City,
	eventDate, ticker string,
	weather domain.WeatherSnapshot,
	base []domain.OpenExposure,
	accum *exposureAccumulator,
	log *slog.Logger,
) {
	quote, err := l.fetchQuote(ctx, city.Code, ticker)
	if err != nil {
		log.Warn("quote failed", slog.String("ticker", ticker), slog.String("error", err.Error()))
		return
	}
	if id, err := l.stores.Markets.SaveSnapshot(ctx, quote); err != nil {
		log.Error("market snapshot persist failed", slog.String("error", err.Error()))
	} else {
		quote.ID = id
	}

	if !quote.Eligible() {
		log.Debug("market ineligible, missing book side", slog.String("ticker", ticker))
		return
	}

	sig := l.strat.Evaluate(strategy.Inputs{Weather: weather, Market: quote}, l.params)
	l.persistSignal(ctx, sig)

	if sig.Action != domain.ActionBuy {
		return
	}

	gateResult := gates.Check(sig, quote, l.cfg.Gates)
	if !gateResult.Admitted {
		log.Info("gates refused candidate",
			slog.String("ticker", ticker),
			slog.String("reason", string(gateResult.Reason)),
		)
		// An order resting from an earlier cycle is pulled when the market
		// quality degrades below the gates.
		if err := l.orders.RefreshByIntent(ctx, sig, eventDate, false); err != nil {
			log.Warn("gate-failure cancel failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	// Sizing sees base positions plus everything admitted this cycle.
	open := append(append([]domain.OpenExposure{}, base...), accum.Snapshot()...)
	qty, refusal := l.engine.Size(sig, city.Cluster, open)
	if refusal != nil {
		ev := refusal.Event(l.now(), map[string]any{
			"city_code": city.Code,
			"ticker":    ticker,
		})
		l.recordEvent(ctx, ev)
		return
	}

	result, err := l.placeOrder(ctx, sig, eventDate, qty, quote)
	if err != nil {
		if errors.Is(err, domain.ErrAuth) {
			l.pauseForAuth(ctx, err)
			return
		}
		if result.Rejected {
			l.breaker.RecordRejection()
		}
		log.Error("order placement failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		return
	}

	if !result.Placed {
		// An active order already exists for this intent; apply the
		// cancel/replace policy instead of stacking a second order.
		if err := l.orders.Refresh(ctx, result.Order, sig, true); err != nil {
			log.Warn("order refresh failed",
				slog.String("client_order_id", result.Order.ClientOrderID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	if result.Order.Status.Active() || result.Order.Status == domain.OrderStatusFilled {
		accum.Add(domain.OpenExposure{
			CityCode: city.Code,
			Cluster:  city.Cluster,
			Dollars:  result.Order.RiskDollars(),
		})
	}
}

// placeOrder routes placement by mode: shadow simulates a fill at the ask.
func (l *Loop) placeOrder(ctx context.Context, sig domain.Signal, eventDate string, qty int, quote domain.MarketSnapshot) (oms.PlaceResult, error) {
	if l.cfg.Mode == config.ModeShadow {
		ask, ok := quote.AskFor(sig.Side)
		if !ok {
			return oms.PlaceResult{}, fmt.Errorf("%w: no ask for %s side", domain.ErrDataValidation, sig.Side)
		}
		return l.orders.PlaceSimulated(ctx, sig, eventDate, qty, ask)
	}
	return l.orders.Place(ctx, sig, eventDate, qty)
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// fetchWeather applies the per-call timeout to the weather provider.
func (l *Loop) fetchWeather(ctx context.Context, city domain.City) (domain.WeatherSnapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout())
	defer cancel()
	return l.weather.Get(callCtx, city)
}

// listMarkets applies the per-call timeout to market listing.
func (l *Loop) listMarkets(ctx context.Context, city domain.City, eventDate string) ([]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout())
	defer cancel()
	return l.markets.ListActive(callCtx, city.Code, eventDate)
}

// fetchQuote applies the per-call timeout to a quote fetch.
func (l *Loop) fetchQuote(ctx context.Context, cityCode, ticker string) (domain.MarketSnapshot, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout())
	defer cancel()
	return l.markets.Quote(callCtx, cityCode, ticker)
}

// localEventDate returns today's date in the city's timezone, which is the
// settlement date of the contracts being traded.
func (l *Loop) localEventDate(city domain.City) string {
	loc, err := time.LoadLocation(city.Timezone)
	if err != nil {
		return l.now().Format("2006-01-02")
	}
	return l.now().In(loc).Format("2006-01-02")
}

// startOfDay returns midnight UTC of the current day.
func (l *Loop) startOfDay() time.Time {
	now := l.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// persistSignal stamps and saves a signal row.
func (l *Loop) persistSignal(ctx context.Context, sig domain.Signal) {
	sig.CreatedAt = l.now()
	if _, err := l.stores.Signals.Save(ctx, sig); err != nil {
		l.logger.Error("signal persist failed",
			slog.String("ticker", sig.Ticker),
			slog.String("error", err.Error()),
		)
	}
}

// recordEvent stamps and saves a risk event.
func (l *Loop) recordEvent(ctx context.Context, ev domain.RiskEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = l.now()
	}
	if err := l.stores.Events.Insert(ctx, ev); err != nil {
		l.logger.Error("risk event persist failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// pauseForAuth marks the exchange DOWN and stops the order path until a
// later reconcile succeeds.
func (l *Loop) pauseForAuth(ctx context.Context, err error) {
	if !l.authPaused {
		l.alert(ctx, "component_down", "Exchange authentication failed", err.Error())
	}
	l.authPaused = true
	l.setHealth(ctx, domain.ComponentExchangeAPI, domain.HealthDown, err.Error())
	l.logger.Error("exchange auth failed, order path paused", slog.String("error", err.Error()))
}

// setHealth upserts a component health row.
func (l *Loop) setHealth(ctx context.Context, component domain.Component, state domain.HealthState, message string) {
	now := l.now()
	status := domain.HealthStatus{
		Component: component,
		Status:    state,
		Message:   message,
		UpdatedAt: now,
	}
	if state == domain.HealthOK {
		status.LastOK = &now
	}
	if err := l.stores.Health.Upsert(ctx, status); err != nil {
		l.logger.Warn("health persist failed",
			slog.String("component", string(component)),
			slog.String("error", err.Error()),
		)
	}
}

// alert best-effort notifies the operator.
func (l *Loop) alert(ctx context.Context, event, title, message string) {
	if l.alerts == nil {
		return
	}
	if err := l.alerts.Notify(ctx, event, title, message); err != nil {
		l.logger.Warn("alert failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
