// Package market provides access to candidate contracts and orderbook
// quotes for daily-high temperature markets.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/skybotdev/skybot/internal/domain"
	"github.com/skybotdev/skybot/internal/platform/kalshi"
)

// seriesPrefix is the exchange series naming scheme for daily-high
// temperature contracts: HIGH + city code, e.g. HIGHNYC.
const seriesPrefix = "HIGH"

// ExchangeAPI is the market-data surface of the exchange client.
type ExchangeAPI interface {
	GetMarkets(ctx context.Context, seriesTicker, status, cursor string) ([]kalshi.Market, string, error)
	GetMarket(ctx context.Context, ticker string) (kalshi.Market, error)
}

// Provider lists candidate contracts and fetches quotes, with a short-TTL
// quote cache in front of the REST client.
type Provider struct {
	client   ExchangeAPI
	quotes   domain.QuoteCache
	quoteTTL time.Duration
	logger   *slog.Logger
}

// NewProvider creates a market Provider. quotes may be nil to disable
// caching (shadow backtests, tests).
func NewProvider(client ExchangeAPI, quotes domain.QuoteCache, quoteTTL time.Duration, logger *slog.Logger) *Provider {
	return &Provider{
		client:   client,
		quotes:   quotes,
		quoteTTL: quoteTTL,
		logger:   logger.With(slog.String("component", "market_provider")),
	}
}

// SeriesTicker returns the exchange series for a city's daily-high markets.
func SeriesTicker(cityCode string) string {
	return seriesPrefix + cityCode
}

// dateSegment converts an ISO event date to the exchange's ticker date
// segment, e.g. "2026-02-10" -> "10FEB26".
func dateSegment(eventDate string) (string, error) {
	t, err := time.Parse("2006-01-02", eventDate)
	if err != nil {
		return "", fmt.Errorf("market: parse event date %q: %w", eventDate, err)
	}
	return strings.ToUpper(t.Format("02Jan06")), nil
}

// ListActive returns the tickers of contracts for the city that settle on
// eventDate and whose close time is still in the future.
func (p *Provider) ListActive(ctx context.Context, cityCode, eventDate string) ([]string, error) {
	segment, err := dateSegment(eventDate)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	series := SeriesTicker(cityCode)

	var tickers []string
	cursor := ""
	for {
		markets, next, err := p.client.GetMarkets(ctx, series, "open", cursor)
		if err != nil {
			return nil, fmt.Errorf("market: list active %s: %w", series, err)
		}
		for _, m := range markets {
			if !strings.Contains(m.Ticker, "-"+segment) {
				continue
			}
			if !m.CloseTime.After(now) {
				continue
			}
			tickers = append(tickers, m.Ticker)
		}
		if next == "" || len(markets) == 0 {
			break
		}
		cursor = next
	}

	return tickers, nil
}

// Quote returns a market snapshot for the ticker, served from the quote
// cache when fresh. Missing book sides leave the corresponding prices nil
// and the snapshot ineligible.
func (p *Provider) Quote(ctx context.Context, cityCode, ticker string) (domain.MarketSnapshot, error) {
	if p.quotes != nil {
		snap, ok, err := p.quotes.Get(ctx, ticker)
		if err != nil {
			p.logger.WarnContext(ctx, "quote cache read failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return snap, nil
		}
	}

	m, err := p.client.GetMarket(ctx, ticker)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market: quote %s: %w", ticker, err)
	}

	snap, err := snapshotFromMarket(m, cityCode)
	if err != nil {
		return domain.MarketSnapshot{}, err
	}

	if p.quotes != nil {
		if err := p.quotes.Set(ctx, snap, p.quoteTTL); err != nil {
			p.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
		}
	}

	return snap, nil
}

// snapshotFromMarket converts an exchange market row into a snapshot.
func snapshotFromMarket(m kalshi.Market, cityCode string) (domain.MarketSnapshot, error) {
	snap := domain.MarketSnapshot{
		Ticker:       m.Ticker,
		CityCode:     cityCode,
		YesBid:       m.YesBid,
		YesAsk:       m.YesAsk,
		NoBid:        m.NoBid,
		NoAsk:        m.NoAsk,
		Volume:       m.Volume,
		OpenInterest: m.OpenInterest,
		CloseTime:    m.CloseTime,
		CapturedAt:   time.Now().UTC(),
	}

	switch m.StrikeType {
	case "greater":
		if m.FloorStrike == nil {
			return domain.MarketSnapshot{}, fmt.Errorf("%w: market %s has no floor strike", domain.ErrDataValidation, m.Ticker)
		}
		snap.Direction = domain.DirectionAbove
		snap.ThresholdF = *m.FloorStrike
	case "less":
		if m.CapStrike == nil {
			return domain.MarketSnapshot{}, fmt.Errorf("%w: market %s has no cap strike", domain.ErrDataValidation, m.Ticker)
		}
		snap.Direction = domain.DirectionBelow
		snap.ThresholdF = *m.CapStrike
	default:
		return domain.MarketSnapshot{}, fmt.Errorf("%w: market %s has unsupported strike type %q", domain.ErrDataValidation, m.Ticker, m.StrikeType)
	}

	if date, ok := eventDateFromTicker(m.Ticker); ok {
		snap.EventDate = date
	}

	return snap, nil
}

// eventDateFromTicker extracts the settlement date from a ticker like
// HIGHNYC-10FEB26-B72, returning it in ISO form.
func eventDateFromTicker(ticker string) (string, bool) {
	parts := strings.Split(ticker, "-")
	if len(parts) < 2 {
		return "", false
	}
	t, err := time.Parse("02Jan06", parts[1])
	if err != nil {
		return "", false
	}
	return t.Format("2006-01-02"), true
}
