package market

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybotdev/skybot/internal/domain"
	"github.com/skybotdev/skybot/internal/platform/kalshi"
)

type fakeExchange struct {
	markets []kalshi.Market
}

func (f *fakeExchange) GetMarkets(_ context.Context, _, _, cursor string) ([]kalshi.Market, string, error) {
	if cursor != "" {
		return nil, "", nil
	}
	return f.markets, "", nil
}

func (f *fakeExchange) GetMarket(_ context.Context, ticker string) (kalshi.Market, error) {
	for _, m := range f.markets {
		if m.Ticker == ticker {
			return m, nil
		}
	}
	return kalshi.Market{}, domain.ErrNotFound
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func exchangeMarket(ticker string, closeIn time.Duration) kalshi.Market {
	return kalshi.Market{
		Ticker:       ticker,
		SeriesTicker: "HIGHNYC",
		Status:       "open",
		StrikeType:   "greater",
		FloorStrike:  floatPtr(70),
		YesBid:       intPtr(45),
		YesAsk:       intPtr(48),
		NoBid:        intPtr(52),
		NoAsk:        intPtr(55),
		Volume:       1200,
		OpenInterest: 3000,
		CloseTime:    time.Now().UTC().Add(closeIn),
	}
}

func TestSeriesTicker(t *testing.T) {
	assert.Equal(t, "HIGHNYC", SeriesTicker("NYC"))
	assert.Equal(t, "HIGHSFO", SeriesTicker("SFO"))
}

func TestDateSegment(t *testing.T) {
	seg, err := dateSegment("2026-02-10")
	require.NoError(t, err)
	assert.Equal(t, "10FEB26", seg)

	_, err = dateSegment("02/10/2026")
	assert.Error(t, err)
}

func TestEventDateFromTicker(t *testing.T) {
	date, ok := eventDateFromTicker("HIGHNYC-10FEB26-B70")
	assert.True(t, ok)
	assert.Equal(t, "2026-02-10", date)

	_, ok = eventDateFromTicker("MALFORMED")
	assert.False(t, ok)
}

func TestListActiveFiltersDateAndCloseTime(t *testing.T) {
	today := time.Now().UTC().Format("2006-01-02")
	seg, err := dateSegment(today)
	require.NoError(t, err)

	f := &fakeExchange{markets: []kalshi.Market{
		exchangeMarket("HIGHNYC-"+seg+"-B70", 6*time.Hour),
		exchangeMarket("HIGHNYC-"+seg+"-B72", -time.Hour),     // already closed
		exchangeMarket("HIGHNYC-01JAN99-B70", 6*time.Hour),    // wrong date
	}}
	p := NewProvider(f, nil, 30*time.Second, slog.Default())

	tickers, err := p.ListActive(context.Background(), "NYC", today)
	require.NoError(t, err)
	assert.Equal(t, []string{"HIGHNYC-" + seg + "-B70"}, tickers)
}

func TestQuoteBuildsSnapshot(t *testing.T) {
	f := &fakeExchange{markets: []kalshi.Market{exchangeMarket("HIGHNYC-10FEB26-B70", 6*time.Hour)}}
	p := NewProvider(f, nil, 30*time.Second, slog.Default())

	snap, err := p.Quote(context.Background(), "NYC", "HIGHNYC-10FEB26-B70")
	require.NoError(t, err)

	assert.Equal(t, "NYC", snap.CityCode)
	assert.Equal(t, domain.DirectionAbove, snap.Direction)
	assert.InDelta(t, 70.0, snap.ThresholdF, 1e-9)
	assert.Equal(t, "2026-02-10", snap.EventDate)
	assert.True(t, snap.Eligible())

	mid, ok := snap.MidYes()
	require.True(t, ok)
	assert.InDelta(t, 46.5, mid, 1e-9)
}

func TestQuoteBelowStrikeDirection(t *testing.T) {
	m := exchangeMarket("HIGHNYC-10FEB26-T65", 6*time.Hour)
	m.StrikeType = "less"
	m.FloorStrike = nil
	m.CapStrike = floatPtr(65)

	snap, err := snapshotFromMarket(m, "NYC")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBelow, snap.Direction)
	assert.InDelta(t, 65.0, snap.ThresholdF, 1e-9)
}

func TestQuoteMissingStrikeIsDataValidation(t *testing.T) {
	m := exchangeMarket("HIGHNYC-10FEB26-B70", 6*time.Hour)
	m.FloorStrike = nil

	_, err := snapshotFromMarket(m, "NYC")
	assert.ErrorIs(t, err, domain.ErrDataValidation)
}

func TestQuoteMissingBookSideIsIneligible(t *testing.T) {
	m := exchangeMarket("HIGHNYC-10FEB26-B70", 6*time.Hour)
	m.YesAsk = nil

	snap, err := snapshotFromMarket(m, "NYC")
	require.NoError(t, err)
	assert.False(t, snap.Eligible())
}
