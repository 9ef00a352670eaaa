package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skybotdev/skybot/internal/domain"
)

type fakePublicStore struct {
	trades []domain.PublicTrade
	err    error
}

func (f *fakePublicStore) List(context.Context, int) ([]domain.PublicTrade, error) {
	return f.trades, f.err
}

func TestListTradesRedactedShape(t *testing.T) {
	filled := time.Date(2026, 2, 10, 15, 4, 0, 0, time.UTC) // minute-rounded upstream
	store := &fakePublicStore{trades: []domain.PublicTrade{{
		Ticker:     "HIGHNYC-10FEB26-B70",
		CityCode:   "NYC",
		Side:       domain.SideYes,
		Quantity:   9,
		PriceCents: 71,
		FilledAt:   filled,
	}}}
	h := NewPublicHandler(store, slog.Default())

	rec := httptest.NewRecorder()
	h.ListTrades(rec, httptest.NewRequest("GET", "/api/public/trades", nil))

	require.Equal(t, 200, rec.Code)

	var body map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body["trades"], 1)

	trade := body["trades"][0]
	assert.Equal(t, "HIGHNYC-10FEB26-B70", trade["ticker"])
	assert.Equal(t, "2026-02-10T15:04:00Z", trade["filled_at"])

	// The projection never exposes order identifiers, intent keys, or raw
	// payloads.
	for _, forbidden := range []string{"order_id", "client_order_id", "intent_key", "exchange_order_id", "payload"} {
		_, present := trade[forbidden]
		assert.False(t, present, forbidden)
	}
}

func TestListTradesNeverSurfacesErrors(t *testing.T) {
	store := &fakePublicStore{err: errors.New("db down")}
	h := NewPublicHandler(store, slog.Default())

	rec := httptest.NewRecorder()
	h.ListTrades(rec, httptest.NewRequest("GET", "/api/public/trades", nil))

	require.Equal(t, 200, rec.Code)

	var body map[string][]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body["trades"])
}
