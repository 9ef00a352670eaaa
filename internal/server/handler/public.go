// Package handler contains the read-only HTTP handlers for the public
// surface: the delayed trade projection and component health. The trade
// projection never surfaces errors; a failed query serves an empty page.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/skybotdev/skybot/internal/domain"
)

// publicTradeResponse is the wire shape of one delayed trade. It carries no
// order identifiers, intent keys, or raw payloads.
type publicTradeResponse struct {
	Ticker     string `json:"ticker"`
	CityCode   string `json:"city_code"`
	Side       string `json:"side"`
	Quantity   int    `json:"quantity"`
	PriceCents int    `json:"price_cents"`
	FilledAt   string `json:"filled_at"`
}

// PublicHandler serves the delayed public trade projection.
type PublicHandler struct {
	trades domain.PublicTradeStore
	logger *slog.Logger
}

// NewPublicHandler creates a PublicHandler.
func NewPublicHandler(trades domain.PublicTradeStore, logger *slog.Logger) *PublicHandler {
	return &PublicHandler{
		trades: trades,
		logger: logger.With(slog.String("component", "public_handler")),
	}
}

// ListTrades handles GET /api/public/trades.
func (h *PublicHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.List(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "public trades query failed",
			slog.String("error", err.Error()),
		)
		// The public surface never exposes errors; serve an empty page.
		writeJSON(w, http.StatusOK, map[string]any{"trades": []publicTradeResponse{}})
		return
	}

	out := make([]publicTradeResponse, 0, len(trades))
	for _, t := range trades {
		out = append(out, publicTradeResponse{
			Ticker:     t.Ticker,
			CityCode:   t.CityCode,
			Side:       string(t.Side),
			Quantity:   t.Quantity,
			PriceCents: t.PriceCents,
			FilledAt:   t.FilledAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"trades": out})
}
