package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/skybotdev/skybot/internal/domain"
)

// componentHealth is the wire shape of one component's status.
type componentHealth struct {
	Component string  `json:"component"`
	Status    string  `json:"status"`
	LastOK    *string `json:"last_ok,omitempty"`
	Message   string  `json:"message,omitempty"`
	UpdatedAt string  `json:"updated_at"`
}

// HealthHandler serves the latest per-component health rows.
type HealthHandler struct {
	health domain.HealthStore
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(health domain.HealthStore, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		health: health,
		logger: logger.With(slog.String("component", "health_handler")),
	}
}

// HealthCheck handles GET /api/health. The endpoint reports 503 when any
// component is DOWN.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	rows, err := h.health.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "health query failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusServiceUnavailable, "health unavailable")
		return
	}

	status := http.StatusOK
	out := make([]componentHealth, 0, len(rows))
	for _, row := range rows {
		entry := componentHealth{
			Component: string(row.Component),
			Status:    string(row.Status),
			Message:   row.Message,
			UpdatedAt: row.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if row.LastOK != nil {
			s := row.LastOK.UTC().Format(time.RFC3339)
			entry.LastOK = &s
		}
		if row.Status == domain.HealthDown {
			status = http.StatusServiceUnavailable
		}
		out = append(out, entry)
	}

	writeJSON(w, status, map[string]any{"components": out})
}
