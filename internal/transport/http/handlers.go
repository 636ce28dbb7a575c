// Package http exposes the operational status endpoints.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/emanuelef/yt-dl-bot-go/internal/domain"
)

// Sessions reports the active-session count.
type Sessions interface {
	Count() int
}

// Queue reports worker-pool state.
type Queue interface {
	QueueSize() int
	WorkerCount() int
}

// History reports delivery totals.
type History interface {
	CountByStatus(ctx context.Context) (map[string]int, error)
}

// Handlers holds dependencies for the status endpoints.
type Handlers struct {
	sessions Sessions
	queue    Queue
	history  History // may be nil
}

// NewHandlers creates the status Handlers. history may be nil.
func NewHandlers(sessions Sessions, queue Queue, history History) *Handlers {
	return &Handlers{sessions: sessions, queue: queue, history: history}
}

// HealthHandler handles GET /healthz.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, &domain.HealthResponse{Status: "ok"})
}

// StatsHandler handles GET /api/stats.
func (h *Handlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	resp := &domain.StatsResponse{
		ActiveSessions: h.sessions.Count(),
		QueueSize:      h.queue.QueueSize(),
		Workers:        h.queue.WorkerCount(),
	}

	if h.history != nil {
		totals, err := h.history.CountByStatus(r.Context())
		if err != nil {
			slog.Warn("Failed to load delivery totals", "error", err)
		} else {
			resp.Totals = totals
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", "error", err)
	}
}
