package handlers

import (
	"net/http"
	"strconv"

	"trader/internal/models"
)

// EventStore - доступ к журналу событий движка
type EventStore interface {
	Recent(limit int) ([]*models.Event, error)
}

// EventHandler обрабатывает HTTP запросы к журналу событий.
//
// Endpoints:
// - GET /api/v1/events?limit=100 - последние события журнала
type EventHandler struct {
	events EventStore
}

// NewEventHandler создает новый EventHandler с внедрением зависимостей
func NewEventHandler(events EventStore) *EventHandler {
	return &EventHandler{events: events}
}

// GetEvents возвращает последние события журнала.
//
// GET /api/v1/events?limit=100
//
// Query Parameters:
// - limit (optional): количество событий (по умолчанию 100, максимум 500)
//
// Response 200 OK:
//
//	[
//	  {
//	    "id": 42,
//	    "timestamp": "2026-08-31T12:00:00Z",
//	    "type": "ENTRY",
//	    "severity": "info",
//	    "symbol": "BTCUSDT",
//	    "message": "LONG entry placed: qty 0.24 @ 50010 (tier 1)",
//	    "payload": {"tier": 1, "confidence": 0.96}
//	  }
//	]
//
// Response 500 Internal Server Error:
//
//	{"error": "failed to get events", "details": "..."}
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusInternalServerError, "event service not initialized", nil)
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	events, err := h.events.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get events", err)
		return
	}

	// Пустой журнал возвращается как [], а не null
	if events == nil {
		events = []*models.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}
