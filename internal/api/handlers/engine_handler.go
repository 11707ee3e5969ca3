package handlers

import (
	"io"
	"net/http"

	"trader/internal/models"
)

// EngineController - операции управления торговым движком,
// доступные оператору через API
type EngineController interface {
	Halt(reason string)
	Resume()
	IsTradingEnabled() bool
	ActivePositions() []models.Position
}

// EngineHandler обрабатывает HTTP запросы управления движком.
//
// Endpoints:
// - GET  /api/v1/positions - открытые позиции движка
// - POST /api/v1/halt      - остановить открытие новых позиций
// - POST /api/v1/resume    - возобновить открытие новых позиций
//
// Halt останавливает только входы: сопровождение открытых позиций
// (защитные ордера, lifecycle, janitor) продолжает работать
type EngineHandler struct {
	engine EngineController
}

// NewEngineHandler создает новый EngineHandler с внедрением зависимостей
func NewEngineHandler(engine EngineController) *EngineHandler {
	return &EngineHandler{engine: engine}
}

// haltRequest - тело запроса остановки торговли
type haltRequest struct {
	Reason string `json:"reason"`
}

// Health возвращает состояние движка для проверки живости.
//
// GET /health
//
// Response 200 OK:
//
//	{"status": "ok", "trading_enabled": true, "active_positions": 2}
func (h *EngineHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized", nil)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"trading_enabled":  h.engine.IsTradingEnabled(),
		"active_positions": len(h.engine.ActivePositions()),
	})
}

// GetPositions возвращает снимок открытых позиций.
//
// GET /api/v1/positions
//
// Response 200 OK:
//
//	{
//	  "trading_enabled": true,
//	  "positions": [
//	    {"symbol": "BTCUSDT", "side": "LONG", "state": "OPEN", ...}
//	  ]
//	}
func (h *EngineHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized", nil)
		return
	}

	positions := h.engine.ActivePositions()
	if positions == nil {
		positions = []models.Position{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"trading_enabled": h.engine.IsTradingEnabled(),
		"positions":       positions,
	})
}

// Halt останавливает открытие новых позиций.
//
// POST /api/v1/halt
// Body (optional): {"reason": "maintenance"}
//
// Response 200 OK:
//
//	{"message": "trading halted", "data": {"trading_enabled": false}}
func (h *EngineHandler) Halt(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized", nil)
		return
	}

	reason := "operator request"
	var req haltRequest
	if body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 4096)); err == nil && len(body) > 0 {
		if err := json.Unmarshal(body, &req); err == nil && req.Reason != "" {
			reason = req.Reason
		}
	}

	h.engine.Halt(reason)
	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "trading halted",
		Data:    map[string]bool{"trading_enabled": false},
	})
}

// Resume возобновляет открытие новых позиций.
//
// POST /api/v1/resume
//
// Response 200 OK:
//
//	{"message": "trading resumed", "data": {"trading_enabled": true}}
func (h *EngineHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		writeError(w, http.StatusInternalServerError, "engine not initialized", nil)
		return
	}

	h.engine.Resume()
	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "trading resumed",
		Data:    map[string]bool{"trading_enabled": true},
	})
}
