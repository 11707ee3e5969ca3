package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"trader/internal/models"
	"trader/internal/repository"
)

// TierStore - управление переопределениями уровней риска
type TierStore interface {
	Overrides() map[string]float64
	Upsert(override *models.TierOverride) error
	Delete(group string) error
	Refresh() error
}

// TierHandler обрабатывает HTTP запросы к таблице уровней риска.
//
// Endpoints:
// - GET    /api/v1/tiers          - таблица уровней и активные переопределения
// - PUT    /api/v1/tiers/{group}  - задать base_tp_pct для группы символов
// - DELETE /api/v1/tiers/{group}  - убрать переопределение группы
// - POST   /api/v1/tiers/reload   - перечитать переопределения из БД
//
// Сами уровни (пороги уверенности, плечи, доли маржи) фиксированы,
// переопределяется только базовый процент тейк-профита по группе
type TierHandler struct {
	tiers TierStore
}

// NewTierHandler создает новый TierHandler с внедрением зависимостей
func NewTierHandler(tiers TierStore) *TierHandler {
	return &TierHandler{tiers: tiers}
}

// tierOverrideRequest - тело запроса переопределения
type tierOverrideRequest struct {
	BaseTPPct float64 `json:"base_tp_pct"`
}

// GetTiers возвращает таблицу уровней риска и активные переопределения.
//
// GET /api/v1/tiers
//
// Response 200 OK:
//
//	{
//	  "tiers": [{"id": 1, "min_confidence": 0.95, "leverage": 10, ...}],
//	  "overrides": {"BTC": 3.8}
//	}
func (h *TierHandler) GetTiers(w http.ResponseWriter, r *http.Request) {
	if h.tiers == nil {
		writeError(w, http.StatusInternalServerError, "tier service not initialized", nil)
		return
	}

	overrides := h.tiers.Overrides()
	if overrides == nil {
		overrides = map[string]float64{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tiers":     models.DefaultTiers,
		"overrides": overrides,
	})
}

// UpsertTier задает переопределение базового тейк-профита для группы.
//
// PUT /api/v1/tiers/{group}
// Body: {"base_tp_pct": 3.8}
//
// Response 200 OK:
//
//	{"message": "override saved", "data": {"symbol_group": "BTC", "base_tp_pct": 3.8}}
//
// Response 400 Bad Request:
//
//	{"error": "base_tp_pct must be positive"}
func (h *TierHandler) UpsertTier(w http.ResponseWriter, r *http.Request) {
	if h.tiers == nil {
		writeError(w, http.StatusInternalServerError, "tier service not initialized", nil)
		return
	}

	group := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["group"]))
	if group == "" {
		writeError(w, http.StatusBadRequest, "symbol group is required", nil)
		return
	}

	var req tierOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.BaseTPPct <= 0 || req.BaseTPPct > 50 {
		writeError(w, http.StatusBadRequest, "base_tp_pct must be in (0, 50]", nil)
		return
	}

	override := &models.TierOverride{SymbolGroup: group, BaseTPPct: req.BaseTPPct}
	if err := h.tiers.Upsert(override); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save override", err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "override saved",
		Data:    map[string]interface{}{"symbol_group": group, "base_tp_pct": req.BaseTPPct},
	})
}

// DeleteTier убирает переопределение группы.
//
// DELETE /api/v1/tiers/{group}
//
// Response 200 OK:
//
//	{"message": "override removed"}
//
// Response 404 Not Found:
//
//	{"error": "override not found"}
func (h *TierHandler) DeleteTier(w http.ResponseWriter, r *http.Request) {
	if h.tiers == nil {
		writeError(w, http.StatusInternalServerError, "tier service not initialized", nil)
		return
	}

	group := strings.ToUpper(strings.TrimSpace(mux.Vars(r)["group"]))
	if group == "" {
		writeError(w, http.StatusBadRequest, "symbol group is required", nil)
		return
	}

	if err := h.tiers.Delete(group); err != nil {
		if errors.Is(err, repository.ErrOverrideNotFound) {
			writeError(w, http.StatusNotFound, "override not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to remove override", err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{Message: "override removed"})
}

// ReloadTiers перечитывает переопределения из БД немедленно,
// не дожидаясь планового обновления.
//
// POST /api/v1/tiers/reload
//
// Response 200 OK:
//
//	{"message": "overrides reloaded", "data": {"count": 2}}
func (h *TierHandler) ReloadTiers(w http.ResponseWriter, r *http.Request) {
	if h.tiers == nil {
		writeError(w, http.StatusInternalServerError, "tier service not initialized", nil)
		return
	}

	if err := h.tiers.Refresh(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reload overrides", err)
		return
	}

	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: "overrides reloaded",
		Data:    map[string]int{"count": len(h.tiers.Overrides())},
	})
}
