package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"trader/internal/models"
	"trader/internal/repository"
)

// ============ TierHandler Tests ============

// tierRequest прогоняет запрос через mux router, чтобы path variables работали
func tierRequest(handler *TierHandler, method, path string, body []byte) *httptest.ResponseRecorder {
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/tiers", handler.GetTiers).Methods("GET")
	router.HandleFunc("/api/v1/tiers/reload", handler.ReloadTiers).Methods("POST")
	router.HandleFunc("/api/v1/tiers/{group}", handler.UpsertTier).Methods("PUT")
	router.HandleFunc("/api/v1/tiers/{group}", handler.DeleteTier).Methods("DELETE")

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTierHandler_GetTiers(t *testing.T) {
	mockStore := NewMockTierStore()
	mockStore.overrides["BTC"] = 3.8
	handler := NewTierHandler(mockStore)

	w := tierRequest(handler, http.MethodGet, "/api/v1/tiers", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var response struct {
		Tiers     []models.Tier      `json:"tiers"`
		Overrides map[string]float64 `json:"overrides"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(response.Tiers) != len(models.DefaultTiers) {
		t.Errorf("expected %d tiers, got %d", len(models.DefaultTiers), len(response.Tiers))
	}
	if response.Overrides["BTC"] != 3.8 {
		t.Errorf("override BTC = %v, want 3.8", response.Overrides["BTC"])
	}
}

func TestTierHandler_UpsertTier(t *testing.T) {
	t.Run("saves override and uppercases group", func(t *testing.T) {
		mockStore := NewMockTierStore()
		handler := NewTierHandler(mockStore)

		w := tierRequest(handler, http.MethodPut, "/api/v1/tiers/btc", []byte(`{"base_tp_pct": 3.8}`))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
		}
		if mockStore.overrides["BTC"] != 3.8 {
			t.Errorf("stored override = %v, want 3.8 under BTC", mockStore.overrides)
		}
	})

	t.Run("rejects non-positive value", func(t *testing.T) {
		handler := NewTierHandler(NewMockTierStore())

		w := tierRequest(handler, http.MethodPut, "/api/v1/tiers/BTC", []byte(`{"base_tp_pct": 0}`))

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		handler := NewTierHandler(NewMockTierStore())

		w := tierRequest(handler, http.MethodPut, "/api/v1/tiers/BTC", []byte(`not json`))

		if w.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("returns 500 on store error", func(t *testing.T) {
		mockStore := NewMockTierStore()
		mockStore.upsertErr = ErrMockDatabase
		handler := NewTierHandler(mockStore)

		w := tierRequest(handler, http.MethodPut, "/api/v1/tiers/BTC", []byte(`{"base_tp_pct": 3.8}`))

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}

func TestTierHandler_DeleteTier(t *testing.T) {
	t.Run("removes override", func(t *testing.T) {
		mockStore := NewMockTierStore()
		mockStore.overrides["BTC"] = 3.8
		handler := NewTierHandler(mockStore)

		w := tierRequest(handler, http.MethodDelete, "/api/v1/tiers/BTC", nil)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if _, exists := mockStore.overrides["BTC"]; exists {
			t.Error("override still present after delete")
		}
	})

	t.Run("returns 404 for unknown group", func(t *testing.T) {
		mockStore := NewMockTierStore()
		mockStore.deleteErr = repository.ErrOverrideNotFound
		handler := NewTierHandler(mockStore)

		w := tierRequest(handler, http.MethodDelete, "/api/v1/tiers/DOGE", nil)

		if w.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
		}
	})
}

func TestTierHandler_ReloadTiers(t *testing.T) {
	t.Run("reloads overrides", func(t *testing.T) {
		mockStore := NewMockTierStore()
		handler := NewTierHandler(mockStore)

		w := tierRequest(handler, http.MethodPost, "/api/v1/tiers/reload", nil)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		if !mockStore.refreshed {
			t.Error("Refresh not called")
		}
	})

	t.Run("returns 500 on refresh error", func(t *testing.T) {
		mockStore := NewMockTierStore()
		mockStore.refreshErr = ErrMockDatabase
		handler := NewTierHandler(mockStore)

		w := tierRequest(handler, http.MethodPost, "/api/v1/tiers/reload", nil)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}
