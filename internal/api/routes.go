package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trader/internal/api/handlers"
	"trader/internal/api/middleware"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Engine handlers.EngineController
	Events handlers.EventStore
	Tiers  handlers.TierStore
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /health  - проверка живости
// /metrics - Prometheus метрики
//
// /api/v1/
//
//	├── GET    /positions     - открытые позиции и флаг торговли
//	├── GET    /events        - журнал событий
//	├── POST   /halt          - остановить открытие позиций (operator auth)
//	├── POST   /resume        - возобновить открытие позиций (operator auth)
//	├── GET    /tiers         - уровни риска и переопределения
//	├── PUT    /tiers/{group} - задать переопределение (operator auth)
//	├── DELETE /tiers/{group} - убрать переопределение (operator auth)
//	└── POST   /tiers/reload  - перечитать переопределения (operator auth)
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
// 4. OperatorAuth (только для управляющих маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS)

	var engineHandler *handlers.EngineHandler
	if deps != nil && deps.Engine != nil {
		engineHandler = handlers.NewEngineHandler(deps.Engine)
	}

	var eventHandler *handlers.EventHandler
	if deps != nil && deps.Events != nil {
		eventHandler = handlers.NewEventHandler(deps.Events)
	}

	var tierHandler *handlers.TierHandler
	if deps != nil && deps.Tiers != nil {
		tierHandler = handlers.NewTierHandler(deps.Tiers)
	}

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	// Управляющие маршруты защищены operator auth
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.OperatorAuth)

	if engineHandler != nil {
		api.HandleFunc("/positions", engineHandler.GetPositions).Methods("GET")
		protected.HandleFunc("/halt", engineHandler.Halt).Methods("POST")
		protected.HandleFunc("/resume", engineHandler.Resume).Methods("POST")
	}

	if eventHandler != nil {
		api.HandleFunc("/events", eventHandler.GetEvents).Methods("GET")
	}

	if tierHandler != nil {
		api.HandleFunc("/tiers", tierHandler.GetTiers).Methods("GET")
		protected.HandleFunc("/tiers/{group}", tierHandler.UpsertTier).Methods("PUT")
		protected.HandleFunc("/tiers/{group}", tierHandler.DeleteTier).Methods("DELETE")
		protected.HandleFunc("/tiers/reload", tierHandler.ReloadTiers).Methods("POST")
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Health check endpoint
	if engineHandler != nil {
		router.HandleFunc("/health", engineHandler.Health).Methods("GET")
	} else {
		router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		}).Methods("GET")
	}

	return router
}
