// Package integration contains integration tests for the position execution engine.
//
// These tests verify the correct interaction between components:
// - API integration tests: full HTTP request cycle
// - Database tests: repository round-trips against a real schema
//
// Tests skip automatically when the test database is unreachable.
// Run with: go test ./tests/integration/...
package integration

import (
	"database/sql"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"trader/internal/api"
	"trader/internal/models"
	"trader/internal/repository"
	"trader/internal/service"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
)

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB       *sql.DB
	Router   *mux.Router
	Server   *httptest.Server
	Engine   *stubEngine
	Repos    *TestRepositories
	Services *TestServices
	Cleanup  func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Event   *repository.EventRepository
	Outcome *repository.OutcomeRepository
	Tier    *repository.TierRepository
}

// TestServices contains all service instances for testing
type TestServices struct {
	Events *service.EventService
	Tiers  *service.TierService
}

// stubEngine implements the engine control surface without an exchange
// connection, so API tests can exercise halt/resume/positions in isolation
type stubEngine struct {
	mu         sync.Mutex
	trading    bool
	haltReason string
	positions  []models.Position
}

func newStubEngine() *stubEngine {
	return &stubEngine{trading: true}
}

func (s *stubEngine) Halt(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trading = false
	s.haltReason = reason
}

func (s *stubEngine) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trading = true
	s.haltReason = ""
}

func (s *stubEngine) IsTradingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trading
}

func (s *stubEngine) ActivePositions() []models.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Position, len(s.positions))
	copy(out, s.positions)
	return out
}

func (s *stubEngine) setPositions(positions []models.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = positions
}

func (s *stubEngine) lastHaltReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.haltReason
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "trader_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	config := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		config.DBHost, config.DBPort, config.DBUser, config.DBPassword, config.DBName, config.DBSSLMode,
	)

	db, err := sql.Open(config.DBDriver, connStr)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("Skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestServer creates a complete test server with all components
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	repos := &TestRepositories{
		Event:   repository.NewEventRepository(db),
		Outcome: repository.NewOutcomeRepository(db),
		Tier:    repository.NewTierRepository(db),
	}

	// Notifier is nil: external notifications are out of scope here
	services := &TestServices{
		Events: service.NewEventService(repos.Event, nil),
		Tiers:  service.NewTierService(repos.Tier),
	}

	engine := newStubEngine()

	deps := &api.Dependencies{
		Engine: engine,
		Events: services.Events,
		Tiers:  services.Tiers,
	}
	router := api.SetupRoutes(deps)

	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:       db,
		Router:   router,
		Server:   server,
		Engine:   engine,
		Repos:    repos,
		Services: services,
		Cleanup:  cleanup,
	}
}

// initTestTables creates or truncates tables for testing
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			type VARCHAR(20) NOT NULL,
			severity VARCHAR(10) NOT NULL DEFAULT 'info',
			symbol VARCHAR(20),
			message TEXT NOT NULL,
			payload JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ts ON events (ts DESC)`,
		`CREATE TABLE IF NOT EXISTS trade_outcomes (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(5) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			pnl_pct DOUBLE PRECISION NOT NULL,
			hold_hours DOUBLE PRECISION NOT NULL,
			reason VARCHAR(20) NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_outcomes_ts ON trade_outcomes (ts DESC)`,
		`CREATE TABLE IF NOT EXISTS tier_overrides (
			id BIGSERIAL PRIMARY KEY,
			symbol_group VARCHAR(20) NOT NULL UNIQUE,
			base_tp_pct DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// cleanupTestTables truncates all test tables
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"events",
		"trade_outcomes",
		"tier_overrides",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

// TruncateTable truncates a specific table for testing
func TruncateTable(db *sql.DB, tableName string) error {
	_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tableName))
	return err
}
