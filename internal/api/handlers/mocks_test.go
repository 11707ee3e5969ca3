package handlers

import (
	"errors"

	"trader/internal/models"
)

// ErrMockDatabase имитирует отказ хранилища в тестах
var ErrMockDatabase = errors.New("mock database error")

// ============ Mock EngineController ============

type MockEngine struct {
	trading    bool
	positions  []models.Position
	haltReason string
}

func NewMockEngine() *MockEngine {
	return &MockEngine{trading: true}
}

func (m *MockEngine) Halt(reason string) {
	m.trading = false
	m.haltReason = reason
}

func (m *MockEngine) Resume() {
	m.trading = true
}

func (m *MockEngine) IsTradingEnabled() bool {
	return m.trading
}

func (m *MockEngine) ActivePositions() []models.Position {
	return m.positions
}

// ============ Mock EventStore ============

type MockEventStore struct {
	events []*models.Event
	err    error
	limit  int // последний запрошенный limit
}

func NewMockEventStore() *MockEventStore {
	return &MockEventStore{}
}

func (m *MockEventStore) SetError(err error) {
	m.err = err
}

func (m *MockEventStore) Recent(limit int) ([]*models.Event, error) {
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.events, nil
}

// ============ Mock TierStore ============

type MockTierStore struct {
	overrides  map[string]float64
	upsertErr  error
	deleteErr  error
	refreshErr error
	refreshed  bool
}

func NewMockTierStore() *MockTierStore {
	return &MockTierStore{overrides: make(map[string]float64)}
}

func (m *MockTierStore) Overrides() map[string]float64 {
	return m.overrides
}

func (m *MockTierStore) Upsert(override *models.TierOverride) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.overrides[override.SymbolGroup] = override.BaseTPPct
	return nil
}

func (m *MockTierStore) Delete(group string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.overrides, group)
	return nil
}

func (m *MockTierStore) Refresh() error {
	if m.refreshErr != nil {
		return m.refreshErr
	}
	m.refreshed = true
	return nil
}
