package service

import (
	"strings"
	"sync"

	"trader/internal/models"
	"trader/internal/repository"
	"trader/pkg/utils"
)

// TierService кеширует переопределения базового тейк-профита по группам символов.
// Кеш обновляется по расписанию и по запросу оператора, без рестарта процесса
type TierService struct {
	repo   *repository.TierRepository
	logger *utils.Logger

	mu        sync.RWMutex
	overrides map[string]float64 // symbol_group -> base_tp_pct
}

// NewTierService создает новый экземпляр TierService
func NewTierService(repo *repository.TierRepository) *TierService {
	return &TierService{
		repo:      repo,
		logger:    utils.L().WithComponent("tiers"),
		overrides: make(map[string]float64),
	}
}

// Refresh перечитывает переопределения из БД
// При ошибке прежний кеш остается в силе
func (s *TierService) Refresh() error {
	rows, err := s.repo.GetAll()
	if err != nil {
		return err
	}

	overrides := make(map[string]float64, len(rows))
	for _, row := range rows {
		overrides[strings.ToUpper(row.SymbolGroup)] = row.BaseTPPct
	}

	s.mu.Lock()
	s.overrides = overrides
	s.mu.Unlock()

	s.logger.Debug("tier overrides refreshed", utils.Int("count", len(overrides)))
	return nil
}

// ApplyTo возвращает копию уровня с базовым тейк-профитом,
// переопределенным для группы данного символа (если переопределение есть)
func (s *TierService) ApplyTo(symbol string, tier models.Tier) models.Tier {
	group := SymbolGroup(symbol)

	s.mu.RLock()
	tp, ok := s.overrides[group]
	s.mu.RUnlock()

	if ok && tp > 0 {
		tier.BaseTPPct = tp
	}
	return tier
}

// Overrides возвращает копию текущего кеша переопределений
func (s *TierService) Overrides() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]float64, len(s.overrides))
	for group, tp := range s.overrides {
		out[group] = tp
	}
	return out
}

// Upsert сохраняет переопределение и обновляет кеш
func (s *TierService) Upsert(override *models.TierOverride) error {
	if err := s.repo.Upsert(override); err != nil {
		return err
	}

	s.mu.Lock()
	s.overrides[strings.ToUpper(override.SymbolGroup)] = override.BaseTPPct
	s.mu.Unlock()

	return nil
}

// Delete удаляет переопределение и убирает его из кеша
func (s *TierService) Delete(group string) error {
	if err := s.repo.Delete(group); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.overrides, strings.ToUpper(group))
	s.mu.Unlock()

	return nil
}

// SymbolGroup выделяет группу символа: базовый актив без котируемой валюты
// (BTCUSDT -> BTC)
func SymbolGroup(symbol string) string {
	symbol = strings.ToUpper(symbol)
	for _, quote := range []string{"USDT", "USDC", "BUSD"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return strings.TrimSuffix(symbol, quote)
		}
	}
	return symbol
}
