package models

import "time"

// Tier представляет риск-уровень: диапазон уверенности сигнала определяет
// плечо, долю депозита и базовый профит-таргет
type Tier struct {
	ID             int           `json:"id"`               // 1..6
	MinConfidence  float64       `json:"min_confidence"`   // нижняя граница (включительно)
	Leverage       int           `json:"leverage"`         // множитель плеча
	PositionPct    float64       `json:"position_pct"`     // доля баланса под маржу
	BaseTPPct      float64       `json:"base_tp_pct"`      // базовый тейк-профит, %
	OrderType      string        `json:"order_type"`       // market, limit
	LimitOffsetPct float64       `json:"limit_offset_pct"` // улучшение цены для limit входа, %
	EntryTTL       time.Duration `json:"entry_ttl"`        // срок жизни неисполненного limit входа
}

// Типы входного ордера
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// MinTierConfidence - нижний порог уверенности, ниже которого сигнал отклоняется
const MinTierConfidence = 0.60

// DefaultTiers - таблица уровней, упорядочена по убыванию уверенности.
// Выбирается первый уровень, чей порог сигнал достигает
var DefaultTiers = []Tier{
	{ID: 1, MinConfidence: 0.95, Leverage: 10, PositionPct: 0.12, BaseTPPct: 4.5, OrderType: OrderTypeMarket, EntryTTL: 15 * time.Minute},
	{ID: 2, MinConfidence: 0.85, Leverage: 8, PositionPct: 0.10, BaseTPPct: 4.0, OrderType: OrderTypeLimit, LimitOffsetPct: 0.05, EntryTTL: 15 * time.Minute},
	{ID: 3, MinConfidence: 0.75, Leverage: 7, PositionPct: 0.08, BaseTPPct: 3.5, OrderType: OrderTypeLimit, LimitOffsetPct: 0.08, EntryTTL: 15 * time.Minute},
	{ID: 4, MinConfidence: 0.70, Leverage: 6, PositionPct: 0.06, BaseTPPct: 3.0, OrderType: OrderTypeLimit, LimitOffsetPct: 0.10, EntryTTL: 15 * time.Minute},
	{ID: 5, MinConfidence: 0.65, Leverage: 5, PositionPct: 0.04, BaseTPPct: 2.8, OrderType: OrderTypeLimit, LimitOffsetPct: 0.12, EntryTTL: 15 * time.Minute},
	{ID: 6, MinConfidence: 0.60, Leverage: 3, PositionPct: 0.03, BaseTPPct: 2.5, OrderType: OrderTypeLimit, LimitOffsetPct: 0.15, EntryTTL: 15 * time.Minute},
}

// TierByID возвращает уровень риска по номеру
func TierByID(id int) (Tier, bool) {
	for _, tier := range DefaultTiers {
		if tier.ID == id {
			return tier, true
		}
	}
	return Tier{}, false
}

// TierOverride представляет переопределение базового тейк-профита
// для группы символов (редактируется извне, перечитывается без рестарта)
type TierOverride struct {
	ID          int       `json:"id" db:"id"`
	SymbolGroup string    `json:"symbol_group" db:"symbol_group"` // BTC, ETH, ALT, ...
	BaseTPPct   float64   `json:"base_tp_pct" db:"base_tp_pct"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
