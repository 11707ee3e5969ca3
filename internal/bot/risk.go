package bot

import (
	"trader/internal/models"
)

// ============================================================
// RiskTierResolver: уверенность сигнала -> риск-уровень
// ============================================================

// ResolveTier возвращает уровень риска для нормализованной уверенности [0, 1].
// Таблица упорядочена по убыванию порога, выбирается первый достигнутый уровень.
// Уверенность ниже нижнего порога - сигнал отклоняется (ok = false)
func ResolveTier(confidence float64) (models.Tier, bool) {
	for _, tier := range models.DefaultTiers {
		if confidence >= tier.MinConfidence {
			return tier, true
		}
	}
	return models.Tier{}, false
}

// ============================================================
// CapacityGate: контроль суммарной маржи в рамках цикла
// ============================================================

// CapacityGate решает, можно ли действовать по новому сигналу, не превысив
// лимит маржи. Снимок баланса и занятой маржи делается в начале цикла;
// внутри цикла расчетная маржа каждого принятого сигнала вычитается из
// бегущего остатка. Гейт оптимистичный: фактическую занятость подтверждает
// только следующий опрос биржи
type CapacityGate struct {
	balance   float64
	available float64
	maxNew    int
	opened    int
}

// NewCapacityGate создает гейт на один торговый цикл
// available = balance * marginCapPct - marginInUse
func NewCapacityGate(balance, marginInUse, marginCapPct float64, maxNew int) *CapacityGate {
	return &CapacityGate{
		balance:   balance,
		available: balance*marginCapPct - marginInUse,
		maxNew:    maxNew,
	}
}

// HasCapacity возвращает true, если цикл вообще может открывать позиции
func (g *CapacityGate) HasCapacity() bool {
	return g.available > 0 && g.opened < g.maxNew
}

// RequiredMargin возвращает расчетную маржу входа для уровня
func (g *CapacityGate) RequiredMargin(tier models.Tier) float64 {
	return g.balance * tier.PositionPct
}

// TryReserve пытается зарезервировать маржу под вход по уровню.
// false - резерв превысил бы остаток или достигнут лимит новых позиций за цикл
func (g *CapacityGate) TryReserve(tier models.Tier) (float64, bool) {
	if g.opened >= g.maxNew {
		return 0, false
	}

	required := g.RequiredMargin(tier)
	if required <= 0 || required > g.available {
		return 0, false
	}

	g.available -= required
	g.opened++
	return required, true
}

// Available возвращает текущий остаток доступной маржи
func (g *CapacityGate) Available() float64 {
	return g.available
}

// Opened возвращает число принятых в этом цикле сигналов
func (g *CapacityGate) Opened() int {
	return g.opened
}
