package bot

import "trader/internal/models"

// ValidTransitions определяет допустимые переходы между состояниями позиции
var ValidTransitions = map[string][]string{
	models.StateOpen:     {models.StateReducing, models.StateClosed},
	models.StateReducing: {models.StateClosed},
	models.StateClosed:   {}, // терминальное состояние
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния
func StateInfo(s string) string {
	switch s {
	case models.StateOpen:
		return "Позиция открыта, защитные ордера активны"
	case models.StateReducing:
		return "Частичный тейк исполнен, остаток под breakeven стопом"
	case models.StateClosed:
		return "Позиция закрыта"
	default:
		return "Неизвестное состояние"
	}
}

// IsTerminal возвращает true для терминального состояния
func IsTerminal(s string) bool {
	return s == models.StateClosed
}
