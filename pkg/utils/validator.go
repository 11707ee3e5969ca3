package utils

// validator.go - валидация входных данных
//
// Назначение:
// Проверка корректности данных, приходящих извне (сигналы аналитики,
// параметры API запросов), до того как они попадут в торговую логику.
//
// Возвращает error с описанием проблемы или nil

import (
	"fmt"
	"regexp"
)

var symbolRe = regexp.MustCompile(`^[A-Z0-9]{5,20}$`)

// ValidateSymbol проверяет формат торгового символа (BTCUSDT)
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol is empty")
	}
	if !symbolRe.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %q", symbol)
	}
	return nil
}

// ValidateConfidence проверяет значение уверенности сигнала.
// Допускаются обе шкалы источника: [0,1] и [0,100].
func ValidateConfidence(conf float64) error {
	if conf < 0 || conf > 100 {
		return fmt.Errorf("confidence out of range: %v", conf)
	}
	return nil
}

// ValidateQuantity проверяет объём ордера (> 0)
func ValidateQuantity(qty float64) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %v", qty)
	}
	return nil
}

// ValidatePrice проверяет цену ордера (> 0)
func ValidatePrice(price float64) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %v", price)
	}
	return nil
}
