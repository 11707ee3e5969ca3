package models

import (
	"fmt"
	"strings"
	"time"
)

// Signal представляет внешний торговый сигнал
type Signal struct {
	Symbol     string    `json:"symbol"`               // BTCUSDT
	Side       string    `json:"side"`                 // LONG, SHORT (нормализованный)
	Confidence float64   `json:"confidence"`           // 0.0 - 1.0 (нормализованный)
	Timestamp  time.Time `json:"timestamp,omitempty"`  // время генерации сигнала
}

// Направления позиции
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
)

// Синонимы направлений, принимаемые от внешнего источника
var sideAliases = map[string]string{
	"LONG":    SideLong,
	"BUY":     SideLong,
	"BULL":    SideLong,
	"BULLISH": SideLong,
	"SHORT":   SideShort,
	"SELL":    SideShort,
	"BEAR":    SideShort,
	"BEARISH": SideShort,
}

// NormalizeSide приводит направление к каноническому виду (LONG/SHORT)
// Регистр не учитывается. Неизвестное значение - ошибка валидации
func NormalizeSide(raw string) (string, error) {
	side, ok := sideAliases[strings.ToUpper(strings.TrimSpace(raw))]
	if !ok {
		return "", fmt.Errorf("unknown side %q", raw)
	}
	return side, nil
}

// OppositeSide возвращает противоположное направление
func OppositeSide(side string) string {
	if side == SideLong {
		return SideShort
	}
	return SideLong
}

// NormalizeConfidence приводит уверенность к шкале [0, 1]
// Источник может присылать проценты (шкала [0, 100])
func NormalizeConfidence(raw float64) float64 {
	if raw > 1.0 {
		return raw / 100.0
	}
	return raw
}

// Normalize валидирует и нормализует сырой сигнал от источника
func (s *Signal) Normalize() error {
	side, err := NormalizeSide(s.Side)
	if err != nil {
		return err
	}
	s.Side = side
	s.Confidence = NormalizeConfidence(s.Confidence)
	if s.Confidence < 0 || s.Confidence > 1 {
		return fmt.Errorf("confidence %.4f out of range", s.Confidence)
	}
	return nil
}
