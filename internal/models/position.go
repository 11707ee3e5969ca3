package models

import "time"

// Position представляет открытую позицию под управлением движка
type Position struct {
	Symbol       string    `json:"symbol"`
	Side         string    `json:"side"`          // LONG, SHORT
	EntryPrice   float64   `json:"entry_price"`
	Quantity     float64   `json:"quantity"`      // исходный объем входа
	Leverage     int       `json:"leverage"`
	TierID       int       `json:"tier_id"`
	Confidence   float64   `json:"confidence"`    // уверенность на момент входа
	OpenedAt     time.Time `json:"opened_at"`
	State        string    `json:"state"`         // OPEN, REDUCING, CLOSED
	EntryOrderID string    `json:"entry_order_id"` // клиентский ID входного ордера
	StopOrderID  string    `json:"stop_order_id,omitempty"`
	TakeOrderID  string    `json:"take_order_id,omitempty"`
}

// Состояния позиции
const (
	StateOpen     = "OPEN"     // позиция открыта, защитные ордера активны
	StateReducing = "REDUCING" // частичный тейк исполнен, остаток под breakeven стопом
	StateClosed   = "CLOSED"   // терминальное состояние
)

// IsLong возвращает true для длинной позиции
func (p *Position) IsLong() bool {
	return p.Side == SideLong
}

// Age возвращает возраст позиции
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// Причины закрытия позиции
const (
	CloseReasonHardStop   = "hard_stop"   // превышен максимальный срок удержания
	CloseReasonSignalFlip = "signal_flip" // свежий сигнал противоположного направления
	CloseReasonDecay      = "decay"       // уверенность затухла ниже порога
	CloseReasonStale      = "stale"       // принудительное закрытие janitor'ом по TTL
	CloseReasonProtective = "protective"  // полное исполнение SL/TP на бирже
	CloseReasonManual     = "manual"      // закрытие оператором
)
