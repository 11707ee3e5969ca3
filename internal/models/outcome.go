package models

import "time"

// TradeOutcome представляет итог закрытой позиции (запись для анализа)
type TradeOutcome struct {
	ID         int64     `json:"id" db:"id"`
	Timestamp  time.Time `json:"timestamp" db:"ts"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Side       string    `json:"side" db:"side"`
	EntryPrice float64   `json:"entry_price" db:"entry_price"`
	ExitPrice  float64   `json:"exit_price" db:"exit_price"`
	PnlPct     float64   `json:"pnl_pct" db:"pnl_pct"`     // % с учетом направления, без плеча
	HoldHours  float64   `json:"hold_hours" db:"hold_hours"`
	Reason     string    `json:"reason" db:"reason"`       // hard_stop, signal_flip, decay, stale, protective, manual
}
