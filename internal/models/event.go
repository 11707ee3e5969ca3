package models

import "time"

// Event представляет запись append-only журнала событий движка
type Event struct {
	ID        int64                  `json:"id" db:"id"`
	Timestamp time.Time              `json:"timestamp" db:"ts"`
	Type      string                 `json:"type" db:"type"`         // ENTRY, PROTECTIVE, CLOSE, CANCEL, ERROR, WARNING, HALT, RESUME
	Severity  string                 `json:"severity" db:"severity"` // info, warn, error
	Symbol    string                 `json:"symbol,omitempty" db:"symbol"`
	Message   string                 `json:"message" db:"message"`
	Payload   map[string]interface{} `json:"payload,omitempty" db:"payload"` // JSON в БД
}

// Типы событий
const (
	EventTypeEntry      = "ENTRY"      // размещен входной ордер
	EventTypeProtective = "PROTECTIVE" // размещены защитные ордера
	EventTypeClose      = "CLOSE"      // позиция закрыта
	EventTypeCancel     = "CANCEL"     // ордер отменен
	EventTypeReduce     = "REDUCE"     // частичный тейк, переход в REDUCING
	EventTypeError      = "ERROR"      // ошибка цикла/свипа
	EventTypeWarning    = "WARNING"    // частичный отказ защитных ордеров и пр.
	EventTypeHalt       = "HALT"       // торговля остановлена оператором
	EventTypeResume     = "RESUME"     // торговля возобновлена
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
