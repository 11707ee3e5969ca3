package exchange

import (
	"context"
	"time"
)

// Exchange определяет интерфейс движка к деривативной бирже (один аккаунт, USDT-M)
type Exchange interface {
	// GetName возвращает имя биржи
	GetName() string

	// GetBalance получает баланс фьючерсного кошелька в USDT
	GetBalance(ctx context.Context) (float64, error)

	// GetMarginInUse получает суммарную начальную маржу открытых позиций
	GetMarginInUse(ctx context.Context) (float64, error)

	// GetMarkPrice получает текущую mark price символа
	GetMarkPrice(ctx context.Context, symbol string) (float64, error)

	// GetSymbolRules получает торговые правила символа (tick size, lot step)
	GetSymbolRules(ctx context.Context, symbol string) (*SymbolRules, error)

	// SetLeverage устанавливает плечо для символа
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceOrder размещает ордер с клиентским идентификатором
	PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error)

	// CancelOrder отменяет ордер по клиентскому идентификатору
	CancelOrder(ctx context.Context, symbol, clientOrderID string) error

	// GetOrder получает ордер по клиентскому идентификатору
	GetOrder(ctx context.Context, symbol, clientOrderID string) (*Order, error)

	// GetOpenOrders получает открытые ордера (symbol = "" - по всем символам)
	GetOpenOrders(ctx context.Context, symbol string) ([]*Order, error)

	// GetOpenPositions получает список открытых позиций
	GetOpenPositions(ctx context.Context) ([]*Position, error)

	// Close закрывает соединения с биржей
	Close() error
}

// OrderRequest описывает размещаемый ордер
type OrderRequest struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`           // buy, sell
	Type          string  `json:"type"`           // market, limit, stop_market, take_profit_market
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price,omitempty"`      // для limit
	StopPrice     float64 `json:"stop_price,omitempty"` // для stop_market / take_profit_market
	ReduceOnly    bool    `json:"reduce_only"`
	ClientOrderID string  `json:"client_order_id"`
}

// Order представляет ордер на бирже
type Order struct {
	ClientOrderID string    `json:"client_order_id"`
	ExchangeID    int64     `json:"exchange_id"`
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"`
	Type          string    `json:"type"`
	Quantity      float64   `json:"quantity"`
	FilledQty     float64   `json:"filled_qty"`
	AvgFillPrice  float64   `json:"avg_fill_price"`
	StopPrice     float64   `json:"stop_price,omitempty"`
	Status        string    `json:"status"`
	ReduceOnly    bool      `json:"reduce_only"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Position представляет открытую позицию на бирже
type Position struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"` // long, short
	Size          float64   `json:"size"` // абсолютный размер в монетах
	EntryPrice    float64   `json:"entry_price"`
	MarkPrice     float64   `json:"mark_price"`
	Leverage      int       `json:"leverage"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	InitialMargin float64   `json:"initial_margin"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SymbolRules содержит торговые ограничения биржи для символа
type SymbolRules struct {
	Symbol      string  `json:"symbol"`
	PriceTick   float64 `json:"price_tick"`   // шаг изменения цены
	QtyStep     float64 `json:"qty_step"`     // шаг изменения количества (lot size)
	MinQty      float64 `json:"min_qty"`      // минимальный размер ордера
	MinNotional float64 `json:"min_notional"` // минимальная сумма сделки в USDT
}

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange string
	Code     string
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	return e.Exchange + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

// Side constants for orders (используются при размещении ордеров)
const (
	SideBuy  = "buy"  // покупка (открытие long или закрытие short)
	SideSell = "sell" // продажа (открытие short или закрытие long)
)

// Side constants for positions (используются для описания направления позиции)
const (
	SideLong  = "long"  // длинная позиция
	SideShort = "short" // короткая позиция
)

// Order type constants
const (
	OrderTypeMarket           = "market"
	OrderTypeLimit            = "limit"
	OrderTypeStopMarket       = "stop_market"
	OrderTypeTakeProfitMarket = "take_profit_market"
)

// Order status constants
const (
	OrderStatusNew       = "new"
	OrderStatusPartial   = "partial"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
	OrderStatusRejected  = "rejected"
	OrderStatusExpired   = "expired"
)

// IsProtectiveType возвращает true для защитных типов ордеров (SL/TP)
func IsProtectiveType(orderType string) bool {
	return orderType == OrderTypeStopMarket || orderType == OrderTypeTakeProfitMarket
}
