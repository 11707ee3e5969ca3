package bot

import (
	"context"
	"sync"

	"trader/internal/exchange"
)

// mockExchange реализует exchange.Exchange через настраиваемые функции.
// Неустановленная функция возвращает нулевые значения без ошибки
type mockExchange struct {
	mu        sync.Mutex
	placed    []*exchange.OrderRequest // все размещенные ордера по порядку
	cancelled []string                 // клиентские ID отмененных ордеров

	GetBalanceFunc       func(ctx context.Context) (float64, error)
	GetMarginInUseFunc   func(ctx context.Context) (float64, error)
	GetMarkPriceFunc     func(ctx context.Context, symbol string) (float64, error)
	GetSymbolRulesFunc   func(ctx context.Context, symbol string) (*exchange.SymbolRules, error)
	SetLeverageFunc      func(ctx context.Context, symbol string, leverage int) error
	PlaceOrderFunc       func(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error)
	CancelOrderFunc      func(ctx context.Context, symbol, clientOrderID string) error
	GetOrderFunc         func(ctx context.Context, symbol, clientOrderID string) (*exchange.Order, error)
	GetOpenOrdersFunc    func(ctx context.Context, symbol string) ([]*exchange.Order, error)
	GetOpenPositionsFunc func(ctx context.Context) ([]*exchange.Position, error)
}

func (m *mockExchange) GetName() string { return "mock" }

func (m *mockExchange) GetBalance(ctx context.Context) (float64, error) {
	if m.GetBalanceFunc != nil {
		return m.GetBalanceFunc(ctx)
	}
	return 0, nil
}

func (m *mockExchange) GetMarginInUse(ctx context.Context) (float64, error) {
	if m.GetMarginInUseFunc != nil {
		return m.GetMarginInUseFunc(ctx)
	}
	return 0, nil
}

func (m *mockExchange) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	if m.GetMarkPriceFunc != nil {
		return m.GetMarkPriceFunc(ctx, symbol)
	}
	return 0, nil
}

func (m *mockExchange) GetSymbolRules(ctx context.Context, symbol string) (*exchange.SymbolRules, error) {
	if m.GetSymbolRulesFunc != nil {
		return m.GetSymbolRulesFunc(ctx, symbol)
	}
	return &exchange.SymbolRules{Symbol: symbol, PriceTick: 0.01, QtyStep: 0.001}, nil
}

func (m *mockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if m.SetLeverageFunc != nil {
		return m.SetLeverageFunc(ctx, symbol, leverage)
	}
	return nil
}

func (m *mockExchange) PlaceOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
	m.mu.Lock()
	m.placed = append(m.placed, req)
	m.mu.Unlock()

	if m.PlaceOrderFunc != nil {
		return m.PlaceOrderFunc(ctx, req)
	}
	return &exchange.Order{
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Status:        exchange.OrderStatusNew,
	}, nil
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	m.mu.Lock()
	m.cancelled = append(m.cancelled, clientOrderID)
	m.mu.Unlock()

	if m.CancelOrderFunc != nil {
		return m.CancelOrderFunc(ctx, symbol, clientOrderID)
	}
	return nil
}

func (m *mockExchange) GetOrder(ctx context.Context, symbol, clientOrderID string) (*exchange.Order, error) {
	if m.GetOrderFunc != nil {
		return m.GetOrderFunc(ctx, symbol, clientOrderID)
	}
	return &exchange.Order{ClientOrderID: clientOrderID, Symbol: symbol, Status: exchange.OrderStatusNew}, nil
}

func (m *mockExchange) GetOpenOrders(ctx context.Context, symbol string) ([]*exchange.Order, error) {
	if m.GetOpenOrdersFunc != nil {
		return m.GetOpenOrdersFunc(ctx, symbol)
	}
	return nil, nil
}

func (m *mockExchange) GetOpenPositions(ctx context.Context) ([]*exchange.Position, error) {
	if m.GetOpenPositionsFunc != nil {
		return m.GetOpenPositionsFunc(ctx)
	}
	return nil, nil
}

func (m *mockExchange) Close() error { return nil }

// placedOrders возвращает снимок размещенных ордеров
func (m *mockExchange) placedOrders() []*exchange.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*exchange.OrderRequest, len(m.placed))
	copy(out, m.placed)
	return out
}

// cancelledIDs возвращает снимок отмененных клиентских ID
func (m *mockExchange) cancelledIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.cancelled))
	copy(out, m.cancelled)
	return out
}
