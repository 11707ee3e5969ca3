package bot

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"trader/internal/config"
	"trader/internal/exchange"
	"trader/internal/models"
	"trader/internal/service"
)

func testRisk() config.RiskConfig {
	return config.RiskConfig{
		MarginCapPct:    0.60,
		MaxNewPerCycle:  10,
		MaxHoldHours:    3,
		DecayHalfLife:   6 * time.Hour,
		DecayCloseBelow: 0.40,
		FlipMinConf:     0.60,
		TakeProfit1Frac: 0.50,
		StaleOrderAfter: 15 * time.Minute,
		PositionTTL:     48 * time.Hour,
		ClientIDPrefix:  "pex",
	}
}

func testExecutor(ex *mockExchange, book *PositionBook) *OrderExecutor {
	return NewOrderExecutor(ex, book, nil, service.NewEventService(nil, nil), testRisk())
}

func testPlan(side string) *OrderPlan {
	tier, _ := ResolveTier(0.96)
	return &OrderPlan{
		Signal:        models.Signal{Symbol: "BTCUSDT", Side: side, Confidence: 0.96},
		Tier:          tier,
		Rules:         defaultRules(),
		MarkPrice:     50000,
		EntryPrice:    50000,
		Quantity:      0.24,
		TakeProfitPct: 4.672,
		StopLossPct:   9.344,
	}
}

func TestExecuteSuccess(t *testing.T) {
	ex := &mockExchange{
		PlaceOrderFunc: func(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
			order := &exchange.Order{ClientOrderID: req.ClientOrderID, Status: exchange.OrderStatusNew}
			if req.Type == exchange.OrderTypeMarket {
				order.Status = exchange.OrderStatusFilled
				order.AvgFillPrice = 50010
			}
			return order, nil
		},
	}
	executor := testExecutor(ex, NewPositionBook())

	result := executor.Execute(context.Background(), testPlan(models.SideLong))

	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}

	placed := ex.placedOrders()
	if len(placed) != 3 {
		t.Fatalf("placed %d orders, want 3 (entry, sl, tp)", len(placed))
	}

	entry, sl, tp := placed[0], placed[1], placed[2]
	if entry.Type != exchange.OrderTypeMarket || entry.Side != exchange.SideBuy {
		t.Errorf("entry = %s %s, want market buy", entry.Type, entry.Side)
	}
	if !strings.HasPrefix(entry.ClientOrderID, "pex-") {
		t.Errorf("entry client ID %q lacks engine prefix", entry.ClientOrderID)
	}

	if sl.Type != exchange.OrderTypeStopMarket || !sl.ReduceOnly || sl.Side != exchange.SideSell {
		t.Errorf("sl = %+v, want reduce-only sell stop_market", sl)
	}
	if sl.ClientOrderID != entry.ClientOrderID+"-sl" {
		t.Errorf("sl client ID = %q, want %q", sl.ClientOrderID, entry.ClientOrderID+"-sl")
	}
	if math.Abs(sl.Quantity-0.24) > 1e-9 {
		t.Errorf("sl quantity = %v, want full 0.24", sl.Quantity)
	}

	if tp.Type != exchange.OrderTypeTakeProfitMarket || !tp.ReduceOnly {
		t.Errorf("tp = %+v, want reduce-only take_profit_market", tp)
	}
	if math.Abs(tp.Quantity-0.12) > 1e-9 {
		t.Errorf("tp quantity = %v, want half 0.12", tp.Quantity)
	}

	// Защитные уровни считаются от фактической цены исполнения входа
	if result.Position.EntryPrice != 50010 {
		t.Errorf("position entry price = %v, want fill price 50010", result.Position.EntryPrice)
	}
	if result.Position.State != models.StateOpen {
		t.Errorf("position state = %s, want OPEN", result.Position.State)
	}
	if result.Position.StopOrderID == "" || result.Position.TakeOrderID == "" {
		t.Error("protective order IDs not recorded on position")
	}
}

func TestExecuteLimitEntry(t *testing.T) {
	ex := &mockExchange{}
	executor := testExecutor(ex, NewPositionBook())

	plan := testPlan(models.SideLong)
	tier, _ := ResolveTier(0.85) // limit уровень
	plan.Tier = tier
	plan.EntryPrice = 49975

	result := executor.Execute(context.Background(), plan)
	if result.Status != StatusSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}

	entry := ex.placedOrders()[0]
	if entry.Type != exchange.OrderTypeLimit || entry.Price != 49975 {
		t.Errorf("entry = %s @ %v, want limit @ 49975", entry.Type, entry.Price)
	}
	// Без фактической цены исполнения защита считается от плановой цены входа
	if result.Position.EntryPrice != 49975 {
		t.Errorf("position entry price = %v, want plan price 49975", result.Position.EntryPrice)
	}
}

func TestExecuteEntryFailure(t *testing.T) {
	ex := &mockExchange{
		PlaceOrderFunc: func(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
			return nil, errors.New("insufficient margin")
		},
	}
	executor := testExecutor(ex, NewPositionBook())

	result := executor.Execute(context.Background(), testPlan(models.SideLong))

	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Position != nil {
		t.Error("failed entry produced a position")
	}
	if len(ex.placedOrders()) != 1 {
		t.Errorf("placed %d orders after entry failure, want 1", len(ex.placedOrders()))
	}
}

func TestExecuteLeverageFailure(t *testing.T) {
	ex := &mockExchange{
		SetLeverageFunc: func(ctx context.Context, symbol string, leverage int) error {
			return errors.New("leverage not allowed")
		},
	}
	executor := testExecutor(ex, NewPositionBook())

	result := executor.Execute(context.Background(), testPlan(models.SideLong))

	if result.Status != StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if len(ex.placedOrders()) != 0 {
		t.Error("orders placed despite leverage failure")
	}
}

func TestExecuteProtectiveLegFailure(t *testing.T) {
	ex := &mockExchange{
		PlaceOrderFunc: func(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
			if req.Type == exchange.OrderTypeStopMarket {
				return nil, errors.New("would trigger immediately")
			}
			return &exchange.Order{ClientOrderID: req.ClientOrderID, AvgFillPrice: 50000}, nil
		},
	}
	executor := testExecutor(ex, NewPositionBook())

	result := executor.Execute(context.Background(), testPlan(models.SideLong))

	// Вход уже исполнен - отказ защитной ноги не откатывает позицию
	if result.Status != StatusPartialSuccess {
		t.Fatalf("status = %s, want partial_success", result.Status)
	}
	if result.Position == nil {
		t.Fatal("partial success must still carry the position")
	}
	if len(result.FailedLegs) != 1 || result.FailedLegs[0].Leg != LegStopLoss {
		t.Errorf("failed legs = %+v, want single stop_loss", result.FailedLegs)
	}
	if result.Position.StopOrderID != "" {
		t.Error("stop order ID recorded despite failure")
	}
	if result.Position.TakeOrderID == "" {
		t.Error("take order ID missing despite successful leg")
	}
}

func TestExecuteNonPositiveTakePrice(t *testing.T) {
	ex := &mockExchange{}
	executor := testExecutor(ex, NewPositionBook())

	// Для short тейк уходит ниже нуля при tpPct > 100 - нога бракуется валидацией
	plan := testPlan(models.SideShort)
	plan.TakeProfitPct = 150

	result := executor.Execute(context.Background(), plan)

	if result.Status != StatusPartialSuccess {
		t.Fatalf("status = %s, want partial_success", result.Status)
	}
	if len(result.FailedLegs) != 1 || result.FailedLegs[0].Leg != LegTakeProfit {
		t.Errorf("failed legs = %+v, want single take_profit", result.FailedLegs)
	}

	for _, req := range ex.placedOrders() {
		if req.Type == exchange.OrderTypeTakeProfitMarket {
			t.Error("take profit order sent to exchange despite invalid price")
		}
	}
}

func TestClosePosition(t *testing.T) {
	ex := &mockExchange{
		GetOpenPositionsFunc: func(ctx context.Context) ([]*exchange.Position, error) {
			return []*exchange.Position{{Symbol: "BTCUSDT", Side: exchange.SideLong, Size: 0.24}}, nil
		},
		PlaceOrderFunc: func(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
			return &exchange.Order{ClientOrderID: req.ClientOrderID, AvgFillPrice: 52000}, nil
		},
	}
	book := NewPositionBook()
	executor := testExecutor(ex, book)

	pos := &models.Position{
		Symbol:       "BTCUSDT",
		Side:         models.SideLong,
		EntryPrice:   50000,
		Quantity:     0.24,
		OpenedAt:     time.Now().Add(-2 * time.Hour),
		State:        models.StateOpen,
		EntryOrderID: "pex-abc123def456",
		StopOrderID:  "pex-abc123def456-sl",
		TakeOrderID:  "pex-abc123def456-tp",
	}
	book.Add(pos)

	if err := executor.ClosePosition(context.Background(), pos, models.CloseReasonHardStop); err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}

	cancelled := ex.cancelledIDs()
	if len(cancelled) != 2 {
		t.Fatalf("cancelled %d orders, want both protective legs", len(cancelled))
	}

	placed := ex.placedOrders()
	if len(placed) != 1 {
		t.Fatalf("placed %d orders, want single close order", len(placed))
	}
	closeReq := placed[0]
	if closeReq.Type != exchange.OrderTypeMarket || !closeReq.ReduceOnly || closeReq.Side != exchange.SideSell {
		t.Errorf("close order = %+v, want reduce-only sell market", closeReq)
	}
	if math.Abs(closeReq.Quantity-0.24) > 1e-9 {
		t.Errorf("close quantity = %v, want exchange residual 0.24", closeReq.Quantity)
	}

	if book.Has("BTCUSDT") {
		t.Error("position still in book after close")
	}
	if pos.State != models.StateClosed {
		t.Errorf("position state = %s, want CLOSED", pos.State)
	}
}

func TestClosePositionAlreadyFlat(t *testing.T) {
	// Биржа уже закрыла позицию защитным ордером - закрывающий ордер не нужен
	ex := &mockExchange{
		GetOpenPositionsFunc: func(ctx context.Context) ([]*exchange.Position, error) {
			return nil, nil
		},
		GetMarkPriceFunc: func(ctx context.Context, symbol string) (float64, error) {
			return 51000, nil
		},
	}
	book := NewPositionBook()
	executor := testExecutor(ex, book)

	pos := &models.Position{
		Symbol:       "BTCUSDT",
		Side:         models.SideLong,
		EntryPrice:   50000,
		Quantity:     0.24,
		OpenedAt:     time.Now().Add(-time.Hour),
		State:        models.StateOpen,
		EntryOrderID: "pex-abc123def456",
	}
	book.Add(pos)

	if err := executor.ClosePosition(context.Background(), pos, models.CloseReasonDecay); err != nil {
		t.Fatalf("ClosePosition() error = %v", err)
	}
	if len(ex.placedOrders()) != 0 {
		t.Error("close order placed for already flat position")
	}
	if book.Has("BTCUSDT") {
		t.Error("flat position not removed from book")
	}
}

func TestClosePositionOrderFailureKeepsPosition(t *testing.T) {
	ex := &mockExchange{
		GetOpenPositionsFunc: func(ctx context.Context) ([]*exchange.Position, error) {
			return []*exchange.Position{{Symbol: "BTCUSDT", Side: exchange.SideLong, Size: 0.24}}, nil
		},
		PlaceOrderFunc: func(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
			return nil, errors.New("exchange unavailable")
		},
	}
	book := NewPositionBook()
	executor := testExecutor(ex, book)

	pos := &models.Position{
		Symbol:       "BTCUSDT",
		Side:         models.SideLong,
		EntryPrice:   50000,
		Quantity:     0.24,
		OpenedAt:     time.Now(),
		State:        models.StateOpen,
		EntryOrderID: "pex-abc123def456",
	}
	book.Add(pos)

	if err := executor.ClosePosition(context.Background(), pos, models.CloseReasonStale); err == nil {
		t.Fatal("ClosePosition() succeeded despite order failure")
	}
	// Позиция остается в книге - следующий свип попробует снова
	if !book.Has("BTCUSDT") {
		t.Error("position removed from book after failed close")
	}
}

func TestNewEntryIDFormat(t *testing.T) {
	executor := testExecutor(&mockExchange{}, NewPositionBook())

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := executor.newEntryID()
		if !strings.HasPrefix(id, "pex-") {
			t.Fatalf("entry ID %q lacks prefix", id)
		}
		if len(id) != len("pex-")+12 {
			t.Fatalf("entry ID %q has wrong length", id)
		}
		if seen[id] {
			t.Fatalf("duplicate entry ID %q", id)
		}
		seen[id] = true
	}
}

func TestOwnsOrder(t *testing.T) {
	executor := testExecutor(&mockExchange{}, NewPositionBook())

	tests := []struct {
		id   string
		want bool
	}{
		{"pex-abc123def456", true},
		{"pex-abc123def456-sl", true},
		{"web_abc123", false},
		{"pexfoo", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := executor.OwnsOrder(tt.id); got != tt.want {
			t.Errorf("OwnsOrder(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
