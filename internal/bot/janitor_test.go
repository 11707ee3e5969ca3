package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	"trader/internal/exchange"
	"trader/internal/models"
	"trader/internal/service"
)

type janitorFixture struct {
	janitor  *StaleEntityJanitor
	book     *PositionBook
	notifier *captureNotifier
}

func newJanitorFixture(ex *mockExchange) *janitorFixture {
	cfg := testRisk()
	notifier := &captureNotifier{}
	events := service.NewEventService(nil, notifier)
	book := NewPositionBook()
	executor := NewOrderExecutor(ex, book, nil, events, cfg)

	return &janitorFixture{
		janitor:  NewStaleEntityJanitor(executor, ex, book, events, cfg),
		book:     book,
		notifier: notifier,
	}
}

func openOrder(clientID, orderType string, age time.Duration, filled float64) *exchange.Order {
	return &exchange.Order{
		ClientOrderID: clientID,
		Symbol:        "BTCUSDT",
		Type:          orderType,
		Quantity:      0.24,
		FilledQty:     filled,
		Status:        exchange.OrderStatusNew,
		CreatedAt:     time.Now().UTC().Add(-age),
	}
}

func TestSweepStaleOrdersCancelsOldEntry(t *testing.T) {
	stale := openOrder("pex-abc123def456", exchange.OrderTypeLimit, 20*time.Minute, 0)
	ex := &mockExchange{
		GetOpenOrdersFunc: func(ctx context.Context, symbol string) ([]*exchange.Order, error) {
			return []*exchange.Order{stale}, nil
		},
	}
	f := newJanitorFixture(ex)
	f.book.Add(&models.Position{
		Symbol:       "BTCUSDT",
		Side:         models.SideLong,
		State:        models.StateOpen,
		EntryOrderID: "pex-abc123def456",
		StopOrderID:  "pex-abc123def456-sl",
		TakeOrderID:  "pex-abc123def456-tp",
	})

	f.janitor.SweepStaleOrders(context.Background())

	cancelled := ex.cancelledIDs()
	if len(cancelled) != 3 {
		t.Fatalf("cancelled %d orders, want entry plus both protective legs", len(cancelled))
	}
	if cancelled[0] != "pex-abc123def456" {
		t.Errorf("first cancel = %q, want the stale entry", cancelled[0])
	}
	if f.book.Has("BTCUSDT") {
		t.Error("book entry not removed with cancelled entry")
	}
	if !f.notifier.hasType(models.EventTypeCancel) {
		t.Error("CANCEL event not logged")
	}
}

func TestSweepStaleOrdersUsesTierEntryTTL(t *testing.T) {
	// Общий порог выше TTL уровня: должен победить TTL уровня риска
	stale := openOrder("pex-abc123def456", exchange.OrderTypeLimit, 20*time.Minute, 0)
	ex := &mockExchange{
		GetOpenOrdersFunc: func(ctx context.Context, symbol string) ([]*exchange.Order, error) {
			return []*exchange.Order{stale}, nil
		},
	}

	cfg := testRisk()
	cfg.StaleOrderAfter = time.Hour
	events := service.NewEventService(nil, nil)
	book := NewPositionBook()
	executor := NewOrderExecutor(ex, book, nil, events, cfg)
	janitor := NewStaleEntityJanitor(executor, ex, book, events, cfg)

	book.Add(&models.Position{
		Symbol:       "BTCUSDT",
		Side:         models.SideLong,
		State:        models.StateOpen,
		TierID:       2, // limit вход с TTL 15m
		EntryOrderID: "pex-abc123def456",
	})

	janitor.SweepStaleOrders(context.Background())

	if len(ex.cancelledIDs()) == 0 {
		t.Error("entry older than its tier TTL not cancelled")
	}
}

func TestSweepStaleOrdersLeavesFreshAndForeign(t *testing.T) {
	tests := []struct {
		name  string
		order *exchange.Order
	}{
		{"fresh entry", openOrder("pex-abc123def456", exchange.OrderTypeLimit, 5*time.Minute, 0)},
		{"foreign order", openOrder("web_12345", exchange.OrderTypeLimit, 2*time.Hour, 0)},
		{"partially filled entry", openOrder("pex-abc123def456", exchange.OrderTypeLimit, 2*time.Hour, 0.1)},
		{"protective stop", openOrder("pex-abc123def456-sl", exchange.OrderTypeStopMarket, 2*time.Hour, 0)},
		{"protective take", openOrder("pex-abc123def456-tp", exchange.OrderTypeTakeProfitMarket, 2*time.Hour, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := &mockExchange{
				GetOpenOrdersFunc: func(ctx context.Context, symbol string) ([]*exchange.Order, error) {
					return []*exchange.Order{tt.order}, nil
				},
			}
			f := newJanitorFixture(ex)

			f.janitor.SweepStaleOrders(context.Background())

			if len(ex.cancelledIDs()) != 0 {
				t.Errorf("order %q cancelled, want untouched", tt.order.ClientOrderID)
			}
		})
	}
}

func TestSweepStaleOrdersContinuesAfterCancelFailure(t *testing.T) {
	first := openOrder("pex-aaa111aaa111", exchange.OrderTypeLimit, time.Hour, 0)
	second := openOrder("pex-bbb222bbb222", exchange.OrderTypeLimit, time.Hour, 0)
	second.Symbol = "ETHUSDT"

	ex := &mockExchange{
		GetOpenOrdersFunc: func(ctx context.Context, symbol string) ([]*exchange.Order, error) {
			return []*exchange.Order{first, second}, nil
		},
		CancelOrderFunc: func(ctx context.Context, symbol, clientOrderID string) error {
			if clientOrderID == "pex-aaa111aaa111" {
				return errors.New("unknown order")
			}
			return nil
		},
	}
	f := newJanitorFixture(ex)

	f.janitor.SweepStaleOrders(context.Background())

	// Отказ первого ордера не помешал отмене второго
	cancelled := ex.cancelledIDs()
	if len(cancelled) != 2 {
		t.Fatalf("attempted %d cancels, want 2", len(cancelled))
	}
	if cancelled[1] != "pex-bbb222bbb222" {
		t.Errorf("second cancel = %q, want pex-bbb222bbb222", cancelled[1])
	}
}

func TestSweepStalePositionsForceCloses(t *testing.T) {
	ex := exchangeWithPosition(0.24)
	f := newJanitorFixture(ex)

	old := openPosition(50*time.Hour, 0.96) // старше TTL 48h
	old.StopOrderID = ""
	old.TakeOrderID = ""
	f.book.Add(old)

	f.janitor.SweepStalePositions(context.Background())

	if f.book.Has("BTCUSDT") {
		t.Error("stale position not force-closed")
	}
	if reason, _ := f.notifier.closeReason(); reason != models.CloseReasonStale {
		t.Errorf("close reason = %q, want stale", reason)
	}
}

func TestSweepStalePositionsLeavesFresh(t *testing.T) {
	ex := exchangeWithPosition(0.24)
	f := newJanitorFixture(ex)
	f.book.Add(openPosition(24*time.Hour, 0.96))

	f.janitor.SweepStalePositions(context.Background())

	if !f.book.Has("BTCUSDT") {
		t.Error("fresh position closed by TTL sweep")
	}
	if len(ex.placedOrders()) != 0 {
		t.Error("orders placed for position within TTL")
	}
}

func TestSweepStalePositionsContinuesAfterFailure(t *testing.T) {
	ex := &mockExchange{
		GetOpenPositionsFunc: func(ctx context.Context) ([]*exchange.Position, error) {
			return []*exchange.Position{
				{Symbol: "BTCUSDT", Side: exchange.SideLong, Size: 0.24},
				{Symbol: "ETHUSDT", Side: exchange.SideLong, Size: 1.5},
			}, nil
		},
		PlaceOrderFunc: func(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
			if req.Symbol == "BTCUSDT" {
				return nil, errors.New("exchange unavailable")
			}
			return &exchange.Order{ClientOrderID: req.ClientOrderID, AvgFillPrice: 3000}, nil
		},
	}
	f := newJanitorFixture(ex)

	btc := openPosition(50*time.Hour, 0.96)
	btc.StopOrderID = ""
	btc.TakeOrderID = ""
	f.book.Add(btc)
	f.book.Add(&models.Position{
		Symbol:       "ETHUSDT",
		Side:         models.SideLong,
		EntryPrice:   3100,
		Quantity:     1.5,
		Confidence:   0.96,
		OpenedAt:     time.Now().UTC().Add(-50 * time.Hour),
		State:        models.StateOpen,
		EntryOrderID: "pex-eth111eth111",
	})

	f.janitor.SweepStalePositions(context.Background())

	// BTC закрыть не удалось - остается на повтор, ETH закрыт
	if !f.book.Has("BTCUSDT") {
		t.Error("failed close removed position from book")
	}
	if f.book.Has("ETHUSDT") {
		t.Error("second stale position not closed after first failure")
	}
}
