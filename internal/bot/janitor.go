package bot

import (
	"context"
	"fmt"
	"time"

	"trader/internal/config"
	"trader/internal/exchange"
	"trader/internal/models"
	"trader/internal/service"
	"trader/pkg/utils"
)

// StaleEntityJanitor убирает протухшие сущности движка:
// неисполненные limit входы старше порога и позиции старше TTL.
// Защитные ордера (stop_market, take_profit_market) никогда не трогает -
// они принадлежат живым позициям и отменяются только при закрытии
type StaleEntityJanitor struct {
	executor *OrderExecutor
	exchange exchange.Exchange
	book     *PositionBook
	events   *service.EventService
	risk     config.RiskConfig
	logger   *utils.Logger
	now      func() time.Time
}

// NewStaleEntityJanitor создает janitor протухших сущностей
func NewStaleEntityJanitor(executor *OrderExecutor, ex exchange.Exchange, book *PositionBook, events *service.EventService, risk config.RiskConfig) *StaleEntityJanitor {
	return &StaleEntityJanitor{
		executor: executor,
		exchange: ex,
		book:     book,
		events:   events,
		risk:     risk,
		logger:   utils.L().WithComponent("janitor"),
		now:      time.Now,
	}
}

// SweepStaleOrders отменяет неисполненные limit входы движка старше
// StaleOrderAfter. Чужие ордера (без префикса движка) и защитные
// типы пропускаются. Ошибка отмены одного ордера не прерывает обход
func (j *StaleEntityJanitor) SweepStaleOrders(ctx context.Context) {
	orders, err := j.exchange.GetOpenOrders(ctx, "")
	if err != nil {
		j.logger.Error("Не удалось получить открытые ордера", utils.Err(err))
		SweepsTotal.WithLabelValues("stale_orders", "error").Inc()
		return
	}

	now := j.now().UTC()
	failed := false
	for _, order := range orders {
		if !j.executor.OwnsOrder(order.ClientOrderID) {
			continue
		}
		if order.Type != exchange.OrderTypeLimit || exchange.IsProtectiveType(order.Type) {
			continue
		}
		if order.FilledQty > 0 {
			// Частично исполненный вход - это уже позиция, не мусор
			continue
		}
		if now.Sub(order.CreatedAt) < j.entryTTL(order) {
			continue
		}

		if err := j.exchange.CancelOrder(ctx, order.Symbol, order.ClientOrderID); err != nil {
			failed = true
			j.logger.Error("Не удалось отменить протухший ордер",
				utils.Symbol(order.Symbol),
				utils.OrderID(order.ClientOrderID),
				utils.Err(err))
			continue
		}

		if pos, ok := j.book.Get(order.Symbol); ok && pos.EntryOrderID == order.ClientOrderID {
			// Вместе со входом убираем его защитные ноги и запись в книге
			j.executor.CancelProtective(ctx, pos)
			j.book.Remove(order.Symbol)
			OpenPositions.Set(float64(j.book.Count()))
		}
		j.events.Info(models.EventTypeCancel, order.Symbol,
			fmt.Sprintf("stale entry cancelled after %s", now.Sub(order.CreatedAt).Round(time.Second)),
			map[string]interface{}{"client_order_id": order.ClientOrderID})
		j.logger.Info("Протухший входной ордер отменен",
			utils.Symbol(order.Symbol),
			utils.OrderID(order.ClientOrderID))
	}

	result := "ok"
	if failed {
		result = "error"
	}
	SweepsTotal.WithLabelValues("stale_orders", result).Inc()
}

// entryTTL возвращает срок жизни входного ордера: TTL его уровня риска,
// если вход числится в книге, иначе общий StaleOrderAfter
func (j *StaleEntityJanitor) entryTTL(order *exchange.Order) time.Duration {
	if pos, ok := j.book.Get(order.Symbol); ok && pos.EntryOrderID == order.ClientOrderID {
		if tier, found := models.TierByID(pos.TierID); found && tier.EntryTTL > 0 {
			return tier.EntryTTL
		}
	}
	return j.risk.StaleOrderAfter
}

// SweepStalePositions принудительно закрывает позиции старше PositionTTL.
// Страховка от позиций, переживших все правила жизненного цикла
func (j *StaleEntityJanitor) SweepStalePositions(ctx context.Context) {
	now := j.now().UTC()
	failed := false
	for _, snapshot := range j.book.List() {
		if snapshot.Age(now) <= j.risk.PositionTTL {
			continue
		}
		pos, ok := j.book.Get(snapshot.Symbol)
		if !ok || pos.State == models.StateClosed {
			continue
		}

		j.logger.Warn("Принудительное закрытие позиции по TTL",
			utils.Symbol(pos.Symbol),
			utils.Float64("age_hours", pos.Age(now).Hours()))
		if err := j.executor.ClosePosition(ctx, pos, models.CloseReasonStale); err != nil {
			failed = true
			j.logger.Error("Не удалось закрыть протухшую позицию",
				utils.Symbol(pos.Symbol),
				utils.Err(err))
		}
	}

	result := "ok"
	if failed {
		result = "error"
	}
	SweepsTotal.WithLabelValues("stale_positions", result).Inc()
}
