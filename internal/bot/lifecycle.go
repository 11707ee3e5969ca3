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

// Границы доли исполнения тейка, в которых срабатывание считается
// частичным (первый тейк забирает около половины позиции)
const (
	partialFillLow  = 0.40
	partialFillHigh = 0.60
)

// SignalLookup возвращает последний известный сигнал по символу
type SignalLookup func(symbol string) (models.Signal, bool)

// LifecycleMonitor периодически проверяет открытые позиции и применяет
// правила выхода в строгом порядке приоритета:
//
//  1. hard stop - превышен максимальный срок удержания
//  2. signal flip - свежий уверенный сигнал противоположного направления
//  3. decay - затухшая уверенность ниже порога закрытия
//  4. partial take - первый тейк исполнен, остаток под breakeven стоп
//
// За один свип к позиции применяется не более одного правила.
// Неудачное закрытие не снимает позицию с учета - правило сработает
// повторно на следующем свипе
type LifecycleMonitor struct {
	executor  *OrderExecutor
	exchange  exchange.Exchange
	book      *PositionBook
	events    *service.EventService
	risk      config.RiskConfig
	signalFor SignalLookup
	logger    *utils.Logger
	now       func() time.Time
}

// NewLifecycleMonitor создает монитор жизненного цикла позиций
func NewLifecycleMonitor(executor *OrderExecutor, ex exchange.Exchange, book *PositionBook, events *service.EventService, risk config.RiskConfig, signalFor SignalLookup) *LifecycleMonitor {
	return &LifecycleMonitor{
		executor:  executor,
		exchange:  ex,
		book:      book,
		events:    events,
		risk:      risk,
		signalFor: signalFor,
		logger:    utils.L().WithComponent("lifecycle"),
		now:       time.Now,
	}
}

// Sweep обходит все позиции книги и применяет к каждой первое
// сработавшее правило. Ошибка по одной позиции не прерывает обход
func (m *LifecycleMonitor) Sweep(ctx context.Context) {
	symbols := make([]string, 0, m.book.Count())
	for _, pos := range m.book.List() {
		symbols = append(symbols, pos.Symbol)
	}
	if len(symbols) == 0 {
		SweepsTotal.WithLabelValues("lifecycle", "ok").Inc()
		return
	}

	// Снимок позиций на бирже для обнаружения закрытий защитными ордерами
	onExchange := make(map[string]float64)
	open, err := m.exchange.GetOpenPositions(ctx)
	if err != nil {
		m.logger.Error("Не удалось получить позиции с биржи", utils.Err(err))
		SweepsTotal.WithLabelValues("lifecycle", "error").Inc()
		return
	}
	for _, p := range open {
		onExchange[p.Symbol] = p.Size
	}

	failed := false
	for _, symbol := range symbols {
		pos, ok := m.book.Get(symbol)
		if !ok || pos.State == models.StateClosed {
			continue
		}
		if err := m.checkPosition(ctx, pos, onExchange); err != nil {
			failed = true
			m.logger.Error("Ошибка обработки позиции",
				utils.Symbol(symbol),
				utils.State(pos.State),
				utils.Err(err))
		}
	}

	result := "ok"
	if failed {
		result = "error"
	}
	SweepsTotal.WithLabelValues("lifecycle", result).Inc()
}

// checkPosition применяет к позиции первое сработавшее правило
func (m *LifecycleMonitor) checkPosition(ctx context.Context, pos *models.Position, onExchange map[string]float64) error {
	now := m.now().UTC()
	age := pos.Age(now)

	// Позиции больше нет на бирже - защитный ордер закрыл ее целиком
	if size, present := onExchange[pos.Symbol]; !present || size <= 0 {
		return m.executor.ClosePosition(ctx, pos, models.CloseReasonProtective)
	}

	if age.Hours() >= m.risk.MaxHoldHours {
		m.logger.Info("Жесткий стоп по сроку удержания",
			utils.Symbol(pos.Symbol),
			utils.Float64("age_hours", age.Hours()))
		return m.executor.ClosePosition(ctx, pos, models.CloseReasonHardStop)
	}

	if sig, ok := m.signalFor(pos.Symbol); ok {
		if sig.Side == models.OppositeSide(pos.Side) && sig.Confidence >= m.risk.FlipMinConf {
			m.logger.Info("Разворот сигнала",
				utils.Symbol(pos.Symbol),
				utils.Side(sig.Side),
				utils.Confidence(sig.Confidence))
			return m.executor.ClosePosition(ctx, pos, models.CloseReasonSignalFlip)
		}
	}

	if decayed := DecayedConfidence(pos.Confidence, age, m.risk.DecayHalfLife); decayed < m.risk.DecayCloseBelow {
		m.logger.Info("Уверенность затухла",
			utils.Symbol(pos.Symbol),
			utils.Confidence(decayed))
		return m.executor.ClosePosition(ctx, pos, models.CloseReasonDecay)
	}

	if pos.State == models.StateOpen && pos.TakeOrderID != "" {
		return m.checkPartialTake(ctx, pos)
	}
	return nil
}

// checkPartialTake проверяет исполнение первого тейка. При срабатывании
// отменяет исходный стоп, ставит breakeven стоп на остаток и переводит
// позицию в REDUCING. Переход выполняется ровно один раз
func (m *LifecycleMonitor) checkPartialTake(ctx context.Context, pos *models.Position) error {
	order, err := m.exchange.GetOrder(ctx, pos.Symbol, pos.TakeOrderID)
	if err != nil {
		return fmt.Errorf("take order lookup: %w", err)
	}

	ratio := 0.0
	if pos.Quantity > 0 {
		ratio = order.FilledQty / pos.Quantity
	}
	triggered := order.Status == exchange.OrderStatusFilled ||
		(ratio >= partialFillLow && ratio <= partialFillHigh)
	if !triggered {
		return nil
	}

	rules, err := m.exchange.GetSymbolRules(ctx, pos.Symbol)
	if err != nil {
		return fmt.Errorf("symbol rules: %w", err)
	}

	residual := utils.RoundToLotSize(pos.Quantity-order.FilledQty, rules.QtyStep)
	if residual <= 0 {
		// Тейк забрал все - закрытие зафиксирует следующий свип по снимку биржи
		return nil
	}

	m.executor.CancelProtective(ctx, pos)

	beID, err := m.executor.PlaceBreakevenStop(ctx, pos, residual, rules.PriceTick)
	if err != nil {
		m.events.Warn(models.EventTypeWarning, pos.Symbol,
			fmt.Sprintf("breakeven stop failed after partial take: %v", err),
			map[string]interface{}{"entry_order_id": pos.EntryOrderID, "residual": residual})
		// Состояние все равно меняем: тейк исполнен, повторная установка
		// breakeven стопа отдельным правилом не предусмотрена
	} else {
		pos.StopOrderID = beID
	}
	pos.TakeOrderID = ""

	if !m.book.SetState(pos.Symbol, models.StateReducing) {
		return fmt.Errorf("invalid transition %s -> %s", pos.State, models.StateReducing)
	}
	pos.State = models.StateReducing

	m.events.Info(models.EventTypeReduce, pos.Symbol,
		fmt.Sprintf("partial take filled (%.0f%%), residual %v under breakeven stop", ratio*100, residual),
		map[string]interface{}{
			"entry_order_id": pos.EntryOrderID,
			"filled_qty":     order.FilledQty,
			"residual":       residual,
		})
	return nil
}
