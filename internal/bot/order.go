package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"trader/internal/config"
	"trader/internal/exchange"
	"trader/internal/models"
	"trader/internal/repository"
	"trader/internal/service"
	"trader/pkg/utils"
)

// Статусы исполнения входа
const (
	StatusSuccess        = "success"         // вход и оба защитных ордера размещены
	StatusPartialSuccess = "partial_success" // вход размещен, часть защитных ног отказала
	StatusFailed         = "failed"          // вход не размещен, позиция не открыта
)

// Имена ног ордерной группы
const (
	LegEntry      = "entry"
	LegStopLoss   = "stop_loss"
	LegTakeProfit = "take_profit"
	LegBreakeven  = "breakeven"
	LegClose      = "close"
)

// LegFailure описывает отказ одной ноги ордерной группы
type LegFailure struct {
	Leg string `json:"leg"`
	Err error  `json:"-"`
}

// ExecutionResult - итог размещения входа с защитными ордерами
type ExecutionResult struct {
	Status      string
	Position    *models.Position
	EntryOrder  *exchange.Order
	StopOrderID string
	TakeOrderID string
	FailedLegs  []LegFailure
}

// OrderExecutor размещает ордерные группы на бирже и ведет журнал исходов.
// Закрытие позиции - тоже ордерная операция, поэтому живет здесь и
// переиспользуется монитором жизненного цикла и janitor'ом
type OrderExecutor struct {
	exchange exchange.Exchange
	book     *PositionBook
	outcomes *repository.OutcomeRepository
	events   *service.EventService
	risk     config.RiskConfig
	logger   *utils.Logger
	now      func() time.Time
}

// NewOrderExecutor создает исполнителя ордеров
func NewOrderExecutor(ex exchange.Exchange, book *PositionBook, outcomes *repository.OutcomeRepository, events *service.EventService, risk config.RiskConfig) *OrderExecutor {
	return &OrderExecutor{
		exchange: ex,
		book:     book,
		outcomes: outcomes,
		events:   events,
		risk:     risk,
		logger:   utils.L().WithComponent("executor"),
		now:      time.Now,
	}
}

// newEntryID генерирует клиентский ID входного ордера: <prefix>-<uuid12>.
// Все производные ордера позиции (sl, tp, be, cls) наследуют этот ID
// как основу, что позволяет janitor'у узнавать свои ордера по префиксу
func (e *OrderExecutor) newEntryID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return e.risk.ClientIDPrefix + "-" + raw[:12]
}

// OwnsOrder проверяет, принадлежит ли клиентский ID этому движку
func (e *OrderExecutor) OwnsOrder(clientOrderID string) bool {
	return strings.HasPrefix(clientOrderID, e.risk.ClientIDPrefix+"-")
}

// entrySide конвертирует направление позиции в сторону входного ордера
func entrySide(positionSide string) string {
	if positionSide == models.SideLong {
		return exchange.SideBuy
	}
	return exchange.SideSell
}

// exitSide конвертирует направление позиции в сторону закрывающего ордера
func exitSide(positionSide string) string {
	if positionSide == models.SideLong {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

// Execute размещает ордерную группу по плану: плечо, вход, затем защитные
// стоп и тейк. Отказ входа фатален, отказ защитной ноги дает
// partial_success - позиция уже открыта и откату не подлежит
func (e *OrderExecutor) Execute(ctx context.Context, plan *OrderPlan) *ExecutionResult {
	result := &ExecutionResult{Status: StatusFailed}
	symbol := plan.Signal.Symbol

	if err := e.exchange.SetLeverage(ctx, symbol, plan.Tier.Leverage); err != nil {
		e.logger.Error("Не удалось установить плечо",
			utils.Symbol(symbol),
			utils.Int("leverage", plan.Tier.Leverage),
			utils.Err(err))
		result.FailedLegs = append(result.FailedLegs, LegFailure{Leg: LegEntry, Err: err})
		return result
	}

	entryID := e.newEntryID()
	entryReq := &exchange.OrderRequest{
		Symbol:        symbol,
		Side:          entrySide(plan.Signal.Side),
		Type:          exchange.OrderTypeMarket,
		Quantity:      plan.Quantity,
		ClientOrderID: entryID,
	}
	if plan.Tier.OrderType == models.OrderTypeLimit {
		entryReq.Type = exchange.OrderTypeLimit
		entryReq.Price = plan.EntryPrice
	}

	entryOrder, err := e.placeLeg(ctx, LegEntry, entryReq)
	if err != nil {
		e.events.Error(models.EventTypeError, symbol,
			fmt.Sprintf("entry order failed: %v", err),
			map[string]interface{}{"tier": plan.Tier.ID, "client_order_id": entryID})
		result.FailedLegs = append(result.FailedLegs, LegFailure{Leg: LegEntry, Err: err})
		return result
	}
	result.EntryOrder = entryOrder

	// Для market входа биржа возвращает фактическую среднюю цену исполнения,
	// защитные уровни считаем от нее, а не от плановой
	entryPrice := plan.EntryPrice
	if entryOrder.AvgFillPrice > 0 {
		entryPrice = entryOrder.AvgFillPrice
	}

	pos := &models.Position{
		Symbol:       symbol,
		Side:         plan.Signal.Side,
		EntryPrice:   entryPrice,
		Quantity:     plan.Quantity,
		Leverage:     plan.Tier.Leverage,
		TierID:       plan.Tier.ID,
		Confidence:   plan.Signal.Confidence,
		OpenedAt:     e.now().UTC(),
		State:        models.StateOpen,
		EntryOrderID: entryID,
	}
	result.Position = pos

	e.events.Info(models.EventTypeEntry, symbol,
		fmt.Sprintf("%s entry placed: qty %v @ %v (tier %d)", plan.Signal.Side, plan.Quantity, entryPrice, plan.Tier.ID),
		map[string]interface{}{
			"tier":            plan.Tier.ID,
			"confidence":      plan.Signal.Confidence,
			"leverage":        plan.Tier.Leverage,
			"client_order_id": entryID,
			"order_type":      entryReq.Type,
		})

	slPrice, tpPrice := ProtectivePrices(entryPrice, plan.Signal.Side, plan.TakeProfitPct, plan.StopLossPct, plan.Rules)
	result.FailedLegs = append(result.FailedLegs, e.placeProtective(ctx, pos, plan, slPrice, tpPrice)...)

	if len(result.FailedLegs) > 0 {
		result.Status = StatusPartialSuccess
		legs := make([]string, 0, len(result.FailedLegs))
		for _, lf := range result.FailedLegs {
			legs = append(legs, lf.Leg)
		}
		e.events.Warn(models.EventTypeWarning, symbol,
			fmt.Sprintf("position open without full protection, failed legs: %s", strings.Join(legs, ", ")),
			map[string]interface{}{"entry_order_id": entryID, "failed_legs": legs})
	} else {
		result.Status = StatusSuccess
	}

	result.StopOrderID = pos.StopOrderID
	result.TakeOrderID = pos.TakeOrderID
	return result
}

// placeProtective размещает стоп и частичный тейк для открытой позиции.
// Возвращает список отказавших ног, пустой список - полный успех
func (e *OrderExecutor) placeProtective(ctx context.Context, pos *models.Position, plan *OrderPlan, slPrice, tpPrice float64) []LegFailure {
	var failed []LegFailure

	if slPrice <= 0 {
		failed = append(failed, LegFailure{Leg: LegStopLoss, Err: fmt.Errorf("non-positive stop price %v", slPrice)})
	} else {
		slReq := &exchange.OrderRequest{
			Symbol:        pos.Symbol,
			Side:          exitSide(pos.Side),
			Type:          exchange.OrderTypeStopMarket,
			Quantity:      pos.Quantity,
			StopPrice:     slPrice,
			ReduceOnly:    true,
			ClientOrderID: pos.EntryOrderID + "-sl",
		}
		if _, err := e.placeLeg(ctx, LegStopLoss, slReq); err != nil {
			failed = append(failed, LegFailure{Leg: LegStopLoss, Err: err})
		} else {
			pos.StopOrderID = slReq.ClientOrderID
		}
	}

	tpQty := utils.RoundToLotSize(pos.Quantity*e.risk.TakeProfit1Frac, plan.Rules.QtyStep)
	switch {
	case tpPrice <= 0:
		failed = append(failed, LegFailure{Leg: LegTakeProfit, Err: fmt.Errorf("non-positive take price %v", tpPrice)})
	case tpQty <= 0:
		failed = append(failed, LegFailure{Leg: LegTakeProfit, Err: fmt.Errorf("take quantity rounds to zero for %v", pos.Quantity)})
	default:
		tpReq := &exchange.OrderRequest{
			Symbol:        pos.Symbol,
			Side:          exitSide(pos.Side),
			Type:          exchange.OrderTypeTakeProfitMarket,
			Quantity:      tpQty,
			StopPrice:     tpPrice,
			ReduceOnly:    true,
			ClientOrderID: pos.EntryOrderID + "-tp",
		}
		if _, err := e.placeLeg(ctx, LegTakeProfit, tpReq); err != nil {
			failed = append(failed, LegFailure{Leg: LegTakeProfit, Err: err})
		} else {
			pos.TakeOrderID = tpReq.ClientOrderID
		}
	}

	if len(failed) == 0 {
		e.events.Info(models.EventTypeProtective, pos.Symbol,
			fmt.Sprintf("protective orders placed: sl %v, tp %v (qty %v)", slPrice, tpPrice, tpQty),
			map[string]interface{}{"entry_order_id": pos.EntryOrderID, "sl_price": slPrice, "tp_price": tpPrice})
	}
	return failed
}

// PlaceBreakevenStop ставит стоп на остаток позиции по цене входа
// после исполнения частичного тейка
func (e *OrderExecutor) PlaceBreakevenStop(ctx context.Context, pos *models.Position, residualQty, priceTick float64) (string, error) {
	req := &exchange.OrderRequest{
		Symbol:        pos.Symbol,
		Side:          exitSide(pos.Side),
		Type:          exchange.OrderTypeStopMarket,
		Quantity:      residualQty,
		StopPrice:     BreakevenPrice(pos.EntryPrice, priceTick),
		ReduceOnly:    true,
		ClientOrderID: pos.EntryOrderID + "-be",
	}
	if _, err := e.placeLeg(ctx, LegBreakeven, req); err != nil {
		return "", err
	}
	return req.ClientOrderID, nil
}

// CancelProtective отменяет защитные ордера позиции. Отказ отмены не
// фатален: ордер мог уже исполниться или быть отмененным биржей
func (e *OrderExecutor) CancelProtective(ctx context.Context, pos *models.Position) {
	for _, clientID := range []string{pos.StopOrderID, pos.TakeOrderID} {
		if clientID == "" {
			continue
		}
		if err := e.exchange.CancelOrder(ctx, pos.Symbol, clientID); err != nil {
			e.logger.Warn("Не удалось отменить защитный ордер",
				utils.Symbol(pos.Symbol),
				utils.OrderID(clientID),
				utils.Err(err))
		}
	}
	pos.StopOrderID = ""
	pos.TakeOrderID = ""
}

// ClosePosition закрывает позицию reduce-only market ордером: отменяет
// защитные ноги, закрывает остаток, фиксирует исход сделки в журнале.
// Ошибка размещения закрывающего ордера возвращается наверх - позиция
// остается в книге и будет закрыта повторной попыткой следующего свипа
func (e *OrderExecutor) ClosePosition(ctx context.Context, pos *models.Position, reason string) error {
	e.CancelProtective(ctx, pos)

	qty, err := e.residualQuantity(ctx, pos)
	if err != nil {
		return fmt.Errorf("close %s: %w", pos.Symbol, err)
	}
	if qty <= 0 {
		// Биржа уже закрыла позицию (полный SL/TP) - фиксируем по mark price
		return e.finalize(ctx, pos, 0, models.CloseReasonProtective)
	}

	req := &exchange.OrderRequest{
		Symbol:        pos.Symbol,
		Side:          exitSide(pos.Side),
		Type:          exchange.OrderTypeMarket,
		Quantity:      qty,
		ReduceOnly:    true,
		ClientOrderID: pos.EntryOrderID + "-cls",
	}
	closeOrder, err := e.placeLeg(ctx, LegClose, req)
	if err != nil {
		e.events.Error(models.EventTypeError, pos.Symbol,
			fmt.Sprintf("close order failed (%s): %v", reason, err),
			map[string]interface{}{"entry_order_id": pos.EntryOrderID, "reason": reason})
		return fmt.Errorf("close %s: %w", pos.Symbol, err)
	}

	return e.finalize(ctx, pos, closeOrder.AvgFillPrice, reason)
}

// residualQuantity возвращает фактический остаток позиции на бирже
func (e *OrderExecutor) residualQuantity(ctx context.Context, pos *models.Position) (float64, error) {
	open, err := e.exchange.GetOpenPositions(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range open {
		if p.Symbol == pos.Symbol {
			return p.Size, nil
		}
	}
	return 0, nil
}

// finalize записывает исход сделки, событие закрытия и убирает позицию из книги
func (e *OrderExecutor) finalize(ctx context.Context, pos *models.Position, exitPrice float64, reason string) error {
	if exitPrice <= 0 {
		if mark, err := e.exchange.GetMarkPrice(ctx, pos.Symbol); err == nil {
			exitPrice = mark
		} else {
			exitPrice = pos.EntryPrice
		}
	}

	now := e.now().UTC()
	pnl := utils.PnlPercent(pos.EntryPrice, exitPrice, pos.IsLong())
	holdHours := pos.Age(now).Hours()

	outcome := &models.TradeOutcome{
		Timestamp:  now,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		PnlPct:     pnl,
		HoldHours:  holdHours,
		Reason:     reason,
	}
	if e.outcomes != nil {
		if err := e.outcomes.Create(outcome); err != nil {
			// Журнал исходов не должен блокировать закрытие
			e.logger.Error("Не удалось записать исход сделки",
				utils.Symbol(pos.Symbol),
				utils.Err(err))
		}
	}

	ClosesTotal.WithLabelValues(reason).Inc()
	e.events.Info(models.EventTypeClose, pos.Symbol,
		fmt.Sprintf("position closed (%s): pnl %.2f%%, held %.1fh", reason, pnl, holdHours),
		map[string]interface{}{
			"reason":     reason,
			"pnl_pct":    pnl,
			"hold_hours": holdHours,
			"exit_price": exitPrice,
		})

	e.logger.Info("Позиция закрыта",
		utils.Symbol(pos.Symbol),
		utils.Side(pos.Side),
		utils.Reason(reason),
		utils.PNL(pnl))

	pos.State = models.StateClosed
	e.book.Remove(pos.Symbol)
	OpenPositions.Set(float64(e.book.Count()))
	return nil
}

// placeLeg размещает одну ногу с метриками латентности и статуса
func (e *OrderExecutor) placeLeg(ctx context.Context, leg string, req *exchange.OrderRequest) (*exchange.Order, error) {
	start := time.Now()
	order, err := e.exchange.PlaceOrder(ctx, req)
	OrderExecutionLatency.WithLabelValues(leg).Observe(float64(time.Since(start).Milliseconds()))

	if err != nil {
		OrdersTotal.WithLabelValues(leg, "failed").Inc()
		e.logger.Error("Ошибка размещения ордера",
			utils.Symbol(req.Symbol),
			utils.String("leg", leg),
			utils.OrderID(req.ClientOrderID),
			utils.Err(err))
		return nil, err
	}

	OrdersTotal.WithLabelValues(leg, "ok").Inc()
	e.logger.Info("Ордер размещен",
		utils.Symbol(req.Symbol),
		utils.String("leg", leg),
		utils.OrderID(req.ClientOrderID),
		utils.Quantity(req.Quantity))
	return order, nil
}
