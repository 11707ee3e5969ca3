package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"trader/internal/config"
	"trader/internal/exchange"
	"trader/internal/feed"
	"trader/internal/models"
	"trader/internal/repository"
	"trader/internal/service"
	"trader/pkg/utils"
)

// Engine - торговый движок: превращает внешние сигналы в позиции на
// бирже и сопровождает их до закрытия. Владеет книгой позиций и
// расписанием периодических задач:
//
//   - торговый цикл: feed -> уровень риска -> ордерная группа
//   - свип жизненного цикла позиций
//   - свипы janitor'а по протухшим ордерам и позициям
//   - перечитывание переопределений уровней риска из БД
type Engine struct {
	cfg      *config.Config
	exchange exchange.Exchange
	stream   *exchange.MarkPriceStream // nil - без WebSocket потока цен
	feed     *feed.Client
	book     *PositionBook
	planner  *Planner
	executor *OrderExecutor
	monitor  *LifecycleMonitor
	janitor  *StaleEntityJanitor
	tiers    *service.TierService
	events   *service.EventService
	logger   *utils.Logger

	trading atomic.Bool

	signalsMu   sync.RWMutex
	lastSignals map[string]models.Signal

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine собирает движок из подключений к бирже, источнику сигналов
// и хранилищам. Торговля включена с момента создания
func NewEngine(cfg *config.Config, ex exchange.Exchange, stream *exchange.MarkPriceStream, feedClient *feed.Client, outcomes *repository.OutcomeRepository, events *service.EventService, tiers *service.TierService) *Engine {
	book := NewPositionBook()
	executor := NewOrderExecutor(ex, book, outcomes, events, cfg.Risk)

	e := &Engine{
		cfg:         cfg,
		exchange:    ex,
		stream:      stream,
		feed:        feedClient,
		book:        book,
		planner:     NewPlanner(ex, stream, cfg.Risk.MaxHoldHours),
		executor:    executor,
		janitor:     NewStaleEntityJanitor(executor, ex, book, events, cfg.Risk),
		tiers:       tiers,
		events:      events,
		logger:      utils.L().WithComponent("engine"),
		lastSignals: make(map[string]models.Signal),
	}
	e.monitor = NewLifecycleMonitor(executor, ex, book, events, cfg.Risk, e.LastSignal)
	e.trading.Store(true)
	return e
}

// Start примиряет книгу с биржей, подключает поток цен и запускает
// периодические задачи. Блокирует только на время примирения
func (e *Engine) Start(ctx context.Context) error {
	ctx, e.cancel = context.WithCancel(ctx)

	if err := e.reconcile(ctx); err != nil {
		return fmt.Errorf("reconcile positions: %w", err)
	}

	if e.stream != nil {
		if err := e.stream.Connect(); err != nil {
			// Не фатально: планировщик перейдет на REST, поток переподключится
			e.logger.Warn("Поток mark price недоступен, работаем через REST", utils.Err(err))
		}
	}

	if err := e.tiers.Refresh(); err != nil {
		e.logger.Warn("Не удалось загрузить переопределения уровней риска", utils.Err(err))
	}

	e.runEvery(ctx, "trade_cycle", e.cfg.Bot.TradeCycleInterval, e.tradeCycle)
	e.runEvery(ctx, "lifecycle", e.cfg.Bot.LifecycleInterval, e.monitor.Sweep)
	e.runEvery(ctx, "stale_orders", e.cfg.Bot.StaleOrderInterval, e.janitor.SweepStaleOrders)
	e.runEvery(ctx, "stale_positions", e.cfg.Bot.StalePositionInterval, e.janitor.SweepStalePositions)
	e.runEvery(ctx, "tier_refresh", e.cfg.Bot.TierRefreshInterval, e.tierRefresh)

	e.logger.Info("Движок запущен",
		utils.Int("positions", e.book.Count()),
		utils.Bool("trading", e.trading.Load()))
	return nil
}

// Stop останавливает периодические задачи и поток цен
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if e.stream != nil {
		_ = e.stream.Close()
	}
	e.logger.Info("Движок остановлен")
}

// reconcile наполняет книгу позициями, уже открытыми на бирже.
// У принятых позиций нет исходного сигнала: уверенность ставим
// максимальной, возраст считаем с момента запуска - ими займутся
// жесткий стоп и janitor, а не правило затухания
func (e *Engine) reconcile(ctx context.Context) error {
	open, err := e.exchange.GetOpenPositions(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, p := range open {
		side := models.SideLong
		if p.Side == exchange.SideShort {
			side = models.SideShort
		}
		pos := &models.Position{
			Symbol:       p.Symbol,
			Side:         side,
			EntryPrice:   p.EntryPrice,
			Quantity:     p.Size,
			Leverage:     p.Leverage,
			Confidence:   1.0,
			OpenedAt:     now,
			State:        models.StateOpen,
			EntryOrderID: e.executor.newEntryID(),
		}
		if e.book.Add(pos) {
			e.logger.Info("Принята существующая позиция",
				utils.Symbol(pos.Symbol),
				utils.Side(pos.Side),
				utils.Quantity(pos.Quantity))
		}
	}

	OpenPositions.Set(float64(e.book.Count()))
	return nil
}

// runEvery запускает периодическую задачу с защитой от паники:
// паника одного запуска логируется и не убивает расписание
func (e *Engine) runEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.safeRun(ctx, name, fn)
			}
		}
	}()
}

func (e *Engine) safeRun(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Паника в периодической задаче",
				utils.String("task", name),
				utils.Any("panic", r))
			e.events.Error(models.EventTypeError, "",
				fmt.Sprintf("task %s panicked: %v", name, r), nil)
		}
	}()
	fn(ctx)
}

// tradeCycle - один проход обработки сигналов: feed, емкость маржи,
// размещение ордерных групп по принятым сигналам
func (e *Engine) tradeCycle(ctx context.Context) {
	if !e.trading.Load() {
		CyclesTotal.WithLabelValues("skipped_halted").Inc()
		return
	}

	signals, err := e.feed.Fetch(ctx)
	if err != nil {
		e.logger.Warn("Feed недоступен, цикл пропущен", utils.Err(err))
		CyclesTotal.WithLabelValues("skipped_feed").Inc()
		return
	}
	e.cacheSignals(signals)

	var balance, marginInUse float64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = e.exchange.GetBalance(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		marginInUse, err = e.exchange.GetMarginInUse(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		e.logger.Error("Не удалось получить состояние счета", utils.Err(err))
		e.events.Error(models.EventTypeError, "", fmt.Sprintf("account state unavailable: %v", err), nil)
		CyclesTotal.WithLabelValues("error").Inc()
		return
	}

	WalletBalance.Set(balance)
	MarginInUse.Set(marginInUse)

	gate := NewCapacityGate(balance, marginInUse, e.cfg.Risk.MarginCapPct, e.cfg.Risk.MaxNewPerCycle)
	if !gate.HasCapacity() {
		e.logger.Info("Емкость маржи исчерпана, новые входы пропущены",
			utils.Float64("balance", balance),
			utils.Float64("margin_in_use", marginInUse))
		MarginAvailable.Set(gate.Available())
		CyclesTotal.WithLabelValues("skipped_capacity").Inc()
		return
	}

	for _, signal := range signals {
		e.processSignal(ctx, signal, gate)
		if gate.Opened() >= e.cfg.Risk.MaxNewPerCycle {
			break
		}
	}

	MarginAvailable.Set(gate.Available())
	CyclesTotal.WithLabelValues("ok").Inc()
}

// processSignal проводит один сигнал через гейт, планировщик и исполнителя
func (e *Engine) processSignal(ctx context.Context, signal models.Signal, gate *CapacityGate) {
	if e.book.Has(signal.Symbol) {
		SignalsTotal.WithLabelValues("position_exists").Inc()
		return
	}

	tier, ok := ResolveTier(signal.Confidence)
	if !ok {
		SignalsTotal.WithLabelValues("no_tier").Inc()
		return
	}
	tier = e.tiers.ApplyTo(signal.Symbol, tier)

	margin, ok := gate.TryReserve(tier)
	if !ok {
		SignalsTotal.WithLabelValues("no_capacity").Inc()
		return
	}

	plan, err := e.planner.Plan(ctx, signal, tier, margin)
	if err != nil {
		e.logger.Warn("План входа не составлен",
			utils.Symbol(signal.Symbol),
			utils.TierID(tier.ID),
			utils.Err(err))
		SignalsTotal.WithLabelValues("plan_failed").Inc()
		return
	}

	result := e.executor.Execute(ctx, plan)
	if result.Status == StatusFailed {
		SignalsTotal.WithLabelValues("order_failed").Inc()
		return
	}

	e.book.Add(result.Position)
	OpenPositions.Set(float64(e.book.Count()))
	SignalsTotal.WithLabelValues("accepted").Inc()

	e.logger.Info("Позиция открыта по сигналу",
		utils.Symbol(signal.Symbol),
		utils.Side(signal.Side),
		utils.Confidence(signal.Confidence),
		utils.TierID(tier.ID),
		utils.String("status", result.Status))
}

// cacheSignals сохраняет последний снимок сигналов для правила разворота
func (e *Engine) cacheSignals(signals []models.Signal) {
	fresh := make(map[string]models.Signal, len(signals))
	for _, s := range signals {
		fresh[s.Symbol] = s
	}

	e.signalsMu.Lock()
	e.lastSignals = fresh
	e.signalsMu.Unlock()
}

// LastSignal возвращает последний сигнал по символу из кеша цикла
func (e *Engine) LastSignal(symbol string) (models.Signal, bool) {
	e.signalsMu.RLock()
	defer e.signalsMu.RUnlock()
	s, ok := e.lastSignals[symbol]
	return s, ok
}

// tierRefresh перечитывает переопределения уровней риска из БД
func (e *Engine) tierRefresh(ctx context.Context) {
	if err := e.tiers.Refresh(); err != nil {
		e.logger.Warn("Не удалось обновить переопределения уровней риска", utils.Err(err))
	}
}

// Halt останавливает открытие новых позиций. Сопровождение открытых
// позиций (lifecycle, janitor) продолжает работать
func (e *Engine) Halt(reason string) {
	if !e.trading.CompareAndSwap(true, false) {
		return
	}
	e.events.Warn(models.EventTypeHalt, "", fmt.Sprintf("trading halted: %s", reason), nil)
	e.logger.Warn("Торговля остановлена", utils.Reason(reason))
}

// Resume возобновляет открытие новых позиций
func (e *Engine) Resume() {
	if !e.trading.CompareAndSwap(false, true) {
		return
	}
	e.events.Info(models.EventTypeResume, "", "trading resumed", nil)
	e.logger.Info("Торговля возобновлена")
}

// IsTradingEnabled сообщает, открывает ли движок новые позиции
func (e *Engine) IsTradingEnabled() bool {
	return e.trading.Load()
}

// ActivePositions возвращает снимок открытых позиций
func (e *Engine) ActivePositions() []models.Position {
	return e.book.List()
}
