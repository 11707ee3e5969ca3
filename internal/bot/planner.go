package bot

import (
	"context"
	"errors"
	"fmt"
	"math"

	"trader/internal/exchange"
	"trader/internal/models"
	"trader/pkg/utils"
)

// Ошибки планирования входа
var (
	ErrNoSymbolRules    = errors.New("symbol trading rules unavailable")
	ErrNoMarkPrice      = errors.New("mark price unavailable")
	ErrQuantityTooSmall = errors.New("computed quantity below exchange minimum")
)

// OrderPlan - рассчитанный план входа: цена, объем и процентные цели
type OrderPlan struct {
	Signal models.Signal
	Tier   models.Tier
	Rules  *exchange.SymbolRules

	MarkPrice  float64 // mark price на момент планирования
	EntryPrice float64 // ожидаемая цена входа (для limit - цена с offset)
	Quantity   float64 // объем в монетах, округленный к lot step

	TakeProfitPct float64 // % от цены входа
	StopLossPct   float64 // % от цены входа
}

// Planner рассчитывает параметры входа и защитных ордеров
// из уровня риска и живой mark price с округлением к правилам биржи
type Planner struct {
	exchange  exchange.Exchange
	stream    *exchange.MarkPriceStream // nil - только REST
	holdHours float64                   // горизонт жесткого стопа
}

// NewPlanner создает планировщик
func NewPlanner(ex exchange.Exchange, stream *exchange.MarkPriceStream, holdHours float64) *Planner {
	return &Planner{
		exchange:  ex,
		stream:    stream,
		holdHours: holdHours,
	}
}

// ComputeTargets возвращает процентные цели (в процентах от цены входа):
//
//	tp = baseTP * (0.8 + confidence*0.4) * sqrt(holdHours/3)
//	sl = max(1, 2*tp)
//
// Стоп всегда минимум вдвое дальше тейка и не ближе 1% от входа
func ComputeTargets(baseTPPct, confidence, holdHours float64) (tpPct, slPct float64) {
	tpPct = baseTPPct * (0.8 + confidence*0.4) * math.Sqrt(holdHours/3.0)
	slPct = math.Max(1.0, 2.0*tpPct)
	return tpPct, slPct
}

// markPrice берет цену из WebSocket кеша, при его недоступности - REST запросом
func (p *Planner) markPrice(ctx context.Context, symbol string) (float64, error) {
	if p.stream != nil {
		if price, ok := p.stream.Price(symbol); ok {
			return price, nil
		}
	}

	price, err := p.exchange.GetMarkPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoMarkPrice, err)
	}
	if price <= 0 {
		return 0, ErrNoMarkPrice
	}
	return price, nil
}

// Plan рассчитывает план входа под зарезервированную маржу.
// Невозможность получить правила символа - фатальная ошибка валидации
// для этого сигнала: ордер не размещается
func (p *Planner) Plan(ctx context.Context, signal models.Signal, tier models.Tier, margin float64) (*OrderPlan, error) {
	rules, err := p.exchange.GetSymbolRules(ctx, signal.Symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSymbolRules, err)
	}
	if rules.PriceTick <= 0 || rules.QtyStep <= 0 {
		return nil, fmt.Errorf("%w: degenerate filters for %s", ErrNoSymbolRules, signal.Symbol)
	}

	mark, err := p.markPrice(ctx, signal.Symbol)
	if err != nil {
		return nil, err
	}

	entry := mark
	if tier.OrderType == models.OrderTypeLimit && tier.LimitOffsetPct > 0 {
		// Limit вход с улучшением цены: для long ниже mark, для short выше
		if signal.Side == models.SideLong {
			entry = mark * (1 - tier.LimitOffsetPct/100)
		} else {
			entry = mark * (1 + tier.LimitOffsetPct/100)
		}
	}
	entry = utils.RoundToTick(entry, rules.PriceTick)
	if entry <= 0 {
		return nil, ErrNoMarkPrice
	}

	notional := margin * float64(tier.Leverage)
	quantity := utils.RoundToLotSize(notional/entry, rules.QtyStep)

	if quantity <= 0 || quantity < rules.MinQty {
		return nil, fmt.Errorf("%w: %s qty %v", ErrQuantityTooSmall, signal.Symbol, quantity)
	}
	if rules.MinNotional > 0 && quantity*entry < rules.MinNotional {
		return nil, fmt.Errorf("%w: %s notional %.2f", ErrQuantityTooSmall, signal.Symbol, quantity*entry)
	}

	tpPct, slPct := ComputeTargets(tier.BaseTPPct, signal.Confidence, p.holdHours)

	return &OrderPlan{
		Signal:        signal,
		Tier:          tier,
		Rules:         rules,
		MarkPrice:     mark,
		EntryPrice:    entry,
		Quantity:      quantity,
		TakeProfitPct: tpPct,
		StopLossPct:   slPct,
	}, nil
}

// ProtectivePrices возвращает цены стопа и тейка от фактической цены входа,
// округленные к тику. Стоп строго на убыточной стороне, тейк - на прибыльной
func ProtectivePrices(entryPrice float64, side string, tpPct, slPct float64, rules *exchange.SymbolRules) (slPrice, tpPrice float64) {
	if side == models.SideLong {
		tpPrice = entryPrice * (1 + tpPct/100)
		slPrice = entryPrice * (1 - slPct/100)
	} else {
		tpPrice = entryPrice * (1 - tpPct/100)
		slPrice = entryPrice * (1 + slPct/100)
	}

	tpPrice = utils.RoundToTick(tpPrice, rules.PriceTick)
	slPrice = utils.RoundToTick(slPrice, rules.PriceTick)
	return slPrice, tpPrice
}

// BreakevenPrice возвращает цену breakeven стопа (цена входа, округленная к тику)
func BreakevenPrice(entryPrice, priceTick float64) float64 {
	return utils.RoundToTick(entryPrice, priceTick)
}
