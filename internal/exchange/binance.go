package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"trader/pkg/ratelimit"
	"trader/pkg/retry"
	"trader/pkg/utils"
)

// quoteAsset - базовая валюта аккаунта
const quoteAsset = "USDT"

// rulesCacheTTL - срок жизни кеша торговых правил (exchangeInfo тяжелый, правила меняются редко)
const rulesCacheTTL = 1 * time.Hour

// BinanceOptions - параметры подключения к Binance USDT-M Futures
type BinanceOptions struct {
	APIKey    string
	APISecret string
	Testnet   bool

	RequestsPerSecond float64
	RequestBurst      int
	Retry             retry.Config
}

// Binance реализует Exchange поверх Binance USDT-M Futures REST API
type Binance struct {
	client  *futures.Client
	limiter *ratelimit.RateLimiter
	retry   retry.Config
	logger  *utils.Logger

	// Кеш торговых правил по символам
	rulesMu       sync.RWMutex
	rules         map[string]*SymbolRules
	rulesLoadedAt time.Time
}

// NewBinance создаёт клиент Binance USDT-M Futures
func NewBinance(opts BinanceOptions) *Binance {
	if opts.Testnet {
		futures.UseTestnet = true
	}

	client := binance.NewFuturesClient(opts.APIKey, opts.APISecret)
	// Общий пул соединений с детальными таймаутами вместо дефолтного http.Client
	client.HTTPClient = GetGlobalHTTPClient().GetClient()

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 8
	}

	return &Binance{
		client:  client,
		limiter: ratelimit.NewRateLimiter(rps, float64(opts.RequestBurst)),
		retry:   opts.Retry,
		logger:  utils.L().WithExchange("binance"),
		rules:   make(map[string]*SymbolRules),
	}
}

// GetName возвращает имя биржи
func (b *Binance) GetName() string {
	return "binance"
}

// call выполняет REST вызов с rate limiting и bounded retry
func (b *Binance) call(ctx context.Context, op string, fn func() error) error {
	do := func(ctx context.Context) error {
		if err := b.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		if err := fn(); err != nil {
			if isRetryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		return nil
	}

	if err := retry.Do(ctx, func() error { return do(ctx) }, b.retry); err != nil {
		return b.wrapError(op, err)
	}
	return nil
}

// isRetryable определяет, имеет ли смысл повторять вызов
// Сетевые ошибки и транзиентные коды API повторяются, бизнес-отказы - нет
func isRetryable(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1001, -1003, -1007: // DISCONNECTED, TOO_MANY_REQUESTS, TIMEOUT
			return true
		}
		return false
	}
	// Не-API ошибка - сетевая или транспортная
	return true
}

// wrapError оборачивает ошибку вызова в ExchangeError
func (b *Binance) wrapError(op string, err error) error {
	code := ""
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		code = strconv.FormatInt(apiErr.Code, 10)
	}
	return &ExchangeError{
		Exchange: "binance",
		Code:     code,
		Message:  fmt.Sprintf("%s: %v", op, err),
		Original: err,
	}
}

// GetBalance получает баланс фьючерсного кошелька в USDT
func (b *Binance) GetBalance(ctx context.Context) (float64, error) {
	var balance float64
	err := b.call(ctx, "get balance", func() error {
		balances, err := b.client.NewGetBalanceService().Do(ctx)
		if err != nil {
			return err
		}
		for _, bal := range balances {
			if bal.Asset == quoteAsset {
				balance = parseFloat(bal.Balance)
				return nil
			}
		}
		return fmt.Errorf("%s balance not found", quoteAsset)
	})
	return balance, err
}

// GetMarginInUse получает суммарную начальную маржу открытых позиций
func (b *Binance) GetMarginInUse(ctx context.Context) (float64, error) {
	var margin float64
	err := b.call(ctx, "get margin in use", func() error {
		account, err := b.client.NewGetAccountService().Do(ctx)
		if err != nil {
			return err
		}
		margin = parseFloat(account.TotalInitialMargin)
		return nil
	})
	return margin, err
}

// GetMarkPrice получает mark price символа через premium index
func (b *Binance) GetMarkPrice(ctx context.Context, symbol string) (float64, error) {
	var price float64
	err := b.call(ctx, "get mark price", func() error {
		res, err := b.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
		if err != nil {
			return err
		}
		// API возвращает срез даже при заданном символе
		for _, r := range res {
			if r.Symbol == symbol {
				price = parseFloat(r.MarkPrice)
				return nil
			}
		}
		return fmt.Errorf("mark price for %s not found", symbol)
	})
	return price, err
}

// GetSymbolRules получает торговые правила символа (с кешированием)
func (b *Binance) GetSymbolRules(ctx context.Context, symbol string) (*SymbolRules, error) {
	b.rulesMu.RLock()
	rules, ok := b.rules[symbol]
	fresh := time.Since(b.rulesLoadedAt) < rulesCacheTTL
	b.rulesMu.RUnlock()

	if ok && fresh {
		return rules, nil
	}

	if err := b.refreshRules(ctx); err != nil {
		// При ошибке обновления используем устаревший кеш, если он есть
		if ok {
			return rules, nil
		}
		return nil, err
	}

	b.rulesMu.RLock()
	rules, ok = b.rules[symbol]
	b.rulesMu.RUnlock()

	if !ok {
		return nil, &ExchangeError{
			Exchange: "binance",
			Message:  fmt.Sprintf("symbol %s not found in exchange info", symbol),
		}
	}
	return rules, nil
}

// refreshRules перечитывает exchangeInfo и перестраивает кеш правил
func (b *Binance) refreshRules(ctx context.Context) error {
	var info *futures.ExchangeInfo
	err := b.call(ctx, "get exchange info", func() error {
		res, err := b.client.NewExchangeInfoService().Do(ctx)
		if err != nil {
			return err
		}
		info = res
		return nil
	})
	if err != nil {
		return err
	}

	rules := make(map[string]*SymbolRules, len(info.Symbols))
	for i := range info.Symbols {
		s := &info.Symbols[i]
		rules[s.Symbol] = symbolRulesFromInfo(s)
	}

	b.rulesMu.Lock()
	b.rules = rules
	b.rulesLoadedAt = time.Now()
	b.rulesMu.Unlock()

	b.logger.Debug("exchange rules refreshed", utils.Int("symbols", len(rules)))
	return nil
}

// symbolRulesFromInfo извлекает tick/step фильтры из описания символа
func symbolRulesFromInfo(s *futures.Symbol) *SymbolRules {
	rules := &SymbolRules{Symbol: s.Symbol}

	if f := s.PriceFilter(); f != nil {
		rules.PriceTick = parseFloat(f.TickSize)
	}
	if f := s.LotSizeFilter(); f != nil {
		rules.QtyStep = parseFloat(f.StepSize)
		rules.MinQty = parseFloat(f.MinQuantity)
	}
	if f := s.MinNotionalFilter(); f != nil {
		rules.MinNotional = parseFloat(f.Notional)
	}
	return rules
}

// SetLeverage устанавливает плечо для символа
func (b *Binance) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return b.call(ctx, "set leverage", func() error {
		_, err := b.client.NewChangeLeverageService().
			Symbol(symbol).
			Leverage(leverage).
			Do(ctx)
		return err
	})
}

// PlaceOrder размещает ордер
// Вызов НЕ повторяется при транспортной ошибке: статус выясняется по клиентскому ID,
// повтор с тем же ID биржа отвергла бы как дубликат
func (b *Binance) PlaceOrder(ctx context.Context, req *OrderRequest) (*Order, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, b.wrapError("place order", err)
	}

	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(toBinanceSide(req.Side)).
		Type(toBinanceOrderType(req.Type)).
		Quantity(formatFloat(req.Quantity)).
		NewClientOrderID(req.ClientOrderID).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)

	switch req.Type {
	case OrderTypeLimit:
		svc = svc.Price(formatFloat(req.Price)).TimeInForce(futures.TimeInForceTypeGTC)
	case OrderTypeStopMarket, OrderTypeTakeProfitMarket:
		svc = svc.StopPrice(formatFloat(req.StopPrice))
	}

	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		// Транспортный сбой: ордер мог быть принят, проверяем по клиентскому ID
		if isRetryable(err) {
			if placed, getErr := b.GetOrder(ctx, req.Symbol, req.ClientOrderID); getErr == nil {
				return placed, nil
			}
		}
		return nil, b.wrapError("place order", err)
	}

	return orderFromCreateResponse(res), nil
}

// CancelOrder отменяет ордер по клиентскому идентификатору
func (b *Binance) CancelOrder(ctx context.Context, symbol, clientOrderID string) error {
	return b.call(ctx, "cancel order", func() error {
		_, err := b.client.NewCancelOrderService().
			Symbol(symbol).
			OrigClientOrderID(clientOrderID).
			Do(ctx)
		return err
	})
}

// GetOrder получает ордер по клиентскому идентификатору
func (b *Binance) GetOrder(ctx context.Context, symbol, clientOrderID string) (*Order, error) {
	var order *Order
	err := b.call(ctx, "get order", func() error {
		res, err := b.client.NewGetOrderService().
			Symbol(symbol).
			OrigClientOrderID(clientOrderID).
			Do(ctx)
		if err != nil {
			return err
		}
		order = orderFromBinance(res)
		return nil
	})
	return order, err
}

// GetOpenOrders получает открытые ордера (symbol = "" - по всем символам)
func (b *Binance) GetOpenOrders(ctx context.Context, symbol string) ([]*Order, error) {
	var orders []*Order
	err := b.call(ctx, "get open orders", func() error {
		svc := b.client.NewListOpenOrdersService()
		if symbol != "" {
			svc = svc.Symbol(symbol)
		}
		res, err := svc.Do(ctx)
		if err != nil {
			return err
		}
		orders = make([]*Order, 0, len(res))
		for _, o := range res {
			orders = append(orders, orderFromBinance(o))
		}
		return nil
	})
	return orders, err
}

// GetOpenPositions получает список открытых позиций (нулевые отфильтрованы)
func (b *Binance) GetOpenPositions(ctx context.Context) ([]*Position, error) {
	var positions []*Position
	err := b.call(ctx, "get open positions", func() error {
		res, err := b.client.NewGetPositionRiskService().Do(ctx)
		if err != nil {
			return err
		}
		positions = positions[:0]
		for _, r := range res {
			amt := parseFloat(r.PositionAmt)
			if amt == 0 {
				continue
			}
			positions = append(positions, positionFromRisk(r, amt))
		}
		return nil
	})
	return positions, err
}

// Close закрывает соединения с биржей
func (b *Binance) Close() error {
	CloseGlobalClient()
	return nil
}

// ============================================================================
// Преобразования типов go-binance <-> внутренние
// ============================================================================

func toBinanceSide(side string) futures.SideType {
	if side == SideBuy {
		return futures.SideTypeBuy
	}
	return futures.SideTypeSell
}

func toBinanceOrderType(orderType string) futures.OrderType {
	switch orderType {
	case OrderTypeLimit:
		return futures.OrderTypeLimit
	case OrderTypeStopMarket:
		return futures.OrderTypeStopMarket
	case OrderTypeTakeProfitMarket:
		return futures.OrderTypeTakeProfitMarket
	default:
		return futures.OrderTypeMarket
	}
}

func fromBinanceSide(side futures.SideType) string {
	if side == futures.SideTypeBuy {
		return SideBuy
	}
	return SideSell
}

func fromBinanceOrderType(orderType futures.OrderType) string {
	switch orderType {
	case futures.OrderTypeLimit:
		return OrderTypeLimit
	case futures.OrderTypeStopMarket:
		return OrderTypeStopMarket
	case futures.OrderTypeTakeProfitMarket:
		return OrderTypeTakeProfitMarket
	default:
		return OrderTypeMarket
	}
}

func fromBinanceStatus(status futures.OrderStatusType) string {
	switch status {
	case futures.OrderStatusTypeNew:
		return OrderStatusNew
	case futures.OrderStatusTypePartiallyFilled:
		return OrderStatusPartial
	case futures.OrderStatusTypeFilled:
		return OrderStatusFilled
	case futures.OrderStatusTypeCanceled:
		return OrderStatusCancelled
	case futures.OrderStatusTypeRejected:
		return OrderStatusRejected
	case futures.OrderStatusTypeExpired:
		return OrderStatusExpired
	default:
		return string(status)
	}
}

func orderFromCreateResponse(res *futures.CreateOrderResponse) *Order {
	return &Order{
		ClientOrderID: res.ClientOrderID,
		ExchangeID:    res.OrderID,
		Symbol:        res.Symbol,
		Side:          fromBinanceSide(res.Side),
		Type:          fromBinanceOrderType(res.Type),
		Quantity:      parseFloat(res.OrigQuantity),
		FilledQty:     parseFloat(res.ExecutedQuantity),
		AvgFillPrice:  parseFloat(res.AvgPrice),
		StopPrice:     parseFloat(res.StopPrice),
		Status:        fromBinanceStatus(res.Status),
		ReduceOnly:    res.ReduceOnly,
		CreatedAt:     time.UnixMilli(res.UpdateTime),
		UpdatedAt:     time.UnixMilli(res.UpdateTime),
	}
}

func orderFromBinance(o *futures.Order) *Order {
	return &Order{
		ClientOrderID: o.ClientOrderID,
		ExchangeID:    o.OrderID,
		Symbol:        o.Symbol,
		Side:          fromBinanceSide(o.Side),
		Type:          fromBinanceOrderType(o.Type),
		Quantity:      parseFloat(o.OrigQuantity),
		FilledQty:     parseFloat(o.ExecutedQuantity),
		AvgFillPrice:  parseFloat(o.AvgPrice),
		StopPrice:     parseFloat(o.StopPrice),
		Status:        fromBinanceStatus(o.Status),
		ReduceOnly:    o.ReduceOnly,
		CreatedAt:     time.UnixMilli(o.Time),
		UpdatedAt:     time.UnixMilli(o.UpdateTime),
	}
}

func positionFromRisk(r *futures.PositionRisk, amt float64) *Position {
	side := SideLong
	size := amt
	if amt < 0 {
		side = SideShort
		size = -amt
	}

	leverage := int(parseFloat(r.Leverage))
	mark := parseFloat(r.MarkPrice)

	// Начальная маржа позиции: notional / плечо
	margin := 0.0
	if leverage > 0 {
		margin = size * mark / float64(leverage)
	}

	return &Position{
		Symbol:        r.Symbol,
		Side:          side,
		Size:          size,
		EntryPrice:    parseFloat(r.EntryPrice),
		MarkPrice:     mark,
		Leverage:      leverage,
		UnrealizedPnl: parseFloat(r.UnRealizedProfit),
		InitialMargin: margin,
		UpdatedAt:     time.Now(),
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
