package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового движка
// ============================================================
//
// Использование:
// - Grafana дашборды для визуализации
// - Alertmanager для уведомлений о проблемах

// ============ Торговые циклы и свипы ============

// CyclesTotal - количество торговых циклов по результату
var CyclesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trader",
		Subsystem: "engine",
		Name:      "cycles_total",
		Help:      "Total number of trade cycles",
	},
	[]string{"result"}, // ok, skipped_halted, skipped_feed, skipped_capacity, error
)

// SweepsTotal - количество свипов монитора и janitor'а
var SweepsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trader",
		Subsystem: "engine",
		Name:      "sweeps_total",
		Help:      "Total number of lifecycle and janitor sweeps",
	},
	[]string{"sweep", "result"}, // sweep: lifecycle, stale_orders, stale_positions
)

// ============ Сигналы ============

// SignalsTotal - количество обработанных сигналов по исходу
var SignalsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trader",
		Subsystem: "engine",
		Name:      "signals_total",
		Help:      "Total number of processed signals",
	},
	[]string{"outcome"}, // accepted, no_tier, position_exists, no_capacity, plan_failed, order_failed
)

// ============ Ордера ============

// OrdersTotal - количество размещенных ордеров по ноге и статусу
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trader",
		Subsystem: "engine",
		Name:      "orders_total",
		Help:      "Total number of submitted orders",
	},
	[]string{"leg", "status"}, // leg: entry, stop_loss, take_profit, breakeven, close; status: ok, failed
)

// OrderExecutionLatency - время размещения ордера на бирже
var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "trader",
		Subsystem: "engine",
		Name:      "order_execution_latency_ms",
		Help:      "Time to submit an order to the exchange in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"leg"},
)

// ============ Позиции ============

// ClosesTotal - количество закрытий позиций по причине
var ClosesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "trader",
		Subsystem: "engine",
		Name:      "position_closes_total",
		Help:      "Total number of closed positions by reason",
	},
	[]string{"reason"}, // hard_stop, signal_flip, decay, stale, protective, manual
)

// OpenPositions - текущее число открытых позиций
var OpenPositions = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "trader",
		Subsystem: "engine",
		Name:      "open_positions",
		Help:      "Current number of open positions",
	},
)

// ============ Маржа ============

// WalletBalance - баланс кошелька в USDT на момент последнего цикла
var WalletBalance = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "trader",
		Subsystem: "engine",
		Name:      "wallet_balance_usdt",
		Help:      "Wallet balance in USDT as of the last trade cycle",
	},
)

// MarginInUse - занятая маржа в USDT на момент последнего цикла
var MarginInUse = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "trader",
		Subsystem: "engine",
		Name:      "margin_in_use_usdt",
		Help:      "Initial margin committed across open positions in USDT",
	},
)

// MarginAvailable - остаток доступной маржи после гейта
var MarginAvailable = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "trader",
		Subsystem: "engine",
		Name:      "margin_available_usdt",
		Help:      "Available margin under the configured cap in USDT",
	},
)
