package utils

import (
	"math"
)

// math.go - математические утилиты для исполнения ордеров
//
// Назначение:
// Округление количеств и цен к шагам, разрешённым биржей, и расчёт PNL.
// Все функции являются чистыми (pure functions) без побочных эффектов.
//
// Функции:
// - RoundToLotSize: округление объёма вниз до шага лота
// - RoundToTick: округление цены к ближайшему тику
// - PnlPercent: процентный PNL позиции с учётом направления

// RoundToLotSize округляет значение ВНИЗ до ближайшего кратного lotSize.
//
// Используется для округления объёма ордера до минимального шага биржи.
// Округление вниз гарантирует, что мы не превысим доступные средства.
//
// Параметры:
//   - value: исходное значение (объём в монетах актива)
//   - lotSize: минимальный шаг изменения объёма на бирже
//
// Возвращает:
//   - Округлённое значение, кратное lotSize
//   - Если lotSize <= 0, возвращает исходное значение
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(1.999, 0.01) = 1.99
//   - RoundToLotSize(100.5, 1.0) = 100.0
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	// math.Floor безопаснее для торговли - не превысим доступные средства
	// Малая поправка компенсирует двоичное представление (0.29/0.001 = 289.99999...)
	return math.Floor(value/lotSize+1e-9) * lotSize
}

// RoundToTick округляет цену к БЛИЖАЙШЕМУ кратному шага цены (tick size).
//
// Биржа отклоняет ордера с ценой, не кратной тику, поэтому любая
// вычисленная цена (стоп, тейк, лимит со смещением) проходит через
// эту функцию перед отправкой.
//
// Функция идемпотентна: повторное округление не меняет результат.
//
// Параметры:
//   - price: исходная цена
//   - tickSize: шаг изменения цены на бирже
//
// Возвращает:
//   - Цена, кратная tickSize; при tickSize <= 0 исходное значение
func RoundToTick(price, tickSize float64) float64 {
	if tickSize <= 0 {
		return price
	}
	return math.Round(price/tickSize) * tickSize
}

// PnlPercent возвращает процентный PNL закрытой позиции.
//
// Для лонга прибыль при росте цены, для шорта - при падении.
//
// Параметры:
//   - entryPrice: цена входа
//   - exitPrice: цена выхода
//   - isLong: направление позиции
//
// Возвращает:
//   - PNL в процентах (2.5 означает +2.5%); 0 при entryPrice <= 0
func PnlPercent(entryPrice, exitPrice float64, isLong bool) float64 {
	if entryPrice <= 0 {
		return 0
	}
	pnl := (exitPrice - entryPrice) / entryPrice * 100
	if !isLong {
		pnl = -pnl
	}
	return pnl
}
