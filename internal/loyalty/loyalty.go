// Package loyalty реализует расчёт бонусных баллов по заказу.
//
// Все денежные величины считаются в центах; 100 баллов эквивалентны
// одному доллару скидки, один балл начисляется за каждый целый доллар,
// потраченный после скидки и до налога.
package loyalty

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/orderhub-system/internal/model"
)

// PointsPerUnit — количество баллов, списываемых за доллар скидки.
const PointsPerUnit = 100

// Quote — результат расчёта заказа.
type Quote struct {
	SubtotalCents int64
	TaxCents      int64
	DiscountCents int64
	TotalCents    int64
	PointsUsed    int64
	PointsEarned  int64
}

// Calculate выполняет полный расчёт заказа.
//
// Налог определяется как неотрицательная разница между заявленной суммой
// и подытогом и далее не пересчитывается. Запрошенные баллы ограничиваются
// текущим балансом и округляются вниз до кратного 100.
func Calculate(items []model.OrderItem, declaredTotalCents, requestedPoints, balance int64) Quote {
	subtotal := Subtotal(items)

	tax := declaredTotalCents - subtotal
	if tax < 0 {
		tax = 0
	}

	used := requestedPoints
	if used < 0 {
		used = 0
	}
	if used > balance {
		used = balance
	}
	used -= used % PointsPerUnit

	// 100 баллов = 100 центов скидки, поэтому скидка в центах равна used.
	afterDiscount := subtotal - used
	if afterDiscount < 0 {
		afterDiscount = 0
	}

	return Quote{
		SubtotalCents: subtotal,
		TaxCents:      tax,
		DiscountCents: used,
		TotalCents:    afterDiscount + tax,
		PointsUsed:    used,
		PointsEarned:  afterDiscount / 100,
	}
}

// Subtotal возвращает сумму позиций заказа в центах.
func Subtotal(items []model.OrderItem) int64 {
	var subtotal int64
	for _, it := range items {
		subtotal += it.PriceCents * it.Quantity
	}
	return subtotal
}

// NewBalance возвращает баланс покупателя после применения заказа:
// списанные баллы вычитаются (не ниже нуля), начисленные добавляются.
func (q Quote) NewBalance(balanceBefore int64) int64 {
	b := balanceBefore - q.PointsUsed
	if b < 0 {
		b = 0
	}
	return b + q.PointsEarned
}

// Cents переводит денежную сумму из float64 в центы без накопления
// ошибки плавающей точки.
func Cents(v float64) int64 {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Dollars переводит центы в float64 для внешнего представления.
func Dollars(cents int64) float64 {
	return float64(cents) / 100
}
