// Package pricing реализует детерминированный расчёт цен корзины.
// Функции чистые, без I/O: одинаковые входы всегда дают одинаковый результат,
// что требуется и для live-отображения в POS, и для перепроверки сумм
// во время settlement.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// taxRate — единая фиксированная налоговая ставка (8.25%).
var taxRate = decimal.RequireFromString("0.0825")

// Totals — суммы корзины. Округление до 2 знаков применяется один раз,
// на границе subtotal/tax, а не по промежуточным группам, чтобы не копить дрейф.
type Totals struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// PriceLine считает итоговую цену позиции с учётом скидки.
// Количество ≥ 1 и ≤ остатка гарантирует вызывающая сторона; остаток
// движок не проверяет. Количество < 1 оценивается в ноль.
func PriceLine(unitPrice decimal.Decimal, deal *domain.Deal, qty int32) decimal.Decimal {
	if qty < 1 {
		return decimal.Zero
	}

	qtyDec := decimal.NewFromInt32(qty)
	if deal == nil {
		return unitPrice.Mul(qtyDec)
	}

	switch deal.Type {
	case domain.DealTypeBOGO:
		// Оплачивается ceil(qty/2) единиц; формула фиксирована, других
		// параметров у BOGO в модели данных нет.
		payable := (qty + 1) / 2
		return unitPrice.Mul(decimal.NewFromInt32(payable))
	case domain.DealTypeBundle:
		if deal.QuantityRequired < 1 {
			return unitPrice.Mul(qtyDec)
		}
		groups := qty / deal.QuantityRequired
		remainder := qty % deal.QuantityRequired
		return deal.DealPrice.Mul(decimal.NewFromInt32(groups)).
			Add(unitPrice.Mul(decimal.NewFromInt32(remainder)))
	default:
		return unitPrice.Mul(qtyDec)
	}
}

// PriceCart считает суммы корзины по уже оценённым позициям:
// subtotal = сумма FinalPrice, tax = round2(subtotal × 0.0825), total = subtotal + tax.
func PriceCart(lines []domain.PricedLine) Totals {
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.FinalPrice)
	}

	tax := subtotal.Mul(taxRate).Round(2)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// DiscountTotal считает суммарную скидку корзины: разницу между ценой
// без скидок (unit × qty) и итогом по позициям.
func DiscountTotal(lines []domain.PricedLine) decimal.Decimal {
	discount := decimal.Zero
	for _, line := range lines {
		full := line.UnitPrice.Mul(decimal.NewFromInt32(line.Quantity))
		discount = discount.Add(full.Sub(line.FinalPrice))
	}
	return discount
}
