package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, подтверждение оплаты ещё не получено.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid — оплата подтверждена платёжным шлюзом.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed — settlement завершился ошибкой.
	OrderStatusFailed OrderStatus = "failed"
)

// PricedLine — позиция корзины с рассчитанной Pricing Engine итоговой ценой.
// Отдельно не хранится, только внутри заказа.
type PricedLine struct {
	// ID позиции нужен для однозначной идентификации и аудита.
	ID string
	CartLine
	VariantKey string
	// UnitPrice — цена единицы на момент продажи.
	UnitPrice decimal.Decimal
	// FinalPrice — итог по позиции с учётом скидки.
	FinalPrice decimal.Decimal
}

// Order агрегирует результат settlement: позиции, суммы и ссылку на клиента.
// После создания изменяется только статус.
type Order struct {
	ID          string
	OrderNumber string
	// SessionID — идентификатор checkout-сессии платёжного шлюза.
	// Уникален: служит ключом идемпотентности settlement.
	SessionID       string
	PaymentIntentID string
	CustomerID      string
	// BuyerID — идентификатор аккаунта покупателя, записанный шлюзом
	// при создании checkout-сессии. Хранится для аудита рядом с CustomerID.
	BuyerID       string
	Lines         []PricedLine
	Subtotal      decimal.Decimal
	DiscountTotal decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
	Currency      string
	Status        OrderStatus
	CreatedAt     time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.OrderNumber == "" {
		errs = append(errs, ErrOrderNumberRequired)
	}
	if o.SessionID == "" {
		errs = append(errs, ErrSessionIDRequired)
	}
	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Lines) == 0 {
		errs = append(errs, ErrLinesRequired)
	}

	// Сверяем subtotal с суммой позиций и total с subtotal + tax.
	sum := decimal.Zero
	for _, line := range o.Lines {
		if line.Quantity < 1 {
			errs = append(errs, ErrLineQtyInvalid)
		}
		if line.FinalPrice.IsNegative() {
			errs = append(errs, ErrLinePriceInvalid)
		}
		sum = sum.Add(line.FinalPrice)
	}
	if !sum.Equal(o.Subtotal) {
		errs = append(errs, ErrSubtotalMismatch)
	}
	if !o.Subtotal.Add(o.Tax).Equal(o.Total) {
		errs = append(errs, ErrTotalMismatch)
	}

	return errs
}
