package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerAggregate — долговременный агрегат клиента. Создаётся при первом
// появлении внешней платёжной идентичности; изменяется только Ledger Updater
// через append заказа + инкремент totalSpent.
type CustomerAggregate struct {
	ID    string
	Name  string
	Email string
	// PaymentIdentity — идентификатор клиента на стороне платёжного шлюза.
	PaymentIdentity string
	// OrderRefs — ссылки на заказы в порядке добавления.
	OrderRefs []string
	// TotalSpent монотонно не убывает: равен сумме total по заказам агрегата.
	TotalSpent decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
