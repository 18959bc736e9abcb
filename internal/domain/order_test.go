package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// helper для создания базового заказа с двумя позициями.
func makeOrder() domain.Order {
	return domain.Order{
		ID:          "order-1",
		OrderNumber: "SF-1001",
		SessionID:   "cs_test_1",
		CustomerID:  "customer-1",
		Currency:    "usd",
		Lines: []domain.PricedLine{
			{
				ID:         "line-1",
				CartLine:   domain.CartLine{ProductID: "prod-a", Quantity: 1},
				VariantKey: "default",
				UnitPrice:  dec("20"),
				FinalPrice: dec("20"),
			},
			{
				ID:         "line-2",
				CartLine:   domain.CartLine{ProductID: "prod-b", Quantity: 4},
				VariantKey: "default",
				UnitPrice:  dec("5"),
				FinalPrice: dec("10"),
			},
		},
		Subtotal:      dec("30"),
		DiscountTotal: dec("10"),
		Tax:           dec("2.48"),
		Total:         dec("32.48"),
		Status:        domain.OrderStatusPaid,
		CreatedAt:     time.Now().UTC(),
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{
			name: "no order number",
			mut:  func(o *domain.Order) { o.OrderNumber = "" },
			want: domain.ErrOrderNumberRequired,
		},
		{
			name: "no session id",
			mut:  func(o *domain.Order) { o.SessionID = "" },
			want: domain.ErrSessionIDRequired,
		},
		{
			name: "no customer",
			mut:  func(o *domain.Order) { o.CustomerID = "" },
			want: domain.ErrCustomerRequired,
		},
		{
			name: "no currency",
			mut:  func(o *domain.Order) { o.Currency = "" },
			want: domain.ErrCurrencyRequired,
		},
		{
			name: "no lines",
			mut: func(o *domain.Order) {
				o.Lines = nil
				o.Subtotal = decimal.Zero
				o.Tax = decimal.Zero
				o.Total = decimal.Zero
			},
			want: domain.ErrLinesRequired,
		},
		{
			name: "qty invalid",
			mut:  func(o *domain.Order) { o.Lines[0].Quantity = 0 },
			want: domain.ErrLineQtyInvalid,
		},
		{
			name: "negative final price",
			mut:  func(o *domain.Order) { o.Lines[0].FinalPrice = dec("-1") },
			want: domain.ErrLinePriceInvalid,
		},
		{
			name: "subtotal mismatch",
			mut:  func(o *domain.Order) { o.Subtotal = dec("999") },
			want: domain.ErrSubtotalMismatch,
		},
		{
			name: "total mismatch",
			mut:  func(o *domain.Order) { o.Total = dec("1") },
			want: domain.ErrTotalMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors")
			}

			found := false
			for _, err := range errs {
				if err == tc.want {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("expected %v among %v", tc.want, errs)
			}
		})
	}
}
