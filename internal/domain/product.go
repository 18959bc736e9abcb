package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DealType определяет вид скидки, привязанной к товару.
type DealType string

const (
	// DealTypeBOGO — "buy one get one free": оплачивается ceil(qty/2) единиц.
	DealTypeBOGO DealType = "bogo"
	// DealTypeBundle — N единиц за фиксированную цену, остаток по обычной цене.
	DealTypeBundle DealType = "bundle"
)

// Deal описывает скидку товара. После привязки к продаже не изменяется.
type Deal struct {
	Type DealType
	// QuantityRequired — размер группы для bundle-скидки (> 0).
	QuantityRequired int32
	// DealPrice — цена группы для bundle-скидки (> 0, меньше QuantityRequired × цены единицы).
	DealPrice decimal.Decimal
}

// Valid проверяет, что параметры скидки согласованы с её типом.
func (d Deal) Valid() bool {
	switch d.Type {
	case DealTypeBOGO:
		return true
	case DealTypeBundle:
		return d.QuantityRequired > 0 && d.DealPrice.IsPositive()
	default:
		return false
	}
}

// ProductVariant хранит остаток по конкретному варианту товара.
type ProductVariant struct {
	Key   string
	Stock int32
}

// DefaultVariantKey используется для товаров без явных вариантов.
const DefaultVariantKey = "default"

// Product — товар контент-хранилища. Для этого сервиса товар read-only,
// кроме остатков, которые уменьшает Inventory Decrementer.
type Product struct {
	ID       string
	Name     string
	Slug     string
	Price    decimal.Decimal
	Variants []ProductVariant
	Deal     *Deal
}

// Stock возвращает суммарный остаток по всем вариантам.
func (p Product) Stock() int32 {
	var total int32
	for _, v := range p.Variants {
		total += v.Stock
	}
	return total
}

// CartLine — позиция корзины POS или checkout-сессии. Живёт только в рамках сессии.
type CartLine struct {
	ProductID string
	Quantity  int32
}

// LineKey — составной ключ позиции из метаданных платёжного события:
// "<productID>-<variantKey>".
type LineKey struct {
	ProductID  string
	VariantKey string
}

// String собирает ключ обратно в wire-формат.
func (k LineKey) String() string {
	return k.ProductID + "-" + k.VariantKey
}

// ParseLineKey разбирает составной ключ позиции. Идентификаторы товаров
// содержат дефисы, ключи вариантов — нет, поэтому делим по последнему дефису.
// Возвращает ErrInvalidLineFormat, если ключ не делится на части.
func ParseLineKey(raw string) (LineKey, error) {
	idx := strings.LastIndex(raw, "-")
	if idx <= 0 || idx == len(raw)-1 {
		return LineKey{}, ErrInvalidLineFormat
	}
	return LineKey{ProductID: raw[:idx], VariantKey: raw[idx+1:]}, nil
}
