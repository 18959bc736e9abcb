package domain

import "errors"

var (
	// Ошибка отсутствующей подписи webhook или ненастроенного секрета.
	ErrAuthenticationRequired = errors.New("webhook signature or shared secret missing")
	// Ошибка несовпадения криптографической подписи события.
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
	// Ошибка разбора события: обязательные поля отсутствуют или нечитаемы.
	ErrMalformedEvent = errors.New("settlement event is malformed")
	// ErrUpstreamLookup — внешняя идентичность не разрешилась на стороне шлюза.
	ErrUpstreamLookup = errors.New("payment gateway lookup failed")
	// ErrCustomerNotFound — агрегат клиента пропал между sync и обновлением ledger.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrDuplicateOrder — заказ для этой checkout-сессии уже существует.
	ErrDuplicateOrder = errors.New("order already exists for checkout session")
	// ErrInsufficientStock — списание превышает остаток; остаток не изменяется.
	ErrInsufficientStock = errors.New("insufficient stock")
	// Ошибка разбора составного ключа позиции "productID-variantKey".
	ErrInvalidLineFormat = errors.New("invalid line key format")
	// ErrProductNotFound возвращается, если товар не найден в контент-хранилище.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound возвращается, если у товара нет такого варианта.
	ErrVariantNotFound = errors.New("product variant not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrIntentNotFound возвращается, если запись settlement intent отсутствует.
	ErrIntentNotFound = errors.New("settlement intent not found")
	// ErrIntentExists — intent для этой сессии уже создан (конкурентная доставка).
	ErrIntentExists = errors.New("settlement intent already exists")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки инвариантов заказа.
	ErrOrderNumberRequired = errors.New("order_number is required")
	ErrSessionIDRequired   = errors.New("session_id is required")
	ErrCustomerRequired    = errors.New("customer_id is required")
	ErrCurrencyRequired    = errors.New("currency is required")
	ErrLinesRequired       = errors.New("order must contain at least one line")
	ErrLineQtyInvalid      = errors.New("line quantity must be greater than zero")
	ErrLinePriceInvalid    = errors.New("line final price must be non-negative")
	ErrSubtotalMismatch    = errors.New("subtotal does not match sum of line prices")
	ErrTotalMismatch       = errors.New("total does not match subtotal plus tax")
)

// IsDuplicateOrder проверяет, является ли ошибка дублем заказа.
func IsDuplicateOrder(err error) bool {
	return errors.Is(err, ErrDuplicateOrder)
}

// IsInsufficientStock проверяет, является ли ошибка нехваткой остатка.
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock)
}

// IsIntentExists проверяет, что intent для сессии уже был создан ранее.
func IsIntentExists(err error) bool {
	return errors.Is(err, ErrIntentExists)
}

// IsCustomerNotFound проверяет, что агрегат клиента отсутствует.
func IsCustomerNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound)
}

// IsTerminal сообщает, что ошибка не имеет смысла для повторной доставки:
// повтор даст тот же результат без побочных эффектов.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrAuthenticationRequired) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrMalformedEvent) ||
		errors.Is(err, ErrInvalidLineFormat)
}
