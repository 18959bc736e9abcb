package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ProductRepository описывает чтение товаров контент-хранилища и
// единственную разрешённую мутацию — условное списание остатка.
type ProductRepository interface {
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(ctx context.Context, id string) (Product, error)
	// GetBySlug возвращает товар по slug (используется POS-терминалом).
	GetBySlug(ctx context.Context, slug string) (Product, error)
	// DecrementStock атомарно уменьшает остаток варианта, только если результат >= 0.
	// Возвращает ErrInsufficientStock, не изменяя остаток, если его не хватает.
	DecrementStock(ctx context.Context, productID, variantKey string, qty int32) error
}

// OrderRepository описывает хранилище заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ. Возвращает ErrDuplicateOrder,
	// если заказ с таким SessionID уже существует.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetBySessionID возвращает заказ по идентификатору checkout-сессии.
	GetBySessionID(ctx context.Context, sessionID string) (Order, error)
	// ListByCustomer возвращает заказы клиента с опциональным ограничением на количество.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
}

// CustomerRepository описывает хранилище агрегатов клиентов.
type CustomerRepository interface {
	// Get возвращает агрегат по идентификатору или ErrCustomerNotFound.
	Get(ctx context.Context, id string) (CustomerAggregate, error)
	// GetByPaymentIdentity ищет агрегат по внешней платёжной идентичности.
	GetByPaymentIdentity(ctx context.Context, identity string) (CustomerAggregate, error)
	// Create сохраняет новый агрегат.
	Create(ctx context.Context, customer CustomerAggregate) error
	// AppendOrder атомарно добавляет ссылку на заказ и увеличивает totalSpent.
	// Append и инкремент выполняются примитивом хранилища, не read-modify-write.
	AppendOrder(ctx context.Context, customerID, orderRef string, orderTotal decimal.Decimal) error
}

// IntentRepository хранит записи settlement intent по ключу сессии.
type IntentRepository interface {
	// Create сохраняет новый intent. Возвращает существующую запись и
	// ErrIntentExists, если сессия уже обрабатывалась.
	Create(ctx context.Context, intent SettlementIntent) (SettlementIntent, error)
	// Get возвращает intent по идентификатору сессии или ErrIntentNotFound.
	Get(ctx context.Context, sessionID string) (SettlementIntent, error)
	// Save перезаписывает состояние intent.
	Save(ctx context.Context, intent SettlementIntent) error
	// DeleteExpired удаляет завершённые записи с истекшим TTL, не более limit за вызов.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// GatewayCustomer — профиль покупателя на стороне платёжного шлюза.
type GatewayCustomer struct {
	ID    string
	Name  string
	Email string
}

// GatewayLineItem — позиция checkout-сессии по данным шлюза.
type GatewayLineItem struct {
	ProductID       string
	Quantity        int32
	UnitAmountMinor int64
}

// PaymentGateway описывает взаимодействие с платёжным шлюзом.
type PaymentGateway interface {
	// FetchCustomer возвращает профиль покупателя по внешнему идентификатору.
	FetchCustomer(ctx context.Context, externalID string) (GatewayCustomer, error)
	// ListLineItems возвращает позиции checkout-сессии.
	ListLineItems(ctx context.Context, sessionID string) ([]GatewayLineItem, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
