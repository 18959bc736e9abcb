package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// EventType определяет тип публикуемого события
type EventType string

const (
	// Settlement события
	EventTypeSettlementStarted   EventType = "settlement.started"
	EventTypeSettlementCompleted EventType = "settlement.completed"
	EventTypeSettlementFailed    EventType = "settlement.failed"
	EventTypeSettlementDuplicate EventType = "settlement.duplicate"

	// Step события
	EventTypeStepCustomerSynced       EventType = "step.customer_synced"
	EventTypeStepOrderCreated         EventType = "step.order_created"
	EventTypeStepLedgerUpdated        EventType = "step.ledger_updated"
	EventTypeStepInventoryDecremented EventType = "step.inventory_decremented"

	// Order события
	EventTypeOrderCreated EventType = "order.created"
)

// Topics для Kafka
const (
	TopicSettlementRequests = "storefront.settlement.requests"
	TopicSettlementEvents   = "storefront.settlement.events"
	TopicOrderEvents        = "storefront.order.events"
	TopicDeadLetterQueue    = "storefront.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// SettlementRequestLine — позиция входящего settlement запроса.
type SettlementRequestLine struct {
	ProductID  string `json:"product_id"`
	VariantKey string `json:"variant_key"`
	Quantity   int32  `json:"quantity"`
}

// SettlementRequest — подтверждённое платёжное событие, доставленное через
// Kafka вместо HTTP webhook. Подпись не проверяется: доверие обеспечивает
// сам брокер, producer-ом выступает внутренний event bridge.
type SettlementRequest struct {
	SessionID          string                  `json:"session_id"`
	PaymentIntentID    string                  `json:"payment_intent_id,omitempty"`
	CustomerID         string                  `json:"customer_id"`
	BuyerID            string                  `json:"buyer_id"`
	OrderNumber        string                  `json:"order_number"`
	AmountTotalMinor   int64                   `json:"amount_total_minor"`
	DiscountTotalMinor int64                   `json:"discount_total_minor,omitempty"`
	Currency           string                  `json:"currency"`
	Lines              []SettlementRequestLine `json:"lines"`
}

// ToDomain переводит wire-представление в доменное событие.
func (r SettlementRequest) ToDomain() domain.SettlementEvent {
	lines := make([]domain.EventLine, 0, len(r.Lines))
	for _, line := range r.Lines {
		lines = append(lines, domain.EventLine{
			Key:      domain.LineKey{ProductID: line.ProductID, VariantKey: line.VariantKey},
			Quantity: line.Quantity,
		})
	}
	return domain.SettlementEvent{
		SessionID:          r.SessionID,
		PaymentIntentID:    r.PaymentIntentID,
		CustomerID:         r.CustomerID,
		BuyerID:            r.BuyerID,
		OrderNumber:        r.OrderNumber,
		AmountTotalMinor:   r.AmountTotalMinor,
		DiscountTotalMinor: r.DiscountTotalMinor,
		Currency:           r.Currency,
		Lines:              lines,
	}
}

// SettlementLifecycleEvent представляет событие жизненного цикла settlement
type SettlementLifecycleEvent struct {
	EventType EventType              `json:"event_type"`
	SessionID string                 `json:"session_id"`
	OrderID   string                 `json:"order_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// OrderEvent представляет событие заказа
type OrderEvent struct {
	EventType  EventType              `json:"event_type"`
	OrderID    string                 `json:"order_id"`
	CustomerID string                 `json:"customer_id"`
	Status     string                 `json:"status"`
	Timestamp  time.Time              `json:"timestamp"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewSettlementEvent создает новое событие жизненного цикла settlement
func NewSettlementEvent(eventType EventType, sessionID, orderID string, metadata map[string]interface{}) *SettlementLifecycleEvent {
	return &SettlementLifecycleEvent{
		EventType: eventType,
		SessionID: sessionID,
		OrderID:   orderID,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, customerID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType:  eventType,
		OrderID:    orderID,
		CustomerID: customerID,
		Status:     status,
		Timestamp:  time.Now(),
		Metadata:   metadata,
	}
}
