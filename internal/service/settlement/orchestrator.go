package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/pricing"
)

// defaultStepTimeout ограничивает каждый шаг settlement по времени.
const defaultStepTimeout = 5 * time.Second

// intentTTL — срок хранения завершённых intent до очистки фоновым воркером.
const intentTTL = 24 * time.Hour

// amountTolerance — допустимое расхождение между суммой шлюза и пересчётом.
var amountTolerance = decimal.RequireFromString("0.01")

// Result — итог обработки одного события settlement.
type Result struct {
	OrderID string
	// Duplicate выставляется, когда событие уже было обработано до конца
	// и никаких побочных эффектов не производилось.
	Duplicate bool
	State     domain.SettlementState
}

// Orchestrator описывает интерфейс обработки событий подтверждения оплаты.
type Orchestrator interface {
	Settle(ctx context.Context, event domain.SettlementEvent) (Result, error)
}

// orchestrator реализует последовательность шагов settlement:
// CustomerSync → OrderCreate → LedgerUpdate → InventoryDecrement.
// Прогресс фиксируется в SettlementIntent, поэтому повторная доставка
// события возобновляет обработку с первого незавершённого шага.
type orchestrator struct {
	products      domain.ProductRepository
	orders        domain.OrderRepository
	customers     domain.CustomerRepository
	intents       domain.IntentRepository
	gateway       domain.PaymentGateway
	outbox        domain.OutboxRepository
	logger        *log.Entry
	metrics       *metrics.SettlementMetrics
	kafkaProducer *kafka.Producer // опциональный Kafka producer для event-driven архитектуры
	stepTimeout   time.Duration
}

// NewOrchestrator создаёт рабочий экземпляр оркестратора.
func NewOrchestrator(
	products domain.ProductRepository,
	orders domain.OrderRepository,
	customers domain.CustomerRepository,
	intents domain.IntentRepository,
	gateway domain.PaymentGateway,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "settlement")
	}
	return &orchestrator{
		products:    products,
		orders:      orders,
		customers:   customers,
		intents:     intents,
		gateway:     gateway,
		outbox:      outbox,
		logger:      logger,
		metrics:     metrics.NewSettlementMetrics(),
		stepTimeout: defaultStepTimeout,
	}
}

// NewOrchestratorWithKafka создаёт оркестратор с Kafka producer для event-driven архитектуры.
func NewOrchestratorWithKafka(
	products domain.ProductRepository,
	orders domain.OrderRepository,
	customers domain.CustomerRepository,
	intents domain.IntentRepository,
	gateway domain.PaymentGateway,
	outbox domain.OutboxRepository,
	kafkaProducer *kafka.Producer,
	logger *log.Entry,
) Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "settlement")
	}
	return &orchestrator{
		products:      products,
		orders:        orders,
		customers:     customers,
		intents:       intents,
		gateway:       gateway,
		outbox:        outbox,
		logger:        logger,
		metrics:       metrics.NewSettlementMetrics(),
		kafkaProducer: kafkaProducer,
		stepTimeout:   defaultStepTimeout,
	}
}

// NewOrchestratorWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewOrchestratorWithoutMetrics(
	products domain.ProductRepository,
	orders domain.OrderRepository,
	customers domain.CustomerRepository,
	intents domain.IntentRepository,
	gateway domain.PaymentGateway,
	outbox domain.OutboxRepository,
	logger *log.Entry,
) Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "settlement")
	}
	return &orchestrator{
		products:    products,
		orders:      orders,
		customers:   customers,
		intents:     intents,
		gateway:     gateway,
		outbox:      outbox,
		logger:      logger,
		metrics:     nil, // Отключаем метрики для тестов
		stepTimeout: defaultStepTimeout,
	}
}

// Settle обрабатывает подтверждённое событие оплаты. Метод идемпотентен
// по SessionID: завершённое событие возвращает Duplicate без побочных эффектов,
// оборванное — возобновляется с первого незавершённого шага.
func (o *orchestrator) Settle(ctx context.Context, event domain.SettlementEvent) (Result, error) {
	start := time.Now()
	if o.metrics != nil {
		o.metrics.RecordSettlementStarted()
	}
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordSettlementFinished()
			o.metrics.RecordSettlementDuration(time.Since(start))
		}
	}()

	now := time.Now().UTC()
	intent := domain.SettlementIntent{
		SessionID: event.SessionID,
		State:     domain.StateVerified,
		TTLAt:     now.Add(intentTTL),
		CreatedAt: now,
		UpdatedAt: now,
	}

	existing, err := o.intents.Create(ctx, intent)
	switch {
	case err == nil:
	case domain.IsIntentExists(err):
		if existing.State == domain.StateCompleted {
			o.logger.WithField("session_id", event.SessionID).Info("settlement already completed, skipping")
			if o.metrics != nil {
				o.metrics.RecordSettlementDuplicate()
			}
			o.publishLifecycleEvent(kafka.EventTypeSettlementDuplicate, event.SessionID, existing.OrderID, nil)
			return Result{OrderID: existing.OrderID, Duplicate: true, State: existing.State}, nil
		}
		o.logger.WithFields(log.Fields{
			"session_id": event.SessionID,
			"state":      existing.State,
			"failed_at":  existing.FailedAt,
		}).Info("resuming interrupted settlement")
		intent = existing
	default:
		o.logger.WithError(err).WithField("session_id", event.SessionID).Error("failed to persist settlement intent")
		return Result{}, err
	}

	o.publishLifecycleEvent(kafka.EventTypeSettlementStarted, event.SessionID, "", map[string]interface{}{
		"customer_identity": event.CustomerID,
		"amount_minor":      event.AmountTotalMinor,
		"currency":          event.Currency,
	})

	if err := o.syncCustomer(ctx, &intent, event); err != nil {
		return o.fail(ctx, &intent, domain.StateCustomerSynced, err)
	}
	if err := o.createOrder(ctx, &intent, event); err != nil {
		return o.fail(ctx, &intent, domain.StateOrderCreated, err)
	}
	if err := o.updateLedger(ctx, &intent); err != nil {
		return o.fail(ctx, &intent, domain.StateLedgerUpdated, err)
	}
	if err := o.decrementInventory(ctx, &intent, event); err != nil {
		return o.fail(ctx, &intent, domain.StateInventoryDecremented, err)
	}

	if err := o.advance(ctx, &intent, domain.StateCompleted); err != nil {
		return Result{}, err
	}
	if o.metrics != nil {
		o.metrics.RecordSettlementCompleted()
	}
	o.logger.WithFields(log.Fields{
		"session_id": event.SessionID,
		"order_id":   intent.OrderID,
	}).Info("settlement completed successfully")
	o.publishLifecycleEvent(kafka.EventTypeSettlementCompleted, event.SessionID, intent.OrderID, map[string]interface{}{
		"customer_id": intent.CustomerID,
	})
	return Result{OrderID: intent.OrderID, State: intent.State}, nil
}

// syncCustomer находит или создаёт агрегат клиента по платёжной идентичности.
func (o *orchestrator) syncCustomer(ctx context.Context, intent *domain.SettlementIntent, event domain.SettlementEvent) error {
	if intent.State.Reached(domain.StateCustomerSynced) {
		return nil
	}
	defer o.observeStep("customer_sync", time.Now())

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	profile, err := o.gateway.FetchCustomer(stepCtx, event.CustomerID)
	if err != nil {
		o.logger.WithError(err).WithField("session_id", event.SessionID).Warn("gateway customer lookup failed")
		return fmt.Errorf("%w: %v", domain.ErrUpstreamLookup, err)
	}

	customer, err := o.customers.GetByPaymentIdentity(stepCtx, profile.ID)
	switch {
	case err == nil:
	case domain.IsCustomerNotFound(err):
		customer = domain.CustomerAggregate{
			ID:              uuid.NewString(),
			Name:            profile.Name,
			Email:           profile.Email,
			PaymentIdentity: profile.ID,
			TotalSpent:      decimal.Zero,
			CreatedAt:       time.Now().UTC(),
			UpdatedAt:       time.Now().UTC(),
		}
		if err := o.customers.Create(stepCtx, customer); err != nil {
			return err
		}
		o.logger.WithFields(log.Fields{
			"session_id":  event.SessionID,
			"customer_id": customer.ID,
		}).Info("customer aggregate created")
	default:
		return err
	}

	intent.CustomerID = customer.ID
	if err := o.advance(ctx, intent, domain.StateCustomerSynced); err != nil {
		return err
	}
	o.publishLifecycleEvent(kafka.EventTypeStepCustomerSynced, event.SessionID, "", map[string]interface{}{
		"customer_id": customer.ID,
	})
	return nil
}

// createOrder пересчитывает позиции события через Pricing Engine и сохраняет заказ.
// При гонке с параллельной доставкой принимает уже созданный заказ этой же сессии.
func (o *orchestrator) createOrder(ctx context.Context, intent *domain.SettlementIntent, event domain.SettlementEvent) error {
	if intent.State.Reached(domain.StateOrderCreated) {
		return nil
	}
	defer o.observeStep("order_create", time.Now())

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	lines := make([]domain.PricedLine, 0, len(event.Lines))
	for _, eventLine := range event.Lines {
		product, err := o.products.Get(stepCtx, eventLine.Key.ProductID)
		if err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"session_id": event.SessionID,
				"product_id": eventLine.Key.ProductID,
			}).Warn("product lookup failed during order create")
			return err
		}
		lines = append(lines, domain.PricedLine{
			ID: uuid.NewString(),
			CartLine: domain.CartLine{
				ProductID: product.ID,
				Quantity:  eventLine.Quantity,
			},
			VariantKey: eventLine.Key.VariantKey,
			UnitPrice:  product.Price,
			FinalPrice: pricing.PriceLine(product.Price, product.Deal, eventLine.Quantity),
		})
	}

	discountTotal := pricing.DiscountTotal(lines)
	totals := pricing.PriceCart(lines)
	o.checkAmount(event, totals, discountTotal)
	o.crossCheckLines(stepCtx, event)

	orderNumber := event.OrderNumber
	if orderNumber == "" {
		orderNumber = "ORD-" + uuid.NewString()[:8]
	}

	order := domain.Order{
		ID:              uuid.NewString(),
		OrderNumber:     orderNumber,
		SessionID:       event.SessionID,
		PaymentIntentID: event.PaymentIntentID,
		CustomerID:      intent.CustomerID,
		BuyerID:         event.BuyerID,
		Lines:           lines,
		Subtotal:        totals.Subtotal,
		DiscountTotal:   discountTotal,
		Tax:             totals.Tax,
		Total:           totals.Total,
		Currency:        event.Currency,
		Status:          domain.OrderStatusPaid,
		CreatedAt:       time.Now().UTC(),
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		o.logger.WithFields(log.Fields{
			"session_id": event.SessionID,
			"violations": errs,
		}).Error("order invariants violated")
		return errs[0]
	}

	if err := o.orders.Create(stepCtx, order); err != nil {
		if !domain.IsDuplicateOrder(err) {
			return err
		}
		// Гонка двух доставок одного события: заказ уже создан другой
		// горутиной, принимаем его и продолжаем с него.
		adopted, getErr := o.orders.GetBySessionID(stepCtx, event.SessionID)
		if getErr != nil {
			return getErr
		}
		order = adopted
		o.logger.WithFields(log.Fields{
			"session_id": event.SessionID,
			"order_id":   order.ID,
		}).Info("adopting order created by concurrent delivery")
	}

	intent.OrderID = order.ID
	if err := o.advance(ctx, intent, domain.StateOrderCreated); err != nil {
		return err
	}
	o.emitOrderEvent(order)
	o.publishLifecycleEvent(kafka.EventTypeStepOrderCreated, event.SessionID, order.ID, map[string]interface{}{
		"order_number": order.OrderNumber,
		"total":        order.Total.String(),
		"currency":     order.Currency,
	})
	return nil
}

// updateLedger добавляет ссылку на заказ в агрегат клиента и увеличивает totalSpent.
func (o *orchestrator) updateLedger(ctx context.Context, intent *domain.SettlementIntent) error {
	if intent.State.Reached(domain.StateLedgerUpdated) {
		return nil
	}
	defer o.observeStep("ledger_update", time.Now())

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	order, err := o.orders.Get(stepCtx, intent.OrderID)
	if err != nil {
		return err
	}
	if err := o.customers.AppendOrder(stepCtx, intent.CustomerID, order.ID, order.Total); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"session_id":  intent.SessionID,
			"customer_id": intent.CustomerID,
		}).Warn("ledger update failed")
		return err
	}

	if err := o.advance(ctx, intent, domain.StateLedgerUpdated); err != nil {
		return err
	}
	o.publishLifecycleEvent(kafka.EventTypeStepLedgerUpdated, intent.SessionID, order.ID, map[string]interface{}{
		"customer_id": intent.CustomerID,
		"total":       order.Total.String(),
	})
	return nil
}

// decrementInventory списывает остатки по каждой позиции независимо.
// Каждое успешное списание фиксируется в intent до перехода к следующей позиции,
// поэтому resume не списывает одну позицию дважды.
func (o *orchestrator) decrementInventory(ctx context.Context, intent *domain.SettlementIntent, event domain.SettlementEvent) error {
	if intent.State.Reached(domain.StateInventoryDecremented) {
		return nil
	}
	defer o.observeStep("inventory_decrement", time.Now())

	stepCtx, cancel := context.WithTimeout(ctx, o.stepTimeout)
	defer cancel()

	for _, line := range event.Lines {
		key := line.Key.String()
		if intent.LineDecremented(key) {
			continue
		}
		if err := o.products.DecrementStock(stepCtx, line.Key.ProductID, line.Key.VariantKey, line.Quantity); err != nil {
			o.logger.WithError(err).WithFields(log.Fields{
				"session_id": event.SessionID,
				"line_key":   key,
				"quantity":   line.Quantity,
			}).Warn("stock decrement failed")
			return err
		}
		intent.MarkLineDecremented(key)
		if err := o.intents.Save(ctx, *intent); err != nil {
			return err
		}
	}

	if err := o.advance(ctx, intent, domain.StateInventoryDecremented); err != nil {
		return err
	}
	o.publishLifecycleEvent(kafka.EventTypeStepInventoryDecremented, event.SessionID, intent.OrderID, map[string]interface{}{
		"lines": len(event.Lines),
	})
	return nil
}

// checkAmount сверяет суммы события шлюза с детерминированным пересчётом.
// Расхождение не прерывает settlement: суммы шлюза могли быть рассчитаны
// по ценам на момент checkout, пересчёт — по текущим.
func (o *orchestrator) checkAmount(event domain.SettlementEvent, totals pricing.Totals, discountTotal decimal.Decimal) {
	if event.AmountTotalMinor != 0 {
		gatewayTotal := decimal.New(event.AmountTotalMinor, -2)
		diff := gatewayTotal.Sub(totals.Total).Abs()
		if diff.GreaterThan(amountTolerance) {
			o.logger.WithFields(log.Fields{
				"session_id":     event.SessionID,
				"gateway_total":  gatewayTotal.String(),
				"computed_total": totals.Total.String(),
			}).Warn("gateway amount does not match recomputed totals")
			if o.metrics != nil {
				o.metrics.RecordAmountMismatch()
			}
		}
	}

	if event.DiscountTotalMinor != 0 {
		gatewayDiscount := decimal.New(event.DiscountTotalMinor, -2)
		diff := gatewayDiscount.Sub(discountTotal).Abs()
		if diff.GreaterThan(amountTolerance) {
			o.logger.WithFields(log.Fields{
				"session_id":        event.SessionID,
				"gateway_discount":  gatewayDiscount.String(),
				"computed_discount": discountTotal.String(),
			}).Warn("gateway discount does not match recomputed totals")
			if o.metrics != nil {
				o.metrics.RecordAmountMismatch()
			}
		}
	}
}

// crossCheckLines сверяет позиции из метаданных события со списком позиций
// checkout-сессии на стороне шлюза. Проверка мягкая: недоступность шлюза
// или расхождение количеств логируются и не прерывают settlement.
func (o *orchestrator) crossCheckLines(ctx context.Context, event domain.SettlementEvent) {
	gatewayLines, err := o.gateway.ListLineItems(ctx, event.SessionID)
	if err != nil {
		o.logger.WithError(err).WithField("session_id", event.SessionID).Warn("gateway line items lookup failed")
		return
	}
	if len(gatewayLines) == 0 {
		return
	}

	quantities := make(map[string]int32, len(event.Lines))
	for _, line := range event.Lines {
		quantities[line.Key.ProductID] += line.Quantity
	}
	for _, gatewayLine := range gatewayLines {
		if quantities[gatewayLine.ProductID] == gatewayLine.Quantity {
			continue
		}
		o.logger.WithFields(log.Fields{
			"session_id":       event.SessionID,
			"product_id":       gatewayLine.ProductID,
			"gateway_quantity": gatewayLine.Quantity,
			"event_quantity":   quantities[gatewayLine.ProductID],
		}).Warn("gateway line item does not match event metadata")
	}
}

// advance переводит intent в новое состояние и сохраняет его.
func (o *orchestrator) advance(ctx context.Context, intent *domain.SettlementIntent, state domain.SettlementState) error {
	intent.State = state
	intent.FailedAt = ""
	intent.Reason = ""
	intent.UpdatedAt = time.Now().UTC()
	if err := o.intents.Save(ctx, *intent); err != nil {
		o.logger.WithError(err).WithFields(log.Fields{
			"session_id": intent.SessionID,
			"state":      state,
		}).Error("failed to persist settlement state")
		return err
	}
	return nil
}

// fail фиксирует обрыв обработки и возвращает ошибку вызывающей стороне.
// Уже применённые эффекты не компенсируются: повторная доставка события
// возобновит обработку с оборванного шага.
func (o *orchestrator) fail(ctx context.Context, intent *domain.SettlementIntent, step domain.SettlementState, rootErr error) (Result, error) {
	if o.metrics != nil {
		o.metrics.RecordSettlementFailed()
	}
	intent.State = domain.StateFailed
	intent.FailedAt = step
	intent.Reason = rootErr.Error()
	intent.UpdatedAt = time.Now().UTC()
	if err := o.intents.Save(ctx, *intent); err != nil {
		o.logger.WithError(err).WithField("session_id", intent.SessionID).Error("failed to persist failed intent")
	}

	o.logger.WithError(rootErr).WithFields(log.Fields{
		"session_id": intent.SessionID,
		"failed_at":  step,
	}).Warn("settlement failed")
	o.publishLifecycleEvent(kafka.EventTypeSettlementFailed, intent.SessionID, intent.OrderID, map[string]interface{}{
		"failed_at": string(step),
		"reason":    rootErr.Error(),
	})
	return Result{OrderID: intent.OrderID, State: domain.StateFailed}, rootErr
}

// emitOrderEvent сохраняет событие о созданном заказе в transactional outbox.
func (o *orchestrator) emitOrderEvent(order domain.Order) {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"session_id":   order.SessionID,
		"customer_id":  order.CustomerID,
		"total":        order.Total.String(),
		"currency":     order.Currency,
		"status":       string(order.Status),
		"ts":           order.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Error("marshal order event failed")
		return
	}

	msg := domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(kafka.EventTypeOrderCreated),
		Payload:       payload,
	}
	if _, err := o.outbox.Enqueue(msg); err != nil {
		o.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue order event failed")
	} else if o.metrics != nil {
		o.metrics.RecordOutboxEvent()
	}
}

// publishLifecycleEvent публикует событие settlement в Kafka (если producer настроен).
func (o *orchestrator) publishLifecycleEvent(eventType kafka.EventType, sessionID, orderID string, metadata map[string]interface{}) {
	if o.kafkaProducer == nil {
		return // Kafka не настроен, пропускаем
	}

	event := kafka.NewSettlementEvent(eventType, sessionID, orderID, metadata)
	if err := o.kafkaProducer.PublishSettlementLifecycle(event); err != nil {
		// Логируем ошибку, но не прерываем settlement - Kafka опциональный
		o.logger.WithError(err).WithFields(log.Fields{
			"event_type": eventType,
			"session_id": sessionID,
		}).Warn("failed to publish settlement event to kafka")
	}
}

func (o *orchestrator) observeStep(step string, start time.Time) {
	if o.metrics != nil {
		o.metrics.RecordStepDuration(step, time.Since(start))
	}
}

var _ Orchestrator = (*orchestrator)(nil)
