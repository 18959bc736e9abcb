package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// customerRepositoryInMemory — in-memory реализация CustomerRepository.
type customerRepositoryInMemory struct {
	mu         sync.RWMutex
	items      map[string]domain.CustomerAggregate
	byIdentity map[string]string
}

// NewCustomerRepository возвращает in-memory хранилище агрегатов клиентов.
func NewCustomerRepository() *customerRepositoryInMemory {
	return &customerRepositoryInMemory{
		items:      make(map[string]domain.CustomerAggregate),
		byIdentity: make(map[string]string),
	}
}

// Get возвращает агрегат или ErrCustomerNotFound, если его нет.
func (r *customerRepositoryInMemory) Get(_ context.Context, id string) (domain.CustomerAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	customer, ok := r.items[id]
	if !ok {
		return domain.CustomerAggregate{}, domain.ErrCustomerNotFound
	}
	return cloneCustomer(customer), nil
}

// GetByPaymentIdentity ищет агрегат по внешней платёжной идентичности.
func (r *customerRepositoryInMemory) GetByPaymentIdentity(_ context.Context, identity string) (domain.CustomerAggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byIdentity[identity]
	if !ok {
		return domain.CustomerAggregate{}, domain.ErrCustomerNotFound
	}
	return cloneCustomer(r.items[id]), nil
}

// Create сохраняет новый агрегат. Повторное создание с той же идентичностью
// не затирает существующий агрегат: sync идемпотентен.
func (r *customerRepositoryInMemory) Create(_ context.Context, customer domain.CustomerAggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byIdentity[customer.PaymentIdentity]; ok && existingID != customer.ID {
		return nil
	}

	r.items[customer.ID] = cloneCustomer(customer)
	if customer.PaymentIdentity != "" {
		r.byIdentity[customer.PaymentIdentity] = customer.ID
	}
	return nil
}

// AppendOrder атомарно добавляет ссылку на заказ и увеличивает totalSpent.
// Обе мутации выполняются под одной блокировкой, read-modify-write наружу
// не протекает.
func (r *customerRepositoryInMemory) AppendOrder(_ context.Context, customerID, orderRef string, orderTotal decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	customer, ok := r.items[customerID]
	if !ok {
		return domain.ErrCustomerNotFound
	}

	for _, ref := range customer.OrderRefs {
		if ref == orderRef {
			// Повторное применение того же заказа не удваивает totalSpent.
			return nil
		}
	}

	customer.OrderRefs = append(customer.OrderRefs, orderRef)
	customer.TotalSpent = customer.TotalSpent.Add(orderTotal)
	customer.UpdatedAt = time.Now().UTC()
	r.items[customerID] = customer
	return nil
}

func cloneCustomer(src domain.CustomerAggregate) domain.CustomerAggregate {
	dst := src
	dst.OrderRefs = append([]string(nil), src.OrderRefs...)
	return dst
}

var _ domain.CustomerRepository = (*customerRepositoryInMemory)(nil)
