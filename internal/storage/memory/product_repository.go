package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// productRepositoryInMemory — in-memory реализация ProductRepository
// для локальной разработки и тестов.
type productRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Product
	bySlug map[string]string
}

// NewProductRepository возвращает пустой in-memory каталог товаров.
func NewProductRepository() *productRepositoryInMemory {
	return &productRepositoryInMemory{
		items:  make(map[string]domain.Product),
		bySlug: make(map[string]string),
	}
}

// Seed добавляет или перезаписывает товар (используется в тестах и демо-режиме).
func (r *productRepositoryInMemory) Seed(product domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(product.Variants) == 0 {
		product.Variants = []domain.ProductVariant{{Key: domain.DefaultVariantKey}}
	}
	r.items[product.ID] = cloneProduct(product)
	if product.Slug != "" {
		r.bySlug[product.Slug] = product.ID
	}
}

// Get возвращает товар или ErrProductNotFound, если его нет.
func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return cloneProduct(product), nil
}

// GetBySlug возвращает товар по slug.
func (r *productRepositoryInMemory) GetBySlug(ctx context.Context, slug string) (domain.Product, error) {
	r.mu.RLock()
	id, ok := r.bySlug[slug]
	r.mu.RUnlock()

	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return r.Get(ctx, id)
}

// DecrementStock условно уменьшает остаток варианта: списание применяется,
// только если итоговый остаток неотрицателен. Проверка и запись выполняются
// под одной блокировкой, поэтому конкурентные списания не пересекаются.
func (r *productRepositoryInMemory) DecrementStock(_ context.Context, productID, variantKey string, qty int32) error {
	if qty <= 0 {
		return domain.ErrLineQtyInvalid
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[productID]
	if !ok {
		return domain.ErrProductNotFound
	}

	for i := range product.Variants {
		if product.Variants[i].Key != variantKey {
			continue
		}
		if product.Variants[i].Stock < qty {
			return domain.ErrInsufficientStock
		}
		product.Variants[i].Stock -= qty
		r.items[productID] = product
		return nil
	}

	return domain.ErrVariantNotFound
}

func cloneProduct(src domain.Product) domain.Product {
	dst := src
	dst.Variants = append([]domain.ProductVariant(nil), src.Variants...)
	if src.Deal != nil {
		deal := *src.Deal
		dst.Deal = &deal
	}
	return dst
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
