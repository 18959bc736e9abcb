package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.getByColumn(ctx, "id", id)
}

func (r *productRepository) GetBySlug(ctx context.Context, slug string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.getByColumn(ctx, "slug", slug)
}

func (r *productRepository) getByColumn(ctx context.Context, column, value string) (domain.Product, error) {
	var (
		product      domain.Product
		dealType     sql.NullString
		dealQuantity sql.NullInt32
		dealPrice    decimal.NullDecimal
	)

	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, name, slug, price, deal_type, deal_quantity_required, deal_price
		FROM products
		WHERE %s = $1
	`, column), value).Scan(
		&product.ID, &product.Name, &product.Slug, &product.Price,
		&dealType, &dealQuantity, &dealPrice,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	if dealType.Valid {
		deal := &domain.Deal{Type: domain.DealType(dealType.String)}
		if dealQuantity.Valid {
			deal.QuantityRequired = dealQuantity.Int32
		}
		if dealPrice.Valid {
			deal.DealPrice = dealPrice.Decimal
		}
		product.Deal = deal
	}

	variants, err := r.loadVariants(ctx, product.ID)
	if err != nil {
		return domain.Product{}, err
	}
	product.Variants = variants

	return product, nil
}

// DecrementStock выполняет условное списание одним UPDATE: остаток
// уменьшается только если результат неотрицателен, поэтому конкурентные
// списания не могут увести stock ниже нуля.
func (r *productRepository) DecrementStock(ctx context.Context, productID, variantKey string, qty int32) error {
	if qty < 1 {
		return domain.ErrInsufficientStock
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE product_variants
		SET stock = stock - $3
		WHERE product_id = $1
		  AND variant_key = $2
		  AND stock >= $3
	`, productID, variantKey, qty)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Разводим "варианта нет" и "остатка не хватает".
	var stock int32
	err = r.db.QueryRowContext(ctx, `
		SELECT stock FROM product_variants
		WHERE product_id = $1 AND variant_key = $2
	`, productID, variantKey).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrVariantNotFound
	}
	if err != nil {
		return fmt.Errorf("check variant stock: %w", err)
	}
	return domain.ErrInsufficientStock
}

func (r *productRepository) loadVariants(ctx context.Context, productID string) ([]domain.ProductVariant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT variant_key, stock
		FROM product_variants
		WHERE product_id = $1
		ORDER BY variant_key
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("load product variants: %w", err)
	}
	defer rows.Close()

	variants := make([]domain.ProductVariant, 0)
	for rows.Next() {
		var v domain.ProductVariant
		if err := rows.Scan(&v.Key, &v.Stock); err != nil {
			return nil, fmt.Errorf("scan product variant: %w", err)
		}
		variants = append(variants, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product variants: %w", err)
	}

	return variants, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
