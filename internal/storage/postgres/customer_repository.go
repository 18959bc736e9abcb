package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository создаёт PostgreSQL-реализацию CustomerRepository.
func NewCustomerRepository(store *Store) domain.CustomerRepository {
	return &customerRepository{db: store.DB()}
}

func (r *customerRepository) Get(ctx context.Context, id string) (domain.CustomerAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.getByColumn(ctx, "id", id)
}

func (r *customerRepository) GetByPaymentIdentity(ctx context.Context, identity string) (domain.CustomerAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.getByColumn(ctx, "payment_identity", identity)
}

func (r *customerRepository) getByColumn(ctx context.Context, column, value string) (domain.CustomerAggregate, error) {
	var customer domain.CustomerAggregate

	err := r.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, name, email, payment_identity, total_spent, created_at, updated_at
		FROM customers
		WHERE %s = $1
	`, column), value).Scan(
		&customer.ID, &customer.Name, &customer.Email, &customer.PaymentIdentity,
		&customer.TotalSpent, &customer.CreatedAt, &customer.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CustomerAggregate{}, domain.ErrCustomerNotFound
		}
		return domain.CustomerAggregate{}, fmt.Errorf("select customer: %w", err)
	}

	refs, err := r.loadOrderRefs(ctx, customer.ID)
	if err != nil {
		return domain.CustomerAggregate{}, err
	}
	customer.OrderRefs = refs

	return customer, nil
}

// Create идемпотентен по платёжной идентичности: конкурентное создание
// того же клиента не считается ошибкой.
func (r *customerRepository) Create(ctx context.Context, customer domain.CustomerAggregate) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, payment_identity, total_spent, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (payment_identity) DO NOTHING
	`,
		customer.ID, customer.Name, customer.Email, customer.PaymentIdentity,
		customer.TotalSpent, customer.CreatedAt, customer.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}

	return nil
}

// AppendOrder атомарно добавляет ссылку на заказ и увеличивает totalSpent
// примитивом хранилища. Идемпотентен по order_ref: повторный вызов с тем же
// заказом не увеличивает totalSpent второй раз.
func (r *customerRepository) AppendOrder(ctx context.Context, customerID, orderRef string, orderTotal decimal.Decimal) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists bool
	if err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM customers WHERE id = $1)
	`, customerID).Scan(&exists); err != nil {
		return fmt.Errorf("check customer exists: %w", err)
	}
	if !exists {
		err = domain.ErrCustomerNotFound
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO customer_orders (customer_id, order_ref, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (customer_id, order_ref) DO NOTHING
	`, customerID, orderRef, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append order ref: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if inserted > 0 {
		if _, err = tx.ExecContext(ctx, `
			UPDATE customers
			SET total_spent = total_spent + $2,
			    updated_at = $3
			WHERE id = $1
		`, customerID, orderTotal, time.Now().UTC()); err != nil {
			return fmt.Errorf("increment total spent: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit append order: %w", err)
	}

	return nil
}

func (r *customerRepository) loadOrderRefs(ctx context.Context, customerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_ref
		FROM customer_orders
		WHERE customer_id = $1
		ORDER BY position ASC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("load customer order refs: %w", err)
	}
	defer rows.Close()

	refs := make([]string, 0)
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan order ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order refs: %w", err)
	}

	return refs, nil
}

var _ domain.CustomerRepository = (*customerRepository)(nil)
