package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type intentRepository struct {
	db *sql.DB
}

// NewIntentRepository создаёт PostgreSQL-реализацию IntentRepository.
func NewIntentRepository(store *Store) domain.IntentRepository {
	return &intentRepository{db: store.DB()}
}

// Create вставляет intent ровно один раз на сессию. Если запись уже есть
// (конкурентная или повторная доставка), возвращает её вместе с ErrIntentExists.
func (r *intentRepository) Create(ctx context.Context, intent domain.SettlementIntent) (domain.SettlementIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	lines, err := marshalLines(intent.DecrementedLines)
	if err != nil {
		return domain.SettlementIntent{}, err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO settlement_intents (
			session_id, order_id, customer_id, state, failed_at, reason,
			decremented_lines, ttl_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (session_id) DO NOTHING
	`,
		intent.SessionID, intent.OrderID, intent.CustomerID, string(intent.State),
		string(intent.FailedAt), intent.Reason, lines,
		intent.TTLAt, intent.CreatedAt, intent.UpdatedAt,
	)
	if err != nil {
		return domain.SettlementIntent{}, fmt.Errorf("insert settlement intent: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return domain.SettlementIntent{}, fmt.Errorf("rows affected: %w", err)
	}
	if inserted > 0 {
		return intent, nil
	}

	existing, err := r.Get(ctx, intent.SessionID)
	if err != nil {
		return domain.SettlementIntent{}, err
	}
	return existing, domain.ErrIntentExists
}

func (r *intentRepository) Get(ctx context.Context, sessionID string) (domain.SettlementIntent, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		intent   domain.SettlementIntent
		state    string
		failedAt string
		rawLines []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT session_id, order_id, customer_id, state, failed_at, reason,
		       decremented_lines, ttl_at, created_at, updated_at
		FROM settlement_intents
		WHERE session_id = $1
	`, sessionID).Scan(
		&intent.SessionID, &intent.OrderID, &intent.CustomerID, &state, &failedAt,
		&intent.Reason, &rawLines, &intent.TTLAt, &intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.SettlementIntent{}, domain.ErrIntentNotFound
		}
		return domain.SettlementIntent{}, fmt.Errorf("select settlement intent: %w", err)
	}

	intent.State = domain.SettlementState(state)
	intent.FailedAt = domain.SettlementState(failedAt)
	if err := json.Unmarshal(rawLines, &intent.DecrementedLines); err != nil {
		return domain.SettlementIntent{}, fmt.Errorf("decode decremented lines: %w", err)
	}

	return intent, nil
}

func (r *intentRepository) Save(ctx context.Context, intent domain.SettlementIntent) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	lines, err := marshalLines(intent.DecrementedLines)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE settlement_intents
		SET order_id = $2,
		    customer_id = $3,
		    state = $4,
		    failed_at = $5,
		    reason = $6,
		    decremented_lines = $7,
		    ttl_at = $8,
		    updated_at = $9
		WHERE session_id = $1
	`,
		intent.SessionID, intent.OrderID, intent.CustomerID, string(intent.State),
		string(intent.FailedAt), intent.Reason, lines, intent.TTLAt, intent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update settlement intent: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrIntentNotFound
	}

	return nil
}

// DeleteExpired удаляет завершённые intent с истекшим TTL порциями limit.
// Failed-записи не удаляются: они ждут повторной доставки или ручного разбора.
func (r *intentRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 500
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM settlement_intents
		WHERE session_id IN (
			SELECT session_id
			FROM settlement_intents
			WHERE state = 'completed'
			  AND ttl_at <= $1
			ORDER BY ttl_at
			LIMIT $2
		)
	`, before, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired intents: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(deleted), nil
}

func marshalLines(lines []string) ([]byte, error) {
	if lines == nil {
		lines = []string{}
	}
	encoded, err := json.Marshal(lines)
	if err != nil {
		return nil, fmt.Errorf("encode decremented lines: %w", err)
	}
	return encoded, nil
}

var _ domain.IntentRepository = (*intentRepository)(nil)
