package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type intentRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.SettlementIntent
}

// NewIntentRepository создаёт in-memory реализацию IntentRepository.
func NewIntentRepository() *intentRepositoryInMemory {
	return &intentRepositoryInMemory{
		items: make(map[string]domain.SettlementIntent),
	}
}

// Create сохраняет новую запись intent. Если сессия уже обрабатывалась,
// возвращает существующую запись и ErrIntentExists — конкурентная доставка
// того же события не порождает второй обработки.
func (r *intentRepositoryInMemory) Create(_ context.Context, intent domain.SettlementIntent) (domain.SettlementIntent, error) {
	sessionID := strings.TrimSpace(intent.SessionID)
	if sessionID == "" {
		return domain.SettlementIntent{}, domain.ErrSessionIDRequired
	}

	now := time.Now().UTC()
	if intent.TTLAt.IsZero() {
		intent.TTLAt = now.Add(24 * time.Hour)
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = now
	}
	if intent.UpdatedAt.IsZero() {
		intent.UpdatedAt = now
	}
	intent.SessionID = sessionID

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.items[sessionID]; ok {
		return cloneIntent(existing), domain.ErrIntentExists
	}

	r.items[sessionID] = cloneIntent(intent)
	return cloneIntent(intent), nil
}

// Get возвращает intent по идентификатору сессии.
func (r *intentRepositoryInMemory) Get(_ context.Context, sessionID string) (domain.SettlementIntent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	intent, ok := r.items[sessionID]
	if !ok {
		return domain.SettlementIntent{}, domain.ErrIntentNotFound
	}
	return cloneIntent(intent), nil
}

// Save перезаписывает состояние intent.
func (r *intentRepositoryInMemory) Save(_ context.Context, intent domain.SettlementIntent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.items[intent.SessionID]
	if !ok {
		return domain.ErrIntentNotFound
	}

	intent.CreatedAt = existing.CreatedAt
	if intent.UpdatedAt.IsZero() {
		intent.UpdatedAt = time.Now().UTC()
	}
	r.items[intent.SessionID] = cloneIntent(intent)
	return nil
}

// DeleteExpired удаляет завершённые записи с истекшим TTL, не более limit
// за вызов. Failed-записи не удаляются: в них лежит список уже списанных
// позиций, без которого повторная доставка спишет остатки второй раз.
func (r *intentRepositoryInMemory) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for sessionID, intent := range r.items {
		if intent.State != domain.StateCompleted || intent.TTLAt.After(before) {
			continue
		}

		delete(r.items, sessionID)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}

	return removed, nil
}

func cloneIntent(src domain.SettlementIntent) domain.SettlementIntent {
	dst := src
	dst.DecrementedLines = append([]string(nil), src.DecrementedLines...)
	return dst
}

var _ domain.IntentRepository = (*intentRepositoryInMemory)(nil)
