package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestIntentRepository_CreateAndGet(t *testing.T) {
	repo := NewIntentRepository()
	ctx := context.Background()

	created, err := repo.Create(ctx, domain.SettlementIntent{
		SessionID: "cs_1",
		State:     domain.StateVerified,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.TTLAt.IsZero() {
		t.Fatalf("expected default TTL to be set")
	}

	got, err := repo.Get(ctx, "cs_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.StateVerified {
		t.Fatalf("expected state verified, got %s", got.State)
	}
}

func TestIntentRepository_CreateDuplicate(t *testing.T) {
	repo := NewIntentRepository()
	ctx := context.Background()

	if _, err := repo.Create(ctx, domain.SettlementIntent{SessionID: "cs_1", State: domain.StateVerified}); err != nil {
		t.Fatalf("create: %v", err)
	}

	existing, err := repo.Create(ctx, domain.SettlementIntent{SessionID: "cs_1", State: domain.StateReceived})
	if !errors.Is(err, domain.ErrIntentExists) {
		t.Fatalf("expected ErrIntentExists, got %v", err)
	}
	// Возвращается существующая запись, не новая.
	if existing.State != domain.StateVerified {
		t.Fatalf("expected existing state verified, got %s", existing.State)
	}
}

func TestIntentRepository_SaveProgress(t *testing.T) {
	repo := NewIntentRepository()
	ctx := context.Background()

	intent, err := repo.Create(ctx, domain.SettlementIntent{SessionID: "cs_1", State: domain.StateVerified})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	intent.State = domain.StateOrderCreated
	intent.OrderID = "o1"
	intent.MarkLineDecremented("p1-default")
	if err := repo.Save(ctx, intent); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.Get(ctx, "cs_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.StateOrderCreated || got.OrderID != "o1" {
		t.Fatalf("unexpected intent after save: %+v", got)
	}
	if !got.LineDecremented("p1-default") {
		t.Fatalf("expected decremented line to persist")
	}
}

func TestIntentRepository_SaveMissing(t *testing.T) {
	repo := NewIntentRepository()

	err := repo.Save(context.Background(), domain.SettlementIntent{SessionID: "ghost"})
	if !errors.Is(err, domain.ErrIntentNotFound) {
		t.Fatalf("expected ErrIntentNotFound, got %v", err)
	}
}

func TestIntentRepository_DeleteExpired(t *testing.T) {
	repo := NewIntentRepository()
	ctx := context.Background()

	expired := domain.SettlementIntent{SessionID: "cs_old", State: domain.StateCompleted, TTLAt: time.Now().UTC().Add(-time.Hour)}
	fresh := domain.SettlementIntent{SessionID: "cs_new", State: domain.StateCompleted, TTLAt: time.Now().UTC().Add(time.Hour)}

	if _, err := repo.Create(ctx, expired); err != nil {
		t.Fatalf("create expired: %v", err)
	}
	if _, err := repo.Create(ctx, fresh); err != nil {
		t.Fatalf("create fresh: %v", err)
	}

	removed, err := repo.DeleteExpired(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	if _, err := repo.Get(ctx, "cs_old"); !errors.Is(err, domain.ErrIntentNotFound) {
		t.Fatalf("expected expired intent to be gone, got %v", err)
	}
	if _, err := repo.Get(ctx, "cs_new"); err != nil {
		t.Fatalf("fresh intent must survive: %v", err)
	}
}

func TestIntentRepository_DeleteExpiredKeepsFailed(t *testing.T) {
	repo := NewIntentRepository()
	ctx := context.Background()

	failed := domain.SettlementIntent{
		SessionID:        "cs_failed",
		State:            domain.StateFailed,
		FailedAt:         domain.StateInventoryDecremented,
		DecrementedLines: []string{"p1-default"},
		TTLAt:            time.Now().UTC().Add(-time.Hour),
	}
	if _, err := repo.Create(ctx, failed); err != nil {
		t.Fatalf("create failed intent: %v", err)
	}

	removed, err := repo.DeleteExpired(ctx, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 0 {
		t.Fatalf("failed intent must not be removed by TTL, got %d removed", removed)
	}

	// Запись возобновления доступна повторной доставке вместе со списком
	// уже списанных позиций.
	got, err := repo.Get(ctx, "cs_failed")
	if err != nil {
		t.Fatalf("failed intent must survive cleanup: %v", err)
	}
	if !got.LineDecremented("p1-default") {
		t.Fatalf("expected decremented line to survive cleanup")
	}
}

func TestIntentRepository_CreateKeepsTimestamps(t *testing.T) {
	repo := NewIntentRepository()
	ctx := context.Background()

	created := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	got, err := repo.Create(ctx, domain.SettlementIntent{
		SessionID: "cs_ts",
		State:     domain.StateVerified,
		TTLAt:     created.Add(24 * time.Hour),
		CreatedAt: created,
		UpdatedAt: created,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(created) {
		t.Fatalf("expected caller timestamps to persist, got %s / %s", got.CreatedAt, got.UpdatedAt)
	}

	got.State = domain.StateOrderCreated
	got.UpdatedAt = created.Add(time.Minute)
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("save: %v", err)
	}

	saved, err := repo.Get(ctx, "cs_ts")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !saved.UpdatedAt.Equal(created.Add(time.Minute)) {
		t.Fatalf("expected saved UpdatedAt to persist, got %s", saved.UpdatedAt)
	}
}
