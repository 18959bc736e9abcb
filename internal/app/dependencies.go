package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/gateway"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// Dependencies содержит все зависимости приложения.
type Dependencies struct {
	Products  domain.ProductRepository
	Orders    domain.OrderRepository
	Customers domain.CustomerRepository
	Intents   domain.IntentRepository
	Outbox    domain.OutboxRepository
	Gateway   domain.PaymentGateway
	Logger    *log.Entry

	// StorageChecker — nil для in-memory хранилища.
	StorageChecker healthcheck.Checker

	closeFn func() error
}

// Close освобождает ресурсы хранилища, если они были захвачены.
func (d *Dependencies) Close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// NewDependencies создаёт in-memory зависимости для разработки и тестов.
// NOTE: В production окружении gateway должен быть заменён на реальный
// клиент платёжного шлюза.
func NewDependencies(logger *log.Entry) *Dependencies {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	return &Dependencies{
		Products:  memory.NewProductRepository(),
		Orders:    memory.NewOrderRepository(),
		Customers: memory.NewCustomerRepository(),
		Intents:   memory.NewIntentRepository(),
		Outbox:    memory.NewOutboxRepository(),
		Gateway:   gateway.NewMockGateway(),
		Logger:    logger,
	}
}

// initRuntimeDependencies собирает зависимости по выбранному storage driver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		logger.Info("using in-memory storage")
		return NewDependencies(logger), nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires a DSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres storage: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.MigrateUp(ctx, 0); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		logger.Info("using postgres storage")
		return &Dependencies{
			Products:       postgres.NewProductRepository(store),
			Orders:         postgres.NewOrderRepository(store),
			Customers:      postgres.NewCustomerRepository(store),
			Intents:        postgres.NewIntentRepository(store),
			Outbox:         postgres.NewOutboxRepository(store),
			Gateway:        gateway.NewMockGateway(),
			Logger:         logger,
			StorageChecker: healthcheck.NewPingChecker("postgres", 2*time.Second, store.Ping),
			closeFn:        store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.StorageDriver)
	}
}
