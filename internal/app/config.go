package app

import "time"

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	// HTTPAddr — адрес публичного API: webhook платёжного шлюза и POS checkout.
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// WebhookSecret — shared secret для проверки подписи платёжных событий.
	WebhookSecret string
	// POSCustomerID — агрегат клиента, на который записываются walk-in продажи.
	POSCustomerID string

	// KafkaBrokers — список брокеров через запятую; пустая строка отключает Kafka.
	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IntentCleanupInterval  time.Duration
	IntentCleanupBatchSize int
}

// DefaultConfig возвращает конфигурацию по умолчанию: in-memory хранилище,
// без Kafka, стандартные адреса.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:               ":8080",
		MetricsAddr:            ":9090",
		StorageDriver:          StorageDriverMemory,
		PostgresAutoMigrate:    true,
		POSCustomerID:          "walk-in",
		OutboxPollInterval:     time.Second,
		OutboxBatchSize:        100,
		OutboxMaxAttempts:      5,
		OutboxRetryDelay:       500 * time.Millisecond,
		IntentCleanupInterval:  10 * time.Minute,
		IntentCleanupBatchSize: 500,
	}
}
