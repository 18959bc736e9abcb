package settlement

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RetryConfig конфигурация для retry логики.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetrySettler оборачивает оркестратор retry логикой для путей доставки,
// у которых нет внешнего механизма повтора (Kafka replay, DLQ reprocess).
// HTTP webhook retry не нужен: шлюз сам повторяет доставку по кодам ответа.
type RetrySettler struct {
	orchestrator Orchestrator
	config       RetryConfig
	logger       *log.Entry
}

// NewRetrySettler создаёт обёртку с retry логикой.
func NewRetrySettler(orchestrator Orchestrator, config RetryConfig, logger *log.Entry) *RetrySettler {
	if logger == nil {
		logger = log.New().WithField("component", "retry-settler")
	}

	return &RetrySettler{
		orchestrator: orchestrator,
		config:       config,
		logger:       logger,
	}
}

// Settle выполняет settlement с повторами по экспоненциальной задержке.
// Терминальные ошибки не повторяются: повторная попытка даст тот же результат.
// Каждая попытка идемпотентна, поэтому повтор после частичного прогресса
// безопасен — intent продолжит с последнего подтверждённого шага.
func (rs *RetrySettler) Settle(ctx context.Context, event domain.SettlementEvent) (Result, error) {
	var lastErr error
	var lastResult Result
	delay := rs.config.InitialDelay

	for attempt := 1; attempt <= rs.config.MaxAttempts; attempt++ {
		result, err := rs.orchestrator.Settle(ctx, event)
		if err == nil {
			if attempt > 1 {
				rs.logger.WithFields(log.Fields{
					"session_id": event.SessionID,
					"attempt":    attempt,
				}).Info("Settlement succeeded after retry")
			}
			return result, nil
		}

		lastErr = err
		lastResult = result

		if domain.IsTerminal(err) {
			rs.logger.WithFields(log.Fields{
				"session_id": event.SessionID,
				"error":      err,
			}).Warn("Settlement failed with non-retryable error")
			return result, err
		}

		if attempt < rs.config.MaxAttempts {
			rs.logger.WithFields(log.Fields{
				"session_id": event.SessionID,
				"attempt":    attempt,
				"delay":      delay,
				"error":      err,
			}).Warn("Settlement failed, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return result, ctx.Err()
			}

			delay = time.Duration(float64(delay) * rs.config.BackoffFactor)
			if delay > rs.config.MaxDelay {
				delay = rs.config.MaxDelay
			}
		}
	}

	rs.logger.WithFields(log.Fields{
		"session_id":   event.SessionID,
		"max_attempts": rs.config.MaxAttempts,
		"error":        lastErr,
	}).Error("Settlement failed after all retry attempts")

	return lastResult, lastErr
}
