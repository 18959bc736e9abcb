package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/settlement"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	if brokers == "" {
		return nil, nil
	}

	brokerList := strings.Split(brokers, ",")
	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// settlementRequestHandler разбирает settlement-запрос из Kafka и передаёт
// его в оркестратор через retry-обёртку. Ошибки разбора терминальны:
// повторная доставка того же сообщения даст тот же результат.
func settlementRequestHandler(settler *settlement.RetrySettler, logger *log.Entry) kafka.MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		var request kafka.SettlementRequest
		if err := json.Unmarshal(message.Value, &request); err != nil {
			return fmt.Errorf("unmarshal settlement request: %w", err)
		}

		result, err := settler.Settle(ctx, request.ToDomain())
		if err != nil {
			return fmt.Errorf("settle session %s: %w", request.SessionID, err)
		}

		if result.Duplicate {
			logger.WithField("session_id", request.SessionID).Info("duplicate settlement request ignored")
		}
		return nil
	}
}

// initSettlementConsumer запускает consumer group на topic settlement-запросов.
// Используется как альтернативный канал доставки платёжных событий: сообщения,
// исчерпавшие retry, уходят в DLQ и переигрываются через dlq-reprocess.
func initSettlementConsumer(
	ctx context.Context,
	brokers string,
	producer *kafka.Producer,
	settler *settlement.RetrySettler,
	logger *log.Entry,
) (*kafka.Consumer, error) {
	if brokers == "" || producer == nil {
		return nil, nil
	}

	handler := settlementRequestHandler(settler, logger)
	consumer, err := kafka.NewConsumerWithDLQ(
		strings.Split(brokers, ","),
		"storefront-settlement",
		[]string{kafka.TopicSettlementRequests},
		handler,
		producer,
		3,
	)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka consumer, continuing without consumer")
		return nil, err
	}

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start kafka consumer")
		return nil, err
	}

	logger.WithField("topic", kafka.TopicSettlementRequests).Info("settlement consumer started")
	return consumer, nil
}
