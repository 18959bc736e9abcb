// dlq-reprocess перечитывает dead letter queue и возвращает восстановимые
// settlement запросы обратно в рабочий топик. По умолчанию работает в режиме
// dry-run: кандидаты только логируются, публикация включается флагом -execute.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// dlqRecord — обёртка, которую consumer пишет в DLQ после исчерпания retry
// (см. Consumer.sendToDLQ): исходное сообщение плюс контекст ошибки.
type dlqRecord struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// replayCandidate — проверенный settlement запрос, готовый к повторной публикации.
type replayCandidate struct {
	topic     string
	sessionID string
	lastError string
	value     []byte
}

// replaySummary агрегирует итог прохода по DLQ для финального отчёта.
type replaySummary struct {
	processed int
	replayed  int
	invalid   int
	skipped   int
	// byError считает записи по тексту ошибки, с которой они попали в DLQ.
	byError map[string]int
}

func newReplaySummary() *replaySummary {
	return &replaySummary{byError: make(map[string]int)}
}

func (s *replaySummary) merge(other *replaySummary) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.invalid += other.invalid
	s.skipped += other.skipped
	for reason, count := range other.byError {
		s.byError[reason] += count
	}
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

var newReplayDependencies = func(cfg config) (offsetClient, partitionConsumerSource, replayProducer, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	consumer := saramaConsumerAdapter{consumer: rawConsumer}

	if !cfg.execute {
		return client, consumer, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.brokers, producerConfig)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, consumer, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicSettlementRequests, "target topic for replayed settlement requests")
	flag.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}

	cfg.brokers = parseBrokers(brokersRaw)
	if len(cfg.brokers) == 0 {
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	}
	if strings.TrimSpace(cfg.sourceTopic) == "" {
		return config{}, fmt.Errorf("source-topic is required")
	}
	if strings.TrimSpace(cfg.targetTopic) == "" {
		return config{}, fmt.Errorf("target-topic is required")
	}
	if cfg.limit <= 0 {
		return config{}, fmt.Errorf("limit must be > 0")
	}
	if cfg.idleTimeout <= 0 {
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		broker := strings.TrimSpace(chunk)
		if broker == "" {
			continue
		}
		brokers = append(brokers, broker)
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		if consumer != nil {
			_ = consumer.Close()
		}
		if client != nil {
			_ = client.Close()
		}
	}()

	return runReplay(ctx, cfg, client, consumer, producer)
}

func runReplay(ctx context.Context, cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) error {
	if client == nil || consumer == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := client.Partitions(cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	summary := newReplaySummary()
	for _, partition := range partitions {
		if summary.processed >= cfg.limit {
			break
		}

		remaining := cfg.limit - summary.processed
		partial, err := processPartition(ctx, consumer, client, producer, cfg, partition, remaining)
		if err != nil {
			return err
		}
		summary.merge(partial)
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}

	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": summary.processed,
		"replayed":  summary.replayed,
		"invalid":   summary.invalid,
		"skipped":   summary.skipped,
	}).Info("dlq replay finished")

	for reason, count := range summary.byError {
		log.WithFields(log.Fields{
			"error": reason,
			"count": count,
		}).Info("dlq failure breakdown")
	}

	return nil
}

func processPartition(
	ctx context.Context,
	consumer partitionConsumerSource,
	client offsetClient,
	producer replayProducer,
	cfg config,
	partition int32,
	limit int,
) (*replaySummary, error) {
	summary := newReplaySummary()
	if limit <= 0 {
		return summary, nil
	}

	oldest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return summary, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return summary, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return summary, nil
	}

	startOffset := oldest
	if cfg.fromNewest {
		startOffset = newest - int64(limit)
		if startOffset < oldest {
			startOffset = oldest
		}
	}

	partitionConsumer, err := consumer.ConsumePartition(cfg.sourceTopic, partition, startOffset)
	if err != nil {
		return summary, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = partitionConsumer.Close() }()

	endOffset := newest
	idleTimer := time.NewTimer(cfg.idleTimeout)
	defer idleTimer.Stop()

	for summary.processed < limit {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		case err := <-partitionConsumer.Errors():
			if err != nil {
				return summary, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-partitionConsumer.Messages():
			if !ok || msg == nil {
				return summary, nil
			}

			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(cfg.idleTimeout)

			if msg.Offset >= endOffset {
				return summary, nil
			}

			summary.processed++
			candidate, skipErr := buildCandidate(msg, cfg.targetTopic)
			if skipErr != nil {
				summary.invalid++
				log.WithError(skipErr).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("dlq record is not replayable")
				continue
			}
			if candidate == nil {
				summary.skipped++
				continue
			}
			if candidate.lastError != "" {
				summary.byError[candidate.lastError]++
			}

			if cfg.execute {
				if err := publishReplay(producer, *candidate); err != nil {
					return summary, fmt.Errorf("publish replay message: %w", err)
				}
				summary.replayed++
			} else {
				log.WithFields(log.Fields{
					"partition":    msg.Partition,
					"offset":       msg.Offset,
					"target_topic": candidate.topic,
					"session_id":   candidate.sessionID,
					"last_error":   candidate.lastError,
				}).Info("dlq replay candidate")
				summary.replayed++
			}

			if msg.Offset+1 >= endOffset {
				return summary, nil
			}
		case <-idleTimer.C:
			return summary, nil
		}
	}

	return summary, nil
}

// buildCandidate разворачивает DLQ-обёртку и проверяет вложенный settlement
// запрос. Возвращает (nil, nil) для сообщений чужого формата и ошибку для
// записей, повторная публикация которых снова закончится в DLQ.
func buildCandidate(msg *sarama.ConsumerMessage, targetTopic string) (*replayCandidate, error) {
	var record dlqRecord
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		return nil, nil
	}
	if record.OriginalValue == "" {
		return nil, nil
	}

	request, err := decodeSettlementRequest([]byte(record.OriginalValue))
	if err != nil {
		return nil, fmt.Errorf("dlq record %s/%d: %w", record.OriginalTopic, record.OriginalOffset, err)
	}

	// Перекодируем в каноничный wire-формат: ручные правки в DLQ не должны
	// протащить лишние поля обратно в рабочий топик.
	value, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode settlement request: %w", err)
	}

	return &replayCandidate{
		topic:     targetTopic,
		sessionID: request.SessionID,
		lastError: record.ErrorMessage,
		value:     value,
	}, nil
}

// decodeSettlementRequest проверяет, что payload из DLQ — пригодный к повтору
// settlement запрос: без этих полей оркестратор отвергнет событие снова.
func decodeSettlementRequest(raw []byte) (kafka.SettlementRequest, error) {
	var request kafka.SettlementRequest
	if err := json.Unmarshal(raw, &request); err != nil {
		return kafka.SettlementRequest{}, fmt.Errorf("decode settlement request: %w", err)
	}

	if strings.TrimSpace(request.SessionID) == "" {
		return kafka.SettlementRequest{}, fmt.Errorf("settlement request has no session_id")
	}
	if strings.TrimSpace(request.CustomerID) == "" {
		return kafka.SettlementRequest{}, fmt.Errorf("settlement request %s has no customer_id", request.SessionID)
	}
	if strings.TrimSpace(request.Currency) == "" {
		return kafka.SettlementRequest{}, fmt.Errorf("settlement request %s has no currency", request.SessionID)
	}
	if len(request.Lines) == 0 {
		return kafka.SettlementRequest{}, fmt.Errorf("settlement request %s has no lines", request.SessionID)
	}
	for _, line := range request.Lines {
		if strings.TrimSpace(line.ProductID) == "" {
			return kafka.SettlementRequest{}, fmt.Errorf("settlement request %s has a line without product_id", request.SessionID)
		}
		if line.Quantity < 1 {
			return kafka.SettlementRequest{}, fmt.Errorf("settlement request %s has non-positive quantity for %s", request.SessionID, line.ProductID)
		}
	}

	return request, nil
}

func publishReplay(producer replayProducer, candidate replayCandidate) error {
	if producer == nil {
		return fmt.Errorf("producer is nil")
	}

	producerMessage := &sarama.ProducerMessage{
		Topic:     candidate.topic,
		Key:       sarama.StringEncoder(candidate.sessionID),
		Value:     sarama.ByteEncoder(candidate.value),
		Timestamp: time.Now().UTC(),
	}

	_, _, err := producer.SendMessage(producerMessage)
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
