package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

func validRequest(sessionID string) kafka.SettlementRequest {
	return kafka.SettlementRequest{
		SessionID:        sessionID,
		CustomerID:       "cus_1",
		BuyerID:          "user_1",
		OrderNumber:      "ORD-1",
		AmountTotalMinor: 3248,
		Currency:         "usd",
		Lines: []kafka.SettlementRequestLine{
			{ProductID: "prod-a", VariantKey: "default", Quantity: 1},
		},
	}
}

// dlqValue собирает DLQ-запись в том виде, в каком её пишет consumer.
func dlqValue(t *testing.T, request kafka.SettlementRequest, errorMessage string) []byte {
	t.Helper()

	original, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("marshal settlement request: %v", err)
	}
	raw, err := json.Marshal(dlqRecord{
		OriginalTopic: kafka.TopicSettlementRequests,
		OriginalKey:   request.SessionID,
		OriginalValue: string(original),
		ErrorMessage:  errorMessage,
		RetryCount:    3,
	})
	if err != nil {
		t.Fatalf("marshal dlq record: %v", err)
	}
	return raw
}

func TestParseBrokers(t *testing.T) {
	brokers := parseBrokers(" broker-1:9092, ,broker-2:9092 ")
	if len(brokers) != 2 {
		t.Fatalf("unexpected brokers count: got=%d want=2", len(brokers))
	}
	if brokers[0] != "broker-1:9092" || brokers[1] != "broker-2:9092" {
		t.Fatalf("unexpected brokers: %+v", brokers)
	}
}

func TestBuildCandidate_ValidRequest(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: dlqValue(t, validRequest("cs_1"), "stock decrement failed")}

	candidate, err := buildCandidate(msg, kafka.TopicSettlementRequests)
	if err != nil {
		t.Fatalf("buildCandidate failed: %v", err)
	}
	if candidate == nil {
		t.Fatal("expected replay candidate")
	}
	if candidate.topic != kafka.TopicSettlementRequests {
		t.Fatalf("unexpected topic: %s", candidate.topic)
	}
	if candidate.sessionID != "cs_1" {
		t.Fatalf("unexpected session id: %s", candidate.sessionID)
	}
	if candidate.lastError != "stock decrement failed" {
		t.Fatalf("unexpected last error: %s", candidate.lastError)
	}

	var replayed kafka.SettlementRequest
	if err := json.Unmarshal(candidate.value, &replayed); err != nil {
		t.Fatalf("replay value must be a settlement request: %v", err)
	}
	if replayed.SessionID != "cs_1" || len(replayed.Lines) != 1 {
		t.Fatalf("unexpected replayed request: %+v", replayed)
	}
}

// Лишние поля в DLQ-записи не протаскиваются обратно в рабочий топик.
func TestBuildCandidate_ReencodesCanonically(t *testing.T) {
	original := `{"session_id":"cs_1","customer_id":"cus_1","order_number":"ORD-1","amount_total_minor":100,"currency":"usd","lines":[{"product_id":"prod-a","variant_key":"default","quantity":1}],"injected":"field"}`
	raw, err := json.Marshal(dlqRecord{OriginalTopic: kafka.TopicSettlementRequests, OriginalValue: original})
	if err != nil {
		t.Fatalf("marshal dlq record: %v", err)
	}

	candidate, err := buildCandidate(&sarama.ConsumerMessage{Value: raw}, kafka.TopicSettlementRequests)
	if err != nil {
		t.Fatalf("buildCandidate failed: %v", err)
	}
	if strings.Contains(string(candidate.value), "injected") {
		t.Fatalf("replay value must not carry unknown fields: %s", string(candidate.value))
	}
}

func TestBuildCandidate_SkipsForeignFormat(t *testing.T) {
	for _, value := range [][]byte{
		[]byte(`not json`),
		[]byte(`{"foo":"bar"}`),
		[]byte(`{"original_topic":"x","original_value":""}`),
	} {
		candidate, err := buildCandidate(&sarama.ConsumerMessage{Value: value}, kafka.TopicSettlementRequests)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", string(value), err)
		}
		if candidate != nil {
			t.Fatalf("expected %q to be skipped", string(value))
		}
	}
}

func TestBuildCandidate_InvalidRequest(t *testing.T) {
	broken := validRequest("cs_1")
	broken.Lines = nil

	_, err := buildCandidate(&sarama.ConsumerMessage{Value: dlqValue(t, broken, "boom")}, kafka.TopicSettlementRequests)
	if err == nil || !strings.Contains(err.Error(), "has no lines") {
		t.Fatalf("expected invalid request error, got: %v", err)
	}
}

func TestDecodeSettlementRequest_Validation(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*kafka.SettlementRequest)
		wantErr string
	}{
		{"missing session", func(r *kafka.SettlementRequest) { r.SessionID = " " }, "no session_id"},
		{"missing customer", func(r *kafka.SettlementRequest) { r.CustomerID = "" }, "no customer_id"},
		{"missing currency", func(r *kafka.SettlementRequest) { r.Currency = "" }, "no currency"},
		{"no lines", func(r *kafka.SettlementRequest) { r.Lines = nil }, "no lines"},
		{"empty product", func(r *kafka.SettlementRequest) { r.Lines[0].ProductID = "" }, "without product_id"},
		{"zero quantity", func(r *kafka.SettlementRequest) { r.Lines[0].Quantity = 0 }, "non-positive quantity"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			request := validRequest("cs_1")
			tc.mutate(&request)
			raw, err := json.Marshal(request)
			if err != nil {
				t.Fatalf("marshal request: %v", err)
			}
			if _, err := decodeSettlementRequest(raw); err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got: %v", tc.wantErr, err)
			}
		})
	}

	if _, err := decodeSettlementRequest([]byte(`{`)); err == nil {
		t.Fatal("expected decode error for malformed JSON")
	}
}

func TestReadConfig_FromFlags(t *testing.T) {
	withFlagArgs(t, []string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-limit=10",
		"-execute=true",
		"-from-newest=true",
		"-idle-timeout=3s",
	}, func() {
		cfg, err := readConfig()
		if err != nil {
			t.Fatalf("readConfig failed: %v", err)
		}
		if len(cfg.brokers) != 2 {
			t.Fatalf("unexpected brokers count: %d", len(cfg.brokers))
		}
		if cfg.sourceTopic != kafka.TopicDeadLetterQueue {
			t.Fatalf("unexpected default source topic: %s", cfg.sourceTopic)
		}
		if cfg.targetTopic != kafka.TopicSettlementRequests {
			t.Fatalf("unexpected default target topic: %s", cfg.targetTopic)
		}
		if cfg.limit != 10 {
			t.Fatalf("unexpected limit: %d", cfg.limit)
		}
		if !cfg.execute || !cfg.fromNewest {
			t.Fatalf("unexpected flags: %+v", cfg)
		}
		if cfg.idleTimeout.Seconds() != 3 {
			t.Fatalf("unexpected idle-timeout: %s", cfg.idleTimeout)
		}
	})
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		args    []string
		wantErr string
	}{
		{[]string{"-brokers="}, "kafka brokers are required"},
		{[]string{"-brokers=broker:9092", "-source-topic="}, "source-topic is required"},
		{[]string{"-brokers=broker:9092", "-target-topic="}, "target-topic is required"},
		{[]string{"-brokers=broker:9092", "-limit=0"}, "limit must be > 0"},
		{[]string{"-brokers=broker:9092", "-idle-timeout=0s"}, "idle-timeout must be > 0"},
	}

	for _, tc := range cases {
		withFlagArgs(t, tc.args, func() {
			_, err := readConfig()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestPublishReplay(t *testing.T) {
	if err := publishReplay(nil, replayCandidate{}); err == nil {
		t.Fatal("expected error for nil producer")
	}

	producer := &stubReplayProducer{}
	candidate := replayCandidate{topic: kafka.TopicSettlementRequests, sessionID: "cs_1", value: []byte(`{"x":1}`)}
	if err := publishReplay(producer, candidate); err != nil {
		t.Fatalf("publishReplay failed: %v", err)
	}
	if producer.calls != 1 {
		t.Fatalf("unexpected producer calls: %d", producer.calls)
	}
	if producer.lastMsg == nil || producer.lastMsg.Topic != kafka.TopicSettlementRequests {
		t.Fatalf("unexpected last message: %+v", producer.lastMsg)
	}
	key, err := producer.lastMsg.Key.Encode()
	if err != nil || string(key) != "cs_1" {
		t.Fatalf("replay key must be the session id: %q (%v)", string(key), err)
	}

	producer.sendErr = errors.New("send failed")
	if err := publishReplay(producer, candidate); err == nil {
		t.Fatal("expected publishReplay error")
	}
}

func TestProcessPartition_DryRun(t *testing.T) {
	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqValue(t, validRequest("cs_1"), "stock decrement failed"),
			}}),
		},
	}

	cfg := config{
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicSettlementRequests,
		idleTimeout: 20 * time.Millisecond,
	}

	summary, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if summary.processed != 1 || summary.replayed != 1 || summary.invalid != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.byError["stock decrement failed"] != 1 {
		t.Fatalf("unexpected error breakdown: %+v", summary.byError)
	}
	if len(consumer.calls) != 1 || consumer.calls[0].offset != 0 {
		t.Fatalf("unexpected consume calls: %+v", consumer.calls)
	}
}

func TestProcessPartition_Execute(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqValue(t, validRequest("cs_1"), "boom"),
			}}),
		},
	}
	producer := &stubReplayProducer{}

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicSettlementRequests, execute: true, idleTimeout: 20 * time.Millisecond}

	summary, err := processPartition(context.Background(), consumer, client, producer, cfg, 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if summary.replayed != 1 {
		t.Fatalf("expected replayed=1, got %+v", summary)
	}
	if producer.calls != 1 {
		t.Fatalf("expected one producer call, got %d", producer.calls)
	}
}

func TestProcessPartition_CountsInvalidAndForeign(t *testing.T) {
	broken := validRequest("cs_bad")
	broken.CustomerID = ""

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 3}}}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{
				{Partition: 0, Offset: 0, Value: dlqValue(t, broken, "boom")},
				{Partition: 0, Offset: 1, Value: []byte(`{"foo":"bar"}`)},
				{Partition: 0, Offset: 2, Value: dlqValue(t, validRequest("cs_ok"), "boom")},
			}),
		},
	}

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicSettlementRequests, idleTimeout: 20 * time.Millisecond}

	summary, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 10)
	if err != nil {
		t.Fatalf("processPartition failed: %v", err)
	}
	if summary.processed != 3 || summary.invalid != 1 || summary.skipped != 1 || summary.replayed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestProcessPartition_ErrorBranches(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicSettlementRequests, execute: true, idleTimeout: 20 * time.Millisecond}

	clientOffsetErr := &stubOffsetClient{offsetErr: map[int32]error{0: errors.New("offset")}}
	if _, err := processPartition(context.Background(), &stubPartitionConsumerSource{}, clientOffsetErr, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected offset error")
	}

	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}
	consumerErr := &stubPartitionConsumerSource{consumeErr: errors.New("consume")}
	if _, err := processPartition(context.Background(), consumerErr, client, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected consume error")
	}

	pcWithErr := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
	pcWithErr.errors <- &sarama.ConsumerError{Err: errors.New("consumer boom")}
	close(pcWithErr.errors)
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcWithErr}}
	if _, err := processPartition(context.Background(), consumer, client, &stubReplayProducer{}, cfg, 0, 1); err == nil {
		t.Fatal("expected consumer error branch")
	}
	close(pcWithErr.messages)

	pcOK := closedPartitionConsumer([]*sarama.ConsumerMessage{{
		Partition: 0,
		Offset:    0,
		Value:     dlqValue(t, validRequest("cs_1"), "boom"),
	}})
	consumer = &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: pcOK}}
	producer := &stubReplayProducer{sendErr: errors.New("send fail")}
	if _, err := processPartition(context.Background(), consumer, client, producer, cfg, 0, 1); err == nil {
		t.Fatal("expected producer send error")
	}
}

func TestProcessPartition_IdleTimeoutAndContext(t *testing.T) {
	client := &stubOffsetClient{offsets: map[int32]offsetRange{0: {oldest: 0, newest: 2}}}

	idleConsumer := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	consumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: idleConsumer}}
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicSettlementRequests, idleTimeout: 10 * time.Millisecond}

	summary, err := processPartition(context.Background(), consumer, client, nil, cfg, 0, 1)
	if err != nil {
		t.Fatalf("unexpected idle-timeout error: %v", err)
	}
	if summary.processed != 0 {
		t.Fatalf("expected processed=0, got %+v", summary)
	}
	close(idleConsumer.messages)
	close(idleConsumer.errors)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	canceledPC := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError),
	}
	canceledConsumer := &stubPartitionConsumerSource{consumers: map[int32]partitionConsumer{0: canceledPC}}
	if _, err := processPartition(ctx, canceledConsumer, client, nil, cfg, 0, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	close(canceledPC.messages)
	close(canceledPC.errors)
}

func TestRunReplay(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicSettlementRequests, limit: 1, idleTimeout: 20 * time.Millisecond}

	if err := runReplay(context.Background(), cfg, nil, nil, nil); err == nil {
		t.Fatal("expected missing deps error")
	}

	client := &stubOffsetClient{
		partitions: []int32{2, 0},
		offsets: map[int32]offsetRange{
			0: {oldest: 0, newest: 2},
			2: {oldest: 0, newest: 2},
		},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqValue(t, validRequest("cs_1"), "boom"),
			}}),
			2: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 2,
				Offset:    0,
				Value:     dlqValue(t, validRequest("cs_2"), "boom"),
			}}),
		},
	}

	if err := runReplay(context.Background(), cfg, client, consumer, nil); err != nil {
		t.Fatalf("runReplay failed: %v", err)
	}
	if len(consumer.calls) != 1 {
		t.Fatalf("expected one partition due limit=1, got calls=%d", len(consumer.calls))
	}
	if consumer.calls[0].partition != 0 {
		t.Fatalf("expected first sorted partition=0, got %d", consumer.calls[0].partition)
	}

	executeCfg := cfg
	executeCfg.execute = true
	if err := runReplay(context.Background(), executeCfg, client, consumer, nil); err == nil {
		t.Fatal("expected execute mode to require producer")
	}

	emptyClient := &stubOffsetClient{partitions: nil}
	if err := runReplay(context.Background(), cfg, emptyClient, consumer, nil); err != nil {
		t.Fatalf("expected nil error for empty partitions, got %v", err)
	}
}

func TestRun_UsesDependencies(t *testing.T) {
	oldDeps := newReplayDependencies
	defer func() { newReplayDependencies = oldDeps }()

	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, targetTopic: kafka.TopicSettlementRequests, limit: 1, idleTimeout: 20 * time.Millisecond}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return nil, nil, nil, errors.New("deps failed")
	}
	if err := run(context.Background(), cfg); err == nil || !strings.Contains(err.Error(), "deps failed") {
		t.Fatalf("expected deps error, got %v", err)
	}

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqValue(t, validRequest("cs_1"), "boom"),
			}}),
		},
	}
	producer := &stubReplayProducer{}

	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, producer, nil
	}
	if err := run(context.Background(), cfg); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !client.closed || !consumer.closed || !producer.closed {
		t.Fatalf("expected all deps to be closed: client=%v consumer=%v producer=%v", client.closed, consumer.closed, producer.closed)
	}
}

func TestMain_SuccessWithStubbedDeps(t *testing.T) {
	oldDeps := newReplayDependencies
	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	defer func() {
		newReplayDependencies = oldDeps
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	client := &stubOffsetClient{
		partitions: []int32{0},
		offsets:    map[int32]offsetRange{0: {oldest: 0, newest: 2}},
	}
	consumer := &stubPartitionConsumerSource{
		consumers: map[int32]partitionConsumer{
			0: closedPartitionConsumer([]*sarama.ConsumerMessage{{
				Partition: 0,
				Offset:    0,
				Value:     dlqValue(t, validRequest("cs_1"), "boom"),
			}}),
		},
	}
	newReplayDependencies = func(config) (offsetClient, partitionConsumerSource, replayProducer, error) {
		return client, consumer, nil, nil
	}

	os.Args = []string{"dlq-reprocess", "-brokers=broker:9092", "-limit=1", "-idle-timeout=50ms"}
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	main()
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("boom")
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func withFlagArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine

	os.Args = append([]string{"dlq-reprocess"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ExitOnError)

	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	fn()
}

type offsetRange struct {
	oldest int64
	newest int64
}

type stubOffsetClient struct {
	partitions    []int32
	partitionsErr error
	offsets       map[int32]offsetRange
	offsetErr     map[int32]error
	closed        bool
}

func (s *stubOffsetClient) GetOffset(_ string, partition int32, marker int64) (int64, error) {
	if err, ok := s.offsetErr[partition]; ok {
		return 0, err
	}

	r := s.offsets[partition]
	switch marker {
	case sarama.OffsetOldest:
		return r.oldest, nil
	case sarama.OffsetNewest:
		return r.newest, nil
	default:
		return 0, fmt.Errorf("unsupported marker %d", marker)
	}
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) {
	if s.partitionsErr != nil {
		return nil, s.partitionsErr
	}
	return append([]int32(nil), s.partitions...), nil
}

func (s *stubOffsetClient) Close() error {
	s.closed = true
	return nil
}

type consumeCall struct {
	partition int32
	offset    int64
}

type stubPartitionConsumerSource struct {
	consumers  map[int32]partitionConsumer
	consumeErr error
	calls      []consumeCall
	closed     bool
}

func (s *stubPartitionConsumerSource) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	s.calls = append(s.calls, consumeCall{partition: partition, offset: offset})
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, fmt.Errorf("partition %d not configured", partition)
	}
	return pc, nil
}

func (s *stubPartitionConsumerSource) Close() error {
	s.closed = true
	return nil
}

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error {
	s.closed = true
	return nil
}

func closedPartitionConsumer(messages []*sarama.ConsumerMessage) *stubPartitionConsumer {
	msgCh := make(chan *sarama.ConsumerMessage, len(messages))
	errCh := make(chan *sarama.ConsumerError)
	for _, msg := range messages {
		msgCh <- msg
	}
	close(msgCh)
	close(errCh)
	return &stubPartitionConsumer{messages: msgCh, errors: errCh}
}

type stubReplayProducer struct {
	sendErr error
	calls   int
	closed  bool
	lastMsg *sarama.ProducerMessage
}

func (s *stubReplayProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	s.calls++
	s.lastMsg = msg
	if s.sendErr != nil {
		return 0, 0, s.sendErr
	}
	return 0, int64(s.calls), nil
}

func (s *stubReplayProducer) Close() error {
	s.closed = true
	return nil
}
