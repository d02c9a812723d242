package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second
)

// settings — параметры прогона, собранные из флагов и окружения.
type settings struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// candidate — сообщение, готовое к повторной публикации.
type candidate struct {
	topic string
	key   string
	value []byte
}

// failedPublication — плоская запись, которую outbox-воркер кладёт в DLQ,
// когда публикация исчерпала попытки.
type failedPublication struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// wireEnvelope повторяет формат, в котором outbox-события уходят в Kafka
// при обычной публикации.
type wireEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// Узкие интерфейсы поверх sarama, чтобы прогону можно было подсовывать
// заглушки в тестах.
type clusterMeta interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type messageStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type streamFactory interface {
	OpenStream(topic string, partition int32, offset int64) (messageStream, error)
	Close() error
}

type replaySink interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaStreams struct {
	consumer sarama.Consumer
}

func (s saramaStreams) OpenStream(topic string, partition int32, offset int64) (messageStream, error) {
	pc, err := s.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (s saramaStreams) Close() error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Close()
}

// openKafka подменяется в тестах, чтобы прогнать main без брокера.
var openKafka = func(cfg settings) (clusterMeta, streamFactory, replaySink, error) {
	sourceConf := sarama.NewConfig()
	sourceConf.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, sourceConf)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	streams := saramaStreams{consumer: rawConsumer}

	// В dry-run продюсер не нужен, подключение не открываем.
	if !cfg.execute {
		return client, streams, nil, nil
	}

	// Та же идемпотентная конфигурация, что у основного продюсера сервиса.
	replayConf := sarama.NewConfig()
	replayConf.Producer.Idempotent = true
	replayConf.Producer.RequiredAcks = sarama.WaitForAll
	replayConf.Net.MaxOpenRequests = 1
	replayConf.Producer.Retry.Max = 5
	replayConf.Producer.Return.Successes = true
	replayConf.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewSyncProducer(cfg.brokers, replayConf)
	if err != nil {
		_ = streams.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, streams, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := parseSettings()
	if err != nil {
		exitf("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		exitf("dlq replay failed: %v", err)
	}
}

func parseSettings() (settings, error) {
	var (
		brokersRaw string
		cfg        settings
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: STOREFRONT_KAFKA_BROKERS)")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicCheckoutEvents, "target topic for outbox replays without explicit routing")
	flag.IntVar(&cfg.limit, "limit", defaultScanLimit, "max number of messages to scan/replay")
	flag.BoolVar(&cfg.execute, "execute", false, "perform the replay; without this flag the tool runs dry")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "start from the newest offsets, bounded by limit")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "how long to wait on a quiet partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("STOREFRONT_KAFKA_BROKERS")
	}
	cfg.brokers = splitBrokers(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return settings{}, fmt.Errorf("kafka brokers are required (-brokers or STOREFRONT_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return settings{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return settings{}, fmt.Errorf("target-topic is required")
	case cfg.limit <= 0:
		return settings{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return settings{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return cfg, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg settings) error {
	meta, streams, sink, err := openKafka(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sink != nil {
			_ = sink.Close()
		}
		if streams != nil {
			_ = streams.Close()
		}
		if meta != nil {
			_ = meta.Close()
		}
	}()

	scan := &replayRun{cfg: cfg, meta: meta, streams: streams, sink: sink}
	return scan.execute(ctx)
}

// replayRun — один проход по DLQ. Счётчики накапливаются по всем партициям.
type replayRun struct {
	cfg     settings
	meta    clusterMeta
	streams streamFactory
	sink    replaySink

	scanned  int
	requeued int
	dropped  int
}

func (rr *replayRun) execute(ctx context.Context) error {
	if rr.meta == nil || rr.streams == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if rr.cfg.execute && rr.sink == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	log.WithFields(log.Fields{
		"source_topic": rr.cfg.sourceTopic,
		"target_topic": rr.cfg.targetTopic,
		"limit":        rr.cfg.limit,
		"execute":      rr.cfg.execute,
		"from_newest":  rr.cfg.fromNewest,
	}).Info("starting dlq replay")

	partitions, err := rr.meta.Partitions(rr.cfg.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", rr.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", rr.cfg.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		if rr.scanned >= rr.cfg.limit {
			break
		}
		if err := rr.drainPartition(ctx, partition); err != nil {
			return err
		}
	}

	mode := "dry-run"
	if rr.cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": rr.scanned,
		"replayed":  rr.requeued,
		"skipped":   rr.dropped,
	}).Info("dlq replay finished")

	return nil
}

// drainPartition вычитывает одну партицию от стартового смещения до
// зафиксированного на момент запуска конца, не превышая общий лимит.
func (rr *replayRun) drainPartition(ctx context.Context, partition int32) error {
	budget := rr.cfg.limit - rr.scanned
	if budget <= 0 {
		return nil
	}

	oldest, err := rr.meta.GetOffset(rr.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := rr.meta.GetOffset(rr.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return nil
	}

	start := oldest
	if rr.cfg.fromNewest {
		if start = newest - int64(budget); start < oldest {
			start = oldest
		}
	}

	stream, err := rr.streams.OpenStream(rr.cfg.sourceTopic, partition, start)
	if err != nil {
		return fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	idle := time.NewTimer(rr.cfg.idleTimeout)
	defer idle.Stop()

	for taken := 0; taken < budget; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-stream.Errors():
			if err != nil {
				return fmt.Errorf("partition %d consumer error: %w", partition, err)
			}
		case msg, ok := <-stream.Messages():
			if !ok || msg == nil {
				return nil
			}
			resetTimer(idle, rr.cfg.idleTimeout)

			// Конец зафиксирован на старте: всё, что записано позже, не трогаем.
			if msg.Offset >= newest {
				return nil
			}

			taken++
			rr.scanned++
			if err := rr.handle(msg); err != nil {
				return err
			}

			if msg.Offset+1 >= newest {
				return nil
			}
		case <-idle.C:
			return nil
		}
	}

	return nil
}

func (rr *replayRun) handle(msg *sarama.ConsumerMessage) error {
	cand, ok, err := decodeRecord(msg, rr.cfg.targetTopic)
	if err != nil {
		rr.dropped++
		log.WithError(err).WithFields(log.Fields{
			"partition": msg.Partition,
			"offset":    msg.Offset,
		}).Warn("skip unsupported dlq message")
		return nil
	}
	if !ok {
		rr.dropped++
		return nil
	}

	if !rr.cfg.execute {
		log.WithFields(log.Fields{
			"partition":    msg.Partition,
			"offset":       msg.Offset,
			"target_topic": cand.topic,
			"key":          cand.key,
		}).Info("dlq replay candidate")
		rr.requeued++
		return nil
	}

	if err := forward(rr.sink, cand); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	rr.requeued++
	return nil
}

func forward(sink replaySink, cand candidate) error {
	if sink == nil {
		return fmt.Errorf("producer is nil")
	}
	_, _, err := sink.SendMessage(&sarama.ProducerMessage{
		Topic:     cand.topic,
		Key:       sarama.StringEncoder(cand.key),
		Value:     sarama.ByteEncoder(cand.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

// decodeRecord восстанавливает исходное сообщение из DLQ-записи. Сначала
// пробуем формат outbox-воркера, затем формат консьюмера (kafka.DLQRecord).
// Чужие сообщения пропускаются молча.
func decodeRecord(msg *sarama.ConsumerMessage, fallbackTopic string) (candidate, bool, error) {
	var failed failedPublication
	if err := json.Unmarshal(msg.Value, &failed); err == nil && (failed.OutboxID != "" || failed.EventType != "") {
		return rebuildOutboxEvent(failed, fallbackTopic)
	}

	record, err := kafka.ParseDLQRecord(msg)
	if err != nil || record.OriginalValue == "" {
		return candidate{}, false, nil
	}

	topic := strings.TrimSpace(record.OriginalTopic)
	if topic == "" {
		topic = fallbackTopic
	}
	return candidate{
		topic: topic,
		key:   record.OriginalKey,
		value: []byte(record.OriginalValue),
	}, true, nil
}

// rebuildOutboxEvent заново заворачивает исходное событие в конверт обычной
// публикации со свежим published_at.
func rebuildOutboxEvent(failed failedPublication, fallbackTopic string) (candidate, bool, error) {
	if len(failed.Payload) == 0 {
		return candidate{}, false, fmt.Errorf("outbox dlq record does not contain original event payload")
	}

	envelope := wireEnvelope{
		ID:            failed.OutboxID,
		AggregateType: failed.AggregateType,
		AggregateID:   failed.AggregateID,
		EventType:     failed.EventType,
		Payload:       failed.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		return candidate{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	// Складские события возвращаются в свой топик, как при обычной публикации.
	topic := fallbackTopic
	if strings.HasPrefix(envelope.EventType, "stock.") {
		topic = kafka.TopicStockEvents
	}

	key := strings.TrimSpace(envelope.AggregateID)
	if key == "" {
		key = envelope.ID
	}

	return candidate{topic: topic, key: key, value: encoded}, true, nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func exitf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
