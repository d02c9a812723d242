package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в Kafka, раскладывая
// их по топикам в зависимости от типа события.
type OutboxTopicPublisher struct {
	producer     *Producer
	defaultTopic string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, defaultTopic string) domain.OutboxPublisher {
	if defaultTopic == "" {
		defaultTopic = TopicCheckoutEvents
	}
	return &OutboxTopicPublisher{
		producer:     producer,
		defaultTopic: defaultTopic,
	}
}

// outboxEnvelope — формат записи в топике событий. Тот же конверт
// разбирает cmd/dlq-reprocess при восстановлении сообщений из DLQ.
type outboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

func buildEnvelope(event domain.OutboxMessage) outboxEnvelope {
	return outboxEnvelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}
}

func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}
	return p.producer.PublishEvent(p.topicFor(event.EventType), messageKey(event), buildEnvelope(event))
}

// messageKey — ключ партиционирования: агрегат, а при его отсутствии id записи.
func messageKey(event domain.OutboxMessage) string {
	if event.AggregateID != "" {
		return event.AggregateID
	}
	return event.ID
}

// topicFor выбирает топик по типу события: складские события идут в
// отдельный топик, всё остальное в топик по умолчанию.
func (p *OutboxTopicPublisher) topicFor(eventType string) string {
	if strings.HasPrefix(eventType, "stock.") {
		return TopicStockEvents
	}
	return p.defaultTopic
}

// DLQPublisher пишет сообщения только в Dead Letter Queue, без маршрутизации
// по типу события. Payload уже содержит конверт с причиной ошибки, поэтому
// публикуется как есть.
type DLQPublisher struct {
	producer *Producer
}

// NewDLQPublisher создаёт паблишер для сообщений, исчерпавших попытки доставки.
func NewDLQPublisher(producer *Producer) domain.OutboxPublisher {
	return &DLQPublisher{producer: producer}
}

func (p *DLQPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}
	return p.producer.PublishRaw(TopicDeadLetterQueue, messageKey(event), event.Payload)
}

var (
	_ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
	_ domain.OutboxPublisher = (*DLQPublisher)(nil)
)
