package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// EventType определяет тип события
type EventType string

const (
	// События остатков
	EventTypeStockAdjusted EventType = "stock.adjusted"
	EventTypeStockSync     EventType = "stock.sync"

	// События купонов
	EventTypeCouponRedeemed EventType = "coupon.redeemed"

	// События оформления заказа
	EventTypeCheckoutCompleted EventType = "checkout.completed"
)

// Topics для Kafka
const (
	TopicStockEvents     = "storefront.stock.events"
	TopicCheckoutEvents  = "storefront.checkout.events"
	TopicStockSync       = "storefront.stock.sync" // Входящие снимки остатков со склада
	TopicDeadLetterQueue = "storefront.dlq"        // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// StockSyncEvent — снимок остатка по артикулу из складской системы.
// Применяется к каталогу идемпотентно: повторная доставка того же
// снимка ничего не меняет.
type StockSyncEvent struct {
	SKU       string    `json:"sku"`
	Quantity  int64     `json:"quantity"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewStockSyncEvent создает событие снимка остатка.
func NewStockSyncEvent(sku string, quantity int64, source string) *StockSyncEvent {
	return &StockSyncEvent{
		SKU:       sku,
		Quantity:  quantity,
		Source:    source,
		Timestamp: time.Now(),
	}
}

// ParseStockSyncEvent разбирает снимок остатка из сообщения Kafka.
func ParseStockSyncEvent(message *sarama.ConsumerMessage) (*StockSyncEvent, error) {
	var event StockSyncEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stock sync event: %w", err)
	}
	return &event, nil
}

// DLQRecord — обёртка вокруг сообщения, попавшего в Dead Letter Queue.
// Хранит исходное тело как строку, чтобы переотправка могла восстановить
// его байт в байт.
type DLQRecord struct {
	OriginalTopic     string `json:"original_topic"`
	OriginalPartition int32  `json:"original_partition"`
	OriginalOffset    int64  `json:"original_offset"`
	OriginalKey       string `json:"original_key"`
	OriginalValue     string `json:"original_value"`
	ErrorMessage      string `json:"error_message"`
	FailedAt          string `json:"failed_at"`
	RetryCount        int    `json:"retry_count"`
}

// ParseDLQRecord разбирает запись Dead Letter Queue из сообщения Kafka.
func ParseDLQRecord(message *sarama.ConsumerMessage) (*DLQRecord, error) {
	var record DLQRecord
	if err := json.Unmarshal(message.Value, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dlq record: %w", err)
	}
	return &record, nil
}
