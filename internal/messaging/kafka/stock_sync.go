package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// StockApplier применяет снимки остатков к каталогу.
// Реализуется сервисом каталога.
type StockApplier interface {
	GetBySKU(ctx context.Context, sku string) (*domain.Item, error)
	SetStock(ctx context.Context, itemID string, quantity int64) (*domain.Item, error)
}

// StockSyncConsumer читает снимки остатков со склада и применяет их
// к каталогу. Снимок абсолютный, поэтому повторная доставка безопасна.
type StockSyncConsumer struct {
	consumer *Consumer
	catalog  StockApplier
	logger   *log.Entry
}

// NewStockSyncConsumer создает consumer снимков остатков с поддержкой DLQ.
func NewStockSyncConsumer(brokers []string, groupID string, catalog StockApplier, dlqProducer *Producer, maxRetries int) (*StockSyncConsumer, error) {
	sc := &StockSyncConsumer{
		catalog: catalog,
		logger:  log.WithField("component", "stock-sync-consumer"),
	}

	consumer, err := NewConsumerWithDLQ(brokers, groupID, []string{TopicStockSync}, sc.handleMessage, dlqProducer, maxRetries)
	if err != nil {
		return nil, err
	}

	sc.consumer = consumer
	return sc, nil
}

// Start запускает consumer
func (sc *StockSyncConsumer) Start(ctx context.Context) error {
	return sc.consumer.Start(ctx)
}

// Stop останавливает consumer
func (sc *StockSyncConsumer) Stop() error {
	return sc.consumer.Stop()
}

// handleMessage применяет один снимок остатка к каталогу.
// Неизвестный SKU пропускается: склад знает больше артикулов, чем
// продаёт витрина, и такие снимки не должны засорять DLQ.
func (sc *StockSyncConsumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	event, err := ParseStockSyncEvent(message)
	if err != nil {
		return err
	}

	if event.SKU == "" {
		return fmt.Errorf("stock sync event without sku")
	}
	if event.Quantity < 0 {
		return fmt.Errorf("stock sync event for sku %s has negative quantity %d", event.SKU, event.Quantity)
	}

	item, err := sc.catalog.GetBySKU(ctx, event.SKU)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			sc.logger.WithFields(log.Fields{
				"sku":      event.SKU,
				"quantity": event.Quantity,
			}).Warn("stock sync for unknown sku, skipping")
			return nil
		}
		return fmt.Errorf("lookup item by sku %s: %w", event.SKU, err)
	}

	updated, err := sc.catalog.SetStock(ctx, item.ID, event.Quantity)
	if err != nil {
		return fmt.Errorf("set stock for sku %s: %w", event.SKU, err)
	}

	sc.logger.WithFields(log.Fields{
		"sku":      updated.SKU,
		"item_id":  updated.ID,
		"quantity": updated.StockQuantity,
		"source":   event.Source,
	}).Info("stock snapshot applied")

	return nil
}
