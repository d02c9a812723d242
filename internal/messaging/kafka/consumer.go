package kafka

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает одно сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

const (
	// Пауза между повторными попытками обработки одного сообщения.
	defaultRetryDelay = 500 * time.Millisecond
	// Бюджет попыток для consumer без явной настройки.
	defaultMaxRetries = 3
)

// Consumer — consumer group с повторами обработки и отправкой в DLQ.
// Сообщение, пережившее все попытки, уходит в dead letter queue и
// считается обработанным; без DLQ-продюсера оно остаётся немаркированным.
type Consumer struct {
	group      sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	logger     *log.Entry
	wg         sync.WaitGroup
	dlq        *Producer
	maxRetries int
	retryDelay time.Duration
}

// groupConfig — настройки consumer group: ошибки наружу, чтение со свежих
// офсетов, round-robin распределение партиций между участниками.
func groupConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	return config
}

// NewConsumer создает consumer без DLQ: после исчерпания попыток сообщение
// остаётся немаркированным и будет перечитано.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler) (*Consumer, error) {
	return NewConsumerWithDLQ(brokers, groupID, topics, handler, nil, defaultMaxRetries)
}

// NewConsumerWithDLQ создает consumer group с поддержкой Dead Letter Queue.
func NewConsumerWithDLQ(brokers []string, groupID string, topics []string, handler MessageHandler, dlqProducer *Producer, maxRetries int) (*Consumer, error) {
	group, err := sarama.NewConsumerGroup(brokers, groupID, groupConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &Consumer{
		group:      group,
		topics:     topics,
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer"),
		dlq:        dlqProducer,
		maxRetries: maxRetries,
		retryDelay: defaultRetryDelay,
	}, nil
}

// Start запускает фоновое потребление и возвращается сразу.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(2)
	go c.consumeLoop(ctx)
	go c.relayGroupErrors()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// consumeLoop перезапускает Consume до отмены ctx: при rebalance вызов
// возвращается, и сессию нужно открывать заново.
func (c *Consumer) consumeLoop(ctx context.Context) {
	defer c.wg.Done()

	for ctx.Err() == nil {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			c.logger.WithError(err).Error("error from consumer")
		}
	}
}

// relayGroupErrors переливает ошибки группы в лог до закрытия канала.
func (c *Consumer) relayGroupErrors() {
	defer c.wg.Done()

	for err := range c.group.Errors() {
		c.logger.WithError(err).Error("consumer error")
	}
}

// Stop закрывает группу и дожидается фоновых горутин.
func (c *Consumer) Stop() error {
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup — часть sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup — часть sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения одной партиционной сессии.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	messages := claim.Messages()
	for {
		select {
		case message, ok := <-messages:
			if !ok || message == nil {
				return nil
			}
			c.consumeOne(session, message)
		case <-session.Context().Done():
			return nil
		}
	}
}

// consumeOne доводит одно сообщение до отметки в сессии. Необработанное
// сообщение не маркируется: оно либо уже в DLQ, либо будет перечитано.
func (c *Consumer) consumeOne(session sarama.ConsumerGroupSession, message *sarama.ConsumerMessage) {
	origin := log.Fields{
		"topic":     message.Topic,
		"partition": message.Partition,
		"offset":    message.Offset,
	}
	c.logger.WithFields(origin).Debug("received message")

	if err := c.processWithRetry(session.Context(), message); err != nil {
		c.logger.WithError(err).WithFields(origin).Error("message processing failed after all retries")
		return
	}

	session.MarkMessage(message, "")
}

// processWithRetry гоняет handler до первого успеха, затем доводит
// сообщение до DLQ. Сообщение, уже побывавшее в переотправке, получает
// меньше попыток внутри процесса: бюджет уменьшается на счётчик из
// заголовка x-retry-count.
func (c *Consumer) processWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	attempts := c.attemptBudget(message)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = c.handler(ctx, message); lastErr == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		c.logger.WithError(lastErr).WithFields(log.Fields{
			"topic":       message.Topic,
			"attempt":     attempt,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, will retry")

		if c.retryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}

	if c.dlq == nil {
		return lastErr
	}

	if dlqErr := c.divertToDLQ(message, lastErr); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": retryCountOf(message),
	}).Info("message sent to DLQ after max retries")

	// Сообщение в DLQ — для сессии оно обработано.
	return nil
}

// attemptBudget возвращает число попыток обработки внутри процесса,
// минимум одну.
func (c *Consumer) attemptBudget(message *sarama.ConsumerMessage) int {
	budget := c.maxRetries - retryCountOf(message)
	if budget < 1 {
		return 1
	}
	return budget
}

// retryCountOf извлекает счётчик переотправок из заголовков сообщения.
func retryCountOf(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if string(header.Key) != HeaderRetryCount {
			continue
		}
		if count, err := strconv.Atoi(string(header.Value)); err == nil {
			return count
		}
	}
	return 0
}

// divertToDLQ публикует необработанное сообщение в dead letter queue,
// сохраняя исходное тело байт в байт.
func (c *Consumer) divertToDLQ(message *sarama.ConsumerMessage, processingErr error) error {
	record := DLQRecord{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      processingErr.Error(),
		FailedAt:          time.Now().UTC().Format(time.RFC3339),
		RetryCount:        retryCountOf(message),
	}

	return c.dlq.PublishEvent(TopicDeadLetterQueue, string(message.Key), record)
}
