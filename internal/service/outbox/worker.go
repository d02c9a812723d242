// Package outbox публикует записи transactional outbox в брокер сообщений.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Дефолты рассчитаны на спокойный фон: раз в секунду, сотня записей за проход.
const (
	defaultPollEvery   = time.Second
	defaultBatchLimit  = 100
	defaultAttempts    = 3
	defaultBackoffBase = 50 * time.Millisecond
)

var (
	publishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_outbox_publish_attempts_total",
		Help: "Total number of outbox publish attempts grouped by result.",
	}, []string{"result"})
	pendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_pending_records",
		Help: "Current number of pending records in transactional outbox.",
	})
	oldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest pending outbox record in seconds.",
	})
)

// Worker вычитывает pending-записи outbox и доставляет их в брокер.
// Запись, пережившая все попытки с ошибкой, уходит в DLQ и помечается failed.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	logger    *log.Entry

	pollEvery   time.Duration
	batchLimit  int
	attempts    int
	backoffBase time.Duration
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithDLQPublisher задаёт publisher, в который уходят записи после
// исчерпания попыток.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

// WithPollInterval задаёт период опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) { w.pollEvery = interval }
}

// WithBatchSize задаёт максимум записей за один цикл.
func WithBatchSize(batchSize int) Option {
	return func(w *Worker) { w.batchLimit = batchSize }
}

// WithMaxAttempts задаёт число попыток публикации одной записи.
func WithMaxAttempts(maxAttempts int) Option {
	return func(w *Worker) { w.attempts = maxAttempts }
}

// WithRetryBaseDelay задаёт базовую паузу экспоненциального backoff.
// Ноль отключает паузы между попытками.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) { w.backoffBase = delay }
}

// NewWorker создаёт воркер с настройками по умолчанию, поверх которых
// применяются опции. Некорректные значения приводятся к дефолтам.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:        repo,
		publisher:   publisher,
		pollEvery:   defaultPollEvery,
		batchLimit:  defaultBatchLimit,
		attempts:    defaultAttempts,
		backoffBase: defaultBackoffBase,
	}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "outbox-worker")
	}
	if w.pollEvery <= 0 {
		w.pollEvery = defaultPollEvery
	}
	if w.batchLimit <= 0 {
		w.batchLimit = defaultBatchLimit
	}
	if w.attempts <= 0 {
		w.attempts = defaultAttempts
	}
	if w.backoffBase < 0 {
		w.backoffBase = 0
	}

	return w
}

// Run крутит polling-цикл до отмены ctx. Первый проход выполняется сразу,
// не дожидаясь тикера.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	w.ProcessOnce(ctx)

	ticker := time.NewTicker(w.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.ProcessOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOnce выполняет один проход: снимает метрики backlog, забирает батч
// pending-записей и доставляет каждую.
func (w *Worker) ProcessOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	w.observeBacklog(ctx)

	batch, err := w.repo.PullPending(ctx, w.batchLimit)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return
	}

	for _, record := range batch {
		if ctx.Err() != nil {
			return
		}
		w.dispatch(ctx, record)
	}

	if len(batch) > 0 {
		w.observeBacklog(ctx)
	}
}

// dispatch доводит одну запись до терминального статуса: sent после удачной
// публикации, failed после исчерпания попыток.
func (w *Worker) dispatch(ctx context.Context, record domain.OutboxMessage) {
	err := w.deliver(ctx, record)
	if err == nil {
		if markErr := w.repo.MarkSent(ctx, record.ID); markErr != nil {
			w.logger.WithError(markErr).WithField("outbox_id", record.ID).Warn("failed to mark outbox as sent")
		}
		return
	}

	w.logger.WithError(err).WithFields(log.Fields{
		"outbox_id":  record.ID,
		"event_type": record.EventType,
	}).Error("outbox publish failed after retries")
	publishAttempts.WithLabelValues("failed").Inc()

	if dlqErr := w.divertToDLQ(record, err); dlqErr != nil {
		w.logger.WithError(dlqErr).WithField("outbox_id", record.ID).Warn("failed to publish to DLQ")
		publishAttempts.WithLabelValues("dlq_failed").Inc()
	}
	if markErr := w.repo.MarkFailed(ctx, record.ID); markErr != nil {
		w.logger.WithError(markErr).WithField("outbox_id", record.ID).Warn("failed to mark outbox as failed")
	}
}

// deliver публикует запись, повторяя попытки с экспоненциальной паузой.
func (w *Worker) deliver(ctx context.Context, record domain.OutboxMessage) error {
	for attempt := 1; ; attempt++ {
		err := w.publisher.Publish(record)
		if err == nil {
			publishAttempts.WithLabelValues("sent").Inc()
			return nil
		}
		publishAttempts.WithLabelValues("retry_error").Inc()

		if attempt >= w.attempts {
			return fmt.Errorf("publish failed after %d attempts: %w", w.attempts, err)
		}

		if delay := w.backoffDelay(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

// backoffDelay возвращает паузу перед попыткой attempt+1: base * 2^(attempt-1)
// с защитой от переполнения.
func (w *Worker) backoffDelay(attempt int) time.Duration {
	if w.backoffBase <= 0 {
		return 0
	}

	const ceiling = time.Duration(1<<63 - 1)
	delay := w.backoffBase
	for range attempt - 1 {
		if delay > ceiling/2 {
			return ceiling
		}
		delay <<= 1
	}
	return delay
}

// divertToDLQ заворачивает запись вместе с текстом ошибки и отправляет
// в dead letter queue. Без настроенного DLQ-публишера запись просто
// останется в статусе failed.
func (w *Worker) divertToDLQ(record domain.OutboxMessage, publishErr error) error {
	if w.dlq == nil {
		return nil
	}

	envelope := map[string]any{
		"outbox_id":        record.ID,
		"aggregate_type":   record.AggregateType,
		"aggregate_id":     record.AggregateID,
		"event_type":       record.EventType,
		"payload":          json.RawMessage(record.Payload),
		"publish_error":    publishErr.Error(),
		"dlq_published_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	dead := record
	dead.Payload = payload
	if err := w.dlq.Publish(dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}

	return nil
}

// observeBacklog обновляет gauge-метрики размера и возраста backlog.
func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	pendingRecords.Set(float64(stats.PendingCount))

	age := 0.0
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		if age = time.Since(stats.OldestPendingAt).Seconds(); age < 0 {
			age = 0
		}
	}
	oldestPendingAge.Set(age)
}
