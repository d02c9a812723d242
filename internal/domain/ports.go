package domain

import (
	"context"
	"time"
)

// OutboxMessage — запись transactional outbox: событие, сохранённое в одной
// транзакции с изменением состояния и публикуемое позже.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats — размер и возраст очереди неотправленных событий.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxPublisher доставляет события outbox во внешнюю шину.
type OutboxPublisher interface {
	// Publish обязан быть идемпотентным: воркер может повторить доставку.
	Publish(event OutboxMessage) error
}

// OutboxRepository сохраняет события в той же атомарной единице, что и
// породившее их изменение, и отдаёт их воркеру публикации.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// IdempotencyRepository ведёт учёт запросов по Idempotency-Key: от захвата
// ключа до сохранённого ответа и его фоновой чистки.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
