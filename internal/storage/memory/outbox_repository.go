package memory

import (
	"bytes"
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Статусная машина повторяет postgres-реализацию: pending -> sent | failed.
const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"
)

// outboxRecord — сообщение outbox вместе со служебными полями хранилища.
type outboxRecord struct {
	message    domain.OutboxMessage
	status     string
	attempts   int
	enqueuedAt time.Time
	touchedAt  time.Time
}

// outboxRepositoryInMemory — простое in-memory хранилище для transactional outbox.
type outboxRepositoryInMemory struct {
	s *Store
}

// Enqueue сохраняет событие со статусом pending и возвращает его с идентификатором.
func (r *outboxRepositoryInMemory) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = bytes.Clone(msg.Payload)

	now := time.Now().UTC()
	r.s.data.outbox[msg.ID] = outboxRecord{
		message:    msg,
		status:     outboxPending,
		enqueuedAt: now,
		touchedAt:  now,
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом pending
// в порядке постановки.
func (r *outboxRepositoryInMemory) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	pending := make([]outboxRecord, 0, len(r.s.data.outbox))
	for _, rec := range r.s.data.outbox {
		if rec.status == outboxPending {
			pending = append(pending, rec)
		}
	}
	slices.SortFunc(pending, func(a, b outboxRecord) int {
		if c := a.enqueuedAt.Compare(b.enqueuedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.message.ID, b.message.ID)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}

	batch := make([]domain.OutboxMessage, 0, len(pending))
	for _, rec := range pending {
		batch = append(batch, rec.message)
	}
	return batch, nil
}

// Stats возвращает количество и возраст необработанных сообщений.
func (r *outboxRepositoryInMemory) Stats(ctx context.Context) (domain.OutboxStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var stats domain.OutboxStats
	for _, rec := range r.s.data.outbox {
		if rec.status != outboxPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.enqueuedAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.enqueuedAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepositoryInMemory) MarkSent(ctx context.Context, id string) error {
	return r.markStatus(id, outboxSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepositoryInMemory) MarkFailed(ctx context.Context, id string) error {
	return r.markStatus(id, outboxFailed)
}

func (r *outboxRepositoryInMemory) markStatus(id, status string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	record, ok := r.s.data.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	record.status = status
	record.attempts++
	record.touchedAt = time.Now().UTC()
	r.s.data.outbox[id] = record
	return nil
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
