package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func enqueueOutboxForTest(t *testing.T, ctx context.Context, repo domain.OutboxRepository, msg domain.OutboxMessage) domain.OutboxMessage {
	t.Helper()
	stored, err := repo.Enqueue(ctx, msg)
	require.NoErrorf(t, err, "enqueue %s/%s", msg.AggregateType, msg.AggregateID)
	return stored
}

func expectPendingCount(t *testing.T, ctx context.Context, repo domain.OutboxRepository, want int) domain.OutboxStats {
	t.Helper()
	stats, err := repo.Stats(ctx)
	require.NoError(t, err, "outbox stats")
	require.Equal(t, want, stats.PendingCount, "pending count")
	return stats
}

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	repo := NewOutboxRepository(openPostgresStoreForIntegrationTest(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stockMsg := enqueueOutboxForTest(t, ctx, repo, domain.OutboxMessage{
		AggregateType: "item",
		AggregateID:   "item-1",
		EventType:     "stock.adjusted",
		Payload:       []byte(`{"item_id":"item-1","delta":-3}`),
	})
	require.NotEmpty(t, stockMsg.ID, "id must be generated when omitted")

	couponMsg := enqueueOutboxForTest(t, ctx, repo, domain.OutboxMessage{
		ID:            "outbox-fixed-id",
		AggregateType: "coupon",
		AggregateID:   "coupon-2",
		EventType:     "coupon.redeemed",
		Payload:       []byte(`{"coupon_id":"coupon-2"}`),
	})
	require.Equal(t, "outbox-fixed-id", couponMsg.ID, "explicit id must survive enqueue")

	// PullPending с нулевым лимитом выбирает все по умолчанию, в порядке записи.
	pending, err := repo.PullPending(ctx, 0)
	require.NoError(t, err, "pull pending")
	require.Len(t, pending, 2)
	require.Equal(t, stockMsg.ID, pending[0].ID, "enqueue order")
	require.Equal(t, couponMsg.ID, pending[1].ID, "enqueue order")

	stats := expectPendingCount(t, ctx, repo, 2)
	require.False(t, stats.OldestPendingAt.IsZero(), "oldest pending timestamp")

	require.NoError(t, repo.MarkSent(ctx, stockMsg.ID), "mark sent")
	require.NoError(t, repo.MarkFailed(ctx, couponMsg.ID), "mark failed")

	after, err := repo.PullPending(ctx, 10)
	require.NoError(t, err, "pull pending after marks")
	require.Empty(t, after, "sent and failed rows must leave the queue")
	expectPendingCount(t, ctx, repo, 0)
}

func TestOutboxRepository_PostgresMissingRows(t *testing.T) {
	repo := NewOutboxRepository(openPostgresStoreForIntegrationTest(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Отметка несуществующей записи не проходит молча.
	require.ErrorIs(t, repo.MarkSent(ctx, "missing-outbox"), domain.ErrOutboxPublish)
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing-outbox"), domain.ErrOutboxPublish)
}

func TestOutboxRepository_PostgresStatsOldestPending(t *testing.T) {
	repo := NewOutboxRepository(openPostgresStoreForIntegrationTest(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	older := enqueueOutboxForTest(t, ctx, repo, domain.OutboxMessage{
		AggregateType: "checkout",
		AggregateID:   "user-old",
		EventType:     "checkout.completed",
		Payload:       []byte(`{"user_id":"user-old"}`),
	})

	time.Sleep(10 * time.Millisecond)

	enqueueOutboxForTest(t, ctx, repo, domain.OutboxMessage{
		AggregateType: "checkout",
		AggregateID:   "user-new",
		EventType:     "checkout.completed",
		Payload:       []byte(`{"user_id":"user-new"}`),
	})

	stats := expectPendingCount(t, ctx, repo, 2)
	require.False(t, stats.OldestPendingAt.IsZero(), "oldest pending time")

	// После отправки старшего сообщения возраст очереди сокращается.
	require.NoError(t, repo.MarkSent(ctx, older.ID), "mark sent older")
	next := expectPendingCount(t, ctx, repo, 1)
	require.Truef(t, next.OldestPendingAt.After(stats.OldestPendingAt),
		"oldest pending should advance: %v -> %v", stats.OldestPendingAt, next.OldestPendingAt)
}
