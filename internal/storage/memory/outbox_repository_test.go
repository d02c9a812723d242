package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func mustEnqueueOutbox(t *testing.T, repo domain.OutboxRepository, msg domain.OutboxMessage) domain.OutboxMessage {
	t.Helper()
	saved, err := repo.Enqueue(context.Background(), msg)
	if err != nil {
		t.Fatalf("enqueue %s/%s: %v", msg.AggregateType, msg.EventType, err)
	}
	return saved
}

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	repo := memory.NewStore().Repos().Outbox()
	ctx := context.Background()

	payload := []byte(`{"coupon_id":"coupon-1"}`)
	saved := mustEnqueueOutbox(t, repo, domain.OutboxMessage{
		AggregateType: "coupon",
		AggregateID:   "coupon-1",
		EventType:     "coupon.redeemed",
		Payload:       payload,
	})
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	// Хранится копия payload, правка слайса вызывающего её не задевает.
	payload[2] = 'X'

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != saved.ID {
		t.Fatalf("pending = %+v, want the single enqueued message", pending)
	}
	if string(pending[0].Payload) != `{"coupon_id":"coupon-1"}` {
		t.Fatalf("payload picked up caller mutation: %s", pending[0].Payload)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 1 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestOutboxRepository_PullPendingOrderAndLimit(t *testing.T) {
	repo := memory.NewStore().Repos().Outbox()
	ctx := context.Background()

	// Паузы разводят enqueued_at, иначе порядок определял бы случайный uuid.
	first := mustEnqueueOutbox(t, repo, domain.OutboxMessage{AggregateType: "item", EventType: "stock.adjusted"})
	time.Sleep(2 * time.Millisecond)
	second := mustEnqueueOutbox(t, repo, domain.OutboxMessage{AggregateType: "item", EventType: "stock.adjusted"})
	time.Sleep(2 * time.Millisecond)
	mustEnqueueOutbox(t, repo, domain.OutboxMessage{AggregateType: "checkout", EventType: "checkout.completed"})

	pending, err := repo.PullPending(ctx, 2)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("limit ignored, got %d messages", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("pull order = %s, %s; want %s, %s", pending[0].ID, pending[1].ID, first.ID, second.ID)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	repo := memory.NewStore().Repos().Outbox()
	ctx := context.Background()

	saved := mustEnqueueOutbox(t, repo, domain.OutboxMessage{AggregateType: "item"})
	if err := repo.MarkSent(ctx, saved.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("sent message is still pending: %d", len(pending))
	}

	// Запись в терминальном статусе остаётся адресуемой, незнакомый id — нет.
	if err := repo.MarkFailed(ctx, saved.ID); err != nil {
		t.Fatalf("mark failed after sent: %v", err)
	}
	if err := repo.MarkFailed(ctx, "missing"); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish for missing record, got %v", err)
	}
}
