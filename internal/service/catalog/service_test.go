package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newTestService() (*Service, *memory.Store) {
	store := memory.NewStore()
	return NewService(store, log.New().WithField("test", "catalog")), store
}

func sampleInput() CreateInput {
	return CreateInput{
		SKU:           "HDPH-0001",
		Name:          "Наушники студийные",
		CategoryID:    "cat-audio",
		PriceMinor:    1599000,
		StockQuantity: 10,
	}
}

func pullEvents(t *testing.T, store *memory.Store, eventType string) []domain.OutboxMessage {
	t.Helper()

	msgs, err := store.Repos().Outbox().PullPending(context.Background(), 100)
	if err != nil {
		t.Fatalf("pull pending failed: %v", err)
	}
	filtered := msgs[:0]
	for _, m := range msgs {
		if m.EventType == eventType {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

func TestService_CreateAndGet(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, sampleInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" || created.Version != 1 || !created.Active {
		t.Fatalf("unexpected created item: %+v", created)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SKU != "HDPH-0001" || got.StockQuantity != 10 {
		t.Fatalf("unexpected item: %+v", got)
	}

	bySKU, err := svc.GetBySKU(ctx, "HDPH-0001")
	if err != nil {
		t.Fatalf("get by sku failed: %v", err)
	}
	if bySKU.ID != created.ID {
		t.Fatalf("expected same item, got %s vs %s", bySKU.ID, created.ID)
	}

	if _, err := svc.Create(ctx, sampleInput()); !errors.Is(err, domain.ErrItemSKUTaken) {
		t.Fatalf("expected ErrItemSKUTaken, got %v", err)
	}
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	bad := sampleInput()
	bad.SKU = ""
	bad.PriceMinor = -1
	_, err := svc.Create(ctx, bad)
	if !errors.Is(err, domain.ErrItemSKURequired) {
		t.Fatalf("expected ErrItemSKURequired in %v", err)
	}
	if !errors.Is(err, domain.ErrItemPriceInvalid) {
		t.Fatalf("expected ErrItemPriceInvalid in %v", err)
	}
}

func TestService_UpdateAndDeactivate(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, sampleInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := svc.Update(ctx, created.ID, UpdateInput{
		Name:       "Наушники студийные, чёрные",
		CategoryID: "cat-audio",
		PriceMinor: 1499000,
		Active:     true,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.PriceMinor != 1499000 || updated.Version != created.Version+1 {
		t.Fatalf("unexpected updated item: %+v", updated)
	}

	bad := UpdateInput{Name: "", CategoryID: "cat-audio", PriceMinor: 100, Active: true}
	if _, err := svc.Update(ctx, created.ID, bad); !errors.Is(err, domain.ErrItemNameRequired) {
		t.Fatalf("expected ErrItemNameRequired, got %v", err)
	}
	if _, err := svc.Update(ctx, "missing", UpdateInput{Name: "x", PriceMinor: 1}); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	if err := svc.Deactivate(ctx, created.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Active {
		t.Fatal("item must be inactive")
	}
	// Повторная деактивация — no-op.
	if err := svc.Deactivate(ctx, created.ID); err != nil {
		t.Fatalf("repeated deactivate failed: %v", err)
	}
}

func TestService_AdjustStock(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, sampleInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	item, err := svc.AdjustStock(ctx, created.ID, -3)
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if item.StockQuantity != 7 {
		t.Fatalf("expected stock 7, got %d", item.StockQuantity)
	}

	if _, err := svc.AdjustStock(ctx, created.ID, -8); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.StockQuantity != 7 {
		t.Fatalf("stock must stay 7 after rejected adjust, got %d", got.StockQuantity)
	}

	if _, err := svc.AdjustStock(ctx, "missing", 1); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}

	// Успешная корректировка родила ровно одно событие, отказ — ни одного.
	events := pullEvents(t, store, "stock.adjusted")
	if len(events) != 1 {
		t.Fatalf("expected 1 stock.adjusted event, got %d", len(events))
	}
	var payload struct {
		ItemID     string `json:"item_id"`
		Delta      int64  `json:"delta"`
		StockAfter int64  `json:"stock_after"`
	}
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload failed: %v", err)
	}
	if payload.ItemID != created.ID || payload.Delta != -3 || payload.StockAfter != 7 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestService_AdjustStockZeroDeltaIsRead(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, sampleInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	item, err := svc.AdjustStock(ctx, created.ID, 0)
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if item.StockQuantity != 10 {
		t.Fatalf("expected stock 10, got %d", item.StockQuantity)
	}
	if events := pullEvents(t, store, "stock.adjusted"); len(events) != 0 {
		t.Fatalf("zero delta must not emit events, got %d", len(events))
	}
}

func TestService_SetStock(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	created, err := svc.Create(ctx, sampleInput())
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	item, err := svc.SetStock(ctx, created.ID, 4)
	if err != nil {
		t.Fatalf("set stock failed: %v", err)
	}
	if item.StockQuantity != 4 {
		t.Fatalf("expected stock 4, got %d", item.StockQuantity)
	}
	if item.Version != created.Version+1 {
		t.Fatalf("expected version bump, got %d", item.Version)
	}

	events := pullEvents(t, store, "stock.adjusted")
	if len(events) != 1 {
		t.Fatalf("expected 1 stock.adjusted event, got %d", len(events))
	}
	var payload struct {
		Delta      int64 `json:"delta"`
		StockAfter int64 `json:"stock_after"`
	}
	if err := json.Unmarshal(events[0].Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload failed: %v", err)
	}
	if payload.Delta != -6 || payload.StockAfter != 4 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	// Установка в то же значение ничего не меняет и не шумит событиями.
	if _, err := svc.SetStock(ctx, created.ID, 4); err != nil {
		t.Fatalf("idempotent set stock failed: %v", err)
	}
	if events := pullEvents(t, store, "stock.adjusted"); len(events) != 1 {
		t.Fatalf("expected still 1 event, got %d", len(events))
	}

	if _, err := svc.SetStock(ctx, created.ID, -1); !errors.Is(err, domain.ErrStockNegative) {
		t.Fatalf("expected ErrStockNegative, got %v", err)
	}
	if _, err := svc.SetStock(ctx, "missing", 5); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}
