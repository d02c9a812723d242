package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func TestItemRepository_CreateGetAndSKUConflict(t *testing.T) {
	repo := memory.NewStore().Repos().Items()
	ctx := context.Background()

	if err := repo.Create(ctx, newItem("item-1", "sku-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := repo.Get(ctx, "item-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SKU != "sku-1" {
		t.Fatalf("expected sku-1, got %s", got.SKU)
	}

	bySKU, err := repo.GetBySKU(ctx, "sku-1")
	if err != nil {
		t.Fatalf("get by sku failed: %v", err)
	}
	if bySKU.ID != "item-1" {
		t.Fatalf("expected item-1 by sku, got %s", bySKU.ID)
	}

	if err := repo.Create(ctx, newItem("item-2", "sku-1")); !errors.Is(err, domain.ErrItemSKUTaken) {
		t.Fatalf("expected ErrItemSKUTaken, got %v", err)
	}
}

func TestItemRepository_SaveVersionConflict(t *testing.T) {
	repo := memory.NewStore().Repos().Items()
	ctx := context.Background()

	item := newItem("item-1", "sku-1")
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	item.Name = "Кресло игровое"
	if err := repo.Save(ctx, item); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	updated, err := repo.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if updated.Version != item.Version+1 {
		t.Fatalf("expected version increment, got %d", updated.Version)
	}

	stale := item
	stale.Version = 42
	if err := repo.Save(ctx, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestItemRepository_AdjustStockFloor(t *testing.T) {
	repo := memory.NewStore().Repos().Items()
	ctx := context.Background()

	item := newItem("item-1", "sku-1")
	item.StockQuantity = 3
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	after, err := repo.AdjustStock(ctx, "item-1", -2)
	if err != nil {
		t.Fatalf("adjust failed: %v", err)
	}
	if after.StockQuantity != 1 {
		t.Fatalf("expected stock 1, got %d", after.StockQuantity)
	}

	if _, err := repo.AdjustStock(ctx, "item-1", -2); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	unchanged, err := repo.Get(ctx, "item-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if unchanged.StockQuantity != 1 {
		t.Fatalf("stock must stay 1 after rejected adjust, got %d", unchanged.StockQuantity)
	}

	if _, err := repo.AdjustStock(ctx, "missing", 1); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}
