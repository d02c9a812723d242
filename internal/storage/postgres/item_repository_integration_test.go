package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func sampleItem() domain.Item {
	now := time.Now().UTC().Truncate(time.Microsecond)
	id := uuid.NewString()
	return domain.Item{
		ID:            id,
		SKU:           "SKU-" + id[:8],
		Name:          "Настольная лампа",
		CategoryID:    "cat-lighting",
		PriceMinor:    249900,
		StockQuantity: 10,
		Active:        true,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestItemRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewItemRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	item := sampleItem()
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("create item: %v", err)
	}

	got, err := repo.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.SKU != item.SKU || got.PriceMinor != item.PriceMinor || got.StockQuantity != item.StockQuantity {
		t.Fatalf("unexpected item after get: %+v", got)
	}

	bySKU, err := repo.GetBySKU(ctx, item.SKU)
	if err != nil {
		t.Fatalf("get item by sku: %v", err)
	}
	if bySKU.ID != item.ID {
		t.Fatalf("expected item %s by sku, got %s", item.ID, bySKU.ID)
	}

	items, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected at least one item in list")
	}

	got.Name = "Настольная лампа (обновлена)"
	got.PriceMinor = 199900
	got.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("save item: %v", err)
	}

	saved, err := repo.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if saved.Version != got.Version+1 {
		t.Fatalf("expected version bump to %d, got %d", got.Version+1, saved.Version)
	}
	if saved.PriceMinor != 199900 {
		t.Fatalf("expected updated price, got %d", saved.PriceMinor)
	}
}

func TestItemRepository_PostgresAdjustStock(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewItemRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	item := sampleItem()
	item.StockQuantity = 5
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("create item: %v", err)
	}

	after, err := repo.AdjustStock(ctx, item.ID, -3)
	if err != nil {
		t.Fatalf("adjust stock down: %v", err)
	}
	if after.StockQuantity != 2 {
		t.Fatalf("expected stock 2 after -3, got %d", after.StockQuantity)
	}

	after, err = repo.AdjustStock(ctx, item.ID, 4)
	if err != nil {
		t.Fatalf("adjust stock up: %v", err)
	}
	if after.StockQuantity != 6 {
		t.Fatalf("expected stock 6 after +4, got %d", after.StockQuantity)
	}

	// Списание больше остатка не проходит вовсе.
	if _, err := repo.AdjustStock(ctx, item.ID, -7); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	unchanged, err := repo.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("get after failed adjust: %v", err)
	}
	if unchanged.StockQuantity != 6 {
		t.Fatalf("stock must stay 6 after rejected adjust, got %d", unchanged.StockQuantity)
	}

	if _, err := repo.AdjustStock(ctx, "missing-item", -1); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound for missing item, got %v", err)
	}
}

func TestItemRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewItemRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := repo.Get(ctx, "missing-item"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if _, err := repo.GetBySKU(ctx, "missing-sku"); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound by sku, got %v", err)
	}

	missing := sampleItem()
	missing.ID = "missing-item"
	if err := repo.Save(ctx, missing); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound on save missing, got %v", err)
	}

	item := sampleItem()
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("create item: %v", err)
	}

	stale := item
	stale.Version = 42
	if err := repo.Save(ctx, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on stale save, got %v", err)
	}

	dup := sampleItem()
	dup.SKU = item.SKU
	if err := repo.Create(ctx, dup); !errors.Is(err, domain.ErrItemSKUTaken) {
		t.Fatalf("expected ErrItemSKUTaken on duplicate sku, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if isUniqueViolation(nil) {
		t.Fatal("nil error must not be a unique violation")
	}
	if isUniqueViolation(errors.New("boom")) {
		t.Fatal("generic error must not be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatal("foreign key violation must not count as unique violation")
	}
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected 23505 to be a unique violation")
	}
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	if !isUniqueViolation(wrapped) {
		t.Fatal("expected wrapped 23505 to be a unique violation")
	}
}
