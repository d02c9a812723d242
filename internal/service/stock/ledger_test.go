package stock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func makeItem(mut func(i *domain.Item)) domain.Item {
	now := time.Now().UTC()
	item := domain.Item{
		ID:            "item-1",
		SKU:           "sku-1",
		Name:          "Чайник",
		CategoryID:    "cat-kitchen",
		PriceMinor:    150000,
		StockQuantity: 5,
		Active:        true,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mut != nil {
		mut(&item)
	}
	return item
}

func TestCheck(t *testing.T) {
	item := makeItem(nil)

	cases := []struct {
		name      string
		item      *domain.Item
		requested int64
		wantErr   error
	}{
		{name: "nil item", item: nil, requested: 1, wantErr: domain.ErrItemNotFound},
		{name: "zero quantity", item: &item, requested: 0, wantErr: domain.ErrInvalidQuantity},
		{name: "negative quantity", item: &item, requested: -2, wantErr: domain.ErrInvalidQuantity},
		{name: "over stock", item: &item, requested: 6, wantErr: domain.ErrInsufficientStock},
		{name: "exactly stock", item: &item, requested: 5},
		{name: "under stock", item: &item, requested: 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := stock.Check(tc.item, tc.requested)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCheckByID(t *testing.T) {
	ctx := context.Background()
	items := memory.NewStore().Repos().Items()

	if err := items.Create(ctx, makeItem(nil)); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	inactive := makeItem(func(i *domain.Item) {
		i.ID = "item-inactive"
		i.SKU = "sku-inactive"
		i.Active = false
	})
	if err := items.Create(ctx, inactive); err != nil {
		t.Fatalf("seed inactive item: %v", err)
	}

	if _, err := stock.CheckByID(ctx, items, "missing", 1); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound for missing item, got %v", err)
	}

	// Неактивный товар ведёт себя как отсутствующий.
	if _, err := stock.CheckByID(ctx, items, "item-inactive", 1); !errors.Is(err, domain.ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound for inactive item, got %v", err)
	}

	if _, err := stock.CheckByID(ctx, items, "item-1", 9); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	item, err := stock.CheckByID(ctx, items, "item-1", 5)
	if err != nil {
		t.Fatalf("check by id failed: %v", err)
	}
	if item.ID != "item-1" {
		t.Fatalf("expected loaded item, got %+v", item)
	}
}
