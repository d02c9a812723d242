package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func sampleDiscount(scope domain.DiscountScope, scopeID string) domain.PromotionalDiscount {
	now := time.Now().UTC().Truncate(time.Microsecond)
	starts := now.Add(-time.Hour)
	ends := now.Add(time.Hour)
	return domain.PromotionalDiscount{
		ID:        uuid.NewString(),
		Scope:     scope,
		ScopeID:   scopeID,
		Percent:   decimal.NewFromInt(20),
		StartsAt:  &starts,
		EndsAt:    &ends,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestDiscountRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewDiscountRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	discount := sampleDiscount(domain.DiscountScopeItem, "item-1")
	if err := repo.Create(ctx, discount); err != nil {
		t.Fatalf("create discount: %v", err)
	}

	got, err := repo.Get(ctx, discount.ID)
	if err != nil {
		t.Fatalf("get discount: %v", err)
	}
	if got.Scope != discount.Scope || got.ScopeID != discount.ScopeID {
		t.Fatalf("unexpected discount after get: %+v", got)
	}
	if !got.Percent.Equal(discount.Percent) {
		t.Fatalf("expected percent %s, got %s", discount.Percent, got.Percent)
	}
	if got.StartsAt == nil || got.EndsAt == nil {
		t.Fatal("expected both window bounds to survive a round trip")
	}
	if !got.StartsAt.Equal(*discount.StartsAt) || !got.EndsAt.Equal(*discount.EndsAt) {
		t.Fatalf("window mismatch: got [%s, %s]", got.StartsAt, got.EndsAt)
	}

	// Бессрочная скидка хранит NULL в обеих границах.
	open := sampleDiscount(domain.DiscountScopeCategory, "cat-1")
	open.StartsAt = nil
	open.EndsAt = nil
	if err := repo.Create(ctx, open); err != nil {
		t.Fatalf("create open-ended discount: %v", err)
	}
	gotOpen, err := repo.Get(ctx, open.ID)
	if err != nil {
		t.Fatalf("get open-ended discount: %v", err)
	}
	if gotOpen.StartsAt != nil || gotOpen.EndsAt != nil {
		t.Fatalf("expected nil window bounds, got [%v, %v]", gotOpen.StartsAt, gotOpen.EndsAt)
	}

	got.Percent = decimal.NewFromFloat(12.5)
	got.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.Save(ctx, got); err != nil {
		t.Fatalf("save discount: %v", err)
	}
	saved, err := repo.Get(ctx, discount.ID)
	if err != nil {
		t.Fatalf("get after save: %v", err)
	}
	if !saved.Percent.Equal(decimal.NewFromFloat(12.5)) {
		t.Fatalf("expected percent 12.5 after save, got %s", saved.Percent)
	}
	if saved.Version != got.Version+1 {
		t.Fatalf("expected version bump, got %d", saved.Version)
	}

	all, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("list discounts: %v", err)
	}
	if len(all) < 2 {
		t.Fatalf("expected at least 2 discounts, got %d", len(all))
	}
}

func TestDiscountRepository_PostgresListForItem(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewDiscountRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	itemID := "item-" + uuid.NewString()[:8]
	categoryID := "cat-" + uuid.NewString()[:8]

	forItem := sampleDiscount(domain.DiscountScopeItem, itemID)
	forCategory := sampleDiscount(domain.DiscountScopeCategory, categoryID)
	unrelated := sampleDiscount(domain.DiscountScopeItem, "other-item")

	for _, d := range []domain.PromotionalDiscount{forItem, forCategory, unrelated} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("create discount %s: %v", d.ID, err)
		}
	}

	candidates, err := repo.ListForItem(ctx, itemID, categoryID)
	if err != nil {
		t.Fatalf("list for item: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	for _, d := range candidates {
		if d.ID == unrelated.ID {
			t.Fatalf("unrelated discount %s leaked into candidates", d.ID)
		}
	}
}

func TestDiscountRepository_PostgresErrors(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewDiscountRepository(store)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := repo.Get(ctx, "missing-discount"); !errors.Is(err, domain.ErrDiscountNotFound) {
		t.Fatalf("expected ErrDiscountNotFound, got %v", err)
	}

	missing := sampleDiscount(domain.DiscountScopeItem, "item-x")
	missing.ID = "missing-discount"
	if err := repo.Save(ctx, missing); !errors.Is(err, domain.ErrDiscountNotFound) {
		t.Fatalf("expected ErrDiscountNotFound on save missing, got %v", err)
	}

	discount := sampleDiscount(domain.DiscountScopeItem, "item-y")
	if err := repo.Create(ctx, discount); err != nil {
		t.Fatalf("create discount: %v", err)
	}
	stale := discount
	stale.Version = 42
	if err := repo.Save(ctx, stale); !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict on stale save, got %v", err)
	}
}
