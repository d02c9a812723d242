package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// discountRepositoryInMemory — in-memory реализация DiscountRepository.
type discountRepositoryInMemory struct {
	s *Store
}

func (r *discountRepositoryInMemory) Create(ctx context.Context, discount domain.PromotionalDiscount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.data.discounts[discount.ID]; exists {
		return domain.ErrVersionConflict
	}
	r.s.data.discounts[discount.ID] = discount
	return nil
}

func (r *discountRepositoryInMemory) Get(ctx context.Context, id string) (domain.PromotionalDiscount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	discount, ok := r.s.data.discounts[id]
	if !ok {
		return domain.PromotionalDiscount{}, domain.ErrDiscountNotFound
	}
	return discount, nil
}

// ListForItem возвращает все скидки, чей scope покрывает товар или его категорию.
// Фильтрация по окну действия остаётся за вызывающим.
func (r *discountRepositoryInMemory) ListForItem(ctx context.Context, itemID, categoryID string) ([]domain.PromotionalDiscount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.PromotionalDiscount, 0, 4)
	for _, d := range r.s.data.discounts {
		switch {
		case d.Scope == domain.DiscountScopeItem && d.ScopeID == itemID:
			result = append(result, d)
		case d.Scope == domain.DiscountScopeCategory && d.ScopeID == categoryID:
			result = append(result, d)
		}
	}

	sortDiscounts(result)
	return result, nil
}

func (r *discountRepositoryInMemory) List(ctx context.Context, limit int) ([]domain.PromotionalDiscount, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.PromotionalDiscount, 0, len(r.s.data.discounts))
	for _, d := range r.s.data.discounts {
		result = append(result, d)
	}

	sortDiscounts(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *discountRepositoryInMemory) Save(ctx context.Context, discount domain.PromotionalDiscount) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.data.discounts[discount.ID]
	if !ok {
		return domain.ErrDiscountNotFound
	}
	if current.Version != discount.Version {
		return domain.ErrVersionConflict
	}
	discount.Version++
	r.s.data.discounts[discount.ID] = discount
	return nil
}

func sortDiscounts(discounts []domain.PromotionalDiscount) {
	sort.Slice(discounts, func(i, j int) bool {
		if !discounts[i].CreatedAt.Equal(discounts[j].CreatedAt) {
			return discounts[i].CreatedAt.Before(discounts[j].CreatedAt)
		}
		return discounts[i].ID < discounts[j].ID
	})
}

var _ domain.DiscountRepository = (*discountRepositoryInMemory)(nil)
