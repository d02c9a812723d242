package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// itemRepositoryInMemory — простая in-memory реализация ItemRepository.
type itemRepositoryInMemory struct {
	s *Store
}

// Create сохраняет новый товар, если ID и SKU ещё не заняты.
func (r *itemRepositoryInMemory) Create(ctx context.Context, item domain.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.data.items[item.ID]; exists {
		return domain.ErrVersionConflict
	}
	for _, existing := range r.s.data.items {
		if existing.SKU == item.SKU {
			return domain.ErrItemSKUTaken
		}
	}
	r.s.data.items[item.ID] = item
	return nil
}

// Get возвращает товар или ErrItemNotFound, если его нет.
func (r *itemRepositoryInMemory) Get(ctx context.Context, id string) (domain.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	item, ok := r.s.data.items[id]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return item, nil
}

func (r *itemRepositoryInMemory) GetBySKU(ctx context.Context, sku string) (domain.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, item := range r.s.data.items {
		if item.SKU == sku {
			return item, nil
		}
	}
	return domain.Item{}, domain.ErrItemNotFound
}

// List возвращает товары в порядке создания, ограничивая выборку limit (если >0).
func (r *itemRepositoryInMemory) List(ctx context.Context, limit int) ([]domain.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.Item, 0, len(r.s.data.items))
	for _, item := range r.s.data.items {
		result = append(result, item)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Save перезаписывает товар, проверяя версию (optimistic locking).
func (r *itemRepositoryInMemory) Save(ctx context.Context, item domain.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.data.items[item.ID]
	if !ok {
		return domain.ErrItemNotFound
	}
	if current.Version != item.Version {
		return domain.ErrVersionConflict
	}
	item.Version++
	r.s.data.items[item.ID] = item
	return nil
}

// AdjustStock атомарно меняет остаток; уход ниже нуля отклоняется целиком.
func (r *itemRepositoryInMemory) AdjustStock(ctx context.Context, id string, delta int64) (domain.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	item, ok := r.s.data.items[id]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	if item.StockQuantity+delta < 0 {
		return domain.Item{}, domain.ErrInsufficientStock
	}
	item.StockQuantity += delta
	item.Version++
	r.s.data.items[id] = item
	return item, nil
}

var _ domain.ItemRepository = (*itemRepositoryInMemory)(nil)
