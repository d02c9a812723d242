package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// cartRepositoryInMemory — in-memory реализация CartRepository.
type cartRepositoryInMemory struct {
	s *Store
}

func (r *cartRepositoryInMemory) GetLine(ctx context.Context, userID, itemID string) (domain.CartLine, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, line := range r.s.data.cartLines {
		if line.UserID == userID && line.ItemID == itemID {
			return line, nil
		}
	}
	return domain.CartLine{}, domain.ErrCartLineNotFound
}

func (r *cartRepositoryInMemory) GetLineByID(ctx context.Context, lineID string) (domain.CartLine, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	line, ok := r.s.data.cartLines[lineID]
	if !ok {
		return domain.CartLine{}, domain.ErrCartLineNotFound
	}
	return line, nil
}

func (r *cartRepositoryInMemory) ListByUser(ctx context.Context, userID string) ([]domain.CartLine, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.CartLine, 0, len(r.s.data.cartLines))
	for _, line := range r.s.data.cartLines {
		if line.UserID == userID {
			result = append(result, line)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	return result, nil
}

// Create сохраняет новую позицию; пара (user, item) уникальна,
// как и в PostgreSQL-реализации.
func (r *cartRepositoryInMemory) Create(ctx context.Context, line domain.CartLine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.data.cartLines[line.ID]; exists {
		return domain.ErrVersionConflict
	}
	for _, existing := range r.s.data.cartLines {
		if existing.UserID == line.UserID && existing.ItemID == line.ItemID {
			return domain.ErrVersionConflict
		}
	}
	r.s.data.cartLines[line.ID] = line
	return nil
}

func (r *cartRepositoryInMemory) Save(ctx context.Context, line domain.CartLine) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.data.cartLines[line.ID]
	if !ok {
		return domain.ErrCartLineNotFound
	}
	if current.Version != line.Version {
		return domain.ErrVersionConflict
	}
	line.Version++
	r.s.data.cartLines[line.ID] = line
	return nil
}

func (r *cartRepositoryInMemory) Delete(ctx context.Context, lineID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.cartLines[lineID]; !ok {
		return domain.ErrCartLineNotFound
	}
	delete(r.s.data.cartLines, lineID)
	return nil
}

func (r *cartRepositoryInMemory) DeleteByUser(ctx context.Context, userID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	removed := 0
	for id, line := range r.s.data.cartLines {
		if line.UserID == userID {
			delete(r.s.data.cartLines, id)
			removed++
		}
	}
	return removed, nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
