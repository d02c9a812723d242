package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// addressRepositoryInMemory — in-memory реализация AddressRepository.
type addressRepositoryInMemory struct {
	s *Store
}

// Create сохраняет адрес; второй дефолтный адрес пользователя отклоняется,
// как и частичным уникальным индексом в PostgreSQL.
func (r *addressRepositoryInMemory) Create(ctx context.Context, address domain.Address) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.data.addresses[address.ID]; exists {
		return domain.ErrVersionConflict
	}
	if address.IsDefault && r.hasOtherDefault(address.UserID, address.ID) {
		return domain.ErrVersionConflict
	}
	r.s.data.addresses[address.ID] = address
	return nil
}

func (r *addressRepositoryInMemory) Get(ctx context.Context, id string) (domain.Address, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	address, ok := r.s.data.addresses[id]
	if !ok {
		return domain.Address{}, domain.ErrAddressNotFound
	}
	return address, nil
}

func (r *addressRepositoryInMemory) ListByUser(ctx context.Context, userID string) ([]domain.Address, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]domain.Address, 0, 4)
	for _, address := range r.s.data.addresses {
		if address.UserID == userID {
			result = append(result, address)
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

func (r *addressRepositoryInMemory) Save(ctx context.Context, address domain.Address) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.data.addresses[address.ID]
	if !ok {
		return domain.ErrAddressNotFound
	}
	if current.Version != address.Version {
		return domain.ErrVersionConflict
	}
	if address.IsDefault && r.hasOtherDefault(address.UserID, address.ID) {
		return domain.ErrVersionConflict
	}
	address.Version++
	r.s.data.addresses[address.ID] = address
	return nil
}

func (r *addressRepositoryInMemory) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.data.addresses[id]; !ok {
		return domain.ErrAddressNotFound
	}
	delete(r.s.data.addresses, id)
	return nil
}

// ClearDefault снимает флаг дефолта со всех адресов пользователя, кроме exceptID.
func (r *addressRepositoryInMemory) ClearDefault(ctx context.Context, userID, exceptID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var cleared int64
	for id, address := range r.s.data.addresses {
		if address.UserID != userID || id == exceptID || !address.IsDefault {
			continue
		}
		address.IsDefault = false
		address.Version++
		r.s.data.addresses[id] = address
		cleared++
	}
	return cleared, nil
}

func (r *addressRepositoryInMemory) hasOtherDefault(userID, exceptID string) bool {
	for id, address := range r.s.data.addresses {
		if address.UserID == userID && id != exceptID && address.IsDefault {
			return true
		}
	}
	return false
}

var _ domain.AddressRepository = (*addressRepositoryInMemory)(nil)
