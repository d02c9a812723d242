package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// couponRepositoryInMemory — in-memory реализация CouponRepository.
type couponRepositoryInMemory struct {
	s *Store
}

func (r *couponRepositoryInMemory) Create(ctx context.Context, coupon domain.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.data.coupons[coupon.ID]; exists {
		return domain.ErrVersionConflict
	}
	for _, existing := range r.s.data.coupons {
		if existing.Code == coupon.Code {
			return domain.ErrCouponCodeTaken
		}
	}
	r.s.data.coupons[coupon.ID] = coupon
	return nil
}

func (r *couponRepositoryInMemory) Get(ctx context.Context, id string) (domain.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	coupon, ok := r.s.data.coupons[id]
	if !ok {
		return domain.Coupon{}, domain.ErrCouponNotFound
	}
	return coupon, nil
}

func (r *couponRepositoryInMemory) GetByCode(ctx context.Context, code string) (domain.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.findByCode(code)
}

// GetByCodeForUpdate в памяти не блокирует строку: изоляцию обеспечивает
// сериализация транзакций в Store.WithinTx.
func (r *couponRepositoryInMemory) GetByCodeForUpdate(ctx context.Context, code string) (domain.Coupon, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.findByCode(code)
}

func (r *couponRepositoryInMemory) findByCode(code string) (domain.Coupon, error) {
	for _, coupon := range r.s.data.coupons {
		if coupon.Code == code {
			return coupon, nil
		}
	}
	return domain.Coupon{}, domain.ErrCouponNotFound
}

func (r *couponRepositoryInMemory) Save(ctx context.Context, coupon domain.Coupon) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	current, ok := r.s.data.coupons[coupon.ID]
	if !ok {
		return domain.ErrCouponNotFound
	}
	if current.Version != coupon.Version {
		return domain.ErrVersionConflict
	}
	coupon.Version++
	r.s.data.coupons[coupon.ID] = coupon
	return nil
}

func (r *couponRepositoryInMemory) CountRedemptions(ctx context.Context, couponID string) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return int64(len(r.s.data.redemptions[couponID])), nil
}

func (r *couponRepositoryInMemory) AddRedemption(ctx context.Context, redemption domain.CouponRedemption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if redemption.ID == "" {
		redemption.ID = uuid.NewString()
	}
	if redemption.UsedAt.IsZero() {
		redemption.UsedAt = time.Now().UTC()
	}
	r.s.data.redemptions[redemption.CouponID] = append(r.s.data.redemptions[redemption.CouponID], redemption)
	return nil
}

func (r *couponRepositoryInMemory) ListRedemptions(ctx context.Context, couponID string, limit int) ([]domain.CouponRedemption, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := append([]domain.CouponRedemption(nil), r.s.data.redemptions[couponID]...)
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UsedAt.Equal(result[j].UsedAt) {
			return result[i].UsedAt.Before(result[j].UsedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.CouponRepository = (*couponRepositoryInMemory)(nil)
