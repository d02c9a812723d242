package coupon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service отвечает за жизненный цикл купонов, их проверку и погашение.
// Validate никогда не пишет; счётчик использований тратится только
// в Redeem, то есть в момент фиксации заказа.
type Service struct {
	store  domain.UnitOfWork
	logger *log.Entry
}

// NewService создаёт сервис купонов.
func NewService(store domain.UnitOfWork, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "coupon")
	}
	return &Service{store: store, logger: logger}
}

// CreateInput — параметры нового купона.
type CreateInput struct {
	Code      string
	Percent   decimal.Decimal
	MaxUses   *int64
	ExpiresAt *time.Time
}

// UpdateInput — изменяемые поля купона.
type UpdateInput struct {
	Percent   decimal.Decimal
	MaxUses   *int64
	ExpiresAt *time.Time
}

// normalizeCode приводит код к каноничному виду: без пробелов, верхним регистром.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Create заводит купон. Дубликат кода отклоняется хранилищем.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Coupon, error) {
	now := time.Now().UTC()
	coupon := domain.Coupon{
		ID:        uuid.NewString(),
		Code:      normalizeCode(in.Code),
		Percent:   in.Percent,
		MaxUses:   in.MaxUses,
		ExpiresAt: in.ExpiresAt,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if errs := coupon.ValidateInvariants(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := s.store.Repos().Coupons().Create(ctx, coupon); err != nil {
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"coupon_id": coupon.ID,
		"code":      coupon.Code,
		"percent":   coupon.Percent.String(),
	}).Info("coupon created")

	return &coupon, nil
}

// Update заменяет процент, лимит использований и срок действия.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Coupon, error) {
	coupon, err := s.store.Repos().Coupons().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	coupon.Percent = in.Percent
	coupon.MaxUses = in.MaxUses
	coupon.ExpiresAt = in.ExpiresAt
	coupon.UpdatedAt = time.Now().UTC()

	if errs := coupon.ValidateInvariants(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := s.store.Repos().Coupons().Save(ctx, coupon); err != nil {
		return nil, fmt.Errorf("save coupon: %w", err)
	}
	coupon.Version++
	return &coupon, nil
}

// Deactivate выключает купон.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	coupon, err := s.store.Repos().Coupons().Get(ctx, id)
	if err != nil {
		return err
	}
	if !coupon.Active {
		return nil
	}

	coupon.Active = false
	coupon.UpdatedAt = time.Now().UTC()
	if err := s.store.Repos().Coupons().Save(ctx, coupon); err != nil {
		return fmt.Errorf("deactivate coupon: %w", err)
	}

	s.logger.WithField("coupon_id", id).Info("coupon deactivated")
	return nil
}

// Get возвращает купон по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (*domain.Coupon, error) {
	coupon, err := s.store.Repos().Coupons().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

// Validate проверяет, применим ли купон прямо сейчас. Проверка ничего
// не записывает: предварительный расчёт цены не тратит использования.
func (s *Service) Validate(ctx context.Context, code, userID string, now time.Time) (*domain.Coupon, error) {
	return ValidateWith(ctx, s.store.Repos().Coupons(), code, now, false)
}

// ValidateWith проверяет купон через произвольный репозиторий; forUpdate
// берёт блокировку строки и используется внутри транзакции погашения.
func ValidateWith(ctx context.Context, coupons domain.CouponRepository, code string, now time.Time, forUpdate bool) (*domain.Coupon, error) {
	code = normalizeCode(code)

	var (
		coupon domain.Coupon
		err    error
	)
	if forUpdate {
		coupon, err = coupons.GetByCodeForUpdate(ctx, code)
	} else {
		coupon, err = coupons.GetByCode(ctx, code)
	}
	if err != nil {
		return nil, err
	}

	if !coupon.Active {
		return nil, domain.ErrCouponInactive
	}
	if coupon.Expired(now) {
		return nil, domain.ErrCouponExpired
	}
	if coupon.MaxUses != nil {
		usage, err := coupons.CountRedemptions(ctx, coupon.ID)
		if err != nil {
			return nil, fmt.Errorf("count redemptions: %w", err)
		}
		if coupon.Exhausted(usage) {
			return nil, domain.ErrCouponExhausted
		}
	}

	return &coupon, nil
}

// Redeem тратит одно использование купона. Вся проверка повторяется
// внутри транзакции под блокировкой строки купона, поэтому при
// MaxUses=N конкурентные погашения проходят ровно min(N, попыток) раз.
func (s *Service) Redeem(ctx context.Context, code, userID string, now time.Time) (*domain.CouponRedemption, error) {
	var redemption domain.CouponRedemption

	err := s.store.WithinTx(ctx, func(ctx context.Context, r domain.RepositorySet) error {
		coupon, err := ValidateWith(ctx, r.Coupons(), code, now, true)
		if err != nil {
			return err
		}

		redemption = domain.CouponRedemption{
			ID:       uuid.NewString(),
			CouponID: coupon.ID,
			UserID:   userID,
			UsedAt:   now.UTC(),
		}
		if err := r.Coupons().AddRedemption(ctx, redemption); err != nil {
			return fmt.Errorf("add redemption: %w", err)
		}

		payload, err := json.Marshal(map[string]interface{}{
			"coupon_id": coupon.ID,
			"code":      coupon.Code,
			"user_id":   userID,
			"used_at":   redemption.UsedAt.Format(time.RFC3339Nano),
		})
		if err != nil {
			return fmt.Errorf("marshal coupon.redeemed payload: %w", err)
		}
		if _, err := r.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "coupon",
			AggregateID:   coupon.ID,
			EventType:     "coupon.redeemed",
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("enqueue coupon.redeemed: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"coupon_id": redemption.CouponID,
		"user_id":   userID,
	}).Info("coupon redeemed")

	return &redemption, nil
}
