package discount

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service управляет промо-скидками и отвечает на вопрос «какая скидка
// действует на товар сейчас».
type Service struct {
	store  domain.UnitOfWork
	logger *log.Entry
}

// NewService создаёт сервис промо-скидок.
func NewService(store domain.UnitOfWork, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "discount")
	}
	return &Service{store: store, logger: logger}
}

// CreateInput — параметры новой скидки.
type CreateInput struct {
	Scope    domain.DiscountScope
	ScopeID  string
	Percent  decimal.Decimal
	StartsAt *time.Time
	EndsAt   *time.Time
}

// UpdateInput — изменяемые поля существующей скидки.
type UpdateInput struct {
	Percent  decimal.Decimal
	StartsAt *time.Time
	EndsAt   *time.Time
}

// Create заводит скидку. Некорректное окно (EndsAt < StartsAt) и процент
// вне [0, 100] отклоняются на этапе настройки.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.PromotionalDiscount, error) {
	now := time.Now().UTC()
	discount := domain.PromotionalDiscount{
		ID:        uuid.NewString(),
		Scope:     in.Scope,
		ScopeID:   in.ScopeID,
		Percent:   in.Percent,
		StartsAt:  in.StartsAt,
		EndsAt:    in.EndsAt,
		Active:    true,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if errs := discount.ValidateInvariants(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := s.store.Repos().Discounts().Create(ctx, discount); err != nil {
		s.logger.WithError(err).WithField("scope_id", in.ScopeID).Error("create discount failed")
		return nil, fmt.Errorf("create discount: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"discount_id": discount.ID,
		"scope":       string(discount.Scope),
		"scope_id":    discount.ScopeID,
		"percent":     discount.Percent.String(),
	}).Info("discount created")

	return &discount, nil
}

// Update заменяет процент и окно действия скидки.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.PromotionalDiscount, error) {
	discount, err := s.store.Repos().Discounts().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	discount.Percent = in.Percent
	discount.StartsAt = in.StartsAt
	discount.EndsAt = in.EndsAt
	discount.UpdatedAt = time.Now().UTC()

	if errs := discount.ValidateInvariants(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := s.store.Repos().Discounts().Save(ctx, discount); err != nil {
		return nil, fmt.Errorf("save discount: %w", err)
	}
	discount.Version++
	return &discount, nil
}

// Deactivate выключает скидку, не удаляя её историю.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	discount, err := s.store.Repos().Discounts().Get(ctx, id)
	if err != nil {
		return err
	}
	if !discount.Active {
		return nil
	}

	discount.Active = false
	discount.UpdatedAt = time.Now().UTC()
	if err := s.store.Repos().Discounts().Save(ctx, discount); err != nil {
		return fmt.Errorf("deactivate discount: %w", err)
	}

	s.logger.WithField("discount_id", id).Info("discount deactivated")
	return nil
}

// Get возвращает скидку по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (*domain.PromotionalDiscount, error) {
	discount, err := s.store.Repos().Discounts().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &discount, nil
}

// List возвращает скидки, ограничивая выборку limit (если >0).
func (s *Service) List(ctx context.Context, limit int) ([]domain.PromotionalDiscount, error) {
	return s.store.Repos().Discounts().List(ctx, limit)
}

// Resolve возвращает максимальный действующий процент скидки для товара
// на момент now. Скидки разных scope никогда не складываются: при
// конкуренции побеждает наибольшая. Если кандидатов нет — ноль.
func (s *Service) Resolve(ctx context.Context, itemID, categoryID string, now time.Time) (decimal.Decimal, error) {
	return ResolveWith(ctx, s.store.Repos().Discounts(), itemID, categoryID, now)
}

// ResolveWith — вариант Resolve поверх произвольного репозитория,
// в том числе привязанного к открытой транзакции.
func ResolveWith(ctx context.Context, discounts domain.DiscountRepository, itemID, categoryID string, now time.Time) (decimal.Decimal, error) {
	candidates, err := discounts.ListForItem(ctx, itemID, categoryID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("list discounts for item: %w", err)
	}

	best := decimal.Zero
	for _, d := range candidates {
		if !d.ValidAt(now) {
			continue
		}
		if d.Percent.GreaterThan(best) {
			best = d.Percent
		}
	}
	return best, nil
}
