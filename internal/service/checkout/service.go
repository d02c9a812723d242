package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/service/discount"
	"github.com/vladislavdragonenkov/storefront/internal/service/pricing"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
)

// Service оформляет заказ из корзины. Всё происходит в одной
// транзакции: проверка и списание остатков, расчёт цен, погашение
// купона, очистка корзины и событие checkout.completed. Любая ошибка
// откатывает всё целиком.
type Service struct {
	store  domain.UnitOfWork
	logger *log.Entry
}

// NewService создаёт сервис оформления заказа.
func NewService(store domain.UnitOfWork, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Service{store: store, logger: logger}
}

// LineReceipt — итог по одной позиции заказа.
type LineReceipt struct {
	ItemID        string          `json:"item_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Quantity      int64           `json:"quantity"`
	BaseMinor     int64           `json:"base_minor"`
	PromoPercent  decimal.Decimal `json:"promo_percent"`
	CouponPercent decimal.Decimal `json:"coupon_percent"`
	UnitMinor     int64           `json:"unit_minor"`
	TotalMinor    int64           `json:"total_minor"`
}

// Receipt — итог оформленного заказа.
type Receipt struct {
	OrderID     string        `json:"order_id"`
	UserID      string        `json:"user_id"`
	CouponCode  string        `json:"coupon_code,omitempty"`
	Lines       []LineReceipt `json:"lines"`
	TotalMinor  int64         `json:"total_minor"`
	CommittedAt time.Time     `json:"committed_at"`
}

// Commit превращает корзину пользователя в заказ. Купон (если задан)
// проверяется и гасится под блокировкой строки; его отказ отменяет
// весь заказ.
func (s *Service) Commit(ctx context.Context, userID, couponCode string, now time.Time) (*Receipt, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}

	var receipt Receipt
	err := s.store.WithinTx(ctx, func(ctx context.Context, r domain.RepositorySet) error {
		lines, err := r.CartLines().ListByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("list cart lines: %w", err)
		}
		if len(lines) == 0 {
			return domain.ErrCartEmpty
		}

		couponPercent := decimal.Zero
		var applied *domain.Coupon
		if couponCode != "" {
			applied, err = coupon.ValidateWith(ctx, r.Coupons(), couponCode, now, true)
			if err != nil {
				return err
			}
			couponPercent = applied.Percent
		}

		receipt = Receipt{
			OrderID:     uuid.NewString(),
			UserID:      userID,
			Lines:       make([]LineReceipt, 0, len(lines)),
			CommittedAt: now.UTC(),
		}
		if applied != nil {
			receipt.CouponCode = applied.Code
		}

		for _, line := range lines {
			item, err := stock.CheckByID(ctx, r.Items(), line.ItemID, line.Quantity)
			if err != nil {
				return err
			}
			if _, err := r.Items().AdjustStock(ctx, line.ItemID, -line.Quantity); err != nil {
				return err
			}

			promoPercent, err := discount.ResolveWith(ctx, r.Discounts(), item.ID, item.CategoryID, now)
			if err != nil {
				return err
			}

			unitMinor := pricing.ApplyDiscounts(item.PriceMinor, promoPercent, couponPercent)
			receipt.Lines = append(receipt.Lines, LineReceipt{
				ItemID:        item.ID,
				SKU:           item.SKU,
				Name:          item.Name,
				Quantity:      line.Quantity,
				BaseMinor:     item.PriceMinor,
				PromoPercent:  promoPercent,
				CouponPercent: couponPercent,
				UnitMinor:     unitMinor,
				TotalMinor:    unitMinor * line.Quantity,
			})
			receipt.TotalMinor += unitMinor * line.Quantity
		}

		if applied != nil {
			redemption := domain.CouponRedemption{
				ID:       uuid.NewString(),
				CouponID: applied.ID,
				UserID:   userID,
				UsedAt:   now.UTC(),
			}
			if err := r.Coupons().AddRedemption(ctx, redemption); err != nil {
				return fmt.Errorf("add redemption: %w", err)
			}
		}

		if _, err := r.CartLines().DeleteByUser(ctx, userID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		payload, err := json.Marshal(receipt)
		if err != nil {
			return fmt.Errorf("marshal checkout.completed payload: %w", err)
		}
		if _, err := r.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "checkout",
			AggregateID:   receipt.OrderID,
			EventType:     "checkout.completed",
			Payload:       payload,
		}); err != nil {
			return fmt.Errorf("enqueue checkout.completed: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"order_id":    receipt.OrderID,
		"user_id":     userID,
		"lines":       len(receipt.Lines),
		"total_minor": receipt.TotalMinor,
	}).Info("checkout committed")

	return &receipt, nil
}
