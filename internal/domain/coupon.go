package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Coupon описывает купон, активируемый кодом. Купон ограничен по числу
// использований (MaxUses) и по сроку (ExpiresAt); nil означает
// отсутствие ограничения.
type Coupon struct {
	ID string
	// Code — уникальный код, который вводит пользователь.
	Code    string
	Percent decimal.Decimal
	// MaxUses — максимальное суммарное число погашений; nil — без лимита.
	MaxUses   *int64
	ExpiresAt *time.Time
	Active    bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет конфигурацию купона.
func (c *Coupon) ValidateInvariants() []error {
	var errs []error

	if c.Code == "" {
		errs = append(errs, ErrCouponCodeRequired)
	}
	if !percentInRange(c.Percent) {
		errs = append(errs, ErrInvalidPercent)
	}
	if c.MaxUses != nil && *c.MaxUses <= 0 {
		errs = append(errs, ErrInvalidMaxUses)
	}

	return errs
}

// Expired сообщает, истёк ли срок действия купона к моменту now.
func (c *Coupon) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// Exhausted сообщает, исчерпан ли лимит использований при известном
// числе погашений usageCount.
func (c *Coupon) Exhausted(usageCount int64) bool {
	return c.MaxUses != nil && usageCount >= *c.MaxUses
}

// CouponRedemption — запись о погашении купона. Журнал append-only:
// количество записей по CouponID и есть счётчик использований.
type CouponRedemption struct {
	ID       string
	CouponID string
	UserID   string
	UsedAt   time.Time
}
