package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountScope определяет, к чему привязана промо-скидка.
type DiscountScope string

const (
	// DiscountScopeItem — скидка действует на конкретный товар.
	DiscountScopeItem DiscountScope = "item"
	// DiscountScopeCategory — скидка действует на всю категорию.
	DiscountScopeCategory DiscountScope = "category"
)

// Valid проверяет, что scope относится к поддерживаемым значениям.
func (s DiscountScope) Valid() bool {
	switch s {
	case DiscountScopeItem, DiscountScopeCategory:
		return true
	default:
		return false
	}
}

// PromotionalDiscount описывает процентную промо-скидку с ограниченным
// сроком действия. Для одного товара одновременно может действовать
// несколько скидок разных scope; они никогда не суммируются.
type PromotionalDiscount struct {
	ID      string
	Scope   DiscountScope
	ScopeID string
	// Percent — размер скидки в процентах, в диапазоне [0, 100].
	Percent decimal.Decimal
	// StartsAt/EndsAt задают окно действия; nil означает отсутствие границы.
	StartsAt  *time.Time
	EndsAt    *time.Time
	Active    bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет конфигурацию скидки. Некорректное окно
// (EndsAt раньше StartsAt) отклоняется здесь, на этапе настройки,
// а не в момент расчёта цены.
func (d *PromotionalDiscount) ValidateInvariants() []error {
	var errs []error

	if !d.Scope.Valid() {
		errs = append(errs, ErrInvalidDiscountScope)
	}
	if d.ScopeID == "" {
		errs = append(errs, ErrScopeIDRequired)
	}
	if !percentInRange(d.Percent) {
		errs = append(errs, ErrInvalidPercent)
	}
	if d.StartsAt != nil && d.EndsAt != nil && d.EndsAt.Before(*d.StartsAt) {
		errs = append(errs, ErrInvalidDiscountWindow)
	}

	return errs
}

// ValidAt сообщает, действует ли скидка в момент now: активна и now
// попадает в окно [StartsAt, EndsAt] с учётом открытых границ.
func (d *PromotionalDiscount) ValidAt(now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.EndsAt != nil && now.After(*d.EndsAt) {
		return false
	}
	return true
}

func percentInRange(p decimal.Decimal) bool {
	return !p.IsNegative() && p.LessThanOrEqual(decimal.NewFromInt(100))
}
