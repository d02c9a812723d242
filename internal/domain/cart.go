package domain

import "time"

// CartLine представляет одну позицию корзины пользователя.
// Пара (UserID, ItemID) уникальна: повторное добавление товара
// увеличивает количество существующей позиции, а не создаёт новую.
type CartLine struct {
	ID     string
	UserID string
	ItemID string
	// Quantity — итоговое количество в корзине; всегда больше нуля и
	// не превышает остаток товара на момент записи.
	Quantity  int64
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты позиции корзины.
func (l *CartLine) ValidateInvariants() []error {
	var errs []error

	if l.UserID == "" {
		errs = append(errs, ErrUserIDRequired)
	}
	if l.ItemID == "" {
		errs = append(errs, ErrItemIDRequired)
	}
	if l.Quantity <= 0 {
		errs = append(errs, ErrInvalidQuantity)
	}

	return errs
}
