package domain

import "time"

// Item описывает товар каталога и его доступный остаток.
type Item struct {
	ID string
	// SKU — внешний артикул товара.
	SKU  string
	Name string
	// CategoryID связывает товар с категорией для категорийных скидок.
	CategoryID string
	// PriceMinor — базовая цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// StockQuantity — доступный остаток; никогда не опускается ниже нуля.
	StockQuantity int64
	Active        bool
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ValidateInvariants проверяет базовые инварианты товара и возвращает список замечаний.
func (i *Item) ValidateInvariants() []error {
	var errs []error

	if i.SKU == "" {
		errs = append(errs, ErrItemSKURequired)
	}
	if i.Name == "" {
		errs = append(errs, ErrItemNameRequired)
	}
	if i.PriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if i.StockQuantity < 0 {
		errs = append(errs, ErrStockNegative)
	}

	return errs
}

// CanSupply сообщает, покрывает ли остаток запрошенное количество.
func (i *Item) CanSupply(qty int64) bool {
	return qty > 0 && qty <= i.StockQuantity
}
