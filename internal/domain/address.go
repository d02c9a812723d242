package domain

import "time"

// Address — адрес доставки пользователя. Инвариант: у пользователя
// не может быть больше одного адреса с IsDefault=true.
type Address struct {
	ID         string
	UserID     string
	Recipient  string
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Country    string
	IsDefault  bool
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ValidateInvariants проверяет обязательные поля адреса.
func (a *Address) ValidateInvariants() []error {
	var errs []error

	if a.UserID == "" {
		errs = append(errs, ErrUserIDRequired)
	}
	if a.Recipient == "" {
		errs = append(errs, ErrRecipientRequired)
	}
	if a.Line1 == "" {
		errs = append(errs, ErrAddressLineRequired)
	}
	if a.City == "" {
		errs = append(errs, ErrCityRequired)
	}
	if a.Country == "" {
		errs = append(errs, ErrCountryRequired)
	}

	return errs
}
