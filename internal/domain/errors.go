package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора пользователя.
	ErrUserIDRequired = errors.New("user_id is required")
	// Ошибка отсутствующего идентификатора товара.
	ErrItemIDRequired = errors.New("item_id is required")
	// Ошибка отсутствующего артикула товара.
	ErrItemSKURequired = errors.New("item sku is required")
	// Ошибка отсутствующего названия товара.
	ErrItemNameRequired = errors.New("item name is required")
	// Ошибка отрицательной цены товара.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отрицательного остатка товара.
	ErrStockNegative = errors.New("stock quantity must be non-negative")
	// Ошибка при некорректном количестве (<= 0).
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// Ошибка отсутствующего получателя адреса.
	ErrRecipientRequired = errors.New("address recipient is required")
	// Ошибка отсутствующей первой строки адреса.
	ErrAddressLineRequired = errors.New("address line1 is required")
	// Ошибка отсутствующего города.
	ErrCityRequired = errors.New("address city is required")
	// Ошибка отсутствующей страны.
	ErrCountryRequired = errors.New("address country is required")
	// Ошибка отсутствующего кода купона.
	ErrCouponCodeRequired = errors.New("coupon code is required")
	// Ошибка некорректного лимита использований купона (<= 0).
	ErrInvalidMaxUses = errors.New("coupon max_uses must be greater than zero")
	// Ошибка неподдерживаемого scope промо-скидки.
	ErrInvalidDiscountScope = errors.New("discount scope must be item or category")
	// Ошибка отсутствующего идентификатора scope промо-скидки.
	ErrScopeIDRequired = errors.New("discount scope_id is required")
	// ErrInvalidPercent — процент скидки вне диапазона [0, 100].
	ErrInvalidPercent = errors.New("percent must be within [0, 100]")
	// ErrInvalidDiscountWindow — окно действия скидки задано задом наперёд
	// (ends_at раньше starts_at); отклоняется при настройке.
	ErrInvalidDiscountWindow = errors.New("discount window ends before it starts")

	// ErrItemNotFound возвращается, если товар не найден или неактивен.
	ErrItemNotFound = errors.New("item not found")
	// ErrInsufficientStock — запрошенное количество превышает остаток.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrCartLineNotFound возвращается, если позиция корзины не найдена.
	ErrCartLineNotFound = errors.New("cart line not found")
	// ErrCartEmpty — попытка оформить заказ с пустой корзиной.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrDiscountNotFound возвращается, если промо-скидка не найдена.
	ErrDiscountNotFound = errors.New("promotional discount not found")
	// ErrCouponNotFound возвращается, если купон с таким кодом не найден.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponInactive — купон отключён администратором.
	ErrCouponInactive = errors.New("coupon is inactive")
	// ErrCouponExpired — срок действия купона истёк.
	ErrCouponExpired = errors.New("coupon is expired")
	// ErrCouponExhausted — лимит использований купона исчерпан.
	ErrCouponExhausted = errors.New("coupon usage limit exhausted")
	// ErrCouponCodeTaken — купон с таким кодом уже существует.
	ErrCouponCodeTaken = errors.New("coupon code already exists")
	// ErrItemSKUTaken — товар с таким артикулом уже существует.
	ErrItemSKUTaken = errors.New("item sku already exists")
	// ErrAddressNotFound возвращается, если адрес не найден или принадлежит
	// другому пользователю.
	ErrAddressNotFound = errors.New("address not found")

	// ErrVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrVersionConflict = errors.New("version conflict")
	// ErrConcurrentModification — повторы после конфликтов версий исчерпаны.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyHashRequired — пустой хеш запроса для idempotency-key.
	ErrIdempotencyHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyExists — запись по ключу уже существует с тем же хешем.
	ErrIdempotencyKeyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyKeyReused — тот же idempotency-key пришёл с другим телом запроса.
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with different request")
	// ErrIdempotencyInProgress — запрос с этим ключом ещё обрабатывается.
	ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")
	// ErrIdempotencyKeyNotFound возвращается, если запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound проверяет, относится ли ошибка к классу "не найдено".
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrCartLineNotFound) ||
		errors.Is(err, ErrDiscountNotFound) ||
		errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrAddressNotFound)
}

// IsCouponRejected проверяет, отклонён ли купон по бизнес-причине
// (неактивен, истёк или исчерпан), в отличие от отсутствующего кода.
func IsCouponRejected(err error) bool {
	return errors.Is(err, ErrCouponInactive) ||
		errors.Is(err, ErrCouponExpired) ||
		errors.Is(err, ErrCouponExhausted)
}
