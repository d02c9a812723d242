package domain

import "context"

// ItemRepository описывает требования к хранилищу товаров.
type ItemRepository interface {
	// Create сохраняет новый товар. Возвращает ErrItemSKUTaken, если артикул занят.
	Create(ctx context.Context, item Item) error
	// Get возвращает товар по идентификатору или ErrItemNotFound, если его нет.
	Get(ctx context.Context, id string) (Item, error)
	// GetBySKU возвращает товар по артикулу или ErrItemNotFound.
	GetBySKU(ctx context.Context, sku string) (Item, error)
	// List возвращает товары с опциональным ограничением на количество.
	List(ctx context.Context, limit int) ([]Item, error)
	// Save применяет обновления к товару с учётом optimistic locking.
	Save(ctx context.Context, item Item) error
	// AdjustStock атомарно изменяет остаток на delta. Остаток не может
	// уйти в минус: такая попытка возвращает ErrInsufficientStock без записи.
	AdjustStock(ctx context.Context, id string, delta int64) (Item, error)
}

// CartRepository описывает требования к хранилищу позиций корзины.
type CartRepository interface {
	// GetLine возвращает позицию по паре (userID, itemID) или ErrCartLineNotFound.
	GetLine(ctx context.Context, userID, itemID string) (CartLine, error)
	// GetLineByID возвращает позицию по идентификатору или ErrCartLineNotFound.
	GetLineByID(ctx context.Context, lineID string) (CartLine, error)
	// ListByUser возвращает все позиции корзины пользователя.
	ListByUser(ctx context.Context, userID string) ([]CartLine, error)
	// Create сохраняет новую позицию. Гонка по паре (userID, itemID)
	// превращается в ErrVersionConflict, чтобы вызывающий повторил попытку.
	Create(ctx context.Context, line CartLine) error
	// Save применяет обновления к позиции с учётом optimistic locking.
	Save(ctx context.Context, line CartLine) error
	// Delete удаляет позицию или возвращает ErrCartLineNotFound.
	Delete(ctx context.Context, lineID string) error
	// DeleteByUser удаляет все позиции пользователя и возвращает их число.
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

// DiscountRepository описывает требования к хранилищу промо-скидок.
type DiscountRepository interface {
	Create(ctx context.Context, discount PromotionalDiscount) error
	// Get возвращает скидку по идентификатору или ErrDiscountNotFound.
	Get(ctx context.Context, id string) (PromotionalDiscount, error)
	// ListForItem возвращает скидки, привязанные к товару или его категории,
	// без фильтрации по окну действия — её выполняет резолвер.
	ListForItem(ctx context.Context, itemID, categoryID string) ([]PromotionalDiscount, error)
	List(ctx context.Context, limit int) ([]PromotionalDiscount, error)
	Save(ctx context.Context, discount PromotionalDiscount) error
}

// CouponRepository описывает требования к хранилищу купонов и журналу погашений.
type CouponRepository interface {
	// Create сохраняет новый купон. Возвращает ErrCouponCodeTaken, если код занят.
	Create(ctx context.Context, coupon Coupon) error
	// Get возвращает купон по идентификатору или ErrCouponNotFound.
	Get(ctx context.Context, id string) (Coupon, error)
	// GetByCode возвращает купон по коду или ErrCouponNotFound.
	GetByCode(ctx context.Context, code string) (Coupon, error)
	// GetByCodeForUpdate возвращает купон, удерживая блокировку строки до
	// конца транзакции. Вне транзакции ведёт себя как GetByCode.
	GetByCodeForUpdate(ctx context.Context, code string) (Coupon, error)
	Save(ctx context.Context, coupon Coupon) error
	// CountRedemptions возвращает число погашений купона.
	CountRedemptions(ctx context.Context, couponID string) (int64, error)
	// AddRedemption добавляет запись в журнал погашений.
	AddRedemption(ctx context.Context, redemption CouponRedemption) error
	// ListRedemptions возвращает журнал погашений купона.
	ListRedemptions(ctx context.Context, couponID string, limit int) ([]CouponRedemption, error)
}

// AddressRepository описывает требования к хранилищу адресов доставки.
type AddressRepository interface {
	Create(ctx context.Context, address Address) error
	// Get возвращает адрес по идентификатору или ErrAddressNotFound.
	Get(ctx context.Context, id string) (Address, error)
	// ListByUser возвращает адреса пользователя.
	ListByUser(ctx context.Context, userID string) ([]Address, error)
	// Save применяет обновления к адресу с учётом optimistic locking.
	Save(ctx context.Context, address Address) error
	// Delete удаляет адрес или возвращает ErrAddressNotFound.
	Delete(ctx context.Context, id string) error
	// ClearDefault снимает флаг is_default со всех адресов пользователя,
	// кроме exceptID, и возвращает число затронутых строк.
	ClearDefault(ctx context.Context, userID, exceptID string) (int64, error)
}

// RepositorySet — набор репозиториев, привязанных к одной области
// атомарности: либо к открытой транзакции, либо к хранилищу напрямую.
type RepositorySet interface {
	Items() ItemRepository
	CartLines() CartRepository
	Discounts() DiscountRepository
	Coupons() CouponRepository
	Addresses() AddressRepository
	Outbox() OutboxRepository
	Idempotency() IdempotencyRepository
}

// UnitOfWork выполняет набор операций как одну атомарную единицу работы.
// Проверки, предшествующие записи, обязаны выполняться внутри той же
// единицы, что и сама запись, — иначе они устаревают под конкурентной
// нагрузкой.
type UnitOfWork interface {
	// WithinTx вызывает fn с набором репозиториев, привязанным к одной
	// транзакции. Ошибка fn откатывает все изменения целиком.
	WithinTx(ctx context.Context, fn func(ctx context.Context, r RepositorySet) error) error
	// Repos возвращает набор репозиториев вне транзакции для чтений,
	// которым не нужна атомарность.
	Repos() RepositorySet
}
