package stock

import (
	"context"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ItemGetter — минимальная зависимость проверки остатков; ей
// удовлетворяет любой ItemRepository, в том числе транзакционный.
type ItemGetter interface {
	Get(ctx context.Context, id string) (domain.Item, error)
}

// Check проверяет, что запрошенное количество товара можно удовлетворить.
// Проверка чистая: никаких записей, только вердикт. Вызывающий передаёт
// итоговое количество в корзине, а не дельту.
func Check(item *domain.Item, requested int64) error {
	if item == nil {
		return domain.ErrItemNotFound
	}
	if requested <= 0 {
		return domain.ErrInvalidQuantity
	}
	if requested > item.StockQuantity {
		return domain.ErrInsufficientStock
	}
	return nil
}

// CheckByID загружает товар и выполняет Check. Неактивный товар
// неотличим от отсутствующего.
func CheckByID(ctx context.Context, items ItemGetter, itemID string, requested int64) (domain.Item, error) {
	item, err := items.Get(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if !item.Active {
		return domain.Item{}, domain.ErrItemNotFound
	}
	if err := Check(&item, requested); err != nil {
		return domain.Item{}, err
	}
	return item, nil
}
