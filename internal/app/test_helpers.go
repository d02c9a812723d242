package app

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// newTestItem создаёт товар для использования в тестах пакета.
func newTestItem() domain.Item {
	now := time.Now().UTC()
	return domain.Item{
		ID:            "item-test-1",
		SKU:           "SKU-TEST",
		Name:          "Тестовый товар",
		CategoryID:    "cat-test",
		PriceMinor:    1000,
		StockQuantity: 5,
		Active:        true,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}
