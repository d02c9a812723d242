package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	maxRetries = 3
	baseDelay  = 10 * time.Millisecond
)

// Service управляет каталогом товаров и складскими остатками. Каждое
// изменение остатка пишет событие stock.adjusted в outbox той же
// транзакцией, что и само изменение.
type Service struct {
	store  domain.UnitOfWork
	logger *log.Entry
}

// NewService создаёт сервис каталога.
func NewService(store domain.UnitOfWork, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog")
	}
	return &Service{store: store, logger: logger}
}

// CreateInput — параметры нового товара.
type CreateInput struct {
	SKU           string
	Name          string
	CategoryID    string
	PriceMinor    int64
	StockQuantity int64
}

// UpdateInput — изменяемые поля товара. Остаток меняется только через
// AdjustStock и SetStock.
type UpdateInput struct {
	Name       string
	CategoryID string
	PriceMinor int64
	Active     bool
}

// Create добавляет товар в каталог.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Item, error) {
	now := time.Now().UTC()
	item := domain.Item{
		ID:            uuid.NewString(),
		SKU:           in.SKU,
		Name:          in.Name,
		CategoryID:    in.CategoryID,
		PriceMinor:    in.PriceMinor,
		StockQuantity: in.StockQuantity,
		Active:        true,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if errs := item.ValidateInvariants(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if err := s.store.Repos().Items().Create(ctx, item); err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"item_id": item.ID,
		"sku":     item.SKU,
	}).Info("item created")

	return &item, nil
}

// Update заменяет описательные поля товара.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Item, error) {
	repos := s.store.Repos()
	item, err := repos.Items().Get(ctx, id)
	if err != nil {
		return nil, err
	}

	item.Name = in.Name
	item.CategoryID = in.CategoryID
	item.PriceMinor = in.PriceMinor
	item.Active = in.Active
	item.UpdatedAt = time.Now().UTC()

	if errs := item.ValidateInvariants(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := repos.Items().Save(ctx, item); err != nil {
		return nil, err
	}
	item.Version++
	return &item, nil
}

// Deactivate скрывает товар из продажи. Повторный вызов — no-op.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	repos := s.store.Repos()
	item, err := repos.Items().Get(ctx, id)
	if err != nil {
		return err
	}
	if !item.Active {
		return nil
	}

	item.Active = false
	item.UpdatedAt = time.Now().UTC()
	if err := repos.Items().Save(ctx, item); err != nil {
		return err
	}

	s.logger.WithField("item_id", id).Info("item deactivated")
	return nil
}

// Get возвращает товар по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (*domain.Item, error) {
	item, err := s.store.Repos().Items().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetBySKU возвращает товар по артикулу.
func (s *Service) GetBySKU(ctx context.Context, sku string) (*domain.Item, error) {
	item, err := s.store.Repos().Items().GetBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// List возвращает товары каталога.
func (s *Service) List(ctx context.Context, limit int) ([]domain.Item, error) {
	return s.store.Repos().Items().List(ctx, limit)
}

// AdjustStock атомарно меняет остаток на delta. Попытка увести остаток
// в минус не меняет ничего и возвращает ErrInsufficientStock.
func (s *Service) AdjustStock(ctx context.Context, itemID string, delta int64) (*domain.Item, error) {
	if delta == 0 {
		item, err := s.store.Repos().Items().Get(ctx, itemID)
		if err != nil {
			return nil, err
		}
		return &item, nil
	}

	var updated domain.Item
	err := s.store.WithinTx(ctx, func(ctx context.Context, r domain.RepositorySet) error {
		item, err := r.Items().AdjustStock(ctx, itemID, delta)
		if err != nil {
			return err
		}
		updated = item
		return enqueueStockAdjusted(ctx, r, item, delta)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"item_id":     itemID,
		"delta":       delta,
		"stock_after": updated.StockQuantity,
	}).Info("stock adjusted")

	return &updated, nil
}

// SetStock выставляет остаток в точное значение, например по данным
// инвентаризации склада. Гонки разрешаются повтором поверх CAS.
func (s *Service) SetStock(ctx context.Context, itemID string, qty int64) (*domain.Item, error) {
	if qty < 0 {
		return nil, domain.ErrStockNegative
	}

	var updated domain.Item
	err := s.withConflictRetry(ctx, "set_stock", func(ctx context.Context, r domain.RepositorySet) error {
		item, err := r.Items().Get(ctx, itemID)
		if err != nil {
			return err
		}
		delta := qty - item.StockQuantity
		if delta == 0 {
			updated = item
			return nil
		}

		item.StockQuantity = qty
		item.UpdatedAt = time.Now().UTC()
		if err := r.Items().Save(ctx, item); err != nil {
			return err
		}
		item.Version++
		updated = item
		return enqueueStockAdjusted(ctx, r, item, delta)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(log.Fields{
		"item_id":     itemID,
		"stock_after": updated.StockQuantity,
	}).Info("stock set")

	return &updated, nil
}

func enqueueStockAdjusted(ctx context.Context, r domain.RepositorySet, item domain.Item, delta int64) error {
	payload, err := json.Marshal(map[string]interface{}{
		"item_id":     item.ID,
		"sku":         item.SKU,
		"delta":       delta,
		"stock_after": item.StockQuantity,
		"adjusted_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal stock.adjusted payload: %w", err)
	}
	if _, err := r.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "item",
		AggregateID:   item.ID,
		EventType:     "stock.adjusted",
		Payload:       payload,
	}); err != nil {
		return fmt.Errorf("enqueue stock.adjusted: %w", err)
	}
	return nil
}

func (s *Service) withConflictRetry(ctx context.Context, op string, fn func(ctx context.Context, r domain.RepositorySet) error) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := s.store.WithinTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !domain.IsVersionConflict(err) {
			return err
		}
		if attempt < maxRetries-1 {
			s.logger.WithFields(log.Fields{
				"op":      op,
				"attempt": attempt + 1,
			}).Warn("catalog version conflict, retrying")
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
		}
	}
	return domain.ErrConcurrentModification
}
