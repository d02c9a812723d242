package cart

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/stock"
)

const (
	maxRetries = 3
	baseDelay  = 10 * time.Millisecond
)

// Manager поддерживает инвариант корзины: количество в позиции никогда
// не превышает остаток на складе в момент записи. Каждая запись — это
// перечитать, проверить и записать в одной транзакции; упавшая проверка
// не оставляет следов.
type Manager struct {
	store  domain.UnitOfWork
	logger *log.Entry
}

// NewManager создаёт менеджер корзины.
func NewManager(store domain.UnitOfWork, logger *log.Entry) *Manager {
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	return &Manager{store: store, logger: logger}
}

// AddOrMerge добавляет товар в корзину; повторное добавление сливается
// в одну позицию. Проверка остатка выполняется против итогового
// количества после слияния, не против дельты.
func (m *Manager) AddOrMerge(ctx context.Context, userID, itemID string, qty int64) (*domain.CartLine, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}
	if itemID == "" {
		return nil, domain.ErrItemIDRequired
	}
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var line domain.CartLine
	err := m.withConflictRetry(ctx, "add_or_merge", func(ctx context.Context, r domain.RepositorySet) error {
		now := time.Now().UTC()

		existing, err := r.CartLines().GetLine(ctx, userID, itemID)
		switch {
		case err == nil:
			merged := existing.Quantity + qty
			if _, err := stock.CheckByID(ctx, r.Items(), itemID, merged); err != nil {
				return err
			}
			existing.Quantity = merged
			existing.UpdatedAt = now
			if err := r.CartLines().Save(ctx, existing); err != nil {
				return err
			}
			existing.Version++
			line = existing
			return nil

		case errors.Is(err, domain.ErrCartLineNotFound):
			if _, err := stock.CheckByID(ctx, r.Items(), itemID, qty); err != nil {
				return err
			}
			line = domain.CartLine{
				ID:        uuid.NewString(),
				UserID:    userID,
				ItemID:    itemID,
				Quantity:  qty,
				Version:   1,
				CreatedAt: now,
				UpdatedAt: now,
			}
			return r.CartLines().Create(ctx, line)

		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// SetQuantity выставляет количество в существующей позиции. Чужая
// позиция неотличима от отсутствующей.
func (m *Manager) SetQuantity(ctx context.Context, userID, lineID string, qty int64) (*domain.CartLine, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	var line domain.CartLine
	err := m.withConflictRetry(ctx, "set_quantity", func(ctx context.Context, r domain.RepositorySet) error {
		existing, err := r.CartLines().GetLineByID(ctx, lineID)
		if err != nil {
			return err
		}
		if existing.UserID != userID {
			return domain.ErrCartLineNotFound
		}

		if _, err := stock.CheckByID(ctx, r.Items(), existing.ItemID, qty); err != nil {
			return err
		}

		existing.Quantity = qty
		existing.UpdatedAt = time.Now().UTC()
		if err := r.CartLines().Save(ctx, existing); err != nil {
			return err
		}
		existing.Version++
		line = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// Remove удаляет позицию из корзины.
func (m *Manager) Remove(ctx context.Context, userID, lineID string) error {
	if userID == "" {
		return domain.ErrUserIDRequired
	}

	repos := m.store.Repos()
	line, err := repos.CartLines().GetLineByID(ctx, lineID)
	if err != nil {
		return err
	}
	if line.UserID != userID {
		return domain.ErrCartLineNotFound
	}
	return repos.CartLines().Delete(ctx, lineID)
}

// Clear опустошает корзину пользователя.
func (m *Manager) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return domain.ErrUserIDRequired
	}
	_, err := m.store.Repos().CartLines().DeleteByUser(ctx, userID)
	return err
}

// Lines возвращает содержимое корзины.
func (m *Manager) Lines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}
	return m.store.Repos().CartLines().ListByUser(ctx, userID)
}

// withConflictRetry повторяет транзакцию при конфликте версий с
// экспоненциальной паузой; исчерпание попыток превращается в
// ErrConcurrentModification. Колбэк каждый раз перечитывает состояние
// внутри свежей транзакции, поэтому повтор безопасен.
func (m *Manager) withConflictRetry(ctx context.Context, op string, fn func(ctx context.Context, r domain.RepositorySet) error) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := m.store.WithinTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !domain.IsVersionConflict(err) {
			return err
		}
		if attempt < maxRetries-1 {
			m.logger.WithFields(log.Fields{
				"op":      op,
				"attempt": attempt + 1,
			}).Warn("cart version conflict, retrying")
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
		}
	}
	return domain.ErrConcurrentModification
}
