package address

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	maxRetries = 3
	baseDelay  = 10 * time.Millisecond
)

// Service управляет адресами доставки и держит инвариант «не больше
// одного дефолтного адреса на пользователя». Смена дефолта — это снять
// флаг со всех и выставить на одном в одной транзакции; гонку, которую
// транзакция не увидела, добивает частичный уникальный индекс.
type Service struct {
	store  domain.UnitOfWork
	logger *log.Entry
}

// NewService создаёт сервис адресов.
func NewService(store domain.UnitOfWork, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "address")
	}
	return &Service{store: store, logger: logger}
}

// Input — поля адреса, задаваемые пользователем.
type Input struct {
	Recipient  string
	Line1      string
	Line2      string
	City       string
	PostalCode string
	Country    string
	IsDefault  bool
}

// Create добавляет адрес. Если он сразу помечен дефолтным, прежний
// дефолт снимается в той же транзакции.
func (s *Service) Create(ctx context.Context, userID string, in Input) (*domain.Address, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}

	now := time.Now().UTC()
	address := domain.Address{
		ID:         uuid.NewString(),
		UserID:     userID,
		Recipient:  in.Recipient,
		Line1:      in.Line1,
		Line2:      in.Line2,
		City:       in.City,
		PostalCode: in.PostalCode,
		Country:    in.Country,
		IsDefault:  in.IsDefault,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if errs := address.ValidateInvariants(); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	err := s.withConflictRetry(ctx, "create", func(ctx context.Context, r domain.RepositorySet) error {
		if address.IsDefault {
			if _, err := r.Addresses().ClearDefault(ctx, userID, address.ID); err != nil {
				return err
			}
		}
		return r.Addresses().Create(ctx, address)
	})
	if err != nil {
		return nil, err
	}
	return &address, nil
}

// Update заменяет поля адреса. Ставший дефолтным адрес вытесняет прежний
// дефолт в той же транзакции.
func (s *Service) Update(ctx context.Context, userID, addressID string, in Input) (*domain.Address, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}

	var updated domain.Address
	err := s.withConflictRetry(ctx, "update", func(ctx context.Context, r domain.RepositorySet) error {
		address, err := r.Addresses().Get(ctx, addressID)
		if err != nil {
			return err
		}
		if address.UserID != userID {
			return domain.ErrAddressNotFound
		}

		address.Recipient = in.Recipient
		address.Line1 = in.Line1
		address.Line2 = in.Line2
		address.City = in.City
		address.PostalCode = in.PostalCode
		address.Country = in.Country
		address.IsDefault = in.IsDefault
		address.UpdatedAt = time.Now().UTC()

		if errs := address.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}

		if address.IsDefault {
			if _, err := r.Addresses().ClearDefault(ctx, userID, address.ID); err != nil {
				return err
			}
		}
		if err := r.Addresses().Save(ctx, address); err != nil {
			return err
		}
		address.Version++
		updated = address
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetDefault делает адрес дефолтным. Применяется либо целиком,
// либо никак; половинчатого состояния не существует.
func (s *Service) SetDefault(ctx context.Context, userID, addressID string) error {
	if userID == "" {
		return domain.ErrUserIDRequired
	}

	return s.withConflictRetry(ctx, "set_default", func(ctx context.Context, r domain.RepositorySet) error {
		address, err := r.Addresses().Get(ctx, addressID)
		if err != nil {
			return err
		}
		if address.UserID != userID {
			return domain.ErrAddressNotFound
		}
		if address.IsDefault {
			return nil
		}

		if _, err := r.Addresses().ClearDefault(ctx, userID, address.ID); err != nil {
			return err
		}

		address.IsDefault = true
		address.UpdatedAt = time.Now().UTC()
		return r.Addresses().Save(ctx, address)
	})
}

// Get возвращает адрес пользователя; чужой адрес неотличим от отсутствующего.
func (s *Service) Get(ctx context.Context, userID, addressID string) (*domain.Address, error) {
	address, err := s.store.Repos().Addresses().Get(ctx, addressID)
	if err != nil {
		return nil, err
	}
	if address.UserID != userID {
		return nil, domain.ErrAddressNotFound
	}
	return &address, nil
}

// List возвращает адреса пользователя.
func (s *Service) List(ctx context.Context, userID string) ([]domain.Address, error) {
	if userID == "" {
		return nil, domain.ErrUserIDRequired
	}
	return s.store.Repos().Addresses().ListByUser(ctx, userID)
}

// Delete удаляет адрес. Удаление дефолтного оставляет пользователя
// без дефолта — это допустимо.
func (s *Service) Delete(ctx context.Context, userID, addressID string) error {
	repos := s.store.Repos()
	address, err := repos.Addresses().Get(ctx, addressID)
	if err != nil {
		return err
	}
	if address.UserID != userID {
		return domain.ErrAddressNotFound
	}
	return repos.Addresses().Delete(ctx, addressID)
}

// withConflictRetry повторяет транзакцию при конфликте версий или
// срабатывании уникального индекса; исчерпание попыток —
// ErrConcurrentModification.
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
			}).Warn("address version conflict, retrying")
			time.Sleep(baseDelay * time.Duration(1<<uint(attempt)))
		}
	}
	return domain.ErrConcurrentModification
}
