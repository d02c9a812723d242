package memory

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// fallbackKeyTTL повторяет срок из postgres-реализации: ключ без явного TTL
// живёт сутки.
const fallbackKeyTTL = 24 * time.Hour

// idempotencyRepositoryInMemory — in-memory реализация IdempotencyRepository.
type idempotencyRepositoryInMemory struct {
	s *Store
}

func normalizeIdemKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", domain.ErrIdempotencyKeyRequired
	}
	return key, nil
}

func (r *idempotencyRepositoryInMemory) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key, err := normalizeIdemKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(fallbackKeyTTL)
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if existing, ok := r.s.data.idem[key]; ok {
		conflict := domain.ErrIdempotencyKeyExists
		if existing.RequestHash != requestHash {
			conflict = domain.ErrIdempotencyKeyReused
		}
		return cloneIdempotencyRecord(existing), conflict
	}

	r.s.data.idem[key] = record
	return cloneIdempotencyRecord(record), nil
}

func (r *idempotencyRepositoryInMemory) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key, err := normalizeIdemKey(key)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if record, ok := r.s.data.idem[key]; ok {
		return cloneIdempotencyRecord(record), nil
	}
	return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
}

func (r *idempotencyRepositoryInMemory) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepositoryInMemory) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.markStatus(key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *idempotencyRepositoryInMemory) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	cutoff := before
	if cutoff.IsZero() {
		cutoff = time.Now().UTC()
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var expired []string
	for key, record := range r.s.data.idem {
		if !record.TTLAt.After(cutoff) {
			expired = append(expired, key)
		}
	}
	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}
	for _, key := range expired {
		delete(r.s.data.idem, key)
	}

	return len(expired), nil
}

func (r *idempotencyRepositoryInMemory) markStatus(key string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	key, err := normalizeIdemKey(key)
	if err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	record, ok := r.s.data.idem[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}

	record.Status = status
	record.ResponseBody = bytes.Clone(responseBody)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = time.Now().UTC()
	r.s.data.idem[key] = record

	return nil
}

// cloneIdempotencyRecord отвязывает ResponseBody от хранимого слайса.
func cloneIdempotencyRecord(record domain.IdempotencyRecord) domain.IdempotencyRecord {
	record.ResponseBody = bytes.Clone(record.ResponseBody)
	return record
}

var _ domain.IdempotencyRepository = (*idempotencyRepositoryInMemory)(nil)
