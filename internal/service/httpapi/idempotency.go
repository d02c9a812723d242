package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const idempotencyTTL = 24 * time.Hour

// idempotentFunc выполняет бизнес-операцию и возвращает статус и тело ответа.
type idempotentFunc func(ctx context.Context) (int, any)

// withIdempotency выполняет fn не более одного раза на Idempotency-Key.
// Повтор с тем же ключом и телом воспроизводит сохранённый ответ; повтор
// с другим телом отклоняется. Без ключа запрос обрабатывается как обычно.
func (h *Handler) withIdempotency(w http.ResponseWriter, r *http.Request, rawBody []byte, fn idempotentFunc) {
	key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey))
	if h.idem == nil || key == "" {
		status, body := fn(r.Context())
		writeJSON(w, status, body)
		return
	}

	hash := buildRequestHash(r.Method, r.URL.Path, rawBody)
	record, err := h.idem.CreateProcessing(r.Context(), key, hash, time.Now().UTC().Add(idempotencyTTL))
	if err != nil {
		h.replayIdempotency(w, err, record)
		return
	}

	status, body := fn(r.Context())

	payload, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		h.logger.WithError(marshalErr).WithField("idempotency_key", key).Error("failed to encode idempotent response")
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}

	if status < http.StatusBadRequest {
		if markErr := h.idem.MarkDone(r.Context(), key, payload, status); markErr != nil {
			h.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to store idempotent success response")
		}
	} else {
		if markErr := h.idem.MarkFailed(r.Context(), key, payload, status); markErr != nil {
			h.logger.WithError(markErr).WithField("idempotency_key", key).Warn("failed to store idempotent failure response")
		}
	}

	writeStored(w, status, payload)
}

// replayIdempotency разбирает исход CreateProcessing для повторного ключа.
func (h *Handler) replayIdempotency(w http.ResponseWriter, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyKeyReused):
		writeError(w, http.StatusConflict, createErr)
	case errors.Is(createErr, domain.ErrIdempotencyKeyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			if len(record.ResponseBody) == 0 || record.HTTPStatus == 0 {
				writeError(w, http.StatusInternalServerError, errors.New("idempotency cache is empty"))
				return
			}
			w.Header().Set(headerReplayed, "true")
			writeStored(w, record.HTTPStatus, record.ResponseBody)
		case domain.IdempotencyStatusProcessing:
			writeError(w, http.StatusConflict, domain.ErrIdempotencyInProgress)
		default:
			writeError(w, http.StatusInternalServerError, errors.New("unknown idempotency record status"))
		}
	default:
		h.logger.WithError(createErr).Warn("failed to create idempotency record")
		writeError(w, http.StatusInternalServerError, errors.New("failed to initialize idempotency request"))
	}
}

// buildRequestHash связывает ключ с методом, путём и телом запроса.
func buildRequestHash(method, path string, body []byte) string {
	payload := make([]byte, 0, len(method)+len(path)+2+len(body))
	payload = append(payload, method...)
	payload = append(payload, ' ')
	payload = append(payload, path...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// readBody вычитывает тело запроса целиком для хеширования и разбора.
func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

func unmarshalStrict(data []byte, dst any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
