package domain

import "time"

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing — запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone — запрос завершён и ответ сохранён для повторов.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed — обработка завершилась ошибкой; ответ с ней
	// тоже сохраняется и воспроизводится при повторе.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyRecord хранит состояние обработки запроса с idempotency-key.
// Ключи выдаёт клиент; RequestHash защищает от переиспользования ключа
// с другим телом запроса.
type IdempotencyRecord struct {
	Key         string
	Status      IdempotencyStatus
	RequestHash string

	ResponseBody []byte
	HTTPStatus   int

	TTLAt     time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Replayable сообщает, можно ли отдать сохранённый ответ повторно.
func (r *IdempotencyRecord) Replayable() bool {
	return r.Status == IdempotencyStatusDone || r.Status == IdempotencyStatusFailed
}

// Expired сообщает, истёк ли срок хранения записи к моменту now.
func (r *IdempotencyRecord) Expired(now time.Time) bool {
	return now.After(r.TTLAt)
}
