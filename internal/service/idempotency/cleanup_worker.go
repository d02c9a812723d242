// Package idempotency содержит фоновую очистку просроченных idempotency-ключей.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Редкие проходы крупными порциями: таблица ключей чистится лениво,
// гонки с горячим путём записи тут не критичны.
const (
	defaultSweepEvery = 10 * time.Minute
	defaultSweepBatch = 500
)

var (
	cleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_idempotency_cleanup_runs_total",
		Help: "Total number of idempotency cleanup runs grouped by result.",
	}, []string{"result"})
	cleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_idempotency_cleanup_deleted_total",
		Help: "Total number of deleted expired idempotency records.",
	})
	cleanupLastDeleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_idempotency_cleanup_last_deleted",
		Help: "Records removed by the most recent cleanup pass.",
	})
)

// CleanupWorker периодически удаляет idempotency-записи с истёкшим TTL,
// чтобы таблица ключей не росла бесконечно.
type CleanupWorker struct {
	repo       domain.IdempotencyRepository
	logger     *log.Entry
	sweepEvery time.Duration
	batchLimit int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

// WithLogger задаёт logger воркера.
func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) { w.logger = logger }
}

// WithInterval задаёт период между проходами очистки.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) { w.sweepEvery = interval }
}

// WithBatchSize задаёт максимум записей, удаляемых одним запросом.
func WithBatchSize(batchSize int) CleanupOption {
	return func(w *CleanupWorker) { w.batchLimit = batchSize }
}

// NewCleanupWorker создаёт воркер очистки. Некорректные параметры
// приводятся к значениям по умолчанию.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:       repo,
		sweepEvery: defaultSweepEvery,
		batchLimit: defaultSweepBatch,
	}
	for _, option := range options {
		option(w)
	}

	if w.logger == nil {
		w.logger = log.WithField("component", "idempotency-cleanup-worker")
	}
	if w.sweepEvery <= 0 {
		w.sweepEvery = defaultSweepEvery
	}
	if w.batchLimit <= 0 {
		w.batchLimit = defaultSweepBatch
	}

	return w
}

// Run выполняет очистку сразу и далее по тикеру до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	w.sweep(ctx)

	ticker := time.NewTicker(w.sweepEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// sweep — один проход очистки с учётом результата в метриках.
func (w *CleanupWorker) sweep(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, time.Now().UTC())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		cleanupRuns.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("idempotency cleanup run failed")
		return
	}

	cleanupRuns.WithLabelValues("ok").Inc()
	cleanupLastDeleted.Set(float64(deleted))
	if deleted > 0 {
		w.logger.WithField("deleted", deleted).Info("idempotency cleanup completed")
	}
}

// DeleteExpired удаляет записи с ttl <= before порциями, пока репозиторий
// возвращает полные порции. Нулевое before означает "сейчас".
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	cutoff := before
	if cutoff.IsZero() {
		cutoff = time.Now().UTC()
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		removed, err := w.repo.DeleteExpired(ctx, cutoff, w.batchLimit)
		if err != nil {
			return total, err
		}
		if removed > 0 {
			cleanupDeleted.Add(float64(removed))
			total += removed
		}

		// Неполная порция: просроченных записей больше нет.
		if removed < w.batchLimit {
			return total, nil
		}
	}
}
