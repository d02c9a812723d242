package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Таймаут ожидания остановки компонентов при завершении.
const shutdownTimeout = 5 * time.Second

// Число попыток обработать снимок остатков до отправки в DLQ.
const stockSyncMaxRetries = 3

// Run собирает компоненты сервиса и блокируется до отмены ctx либо до
// фатальной ошибки HTTP-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if deps.closeFn != nil {
		defer func() {
			if err := deps.closeFn(); err != nil {
				logger.WithError(err).Warn("failed to close storage")
			}
		}()
	}

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	coreMetrics := metrics.NewCoreMetrics()
	services := buildServices(deps.store, logger)
	apiHandler := buildAPIHandler(deps.store, services, coreMetrics, logger)

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	healthHandler.RegisterChecker("outbox", outboxBacklogChecker(deps.store, cfg.OutboxMaxPending))

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	// Фоновые воркеры живут на собственном контексте: их нужно остановить
	// после прекращения приёма HTTP-трафика, а не вместе с ним.
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	var outboxDone <-chan struct{}
	if kafkaProducer != nil {
		worker := outbox.NewWorker(
			deps.store.Repos().Outbox(),
			kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicCheckoutEvents),
			outbox.WithLogger(logger.WithField("worker", "outbox")),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(kafkaProducer)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		outboxDone = runWorker(workerCtx, worker.Run)
	}

	cleanupWorker := idempotency.NewCleanupWorker(
		deps.store.Repos().Idempotency(),
		idempotency.WithLogger(logger.WithField("worker", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	cleanupDone := runWorker(workerCtx, cleanupWorker.Run)

	stockSync := startStockSyncConsumer(workerCtx, cfg, services.catalog, kafkaProducer, logger)

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	// Порядок остановки: сначала перестаём принимать запросы, затем
	// останавливаем consumer и воркеры, метрики гасим последними, чтобы
	// пробы были доступны во время завершения.
	shutdown := func() {
		stopHTTPServer(apiSrv, logger)
		stopStockSyncConsumer(stockSync, logger)
		shutdownWorker("outbox", stopWorkers, outboxDone, logger)
		shutdownWorker("idempotency-cleanup", nil, cleanupDone, logger)
		stopHTTPServer(metricsSrv, logger)
	}

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, завершаем работу")
		shutdown()
		return ctx.Err()

	case err := <-errCh:
		shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// outboxBacklogChecker следит за очередью недоставленных событий. Разросшийся
// backlog означает, что события не уходят потребителям, и readiness должен
// об этом сообщать.
func outboxBacklogChecker(store domain.UnitOfWork, maxPending int) healthcheck.Checker {
	return healthcheck.NewSimpleChecker("outbox", func(ctx context.Context) error {
		stats, err := store.Repos().Outbox().Stats(ctx)
		if err != nil {
			return err
		}
		if maxPending > 0 && stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds limit %d", stats.PendingCount, maxPending)
		}
		return nil
	})
}

// runWorker запускает фоновый цикл и возвращает канал его завершения.
func runWorker(ctx context.Context, run func(context.Context)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(ctx)
	}()
	return done
}

// startStockSyncConsumer подписывает каталог на снимки остатков со склада.
// Без брокеров или group id подписка не создаётся.
func startStockSyncConsumer(ctx context.Context, cfg Config, applier kafka.StockApplier, dlqProducer *kafka.Producer, logger *log.Entry) *kafka.StockSyncConsumer {
	brokerList := parseBrokerList(cfg.KafkaBrokers)
	if len(brokerList) == 0 || cfg.KafkaGroupID == "" {
		return nil
	}

	consumer, err := kafka.NewStockSyncConsumer(brokerList, cfg.KafkaGroupID, applier, dlqProducer, stockSyncMaxRetries)
	if err != nil {
		logger.WithError(err).Warn("failed to create stock sync consumer, continuing without it")
		return nil
	}

	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start stock sync consumer")
		return nil
	}

	logger.WithFields(log.Fields{
		"group_id": cfg.KafkaGroupID,
		"topic":    kafka.TopicStockSync,
	}).Info("stock sync consumer started")
	return consumer
}

// stopStockSyncConsumer останавливает consumer и дожидается обработчиков.
func stopStockSyncConsumer(consumer *kafka.StockSyncConsumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop stock sync consumer")
	}
}

// shutdownWorker отменяет контекст воркера и дожидается завершения его цикла.
func shutdownWorker(name string, cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}

	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.Warnf("воркер %s не остановился за отведённое время", name)
	}
}

// startMetricsServer запускает служебный HTTP: метрики Prometheus и пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("служебный HTTP на %s: /metrics, /healthz, /livez, /readyz", addr)
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("service http server failed")
		}
	}()
	context.AfterFunc(ctx, func() { stopHTTPServer(srv, logger) })

	return srv
}

// stopHTTPServer даёт активным запросам shutdownTimeout на завершение.
func stopHTTPServer(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http server stopped uncleanly")
	}
}
