package app

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
)

// runWithDeadline запускает Run в отдельной горутине и проваливает тест,
// если приложение не завершилось за отведённое время. Зависший shutdown
// не должен вешать весь набор тестов.
func runWithDeadline(t *testing.T, ctx context.Context, cfg Config, deadline time.Duration) error {
	t.Helper()

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- Run(ctx, cfg)
	}()

	select {
	case err := <-resultCh:
		return err
	case <-time.After(deadline):
		t.Fatalf("Run did not return within %s", deadline)
		return nil
	}
}

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory
	cfg.KafkaBrokers = ""

	// Отмена контекста имитирует SIGTERM; Run обязан вернуть её причину.
	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(150*time.Millisecond, cancel)
	defer timer.Stop()

	err := runWithDeadline(t, ctx, cfg, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run should surface the cancellation cause, got %v", err)
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(cfg *Config)
		wantMsg string
	}{
		{
			name:    "invalid storage driver",
			mutate:  func(cfg *Config) { cfg.StorageDriver = "invalid-driver" },
			wantMsg: "unsupported storage driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(cfg *Config) { cfg.StorageDriver = StorageDriverPostgres; cfg.PostgresDSN = "" },
			wantMsg: "requires a dsn",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.HTTPAddr = "127.0.0.1:0"
			cfg.MetricsAddr = "127.0.0.1:0"
			tc.mutate(&cfg)

			// Инициализация зависимостей падает раньше старта серверов,
			// поэтому Run возвращается сразу.
			err := Run(context.Background(), cfg)
			if err == nil || !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected error containing %q, got %v", tc.wantMsg, err)
			}
		})
	}
}

func TestRun_BusyHTTPAddr(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to occupy port: %v", err)
	}
	defer listener.Close()

	cfg := DefaultConfig()
	cfg.HTTPAddr = listener.Addr().String()
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = runWithDeadline(t, ctx, cfg, 10*time.Second)
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected bind error for busy http addr, got %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := os.Getenv("STOREFRONT_POSTGRES_TEST_DSN")
	if strings.TrimSpace(dsn) == "" {
		t.Skip("set STOREFRONT_POSTGRES_TEST_DSN to run this test")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	logger := log.WithField("test", "postgres-deps")
	deps, err := initRuntimeDependencies(context.Background(), cfg, logger)
	if err != nil {
		t.Skipf("postgres is unreachable, skipping: %v", err)
	}
	t.Cleanup(func() {
		if deps.closeFn != nil {
			_ = deps.closeFn()
		}
	})

	if deps.store == nil {
		t.Fatal("postgres store must be initialized")
	}
	if deps.storageChecker == nil {
		t.Fatal("postgres deps must include a storage checker")
	}
	check := deps.storageChecker.Check(context.Background())
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("storage checker must report healthy, got %+v", check)
	}
}

func TestShutdownWorker(t *testing.T) {
	logger := log.WithField("test", "shutdown-worker")

	t.Run("cancels and waits for done", func(t *testing.T) {
		cancelCalled := false
		done := make(chan struct{})
		close(done)

		shutdownWorker("outbox", func() { cancelCalled = true }, done, logger)
		if !cancelCalled {
			t.Fatal("expected worker cancel func to be called")
		}
	})

	t.Run("nil done returns after cancel", func(t *testing.T) {
		cancelCalled := false
		shutdownWorker("noop", func() { cancelCalled = true }, nil, logger)
		if !cancelCalled {
			t.Fatal("expected cancel to be called even without done channel")
		}
	})
}

func TestShutdownHelpersNilSafe(t *testing.T) {
	logger := log.WithField("test", "shutdown-nil")

	// nil-аргументы не должны приводить к панике или блокировке.
	shutdownWorker("noop", nil, nil, logger)
	stopStockSyncConsumer(nil, logger)
	closeKafka(nil, logger)
	stopHTTPServer(nil, logger)
}
