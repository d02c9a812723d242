package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}

	// Память не требует ни readiness-проверки, ни закрытия.
	if deps.store == nil {
		t.Fatal("store must not be nil for memory storage")
	}
	if deps.storageChecker != nil || deps.closeFn != nil {
		t.Fatal("memory storage must not register checker or close func")
	}

	// Хранилище сразу готово к работе.
	ctx := context.Background()
	item := newTestItem()
	if err := deps.store.Repos().Items().Create(ctx, item); err != nil {
		t.Fatalf("memory store is not usable: %v", err)
	}
	stored, err := deps.store.Repos().Items().Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("read back test item: %v", err)
	}
	if stored.SKU != item.SKU {
		t.Fatalf("expected sku %s, got %s", item.SKU, stored.SKU)
	}
}

func TestInitRuntimeDependencies_Rejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		cfg  Config
	}{
		{name: "postgres without dsn", cfg: Config{StorageDriver: StorageDriverPostgres}},
		{name: "unsupported driver", cfg: Config{StorageDriver: "sqlite"}},
		{name: "blank driver", cfg: Config{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := initRuntimeDependencies(context.Background(), tc.cfg, log.WithField("test", "storage-rejections"))
			if err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}
