package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const pingTimeout = 5 * time.Second

// poolLimits — настройки пула соединений, выставляются до первого запроса.
type poolLimits struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
	maxIdleTime time.Duration
}

var defaultPoolLimits = poolLimits{
	maxOpen:     20,
	maxIdle:     10,
	maxLifetime: 45 * time.Minute,
	maxIdleTime: 2 * time.Minute,
}

func (p poolLimits) apply(db *sql.DB) {
	db.SetMaxOpenConns(p.maxOpen)
	db.SetMaxIdleConns(p.maxIdle)
	db.SetConnMaxLifetime(p.maxLifetime)
	db.SetConnMaxIdleTime(p.maxIdleTime)
}

// querier покрывает общую часть *sql.DB и *sql.Tx, чтобы репозитории
// одинаково работали и напрямую с базой, и внутри транзакции.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL и реализует
// domain.UnitOfWork поверх его транзакций.
type Store struct {
	db *sql.DB
}

// Open подключается к PostgreSQL через pgx-драйвер database/sql. Нерабочий
// DSN должен обнаружиться на старте, поэтому база сразу проверяется ping-ом.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	defaultPoolLimits.apply(db)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return store, nil
}

// DB отдаёт низкоуровневое *sql.DB для health-проверок и вспомогательных
// запросов мимо репозиториев.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Repos возвращает набор репозиториев вне транзакции.
func (s *Store) Repos() domain.RepositorySet {
	return newRepoSet(s.db)
}

// WithinTx выполняет fn в одной транзакции: все чтения и записи внутри
// видят согласованное состояние, ошибка fn откатывает изменения целиком.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r domain.RepositorySet) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(ctx, newRepoSet(tx)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("postgres store is not initialized")
	}
	return nil
}

// Ping проверяет доступность базы с коротким таймаутом.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema доводит схему базы до актуальной версии.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close закрывает пул соединений. Безопасен на nil-хранилище.
func (s *Store) Close() error {
	if s.ready() != nil {
		return nil
	}
	return s.db.Close()
}

// repoSet связывает все репозитории с одним querier: либо с базой,
// либо с открытой транзакцией.
type repoSet struct {
	items       *itemRepository
	cartLines   *cartRepository
	discounts   *discountRepository
	coupons     *couponRepository
	addresses   *addressRepository
	outbox      *outboxRepository
	idempotency *idempotencyRepository
}

func newRepoSet(q querier) *repoSet {
	return &repoSet{
		items:       &itemRepository{q: q},
		cartLines:   &cartRepository{q: q},
		discounts:   &discountRepository{q: q},
		coupons:     &couponRepository{q: q},
		addresses:   &addressRepository{q: q},
		outbox:      &outboxRepository{q: q},
		idempotency: &idempotencyRepository{q: q},
	}
}

func (r *repoSet) Items() domain.ItemRepository              { return r.items }
func (r *repoSet) CartLines() domain.CartRepository          { return r.cartLines }
func (r *repoSet) Discounts() domain.DiscountRepository      { return r.discounts }
func (r *repoSet) Coupons() domain.CouponRepository          { return r.coupons }
func (r *repoSet) Addresses() domain.AddressRepository       { return r.addresses }
func (r *repoSet) Outbox() domain.OutboxRepository           { return r.outbox }
func (r *repoSet) Idempotency() domain.IdempotencyRepository { return r.idempotency }

var (
	_ domain.UnitOfWork    = (*Store)(nil)
	_ domain.RepositorySet = (*repoSet)(nil)
)
