package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// state — все таблицы in-memory хранилища. Значения хранятся копиями,
// поэтому снимок состояния сводится к копированию мап.
type state struct {
	items       map[string]domain.Item
	cartLines   map[string]domain.CartLine
	discounts   map[string]domain.PromotionalDiscount
	coupons     map[string]domain.Coupon
	redemptions map[string][]domain.CouponRedemption
	addresses   map[string]domain.Address
	outbox      map[string]outboxRecord
	idem        map[string]domain.IdempotencyRecord
}

func newState() *state {
	return &state{
		items:       make(map[string]domain.Item),
		cartLines:   make(map[string]domain.CartLine),
		discounts:   make(map[string]domain.PromotionalDiscount),
		coupons:     make(map[string]domain.Coupon),
		redemptions: make(map[string][]domain.CouponRedemption),
		addresses:   make(map[string]domain.Address),
		outbox:      make(map[string]outboxRecord),
		idem:        make(map[string]domain.IdempotencyRecord),
	}
}

func (st *state) clone() *state {
	cp := newState()
	for k, v := range st.items {
		cp.items[k] = v
	}
	for k, v := range st.cartLines {
		cp.cartLines[k] = v
	}
	for k, v := range st.discounts {
		cp.discounts[k] = v
	}
	for k, v := range st.coupons {
		cp.coupons[k] = v
	}
	for k, v := range st.redemptions {
		cp.redemptions[k] = append([]domain.CouponRedemption(nil), v...)
	}
	for k, v := range st.addresses {
		cp.addresses[k] = v
	}
	for k, v := range st.outbox {
		cp.outbox[k] = v
	}
	for k, v := range st.idem {
		cp.idem[k] = v
	}
	return cp
}

// Store — in-memory реализация UnitOfWork для локальной разработки и тестов.
// Транзакции сериализуются целиком: WithinTx выполняет колбэк под
// эксклюзивной блокировкой и при ошибке откатывает состояние из снимка.
type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex
	data *state
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore() *Store {
	return &Store{data: newState()}
}

// Repos возвращает набор репозиториев без транзакции.
func (s *Store) Repos() domain.RepositorySet {
	return &repoSet{store: s}
}

// WithinTx выполняет fn атомарно: либо все изменения остаются,
// либо состояние возвращается к снимку на момент входа.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, r domain.RepositorySet) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(ctx, &repoSet{store: s}); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}

	return nil
}

type repoSet struct {
	store *Store
}

func (r *repoSet) Items() domain.ItemRepository              { return &itemRepositoryInMemory{s: r.store} }
func (r *repoSet) CartLines() domain.CartRepository          { return &cartRepositoryInMemory{s: r.store} }
func (r *repoSet) Discounts() domain.DiscountRepository      { return &discountRepositoryInMemory{s: r.store} }
func (r *repoSet) Coupons() domain.CouponRepository          { return &couponRepositoryInMemory{s: r.store} }
func (r *repoSet) Addresses() domain.AddressRepository       { return &addressRepositoryInMemory{s: r.store} }
func (r *repoSet) Outbox() domain.OutboxRepository           { return &outboxRepositoryInMemory{s: r.store} }
func (r *repoSet) Idempotency() domain.IdempotencyRepository { return &idempotencyRepositoryInMemory{s: r.store} }

var (
	_ domain.UnitOfWork    = (*Store)(nil)
	_ domain.RepositorySet = (*repoSet)(nil)
)
