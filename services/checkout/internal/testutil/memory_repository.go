// Package testutil содержит общие моки и in-memory реализации для тестов checkout.
// ВАЖНО: пакет не импортирует service (circular dependency).
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/checkout-core/services/checkout/internal/domain"
	"example.com/checkout-core/services/checkout/internal/repository"
)

// =============================================================================
// MemoryOrderRepository — in-memory repository.OrderRepository
// =============================================================================

// MemoryOrderRepository хранит заказы в памяти.
// WithOrderLock сериализует изменения одного заказа так же, как SELECT ... FOR UPDATE.
type MemoryOrderRepository struct {
	mu      sync.Mutex
	orders  map[string]*domain.Order
	locks   map[string]*sync.Mutex
	events  []domain.Event
	reviews []*domain.PaymentReview

	// conflicts — сколько следующих сохранений завершится ErrConcurrentUpdate.
	conflicts int
}

var _ repository.OrderRepository = (*MemoryOrderRepository)(nil)

// NewMemoryOrderRepository создаёт пустой репозиторий.
func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{
		orders: make(map[string]*domain.Order),
		locks:  make(map[string]*sync.Mutex),
	}
}

// FailNextSaves заставляет n следующих сохранений вернуть ErrConcurrentUpdate.
func (r *MemoryOrderRepository) FailNextSaves(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = n
}

// Put сохраняет заказ как есть (подготовка теста).
func (r *MemoryOrderRepository) Put(order *domain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
}

// Events возвращает события, записанные в outbox.
func (r *MemoryOrderRepository) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

// EventTypes возвращает типы событий в порядке записи.
func (r *MemoryOrderRepository) EventTypes() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.Type)
	}
	return types
}

// Reviews возвращает записи ручной сверки.
func (r *MemoryOrderRepository) Reviews() []*domain.PaymentReview {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.PaymentReview(nil), r.reviews...)
}

func (r *MemoryOrderRepository) Create(_ context.Context, order *domain.Order, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = cloneOrder(order)
	r.events = append(r.events, events...)
	return nil
}

func (r *MemoryOrderRepository) GetByID(_ context.Context, orderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryOrderRepository) GetByGatewayOrderID(_ context.Context, gatewayOrderID string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.orders {
		if o.AttemptByGatewayOrderID(gatewayOrderID) != nil {
			return cloneOrder(o), nil
		}
	}
	return nil, domain.ErrUnknownOrder
}

func (r *MemoryOrderRepository) WithOrderLock(ctx context.Context, orderID string, fn repository.UpdateFunc) (*domain.Order, error) {
	lock := r.lockFor(orderID)
	lock.Lock()
	defer lock.Unlock()

	order, err := r.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	readVersion := order.Version

	changes, err := fn(order)
	if err != nil {
		return nil, err
	}
	if changes == nil {
		return order, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conflicts > 0 {
		r.conflicts--
		return nil, domain.ErrConcurrentUpdate
	}
	if r.orders[orderID].Version != readVersion {
		return nil, domain.ErrConcurrentUpdate
	}

	order.Version = readVersion + 1
	r.orders[orderID] = cloneOrder(order)
	r.events = append(r.events, changes.Events...)
	r.reviews = append(r.reviews, changes.Reviews...)
	return order, nil
}

func (r *MemoryOrderRepository) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []*domain.Order
	for _, o := range r.orders {
		if o.Status == domain.OrderStatusPaymentPending && o.StatusChangedAt.Before(olderThan) {
			stale = append(stale, o)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].StatusChangedAt.Before(stale[j].StatusChangedAt) })

	ids := make([]string, 0, len(stale))
	for _, o := range stale {
		if len(ids) == limit {
			break
		}
		ids = append(ids, o.ID)
	}
	return ids, nil
}

func (r *MemoryOrderRepository) lockFor(orderID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[orderID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[orderID] = l
	}
	return l
}

// cloneOrder копирует заказ вместе с попытками: вызывающий не должен
// менять сохранённое состояние в обход WithOrderLock.
func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Attempts = make([]*domain.PaymentAttempt, 0, len(o.Attempts))
	for _, a := range o.Attempts {
		ac := *a
		c.Attempts = append(c.Attempts, &ac)
	}
	return &c
}
