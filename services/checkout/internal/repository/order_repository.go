// Package repository содержит доступ к данным checkout-сервиса (GORM/MySQL).
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"example.com/checkout-core/pkg/kafka"
	"example.com/checkout-core/pkg/outbox"
	"example.com/checkout-core/services/checkout/internal/domain"
)

// AggregateOrder — тип агрегата в таблице outbox.
const AggregateOrder = "order"

// Changes — побочные записи, сохраняемые в одной транзакции с заказом.
type Changes struct {
	Events  []domain.Event
	Reviews []*domain.PaymentReview
}

// UpdateFunc изменяет заказ под блокировкой.
// nil Changes без ошибки означает, что сохранять нечего.
// Ошибка откатывает транзакцию.
type UpdateFunc func(order *domain.Order) (*Changes, error)

// OrderRepository определяет интерфейс для работы с заказами в БД.
type OrderRepository interface {
	// Create сохраняет новый заказ и события в одной транзакции.
	Create(ctx context.Context, order *domain.Order, events []domain.Event) error

	// GetByID возвращает заказ с попытками оплаты.
	GetByID(ctx context.Context, orderID string) (*domain.Order, error)

	// GetByGatewayOrderID возвращает заказ, которому принадлежит попытка с этим
	// идентификатором шлюза.
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error)

	// WithOrderLock читает заказ под SELECT ... FOR UPDATE, вызывает fn и
	// сохраняет результат с проверкой версии.
	WithOrderLock(ctx context.Context, orderID string, fn UpdateFunc) (*domain.Order, error)

	// ListStalePending возвращает ID заказов в payment_pending,
	// не менявшихся с момента olderThan.
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]string, error)
}

// orderRepository — GORM реализация OrderRepository.
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create создаёт заказ, его попытки и записи outbox в одной транзакции.
func (r *orderRepository) Create(ctx context.Context, order *domain.Order, events []domain.Event) error {
	model, err := orderModelFromDomain(order)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
			return err
		}
		for _, a := range order.Attempts {
			am := attemptModelFromDomain(a)
			if err := tx.Create(&am).Error; err != nil {
				return err
			}
		}
		return writeOutbox(ctx, tx, order.ID, events)
	})
}

// GetByID возвращает заказ по ID с попытками в порядке номеров.
func (r *orderRepository) GetByID(ctx context.Context, orderID string) (*domain.Order, error) {
	var model OrderModel

	if err := r.db.WithContext(ctx).
		Preload("Attempts", orderAttempts).
		Where("id = ?", orderID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	return model.toDomain()
}

// GetByGatewayOrderID находит попытку по gateway_order_id и загружает её заказ.
func (r *orderRepository) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error) {
	var attempt AttemptModel

	if err := r.db.WithContext(ctx).
		Select("order_id").
		Where("gateway_order_id = ?", gatewayOrderID).
		First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUnknownOrder
		}
		return nil, err
	}

	return r.GetByID(ctx, attempt.OrderID)
}

// WithOrderLock — read-validate-write заказа.
// Строка заказа блокируется на время транзакции, запись идёт с условием
// version = прочитанной версии. Новые попытки вставляются, изменённые обновляются.
func (r *orderRepository) WithOrderLock(ctx context.Context, orderID string, fn UpdateFunc) (*domain.Order, error) {
	var result *domain.Order

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model OrderModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", orderID).
			First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrOrderNotFound
			}
			return err
		}
		if err := tx.Where("order_id = ?", orderID).
			Order("attempt_number ASC").
			Find(&model.Attempts).Error; err != nil {
			return err
		}

		order, err := model.toDomain()
		if err != nil {
			return err
		}

		before := make(map[string]AttemptModel, len(model.Attempts))
		for _, a := range model.Attempts {
			before[a.ID] = a
		}

		changes, err := fn(order)
		if err != nil {
			return err
		}
		result = order
		if changes == nil {
			return nil
		}

		if err := saveOrder(tx, order, model.Version); err != nil {
			return err
		}
		if err := saveAttempts(tx, order.Attempts, before); err != nil {
			return err
		}
		for _, review := range changes.Reviews {
			if err := tx.Create(reviewModelFromDomain(review)).Error; err != nil {
				return fmt.Errorf("ошибка сохранения записи сверки: %w", err)
			}
		}
		return writeOutbox(ctx, tx, order.ID, changes.Events)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListStalePending возвращает заказы, которые дольше olderThan находятся
// в payment_pending, самые старые первыми.
func (r *orderRepository) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	var ids []string

	if err := r.db.WithContext(ctx).
		Model(&OrderModel{}).
		Where("status = ? AND status_changed_at < ?", string(domain.OrderStatusPaymentPending), olderThan).
		Order("status_changed_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// saveOrder обновляет изменяемые поля заказа при совпадении версии.
func saveOrder(tx *gorm.DB, order *domain.Order, readVersion int64) error {
	res := tx.Model(&OrderModel{}).
		Where("id = ? AND version = ?", order.ID, readVersion).
		Updates(map[string]any{
			"status":            string(order.Status),
			"failure_reason":    order.FailureReason,
			"version":           readVersion + 1,
			"updated_at":        order.UpdatedAt,
			"status_changed_at": order.StatusChangedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrConcurrentUpdate
	}
	order.Version = readVersion + 1
	return nil
}

func saveAttempts(tx *gorm.DB, attempts []*domain.PaymentAttempt, before map[string]AttemptModel) error {
	for _, a := range attempts {
		am := attemptModelFromDomain(a)

		prev, exists := before[a.ID]
		if !exists {
			if err := tx.Create(&am).Error; err != nil {
				if isDuplicateKeyError(err) {
					return fmt.Errorf("%w: попытка %d уже существует", domain.ErrConcurrentUpdate, a.AttemptNumber)
				}
				return err
			}
			continue
		}
		if !attemptChanged(prev, am) {
			continue
		}

		if err := tx.Model(&AttemptModel{}).
			Where("id = ?", a.ID).
			Updates(map[string]any{
				"outcome":            am.Outcome,
				"gateway_payment_id": am.GatewayPaymentID,
				"verified_via":       am.VerifiedVia,
				"failure_reason":     am.FailureReason,
				"updated_at":         am.UpdatedAt,
			}).Error; err != nil {
			return err
		}
	}
	return nil
}

// writeOutbox пишет события заказа в outbox внутри транзакции tx.
func writeOutbox(ctx context.Context, tx *gorm.DB, orderID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	repo := outbox.NewRepository(tx, AggregateOrder)
	for _, e := range events {
		record, err := outbox.NewRecord(ctx, AggregateOrder, orderID, string(e.Type), kafka.TopicOrderEvents, e)
		if err != nil {
			return err
		}
		if err := repo.Create(ctx, record); err != nil {
			return fmt.Errorf("ошибка записи события %s в outbox: %w", e.Type, err)
		}
	}
	return nil
}

func orderAttempts(db *gorm.DB) *gorm.DB {
	return db.Order("attempt_number ASC")
}

// isDuplicateKeyError проверяет, является ли ошибка дубликатом ключа.
// MySQL возвращает ошибку с кодом 1062 при попытке вставить дубликат.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := err.Error()
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(errMsg, "Duplicate entry") ||
		strings.Contains(errMsg, "1062")
}
