package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"example.com/checkout-core/services/checkout/internal/domain"
)

// OrderModel — GORM модель для таблицы orders.
// Снимок корзины и результат расчёта хранятся в JSON-колонках.
type OrderModel struct {
	ID            string         `gorm:"column:id;type:varchar(36);primaryKey"`
	UserID        string         `gorm:"column:user_id;type:varchar(36);not null;index"`
	Status        string         `gorm:"column:status;type:varchar(20);not null;index:idx_orders_status_changed"`
	GrandTotal    int64          `gorm:"column:grand_total;not null"`
	Currency      string         `gorm:"column:currency;type:varchar(3);not null"`
	PaymentMethod string         `gorm:"column:payment_method;type:varchar(32);not null"`
	Cart          []byte         `gorm:"column:cart;type:json;not null"`
	Pricing       []byte         `gorm:"column:pricing;type:json;not null"`
	Version       int64          `gorm:"column:version;not null;default:0"`
	FailureReason *string        `gorm:"column:failure_reason;type:text"`
	CreatedAt     time.Time      `gorm:"column:created_at"`
	UpdatedAt     time.Time      `gorm:"column:updated_at"`
	Attempts      []AttemptModel `gorm:"foreignKey:OrderID;references:ID"`

	StatusChangedAt time.Time `gorm:"column:status_changed_at;index:idx_orders_status_changed"`
}

// TableName возвращает имя таблицы в БД.
func (OrderModel) TableName() string {
	return "orders"
}

// AttemptModel — GORM модель для таблицы payment_attempts.
type AttemptModel struct {
	ID               string    `gorm:"column:id;type:varchar(36);primaryKey"`
	OrderID          string    `gorm:"column:order_id;type:varchar(36);not null;uniqueIndex:uq_attempt_number"`
	AttemptNumber    int       `gorm:"column:attempt_number;not null;uniqueIndex:uq_attempt_number"`
	GatewayOrderID   string    `gorm:"column:gateway_order_id;type:varchar(64);not null;uniqueIndex"`
	GatewayPaymentID *string   `gorm:"column:gateway_payment_id;type:varchar(64)"`
	IdempotencyKey   string    `gorm:"column:idempotency_key;type:varchar(36);not null;uniqueIndex"`
	Amount           int64     `gorm:"column:amount;not null"`
	Currency         string    `gorm:"column:currency;type:varchar(3);not null"`
	Outcome          string    `gorm:"column:outcome;type:varchar(20);not null"`
	VerifiedVia      *string   `gorm:"column:verified_via;type:varchar(20)"`
	FailureReason    *string   `gorm:"column:failure_reason;type:text"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	UpdatedAt        time.Time `gorm:"column:updated_at"`
}

// TableName возвращает имя таблицы в БД.
func (AttemptModel) TableName() string {
	return "payment_attempts"
}

// ReviewModel — GORM модель для таблицы payment_reviews.
type ReviewModel struct {
	ID               string     `gorm:"column:id;type:varchar(36);primaryKey"`
	OrderID          string     `gorm:"column:order_id;type:varchar(36);not null;index"`
	AttemptID        string     `gorm:"column:attempt_id;type:varchar(36);not null"`
	GatewayOrderID   string     `gorm:"column:gateway_order_id;type:varchar(64);not null"`
	GatewayPaymentID string     `gorm:"column:gateway_payment_id;type:varchar(64)"`
	Reason           string     `gorm:"column:reason;type:varchar(40);not null"`
	Channel          string     `gorm:"column:channel;type:varchar(20);not null"`
	ExpectedAmount   int64      `gorm:"column:expected_amount;not null"`
	ReportedAmount   *int64     `gorm:"column:reported_amount"`
	ResolvedAt       *time.Time `gorm:"column:resolved_at;index"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
}

// TableName возвращает имя таблицы в БД.
func (ReviewModel) TableName() string {
	return "payment_reviews"
}

// toDomain конвертирует GORM модель заказа в доменную сущность.
func (m *OrderModel) toDomain() (*domain.Order, error) {
	order := &domain.Order{
		ID:            m.ID,
		UserID:        m.UserID,
		PaymentMethod: m.PaymentMethod,
		Currency:      m.Currency,
		Status:        domain.OrderStatus(m.Status),
		Version:       m.Version,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
		Attempts:      make([]*domain.PaymentAttempt, len(m.Attempts)),

		StatusChangedAt: m.StatusChangedAt,
	}

	if err := json.Unmarshal(m.Cart, &order.Cart); err != nil {
		return nil, fmt.Errorf("заказ %s: ошибка чтения корзины: %w", m.ID, err)
	}
	if err := json.Unmarshal(m.Pricing, &order.Pricing); err != nil {
		return nil, fmt.Errorf("заказ %s: ошибка чтения расчёта: %w", m.ID, err)
	}

	for i := range m.Attempts {
		order.Attempts[i] = m.Attempts[i].toDomain()
	}
	return order, nil
}

// orderModelFromDomain конвертирует заказ в GORM модель (без попыток).
func orderModelFromDomain(o *domain.Order) (*OrderModel, error) {
	cart, err := json.Marshal(o.Cart)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации корзины: %w", err)
	}
	pricing, err := json.Marshal(o.Pricing)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации расчёта: %w", err)
	}

	return &OrderModel{
		ID:            o.ID,
		UserID:        o.UserID,
		Status:        string(o.Status),
		GrandTotal:    o.GrandTotal(),
		Currency:      o.Currency,
		PaymentMethod: o.PaymentMethod,
		Cart:          cart,
		Pricing:       pricing,
		Version:       o.Version,
		FailureReason: o.FailureReason,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,

		StatusChangedAt: o.StatusChangedAt,
	}, nil
}

func (m *AttemptModel) toDomain() *domain.PaymentAttempt {
	a := &domain.PaymentAttempt{
		ID:               m.ID,
		OrderID:          m.OrderID,
		AttemptNumber:    m.AttemptNumber,
		GatewayOrderID:   m.GatewayOrderID,
		GatewayPaymentID: m.GatewayPaymentID,
		IdempotencyKey:   m.IdempotencyKey,
		Amount:           m.Amount,
		Currency:         m.Currency,
		Outcome:          domain.AttemptOutcome(m.Outcome),
		FailureReason:    m.FailureReason,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
	if m.VerifiedVia != nil {
		via := domain.VerificationChannel(*m.VerifiedVia)
		a.VerifiedVia = &via
	}
	return a
}

func attemptModelFromDomain(a *domain.PaymentAttempt) AttemptModel {
	m := AttemptModel{
		ID:               a.ID,
		OrderID:          a.OrderID,
		AttemptNumber:    a.AttemptNumber,
		GatewayOrderID:   a.GatewayOrderID,
		GatewayPaymentID: a.GatewayPaymentID,
		IdempotencyKey:   a.IdempotencyKey,
		Amount:           a.Amount,
		Currency:         a.Currency,
		Outcome:          string(a.Outcome),
		FailureReason:    a.FailureReason,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	if a.VerifiedVia != nil {
		via := string(*a.VerifiedVia)
		m.VerifiedVia = &via
	}
	return m
}

// attemptChanged сравнивает изменяемые поля попытки.
func attemptChanged(before, after AttemptModel) bool {
	return before.Outcome != after.Outcome ||
		!equalPtr(before.GatewayPaymentID, after.GatewayPaymentID) ||
		!equalPtr(before.VerifiedVia, after.VerifiedVia) ||
		!equalPtr(before.FailureReason, after.FailureReason)
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func reviewModelFromDomain(r *domain.PaymentReview) *ReviewModel {
	return &ReviewModel{
		ID:               r.ID,
		OrderID:          r.OrderID,
		AttemptID:        r.AttemptID,
		GatewayOrderID:   r.GatewayOrderID,
		GatewayPaymentID: r.GatewayPaymentID,
		Reason:           string(r.Reason),
		Channel:          string(r.Channel),
		ExpectedAmount:   r.ExpectedAmount,
		ReportedAmount:   r.ReportedAmount,
		CreatedAt:        r.CreatedAt,
	}
}

func (m *ReviewModel) toDomain() *domain.PaymentReview {
	return &domain.PaymentReview{
		ID:               m.ID,
		OrderID:          m.OrderID,
		AttemptID:        m.AttemptID,
		GatewayOrderID:   m.GatewayOrderID,
		GatewayPaymentID: m.GatewayPaymentID,
		Reason:           domain.ReviewReason(m.Reason),
		Channel:          domain.VerificationChannel(m.Channel),
		ExpectedAmount:   m.ExpectedAmount,
		ReportedAmount:   m.ReportedAmount,
		CreatedAt:        m.CreatedAt,
	}
}
