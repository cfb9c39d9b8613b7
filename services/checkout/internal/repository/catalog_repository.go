package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"example.com/checkout-core/services/checkout/internal/domain"
)

var (
	// ErrShippingRulesNotFound — в store_settings нет правил доставки.
	ErrShippingRulesNotFound = errors.New("правила доставки не настроены")

	// ErrReviewNotFound — запись сверки не найдена или уже разобрана.
	ErrReviewNotFound = errors.New("запись сверки не найдена")
)

// =============================================================================
// Купоны
// =============================================================================

// CouponModel — GORM модель для таблицы coupons. Таблицу ведёт каталог.
type CouponModel struct {
	Code                string          `gorm:"column:code;type:varchar(32);primaryKey"`
	DiscountType        string          `gorm:"column:discount_type;type:varchar(20);not null"`
	DiscountValue       decimal.Decimal `gorm:"column:discount_value;type:decimal(10,2);not null"`
	MaxDiscountAmount   *int64          `gorm:"column:max_discount_amount"`
	ExcludedProductIDs  []byte          `gorm:"column:excluded_product_ids;type:json"`
	ExcludedCategoryIDs []byte          `gorm:"column:excluded_category_ids;type:json"`
	MinLineAmount       int64           `gorm:"column:min_line_amount;not null;default:0"`
	Active              bool            `gorm:"column:active;not null"`
	StartsAt            *time.Time      `gorm:"column:starts_at"`
	ExpiresAt           *time.Time      `gorm:"column:expires_at"`
	UpdatedAt           time.Time       `gorm:"column:updated_at"`
}

// TableName возвращает имя таблицы в БД.
func (CouponModel) TableName() string {
	return "coupons"
}

func (m *CouponModel) toDomain() (*domain.Coupon, error) {
	c := &domain.Coupon{
		Code:              m.Code,
		DiscountType:      domain.DiscountType(m.DiscountType),
		DiscountValue:     m.DiscountValue,
		MaxDiscountAmount: m.MaxDiscountAmount,
		Active:            m.Active,
		StartsAt:          m.StartsAt,
		ExpiresAt:         m.ExpiresAt,
		Rules:             domain.EligibilityRules{MinLineAmount: m.MinLineAmount},
	}
	if len(m.ExcludedProductIDs) > 0 {
		if err := json.Unmarshal(m.ExcludedProductIDs, &c.Rules.ExcludedProductIDs); err != nil {
			return nil, fmt.Errorf("купон %s: excluded_product_ids: %w", m.Code, err)
		}
	}
	if len(m.ExcludedCategoryIDs) > 0 {
		if err := json.Unmarshal(m.ExcludedCategoryIDs, &c.Rules.ExcludedCategoryIDs); err != nil {
			return nil, fmt.Errorf("купон %s: excluded_category_ids: %w", m.Code, err)
		}
	}
	return c, nil
}

// CouponRepository — чтение купонов.
type CouponRepository struct {
	db *gorm.DB
}

// NewCouponRepository создаёт репозиторий купонов.
func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// GetCouponByCode возвращает купон или domain.ErrCouponNotFound.
// Активность и сроки здесь не проверяются.
func (r *CouponRepository) GetCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var model CouponModel

	if err := r.db.WithContext(ctx).
		Where("code = ?", domain.NormalizeCouponCode(code)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrCouponNotFound
		}
		return nil, err
	}
	return model.toDomain()
}

// =============================================================================
// Настройки магазина
// =============================================================================

// StoreSettingsModel — GORM модель для таблицы store_settings.
// Действуют последние сохранённые настройки.
type StoreSettingsModel struct {
	ID                    uint      `gorm:"column:id;primaryKey;autoIncrement"`
	FreeShippingThreshold int64     `gorm:"column:free_shipping_threshold;not null"`
	FlatShippingFee       int64     `gorm:"column:flat_shipping_fee;not null"`
	UpdatedAt             time.Time `gorm:"column:updated_at"`
}

// TableName возвращает имя таблицы в БД.
func (StoreSettingsModel) TableName() string {
	return "store_settings"
}

// SettingsRepository — чтение настроек магазина.
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository создаёт репозиторий настроек.
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetShippingRules возвращает действующие правила доставки.
func (r *SettingsRepository) GetShippingRules(ctx context.Context) (*domain.ShippingRules, error) {
	var model StoreSettingsModel

	if err := r.db.WithContext(ctx).
		Order("id DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrShippingRulesNotFound
		}
		return nil, err
	}

	rules := &domain.ShippingRules{
		FreeThreshold: model.FreeShippingThreshold,
		FlatFee:       model.FlatShippingFee,
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

// =============================================================================
// Корзина
// =============================================================================

// cartRow — строка корзины вместе с данными товара.
type cartRow struct {
	LineItemID      string
	ProductID       string
	CategoryID      string
	Name            string
	UnitPrice       int64
	DiscountPercent decimal.Decimal
	Quantity        int
}

// CartRepository читает корзину пользователя из таблиц витрины
// (cart_items и products).
type CartRepository struct {
	db       *gorm.DB
	currency string
	now      func() time.Time
}

// NewCartRepository создаёт репозиторий корзин.
func NewCartRepository(db *gorm.DB, currency string) *CartRepository {
	return &CartRepository{db: db, currency: currency, now: time.Now}
}

// GetCart возвращает снимок корзины. Пустая корзина не ошибка:
// решение принимает расчёт стоимости.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.CartSnapshot, error) {
	var rows []cartRow

	if err := r.db.WithContext(ctx).
		Table("cart_items AS ci").
		Select("ci.id AS line_item_id, ci.product_id, p.category_id, p.name, p.price AS unit_price, p.discount_percent, ci.quantity").
		Joins("JOIN products p ON p.id = ci.product_id").
		Where("ci.user_id = ?", userID).
		Order("ci.created_at ASC").
		Scan(&rows).Error; err != nil {
		return domain.CartSnapshot{}, fmt.Errorf("ошибка чтения корзины: %w", err)
	}

	items := make([]domain.LineItem, len(rows))
	for i, row := range rows {
		items[i] = domain.LineItem{
			LineItemID:      row.LineItemID,
			ProductID:       row.ProductID,
			CategoryID:      row.CategoryID,
			Name:            row.Name,
			UnitPrice:       row.UnitPrice,
			DiscountPercent: row.DiscountPercent,
			Quantity:        row.Quantity,
		}
	}

	return domain.CartSnapshot{
		Items:      items,
		Currency:   r.currency,
		CapturedAt: r.now().UTC(),
	}, nil
}

// =============================================================================
// Ручная сверка
// =============================================================================

// ReviewRepository — очередь ручной сверки платежей.
type ReviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository создаёт репозиторий записей сверки.
func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// ListOpen возвращает неразобранные записи, старые первыми.
func (r *ReviewRepository) ListOpen(ctx context.Context, limit int) ([]*domain.PaymentReview, error) {
	var models []ReviewModel

	if err := r.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}

	reviews := make([]*domain.PaymentReview, len(models))
	for i := range models {
		reviews[i] = models[i].toDomain()
	}
	return reviews, nil
}

// Resolve помечает запись разобранной.
func (r *ReviewRepository) Resolve(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&ReviewModel{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", at.UTC())
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrReviewNotFound
	}
	return nil
}
