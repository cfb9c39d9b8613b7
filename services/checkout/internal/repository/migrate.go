package repository

import (
	"gorm.io/gorm"

	"example.com/checkout-core/pkg/outbox"
)

// AutoMigrate создаёт таблицы, которыми владеет checkout-сервис.
// coupons, store_settings, cart_items и products принадлежат другим сервисам.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&OrderModel{},
		&AttemptModel{},
		&ReviewModel{},
		&outbox.Model{},
	)
}
