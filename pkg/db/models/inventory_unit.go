package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryUnit is a single sellable item (license key, credential, voucher).
// A unit is either free or claimed by exactly one pending/paid order.
type InventoryUnit struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	Content   string    `gorm:"column:content;not null"`
	Claimed   bool      `gorm:"column:claimed;not null;default:false"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
