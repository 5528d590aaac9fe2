package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a sellable digital good backed by enumerable inventory units.
type Product struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title          string    `gorm:"column:title;not null"`
	Description    string    `gorm:"column:description"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	SoldCount      int       `gorm:"column:sold_count;not null;default:0"`
	Active         bool      `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
