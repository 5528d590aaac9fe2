package models

import "time"

// PaymentConfig is a key/value row holding gateway credentials and fee
// parameters editable by the operator.
type PaymentConfig struct {
	Key       string    `gorm:"column:key;primaryKey"`
	Value     string    `gorm:"column:value;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
