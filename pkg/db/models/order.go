package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/keydrop/keydrop-backend/pkg/db/types"
	"github.com/keydrop/keydrop-backend/pkg/enums"
)

// Order is the audit record of a single checkout attempt. Product title and
// unit price are denormalized at purchase time so later catalog edits never
// alter historical orders.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Reference        string              `gorm:"column:reference;not null;uniqueIndex"`
	ProductID        uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	ProductTitle     string              `gorm:"column:product_title;not null"`
	UnitPriceCents   int64               `gorm:"column:unit_price_cents;not null"`
	Qty              int                 `gorm:"column:qty;not null"`
	FeeCents         int64               `gorm:"column:fee_cents;not null;default:0"`
	SurchargeCents   int64               `gorm:"column:surcharge_cents;not null;default:0"`
	NominalCents     int64               `gorm:"column:nominal_cents;not null;default:0"`
	PaymentMethod    enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	GatewayID        *string             `gorm:"column:gateway_id"`
	QRPayload        *string             `gorm:"column:qr_payload"`
	BuyerEmail       string              `gorm:"column:buyer_email;not null"`
	Status           enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	ReservedUnitIDs  types.UUIDList      `gorm:"column:reserved_unit_ids;type:jsonb;serializer:json"`
	DeliveredContent *string             `gorm:"column:delivered_content"`
	DeliveryFailedAt *time.Time          `gorm:"column:delivery_failed_at"`
	GatewayExpiresAt *time.Time          `gorm:"column:gateway_expires_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TotalCents is the buyer-facing total before the gateway fee.
func (o Order) TotalCents() int64 {
	return o.UnitPriceCents * int64(o.Qty)
}
