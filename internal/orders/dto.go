package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/keydrop/keydrop-backend/pkg/db/models"
	"github.com/keydrop/keydrop-backend/pkg/enums"
)

// CreateOrderInput carries a validated checkout request.
type CreateOrderInput struct {
	ProductID     uuid.UUID
	Qty           int
	BuyerEmail    string
	PaymentMethod enums.PaymentMethod
}

// OrderResponse is the buyer-facing view of an order. Delivered content is
// present only once the order settles.
type OrderResponse struct {
	ID               uuid.UUID           `json:"id"`
	Reference        string              `json:"reference"`
	ProductID        uuid.UUID           `json:"product_id"`
	ProductTitle     string              `json:"product_title"`
	UnitPriceCents   int64               `json:"unit_price_cents"`
	Qty              int                 `json:"qty"`
	TotalCents       int64               `json:"total_cents"`
	FeeCents         int64               `json:"fee_cents"`
	SurchargeCents   int64               `json:"surcharge_cents"`
	NominalCents     int64               `json:"nominal_cents"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
	Status           enums.OrderStatus   `json:"status"`
	QRPayload        *string             `json:"qr_payload,omitempty"`
	GatewayExpiresAt *time.Time          `json:"gateway_expires_at,omitempty"`
	DeliveredContent *string             `json:"delivered_content,omitempty"`
	DeliveryFailed   bool                `json:"delivery_failed,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

func toOrderResponse(order *models.Order) *OrderResponse {
	resp := &OrderResponse{
		ID:               order.ID,
		Reference:        order.Reference,
		ProductID:        order.ProductID,
		ProductTitle:     order.ProductTitle,
		UnitPriceCents:   order.UnitPriceCents,
		Qty:              order.Qty,
		TotalCents:       order.TotalCents(),
		FeeCents:         order.FeeCents,
		SurchargeCents:   order.SurchargeCents,
		NominalCents:     order.NominalCents,
		PaymentMethod:    order.PaymentMethod,
		Status:           order.Status,
		QRPayload:        order.QRPayload,
		GatewayExpiresAt: order.GatewayExpiresAt,
		DeliveryFailed:   order.DeliveryFailedAt != nil,
		CreatedAt:        order.CreatedAt,
	}
	if order.Status == enums.OrderStatusPaid {
		resp.DeliveredContent = order.DeliveredContent
	}
	return resp
}
