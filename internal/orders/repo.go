package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/keydrop/keydrop-backend/pkg/db/models"
	"github.com/keydrop/keydrop-backend/pkg/enums"
)

// Repository handles order persistence. Status transitions and delivery are
// conditional single-statement updates; the returned bool reports whether
// this caller won the transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
	ListRecent(ctx context.Context, status *enums.OrderStatus, limit int) ([]models.Order, error)
	TransitionFromPending(ctx context.Context, id uuid.UUID, to enums.OrderStatus) (bool, error)
	SetGatewayDetails(ctx context.Context, id uuid.UUID, gatewayID, qrPayload string, expiresAt time.Time) (bool, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, content string) (bool, error)
	MarkDeliveryFailed(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Order, error) {
	if reference == "" {
		return nil, nil
	}
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListRecent(ctx context.Context, status *enums.OrderStatus, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var list []models.Order
	if err := query.Order("created_at DESC").Limit(limit).Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// TransitionFromPending moves a pending order to a terminal status. Guarded
// on status = 'pending' so terminal states are write-once: the second of two
// racing transitions affects zero rows.
func (r *repository) TransitionFromPending(ctx context.Context, id uuid.UUID, to enums.OrderStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Update("status", to)
	return result.RowsAffected == 1, result.Error
}

// SetGatewayDetails records the remote deposit handle on a still-pending
// order.
func (r *repository) SetGatewayDetails(ctx context.Context, id uuid.UUID, gatewayID, qrPayload string, expiresAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusPending).
		Updates(map[string]any{
			"gateway_id":         gatewayID,
			"qr_payload":         qrPayload,
			"gateway_expires_at": expiresAt,
		})
	return result.RowsAffected == 1, result.Error
}

// MarkDelivered writes the content exactly once. A second delivery attempt
// affects zero rows and is reported as not-won, never as a second write.
func (r *repository) MarkDelivered(ctx context.Context, id uuid.UUID, content string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND delivered_content IS NULL", id).
		Update("delivered_content", content)
	return result.RowsAffected == 1, result.Error
}

func (r *repository) MarkDeliveryFailed(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND delivery_failed_at IS NULL", id).
		Update("delivery_failed_at", now).Error
}
