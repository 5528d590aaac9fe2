package payconfig

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/keydrop/keydrop-backend/pkg/db/models"
)

// Well-known keys the checkout path reads. Values are stored as strings and
// parsed at the point of use.
const (
	KeyFlatFeeCents = "flat_fee_cents"
	KeyRatePercent  = "rate_percent"
)

// Repository handles the operator-editable payment configuration store.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, key string) (*models.PaymentConfig, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) ([]models.PaymentConfig, error)
	Delete(ctx context.Context, key string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payment-config repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, key string) (*models.PaymentConfig, error) {
	var row models.PaymentConfig
	if err := r.db.WithContext(ctx).
		Where("key = ?", key).
		First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) Set(ctx context.Context, key, value string) error {
	row := models.PaymentConfig{Key: key, Value: value}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&row).Error
}

func (r *repository) All(ctx context.Context) ([]models.PaymentConfig, error) {
	var rows []models.PaymentConfig
	if err := r.db.WithContext(ctx).
		Order("key ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&models.PaymentConfig{}).Error
}
