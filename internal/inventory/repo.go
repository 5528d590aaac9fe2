package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/keydrop/keydrop-backend/pkg/db/models"
	"github.com/keydrop/keydrop-backend/pkg/db/types"
)

// Repository handles inventory unit persistence. Claim and Release are the
// only writes the checkout path performs; both are single conditional
// statements so two competing checkouts can never hold the same unit.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListFreeIDs(ctx context.Context, productID uuid.UUID, limit int) (types.UUIDList, error)
	Claim(ctx context.Context, ids types.UUIDList) (int64, error)
	Release(ctx context.Context, ids types.UUIDList) error
	Contents(ctx context.Context, ids types.UUIDList) ([]models.InventoryUnit, error)
	CountFree(ctx context.Context, productID uuid.UUID) (int64, error)
	BulkInsert(ctx context.Context, productID uuid.UUID, contents []string) (int, error)
	DeleteFree(ctx context.Context, productID uuid.UUID, limit int) (int64, error)
	DeleteFreeByID(ctx context.Context, id uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListFreeIDs(ctx context.Context, productID uuid.UUID, limit int) (types.UUIDList, error) {
	if limit <= 0 {
		return nil, nil
	}
	var ids types.UUIDList
	if err := r.db.WithContext(ctx).
		Model(&models.InventoryUnit{}).
		Where("product_id = ? AND claimed = ?", productID, false).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// Claim flips the listed units to claimed, guarded on claimed = false so a
// concurrent claim of any unit surfaces as a row count short of len(ids).
// The caller decides whether a partial claim is a rollback.
func (r *repository) Claim(ctx context.Context, ids types.UUIDList) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Model(&models.InventoryUnit{}).
		Where("id IN ? AND claimed = ?", []uuid.UUID(ids), false).
		Update("claimed", true)
	return result.RowsAffected, result.Error
}

// Release returns units to the free pool. Idempotent: releasing an already
// free unit is a no-op.
func (r *repository) Release(ctx context.Context, ids types.UUIDList) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.InventoryUnit{}).
		Where("id IN ?", []uuid.UUID(ids)).
		Update("claimed", false).Error
}

func (r *repository) Contents(ctx context.Context, ids types.UUIDList) ([]models.InventoryUnit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var units []models.InventoryUnit
	if err := r.db.WithContext(ctx).
		Where("id IN ?", []uuid.UUID(ids)).
		Order("created_at ASC, id ASC").
		Find(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

func (r *repository) CountFree(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.InventoryUnit{}).
		Where("product_id = ? AND claimed = ?", productID, false).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) BulkInsert(ctx context.Context, productID uuid.UUID, contents []string) (int, error) {
	if len(contents) == 0 {
		return 0, nil
	}
	units := make([]models.InventoryUnit, 0, len(contents))
	for _, content := range contents {
		units = append(units, models.InventoryUnit{
			ID:        uuid.New(),
			ProductID: productID,
			Content:   content,
		})
	}
	if err := r.db.WithContext(ctx).CreateInBatches(units, 500).Error; err != nil {
		return 0, err
	}
	return len(units), nil
}

// DeleteFree removes unclaimed units only; units held by an order are never
// deleted out from under it. limit <= 0 deletes all free units.
func (r *repository) DeleteFree(ctx context.Context, productID uuid.UUID, limit int) (int64, error) {
	query := r.db.WithContext(ctx).
		Where("product_id = ? AND claimed = ?", productID, false)
	if limit > 0 {
		var ids types.UUIDList
		if err := r.db.WithContext(ctx).
			Model(&models.InventoryUnit{}).
			Where("product_id = ? AND claimed = ?", productID, false).
			Order("created_at ASC, id ASC").
			Limit(limit).
			Pluck("id", &ids).Error; err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, nil
		}
		query = r.db.WithContext(ctx).Where("id IN ? AND claimed = ?", []uuid.UUID(ids), false)
	}
	result := query.Delete(&models.InventoryUnit{})
	return result.RowsAffected, result.Error
}

// DeleteFreeByID removes one unclaimed unit. Returns false when the unit is
// missing or currently held by an order.
func (r *repository) DeleteFreeByID(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND claimed = ?", id, false).
		Delete(&models.InventoryUnit{})
	return result.RowsAffected == 1, result.Error
}
