package reservation

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/keydrop/keydrop-backend/internal/inventory"
	"github.com/keydrop/keydrop-backend/pkg/db/models"
	"github.com/keydrop/keydrop-backend/pkg/db/types"
	pkgerrors "github.com/keydrop/keydrop-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:reservation_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.InventoryUnit{}))
	return db
}

func seedUnits(t *testing.T, db *gorm.DB, productID uuid.UUID, n int) types.UUIDList {
	t.Helper()
	ids := make(types.UUIDList, 0, n)
	for i := 0; i < n; i++ {
		unit := models.InventoryUnit{ID: uuid.New(), ProductID: productID, Content: "KEY-" + uuid.NewString()}
		require.NoError(t, db.Create(&unit).Error)
		ids = append(ids, unit.ID)
	}
	return ids
}

func TestReserveClaimsExactQty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	mgr, err := NewManager(inventory.NewRepository(db))
	require.NoError(t, err)
	ctx := context.Background()
	productID := uuid.New()
	seedUnits(t, db, productID, 5)

	var reserved types.UUIDList
	err = db.Transaction(func(tx *gorm.DB) error {
		var terr error
		reserved, terr = mgr.Reserve(ctx, tx, productID, 3)
		return terr
	})
	require.NoError(t, err)
	require.Len(t, reserved, 3)

	var claimed int64
	require.NoError(t, db.Model(&models.InventoryUnit{}).
		Where("product_id = ? AND claimed = ?", productID, true).
		Count(&claimed).Error)
	assert.Equal(t, int64(3), claimed)
}

func TestReserveInsufficientStockClaimsNothing(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	mgr, err := NewManager(inventory.NewRepository(db))
	require.NoError(t, err)
	ctx := context.Background()
	productID := uuid.New()
	seedUnits(t, db, productID, 2)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, terr := mgr.Reserve(ctx, tx, productID, 3)
		return terr
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeOutOfStock))

	var claimed int64
	require.NoError(t, db.Model(&models.InventoryUnit{}).
		Where("product_id = ? AND claimed = ?", productID, true).
		Count(&claimed).Error)
	assert.Zero(t, claimed, "failed reservation must not hold any unit")
}

func TestReserveLosesRaceToConcurrentClaim(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := inventory.NewRepository(db)
	mgr, err := NewManager(repo)
	require.NoError(t, err)
	ctx := context.Background()
	productID := uuid.New()
	ids := seedUnits(t, db, productID, 2)

	// simulate a rival checkout landing between the select and the claim:
	// grab one of the units the manager is about to pick
	_, err = repo.Claim(ctx, types.UUIDList{ids[0]})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		_, terr := mgr.Reserve(ctx, tx, productID, 2)
		return terr
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeOutOfStock))
}

func TestReserveRejectsNonPositiveQty(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	mgr, err := NewManager(inventory.NewRepository(db))
	require.NoError(t, err)

	_, err = mgr.Reserve(context.Background(), db, uuid.New(), 0)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	mgr, err := NewManager(inventory.NewRepository(db))
	require.NoError(t, err)
	ctx := context.Background()
	productID := uuid.New()
	seedUnits(t, db, productID, 2)

	var reserved types.UUIDList
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var terr error
		reserved, terr = mgr.Reserve(ctx, tx, productID, 2)
		return terr
	}))

	require.NoError(t, mgr.Release(ctx, db, reserved))
	require.NoError(t, mgr.Release(ctx, db, reserved))

	var claimed int64
	require.NoError(t, db.Model(&models.InventoryUnit{}).
		Where("product_id = ? AND claimed = ?", productID, true).
		Count(&claimed).Error)
	assert.Zero(t, claimed)
}
