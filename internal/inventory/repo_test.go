package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/keydrop/keydrop-backend/pkg/db/models"
	"github.com/keydrop/keydrop-backend/pkg/db/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inventory_" + uuid.NewString() + "?mode=memory&cache=shared"
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

func TestClaimAllFree(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	productID := uuid.New()
	seedUnits(t, db, productID, 5)

	ids, err := repo.ListFreeIDs(ctx, productID, 3)
	require.NoError(t, err)
	require.Len(t, ids, 3)

	claimed, err := repo.Claim(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(3), claimed)

	free, err := repo.CountFree(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), free)
}

func TestClaimShortCircuitsOnContention(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	productID := uuid.New()
	ids := seedUnits(t, db, productID, 2)

	// another checkout already took the first unit
	claimed, err := repo.Claim(ctx, types.UUIDList{ids[0]})
	require.NoError(t, err)
	require.Equal(t, int64(1), claimed)

	claimed, err = repo.Claim(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(1), claimed, "only the still-free unit should flip")
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	productID := uuid.New()
	ids := seedUnits(t, db, productID, 2)

	_, err := repo.Claim(ctx, ids)
	require.NoError(t, err)

	require.NoError(t, repo.Release(ctx, ids))
	require.NoError(t, repo.Release(ctx, ids))

	free, err := repo.CountFree(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), free)
}

func TestContentsPreservesUnits(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	productID := uuid.New()
	ids := seedUnits(t, db, productID, 3)

	units, err := repo.Contents(ctx, ids[:2])
	require.NoError(t, err)
	require.Len(t, units, 2)
	for _, unit := range units {
		assert.True(t, ids.Contains(unit.ID))
		assert.NotEmpty(t, unit.Content)
	}
}

func TestBulkInsert(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	productID := uuid.New()

	inserted, err := repo.BulkInsert(ctx, productID, []string{"A-1", "A-2", "A-3"})
	require.NoError(t, err)
	assert.Equal(t, 3, inserted)

	free, err := repo.CountFree(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), free)

	inserted, err = repo.BulkInsert(ctx, productID, nil)
	require.NoError(t, err)
	assert.Zero(t, inserted)
}

func TestDeleteFreeSkipsClaimedUnits(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	productID := uuid.New()
	ids := seedUnits(t, db, productID, 4)

	_, err := repo.Claim(ctx, types.UUIDList{ids[0]})
	require.NoError(t, err)

	deleted, err := repo.DeleteFree(ctx, productID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	var remaining int64
	require.NoError(t, db.Model(&models.InventoryUnit{}).Where("product_id = ?", productID).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining, "claimed unit survives the purge")
}

func TestDeleteFreeByID(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	productID := uuid.New()
	ids := seedUnits(t, db, productID, 2)

	_, err := repo.Claim(ctx, types.UUIDList{ids[0]})
	require.NoError(t, err)

	deleted, err := repo.DeleteFreeByID(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, deleted, "claimed unit must not be deletable")

	deleted, err = repo.DeleteFreeByID(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = repo.DeleteFreeByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteFreeHonorsLimit(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	productID := uuid.New()
	seedUnits(t, db, productID, 5)

	deleted, err := repo.DeleteFree(ctx, productID, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	free, err := repo.CountFree(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), free)
}
