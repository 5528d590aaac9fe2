package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/keydrop/keydrop-backend/pkg/db/models"
	"github.com/keydrop/keydrop-backend/pkg/db/types"
	"github.com/keydrop/keydrop-backend/pkg/enums"
)

func newRepoTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_repo_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}))
	return db
}

func seedOrder(t *testing.T, repo Repository, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:              uuid.New(),
		Reference:       "KD-TEST" + uuid.NewString()[:6],
		ProductID:       uuid.New(),
		ProductTitle:    "Game Key",
		UnitPriceCents:  2500,
		Qty:             1,
		NominalCents:    2500,
		PaymentMethod:   enums.PaymentMethodGatewayAuto,
		BuyerEmail:      "buyer@example.com",
		Status:          status,
		ReservedUnitIDs: types.UUIDList{uuid.New()},
	}
	require.NoError(t, repo.Create(context.Background(), order))
	return order
}

func TestTransitionFromPendingIsWriteOnce(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newRepoTestDB(t))
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusPending)

	won, err := repo.TransitionFromPending(ctx, order.ID, enums.OrderStatusPaid)
	require.NoError(t, err)
	assert.True(t, won)

	// a racing cancel arrives after the settle landed
	won, err = repo.TransitionFromPending(ctx, order.ID, enums.OrderStatusCancelled)
	require.NoError(t, err)
	assert.False(t, won)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
}

func TestMarkDeliveredExactlyOnce(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newRepoTestDB(t))
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusPaid)

	won, err := repo.MarkDelivered(ctx, order.ID, "KEY-AAA\nKEY-BBB")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.MarkDelivered(ctx, order.ID, "KEY-OVERWRITE")
	require.NoError(t, err)
	assert.False(t, won)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.DeliveredContent)
	assert.Equal(t, "KEY-AAA\nKEY-BBB", *reloaded.DeliveredContent)
}

func TestSetGatewayDetailsRequiresPending(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newRepoTestDB(t))
	ctx := context.Background()
	expiresAt := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)

	pending := seedOrder(t, repo, enums.OrderStatusPending)
	landed, err := repo.SetGatewayDetails(ctx, pending.ID, "dep-123", "QR-PAYLOAD", expiresAt)
	require.NoError(t, err)
	assert.True(t, landed)

	reloaded, err := repo.FindByID(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.GatewayID)
	assert.Equal(t, "dep-123", *reloaded.GatewayID)
	require.NotNil(t, reloaded.QRPayload)
	assert.Equal(t, "QR-PAYLOAD", *reloaded.QRPayload)

	cancelled := seedOrder(t, repo, enums.OrderStatusCancelled)
	landed, err = repo.SetGatewayDetails(ctx, cancelled.ID, "dep-456", "QR", expiresAt)
	require.NoError(t, err)
	assert.False(t, landed, "terminal order must not accept gateway details")
}

func TestMarkDeliveryFailedSetsTimestampOnce(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newRepoTestDB(t))
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusPaid)

	require.NoError(t, repo.MarkDeliveryFailed(ctx, order.ID))
	first, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, first.DeliveryFailedAt)

	require.NoError(t, repo.MarkDeliveryFailed(ctx, order.ID))
	second, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, first.DeliveryFailedAt.Unix(), second.DeliveryFailedAt.Unix())
}

func TestFindByReference(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newRepoTestDB(t))
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusPending)

	found, err := repo.FindByReference(ctx, order.Reference)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, order.ID, found.ID)

	missing, err := repo.FindByReference(ctx, "KD-NOPE")
	require.NoError(t, err)
	assert.Nil(t, missing)

	blank, err := repo.FindByReference(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, blank)
}

func TestListRecentFiltersByStatus(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newRepoTestDB(t))
	ctx := context.Background()
	seedOrder(t, repo, enums.OrderStatusPending)
	seedOrder(t, repo, enums.OrderStatusPaid)
	seedOrder(t, repo, enums.OrderStatusPaid)

	paid := enums.OrderStatusPaid
	rows, err := repo.ListRecent(ctx, &paid, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	all, err := repo.ListRecent(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
