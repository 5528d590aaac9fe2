package reservation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/keydrop/keydrop-backend/internal/inventory"
	"github.com/keydrop/keydrop-backend/pkg/db/types"
	pkgerrors "github.com/keydrop/keydrop-backend/pkg/errors"
)

// Manager holds inventory units for one checkout at a time. A reservation
// either claims every requested unit or claims nothing.
type Manager struct {
	inventory inventory.Repository
}

// NewManager builds a reservation manager.
func NewManager(repo inventory.Repository) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("inventory repository is required")
	}
	return &Manager{inventory: repo}, nil
}

// Reserve claims qty free units of the product inside tx. The claim is a
// conditional update: if a concurrent checkout grabbed any selected unit
// first, the row count comes up short and the whole reservation fails with an
// out-of-stock error so the enclosing transaction rolls back.
func (m *Manager) Reserve(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) (types.UUIDList, error) {
	if qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}

	repo := m.inventory.WithTx(tx)

	ids, err := repo.ListFreeIDs(ctx, productID, qty)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing free units")
	}
	if len(ids) < qty {
		return nil, pkgerrors.New(pkgerrors.CodeOutOfStock,
			fmt.Sprintf("requested %d units, %d available", qty, len(ids)))
	}

	claimed, err := repo.Claim(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claiming units")
	}
	if claimed != int64(qty) {
		return nil, pkgerrors.New(pkgerrors.CodeOutOfStock,
			fmt.Sprintf("lost %d of %d units to a concurrent checkout", int64(qty)-claimed, qty))
	}

	return ids, nil
}

// Release returns the units to the free pool. Safe to call more than once for
// the same reservation.
func (m *Manager) Release(ctx context.Context, tx *gorm.DB, ids types.UUIDList) error {
	if len(ids) == 0 {
		return nil
	}
	if err := m.inventory.WithTx(tx).Release(ctx, ids); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "releasing units")
	}
	return nil
}
