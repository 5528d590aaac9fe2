package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/keydrop/keydrop-backend/pkg/db/models"
	pkgerrors "github.com/keydrop/keydrop-backend/pkg/errors"
)

// deliver writes the reserved unit contents onto the order exactly once.
// The write is guarded on delivered_content IS NULL, so concurrent refreshes
// of the same paid order produce one delivery; the losers see a no-op.
//
// If any reserved unit has gone missing the order is flagged instead of
// shipping a partial bundle. The payment stands; the operator resolves the
// shortfall by hand.
func (s *Service) deliver(ctx context.Context, order *models.Order) error {
	if len(order.ReservedUnitIDs) == 0 {
		_ = s.repo.MarkDeliveryFailed(ctx, order.ID)
		return pkgerrors.New(pkgerrors.CodeInternal, "paid order holds no reserved units")
	}

	units, err := s.inventory.Contents(ctx, order.ReservedUnitIDs)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading reserved units")
	}
	if len(units) != len(order.ReservedUnitIDs) {
		_ = s.repo.MarkDeliveryFailed(ctx, order.ID)
		s.logger.Error(ctx, "delivery shortfall",
			fmt.Errorf("expected %d units, found %d", len(order.ReservedUnitIDs), len(units)))
		return pkgerrors.New(pkgerrors.CodeInternal,
			fmt.Sprintf("delivery missing %d of %d units", len(order.ReservedUnitIDs)-len(units), len(order.ReservedUnitIDs)))
	}

	contents := make([]string, 0, len(units))
	for _, unit := range units {
		contents = append(contents, unit.Content)
	}

	won, err := s.repo.MarkDelivered(ctx, order.ID, strings.Join(contents, "\n"))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "writing delivered content")
	}
	if won {
		s.logger.Info(ctx, "order delivered")
	}
	return nil
}
