package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/keydrop/keydrop-backend/internal/inventory"
	"github.com/keydrop/keydrop-backend/internal/payconfig"
	"github.com/keydrop/keydrop-backend/internal/pricing"
	"github.com/keydrop/keydrop-backend/internal/products"
	"github.com/keydrop/keydrop-backend/internal/reservation"
	"github.com/keydrop/keydrop-backend/pkg/db"
	"github.com/keydrop/keydrop-backend/pkg/db/models"
	"github.com/keydrop/keydrop-backend/pkg/enums"
	pkgerrors "github.com/keydrop/keydrop-backend/pkg/errors"
	"github.com/keydrop/keydrop-backend/pkg/gateway"
	"github.com/keydrop/keydrop-backend/pkg/logger"
	"github.com/keydrop/keydrop-backend/pkg/metrics"
)

// DepositGateway is the payment gateway surface the order lifecycle needs.
type DepositGateway interface {
	CreateDeposit(ctx context.Context, nominalCents int64, referenceID string) (*gateway.Deposit, error)
	CancelDeposit(ctx context.Context, gatewayID string) error
	QueryStatus(ctx context.Context, gatewayID string) (*gateway.StatusReport, error)
}

// referenceRetries bounds fresh-code retries when a minted reference collides.
const referenceRetries = 3

// errTransitionLost signals that another caller moved the order to a terminal
// status first. Never returned to callers; the service reloads and reports
// the winning state instead.
var errTransitionLost = errors.New("status transition lost")

// ServiceParams groups dependencies for the order service.
type ServiceParams struct {
	DB          *gorm.DB
	Repo        Repository
	Products    products.Repository
	Inventory   inventory.Repository
	Reservation *reservation.Manager
	PayConfig   payconfig.Repository
	Gateway     DepositGateway
	Pricing     *pricing.Calculator
	Logger      *logger.Logger
	Metrics     *metrics.OrderMetrics
}

// Service owns the order lifecycle: checkout with atomic stock reservation,
// gateway reconciliation, operator settlement, and exactly-once delivery.
type Service struct {
	db          *gorm.DB
	repo        Repository
	products    products.Repository
	inventory   inventory.Repository
	reservation *reservation.Manager
	payconfig   payconfig.Repository
	gw          DepositGateway
	pricing     *pricing.Calculator
	logger      *logger.Logger
	metrics     *metrics.OrderMetrics
}

// NewService builds an order service.
func NewService(params ServiceParams) (*Service, error) {
	if params.DB == nil {
		return nil, errors.New("db is required")
	}
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Products == nil {
		return nil, errors.New("products repo is required")
	}
	if params.Inventory == nil {
		return nil, errors.New("inventory repo is required")
	}
	if params.Reservation == nil {
		return nil, errors.New("reservation manager is required")
	}
	if params.PayConfig == nil {
		return nil, errors.New("payconfig repo is required")
	}
	if params.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if params.Pricing == nil {
		return nil, errors.New("pricing calculator is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{
		db:          params.DB,
		repo:        params.Repo,
		products:    params.Products,
		inventory:   params.Inventory,
		reservation: params.Reservation,
		payconfig:   params.PayConfig,
		gw:          params.Gateway,
		pricing:     params.Pricing,
		logger:      params.Logger,
		metrics:     params.Metrics,
	}, nil
}

// Create runs the checkout: reserve stock and persist the pending order in
// one transaction, then open the remote deposit. Every failure after the
// reservation commits walks the work back: the order goes to failed, the
// units return to the pool, and any remote deposit is voided best-effort.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (*OrderResponse, error) {
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if strings.TrimSpace(input.BuyerEmail) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer email is required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}

	ctx = s.logger.WithProductID(ctx, input.ProductID.String())
	product, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading product")
	}
	if product == nil || !product.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}

	reference, err := newReference()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting order reference")
	}
	ctx = s.logger.WithOrderReference(ctx, reference)

	totalCents := product.UnitPriceCents * int64(input.Qty)
	order := &models.Order{
		ID:             uuid.New(),
		Reference:      reference,
		ProductID:      product.ID,
		ProductTitle:   product.Title,
		UnitPriceCents: product.UnitPriceCents,
		Qty:            input.Qty,
		NominalCents:   totalCents,
		PaymentMethod:  input.PaymentMethod,
		BuyerEmail:     strings.TrimSpace(input.BuyerEmail),
		Status:         enums.OrderStatusPending,
	}

	if input.PaymentMethod == enums.PaymentMethodGatewayAuto {
		quote, qerr := s.pricing.Quote(totalCents, s.feeParams(ctx))
		if qerr != nil {
			return nil, qerr
		}
		order.FeeCents = quote.FeeCents
		order.SurchargeCents = quote.SurchargeCents
		order.NominalCents = quote.NominalCents
	}

	for attempt := 0; ; attempt++ {
		err = s.transact(ctx, func(tx *gorm.DB) error {
			reserved, rerr := s.reservation.Reserve(ctx, tx, product.ID, input.Qty)
			if rerr != nil {
				return rerr
			}
			order.ReservedUnitIDs = reserved
			return s.repo.WithTx(tx).Create(ctx, order)
		})
		if err == nil {
			break
		}
		// a reference collision rolls back the reservation too, so a fresh
		// code and a clean retry are safe
		if db.IsUniqueViolation(err, "reference") && attempt < referenceRetries {
			if reference, err = newReference(); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "minting order reference")
			}
			order.Reference = reference
			ctx = s.logger.WithOrderReference(ctx, reference)
			continue
		}
		if pkgerrors.HasCode(err, pkgerrors.CodeOutOfStock) {
			s.metrics.IncStockConflict()
		}
		return nil, err
	}

	if input.PaymentMethod == enums.PaymentMethodManual {
		s.metrics.IncCreated(input.PaymentMethod.String())
		s.logger.Info(ctx, "manual order created")
		return toOrderResponse(order), nil
	}

	deposit, err := s.createDeposit(ctx, order.NominalCents, reference)
	if err != nil {
		s.compensateCreate(ctx, order, "")
		return nil, err
	}

	landed, err := s.repo.SetGatewayDetails(ctx, order.ID, deposit.GatewayID, deposit.QRPayload, deposit.ExpiresAt)
	if err != nil || !landed {
		s.compensateCreate(ctx, order, deposit.GatewayID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persisting gateway details")
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order left pending state during checkout")
	}

	order.GatewayID = &deposit.GatewayID
	order.QRPayload = &deposit.QRPayload
	expiresAt := deposit.ExpiresAt
	order.GatewayExpiresAt = &expiresAt

	s.metrics.IncCreated(input.PaymentMethod.String())
	s.logger.Info(ctx, "gateway order created")
	return toOrderResponse(order), nil
}

// Get returns the order by its internal id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	order, err := s.mustLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	return toOrderResponse(order), nil
}

// GetByReference returns the order by its human-quotable code.
func (s *Service) GetByReference(ctx context.Context, reference string) (*OrderResponse, error) {
	order, err := s.repo.FindByReference(ctx, strings.TrimSpace(reference))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return toOrderResponse(order), nil
}

// List returns recent orders, optionally filtered by status.
func (s *Service) List(ctx context.Context, status *enums.OrderStatus, limit int) ([]OrderResponse, error) {
	rows, err := s.repo.ListRecent(ctx, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing orders")
	}
	out := make([]OrderResponse, 0, len(rows))
	for i := range rows {
		out = append(out, *toOrderResponse(&rows[i]))
	}
	return out, nil
}

// RefreshStatus reconciles a pending gateway order against the remote
// deposit state. Terminal orders are returned as-is; a paid order with no
// delivered content gets a delivery retry.
func (s *Service) RefreshStatus(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	ctx = s.logger.WithOrderID(ctx, id.String())
	order, err := s.mustLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	ctx = s.logger.WithOrderReference(ctx, order.Reference)

	if order.Status.IsTerminal() {
		if order.Status == enums.OrderStatusPaid && order.DeliveredContent == nil {
			if derr := s.deliver(ctx, order); derr != nil {
				return nil, derr
			}
			return s.Get(ctx, id)
		}
		return toOrderResponse(order), nil
	}

	if order.PaymentMethod != enums.PaymentMethodGatewayAuto || order.GatewayID == nil {
		// manual orders settle only through the operator
		return toOrderResponse(order), nil
	}

	report, err := s.queryStatus(ctx, *order.GatewayID)
	if err != nil {
		return nil, err
	}

	switch {
	case report.Status.Settled():
		return s.settle(ctx, order)
	case report.Status.Abandoned():
		target := enums.OrderStatusCancelled
		if report.Status == enums.GatewayStatusExpired {
			target = enums.OrderStatusExpired
		}
		return s.abandon(ctx, order, target)
	default:
		return toOrderResponse(order), nil
	}
}

// Approve settles a pending order out-of-band. The operator asserts the
// payment arrived; stock stays claimed and the content ships. Re-approving a
// paid order is a harmless re-confirmation, not a conflict.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	ctx = s.logger.WithOrderID(ctx, id.String())
	order, err := s.mustLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusPaid {
		return toOrderResponse(order), nil
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order already %s", order.Status))
	}
	ctx = s.logger.WithOrderReference(ctx, order.Reference)
	return s.settle(ctx, order)
}

// Cancel voids a pending order: terminal cancelled status, units back to the
// pool, and a best-effort remote void when a deposit exists. Cancelling an
// already-dead order returns it unchanged.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*OrderResponse, error) {
	ctx = s.logger.WithOrderID(ctx, id.String())
	order, err := s.mustLoad(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusCancelled || order.Status == enums.OrderStatusExpired {
		return toOrderResponse(order), nil
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order already %s", order.Status))
	}
	ctx = s.logger.WithOrderReference(ctx, order.Reference)

	resp, err := s.abandon(ctx, order, enums.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}
	if order.GatewayID != nil {
		if cerr := s.gw.CancelDeposit(ctx, *order.GatewayID); cerr != nil {
			// the local record is authoritative; the deposit dies at expiry
			s.logger.Warn(ctx, "remote deposit cancel failed: "+cerr.Error())
		}
	}
	return resp, nil
}

// settle moves the order to paid, bumps the sold counter atomically with the
// transition, then delivers the content outside the transaction so a delivery
// fault cannot roll back a real payment.
func (s *Service) settle(ctx context.Context, order *models.Order) (*OrderResponse, error) {
	err := s.transact(ctx, func(tx *gorm.DB) error {
		won, terr := s.repo.WithTx(tx).TransitionFromPending(ctx, order.ID, enums.OrderStatusPaid)
		if terr != nil {
			return terr
		}
		if !won {
			return errTransitionLost
		}
		return s.products.WithTx(tx).IncrementSold(ctx, order.ProductID, order.Qty)
	})
	if errors.Is(err, errTransitionLost) {
		return s.Get(ctx, order.ID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settling order")
	}

	s.metrics.IncPaid()
	s.logger.Info(ctx, "order paid")

	if derr := s.deliver(ctx, order); derr != nil {
		return nil, derr
	}
	return s.Get(ctx, order.ID)
}

// abandon moves the order to the terminal status and releases the held units
// in the same transaction, so a crash can never leave stock stranded behind a
// dead order.
func (s *Service) abandon(ctx context.Context, order *models.Order, target enums.OrderStatus) (*OrderResponse, error) {
	err := s.transact(ctx, func(tx *gorm.DB) error {
		won, terr := s.repo.WithTx(tx).TransitionFromPending(ctx, order.ID, target)
		if terr != nil {
			return terr
		}
		if !won {
			return errTransitionLost
		}
		return s.reservation.Release(ctx, tx, order.ReservedUnitIDs)
	})
	if errors.Is(err, errTransitionLost) {
		return s.Get(ctx, order.ID)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "abandoning order")
	}

	s.metrics.IncCancelled()
	s.logger.Info(ctx, "order "+target.String())
	return s.Get(ctx, order.ID)
}

// compensateCreate walks back a committed reservation after the gateway leg
// of checkout fails. Partial compensation is logged, never returned: the
// caller already has the original failure.
func (s *Service) compensateCreate(ctx context.Context, order *models.Order, gatewayID string) {
	var errs error
	if gatewayID != "" {
		if err := s.gw.CancelDeposit(ctx, gatewayID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cancel remote deposit: %w", err))
		}
	}

	won, err := s.repo.TransitionFromPending(ctx, order.ID, enums.OrderStatusFailed)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("mark order failed: %w", err))
	}
	if won {
		if err := s.reservation.Release(ctx, nil, order.ReservedUnitIDs); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("release units: %w", err))
		}
	}

	if errs != nil {
		s.logger.Error(ctx, "checkout compensation incomplete", errs)
		return
	}
	s.logger.Warn(ctx, "checkout rolled back after gateway failure")
}

func (s *Service) mustLoad(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// feeParams reads operator overrides for the fee math. Store faults fall back
// to the configured defaults; checkout must not die on a config read.
func (s *Service) feeParams(ctx context.Context) pricing.Params {
	var params pricing.Params
	if row, err := s.payconfig.Get(ctx, payconfig.KeyFlatFeeCents); err != nil {
		s.logger.Warn(ctx, "payconfig read failed: "+err.Error())
	} else if row != nil {
		if cents, perr := parseCents(row.Value); perr == nil {
			params.FlatFeeCents = cents
		} else {
			s.logger.Warn(ctx, "ignoring malformed flat fee override: "+row.Value)
		}
	}
	if row, err := s.payconfig.Get(ctx, payconfig.KeyRatePercent); err != nil {
		s.logger.Warn(ctx, "payconfig read failed: "+err.Error())
	} else if row != nil {
		params.RatePercent = row.Value
	}
	return params
}

func parseCents(value string) (int64, error) {
	var cents int64
	_, err := fmt.Sscanf(strings.TrimSpace(value), "%d", &cents)
	return cents, err
}

func (s *Service) createDeposit(ctx context.Context, nominalCents int64, reference string) (*gateway.Deposit, error) {
	start := time.Now()
	deposit, err := s.gw.CreateDeposit(ctx, nominalCents, reference)
	s.metrics.ObserveGatewayCall("create_deposit", time.Since(start))
	if err != nil {
		s.metrics.IncGatewayFailure("create_deposit")
	}
	return deposit, err
}

func (s *Service) queryStatus(ctx context.Context, gatewayID string) (*gateway.StatusReport, error) {
	start := time.Now()
	report, err := s.gw.QueryStatus(ctx, gatewayID)
	s.metrics.ObserveGatewayCall("query_status", time.Since(start))
	if err != nil {
		s.metrics.IncGatewayFailure("query_status")
	}
	return report, err
}

func (s *Service) transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}
