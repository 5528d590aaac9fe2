package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keydrop/keydrop-backend/api/responses"
	"github.com/keydrop/keydrop-backend/api/validators"
	"github.com/keydrop/keydrop-backend/internal/inventory"
	"github.com/keydrop/keydrop-backend/internal/orders"
	"github.com/keydrop/keydrop-backend/internal/payconfig"
	"github.com/keydrop/keydrop-backend/internal/products"
	"github.com/keydrop/keydrop-backend/pkg/db/models"
	"github.com/keydrop/keydrop-backend/pkg/enums"
	pkgerrors "github.com/keydrop/keydrop-backend/pkg/errors"
	"github.com/keydrop/keydrop-backend/pkg/logger"
)

// AdminApproveOrder settles a pending order out-of-band.
func AdminApproveOrder(svc *orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.Approve(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// AdminCancelOrder voids a pending order and releases its stock.
func AdminCancelOrder(svc *orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp, err := svc.Cancel(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

// AdminListOrders returns recent orders, optionally filtered by status.
func AdminListOrders(svc *orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.OrderStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, perr := enums.ParseOrderStatus(raw)
			if perr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, perr, "invalid status filter"))
				return
			}
			status = &parsed
		}

		list, err := svc.List(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type createProductRequest struct {
	Title          string `json:"title" validate:"required,min=1,max=200"`
	Description    string `json:"description" validate:"max=2000"`
	UnitPriceCents int64  `json:"unit_price_cents" validate:"required,min=1"`
}

// AdminCreateProduct adds a catalog entry.
func AdminCreateProduct(repo products.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createProductRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product := &models.Product{
			ID:             uuid.New(),
			Title:          strings.TrimSpace(req.Title),
			Description:    strings.TrimSpace(req.Description),
			UnitPriceCents: req.UnitPriceCents,
			Active:         true,
		}
		if err := repo.Create(r.Context(), product); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

type uploadUnitsRequest struct {
	Contents []string `json:"contents" validate:"required,min=1,max=5000,dive,required"`
}

// AdminUploadUnits bulk-loads sellable units for a product.
func AdminUploadUnits(invRepo inventory.Repository, productRepo products.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		product, err := productRepo.FindByID(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product"))
			return
		}
		if product == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "product not found"))
			return
		}

		var req uploadUnitsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inserted, err := invRepo.BulkInsert(r.Context(), productID, req.Contents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert units"))
			return
		}

		free, err := invRepo.CountFree(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count stock"))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{
			"inserted":  inserted,
			"available": free,
		})
	}
}

// AdminDeleteUnit removes one unclaimed unit.
func AdminDeleteUnit(invRepo inventory.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(chi.URLParam(r, "unitId"))
		unitID, err := uuid.Parse(raw)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit id"))
			return
		}

		deleted, err := invRepo.DeleteFreeByID(r.Context(), unitID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete unit"))
			return
		}
		if !deleted {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unit not found or already claimed"))
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

// AdminPurgeUnits removes free units of a product, optionally limited.
func AdminPurgeUnits(invRepo inventory.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 100000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deleted, err := invRepo.DeleteFree(r.Context(), productID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge units"))
			return
		}
		responses.WriteSuccess(w, map[string]int64{"deleted": deleted})
	}
}

// AdminUnitCount reports the free stock for a product.
func AdminUnitCount(invRepo inventory.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseProductID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		free, err := invRepo.CountFree(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count stock"))
			return
		}
		responses.WriteSuccess(w, map[string]int64{"available": free})
	}
}

// AdminGetPaymentConfig returns every fee/credential override.
func AdminGetPaymentConfig(repo payconfig.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := repo.All(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment config"))
			return
		}
		out := make(map[string]string, len(rows))
		for _, row := range rows {
			out[row.Key] = row.Value
		}
		responses.WriteSuccess(w, out)
	}
}

type setPaymentConfigRequest struct {
	Key   string `json:"key" validate:"required,min=1,max=100"`
	Value string `json:"value" validate:"required,max=500"`
}

// AdminSetPaymentConfig upserts one override.
func AdminSetPaymentConfig(repo payconfig.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setPaymentConfigRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := repo.Set(r.Context(), strings.TrimSpace(req.Key), strings.TrimSpace(req.Value)); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment config"))
			return
		}
		responses.WriteSuccess(w, map[string]string{req.Key: req.Value})
	}
}

type gatewayPinger interface {
	Ping(ctx context.Context) error
}

// AdminGatewayPing checks connectivity and credentials against the gateway.
func AdminGatewayPing(gw gatewayPinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := gw.Ping(r.Context()); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"gateway": "ok"})
	}
}

func parseProductID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	productID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	return productID, nil
}
