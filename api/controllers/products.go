package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/keydrop/keydrop-backend/api/responses"
	"github.com/keydrop/keydrop-backend/internal/inventory"
	"github.com/keydrop/keydrop-backend/internal/products"
	pkgerrors "github.com/keydrop/keydrop-backend/pkg/errors"
	"github.com/keydrop/keydrop-backend/pkg/logger"
)

type productListItem struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	Available      int64     `json:"available"`
	SoldCount      int       `json:"sold_count"`
}

// ListProducts returns the active catalog with live availability counts.
func ListProducts(productRepo products.Repository, invRepo inventory.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := productRepo.ListActive(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products"))
			return
		}

		items := make([]productListItem, 0, len(list))
		for _, product := range list {
			free, err := invRepo.CountFree(r.Context(), product.ID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count stock"))
				return
			}
			items = append(items, productListItem{
				ID:             product.ID,
				Title:          product.Title,
				Description:    product.Description,
				UnitPriceCents: product.UnitPriceCents,
				Available:      free,
				SoldCount:      product.SoldCount,
			})
		}
		responses.WriteSuccess(w, items)
	}
}
