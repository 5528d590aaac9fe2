package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keydrop/keydrop-backend/api/controllers"
	"github.com/keydrop/keydrop-backend/api/middleware"
	"github.com/keydrop/keydrop-backend/internal/inventory"
	"github.com/keydrop/keydrop-backend/internal/orders"
	"github.com/keydrop/keydrop-backend/internal/payconfig"
	"github.com/keydrop/keydrop-backend/internal/products"
	"github.com/keydrop/keydrop-backend/pkg/config"
	"github.com/keydrop/keydrop-backend/pkg/db"
	"github.com/keydrop/keydrop-backend/pkg/gateway"
	"github.com/keydrop/keydrop-backend/pkg/logger"
	"github.com/keydrop/keydrop-backend/pkg/redis"
)

// RouterParams groups everything the HTTP surface needs.
type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            db.Pinger
	Redis         *redis.Client
	Gateway       *gateway.Client
	Orders        *orders.Service
	Products      products.Repository
	Inventory     inventory.Repository
	PaymentConfig payconfig.Repository
	Metrics       *prometheus.Registry
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	pollPolicy := middleware.NewPollLimitPolicy(cfg.PollLimit.Window, cfg.PollLimit.Limit)

	var redisPinger redis.Pinger
	if p.Redis != nil {
		redisPinger = p.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.DB, redisPinger))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ListProducts(p.Products, p.Inventory, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", controllers.CreateOrder(p.Orders, logg))
			r.Get("/lookup", controllers.LookupOrder(p.Orders, logg))
			r.Get("/{orderId}", controllers.GetOrder(p.Orders, logg))

			refresh := controllers.RefreshOrder(p.Orders, logg)
			if p.Redis != nil {
				r.With(middleware.PollRateLimit(pollPolicy, p.Redis, logg)).
					Post("/{orderId}/refresh", refresh)
			} else {
				r.Post("/{orderId}/refresh", refresh)
			}
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Admin, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminListOrders(p.Orders, logg))
			r.Post("/{orderId}/approve", controllers.AdminApproveOrder(p.Orders, logg))
			r.Post("/{orderId}/cancel", controllers.AdminCancelOrder(p.Orders, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateProduct(p.Products, logg))
			r.Route("/{productId}/units", func(r chi.Router) {
				r.Post("/", controllers.AdminUploadUnits(p.Inventory, p.Products, logg))
				r.Delete("/", controllers.AdminPurgeUnits(p.Inventory, logg))
				r.Get("/count", controllers.AdminUnitCount(p.Inventory, logg))
			})
		})
		r.Delete("/units/{unitId}", controllers.AdminDeleteUnit(p.Inventory, logg))

		r.Route("/payment-config", func(r chi.Router) {
			r.Get("/", controllers.AdminGetPaymentConfig(p.PaymentConfig, logg))
			r.Put("/", controllers.AdminSetPaymentConfig(p.PaymentConfig, logg))
		})

		r.Post("/gateway/ping", controllers.AdminGatewayPing(p.Gateway, logg))
	})

	return r
}
