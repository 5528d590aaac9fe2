package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/keydrop/keydrop-backend/api/routes"
	"github.com/keydrop/keydrop-backend/internal/inventory"
	"github.com/keydrop/keydrop-backend/internal/orders"
	"github.com/keydrop/keydrop-backend/internal/payconfig"
	"github.com/keydrop/keydrop-backend/internal/pricing"
	"github.com/keydrop/keydrop-backend/internal/products"
	"github.com/keydrop/keydrop-backend/internal/reservation"
	"github.com/keydrop/keydrop-backend/pkg/config"
	"github.com/keydrop/keydrop-backend/pkg/db"
	"github.com/keydrop/keydrop-backend/pkg/gateway"
	"github.com/keydrop/keydrop-backend/pkg/logger"
	"github.com/keydrop/keydrop-backend/pkg/metrics"
	"github.com/keydrop/keydrop-backend/pkg/migrate"
	"github.com/keydrop/keydrop-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gatewayClient, err := gateway.NewClient(context.Background(), cfg.Gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create gateway client", err)
		os.Exit(1)
	}

	calculator, err := pricing.NewCalculator(cfg.Pricing)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing calculator", err)
		os.Exit(1)
	}

	inventoryRepo := inventory.NewRepository(dbClient.DB())
	reservationManager, err := reservation.NewManager(inventoryRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create reservation manager", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()

	productsRepo := products.NewRepository(dbClient.DB())
	payConfigRepo := payconfig.NewRepository(dbClient.DB())

	ordersService, err := orders.NewService(orders.ServiceParams{
		DB:          dbClient.DB(),
		Repo:        orders.NewRepository(dbClient.DB()),
		Products:    productsRepo,
		Inventory:   inventoryRepo,
		Reservation: reservationManager,
		PayConfig:   payConfigRepo,
		Gateway:     gatewayClient,
		Pricing:     calculator,
		Logger:      logg,
		Metrics:     metrics.NewOrderMetrics(registry),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Gateway:       gatewayClient,
			Orders:        ordersService,
			Products:      productsRepo,
			Inventory:     inventoryRepo,
			PaymentConfig: payConfigRepo,
			Metrics:       registry,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
