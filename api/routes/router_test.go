package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/keydrop/keydrop-backend/internal/inventory"
	"github.com/keydrop/keydrop-backend/internal/orders"
	"github.com/keydrop/keydrop-backend/internal/payconfig"
	"github.com/keydrop/keydrop-backend/internal/pricing"
	"github.com/keydrop/keydrop-backend/internal/products"
	"github.com/keydrop/keydrop-backend/internal/reservation"
	"github.com/keydrop/keydrop-backend/pkg/config"
	"github.com/keydrop/keydrop-backend/pkg/db/models"
	"github.com/keydrop/keydrop-backend/pkg/gateway"
	"github.com/keydrop/keydrop-backend/pkg/logger"
	"github.com/keydrop/keydrop-backend/pkg/metrics"
)

const testAdminPassword = "super-secret"

type stubGateway struct {
	mu       sync.Mutex
	status   string
	deposits int
}

func (g *stubGateway) setStatus(status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = status
}

func (g *stubGateway) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v1/deposit/create":
			g.mu.Lock()
			g.deposits++
			id := fmt.Sprintf("dep-%d", g.deposits)
			g.mu.Unlock()
			fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"id":%q,"qr_string":"QR-%s","expired_at":%d}}`,
				id, r.Form.Get("ref_id"), time.Now().Add(30*time.Minute).Unix())
		case "/v1/deposit/status":
			g.mu.Lock()
			status := g.status
			g.mu.Unlock()
			if status == "" {
				status = "pending"
			}
			fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"status":%q,"fee":0,"total":0}}`, status)
		case "/v1/deposit/cancel", "/v1/ping":
			fmt.Fprint(w, `{"status":true,"message":"ok","data":null}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

type routerHarness struct {
	handler http.Handler
	db      *gorm.DB
	gateway *stubGateway
	product *models.Product
}

func newRouterHarness(t *testing.T) *routerHarness {
	t.Helper()

	stub := &stubGateway{}
	gatewaySrv := httptest.NewServer(stub.handler())
	t.Cleanup(gatewaySrv.Close)

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ctx := context.Background()

	gwClient, err := gateway.NewClient(ctx, config.GatewayConfig{
		BaseURL:     gatewaySrv.URL,
		APIKey:      "test-key",
		CallTimeout: 5 * time.Second,
	}, logg)
	require.NoError(t, err)

	dsn := "file:router_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.InventoryUnit{},
		&models.Order{},
		&models.PaymentConfig{},
	))

	invRepo := inventory.NewRepository(db)
	prodRepo := products.NewRepository(db)
	payRepo := payconfig.NewRepository(db)

	manager, err := reservation.NewManager(invRepo)
	require.NoError(t, err)

	calc, err := pricing.NewCalculator(config.PricingConfig{
		FlatFeeCents:   200,
		RatePercent:    "0.7",
		SurchargeCents: 150,
	}, pricing.WithSurchargeSource(func() (int64, error) { return 3, nil }))
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	ordersSvc, err := orders.NewService(orders.ServiceParams{
		DB:          db,
		Repo:        orders.NewRepository(db),
		Products:    prodRepo,
		Inventory:   invRepo,
		Reservation: manager,
		PayConfig:   payRepo,
		Gateway:     gwClient,
		Pricing:     calc,
		Logger:      logg,
		Metrics:     metrics.NewOrderMetrics(registry),
	})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.Admin.Password = testAdminPassword
	cfg.PollLimit.Window = 10 * time.Second
	cfg.PollLimit.Limit = 5

	product := &models.Product{ID: uuid.New(), Title: "Game Key", UnitPriceCents: 2500, Active: true}
	require.NoError(t, prodRepo.Create(ctx, product))
	for i := 0; i < 5; i++ {
		unit := models.InventoryUnit{ID: uuid.New(), ProductID: product.ID, Content: fmt.Sprintf("KEY-%03d", i)}
		require.NoError(t, db.Create(&unit).Error)
	}

	handler := NewRouter(RouterParams{
		Config:        cfg,
		Logger:        logg,
		Orders:        ordersSvc,
		Products:      prodRepo,
		Inventory:     invRepo,
		PaymentConfig: payRepo,
		Gateway:       gwClient,
		Metrics:       registry,
	})

	return &routerHarness{handler: handler, db: db, gateway: stub, product: product}
}

func (h *routerHarness) do(t *testing.T, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("X-Admin-Password", testAdminPassword)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope.Data
}

func TestHealthLive(t *testing.T) {
	h := newRouterHarness(t)
	rec := h.do(t, http.MethodGet, "/health/live", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get("X-Keydrop-Env"))
}

func TestMetricsEndpoint(t *testing.T) {
	h := newRouterHarness(t)
	rec := h.do(t, http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListProducts(t *testing.T) {
	h := newRouterHarness(t)
	rec := h.do(t, http.MethodGet, "/api/v1/products", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "Game Key", envelope.Data[0]["title"])
	assert.EqualValues(t, 5, envelope.Data[0]["available"])
}

func TestCheckoutAndSettleFlow(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"product_id":     h.product.ID.String(),
		"qty":            2,
		"buyer_email":    "buyer@example.com",
		"payment_method": "gateway_auto",
	}, false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	data := decodeData(t, rec)
	orderID, _ := data["id"].(string)
	require.NotEmpty(t, orderID)
	assert.Equal(t, "pending", data["status"])
	assert.NotEmpty(t, data["qr_payload"])

	// remote deposit settles
	h.gateway.setStatus("success")
	rec = h.do(t, http.MethodPost, "/api/v1/orders/"+orderID+"/refresh", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data = decodeData(t, rec)
	assert.Equal(t, "paid", data["status"])
	assert.NotEmpty(t, data["delivered_content"])

	rec = h.do(t, http.MethodGet, "/api/v1/orders/"+orderID, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	data = decodeData(t, rec)
	assert.Equal(t, "paid", data["status"])
}

func TestLookupByReference(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"product_id":     h.product.ID.String(),
		"qty":            1,
		"buyer_email":    "buyer@example.com",
		"payment_method": "manual",
	}, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	reference, _ := decodeData(t, rec)["reference"].(string)
	require.NotEmpty(t, reference)

	rec = h.do(t, http.MethodGet, "/api/v1/orders/lookup?reference="+reference, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reference, decodeData(t, rec)["reference"])
}

func TestCreateOrderValidation(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"product_id":     "not-a-uuid",
		"qty":            1,
		"buyer_email":    "buyer@example.com",
		"payment_method": "manual",
	}, false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"product_id":     h.product.ID.String(),
		"qty":            50,
		"buyer_email":    "buyer@example.com",
		"payment_method": "manual",
	}, false)
	assert.Equal(t, http.StatusConflict, rec.Code, "quantity beyond stock is rejected")
}

func TestAdminRoutesRequirePassword(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(t, http.MethodGet, "/api/admin/v1/orders/", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/admin/v1/orders/", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminApproveFlow(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/orders", map[string]any{
		"product_id":     h.product.ID.String(),
		"qty":            1,
		"buyer_email":    "buyer@example.com",
		"payment_method": "manual",
	}, false)
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID, _ := decodeData(t, rec)["id"].(string)

	rec = h.do(t, http.MethodPost, "/api/admin/v1/orders/"+orderID+"/approve", nil, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.Equal(t, "paid", data["status"])
	assert.NotEmpty(t, data["delivered_content"])

	// a second approve is an idempotent re-confirmation
	rec = h.do(t, http.MethodPost, "/api/admin/v1/orders/"+orderID+"/approve", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "paid", decodeData(t, rec)["status"])

	// but a paid order cannot be cancelled
	rec = h.do(t, http.MethodPost, "/api/admin/v1/orders/"+orderID+"/cancel", nil, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAdminUnitManagement(t *testing.T) {
	h := newRouterHarness(t)
	base := "/api/admin/v1/products/" + h.product.ID.String() + "/units"

	rec := h.do(t, http.MethodPost, base+"/", map[string]any{
		"contents": []string{"NEW-1", "NEW-2"},
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := decodeData(t, rec)
	assert.EqualValues(t, 2, data["inserted"])
	assert.EqualValues(t, 7, data["available"])

	rec = h.do(t, http.MethodGet, base+"/count", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 7, decodeData(t, rec)["available"])

	rec = h.do(t, http.MethodDelete, base+"/?limit=3", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, decodeData(t, rec)["deleted"])
}

func TestAdminPaymentConfig(t *testing.T) {
	h := newRouterHarness(t)

	rec := h.do(t, http.MethodPut, "/api/admin/v1/payment-config/", map[string]any{
		"key":   "flat_fee_cents",
		"value": "300",
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/admin/v1/payment-config/", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "300", decodeData(t, rec)["flat_fee_cents"])
}

func TestAdminGatewayPing(t *testing.T) {
	h := newRouterHarness(t)
	rec := h.do(t, http.MethodPost, "/api/admin/v1/gateway/ping", nil, true)
	assert.Equal(t, http.StatusOK, rec.Code)
}
