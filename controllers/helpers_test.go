package controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/cafe-orders/controllers"
	"github.com/yeremiapane/cafe-orders/database"
	"github.com/yeremiapane/cafe-orders/middlewares"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/repository"
	"github.com/yeremiapane/cafe-orders/services"
	"github.com/yeremiapane/cafe-orders/utils"
)

const webhookSecret = "whsec_controllers"

// gatewayServer stands in for the Razorpay orders API.
type gatewayServer struct {
	*httptest.Server
	down  atomic.Bool
	calls atomic.Int32
}

func newGatewayServer(t *testing.T) *gatewayServer {
	t.Helper()
	g := &gatewayServer{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := g.calls.Add(1)
		if g.down.Load() {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte(`{"error":{"description":"upstream unavailable"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       fmt.Sprintf("order_gw%d", n),
			"amount":   16000,
			"currency": "INR",
			"status":   "created",
		})
	}))
	t.Cleanup(g.Server.Close)
	return g
}

type testEnv struct {
	db         *gorm.DB
	router     *gin.Engine
	gateway    *gatewayServer
	reconciler *services.PaymentReconciler
	staffToken string
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.SeedCatalog(db))
	require.NoError(t, database.SeedUsers(db, []database.SeedUser{
		{Username: "owner", Password: "owner-pass", Role: models.RoleOwner},
		{Username: "staff", Password: "staff-pass", Role: models.RoleStaff},
	}))
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	utils.InitLogger()
	utils.SetJWTSecret("controllers-test", time.Hour)

	db := setupTestDB(t)
	gw := newGatewayServer(t)
	repo := repository.NewOrderRepository(db)
	gateway := services.NewRazorpayService(services.RazorpayConfig{
		BaseURL:   gw.URL,
		KeyID:     "rzp_test",
		KeySecret: "secret",
		Timeout:   2 * time.Second,
	})
	orders := services.NewOrderService(repo, repository.NewCatalogRepository(db), gateway, nil, services.OrderConfig{})
	reconciler := services.NewPaymentReconciler(repo, nil, nil, services.WebhookConfig{Secret: webhookSecret})

	userCtrl := controllers.NewUserController(db)
	orderCtrl := controllers.NewOrderController(orders)
	paymentCtrl := controllers.NewPaymentController(reconciler)

	r := gin.New()
	r.POST("/api/orders", orderCtrl.PlaceOrder)
	r.POST("/api/orders/:orderCode/payment", orderCtrl.InitiatePayment)
	r.GET("/api/orders/track/:orderCode", orderCtrl.TrackOrder)
	r.POST("/api/payments/webhook", paymentCtrl.HandleWebhook)
	r.POST("/api/admin/login", userCtrl.Login)

	admin := r.Group("/api/admin")
	admin.Use(middlewares.AuthMiddleware(), middlewares.RequireRoles(models.RoleOwner, models.RoleAdmin, models.RoleStaff))
	admin.GET("/orders/:orderId", orderCtrl.GetOrder)
	admin.PUT("/orders/:orderId/status", orderCtrl.UpdateStatus)
	admin.PUT("/orders/:orderId/complete", orderCtrl.CompleteOrder)
	admin.GET("/payments/webhook-metrics", paymentCtrl.WebhookMetrics)

	var staff models.User
	require.NoError(t, db.Where("username = ?", "staff").First(&staff).Error)
	token, err := utils.GenerateToken(staff.ID, staff.Role)
	require.NoError(t, err)

	return &testEnv{db: db, router: r, gateway: gw, reconciler: reconciler, staffToken: token}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case []byte:
		buf = bytes.NewBuffer(b)
	case string:
		buf = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) staff() map[string]string {
	return map[string]string{"Authorization": "Bearer " + e.staffToken}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func orderPayload(mode string) map[string]interface{} {
	return map[string]interface{}{
		"customerName":  "Ravi",
		"customerPhone": "9123456789",
		"tableNo":       "T4",
		"paymentMode":   mode,
		"items": []map[string]interface{}{
			{"menuItemId": 1, "quantity": 2},
		},
	}
}

func (e *testEnv) placeOrder(t *testing.T, mode string) controllers.PlaceOrderResponse {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/orders", orderPayload(mode), nil)
	require.Contains(t, []int{http.StatusCreated, http.StatusAccepted}, w.Code, w.Body.String())
	var resp controllers.PlaceOrderResponse
	decode(t, w, &resp)
	return resp
}

func (e *testEnv) orderID(t *testing.T, code string) uint {
	t.Helper()
	var order models.Order
	require.NoError(t, e.db.Where("order_code = ?", code).First(&order).Error)
	return order.ID
}

func signedWebhook(gatewayOrderID, paymentID, status string) ([]byte, map[string]string) {
	body, _ := json.Marshal(map[string]interface{}{
		"event": "payment." + status,
		"payload": map[string]interface{}{
			"payment": map[string]interface{}{
				"entity": map[string]interface{}{
					"id":       paymentID,
					"order_id": gatewayOrderID,
					"status":   status,
				},
			},
		},
	})
	return body, map[string]string{services.SignatureHeader: services.SignPayload(webhookSecret, body)}
}
