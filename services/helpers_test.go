package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/cafe-orders/database"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/repository"
	"github.com/yeremiapane/cafe-orders/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	utils.InitLogger()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type testCatalog struct {
	Dosa     models.MenuItem
	Wrap     models.MenuItem
	SoldOut  models.MenuItem
	Cheese   models.ExtraIngredient
	Ghee     models.ExtraIngredient
	Retired  models.ExtraIngredient
	Products *repository.CatalogRepository
}

func seedCatalog(t *testing.T, db *gorm.DB) *testCatalog {
	t.Helper()
	c := &testCatalog{
		Dosa:    models.MenuItem{Name: "Masala Dosa", Price: decimal.RequireFromString("50.00"), Available: true},
		Wrap:    models.MenuItem{Name: "Paneer Wrap", Price: decimal.RequireFromString("120.00"), Available: true},
		SoldOut: models.MenuItem{Name: "Mango Lassi", Price: decimal.RequireFromString("60.00"), Available: false},
		Cheese:  models.ExtraIngredient{Name: "Extra Cheese", Price: decimal.RequireFromString("20.00"), Active: true},
		Ghee:    models.ExtraIngredient{Name: "Ghee Roast", Price: decimal.RequireFromString("15.00"), Active: true},
		Retired: models.ExtraIngredient{Name: "Truffle Oil", Price: decimal.RequireFromString("99.00"), Active: false},
	}
	for _, item := range []*models.MenuItem{&c.Dosa, &c.Wrap, &c.SoldOut} {
		require.NoError(t, db.Create(item).Error)
	}
	for _, extra := range []*models.ExtraIngredient{&c.Cheese, &c.Ghee, &c.Retired} {
		require.NoError(t, db.Create(extra).Error)
	}
	c.Products = repository.NewCatalogRepository(db)
	return c
}

type recordingNotifier struct {
	mu            sync.Mutex
	newOrders     []models.OrderSnapshot
	statusChanges []models.OrderSnapshot
	refreshHints  int
}

func (n *recordingNotifier) PublishNewOrder(s models.OrderSnapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newOrders = append(n.newOrders, s)
}

func (n *recordingNotifier) PublishStatusChanged(s models.OrderSnapshot) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusChanges = append(n.statusChanges, s)
}

func (n *recordingNotifier) PublishRefreshHint() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.refreshHints++
}

func (n *recordingNotifier) counts() (int, int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.newOrders), len(n.statusChanges), n.refreshHints
}

type fakeGateway struct {
	mu       sync.Mutex
	id       string
	err      error
	receipts []string
	amounts  []decimal.Decimal
}

func (g *fakeGateway) CreateOrder(ctx context.Context, amount decimal.Decimal, receipt string) (*GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.receipts = append(g.receipts, receipt)
	g.amounts = append(g.amounts, amount)
	if g.err != nil {
		return nil, g.err
	}
	return &GatewayOrder{ID: g.id, Receipt: receipt, Status: "created"}, nil
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.receipts)
}

var errGatewayDown = errors.New("dial tcp: connection refused")

type fixture struct {
	db         *gorm.DB
	catalog    *testCatalog
	repo       *repository.OrderRepository
	gateway    *fakeGateway
	notifier   *recordingNotifier
	orders     *OrderService
	reconciler *PaymentReconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	f := &fixture{
		db:       db,
		catalog:  seedCatalog(t, db),
		repo:     repository.NewOrderRepository(db),
		gateway:  &fakeGateway{id: "gw_123"},
		notifier: &recordingNotifier{},
	}
	f.orders = NewOrderService(f.repo, f.catalog.Products, f.gateway, f.notifier, OrderConfig{})
	f.reconciler = NewPaymentReconciler(f.repo, f.notifier, NewPaymentMonitor(), WebhookConfig{Secret: testWebhookSecret})
	return f
}

func (f *fixture) codOrder(lines ...OrderLineInput) PlaceOrderInput {
	if len(lines) == 0 {
		lines = []OrderLineInput{{MenuItemID: f.catalog.Dosa.ID, Quantity: 2}}
	}
	return PlaceOrderInput{
		CustomerName:  "Asha",
		CustomerPhone: "9876543210",
		PaymentMode:   models.PaymentModeCashOnDelivery,
		Items:         lines,
	}
}

func (f *fixture) onlineOrder(lines ...OrderLineInput) PlaceOrderInput {
	in := f.codOrder(lines...)
	in.PaymentMode = models.PaymentModeOnline
	return in
}

func (f *fixture) reloadOrder(t *testing.T, id uint) *models.Order {
	t.Helper()
	order, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (f *fixture) reloadPayment(t *testing.T, orderID uint) *models.Payment {
	t.Helper()
	payment, err := f.repo.FindPaymentByOrderID(context.Background(), orderID)
	require.NoError(t, err)
	return payment
}

func webhookBody(gatewayOrderID, paymentID, status string) []byte {
	event := "payment.captured"
	if status != "captured" {
		event = "payment.failed"
	}
	body, _ := json.Marshal(map[string]interface{}{
		"entity": "event",
		"event":  event,
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
	return body
}

func signedWebhook(gatewayOrderID, paymentID, status string) ([]byte, string) {
	body := webhookBody(gatewayOrderID, paymentID, status)
	return body, SignPayload(testWebhookSecret, body)
}
