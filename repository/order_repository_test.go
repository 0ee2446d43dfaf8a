package repository

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeremiapane/cafe-orders/database"
	"github.com/yeremiapane/cafe-orders/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

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
	return db
}

func createOrder(t *testing.T, repo *OrderRepository, code string, items ...models.OrderItem) (*models.Order, *models.Payment) {
	t.Helper()
	order := &models.Order{
		OrderCode:     code,
		CustomerName:  "Asha",
		CustomerPhone: "9876543210",
		Status:        models.OrderStatusNew,
		PaymentMode:   models.PaymentModeOnline,
		PaymentStatus: models.PaymentStatusPending,
		Items:         items,
	}
	order.Recalculate()
	payment := &models.Payment{
		PaymentMode:   models.PaymentModeOnline,
		PaymentStatus: models.PaymentStatusPending,
		Amount:        order.TotalAmount,
	}
	require.NoError(t, repo.CreateWithPayment(context.Background(), order, payment))
	return order, payment
}

func line(name string, price string, extras ...string) models.OrderItem {
	item := models.OrderItem{MenuItemID: 1, MenuItemName: name, UnitPrice: decimal.RequireFromString(price), Quantity: 1}
	for _, extra := range extras {
		item.Extras = append(item.Extras, models.OrderItemExtra{ExtraIngredientID: 1, Name: extra, Price: decimal.NewFromInt(10)})
	}
	return item
}

// captureQueries records the SQL of every SELECT against the given tables.
func captureQueries(t *testing.T, db *gorm.DB, tables ...string) func() map[string][]string {
	t.Helper()
	watched := make(map[string]bool, len(tables))
	for _, table := range tables {
		watched[table] = true
	}
	var mu sync.Mutex
	seen := make(map[string][]string)
	err := db.Callback().Query().After("gorm:query").Register("test:capture_sql", func(tx *gorm.DB) {
		if tx.Statement.Schema == nil || !watched[tx.Statement.Schema.Table] {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		seen[tx.Statement.Schema.Table] = append(seen[tx.Statement.Schema.Table], tx.Statement.SQL.String())
	})
	require.NoError(t, err)
	return func() map[string][]string {
		mu.Lock()
		defer mu.Unlock()
		return seen
	}
}

func TestFindOrder_ItemsKeepPlacementOrder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOrderRepository(db)
	placed, _ := createOrder(t, repo, "ORD-0000A001",
		line("Paneer Wrap", "120.00"),
		line("Masala Dosa", "80.00", "Ghee", "Cheese", "Jalapenos"),
		line("Filter Coffee", "40.00"),
	)
	queries := captureQueries(t, db, "order_items", "order_item_extras")

	byCode, err := repo.FindByCode(context.Background(), placed.OrderCode)
	require.NoError(t, err)
	byID, err := repo.FindByID(context.Background(), placed.ID)
	require.NoError(t, err)

	for _, order := range []*models.Order{byCode, byID} {
		require.Len(t, order.Items, 3)
		assert.Equal(t, "Paneer Wrap", order.Items[0].MenuItemName)
		assert.Equal(t, "Masala Dosa", order.Items[1].MenuItemName)
		assert.Equal(t, "Filter Coffee", order.Items[2].MenuItemName)

		require.Len(t, order.Items[1].Extras, 3)
		assert.Equal(t, "Ghee", order.Items[1].Extras[0].Name)
		assert.Equal(t, "Cheese", order.Items[1].Extras[1].Name)
		assert.Equal(t, "Jalapenos", order.Items[1].Extras[2].Name)
	}

	// row order must not depend on the database's scan order
	seen := queries()
	for _, table := range []string{"order_items", "order_item_extras"} {
		require.NotEmpty(t, seen[table], table)
		for _, sql := range seen[table] {
			assert.Contains(t, sql, "ORDER BY", table)
		}
	}
}

func TestRecordConflict_StoresEachContradictionOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewOrderRepository(db)
	order, payment := createOrder(t, repo, "ORD-0000A002", line("Masala Dosa", "80.00"))

	conflict := func(gatewayPaymentID string) *models.PaymentConflict {
		return &models.PaymentConflict{
			PaymentID:        payment.ID,
			OrderID:          order.ID,
			GatewayOrderID:   "order_gw1",
			GatewayPaymentID: gatewayPaymentID,
			CurrentStatus:    models.PaymentStatusPaid,
			IncomingStatus:   models.PaymentStatusFailed,
			GatewayStatus:    "failed",
			Payload:          `{"event":"payment.failed"}`,
		}
	}

	created, err := repo.RecordConflict(context.Background(), conflict("pay_002"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.RecordConflict(context.Background(), conflict("pay_002"))
	require.NoError(t, err)
	assert.False(t, created)

	created, err = repo.RecordConflict(context.Background(), conflict("pay_003"))
	require.NoError(t, err)
	assert.True(t, created)

	conflicts, err := repo.ListConflicts(context.Background(), payment.ID)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, "pay_002", conflicts[0].GatewayPaymentID)
	assert.Equal(t, "pay_003", conflicts[1].GatewayPaymentID)

	// the unique index also holds when the existence check is bypassed
	err = db.Create(conflict("pay_002")).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
