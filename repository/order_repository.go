package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/cafe-orders/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrVersionConflict    = errors.New("version conflict")
	ErrDuplicateOrderCode = errors.New("order code already taken")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateWithPayment writes the order, its items and extras, and the payment
// in a single transaction. Nothing is visible to other readers unless every
// insert succeeds.
func (r *OrderRepository) CreateWithPayment(ctx context.Context, order *models.Order, payment *models.Payment) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&models.Order{}).Where("order_code = ?", order.OrderCode).Count(&taken).Error; err != nil {
			return fmt.Errorf("failed to check order code: %w", err)
		}
		if taken > 0 {
			return ErrDuplicateOrderCode
		}

		if err := tx.Create(order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateOrderCode
			}
			return fmt.Errorf("failed to insert order: %w", err)
		}

		payment.OrderID = order.ID
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("failed to insert payment: %w", err)
		}
		return nil
	})
}

// withItems preloads items and their extras in insertion order.
func withItems(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Items.Extras", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
}

func (r *OrderRepository) FindByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	err := withItems(r.db.WithContext(ctx)).First(&order, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *OrderRepository) FindByCode(ctx context.Context, code string) (*models.Order, error) {
	var order models.Order
	err := withItems(r.db.WithContext(ctx)).Where("order_code = ?", code).First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *OrderRepository) FindPaymentByOrderID(ctx context.Context, orderID uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&payment).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

func (r *OrderRepository) FindPaymentByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("gateway_order_id = ?", gatewayOrderID).First(&payment).Error; err != nil {
		return nil, translate(err)
	}
	return &payment, nil
}

// UpdateStatus moves the order to status only if its version is still
// expectedVersion. A stale version yields ErrVersionConflict.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID, expectedVersion uint, status models.OrderStatus, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND version = ?", orderID, expectedVersion).
		Updates(map[string]interface{}{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// AttachGatewayOrderID stores the gateway session id on a payment that does
// not have one yet.
func (r *OrderRepository) AttachGatewayOrderID(ctx context.Context, paymentID, expectedVersion uint, gatewayOrderID string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND version = ? AND gateway_order_id IS NULL", paymentID, expectedVersion).
		Updates(map[string]interface{}{
			"gateway_order_id": gatewayOrderID,
			"version":          gorm.Expr("version + 1"),
			"updated_at":       now,
		})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("gateway order id %s already attached to another payment: %w", gatewayOrderID, res.Error)
		}
		return fmt.Errorf("failed to attach gateway order id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// Settlement describes one gateway outcome applied to a payment and
// projected onto its order. Both rows are guarded by the versions read
// before the write.
type Settlement struct {
	PaymentID        uint
	PaymentVersion   uint
	OrderID          uint
	OrderVersion     uint
	Status           models.PaymentStatus
	GatewayPaymentID string
	At               time.Time
}

func (r *OrderRepository) SettlePayment(ctx context.Context, s Settlement) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		paymentUpdates := map[string]interface{}{
			"payment_status": s.Status,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     s.At,
		}
		if s.GatewayPaymentID != "" {
			paymentUpdates["gateway_payment_id"] = s.GatewayPaymentID
		}

		res := tx.Model(&models.Payment{}).
			Where("id = ? AND version = ? AND payment_status = ?", s.PaymentID, s.PaymentVersion, models.PaymentStatusPending).
			Updates(paymentUpdates)
		if res.Error != nil {
			return fmt.Errorf("failed to settle payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}

		res = tx.Model(&models.Order{}).
			Where("id = ? AND version = ?", s.OrderID, s.OrderVersion).
			Updates(map[string]interface{}{
				"payment_status": s.Status,
				"version":        gorm.Expr("version + 1"),
				"updated_at":     s.At,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to project payment status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		return nil
	})
}

// RecordConflict stores the conflict unless the same contradiction (payment,
// incoming status, gateway payment id) is already on file. It reports whether
// a new row was written.
func (r *OrderRepository) RecordConflict(ctx context.Context, conflict *models.PaymentConflict) (bool, error) {
	db := r.db.WithContext(ctx)

	var seen int64
	err := db.Model(&models.PaymentConflict{}).
		Where("payment_id = ? AND incoming_status = ? AND gateway_payment_id = ?",
			conflict.PaymentID, conflict.IncomingStatus, conflict.GatewayPaymentID).
		Count(&seen).Error
	if err != nil {
		return false, fmt.Errorf("failed to check payment conflicts: %w", err)
	}
	if seen > 0 {
		return false, nil
	}

	if err := db.Create(conflict).Error; err != nil {
		// a parallel redelivery got there first
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return false, nil
		}
		return false, fmt.Errorf("failed to record payment conflict: %w", err)
	}
	return true, nil
}

func (r *OrderRepository) ListConflicts(ctx context.Context, paymentID uint) ([]models.PaymentConflict, error) {
	var conflicts []models.PaymentConflict
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).Order("id").Find(&conflicts).Error
	if err != nil {
		return nil, err
	}
	return conflicts, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
