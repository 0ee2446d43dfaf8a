package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment tracks the gateway side of one order. It points at its order by
// id only; PaymentStatus here is authoritative and Order.PaymentStatus is a
// projection of it.
type Payment struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	OrderID          uint            `gorm:"uniqueIndex;not null" json:"order_id"`
	PaymentMode      PaymentMode     `gorm:"type:varchar(20);not null" json:"payment_mode"`
	PaymentStatus    PaymentStatus   `gorm:"type:varchar(20);not null" json:"payment_status"`
	GatewayOrderID   *string         `gorm:"type:varchar(64);uniqueIndex" json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string         `gorm:"type:varchar(64)" json:"gateway_payment_id,omitempty"`
	Amount           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Version          uint            `gorm:"not null" json:"version"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PaymentConflict records a gateway event that contradicted an already
// settled payment. Rows are written for operators and never applied; a
// redelivered contradiction is stored once.
type PaymentConflict struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	PaymentID        uint          `gorm:"uniqueIndex:idx_payment_conflict_event;not null" json:"payment_id"`
	OrderID          uint          `gorm:"index;not null" json:"order_id"`
	GatewayOrderID   string        `gorm:"type:varchar(64);not null" json:"gateway_order_id"`
	GatewayPaymentID string        `gorm:"type:varchar(64);not null;uniqueIndex:idx_payment_conflict_event" json:"gateway_payment_id"`
	CurrentStatus    PaymentStatus `gorm:"type:varchar(20);not null" json:"current_status"`
	IncomingStatus   PaymentStatus `gorm:"type:varchar(20);not null;uniqueIndex:idx_payment_conflict_event" json:"incoming_status"`
	GatewayStatus    string        `gorm:"type:varchar(32)" json:"gateway_status"`
	Payload          string        `gorm:"type:text" json:"payload"`
	CreatedAt        time.Time     `json:"created_at"`
}
