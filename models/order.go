package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OrderCode     string          `gorm:"type:varchar(32);uniqueIndex;not null" json:"order_code"`
	CustomerName  string          `gorm:"type:varchar(50);not null" json:"customer_name"`
	CustomerPhone string          `gorm:"type:varchar(15);not null" json:"customer_phone"`
	TableNo       string          `gorm:"type:varchar(20)" json:"table_no"`
	Status        OrderStatus     `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentMode   PaymentMode     `gorm:"type:varchar(20);not null" json:"payment_mode"`
	PaymentStatus PaymentStatus   `gorm:"type:varchar(20);not null" json:"payment_status"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Version       uint            `gorm:"not null" json:"version"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
	Items         []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
}

// Recalculate reprices every line from its snapshot values and sums the
// order total. Amounts never depend on the live catalog.
func (o *Order) Recalculate() {
	total := decimal.Zero
	for i := range o.Items {
		o.Items[i].Recalculate()
		total = total.Add(o.Items[i].LineTotal)
	}
	o.TotalAmount = total
}
