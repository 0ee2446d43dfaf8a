package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderItem is a priced line. Name and price are copied from the catalog at
// placement time and never refreshed.
type OrderItem struct {
	ID           uint             `gorm:"primaryKey" json:"id"`
	OrderID      uint             `gorm:"index;not null" json:"order_id"`
	MenuItemID   uint             `gorm:"not null" json:"menu_item_id"`
	MenuItemName string           `gorm:"type:varchar(255);not null" json:"menu_item_name"`
	UnitPrice    decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	Quantity     int              `gorm:"not null" json:"quantity"`
	LineTotal    decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"line_total"`
	Extras       []OrderItemExtra `gorm:"foreignKey:OrderItemID" json:"extras"`
	CreatedAt    time.Time        `json:"created_at"`
}

type OrderItemExtra struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	OrderItemID       uint            `gorm:"index;not null" json:"order_item_id"`
	ExtraIngredientID uint            `gorm:"not null" json:"extra_ingredient_id"`
	Name              string          `gorm:"type:varchar(255);not null" json:"name"`
	Price             decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
}

// Recalculate sets LineTotal = (UnitPrice + sum of extra prices) x Quantity.
func (i *OrderItem) Recalculate() {
	unit := i.UnitPrice
	for _, extra := range i.Extras {
		unit = unit.Add(extra.Price)
	}
	i.LineTotal = unit.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
