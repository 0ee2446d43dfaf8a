package models

import "time"

// OrderSnapshot is a detached, read-only copy of an order. It is what gets
// broadcast to dashboards, so it must not share slices with the entity.
type OrderSnapshot struct {
	ID            uint                `json:"id"`
	OrderCode     string              `json:"orderCode"`
	CustomerName  string              `json:"customerName"`
	CustomerPhone string              `json:"customerPhone"`
	TableNo       string              `json:"tableNo,omitempty"`
	Status        OrderStatus         `json:"status"`
	PaymentMode   PaymentMode         `json:"paymentMode"`
	PaymentStatus PaymentStatus       `json:"paymentStatus"`
	TotalAmount   string              `json:"totalAmount"`
	Version       uint                `json:"version"`
	Items         []OrderItemSnapshot `json:"items"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

type OrderItemSnapshot struct {
	MenuItemID uint            `json:"menuItemId"`
	Name       string          `json:"name"`
	UnitPrice  string          `json:"unitPrice"`
	Quantity   int             `json:"quantity"`
	LineTotal  string          `json:"lineTotal"`
	Extras     []ExtraSnapshot `json:"extras,omitempty"`
}

type ExtraSnapshot struct {
	ExtraIngredientID uint   `json:"extraIngredientId"`
	Name              string `json:"name"`
	Price             string `json:"price"`
}

func (o *Order) Snapshot() OrderSnapshot {
	items := make([]OrderItemSnapshot, 0, len(o.Items))
	for _, it := range o.Items {
		var extras []ExtraSnapshot
		for _, ex := range it.Extras {
			extras = append(extras, ExtraSnapshot{
				ExtraIngredientID: ex.ExtraIngredientID,
				Name:              ex.Name,
				Price:             ex.Price.StringFixed(2),
			})
		}
		items = append(items, OrderItemSnapshot{
			MenuItemID: it.MenuItemID,
			Name:       it.MenuItemName,
			UnitPrice:  it.UnitPrice.StringFixed(2),
			Quantity:   it.Quantity,
			LineTotal:  it.LineTotal.StringFixed(2),
			Extras:     extras,
		})
	}

	return OrderSnapshot{
		ID:            o.ID,
		OrderCode:     o.OrderCode,
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		TableNo:       o.TableNo,
		Status:        o.Status,
		PaymentMode:   o.PaymentMode,
		PaymentStatus: o.PaymentStatus,
		TotalAmount:   o.TotalAmount.StringFixed(2),
		Version:       o.Version,
		Items:         items,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}
