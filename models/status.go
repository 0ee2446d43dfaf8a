package models

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

type PaymentMode string

const (
	PaymentModeCashOnDelivery PaymentMode = "CASH_ON_DELIVERY"
	PaymentModeOnline         PaymentMode = "ONLINE"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

// orderTransitions lists, per status, every status an order may move to next.
// Terminal statuses map to an empty set.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusNew:       {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing: {OrderStatusReady, OrderStatusCancelled},
	OrderStatusReady:     {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// AllowedTransitions returns a copy of the targets reachable from s.
func (s OrderStatus) AllowedTransitions() []OrderStatus {
	targets := orderTransitions[s]
	out := make([]OrderStatus, len(targets))
	copy(out, targets)
	return out
}

func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, t := range orderTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (m PaymentMode) Valid() bool {
	return m == PaymentModeCashOnDelivery || m == PaymentModeOnline
}

// IsTerminal reports whether the gateway has already settled the payment.
func (p PaymentStatus) IsTerminal() bool {
	return p == PaymentStatusPaid || p == PaymentStatusFailed
}
