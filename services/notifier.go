package services

import (
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/utils"
)

// Notifier receives order events after they are durably stored. Calls must
// return quickly and must never fail the operation that triggered them.
type Notifier interface {
	PublishNewOrder(snapshot models.OrderSnapshot)
	PublishStatusChanged(snapshot models.OrderSnapshot)
	PublishRefreshHint()
}

// Notifiers fans every event out to each sink in turn. A panicking sink is
// logged and skipped.
type Notifiers []Notifier

func (n Notifiers) PublishNewOrder(snapshot models.OrderSnapshot) {
	for _, sink := range n {
		guard("new order", func() { sink.PublishNewOrder(snapshot) })
	}
}

func (n Notifiers) PublishStatusChanged(snapshot models.OrderSnapshot) {
	for _, sink := range n {
		guard("status changed", func() { sink.PublishStatusChanged(snapshot) })
	}
}

func (n Notifiers) PublishRefreshHint() {
	for _, sink := range n {
		guard("refresh hint", func() { sink.PublishRefreshHint() })
	}
}

func guard(event string, publish func()) {
	defer func() {
		if r := recover(); r != nil && utils.ErrorLogger != nil {
			utils.ErrorLogger.Errorf("Notifier panicked while publishing %s: %v", event, r)
		}
	}()
	publish()
}
