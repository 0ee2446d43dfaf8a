package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/repository"
	"github.com/yeremiapane/cafe-orders/utils"
)

// UpdateStatus moves an order to target if the transition table allows it.
// Each attempt re-reads the order and re-validates, so a concurrent change
// is never overwritten.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uint, target models.OrderStatus) (*models.Order, error) {
	if !target.Valid() {
		return nil, validationErrorf("unknown order status %q", target)
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		order, err := s.repo.FindByID(ctx, orderID)
		if err != nil {
			return nil, s.lookupError(err, "order %d", orderID)
		}
		if err := checkTransition(order.Status, target); err != nil {
			return nil, err
		}

		now := time.Now()
		err = s.repo.UpdateStatus(ctx, order.ID, order.Version, target, now)
		if errors.Is(err, repository.ErrVersionConflict) {
			utils.InfoLogger.WithFields(logrus.Fields{
				"order_id": orderID,
				"attempt":  attempt + 1,
			}).Debug("Order changed concurrently, retrying status update")
			continue
		}
		if err != nil {
			utils.ErrorLogger.WithError(err).WithField("order_id", orderID).Error("Failed to update order status")
			return nil, fmt.Errorf("%w: failed to update order %d", ErrInternal, orderID)
		}

		previous := order.Status
		order.Status = target
		order.Version++
		order.UpdatedAt = now

		utils.InfoLogger.WithFields(logrus.Fields{
			"order_code": order.OrderCode,
			"from":       previous,
			"to":         target,
		}).Info("Order status updated")

		s.notifier.PublishStatusChanged(order.Snapshot())
		return order, nil
	}

	return nil, fmt.Errorf("%w: order %d was modified by another request", ErrConcurrentModification, orderID)
}

// CompleteOrder is UpdateStatus with COMPLETED as target.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	return s.UpdateStatus(ctx, orderID, models.OrderStatusCompleted)
}
