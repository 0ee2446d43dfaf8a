package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yeremiapane/cafe-orders/models"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrTerminalState          = errors.New("order is in a terminal state")
	ErrItemUnavailable        = errors.New("menu item unavailable")
	ErrExtraUnavailable       = errors.New("extra ingredient unavailable")
	ErrSignatureInvalid       = errors.New("invalid webhook signature")
	ErrMalformedPayload       = errors.New("malformed webhook payload")
	ErrConflictingEvent       = errors.New("conflicting payment event")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrGateway                = errors.New("payment gateway error")
	ErrInternal               = errors.New("internal error")
)

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// TransitionError reports a rejected status change. It matches
// ErrTerminalState when the order was already finished and
// ErrInvalidTransition otherwise.
type TransitionError struct {
	Current   models.OrderStatus
	Requested models.OrderStatus
	Allowed   []models.OrderStatus
}

func (e *TransitionError) Error() string {
	if e.Current.IsTerminal() {
		return fmt.Sprintf("Order is already %s and cannot transition to %s", e.Current, e.Requested)
	}
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("Invalid status transition from %s to %s. Allowed transitions: [%s]",
		e.Current, e.Requested, strings.Join(allowed, ", "))
}

func (e *TransitionError) Is(target error) bool {
	if e.Current.IsTerminal() {
		return target == ErrTerminalState
	}
	return target == ErrInvalidTransition
}

func checkTransition(current, requested models.OrderStatus) error {
	if current.IsTerminal() || !current.CanTransitionTo(requested) {
		return &TransitionError{
			Current:   current,
			Requested: requested,
			Allowed:   current.AllowedTransitions(),
		}
	}
	return nil
}

// PaymentInitiationError is returned when the order was stored but the
// gateway session could not be opened. Result holds the placed order.
type PaymentInitiationError struct {
	Result *PlaceOrderResult
	Err    error
}

func (e *PaymentInitiationError) Error() string {
	return "order placed but payment initiation failed: " + e.Err.Error()
}

func (e *PaymentInitiationError) Unwrap() error {
	return e.Err
}
