package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/repository"
	"github.com/yeremiapane/cafe-orders/utils"
)

const (
	SignatureHeader = "X-Razorpay-Signature"

	gatewayStatusCaptured = "captured"
)

type WebhookConfig struct {
	Secret string
	// AllowUnsigned accepts events without a signature header. Events that
	// do carry a signature are always verified.
	AllowUnsigned bool
	MaxRetries    int
}

type WebhookOutcome string

const (
	OutcomeApplied   WebhookOutcome = "applied"
	OutcomeDuplicate WebhookOutcome = "duplicate"
	OutcomeConflict  WebhookOutcome = "conflict"
)

type WebhookResult struct {
	Outcome        WebhookOutcome       `json:"outcome"`
	OrderCode      string               `json:"orderCode,omitempty"`
	GatewayOrderID string               `json:"gatewayOrderId"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus"`
}

// PaymentEvent is the part of a gateway webhook the reconciler acts on.
type PaymentEvent struct {
	Event            string
	GatewayOrderID   string
	GatewayPaymentID string
	Status           string
}

// Outcome maps the gateway status onto a payment status. Only "captured"
// counts as paid.
func (e *PaymentEvent) Outcome() models.PaymentStatus {
	if strings.EqualFold(e.Status, gatewayStatusCaptured) {
		return models.PaymentStatusPaid
	}
	return models.PaymentStatusFailed
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload *struct {
		Payment *struct {
			Entity *struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func ParsePaymentEvent(payload []byte) (*PaymentEvent, error) {
	var hook razorpayWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if hook.Payload == nil || hook.Payload.Payment == nil || hook.Payload.Payment.Entity == nil {
		return nil, fmt.Errorf("%w: payment entity missing", ErrMalformedPayload)
	}

	entity := hook.Payload.Payment.Entity
	event := &PaymentEvent{
		Event:            hook.Event,
		GatewayOrderID:   strings.TrimSpace(entity.OrderID),
		GatewayPaymentID: strings.TrimSpace(entity.ID),
		Status:           strings.TrimSpace(entity.Status),
	}
	switch {
	case event.GatewayOrderID == "":
		return nil, fmt.Errorf("%w: order_id missing", ErrMalformedPayload)
	case event.Status == "":
		return nil, fmt.Errorf("%w: status missing", ErrMalformedPayload)
	case event.Outcome() == models.PaymentStatusPaid && event.GatewayPaymentID == "":
		return nil, fmt.Errorf("%w: captured payment without id", ErrMalformedPayload)
	}
	return event, nil
}

// SignPayload returns the hex HMAC-SHA256 of payload, the value the gateway
// sends in SignatureHeader.
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// PaymentReconciler applies gateway payment events to payments and their
// orders. It is the only writer of PAID.
type PaymentReconciler struct {
	repo       *repository.OrderRepository
	notifier   Notifier
	monitor    *PaymentMonitor
	cfg        WebhookConfig
	maxRetries int
}

func NewPaymentReconciler(repo *repository.OrderRepository, notifier Notifier, monitor *PaymentMonitor, cfg WebhookConfig) *PaymentReconciler {
	if notifier == nil {
		notifier = Notifiers(nil)
	}
	if monitor == nil {
		monitor = NewPaymentMonitor()
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	if cfg.AllowUnsigned {
		utils.InfoLogger.Warn("Unsigned payment webhooks are accepted; enable only for local testing")
	}
	return &PaymentReconciler{
		repo:       repo,
		notifier:   notifier,
		monitor:    monitor,
		cfg:        cfg,
		maxRetries: retries,
	}
}

func (r *PaymentReconciler) Monitor() *PaymentMonitor {
	return r.monitor
}

// VerifySignature checks signature against the raw payload in constant time.
func (r *PaymentReconciler) VerifySignature(payload []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if signature == "" {
		if r.cfg.AllowUnsigned {
			utils.InfoLogger.Warn("Accepting payment webhook without signature")
			return nil
		}
		return fmt.Errorf("%w: signature header missing", ErrSignatureInvalid)
	}
	if r.cfg.Secret == "" {
		return fmt.Errorf("%w: no webhook secret configured", ErrSignatureInvalid)
	}

	expected := SignPayload(r.cfg.Secret, payload)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrSignatureInvalid
	}
	return nil
}

// HandleWebhook authenticates, parses and applies one gateway event.
//
// A replay of an already applied outcome returns OutcomeDuplicate without
// writing. An event contradicting a settled payment is recorded for
// review, left unapplied, and reported as ErrConflictingEvent together with
// an OutcomeConflict result. Unknown gateway orders return ErrNotFound.
func (r *PaymentReconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	r.monitor.received()

	if err := r.VerifySignature(payload, signature); err != nil {
		r.monitor.rejected()
		utils.InfoLogger.WithError(err).Warn("Rejected payment webhook")
		return nil, err
	}
	event, err := ParsePaymentEvent(payload)
	if err != nil {
		r.monitor.rejected()
		utils.InfoLogger.WithError(err).Warn("Rejected payment webhook")
		return nil, err
	}

	logger := utils.InfoLogger.WithFields(logrus.Fields{
		"gateway_order_id":   event.GatewayOrderID,
		"gateway_payment_id": event.GatewayPaymentID,
		"gateway_status":     event.Status,
	})
	target := event.Outcome()

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		payment, err := r.repo.FindPaymentByGatewayOrderID(ctx, event.GatewayOrderID)
		if errors.Is(err, repository.ErrNotFound) {
			r.monitor.unknown()
			logger.Warn("Webhook for unknown gateway order ignored")
			return nil, fmt.Errorf("%w: no payment for gateway order %s", ErrNotFound, event.GatewayOrderID)
		}
		if err != nil {
			return nil, r.internal(err, "failed to load payment")
		}

		if payment.PaymentStatus.IsTerminal() {
			if payment.PaymentStatus == target {
				if event.GatewayPaymentID != "" && payment.GatewayPaymentID != nil && *payment.GatewayPaymentID != event.GatewayPaymentID {
					logger.WithField("stored_payment_id", *payment.GatewayPaymentID).
						Warn("Duplicate outcome carries a different payment id; keeping the stored one")
				}
				r.monitor.duplicate()
				logger.Info("Duplicate payment webhook, nothing to apply")
				return &WebhookResult{
					Outcome:        OutcomeDuplicate,
					GatewayOrderID: event.GatewayOrderID,
					PaymentStatus:  payment.PaymentStatus,
				}, nil
			}
			return r.recordConflict(ctx, payment, event, target, payload)
		}

		order, err := r.repo.FindByID(ctx, payment.OrderID)
		if err != nil {
			return nil, r.internal(err, "failed to load order")
		}

		now := time.Now()
		err = r.repo.SettlePayment(ctx, repository.Settlement{
			PaymentID:        payment.ID,
			PaymentVersion:   payment.Version,
			OrderID:          order.ID,
			OrderVersion:     order.Version,
			Status:           target,
			GatewayPaymentID: event.GatewayPaymentID,
			At:               now,
		})
		if errors.Is(err, repository.ErrVersionConflict) {
			logger.WithField("attempt", attempt+1).Debug("Payment or order changed concurrently, retrying")
			continue
		}
		if err != nil {
			return nil, r.internal(err, "failed to settle payment")
		}

		order.PaymentStatus = target
		order.Version++
		order.UpdatedAt = now

		r.monitor.applied()
		logger.WithFields(logrus.Fields{
			"order_code":     order.OrderCode,
			"payment_status": target,
		}).Info("Payment webhook applied")

		r.notifier.PublishStatusChanged(order.Snapshot())
		return &WebhookResult{
			Outcome:        OutcomeApplied,
			OrderCode:      order.OrderCode,
			GatewayOrderID: event.GatewayOrderID,
			PaymentStatus:  target,
		}, nil
	}

	r.monitor.failed()
	return nil, fmt.Errorf("%w: payment for gateway order %s", ErrConcurrentModification, event.GatewayOrderID)
}

func (r *PaymentReconciler) recordConflict(ctx context.Context, payment *models.Payment, event *PaymentEvent, incoming models.PaymentStatus, payload []byte) (*WebhookResult, error) {
	conflict := &models.PaymentConflict{
		PaymentID:        payment.ID,
		OrderID:          payment.OrderID,
		GatewayOrderID:   event.GatewayOrderID,
		GatewayPaymentID: event.GatewayPaymentID,
		CurrentStatus:    payment.PaymentStatus,
		IncomingStatus:   incoming,
		GatewayStatus:    event.Status,
		Payload:          string(payload),
	}
	created, err := r.repo.RecordConflict(ctx, conflict)
	if err != nil {
		return nil, r.internal(err, "failed to record payment conflict")
	}

	fields := logrus.Fields{
		"payment_id":         payment.ID,
		"order_id":           payment.OrderID,
		"gateway_order_id":   event.GatewayOrderID,
		"gateway_payment_id": event.GatewayPaymentID,
		"current_status":     payment.PaymentStatus,
		"incoming_status":    incoming,
	}
	if created {
		r.monitor.conflict()
		utils.ErrorLogger.WithFields(fields).Error("Conflicting payment webhook needs manual reconciliation")
		r.notifier.PublishRefreshHint()
	} else {
		r.monitor.duplicate()
		utils.InfoLogger.WithFields(fields).Info("Conflicting payment webhook redelivered, already recorded")
	}

	result := &WebhookResult{
		Outcome:        OutcomeConflict,
		GatewayOrderID: event.GatewayOrderID,
		PaymentStatus:  payment.PaymentStatus,
	}
	return result, fmt.Errorf("%w: payment %d is %s, gateway reported %s",
		ErrConflictingEvent, payment.ID, payment.PaymentStatus, event.Status)
}

func (r *PaymentReconciler) internal(err error, msg string) error {
	r.monitor.failed()
	utils.ErrorLogger.WithError(err).Error(msg)
	return fmt.Errorf("%w: %s", ErrInternal, msg)
}
