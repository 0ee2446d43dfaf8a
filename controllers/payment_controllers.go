package controllers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/cafe-orders/services"
	"github.com/yeremiapane/cafe-orders/utils"
)

// OutcomeIgnored is reported for events about gateway orders we never issued.
const OutcomeIgnored services.WebhookOutcome = "ignored"

type PaymentController struct {
	Reconciler *services.PaymentReconciler
}

func NewPaymentController(reconciler *services.PaymentReconciler) *PaymentController {
	return &PaymentController{Reconciler: reconciler}
}

type WebhookResponse struct {
	Outcome services.WebhookOutcome `json:"outcome"`
	Message string                  `json:"message"`
	*services.WebhookResult
}

// HandleWebhook -> POST /api/payments/webhook
//
// 2xx tells the gateway to stop redelivering, so every resolved outcome is
// acknowledged, including conflicts and unknown orders. Only bad signatures
// or payloads get 400, and only transient failures get 500.
func (pc *PaymentController) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.RespondErrorMessage(c, http.StatusBadRequest, "Unable to read webhook payload")
		return
	}

	result, err := pc.Reconciler.HandleWebhook(c.Request.Context(), payload, c.GetHeader(services.SignatureHeader))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, WebhookResponse{Outcome: result.Outcome, Message: "Webhook processed", WebhookResult: result})
	case errors.Is(err, services.ErrSignatureInvalid):
		utils.RespondErrorMessage(c, http.StatusBadRequest, "Invalid webhook signature")
	case errors.Is(err, services.ErrMalformedPayload):
		utils.RespondError(c, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusOK, WebhookResponse{Outcome: OutcomeIgnored, Message: "Unknown gateway order"})
	case errors.Is(err, services.ErrConflictingEvent):
		c.JSON(http.StatusOK, WebhookResponse{Outcome: services.OutcomeConflict, Message: "Conflicting event recorded for review", WebhookResult: result})
	default:
		c.Error(err)
		utils.RespondErrorMessage(c, http.StatusInternalServerError, "Webhook could not be processed, please retry")
	}
}

// WebhookMetrics -> GET /api/admin/payments/webhook-metrics
func (pc *PaymentController) WebhookMetrics(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "Payment webhook metrics", pc.Reconciler.Monitor().GetMetrics())
}
