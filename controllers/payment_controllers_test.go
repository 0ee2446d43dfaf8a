package controllers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/cafe-orders/controllers"
	"github.com/yeremiapane/cafe-orders/models"
	"github.com/yeremiapane/cafe-orders/services"
	"github.com/yeremiapane/cafe-orders/utils"
)

type webhookReply struct {
	Outcome       string               `json:"outcome"`
	Message       string               `json:"message"`
	OrderCode     string               `json:"orderCode"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
}

func TestWebhook_CapturedThenReplay(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, "ONLINE")

	body, headers := signedWebhook(placed.GatewayOrderID, "pay_A1", "captured")
	w := env.do(t, http.MethodPost, "/api/payments/webhook", body, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reply webhookReply
	decode(t, w, &reply)
	assert.Equal(t, "applied", reply.Outcome)
	assert.Equal(t, placed.OrderCode, reply.OrderCode)
	assert.Equal(t, models.PaymentStatusPaid, reply.PaymentStatus)

	w = env.do(t, http.MethodGet, "/api/orders/track/"+placed.OrderCode, nil, nil)
	var track controllers.TrackOrderResponse
	decode(t, w, &track)
	assert.Equal(t, models.PaymentStatusPaid, track.PaymentStatus)

	w = env.do(t, http.MethodPost, "/api/payments/webhook", body, headers)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &reply)
	assert.Equal(t, "duplicate", reply.Outcome)
}

func TestWebhook_Rejections(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, "ONLINE")
	body, _ := signedWebhook(placed.GatewayOrderID, "pay_A1", "captured")

	tests := []struct {
		name    string
		body    []byte
		headers map[string]string
	}{
		{"no signature", body, nil},
		{"wrong signature", body, map[string]string{services.SignatureHeader: services.SignPayload("other", body)}},
		{"malformed", []byte(`{"event":"payment.captured"}`), map[string]string{
			services.SignatureHeader: services.SignPayload(webhookSecret, []byte(`{"event":"payment.captured"}`)),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/payments/webhook", tt.body, tt.headers)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var errBody utils.ErrorResponse
			decode(t, w, &errBody)
			assert.Equal(t, http.StatusBadRequest, errBody.Status)
		})
	}

	w := env.do(t, http.MethodGet, "/api/orders/track/"+placed.OrderCode, nil, nil)
	var track controllers.TrackOrderResponse
	decode(t, w, &track)
	assert.Equal(t, models.PaymentStatusPending, track.PaymentStatus)
}

func TestWebhook_UnknownOrderIsAcknowledged(t *testing.T) {
	env := newTestEnv(t)

	body, headers := signedWebhook("order_elsewhere", "pay_X", "captured")
	w := env.do(t, http.MethodPost, "/api/payments/webhook", body, headers)
	require.Equal(t, http.StatusOK, w.Code)
	var reply webhookReply
	decode(t, w, &reply)
	assert.Equal(t, "ignored", reply.Outcome)
}

func TestWebhook_ConflictIsAcknowledgedAndRecorded(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, "ONLINE")

	body, headers := signedWebhook(placed.GatewayOrderID, "pay_A1", "captured")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/payments/webhook", body, headers).Code)

	body, headers = signedWebhook(placed.GatewayOrderID, "pay_A2", "failed")
	w := env.do(t, http.MethodPost, "/api/payments/webhook", body, headers)
	require.Equal(t, http.StatusOK, w.Code)
	var reply webhookReply
	decode(t, w, &reply)
	assert.Equal(t, "conflict", reply.Outcome)
	assert.Equal(t, models.PaymentStatusPaid, reply.PaymentStatus)

	id := env.orderID(t, placed.OrderCode)
	w = env.do(t, http.MethodGet, fmt.Sprintf("/api/admin/orders/%d", id), nil, env.staff())
	require.Equal(t, http.StatusOK, w.Code)
	var detail controllers.OrderDetailResponse
	decode(t, w, &detail)
	assert.Equal(t, models.PaymentStatusPaid, detail.Order.PaymentStatus)
	require.Len(t, detail.Conflicts, 1)
	assert.Equal(t, models.PaymentStatusFailed, detail.Conflicts[0].IncomingStatus)
	assert.Equal(t, "pay_A2", detail.Conflicts[0].GatewayPaymentID)
}

func TestWebhookMetrics(t *testing.T) {
	env := newTestEnv(t)
	placed := env.placeOrder(t, "ONLINE")

	body, headers := signedWebhook(placed.GatewayOrderID, "pay_A1", "captured")
	env.do(t, http.MethodPost, "/api/payments/webhook", body, headers)
	env.do(t, http.MethodPost, "/api/payments/webhook", body, headers)
	env.do(t, http.MethodPost, "/api/payments/webhook", body, nil)

	w := env.do(t, http.MethodGet, "/api/admin/payments/webhook-metrics", nil, env.staff())
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Status bool                    `json:"status"`
		Data   services.PaymentMetrics `json:"data"`
	}
	decode(t, w, &resp)
	assert.True(t, resp.Status)
	assert.Equal(t, int64(3), resp.Data.Received)
	assert.Equal(t, int64(1), resp.Data.Applied)
	assert.Equal(t, int64(1), resp.Data.Duplicates)
	assert.Equal(t, int64(1), resp.Data.Rejected)
	assert.NotNil(t, resp.Data.LastEventAt)
}
