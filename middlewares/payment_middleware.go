package middlewares

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/cafe-orders/utils"
)

// MaxWebhookBody caps gateway callbacks; real events are a few KB.
const MaxWebhookBody = 64 << 10

// WebhookBodyLimit stops reading the request body after limit bytes.
func WebhookBodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > limit {
			utils.RespondErrorMessage(c, http.StatusRequestEntityTooLarge, "Webhook payload too large")
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

// LogWebhookRequest logs every gateway callback with its outcome.
func LogWebhookRequest() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		utils.InfoLogger.WithFields(logrus.Fields{
			"path":          c.Request.URL.Path,
			"status":        c.Writer.Status(),
			"duration":      time.Since(start).String(),
			"has_signature": c.GetHeader("X-Razorpay-Signature") != "",
			"request_id":    c.GetString(ContextRequestID),
		}).Info("Payment webhook request")
	}
}
