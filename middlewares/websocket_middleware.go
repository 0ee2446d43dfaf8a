package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/cafe-orders/utils"
)

// WebSocketAuthMiddleware reads the token from ?token= because browsers
// cannot set headers on the upgrade request.
func WebSocketAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("token query parameter missing"))
			c.Abort()
			return
		}
		authenticate(c, token)
	}
}
