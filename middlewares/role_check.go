package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/cafe-orders/utils"
)

// RequireRoles must run after AuthMiddleware or WebSocketAuthMiddleware.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(c *gin.Context) {
		userRole, exists := c.Get(ContextRole)
		if !exists {
			utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		role, _ := userRole.(string)
		if !allowed[role] {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("role %s is not allowed to access this resource", role))
			c.Abort()
			return
		}
		c.Next()
	}
}
