package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/cafe-orders/utils"
)

// Context keys set by the auth middlewares
const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			c.Abort()
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("Authorization header must use the Bearer scheme"))
			c.Abort()
			return
		}

		authenticate(c, strings.TrimPrefix(authHeader, "Bearer "))
	}
}

func authenticate(c *gin.Context, tokenString string) {
	claims, err := utils.ParseToken(tokenString)
	if err != nil || claims == nil {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
		c.Abort()
		return
	}
	if claims.UserID == 0 {
		utils.RespondError(c, http.StatusUnauthorized, errors.New("Invalid user ID in token"))
		c.Abort()
		return
	}

	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextRole, claims.Role)
	c.Next()
}
