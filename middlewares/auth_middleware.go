package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/kitchen-display/utils"
)

const (
	ContextUserID = "userID"
	ContextRole   = "role"
)

func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.AbortError(c, http.StatusUnauthorized, errors.New("Authorization header missing"))
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.AbortError(c, http.StatusUnauthorized, errors.New("format token tidak valid"))
			return
		}

		claims, err := utils.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil || claims == nil {
			utils.AbortError(c, http.StatusUnauthorized, errors.New("Invalid or expired token"))
			return
		}
		if claims.Role == "" {
			utils.AbortError(c, http.StatusUnauthorized, errors.New("token tanpa role"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}
