package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"catalog-import-service/internal/models"
)

// TokenAuth guards mutating endpoints with a static bearer token. Read-only
// endpoints such as import status polling stay public.
func TokenAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Authorization header required")
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			unauthorized(c, "Invalid authorization format")
			return
		}

		provided := authHeader[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			unauthorized(c, "Invalid token")
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Success: false,
		Error: models.Error{
			Code:    "UNAUTHORIZED",
			Message: message,
		},
	})
	c.Abort()
}
