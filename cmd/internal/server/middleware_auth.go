package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zhukovvlad/residence-go/cmd/internal/services/auth"
)

const (
	ctxTenantID   = "tenant_id"
	ctxOperatorID = "operator_id"
	ctxRole       = "role"
)

// AuthMiddleware проверяет Bearer JWT оператора и кладёт tenant_id, operator_id и role в gin.Context
func AuthMiddleware(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "access token not found"})
			return
		}

		claims, err := tokens.ValidateAccessToken(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse(err))
			return
		}

		c.Set(ctxTenantID, claims.TenantID)
		c.Set(ctxOperatorID, claims.OperatorID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}
