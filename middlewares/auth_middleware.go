package middlewares

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware accepts "Authorization: Bearer <jwt>" issued by the token endpoint.
func AuthMiddleware(issuer *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("authorization header missing"))
			c.Abort()
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid token format"))
			c.Abort()
			return
		}

		claims, err := issuer.ParseToken(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil || claims == nil {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid or expired token"))
			c.Abort()
			return
		}
		if claims.ClientID == "" {
			utils.RespondError(c, http.StatusUnauthorized, errors.New("invalid client id in token"))
			c.Abort()
			return
		}

		c.Set("client_id", claims.ClientID)
		c.Set("role", claims.Role)
		c.Next()
	}
}
