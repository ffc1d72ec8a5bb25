package middlewares

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// corsHeaders are the request headers the dashboard and agent clients send.
// Provider webhooks are server to server and never preflight.
var corsHeaders = []string{
	"Authorization",
	"Content-Type",
	"Accept",
	"X-Requested-With",
	"Sec-WebSocket-Protocol",
}

var corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}

// CORSMiddlewares allows the operator dashboard origin. Tokens travel in the
// Authorization header, so credentials mode is not enabled.
func CORSMiddlewares(allowOrigin string) gin.HandlerFunc {
	allowHeaders := strings.Join(corsHeaders, ", ")
	allowMethods := strings.Join(corsMethods, ", ")
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", allowOrigin)
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
