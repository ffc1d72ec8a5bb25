package middlewares

import (
	"time"

	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// PaymentSecurityHeaders adds security headers for provider callbacks
func PaymentSecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		c.Next()
	}
}

// WebhookRateLimiter caps callback traffic from all providers together.
func WebhookRateLimiter() gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Every(50*time.Millisecond), 50)
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatus(429)
			return
		}
		c.Next()
	}
}

// WebhookLogger records every collaborator callback with its outcome.
func WebhookLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := logrus.Fields{
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"remote":   c.ClientIP(),
		}
		if c.Writer.Status() >= 400 {
			utils.ErrorLogger.WithFields(fields).Error("webhook rejected")
			return
		}
		utils.InfoLogger.WithFields(fields).Info("webhook accepted")
	}
}
