package middlewares

import (
	"time"

	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LoggerMiddleware writes one structured line per request. The query string is
// dropped when it carries a websocket token.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" && c.Query("token") == "" {
			path += "?" + raw
		}

		c.Next()

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"path":    path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		}
		if clientID, ok := c.Get("client_id"); ok {
			fields["client_id"] = clientID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		if c.Writer.Status() >= 500 {
			utils.ErrorLogger.WithFields(fields).Error("request failed")
			return
		}
		utils.InfoLogger.WithFields(fields).Info("request")
	}
}
