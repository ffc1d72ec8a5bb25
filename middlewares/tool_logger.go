package middlewares

import (
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

// ToolCallLogger logs each agent tool invocation and whether it succeeded.
func ToolCallLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		tool := c.Param("tool")
		if tool == "" {
			tool = "call"
		}
		clientID, _ := c.Get("client_id")

		c.Next()

		entry := utils.InfoLogger.WithField("tool", tool).WithField("client_id", clientID).WithField("status", c.Writer.Status())
		if c.Writer.Status() >= 500 {
			utils.ErrorLogger.WithField("tool", tool).WithField("status", c.Writer.Status()).Error("tool call failed")
			return
		}
		entry.Info("tool call")
	}
}
