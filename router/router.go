package router

import (
	"net/http"
	"time"

	"github.com/aquadoks/sales-backend/controllers"
	"github.com/aquadoks/sales-backend/middlewares"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/gin-gonic/gin"
)

// Controllers groups every handler the router mounts.
type Controllers struct {
	Auth      *controllers.AuthController
	Tools     *controllers.ToolController
	Orders    *controllers.OrderController
	Inventory *controllers.InventoryController
	Knowledge *controllers.KnowledgeController
	Payments  *controllers.PaymentController
	Delivery  *controllers.DeliveryController
	Chats     *controllers.ChatController
	Hub       *controllers.HubController

	Notifications *controllers.NotificationController
}

func SetupRouter(ctrl Controllers, issuer *utils.TokenIssuer, corsOrigin string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Apply security middlewares
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(corsOrigin))
	r.Use(middlewares.LoggerMiddleware())

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	public := r.Group("/api/v1/auth")
	public.Use(middlewares.NewStrictRateLimiter())
	{
		public.POST("/token", ctrl.Auth.IssueToken)
	}

	// Provider callbacks are authenticated by their signatures.
	webhooks := r.Group("/api/v1/payments")
	webhooks.Use(middlewares.PaymentSecurityHeaders(), middlewares.WebhookRateLimiter(), middlewares.WebhookLogger())
	{
		webhooks.POST("/robokassa/result", ctrl.Payments.RobokassaResult)
		webhooks.POST("/midtrans/notification", ctrl.Payments.MidtransNotification)
	}

	ws := r.Group("/ws")
	ws.Use(middlewares.WebSocketAuthMiddleware(issuer))
	{
		ws.GET("/events", ctrl.Hub.EventsHandler)
	}

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	api := r.Group("/api/v1")
	api.Use(middlewares.AuthMiddleware(issuer))
	api.Use(middlewares.NewRateLimiter(100*time.Millisecond, 50).RateLimit())

	// Agent tools
	tools := api.Group("/tools")
	tools.Use(middlewares.RoleCheck(utils.RoleAgent), middlewares.ToolCallLogger())
	{
		tools.GET("", ctrl.Tools.ListTools)
		tools.POST("/call", ctrl.Tools.CallTool)
		tools.POST("/:tool", ctrl.Tools.InvokeTool)
	}
	api.POST("/chats/close", middlewares.RoleCheck(utils.RoleAgent), ctrl.Chats.CloseChat)

	// Courier integration
	api.POST("/deliveries", middlewares.RoleCheck(utils.RoleDelivery), ctrl.Delivery.RecordUpdate)

	// Operators
	admin := api.Group("/admin")
	admin.Use(middlewares.RoleCheck(utils.RoleAdmin))
	{
		admin.GET("/orders", ctrl.Orders.ListOrders)
		admin.GET("/orders/:id", ctrl.Orders.GetOrder)
		admin.POST("/orders/:id/advance", ctrl.Orders.AdvanceOrder)
		admin.POST("/orders/:id/cancel", ctrl.Orders.CancelOrder)
		admin.POST("/orders/:id/mark-paid", ctrl.Orders.MarkPaid)
		admin.GET("/orders/:id/deliveries", ctrl.Delivery.ListForOrder)

		admin.GET("/inventory", ctrl.Inventory.GetStock)
		admin.POST("/inventory/:sku/restock", ctrl.Inventory.Restock)
		admin.GET("/reservations/stale", ctrl.Inventory.StaleReservations)
		admin.POST("/reservations/:id/release", ctrl.Inventory.ReleaseReservation)

		admin.POST("/knowledge", ctrl.Knowledge.UpsertChunk)
		admin.GET("/knowledge/stats", ctrl.Knowledge.Stats)

		admin.GET("/chats/:id/messages", ctrl.Chats.Messages)
		admin.GET("/payments/monitor", ctrl.Payments.Metrics)

		admin.GET("/notifications", ctrl.Notifications.GetAllNotifications)
		admin.PATCH("/notifications/:notif_id/read", ctrl.Notifications.MarkRead)
	}

	return r
}
