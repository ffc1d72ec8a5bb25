package main

import (
	"context"
	"fmt"

	"github.com/aquadoks/sales-backend/config"
	"github.com/aquadoks/sales-backend/controllers"
	"github.com/aquadoks/sales-backend/hub"
	"github.com/aquadoks/sales-backend/messaging"
	"github.com/aquadoks/sales-backend/router"
	"github.com/aquadoks/sales-backend/services"
	"github.com/aquadoks/sales-backend/utils"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// application holds the wired router and the background workers main starts.
type application struct {
	Router  *gin.Engine
	Relay   *services.EventRelay
	Monitor *services.PaymentMonitor
	Rabbit  *messaging.RabbitMQClient
}

func newApplication(cfg *config.Config, db *gorm.DB, eventHub *hub.Hub) (*application, error) {
	// Services
	catalog := services.NewCatalogService(db)
	inventory := services.NewInventoryService(db, cfg.Reservation.TTL)
	pricing := services.NewPricingService(catalog, cfg.Pricing.DiscountThreshold, cfg.Pricing.DiscountRate)
	customers := services.NewCustomerService(db)
	chats := services.NewChatSessionService(db)
	deliveries := services.NewDeliveryService(db)
	notifications := services.NewNotificationService(db)

	var quoter services.DeliveryQuoter = services.TariffQuoter{
		BaseCost:       cfg.Delivery.BaseCost,
		PerPackCost:    cfg.Delivery.PerPackCost,
		FreeFromAmount: cfg.Delivery.FreeFromAmount,
	}
	if cfg.Delivery.APIURL != "" {
		quoter = services.NewHTTPDeliveryQuoter(cfg.Delivery.Provider, cfg.Delivery.APIURL, cfg.Delivery.APIKey, cfg.Delivery.RequestTimeout)
	}
	fulfillment := services.NewFulfillmentService(services.RoutingRules{
		HomeCity:      cfg.Routing.HomeCity,
		CityAliases:   cfg.Routing.CityAliases,
		Marketplaces:  cfg.Routing.Marketplaces,
		ExcludedZones: cfg.Delivery.ExcludedZones,
	}, quoter, pricing)

	orders := services.NewOrderService(db, pricing, inventory, customers, chats, fulfillment)
	providers, err := paymentProviders(cfg.Payment)
	if err != nil {
		return nil, err
	}
	payments := services.NewPaymentService(db, orders, cfg.Payment.LinkTTL, providers...)

	var embedder services.Embedder = services.NewHashEmbedder(cfg.Knowledge.Dimension)
	if cfg.Knowledge.EmbeddingAPIURL != "" {
		embedder = services.NewHTTPEmbedder(cfg.Knowledge.EmbeddingAPIURL, cfg.Knowledge.EmbeddingAPIKey,
			cfg.Knowledge.EmbeddingModel, cfg.Knowledge.Dimension)
	}
	knowledge := services.NewKnowledgeService(db, embedder, services.KnowledgeConfig{
		Dimension:    cfg.Knowledge.Dimension,
		IVFMinChunks: cfg.Knowledge.IVFMinChunks,
		IVFLists:     cfg.Knowledge.IVFLists,
		IVFProbe:     cfg.Knowledge.IVFProbe,
	})
	if n, err := services.SeedKnowledge(context.Background(), knowledge); err != nil {
		utils.ErrorLogger.Errorf("Failed to seed knowledge: %v", err)
	} else if n > 0 {
		utils.InfoLogger.Printf("Seeded %d knowledge chunks", n)
	}

	// Outbox relay: dashboards, operator inbox and, when configured, the broker.
	sinks := []services.EventSink{eventHub, notifications}
	var rabbit *messaging.RabbitMQClient
	if cfg.AMQP.URL != "" {
		rabbit = messaging.NewRabbitMQClient(messaging.RabbitMQConfig{URL: cfg.AMQP.URL, Exchange: cfg.AMQP.Exchange})
		if err := rabbit.Connect(); err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		node, err := snowflake.NewNode(cfg.AMQP.NodeID)
		if err != nil {
			return nil, fmt.Errorf("invalid SNOWFLAKE_NODE: %w", err)
		}
		sinks = append(sinks, messaging.NewPublisher(rabbit, node))
	}
	relay := services.NewEventRelay(db, sinks...)
	monitor := services.NewPaymentMonitor(payments, cfg.Payment.PollInterval, cfg.Payment.PollAfter)

	issuer := utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	r := router.SetupRouter(router.Controllers{
		Auth: controllers.NewAuthController(issuer,
			controllers.ClientCredential{ClientID: cfg.Auth.AgentClientID, SecretHash: cfg.Auth.AgentSecretHash, Role: utils.RoleAgent},
			controllers.ClientCredential{ClientID: cfg.Auth.AdminClientID, SecretHash: cfg.Auth.AdminSecretHash, Role: utils.RoleAdmin},
			controllers.ClientCredential{ClientID: cfg.Auth.DeliveryClientID, SecretHash: cfg.Auth.DeliverySecretHash, Role: utils.RoleDelivery},
		),
		Tools: controllers.NewToolController(controllers.ToolController{
			Catalog:     catalog,
			Inventory:   inventory,
			Pricing:     pricing,
			Orders:      orders,
			Fulfillment: fulfillment,
			Payments:    payments,
			Customers:   customers,
			Knowledge:   knowledge,
			Chats:       chats,
		}),
		Orders:        controllers.NewOrderController(orders),
		Inventory:     controllers.NewInventoryController(inventory),
		Knowledge:     controllers.NewKnowledgeController(knowledge),
		Payments:      controllers.NewPaymentController(payments, monitor),
		Delivery:      controllers.NewDeliveryController(deliveries),
		Chats:         controllers.NewChatController(chats),
		Hub:           controllers.NewHubController(eventHub),
		Notifications: controllers.NewNotificationController(notifications),
	}, issuer, cfg.Auth.CORSOrigin)

	return &application{Router: r, Relay: relay, Monitor: monitor, Rabbit: rabbit}, nil
}

// paymentProviders returns the configured gateways, the preferred one first.
func paymentProviders(cfg config.PaymentConfig) ([]services.PaymentProvider, error) {
	var robokassa, midtrans services.PaymentProvider
	if cfg.RobokassaLogin != "" {
		p := services.NewRobokassaProvider(services.RobokassaConfig{
			MerchantLogin: cfg.RobokassaLogin,
			Password1:     cfg.RobokassaPassword1,
			Password2:     cfg.RobokassaPassword2,
			TestMode:      cfg.RobokassaTestMode,
		})
		if err := p.ValidateConfig(); err != nil {
			return nil, fmt.Errorf("robokassa config: %w", err)
		}
		robokassa = p
	}
	if cfg.MidtransServerKey != "" {
		p := services.NewMidtransService(&services.MidtransConfig{
			ServerKey:    cfg.MidtransServerKey,
			IsProduction: cfg.MidtransProduction,
		})
		if err := p.ValidateConfig(); err != nil {
			return nil, fmt.Errorf("midtrans config: %w", err)
		}
		midtrans = p
	}

	var out []services.PaymentProvider
	if cfg.Provider == "midtrans" && midtrans != nil {
		out = append(out, midtrans)
		if robokassa != nil {
			out = append(out, robokassa)
		}
		return out, nil
	}
	if robokassa != nil {
		out = append(out, robokassa)
	}
	if midtrans != nil {
		out = append(out, midtrans)
	}
	if len(out) == 0 {
		utils.ErrorLogger.Warn("No payment provider configured; payment links are unavailable")
	}
	return out, nil
}
