package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port     string
	GinMode  string
	LogLevel string

	DB DBConfig

	Pricing     PricingConfig
	Routing     RoutingConfig
	Delivery    DeliveryConfig
	Payment     PaymentConfig
	Reservation ReservationConfig
	Knowledge   KnowledgeConfig
	Auth        AuthConfig
	AMQP        AMQPConfig
}

type DBConfig struct {
	Driver   string // mysql, postgres, sqlite
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	Path     string // sqlite file
}

type PricingConfig struct {
	DiscountThreshold int64
	DiscountRate      decimal.Decimal
}

type RoutingConfig struct {
	HomeCity     string
	CityAliases  []string
	Marketplaces []string
}

type DeliveryConfig struct {
	Provider       string
	APIURL         string
	APIKey         string
	BaseCost       int64
	PerPackCost    int64
	FreeFromAmount int64
	ExcludedZones  []string
	RequestTimeout time.Duration
}

type PaymentConfig struct {
	Provider string // robokassa, midtrans

	RobokassaLogin     string
	RobokassaPassword1 string
	RobokassaPassword2 string
	RobokassaTestMode  bool

	MidtransServerKey  string
	MidtransProduction bool

	LinkTTL      time.Duration
	PollInterval time.Duration
	PollAfter    time.Duration
}

type ReservationConfig struct {
	TTL          time.Duration
	InitialStock int
}

type KnowledgeConfig struct {
	Dimension       int
	IVFMinChunks    int
	IVFLists        int
	IVFProbe        int
	EmbeddingAPIURL string
	EmbeddingAPIKey string
	EmbeddingModel  string
}

type AuthConfig struct {
	JWTSecret          string
	AgentClientID      string
	AgentSecretHash    string
	AdminClientID      string
	AdminSecretHash    string
	DeliveryClientID   string
	DeliverySecretHash string
	TokenTTL           time.Duration
	CORSOrigin         string
}

type AMQPConfig struct {
	URL      string
	Exchange string
	NodeID   int64
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	rate, err := decimal.NewFromString(getEnv("DISCOUNT_RATE", "0.10"))
	if err != nil {
		return nil, fmt.Errorf("invalid DISCOUNT_RATE: %w", err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("DISCOUNT_RATE must be within [0,1], got %s", rate)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "8080"),
		GinMode:  getEnv("GIN_MODE", "debug"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DB: DBConfig{
			Driver:   getEnv("DB_DRIVER", "mysql"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "aquadoks"),
			Path:     getEnv("DB_PATH", "aquadoks.db"),
		},
		Pricing: PricingConfig{
			DiscountThreshold: getEnvInt64("DISCOUNT_THRESHOLD", 5000),
			DiscountRate:      rate,
		},
		Routing: RoutingConfig{
			HomeCity: getEnv("HOME_CITY", "Санкт-Петербург"),
			CityAliases: getEnvList("HOME_CITY_ALIASES",
				"санкт-петербург,петербург,спб,питер,saint petersburg,st. petersburg,st petersburg,spb"),
			Marketplaces: getEnvList("MARKETPLACES", "Ozon,Wildberries,Яндекс.Маркет"),
		},
		Delivery: DeliveryConfig{
			Provider:       getEnv("DELIVERY_PROVIDER", "yandex"),
			APIURL:         getEnv("DELIVERY_API_URL", ""),
			APIKey:         getEnv("DELIVERY_API_KEY", ""),
			BaseCost:       getEnvInt64("DELIVERY_BASE_COST", 300),
			PerPackCost:    getEnvInt64("DELIVERY_PER_PACK_COST", 50),
			FreeFromAmount: getEnvInt64("DELIVERY_FREE_FROM", 10000),
			ExcludedZones:  getEnvList("DELIVERY_EXCLUDED_ZONES", "кронштадт,зеленогорск"),
			RequestTimeout: getEnvDuration("DELIVERY_TIMEOUT", 10*time.Second),
		},
		Payment: PaymentConfig{
			Provider:           getEnv("PAYMENT_PROVIDER", "robokassa"),
			RobokassaLogin:     getEnv("ROBOKASSA_MERCHANT_LOGIN", ""),
			RobokassaPassword1: getEnv("ROBOKASSA_PASSWORD_1", ""),
			RobokassaPassword2: getEnv("ROBOKASSA_PASSWORD_2", ""),
			RobokassaTestMode:  getEnvBool("ROBOKASSA_TEST_MODE", true),
			MidtransServerKey:  getEnv("MIDTRANS_SERVER_KEY", ""),
			MidtransProduction: getEnv("MIDTRANS_ENV", "") == "production",
			LinkTTL:            getEnvDuration("PAYMENT_LINK_TTL", 30*time.Minute),
			PollInterval:       getEnvDuration("PAYMENT_POLL_INTERVAL", time.Minute),
			PollAfter:          getEnvDuration("PAYMENT_POLL_AFTER", 5*time.Minute),
		},
		Reservation: ReservationConfig{
			TTL:          getEnvDuration("RESERVATION_TTL", 24*time.Hour),
			InitialStock: getEnvInt("INITIAL_STOCK_PACKS", 100),
		},
		Knowledge: KnowledgeConfig{
			Dimension:       getEnvInt("EMBEDDING_DIM", 256),
			IVFMinChunks:    getEnvInt("KNOWLEDGE_IVF_MIN_CHUNKS", 2000),
			IVFLists:        getEnvInt("KNOWLEDGE_IVF_LISTS", 32),
			IVFProbe:        getEnvInt("KNOWLEDGE_IVF_PROBE", 4),
			EmbeddingAPIURL: getEnv("EMBEDDING_API_URL", ""),
			EmbeddingAPIKey: getEnv("EMBEDDING_API_KEY", ""),
			EmbeddingModel:  getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", ""),
			AgentClientID:      getEnv("AGENT_CLIENT_ID", "agent"),
			AgentSecretHash:    getEnv("AGENT_SECRET_HASH", ""),
			AdminClientID:      getEnv("ADMIN_CLIENT_ID", "admin"),
			AdminSecretHash:    getEnv("ADMIN_SECRET_HASH", ""),
			DeliveryClientID:   getEnv("DELIVERY_CLIENT_ID", "delivery"),
			DeliverySecretHash: getEnv("DELIVERY_SECRET_HASH", ""),
			TokenTTL:           getEnvDuration("TOKEN_TTL", 24*time.Hour),
			CORSOrigin:         getEnv("CORS_ORIGIN", "*"),
		},
		AMQP: AMQPConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "aquadoks.events"),
			NodeID:   getEnvInt64("SNOWFLAKE_NODE", 1),
		},
	}

	if cfg.DB.Driver == "postgres" && os.Getenv("DB_PORT") == "" {
		cfg.DB.Port = 5432
	}
	if cfg.Knowledge.Dimension <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", cfg.Knowledge.Dimension)
	}
	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is not set")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if v, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvList(key, defaultValue string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, defaultValue), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
