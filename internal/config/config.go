package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Gateway   GatewayConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Sweep     SweepConfig
}

// GatewayConfig carries credentials and endpoints for the hosted checkout provider.
type GatewayConfig struct {
	Provider      string
	BaseURL       string
	APIVersion    string
	AppID         string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration

	// WebhookTolerance bounds the accepted skew of the webhook timestamp header. Zero disables the check.
	WebhookTolerance time.Duration
	// WebhookInsecureSkipVerify is only honored outside production, see AllowInsecureWebhooks.
	WebhookInsecureSkipVerify bool
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	CheckoutRate     float64
	CheckoutBurst    int
	OrderLookupRate  float64
	OrderLookupBurst int
	ReconcileLockTTL time.Duration
}

// SweepConfig drives the background re-verification of donations stuck in pending.
type SweepConfig struct {
	Enabled      bool
	Interval     time.Duration
	PendingAge   time.Duration
	RecheckAfter time.Duration
	BatchSize    int
	AbandonAfter time.Duration
}

const (
	EnvironmentProduction = "production"

	DefaultGatewayProvider   = "cashfree"
	DefaultGatewayBaseURL    = "https://sandbox.cashfree.com"
	DefaultGatewayAPIVersion = "2023-08-01"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCheckoutConfigHolder),
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	secretKey := strings.TrimSpace(getenv("GATEWAY_SECRET_KEY", ""))

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "seva"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "seva"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),

		Gateway: GatewayConfig{
			Provider:                  strings.ToLower(strings.TrimSpace(getenv("GATEWAY_PROVIDER", DefaultGatewayProvider))),
			BaseURL:                   strings.TrimRight(strings.TrimSpace(getenv("GATEWAY_BASE_URL", DefaultGatewayBaseURL)), "/"),
			APIVersion:                strings.TrimSpace(getenv("GATEWAY_API_VERSION", DefaultGatewayAPIVersion)),
			AppID:                     strings.TrimSpace(getenv("GATEWAY_APP_ID", "")),
			SecretKey:                 secretKey,
			WebhookSecret:             strings.TrimSpace(getenv("GATEWAY_WEBHOOK_SECRET", secretKey)),
			Timeout:                   time.Duration(getenvInt("GATEWAY_TIMEOUT_SECONDS", 10)) * time.Second,
			WebhookTolerance:          time.Duration(getenvInt("WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,
			WebhookInsecureSkipVerify: getenvBool("WEBHOOK_INSECURE_SKIP_VERIFY", false),
		},
		Redis: RedisConfig{
			Enabled:  getenvBool("REDIS_ENABLED", false),
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "localhost:6379")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			CheckoutRate:     getenvFloat("CHECKOUT_RATE", 1),
			CheckoutBurst:    getenvInt("CHECKOUT_BURST", 5),
			OrderLookupRate:  getenvFloat("ORDER_LOOKUP_RATE", 0.2),
			OrderLookupBurst: getenvInt("ORDER_LOOKUP_BURST", 10),
			ReconcileLockTTL: time.Duration(getenvInt("RECONCILE_LOCK_TTL_SECONDS", 10)) * time.Second,
		},
		Sweep: SweepConfig{
			Enabled:      getenvBool("SWEEP_ENABLED", true),
			Interval:     time.Duration(getenvInt("SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
			PendingAge:   time.Duration(getenvInt("SWEEP_PENDING_AGE_SECONDS", 900)) * time.Second,
			RecheckAfter: time.Duration(getenvInt("SWEEP_RECHECK_SECONDS", 600)) * time.Second,
			BatchSize:    getenvInt("SWEEP_BATCH_SIZE", 50),
			AbandonAfter: time.Duration(getenvInt("SWEEP_ABANDON_SECONDS", 86400)) * time.Second,
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), EnvironmentProduction)
}

// AllowInsecureWebhooks reports whether signature verification may be skipped.
// It is never true in production, regardless of the flag.
func (c Config) AllowInsecureWebhooks() bool {
	if c.IsProduction() {
		return false
	}
	return c.Gateway.WebhookInsecureSkipVerify
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
