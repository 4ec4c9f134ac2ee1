package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Booking  BookingConfig
	Payment  PaymentConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Metrics  MetricsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string // development, staging, production
	LogLevel        string // debug, info, warn, error
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	QueryTimeout       time.Duration
}

// JWTConfig holds JWT-related configuration. Tokens are issued by the
// identity service; this service only verifies them.
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds seat-hold and reconciliation settings
type BookingConfig struct {
	SeatHoldWindow    time.Duration // how long a reserved seat stays held without payment
	BookingHoldWindow time.Duration // how long a pending booking may stay open
	HoldSweepInterval time.Duration
	ReconcileSchedule string // cron spec with seconds field
	SweepBatchSize    int
	PolicySeedFile    string
	ReviewerRoles     []string
	AuditRetention    time.Duration
}

// PaymentConfig holds payment gateway configuration
type PaymentConfig struct {
	GatewayURL  string
	MerchantID  string
	MerchantKey string // SECRET - signs capture requests
	Currency    string
	Timeout     time.Duration
}

// RedisConfig holds the flight catalog cache settings. Empty Addr disables caching.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	FlightTTL time.Duration
}

// KafkaConfig holds booking event publishing settings. No brokers disables publishing.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			LogLevel:        getEnv("LOG_LEVEL", "info"),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 20),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			QueryTimeout:       getEnvAsDuration("DATABASE_QUERY_TIMEOUT", 5*time.Second),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", "skyroute-identity"),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Booking: BookingConfig{
			SeatHoldWindow:    time.Duration(getEnvAsInt("SEAT_HOLD_WINDOW_MINUTES", 15)) * time.Minute,
			BookingHoldWindow: time.Duration(getEnvAsInt("BOOKING_HOLD_WINDOW_MINUTES", 30)) * time.Minute,
			HoldSweepInterval: getEnvAsDuration("HOLD_SWEEP_INTERVAL", time.Minute),
			ReconcileSchedule: getEnv("RECONCILE_CRON", "0 */5 * * * *"),
			SweepBatchSize:    getEnvAsInt("HOLD_SWEEP_BATCH_SIZE", 500),
			PolicySeedFile:    getEnv("POLICY_SEED_FILE", "configs/cancellation_policies.yaml"),
			ReviewerRoles:     getEnvAsSlice("REFUND_REVIEWER_ROLES", []string{"agent", "admin"}),
			AuditRetention:    time.Duration(getEnvAsInt("AUDIT_RETENTION_DAYS", 365)) * 24 * time.Hour,
		},
		Payment: PaymentConfig{
			GatewayURL:  getEnv("PAYMENT_GATEWAY_URL", ""),
			MerchantID:  getEnv("PAYMENT_MERCHANT_ID", ""),
			MerchantKey: getEnv("PAYMENT_MERCHANT_KEY", ""),
			Currency:    getEnv("PAYMENT_CURRENCY", "USD"),
			Timeout:     getEnvAsDuration("PAYMENT_TIMEOUT", 30*time.Second),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", ""),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			FlightTTL: getEnvAsDuration("FLIGHT_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_BOOKING_TOPIC", "booking-events"),
		},
		Metrics: MetricsConfig{
			Enabled:   getEnvAsBool("METRICS_ENABLED", true),
			Namespace: getEnv("METRICS_NAMESPACE", "booking_core"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Booking.SeatHoldWindow <= 0 {
		return fmt.Errorf("SEAT_HOLD_WINDOW_MINUTES must be positive")
	}

	if c.Booking.BookingHoldWindow < c.Booking.SeatHoldWindow {
		return fmt.Errorf("BOOKING_HOLD_WINDOW_MINUTES must not be shorter than SEAT_HOLD_WINDOW_MINUTES")
	}

	if c.Booking.HoldSweepInterval <= 0 {
		return fmt.Errorf("HOLD_SWEEP_INTERVAL must be positive")
	}

	if c.Server.Environment == "production" {
		if c.Payment.GatewayURL == "" {
			return fmt.Errorf("PAYMENT_GATEWAY_URL is required in production")
		}
		if c.Payment.MerchantKey == "" {
			return fmt.Errorf("PAYMENT_MERCHANT_KEY is required in production")
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
