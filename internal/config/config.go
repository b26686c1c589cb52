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
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Payment gateway configuration
	Gateway GatewayConfig

	// Proof blob store configuration
	BlobStore BlobStoreConfig

	// Background reconciliation configuration
	Reconcile ReconcileConfig

	// CORS configuration
	CORS CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// GatewayConfig holds payment gateway configuration
type GatewayConfig struct {
	Environment   string // "sandbox" or "production"
	BaseURL       string // Gateway API base URL
	MerchantKey   string // Merchant API key
	MerchantToken string // Merchant API token (SECRET - never expose to client)
	WebhookSecret string // Shared secret for callback signature verification
	CallbackURL   string // Server callback URL registered with the gateway
}

// BlobStoreConfig holds payment-proof object store configuration
type BlobStoreConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Bucket        string
	UploadTimeout time.Duration
}

// ReconcileConfig holds background reconciliation configuration
type ReconcileConfig struct {
	SweepSchedule   string        // cron expression for the stale-intent sweep
	PendingEventTTL time.Duration // gateway events pending longer than this are expired
	AuditRetention  time.Duration // payment audit rows older than this are pruned
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Gateway: GatewayConfig{
			Environment:   getEnv("GATEWAY_ENVIRONMENT", "sandbox"),
			BaseURL:       getEnv("GATEWAY_BASE_URL", "https://sandbox.gateway.guidelink.io/v1"),
			MerchantKey:   getEnv("GATEWAY_MERCHANT_KEY", ""),
			MerchantToken: getEnv("GATEWAY_MERCHANT_TOKEN", ""),
			WebhookSecret: getEnv("GATEWAY_WEBHOOK_SECRET", ""),
			CallbackURL:   getEnv("GATEWAY_CALLBACK_URL", ""),
		},
		BlobStore: BlobStoreConfig{
			Endpoint:      getEnv("BLOBSTORE_ENDPOINT", "localhost:9000"),
			AccessKey:     getEnv("BLOBSTORE_ACCESS_KEY", ""),
			SecretKey:     getEnv("BLOBSTORE_SECRET_KEY", ""),
			UseSSL:        getEnvAsBool("BLOBSTORE_USE_SSL", false),
			Bucket:        getEnv("BLOBSTORE_BUCKET", "payment-proofs"),
			UploadTimeout: time.Duration(getEnvAsInt("BLOBSTORE_UPLOAD_TIMEOUT_SECONDS", 30)) * time.Second,
		},
		Reconcile: ReconcileConfig{
			SweepSchedule:   getEnv("RECONCILE_SWEEP_SCHEDULE", "0 */10 * * * *"),
			PendingEventTTL: time.Duration(getEnvAsInt("RECONCILE_PENDING_EVENT_TTL_MINUTES", 60)) * time.Minute,
			AuditRetention:  time.Duration(getEnvAsInt("RECONCILE_AUDIT_RETENTION_DAYS", 180)) * 24 * time.Hour,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Idempotency-Key"}),
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

	if c.Gateway.WebhookSecret == "" {
		return fmt.Errorf("GATEWAY_WEBHOOK_SECRET is required")
	}

	// Merchant credentials are only mandatory when real orders will be placed
	if c.Gateway.Environment == "production" {
		if c.Gateway.MerchantKey == "" {
			return fmt.Errorf("GATEWAY_MERCHANT_KEY is required in production mode")
		}

		if c.Gateway.MerchantToken == "" {
			return fmt.Errorf("GATEWAY_MERCHANT_TOKEN is required in production mode")
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

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}
