// Package config handles application configuration.
package config

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/hkdf"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port    int
	BaseURL string

	// Database
	DatabaseURL string

	// Encryption
	EncryptionKey []byte // 32-byte key for AES-256-GCM encryption of Instagram tokens

	// Clerk Authentication
	ClerkIssuerURL     string // e.g., "https://xxx.clerk.accounts.dev"
	ClerkSecretKey     string // Clerk Backend API secret key (sk_xxx)
	ClerkWebhookSecret string // Svix signing secret for Clerk webhooks

	// Instagram Graph API
	InstagramAppID      string
	InstagramAppSecret  string
	InstagramGraphURL   string // Override for tests; defaults to the public Graph endpoint
	AppHourlyCallLimit  int    // Platform-wide calls per hourly window (0 = use built-in default)

	// CORS
	CORSOrigins []string

	// Object Storage (Tigris/S3-compatible) for tier setting overrides
	StorageEnabled   bool
	StorageEndpoint  string // AWS_ENDPOINT_URL_S3 for Tigris
	StorageAccessKey string // AWS_ACCESS_KEY_ID
	StorageSecretKey string // AWS_SECRET_ACCESS_KEY
	StorageBucket    string // Bucket name (one per environment)
	StorageRegion    string // Region (auto for Tigris)

	// Cleanup
	CleanupEnabled       bool          // Enable automatic cleanup
	CleanupMaxAgeQueue   time.Duration // Max age of completed/failed queue items to keep
	CleanupMaxAgeUsage   time.Duration // Max age of usage counters to keep for historical stats
	CleanupInterval      time.Duration // How often to run cleanup (default 24 hours)

	// Worker
	WorkerPollInterval        time.Duration // How often the worker checks for drain work (default 15s)
	DrainBatchSize            int           // Queue items claimed per drain pass (default 25)
	WorkerShutdownGracePeriod time.Duration // Max time to wait for in-flight drains during shutdown
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env if present; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		DatabaseURL: getEnv("DATABASE_URL", "file:ainspire.db?_journal=WAL&_timeout=5000"),

		ClerkIssuerURL:     getEnv("CLERK_ISSUER_URL", ""),
		ClerkSecretKey:     getEnv("CLERK_SECRET_KEY", ""),
		ClerkWebhookSecret: getEnv("CLERK_WEBHOOK_SECRET", ""),

		InstagramAppID:     getEnv("INSTAGRAM_APP_ID", ""),
		InstagramAppSecret: getEnv("INSTAGRAM_APP_SECRET", ""),
		InstagramGraphURL:  getEnv("INSTAGRAM_GRAPH_URL", "https://graph.instagram.com/v21.0"),
		AppHourlyCallLimit: getEnvInt("APP_HOURLY_CALL_LIMIT", 0),

		CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),

		// Object Storage (Tigris/S3-compatible) - uses Fly's standard env vars
		// BUCKET_NAME is set automatically by `fly storage create`
		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnvWithFallback("BUCKET_NAME", "STORAGE_BUCKET", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
	}

	// Enable storage if bucket is configured
	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	// Cleanup configuration
	cfg.CleanupEnabled = getEnvBool("CLEANUP_ENABLED", true)
	cfg.CleanupMaxAgeQueue = getEnvDuration("CLEANUP_MAX_AGE_QUEUE", 7*24*time.Hour)
	cfg.CleanupMaxAgeUsage = getEnvDuration("CLEANUP_MAX_AGE_USAGE", 30*24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	// Worker configuration
	cfg.WorkerPollInterval = getEnvDuration("WORKER_POLL_INTERVAL", 15*time.Second)
	cfg.DrainBatchSize = getEnvInt("DRAIN_BATCH_SIZE", 25)
	cfg.WorkerShutdownGracePeriod = getEnvDuration("WORKER_SHUTDOWN_GRACE_PERIOD", 2*time.Minute)

	if cfg.ClerkIssuerURL == "" {
		return nil, fmt.Errorf("CLERK_ISSUER_URL is required")
	}

	// Set up encryption key
	encKeyStr := getEnv("ENCRYPTION_KEY", "")
	if encKeyStr != "" {
		// Decode base64 key if provided
		decoded, err := base64.StdEncoding.DecodeString(encKeyStr)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be a base64-encoded 32-byte key")
		}
		cfg.EncryptionKey = decoded
	} else {
		// Derive from the Instagram app secret so single-secret deployments work
		if cfg.InstagramAppSecret == "" {
			return nil, fmt.Errorf("ENCRYPTION_KEY or INSTAGRAM_APP_SECRET is required")
		}
		cfg.EncryptionKey = deriveEncryptionKey(cfg.InstagramAppSecret)
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
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getEnvWithFallback(primary, fallback, defaultValue string) string {
	if value := os.Getenv(primary); value != "" {
		return value
	}
	if value := os.Getenv(fallback); value != "" {
		return value
	}
	return defaultValue
}

// deriveEncryptionKey creates a 32-byte AES-256 key from a secret string using HKDF.
// HKDF (HMAC-based Key Derivation Function) is appropriate for deriving keys from
// high-entropy secrets like API app secrets. For low-entropy passwords, use Argon2 instead.
func deriveEncryptionKey(secret string) []byte {
	// Use HKDF with SHA-256
	// - Salt: fixed but unique to this application
	// - Info: context string to bind the key to its purpose
	salt := []byte("ainspiretech-api-encryption-key-v1")
	info := []byte("aes-256-gcm-encryption")

	hkdfReader := hkdf.New(sha256.New, []byte(secret), salt, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		// This should never happen with valid inputs
		panic("hkdf: failed to derive key: " + err.Error())
	}

	return key
}
