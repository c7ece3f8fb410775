// Package config loads the ledger service's configuration from
// environment variables, the way the teacher's pkg/config does: a flat
// Config struct, getEnv*-family helpers with explicit defaults, and a
// Validate() pass that fails startup loudly rather than limping on with
// weak secrets.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"os"
)

// Config holds all configuration for the ledger service.
type Config struct {
	// Server Configuration
	ListenAddr  string
	MetricsAddr string
	HealthAddr  string

	// Database Configuration
	DatabaseURL         string
	DatabaseMaxConns    int
	DatabaseMinConns    int
	DatabaseMaxIdleTime int // seconds
	DatabaseMaxLifetime int // seconds
	DatabaseRequired    bool

	// Signing key configuration
	Ed25519KeyPath string // path to a hex-encoded Ed25519 private key file
	DataDir        string

	// Checkpoint/commitment cadence (§4.F/§4.G)
	CheckpointInterval uint64
	CommitmentInterval uint64

	// HMAC secret for Checkpoint/Commitment state HMAC (§3/§4.G)
	StateHMACSecret string

	// Notarization webhook (optional; empty disables notarization)
	NotarizeURL string
	NotarizeVerifyURL string
	NotarizeTimeout   time.Duration

	// Trusted signing-key-version registry, comma-separated fingerprints
	TrustedKeyVersions []string

	// Security Configuration
	JWTSecret   string
	CORSOrigins []string
	TLSEnabled  bool

	// Rate Limiting
	RateLimitRequests int
	RateLimitWindow   int // seconds

	LogLevel string
}

// Load reads configuration from environment variables. Required
// variables have no defaults; call Validate() after Load() before
// starting the service.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("API_PORT", "8080"),
		MetricsAddr: getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("METRICS_PORT", "9090"),
		HealthAddr:  getEnv("API_HOST", "0.0.0.0") + ":" + getEnv("HEALTH_CHECK_PORT", "8081"),

		DatabaseURL:         getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:    getEnvInt("DATABASE_MAX_CONNS", 25),
		DatabaseMinConns:    getEnvInt("DATABASE_MIN_CONNS", 5),
		DatabaseMaxIdleTime: getEnvInt("DATABASE_MAX_IDLE_TIME", 300),
		DatabaseMaxLifetime: getEnvInt("DATABASE_MAX_LIFETIME", 3600),
		DatabaseRequired:    getEnvBool("DATABASE_REQUIRED", true),

		Ed25519KeyPath: getEnv("LEDGER_SIGNING_KEY_PATH", ""),
		DataDir:        getEnv("LEDGER_DATA_DIR", "./data"),

		CheckpointInterval: uint64(getEnvInt("CHECKPOINT_INTERVAL", 100)),
		CommitmentInterval: uint64(getEnvInt("COMMITMENT_INTERVAL", 500)),

		StateHMACSecret: getEnv("STATE_HMAC_SECRET", ""),

		NotarizeURL:       getEnv("NOTARIZE_URL", ""),
		NotarizeVerifyURL: getEnv("NOTARIZE_VERIFY_URL", ""),
		NotarizeTimeout:   getEnvDuration("NOTARIZE_TIMEOUT", 30*time.Second),

		TrustedKeyVersions: parseCommaList(getEnv("TRUSTED_KEY_VERSIONS", "")),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		CORSOrigins: parseCommaList(getEnv("CORS_ORIGINS", "")),
		TLSEnabled:  getEnvBool("TLS_ENABLED", false),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 600),
		RateLimitWindow:   getEnvInt("RATE_LIMIT_WINDOW", 60),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and
// reasonably secure. Must be called after Load() before starting the
// service in production.
func (c *Config) Validate() error {
	var errs []string

	if c.DatabaseRequired && c.DatabaseURL == "" {
		errs = append(errs, "DATABASE_URL is required but not set")
	}

	if c.StateHMACSecret == "" {
		errs = append(errs, "STATE_HMAC_SECRET is required but not set")
	} else if len(c.StateHMACSecret) < 32 {
		errs = append(errs, "STATE_HMAC_SECRET must be at least 32 characters")
	}

	if c.Ed25519KeyPath == "" {
		errs = append(errs, "LEDGER_SIGNING_KEY_PATH is required but not set")
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters if set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
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
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
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

func parseCommaList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
